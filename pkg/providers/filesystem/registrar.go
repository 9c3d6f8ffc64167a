package filesystem

import (
	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/providers"
	log "github.com/sirupsen/logrus"
)

func Register() {
	providers.RegisterProvider(config.FilesystemProvider, func(logger *log.Entry, conf config.ProviderConf) (providers.Provider, error) {
		pConfig, err := config.DecodeStruct[FilesystemConfig](conf.Config)
		if err != nil {
			return nil, err
		}

		return NewFilesystemPEMProvider(logger, config.ProviderConfigAdapter[FilesystemConfig]{
			ID:       conf.ID,
			Metadata: conf.Metadata,
			Config:   pConfig,
		})
	})
}
