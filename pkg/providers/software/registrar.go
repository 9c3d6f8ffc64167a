package software

import (
	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/providers"
	log "github.com/sirupsen/logrus"
)

func Register() {
	providers.RegisterProvider(config.SoftwareProvider, func(logger *log.Entry, conf config.ProviderConf) (providers.Provider, error) {
		pConfig, err := config.DecodeStruct[SoftwareConfig](conf.Config)
		if err != nil {
			return nil, err
		}

		return NewSoftwareProvider(logger, config.ProviderConfigAdapter[SoftwareConfig]{
			ID:       conf.ID,
			Metadata: conf.Metadata,
			Config:   pConfig,
		})
	})
}
