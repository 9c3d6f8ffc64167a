package vaultkv2

import (
	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/providers"
	log "github.com/sirupsen/logrus"
)

func Register() {
	providers.RegisterProvider(config.HashicorpVaultKV2, func(logger *log.Entry, conf config.ProviderConf) (providers.Provider, error) {
		pConfig, err := config.DecodeStruct[HashicorpVaultSDK](conf.Config)
		if err != nil {
			return nil, err
		}

		return NewVaultKV2Provider(logger, config.ProviderConfigAdapter[HashicorpVaultSDK]{
			ID:       conf.ID,
			Metadata: conf.Metadata,
			Config:   pConfig,
		})
	})
}
