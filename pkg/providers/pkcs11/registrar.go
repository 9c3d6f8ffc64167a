//go:build !windows
// +build !windows

package pkcs11

import (
	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/providers"
	log "github.com/sirupsen/logrus"
)

func Register() {
	providers.RegisterProvider(config.PKCS11Provider, func(logger *log.Entry, conf config.ProviderConf) (providers.Provider, error) {
		pConfig, err := config.DecodeStruct[PKCS11Config](conf.Config)
		if err != nil {
			return nil, err
		}

		return NewPKCS11Provider(logger, config.ProviderConfigAdapter[PKCS11Config]{
			ID:       conf.ID,
			Metadata: conf.Metadata,
			Config:   pConfig,
		})
	})
}
