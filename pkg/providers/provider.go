package providers

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"

	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/sirupsen/logrus"
)

// Provider abstracts a key storage backend. Key IDs handed out by a
// provider are local to that provider.
type Provider interface {
	GetProviderInfo() models.ProviderInfo

	ListKeyIDs() ([]string, error)
	GetSignerByID(keyID string) (crypto.Signer, error)

	CreateRSAPrivateKey(keySize int) (string, crypto.Signer, error)
	CreateECDSAPrivateKey(curve elliptic.Curve) (string, crypto.Signer, error)

	ImportRSAPrivateKey(key *rsa.PrivateKey) (string, crypto.Signer, error)
	ImportECDSAPrivateKey(key *ecdsa.PrivateKey) (string, crypto.Signer, error)

	DeleteKey(keyID string) error
}

var providerBuilders = make(map[config.ProviderType]func(*logrus.Entry, config.ProviderConf) (Provider, error))

func RegisterProvider(name config.ProviderType, builder func(*logrus.Entry, config.ProviderConf) (Provider, error)) {
	providerBuilders[name] = builder
}

func GetProviderBuilder(name config.ProviderType) func(*logrus.Entry, config.ProviderConf) (Provider, error) {
	return providerBuilders[name]
}
