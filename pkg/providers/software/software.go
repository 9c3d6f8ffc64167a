package software

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"runtime"
	"sync"

	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/helpers"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/keybrokerhq/keybroker/pkg/providers"
	"github.com/sirupsen/logrus"
)

// SoftwareCryptoEngine holds the pure-Go key material primitives. Other
// providers reuse it to generate and serialize keys before handing them
// to their own storage backend.
type SoftwareCryptoEngine struct {
	logger *logrus.Entry
}

func NewSoftwareCryptoEngine(logger *logrus.Entry) *SoftwareCryptoEngine {
	return &SoftwareCryptoEngine{
		logger: logger,
	}
}

func (p *SoftwareCryptoEngine) CreateRSAPrivateKey(keySize int) (string, *rsa.PrivateKey, error) {
	lFunc := p.logger.WithField("func", "RSA")
	lFunc.Debugf("creating RSA %d bit key", keySize)
	key, err := helpers.GenerateRSAKey(keySize)
	if err != nil {
		lFunc.Errorf("could not create RSA key: %s", err)
		return "", nil, err
	}

	encDigest, err := p.EncodePKIXPublicKeyDigest(&key.PublicKey)
	if err != nil {
		lFunc.Errorf("could not encode public key digest: %s", err)
		return "", nil, err
	}

	return encDigest, key, nil
}

func (p *SoftwareCryptoEngine) CreateECDSAPrivateKey(curve elliptic.Curve) (string, *ecdsa.PrivateKey, error) {
	lFunc := p.logger.WithField("func", "ECDSA")
	lFunc.Debugf("creating ECDSA %s key", curve.Params().Name)
	key, err := helpers.GenerateECDSAKey(curve)
	if err != nil {
		lFunc.Errorf("could not create ECDSA key: %s", err)
		return "", nil, err
	}

	encDigest, err := p.EncodePKIXPublicKeyDigest(&key.PublicKey)
	if err != nil {
		lFunc.Errorf("could not encode public key digest: %s", err)
		return "", nil, err
	}

	return encDigest, key, nil
}

func (p *SoftwareCryptoEngine) MarshalAndEncodePKIXPrivateKey(key interface{}) (string, error) {
	keyBytes, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		p.logger.Errorf("could not marshal PKIX private key: %s", err)
		return "", err
	}

	keyPem := pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: keyBytes,
	})

	keyBase64 := base64.StdEncoding.EncodeToString([]byte(keyPem))

	return keyBase64, nil
}

// EncodePKIXPublicKeyDigest derives the provider-local key ID: the hex
// encoded SHA-256 digest of the PKIX public key.
func (p *SoftwareCryptoEngine) EncodePKIXPublicKeyDigest(key any) (string, error) {
	pubkeyBytes, err := x509.MarshalPKIXPublicKey(key)
	if err != nil {
		p.logger.Errorf("could not marshal public key: %s", err)
		return "", err
	}

	hash := sha256.New()
	hash.Write(pubkeyBytes)
	digest := hash.Sum(nil)

	hexDigest := hex.EncodeToString(digest)
	p.logger.Debugf("public key digest (hex encoded bytes): %s", hexDigest)

	return hexDigest, nil
}

func (p *SoftwareCryptoEngine) ParsePrivateKey(pemBytes []byte) (crypto.Signer, error) {
	block, _ := pem.Decode(pemBytes)
	if block == nil {
		return nil, fmt.Errorf("no key found")
	}

	genericKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		genericKey, err = x509.ParsePKCS1PrivateKey(block.Bytes)
		if err != nil {
			genericKey, err = x509.ParseECPrivateKey(block.Bytes)
			if err != nil {
				return nil, err
			}
		}
	}

	switch key := genericKey.(type) {
	case *rsa.PrivateKey:
		return key, nil
	case *ecdsa.PrivateKey:
		return key, nil
	default:
		return nil, errors.New("unsupported key type")
	}
}

// SoftwareProvider keeps key material in process memory. Keys do not
// survive a restart, which makes it suitable for tests and ephemeral
// deployments only.
type SoftwareProvider struct {
	softCryptoEngine *SoftwareCryptoEngine
	config           models.ProviderInfo
	logger           *logrus.Entry

	mu   sync.RWMutex
	keys map[string]crypto.Signer
}

func NewSoftwareProvider(logger *logrus.Entry, conf config.ProviderConfigAdapter[SoftwareConfig]) (providers.Provider, error) {
	lSw := logger.WithField("subsystem-provider", "Software")

	defaultMeta := map[string]interface{}{
		"keybroker.io/provider/software/ephemeral": true,
	}

	meta := helpers.MergeMaps[interface{}](&defaultMeta, &conf.Metadata)
	return &SoftwareProvider{
		logger:           lSw,
		softCryptoEngine: NewSoftwareCryptoEngine(lSw),
		keys:             map[string]crypto.Signer{},
		config: models.ProviderInfo{
			Type:          models.Software,
			SecurityLevel: models.SL0,
			Provider:      "Golang",
			Name:          runtime.Version(),
			Metadata:      *meta,
			SupportedKeyTypes: []models.SupportedKeyTypeInfo{
				{
					Type: models.KeyType(x509.RSA),
					Sizes: []int{
						1024,
						2048,
						3072,
						4096,
					},
				},
				{
					Type: models.KeyType(x509.ECDSA),
					Sizes: []int{
						224,
						256,
						384,
						521,
					},
				},
			},
		},
	}, nil
}

func (p *SoftwareProvider) GetProviderInfo() models.ProviderInfo {
	return p.config
}

func (p *SoftwareProvider) ListKeyIDs() ([]string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	keyIDs := make([]string, 0, len(p.keys))
	for keyID := range p.keys {
		keyIDs = append(keyIDs, keyID)
	}

	return keyIDs, nil
}

func (p *SoftwareProvider) GetSignerByID(keyID string) (crypto.Signer, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	signer, ok := p.keys[keyID]
	if !ok {
		return nil, fmt.Errorf("could not find private key")
	}

	return signer, nil
}

func (p *SoftwareProvider) CreateRSAPrivateKey(keySize int) (string, crypto.Signer, error) {
	p.logger.Debugf("creating RSA private key")

	keyID, key, err := p.softCryptoEngine.CreateRSAPrivateKey(keySize)
	if err != nil {
		p.logger.Errorf("could not create RSA private key: %s", err)
		return "", nil, err
	}

	p.storeKey(keyID, key)
	return keyID, key, nil
}

func (p *SoftwareProvider) CreateECDSAPrivateKey(curve elliptic.Curve) (string, crypto.Signer, error) {
	p.logger.Debugf("creating ECDSA private key")

	keyID, key, err := p.softCryptoEngine.CreateECDSAPrivateKey(curve)
	if err != nil {
		p.logger.Errorf("could not create ECDSA private key: %s", err)
		return "", nil, err
	}

	p.storeKey(keyID, key)
	return keyID, key, nil
}

func (p *SoftwareProvider) ImportRSAPrivateKey(key *rsa.PrivateKey) (string, crypto.Signer, error) {
	p.logger.Debugf("importing RSA private key")

	keyID, err := p.softCryptoEngine.EncodePKIXPublicKeyDigest(&key.PublicKey)
	if err != nil {
		p.logger.Errorf("could not encode public key digest: %s", err)
		return "", nil, err
	}

	p.storeKey(keyID, key)
	return keyID, key, nil
}

func (p *SoftwareProvider) ImportECDSAPrivateKey(key *ecdsa.PrivateKey) (string, crypto.Signer, error) {
	p.logger.Debugf("importing ECDSA private key")

	keyID, err := p.softCryptoEngine.EncodePKIXPublicKeyDigest(&key.PublicKey)
	if err != nil {
		p.logger.Errorf("could not encode public key digest: %s", err)
		return "", nil, err
	}

	p.storeKey(keyID, key)
	return keyID, key, nil
}

func (p *SoftwareProvider) DeleteKey(keyID string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if _, ok := p.keys[keyID]; !ok {
		return fmt.Errorf("could not find private key")
	}

	delete(p.keys, keyID)
	return nil
}

func (p *SoftwareProvider) storeKey(keyID string, signer crypto.Signer) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys[keyID] = signer
}
