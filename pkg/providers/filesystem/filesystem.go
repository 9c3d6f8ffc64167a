package filesystem

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"os"
	"path/filepath"
	"runtime"

	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/helpers"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/keybrokerhq/keybroker/pkg/providers"
	"github.com/keybrokerhq/keybroker/pkg/providers/software"
	"github.com/sirupsen/logrus"
)

type FilesystemProvider struct {
	config           models.ProviderInfo
	storageDirectory string
	logger           *logrus.Entry
}

func NewFilesystemPEMProvider(logger *logrus.Entry, conf config.ProviderConfigAdapter[FilesystemConfig]) (providers.Provider, error) {
	lFs := logger.WithField("subsystem-provider", "Filesystem")

	defaultMeta := map[string]interface{}{
		"keybroker.io/provider/filesystem/storage-path": conf.Config.StorageDirectory,
	}

	err := checkAndCreateStorageDir(lFs, conf.Config.StorageDirectory)
	if err != nil {
		return nil, err
	}

	meta := helpers.MergeMaps[interface{}](&defaultMeta, &conf.Metadata)
	return &FilesystemProvider{
		logger:           lFs,
		storageDirectory: conf.Config.StorageDirectory,
		config: models.ProviderInfo{
			Type:          models.Filesystem,
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

func (p *FilesystemProvider) GetProviderInfo() models.ProviderInfo {
	return p.config
}

func (p *FilesystemProvider) ListKeyIDs() ([]string, error) {
	p.logger.Debugf("listing private keys")

	entries, err := os.ReadDir(p.storageDirectory)
	if err != nil {
		p.logger.Errorf("could not read storage directory: %s", err)
		return nil, err
	}

	keyIDs := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		keyIDs = append(keyIDs, entry.Name())
	}

	return keyIDs, nil
}

func (p *FilesystemProvider) GetSignerByID(keyID string) (crypto.Signer, error) {
	p.logger.Debugf("reading %s Key", keyID)
	file := filepath.Join(p.storageDirectory, keyID)

	pemBytes, err := os.ReadFile(file)
	if err != nil {
		p.logger.Errorf("could not read %s Key: %s", keyID, err)
		return nil, err
	}

	return software.NewSoftwareCryptoEngine(p.logger).ParsePrivateKey(pemBytes)
}

func (p *FilesystemProvider) CreateRSAPrivateKey(keySize int) (string, crypto.Signer, error) {
	p.logger.Debugf("creating RSA private key")

	_, key, err := software.NewSoftwareCryptoEngine(p.logger).CreateRSAPrivateKey(keySize)
	if err != nil {
		p.logger.Errorf("could not create RSA private key: %s", err)
		return "", nil, err
	}

	p.logger.Debugf("RSA key successfully generated")
	return p.importKey(key)
}

func (p *FilesystemProvider) CreateECDSAPrivateKey(curve elliptic.Curve) (string, crypto.Signer, error) {
	p.logger.Debugf("creating ECDSA private key")

	_, key, err := software.NewSoftwareCryptoEngine(p.logger).CreateECDSAPrivateKey(curve)
	if err != nil {
		p.logger.Errorf("could not create ECDSA private key: %s", err)
		return "", nil, err
	}

	p.logger.Debugf("ECDSA key successfully generated")
	return p.importKey(key)
}

func (p *FilesystemProvider) ImportRSAPrivateKey(key *rsa.PrivateKey) (string, crypto.Signer, error) {
	p.logger.Debugf("importing RSA private key")

	keyID, signer, err := p.importKey(key)
	if err != nil {
		p.logger.Errorf("could not import RSA key: %s", err)
		return "", nil, err
	}

	p.logger.Debugf("RSA key successfully imported")
	return keyID, signer, nil
}

func (p *FilesystemProvider) ImportECDSAPrivateKey(key *ecdsa.PrivateKey) (string, crypto.Signer, error) {
	p.logger.Debugf("importing ECDSA private key")

	keyID, signer, err := p.importKey(key)
	if err != nil {
		p.logger.Errorf("could not import ECDSA key: %s", err)
		return "", nil, err
	}

	p.logger.Debugf("ECDSA key successfully imported")
	return keyID, signer, nil
}

func (p *FilesystemProvider) DeleteKey(keyID string) error {
	return os.Remove(filepath.Join(p.storageDirectory, keyID))
}

func (p *FilesystemProvider) importKey(key interface{}) (string, crypto.Signer, error) {
	var pubKey any
	switch k := key.(type) {
	case *rsa.PrivateKey:
		pubKey = &k.PublicKey
	case *ecdsa.PrivateKey:
		pubKey = &k.PublicKey
	default:
		return "", nil, errors.New("unsupported key type")
	}

	softEngine := software.NewSoftwareCryptoEngine(p.logger)
	keyID, err := softEngine.EncodePKIXPublicKeyDigest(pubKey)
	if err != nil {
		p.logger.Errorf("could not encode public key digest: %s", err)
		return "", nil, err
	}

	b64PemKey, err := softEngine.MarshalAndEncodePKIXPrivateKey(key)
	if err != nil {
		p.logger.Errorf("could not marshal and encode private key: %s", err)
		return "", nil, err
	}

	pemKey, err := base64.StdEncoding.DecodeString(b64PemKey)
	if err != nil {
		p.logger.Errorf("could not decode private key: %s", err)
		return "", nil, err
	}

	file := filepath.Join(p.storageDirectory, keyID)
	err = os.WriteFile(file, pemKey, 0600)
	if err != nil {
		p.logger.Errorf("could not store private key: %s", err)
		return "", nil, err
	}

	signer, err := p.GetSignerByID(keyID)
	if err != nil {
		p.logger.Errorf("could not get private key by ID: %s", err)
		return "", nil, err
	}

	return keyID, signer, nil
}

func checkAndCreateStorageDir(logger *logrus.Entry, dir string) error {
	var err error
	if _, err = os.Stat(dir); os.IsNotExist(err) {
		logger.Warnf("storage directory %s does not exist. Will create such directory", dir)
		err = os.MkdirAll(dir, 0750)
		if err != nil {
			logger.Errorf("something went wrong while creating storage path: %s", err)
		}
		return err
	} else if err != nil {
		logger.Errorf("something went wrong while checking storage: %s", err)
		return err
	}

	return nil
}
