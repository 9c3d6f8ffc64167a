package vaultkv2

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/hashicorp/vault/api"
	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/helpers"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/keybrokerhq/keybroker/pkg/providers"
	"github.com/keybrokerhq/keybroker/pkg/providers/software"
	"github.com/sirupsen/logrus"
)

type VaultKV2Provider struct {
	softCryptoEngine *software.SoftwareCryptoEngine
	kvv2Client       *api.KVv2
	mountPath        string
	vaultClient      *api.Client
	config           models.ProviderInfo
	logger           *logrus.Entry
}

func NewVaultKV2Provider(logger *logrus.Entry, conf config.ProviderConfigAdapter[HashicorpVaultSDK]) (providers.Provider, error) {
	var err error
	lVault := logger.WithField("subsystem-provider", "Vault-KV2")
	address := fmt.Sprintf("%s://%s:%d", conf.Config.Protocol, conf.Config.Hostname, conf.Config.Port)

	lVault.Debugf("configuring VaultKV2 provider")

	vaultClientConf := api.DefaultConfig()
	httpClient, err := helpers.BuildHTTPClientWithTLSOptions(&http.Client{}, conf.Config.TLSConfig)
	if err != nil {
		return nil, err
	}

	httpClient, err = helpers.BuildHTTPClientWithTracerLogger(httpClient, lVault)
	if err != nil {
		return nil, err
	}

	vaultClientConf.HttpClient = httpClient
	vaultClientConf.Address = address
	vaultClient, err := api.NewClient(vaultClientConf)
	if err != nil {
		lVault.Errorf("could not create Vault API client: %s", err)
		return nil, errors.New("could not create Vault API client: " + err.Error())
	}

	if conf.Config.AutoUnsealEnabled {
		err = Unseal(vaultClient, conf.Config.AutoUnsealKeys, lVault)
		if err != nil {
			lVault.Errorf("could not unseal Vault: %s", err)
			return nil, errors.New("could not unseal Vault: " + err.Error())
		}
	}

	err = Login(vaultClient, conf.Config.RoleID, string(conf.Config.SecretID))
	if err != nil {
		lVault.Errorf("could not login into Vault: %s", err)
		return nil, errors.New("could not login into Vault: " + err.Error())
	}

	mounts, err := vaultClient.Sys().ListMounts()
	if err != nil {
		return nil, err
	}

	hasMount := false

	for mountPath := range mounts {
		if mountPath == fmt.Sprintf("%s/", conf.Config.MountPath) { //mountPath has a trailing slash
			hasMount = true
		}
	}

	if !hasMount {
		err = vaultClient.Sys().Mount(conf.Config.MountPath, &api.MountInput{
			Type: "kv-v2",
		})
		if err != nil {
			return nil, err
		}
	}

	kv2 := vaultClient.KVv2(conf.Config.MountPath)

	defaultMeta := map[string]interface{}{
		"keybroker.io/provider/vaultkv2/address":    address,
		"keybroker.io/provider/vaultkv2/mount-path": conf.Config.MountPath,
	}

	meta := helpers.MergeMaps[interface{}](&defaultMeta, &conf.Metadata)
	return &VaultKV2Provider{
		logger:           lVault,
		softCryptoEngine: software.NewSoftwareCryptoEngine(lVault),
		mountPath:        conf.Config.MountPath,
		vaultClient:      vaultClient,
		kvv2Client:       kv2,
		config: models.ProviderInfo{
			Type:          models.VaultKV2,
			SecurityLevel: models.SL1,
			Provider:      "Hashicorp",
			Name:          "Key Value - V2",
			Metadata:      *meta,
			SupportedKeyTypes: []models.SupportedKeyTypeInfo{
				{
					Type: models.KeyType(x509.RSA),
					Sizes: []int{
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
						521,
					},
				},
			},
		},
	}, nil
}

func (p *VaultKV2Provider) GetProviderInfo() models.ProviderInfo {
	return p.config
}

func (p *VaultKV2Provider) GetSignerByID(keyID string) (crypto.Signer, error) {
	p.logger.Debugf("requesting private key with ID [%s]", keyID)
	key, err := p.kvv2Client.Get(context.Background(), keyID)
	if err != nil {
		p.logger.Errorf("could not get private key: %s", err)
		return nil, errors.New("could not get private key")
	}
	p.logger.Debugf("successfully retrieved private key")

	var b64Key string
	mapValue, ok := key.Data["key"]
	if !ok {
		return nil, fmt.Errorf("'key' not found in secret")
	}

	if b64Key, ok = mapValue.(string); !ok {
		return nil, fmt.Errorf("'key' not in string format")
	}

	pemBytes, err := base64.StdEncoding.DecodeString(b64Key)
	if err != nil {
		return nil, err
	}

	return p.softCryptoEngine.ParsePrivateKey(pemBytes)
}

func (p *VaultKV2Provider) ListKeyIDs() ([]string, error) {
	p.logger.Debugf("listing private keys")

	resp, err := p.vaultClient.Logical().List(fmt.Sprintf("%s/metadata", p.mountPath))
	if err != nil {
		return nil, fmt.Errorf("error making request to vault: %w", err)
	}

	if resp == nil {
		return []string{}, nil
	}

	if resp.Data == nil {
		return nil, errors.New("no data in response from vault")
	}

	if _, ok := resp.Data["keys"]; !ok {
		return nil, errors.New("no keys in response from vault")
	}

	var keys []string
	for _, key := range resp.Data["keys"].([]any) {
		keys = append(keys, key.(string))
	}

	p.logger.Debugf("successfully retrieved private keys")
	return keys, nil
}

func (p *VaultKV2Provider) CreateRSAPrivateKey(keySize int) (string, crypto.Signer, error) {
	p.logger.Debugf("creating RSA private key")

	_, key, err := p.softCryptoEngine.CreateRSAPrivateKey(keySize)
	if err != nil {
		p.logger.Errorf("could not create RSA private key: %s", err)
		return "", nil, err
	}

	p.logger.Debugf("RSA key successfully generated")
	return p.importKey(key)
}

func (p *VaultKV2Provider) CreateECDSAPrivateKey(c elliptic.Curve) (string, crypto.Signer, error) {
	p.logger.Debugf("creating ECDSA private key")

	_, key, err := p.softCryptoEngine.CreateECDSAPrivateKey(c)
	if err != nil {
		p.logger.Errorf("could not create ECDSA private key: %s", err)
		return "", nil, err
	}

	p.logger.Debugf("ECDSA key successfully generated")
	return p.importKey(key)
}

func (p *VaultKV2Provider) ImportRSAPrivateKey(key *rsa.PrivateKey) (string, crypto.Signer, error) {
	p.logger.Debugf("importing RSA private key")

	keyID, signer, err := p.importKey(key)
	if err != nil {
		p.logger.Errorf("could not import RSA key: %s", err)
		return "", nil, err
	}

	p.logger.Debugf("RSA key successfully imported")
	return keyID, signer, nil
}

func (p *VaultKV2Provider) ImportECDSAPrivateKey(key *ecdsa.PrivateKey) (string, crypto.Signer, error) {
	p.logger.Debugf("importing ECDSA private key")

	keyID, signer, err := p.importKey(key)
	if err != nil {
		p.logger.Errorf("could not import ECDSA key: %s", err)
		return "", nil, err
	}

	p.logger.Debugf("ECDSA key successfully imported")
	return keyID, signer, nil
}

func (p *VaultKV2Provider) importKey(key any) (string, crypto.Signer, error) {
	var pubKey any
	switch k := key.(type) {
	case *rsa.PrivateKey:
		pubKey = &k.PublicKey
	case *ecdsa.PrivateKey:
		pubKey = &k.PublicKey
	default:
		return "", nil, errors.New("unsupported key type")
	}

	keyID, err := p.softCryptoEngine.EncodePKIXPublicKeyDigest(pubKey)
	if err != nil {
		p.logger.Errorf("could not encode public key digest: %s", err)
		return "", nil, err
	}

	b64PemKey, err := p.softCryptoEngine.MarshalAndEncodePKIXPrivateKey(key)
	if err != nil {
		p.logger.Errorf("could not marshal and encode private key: %s", err)
		return "", nil, err
	}

	var keyMap = map[string]interface{}{
		"key": b64PemKey,
	}

	_, err = p.kvv2Client.Put(context.Background(), keyID, keyMap)
	if err != nil {
		p.logger.Errorf("could not save the private key in vault: %s", err)
		return "", nil, err
	}

	signer, err := p.GetSignerByID(keyID)
	if err != nil {
		p.logger.Errorf("could not retrieve the private key from vault: %s", err)
		return "", nil, err
	}

	return keyID, signer, nil
}

func (p *VaultKV2Provider) DeleteKey(keyID string) error {
	err := p.kvv2Client.Delete(context.Background(), keyID)
	return err
}

func Unseal(client *api.Client, unsealKeys []config.Password, logger *logrus.Entry) error {
	providedSharesCount := 0
	sealed := true

	for sealed {
		unsealStatusProgress, err := client.Sys().Unseal(string(unsealKeys[providedSharesCount]))
		if err != nil {
			logger.Error("Error while unsealing vault: ", err)
			return err
		}
		logger.Info("Unseal progress shares=" + strconv.Itoa(unsealStatusProgress.N) + " threshold=" + strconv.Itoa(unsealStatusProgress.T) + " remaining_shares=" + strconv.Itoa(unsealStatusProgress.Progress))

		providedSharesCount++
		if !unsealStatusProgress.Sealed {
			logger.Info("Vault is unsealed")
			sealed = false
		}
	}
	return nil
}

func Login(client *api.Client, roleID string, secretID string) error {
	loginPath := "auth/approle/login"
	options := map[string]interface{}{
		"role_id":   roleID,
		"secret_id": secretID,
	}
	resp, err := client.Logical().Write(loginPath, options)
	if err != nil {
		return err
	}
	client.SetToken(resp.Auth.ClientToken)
	return nil
}
