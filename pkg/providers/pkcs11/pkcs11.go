//go:build !windows
// +build !windows

package pkcs11

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"crypto/x509"
	"fmt"
	"os"

	"github.com/ThalesIgnite/crypto11"
	"github.com/google/uuid"
	"github.com/miekg/pkcs11"

	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/helpers"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/keybrokerhq/keybroker/pkg/providers"
	"github.com/keybrokerhq/keybroker/pkg/providers/software"
	"github.com/sirupsen/logrus"
)

type pkcs11ProviderContext struct {
	softCryptoEngine *software.SoftwareCryptoEngine
	api              *crypto11.Context
	slotID           uint
	lowApi           *pkcs11.Ctx
	providerInfo     models.ProviderInfo
	config           crypto11.Config
	logger           *logrus.Entry
}

func NewPKCS11Provider(logger *logrus.Entry, conf config.ProviderConfigAdapter[PKCS11Config]) (providers.Provider, error) {
	lPkcs11 := logger.WithField("subsystem-provider", "PKCS11")
	config := &crypto11.Config{
		Path:       conf.Config.ModulePath,
		Pin:        string(conf.Config.TokenPin),
		TokenLabel: conf.Config.TokenLabel,
	}

	for envKey, envVal := range conf.Config.ModuleExtraOptions.Env {
		lPkcs11.Debugf("setting env variable %s=%s", envKey, envVal)
		os.Setenv(envKey, envVal)
	}

	lPkcs11.Debugf("configuring pkcs11 module: \n - ModulePath: %s\n - TokenLabel: %s\n - Pin: ******\n", config.Path, conf.Config.TokenLabel)
	instance, err := crypto11.Configure(config)
	if err != nil {
		lPkcs11.Errorf("could not configure pkcs11 module: %s", err)
		return nil, fmt.Errorf("could not configure driver")
	}

	moduleContext := pkcs11.New(conf.Config.ModulePath)
	moduleSlots, err := moduleContext.GetSlotList(true)
	if err != nil {
		lPkcs11.Errorf("could not get slot list: %s", err)
		return nil, fmt.Errorf("could not get slot list")
	}

	lPkcs11.Debugf("pkcs11 provider has %d slots", len(moduleSlots))
	var tokenInfo pkcs11.TokenInfo
	var slotID uint
	for _, slot := range moduleSlots {
		lPkcs11.Tracef("getting slot '%d' info", slot)
		tokenInfoResp, err := moduleContext.GetTokenInfo(slot)
		if err != nil {
			lPkcs11.Errorf("could not get slot '%d' info. Skipping: %s", slot, err)
			continue
		}

		lPkcs11.Tracef("slot '%d' has label '%s'", slot, tokenInfoResp.Label)
		if config.TokenLabel == tokenInfoResp.Label {
			tokenInfo = tokenInfoResp
			slotID = slot
		}
	}

	moduleInfo, err := moduleContext.GetInfo()
	if err != nil {
		lPkcs11.Errorf("could not get provider info: %s", err)
		return nil, fmt.Errorf("could not get info")
	}

	pkcs11SupportedKeys := []models.SupportedKeyTypeInfo{}

	rsaMechanismInfo, err := moduleContext.GetMechanismInfo(moduleSlots[0], []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_RSA_PKCS, nil)})
	if err == nil {
		pkcs11SupportedKeys = append(pkcs11SupportedKeys, models.SupportedKeyTypeInfo{
			Type:  models.KeyType(x509.RSA),
			Sizes: helpers.CalculateRSAKeySizes(int(rsaMechanismInfo.MinKeySize), int(rsaMechanismInfo.MaxKeySize)),
		})
		lPkcs11.Debugf("provider supports RSA keys with sizes %d - %d", rsaMechanismInfo.MinKeySize, rsaMechanismInfo.MaxKeySize)
	} else {
		lPkcs11.Errorf("could not get RSA PKCS mechanism. Provider might not support RSA or something went wrong: %s", err)
	}

	ecdsaMechanismInfo, err := moduleContext.GetMechanismInfo(moduleSlots[0], []*pkcs11.Mechanism{pkcs11.NewMechanism(pkcs11.CKM_ECDSA, nil)})
	if err == nil {
		pkcs11SupportedKeys = append(pkcs11SupportedKeys, models.SupportedKeyTypeInfo{
			Type:  models.KeyType(x509.ECDSA),
			Sizes: helpers.CalculateECDSAKeySizes(int(ecdsaMechanismInfo.MinKeySize), int(ecdsaMechanismInfo.MaxKeySize)),
		})
		lPkcs11.Debugf("provider supports ECDSA keys with sizes %d - %d", ecdsaMechanismInfo.MinKeySize, ecdsaMechanismInfo.MaxKeySize)
	} else {
		lPkcs11.Errorf("could not get ECDSA PKCS mechanism. Provider might not support ECDSA or something went wrong: %s", err)
	}

	defaultMeta := map[string]interface{}{
		"keybroker.io/provider/pkcs11/cryptoki-version": fmt.Sprintf("%b.%b", moduleInfo.CryptokiVersion.Major, moduleInfo.CryptokiVersion.Minor),
		"keybroker.io/provider/pkcs11/library":          moduleInfo.LibraryDescription,
		"keybroker.io/provider/pkcs11/manufacturer":     moduleInfo.ManufacturerID,
		"keybroker.io/provider/pkcs11/model":            tokenInfo.Model,
	}

	meta := helpers.MergeMaps[interface{}](&defaultMeta, &conf.Metadata)

	return &pkcs11ProviderContext{
		logger:           lPkcs11,
		softCryptoEngine: software.NewSoftwareCryptoEngine(lPkcs11),
		slotID:           slotID,
		api:              instance,
		lowApi:           moduleContext,
		providerInfo: models.ProviderInfo{
			Type:              models.PKCS11,
			SecurityLevel:     models.SL2,
			Provider:          moduleInfo.ManufacturerID,
			SupportedKeyTypes: pkcs11SupportedKeys,
			Name:              tokenInfo.Model,
			Metadata:          *meta,
		},
		config: *config,
	}, nil
}

func (hsmContext *pkcs11ProviderContext) GetProviderInfo() models.ProviderInfo {
	return hsmContext.providerInfo
}

func (hsmContext *pkcs11ProviderContext) GetSignerByID(keyID string) (crypto.Signer, error) {
	hsmContext.logger.Debugf("reading %s Key", keyID)
	hsmKey, err := hsmContext.api.FindKeyPair(nil, []byte(keyID))
	if err != nil {
		hsmContext.logger.Errorf("could not get private key %s. Got error: %s", keyID, err)
		return nil, fmt.Errorf("could not get private key. Got error: %s", err)
	}

	if hsmKey == nil {
		hsmContext.logger.Errorf("could not find private key %s", keyID)
		return nil, fmt.Errorf("could not find private key")
	}

	return hsmKey, nil
}

func (hsmContext *pkcs11ProviderContext) ListKeyIDs() ([]string, error) {
	hsmContext.logger.Debugf("listing private keys")
	keys, err := hsmContext.api.FindAllKeyPairs()
	if err != nil {
		hsmContext.logger.Errorf("could not list private keys: %s", err)
	}

	keyIDs := make([]string, 0)
	for _, key := range keys {
		attrs, err := hsmContext.api.GetAttributes(key, []uint{pkcs11.CKA_LABEL})
		if err != nil {
			hsmContext.logger.Errorf("could not get key attributes: %s", err)
			continue
		}

		attrsSlice := attrs.ToSlice()
		if len(attrsSlice) == 0 {
			hsmContext.logger.Warnf("found a key with no attributes")
			continue
		}

		attr := attrsSlice[0]
		keyID := string(attr.Value)
		keyIDs = append(keyIDs, keyID)
	}

	return keyIDs, nil
}

func (hsmContext *pkcs11ProviderContext) CreateRSAPrivateKey(keySize int) (string, crypto.Signer, error) {
	tmpKeyID := uuid.New().String()
	hsmContext.logger.Debugf("creating RSA %d key", keySize)
	newSigner, err := hsmContext.api.GenerateRSAKeyPair([]byte(tmpKeyID), keySize)
	if err != nil {
		hsmContext.logger.Errorf("could not create '%s' RSA Private Key: %s", tmpKeyID, err)
		return "", nil, err
	}

	keyID, err := hsmContext.softCryptoEngine.EncodePKIXPublicKeyDigest(newSigner.Public())
	if err != nil {
		hsmContext.logger.Errorf("could not encode public key: %s", err)
		return "", nil, err
	}

	err = hsmContext.updateKeyLabel(tmpKeyID, keyID, pkcs11KeyAttrID)
	if err != nil {
		hsmContext.logger.Errorf("could not rename key: %s", err)
		return "", nil, err
	}

	return keyID, newSigner, nil
}

func (hsmContext *pkcs11ProviderContext) CreateECDSAPrivateKey(curve elliptic.Curve) (string, crypto.Signer, error) {
	tmpKeyID := uuid.New().String()
	hsmContext.logger.Debugf("creating ECDSA %d key", curve.Params().BitSize)
	newSigner, err := hsmContext.api.GenerateECDSAKeyPair([]byte(tmpKeyID), curve)
	if err != nil {
		hsmContext.logger.Errorf("could not create '%s' ECDSA Private Key: %s", tmpKeyID, err)
		return "", nil, err
	}

	keyID, err := hsmContext.softCryptoEngine.EncodePKIXPublicKeyDigest(newSigner.Public())
	if err != nil {
		hsmContext.logger.Errorf("could not encode public key: %s", err)
		return "", nil, err
	}

	err = hsmContext.updateKeyLabel(tmpKeyID, keyID, pkcs11KeyAttrID)
	if err != nil {
		hsmContext.logger.Errorf("could not rename key: %s", err)
		return "", nil, err
	}

	renamedSigner, err := hsmContext.GetSignerByID(keyID)
	if err != nil {
		hsmContext.logger.Errorf("could not get renamed key: %s", err)
		return "", nil, err
	}

	return keyID, renamedSigner, nil
}

// Importing external key material into a PKCS11 token requires wrapping
// support, which crypto11 does not expose. Keys must be generated on the
// token.
func (hsmContext *pkcs11ProviderContext) ImportRSAPrivateKey(key *rsa.PrivateKey) (string, crypto.Signer, error) {
	return "", nil, fmt.Errorf("pkcs11: import not supported")
}

func (hsmContext *pkcs11ProviderContext) ImportECDSAPrivateKey(key *ecdsa.PrivateKey) (string, crypto.Signer, error) {
	return "", nil, fmt.Errorf("pkcs11: import not supported")
}

func (hsmContext *pkcs11ProviderContext) DeleteKey(keyID string) error {
	hsmContext.logger.Debugf("deleting %s Key", keyID)
	hsmKey, err := hsmContext.api.FindKeyPair(nil, []byte(keyID))
	if err != nil {
		hsmContext.logger.Errorf("could not get private key %s: %s", keyID, err)
		return err
	}

	if hsmKey == nil {
		return fmt.Errorf("could not find private key")
	}

	return hsmKey.Delete()
}

type pkcs11KeyAttr int

const (
	pkcs11KeyAttrID pkcs11KeyAttr = iota
	pkcs11KeyAttrLabel
)

func (hsmContext *pkcs11ProviderContext) updateKeyLabel(oldKeyID string, newKeyID string, keyAttr pkcs11KeyAttr) error {
	hsmSession, err := hsmContext.lowApi.OpenSession(hsmContext.slotID, pkcs11.CKF_SERIAL_SESSION|pkcs11.CKF_RW_SESSION)
	if err != nil {
		hsmContext.logger.Errorf("could not open session: %s", err)
		return err
	}
	defer hsmContext.lowApi.CloseSession(hsmSession)

	attrSet := crypto11.NewAttributeSet()
	attrSet.Set(crypto11.CkaClass, pkcs11.CKO_PRIVATE_KEY)
	if keyAttr == pkcs11KeyAttrLabel {
		attrSet.Set(pkcs11.CKA_LABEL, oldKeyID)
	} else {
		attrSet.Set(pkcs11.CKA_ID, oldKeyID)
	}

	keyHandle, err := findKeyWithAttributes(*hsmContext.lowApi, hsmSession, attrSet.ToSlice())
	if err != nil {
		hsmContext.logger.Errorf("could not find key: %s", err)
		return err
	}

	err = hsmContext.lowApi.SetAttributeValue(hsmSession, *keyHandle, []*pkcs11.Attribute{
		pkcs11.NewAttribute(pkcs11.CKA_LABEL, []byte(newKeyID)),
	})
	if err != nil {
		hsmContext.logger.Errorf("could not set key attributes: %s", err)
		return err
	}

	return nil
}

func findKeyWithAttributes(ctx pkcs11.Ctx, sh pkcs11.SessionHandle, template []*pkcs11.Attribute) (handle *pkcs11.ObjectHandle, err error) {
	if err = ctx.FindObjectsInit(sh, template); err != nil {
		return nil, err
	}
	defer func() {
		finalErr := ctx.FindObjectsFinal(sh)
		if err == nil {
			err = finalErr
		}
	}()

	newhandles, _, err := ctx.FindObjects(sh, 1)
	if err != nil {
		return nil, err
	}

	for len(newhandles) > 0 {
		return &newhandles[0], nil
	}

	return nil, fmt.Errorf("object not found")
}
