package services

import (
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/keybrokerhq/keybroker/pkg/errs"
	chelpers "github.com/keybrokerhq/keybroker/pkg/helpers"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/keybrokerhq/keybroker/pkg/providers"
	"github.com/keybrokerhq/keybroker/pkg/storage"
	"github.com/sirupsen/logrus"
)

// DefaultOperationTimeout bounds provider calls when no per-provider
// timeout is configured.
const DefaultOperationTimeout = 30 * time.Second

// ProviderInstance wraps a built provider with its broker-level
// attributes.
type ProviderInstance struct {
	Default          bool
	OperationTimeout time.Duration
	Service          providers.Provider
}

type BrokerServiceBackend struct {
	service           BrokerService
	handlesStorage    storage.HandlesRepo
	cryptoProviders   map[string]*ProviderInstance
	defaultProviderID string
	handleLocks       keyedMutex
	logger            *logrus.Entry
}

type BrokerServiceBuilder struct {
	Logger          *logrus.Entry
	CryptoProviders map[string]*ProviderInstance
	HandlesStorage  storage.HandlesRepo
}

var brokerValidator *validator.Validate

func NewBrokerService(builder BrokerServiceBuilder) (BrokerService, error) {
	brokerValidator = validator.New()

	defaultProviderID := ""
	for providerID, instance := range builder.CryptoProviders {
		if instance.OperationTimeout == 0 {
			instance.OperationTimeout = DefaultOperationTimeout
		}

		if instance.Default {
			if defaultProviderID != "" {
				return nil, fmt.Errorf("%w: more than one default crypto provider", errs.ErrConfiguration)
			}
			defaultProviderID = providerID
		}
	}

	if defaultProviderID == "" {
		return nil, fmt.Errorf("%w: could not find the default crypto provider", errs.ErrConfiguration)
	}

	svc := &BrokerServiceBackend{
		cryptoProviders:   builder.CryptoProviders,
		defaultProviderID: defaultProviderID,
		handlesStorage:    builder.HandlesStorage,
		logger:            builder.Logger,
	}

	svc.service = svc

	return svc, nil
}

func (svc *BrokerServiceBackend) Close() {
	//no op
}

func (svc *BrokerServiceBackend) SetService(service BrokerService) {
	svc.service = service
}

func (svc *BrokerServiceBackend) GetProviders(ctx context.Context) ([]*models.CryptoProvider, error) {
	info := []*models.CryptoProvider{}
	for providerID, instance := range svc.cryptoProviders {
		providerInfo := instance.Service.GetProviderInfo()
		info = append(info, &models.CryptoProvider{
			ProviderInfo: providerInfo,
			ID:           providerID,
			Default:      providerID == svc.defaultProviderID,
		})
	}

	return info, nil
}

func (svc *BrokerServiceBackend) GetHandles(ctx context.Context, input GetHandlesInput) error {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	err := svc.handlesStorage.SelectAll(ctx, input.ApplyFunc)
	if err != nil {
		lFunc.Errorf("something went wrong while reading all handles from storage engine: %s", err)
		return err
	}

	return nil
}

func (svc *BrokerServiceBackend) GetHandleByID(ctx context.Context, input GetHandleByIDInput) (*models.KeyHandle, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	err := brokerValidator.Struct(input)
	if err != nil {
		lFunc.Errorf("GetHandleByIDInput struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	lFunc.Debugf("checking if handle '%s' exists", input.HandleID)
	exists, handle, err := svc.handlesStorage.SelectExistsByID(ctx, input.HandleID)
	if err != nil {
		lFunc.Errorf("something went wrong while checking if handle '%s' exists in storage engine: %s", input.HandleID, err)
		return nil, err
	}

	if !exists {
		lFunc.Infof("handle %s can not be found in storage engine", input.HandleID)
		return nil, errs.ErrHandleNotFound
	}

	if input.ProviderID != "" && handle.ProviderID != input.ProviderID {
		lFunc.Warnf("handle %s belongs to provider %s, not %s", input.HandleID, handle.ProviderID, input.ProviderID)
		return nil, errs.ErrHandleOwnershipMismatch
	}

	return handle, nil
}

func (svc *BrokerServiceBackend) GenerateKey(ctx context.Context, input GenerateKeyInput) (*models.KeyHandle, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	err := brokerValidator.Struct(input)
	if err != nil {
		lFunc.Errorf("GenerateKeyInput struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	providerID, instance, err := svc.selectProvider(input.ProviderID)
	if err != nil {
		lFunc.Errorf("provider with id %s not found", input.ProviderID)
		return nil, err
	}

	err = svc.checkKeySpecProviderCompliance(input.Algorithm, input.Size, instance.Service)
	if err != nil {
		lFunc.Errorf("key spec (type and size) is not compliant with the selected provider: %s", err)
		return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedAlgorithm, err)
	}

	var keyID string
	var signer crypto.Signer

	switch input.Algorithm {
	case "RSA":
		bits := input.Size
		keyID, signer, err = dispatch2(instance.OperationTimeout, func() (string, crypto.Signer, error) {
			return instance.Service.CreateRSAPrivateKey(bits)
		})
	case "ECDSA":
		var curve elliptic.Curve
		switch input.Size {
		case 224:
			curve = elliptic.P224()
		case 256:
			curve = elliptic.P256()
		case 384:
			curve = elliptic.P384()
		case 521:
			curve = elliptic.P521()
		default:
			lFunc.Error("invalid ECDSA key size")
			return nil, fmt.Errorf("%w: invalid ECDSA key size", errs.ErrUnsupportedAlgorithm)
		}
		keyID, signer, err = dispatch2(instance.OperationTimeout, func() (string, crypto.Signer, error) {
			return instance.Service.CreateECDSAPrivateKey(curve)
		})
	default:
		lFunc.Errorf("unsupported algorithm: %s", input.Algorithm)
		return nil, errs.ErrUnsupportedAlgorithm
	}
	if err != nil {
		lFunc.Errorf("error creating %s private key: %s", input.Algorithm, err)
		return nil, wrapProviderErr(err)
	}

	base64PEM, err := chelpers.SerializePublicKey(signer.Public())
	if err != nil {
		lFunc.Errorf("marshal public key error: %s", err)
		return nil, errors.New("failed to marshal public key")
	}

	handleID, err := svc.newHandleID(ctx)
	if err != nil {
		lFunc.Errorf("could not allocate handle ID: %s", err)
		return nil, err
	}

	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	handle := models.KeyHandle{
		ID:            handleID,
		Name:          input.Name,
		ProviderID:    providerID,
		ProviderKeyID: keyID,
		Algorithm:     input.Algorithm,
		Size:          input.Size,
		PublicKey:     base64PEM,
		Usage:         input.Usage,
		State:         models.HandleActive,
		Metadata:      metadata,
		CreationTS:    time.Now(),
	}

	newHandle, err := svc.handlesStorage.Insert(ctx, &handle)
	if err != nil {
		lFunc.Errorf("could not insert handle in storage engine: %s", err)
		// do not leave orphaned key material in the provider
		if delErr := instance.Service.DeleteKey(keyID); delErr != nil {
			lFunc.Warnf("could not delete provider key %s after failed insert: %s", keyID, delErr)
		}
		return nil, err
	}

	return newHandle, nil
}

func (svc *BrokerServiceBackend) ImportKey(ctx context.Context, input ImportKeyInput) (*models.KeyHandle, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	err := brokerValidator.Struct(input)
	if err != nil {
		lFunc.Errorf("ImportKeyInput struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	providerID, instance, err := svc.selectProvider(input.ProviderID)
	if err != nil {
		lFunc.Errorf("provider with id %s not found", input.ProviderID)
		return nil, err
	}

	var (
		keyID       string
		signer      crypto.Signer
		algorithm   string
		size        int
		importedPub crypto.PublicKey
	)

	switch k := input.PrivateKey.(type) {
	case *rsa.PrivateKey:
		size = k.N.BitLen()
		algorithm = "RSA"
		importedPub = k.Public()

		err = svc.checkKeySpecProviderCompliance(algorithm, size, instance.Service)
		if err != nil {
			lFunc.Errorf("key spec (type and size) is not compliant with the selected provider: %s", err)
			return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedAlgorithm, err)
		}

		keyID, signer, err = dispatch2(instance.OperationTimeout, func() (string, crypto.Signer, error) {
			return instance.Service.ImportRSAPrivateKey(k)
		})
	case *ecdsa.PrivateKey:
		size = k.Params().BitSize
		algorithm = "ECDSA"
		importedPub = k.Public()

		err = svc.checkKeySpecProviderCompliance(algorithm, size, instance.Service)
		if err != nil {
			lFunc.Errorf("key spec (type and size) is not compliant with the selected provider: %s", err)
			return nil, fmt.Errorf("%w: %s", errs.ErrUnsupportedAlgorithm, err)
		}

		keyID, signer, err = dispatch2(instance.OperationTimeout, func() (string, crypto.Signer, error) {
			return instance.Service.ImportECDSAPrivateKey(k)
		})
	default:
		lFunc.Errorf("unsupported private key type")
		return nil, errs.ErrUnsupportedAlgorithm
	}
	if err != nil {
		lFunc.Errorf("failed to import private key: %s", err)
		return nil, wrapProviderErr(err)
	}

	// the provider must hand back a signer over the very key that was
	// imported, anything else means the key material got mangled
	if !chelpers.EqualPublicKeys(importedPub, signer.Public()) {
		lFunc.Errorf("provider %s returned a signer for a different key after import", providerID)
		if delErr := instance.Service.DeleteKey(keyID); delErr != nil {
			lFunc.Warnf("could not delete provider key %s after mismatched import: %s", keyID, delErr)
		}
		return nil, fmt.Errorf("%w: imported key does not match provider signer", errs.ErrProviderFailure)
	}

	base64PEM, err := chelpers.SerializePublicKey(signer.Public())
	if err != nil {
		lFunc.Errorf("failed to marshal public key: %s", err)
		return nil, errors.New("failed to marshal public key")
	}

	handleID, err := svc.newHandleID(ctx)
	if err != nil {
		lFunc.Errorf("could not allocate handle ID: %s", err)
		return nil, err
	}

	metadata := input.Metadata
	if metadata == nil {
		metadata = map[string]any{}
	}

	handle := models.KeyHandle{
		ID:            handleID,
		Name:          input.Name,
		ProviderID:    providerID,
		ProviderKeyID: keyID,
		Algorithm:     algorithm,
		Size:          size,
		PublicKey:     base64PEM,
		Usage:         input.Usage,
		State:         models.HandleActive,
		Metadata:      metadata,
		CreationTS:    time.Now(),
	}

	newHandle, err := svc.handlesStorage.Insert(ctx, &handle)
	if err != nil {
		lFunc.Errorf("could not insert handle in storage engine: %s", err)
		if delErr := instance.Service.DeleteKey(keyID); delErr != nil {
			lFunc.Warnf("could not delete provider key %s after failed insert: %s", keyID, delErr)
		}
		return nil, err
	}

	return newHandle, nil
}

func (svc *BrokerServiceBackend) DestroyHandle(ctx context.Context, input DestroyHandleInput) (*models.KeyHandle, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	err := brokerValidator.Struct(input)
	if err != nil {
		lFunc.Errorf("DestroyHandleInput struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	unlock := svc.handleLocks.lock(input.HandleID)
	defer unlock()

	exists, handle, err := svc.handlesStorage.SelectExistsByID(ctx, input.HandleID)
	if err != nil {
		lFunc.Errorf("something went wrong while checking if handle '%s' exists in storage engine: %s", input.HandleID, err)
		return nil, err
	}

	if !exists {
		lFunc.Infof("handle %s can not be found in storage engine", input.HandleID)
		return nil, errs.ErrHandleNotFound
	}

	if handle.State == models.HandleDestroyed {
		lFunc.Infof("handle %s is already destroyed", input.HandleID)
		return nil, errs.ErrHandleAlreadyDestroyed
	}

	if input.ProviderID != "" && handle.ProviderID != input.ProviderID {
		lFunc.Warnf("handle %s belongs to provider %s, not %s", handle.ID, handle.ProviderID, input.ProviderID)
		return nil, errs.ErrHandleOwnershipMismatch
	}

	instance, ok := svc.cryptoProviders[handle.ProviderID]
	if !ok {
		lFunc.Errorf("provider with id %s not found", handle.ProviderID)
		return nil, errs.ErrProviderNotFound
	}

	_, err = dispatch(instance.OperationTimeout, func() (struct{}, error) {
		return struct{}{}, instance.Service.DeleteKey(handle.ProviderKeyID)
	})
	if err != nil {
		lFunc.Errorf("delete key error: %s", err)
		return nil, wrapProviderErr(err)
	}

	now := time.Now()
	handle.State = models.HandleDestroyed
	handle.DestructionTS = &now

	// The row is kept as a tombstone so the handle ID is never reused
	updatedHandle, err := svc.handlesStorage.Update(ctx, handle)
	if err != nil {
		lFunc.Errorf("could not update handle in storage engine: %s", err)
		return nil, err
	}

	lFunc.Infof("handle %s destroyed successfully", handle.ID)
	return updatedHandle, nil
}

func (svc *BrokerServiceBackend) SignMessage(ctx context.Context, input SignMessageInput) (*models.MessageSignature, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	err := brokerValidator.Struct(input)
	if err != nil {
		lFunc.Errorf("SignMessageInput struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	// The lock is taken before resolving so a concurrent destroy cannot
	// slip in between the state check and the provider call.
	unlock := svc.handleLocks.lock(input.HandleID)
	defer unlock()

	handle, instance, err := svc.resolveHandle(ctx, lFunc, input.HandleID, input.ProviderID)
	if err != nil {
		return nil, err
	}

	if !handle.Usage.Sign {
		lFunc.Warnf("handle %s does not permit sign operations", handle.ID)
		return nil, errs.ErrUsagePolicyViolation
	}

	hash, isRSA, isPSS, err := parseAlgorithm(input.Algorithm)
	if err != nil {
		lFunc.Errorf("unsupported algorithm %s: %s", input.Algorithm, err)
		return nil, errs.ErrUnsupportedAlgorithm
	}

	if err := checkAlgorithmFamily(isRSA, handle.Algorithm); err != nil {
		lFunc.Errorf("algorithm %s not usable with %s handle", input.Algorithm, handle.Algorithm)
		return nil, errs.ErrUnsupportedAlgorithm
	}

	digest, err := calculateDigest(hash, input.MessageType, input.Message)
	if err != nil {
		lFunc.Errorf("calculate digest error: %s", err)
		return nil, fmt.Errorf("%w: %s", errs.ErrValidateBadRequest, err)
	}

	signature, err := dispatch(instance.OperationTimeout, func() ([]byte, error) {
		signer, err := instance.Service.GetSignerByID(handle.ProviderKeyID)
		if err != nil {
			return nil, err
		}

		if isPSS {
			opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: hash}
			return signer.Sign(rand.Reader, digest, opts)
		}

		return signer.Sign(rand.Reader, digest, hash)
	})
	if err != nil {
		lFunc.Errorf("sign error: %s", err)
		return nil, wrapProviderErr(err)
	}

	return &models.MessageSignature{
		Signature: base64.StdEncoding.EncodeToString(signature),
	}, nil
}

func (svc *BrokerServiceBackend) VerifySignature(ctx context.Context, input VerifySignatureInput) (*models.MessageValidation, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	err := brokerValidator.Struct(input)
	if err != nil {
		lFunc.Errorf("VerifySignatureInput struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	handle, _, err := svc.resolveHandle(ctx, lFunc, input.HandleID, input.ProviderID)
	if err != nil {
		return nil, err
	}

	if !handle.Usage.Verify {
		lFunc.Warnf("handle %s does not permit verify operations", handle.ID)
		return nil, errs.ErrUsagePolicyViolation
	}

	hash, isRSA, isPSS, err := parseAlgorithm(input.Algorithm)
	if err != nil {
		lFunc.Errorf("unsupported algorithm %s: %s", input.Algorithm, err)
		return nil, errs.ErrUnsupportedAlgorithm
	}

	if err := checkAlgorithmFamily(isRSA, handle.Algorithm); err != nil {
		lFunc.Errorf("algorithm %s not usable with %s handle", input.Algorithm, handle.Algorithm)
		return nil, errs.ErrUnsupportedAlgorithm
	}

	// Verification only needs the cached public key. The provider is
	// never called, so a slow backend cannot stall it.
	publicKey, err := chelpers.ParsePublicKey(handle.PublicKey)
	if err != nil {
		lFunc.Errorf("could not decode handle public key: %s", err)
		return nil, err
	}

	digest, err := calculateDigest(hash, input.MessageType, input.Message)
	if err != nil {
		lFunc.Errorf("calculate digest error: %s", err)
		return nil, fmt.Errorf("%w: %s", errs.ErrValidateBadRequest, err)
	}

	if isRSA {
		pub, ok := publicKey.(*rsa.PublicKey)
		if !ok {
			return nil, errors.New("key is not RSA key")
		}
		if isPSS {
			opts := &rsa.PSSOptions{SaltLength: rsa.PSSSaltLengthEqualsHash, Hash: hash}
			err = rsa.VerifyPSS(pub, hash, digest, input.Signature, opts)
		} else {
			err = rsa.VerifyPKCS1v15(pub, hash, digest, input.Signature)
		}
		if err != nil {
			lFunc.Debugf("RSA verify error: %s", err)
			return &models.MessageValidation{
				Valid: false,
			}, nil
		}
		return &models.MessageValidation{
			Valid: true,
		}, nil
	}

	pub, ok := publicKey.(*ecdsa.PublicKey)
	if !ok {
		return nil, errors.New("key is not ECDSA key")
	}
	if !ecdsa.VerifyASN1(pub, digest, input.Signature) {
		return &models.MessageValidation{
			Valid: false,
		}, nil
	}
	return &models.MessageValidation{
		Valid: true,
	}, nil
}

func (svc *BrokerServiceBackend) EncryptMessage(ctx context.Context, input EncryptMessageInput) (*models.MessageEncryption, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	err := brokerValidator.Struct(input)
	if err != nil {
		lFunc.Errorf("EncryptMessageInput struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	handle, _, err := svc.resolveHandle(ctx, lFunc, input.HandleID, input.ProviderID)
	if err != nil {
		return nil, err
	}

	if !handle.Usage.Encrypt {
		lFunc.Warnf("handle %s does not permit encrypt operations", handle.ID)
		return nil, errs.ErrUsagePolicyViolation
	}

	hash, err := parseEncryptionAlgorithm(input.Algorithm)
	if err != nil {
		lFunc.Errorf("unsupported algorithm %s: %s", input.Algorithm, err)
		return nil, errs.ErrUnsupportedAlgorithm
	}

	// Encryption is a public key operation and does not touch the
	// provider either.
	publicKey, err := chelpers.ParsePublicKey(handle.PublicKey)
	if err != nil {
		lFunc.Errorf("could not decode handle public key: %s", err)
		return nil, err
	}

	pub, ok := publicKey.(*rsa.PublicKey)
	if !ok {
		lFunc.Errorf("handle %s is not backed by an RSA key", handle.ID)
		return nil, errs.ErrUnsupportedAlgorithm
	}

	ciphertext, err := rsa.EncryptOAEP(hash.New(), rand.Reader, pub, input.Plaintext, nil)
	if err != nil {
		lFunc.Errorf("encrypt error: %s", err)
		return nil, err
	}

	return &models.MessageEncryption{
		Ciphertext: base64.StdEncoding.EncodeToString(ciphertext),
	}, nil
}

func (svc *BrokerServiceBackend) DecryptMessage(ctx context.Context, input DecryptMessageInput) (*models.MessageDecryption, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	err := brokerValidator.Struct(input)
	if err != nil {
		lFunc.Errorf("DecryptMessageInput struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	unlock := svc.handleLocks.lock(input.HandleID)
	defer unlock()

	handle, instance, err := svc.resolveHandle(ctx, lFunc, input.HandleID, input.ProviderID)
	if err != nil {
		return nil, err
	}

	if !handle.Usage.Decrypt {
		lFunc.Warnf("handle %s does not permit decrypt operations", handle.ID)
		return nil, errs.ErrUsagePolicyViolation
	}

	hash, err := parseEncryptionAlgorithm(input.Algorithm)
	if err != nil {
		lFunc.Errorf("unsupported algorithm %s: %s", input.Algorithm, err)
		return nil, errs.ErrUnsupportedAlgorithm
	}

	plaintext, err := dispatch(instance.OperationTimeout, func() ([]byte, error) {
		signer, err := instance.Service.GetSignerByID(handle.ProviderKeyID)
		if err != nil {
			return nil, err
		}

		decrypter, ok := signer.(crypto.Decrypter)
		if !ok {
			return nil, errors.New("key does not support decryption")
		}

		return decrypter.Decrypt(rand.Reader, input.Ciphertext, &rsa.OAEPOptions{Hash: hash})
	})
	if err != nil {
		lFunc.Errorf("decrypt error: %s", err)
		return nil, wrapProviderErr(err)
	}

	return &models.MessageDecryption{
		Plaintext: base64.StdEncoding.EncodeToString(plaintext),
	}, nil
}

func (svc *BrokerServiceBackend) ExportPublicKey(ctx context.Context, input ExportPublicKeyInput) (*models.PublicKeyExport, error) {
	lFunc := chelpers.ConfigureLogger(ctx, svc.logger)

	err := brokerValidator.Struct(input)
	if err != nil {
		lFunc.Errorf("ExportPublicKeyInput struct validation error: %s", err)
		return nil, errs.ErrValidateBadRequest
	}

	handle, _, err := svc.resolveHandle(ctx, lFunc, input.HandleID, input.ProviderID)
	if err != nil {
		return nil, err
	}

	return &models.PublicKeyExport{
		PublicKey: handle.PublicKey,
	}, nil
}

// resolveHandle loads the handle, rejects tombstones, checks ownership
// and looks up the owning provider.
func (svc *BrokerServiceBackend) resolveHandle(ctx context.Context, lFunc *logrus.Entry, handleID, providerID string) (*models.KeyHandle, *ProviderInstance, error) {
	exists, handle, err := svc.handlesStorage.SelectExistsByID(ctx, handleID)
	if err != nil {
		lFunc.Errorf("something went wrong while checking if handle '%s' exists in storage engine: %s", handleID, err)
		return nil, nil, err
	}

	if !exists {
		lFunc.Infof("handle %s can not be found in storage engine", handleID)
		return nil, nil, errs.ErrHandleNotFound
	}

	if handle.State == models.HandleDestroyed {
		lFunc.Infof("handle %s is destroyed", handleID)
		return nil, nil, errs.ErrHandleNotFound
	}

	if providerID != "" && handle.ProviderID != providerID {
		lFunc.Warnf("handle %s belongs to provider %s, not %s", handleID, handle.ProviderID, providerID)
		return nil, nil, errs.ErrHandleOwnershipMismatch
	}

	instance, ok := svc.cryptoProviders[handle.ProviderID]
	if !ok {
		lFunc.Errorf("provider with id %s not found", handle.ProviderID)
		return nil, nil, errs.ErrProviderNotFound
	}

	return handle, instance, nil
}

func (svc *BrokerServiceBackend) selectProvider(providerID string) (string, *ProviderInstance, error) {
	if providerID == "" {
		providerID = svc.defaultProviderID
	}

	instance, ok := svc.cryptoProviders[providerID]
	if !ok {
		return "", nil, errs.ErrProviderNotFound
	}

	return providerID, instance, nil
}

// newHandleID allocates a fresh handle ID, regenerating on the
// (unlikely) chance of a collision with an existing row. Tombstones
// count as existing, so a destroyed handle's ID is never handed out
// again.
func (svc *BrokerServiceBackend) newHandleID(ctx context.Context) (string, error) {
	for {
		handleID := uuid.NewString()
		exists, _, err := svc.handlesStorage.SelectExistsByID(ctx, handleID)
		if err != nil {
			return "", err
		}

		if !exists {
			return handleID, nil
		}
	}
}

func (svc *BrokerServiceBackend) checkKeySpecProviderCompliance(keyType string, size int, provider providers.Provider) error {
	providerInfo := provider.GetProviderInfo()
	for _, spec := range providerInfo.SupportedKeyTypes {
		if spec.Type.String() == keyType {
			if slices.Contains(spec.Sizes, size) {
				return nil
			}
			return fmt.Errorf("key size %d is not supported for key type %s in provider %s", size, keyType, providerInfo.Provider)
		}
	}

	return fmt.Errorf("key type %s is not supported in provider %s", keyType, providerInfo.Provider)
}

func parseAlgorithm(inputAlgorithm string) (hash crypto.Hash, isRSA, isPSS bool, err error) {
	switch inputAlgorithm {
	case "RSASSA_PKCS1_V1_5_SHA_256":
		isRSA = true
		hash = crypto.SHA256
	case "RSASSA_PKCS1_V1_5_SHA_384":
		isRSA = true
		hash = crypto.SHA384
	case "RSASSA_PKCS1_V1_5_SHA_512":
		isRSA = true
		hash = crypto.SHA512
	case "RSASSA_PSS_SHA_256":
		isRSA = true
		isPSS = true
		hash = crypto.SHA256
	case "RSASSA_PSS_SHA_384":
		isRSA = true
		isPSS = true
		hash = crypto.SHA384
	case "RSASSA_PSS_SHA_512":
		isRSA = true
		isPSS = true
		hash = crypto.SHA512
	case "ECDSA_SHA_256":
		isRSA = false
		hash = crypto.SHA256
	case "ECDSA_SHA_384":
		isRSA = false
		hash = crypto.SHA384
	case "ECDSA_SHA_512":
		isRSA = false
		hash = crypto.SHA512
	default:
		err = errors.New("unsupported algorithm")
	}
	return
}

func parseEncryptionAlgorithm(inputAlgorithm string) (crypto.Hash, error) {
	switch inputAlgorithm {
	case "RSA_OAEP_SHA_1":
		return crypto.SHA1, nil
	case "RSA_OAEP_SHA_256":
		return crypto.SHA256, nil
	case "RSA_OAEP_SHA_384":
		return crypto.SHA384, nil
	case "RSA_OAEP_SHA_512":
		return crypto.SHA512, nil
	default:
		return 0, errors.New("unsupported algorithm")
	}
}

func checkAlgorithmFamily(isRSA bool, handleAlgorithm string) error {
	if isRSA && handleAlgorithm != "RSA" {
		return errors.New("algorithm family mismatch")
	}
	if !isRSA && handleAlgorithm != "ECDSA" {
		return errors.New("algorithm family mismatch")
	}
	return nil
}

func calculateDigest(hash crypto.Hash, messageType models.SignMessageType, message []byte) ([]byte, error) {
	if messageType == models.Raw {
		hasher := hash.New()
		hasher.Write(message)
		return hasher.Sum(nil), nil
	}

	if len(message) != hash.Size() {
		return nil, errors.New("invalid digest size")
	}

	return message, nil
}

func wrapProviderErr(err error) error {
	if errors.Is(err, errs.ErrOperationTimeout) {
		return err
	}
	return fmt.Errorf("%w: %s", errs.ErrProviderFailure, err)
}

// dispatch runs fn in its own goroutine and bounds the wait. On timeout
// the call is abandoned and may still complete in the background; the
// buffered channel lets the goroutine finish without leaking.
func dispatch[T any](timeout time.Duration, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}

	resCh := make(chan result, 1)
	go func() {
		value, err := fn()
		resCh <- result{value: value, err: err}
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-resCh:
		return res.value, res.err
	case <-timer.C:
		var zero T
		return zero, errs.ErrOperationTimeout
	}
}

func dispatch2(timeout time.Duration, fn func() (string, crypto.Signer, error)) (string, crypto.Signer, error) {
	type pair struct {
		keyID  string
		signer crypto.Signer
	}

	res, err := dispatch(timeout, func() (pair, error) {
		keyID, signer, err := fn()
		return pair{keyID: keyID, signer: signer}, err
	})

	return res.keyID, res.signer, err
}
