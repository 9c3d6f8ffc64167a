package services

import (
	"context"
	"crypto"
	"crypto/rsa"
	"encoding/base64"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/errs"
	"github.com/keybrokerhq/keybroker/pkg/helpers"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/keybrokerhq/keybroker/pkg/providers"
	"github.com/keybrokerhq/keybroker/pkg/providers/software"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memHandlesRepo struct {
	mu      sync.RWMutex
	handles map[string]models.KeyHandle
}

func newMemHandlesRepo() *memHandlesRepo {
	return &memHandlesRepo{handles: map[string]models.KeyHandle{}}
}

func (r *memHandlesRepo) Count(ctx context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles), nil
}

func (r *memHandlesRepo) SelectAll(ctx context.Context, applyFunc func(handle models.KeyHandle)) error {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, handle := range r.handles {
		applyFunc(handle)
	}
	return nil
}

func (r *memHandlesRepo) SelectExistsByID(ctx context.Context, id string) (bool, *models.KeyHandle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	handle, ok := r.handles[id]
	if !ok {
		return false, nil, nil
	}
	return true, &handle, nil
}

func (r *memHandlesRepo) Insert(ctx context.Context, handle *models.KeyHandle) (*models.KeyHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[handle.ID] = *handle
	stored := r.handles[handle.ID]
	return &stored, nil
}

func (r *memHandlesRepo) Update(ctx context.Context, handle *models.KeyHandle) (*models.KeyHandle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handles[handle.ID] = *handle
	stored := r.handles[handle.ID]
	return &stored, nil
}

// hookedProvider wraps a real provider and runs a callback before each
// signer lookup. Used to stall or observe provider calls.
type hookedProvider struct {
	providers.Provider
	beforeSignerLookup func()
}

func (p *hookedProvider) GetSignerByID(keyID string) (crypto.Signer, error) {
	if p.beforeSignerLookup != nil {
		p.beforeSignerLookup()
	}
	return p.Provider.GetSignerByID(keyID)
}

func newSoftwareTestProvider(t *testing.T, id string) providers.Provider {
	t.Helper()
	logger := helpers.SetupLogger(config.None, "test", "provider")
	provider, err := software.NewSoftwareProvider(logger, config.ProviderConfigAdapter[software.SoftwareConfig]{
		ID: id,
	})
	require.NoError(t, err)
	return provider
}

func setupBrokerService(t *testing.T, instances map[string]*ProviderInstance) (BrokerService, *memHandlesRepo) {
	t.Helper()
	repo := newMemHandlesRepo()
	svc, err := NewBrokerService(BrokerServiceBuilder{
		Logger:          helpers.SetupLogger(config.None, "test", "service"),
		CryptoProviders: instances,
		HandlesStorage:  repo,
	})
	require.NoError(t, err)
	return svc, repo
}

func setupDefaultBrokerService(t *testing.T) (BrokerService, *memHandlesRepo) {
	t.Helper()
	return setupBrokerService(t, map[string]*ProviderInstance{
		"sw-1": {Default: true, Service: newSoftwareTestProvider(t, "sw-1")},
	})
}

func allUsage() models.KeyUsage {
	return models.KeyUsage{Sign: true, Verify: true, Encrypt: true, Decrypt: true}
}

func TestNewBrokerServiceDefaultProviderValidation(t *testing.T) {
	repo := newMemHandlesRepo()
	logger := helpers.SetupLogger(config.None, "test", "service")

	_, err := NewBrokerService(BrokerServiceBuilder{
		Logger:         logger,
		HandlesStorage: repo,
		CryptoProviders: map[string]*ProviderInstance{
			"sw-1": {Service: newSoftwareTestProvider(t, "sw-1")},
		},
	})
	assert.ErrorIs(t, err, errs.ErrConfiguration)

	_, err = NewBrokerService(BrokerServiceBuilder{
		Logger:         logger,
		HandlesStorage: repo,
		CryptoProviders: map[string]*ProviderInstance{
			"sw-1": {Default: true, Service: newSoftwareTestProvider(t, "sw-1")},
			"sw-2": {Default: true, Service: newSoftwareTestProvider(t, "sw-2")},
		},
	})
	assert.ErrorIs(t, err, errs.ErrConfiguration)
}

func TestGenerateKey(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{
		Name:      "test-key",
		Algorithm: "RSA",
		Size:      2048,
		Usage:     allUsage(),
	})
	require.NoError(t, err)

	assert.NotEmpty(t, handle.ID)
	assert.Equal(t, "sw-1", handle.ProviderID)
	assert.NotEmpty(t, handle.ProviderKeyID)
	assert.Equal(t, "RSA", handle.Algorithm)
	assert.Equal(t, 2048, handle.Size)
	assert.Equal(t, models.HandleActive, handle.State)
	assert.NotEmpty(t, handle.PublicKey)
	assert.Nil(t, handle.DestructionTS)
}

func TestGenerateKeyUnknownProvider(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)

	_, err := svc.GenerateKey(context.Background(), GenerateKeyInput{
		ProviderID: "nope",
		Algorithm:  "RSA",
		Size:       2048,
		Usage:      allUsage(),
	})
	assert.ErrorIs(t, err, errs.ErrProviderNotFound)
}

func TestGenerateKeyUnsupportedSpec(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)
	ctx := context.Background()

	_, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "RSA", Size: 1111, Usage: allUsage()})
	assert.ErrorIs(t, err, errs.ErrUnsupportedAlgorithm)

	_, err = svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "ECDSA", Size: 123, Usage: allUsage()})
	assert.ErrorIs(t, err, errs.ErrUnsupportedAlgorithm)
}

func TestImportKey(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)

	key, err := helpers.GenerateRSAKey(2048)
	require.NoError(t, err)

	handle, err := svc.ImportKey(context.Background(), ImportKeyInput{
		Name:       "imported",
		PrivateKey: key,
		Usage:      allUsage(),
	})
	require.NoError(t, err)

	assert.Equal(t, "RSA", handle.Algorithm)
	assert.Equal(t, 2048, handle.Size)
	assert.Equal(t, models.HandleActive, handle.State)
	assert.Equal(t, helpers.PublicKeyFingerprint(key.Public()), handle.ProviderKeyID)
}

// mangledImportProvider swaps the signer handed back after an import
// for one over a different key.
type mangledImportProvider struct {
	providers.Provider
	replacement crypto.Signer
}

func (p *mangledImportProvider) ImportRSAPrivateKey(key *rsa.PrivateKey) (string, crypto.Signer, error) {
	keyID, _, err := p.Provider.ImportRSAPrivateKey(key)
	return keyID, p.replacement, err
}

func TestImportKeyMangledProviderKey(t *testing.T) {
	key, err := helpers.GenerateRSAKey(2048)
	require.NoError(t, err)

	otherKey, err := helpers.GenerateRSAKey(2048)
	require.NoError(t, err)

	provider := &mangledImportProvider{
		Provider:    newSoftwareTestProvider(t, "sw-1"),
		replacement: otherKey,
	}
	svc, repo := setupBrokerService(t, map[string]*ProviderInstance{
		"sw-1": {Default: true, Service: provider},
	})
	ctx := context.Background()

	_, err = svc.ImportKey(ctx, ImportKeyInput{
		Name:       "mangled",
		PrivateKey: key,
		Usage:      allUsage(),
	})
	assert.ErrorIs(t, err, errs.ErrProviderFailure)

	count, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestSignAndVerifyRSA(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "RSA", Size: 2048, Usage: allUsage()})
	require.NoError(t, err)

	message := []byte("message to be signed")

	for _, algorithm := range []string{"RSASSA_PKCS1_V1_5_SHA_256", "RSASSA_PSS_SHA_384"} {
		signature, err := svc.SignMessage(ctx, SignMessageInput{
			HandleID:    handle.ID,
			Algorithm:   algorithm,
			MessageType: models.Raw,
			Message:     message,
		})
		require.NoError(t, err)

		rawSignature, err := base64.StdEncoding.DecodeString(signature.Signature)
		require.NoError(t, err)

		validation, err := svc.VerifySignature(ctx, VerifySignatureInput{
			HandleID:    handle.ID,
			Algorithm:   algorithm,
			MessageType: models.Raw,
			Message:     message,
			Signature:   rawSignature,
		})
		require.NoError(t, err)
		assert.True(t, validation.Valid)

		validation, err = svc.VerifySignature(ctx, VerifySignatureInput{
			HandleID:    handle.ID,
			Algorithm:   algorithm,
			MessageType: models.Raw,
			Message:     []byte("a different message"),
			Signature:   rawSignature,
		})
		require.NoError(t, err)
		assert.False(t, validation.Valid)
	}
}

func TestSignAndVerifyECDSA(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "ECDSA", Size: 256, Usage: allUsage()})
	require.NoError(t, err)

	message := []byte("message to be signed")

	signature, err := svc.SignMessage(ctx, SignMessageInput{
		HandleID:    handle.ID,
		Algorithm:   "ECDSA_SHA_256",
		MessageType: models.Raw,
		Message:     message,
	})
	require.NoError(t, err)

	rawSignature, err := base64.StdEncoding.DecodeString(signature.Signature)
	require.NoError(t, err)

	validation, err := svc.VerifySignature(ctx, VerifySignatureInput{
		HandleID:    handle.ID,
		Algorithm:   "ECDSA_SHA_256",
		MessageType: models.Raw,
		Message:     message,
		Signature:   rawSignature,
	})
	require.NoError(t, err)
	assert.True(t, validation.Valid)
}

func TestSignHashedMessage(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "RSA", Size: 2048, Usage: allUsage()})
	require.NoError(t, err)

	digest := make([]byte, 32)
	for i := range digest {
		digest[i] = byte(i)
	}

	signature, err := svc.SignMessage(ctx, SignMessageInput{
		HandleID:    handle.ID,
		Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
		MessageType: models.Hashed,
		Message:     digest,
	})
	require.NoError(t, err)
	assert.NotEmpty(t, signature.Signature)

	// digest length must match the hash size
	_, err = svc.SignMessage(ctx, SignMessageInput{
		HandleID:    handle.ID,
		Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
		MessageType: models.Hashed,
		Message:     digest[:16],
	})
	assert.ErrorIs(t, err, errs.ErrValidateBadRequest)
}

func TestSignAlgorithmFamilyMismatch(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "RSA", Size: 2048, Usage: allUsage()})
	require.NoError(t, err)

	_, err = svc.SignMessage(ctx, SignMessageInput{
		HandleID:    handle.ID,
		Algorithm:   "ECDSA_SHA_256",
		MessageType: models.Raw,
		Message:     []byte("message"),
	})
	assert.ErrorIs(t, err, errs.ErrUnsupportedAlgorithm)
}

func TestUsagePolicyEnforcement(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{
		Algorithm: "RSA",
		Size:      2048,
		Usage:     models.KeyUsage{Verify: true},
	})
	require.NoError(t, err)

	_, err = svc.SignMessage(ctx, SignMessageInput{
		HandleID:    handle.ID,
		Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
		MessageType: models.Raw,
		Message:     []byte("message"),
	})
	assert.ErrorIs(t, err, errs.ErrUsagePolicyViolation)

	_, err = svc.EncryptMessage(ctx, EncryptMessageInput{
		HandleID:  handle.ID,
		Algorithm: "RSA_OAEP_SHA_256",
		Plaintext: []byte("secret"),
	})
	assert.ErrorIs(t, err, errs.ErrUsagePolicyViolation)

	_, err = svc.DecryptMessage(ctx, DecryptMessageInput{
		HandleID:   handle.ID,
		Algorithm:  "RSA_OAEP_SHA_256",
		Ciphertext: []byte("irrelevant"),
	})
	assert.ErrorIs(t, err, errs.ErrUsagePolicyViolation)
}

func TestHandleOwnershipMismatch(t *testing.T) {
	svc, _ := setupBrokerService(t, map[string]*ProviderInstance{
		"sw-1": {Default: true, Service: newSoftwareTestProvider(t, "sw-1")},
		"sw-2": {Service: newSoftwareTestProvider(t, "sw-2")},
	})
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{
		ProviderID: "sw-1",
		Algorithm:  "RSA",
		Size:       2048,
		Usage:      allUsage(),
	})
	require.NoError(t, err)

	_, err = svc.SignMessage(ctx, SignMessageInput{
		HandleID:    handle.ID,
		ProviderID:  "sw-2",
		Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
		MessageType: models.Raw,
		Message:     []byte("message"),
	})
	assert.ErrorIs(t, err, errs.ErrHandleOwnershipMismatch)

	_, err = svc.DestroyHandle(ctx, DestroyHandleInput{HandleID: handle.ID, ProviderID: "sw-2"})
	assert.ErrorIs(t, err, errs.ErrHandleOwnershipMismatch)

	// the owning provider is accepted explicitly
	_, err = svc.GetHandleByID(ctx, GetHandleByIDInput{HandleID: handle.ID, ProviderID: "sw-1"})
	assert.NoError(t, err)
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "RSA", Size: 2048, Usage: allUsage()})
	require.NoError(t, err)

	plaintext := []byte("attack at dawn")

	encryption, err := svc.EncryptMessage(ctx, EncryptMessageInput{
		HandleID:  handle.ID,
		Algorithm: "RSA_OAEP_SHA_256",
		Plaintext: plaintext,
	})
	require.NoError(t, err)

	ciphertext, err := base64.StdEncoding.DecodeString(encryption.Ciphertext)
	require.NoError(t, err)

	decryption, err := svc.DecryptMessage(ctx, DecryptMessageInput{
		HandleID:   handle.ID,
		Algorithm:  "RSA_OAEP_SHA_256",
		Ciphertext: ciphertext,
	})
	require.NoError(t, err)

	decoded, err := base64.StdEncoding.DecodeString(decryption.Plaintext)
	require.NoError(t, err)
	assert.Equal(t, plaintext, decoded)
}

func TestEncryptRejectsECDSAHandle(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "ECDSA", Size: 256, Usage: allUsage()})
	require.NoError(t, err)

	_, err = svc.EncryptMessage(ctx, EncryptMessageInput{
		HandleID:  handle.ID,
		Algorithm: "RSA_OAEP_SHA_256",
		Plaintext: []byte("secret"),
	})
	assert.ErrorIs(t, err, errs.ErrUnsupportedAlgorithm)
}

func TestExportPublicKey(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "RSA", Size: 2048, Usage: allUsage()})
	require.NoError(t, err)

	export, err := svc.ExportPublicKey(ctx, ExportPublicKeyInput{HandleID: handle.ID})
	require.NoError(t, err)
	assert.Equal(t, handle.PublicKey, export.PublicKey)
}

func TestDestroyHandleTombstone(t *testing.T) {
	svc, repo := setupDefaultBrokerService(t)
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "RSA", Size: 2048, Usage: allUsage()})
	require.NoError(t, err)

	destroyed, err := svc.DestroyHandle(ctx, DestroyHandleInput{HandleID: handle.ID})
	require.NoError(t, err)
	assert.Equal(t, models.HandleDestroyed, destroyed.State)
	require.NotNil(t, destroyed.DestructionTS)

	// the row is kept as a tombstone
	exists, stored, err := repo.SelectExistsByID(ctx, handle.ID)
	require.NoError(t, err)
	require.True(t, exists)
	assert.Equal(t, models.HandleDestroyed, stored.State)

	// reads still surface the tombstone
	fetched, err := svc.GetHandleByID(ctx, GetHandleByIDInput{HandleID: handle.ID})
	require.NoError(t, err)
	assert.Equal(t, models.HandleDestroyed, fetched.State)

	// crypto operations behave as if the handle never existed
	_, err = svc.SignMessage(ctx, SignMessageInput{
		HandleID:    handle.ID,
		Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
		MessageType: models.Raw,
		Message:     []byte("message"),
	})
	assert.ErrorIs(t, err, errs.ErrHandleNotFound)

	_, err = svc.VerifySignature(ctx, VerifySignatureInput{
		HandleID:    handle.ID,
		Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
		MessageType: models.Raw,
		Message:     []byte("message"),
		Signature:   []byte("sig"),
	})
	assert.ErrorIs(t, err, errs.ErrHandleNotFound)

	_, err = svc.ExportPublicKey(ctx, ExportPublicKeyInput{HandleID: handle.ID})
	assert.ErrorIs(t, err, errs.ErrHandleNotFound)

	// a second destroy is reported distinctly
	_, err = svc.DestroyHandle(ctx, DestroyHandleInput{HandleID: handle.ID})
	assert.ErrorIs(t, err, errs.ErrHandleAlreadyDestroyed)
}

func TestDestroyHandleRemovesProviderKey(t *testing.T) {
	provider := newSoftwareTestProvider(t, "sw-1")
	svc, _ := setupBrokerService(t, map[string]*ProviderInstance{
		"sw-1": {Default: true, Service: provider},
	})
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "RSA", Size: 2048, Usage: allUsage()})
	require.NoError(t, err)

	keyIDs, err := provider.ListKeyIDs()
	require.NoError(t, err)
	assert.Contains(t, keyIDs, handle.ProviderKeyID)

	_, err = svc.DestroyHandle(ctx, DestroyHandleInput{HandleID: handle.ID})
	require.NoError(t, err)

	keyIDs, err = provider.ListKeyIDs()
	require.NoError(t, err)
	assert.NotContains(t, keyIDs, handle.ProviderKeyID)
}

func TestOperationTimeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	provider := &hookedProvider{
		Provider: newSoftwareTestProvider(t, "sw-1"),
	}
	logger := helpers.SetupLogger(config.None, "test", "service")
	repo := newMemHandlesRepo()
	ctx := context.Background()

	// key generation runs under the default timeout so slow machines do
	// not trip the bound meant for the stalled sign below
	genSvc, err := NewBrokerService(BrokerServiceBuilder{
		Logger:          logger,
		CryptoProviders: map[string]*ProviderInstance{"sw-1": {Default: true, Service: provider}},
		HandlesStorage:  repo,
	})
	require.NoError(t, err)

	handle, err := genSvc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "RSA", Size: 2048, Usage: allUsage()})
	require.NoError(t, err)

	svc, err := NewBrokerService(BrokerServiceBuilder{
		Logger: logger,
		CryptoProviders: map[string]*ProviderInstance{
			"sw-1": {Default: true, OperationTimeout: 50 * time.Millisecond, Service: provider},
		},
		HandlesStorage: repo,
	})
	require.NoError(t, err)

	provider.beforeSignerLookup = func() { <-release }

	start := time.Now()
	_, err = svc.SignMessage(ctx, SignMessageInput{
		HandleID:    handle.ID,
		Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
		MessageType: models.Raw,
		Message:     []byte("message"),
	})
	assert.ErrorIs(t, err, errs.ErrOperationTimeout)
	assert.Less(t, time.Since(start), 5*time.Second)
}

func TestSameHandleOperationsAreSerialized(t *testing.T) {
	var inFlight int32
	var maxInFlight int32

	provider := &hookedProvider{
		Provider: newSoftwareTestProvider(t, "sw-1"),
	}

	svc, _ := setupBrokerService(t, map[string]*ProviderInstance{
		"sw-1": {Default: true, Service: provider},
	})
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "RSA", Size: 2048, Usage: allUsage()})
	require.NoError(t, err)

	provider.beforeSignerLookup = func() {
		current := atomic.AddInt32(&inFlight, 1)
		for {
			max := atomic.LoadInt32(&maxInFlight)
			if current <= max || atomic.CompareAndSwapInt32(&maxInFlight, max, current) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		atomic.AddInt32(&inFlight, -1)
	}

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.SignMessage(ctx, SignMessageInput{
				HandleID:    handle.ID,
				Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
				MessageType: models.Raw,
				Message:     []byte("message"),
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), atomic.LoadInt32(&maxInFlight))
}

func TestDistinctHandleOperationsRunConcurrently(t *testing.T) {
	entered := make(chan struct{}, 2)
	release := make(chan struct{})

	provider := &hookedProvider{
		Provider: newSoftwareTestProvider(t, "sw-1"),
	}

	svc, _ := setupBrokerService(t, map[string]*ProviderInstance{
		"sw-1": {Default: true, Service: provider},
	})
	ctx := context.Background()

	handleA, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "RSA", Size: 2048, Usage: allUsage()})
	require.NoError(t, err)
	handleB, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "RSA", Size: 2048, Usage: allUsage()})
	require.NoError(t, err)

	provider.beforeSignerLookup = func() {
		entered <- struct{}{}
		<-release
	}

	var wg sync.WaitGroup
	for _, handleID := range []string{handleA.ID, handleB.ID} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			_, err := svc.SignMessage(ctx, SignMessageInput{
				HandleID:    id,
				Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
				MessageType: models.Raw,
				Message:     []byte("message"),
			})
			assert.NoError(t, err)
		}(handleID)
	}

	// both operations must be inside the provider at the same time
	for i := 0; i < 2; i++ {
		select {
		case <-entered:
		case <-time.After(5 * time.Second):
			t.Fatal("operations on distinct handles did not run concurrently")
		}
	}
	close(release)
	wg.Wait()
}

func TestGetHandles(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "ECDSA", Size: 256, Usage: allUsage()})
		require.NoError(t, err)
	}

	handles := []models.KeyHandle{}
	err := svc.GetHandles(ctx, GetHandlesInput{
		ApplyFunc: func(handle models.KeyHandle) {
			handles = append(handles, handle)
		},
	})
	require.NoError(t, err)
	assert.Len(t, handles, 3)
}

func TestGetProviders(t *testing.T) {
	svc, _ := setupBrokerService(t, map[string]*ProviderInstance{
		"sw-1": {Default: true, Service: newSoftwareTestProvider(t, "sw-1")},
		"sw-2": {Service: newSoftwareTestProvider(t, "sw-2")},
	})

	providerList, err := svc.GetProviders(context.Background())
	require.NoError(t, err)
	require.Len(t, providerList, 2)

	defaults := 0
	for _, provider := range providerList {
		if provider.Default {
			defaults++
			assert.Equal(t, "sw-1", provider.ID)
		}
	}
	assert.Equal(t, 1, defaults)
}

func TestVerifyTamperedSignature(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "RSA", Size: 2048, Usage: allUsage()})
	require.NoError(t, err)

	signature, err := svc.SignMessage(ctx, SignMessageInput{
		HandleID:    handle.ID,
		Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
		MessageType: models.Raw,
		Message:     []byte("message"),
	})
	require.NoError(t, err)

	rawSignature, err := base64.StdEncoding.DecodeString(signature.Signature)
	require.NoError(t, err)
	rawSignature[0] ^= 0xFF

	validation, err := svc.VerifySignature(ctx, VerifySignatureInput{
		HandleID:    handle.ID,
		Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
		MessageType: models.Raw,
		Message:     []byte("message"),
		Signature:   rawSignature,
	})
	require.NoError(t, err)
	assert.False(t, validation.Valid)
}

func TestDecryptNonRSAKey(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)
	ctx := context.Background()

	handle, err := svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "ECDSA", Size: 256, Usage: allUsage()})
	require.NoError(t, err)

	_, err = svc.DecryptMessage(ctx, DecryptMessageInput{
		HandleID:   handle.ID,
		Algorithm:  "RSA_OAEP_SHA_256",
		Ciphertext: []byte("irrelevant"),
	})
	assert.ErrorIs(t, err, errs.ErrProviderFailure)
}

func TestValidationErrors(t *testing.T) {
	svc, _ := setupDefaultBrokerService(t)
	ctx := context.Background()

	_, err := svc.GetHandleByID(ctx, GetHandleByIDInput{})
	assert.ErrorIs(t, err, errs.ErrValidateBadRequest)

	_, err = svc.GenerateKey(ctx, GenerateKeyInput{Algorithm: "DSA", Size: 1024})
	assert.ErrorIs(t, err, errs.ErrValidateBadRequest)

	_, err = svc.SignMessage(ctx, SignMessageInput{HandleID: "some-id"})
	assert.ErrorIs(t, err, errs.ErrValidateBadRequest)

	_, err = svc.ImportKey(ctx, ImportKeyInput{})
	assert.ErrorIs(t, err, errs.ErrValidateBadRequest)
}
