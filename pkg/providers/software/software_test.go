package software

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rsa"
	"testing"

	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/helpers"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupProvider(t *testing.T) *SoftwareProvider {
	t.Helper()
	logger := helpers.SetupLogger(config.None, "test", "software")
	provider, err := NewSoftwareProvider(logger, config.ProviderConfigAdapter[SoftwareConfig]{
		ID: "sw-test",
	})
	require.NoError(t, err)
	return provider.(*SoftwareProvider)
}

func TestProviderInfo(t *testing.T) {
	provider := setupProvider(t)

	info := provider.GetProviderInfo()
	assert.Equal(t, models.Software, info.Type)
	assert.Equal(t, models.SL0, info.SecurityLevel)
	require.Len(t, info.SupportedKeyTypes, 2)
}

func TestCreateRSAPrivateKey(t *testing.T) {
	provider := setupProvider(t)

	keyID, signer, err := provider.CreateRSAPrivateKey(2048)
	require.NoError(t, err)
	assert.NotEmpty(t, keyID)

	pubKey, ok := signer.Public().(*rsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, 2048, pubKey.N.BitLen())

	fetched, err := provider.GetSignerByID(keyID)
	require.NoError(t, err)
	assert.True(t, helpers.EqualPublicKeys(signer.Public(), fetched.Public()))
}

func TestCreateECDSAPrivateKey(t *testing.T) {
	provider := setupProvider(t)

	keyID, signer, err := provider.CreateECDSAPrivateKey(elliptic.P256())
	require.NoError(t, err)
	assert.NotEmpty(t, keyID)

	pubKey, ok := signer.Public().(*ecdsa.PublicKey)
	require.True(t, ok)
	assert.Equal(t, elliptic.P256(), pubKey.Curve)
}

func TestImportKeys(t *testing.T) {
	provider := setupProvider(t)

	rsaKey, err := helpers.GenerateRSAKey(2048)
	require.NoError(t, err)

	keyID, signer, err := provider.ImportRSAPrivateKey(rsaKey)
	require.NoError(t, err)
	assert.Equal(t, helpers.PublicKeyFingerprint(rsaKey.Public()), keyID)
	assert.True(t, helpers.EqualPublicKeys(rsaKey.Public(), signer.Public()))

	ecKey, err := helpers.GenerateECDSAKey(elliptic.P384())
	require.NoError(t, err)

	keyID, signer, err = provider.ImportECDSAPrivateKey(ecKey)
	require.NoError(t, err)
	assert.Equal(t, helpers.PublicKeyFingerprint(ecKey.Public()), keyID)
	assert.True(t, helpers.EqualPublicKeys(ecKey.Public(), signer.Public()))
}

func TestListAndDeleteKeys(t *testing.T) {
	provider := setupProvider(t)

	keyIDs, err := provider.ListKeyIDs()
	require.NoError(t, err)
	assert.Empty(t, keyIDs)

	keyID, _, err := provider.CreateRSAPrivateKey(2048)
	require.NoError(t, err)

	keyIDs, err = provider.ListKeyIDs()
	require.NoError(t, err)
	assert.Contains(t, keyIDs, keyID)

	err = provider.DeleteKey(keyID)
	require.NoError(t, err)

	keyIDs, err = provider.ListKeyIDs()
	require.NoError(t, err)
	assert.NotContains(t, keyIDs, keyID)

	_, err = provider.GetSignerByID(keyID)
	assert.Error(t, err)
}
