package routes

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/keybrokerhq/keybroker/pkg/config"
	"github.com/keybrokerhq/keybroker/pkg/helpers"
	"github.com/keybrokerhq/keybroker/pkg/models"
	"github.com/keybrokerhq/keybroker/pkg/providers/software"
	"github.com/keybrokerhq/keybroker/pkg/resources"
	"github.com/keybrokerhq/keybroker/pkg/services"
	"github.com/keybrokerhq/keybroker/pkg/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupHTTPServer(t *testing.T) *httptest.Server {
	t.Helper()

	logger := helpers.SetupLogger(config.None, "test", "http")

	provider, err := software.NewSoftwareProvider(logger, config.ProviderConfigAdapter[software.SoftwareConfig]{ID: "sw-1"})
	require.NoError(t, err)

	secondary, err := software.NewSoftwareProvider(logger, config.ProviderConfigAdapter[software.SoftwareConfig]{ID: "sw-2"})
	require.NoError(t, err)

	db, err := storage.CreateSQLiteDBConnection(logger, config.Storage{
		DatabasePath: t.TempDir() + "/handles.db",
	})
	require.NoError(t, err)

	repo, err := storage.NewGormHandlesRepo(logger, db)
	require.NoError(t, err)

	svc, err := services.NewBrokerService(services.BrokerServiceBuilder{
		Logger: logger,
		CryptoProviders: map[string]*services.ProviderInstance{
			"sw-1": {Default: true, Service: provider},
			"sw-2": {Service: secondary},
		},
		HandlesStorage: repo,
	})
	require.NoError(t, err)

	engine := NewGinEngine(logger)
	NewBrokerHTTPLayer(engine.Group("/"), svc)

	server := httptest.NewServer(engine)
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)

	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	return resp
}

func decodeBase64(t *testing.T, encoded string) []byte {
	t.Helper()
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	require.NoError(t, err)
	return decoded
}

func decodeJSON[E any](t *testing.T, resp *http.Response) E {
	t.Helper()
	defer resp.Body.Close()

	var out E
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func createTestHandle(t *testing.T, server *httptest.Server, usage models.KeyUsage) models.KeyHandle {
	t.Helper()

	resp := postJSON(t, server.URL+"/v1/handles", resources.CreateKeyHandleBody{
		Name:      "http-test",
		Algorithm: "RSA",
		Size:      2048,
		Usage:     usage,
	})
	require.Equal(t, 201, resp.StatusCode)
	return decodeJSON[models.KeyHandle](t, resp)
}

func TestHTTPCreateAndGetHandle(t *testing.T) {
	server := setupHTTPServer(t)

	handle := createTestHandle(t, server, models.KeyUsage{Sign: true, Verify: true})
	assert.NotEmpty(t, handle.ID)
	assert.Equal(t, "sw-1", handle.ProviderID)
	assert.Equal(t, models.HandleActive, handle.State)

	resp, err := http.Get(fmt.Sprintf("%s/v1/handles/%s", server.URL, handle.ID))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	fetched := decodeJSON[models.KeyHandle](t, resp)
	assert.Equal(t, handle.ID, fetched.ID)

	resp, err = http.Get(server.URL + "/v1/handles")
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	list := decodeJSON[resources.GetHandlesResponse](t, resp)
	assert.Len(t, list.Handles, 1)
}

func TestHTTPGetUnknownHandle(t *testing.T) {
	server := setupHTTPServer(t)

	resp, err := http.Get(server.URL + "/v1/handles/missing")
	require.NoError(t, err)
	assert.Equal(t, 404, resp.StatusCode)
}

func TestHTTPGetProviders(t *testing.T) {
	server := setupHTTPServer(t)

	resp, err := http.Get(server.URL + "/v1/providers")
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	list := decodeJSON[resources.GetProvidersResponse](t, resp)
	assert.Len(t, list.Providers, 2)
}

func TestHTTPSignAndVerify(t *testing.T) {
	server := setupHTTPServer(t)
	handle := createTestHandle(t, server, models.KeyUsage{Sign: true, Verify: true})

	message := []byte("message to be signed")

	resp := postJSON(t, fmt.Sprintf("%s/v1/handles/%s/sign", server.URL, handle.ID), resources.SignMessageBody{
		Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
		MessageType: models.Raw,
		Message:     message,
	})
	require.Equal(t, 200, resp.StatusCode)
	signature := decodeJSON[models.MessageSignature](t, resp)
	require.NotEmpty(t, signature.Signature)

	rawSignature := decodeBase64(t, signature.Signature)

	resp = postJSON(t, fmt.Sprintf("%s/v1/handles/%s/verify", server.URL, handle.ID), resources.VerifySignatureBody{
		Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
		MessageType: models.Raw,
		Message:     message,
		Signature:   rawSignature,
	})
	require.Equal(t, 200, resp.StatusCode)
	validation := decodeJSON[models.MessageValidation](t, resp)
	assert.True(t, validation.Valid)
}

func TestHTTPUsagePolicyViolation(t *testing.T) {
	server := setupHTTPServer(t)
	handle := createTestHandle(t, server, models.KeyUsage{Verify: true})

	resp := postJSON(t, fmt.Sprintf("%s/v1/handles/%s/sign", server.URL, handle.ID), resources.SignMessageBody{
		Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
		MessageType: models.Raw,
		Message:     []byte("message"),
	})
	assert.Equal(t, 403, resp.StatusCode)
}

func TestHTTPOwnershipMismatch(t *testing.T) {
	server := setupHTTPServer(t)
	handle := createTestHandle(t, server, models.KeyUsage{Sign: true})

	resp := postJSON(t, fmt.Sprintf("%s/v1/handles/%s/sign", server.URL, handle.ID), resources.SignMessageBody{
		ProviderID:  "sw-2",
		Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
		MessageType: models.Raw,
		Message:     []byte("message"),
	})
	assert.Equal(t, 409, resp.StatusCode)
}

func TestHTTPDestroyHandle(t *testing.T) {
	server := setupHTTPServer(t)
	handle := createTestHandle(t, server, models.KeyUsage{Sign: true})

	req, err := http.NewRequest(http.MethodDelete, fmt.Sprintf("%s/v1/handles/%s", server.URL, handle.ID), nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	destroyed := decodeJSON[models.KeyHandle](t, resp)
	assert.Equal(t, models.HandleDestroyed, destroyed.State)

	// destroyed handles reject crypto operations as not found
	signResp := postJSON(t, fmt.Sprintf("%s/v1/handles/%s/sign", server.URL, handle.ID), resources.SignMessageBody{
		Algorithm:   "RSASSA_PKCS1_V1_5_SHA_256",
		MessageType: models.Raw,
		Message:     []byte("message"),
	})
	assert.Equal(t, 404, signResp.StatusCode)

	// a repeated destroy is reported as gone
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	assert.Equal(t, 410, resp.StatusCode)
}

func TestHTTPExportPublicKey(t *testing.T) {
	server := setupHTTPServer(t)
	handle := createTestHandle(t, server, models.KeyUsage{Sign: true})

	resp, err := http.Get(fmt.Sprintf("%s/v1/handles/%s/public-key", server.URL, handle.ID))
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	export := decodeJSON[models.PublicKeyExport](t, resp)
	assert.Equal(t, handle.PublicKey, export.PublicKey)
}

func TestHTTPBadRequestBody(t *testing.T) {
	server := setupHTTPServer(t)

	resp, err := http.Post(server.URL+"/v1/handles", "application/json", bytes.NewReader([]byte("{not json")))
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}
