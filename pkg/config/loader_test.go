package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConfigYaml = `
logs:
  level: debug

server:
  log_level: info
  listen_address: 0.0.0.0
  port: 8085
  protocol: http
  health_check: true

event_bus:
  log_level: info
  enabled: true
  provider: channel

storage:
  log_level: info
  provider: sqlite
  database_path: /tmp/keybroker.db

crypto_providers:
  log_level: info
  default_provider: sw-1
  providers:
    - id: sw-1
      type: software
      metadata:
        env: test
    - id: fs-1
      type: filesystem
      operation_timeout: 10s
      storage_directory: /var/lib/keybroker/keys

reconciliation:
  log_level: info
  enabled: true
  frequency: "0 * * * *"
`

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadConfigFromEnvPath(t *testing.T) {
	path := writeConfigFile(t, testConfigYaml)
	t.Setenv("KEYBROKER_CONFIG_FILE", path)

	conf, err := LoadConfig[KeyBrokerConfig](nil)
	require.NoError(t, err)

	assert.Equal(t, Debug, conf.Logs.Level)
	assert.Equal(t, 8085, conf.Server.Port)
	assert.Equal(t, HTTP, conf.Server.Protocol)
	assert.True(t, conf.Server.HealthCheckLogging)

	assert.True(t, conf.PublisherEventBus.Enabled)
	assert.Equal(t, Channel, conf.PublisherEventBus.Provider)

	assert.Equal(t, SQLite, conf.Storage.Provider)
	assert.Equal(t, "/tmp/keybroker.db", conf.Storage.DatabasePath)

	assert.Equal(t, "sw-1", conf.CryptoProviders.DefaultProvider)
	require.Len(t, conf.CryptoProviders.Providers, 2)

	swConf := conf.CryptoProviders.Providers[0]
	assert.Equal(t, "sw-1", swConf.ID)
	assert.Equal(t, SoftwareProvider, swConf.Type)
	assert.Equal(t, "test", swConf.Metadata["env"])

	fsConf := conf.CryptoProviders.Providers[1]
	assert.Equal(t, FilesystemProvider, fsConf.Type)
	assert.Equal(t, 10*time.Second, fsConf.OperationTimeout)
	assert.Equal(t, "/var/lib/keybroker/keys", fsConf.Config["storage_directory"])

	assert.True(t, conf.Reconciliation.Enabled)
	assert.Equal(t, "0 * * * *", conf.Reconciliation.Frequency)
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Setenv("KEYBROKER_CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yml"))

	_, err := LoadConfig[KeyBrokerConfig](nil)
	assert.Error(t, err)
}

func TestDecodeStruct(t *testing.T) {
	type inner struct {
		Value string `mapstructure:"value"`
	}

	decoded, err := DecodeStruct[inner](map[string]interface{}{"value": "hello"})
	require.NoError(t, err)
	assert.Equal(t, "hello", decoded.Value)
}

func TestPasswordRedactedWhenMarshaled(t *testing.T) {
	p := Password("super-secret")

	text, err := p.MarshalText()
	require.NoError(t, err)
	assert.NotContains(t, string(text), "super-secret")
}
