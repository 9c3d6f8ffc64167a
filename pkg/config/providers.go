package config

import "time"

type ProviderType string

const (
	SoftwareProvider   ProviderType = "software"
	FilesystemProvider ProviderType = "filesystem"
	PKCS11Provider     ProviderType = "pkcs11"
	HashicorpVaultKV2  ProviderType = "hashicorp_vault_kv2"
)

// CryptoProviders configures the set of crypto providers loaded at startup.
// Exactly one provider must be flagged as default via DefaultProvider.
type CryptoProviders struct {
	LogLevel        LogLevel       `mapstructure:"log_level"`
	DefaultProvider string         `mapstructure:"default_provider"`
	Providers       []ProviderConf `mapstructure:"providers"`
}

type ProviderConf struct {
	ID               string                 `mapstructure:"id"`
	Type             ProviderType           `mapstructure:"type"`
	Metadata         map[string]interface{} `mapstructure:"metadata"`
	OperationTimeout time.Duration          `mapstructure:"operation_timeout"`
	Config           map[string]interface{} `mapstructure:",remain"`
}

// ProviderConfigAdapter carries the decoded provider-specific config block
// together with the common provider attributes.
type ProviderConfigAdapter[E any] struct {
	ID       string
	Metadata map[string]interface{}
	Config   E
}
