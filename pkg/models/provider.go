package models

type ProviderType string

const (
	Software   ProviderType = "SOFTWARE"
	Filesystem ProviderType = "FILESYSTEM"
	PKCS11     ProviderType = "PKCS11"
	VaultKV2   ProviderType = "HASHICORP_VAULT_KV_V2"
)

type ProviderSL int

const (
	SL0 ProviderSL = 0
	SL1 ProviderSL = 1
	SL2 ProviderSL = 2
)

type ProviderInfo struct {
	Type              ProviderType           `json:"type"`
	SecurityLevel     ProviderSL             `json:"security_level"`
	Provider          string                 `json:"provider"`
	Name              string                 `json:"name"`
	Metadata          map[string]any         `json:"metadata"`
	SupportedKeyTypes []SupportedKeyTypeInfo `json:"supported_key_types"`
}

// CryptoProvider is a registered provider as exposed through the API.
type CryptoProvider struct {
	ProviderInfo
	ID      string `json:"id"`
	Default bool   `json:"default"`
}

type SupportedKeyTypeInfo struct {
	Type  KeyType `json:"type"`
	Sizes []int   `json:"sizes"`
}
