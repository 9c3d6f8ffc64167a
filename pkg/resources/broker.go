package resources

import (
	"github.com/keybrokerhq/keybroker/pkg/models"
)

type CreateKeyHandleBody struct {
	Name       string                 `json:"name"`
	ProviderID string                 `json:"provider_id"`
	Algorithm  string                 `json:"algorithm"`
	Size       int                    `json:"size"`
	Usage      models.KeyUsage        `json:"usage"`
	Metadata   map[string]interface{} `json:"metadata"`
}

type ImportKeyHandleBody struct {
	Name       string                 `json:"name"`
	ProviderID string                 `json:"provider_id"`
	PrivateKey []byte                 `json:"private_key"`
	Usage      models.KeyUsage        `json:"usage"`
	Metadata   map[string]interface{} `json:"metadata"`
}

type SignMessageBody struct {
	ProviderID  string                 `json:"provider_id"`
	Algorithm   string                 `json:"algorithm"`
	MessageType models.SignMessageType `json:"message_type"`
	Message     []byte                 `json:"message"`
}

type VerifySignatureBody struct {
	ProviderID  string                 `json:"provider_id"`
	Algorithm   string                 `json:"algorithm"`
	MessageType models.SignMessageType `json:"message_type"`
	Message     []byte                 `json:"message"`
	Signature   []byte                 `json:"signature"`
}

type EncryptMessageBody struct {
	ProviderID string `json:"provider_id"`
	Algorithm  string `json:"algorithm"`
	Plaintext  []byte `json:"plaintext"`
}

type DecryptMessageBody struct {
	ProviderID string `json:"provider_id"`
	Algorithm  string `json:"algorithm"`
	Ciphertext []byte `json:"ciphertext"`
}

type GetHandlesResponse struct {
	Handles []models.KeyHandle `json:"handles"`
}

type GetProvidersResponse struct {
	Providers []*models.CryptoProvider `json:"providers"`
}
