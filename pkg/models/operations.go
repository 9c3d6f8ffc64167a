package models

type SignMessageType string

const (
	Raw    SignMessageType = "raw"
	Hashed SignMessageType = "hash"
)

type MessageSignature struct {
	Signature string `json:"signature"`
}

type MessageValidation struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

type MessageEncryption struct {
	Ciphertext string `json:"ciphertext"`
}

type MessageDecryption struct {
	Plaintext string `json:"plaintext"`
}

type PublicKeyExport struct {
	PublicKey string `json:"public_key"`
}
