package services

import (
	"context"

	"github.com/keybrokerhq/keybroker/pkg/models"
)

type BrokerMiddleware func(BrokerService) BrokerService

// BrokerService is the provider-abstracted cryptographic operation
// dispatcher. All key access goes through broker-level handles.
type BrokerService interface {
	GetProviders(ctx context.Context) ([]*models.CryptoProvider, error)

	GetHandles(ctx context.Context, input GetHandlesInput) error
	GetHandleByID(ctx context.Context, input GetHandleByIDInput) (*models.KeyHandle, error)

	GenerateKey(ctx context.Context, input GenerateKeyInput) (*models.KeyHandle, error)
	ImportKey(ctx context.Context, input ImportKeyInput) (*models.KeyHandle, error)
	DestroyHandle(ctx context.Context, input DestroyHandleInput) (*models.KeyHandle, error)

	SignMessage(ctx context.Context, input SignMessageInput) (*models.MessageSignature, error)
	VerifySignature(ctx context.Context, input VerifySignatureInput) (*models.MessageValidation, error)
	EncryptMessage(ctx context.Context, input EncryptMessageInput) (*models.MessageEncryption, error)
	DecryptMessage(ctx context.Context, input DecryptMessageInput) (*models.MessageDecryption, error)
	ExportPublicKey(ctx context.Context, input ExportPublicKeyInput) (*models.PublicKeyExport, error)
}

type GetHandlesInput struct {
	ApplyFunc func(handle models.KeyHandle)
}

type GetHandleByIDInput struct {
	HandleID   string `validate:"required"`
	ProviderID string
}

type GenerateKeyInput struct {
	Name       string
	ProviderID string
	Algorithm  string `validate:"required,oneof=RSA ECDSA"`
	Size       int    `validate:"required"`
	Usage      models.KeyUsage
	Metadata   map[string]any
}

type ImportKeyInput struct {
	Name       string
	ProviderID string
	PrivateKey any `validate:"required"`
	Usage      models.KeyUsage
	Metadata   map[string]any
}

type DestroyHandleInput struct {
	HandleID   string `validate:"required"`
	ProviderID string
}

type SignMessageInput struct {
	HandleID    string `validate:"required"`
	ProviderID  string
	Algorithm   string                 `validate:"required"`
	MessageType models.SignMessageType `validate:"required,oneof=raw hash"`
	Message     []byte                 `validate:"required"`
}

type VerifySignatureInput struct {
	HandleID    string `validate:"required"`
	ProviderID  string
	Algorithm   string                 `validate:"required"`
	MessageType models.SignMessageType `validate:"required,oneof=raw hash"`
	Message     []byte                 `validate:"required"`
	Signature   []byte                 `validate:"required"`
}

type EncryptMessageInput struct {
	HandleID   string `validate:"required"`
	ProviderID string
	Algorithm  string `validate:"required"`
	Plaintext  []byte `validate:"required"`
}

type DecryptMessageInput struct {
	HandleID   string `validate:"required"`
	ProviderID string
	Algorithm  string `validate:"required"`
	Ciphertext []byte `validate:"required"`
}

type ExportPublicKeyInput struct {
	HandleID   string `validate:"required"`
	ProviderID string
}
