package models

import "time"

type HandleState string

const (
	HandleActive    HandleState = "ACTIVE"
	HandleDestroyed HandleState = "DESTROYED"
)

// KeyUsage is the set of operations a handle permits. A handle with no
// usage flags set cannot be used for anything but export and destroy.
type KeyUsage struct {
	Sign    bool `json:"sign"`
	Verify  bool `json:"verify"`
	Encrypt bool `json:"encrypt"`
	Decrypt bool `json:"decrypt"`
}

// KeyHandle maps a broker-level key identity to a provider-local key.
// Destroyed handles are kept as tombstones so their IDs are never reused.
type KeyHandle struct {
	ID            string         `json:"id" gorm:"primaryKey"`
	Name          string         `json:"name"`
	ProviderID    string         `json:"provider_id"`
	ProviderKeyID string         `json:"provider_key_id"`
	Algorithm     string         `json:"algorithm"`
	Size          int            `json:"size"`
	PublicKey     string         `json:"public_key"`
	Usage         KeyUsage       `json:"usage" gorm:"serializer:json"`
	State         HandleState    `json:"state"`
	Metadata      map[string]any `json:"metadata" gorm:"serializer:json"`
	CreationTS    time.Time      `json:"creation_ts"`
	DestructionTS *time.Time     `json:"destruction_ts,omitempty"`
}
