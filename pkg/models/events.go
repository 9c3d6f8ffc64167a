package models

const HttpSourceHeader = "x-kb-source"
const HttpRequestIDHeader = "x-request-id"

const KeyBrokerSource = "krn://service/keybroker"

// KeyHandleRef is the event payload for operations whose result must
// not leave the service.
type KeyHandleRef struct {
	HandleID string `json:"handle_id"`
}

type EventType string

const (
	EventCreateKeyHandleKey  EventType = "handle.create"
	EventImportKeyHandleKey  EventType = "handle.import"
	EventDestroyKeyHandleKey EventType = "handle.destroy"

	EventSignatureSignKey   EventType = "handle.sign"
	EventSignatureVerifyKey EventType = "handle.verify"
	EventEncryptKey         EventType = "handle.encrypt"
	EventDecryptKey         EventType = "handle.decrypt"
)
