package keybroker

const (
	ContextKeyAuthID      string = "keybroker.io/ctx/auth-id"
	ContextKeyAuthContext string = "keybroker.io/ctx/auth-context"
	ContextKeyAuthType    string = "keybroker.io/ctx/auth-type"
	ContextKeyRequestID   string = "keybroker.io/ctx/request-id"
	ContextKeySource      string = "keybroker.io/ctx/source"

	ContextKeyEventType    string = "keybroker.io/ctx/cloudevent/type"
	ContextKeyEventSubject string = "keybroker.io/ctx/cloudevent/subject"
)
