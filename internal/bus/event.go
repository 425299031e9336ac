package bus

import "time"

// Event kinds published by the sync engine and the API handlers. Subscribers
// filter by namespace prefix, e.g. "sync." or "chat.".
const (
	KindSyncCompleted   = "sync.completed"
	KindChatDeleted     = "chat.deleted"
	KindMessageAppended = "message.appended"
)

// Event is a domain event. UserID scopes the event to the account it
// concerns; Payload is kind-specific.
type Event struct {
	Kind      string
	UserID    string
	Timestamp time.Time
	Payload   any
}
