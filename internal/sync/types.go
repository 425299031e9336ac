package sync

import (
	"time"

	"github.com/parlohq/syncd/internal/store"
)

// LocalMessage is one message in a client change-set.
type LocalMessage struct {
	ID        string
	Role      string
	Content   string
	AudioURL  string
	CreatedAt time.Time
}

// LocalChat is one chat in a client change-set, with its nested messages.
// IsDeleted marks a chat the client tombstoned while offline.
type LocalChat struct {
	ID             string
	ContactID      string
	ContactName    string
	ContactEmoji   string
	ContactImage   string
	ContactPurpose string
	LastMessage    string
	LastMessageAt  time.Time
	Messages       []LocalMessage
	IsDeleted      bool
}

// Request is one sync exchange as sent by a device. An empty LocalChats is
// a pure fetch, used for initial load.
type Request struct {
	LastSyncAt *time.Time
	LocalChats []LocalChat
}

// ChatSnapshot is a chat with its complete message sequence.
type ChatSnapshot struct {
	Chat     store.Chat
	Messages []store.Message
}

// Snapshot is the converged result of a sync exchange. The client must
// adopt it as ground truth and overwrite its local state. Errors carries
// per-item failures; a non-empty list still means best-effort convergence,
// not an aborted batch.
type Snapshot struct {
	Chats    []ChatSnapshot
	SyncedAt time.Time
	Errors   []string
}
