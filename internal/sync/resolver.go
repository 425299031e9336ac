package sync

import "github.com/parlohq/syncd/internal/store"

// DedupWindowMillis is the tolerance for treating two content-identical
// messages as one logical message. Clients retry without stable message
// ids, and device clocks skew, so two copies of the same message can land
// with slightly different timestamps. The window is fixed at one second;
// it is not a tunable.
const DedupWindowMillis = 1000

// IsDuplicateMessage reports whether a candidate message already exists in
// the chat: identical content and a timestamp strictly less than
// DedupWindowMillis away from an existing message.
func IsDuplicateMessage(content string, createdAt int64, existing []store.Message) bool {
	for i := range existing {
		if existing[i].Content != content {
			continue
		}
		delta := createdAt - existing[i].CreatedAt
		if delta < 0 {
			delta = -delta
		}
		if delta < DedupWindowMillis {
			return true
		}
	}
	return false
}

// ChatResolution is the reconciler's decision for a local chat given its
// server counterpart.
type ChatResolution int

const (
	// CreateFromLocal: no server counterpart; the local record's metadata
	// becomes authoritative wholesale.
	CreateFromLocal ChatResolution = iota
	// KeepServer: a live server chat exists; its metadata wins and only
	// the message sequences reconcile.
	KeepServer
	// SkipTombstoned: the server chat was deleted; the tombstone wins so
	// the deletion converges instead of being resurrected by a stale
	// replica.
	SkipTombstoned
)

// ResolveChat decides how a local chat reconciles against the server copy.
func ResolveChat(server *store.Chat) ChatResolution {
	switch {
	case server == nil:
		return CreateFromLocal
	case server.IsDeleted:
		return SkipTombstoned
	default:
		return KeepServer
	}
}
