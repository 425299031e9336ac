package store

import "errors"

// ErrChatNotFound is returned by message operations when the target chat
// does not exist or belongs to a different user.
var ErrChatNotFound = errors.New("chat not found")

// ErrMessageNotFound is returned by message mutations targeting an id that
// is not in the chat's sequence.
var ErrMessageNotFound = errors.New("message not found")

// Store is the per-user-partitioned repository surface the sync engine and
// the API handlers depend on. *DB implements it against sqlite; the cache
// package wraps any Store with read-through/write-through caching, so
// removing the cache changes latency, never behavior.
//
// Get methods return (nil, nil) when the entity is absent.
type Store interface {
	ListActiveChats(userID string) ([]Chat, error)
	ListChatsUpdatedSince(userID string, since int64) ([]Chat, error)
	GetChat(userID, chatID string) (*Chat, error)
	GetChatByContact(userID, contactID string) (*Chat, error)
	CreateChat(c *Chat) error
	UpdateChat(userID, chatID string, upd ChatUpdate) error
	SoftDeleteChat(userID, chatID string) error

	ListMessages(chatID string) ([]Message, error)
	AppendMessage(userID string, m *Message) error
	SetMessageAudioURL(userID, chatID, messageID, audioURL string) error
	DeleteMessage(userID, chatID, messageID string) error

	IncrementUsage(userID, day string) (int, error)
	GetUsage(userID, day string) (int, error)
	UpsertSubscription(s *Subscription) error
	GetSubscription(userID string) (*Subscription, error)
	ListVoices() ([]Voice, error)
}
