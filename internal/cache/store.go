package cache

import (
	"github.com/parlohq/syncd/internal/store"
	"go.uber.org/zap"
)

// Store decorates a store.Store with read-through caching and write-path
// invalidation. Every mutator funnels through mutate(), so a new operation
// cannot forget to invalidate its keys. Failures in the cache itself never
// reach the caller; the underlying store stays the source of truth.
type Store struct {
	next   store.Store
	cache  *Cache
	logger *zap.Logger
}

var _ store.Store = (*Store)(nil)

// NewStore wraps next with caching. A nil cache disables caching while
// keeping the same code path.
func NewStore(next store.Store, c *Cache, logger *zap.Logger) *Store {
	return &Store{next: next, cache: c, logger: logger}
}

func chatListKey(userID string) string     { return "chats:" + userID }
func chatKey(userID, chatID string) string { return "chat:" + userID + ":" + chatID }
func messagesKey(chatID string) string     { return "msgs:" + chatID }
func usageKey(userID, day string) string   { return "usage:" + userID + ":" + day }
func subscriptionKey(userID string) string { return "sub:" + userID }

const voicesKey = "voices"

// keyset names cache keys a mutation makes stale.
type keyset struct {
	class Class
	keys  []string
}

// Cached slices and structs are stored and served as copies, so a caller
// mutating a result cannot corrupt what later readers see.
func copySlice[T any](in []T) []T {
	out := make([]T, len(in))
	copy(out, in)
	return out
}

// mutate is the single write-path interceptor: it runs the store mutation
// and, before the operation is considered complete, deletes every affected
// key. Keys are deleted, never rewritten with derived data.
func (s *Store) mutate(op func() error, stale ...keyset) error {
	if err := op(); err != nil {
		return err
	}
	for _, ks := range stale {
		s.cache.Delete(ks.class, ks.keys...)
	}
	return nil
}

// --- reads ---

func (s *Store) ListActiveChats(userID string) ([]store.Chat, error) {
	key := chatListKey(userID)
	if v, ok := s.cache.Get(Medium, key); ok {
		if chats, ok := v.([]store.Chat); ok {
			return copySlice(chats), nil
		}
	}
	chats, err := s.next.ListActiveChats(userID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(Medium, key, copySlice(chats))
	return chats, nil
}

// ListChatsUpdatedSince is a pass-through: the since parameter makes the
// key space unbounded, so caching it would only evict useful entries.
func (s *Store) ListChatsUpdatedSince(userID string, since int64) ([]store.Chat, error) {
	return s.next.ListChatsUpdatedSince(userID, since)
}

func (s *Store) GetChat(userID, chatID string) (*store.Chat, error) {
	key := chatKey(userID, chatID)
	if v, ok := s.cache.Get(Medium, key); ok {
		if c, ok := v.(store.Chat); ok {
			return &c, nil
		}
	}
	c, err := s.next.GetChat(userID, chatID)
	if err != nil {
		return nil, err
	}
	if c != nil {
		s.cache.Set(Medium, key, *c)
	}
	return c, nil
}

// GetChatByContact is a pass-through. It is the idempotency check of the
// sync engine's create-if-absent step; serving it stale would let a racing
// device create a second chat for the same contact.
func (s *Store) GetChatByContact(userID, contactID string) (*store.Chat, error) {
	return s.next.GetChatByContact(userID, contactID)
}

func (s *Store) ListMessages(chatID string) ([]store.Message, error) {
	key := messagesKey(chatID)
	if v, ok := s.cache.Get(Medium, key); ok {
		if msgs, ok := v.([]store.Message); ok {
			return copySlice(msgs), nil
		}
	}
	msgs, err := s.next.ListMessages(chatID)
	if err != nil {
		return nil, err
	}
	s.cache.Set(Medium, key, copySlice(msgs))
	return msgs, nil
}

func (s *Store) GetUsage(userID, day string) (int, error) {
	key := usageKey(userID, day)
	if v, ok := s.cache.Get(Short, key); ok {
		if n, ok := v.(int); ok {
			return n, nil
		}
	}
	n, err := s.next.GetUsage(userID, day)
	if err != nil {
		return 0, err
	}
	s.cache.Set(Short, key, n)
	return n, nil
}

func (s *Store) GetSubscription(userID string) (*store.Subscription, error) {
	key := subscriptionKey(userID)
	if v, ok := s.cache.Get(Long, key); ok {
		if sub, ok := v.(store.Subscription); ok {
			return &sub, nil
		}
	}
	sub, err := s.next.GetSubscription(userID)
	if err != nil {
		return nil, err
	}
	if sub != nil {
		s.cache.Set(Long, key, *sub)
	}
	return sub, nil
}

func (s *Store) ListVoices() ([]store.Voice, error) {
	if v, ok := s.cache.Get(Long, voicesKey); ok {
		if voices, ok := v.([]store.Voice); ok {
			return copySlice(voices), nil
		}
	}
	voices, err := s.next.ListVoices()
	if err != nil {
		return nil, err
	}
	s.cache.Set(Long, voicesKey, copySlice(voices))
	return voices, nil
}

// --- writes ---

func (s *Store) CreateChat(c *store.Chat) error {
	return s.mutate(func() error { return s.next.CreateChat(c) },
		keyset{Medium, []string{chatListKey(c.UserID), chatKey(c.UserID, c.ID)}})
}

func (s *Store) UpdateChat(userID, chatID string, upd store.ChatUpdate) error {
	return s.mutate(func() error { return s.next.UpdateChat(userID, chatID, upd) },
		keyset{Medium, []string{chatListKey(userID), chatKey(userID, chatID)}})
}

func (s *Store) SoftDeleteChat(userID, chatID string) error {
	return s.mutate(func() error { return s.next.SoftDeleteChat(userID, chatID) },
		keyset{Medium, []string{chatListKey(userID), chatKey(userID, chatID)}})
}

func (s *Store) AppendMessage(userID string, m *store.Message) error {
	return s.mutate(func() error { return s.next.AppendMessage(userID, m) },
		keyset{Medium, []string{messagesKey(m.ChatID), chatKey(userID, m.ChatID), chatListKey(userID)}})
}

func (s *Store) SetMessageAudioURL(userID, chatID, messageID, audioURL string) error {
	return s.mutate(func() error { return s.next.SetMessageAudioURL(userID, chatID, messageID, audioURL) },
		keyset{Medium, []string{messagesKey(chatID)}})
}

func (s *Store) DeleteMessage(userID, chatID, messageID string) error {
	return s.mutate(func() error { return s.next.DeleteMessage(userID, chatID, messageID) },
		keyset{Medium, []string{messagesKey(chatID), chatKey(userID, chatID), chatListKey(userID)}})
}

func (s *Store) IncrementUsage(userID, day string) (int, error) {
	var n int
	err := s.mutate(func() error {
		var err error
		n, err = s.next.IncrementUsage(userID, day)
		return err
	}, keyset{Short, []string{usageKey(userID, day)}})
	return n, err
}

func (s *Store) UpsertSubscription(sub *store.Subscription) error {
	return s.mutate(func() error { return s.next.UpsertSubscription(sub) },
		keyset{Long, []string{subscriptionKey(sub.UserID)}})
}
