package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/parlohq/syncd/internal/bus"
	"github.com/parlohq/syncd/internal/store"
	"go.uber.org/zap"
)

// Engine runs sync exchanges against the server store. One exchange ingests
// a device's change-set (deletions, then new chats and messages) and returns
// the full converged snapshot the device must adopt as ground truth.
//
// There are no locks: concurrent exchanges from a user's devices are
// resolved optimistically, by the store's create-if-absent chat insert and
// the message dedup window. Inside one exchange processing is sequential
// and per-item; nothing is transactional across chats.
type Engine struct {
	store  store.Store
	bus    *bus.Bus
	logger *zap.Logger
}

// NewEngine creates a sync engine on top of the given store.
func NewEngine(st store.Store, b *bus.Bus, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: st, bus: b, logger: logger}
}

// Sync applies a change-set and returns the converged snapshot.
//
// Per-item failures (a malformed entry, a store error on one chat) are
// recorded in the snapshot's Errors and never abort the batch. Only a
// failure to assemble the final snapshot is returned as an error. If ctx is
// canceled mid-batch, already-committed items stay committed; the protocol
// is at-least-once per item.
func (e *Engine) Sync(ctx context.Context, userID string, req Request) (*Snapshot, error) {
	var errs []string
	applied, deduped := 0, 0

	// Deletions first, so a delete and a re-create for different contacts
	// in the same batch land deterministically.
	for _, lc := range req.LocalChats {
		if ctx.Err() != nil {
			break
		}
		if !lc.IsDeleted {
			continue
		}
		if err := e.applyDelete(userID, lc); err != nil {
			errs = append(errs, fmt.Sprintf("chat %s: %v", lc.ContactID, err))
		}
	}

	for _, lc := range req.LocalChats {
		if ctx.Err() != nil {
			break
		}
		if lc.IsDeleted {
			continue
		}
		a, d, chatErrs := e.applyChat(userID, lc)
		applied += a
		deduped += d
		errs = append(errs, chatErrs...)
	}

	chats, err := e.snapshot(userID)
	if err != nil {
		return nil, fmt.Errorf("assemble snapshot: %w", err)
	}

	snap := &Snapshot{
		Chats:    chats,
		SyncedAt: time.Now().UTC(),
		Errors:   errs,
	}

	if len(req.LocalChats) > 0 {
		e.logger.Info("sync exchange applied",
			zap.String("user_id", userID),
			zap.Int("local_chats", len(req.LocalChats)),
			zap.Int("messages_applied", applied),
			zap.Int("messages_deduped", deduped),
			zap.Int("errors", len(errs)))
	}
	if e.bus != nil {
		e.bus.Publish(bus.Event{
			Kind:      bus.KindSyncCompleted,
			UserID:    userID,
			Timestamp: snap.SyncedAt,
			Payload: map[string]int{
				"chats":   len(chats),
				"applied": applied,
				"deduped": deduped,
				"errors":  len(errs),
			},
		})
	}

	return snap, nil
}

// applyDelete tombstones the server chat for a locally deleted contact.
// Deleting a chat the server never had, or one already tombstoned, is a
// silent no-op so the same deletion can replay from every device.
func (e *Engine) applyDelete(userID string, lc LocalChat) error {
	if lc.ContactID == "" {
		return fmt.Errorf("missing contactId")
	}
	server, err := e.store.GetChatByContact(userID, lc.ContactID)
	if err != nil {
		return err
	}
	if server == nil || server.IsDeleted {
		return nil
	}
	if err := e.store.SoftDeleteChat(userID, server.ID); err != nil {
		return err
	}
	if e.bus != nil {
		e.bus.Publish(bus.Event{
			Kind:      bus.KindChatDeleted,
			UserID:    userID,
			Timestamp: time.Now(),
			Payload:   server.ID,
		})
	}
	return nil
}

// applyChat reconciles one non-deleted local chat against the server.
func (e *Engine) applyChat(userID string, lc LocalChat) (applied, deduped int, errs []string) {
	if lc.ContactID == "" {
		return 0, 0, []string{fmt.Sprintf("chat %s: missing contactId", lc.ID)}
	}

	server, err := e.store.GetChatByContact(userID, lc.ContactID)
	if err != nil {
		return 0, 0, []string{fmt.Sprintf("chat %s: %v", lc.ContactID, err)}
	}

	if ResolveChat(server) == CreateFromLocal {
		if err := e.store.CreateChat(chatFromLocal(userID, lc)); err != nil {
			return 0, 0, []string{fmt.Sprintf("chat %s: %v", lc.ContactID, err)}
		}
		// Re-resolve: a concurrent device may have won the insert, in which
		// case its metadata is now authoritative.
		server, err = e.store.GetChatByContact(userID, lc.ContactID)
		if err != nil {
			return 0, 0, []string{fmt.Sprintf("chat %s: %v", lc.ContactID, err)}
		}
		if server == nil {
			return 0, 0, []string{fmt.Sprintf("chat %s: vanished after create", lc.ContactID)}
		}
	}

	switch ResolveChat(server) {
	case SkipTombstoned:
		// The tombstone wins over a replica that has not yet seen the
		// delete; resurrecting here would undo the deletion.
		return 0, 0, nil
	case KeepServer:
		// Server metadata is authoritative; only messages reconcile.
	}

	existing, err := e.store.ListMessages(server.ID)
	if err != nil {
		return 0, 0, []string{fmt.Sprintf("chat %s: %v", lc.ContactID, err)}
	}

	for _, lm := range lc.Messages {
		if err := validateMessage(lm); err != nil {
			errs = append(errs, fmt.Sprintf("chat %s message %s: %v", lc.ContactID, lm.ID, err))
			continue
		}
		createdAt := lm.CreatedAt.UnixMilli()
		if IsDuplicateMessage(lm.Content, createdAt, existing) {
			deduped++
			continue
		}
		m := &store.Message{
			ID:        idOrNew(lm.ID),
			ChatID:    server.ID,
			Role:      lm.Role,
			Content:   lm.Content,
			AudioURL:  lm.AudioURL,
			CreatedAt: createdAt,
		}
		if err := e.store.AppendMessage(userID, m); err != nil {
			errs = append(errs, fmt.Sprintf("chat %s message %s: %v", lc.ContactID, lm.ID, err))
			continue
		}
		// Later entries in this batch dedup against what was just written.
		existing = append(existing, *m)
		applied++
	}
	return applied, deduped, errs
}

// snapshot assembles the user's complete non-deleted state.
func (e *Engine) snapshot(userID string) ([]ChatSnapshot, error) {
	chats, err := e.store.ListActiveChats(userID)
	if err != nil {
		return nil, err
	}
	out := make([]ChatSnapshot, 0, len(chats))
	for _, c := range chats {
		msgs, err := e.store.ListMessages(c.ID)
		if err != nil {
			return nil, err
		}
		out = append(out, ChatSnapshot{Chat: c, Messages: msgs})
	}
	return out, nil
}

func validateMessage(lm LocalMessage) error {
	if lm.Role != store.RoleUser && lm.Role != store.RoleAssistant {
		return fmt.Errorf("invalid role %q", lm.Role)
	}
	if lm.Content == "" {
		return fmt.Errorf("empty content")
	}
	if lm.CreatedAt.IsZero() {
		return fmt.Errorf("missing createdAt")
	}
	return nil
}

func chatFromLocal(userID string, lc LocalChat) *store.Chat {
	return &store.Chat{
		ID:             idOrNew(lc.ID),
		UserID:         userID,
		ContactID:      lc.ContactID,
		ContactName:    lc.ContactName,
		ContactEmoji:   lc.ContactEmoji,
		ContactImage:   lc.ContactImage,
		ContactPurpose: lc.ContactPurpose,
		LastMessage:    lc.LastMessage,
		LastMessageAt:  millis(lc.LastMessageAt),
	}
}

func idOrNew(id string) string {
	if id == "" {
		return uuid.NewString()
	}
	return id
}

func millis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
