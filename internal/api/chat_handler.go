package api

import (
	"net/http"
	"time"

	"github.com/parlohq/syncd/internal/auth"
	"github.com/parlohq/syncd/internal/bus"
	"github.com/parlohq/syncd/internal/store"
	"go.uber.org/zap"
)

// ChatHandler serves chat reads and soft-deletes outside of sync exchanges.
type ChatHandler struct {
	store  store.Store
	bus    *bus.Bus
	logger *zap.Logger
}

// NewChatHandler creates the chat handler.
func NewChatHandler(st store.Store, b *bus.Bus, logger *zap.Logger) *ChatHandler {
	return &ChatHandler{store: st, bus: b, logger: logger}
}

// HandleList is GET /v1/chats: active chats only, previews, no messages.
// With ?updatedSince=<RFC3339> it returns only chats touched strictly after
// that instant, tombstones included, so a polling client picks up deletes
// without a full sync exchange.
func (h *ChatHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID := auth.RequestUserID(r.Context())

	var chats []store.Chat
	var err error
	if since := r.URL.Query().Get("updatedSince"); since != "" {
		ts, parseErr := time.Parse(time.RFC3339, since)
		if parseErr != nil {
			writeError(w, h.logger, http.StatusBadRequest, "invalid updatedSince")
			return
		}
		chats, err = h.store.ListChatsUpdatedSince(userID, ts.UnixMilli())
	} else {
		chats, err = h.store.ListActiveChats(userID)
	}
	if err != nil {
		h.logger.Error("list chats failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "list chats failed")
		return
	}

	payload := make([]chatPayload, 0, len(chats))
	for _, c := range chats {
		payload = append(payload, toChatPayload(c, nil))
	}
	writeJSON(w, h.logger, http.StatusOK, payload)
}

// HandleGet is GET /v1/chats/{id}: one chat with its full message sequence.
func (h *ChatHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID := auth.RequestUserID(r.Context())
	chatID := r.PathValue("id")

	c, err := h.store.GetChat(userID, chatID)
	if err != nil {
		h.logger.Error("get chat failed", zap.String("chat_id", chatID), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "get chat failed")
		return
	}
	if c == nil || c.IsDeleted {
		writeError(w, h.logger, http.StatusNotFound, "chat not found")
		return
	}

	msgs, err := h.store.ListMessages(c.ID)
	if err != nil {
		h.logger.Error("list messages failed", zap.String("chat_id", chatID), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "get chat failed")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, toChatPayload(*c, msgs))
}

// HandleDelete is DELETE /v1/chats/{id}: tombstone the chat. Deleting an
// already-deleted or unknown chat succeeds, matching the sync semantics.
func (h *ChatHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID := auth.RequestUserID(r.Context())
	chatID := r.PathValue("id")

	if err := h.store.SoftDeleteChat(userID, chatID); err != nil {
		h.logger.Error("delete chat failed", zap.String("chat_id", chatID), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "delete chat failed")
		return
	}
	if h.bus != nil {
		h.bus.Publish(bus.Event{
			Kind:      bus.KindChatDeleted,
			UserID:    userID,
			Timestamp: time.Now(),
			Payload:   chatID,
		})
	}
	w.WriteHeader(http.StatusNoContent)
}
