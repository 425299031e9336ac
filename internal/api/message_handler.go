package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/parlohq/syncd/internal/auth"
	"github.com/parlohq/syncd/internal/bus"
	"github.com/parlohq/syncd/internal/store"
	"go.uber.org/zap"
)

// MessageHandler serves the live message exchange path: appends, the audio
// URL backfill, and deletes.
type MessageHandler struct {
	store  store.Store
	bus    *bus.Bus
	logger *zap.Logger
}

// NewMessageHandler creates the message handler.
func NewMessageHandler(st store.Store, b *bus.Bus, logger *zap.Logger) *MessageHandler {
	return &MessageHandler{store: st, bus: b, logger: logger}
}

type appendMessagePayload struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	AudioURL  *string    `json:"audioUrl,omitempty"`
	CreatedAt *time.Time `json:"createdAt,omitempty"`
}

type audioPayload struct {
	AudioURL string `json:"audioUrl"`
}

// HandleAppend is POST /v1/chats/{id}/messages. User-role appends count
// toward the day's usage.
func (h *MessageHandler) HandleAppend(w http.ResponseWriter, r *http.Request) {
	userID := auth.RequestUserID(r.Context())
	chatID := r.PathValue("id")

	var payload appendMessagePayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		writeError(w, h.logger, http.StatusBadRequest, "malformed message")
		return
	}
	if payload.Role != store.RoleUser && payload.Role != store.RoleAssistant {
		writeError(w, h.logger, http.StatusBadRequest, "invalid role")
		return
	}
	if payload.Content == "" {
		writeError(w, h.logger, http.StatusBadRequest, "empty content")
		return
	}

	createdAt := time.Now().UTC()
	if payload.CreatedAt != nil {
		createdAt = payload.CreatedAt.UTC()
	}

	m := &store.Message{
		ID:        uuid.NewString(),
		ChatID:    chatID,
		Role:      payload.Role,
		Content:   payload.Content,
		AudioURL:  deref(payload.AudioURL),
		CreatedAt: createdAt.UnixMilli(),
	}
	if err := h.store.AppendMessage(userID, m); err != nil {
		if errors.Is(err, store.ErrChatNotFound) {
			writeError(w, h.logger, http.StatusNotFound, "chat not found")
			return
		}
		h.logger.Error("append message failed", zap.String("chat_id", chatID), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "append failed")
		return
	}

	if payload.Role == store.RoleUser {
		// Metering uses server receipt time: a back-dated createdAt must not
		// land the append in a past day's counter.
		day := time.Now().UTC().Format("2006-01-02")
		if _, err := h.store.IncrementUsage(userID, day); err != nil {
			// Metering failure must not fail the append itself.
			h.logger.Warn("usage increment failed",
				zap.String("user_id", userID),
				zap.Error(err))
		}
	}

	if h.bus != nil {
		h.bus.Publish(bus.Event{
			Kind:      bus.KindMessageAppended,
			UserID:    userID,
			Timestamp: time.Now(),
			Payload:   m.ID,
		})
	}

	writeJSON(w, h.logger, http.StatusCreated, toMessagePayload(*m))
}

// HandleSetAudio is PATCH /v1/chats/{id}/messages/{messageID}/audio: the
// audio URL backfill, the only mutation a stored message ever receives.
func (h *MessageHandler) HandleSetAudio(w http.ResponseWriter, r *http.Request) {
	userID := auth.RequestUserID(r.Context())
	chatID := r.PathValue("id")
	messageID := r.PathValue("messageID")

	var payload audioPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.AudioURL == "" {
		writeError(w, h.logger, http.StatusBadRequest, "malformed audio payload")
		return
	}

	err := h.store.SetMessageAudioURL(userID, chatID, messageID, payload.AudioURL)
	if errors.Is(err, store.ErrMessageNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		h.logger.Error("audio backfill failed", zap.String("message_id", messageID), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "backfill failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleDelete is DELETE /v1/chats/{id}/messages/{messageID}.
func (h *MessageHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	userID := auth.RequestUserID(r.Context())
	chatID := r.PathValue("id")
	messageID := r.PathValue("messageID")

	err := h.store.DeleteMessage(userID, chatID, messageID)
	if errors.Is(err, store.ErrChatNotFound) || errors.Is(err, store.ErrMessageNotFound) {
		writeError(w, h.logger, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		h.logger.Error("delete message failed", zap.String("message_id", messageID), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "delete failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
