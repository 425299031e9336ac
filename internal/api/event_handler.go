package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/parlohq/syncd/internal/auth"
	"github.com/parlohq/syncd/internal/bus"
	"go.uber.org/zap"
)

// EventHandler streams domain events over server-sent events, so a device
// can react to another device's sync, append, or delete without polling.
type EventHandler struct {
	bus    *bus.Bus
	logger *zap.Logger
}

// NewEventHandler creates the event stream handler.
func NewEventHandler(b *bus.Bus, logger *zap.Logger) *EventHandler {
	return &EventHandler{bus: b, logger: logger}
}

type eventPayload struct {
	Kind      string    `json:"kind"`
	Timestamp time.Time `json:"timestamp"`
	Payload   any       `json:"payload,omitempty"`
}

// HandleStream is GET /v1/events. An optional ?namespace= narrows the stream
// to a kind prefix ("sync.", "chat.", "message."). Only events for the
// authenticated user are delivered. The stream stays open until the client
// disconnects; a slow client misses events rather than backpressuring
// publishers.
func (h *EventHandler) HandleStream(w http.ResponseWriter, r *http.Request) {
	userID := auth.RequestUserID(r.Context())

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, h.logger, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, unsubscribe := h.bus.Subscribe(r.URL.Query().Get("namespace"), 16)
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case evt := <-events:
			if evt.UserID != userID {
				continue
			}
			data, err := json.Marshal(eventPayload{
				Kind:      evt.Kind,
				Timestamp: evt.Timestamp,
				Payload:   evt.Payload,
			})
			if err != nil {
				h.logger.Warn("encode event failed", zap.String("kind", evt.Kind), zap.Error(err))
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.Kind, data)
			flusher.Flush()
		}
	}
}
