package api

import (
	"net/http"

	"github.com/parlohq/syncd/internal/auth"
	"github.com/parlohq/syncd/internal/ratelimit"
	"go.uber.org/zap"
)

// Handlers groups everything the mux routes to.
type Handlers struct {
	Sync     *SyncHandler
	Chats    *ChatHandler
	Messages *MessageHandler
	Account  *AccountHandler
	Events   *EventHandler
}

// NewMux builds the HTTP mux. Every /v1 route runs behind authentication
// and then rate limiting, in that order, before any store access.
func NewMux(h Handlers, verifier auth.Verifier, limiter *ratelimit.Limiter, logger *zap.Logger) *http.ServeMux {
	authMW := auth.Middleware(verifier, logger)
	rateMW := ratelimit.Middleware(limiter, logger)
	protected := func(fn http.HandlerFunc) http.Handler {
		return authMW(rateMW(fn))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /v1/sync", protected(h.Sync.HandleSync))
	mux.Handle("GET /v1/sync", protected(h.Sync.HandleSnapshot))

	mux.Handle("GET /v1/chats", protected(h.Chats.HandleList))
	mux.Handle("GET /v1/chats/{id}", protected(h.Chats.HandleGet))
	mux.Handle("DELETE /v1/chats/{id}", protected(h.Chats.HandleDelete))

	mux.Handle("POST /v1/chats/{id}/messages", protected(h.Messages.HandleAppend))
	mux.Handle("PATCH /v1/chats/{id}/messages/{messageID}/audio", protected(h.Messages.HandleSetAudio))
	mux.Handle("DELETE /v1/chats/{id}/messages/{messageID}", protected(h.Messages.HandleDelete))

	mux.Handle("GET /v1/events", protected(h.Events.HandleStream))

	mux.Handle("GET /v1/usage/today", protected(h.Account.HandleUsage))
	mux.Handle("GET /v1/subscription", protected(h.Account.HandleGetSubscription))
	mux.Handle("PUT /v1/subscription", protected(h.Account.HandlePutSubscription))
	mux.Handle("GET /v1/voices", protected(h.Account.HandleVoices))

	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	return mux
}
