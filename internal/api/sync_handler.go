package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/parlohq/syncd/internal/auth"
	"github.com/parlohq/syncd/internal/sync"
	"go.uber.org/zap"
)

// SyncHandler exposes the sync exchange over HTTP.
type SyncHandler struct {
	engine *sync.Engine
	logger *zap.Logger
}

// NewSyncHandler creates the sync handler.
func NewSyncHandler(engine *sync.Engine, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{engine: engine, logger: logger}
}

// HandleSync is POST /v1/sync: ingest a change-set, return the converged
// snapshot. Per-item failures land in the response's errors array with a
// 200; only a top-level failure is a 500.
func (h *SyncHandler) HandleSync(w http.ResponseWriter, r *http.Request) {
	userID := auth.RequestUserID(r.Context())

	var payload syncRequestPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, h.logger, http.StatusBadRequest, "malformed sync request")
		return
	}

	snap, err := h.engine.Sync(r.Context(), userID, toSyncRequest(payload))
	if err != nil {
		h.logger.Error("sync exchange failed",
			zap.String("user_id", userID),
			zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "sync failed")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, toSyncResponse(snap))
}

// HandleSnapshot is GET /v1/sync: the read-only variant used for first load
// and full refresh. Same snapshot shape, no body.
func (h *SyncHandler) HandleSnapshot(w http.ResponseWriter, r *http.Request) {
	userID := auth.RequestUserID(r.Context())

	snap, err := h.engine.Sync(r.Context(), userID, sync.Request{})
	if err != nil {
		h.logger.Error("snapshot fetch failed",
			zap.String("user_id", userID),
			zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "sync failed")
		return
	}

	writeJSON(w, h.logger, http.StatusOK, toSyncResponse(snap))
}
