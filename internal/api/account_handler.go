package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/parlohq/syncd/internal/auth"
	"github.com/parlohq/syncd/internal/store"
	"go.uber.org/zap"
)

// AccountHandler serves usage counters, subscription state, and voice
// reference data.
type AccountHandler struct {
	store  store.Store
	logger *zap.Logger
}

// NewAccountHandler creates the account handler.
func NewAccountHandler(st store.Store, logger *zap.Logger) *AccountHandler {
	return &AccountHandler{store: st, logger: logger}
}

type usagePayload struct {
	Day   string `json:"day"`
	Count int    `json:"count"`
}

type subscriptionPayload struct {
	Plan             string     `json:"plan"`
	Status           string     `json:"status"`
	CurrentPeriodEnd *time.Time `json:"currentPeriodEnd,omitempty"`
}

type voicePayload struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Provider  string `json:"provider"`
	SampleURL string `json:"sampleUrl,omitempty"`
}

// HandleUsage is GET /v1/usage/today.
func (h *AccountHandler) HandleUsage(w http.ResponseWriter, r *http.Request) {
	userID := auth.RequestUserID(r.Context())
	day := time.Now().UTC().Format("2006-01-02")

	count, err := h.store.GetUsage(userID, day)
	if err != nil {
		h.logger.Error("get usage failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "get usage failed")
		return
	}
	writeJSON(w, h.logger, http.StatusOK, usagePayload{Day: day, Count: count})
}

// HandleGetSubscription is GET /v1/subscription. Users without a stored
// subscription are on the free plan.
func (h *AccountHandler) HandleGetSubscription(w http.ResponseWriter, r *http.Request) {
	userID := auth.RequestUserID(r.Context())

	sub, err := h.store.GetSubscription(userID)
	if err != nil {
		h.logger.Error("get subscription failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "get subscription failed")
		return
	}

	payload := subscriptionPayload{Plan: "free", Status: "none"}
	if sub != nil {
		payload.Plan = sub.Plan
		payload.Status = sub.Status
		if sub.CurrentPeriodEnd != 0 {
			end := fromMillis(sub.CurrentPeriodEnd)
			payload.CurrentPeriodEnd = &end
		}
	}
	writeJSON(w, h.logger, http.StatusOK, payload)
}

// HandlePutSubscription is PUT /v1/subscription, written by the billing
// integration. Last writer wins.
func (h *AccountHandler) HandlePutSubscription(w http.ResponseWriter, r *http.Request) {
	userID := auth.RequestUserID(r.Context())

	var payload subscriptionPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil || payload.Plan == "" {
		writeError(w, h.logger, http.StatusBadRequest, "malformed subscription")
		return
	}

	sub := &store.Subscription{UserID: userID, Plan: payload.Plan, Status: payload.Status}
	if payload.CurrentPeriodEnd != nil {
		sub.CurrentPeriodEnd = payload.CurrentPeriodEnd.UnixMilli()
	}
	if err := h.store.UpsertSubscription(sub); err != nil {
		h.logger.Error("upsert subscription failed", zap.String("user_id", userID), zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "upsert subscription failed")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleVoices is GET /v1/voices.
func (h *AccountHandler) HandleVoices(w http.ResponseWriter, r *http.Request) {
	voices, err := h.store.ListVoices()
	if err != nil {
		h.logger.Error("list voices failed", zap.Error(err))
		writeError(w, h.logger, http.StatusInternalServerError, "list voices failed")
		return
	}

	payload := make([]voicePayload, 0, len(voices))
	for _, v := range voices {
		payload = append(payload, voicePayload{ID: v.ID, Name: v.Name, Provider: v.Provider, SampleURL: v.SampleURL})
	}
	writeJSON(w, h.logger, http.StatusOK, payload)
}
