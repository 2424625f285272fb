package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/loomchat/billing/internal/entitlement"
	"github.com/loomchat/billing/internal/store"
)

type SubscriptionHandler struct {
	subscriptionStore *store.SubscriptionStore
	logger            *slog.Logger
}

func NewSubscriptionHandler(ss *store.SubscriptionStore, logger *slog.Logger) *SubscriptionHandler {
	return &SubscriptionHandler{subscriptionStore: ss, logger: logger}
}

type subscriptionResponse struct {
	IsPremium         bool       `json:"is_premium"`
	Status            string     `json:"status"`
	Tier              string     `json:"tier"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	DaysUntilExpiry   int        `json:"days_until_expiry"`
}

// Get serves the entitlement view for the authenticated user. A user we have
// never seen gets the default none/FREE record, created on first read.
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	if id.UserID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	rec, err := h.subscriptionStore.GetOrCreate(id.UserID)
	if err != nil {
		h.logger.Error("get subscription record", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	now := time.Now().UTC()
	resp := subscriptionResponse{
		IsPremium:         entitlement.IsPremium(rec, now),
		Status:            string(rec.Status),
		Tier:              string(rec.Tier),
		CancelAtPeriodEnd: rec.CancelAtPeriodEnd,
		CurrentPeriodEnd:  rec.CurrentPeriodEnd,
		DaysUntilExpiry:   entitlement.DaysUntilExpiry(rec, now),
	}

	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string) {
	writeJSON(w, status, map[string]string{"error": code})
}
