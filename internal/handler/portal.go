package handler

import (
	"log/slog"
	"net/http"

	"github.com/loomchat/billing/internal/provider"
	"github.com/loomchat/billing/internal/store"
)

type PortalHandler struct {
	provider          provider.BillingProvider
	subscriptionStore *store.SubscriptionStore
	returnURL         string
	logger            *slog.Logger
}

func NewPortalHandler(p provider.BillingProvider, ss *store.SubscriptionStore, returnURL string, logger *slog.Logger) *PortalHandler {
	return &PortalHandler{provider: p, subscriptionStore: ss, returnURL: returnURL, logger: logger}
}

// Create returns a customer-portal URL for the authenticated user.
func (h *PortalHandler) Create(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	if id.UserID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.provider == nil {
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable")
		return
	}

	rec, err := h.subscriptionStore.Get(id.UserID)
	if err != nil {
		h.logger.Error("get subscription record", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if rec == nil || rec.CustomerID == nil {
		writeError(w, http.StatusBadRequest, "no_billing_account")
		return
	}

	url, err := h.provider.CreatePortalSession(r.Context(), *rec.CustomerID, h.returnURL)
	if err != nil {
		h.logger.Error("create portal session", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusBadGateway, "network_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// Cancel requests cancellation at period end with the provider. Local state
// is not touched; the provider confirms through a webhook and the record
// updates when that event is ingested.
func (h *PortalHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	if id.UserID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if h.provider == nil {
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable")
		return
	}

	rec, err := h.subscriptionStore.Get(id.UserID)
	if err != nil {
		h.logger.Error("get subscription record", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}
	if rec == nil || rec.SubscriptionID == nil {
		writeError(w, http.StatusBadRequest, "no_subscription")
		return
	}

	if err := h.provider.CancelSubscription(r.Context(), *rec.SubscriptionID); err != nil {
		h.logger.Error("cancel subscription", "user_id", id.UserID, "error", err)
		writeError(w, http.StatusBadGateway, "network_error")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "cancellation_requested"})
}
