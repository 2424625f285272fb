package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/loomchat/billing/internal/provider"
)

type CheckoutHandler struct {
	provider provider.BillingProvider
	logger   *slog.Logger
}

// NewCheckoutHandler creates the checkout handler. provider may be nil when
// the payment vendor is not configured; requests then fail with
// provider_unavailable.
func NewCheckoutHandler(p provider.BillingProvider, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{provider: p, logger: logger}
}

// Create starts a hosted checkout for the authenticated user and returns the
// redirect URL. The user id is embedded as provider metadata so the webhook
// that follows can be attributed.
func (h *CheckoutHandler) Create(w http.ResponseWriter, r *http.Request) {
	id := IdentityFromContext(r.Context())
	if id.UserID == "" {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req struct {
		Currency string `json:"currency"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}
	req.Currency = strings.ToLower(strings.TrimSpace(req.Currency))

	if h.provider == nil {
		writeError(w, http.StatusServiceUnavailable, "provider_unavailable")
		return
	}

	checkout, err := h.provider.CreateCheckout(r.Context(), provider.CheckoutRequest{
		UserID:   id.UserID,
		Email:    id.Email,
		Currency: req.Currency,
	})
	if err != nil {
		status, code := classifyCheckoutError(err)
		h.logger.Warn("checkout creation failed", "user_id", id.UserID, "code", code, "error", err)
		writeError(w, status, code)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"url": checkout.URL})
}

// classifyCheckoutError maps provider failures to the machine-readable
// categories the UI understands. Raw provider detail never leaves the server;
// anything unclassified falls back to the generic payment_failed.
func classifyCheckoutError(err error) (int, string) {
	if errors.Is(err, provider.ErrProviderUnavailable) {
		return http.StatusServiceUnavailable, "provider_unavailable"
	}

	var rejected *provider.CheckoutRejectedError
	if errors.As(err, &rejected) {
		switch rejected.DeclineCode {
		case "insufficient_funds":
			return http.StatusPaymentRequired, "insufficient_funds"
		case "expired_card":
			return http.StatusPaymentRequired, "expired_card"
		case "processing_error":
			return http.StatusPaymentRequired, "processing_error"
		}
		switch rejected.Code {
		case "card_declined":
			return http.StatusPaymentRequired, "declined"
		case "expired_card":
			return http.StatusPaymentRequired, "expired_card"
		case "processing_error":
			return http.StatusPaymentRequired, "processing_error"
		}
		return http.StatusPaymentRequired, "payment_failed"
	}

	// Anything else is a transport failure between us and the provider.
	return http.StatusBadGateway, "network_error"
}
