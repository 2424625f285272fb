package handler

import (
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/loomchat/billing/internal/ingest"
	"github.com/loomchat/billing/internal/provider"
)

const maxWebhookBody = 65536

type WebhookHandler struct {
	provider provider.BillingProvider
	ingestor *ingest.Service
	logger   *slog.Logger
}

func NewWebhookHandler(p provider.BillingProvider, ing *ingest.Service, logger *slog.Logger) *WebhookHandler {
	return &WebhookHandler{provider: p, ingestor: ing, logger: logger}
}

// HandleProviderWebhook receives asynchronous provider events. Signature
// verification gates everything; an unverifiable payload is rejected before
// any processing. Response codes steer the provider's retry policy: 200 for
// anything retrying cannot fix (processed, duplicate, unattributable,
// untracked type), 500 only for our own storage failures.
func (h *WebhookHandler) HandleProviderWebhook(w http.ResponseWriter, r *http.Request) {
	if h.provider == nil {
		http.Error(w, "provider not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		http.Error(w, "read body", http.StatusBadRequest)
		return
	}

	event, err := h.provider.VerifyWebhook(body, r.Header.Get("Stripe-Signature"))
	if err != nil {
		h.logger.Warn("webhook verification failed", "error", err)
		http.Error(w, "invalid signature", http.StatusBadRequest)
		return
	}
	if event == nil {
		// Event type we do not track.
		w.WriteHeader(http.StatusOK)
		return
	}

	if err := h.ingestor.Apply(r.Context(), *event); err != nil {
		if errors.Is(err, ingest.ErrMissingCorrelation) {
			// Absorbed: redelivery will not add metadata that was never sent.
			h.logger.Error("webhook event not attributable", "event_id", event.ID, "type", event.Type)
			w.WriteHeader(http.StatusOK)
			return
		}
		h.logger.Error("webhook apply failed", "event_id", event.ID, "error", err)
		http.Error(w, "apply failed", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusOK)
}
