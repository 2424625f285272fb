package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/loomchat/billing/internal/ingest"
)

type AdminHandler struct {
	ingestor *ingest.Service
	logger   *slog.Logger
}

func NewAdminHandler(ing *ingest.Service, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{ingestor: ing, logger: logger}
}

// SetOverride flips the admin entitlement override for a user. The write goes
// through the same version-guarded replace as webhook ingestion, so it cannot
// be lost to a concurrent delivery.
func (h *AdminHandler) SetOverride(w http.ResponseWriter, r *http.Request) {
	var req struct {
		UserID  string `json:"user_id"`
		Premium bool   `json:"premium"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.UserID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request")
		return
	}

	if err := h.ingestor.SetAdminOverride(r.Context(), req.UserID, req.Premium); err != nil {
		h.logger.Error("set admin override", "user_id", req.UserID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal_error")
		return
	}

	h.logger.Info("admin override set", "user_id", req.UserID, "premium", req.Premium)
	writeJSON(w, http.StatusOK, map[string]any{"user_id": req.UserID, "premium": req.Premium})
}
