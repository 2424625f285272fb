package entitlement

import (
	"strings"

	"github.com/loomchat/billing/internal/model"
)

// MapProviderStatus translates a provider status string into the internal
// vocabulary. Total over all strings: unrecognized input is data, not a fault,
// and maps to expired so a garbled status can never grant access.
func MapProviderStatus(raw string) model.Status {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "active":
		return model.StatusActive
	case "cancelled":
		return model.StatusCancelled
	case "expired":
		return model.StatusExpired
	case "on_hold":
		return model.StatusOnHold
	case "failed":
		return model.StatusFailed
	default:
		return model.StatusExpired
	}
}

// TierFor derives the stored tier from a mapped status.
func TierFor(status model.Status) model.Tier {
	if status == model.StatusActive {
		return model.TierPremium
	}
	return model.TierFree
}
