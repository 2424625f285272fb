package entitlement

import (
	"testing"

	"github.com/loomchat/billing/internal/model"
)

func TestMapProviderStatusKnown(t *testing.T) {
	tests := []struct {
		raw  string
		want model.Status
	}{
		{"active", model.StatusActive},
		{"cancelled", model.StatusCancelled},
		{"expired", model.StatusExpired},
		{"on_hold", model.StatusOnHold},
		{"failed", model.StatusFailed},
		{"ACTIVE", model.StatusActive},
		{"  on_hold  ", model.StatusOnHold},
	}
	for _, tt := range tests {
		if got := MapProviderStatus(tt.raw); got != tt.want {
			t.Errorf("MapProviderStatus(%q) = %q, want %q", tt.raw, got, tt.want)
		}
	}
}

func TestMapProviderStatusUnknownFailsSafe(t *testing.T) {
	unknown := []string{"", "paused", "trialing", "canceled", "ACTIVE!", "premium", "\x00"}
	for _, raw := range unknown {
		if got := MapProviderStatus(raw); got != model.StatusExpired {
			t.Errorf("MapProviderStatus(%q) = %q, want %q", raw, got, model.StatusExpired)
		}
	}
}

func TestTierFor(t *testing.T) {
	if TierFor(model.StatusActive) != model.TierPremium {
		t.Error("active should map to PREMIUM")
	}
	for _, s := range []model.Status{model.StatusNone, model.StatusCancelled, model.StatusExpired, model.StatusOnHold, model.StatusFailed} {
		if TierFor(s) != model.TierFree {
			t.Errorf("%q should map to FREE", s)
		}
	}
}
