// Package entitlement holds the pure functions that decide whether a user has
// premium access right now. No I/O happens here so every rule is testable in
// isolation.
package entitlement

import (
	"time"

	"github.com/loomchat/billing/internal/model"
)

// IsPremium computes the effective entitlement for a record at a point in
// time. Precedence, first match wins:
//
//  1. Admin override grants access unconditionally.
//  2. A premium tier with a known period end is entitled until that instant.
//  3. A premium tier with no period end stays entitled; missing expiry data
//     must never demote a paying user.
//  4. Everything else is free.
func IsPremium(rec *model.SubscriptionRecord, now time.Time) bool {
	if rec == nil {
		return false
	}
	if rec.AdminOverride {
		return true
	}
	if rec.Tier == model.TierPremium {
		if rec.CurrentPeriodEnd == nil {
			return true
		}
		return rec.CurrentPeriodEnd.After(now)
	}
	return false
}

// DaysUntilExpiry returns whole days remaining before the current period ends,
// rounded up. Zero when the record has no known expiry or is not premium.
func DaysUntilExpiry(rec *model.SubscriptionRecord, now time.Time) int {
	if rec == nil || rec.CurrentPeriodEnd == nil || !IsPremium(rec, now) {
		return 0
	}
	remaining := rec.CurrentPeriodEnd.Sub(now)
	if remaining <= 0 {
		return 0
	}
	days := int(remaining / (24 * time.Hour))
	if remaining%(24*time.Hour) != 0 {
		days++
	}
	return days
}
