package model

import "time"

// Status is the internal subscription status vocabulary. Provider statuses are
// normalized into this set by the entitlement package; anything unrecognized
// becomes StatusExpired there, never here.
type Status string

const (
	StatusNone      Status = "none"
	StatusActive    Status = "active"
	StatusCancelled Status = "cancelled"
	StatusExpired   Status = "expired"
	StatusOnHold    Status = "on_hold"
	StatusFailed    Status = "failed"
)

// Tier is the stored access tier, kept redundantly with Status for fast reads.
// TierPremium iff StatusActive at write time.
type Tier string

const (
	TierFree    Tier = "FREE"
	TierPremium Tier = "PREMIUM"
)

// SubscriptionRecord is the per-user entitlement state. It is only ever
// replaced whole, guarded by Version; partial updates are not a thing.
type SubscriptionRecord struct {
	UserID            string     `json:"user_id"`
	CustomerID        *string    `json:"customer_id"`
	SubscriptionID    *string    `json:"subscription_id"`
	Status            Status     `json:"status"`
	Tier              Tier       `json:"tier"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	AdminOverride     bool       `json:"admin_override"`
	LastEventID       string     `json:"last_event_id"`
	LastEventSequence int64      `json:"last_event_sequence"`
	Version           int64      `json:"version"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}
