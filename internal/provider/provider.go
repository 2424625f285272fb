// Package provider defines the narrow interface the reconciliation core uses
// to talk to a payment vendor. Implementations handle provider quirks
// internally (status vocabulary, metadata placement, signature schemes) so
// nothing outside this boundary has a compile-time vendor dependency.
package provider

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrProviderUnavailable means the vendor SDK could not be used at all,
// typically a missing credential. Distinct from a rejected request.
var ErrProviderUnavailable = errors.New("payment provider unavailable")

// CheckoutRejectedError carries the vendor's rejection of a checkout request.
// Message and codes are for internal classification only; raw provider detail
// must never reach an end user.
type CheckoutRejectedError struct {
	Code        string
	DeclineCode string
	Message     string
}

func (e *CheckoutRejectedError) Error() string {
	return fmt.Sprintf("checkout rejected: %s (code=%s decline=%s)", e.Message, e.Code, e.DeclineCode)
}

// CheckoutRequest describes a hosted checkout to create. UserID travels as
// opaque metadata and is the correlation id that webhook events carry back.
type CheckoutRequest struct {
	UserID   string
	Email    string
	Currency string
}

// Checkout is a created hosted checkout session.
type Checkout struct {
	URL       string
	SessionID string
}

// Event is a normalized, signature-verified webhook event. UserID is the
// correlation id read back from metadata; empty means the event cannot be
// attributed. Sequence is the provider's creation timestamp and orders events
// for the same user; zero means the provider gave us nothing to order by.
type Event struct {
	ID                string
	Type              string
	UserID            string
	Email             string
	CustomerID        string
	SubscriptionID    string
	Status            string
	CurrentPeriodEnd  *time.Time
	CancelAtPeriodEnd bool
	Sequence          int64
}

// BillingProvider is the full vendor surface this service needs.
type BillingProvider interface {
	// CreateCheckout creates a hosted checkout session embedding the
	// correlation id. Returns ErrProviderUnavailable or *CheckoutRejectedError.
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)

	// CreatePortalSession returns a pre-authenticated customer portal URL.
	CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error)

	// CancelSubscription requests cancellation at period end. Local state is
	// untouched; the provider confirms through a webhook.
	CancelSubscription(ctx context.Context, subscriptionID string) error

	// VerifyWebhook checks the payload signature and normalizes the event.
	// A nil event with nil error means the event type is not one we track.
	VerifyWebhook(payload []byte, signature string) (*Event, error)
}
