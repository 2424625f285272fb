// Package stripeprovider implements provider.BillingProvider on Stripe.
// All Stripe-specific behavior lives here: the correlation id rides in
// checkout and subscription metadata under "user_id", and Stripe's status
// vocabulary is normalized to the internal provider vocabulary before any
// event leaves this package.
package stripeprovider

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	portalsession "github.com/stripe/stripe-go/v82/billingportal/session"
	checksession "github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/subscription"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/loomchat/billing/internal/provider"
)

// metadataUserKey is where the correlation id lives in Stripe metadata.
const metadataUserKey = "user_id"

type Config struct {
	SecretKey     string
	WebhookSecret string
	// PriceIDs maps a lowercase ISO currency code to the premium price for
	// that currency. DefaultPriceID is used when the currency has no entry.
	PriceIDs       map[string]string
	DefaultPriceID string
	SuccessURL     string
	CancelURL      string
}

type Client struct {
	cfg Config
}

// New constructs the Stripe client. A missing secret key means the SDK cannot
// be used at all and surfaces as ErrProviderUnavailable.
func New(cfg Config) (*Client, error) {
	if cfg.SecretKey == "" {
		return nil, fmt.Errorf("stripe secret key not configured: %w", provider.ErrProviderUnavailable)
	}
	stripe.Key = cfg.SecretKey
	return &Client{cfg: cfg}, nil
}

// priceIDFor returns the premium price for the requested currency.
func (c *Client) priceIDFor(currency string) string {
	if id, ok := c.cfg.PriceIDs[currency]; ok {
		return id
	}
	return c.cfg.DefaultPriceID
}

func (c *Client) CreateCheckout(ctx context.Context, req provider.CheckoutRequest) (*provider.Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Params:        stripe.Params{Context: ctx},
		CustomerEmail: stripe.String(req.Email),
		Mode:          stripe.String(string(stripe.CheckoutSessionModeSubscription)),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				Price:    stripe.String(c.priceIDFor(req.Currency)),
				Quantity: stripe.Int64(1),
			},
		},
		AllowPromotionCodes: stripe.Bool(true),
		SuccessURL:          stripe.String(c.cfg.SuccessURL),
		CancelURL:           stripe.String(c.cfg.CancelURL),
		SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
			Metadata: map[string]string{metadataUserKey: req.UserID},
		},
	}
	// Correlation id on the session itself as well, so checkout.session.completed
	// is attributable without a subscription lookup.
	params.AddMetadata(metadataUserKey, req.UserID)

	sess, err := checksession.New(params)
	if err != nil {
		return nil, asCheckoutError(err)
	}
	return &provider.Checkout{URL: sess.URL, SessionID: sess.ID}, nil
}

func (c *Client) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	params := &stripe.BillingPortalSessionParams{
		Params:    stripe.Params{Context: ctx},
		Customer:  stripe.String(customerID),
		ReturnURL: stripe.String(returnURL),
	}
	sess, err := portalsession.New(params)
	if err != nil {
		return "", fmt.Errorf("create billing portal session: %w", err)
	}
	return sess.URL, nil
}

func (c *Client) CancelSubscription(ctx context.Context, subscriptionID string) error {
	params := &stripe.SubscriptionParams{
		Params:            stripe.Params{Context: ctx},
		CancelAtPeriodEnd: stripe.Bool(true),
	}
	if _, err := subscription.Update(subscriptionID, params); err != nil {
		return fmt.Errorf("cancel subscription: %w", err)
	}
	return nil
}

// VerifyWebhook verifies the Stripe signature and normalizes the event into
// the provider vocabulary. Event types outside the subscription lifecycle
// return (nil, nil) and are acknowledged without processing.
func (c *Client) VerifyWebhook(payload []byte, signature string) (*provider.Event, error) {
	event, err := webhook.ConstructEvent(payload, signature, c.cfg.WebhookSecret)
	if err != nil {
		return nil, fmt.Errorf("verify webhook signature: %w", err)
	}

	switch event.Type {
	case "checkout.session.completed":
		return normalizeCheckoutCompleted(event)
	case "customer.subscription.created", "customer.subscription.updated":
		return normalizeSubscription(event, "")
	case "customer.subscription.deleted":
		return normalizeSubscription(event, "cancelled")
	case "invoice.payment_failed":
		return normalizeInvoiceFailed(event)
	default:
		return nil, nil
	}
}

func normalizeCheckoutCompleted(event stripe.Event) (*provider.Event, error) {
	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, fmt.Errorf("unmarshal checkout session: %w", err)
	}
	ev := &provider.Event{
		ID:       event.ID,
		Type:     string(event.Type),
		UserID:   sess.Metadata[metadataUserKey],
		Status:   "active",
		Sequence: event.Created,
	}
	if sess.Customer != nil {
		ev.CustomerID = sess.Customer.ID
	}
	if sess.Subscription != nil {
		ev.SubscriptionID = sess.Subscription.ID
	}
	if sess.CustomerDetails != nil {
		ev.Email = sess.CustomerDetails.Email
	}
	return ev, nil
}

func normalizeSubscription(event stripe.Event, statusOverride string) (*provider.Event, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, fmt.Errorf("unmarshal subscription: %w", err)
	}
	status := statusOverride
	if status == "" {
		status = normalizeStatus(sub.Status)
	}
	ev := &provider.Event{
		ID:                event.ID,
		Type:              string(event.Type),
		UserID:            sub.Metadata[metadataUserKey],
		SubscriptionID:    sub.ID,
		Status:            status,
		CurrentPeriodEnd:  periodEndOf(&sub),
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		Sequence:          event.Created,
	}
	if sub.Customer != nil {
		ev.CustomerID = sub.Customer.ID
	}
	return ev, nil
}

func normalizeInvoiceFailed(event stripe.Event) (*provider.Event, error) {
	var invoice stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return nil, fmt.Errorf("unmarshal invoice: %w", err)
	}
	ev := &provider.Event{
		ID:       event.ID,
		Type:     string(event.Type),
		Status:   "failed",
		Email:    invoice.CustomerEmail,
		Sequence: event.Created,
	}
	if invoice.Customer != nil {
		ev.CustomerID = invoice.Customer.ID
	}
	if invoice.Parent != nil && invoice.Parent.SubscriptionDetails != nil {
		details := invoice.Parent.SubscriptionDetails
		ev.UserID = details.Metadata[metadataUserKey]
		if details.Subscription != nil {
			ev.SubscriptionID = details.Subscription.ID
		}
	}
	return ev, nil
}

// normalizeStatus maps Stripe subscription statuses onto the provider
// vocabulary. Anything unmapped passes through raw; the status mapper
// downstream treats unknown strings as expired.
func normalizeStatus(s stripe.SubscriptionStatus) string {
	switch s {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return "active"
	case stripe.SubscriptionStatusPastDue, stripe.SubscriptionStatusPaused:
		return "on_hold"
	case stripe.SubscriptionStatusCanceled:
		return "cancelled"
	case stripe.SubscriptionStatusUnpaid, stripe.SubscriptionStatusIncomplete, stripe.SubscriptionStatusIncompleteExpired:
		return "failed"
	default:
		return string(s)
	}
}

// periodEndOf extracts the latest item period end; Stripe keeps the billing
// period on subscription items.
func periodEndOf(sub *stripe.Subscription) *time.Time {
	if sub.Items == nil {
		return nil
	}
	var max int64
	for _, item := range sub.Items.Data {
		if item != nil && item.CurrentPeriodEnd > max {
			max = item.CurrentPeriodEnd
		}
	}
	if max == 0 {
		return nil
	}
	t := time.Unix(max, 0).UTC()
	return &t
}

func asCheckoutError(err error) error {
	if serr, ok := err.(*stripe.Error); ok {
		return &provider.CheckoutRejectedError{
			Code:        string(serr.Code),
			DeclineCode: string(serr.DeclineCode),
			Message:     serr.Msg,
		}
	}
	return fmt.Errorf("create checkout session: %w", err)
}
