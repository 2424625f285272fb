// Package entclient is the HTTP client the chat application embeds to read
// entitlement from the billing service and to confirm a just-completed
// checkout.
package entclient

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/loomchat/billing/internal/reconcile"
)

// Config holds billing service client configuration.
type Config struct {
	BaseURL string
	// Token is the identity-provider JWT for the current user.
	Token        string
	PollInterval time.Duration
	MaxAttempts  int
	HTTPClient   *http.Client
}

// SubscriptionView is the entitlement read model served by GET /api/subscription.
type SubscriptionView struct {
	IsPremium         bool       `json:"is_premium"`
	Status            string     `json:"status"`
	Tier              string     `json:"tier"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	CurrentPeriodEnd  *time.Time `json:"current_period_end,omitempty"`
	DaysUntilExpiry   int        `json:"days_until_expiry"`
}

type Client struct {
	cfg        Config
	httpClient *http.Client
}

func New(cfg Config) *Client {
	c := &Client{cfg: cfg, httpClient: cfg.HTTPClient}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if c.cfg.PollInterval == 0 {
		c.cfg.PollInterval = reconcile.DefaultInterval
	}
	if c.cfg.MaxAttempts == 0 {
		c.cfg.MaxAttempts = reconcile.DefaultMaxAttempts
	}
	return c
}

// Subscription fetches the current entitlement view for the user.
func (c *Client) Subscription(ctx context.Context) (*SubscriptionView, error) {
	req, err := http.NewRequestWithContext(ctx, "GET", c.cfg.BaseURL+"/api/subscription", nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.Token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("subscription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("subscription: status %d", resp.StatusCode)
	}

	var view SubscriptionView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &view, nil
}

// ConfirmCheckout polls the subscription endpoint after a checkout redirect
// until premium is visible or the attempt budget runs out. StateResolved
// means premium is confirmed; StateExhausted means the webhook has not landed
// yet and the UI should show "still processing" with a manual refresh, never
// a failure. Cancel ctx to stop polling immediately.
func (c *Client) ConfirmCheckout(ctx context.Context) (reconcile.State, error) {
	poller := reconcile.New(
		func(ctx context.Context) (bool, error) {
			view, err := c.Subscription(ctx)
			if err != nil {
				return false, err
			}
			return view.IsPremium, nil
		},
		reconcile.WithInterval(c.cfg.PollInterval),
		reconcile.WithMaxAttempts(c.cfg.MaxAttempts),
	)
	return poller.Run(ctx)
}
