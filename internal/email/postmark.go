package email

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/loomchat/billing/internal/model"
)

const postmarkURL = "https://api.postmarkapp.com/email"

type Client struct {
	serverToken string
	fromEmail   string
	portalURL   string
	httpClient  *http.Client
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.httpClient = c
	}
}

// NewClient creates a Postmark email client. portalURL is where the billing
// notice points the user to fix their payment method.
func NewClient(serverToken, fromEmail, portalURL string, opts ...Option) *Client {
	c := &Client{
		serverToken: serverToken,
		fromEmail:   fromEmail,
		portalURL:   portalURL,
		httpClient:  http.DefaultClient,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Configured returns true if the server token is set.
func (c *Client) Configured() bool {
	return c.serverToken != ""
}

type postmarkEmail struct {
	From     string `json:"From"`
	To       string `json:"To"`
	Subject  string `json:"Subject"`
	HtmlBody string `json:"HtmlBody"`
	TextBody string `json:"TextBody"`
}

// SendPaymentIssue notifies a user that their subscription needs attention.
// Called when ingestion lands a failed or on-hold status.
func (c *Client) SendPaymentIssue(ctx context.Context, toEmail string, status model.Status) error {
	if !c.Configured() {
		return fmt.Errorf("email client not configured: missing server token")
	}

	var subject, reason string
	switch status {
	case model.StatusOnHold:
		subject = "Your subscription is on hold"
		reason = "your last payment did not go through"
	default:
		subject = "There was a problem with your payment"
		reason = "we could not process your payment"
	}

	textBody := fmt.Sprintf("Hi,\n\nYour premium subscription needs attention: %s.\n\nUpdate your payment details here:\n\n%s\n\nUntil then, premium features may be unavailable.", reason, c.portalURL)
	htmlBody := fmt.Sprintf(
		`<p>Hi,</p><p>Your premium subscription needs attention: %s.</p><p><a href="%s">Update your payment details</a></p><p>Until then, premium features may be unavailable.</p>`,
		reason, c.portalURL,
	)

	payload := postmarkEmail{
		From:     c.fromEmail,
		To:       toEmail,
		Subject:  subject,
		HtmlBody: htmlBody,
		TextBody: textBody,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", postmarkURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Postmark-Server-Token", c.serverToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("postmark API error: status %d", resp.StatusCode)
	}

	return nil
}
