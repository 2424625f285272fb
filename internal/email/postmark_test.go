package email

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/loomchat/billing/internal/model"
)

func TestSendPaymentIssueOnHold(t *testing.T) {
	var received postmarkEmail
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "billing@example.com", "https://app.example/account")
	client.httpClient = &http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, target: server.URL}}

	if err := client.SendPaymentIssue(context.Background(), "alice@example.com", model.StatusOnHold); err != nil {
		t.Fatalf("send payment issue: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("server token = %q, want %q", gotToken, "test-token")
	}
	if received.To != "alice@example.com" {
		t.Errorf("To = %q, want %q", received.To, "alice@example.com")
	}
	if received.Subject != "Your subscription is on hold" {
		t.Errorf("Subject = %q, want on-hold subject", received.Subject)
	}
	if !strings.Contains(received.TextBody, "https://app.example/account") {
		t.Error("text body should link to the billing portal")
	}
}

func TestSendPaymentIssueFailed(t *testing.T) {
	var received postmarkEmail

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&received)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "billing@example.com", "https://app.example/account")
	client.httpClient = &http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, target: server.URL}}

	if err := client.SendPaymentIssue(context.Background(), "bob@example.com", model.StatusFailed); err != nil {
		t.Fatalf("send payment issue: %v", err)
	}

	if received.Subject != "There was a problem with your payment" {
		t.Errorf("Subject = %q, want payment-failure subject", received.Subject)
	}
}

func TestSendPaymentIssueNotConfigured(t *testing.T) {
	client := NewClient("", "billing@example.com", "https://app.example/account")

	err := client.SendPaymentIssue(context.Background(), "alice@example.com", model.StatusFailed)
	if err == nil {
		t.Fatal("expected error for unconfigured client")
	}
}

// rewriteTransport redirects requests to the test server regardless of the
// request URL's host.
type rewriteTransport struct {
	base   http.RoundTripper
	target string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.target[len("http://"):]
	return t.base.RoundTrip(req)
}
