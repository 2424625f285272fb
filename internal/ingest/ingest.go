// Package ingest applies verified provider webhook events to the entitlement
// store. Delivery is at-least-once with possible duplicates and reordering,
// so every apply is idempotent, ordered by the event sequence, and written
// through a version-guarded replace.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/loomchat/billing/internal/entitlement"
	"github.com/loomchat/billing/internal/model"
	"github.com/loomchat/billing/internal/provider"
	"github.com/loomchat/billing/internal/store"
)

// ErrMissingCorrelation means the event carries no user id in its metadata.
// Such an event must never mutate any record, and retrying delivery cannot
// help: the metadata was never sent.
var ErrMissingCorrelation = errors.New("webhook event missing user correlation")

const (
	casMaxRetries    = 5
	casRetryInterval = 25 * time.Millisecond
)

// Notifier sends best-effort user notifications on payment trouble.
type Notifier interface {
	Configured() bool
	SendPaymentIssue(ctx context.Context, toEmail string, status model.Status) error
}

type Service struct {
	store    *store.SubscriptionStore
	notifier Notifier
	logger   *slog.Logger
}

// New creates the ingest service. notifier may be nil.
func New(s *store.SubscriptionStore, notifier Notifier, logger *slog.Logger) *Service {
	return &Service{store: s, notifier: notifier, logger: logger}
}

// Apply reconciles one provider event into the store.
//
// Invariants:
//   - an unattributable event writes nothing (ErrMissingCorrelation);
//   - a duplicate event id is a success no-op;
//   - an event older than the stored sequence is dropped as stale;
//   - the record is replaced whole, never partially;
//   - adminOverride is carried over untouched, whatever the event says.
func (s *Service) Apply(ctx context.Context, ev provider.Event) error {
	if ev.UserID == "" {
		return ErrMissingCorrelation
	}

	var applied bool
	backoff := retry.WithMaxRetries(casMaxRetries, retry.NewConstant(casRetryInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rec, err := s.store.GetOrCreate(ev.UserID)
		if err != nil {
			return err
		}

		if ev.ID != "" && ev.ID == rec.LastEventID {
			s.logger.Debug("duplicate webhook event", "event_id", ev.ID, "user_id", ev.UserID)
			return nil
		}
		if ev.Sequence > 0 && rec.LastEventSequence > 0 && ev.Sequence < rec.LastEventSequence {
			s.logger.Info("dropping stale webhook event",
				"event_id", ev.ID, "user_id", ev.UserID,
				"event_seq", ev.Sequence, "stored_seq", rec.LastEventSequence)
			return nil
		}

		next := buildNext(rec, ev)
		if err := s.store.Replace(next, rec.Version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				// Concurrent delivery for the same user; reload and retry.
				return retry.RetryableError(err)
			}
			return err
		}
		applied = true
		return nil
	})
	if err != nil {
		return fmt.Errorf("apply webhook event %s: %w", ev.ID, err)
	}

	if applied {
		s.notifyPaymentIssue(ctx, ev)
	}
	return nil
}

// buildNext computes the full replacement record for an event.
func buildNext(rec *model.SubscriptionRecord, ev provider.Event) *model.SubscriptionRecord {
	status := entitlement.MapProviderStatus(ev.Status)

	next := *rec
	next.Status = status
	next.Tier = entitlement.TierFor(status)
	next.CurrentPeriodEnd = ev.CurrentPeriodEnd
	next.CancelAtPeriodEnd = ev.CancelAtPeriodEnd
	next.LastEventID = ev.ID
	if ev.Sequence > 0 {
		next.LastEventSequence = ev.Sequence
	}
	if ev.CustomerID != "" {
		customerID := ev.CustomerID
		next.CustomerID = &customerID
	}
	if ev.SubscriptionID != "" {
		subscriptionID := ev.SubscriptionID
		next.SubscriptionID = &subscriptionID
	}
	// next.AdminOverride deliberately left as read.
	return &next
}

// SetAdminOverride flips the override flag through the same version-guarded
// replace the webhook path uses, so concurrent deliveries cannot lose it.
func (s *Service) SetAdminOverride(ctx context.Context, userID string, on bool) error {
	backoff := retry.WithMaxRetries(casMaxRetries, retry.NewConstant(casRetryInterval))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		rec, err := s.store.GetOrCreate(userID)
		if err != nil {
			return err
		}
		if rec.AdminOverride == on {
			return nil
		}
		next := *rec
		next.AdminOverride = on
		if err := s.store.Replace(&next, rec.Version); err != nil {
			if errors.Is(err, store.ErrVersionConflict) {
				return retry.RetryableError(err)
			}
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set admin override for %s: %w", userID, err)
	}
	return nil
}

func (s *Service) notifyPaymentIssue(ctx context.Context, ev provider.Event) {
	if s.notifier == nil || !s.notifier.Configured() || ev.Email == "" {
		return
	}
	status := entitlement.MapProviderStatus(ev.Status)
	if status != model.StatusFailed && status != model.StatusOnHold {
		return
	}
	if err := s.notifier.SendPaymentIssue(ctx, ev.Email, status); err != nil {
		s.logger.Error("payment issue notification failed", "user_id", ev.UserID, "error", err)
	}
}
