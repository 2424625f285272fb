package ingest

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/loomchat/billing/internal/database"
	"github.com/loomchat/billing/internal/entitlement"
	"github.com/loomchat/billing/internal/model"
	"github.com/loomchat/billing/internal/provider"
	"github.com/loomchat/billing/internal/store"
)

func setupIngest(t *testing.T) (*Service, *store.SubscriptionStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	ss := store.NewSubscriptionStore(db)
	return New(ss, nil, slog.New(slog.DiscardHandler)), ss
}

func activeEvent(id string, seq int64, periodEnd time.Time) provider.Event {
	return provider.Event{
		ID:               id,
		Type:             "customer.subscription.updated",
		UserID:           "u1",
		CustomerID:       "cus_1",
		SubscriptionID:   "sub_1",
		Status:           "active",
		CurrentPeriodEnd: &periodEnd,
		Sequence:         seq,
	}
}

func TestApplyActiveEvent(t *testing.T) {
	svc, ss := setupIngest(t)
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	if err := svc.Apply(context.Background(), activeEvent("evt_1", 100, periodEnd)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	rec, _ := ss.Get("u1")
	if rec == nil {
		t.Fatal("expected record created")
	}
	if rec.Status != model.StatusActive || rec.Tier != model.TierPremium {
		t.Errorf("status/tier = %q/%q, want active/PREMIUM", rec.Status, rec.Tier)
	}
	if rec.CurrentPeriodEnd == nil || !rec.CurrentPeriodEnd.Equal(periodEnd) {
		t.Errorf("period end = %v, want %v", rec.CurrentPeriodEnd, periodEnd)
	}
	if rec.LastEventID != "evt_1" {
		t.Errorf("last event id = %q, want evt_1", rec.LastEventID)
	}

	if !entitlement.IsPremium(rec, periodEnd.Add(-time.Minute)) {
		t.Error("expected premium before period end")
	}
	if entitlement.IsPremium(rec, periodEnd.Add(time.Minute)) {
		t.Error("expected free after period end")
	}
}

func TestApplyMissingCorrelation(t *testing.T) {
	svc, ss := setupIngest(t)

	ev := activeEvent("evt_1", 100, time.Now())
	ev.UserID = ""
	err := svc.Apply(context.Background(), ev)
	if !errors.Is(err, ErrMissingCorrelation) {
		t.Fatalf("err = %v, want ErrMissingCorrelation", err)
	}

	rec, _ := ss.Get("u1")
	if rec != nil {
		t.Error("unattributable event must not create or mutate any record")
	}
}

func TestApplyDuplicateIsNoOp(t *testing.T) {
	svc, ss := setupIngest(t)
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)
	ev := activeEvent("evt_1", 100, periodEnd)

	if err := svc.Apply(context.Background(), ev); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	after1, _ := ss.Get("u1")

	if err := svc.Apply(context.Background(), ev); err != nil {
		t.Fatalf("duplicate apply should succeed: %v", err)
	}
	after2, _ := ss.Get("u1")

	if after2.Version != after1.Version {
		t.Errorf("duplicate delivery bumped version: %d -> %d", after1.Version, after2.Version)
	}
	if after2.Status != after1.Status || after2.LastEventID != after1.LastEventID {
		t.Error("duplicate delivery changed record content")
	}
}

func TestApplyDropsStaleEvent(t *testing.T) {
	svc, ss := setupIngest(t)
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	if err := svc.Apply(context.Background(), activeEvent("evt_2", 200, periodEnd)); err != nil {
		t.Fatalf("apply newer: %v", err)
	}

	stale := activeEvent("evt_1", 100, periodEnd)
	stale.Status = "failed"
	if err := svc.Apply(context.Background(), stale); err != nil {
		t.Fatalf("apply stale should succeed as a drop: %v", err)
	}

	rec, _ := ss.Get("u1")
	if rec.Status != model.StatusActive {
		t.Errorf("stale event regressed status to %q", rec.Status)
	}
	if rec.LastEventID != "evt_2" {
		t.Errorf("last event id = %q, want evt_2", rec.LastEventID)
	}
}

func TestApplyUnknownStatusFailsSafe(t *testing.T) {
	svc, ss := setupIngest(t)

	ev := activeEvent("evt_1", 100, time.Now())
	ev.Status = "some_future_status"
	ev.CurrentPeriodEnd = nil
	if err := svc.Apply(context.Background(), ev); err != nil {
		t.Fatalf("apply: %v", err)
	}

	rec, _ := ss.Get("u1")
	if rec.Status != model.StatusExpired {
		t.Errorf("status = %q, want expired for unknown provider status", rec.Status)
	}
	if rec.Tier != model.TierFree {
		t.Errorf("tier = %q, want FREE", rec.Tier)
	}
}

func TestApplyPreservesAdminOverride(t *testing.T) {
	svc, ss := setupIngest(t)

	if err := svc.SetAdminOverride(context.Background(), "u1", true); err != nil {
		t.Fatalf("set override: %v", err)
	}

	ev := activeEvent("evt_1", 100, time.Now())
	ev.Status = "failed"
	if err := svc.Apply(context.Background(), ev); err != nil {
		t.Fatalf("apply: %v", err)
	}

	rec, _ := ss.Get("u1")
	if !rec.AdminOverride {
		t.Error("webhook event must never regress admin override")
	}
	if !entitlement.IsPremium(rec, time.Now()) {
		t.Error("override should keep the user premium through a failed payment")
	}
}

func TestApplyReplacesPeriodEndWhole(t *testing.T) {
	svc, ss := setupIngest(t)
	periodEnd := time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC)

	if err := svc.Apply(context.Background(), activeEvent("evt_1", 100, periodEnd)); err != nil {
		t.Fatalf("apply: %v", err)
	}

	// Later event with no period end replaces the field; active with missing
	// expiry stays entitled.
	later := provider.Event{
		ID: "evt_2", UserID: "u1", Status: "active", Sequence: 200,
	}
	if err := svc.Apply(context.Background(), later); err != nil {
		t.Fatalf("apply later: %v", err)
	}

	rec, _ := ss.Get("u1")
	if rec.CurrentPeriodEnd != nil {
		t.Errorf("period end = %v, want nil after replacement", rec.CurrentPeriodEnd)
	}
	if !entitlement.IsPremium(rec, time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)) {
		t.Error("active with missing expiry must remain entitled")
	}
}

func TestSetAdminOverride(t *testing.T) {
	svc, ss := setupIngest(t)

	if err := svc.SetAdminOverride(context.Background(), "u1", true); err != nil {
		t.Fatalf("enable: %v", err)
	}
	rec, _ := ss.Get("u1")
	if !rec.AdminOverride {
		t.Fatal("expected override enabled")
	}

	if err := svc.SetAdminOverride(context.Background(), "u1", false); err != nil {
		t.Fatalf("disable: %v", err)
	}
	rec, _ = ss.Get("u1")
	if rec.AdminOverride {
		t.Error("expected override disabled")
	}
}
