package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/loomchat/billing/internal/model"
)

// ErrVersionConflict is returned by Replace when the record changed under the
// caller. Callers reload and retry.
var ErrVersionConflict = errors.New("subscription record version conflict")

type SubscriptionStore struct {
	db *sql.DB
}

func NewSubscriptionStore(db *sql.DB) *SubscriptionStore {
	return &SubscriptionStore{db: db}
}

const subscriptionCols = `user_id, customer_id, subscription_id, status, tier, current_period_end, cancel_at_period_end, admin_override, last_event_id, last_event_seq, version, created_at, updated_at`

func scanSubscriptionRecord(scanner interface{ Scan(...any) error }) (*model.SubscriptionRecord, error) {
	var rec model.SubscriptionRecord
	var customerID, subscriptionID sql.NullString
	var periodEnd sql.NullTime
	var cancelAtPeriodEnd, adminOverride int
	var status, tier string
	err := scanner.Scan(
		&rec.UserID, &customerID, &subscriptionID, &status, &tier,
		&periodEnd, &cancelAtPeriodEnd, &adminOverride,
		&rec.LastEventID, &rec.LastEventSequence, &rec.Version,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if customerID.Valid {
		rec.CustomerID = &customerID.String
	}
	if subscriptionID.Valid {
		rec.SubscriptionID = &subscriptionID.String
	}
	if periodEnd.Valid {
		t := periodEnd.Time.UTC()
		rec.CurrentPeriodEnd = &t
	}
	rec.Status = model.Status(status)
	rec.Tier = model.Tier(tier)
	rec.CancelAtPeriodEnd = cancelAtPeriodEnd != 0
	rec.AdminOverride = adminOverride != 0
	return &rec, nil
}

// Get returns the record for the user, or nil if none exists yet.
func (s *SubscriptionStore) Get(userID string) (*model.SubscriptionRecord, error) {
	row := s.db.QueryRow(`SELECT `+subscriptionCols+` FROM subscription_records WHERE user_id = ?`, userID)
	rec, err := scanSubscriptionRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get subscription record: %w", err)
	}
	return rec, nil
}

// GetOrCreate returns the record for the user, creating the default
// none/FREE record if this is the first time we have seen them.
func (s *SubscriptionStore) GetOrCreate(userID string) (*model.SubscriptionRecord, error) {
	_, err := s.db.Exec(
		`INSERT INTO subscription_records (user_id) VALUES (?) ON CONFLICT(user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert subscription record: %w", err)
	}
	rec, err := s.Get(userID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, fmt.Errorf("subscription record missing after insert for %q", userID)
	}
	return rec, nil
}

// Replace writes the record whole, guarded by the version the caller read.
// Returns ErrVersionConflict if a concurrent writer got there first. This is
// the single write primitive for webhook ingestion and the admin override
// path alike; there is deliberately no column-level update.
func (s *SubscriptionStore) Replace(rec *model.SubscriptionRecord, expectedVersion int64) error {
	result, err := s.db.Exec(
		`UPDATE subscription_records
		 SET customer_id = ?, subscription_id = ?, status = ?, tier = ?,
		     current_period_end = ?, cancel_at_period_end = ?, admin_override = ?,
		     last_event_id = ?, last_event_seq = ?, version = version + 1,
		     updated_at = CURRENT_TIMESTAMP
		 WHERE user_id = ? AND version = ?`,
		nullableString(rec.CustomerID), nullableString(rec.SubscriptionID),
		string(rec.Status), string(rec.Tier),
		nullableTime(rec.CurrentPeriodEnd), boolInt(rec.CancelAtPeriodEnd), boolInt(rec.AdminOverride),
		rec.LastEventID, rec.LastEventSequence,
		rec.UserID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("replace subscription record: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return ErrVersionConflict
	}
	return nil
}

func nullableString(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
