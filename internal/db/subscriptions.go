package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Subscription statuses that grant drafting access.
const (
	SubscriptionActive   = "active"
	SubscriptionTrialing = "trialing"
)

// Subscription is a row of org_subscriptions.
type Subscription struct {
	OrgID            uuid.UUID
	Status           string
	CurrentPeriodEnd *time.Time
}

// Active reports whether the subscription grants access at now.
func (s *Subscription) Active(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != SubscriptionActive && s.Status != SubscriptionTrialing {
		return false
	}
	return s.CurrentPeriodEnd == nil || s.CurrentPeriodEnd.After(now)
}

// GetSubscription returns the organization's subscription, or nil.
func (db *DB) GetSubscription(ctx context.Context, orgID uuid.UUID) (*Subscription, error) {
	s := Subscription{OrgID: orgID}
	err := db.pool.QueryRow(ctx,
		`SELECT status, current_period_end FROM org_subscriptions WHERE org_id = $1`,
		orgID,
	).Scan(&s.Status, &s.CurrentPeriodEnd)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get subscription: %w", err)
	}
	return &s, nil
}

// HasActiveSubscription reports whether the organization may draft replies.
func (db *DB) HasActiveSubscription(ctx context.Context, orgID uuid.UUID) (bool, error) {
	s, err := db.GetSubscription(ctx, orgID)
	if err != nil {
		return false, err
	}
	return s.Active(time.Now()), nil
}

// UpsertSubscription creates or replaces a subscription row.
func (db *DB) UpsertSubscription(ctx context.Context, s Subscription) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO org_subscriptions (org_id, status, current_period_end)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (org_id) DO UPDATE SET status = $2, current_period_end = $3`,
		s.OrgID, s.Status, s.CurrentPeriodEnd,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert subscription: %w", err)
	}
	return nil
}
