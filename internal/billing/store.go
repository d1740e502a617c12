package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Fetcher returns a user's subscription rows, most recent first. The resolver
// layers two independent implementations: the REST client and this pgx store.
type Fetcher interface {
	FetchSubscriptions(ctx context.Context, userID uuid.UUID) ([]Subscription, error)
}

// Store is the pgx-backed subscription access path. It also carries the
// upsert used by the payment webhook.
type Store struct {
	pool *pgxpool.Pool

	logMissingTable sync.Once
}

// NewStore creates a pgx-backed Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// FetchSubscriptions returns all subscription rows for a user ordered by
// created_at descending, so the first row is the canonical current one.
func (s *Store) FetchSubscriptions(ctx context.Context, userID uuid.UUID) ([]Subscription, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, user_id, customer_id, status, price_id, product_id, billing_interval,
		        cancel_at_period_end, created_at, current_period_end, trial_end
		 FROM subscriptions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`, userID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "42P01" {
			s.logMissingTable.Do(func() {
				slog.Error("billing: subscriptions table missing, query path disabled")
			})
		}
		return nil, fmt.Errorf("querying subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []Subscription
	for rows.Next() {
		var sub Subscription
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.CustomerID, &sub.Status, &sub.PriceID, &sub.ProductID,
			&sub.Interval, &sub.CancelAtPeriodEnd, &sub.CreatedAt, &sub.PeriodEnd, &sub.TrialEnd); err != nil {
			return nil, fmt.Errorf("scanning subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

// Upsert writes a subscription row keyed by the provider's subscription id.
func (s *Store) Upsert(ctx context.Context, sub Subscription) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO subscriptions
		   (id, user_id, customer_id, status, price_id, product_id, billing_interval,
		    cancel_at_period_end, created_at, current_period_end, trial_end)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   customer_id = EXCLUDED.customer_id,
		   status = EXCLUDED.status,
		   price_id = EXCLUDED.price_id,
		   product_id = EXCLUDED.product_id,
		   billing_interval = EXCLUDED.billing_interval,
		   cancel_at_period_end = EXCLUDED.cancel_at_period_end,
		   current_period_end = EXCLUDED.current_period_end,
		   trial_end = EXCLUDED.trial_end`,
		sub.ID, sub.UserID, sub.CustomerID, sub.Status, sub.PriceID, sub.ProductID, sub.Interval,
		sub.CancelAtPeriodEnd, sub.CreatedAt, sub.PeriodEnd, sub.TrialEnd)
	if err != nil {
		return fmt.Errorf("upserting subscription: %w", err)
	}
	return nil
}
