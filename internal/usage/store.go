package usage

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

// Store is the usage persistence contract. The atomic procedures serialize
// concurrent writers server-side; the period-scoped query and upsert are the
// non-atomic fallback paths.
type Store interface {
	// CurrentCount calls the atomic usage_current_count procedure.
	CurrentCount(ctx context.Context, userID uuid.UUID) (int, error)
	// AtomicIncrement calls the atomic usage_increment procedure and returns
	// the new authoritative count.
	AtomicIncrement(ctx context.Context, userID uuid.UUID) (int, error)
	// SumForPeriod aggregates usage_records rows for the given period.
	SumForPeriod(ctx context.Context, userID uuid.UUID, p Period) (int, error)
	// Upsert writes a record keyed by (user_id, period_start, period_end).
	Upsert(ctx context.Context, rec Record) error
}

type postgresStore struct {
	pool *pgxpool.Pool

	// Missing-schema failures are logged once per process, not per call.
	logMissingProc  sync.Once
	logMissingTable sync.Once
}

// NewStore creates a pgx-backed Store.
func NewStore(pool *pgxpool.Pool) Store {
	return &postgresStore{pool: pool}
}

func (s *postgresStore) CurrentCount(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT usage_current_count($1)`, userID).Scan(&count)
	if err != nil {
		if isUndefinedFunction(err) {
			s.logMissingProc.Do(func() {
				slog.Error("usage: usage_current_count procedure missing, atomic reads disabled")
			})
		}
		return 0, fmt.Errorf("calling usage_current_count: %w", err)
	}
	return count, nil
}

func (s *postgresStore) AtomicIncrement(ctx context.Context, userID uuid.UUID) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx, `SELECT usage_increment($1)`, userID).Scan(&count)
	if err != nil {
		if isUndefinedFunction(err) {
			s.logMissingProc.Do(func() {
				slog.Error("usage: usage_increment procedure missing, atomic increments disabled")
			})
		}
		return 0, fmt.Errorf("calling usage_increment: %w", err)
	}
	return count, nil
}

func (s *postgresStore) SumForPeriod(ctx context.Context, userID uuid.UUID, p Period) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(count), 0)
		 FROM usage_records
		 WHERE user_id = $1 AND period_start = $2 AND period_end = $3`,
		userID, p.Start, p.End).Scan(&count)
	if err != nil {
		if isUndefinedTable(err) {
			s.logMissingTable.Do(func() {
				slog.Error("usage: usage_records table missing, aggregation reads disabled")
			})
		}
		return 0, fmt.Errorf("aggregating usage records: %w", err)
	}
	return count, nil
}

func (s *postgresStore) Upsert(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO usage_records (user_id, period_start, period_end, count, updated_at)
		 VALUES ($1, $2, $3, $4, NOW())
		 ON CONFLICT (user_id, period_start, period_end)
		 DO UPDATE SET count = EXCLUDED.count, updated_at = NOW()`,
		rec.UserID, rec.PeriodStart, rec.PeriodEnd, rec.Count)
	if err != nil {
		return fmt.Errorf("upserting usage record: %w", err)
	}
	return nil
}

func isUndefinedFunction(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42883"
}

func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "42P01"
}
