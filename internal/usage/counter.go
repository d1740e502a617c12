package usage

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/recallbox/recallbox/internal/cache"
	"github.com/recallbox/recallbox/internal/config"
	"github.com/recallbox/recallbox/internal/metrics"
	"github.com/recallbox/recallbox/internal/retry"
)

// Counter tracks metered-action counts for the current billing period. Reads
// are served from a short trust-window cache; writes prefer the atomic remote
// increment and fall back to a non-atomic read-modify-write.
//
// Metering must never block the product: every read failure degrades to 0
// ("treat as unused") and increment failures keep the optimistic cache value.
type Counter struct {
	store Store
	cache *cache.Store[uuid.UUID, int]
	cfg   config.MeteringConfig
	now   func() time.Time
}

// NewCounter creates a Counter with its own cache.
func NewCounter(store Store, cfg config.MeteringConfig) *Counter {
	return &Counter{
		store: store,
		cache: cache.New[uuid.UUID, int](cfg.UsageTrustWindow),
		cfg:   cfg,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// NewCounterWithClock creates a Counter with an injected clock for both the
// cache trust window and billing-period calculation.
func NewCounterWithClock(store Store, cfg config.MeteringConfig, now func() time.Time) *Counter {
	return &Counter{
		store: store,
		cache: cache.NewWithClock[uuid.UUID, int](cfg.UsageTrustWindow, now),
		cfg:   cfg,
		now:   now,
	}
}

// Count returns the user's metered-action count for the current period.
func (c *Counter) Count(ctx context.Context, userID uuid.UUID) int {
	if v, ok := c.cache.Get(userID); ok {
		return v
	}

	// Preferred path: atomic remote read, no retries — a read need not retry
	// aggressively, the aggregation fallback is right behind it.
	ex := retry.New("usage count", c.readPolicy())
	count, err := retry.Do(ctx, ex, func(ctx context.Context) (int, error) {
		return c.store.CurrentCount(ctx, userID)
	})
	if err == nil {
		c.cache.Set(userID, count)
		return count
	}
	if errors.Is(err, retry.ErrCancelled) || ctx.Err() != nil {
		return 0
	}

	slog.Warn("usage: atomic count failed, falling back to aggregation", "error", err, "user_id", userID)
	metrics.UsageFallbacksTotal.WithLabelValues("count").Inc()

	p := CurrentPeriod(c.now())
	ex = retry.New("usage aggregation", c.readPolicy())
	count, err = retry.Do(ctx, ex, func(ctx context.Context) (int, error) {
		return c.store.SumForPeriod(ctx, userID, p)
	})
	if err == nil {
		c.cache.Set(userID, count)
		return count
	}

	slog.Warn("usage: all count paths failed, treating period as unused", "error", err, "user_id", userID)
	return 0
}

// Increment records one metered action and returns the new count. The atomic
// remote procedure is the only point of true serialization; the fallback path
// accepts a lost-update race under concurrent same-user writers.
func (c *Counter) Increment(ctx context.Context, userID uuid.UUID) int {
	ex := retry.New("usage increment", c.writePolicy())
	count, err := retry.Do(ctx, ex, func(ctx context.Context) (int, error) {
		return c.store.AtomicIncrement(ctx, userID)
	})
	if err == nil {
		c.cache.Set(userID, count)
		metrics.UsageIncrementsTotal.WithLabelValues("atomic").Inc()
		return count
	}
	if errors.Is(err, retry.ErrCancelled) {
		return 0
	}

	slog.Warn("usage: atomic increment failed, using read-modify-write", "error", err, "user_id", userID)
	metrics.UsageFallbacksTotal.WithLabelValues("increment").Inc()

	next := c.Count(ctx, userID) + 1

	// Optimistic cache update before the write confirms, so rapid same-process
	// calls are not serialized behind network latency. On write failure the
	// entry stays: a cache value below reality is the unsafe direction for a
	// paywall check.
	c.cache.Set(userID, next)

	p := CurrentPeriod(c.now())
	rec := Record{UserID: userID, PeriodStart: p.Start, PeriodEnd: p.End, Count: next}

	ex = retry.New("usage fallback write", c.writePolicy())
	if _, err := retry.Do(ctx, ex, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, c.store.Upsert(ctx, rec)
	}); err != nil {
		slog.Warn("usage: fallback write failed, optimistic cache value retained", "error", err, "user_id", userID)
	} else {
		metrics.UsageIncrementsTotal.WithLabelValues("fallback").Inc()
	}
	return next
}

// Invalidate drops the cached count for a user.
func (c *Counter) Invalidate(userID uuid.UUID) {
	c.cache.Invalidate(userID)
}

func (c *Counter) readPolicy() retry.Policy {
	return retry.Policy{
		Deadline:    c.cfg.ReadDeadline,
		Retries:     0,
		BackoffBase: c.cfg.BackoffBase,
		BackoffCap:  c.cfg.BackoffCap,
	}
}

func (c *Counter) writePolicy() retry.Policy {
	return retry.Policy{
		Deadline:    c.cfg.WriteDeadline,
		Retries:     c.cfg.WriteRetries,
		BackoffBase: c.cfg.BackoffBase,
		BackoffCap:  c.cfg.BackoffCap,
	}
}
