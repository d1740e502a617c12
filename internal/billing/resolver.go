package billing

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/recallbox/recallbox/internal/cache"
	"github.com/recallbox/recallbox/internal/config"
	"github.com/recallbox/recallbox/internal/metrics"
	"github.com/recallbox/recallbox/internal/retry"
)

// Resolver determines the current subscription for a user through a layered
// fallback chain: direct REST fetch first, then the pgx client query when the
// REST path fails or returns no row. The
// resolved value is cached until explicitly invalidated — entitlement changes
// arrive as events (checkout completion, webhook), not from polling.
//
// A non-nil result always traces back to a successfully observed remote read;
// the resolver never synthesizes a positive entitlement.
type Resolver struct {
	rest  Fetcher
	query Fetcher
	cache *cache.Store[uuid.UUID, *Subscription]
	cfg   config.MeteringConfig
}

// NewResolver creates a Resolver. rest may be nil when no REST endpoint is
// configured, in which case the query path is the only one.
func NewResolver(rest Fetcher, query Fetcher, cfg config.MeteringConfig) *Resolver {
	return &Resolver{
		rest:  rest,
		query: query,
		cache: cache.New[uuid.UUID, *Subscription](0),
		cfg:   cfg,
	}
}

// Resolve returns the user's current subscription, or nil if none could be
// confirmed. force skips the cache. Failures on both paths resolve to nil —
// the conservative answer — without caching, so the next call retries.
func (r *Resolver) Resolve(ctx context.Context, userID uuid.UUID, force bool) *Subscription {
	if !force {
		if sub, ok := r.cache.Get(userID); ok {
			return sub
		}
	}

	restEmpty := false
	if r.rest != nil {
		subs, err := r.fetch(ctx, "subscription rest fetch", r.rest, userID)
		switch {
		case err == nil && len(subs) > 0:
			metrics.EntitlementResolutionsTotal.WithLabelValues("rest").Inc()
			return r.cacheCanonical(userID, subs)
		case err == nil:
			// An empty REST result is not trusted on its own: row filtering
			// on that surface can hide rows the store still holds. The query
			// path gets the final word.
			restEmpty = true
		default:
			slog.Warn("billing: rest fetch failed, falling back to client query", "error", err, "user_id", userID)
		}
	}

	subs, err := r.fetch(ctx, "subscription query", r.query, userID)
	if err == nil {
		metrics.EntitlementResolutionsTotal.WithLabelValues("query").Inc()
		return r.cacheCanonical(userID, subs)
	}

	if restEmpty {
		// The query path is down, but the REST read did complete. A confirmed
		// empty is still a real observation, so it is safe to cache.
		slog.Warn("billing: query path failed after empty rest result", "error", err, "user_id", userID)
		metrics.EntitlementResolutionsTotal.WithLabelValues("rest").Inc()
		return r.cacheCanonical(userID, nil)
	}

	slog.Warn("billing: all subscription paths failed, treating as unsubscribed", "error", err, "user_id", userID)
	metrics.EntitlementResolutionsTotal.WithLabelValues("none").Inc()
	return nil
}

// Invalidate clears the cached value for a user; the next Resolve performs a
// full fetch. No I/O happens here.
func (r *Resolver) Invalidate(userID uuid.UUID) {
	r.cache.Invalidate(userID)
}

// InvalidateAll clears the whole cache, used when a configuration-level
// change event arrives.
func (r *Resolver) InvalidateAll() {
	r.cache.Clear()
}

func (r *Resolver) fetch(ctx context.Context, label string, f Fetcher, userID uuid.UUID) ([]Subscription, error) {
	ex := retry.New(label, retry.Policy{
		Deadline:    r.cfg.ReadDeadline,
		Retries:     0,
		BackoffBase: r.cfg.BackoffBase,
		BackoffCap:  r.cfg.BackoffCap,
	})
	return retry.Do(ctx, ex, func(ctx context.Context) ([]Subscription, error) {
		return f.FetchSubscriptions(ctx, userID)
	})
}

// cacheCanonical picks the canonical row and caches the outcome, including a
// confirmed "no subscription" so repeat checks skip the network.
func (r *Resolver) cacheCanonical(userID uuid.UUID, subs []Subscription) *Subscription {
	sub := canonical(subs)
	r.cache.Set(userID, sub)
	return sub
}

// canonical returns the row with the most recent created_at. Both access
// paths already order newest-first, but the store gives no ordering guarantee
// for historical rows, so the choice is made explicit here.
func canonical(subs []Subscription) *Subscription {
	if len(subs) == 0 {
		return nil
	}
	best := subs[0]
	for _, s := range subs[1:] {
		if s.CreatedAt.After(best.CreatedAt) {
			best = s
		}
	}
	return &best
}
