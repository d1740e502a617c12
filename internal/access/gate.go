// Package access composes entitlement resolution and usage metering into a
// single "may this user perform the metered action" decision.
package access

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/recallbox/recallbox/internal/billing"
	"github.com/recallbox/recallbox/internal/metrics"
	"github.com/recallbox/recallbox/internal/usage"
)

// Decision reasons.
const (
	ReasonEntitled        = "entitled"
	ReasonWithinAllowance = "within_allowance"
	ReasonLimitReached    = "limit_reached"
)

// Decision is the outcome of an access check.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason"`
}

// Gate answers access checks. It is read-only: recording the metered action
// is an explicit, separate step taken by the caller after the action actually
// runs, so a denied or aborted action never consumes allowance.
type Gate struct {
	resolver  *billing.Resolver
	counter   *usage.Counter
	allowance int
	now       func() time.Time
}

// NewGate creates a Gate with the configured free allowance.
func NewGate(resolver *billing.Resolver, counter *usage.Counter, allowance int) *Gate {
	return &Gate{
		resolver:  resolver,
		counter:   counter,
		allowance: allowance,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// NewGateWithClock creates a Gate with an injected clock.
func NewGateWithClock(resolver *billing.Resolver, counter *usage.Counter, allowance int, now func() time.Time) *Gate {
	g := NewGate(resolver, counter, allowance)
	g.now = now
	return g
}

// Check decides whether userID may perform the metered action now. Entitled
// users are always allowed; everyone else is measured against the allowance.
func (g *Gate) Check(ctx context.Context, userID uuid.UUID) Decision {
	sub := g.resolver.Resolve(ctx, userID, false)
	if sub.Entitled(g.now()) {
		return g.decide(Decision{Allowed: true, Reason: ReasonEntitled})
	}

	if g.counter.Count(ctx, userID) < g.allowance {
		return g.decide(Decision{Allowed: true, Reason: ReasonWithinAllowance})
	}
	return g.decide(Decision{Allowed: false, Reason: ReasonLimitReached})
}

func (g *Gate) decide(d Decision) Decision {
	metrics.AccessDecisionsTotal.WithLabelValues(d.Reason).Inc()
	return d
}
