package billing

import (
	"time"

	"github.com/google/uuid"
)

// Subscription statuses mirror the payment provider's lifecycle.
const (
	StatusActive   = "active"
	StatusTrialing = "trialing"
	StatusPastDue  = "past_due"
	StatusCanceled = "canceled"
	StatusInactive = "inactive"
)

// Subscription matches the subscriptions table schema. The provider's webhook
// writes these rows; this service only ever reads them, apart from the
// webhook handler itself.
type Subscription struct {
	ID                string     `json:"id"`
	UserID            uuid.UUID  `json:"user_id"`
	CustomerID        string     `json:"customer_id"`
	Status            string     `json:"status"`
	PriceID           string     `json:"price_id"`
	ProductID         string     `json:"product_id"`
	Interval          string     `json:"billing_interval"`
	CancelAtPeriodEnd bool       `json:"cancel_at_period_end"`
	CreatedAt         time.Time  `json:"created_at"`
	PeriodEnd         time.Time  `json:"current_period_end"`
	TrialEnd          *time.Time `json:"trial_end,omitempty"`
}

// Entitled reports whether the subscription grants paid-tier access at the
// given instant: active or trialing, and not past a scheduled cancellation.
func (s *Subscription) Entitled(now time.Time) bool {
	if s == nil {
		return false
	}
	if s.Status != StatusActive && s.Status != StatusTrialing {
		return false
	}
	if s.CancelAtPeriodEnd && !s.PeriodEnd.After(now) {
		return false
	}
	return true
}
