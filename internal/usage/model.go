package usage

import (
	"time"

	"github.com/google/uuid"
)

// Record matches the usage_records table schema. Exactly one record is active
// per user per calendar-month period; count never decreases within a period.
type Record struct {
	UserID      uuid.UUID `json:"user_id"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
	Count       int       `json:"count"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Period is a UTC calendar-month billing window, [firstOfMonth, lastOfMonth].
type Period struct {
	Start time.Time
	End   time.Time
}

// CurrentPeriod returns the billing period containing now.
func CurrentPeriod(now time.Time) Period {
	now = now.UTC()
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Start: start,
		End:   start.AddDate(0, 1, -1),
	}
}

// Status is the API response showing current usage against the allowance.
type Status struct {
	Count       int       `json:"count"`
	Allowance   int       `json:"allowance"`
	PeriodStart time.Time `json:"period_start"`
	PeriodEnd   time.Time `json:"period_end"`
}
