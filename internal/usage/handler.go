package usage

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/recallbox/recallbox/internal/api"
	"github.com/recallbox/recallbox/internal/auth"
)

// Handler provides HTTP handlers for usage endpoints.
type Handler struct {
	counter   *Counter
	allowance int
	now       func() time.Time
}

// NewHandler creates a usage Handler.
func NewHandler(counter *Counter, allowance int) *Handler {
	return &Handler{
		counter:   counter,
		allowance: allowance,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GetStatus returns the authenticated user's usage for the current period.
func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return
	}

	p := CurrentPeriod(h.now())
	api.JSON(w, http.StatusOK, Status{
		Count:       h.counter.Count(r.Context(), userID),
		Allowance:   h.allowance,
		PeriodStart: p.Start,
		PeriodEnd:   p.End,
	})
}
