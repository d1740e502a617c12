package billing

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/recallbox/recallbox/internal/api"
	"github.com/recallbox/recallbox/internal/auth"
)

// Handler provides HTTP handlers for subscription-status endpoints.
type Handler struct {
	resolver *Resolver
}

// NewHandler creates a billing Handler.
func NewHandler(resolver *Resolver) *Handler {
	return &Handler{resolver: resolver}
}

type statusResponse struct {
	Subscribed   bool          `json:"subscribed"`
	Subscription *Subscription `json:"subscription,omitempty"`
}

// GetSubscription returns the authenticated user's current subscription.
// A `refresh=true` query skips the cache, used after returning from checkout.
func (h *Handler) GetSubscription(w http.ResponseWriter, r *http.Request) {
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

	force := r.URL.Query().Get("refresh") == "true"
	sub := h.resolver.Resolve(r.Context(), userID, force)

	api.JSON(w, http.StatusOK, statusResponse{
		Subscribed:   sub.Entitled(time.Now().UTC()),
		Subscription: sub,
	})
}
