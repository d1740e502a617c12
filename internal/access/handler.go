package access

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/recallbox/recallbox/internal/api"
	"github.com/recallbox/recallbox/internal/auth"
)

// Handler exposes the access decision so the client can decide whether to
// surface the paywall before attempting a generation.
type Handler struct {
	gate *Gate
}

// NewHandler creates an access Handler.
func NewHandler(gate *Gate) *Handler {
	return &Handler{gate: gate}
}

// Check returns the current access decision for the authenticated user.
func (h *Handler) Check(w http.ResponseWriter, r *http.Request) {
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

	api.JSON(w, http.StatusOK, h.gate.Check(r.Context(), userID))
}
