package payment

import (
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/recallbox/recallbox/internal/api"
	"github.com/recallbox/recallbox/internal/auth"
	"github.com/recallbox/recallbox/internal/billing"
)

// Handler exposes the checkout and billing portal endpoints.
type Handler struct {
	service  *Service
	resolver *billing.Resolver
}

// NewHandler creates a payment Handler.
func NewHandler(service *Service, resolver *billing.Resolver) *Handler {
	return &Handler{service: service, resolver: resolver}
}

type sessionResponse struct {
	URL string `json:"url"`
}

// CreateCheckout handles POST /api/v1/payment/checkout.
func (h *Handler) CreateCheckout(w http.ResponseWriter, r *http.Request) {
	if !h.service.Enabled() {
		api.JSONErrorMessage(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}

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

	url, err := h.service.CreateCheckoutURL(userID, claims.Email)
	if err != nil {
		slog.Error("creating checkout session", "error", err, "user_id", userID)
		api.JSONErrorMessage(w, http.StatusBadGateway, "creating checkout session")
		return
	}

	api.JSON(w, http.StatusOK, sessionResponse{URL: url})
}

// CreatePortal handles POST /api/v1/payment/portal.
func (h *Handler) CreatePortal(w http.ResponseWriter, r *http.Request) {
	if !h.service.Enabled() {
		api.JSONErrorMessage(w, http.StatusServiceUnavailable, "billing is not configured")
		return
	}

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

	sub := h.resolver.Resolve(r.Context(), userID, false)
	if sub == nil || sub.CustomerID == "" {
		api.JSONErrorMessage(w, http.StatusNotFound, "no subscription on record")
		return
	}

	url, err := h.service.CreatePortalURL(sub.CustomerID)
	if err != nil {
		slog.Error("creating portal session", "error", err, "user_id", userID)
		api.JSONErrorMessage(w, http.StatusBadGateway, "creating portal session")
		return
	}

	api.JSON(w, http.StatusOK, sessionResponse{URL: url})
}
