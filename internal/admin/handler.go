package admin

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/recallbox/recallbox/internal/api"
	"github.com/recallbox/recallbox/internal/audit"
	"github.com/recallbox/recallbox/internal/auth"
	"github.com/recallbox/recallbox/internal/metrics"
	inats "github.com/recallbox/recallbox/internal/nats"
	"github.com/recallbox/recallbox/internal/ratelimit"
	"github.com/recallbox/recallbox/internal/users"
)

// Handler serves privileged administrative endpoints. Every operation is
// guarded by the admin flag and a per-admin in-memory rate ceiling; unlike
// the metering paths, admin guards fail closed.
type Handler struct {
	userSvc   *users.Service
	auditRepo *audit.Repository
	publisher *inats.Publisher
	limiter   *ratelimit.Limiter
}

// NewHandler creates an admin Handler.
func NewHandler(userSvc *users.Service, auditRepo *audit.Repository, publisher *inats.Publisher, limiter *ratelimit.Limiter) *Handler {
	return &Handler{
		userSvc:   userSvc,
		auditRepo: auditRepo,
		publisher: publisher,
		limiter:   limiter,
	}
}

// authorize verifies the caller is an admin and records a rate-limiter
// attempt. Returns the admin's id, or uuid.Nil after writing the error
// response.
func (h *Handler) authorize(w http.ResponseWriter, r *http.Request) uuid.UUID {
	claims := auth.GetUserClaims(r.Context())
	if claims == nil {
		api.HandleError(w, api.ErrUnauthorized)
		return uuid.Nil
	}

	adminID, err := uuid.Parse(claims.UserID)
	if err != nil {
		api.HandleError(w, api.ErrUnauthorized)
		return uuid.Nil
	}

	user, err := h.userSvc.GetByID(r.Context(), adminID)
	if err != nil {
		// cannot confirm the role, so deny
		slog.Error("loading admin user", "error", err, "user_id", adminID)
		api.HandleError(w, api.ErrForbidden)
		return uuid.Nil
	}
	if user == nil || !user.IsAdmin {
		api.HandleError(w, api.ErrForbidden)
		return uuid.Nil
	}

	if !h.limiter.Allow(adminID.String()) {
		metrics.AdminRateLimitedTotal.Inc()
		api.JSONErrorMessage(w, http.StatusTooManyRequests, "admin rate limit exceeded")
		return uuid.Nil
	}

	return adminID
}

type setRoleRequest struct {
	IsAdmin bool `json:"is_admin"`
}

// SetRole handles PUT /api/v1/admin/users/{id}/role.
func (h *Handler) SetRole(w http.ResponseWriter, r *http.Request) {
	adminID := h.authorize(w, r)
	if adminID == uuid.Nil {
		return
	}

	targetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		api.HandleError(w, api.NewBadRequestError("invalid user id"))
		return
	}

	var req setRoleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}

	if err := h.userSvc.SetAdmin(r.Context(), targetID, req.IsAdmin); err != nil {
		if errors.Is(err, users.ErrNotFound) {
			api.HandleError(w, api.ErrNotFound)
			return
		}
		slog.Error("setting admin role", "error", err, "target_id", targetID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	h.recordAudit(r, adminID, "admin_role_changed", targetID.String(),
		"is_admin set to "+strconv.FormatBool(req.IsAdmin))

	api.JSONMessage(w, http.StatusOK, "role updated")
}

// ListAudit handles GET /api/v1/admin/audit.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	adminID := h.authorize(w, r)
	if adminID == uuid.Nil {
		return
	}

	params := parseListParams(r)

	entries, total, err := h.auditRepo.List(r.Context(), params)
	if err != nil {
		slog.Error("listing audit entries", "error", err)
		api.HandleError(w, api.ErrInternalServer)
		return
	}

	api.JSONPaginated(w, http.StatusOK, entries, total, params.Page, params.PageSize)
}

func (h *Handler) recordAudit(r *http.Request, adminID uuid.UUID, eventType, resourceID, details string) {
	if h.publisher == nil {
		return
	}
	err := h.publisher.PublishAuditEvent(r.Context(), inats.AuditEvent{
		OwnerUserID:  adminID,
		EventType:    eventType,
		Severity:     "info",
		ResourceType: "user",
		ResourceID:   resourceID,
		Details:      details,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		slog.Error("publishing audit event", "error", err, "event_type", eventType)
	}
}

func parseListParams(r *http.Request) audit.ListParams {
	params := audit.DefaultListParams()

	if uid := r.URL.Query().Get("user_id"); uid != "" {
		if parsed, err := uuid.Parse(uid); err == nil {
			params.UserID = &parsed
		}
	}
	if et := r.URL.Query().Get("event_type"); et != "" {
		params.EventType = et
	}
	if sev := r.URL.Query().Get("severity"); sev != "" {
		params.Severity = sev
	}
	if p := r.URL.Query().Get("page"); p != "" {
		if page, err := strconv.Atoi(p); err == nil && page > 0 {
			params.Page = page
		}
	}
	if ps := r.URL.Query().Get("page_size"); ps != "" {
		if pageSize, err := strconv.Atoi(ps); err == nil && pageSize > 0 && pageSize <= 100 {
			params.PageSize = pageSize
		}
	}
	if from := r.URL.Query().Get("from"); from != "" {
		if t, err := time.Parse(time.RFC3339, from); err == nil {
			params.From = &t
		}
	}
	if to := r.URL.Query().Get("to"); to != "" {
		if t, err := time.Parse(time.RFC3339, to); err == nil {
			params.To = &t
		}
	}

	return params
}
