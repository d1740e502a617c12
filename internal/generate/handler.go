package generate

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/recallbox/recallbox/internal/access"
	"github.com/recallbox/recallbox/internal/api"
	"github.com/recallbox/recallbox/internal/auth"
	"github.com/recallbox/recallbox/internal/llm"
	"github.com/recallbox/recallbox/internal/metrics"
	"github.com/recallbox/recallbox/internal/usage"
)

// Handler serves the metered card-generation endpoint. Every successful
// generation counts one metered action against the user's allowance.
type Handler struct {
	gate     *access.Gate
	counter  *usage.Counter
	provider llm.Provider
	history  *History
	validate *validator.Validate
}

// NewHandler creates a generation Handler.
func NewHandler(gate *access.Gate, counter *usage.Counter, provider llm.Provider, history *History) *Handler {
	return &Handler{
		gate:     gate,
		counter:  counter,
		provider: provider,
		history:  history,
		validate: validator.New(),
	}
}

type GenerateRequest struct {
	Prompt string `json:"prompt" validate:"required,max=8192"`
}

type GenerateResponse struct {
	Content string `json:"content"`
	Count   int    `json:"count"`
}

type paywallResponse struct {
	Error  string `json:"error"`
	Reason string `json:"reason"`
}

// Generate handles POST /api/v1/generate.
func (h *Handler) Generate(w http.ResponseWriter, r *http.Request) {
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

	var req GenerateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		api.HandleError(w, api.ErrBadRequest)
		return
	}
	if err := h.validate.Struct(req); err != nil {
		api.HandleError(w, api.NewValidationError(err.Error()))
		return
	}

	decision := h.gate.Check(r.Context(), userID)
	if !decision.Allowed {
		metrics.GenerationsTotal.WithLabelValues("denied").Inc()
		api.JSON(w, http.StatusPaymentRequired, paywallResponse{
			Error:  "monthly allowance exhausted",
			Reason: decision.Reason,
		})
		return
	}

	history, err := h.history.Recent(r.Context(), userID)
	if err != nil {
		// degraded context, not a failure; generate without history
		slog.Warn("loading conversation history", "error", err, "user_id", userID)
		history = nil
	}

	content, err := h.provider.GenerateResponse(r.Context(), req.Prompt, history)
	if err != nil {
		metrics.GenerationsTotal.WithLabelValues("error").Inc()
		slog.Error("generating content", "error", err, "provider", h.provider.Name(), "user_id", userID)
		api.JSONErrorMessage(w, http.StatusBadGateway, "generation failed")
		return
	}

	// Count only successful generations. The increment survives offline
	// metering via the counter's fallback path.
	count := h.counter.Increment(r.Context(), userID)

	h.appendTurns(r, userID, req.Prompt, content)

	metrics.GenerationsTotal.WithLabelValues("ok").Inc()
	api.JSON(w, http.StatusOK, GenerateResponse{Content: content, Count: count})
}

// ClearHistory handles DELETE /api/v1/generate/history.
func (h *Handler) ClearHistory(w http.ResponseWriter, r *http.Request) {
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

	if err := h.history.Clear(r.Context(), userID); err != nil {
		slog.Error("clearing conversation history", "error", err, "user_id", userID)
		api.HandleError(w, api.ErrInternalServer)
		return
	}
	api.JSONMessage(w, http.StatusOK, "history cleared")
}

func (h *Handler) appendTurns(r *http.Request, userID uuid.UUID, prompt, content string) {
	for _, msg := range []llm.Message{
		{Role: "user", Content: prompt},
		{Role: "assistant", Content: content},
	} {
		if err := h.history.Append(r.Context(), userID, msg); err != nil {
			slog.Warn("recording conversation turn", "error", err, "user_id", userID)
			return
		}
	}
}
