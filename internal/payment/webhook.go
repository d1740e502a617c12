package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	stripelib "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/webhook"

	"github.com/recallbox/recallbox/internal/api"
	"github.com/recallbox/recallbox/internal/billing"
	inats "github.com/recallbox/recallbox/internal/nats"
)

const webhookBodyLimit = 1024 * 1024 // 1 MiB

// SubscriptionWriter persists subscription rows from webhook events.
type SubscriptionWriter interface {
	Upsert(ctx context.Context, sub billing.Subscription) error
}

// EventPublisher announces subscription changes so caches get invalidated.
type EventPublisher interface {
	PublishSubscriptionEvent(ctx context.Context, event inats.SubscriptionEvent) error
}

// WebhookHandler verifies Stripe webhook signatures, persists subscription
// state and publishes change events for entitlement cache invalidation.
type WebhookHandler struct {
	secret    string
	store     SubscriptionWriter
	publisher EventPublisher
	now       func() time.Time
}

// NewWebhookHandler creates a Stripe webhook handler.
func NewWebhookHandler(secret string, store SubscriptionWriter, publisher EventPublisher) *WebhookHandler {
	return &WebhookHandler{
		secret:    secret,
		store:     store,
		publisher: publisher,
		now:       time.Now,
	}
}

// stripeCheckoutSession is the slice of the checkout.session object we need.
type stripeCheckoutSession struct {
	ID                string `json:"id"`
	Customer          string `json:"customer"`
	ClientReferenceID string `json:"client_reference_id"`
	Subscription      string `json:"subscription"`
}

// stripeSubscription is the slice of the subscription object we need.
type stripeSubscription struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Status            string            `json:"status"`
	CancelAtPeriodEnd bool              `json:"cancel_at_period_end"`
	Created           int64             `json:"created"`
	CurrentPeriodEnd  int64             `json:"current_period_end"`
	TrialEnd          int64             `json:"trial_end"`
	Metadata          map[string]string `json:"metadata"`
	Items             struct {
		Data []struct {
			CurrentPeriodEnd int64 `json:"current_period_end"`
			Price            struct {
				ID        string `json:"id"`
				Product   string `json:"product"`
				Recurring struct {
					Interval string `json:"interval"`
				} `json:"recurring"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

// HandleWebhook handles POST /api/v1/payment/webhook.
func (h *WebhookHandler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	if h.secret == "" {
		api.JSONErrorMessage(w, http.StatusServiceUnavailable, "webhook secret not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, webhookBodyLimit)
	payload, err := io.ReadAll(r.Body)
	if err != nil {
		api.JSONErrorMessage(w, http.StatusBadRequest, "reading request body")
		return
	}

	event, err := webhook.ConstructEventWithOptions(payload, r.Header.Get("Stripe-Signature"), h.secret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		api.JSONErrorMessage(w, http.StatusBadRequest, "invalid signature")
		return
	}

	if err := h.handleEvent(r.Context(), &event); err != nil {
		slog.Error("processing stripe webhook", "error", err, "event_id", event.ID, "type", event.Type)
		api.JSONErrorMessage(w, http.StatusInternalServerError, "processing failed")
		return
	}

	api.JSON(w, http.StatusOK, map[string]bool{"received": true})
}

func (h *WebhookHandler) handleEvent(ctx context.Context, event *stripelib.Event) error {
	switch event.Type {
	case "checkout.session.completed":
		var session stripeCheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
			return fmt.Errorf("decoding checkout session: %w", err)
		}
		return h.handleCheckoutCompleted(ctx, session)

	case "customer.subscription.created", "customer.subscription.updated", "customer.subscription.deleted":
		var sub stripeSubscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return fmt.Errorf("decoding subscription: %w", err)
		}
		return h.handleSubscriptionChange(ctx, string(event.Type), sub)

	default:
		slog.Debug("ignoring stripe webhook event", "type", event.Type, "event_id", event.ID)
		return nil
	}
}

func (h *WebhookHandler) handleCheckoutCompleted(ctx context.Context, session stripeCheckoutSession) error {
	userID, err := uuid.Parse(session.ClientReferenceID)
	if err != nil {
		slog.Warn("checkout session without usable client reference", "session_id", session.ID)
		return nil
	}

	// The subscription row arrives via customer.subscription.created; here we
	// only kick the entitlement cache so the user sees paid access promptly.
	return h.publishChange(ctx, userID, session.Subscription, billing.StatusActive, "checkout_completed")
}

func (h *WebhookHandler) handleSubscriptionChange(ctx context.Context, eventType string, sub stripeSubscription) error {
	userID, err := uuid.Parse(sub.Metadata["user_id"])
	if err != nil {
		slog.Warn("subscription event without user metadata", "subscription_id", sub.ID, "type", eventType)
		return nil
	}

	row := billing.Subscription{
		ID:                sub.ID,
		UserID:            userID,
		CustomerID:        sub.Customer,
		Status:            sub.Status,
		CancelAtPeriodEnd: sub.CancelAtPeriodEnd,
		CreatedAt:         time.Unix(sub.Created, 0).UTC(),
	}
	if eventType == "customer.subscription.deleted" {
		row.Status = billing.StatusCanceled
	}

	periodEnd := sub.CurrentPeriodEnd
	if len(sub.Items.Data) > 0 {
		item := sub.Items.Data[0]
		row.PriceID = item.Price.ID
		row.ProductID = item.Price.Product
		row.Interval = item.Price.Recurring.Interval
		// newer API versions report the period end on the item
		if periodEnd == 0 {
			periodEnd = item.CurrentPeriodEnd
		}
	}
	if periodEnd > 0 {
		row.PeriodEnd = time.Unix(periodEnd, 0).UTC()
	}
	if sub.TrialEnd > 0 {
		trialEnd := time.Unix(sub.TrialEnd, 0).UTC()
		row.TrialEnd = &trialEnd
	}

	if err := h.store.Upsert(ctx, row); err != nil {
		return fmt.Errorf("persisting subscription %s: %w", sub.ID, err)
	}

	return h.publishChange(ctx, userID, sub.ID, row.Status, eventType)
}

func (h *WebhookHandler) publishChange(ctx context.Context, userID uuid.UUID, subscriptionID, status, eventType string) error {
	if h.publisher == nil {
		return nil
	}
	err := h.publisher.PublishSubscriptionEvent(ctx, inats.SubscriptionEvent{
		UserID:         userID,
		SubscriptionID: subscriptionID,
		Status:         status,
		EventType:      eventType,
		Timestamp:      h.now().UTC(),
	})
	if err != nil {
		// the row is persisted; a missed invalidation only delays freshness
		slog.Error("publishing subscription change", "error", err, "user_id", userID)
	}
	return nil
}
