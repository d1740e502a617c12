package payment

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	stripewebhook "github.com/stripe/stripe-go/v82/webhook"

	"github.com/recallbox/recallbox/internal/billing"
	inats "github.com/recallbox/recallbox/internal/nats"
)

const testWebhookSecret = "whsec_test_secret"

type fakeWriter struct {
	upserts []billing.Subscription
	err     error
}

func (f *fakeWriter) Upsert(_ context.Context, sub billing.Subscription) error {
	if f.err != nil {
		return f.err
	}
	f.upserts = append(f.upserts, sub)
	return nil
}

type fakePublisher struct {
	events []inats.SubscriptionEvent
}

func (f *fakePublisher) PublishSubscriptionEvent(_ context.Context, event inats.SubscriptionEvent) error {
	f.events = append(f.events, event)
	return nil
}

func signedRequest(t *testing.T, payload string) *http.Request {
	t.Helper()

	signed := stripewebhook.GenerateTestSignedPayload(&stripewebhook.UnsignedPayload{
		Payload:   []byte(payload),
		Secret:    testWebhookSecret,
		Timestamp: time.Now(),
		Scheme:    "v1",
	})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/webhook", bytes.NewReader(signed.Payload))
	req.Header.Set("Stripe-Signature", signed.Header)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestWebhookRejectsBadSignature(t *testing.T) {
	h := NewWebhookHandler(testWebhookSecret, &fakeWriter{}, &fakePublisher{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/payment/webhook", bytes.NewReader([]byte(`{}`)))
	req.Header.Set("Stripe-Signature", "t=1,v1=deadbeef")
	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestWebhookSubscriptionUpdatedUpsertsAndPublishes(t *testing.T) {
	userID := uuid.New()
	store := &fakeWriter{}
	pub := &fakePublisher{}
	h := NewWebhookHandler(testWebhookSecret, store, pub)

	payload := `{
		"id": "evt_1",
		"type": "customer.subscription.updated",
		"data": {"object": {
			"id": "sub_123",
			"customer": "cus_456",
			"status": "active",
			"cancel_at_period_end": false,
			"created": 1753980000,
			"current_period_end": 1756658400,
			"metadata": {"user_id": "` + userID.String() + `"},
			"items": {"data": [{"price": {"id": "price_789", "product": "prod_abc", "recurring": {"interval": "month"}}}]}
		}}
	}`

	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, signedRequest(t, payload))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, store.upserts, 1)
	row := store.upserts[0]
	assert.Equal(t, "sub_123", row.ID)
	assert.Equal(t, userID, row.UserID)
	assert.Equal(t, "cus_456", row.CustomerID)
	assert.Equal(t, billing.StatusActive, row.Status)
	assert.Equal(t, "price_789", row.PriceID)
	assert.Equal(t, "month", row.Interval)
	assert.Equal(t, time.Unix(1756658400, 0).UTC(), row.PeriodEnd)

	require.Len(t, pub.events, 1)
	assert.Equal(t, userID, pub.events[0].UserID)
	assert.Equal(t, "customer.subscription.updated", pub.events[0].EventType)
}

func TestWebhookSubscriptionDeletedForcesCanceled(t *testing.T) {
	userID := uuid.New()
	store := &fakeWriter{}
	h := NewWebhookHandler(testWebhookSecret, store, &fakePublisher{})

	payload := `{
		"id": "evt_2",
		"type": "customer.subscription.deleted",
		"data": {"object": {
			"id": "sub_123",
			"customer": "cus_456",
			"status": "active",
			"created": 1753980000,
			"metadata": {"user_id": "` + userID.String() + `"}
		}}
	}`

	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, signedRequest(t, payload))
	require.Equal(t, http.StatusOK, rec.Code)

	require.Len(t, store.upserts, 1)
	assert.Equal(t, billing.StatusCanceled, store.upserts[0].Status)
}

func TestWebhookCheckoutCompletedPublishesWithoutUpsert(t *testing.T) {
	userID := uuid.New()
	store := &fakeWriter{}
	pub := &fakePublisher{}
	h := NewWebhookHandler(testWebhookSecret, store, pub)

	payload := `{
		"id": "evt_3",
		"type": "checkout.session.completed",
		"data": {"object": {
			"id": "cs_1",
			"customer": "cus_456",
			"client_reference_id": "` + userID.String() + `",
			"subscription": "sub_123"
		}}
	}`

	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, signedRequest(t, payload))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Empty(t, store.upserts)
	require.Len(t, pub.events, 1)
	assert.Equal(t, "checkout_completed", pub.events[0].EventType)
	assert.Equal(t, "sub_123", pub.events[0].SubscriptionID)
}

func TestWebhookIgnoresUnknownEventAndMissingMetadata(t *testing.T) {
	store := &fakeWriter{}
	h := NewWebhookHandler(testWebhookSecret, store, &fakePublisher{})

	rec := httptest.NewRecorder()
	h.HandleWebhook(rec, signedRequest(t, `{"id":"evt_4","type":"invoice.paid","data":{"object":{}}}`))
	assert.Equal(t, http.StatusOK, rec.Code)

	// subscription event without user metadata is acknowledged, not retried
	rec = httptest.NewRecorder()
	h.HandleWebhook(rec, signedRequest(t, `{"id":"evt_5","type":"customer.subscription.updated","data":{"object":{"id":"sub_x","status":"active"}}}`))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.upserts)
}
