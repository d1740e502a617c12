package nats

import (
	"time"

	"github.com/google/uuid"
)

// FetchTimeout is the default timeout for batch fetching messages from consumers.
const FetchTimeout = 2 * time.Second

// Stream names.
const (
	StreamEvents = "RECALLBOX_EVENTS"
)

// Subject constants.
const (
	SubjectSubscriptionEvent = "recallbox.events.subscription"
	SubjectAuditEvent        = "recallbox.events.audit"
)

// SubscriptionEvent is published when a user's subscription state changes
// (checkout completion, provider webhook). Consumers drop cached entitlement
// for the user so the next resolve performs a full fetch.
type SubscriptionEvent struct {
	UserID         uuid.UUID `json:"user_id"`
	SubscriptionID string    `json:"subscription_id"`
	Status         string    `json:"status"`
	EventType      string    `json:"event_type"` // e.g. "checkout_completed", "subscription_updated"
	Timestamp      time.Time `json:"timestamp"`
}

// AuditEvent is published for compliance/audit logging.
type AuditEvent struct {
	OwnerUserID  uuid.UUID `json:"owner_user_id"`
	EventType    string    `json:"event_type"`
	Severity     string    `json:"severity"` // info, warn, error
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	Details      string    `json:"details"`
	Timestamp    time.Time `json:"timestamp"`
}
