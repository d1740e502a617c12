package billing

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/nats-io/nats.go/jetstream"

	inats "github.com/recallbox/recallbox/internal/nats"
)

// Invalidator listens for subscription change events and drops the cached
// entitlement for the affected user, so the next resolve performs a full
// fetch instead of serving a stale subscription.
type Invalidator struct {
	resolver    *Resolver
	consumerMgr *inats.ConsumerManager
}

// NewInvalidator creates a new subscription cache Invalidator.
func NewInvalidator(resolver *Resolver, consumerMgr *inats.ConsumerManager) *Invalidator {
	return &Invalidator{
		resolver:    resolver,
		consumerMgr: consumerMgr,
	}
}

// Start begins the consume loop. Blocks until ctx is cancelled.
func (i *Invalidator) Start(ctx context.Context) error {
	consumer, err := i.consumerMgr.EnsureConsumer(ctx, inats.StreamEvents, "entitlement-invalidator", inats.SubjectSubscriptionEvent)
	if err != nil {
		return err
	}

	slog.Info("entitlement invalidator started", "consumer", "entitlement-invalidator")

	for {
		msgs, err := consumer.Fetch(10, jetstream.FetchMaxWait(inats.FetchTimeout))
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			slog.Debug("entitlement invalidator: fetching events", "error", err)
			continue
		}

		for msg := range msgs.Messages() {
			i.handleEvent(msg)
		}

		if ctx.Err() != nil {
			return nil
		}
	}
}

func (i *Invalidator) handleEvent(msg jetstream.Msg) {
	var event inats.SubscriptionEvent
	if err := json.Unmarshal(msg.Data(), &event); err != nil {
		slog.Error("entitlement invalidator: unmarshaling event", "error", err)
		_ = msg.Nak()
		return
	}

	i.resolver.Invalidate(event.UserID)
	_ = msg.Ack()

	slog.Debug("entitlement invalidator: dropped cached entitlement",
		"user_id", event.UserID,
		"event_type", event.EventType,
		"status", event.Status,
	)
}
