// Package webhook fans out content-lifecycle events to registered external
// endpoints: the Dispatcher enqueues one delivery job per matching
// subscription, and the delivery worker signs, posts and records each
// attempt. Broker delivery is at-least-once, so subscribers may observe
// duplicate deliveries; that is inherent to the broker semantics and is not
// corrected here.
package webhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/contentpipe/contentpipe/pkg/contentpipe"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/logger"
	"github.com/contentpipe/contentpipe/pkg/contentpipe/queue"
)

// TopicDeliver is the broker topic for webhook delivery jobs.
const TopicDeliver = "webhook.deliver"

// Payload is the wire payload delivered to subscribers. The field order here
// is the serialization order; the signature is computed over these exact
// bytes.
type Payload struct {
	Event     string                 `json:"event"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// DeliveryJob is the broker payload for one delivery to one subscription.
type DeliveryJob struct {
	SubscriptionID uuid.UUID `json:"subscriptionId"`
	Payload        Payload   `json:"payload"`
}

// SubscriptionSource looks up delivery targets. Satisfied by
// contentpipe.Repository.
type SubscriptionSource interface {
	GetSubscription(ctx context.Context, id uuid.UUID) (*contentpipe.WebhookSubscription, error)
	ListActiveSubscriptionsForEvent(ctx context.Context, eventType contentpipe.EventType) ([]*contentpipe.WebhookSubscription, error)
}

// Dispatcher matches lifecycle events against active subscriptions and
// enqueues delivery jobs. It implements contentpipe.EventSink, so it plugs
// straight into the service.
type Dispatcher struct {
	subs    SubscriptionSource
	broker  queue.Queue
	log     *logger.Logger
	enabled bool
}

// NewDispatcher creates a webhook dispatcher.
func NewDispatcher(subs SubscriptionSource, broker queue.Queue, log *logger.Logger) *Dispatcher {
	return &Dispatcher{
		subs:    subs,
		broker:  broker,
		log:     log.WithComponent("webhook"),
		enabled: true,
	}
}

// SetEnabled toggles the subsystem at the deployment level.
func (d *Dispatcher) SetEnabled(enabled bool) {
	d.enabled = enabled
}

// Publish implements contentpipe.EventSink.
func (d *Dispatcher) Publish(ctx context.Context, event contentpipe.Event) error {
	return d.Trigger(ctx, event.Type, event.Timestamp, event.Data)
}

// Trigger enqueues one delivery job per active subscription covering the
// event type. No matching subscriptions is a no-op, not an error.
func (d *Dispatcher) Trigger(ctx context.Context, eventType contentpipe.EventType, timestamp time.Time, data map[string]interface{}) error {
	if !d.enabled {
		return nil
	}
	if !contentpipe.ValidEventType(eventType) {
		return fmt.Errorf("%w: unknown event type %q", contentpipe.ErrInvalidRequest, eventType)
	}

	subscriptions, err := d.subs.ListActiveSubscriptionsForEvent(ctx, eventType)
	if err != nil {
		return fmt.Errorf("list subscriptions for %s: %w", eventType, err)
	}
	if len(subscriptions) == 0 {
		return nil
	}

	if data == nil {
		data = map[string]interface{}{}
	}

	for _, sub := range subscriptions {
		job := DeliveryJob{
			SubscriptionID: sub.ID,
			Payload: Payload{
				Event:     string(eventType),
				Timestamp: timestamp.UTC(),
				Data:      data,
			},
		}
		payload, err := json.Marshal(job)
		if err != nil {
			return fmt.Errorf("marshal delivery job: %w", err)
		}
		if err := d.broker.Enqueue(ctx, TopicDeliver, payload); err != nil {
			d.log.Error("enqueue delivery failed",
				"subscription_id", sub.ID, "event", string(eventType), "error", err)
		}
	}

	return nil
}
