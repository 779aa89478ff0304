package broker

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"pos-ledger/internal/models"
	"pos-ledger/internal/util"
)

// Publisher writes a keyed event to a topic
type Publisher interface {
	PublishEvent(ctx context.Context, key, eventType string, event interface{}) error
}

// EventPublisher publishes ledger events. Purchase events are keyed by
// purchase ID so consumers see them in commit order.
type EventPublisher struct {
	purchases     Publisher
	notifications Publisher
}

// NewEventPublisher creates a new event publisher
func NewEventPublisher(purchases, notifications Publisher) *EventPublisher {
	return &EventPublisher{purchases: purchases, notifications: notifications}
}

// PublishPurchaseEvent publishes a committed purchase change
func (ep *EventPublisher) PublishPurchaseEvent(ctx context.Context, event *models.PurchaseEvent) error {
	return ep.purchases.PublishEvent(ctx, purchaseKey(event.Purchase.ID), event.EventType, event)
}

// Dispatch queues a confirmation message for the notification worker
func (ep *EventPublisher) Dispatch(ctx context.Context, event *models.NotificationRequestedEvent) error {
	return ep.notifications.PublishEvent(ctx, purchaseKey(event.PurchaseID), event.EventType, event)
}

func purchaseKey(id string) string {
	return "purchase-" + id
}

// EventHandler handles incoming events
type EventHandler struct {
	onNotificationRequested func(context.Context, *models.NotificationRequestedEvent) error
	logger                  *zap.Logger
}

// NewEventHandler creates a new event handler
func NewEventHandler() *EventHandler {
	return &EventHandler{logger: util.Named("events")}
}

// OnNotificationRequested registers a handler for NotificationRequested events
func (eh *EventHandler) OnNotificationRequested(handler func(context.Context, *models.NotificationRequestedEvent) error) {
	eh.onNotificationRequested = handler
}

// HandleMessage routes messages to appropriate handlers
func (eh *EventHandler) HandleMessage(ctx context.Context, msg kafka.Message) error {
	typ := eventType(msg)
	if typ == "" {
		var baseEvent models.BaseEvent
		if err := json.Unmarshal(msg.Value, &baseEvent); err != nil {
			return fmt.Errorf("failed to unmarshal base event: %w", err)
		}
		typ = baseEvent.EventType
	}

	eh.logger.Debug("Handling event",
		zap.String("type", typ),
		zap.String("key", string(msg.Key)))

	switch typ {
	case models.EventTypeNotificationRequested:
		if eh.onNotificationRequested != nil {
			var event models.NotificationRequestedEvent
			if err := json.Unmarshal(msg.Value, &event); err != nil {
				return fmt.Errorf("failed to unmarshal NotificationRequested event: %w", err)
			}
			return eh.onNotificationRequested(ctx, &event)
		}

	default:
		eh.logger.Debug("Unhandled event type", zap.String("type", typ))
	}

	return nil
}
