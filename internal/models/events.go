package models

import "time"

// Event types
const (
	EventTypePurchaseCreated       = "PURCHASE_CREATED"
	EventTypePurchaseEdited        = "PURCHASE_EDITED"
	EventTypePurchaseCancelled     = "PURCHASE_CANCELLED"
	EventTypePreSaleConfirmed      = "PRESALE_CONFIRMED"
	EventTypePurchasePaid          = "PURCHASE_PAID"
	EventTypePurchaseDelivered     = "PURCHASE_DELIVERED"
	EventTypeItemReturned          = "ITEM_RETURNED"
	EventTypeNotificationRequested = "NOTIFICATION_REQUESTED"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventID   string    `json:"event_id"`
	EventType string    `json:"event_type"`
	Timestamp time.Time `json:"timestamp"`
}

// PurchaseEvent is published after a purchase mutation commits
type PurchaseEvent struct {
	BaseEvent
	ActorID  string   `json:"actor_id,omitempty"`
	Purchase Purchase `json:"purchase"`
}

// NotificationRequestedEvent asks the delivery worker to send a message
type NotificationRequestedEvent struct {
	BaseEvent
	PurchaseID string `json:"purchase_id"`
	Phone      string `json:"phone"`
	Message    string `json:"message"`
}
