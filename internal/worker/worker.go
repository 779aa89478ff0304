package worker

import (
	"context"

	"go.uber.org/zap"

	"pos-ledger/internal/broker"
	"pos-ledger/internal/models"
	"pos-ledger/internal/util"
)

// Sender delivers a message to a phone number
type Sender interface {
	Send(ctx context.Context, phone, message string) error
}

// LogSender logs messages instead of sending them
type LogSender struct {
	logger *zap.Logger
}

// NewLogSender creates a new log sender
func NewLogSender() *LogSender {
	return &LogSender{logger: util.Named("sms")}
}

func (s *LogSender) Send(_ context.Context, phone, message string) error {
	s.logger.Info("Delivering message",
		zap.String("phone", phone),
		zap.String("message", message))
	return nil
}

// NotificationWorker delivers queued purchase confirmations. Delivery
// failures are logged and the message is dropped.
type NotificationWorker struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	sender       Sender
	logger       *zap.Logger
}

// NewNotificationWorker creates a new notification worker
func NewNotificationWorker(consumer *broker.Consumer, sender Sender) *NotificationWorker {
	w := &NotificationWorker{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		sender:       sender,
		logger:       util.Named("notification-worker"),
	}
	w.eventHandler.OnNotificationRequested(w.Deliver)
	return w
}

// Start starts the worker
func (w *NotificationWorker) Start(ctx context.Context) error {
	w.logger.Info("Starting notification worker")
	return w.consumer.StartConsuming(ctx, w.eventHandler.HandleMessage)
}

// Deliver sends one notification
func (w *NotificationWorker) Deliver(ctx context.Context, event *models.NotificationRequestedEvent) error {
	if err := w.sender.Send(ctx, event.Phone, event.Message); err != nil {
		util.NotificationsTotal.WithLabelValues("undelivered").Inc()
		w.logger.Warn("Notification delivery failed",
			zap.String("purchase_id", event.PurchaseID),
			zap.Error(err))
		return nil
	}
	util.NotificationsTotal.WithLabelValues("delivered").Inc()
	return nil
}

// Stop stops the worker
func (w *NotificationWorker) Stop() error {
	w.logger.Info("Stopping notification worker")
	return w.consumer.Close()
}
