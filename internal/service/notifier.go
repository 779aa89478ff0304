package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ttacon/libphonenumber"
	"go.uber.org/zap"

	"pos-ledger/internal/models"
	"pos-ledger/internal/util"
)

// Dispatcher hands a confirmation message to the delivery channel
type Dispatcher interface {
	Dispatch(ctx context.Context, event *models.NotificationRequestedEvent) error
}

// LogDispatcher writes notifications to the log instead of delivering them
type LogDispatcher struct {
	logger *zap.Logger
}

// NewLogDispatcher creates a new log dispatcher
func NewLogDispatcher() *LogDispatcher {
	return &LogDispatcher{logger: util.Named("dispatcher")}
}

func (d *LogDispatcher) Dispatch(_ context.Context, event *models.NotificationRequestedEvent) error {
	d.logger.Info("Notification",
		zap.String("purchase_id", event.PurchaseID),
		zap.String("phone", event.Phone),
		zap.String("message", event.Message))
	return nil
}

// Notifier sends purchase confirmations. Delivery failures are logged and
// reported as false, never as errors.
type Notifier struct {
	dispatcher Dispatcher
	region     string
	logger     *zap.Logger
}

// NewNotifier creates a notifier. region is the default phone region, e.g. "AR".
func NewNotifier(dispatcher Dispatcher, region string) *Notifier {
	if dispatcher == nil {
		dispatcher = NewLogDispatcher()
	}
	return &Notifier{
		dispatcher: dispatcher,
		region:     strings.ToUpper(region),
		logger:     util.Named("notifier"),
	}
}

// NormalizePhone parses phone in the notifier's region and formats it E.164
func (n *Notifier) NormalizePhone(phone string) (string, error) {
	num, err := libphonenumber.Parse(phone, n.region)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPhone, err)
	}
	if !libphonenumber.IsValidNumber(num) {
		return "", fmt.Errorf("%w: %s", ErrInvalidPhone, phone)
	}
	return libphonenumber.Format(num, libphonenumber.E164), nil
}

// Send delivers the confirmation of p to phone
func (n *Notifier) Send(ctx context.Context, p *models.Purchase, phone string) (bool, error) {
	normalized, err := n.NormalizePhone(phone)
	if err != nil {
		return false, err
	}

	event := &models.NotificationRequestedEvent{
		BaseEvent: models.BaseEvent{
			EventID:   uuid.New().String(),
			EventType: models.EventTypeNotificationRequested,
			Timestamp: time.Now().UTC(),
		},
		PurchaseID: p.ID,
		Phone:      normalized,
		Message:    RenderConfirmation(p),
	}
	if err := n.dispatcher.Dispatch(ctx, event); err != nil {
		util.NotificationsTotal.WithLabelValues("failed").Inc()
		n.logger.Warn("Failed to dispatch notification",
			zap.String("purchase_id", p.ID),
			zap.Error(err))
		return false, nil
	}
	util.NotificationsTotal.WithLabelValues("sent").Inc()
	return true, nil
}

// RenderConfirmation builds the human-readable confirmation text
func RenderConfirmation(p *models.Purchase) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Purchase %s (%s)\n", p.ID, p.Status)
	for _, item := range p.Items {
		fmt.Fprintf(&b, "%d x %s  %s\n", item.Quantity, item.Name, item.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(&b, "Total: %s", p.Total.StringFixed(2))
	return b.String()
}
