package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"

	"pos-ledger/internal/models"
)

type fakeSender struct {
	phones []string
	err    error
}

func (f *fakeSender) Send(_ context.Context, phone, _ string) error {
	if f.err != nil {
		return f.err
	}
	f.phones = append(f.phones, phone)
	return nil
}

func TestDeliverSendsMessage(t *testing.T) {
	sender := &fakeSender{}
	w := NewNotificationWorker(nil, sender)

	err := w.Deliver(context.Background(), &models.NotificationRequestedEvent{
		PurchaseID: "CGE0001",
		Phone:      "+16502530000",
		Message:    "hello",
	})
	assert.NoError(t, err)
	assert.Equal(t, []string{"+16502530000"}, sender.phones)
}

func TestDeliverSwallowsSenderFailure(t *testing.T) {
	w := NewNotificationWorker(nil, &fakeSender{err: errors.New("gateway down")})

	err := w.Deliver(context.Background(), &models.NotificationRequestedEvent{PurchaseID: "CGE0001"})
	assert.NoError(t, err)
}

func TestLogSender(t *testing.T) {
	assert.NoError(t, NewLogSender().Send(context.Background(), "+16502530000", "hi"))
}
