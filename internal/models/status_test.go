package models

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to PurchaseStatus
		want     bool
	}{
		{StatusPending, StatusPaid, true},
		{StatusPending, StatusCancelled, true},
		{StatusPending, StatusPending, true},
		{StatusPaid, StatusDelivered, true},
		{StatusPreSale, StatusPreSaleConfirmed, true},
		{StatusPreSaleConfirmed, StatusPaid, true},
		{StatusPending, StatusDelivered, false},
		{StatusPaid, StatusCancelled, false},
		{StatusPreSale, StatusPaid, false},
		{StatusPreSale, StatusCancelled, false},
		{StatusCancelled, StatusPending, false},
		{StatusDelivered, StatusPaid, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			assert.Equal(t, tt.want, CanTransition(tt.from, tt.to))
		})
	}
}

func TestTerminalStatusesHaveNoEdges(t *testing.T) {
	all := []PurchaseStatus{StatusPending, StatusPaid, StatusDelivered, StatusCancelled, StatusPreSale, StatusPreSaleConfirmed}
	for _, to := range all {
		assert.False(t, CanTransition(StatusCancelled, to))
		assert.False(t, CanTransition(StatusDelivered, to))
	}
}

func TestStatusPredicates(t *testing.T) {
	assert.True(t, StatusPreSaleConfirmed.Valid())
	assert.False(t, PurchaseStatus("shipped").Valid())

	assert.True(t, StatusPending.Editable())
	assert.True(t, StatusPreSale.Editable())
	assert.False(t, StatusPaid.Editable())

	assert.True(t, StatusDelivered.Returnable())
	assert.False(t, StatusPending.Returnable())
	assert.False(t, StatusCancelled.Returnable())
	assert.False(t, StatusPreSaleConfirmed.Returnable())
}

func TestPurchaseHelpers(t *testing.T) {
	p := Purchase{
		ID: "PVE0003",
		Items: []PurchaseItem{
			{ProductID: "p1", UnitPrice: decimal.RequireFromString("2.50"), Quantity: 2},
			{ProductID: "p2", UnitPrice: decimal.RequireFromString("1.25"), Quantity: 4},
		},
	}
	p.RecomputeTotal()
	assert.True(t, decimal.NewFromInt(10).Equal(p.Total))
	assert.Equal(t, ChannelPreSale, p.Channel())

	clone := p.Clone()
	clone.Items[0].Quantity = 9
	assert.Equal(t, 2, p.Items[0].Quantity)

	c, ok := ParseChannel(" Pre-Sale ")
	assert.True(t, ok)
	assert.Equal(t, ChannelPreSale, c)

	product := Product{AvailabilityChannels: []Channel{ChannelImmediate}}
	assert.True(t, product.AvailableOn(ChannelImmediate))
	assert.False(t, product.AvailableOn(ChannelPreSale))
	assert.True(t, (&Product{}).AvailableOn(ChannelPreSale))
}
