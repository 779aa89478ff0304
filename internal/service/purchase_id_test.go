package service

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"pos-ledger/internal/models"
)

func TestFormatPurchaseID(t *testing.T) {
	tests := []struct {
		channel models.Channel
		name    string
		counter int64
		want    string
	}{
		{models.ChannelImmediate, "empanada", 1, "CGE0001"},
		{models.ChannelPreSale, "Family Pass", 42, "PVF0042"},
		{models.ChannelImmediate, "2 lemonades", 7, "CGL0007"},
		{models.ChannelImmediate, "2x lemonade", 8, "CGX0008"},
		{models.ChannelImmediate, "", 3, "CGX0003"},
		{models.ChannelPreSale, "123 !!", 9, "PVX0009"},
		{models.ChannelImmediate, "ñoquis", 5, "CGÑ0005"},
		{models.ChannelImmediate, "Raffle", 12345, "CGR12345"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatPurchaseID(tt.channel, tt.name, tt.counter))
		})
	}
}
