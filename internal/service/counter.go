package service

import (
	"context"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
)

// counterKey is the Counter Store category of a channel
func counterKey(c models.Channel) string {
	return string(c)
}

// NextValue increments the category counter inside tx and returns the new
// value. The counter is only advanced if tx commits.
func NextValue(ctx context.Context, tx store.Tx, category string) (int64, error) {
	c, err := tx.Counter(ctx, category)
	if err != nil {
		return 0, err
	}
	c.Count++
	tx.PutCounter(*c)
	return c.Count, nil
}
