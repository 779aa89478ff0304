package postgres

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
)

func TestMapErrorConflictCodes(t *testing.T) {
	for _, code := range []pq.ErrorCode{"40001", "40P01", "23505"} {
		err := mapError(&pq.Error{Code: code, Message: "x"})
		assert.ErrorIs(t, err, store.ErrConflict, "code %s", code)
	}

	other := &pq.Error{Code: "23514", Message: "check violation"}
	assert.False(t, errors.Is(mapError(other), store.ErrConflict))
	assert.NoError(t, mapError(nil))
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("Integration test - requires database (set TEST_DATABASE_URL)")
	}
	s, err := NewStore(url)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = s.db.Exec("TRUNCATE products, purchase_counters, purchases, cashbox_sessions, audit_log")
		s.Close()
	})
	_, err = s.db.Exec("TRUNCATE products, purchase_counters, purchases, cashbox_sessions, audit_log")
	require.NoError(t, err)
	return s
}

func TestVersionedUpdateConflicts(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		tx.PutProduct(models.Product{ID: "p1", Name: "Pin", Price: decimal.NewFromInt(3), Stock: 5,
			CreatedAt: time.Now().UTC(), UpdatedAt: time.Now().UTC()})
		return nil
	}))

	err := s.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		p, err := tx.Product(ctx, "p1")
		require.NoError(t, err)

		require.NoError(t, s.RunTx(ctx, func(ctx context.Context, other store.Tx) error {
			q, err := other.Product(ctx, "p1")
			require.NoError(t, err)
			q.Stock--
			other.PutProduct(*q)
			return nil
		}))

		p.Stock -= 2
		tx.PutProduct(*p)
		return nil
	})
	assert.ErrorIs(t, err, store.ErrConflict)

	products, err := s.ListProducts(ctx)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 4, products[0].Stock)
}

func TestPurchaseRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	purchase := models.Purchase{
		ID:                 "CGP0001",
		Date:               time.Now().UTC().Truncate(time.Millisecond),
		Items:              []models.PurchaseItem{{ProductID: "p1", Name: "Pin", UnitPrice: decimal.NewFromInt(3), Quantity: 2}},
		CustomerIdentifier: "cc123",
		Total:              decimal.NewFromInt(6),
		Status:             models.StatusPending,
	}
	require.NoError(t, s.RunTx(ctx, func(ctx context.Context, tx store.Tx) error {
		tx.PutPurchase(purchase)
		tx.PutCounter(models.Counter{Key: "immediate", Count: 1})
		return nil
	}))

	got, err := s.GetPurchase(ctx, "CGP0001")
	require.NoError(t, err)
	assert.Equal(t, purchase.CustomerIdentifier, got.CustomerIdentifier)
	assert.True(t, purchase.Total.Equal(got.Total))
	require.Len(t, got.Items, 1)
	assert.Equal(t, 2, got.Items[0].Quantity)

	_, err = s.GetPurchase(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
