package service

import (
	"context"
	"time"

	"pos-ledger/internal/models"
)

// EventPublisher receives purchase events after their transaction commits
type EventPublisher interface {
	PublishPurchaseEvent(ctx context.Context, event *models.PurchaseEvent) error
}

// IdempotencyStore guards CreatePurchase against repeated submissions.
// Reserve returns false when the key is already taken.
type IdempotencyStore interface {
	Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error)
	Result(ctx context.Context, key string) (purchaseID string, found bool, err error)
	Complete(ctx context.Context, key, purchaseID string, ttl time.Duration) error
	Release(ctx context.Context, key string) error
}

// ProductCache holds the product listing between stock changes. Every
// invalidation advances a generation; a listing read under an older
// generation is never stored.
type ProductCache interface {
	// GetProducts returns the cached listing, or on a miss the generation the
	// caller passes back to SetProducts
	GetProducts(ctx context.Context) (products []models.Product, generation int64, found bool, err error)
	SetProducts(ctx context.Context, products []models.Product, generation int64, ttl time.Duration) error
	InvalidateProducts(ctx context.Context) error
}

type NoopEventPublisher struct{}

func (NoopEventPublisher) PublishPurchaseEvent(_ context.Context, _ *models.PurchaseEvent) error {
	return nil
}

// NoopIdempotencyStore accepts every key and remembers nothing
type NoopIdempotencyStore struct{}

func (NoopIdempotencyStore) Reserve(_ context.Context, _ string, _ time.Duration) (bool, error) {
	return true, nil
}

func (NoopIdempotencyStore) Result(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

func (NoopIdempotencyStore) Complete(_ context.Context, _, _ string, _ time.Duration) error {
	return nil
}

func (NoopIdempotencyStore) Release(_ context.Context, _ string) error {
	return nil
}

type NoopProductCache struct{}

func (NoopProductCache) GetProducts(_ context.Context) ([]models.Product, int64, bool, error) {
	return nil, 0, false, nil
}

func (NoopProductCache) SetProducts(_ context.Context, _ []models.Product, _ int64, _ time.Duration) error {
	return nil
}

func (NoopProductCache) InvalidateProducts(_ context.Context) error {
	return nil
}
