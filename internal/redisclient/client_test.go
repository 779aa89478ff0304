package redisclient

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/models"
	"pos-ledger/internal/service"
)

var (
	_ service.IdempotencyStore = (*Client)(nil)
	_ service.ProductCache     = (*Client)(nil)
)

func newTestClient(t *testing.T) *Client {
	t.Helper()
	addr := os.Getenv("TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("TEST_REDIS_ADDR not set")
	}
	c, err := NewClient(addr, "", 0)
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestIdempotencyLifecycle(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := uuid.New().String()
	t.Cleanup(func() { c.Release(ctx, key) })

	ok, err := c.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = c.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.False(t, ok)

	_, found, err := c.Result(ctx, key)
	require.NoError(t, err)
	assert.False(t, found, "pending key has no result")

	require.NoError(t, c.Complete(ctx, key, "CGE0001", time.Minute))
	id, found, err := c.Result(ctx, key)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "CGE0001", id)

	require.NoError(t, c.Release(ctx, key))
	ok, err = c.Reserve(ctx, key, time.Minute)
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestProductCache(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.InvalidateProducts(ctx))

	_, gen, ok, err := c.GetProducts(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	products := []models.Product{{ID: "p1", Name: "Empanada", Price: decimal.RequireFromString("2.50"), Stock: 3}}
	require.NoError(t, c.SetProducts(ctx, products, gen, time.Minute))

	cached, _, ok, err := c.GetProducts(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Len(t, cached, 1)
	assert.True(t, products[0].Price.Equal(cached[0].Price))

	require.NoError(t, c.InvalidateProducts(ctx))
	_, next, ok, err := c.GetProducts(ctx)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Greater(t, next, gen)
}

func TestProductCacheSkipsListingReadBeforeInvalidation(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	require.NoError(t, c.InvalidateProducts(ctx))

	_, gen, ok, err := c.GetProducts(ctx)
	require.NoError(t, err)
	require.False(t, ok)

	// a stock change commits between the store read and the cache write
	require.NoError(t, c.InvalidateProducts(ctx))
	stale := []models.Product{{ID: "p1", Name: "Empanada", Price: decimal.RequireFromString("2.50"), Stock: 3}}
	require.NoError(t, c.SetProducts(ctx, stale, gen, time.Minute))

	_, current, ok, err := c.GetProducts(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "stale listing must not be cached")

	require.NoError(t, c.SetProducts(ctx, stale, current, time.Minute))
	_, _, ok, err = c.GetProducts(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, c.InvalidateProducts(ctx))
}

func TestIdempotencyPendingMarkerUsesShortTTL(t *testing.T) {
	c := newTestClient(t)
	ctx := context.Background()
	key := uuid.New().String()
	t.Cleanup(func() { c.Release(ctx, key) })

	ok, err := c.Reserve(ctx, key, 10*time.Second)
	require.NoError(t, err)
	require.True(t, ok)
	ttl, err := c.GetClient().TTL(ctx, idempotencyPrefix+key).Result()
	require.NoError(t, err)
	assert.LessOrEqual(t, ttl, 10*time.Second)

	require.NoError(t, c.Complete(ctx, key, "CGE0001", time.Hour))
	ttl, err = c.GetClient().TTL(ctx, idempotencyPrefix+key).Result()
	require.NoError(t, err)
	assert.Greater(t, ttl, 10*time.Second)
}

func TestNewFromRedisWrapsConnection(t *testing.T) {
	rdb := redis.NewClient(&redis.Options{Addr: "localhost:0"})
	c := NewFromRedis(rdb)
	assert.Same(t, rdb, c.GetClient())
	assert.NoError(t, c.Close())
}
