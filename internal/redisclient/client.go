package redisclient

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"pos-ledger/internal/models"
)

const (
	idempotencyPrefix = "idempotency:"
	productsKey       = "cache:products"
	productsGenKey    = "cache:products:gen"

	// pendingMarker is stored while the request holding the key is running
	pendingMarker = "pending"
)

type Client struct {
	rdb *redis.Client
}

// NewClient creates a new Redis client
func NewClient(addr, password string, db int) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &Client{rdb: rdb}, nil
}

// NewFromRedis wraps an existing connection
func NewFromRedis(rdb *redis.Client) *Client {
	return &Client{rdb: rdb}
}

// GetClient returns the underlying Redis client
func (c *Client) GetClient() *redis.Client {
	return c.rdb
}

// Ping checks the connection
func (c *Client) Ping(ctx context.Context) error {
	return c.rdb.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.rdb.Close()
}

// Reserve claims an idempotency key. Returns false when another request
// already holds or completed it.
func (c *Client) Reserve(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := c.rdb.SetNX(ctx, idempotencyPrefix+key, pendingMarker, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("reserve idempotency key failed: %w", err)
	}
	return ok, nil
}

// Result returns the purchase recorded under key once its request completed
func (c *Client) Result(ctx context.Context, key string) (string, bool, error) {
	val, err := c.rdb.Get(ctx, idempotencyPrefix+key).Result()
	if err == redis.Nil {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read idempotency key failed: %w", err)
	}
	if val == pendingMarker {
		return "", false, nil
	}
	return val, true, nil
}

// Complete records the purchase created under key
func (c *Client) Complete(ctx context.Context, key, purchaseID string, ttl time.Duration) error {
	return c.rdb.Set(ctx, idempotencyPrefix+key, purchaseID, ttl).Err()
}

// Release frees a key whose request failed so it can be retried
func (c *Client) Release(ctx context.Context, key string) error {
	return c.rdb.Del(ctx, idempotencyPrefix+key).Err()
}

// GetProducts returns the cached product listing together with the current
// cache generation
func (c *Client) GetProducts(ctx context.Context) ([]models.Product, int64, bool, error) {
	var listing, gen *redis.StringCmd
	_, err := c.rdb.Pipelined(ctx, func(pipe redis.Pipeliner) error {
		listing = pipe.Get(ctx, productsKey)
		gen = pipe.Get(ctx, productsGenKey)
		return nil
	})
	if err != nil && err != redis.Nil {
		return nil, 0, false, err
	}

	generation, err := gen.Int64()
	if err != nil && err != redis.Nil {
		return nil, 0, false, err
	}
	val, err := listing.Bytes()
	if err == redis.Nil {
		return nil, generation, false, nil
	}
	if err != nil {
		return nil, 0, false, err
	}

	var products []models.Product
	if err := json.Unmarshal(val, &products); err != nil {
		return nil, 0, false, err
	}
	return products, generation, true, nil
}

// SetProducts caches the product listing for ttl unless the generation moved
// on since the listing was read
func (c *Client) SetProducts(ctx context.Context, products []models.Product, generation int64, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	payload, err := json.Marshal(products)
	if err != nil {
		return err
	}

	err = c.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, productsGenKey).Int64()
		if err != nil && err != redis.Nil {
			return err
		}
		if current != generation {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, productsKey, payload, ttl)
			return nil
		})
		return err
	}, productsGenKey)
	if err == redis.TxFailedErr {
		// invalidated while writing
		return nil
	}
	return err
}

// InvalidateProducts drops the cached listing and advances the generation
func (c *Client) InvalidateProducts(ctx context.Context) error {
	_, err := c.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, productsGenKey)
		pipe.Del(ctx, productsKey)
		return nil
	})
	return err
}
