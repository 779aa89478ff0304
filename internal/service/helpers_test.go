package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
	"pos-ledger/internal/store/memory"
)

var (
	admin   = models.Actor{ID: "admin-1", Name: "Admin", Role: models.RoleAdmin}
	cashier = models.Actor{ID: "op1", Name: "Operator One", Role: models.RoleCashier}
	seller  = models.Actor{ID: "seller-1", Name: "Seller", Role: models.RoleSeller}
)

type testEnv struct {
	store    *memory.Store
	runner   *TxRunner
	audit    *AuditTrail
	cashbox  *CashboxService
	purchase *PurchaseService
}

type envOption func(*envConfig)

type envConfig struct {
	cfg         PurchaseConfig
	attempts    int
	dispatcher  Dispatcher
	events      EventPublisher
	idempotency IdempotencyStore
	cache       ProductCache
}

func withConfig(fn func(*PurchaseConfig)) envOption {
	return func(c *envConfig) { fn(&c.cfg) }
}

func withAttempts(n int) envOption {
	return func(c *envConfig) { c.attempts = n }
}

func withDispatcher(d Dispatcher) envOption {
	return func(c *envConfig) { c.dispatcher = d }
}

func withIdempotency(i IdempotencyStore) envOption {
	return func(c *envConfig) { c.idempotency = i }
}

func withCache(pc ProductCache) envOption {
	return func(c *envConfig) { c.cache = pc }
}

func withEvents(e EventPublisher) envOption {
	return func(c *envConfig) { c.events = e }
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()
	ec := envConfig{cfg: DefaultPurchaseConfig(), attempts: 10}
	for _, opt := range opts {
		opt(&ec)
	}

	st := memory.New()
	runner := NewTxRunner(st, ec.attempts, 0)
	audit := NewAuditTrail(st)
	cashbox := NewCashboxService(st, runner, audit)
	notifier := NewNotifier(ec.dispatcher, "US")
	purchase := NewPurchaseService(st, runner, cashbox, audit, notifier, ec.events, ec.idempotency, ec.cache, ec.cfg)
	return &testEnv{store: st, runner: runner, audit: audit, cashbox: cashbox, purchase: purchase}
}

func (e *testEnv) seedProduct(t *testing.T, id, name string, price string, stock int, channels ...models.Channel) {
	t.Helper()
	err := e.store.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		tx.PutProduct(models.Product{
			ID:                   id,
			Name:                 name,
			Price:                decimal.RequireFromString(price),
			Stock:                stock,
			AvailabilityChannels: channels,
			CreatedAt:            time.Now().UTC(),
		})
		return nil
	})
	require.NoError(t, err)
}

func (e *testEnv) product(t *testing.T, id string) models.Product {
	t.Helper()
	var p models.Product
	err := e.store.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		got, err := tx.Product(ctx, id)
		if err != nil {
			return err
		}
		p = *got
		return nil
	})
	require.NoError(t, err)
	return p
}

func (e *testEnv) counter(t *testing.T, key string) int64 {
	t.Helper()
	var n int64
	err := e.store.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		c, err := tx.Counter(ctx, key)
		if err != nil {
			return err
		}
		n = c.Count
		return nil
	})
	require.NoError(t, err)
	return n
}

func (e *testEnv) create(t *testing.T, channel models.Channel, items ...ItemRequest) *models.Purchase {
	t.Helper()
	p, err := e.purchase.CreatePurchase(context.Background(), &CreatePurchaseRequest{
		Items:              items,
		CustomerIdentifier: "cc123",
		Channel:            channel,
	}, &seller)
	require.NoError(t, err)
	return p
}

func item(productID string, qty int) ItemRequest {
	return ItemRequest{ProductID: productID, Quantity: qty}
}

// memoryIdempotency is an in-process IdempotencyStore that remembers every
// TTL applied to a key
type memoryIdempotency struct {
	mu   sync.Mutex
	keys map[string]string
	ttls map[string][]time.Duration
}

func newMemoryIdempotency() *memoryIdempotency {
	return &memoryIdempotency{keys: make(map[string]string), ttls: make(map[string][]time.Duration)}
}

func (m *memoryIdempotency) Reserve(_ context.Context, key string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.keys[key]; ok {
		return false, nil
	}
	m.keys[key] = ""
	m.ttls[key] = append(m.ttls[key], ttl)
	return true, nil
}

func (m *memoryIdempotency) ttlHistory(key string) []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]time.Duration(nil), m.ttls[key]...)
}

func (m *memoryIdempotency) Result(_ context.Context, key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.keys[key]
	return id, ok && id != "", nil
}

func (m *memoryIdempotency) Complete(_ context.Context, key, purchaseID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[key] = purchaseID
	m.ttls[key] = append(m.ttls[key], ttl)
	return nil
}

func (m *memoryIdempotency) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, key)
	delete(m.ttls, key)
	return nil
}

type recordingDispatcher struct {
	mu     sync.Mutex
	events []*models.NotificationRequestedEvent
	err    error
}

func (d *recordingDispatcher) Dispatch(_ context.Context, event *models.NotificationRequestedEvent) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return d.err
	}
	d.events = append(d.events, event)
	return nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []*models.PurchaseEvent
}

func (p *recordingPublisher) PublishPurchaseEvent(_ context.Context, event *models.PurchaseEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.events))
	for i, e := range p.events {
		out[i] = e.EventType
	}
	return out
}

// countingCache is a generation-guarded ProductCache. onMiss runs after a
// miss has reported its generation.
type countingCache struct {
	products    []models.Product
	generation  int64
	hits, sets  int
	rejected    int
	invalidated int
	onMiss      func()
}

func (c *countingCache) GetProducts(_ context.Context) ([]models.Product, int64, bool, error) {
	if c.products == nil {
		gen := c.generation
		if c.onMiss != nil {
			c.onMiss()
		}
		return nil, gen, false, nil
	}
	c.hits++
	return c.products, c.generation, true, nil
}

func (c *countingCache) SetProducts(_ context.Context, products []models.Product, generation int64, _ time.Duration) error {
	if generation != c.generation {
		c.rejected++
		return nil
	}
	c.sets++
	c.products = products
	return nil
}

func (c *countingCache) InvalidateProducts(_ context.Context) error {
	c.invalidated++
	c.generation++
	c.products = nil
	return nil
}

func (e *testEnv) updateProduct(t *testing.T, id string, mutate func(*models.Product)) {
	t.Helper()
	err := e.store.RunTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		p, err := tx.Product(ctx, id)
		if err != nil {
			return err
		}
		mutate(p)
		tx.PutProduct(*p)
		return nil
	})
	require.NoError(t, err)
}

func (e *testEnv) seedPrice(t *testing.T, id, price string) {
	e.updateProduct(t, id, func(p *models.Product) { p.Price = decimal.RequireFromString(price) })
}

func (e *testEnv) seedReserved(t *testing.T, id string, reserved int) {
	e.updateProduct(t, id, func(p *models.Product) { p.PreSaleReserved = reserved })
}
