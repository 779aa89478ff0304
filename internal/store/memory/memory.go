package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
)

type kind uint8

const (
	kindProduct kind = iota
	kindPurchase
	kindCounter
	kindSession
	kindOpenSession
)

type recordKey struct {
	kind kind
	id   string
}

// entry is a versioned record. A nil value is a tombstone; version 0 means the
// record never existed.
type entry struct {
	version int64
	value   any
}

// Store is an in-process optimistic store. Records are never removed from the
// map so versions keep increasing across delete and re-insert.
type Store struct {
	mu      sync.RWMutex
	records map[recordKey]entry
	audit   []models.AuditLogEntry
}

func New() *Store {
	return &Store{
		records: make(map[recordKey]entry),
		audit:   make([]models.AuditLogEntry, 0, 128),
	}
}

// NewSeeded returns a store holding a demo catalog for a school event
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	products := []models.Product{
		{ID: "ticket-general", Name: "General Admission", Price: decimal.NewFromInt(10), Stock: 300},
		{ID: "ticket-family", Name: "Family Pass", Price: decimal.NewFromInt(30), Stock: 80},
		{ID: "empanada", Name: "Empanada", Price: decimal.RequireFromString("2.50"), Stock: 200, AvailabilityChannels: []models.Channel{models.ChannelImmediate}},
		{ID: "lemonade", Name: "Lemonade", Price: decimal.RequireFromString("1.50"), Stock: 150, AvailabilityChannels: []models.Channel{models.ChannelImmediate}},
		{ID: "tshirt", Name: "School T-Shirt", Price: decimal.NewFromInt(15), Stock: 60},
		{ID: "raffle", Name: "Raffle Ticket", Price: decimal.NewFromInt(2), Stock: 500},
	}
	for _, p := range products {
		p.CreatedAt = now
		p.UpdatedAt = now
		s.records[recordKey{kindProduct, p.ID}] = entry{version: 1, value: p}
	}
	return s
}

func (s *Store) RunTx(ctx context.Context, fn store.TxFunc) error {
	tx := &memTx{
		s:      s,
		reads:  make(map[recordKey]entry),
		writes: make(map[recordKey]any),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *Store) commit(tx *memTx) error {
	if len(tx.writes) == 0 && len(tx.audit) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for k, snap := range tx.reads {
		if s.records[k].version != snap.version {
			return store.ErrConflict
		}
	}
	for k := range tx.writes {
		if _, captured := tx.reads[k]; captured {
			continue
		}
		if s.records[k].value != nil {
			return store.ErrConflict
		}
	}

	for k, v := range tx.writes {
		cur := s.records[k]
		s.records[k] = entry{version: cur.version + 1, value: v}
	}
	s.audit = append(s.audit, tx.audit...)
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]models.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]models.Product, 0, 16)
	for k, e := range s.records {
		if k.kind != kindProduct || e.value == nil {
			continue
		}
		products = append(products, e.value.(models.Product).Clone())
	}
	slices.SortFunc(products, func(a, b models.Product) int {
		return strings.Compare(a.Name, b.Name)
	})
	return products, nil
}

func (s *Store) GetPurchase(_ context.Context, id string) (*models.Purchase, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e := s.records[recordKey{kindPurchase, id}]
	if e.value == nil {
		return nil, store.ErrNotFound
	}
	p := e.value.(models.Purchase).Clone()
	return &p, nil
}

func (s *Store) ListPurchasesByCustomer(_ context.Context, customerIdentifier string) ([]models.Purchase, error) {
	return s.listPurchases(func(p models.Purchase) bool {
		return p.CustomerIdentifier == customerIdentifier
	}, 0), nil
}

func (s *Store) ListRecentPurchases(_ context.Context, channel models.Channel, limit int) ([]models.Purchase, error) {
	prefix := channel.Prefix()
	return s.listPurchases(func(p models.Purchase) bool {
		return strings.HasPrefix(p.ID, prefix)
	}, limit), nil
}

func (s *Store) listPurchases(match func(models.Purchase) bool, limit int) []models.Purchase {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Purchase, 0, 16)
	for k, e := range s.records {
		if k.kind != kindPurchase || e.value == nil {
			continue
		}
		p := e.value.(models.Purchase)
		if match(p) {
			result = append(result, p.Clone())
		}
	}
	slices.SortFunc(result, func(a, b models.Purchase) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result
}

func (s *Store) ListSessions(_ context.Context, operatorID string, limit int) ([]models.CashboxSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.CashboxSession, 0, 8)
	for k, e := range s.records {
		if k.kind != kindSession || e.value == nil {
			continue
		}
		session := e.value.(models.CashboxSession)
		if operatorID != "" && session.OperatorID != operatorID {
			continue
		}
		result = append(result, session)
	}
	slices.SortFunc(result, func(a, b models.CashboxSession) int {
		if c := b.OpenedAt.Compare(a.OpenedAt); c != 0 {
			return c
		}
		return strings.Compare(b.ID, a.ID)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) ListAuditLog(_ context.Context, limit int) ([]models.AuditLogEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.AuditLogEntry, len(s.audit))
	for i, e := range s.audit {
		result[len(s.audit)-1-i] = e
	}
	// stable keeps reverse insertion order for equal timestamps
	slices.SortStableFunc(result, func(a, b models.AuditLogEntry) int {
		return b.Timestamp.Compare(a.Timestamp)
	})
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) Ping(_ context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

var _ store.Store = (*Store)(nil)
