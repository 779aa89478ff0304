package memory

import (
	"context"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
)

type memTx struct {
	s      *Store
	reads  map[recordKey]entry
	writes map[recordKey]any
	audit  []models.AuditLogEntry
	wrote  bool
}

// get returns the transaction's view of k, capturing it on first read
func (t *memTx) get(k recordKey) (any, error) {
	if v, ok := t.writes[k]; ok {
		return cloneValue(v), nil
	}
	if snap, ok := t.reads[k]; ok {
		return cloneValue(snap.value), nil
	}
	if t.wrote {
		return nil, store.ErrReadAfterWrite
	}

	t.s.mu.RLock()
	cur := t.s.records[k]
	t.s.mu.RUnlock()

	t.reads[k] = entry{version: cur.version, value: cloneValue(cur.value)}
	return cloneValue(cur.value), nil
}

func (t *memTx) put(k recordKey, v any) {
	t.wrote = true
	t.writes[k] = v
}

func (t *memTx) Product(_ context.Context, id string) (*models.Product, error) {
	v, err := t.get(recordKey{kindProduct, id})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, store.ErrNotFound
	}
	p := v.(models.Product)
	return &p, nil
}

func (t *memTx) Purchase(_ context.Context, id string) (*models.Purchase, error) {
	v, err := t.get(recordKey{kindPurchase, id})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, store.ErrNotFound
	}
	p := v.(models.Purchase)
	return &p, nil
}

func (t *memTx) Counter(_ context.Context, key string) (*models.Counter, error) {
	v, err := t.get(recordKey{kindCounter, key})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return &models.Counter{Key: key}, nil
	}
	c := v.(models.Counter)
	return &c, nil
}

func (t *memTx) Session(_ context.Context, id string) (*models.CashboxSession, error) {
	v, err := t.get(recordKey{kindSession, id})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, store.ErrNotFound
	}
	session := v.(models.CashboxSession)
	// capture the operator index too so a close conflicts with a concurrent open
	if _, err := t.get(recordKey{kindOpenSession, session.OperatorID}); err != nil {
		return nil, err
	}
	return &session, nil
}

func (t *memTx) OpenSession(ctx context.Context, operatorID string) (*models.CashboxSession, error) {
	v, err := t.get(recordKey{kindOpenSession, operatorID})
	if err != nil {
		return nil, err
	}
	if v == nil {
		return nil, store.ErrNotFound
	}
	return t.Session(ctx, v.(string))
}

func (t *memTx) PutProduct(p models.Product) {
	t.put(recordKey{kindProduct, p.ID}, p.Clone())
}

func (t *memTx) PutPurchase(p models.Purchase) {
	t.put(recordKey{kindPurchase, p.ID}, p.Clone())
}

func (t *memTx) PutCounter(c models.Counter) {
	t.put(recordKey{kindCounter, c.Key}, c)
}

func (t *memTx) PutSession(s models.CashboxSession) {
	t.put(recordKey{kindSession, s.ID}, s)

	idx := recordKey{kindOpenSession, s.OperatorID}
	if s.IsOpen() {
		t.put(idx, s.ID)
		return
	}
	if v, ok := t.writes[idx]; ok {
		if v == s.ID {
			t.put(idx, nil)
		}
		return
	}
	if cur, ok := t.reads[idx]; ok && cur.value == s.ID {
		t.put(idx, nil)
	}
}

func (t *memTx) AppendAudit(e models.AuditLogEntry) {
	t.wrote = true
	t.audit = append(t.audit, e)
}

func cloneValue(v any) any {
	switch val := v.(type) {
	case models.Product:
		return val.Clone()
	case models.Purchase:
		return val.Clone()
	}
	return v
}

var _ store.Tx = (*memTx)(nil)
