package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/jmoiron/sqlx"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
)

// captured is a record as first read by the transaction. version 0 means absent.
type captured struct {
	version int64
	value   any
}

type pgTx struct {
	tx     *sqlx.Tx
	reads  map[string]captured
	writes map[string]any
	audit  []models.AuditLogEntry
	wrote  bool
}

func newPgTx(tx *sqlx.Tx) *pgTx {
	return &pgTx{
		tx:     tx,
		reads:  make(map[string]captured),
		writes: make(map[string]any),
	}
}

// Leading digits order the flush: products, counters, purchases, sessions.
func productKey(id string) string { return "1product:" + id }
func counterKey(key string) string { return "2counter:" + key }
func purchaseKey(id string) string { return "3purchase:" + id }
func sessionKey(id string) string { return "4session:" + id }
func openKey(operator string) string { return "5open:" + operator }

// lookup returns the local view of key when already captured or written
func (t *pgTx) lookup(key string) (any, bool, error) {
	if v, ok := t.writes[key]; ok {
		return v, true, nil
	}
	if c, ok := t.reads[key]; ok {
		return c.value, true, nil
	}
	if t.wrote {
		return nil, false, store.ErrReadAfterWrite
	}
	return nil, false, nil
}

func (t *pgTx) Product(ctx context.Context, id string) (*models.Product, error) {
	key := productKey(id)
	v, ok, err := t.lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		var row productRow
		err := t.tx.GetContext(ctx, &row, "SELECT * FROM products WHERE id = $1", id)
		switch {
		case err == sql.ErrNoRows:
			t.reads[key] = captured{}
		case err != nil:
			return nil, err
		default:
			t.reads[key] = captured{version: row.Version, value: row.toModel()}
		}
		v = t.reads[key].value
	}
	if v == nil {
		return nil, store.ErrNotFound
	}
	p := v.(models.Product).Clone()
	return &p, nil
}

func (t *pgTx) Purchase(ctx context.Context, id string) (*models.Purchase, error) {
	key := purchaseKey(id)
	v, ok, err := t.lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		var row purchaseRow
		err := t.tx.GetContext(ctx, &row, "SELECT * FROM purchases WHERE id = $1", id)
		switch {
		case err == sql.ErrNoRows:
			t.reads[key] = captured{}
		case err != nil:
			return nil, err
		default:
			p, err := row.toModel()
			if err != nil {
				return nil, err
			}
			t.reads[key] = captured{version: row.Version, value: *p}
		}
		v = t.reads[key].value
	}
	if v == nil {
		return nil, store.ErrNotFound
	}
	p := v.(models.Purchase).Clone()
	return &p, nil
}

func (t *pgTx) Counter(ctx context.Context, key string) (*models.Counter, error) {
	k := counterKey(key)
	v, ok, err := t.lookup(k)
	if err != nil {
		return nil, err
	}
	if !ok {
		var row counterRow
		err := t.tx.GetContext(ctx, &row, "SELECT * FROM purchase_counters WHERE key = $1", key)
		switch {
		case err == sql.ErrNoRows:
			t.reads[k] = captured{}
		case err != nil:
			return nil, err
		default:
			t.reads[k] = captured{version: row.Version, value: models.Counter{Key: row.Key, Count: row.Count}}
		}
		v = t.reads[k].value
	}
	if v == nil {
		return &models.Counter{Key: key}, nil
	}
	c := v.(models.Counter)
	return &c, nil
}

func (t *pgTx) Session(ctx context.Context, id string) (*models.CashboxSession, error) {
	key := sessionKey(id)
	v, ok, err := t.lookup(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		var row sessionRow
		err := t.tx.GetContext(ctx, &row, "SELECT * FROM cashbox_sessions WHERE id = $1", id)
		switch {
		case err == sql.ErrNoRows:
			t.reads[key] = captured{}
		case err != nil:
			return nil, err
		default:
			t.reads[key] = captured{version: row.Version, value: row.toModel()}
		}
		v = t.reads[key].value
	}
	if v == nil {
		return nil, store.ErrNotFound
	}
	s := v.(models.CashboxSession)
	return &s, nil
}

func (t *pgTx) OpenSession(ctx context.Context, operatorID string) (*models.CashboxSession, error) {
	key := openKey(operatorID)
	v, ok, err := t.lookup(key)
	if err != nil {
		return nil, err
	}
	if ok {
		if v == nil {
			return nil, store.ErrNotFound
		}
		return t.Session(ctx, v.(string))
	}

	var row sessionRow
	err = t.tx.GetContext(ctx, &row,
		"SELECT * FROM cashbox_sessions WHERE operator_id = $1 AND status = $2", operatorID, models.SessionStatusOpen)
	if err == sql.ErrNoRows {
		t.reads[key] = captured{}
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	t.reads[key] = captured{version: 1, value: row.ID}
	if _, seen := t.reads[sessionKey(row.ID)]; !seen {
		t.reads[sessionKey(row.ID)] = captured{version: row.Version, value: row.toModel()}
	}
	return t.Session(ctx, row.ID)
}

func (t *pgTx) PutProduct(p models.Product) {
	t.wrote = true
	t.writes[productKey(p.ID)] = p.Clone()
}

func (t *pgTx) PutPurchase(p models.Purchase) {
	t.wrote = true
	t.writes[purchaseKey(p.ID)] = p.Clone()
}

func (t *pgTx) PutCounter(c models.Counter) {
	t.wrote = true
	t.writes[counterKey(c.Key)] = c
}

func (t *pgTx) PutSession(s models.CashboxSession) {
	t.wrote = true
	t.writes[sessionKey(s.ID)] = s
	// the partial unique index enforces one open session; the local view follows the write
	if s.IsOpen() {
		t.writes[openKey(s.OperatorID)] = s.ID
	} else {
		t.writes[openKey(s.OperatorID)] = nil
	}
}

func (t *pgTx) AppendAudit(e models.AuditLogEntry) {
	t.wrote = true
	t.audit = append(t.audit, e)
}

// flush applies the write-set in key order with version guards
func (t *pgTx) flush(ctx context.Context) error {
	keys := make([]string, 0, len(t.writes))
	for k := range t.writes {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		version := t.reads[k].version
		var err error
		switch v := t.writes[k].(type) {
		case models.Product:
			err = t.writeProduct(ctx, v, version)
		case models.Counter:
			err = t.writeCounter(ctx, v, version)
		case models.Purchase:
			err = t.writePurchase(ctx, v, version)
		case models.CashboxSession:
			err = t.writeSession(ctx, v, version)
		}
		if err != nil {
			return err
		}
	}

	for _, e := range t.audit {
		_, err := t.tx.ExecContext(ctx,
			"INSERT INTO audit_log (id, timestamp, actor_id, actor_name, action, details) VALUES ($1, $2, $3, $4, $5, $6)",
			e.ID, e.Timestamp, e.ActorID, e.ActorName, string(e.Action), e.Details)
		if err != nil {
			return fmt.Errorf("failed to append audit entry: %w", err)
		}
	}
	return nil
}

func (t *pgTx) writeProduct(ctx context.Context, p models.Product, version int64) error {
	if version > 0 {
		return expectOne(t.tx.ExecContext(ctx, `
			UPDATE products SET name = $1, price = $2, stock = $3, pre_sale_reserved = $4,
				availability_channels = $5, updated_at = NOW(), version = version + 1
			WHERE id = $6 AND version = $7`,
			p.Name, p.Price, p.Stock, p.PreSaleReserved, channelsArray(p.AvailabilityChannels), p.ID, version))
	}
	return expectOne(t.tx.ExecContext(ctx, `
		INSERT INTO products (id, name, price, stock, pre_sale_reserved, availability_channels, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Name, p.Price, p.Stock, p.PreSaleReserved, channelsArray(p.AvailabilityChannels), p.CreatedAt, p.UpdatedAt))
}

func (t *pgTx) writeCounter(ctx context.Context, c models.Counter, version int64) error {
	if version > 0 {
		return expectOne(t.tx.ExecContext(ctx,
			"UPDATE purchase_counters SET count = $1, version = version + 1 WHERE key = $2 AND version = $3",
			c.Count, c.Key, version))
	}
	return expectOne(t.tx.ExecContext(ctx,
		"INSERT INTO purchase_counters (key, count) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING",
		c.Key, c.Count))
}

func (t *pgTx) writePurchase(ctx context.Context, p models.Purchase, version int64) error {
	items, err := json.Marshal(p.Items)
	if err != nil {
		return fmt.Errorf("failed to encode items: %w", err)
	}
	if version > 0 {
		return expectOne(t.tx.ExecContext(ctx, `
			UPDATE purchases SET date = $1, items = $2, customer_identifier = $3, customer_phone = $4,
				seller_id = $5, seller_name = $6, total = $7, status = $8, version = version + 1
			WHERE id = $9 AND version = $10`,
			p.Date, items, p.CustomerIdentifier, p.CustomerPhone, p.SellerID, p.SellerName, p.Total, string(p.Status),
			p.ID, version))
	}
	return expectOne(t.tx.ExecContext(ctx, `
		INSERT INTO purchases (id, date, items, customer_identifier, customer_phone, seller_id, seller_name, total, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		p.ID, p.Date, items, p.CustomerIdentifier, p.CustomerPhone, p.SellerID, p.SellerName, p.Total, string(p.Status)))
}

func (t *pgTx) writeSession(ctx context.Context, s models.CashboxSession, version int64) error {
	var closing any
	if s.ClosingBalance != nil {
		closing = *s.ClosingBalance
	}
	if version > 0 {
		return expectOne(t.tx.ExecContext(ctx, `
			UPDATE cashbox_sessions SET status = $1, total_sales = $2, closing_balance = $3, closed_at = $4,
				version = version + 1
			WHERE id = $5 AND version = $6`,
			s.Status, s.TotalSales, closing, s.ClosedAt, s.ID, version))
	}
	return expectOne(t.tx.ExecContext(ctx, `
		INSERT INTO cashbox_sessions (id, operator_id, operator_name, status, opening_balance, total_sales, opened_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		s.ID, s.OperatorID, s.OperatorName, s.Status, s.OpeningBalance, s.TotalSales, s.OpenedAt))
}

// expectOne reports a conflict when the guarded statement touched no row
func expectOne(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return store.ErrConflict
	}
	return nil
}

var _ store.Tx = (*pgTx)(nil)
