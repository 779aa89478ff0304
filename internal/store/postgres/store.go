package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
)

const schema = `
CREATE TABLE IF NOT EXISTS products (
	id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	price NUMERIC(12,2) NOT NULL,
	stock INTEGER NOT NULL CHECK (stock >= 0),
	pre_sale_reserved INTEGER NOT NULL DEFAULT 0 CHECK (pre_sale_reserved >= 0),
	availability_channels TEXT[] NOT NULL DEFAULT '{}',
	version BIGINT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS purchase_counters (
	key TEXT PRIMARY KEY,
	count BIGINT NOT NULL CHECK (count >= 0),
	version BIGINT NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS purchases (
	id TEXT PRIMARY KEY,
	date TIMESTAMPTZ NOT NULL,
	items JSONB NOT NULL,
	customer_identifier TEXT NOT NULL,
	customer_phone TEXT NOT NULL DEFAULT '',
	seller_id TEXT NOT NULL DEFAULT '',
	seller_name TEXT NOT NULL DEFAULT '',
	total NUMERIC(12,2) NOT NULL,
	status TEXT NOT NULL,
	version BIGINT NOT NULL DEFAULT 1
);

CREATE INDEX IF NOT EXISTS idx_purchases_customer ON purchases(customer_identifier, date DESC);
CREATE INDEX IF NOT EXISTS idx_purchases_date ON purchases(date DESC);

CREATE TABLE IF NOT EXISTS cashbox_sessions (
	id TEXT PRIMARY KEY,
	operator_id TEXT NOT NULL,
	operator_name TEXT NOT NULL,
	status TEXT NOT NULL,
	opening_balance NUMERIC(12,2) NOT NULL,
	total_sales NUMERIC(12,2) NOT NULL DEFAULT 0 CHECK (total_sales >= 0),
	opened_at TIMESTAMPTZ NOT NULL,
	closing_balance NUMERIC(12,2),
	closed_at TIMESTAMPTZ,
	version BIGINT NOT NULL DEFAULT 1
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_cashbox_one_open_per_operator
	ON cashbox_sessions(operator_id) WHERE status = 'open';

CREATE TABLE IF NOT EXISTS audit_log (
	id TEXT PRIMARY KEY,
	timestamp TIMESTAMPTZ NOT NULL,
	actor_id TEXT NOT NULL,
	actor_name TEXT NOT NULL,
	action TEXT NOT NULL,
	details TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_audit_log_timestamp ON audit_log(timestamp DESC);
`

// Store is the PostgreSQL ledger backend. Every RunTx attempt is a SERIALIZABLE
// transaction and every update is guarded by the row version read in it.
type Store struct {
	db *sqlx.DB
}

// NewStore connects to the database and migrates the schema
func NewStore(databaseURL string) (*Store, error) {
	db, err := sqlx.Connect("postgres", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Migrate creates the schema when missing
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to migrate database: %w", err)
	}
	return nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the connection
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// RunTx runs fn in one SERIALIZABLE attempt and flushes its write-set on success
func (s *Store) RunTx(ctx context.Context, fn store.TxFunc) error {
	sqlTx, err := s.db.BeginTxx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return err
	}
	defer sqlTx.Rollback()

	tx := newPgTx(sqlTx)
	if err := fn(ctx, tx); err != nil {
		return mapError(err)
	}
	if err := tx.flush(ctx); err != nil {
		return mapError(err)
	}
	return mapError(sqlTx.Commit())
}

// mapError turns serialization failures, deadlocks and unique violations into
// store.ErrConflict so the coordinator retries them
func mapError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "40001", "40P01", "23505":
			return fmt.Errorf("%w: %s", store.ErrConflict, pqErr.Message)
		}
	}
	return err
}

// ListProducts retrieves all products
func (s *Store) ListProducts(ctx context.Context) ([]models.Product, error) {
	var rows []productRow
	if err := s.db.SelectContext(ctx, &rows, "SELECT * FROM products ORDER BY name"); err != nil {
		return nil, err
	}
	products := make([]models.Product, len(rows))
	for i, r := range rows {
		products[i] = r.toModel()
	}
	return products, nil
}

// GetPurchase retrieves a purchase by ID
func (s *Store) GetPurchase(ctx context.Context, id string) (*models.Purchase, error) {
	var row purchaseRow
	err := s.db.GetContext(ctx, &row, "SELECT * FROM purchases WHERE id = $1", id)
	if err == sql.ErrNoRows {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return row.toModel()
}

// ListPurchasesByCustomer retrieves purchases for a customer, newest first
func (s *Store) ListPurchasesByCustomer(ctx context.Context, customerIdentifier string) ([]models.Purchase, error) {
	var rows []purchaseRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM purchases WHERE customer_identifier = $1 ORDER BY date DESC, id DESC", customerIdentifier)
	if err != nil {
		return nil, err
	}
	return purchasesFromRows(rows)
}

// ListRecentPurchases retrieves the latest purchases of a channel
func (s *Store) ListRecentPurchases(ctx context.Context, channel models.Channel, limit int) ([]models.Purchase, error) {
	if limit < 1 {
		limit = 50
	}
	var rows []purchaseRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM purchases WHERE id LIKE $1 ORDER BY date DESC, id DESC LIMIT $2",
		channel.Prefix()+"%", limit)
	if err != nil {
		return nil, err
	}
	return purchasesFromRows(rows)
}

// ListSessions retrieves cashbox sessions, newest first. Empty operatorID lists all.
func (s *Store) ListSessions(ctx context.Context, operatorID string, limit int) ([]models.CashboxSession, error) {
	if limit < 1 {
		limit = 100
	}
	var rows []sessionRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM cashbox_sessions WHERE ($1 = '' OR operator_id = $1) ORDER BY opened_at DESC, id DESC LIMIT $2",
		operatorID, limit)
	if err != nil {
		return nil, err
	}
	sessions := make([]models.CashboxSession, len(rows))
	for i, r := range rows {
		sessions[i] = r.toModel()
	}
	return sessions, nil
}

// ListAuditLog retrieves audit entries, newest first
func (s *Store) ListAuditLog(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	if limit < 1 {
		limit = 200
	}
	var rows []auditRow
	err := s.db.SelectContext(ctx, &rows,
		"SELECT * FROM audit_log ORDER BY timestamp DESC LIMIT $1", limit)
	if err != nil {
		return nil, err
	}
	entries := make([]models.AuditLogEntry, len(rows))
	for i, r := range rows {
		entries[i] = r.toModel()
	}
	return entries, nil
}

func purchasesFromRows(rows []purchaseRow) ([]models.Purchase, error) {
	purchases := make([]models.Purchase, 0, len(rows))
	for _, r := range rows {
		p, err := r.toModel()
		if err != nil {
			return nil, err
		}
		purchases = append(purchases, *p)
	}
	return purchases, nil
}

var _ store.Store = (*Store)(nil)
