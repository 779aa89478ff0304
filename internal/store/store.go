package store

import (
	"context"
	"errors"

	"pos-ledger/internal/models"
)

var (
	// ErrNotFound is returned when a record does not exist
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a transaction's read-set changed before commit.
	// Nothing from the attempt was applied; the caller may retry.
	ErrConflict = errors.New("transaction conflict")

	// ErrReadAfterWrite is returned when a transaction reads a record it has not
	// captured yet after it already buffered a write
	ErrReadAfterWrite = errors.New("read of uncaptured record after write")
)

// Tx is one optimistic transaction attempt.
//
// Reads capture the record version; repeated reads of a captured record return
// the captured value, or the value this Tx wrote. Writes are buffered and only
// applied by a successful commit, which checks every captured version is
// unchanged and every write to an uncaptured record is an insert.
type Tx interface {
	Product(ctx context.Context, id string) (*models.Product, error)
	Purchase(ctx context.Context, id string) (*models.Purchase, error)
	// Counter returns a zero count when the counter does not exist yet
	Counter(ctx context.Context, key string) (*models.Counter, error)
	Session(ctx context.Context, id string) (*models.CashboxSession, error)
	// OpenSession returns ErrNotFound when the operator has no open session
	OpenSession(ctx context.Context, operatorID string) (*models.CashboxSession, error)

	PutProduct(p models.Product)
	PutPurchase(p models.Purchase)
	PutCounter(c models.Counter)
	PutSession(s models.CashboxSession)
	AppendAudit(e models.AuditLogEntry)
}

// TxFunc is the body of a transaction attempt
type TxFunc func(ctx context.Context, tx Tx) error

// Store is the persistence backend of the ledger
type Store interface {
	// RunTx runs fn once and commits its writes atomically. A non-nil error from
	// fn discards every write. Returns ErrConflict when validation fails.
	RunTx(ctx context.Context, fn TxFunc) error

	ListProducts(ctx context.Context) ([]models.Product, error)
	GetPurchase(ctx context.Context, id string) (*models.Purchase, error)
	ListPurchasesByCustomer(ctx context.Context, customerIdentifier string) ([]models.Purchase, error)
	ListRecentPurchases(ctx context.Context, channel models.Channel, limit int) ([]models.Purchase, error)
	ListSessions(ctx context.Context, operatorID string, limit int) ([]models.CashboxSession, error)
	// ListAuditLog returns entries most-recent first
	ListAuditLog(ctx context.Context, limit int) ([]models.AuditLogEntry, error)

	Ping(ctx context.Context) error
	Close() error
}
