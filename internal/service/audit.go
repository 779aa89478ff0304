package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
)

// AuditTrail records sensitive actions. Entries are written inside the
// transaction of the action they describe and never change afterwards.
type AuditTrail struct {
	store store.Store
}

// NewAuditTrail creates a new audit trail
func NewAuditTrail(st store.Store) *AuditTrail {
	return &AuditTrail{store: st}
}

// Append adds an entry to tx. It is applied only if tx commits.
func (a *AuditTrail) Append(tx store.Tx, actor models.Actor, action models.AuditAction, details string) {
	tx.AppendAudit(models.AuditLogEntry{
		ID:        uuid.New().String(),
		Timestamp: time.Now().UTC(),
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Action:    action,
		Details:   details,
	})
}

// List returns up to limit entries, most recent first
func (a *AuditTrail) List(ctx context.Context, limit int) ([]models.AuditLogEntry, error) {
	return a.store.ListAuditLog(ctx, limit)
}
