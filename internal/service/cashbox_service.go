package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"pos-ledger/internal/models"
	"pos-ledger/internal/store"
	"pos-ledger/internal/util"
)

// CashboxService tracks operator till sessions. At most one session per
// operator is open at any time.
type CashboxService struct {
	store  store.Store
	runner *TxRunner
	audit  *AuditTrail
	logger *zap.Logger
}

// NewCashboxService creates a new cashbox service
func NewCashboxService(st store.Store, runner *TxRunner, audit *AuditTrail) *CashboxService {
	return &CashboxService{
		store:  st,
		runner: runner,
		audit:  audit,
		logger: util.Named("cashbox"),
	}
}

// Open starts a session for the operator
func (s *CashboxService) Open(ctx context.Context, operator models.Actor, openingBalance decimal.Decimal) (*models.CashboxSession, error) {
	ctx, span := util.StartSpan(ctx, "CashboxService.Open", attribute.String("operator_id", operator.ID))
	defer span.End()

	if operator.ID == "" {
		return nil, ErrForbidden
	}
	if openingBalance.IsNegative() {
		return nil, ErrInvalidAmount
	}

	var opened models.CashboxSession
	err := s.runner.Run(ctx, "cashbox_open", func(ctx context.Context, tx store.Tx) error {
		existing, err := tx.OpenSession(ctx, operator.ID)
		if err == nil {
			return fmt.Errorf("%w: operator %s has session %s", ErrSessionAlreadyOpen, operator.ID, existing.ID)
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}

		opened = models.CashboxSession{
			ID:             uuid.New().String(),
			OperatorID:     operator.ID,
			OperatorName:   operator.Name,
			Status:         models.SessionStatusOpen,
			OpeningBalance: openingBalance,
			TotalSales:     decimal.Zero,
			OpenedAt:       time.Now().UTC(),
		}
		tx.PutSession(opened)
		s.audit.Append(tx, operator, models.AuditCashboxOpened,
			fmt.Sprintf("session %s opened with balance %s", opened.ID, openingBalance.StringFixed(2)))
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Cashbox session opened",
		zap.String("session_id", opened.ID),
		zap.String("operator_id", operator.ID))
	return &opened, nil
}

// Close ends a session. Only its operator or an admin may close it.
func (s *CashboxService) Close(ctx context.Context, sessionID string, closingBalance decimal.Decimal, actor models.Actor) (*models.CashboxSession, error) {
	ctx, span := util.StartSpan(ctx, "CashboxService.Close", attribute.String("session_id", sessionID))
	defer span.End()

	if closingBalance.IsNegative() {
		return nil, ErrInvalidAmount
	}

	var closed models.CashboxSession
	err := s.runner.Run(ctx, "cashbox_close", func(ctx context.Context, tx store.Tx) error {
		session, err := tx.Session(ctx, sessionID)
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		if err != nil {
			return err
		}
		if session.OperatorID != actor.ID && !actor.IsAdmin() {
			return ErrNotOwner
		}
		if !session.IsOpen() {
			return ErrAlreadyClosed
		}

		now := time.Now().UTC()
		balance := closingBalance
		session.Status = models.SessionStatusClosed
		session.ClosingBalance = &balance
		session.ClosedAt = &now
		tx.PutSession(*session)
		s.audit.Append(tx, actor, models.AuditCashboxClosed,
			fmt.Sprintf("session %s of %s closed with balance %s, sales %s",
				session.ID, session.OperatorID, balance.StringFixed(2), session.TotalSales.StringFixed(2)))
		closed = *session
		return nil
	})
	if err != nil {
		util.RecordError(span, err)
		return nil, err
	}

	s.logger.Info("Cashbox session closed",
		zap.String("session_id", closed.ID),
		zap.String("operator_id", closed.OperatorID),
		zap.String("closed_by", actor.ID))
	return &closed, nil
}

// AddSale increments the operator's open session inside tx. It must run in
// the same transaction as the sale it accounts for.
func (s *CashboxService) AddSale(ctx context.Context, tx store.Tx, operatorID string, amount decimal.Decimal) (*models.CashboxSession, error) {
	if amount.IsNegative() {
		return nil, ErrInvalidAmount
	}
	session, err := tx.OpenSession(ctx, operatorID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("%w: operator %s", ErrNoActiveSession, operatorID)
	}
	if err != nil {
		return nil, err
	}
	session.TotalSales = session.TotalSales.Add(amount)
	tx.PutSession(*session)
	return session, nil
}

// GetActive returns the operator's open session
func (s *CashboxService) GetActive(ctx context.Context, operatorID string) (*models.CashboxSession, error) {
	var active *models.CashboxSession
	err := s.runner.Run(ctx, "cashbox_active", func(ctx context.Context, tx store.Tx) error {
		session, err := tx.OpenSession(ctx, operatorID)
		if errors.Is(err, store.ErrNotFound) {
			return ErrNoActiveSession
		}
		active = session
		return err
	})
	if err != nil {
		return nil, err
	}
	return active, nil
}

// ListSessions returns sessions newest first; empty operatorID lists all
func (s *CashboxService) ListSessions(ctx context.Context, operatorID string, limit int) ([]models.CashboxSession, error) {
	return s.store.ListSessions(ctx, operatorID, limit)
}
