package service

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	"go.uber.org/zap"

	"pos-ledger/internal/store"
	"pos-ledger/internal/util"
)

// TxRunner runs ledger transactions against the store and transparently
// retries optimistic conflicts a bounded number of times.
type TxRunner struct {
	store       store.Store
	maxAttempts int
	baseDelay   time.Duration
	logger      *zap.Logger
}

// NewTxRunner creates a runner. maxAttempts below 1 means a single attempt.
func NewTxRunner(st store.Store, maxAttempts int, baseDelay time.Duration) *TxRunner {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &TxRunner{
		store:       st,
		maxAttempts: maxAttempts,
		baseDelay:   baseDelay,
		logger:      util.Named("tx"),
	}
}

// Run executes fn until it commits, fails with a non-conflict error, or the
// attempts are exhausted. fn must be safe to re-run: every attempt starts from
// a fresh transaction.
func (r *TxRunner) Run(ctx context.Context, op string, fn store.TxFunc) error {
	start := time.Now()
	defer func() {
		util.LedgerTxLatency.WithLabelValues(op).Observe(time.Since(start).Seconds())
	}()

	for attempt := 1; ; attempt++ {
		err := r.store.RunTx(ctx, fn)
		if err == nil {
			util.LedgerTxTotal.WithLabelValues(op, "committed").Inc()
			return nil
		}
		if !errors.Is(err, store.ErrConflict) {
			util.LedgerTxTotal.WithLabelValues(op, "aborted").Inc()
			return err
		}

		util.LedgerTxConflictsTotal.WithLabelValues(op).Inc()
		if attempt >= r.maxAttempts {
			util.LedgerTxTotal.WithLabelValues(op, "failed").Inc()
			r.logger.Warn("Transaction retries exhausted",
				zap.String("op", op),
				zap.Int("attempts", attempt))
			return fmt.Errorf("%w: %s after %d attempts: %w", ErrTransactionFailed, op, attempt, ErrTransactionConflict)
		}

		r.logger.Debug("Transaction conflict, retrying",
			zap.String("op", op),
			zap.Int("attempt", attempt))
		if err := r.backoff(ctx, attempt); err != nil {
			return err
		}
	}
}

func (r *TxRunner) backoff(ctx context.Context, attempt int) error {
	if r.baseDelay <= 0 {
		return nil
	}
	shift := attempt - 1
	if shift > 5 {
		shift = 5
	}
	ceiling := r.baseDelay << shift
	delay := r.baseDelay/2 + time.Duration(rand.Int63n(int64(ceiling)))

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
