package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/freelance-market/backend/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// TxRunner is the unit-of-work boundary for settlement operations: fn runs
// inside one transaction and its effects commit together or not at all.
type TxRunner interface {
	WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error
}

// PgxTxRunner runs fn in a pgx transaction. Serialization conflicts and
// deadlocks are retried as a fresh read-guard-write cycle a bounded number
// of times; business errors from fn pass through untouched.
type PgxTxRunner struct {
	pool        *pgxpool.Pool
	maxAttempts int
	baseBackoff time.Duration
	opTimeout   time.Duration
	log         *zap.Logger
}

func NewPgxTxRunner(pool *pgxpool.Pool, maxAttempts int, baseBackoff, opTimeout time.Duration, log *zap.Logger) *PgxTxRunner {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	if baseBackoff <= 0 {
		baseBackoff = 50 * time.Millisecond
	}
	if opTimeout <= 0 {
		opTimeout = 10 * time.Second
	}
	return &PgxTxRunner{pool: pool, maxAttempts: maxAttempts, baseBackoff: baseBackoff, opTimeout: opTimeout, log: log}
}

func (r *PgxTxRunner) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		if attempt > 0 {
			backoff := r.baseBackoff << (attempt - 1)
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			r.log.Debug("retrying settlement transaction",
				zap.Int("attempt", attempt+1),
				zap.Error(lastErr),
			)
		}

		err := r.runOnce(ctx, fn)
		if err == nil {
			return nil
		}
		if !isTransient(err) {
			return err
		}
		lastErr = err
	}

	return fmt.Errorf("%w: %v", models.ErrTransientStore, lastErr)
}

func (r *PgxTxRunner) runOnce(ctx context.Context, fn func(tx pgx.Tx) error) error {
	ctx, cancel := context.WithTimeout(ctx, r.opTimeout)
	defer cancel()

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	// Rollback after commit is a no-op; on caller cancellation it aborts
	// the in-flight transaction leaving no partial effect.
	defer tx.Rollback(ctx)

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// isTransient reports whether the error is infrastructure flakiness worth a
// fresh attempt: serialization failure, deadlock, lock timeout, or a broken
// connection. Guard violations never match.
func isTransient(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03":
			return true
		}
		// Class 08: connection exceptions
		return len(pgErr.Code) >= 2 && pgErr.Code[:2] == "08"
	}
	return errors.Is(err, context.DeadlineExceeded)
}
