package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrTxConflict is returned once a transaction keeps hitting serialization
// conflicts after the bounded retry budget. Safe for callers to retry with
// backoff.
var ErrTxConflict = errors.New("platform/db: transaction conflict, retries exhausted")

// WithTx executes a function within a transaction using the RepeatableRead
// isolation level.
func WithTx(ctx context.Context, pool *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}

	defer func() {
		_ = tx.Rollback(ctx)
	}()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", err)
	}

	return nil
}

// WithTxRetry runs fn inside WithTx and retries the whole transaction when the
// store reports a serialization failure or deadlock. The callback must be safe
// to re-execute from scratch; attempts below 1 are treated as a single attempt.
func WithTxRetry(ctx context.Context, pool *pgxpool.Pool, attempts int, fn func(pgx.Tx) error) error {
	if attempts < 1 {
		attempts = 1
	}
	var err error
	for i := 0; i < attempts; i++ {
		err = WithTx(ctx, pool, fn)
		if err == nil || !IsSerializationError(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return fmt.Errorf("%w: %v", ErrTxConflict, err)
}

// IsSerializationError reports whether err is a PostgreSQL serialization
// failure (40001) or deadlock (40P01), both of which warrant a transaction
// retry.
func IsSerializationError(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
