package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
)

// Beginner starts transactions. *pgxpool.Pool satisfies it.
type Beginner interface {
	BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

// TxOptions configures RunTx.
type TxOptions struct {
	Level    pgx.TxIsoLevel
	ReadOnly bool
	// Attempts bounds how often fn runs when Postgres aborts the transaction with a
	// serialization failure or deadlock. Values below one mean a single attempt.
	Attempts int
}

// WithTx runs fn at repeatable read, retrying serialization failures up to three times.
func WithTx(ctx context.Context, pool Beginner, fn func(pgx.Tx) error) error {
	return RunTx(ctx, pool, TxOptions{Level: pgx.RepeatableRead, Attempts: 3}, fn)
}

// RunTx executes fn inside a transaction. fn may run more than once, so it must not
// have side effects outside tx.
func RunTx(ctx context.Context, pool Beginner, opts TxOptions, fn func(pgx.Tx) error) error {
	attempts := max(opts.Attempts, 1)
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = runOnce(ctx, pool, opts, fn)
		if err == nil || !Retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("platform/db: tx aborted after %d attempts: %w", attempts, err)
}

func runOnce(ctx context.Context, pool Beginner, opts TxOptions, fn func(pgx.Tx) error) error {
	access := pgx.ReadWrite
	if opts.ReadOnly {
		access = pgx.ReadOnly
	}
	tx, err := pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: opts.Level, AccessMode: access})
	if err != nil {
		return fmt.Errorf("platform/db: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("platform/db: commit tx: %w", MapError(err))
	}
	return nil
}

// Retryable reports whether err is a transient conflict that a fresh transaction can resolve.
func Retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == codeSerializationFailure || pgErr.Code == codeDeadlockDetected
}
