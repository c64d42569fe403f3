package db

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Options tunes the pool beyond what the DSN carries.
type Options struct {
	Schema           string
	StatementTimeout time.Duration
	MaxConns         int32
	// ApplicationName shows up in pg_stat_activity.
	ApplicationName string
	// ConnectAttempts retries the startup ping while Postgres comes up.
	ConnectAttempts int
	ConnectBackoff  time.Duration
}

// New creates a PostgreSQL pool whose connections resolve unqualified names in
// Options.Schema. It returns once a ping succeeds.
func New(ctx context.Context, dsn string, opts Options) (*pgxpool.Pool, error) {
	config, err := PoolConfig(dsn, opts)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("platform/db: new pool: %w", err)
	}
	if err := waitReady(ctx, pool, opts); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// PoolConfig parses dsn and applies opts as connection runtime parameters.
func PoolConfig(dsn string, opts Options) (*pgxpool.Config, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("platform/db: parse config: %w", err)
	}
	if opts.MaxConns > 0 {
		config.MaxConns = opts.MaxConns
	}
	params := config.ConnConfig.RuntimeParams
	if opts.Schema != "" {
		params["search_path"] = pgx.Identifier{opts.Schema}.Sanitize()
	}
	if opts.StatementTimeout > 0 {
		params["statement_timeout"] = strconv.FormatInt(opts.StatementTimeout.Milliseconds(), 10)
	}
	if opts.ApplicationName != "" {
		params["application_name"] = opts.ApplicationName
	}
	return config, nil
}

func waitReady(ctx context.Context, pool *pgxpool.Pool, opts Options) error {
	attempts := max(opts.ConnectAttempts, 1)
	backoff := opts.ConnectBackoff
	if backoff <= 0 {
		backoff = time.Second
	}
	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err = pool.Ping(ctx); err == nil {
			return nil
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("platform/db: ping: %w", ctx.Err())
		case <-time.After(backoff * time.Duration(attempt)):
		}
	}
	return fmt.Errorf("platform/db: ping after %d attempts: %w", attempts, err)
}
