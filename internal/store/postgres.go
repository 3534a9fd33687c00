// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

// Package store owns the PostgreSQL connection and schema migrations.
package store

import (
	"context"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

// ConnectOptions tunes how Open waits for the database.
type ConnectOptions struct {
	// MaxRetries bounds connection attempts after the first. Zero means no retry.
	MaxRetries uint64
	// InitialBackoff is the first retry delay; it doubles per attempt.
	InitialBackoff time.Duration
	// MaxConns caps the pool size. Zero keeps the pgxpool default.
	MaxConns int32
	Logger   *slog.Logger
}

// DefaultConnectOptions retries for roughly half a minute.
func DefaultConnectOptions() ConnectOptions {
	return ConnectOptions{
		MaxRetries:     6,
		InitialBackoff: 500 * time.Millisecond,
		Logger:         slog.Default(),
	}
}

// Open builds a pool for databaseURL and pings it, retrying with
// exponential backoff while the server is unreachable.
func Open(ctx context.Context, databaseURL string, opts ConnectOptions) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, oops.Code("DB_CONFIG_INVALID").Wrap(err)
	}
	if opts.MaxConns > 0 {
		cfg.MaxConns = opts.MaxConns
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	backoff := opts.InitialBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, oops.Code("DB_CONNECT_FAILED").Wrap(err)
	}

	attempt := 0
	err = retry.Do(ctx, retry.WithMaxRetries(opts.MaxRetries, retry.NewExponential(backoff)), func(ctx context.Context) error {
		attempt++
		if pingErr := pool.Ping(ctx); pingErr != nil {
			logger.Warn("database not ready", "attempt", attempt, "error", pingErr)
			return retry.RetryableError(pingErr)
		}
		return nil
	})
	if err != nil {
		pool.Close()
		return nil, oops.Code("DB_CONNECT_FAILED").With("attempts", attempt).Wrap(err)
	}

	logger.Info("database connected", "attempts", attempt)
	return pool, nil
}

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadinessCheck adapts a Pinger to the observability readiness probe.
// A nil pinger always reports ready.
func ReadinessCheck(p Pinger, timeout time.Duration) func() bool {
	return func() bool {
		if p == nil {
			return true
		}
		ctx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()
		return p.Ping(ctx) == nil
	}
}
