package main

import (
	"context"
	"log/slog"

	"github.com/listkeep/listkeep/internal/auth"
	"github.com/listkeep/listkeep/internal/auth/memory"
	"github.com/listkeep/listkeep/internal/auth/postgres"
	"github.com/listkeep/listkeep/internal/config"
	"github.com/listkeep/listkeep/internal/items"
	"github.com/listkeep/listkeep/internal/observability"
	"github.com/listkeep/listkeep/internal/store"
)

// ServeDeps contains injectable dependencies for the serve command.
// All fields with nil values will use their default implementations.
type ServeDeps struct {
	// BackendFactory opens the configured storage backend.
	// Default: openBackend
	BackendFactory BackendFactory

	// MigratorFactory creates a migrator for auto-migration.
	// Default: store.NewMigrator
	MigratorFactory func(databaseURL string) (AutoMigrator, error)

	// ObservabilityServerFactory creates an observability server that logs
	// through logger.
	// Default: observability.NewServer
	ObservabilityServerFactory func(addr string, readinessChecker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer

	// OnReady is called once every listener is bound.
	OnReady func(webAddr, metricsAddr string)
}

func (d *ServeDeps) withDefaults() *ServeDeps {
	out := ServeDeps{}
	if d != nil {
		out = *d
	}
	if out.BackendFactory == nil {
		out.BackendFactory = openBackend
	}
	if out.MigratorFactory == nil {
		out.MigratorFactory = func(databaseURL string) (AutoMigrator, error) {
			return store.NewMigrator(databaseURL)
		}
	}
	if out.ObservabilityServerFactory == nil {
		out.ObservabilityServerFactory = func(addr string, readinessChecker observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			return observability.NewServer(addr, readinessChecker).WithLogger(logger)
		}
	}
	if out.OnReady == nil {
		out.OnReady = func(string, string) {}
	}
	return &out
}

// BackendFactory opens a storage backend.
type BackendFactory func(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error)

// AutoMigrator is the part of store.Migrator used at startup.
type AutoMigrator interface {
	Up() error
	Close() error
}

// ObservabilityServer is the part of observability.Server used by serve.
type ObservabilityServer interface {
	Start() (<-chan error, error)
	Stop(ctx context.Context) error
	Addr() string
	Metrics() *observability.Metrics
}

// Backend bundles the repositories of one storage backend.
type Backend struct {
	Users    auth.UserRepository
	Items    items.Store
	Sessions auth.SessionRepository
	// Pinger backs the readiness probe; nil means always ready.
	Pinger store.Pinger
	Close  func()
}

// openBackend opens the backend named by cfg.Storage.
func openBackend(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Backend, error) {
	if cfg.Storage == config.StorageMemory {
		return newMemoryBackend(), nil
	}

	opts := store.DefaultConnectOptions()
	opts.Logger = logger
	pool, err := store.Open(ctx, cfg.Database.URL, opts)
	if err != nil {
		return nil, err
	}

	users := postgres.NewUserRepository(pool)
	return &Backend{
		Users:    users,
		Items:    users,
		Sessions: postgres.NewSessionRepository(pool),
		Pinger:   pool,
		Close:    pool.Close,
	}, nil
}

func newMemoryBackend() *Backend {
	users := memory.NewUserRepository()
	sessions := memory.NewSessionRepository()
	users.CascadeSessions(sessions)
	return &Backend{
		Users:    users,
		Items:    users,
		Sessions: sessions,
		Close:    func() {},
	}
}

// Compile-time interface checks.
var (
	_ AutoMigrator        = (*store.Migrator)(nil)
	_ ObservabilityServer = (*observability.Server)(nil)
)
