// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/listkeep/listkeep/internal/auth"
	"github.com/listkeep/listkeep/internal/config"
	"github.com/listkeep/listkeep/internal/items"
	"github.com/listkeep/listkeep/internal/logging"
	"github.com/listkeep/listkeep/internal/observability"
	"github.com/listkeep/listkeep/internal/store"
	"github.com/listkeep/listkeep/internal/web"
)

const (
	readinessTimeout = 2 * time.Second
	cleanupTimeout   = 5 * time.Second
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the web server",
		Long: `Start the listkeep web server, the session sweeper and, unless
--metrics-addr is empty, the metrics and health listener.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	config.RegisterFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps runs the server until ctx is canceled, SIGINT or SIGTERM
// arrives, or a listener fails. If deps is nil, default implementations
// are used.
func runServeWithDeps(ctx context.Context, cfg *config.Config, cmd *cobra.Command, deps *ServeDeps) error {
	deps = deps.withDefaults()

	if err := cfg.Validate(); err != nil {
		return oops.With("operation", "validate configuration").Wrap(err)
	}

	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return err
	}
	logger := logging.SetDefault("listkeep", version, cfg.Log.Format, level)

	logger.Info("starting listkeep",
		"http_addr", cfg.HTTP.Addr,
		"storage", cfg.Storage,
		"session_ttl", cfg.Session.TTL.String(),
	)

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := deps.BackendFactory(ctx, cfg, logger)
	if err != nil {
		return oops.With("operation", "open storage").With("storage", cfg.Storage).Wrap(err)
	}
	defer backend.Close()

	// The backend open waits out a database that is still starting, so the
	// migrator connects to a server that is known to be up.
	if cfg.Storage == config.StoragePostgres && cfg.Database.AutoMigrate {
		if err := autoMigrate(cfg.Database.URL, deps.MigratorFactory, logger); err != nil {
			return err
		}
	}

	var obsServer ObservabilityServer
	var metrics *observability.Metrics
	if cfg.Metrics.Addr != "" {
		obsServer = deps.ObservabilityServerFactory(cfg.Metrics.Addr, store.ReadinessCheck(backend.Pinger, readinessTimeout), logger)
		metrics = obsServer.Metrics()
	}

	webServer, sweeper, err := buildApp(cfg, backend, metrics, logger)
	if err != nil {
		return err
	}

	var obsErrCh <-chan error
	if obsServer != nil {
		obsErrCh, err = obsServer.Start()
		if err != nil {
			return oops.With("operation", "start observability server").Wrap(err)
		}
	}

	webErrCh, err := webServer.Start()
	if err != nil {
		stopObservability(obsServer, logger)
		return oops.With("operation", "start web server").Wrap(err)
	}

	sweeper.Start(ctx)

	metricsAddr := ""
	if obsServer != nil {
		metricsAddr = obsServer.Addr()
	}
	cmd.Println("listkeep started")
	logger.Info("listkeep ready", "http_addr", webServer.Addr(), "metrics_addr", metricsAddr)
	deps.OnReady(webServer.Addr(), metricsAddr)

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err := <-webErrCh:
		serveErr = oops.With("server", "web").Wrap(err)
	case err := <-obsErrCh:
		serveErr = oops.With("server", "observability").Wrap(err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	if err := webServer.Stop(shutdownCtx); err != nil {
		logger.Warn("error stopping web server", "error", err)
	}
	sweeper.Stop()
	stopObservability(obsServer, logger)

	if serveErr != nil {
		return serveErr
	}
	logger.Info("shutdown complete")
	return nil
}

// buildApp wires the auth and item services over backend.
func buildApp(cfg *config.Config, backend *Backend, metrics *observability.Metrics, logger *slog.Logger) (*web.Server, *auth.Sweeper, error) {
	hasher, err := auth.NewBoundedHasher(auth.NewArgon2idHasher(), cfg.Hash.Concurrency)
	if err != nil {
		return nil, nil, err
	}
	manager, err := auth.NewSessionManager(backend.Sessions,
		auth.WithSessionTTL(cfg.Session.TTL),
		auth.WithSessionLogger(logger),
	)
	if err != nil {
		return nil, nil, err
	}
	authService, err := auth.NewAuthServiceWithLogger(backend.Users, manager, hasher, logger)
	if err != nil {
		return nil, nil, err
	}
	gate, err := auth.NewGate(manager, backend.Users, logger)
	if err != nil {
		return nil, nil, err
	}
	itemService, err := items.NewService(backend.Items, logger)
	if err != nil {
		return nil, nil, err
	}
	renderer, err := web.NewTemplateRenderer()
	if err != nil {
		return nil, nil, err
	}

	webServer, err := web.NewServer(web.Options{
		Addr:         cfg.HTTP.Addr,
		CookieName:   cfg.Session.Cookie,
		CookieSecure: cfg.Session.Secure,
		SessionTTL:   cfg.Session.TTL,
	}, web.Deps{
		Auth:     authService,
		Gate:     gate,
		Items:    itemService,
		Renderer: renderer,
		Metrics:  metrics,
		Logger:   logger,
	})
	if err != nil {
		return nil, nil, err
	}

	sweeper := auth.NewSweeper(manager, cfg.Session.Sweep, logger, metrics.AddSessionsPruned)
	return webServer, sweeper, nil
}

// autoMigrate applies pending migrations before any listener starts.
func autoMigrate(databaseURL string, factory func(string) (AutoMigrator, error), logger *slog.Logger) error {
	migrator, err := factory(databaseURL)
	if err != nil {
		return oops.With("operation", "create migrator").Wrap(err)
	}
	defer func() {
		if closeErr := migrator.Close(); closeErr != nil {
			logger.Warn("failed to close migrator", "error", closeErr)
		}
	}()

	if err := migrator.Up(); err != nil {
		return oops.With("operation", "auto-migrate").Wrap(err)
	}
	logger.Info("database migrations applied")
	return nil
}

func stopObservability(obsServer ObservabilityServer, logger *slog.Logger) {
	if obsServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), cleanupTimeout)
	defer cancel()
	if err := obsServer.Stop(ctx); err != nil {
		logger.Warn("error stopping observability server", "error", err)
	}
}
