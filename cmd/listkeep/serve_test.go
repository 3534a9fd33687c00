// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/listkeep/listkeep/internal/config"
	"github.com/listkeep/listkeep/internal/observability"
	"github.com/listkeep/listkeep/pkg/errutil"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	t.Setenv("DATABASE_URL", "")
	cfg, err := config.Load(nil, "")
	require.NoError(t, err)
	cfg.Storage = config.StorageMemory
	cfg.HTTP.Addr = "127.0.0.1:0"
	cfg.Metrics.Addr = "127.0.0.1:0"
	cfg.HTTP.ShutdownTimeout = 2 * time.Second
	cfg.Hash.Concurrency = 2
	cfg.Log.Format = "text"
	cfg.Log.Level = "error"
	return cfg
}

func restoreDefaultLogger(t *testing.T) {
	t.Helper()
	original := slog.Default()
	t.Cleanup(func() { slog.SetDefault(original) })
}

func get(t *testing.T, client *http.Client, url string) (int, string) {
	t.Helper()
	resp, err := client.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

type serveRun struct {
	cancel      context.CancelFunc
	done        chan error
	webAddr     string
	metricsAddr string
	out         *bytes.Buffer
}

func startServe(t *testing.T, cfg *config.Config, deps *ServeDeps) *serveRun {
	t.Helper()
	restoreDefaultLogger(t)

	if deps == nil {
		deps = &ServeDeps{}
	}
	ready := make(chan [2]string, 1)
	deps.OnReady = func(webAddr, metricsAddr string) {
		ready <- [2]string{webAddr, metricsAddr}
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := NewServeCmd()
	out := new(bytes.Buffer)
	cmd.SetOut(out)

	run := &serveRun{cancel: cancel, done: make(chan error, 1), out: out}
	go func() { run.done <- runServeWithDeps(ctx, cfg, cmd, deps) }()

	select {
	case addrs := <-ready:
		run.webAddr, run.metricsAddr = addrs[0], addrs[1]
	case err := <-run.done:
		cancel()
		t.Fatalf("serve exited before ready: %v", err)
	case <-time.After(10 * time.Second):
		cancel()
		t.Fatal("serve did not become ready")
	}
	return run
}

func (r *serveRun) stop(t *testing.T) {
	t.Helper()
	r.cancel()
	select {
	case err := <-r.done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("serve did not shut down")
	}
}

func TestServe_MemoryStorage(t *testing.T) {
	run := startServe(t, testConfig(t), nil)

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}

	status, body := get(t, client, "http://"+run.webAddr+"/healthz")
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "ok\n", body)

	status, _ = get(t, client, "http://"+run.webAddr+"/list")
	assert.Equal(t, http.StatusSeeOther, status)

	status, _ = get(t, client, "http://"+run.metricsAddr+"/healthz/readiness")
	assert.Equal(t, http.StatusOK, status)

	_, body = get(t, client, "http://"+run.metricsAddr+"/metrics")
	assert.Contains(t, body, "listkeep_http_requests_total")

	run.stop(t)
	assert.Contains(t, run.out.String(), "listkeep started")
}

func TestServe_MetricsDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Metrics.Addr = ""

	run := startServe(t, cfg, nil)
	assert.Empty(t, run.metricsAddr)
	run.stop(t)
}

func TestServe_ObservabilityServerGetsServeLogger(t *testing.T) {
	var got *slog.Logger
	run := startServe(t, testConfig(t), &ServeDeps{
		ObservabilityServerFactory: func(addr string, ready observability.ReadinessChecker, logger *slog.Logger) ObservabilityServer {
			got = logger
			return observability.NewServer(addr, ready).WithLogger(logger)
		},
	})
	run.stop(t)

	require.NotNil(t, got)
	assert.Same(t, slog.Default(), got)
}

func TestServe_InvalidConfig(t *testing.T) {
	restoreDefaultLogger(t)
	cfg := testConfig(t)
	cfg.Storage = "floppy"

	err := runServeWithDeps(context.Background(), cfg, NewServeCmd(), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, config.CodeInvalid)
}

type countingMigrator struct {
	upErr  error
	ups    int
	closed bool
}

func (m *countingMigrator) Up() error {
	m.ups++
	return m.upErr
}

func (m *countingMigrator) Close() error {
	m.closed = true
	return nil
}

func TestServe_AutoMigratesPostgres(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage = config.StoragePostgres
	cfg.Database.URL = "postgres://db/listkeep"

	migrator := &countingMigrator{}
	var openedWith string
	run := startServe(t, cfg, &ServeDeps{
		MigratorFactory: func(url string) (AutoMigrator, error) {
			openedWith = url
			return migrator, nil
		},
		BackendFactory: func(context.Context, *config.Config, *slog.Logger) (*Backend, error) {
			return newMemoryBackend(), nil
		},
	})
	run.stop(t)

	assert.Equal(t, "postgres://db/listkeep", openedWith)
	assert.Equal(t, 1, migrator.ups)
	assert.True(t, migrator.closed)
}

func TestServe_AutoMigrateFailureAborts(t *testing.T) {
	restoreDefaultLogger(t)
	cfg := testConfig(t)
	cfg.Storage = config.StoragePostgres
	cfg.Database.URL = "postgres://db/listkeep"

	backendClosed := false
	readyCalled := false
	err := runServeWithDeps(context.Background(), cfg, NewServeCmd(), &ServeDeps{
		MigratorFactory: func(string) (AutoMigrator, error) {
			return &countingMigrator{upErr: errors.New("dirty database")}, nil
		},
		BackendFactory: func(context.Context, *config.Config, *slog.Logger) (*Backend, error) {
			backend := newMemoryBackend()
			backend.Close = func() { backendClosed = true }
			return backend, nil
		},
		OnReady: func(string, string) { readyCalled = true },
	})
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "operation", "auto-migrate")
	assert.True(t, backendClosed)
	assert.False(t, readyCalled)
}

func TestServe_MigratesAfterBackendOpens(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage = config.StoragePostgres
	cfg.Database.URL = "postgres://db/listkeep"

	var steps []string
	run := startServe(t, cfg, &ServeDeps{
		MigratorFactory: func(string) (AutoMigrator, error) {
			steps = append(steps, "migrate")
			return &countingMigrator{}, nil
		},
		BackendFactory: func(context.Context, *config.Config, *slog.Logger) (*Backend, error) {
			steps = append(steps, "open")
			return newMemoryBackend(), nil
		},
	})
	run.stop(t)

	assert.Equal(t, []string{"open", "migrate"}, steps)
}

func TestServe_SkipsMigrationWhenDisabled(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage = config.StoragePostgres
	cfg.Database.URL = "postgres://db/listkeep"
	cfg.Database.AutoMigrate = false

	called := false
	run := startServe(t, cfg, &ServeDeps{
		MigratorFactory: func(string) (AutoMigrator, error) {
			called = true
			return &countingMigrator{}, nil
		},
		BackendFactory: func(context.Context, *config.Config, *slog.Logger) (*Backend, error) {
			return newMemoryBackend(), nil
		},
	})
	run.stop(t)
	assert.False(t, called)
}

func TestServe_BackendFailure(t *testing.T) {
	restoreDefaultLogger(t)
	cfg := testConfig(t)

	err := runServeWithDeps(context.Background(), cfg, NewServeCmd(), &ServeDeps{
		BackendFactory: func(context.Context, *config.Config, *slog.Logger) (*Backend, error) {
			return nil, errors.New("no disk")
		},
	})
	require.Error(t, err)
	errutil.AssertErrorContext(t, err, "operation", "open storage")
}

func TestServe_PortInUse(t *testing.T) {
	first := startServe(t, testConfig(t), nil)
	defer first.stop(t)

	cfg := testConfig(t)
	cfg.HTTP.Addr = first.webAddr
	cfg.Metrics.Addr = ""

	err := runServeWithDeps(context.Background(), cfg, NewServeCmd(), nil)
	require.Error(t, err)
	errutil.AssertErrorCode(t, err, "WEB_LISTEN_FAILED")
}
