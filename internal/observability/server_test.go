// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package observability

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startServer(t *testing.T, ready ReadinessChecker) *Server {
	t.Helper()
	server := NewServer("127.0.0.1:0", ready)
	_, err := server.Start()
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Stop(ctx)
	})
	return server
}

func get(t *testing.T, server *Server, path string) (int, string) {
	t.Helper()
	resp, err := http.Get("http://" + server.Addr() + path)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestServer_Metrics(t *testing.T) {
	server := startServer(t, func() bool { return true })

	status, body := get(t, server, "/metrics")
	assert.Equal(t, http.StatusOK, status)
	assert.Contains(t, body, "# HELP")
	assert.Contains(t, body, "go_")
	assert.Contains(t, body, "process_")

	m := server.Metrics()
	m.ObserveRequest("/list", http.MethodGet, 200, 5*time.Millisecond)
	m.RecordAuth("login", OutcomeFailure)
	m.RecordItemOp("add", OutcomeSuccess)
	m.AddSessionsPruned(3)

	_, body = get(t, server, "/metrics")
	assert.Contains(t, body, `listkeep_http_requests_total{method="GET",route="/list",status="200"} 1`)
	assert.Contains(t, body, `listkeep_auth_attempts_total{operation="login",outcome="failure"} 1`)
	assert.Contains(t, body, `listkeep_item_operations_total{operation="add",outcome="success"} 1`)
	assert.Contains(t, body, `listkeep_sessions_pruned_total 3`)
	assert.Contains(t, body, "listkeep_http_request_duration_seconds")
}

func TestServer_Probes(t *testing.T) {
	tests := []struct {
		name       string
		ready      ReadinessChecker
		path       string
		wantStatus int
		wantBody   string
	}{
		{"liveness", nil, "/healthz/liveness", http.StatusOK, "ok"},
		{"ready", func() bool { return true }, "/healthz/readiness", http.StatusOK, "ok"},
		{"not ready", func() bool { return false }, "/healthz/readiness", http.StatusServiceUnavailable, "not ready"},
		{"nil checker counts as ready", nil, "/healthz/readiness", http.StatusOK, "ok"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := startServer(t, tt.ready)
			status, body := get(t, server, tt.path)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantBody, strings.TrimSpace(body))
		})
	}
}

func TestServer_DoubleStartFails(t *testing.T) {
	server := startServer(t, nil)
	_, err := server.Start()
	assert.Error(t, err)
}

func TestServer_StopWithoutStart(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	assert.NoError(t, server.Stop(context.Background()))
	assert.Empty(t, server.Addr())
}

func TestServer_ErrorChannelReportsServeErrors(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	require.NoError(t, err)
	defer func() { _ = server.Stop(context.Background()) }()

	_ = server.listener.Close()

	select {
	case serveErr := <-errCh:
		assert.Error(t, serveErr)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for serve error")
	}
}

func TestServer_ErrorChannelClosesOnShutdown(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	errCh, err := server.Start()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	select {
	case err, ok := <-errCh:
		if ok {
			assert.NoError(t, err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for error channel to close")
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveRequest("/", http.MethodGet, 200, time.Millisecond)
		m.RecordAuth("login", OutcomeSuccess)
		m.RecordItemOp("remove", OutcomeSuccess)
		m.AddSessionsPruned(1)
	})
}

func TestMetrics_AddSessionsPrunedIgnoresZero(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.AddSessionsPruned(0)
	m.AddSessionsPruned(-2)
	m.AddSessionsPruned(4)
	assert.InDelta(t, 4.0, testutil.ToFloat64(m.SessionsPruned), 0.001)
}

func TestServer_WithLoggerReceivesLifecycleLogs(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	server := NewServer("127.0.0.1:0", nil).WithLogger(logger)
	_, err := server.Start()
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, server.Stop(ctx))

	assert.Contains(t, buf.String(), "observability server started")
	assert.Contains(t, buf.String(), "observability server stopped")
}

func TestServer_WithNilLoggerKeepsDefault(t *testing.T) {
	server := NewServer("127.0.0.1:0", nil)
	before := server.logger
	assert.Same(t, server, server.WithLogger(nil))
	assert.Same(t, before, server.logger)
}
