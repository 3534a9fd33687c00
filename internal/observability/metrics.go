// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 listkeep Contributors

package observability

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels shared by the auth and item counters.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeError   = "error"
)

// Metrics holds the listkeep collectors. A nil *Metrics records nothing,
// so tests and tools can run without a registry.
type Metrics struct {
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	AuthAttemptsTotal   *prometheus.CounterVec
	ItemOperationsTotal *prometheus.CounterVec
	SessionsPruned      prometheus.Counter
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listkeep_http_requests_total",
				Help: "Total number of HTTP requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "listkeep_http_request_duration_seconds",
				Help:    "HTTP request latency by route",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		AuthAttemptsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listkeep_auth_attempts_total",
				Help: "Login and registration attempts by operation and outcome",
			},
			[]string{"operation", "outcome"},
		),
		ItemOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "listkeep_item_operations_total",
				Help: "Item add and remove operations by outcome",
			},
			[]string{"operation", "outcome"},
		),
		SessionsPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "listkeep_sessions_pruned_total",
				Help: "Expired sessions removed by the sweeper",
			},
		),
	}

	reg.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthAttemptsTotal,
		m.ItemOperationsTotal,
		m.SessionsPruned,
	)
	return m
}

// ObserveRequest records one served request.
func (m *Metrics) ObserveRequest(route, method string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.HTTPRequestsTotal.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}

// RecordAuth counts a login or registration attempt.
func (m *Metrics) RecordAuth(operation, outcome string) {
	if m == nil {
		return
	}
	m.AuthAttemptsTotal.WithLabelValues(operation, outcome).Inc()
}

// RecordItemOp counts an add or remove.
func (m *Metrics) RecordItemOp(operation, outcome string) {
	if m == nil {
		return
	}
	m.ItemOperationsTotal.WithLabelValues(operation, outcome).Inc()
}

// AddSessionsPruned matches the sweeper's prune callback.
func (m *Metrics) AddSessionsPruned(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.SessionsPruned.Add(float64(n))
}
