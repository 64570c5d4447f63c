/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package telemetry

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "melted"

var (
	// CommandsTotal counts dispatched commands by keyword and reply code.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "commands_total",
		Help:      "Commands dispatched, by keyword and response code.",
	}, []string{"command", "code"})

	// CommandDuration tracks how long dispatch takes per keyword.
	CommandDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "command_duration_seconds",
		Help:      "Command dispatch latency.",
		Buckets:   []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
	}, []string{"command"})

	// ActiveConnections is the number of open control connections.
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "active_connections",
		Help:      "Open control connections.",
	})

	// StatusStreams is the number of connections in STATUS mode.
	StatusStreams = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "status_streams",
		Help:      "Connections streaming unit status.",
	})

	// Units is the number of occupied registry slots.
	Units = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "units",
		Help:      "Playout units currently defined.",
	})

	// StatusPublishesTotal counts snapshots published per unit.
	StatusPublishesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_publishes_total",
		Help:      "Unit status snapshots published.",
	}, []string{"unit"})

	// AsRunTotal counts as-run events per unit.
	AsRunTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "asrun_events_total",
		Help:      "Clips reported as aired.",
	}, []string{"unit"})

	// MirrorErrorsTotal counts failed status mirror deliveries per sink.
	MirrorErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "status_mirror_errors_total",
		Help:      "Status mirror deliveries that failed.",
	}, []string{"sink"})

	// DatabaseQueryDuration tracks as-run store operations.
	DatabaseQueryDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "database_query_duration_seconds",
		Help:      "As-run store operation latency.",
		Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1},
	}, []string{"operation", "table"})

	// DatabaseErrorsTotal counts failed as-run store operations.
	DatabaseErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "database_errors_total",
		Help:      "As-run store operations that failed.",
	}, []string{"operation"})

	// APIRequestsTotal counts admin HTTP requests.
	APIRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "api_requests_total",
		Help:      "Admin API requests.",
	}, []string{"method", "endpoint", "status"})

	// APIRequestDuration tracks admin HTTP latency.
	APIRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "api_request_duration_seconds",
		Help:      "Admin API latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "endpoint", "status"})
)

// ObserveCommand records one dispatched command.
func ObserveCommand(command string, code int, seconds float64) {
	CommandsTotal.WithLabelValues(command, strconv.Itoa(code)).Inc()
	CommandDuration.WithLabelValues(command).Observe(seconds)
}

// Handler exposes the metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}
