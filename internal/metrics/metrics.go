// Backlogarr - Backlog Search Orchestration for Sonarr and Radarr
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/backlogarr

// Package metrics exposes Prometheus instrumentation for the search engine:
// wire-client calls and retries, token-bucket waits, cooldown suppressions,
// queue executions, circuit breaker state, and scheduler depth.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Wire client metrics
	WireRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backlogarr_wire_request_duration_seconds",
			Help:    "Duration of wire-client calls to Sonarr/Radarr instances",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"instance", "operation"},
	)

	WireRequestErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backlogarr_wire_request_errors_total",
			Help: "Total wire-client errors by classification",
		},
		[]string{"instance", "operation", "class"},
	)

	WireRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backlogarr_wire_retries_total",
			Help: "Total wire-client retry attempts",
		},
		[]string{"instance", "operation"},
	)

	// Rate limiter metrics
	RateLimitWaitDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backlogarr_ratelimit_wait_seconds",
			Help:    "Time spent waiting for a per-instance token",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"instance"},
	)

	RateLimitTimeouts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backlogarr_ratelimit_timeouts_total",
			Help: "Token acquisitions abandoned due to timeout or cancellation",
		},
		[]string{"instance"},
	)

	// Cooldown metrics
	CooldownSuppressed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backlogarr_cooldown_suppressed_total",
			Help: "Candidates skipped because they were searched too recently",
		},
	)

	CooldownEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backlogarr_cooldown_entries",
			Help: "Current number of live cooldown entries",
		},
	)

	// Execution engine metrics
	ExecutionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backlogarr_executions_total",
			Help: "Completed queue executions by outcome",
		},
		[]string{"outcome"},
	)

	ExecutionDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backlogarr_execution_duration_seconds",
			Help:    "Wall-clock duration of queue executions",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	ItemsSearched = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backlogarr_items_searched_total",
			Help: "Total candidate items dispatched for search",
		},
	)

	ItemsFound = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backlogarr_items_found_total",
			Help: "Total search dispatches accepted by the instance",
		},
	)

	ActiveExecutions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backlogarr_active_executions",
			Help: "Queue executions currently in flight",
		},
	)

	QueueDeactivations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backlogarr_queue_deactivations_total",
			Help: "Queues auto-deactivated after repeated consecutive failures",
		},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "backlogarr_circuit_breaker_state",
			Help: "Circuit breaker state per instance (0=closed, 1=half-open, 2=open)",
		},
		[]string{"instance"},
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backlogarr_circuit_breaker_transitions_total",
			Help: "Circuit breaker state transitions",
		},
		[]string{"instance", "from", "to"},
	)

	// HTTP API metrics
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backlogarr_http_request_duration_seconds",
			Help:    "Duration of HTTP API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backlogarr_http_active_requests",
			Help: "HTTP requests currently being served",
		},
	)

	// Scheduler metrics
	ScheduledJobs = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "backlogarr_scheduled_jobs",
			Help: "Jobs currently registered with the scheduler",
		},
	)

	MisfiresCoalesced = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "backlogarr_misfires_coalesced_total",
			Help: "Late triggers coalesced into a single consolidated run",
		},
	)

	TriggerLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "backlogarr_trigger_latency_seconds",
			Help:    "Delay between a job's scheduled time and its actual firing",
			Buckets: []float64{0.1, 0.5, 1, 5, 15, 60, 300, 900},
		},
	)
)
