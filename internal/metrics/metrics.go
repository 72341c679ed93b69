// Pitwall - RC Race Event Discovery and Import
// Copyright 2026 Pitwall contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/pitwall-app/pitwall

// Package metrics defines the Prometheus metrics exposed at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Search and reconciliation.

	SearchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitwall_searches_total",
			Help: "Total event searches by outcome",
		},
		[]string{"outcome"}, // "ok", "validation_error", "backend_error"
	)

	SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pitwall_search_duration_seconds",
			Help:    "Duration of the local-database search call",
			Buckets: prometheus.DefBuckets,
		},
	)

	DiscoveryMergedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pitwall_discovery_merged_total",
			Help: "Provider-discovered rows appended to merged views",
		},
	)

	DiscoveryDroppedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitwall_discovery_dropped_total",
			Help: "Provider-discovered rows dropped during deduplication",
		},
		[]string{"reason"}, // "local_wins", "duplicate_id", "duplicate_source"
	)

	StaleDiscoveryDiscards = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pitwall_stale_discovery_discards_total",
			Help: "Discovery results discarded because a newer search superseded them",
		},
	)

	// Import orchestration.

	ImportsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitwall_imports_total",
			Help: "Import attempts by terminal outcome",
		},
		[]string{"outcome"}, // "completed", "failed", "timeout", "recovered"
	)

	ImportDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pitwall_import_duration_seconds",
			Help:    "Wall-clock duration from submit to terminal state",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
		},
	)

	ActivePollers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pitwall_active_pollers",
			Help: "Currently running status poll loops",
		},
	)

	PollAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitwall_poll_attempts_total",
			Help: "Status and job poll attempts by result",
		},
		[]string{"kind", "result"}, // kind: "status"|"job", result: "ok"|"error"
	)

	IdentityPromotionsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "pitwall_identity_promotions_total",
			Help: "Provider pseudo-ids promoted to local database ids mid-import",
		},
	)

	// Discovery circuit breaker.

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pitwall_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitwall_circuit_breaker_requests_total",
			Help: "Circuit breaker requests by result",
		},
		[]string{"name", "result"}, // "success", "failure", "rejected"
	)

	// HTTP surface.

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pitwall_http_requests_total",
			Help: "API requests by method, route pattern and status",
		},
		[]string{"method", "route", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pitwall_http_request_duration_seconds",
			Help:    "API request duration by route pattern",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)

	HTTPActiveRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pitwall_http_active_requests",
			Help: "API requests currently in flight",
		},
	)

	// Sessions and cache.

	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pitwall_active_sessions",
			Help: "Live search sessions",
		},
	)

	KnownImportedEntries = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pitwall_known_imported_entries",
			Help: "Entries in the known-imported id cache after pruning",
		},
	)
)
