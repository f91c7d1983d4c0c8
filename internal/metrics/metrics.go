// Soleil - Real-time Chart Synchronization and Broadcast Engine
// Copyright 2026 The Soleil Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/murrayheaton/soleil-sub001

// Package metrics declares the Prometheus instruments shared by the engine.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Rate limiter metrics
	RateLimitWait = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ratelimit_wait_seconds",
			Help:    "Time callers waited for rate limiter tokens",
			Buckets: []float64{0, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"limiter"},
	)

	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ratelimit_hits_total",
			Help: "Acquisitions that had to wait for tokens",
		},
		[]string{"limiter"},
	)

	RateLimitRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ratelimit_rate",
			Help: "Current refill rate in tokens per second",
		},
		[]string{"limiter"},
	)

	// Cache metrics
	CacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_hits_total",
			Help: "Total number of cache hits",
		},
		[]string{"cache"},
	)

	CacheMisses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_misses_total",
			Help: "Total number of cache misses",
		},
		[]string{"cache"},
	)

	CacheEvictions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_evictions_total",
			Help: "Total number of cache evictions",
		},
		[]string{"cache", "reason"}, // reason: "capacity", "expired"
	)

	CacheEntries = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cache_entries",
			Help: "Current number of cache entries",
		},
		[]string{"cache"},
	)

	// WebSocket metrics
	WSConnections = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of registered connections per tenant",
		},
		[]string{"tenant"},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of messages delivered to connections",
		},
	)

	WSSendFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_send_failures_total",
			Help: "Total number of failed sends (connection removed)",
		},
	)

	// Broadcaster metrics
	BroadcastEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broadcast_events_total",
			Help: "Broadcast events by type and outcome",
		},
		[]string{"type", "outcome"}, // outcome: "enqueued", "delivered", "dropped"
	)

	// Sync engine metrics
	SyncEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sync_events_total",
			Help: "Sync events by type and outcome",
		},
		[]string{"type", "outcome"}, // outcome: "received", "processed", "failed", "dropped"
	)

	SyncQueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_queue_depth",
			Help: "Events waiting in the sync queue",
		},
	)

	SyncActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "sync_active",
			Help: "Events currently being handled",
		},
	)

	SyncOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "sync_operation_duration_seconds",
			Help:    "Duration of sync operations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"kind", "status"},
	)

	// File synchronizer metrics
	FileSyncShortcuts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "filesync_shortcuts_total",
			Help: "Shortcuts created or deleted in target folders",
		},
		[]string{"action"}, // "created", "deleted"
	)

	FileSyncTargetErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "filesync_target_errors_total",
			Help: "Targets whose reconciliation failed",
		},
	)

	// Content store metrics
	ContentStoreRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "content_store_requests_total",
			Help: "Content store backend calls",
		},
		[]string{"operation", "result"}, // result: "success", "retry", "failure"
	)

	ContentStoreRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "content_store_request_duration_seconds",
			Help:    "Latency of content store backend calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// Circuit breaker metrics
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker",
		},
		[]string{"name", "result"}, // result: "success", "failure", "rejected"
	)

	CircuitBreakerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_state_transitions_total",
			Help: "Total number of circuit breaker state transitions",
		},
		[]string{"name", "from_state", "to_state"},
	)

	// Event forwarding metrics
	EventBusPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "eventbus_published_total",
			Help: "Events forwarded to the external broker",
		},
		[]string{"topic", "result"},
	)

	// Audit sink metrics
	AuditWrites = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "audit_writes_total",
			Help: "Operation records written to the audit store",
		},
		[]string{"result"},
	)

	// HTTP metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "Duration of API requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "route"},
	)
)

// RecordAPIRequest records an API request metric.
func RecordAPIRequest(method, route, status string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, route, status).Inc()
	APIRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordContentStoreCall records one backend call and its outcome.
func RecordContentStoreCall(operation, result string, duration time.Duration) {
	ContentStoreRequests.WithLabelValues(operation, result).Inc()
	ContentStoreRequestDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordAuditWrite counts an audit record write.
func RecordAuditWrite(err error) {
	if err != nil {
		AuditWrites.WithLabelValues("failure").Inc()
		return
	}
	AuditWrites.WithLabelValues("success").Inc()
}
