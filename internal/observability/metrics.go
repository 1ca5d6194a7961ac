// Package observability provides metrics and tracing.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RedisErrors counts Redis errors by command name.
	RedisErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slotswap_redis_errors_total",
		Help: "Total number of Redis errors by operation type",
	}, []string{"operation"})

	// DatabaseQueryLatency records database query latency by operation and table.
	DatabaseQueryLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "slotswap_database_query_latency_seconds",
		Help:    "Database query latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation", "table"})

	// WebSocketConnections is the gauge of open event stream connections.
	WebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "slotswap_websocket_connections",
		Help: "Number of active WebSocket connections",
	})

	// WebSocketBackpressureDrops counts events dropped because a client could not keep up.
	WebSocketBackpressureDrops = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slotswap_websocket_backpressure_drops_total",
		Help: "Total number of WebSocket messages dropped due to backpressure",
	}, []string{"reason"})

	// SwapRequestsCreated counts posted swap requests.
	SwapRequestsCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slotswap_swap_requests_created_total",
		Help: "Total number of swap requests created",
	})

	// SwapMatchesFound counts reciprocal candidates returned by match lookups.
	SwapMatchesFound = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slotswap_swap_matches_found_total",
		Help: "Total number of reciprocal matches returned",
	})

	// SwapTransitions counts status transitions by target status.
	SwapTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slotswap_swap_transitions_total",
		Help: "Total number of swap request status transitions",
	}, []string{"to"})

	// SwapConfirmFailures counts rejected confirm attempts by reason.
	SwapConfirmFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "slotswap_swap_confirm_failures_total",
		Help: "Total number of rejected swap confirmations",
	}, []string{"reason"})
)

// ObserveQuery records the latency of a database query that started at start.
func ObserveQuery(operation, table string, start time.Time) {
	DatabaseQueryLatency.WithLabelValues(operation, table).Observe(time.Since(start).Seconds())
}
