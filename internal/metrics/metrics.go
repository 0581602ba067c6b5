// Package metrics exposes the gateway's Prometheus instrumentation:
// request outcomes, cache effectiveness, upstream spend, and lock pressure.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sentinel"

// DurationBuckets covers cache hits (~10ms) through slow generations (~30s).
var DurationBuckets = []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30}

// Cache event types for CacheEvents. This is a closed set.
const (
	EventExact    = "exact"
	EventSemantic = "semantic"
	EventMiss     = "miss"
)

var (
	// RequestsTotal counts requests by endpoint and response status.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"endpoint", "status"},
	)

	// CacheEvents counts cache outcomes on the query path.
	CacheEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_events_total",
			Help:      "Cache events by type (exact, semantic, miss)",
		},
		[]string{"type"},
	)

	// LLMCostUSD accumulates estimated upstream spend.
	LLMCostUSD = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_cost_usd_total",
			Help:      "Estimated upstream LLM cost in USD",
		},
		[]string{"provider", "model"},
	)

	// RequestDuration tracks end-to-end request latency.
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "End-to-end request latency in seconds",
			Buckets:   DurationBuckets,
		},
		[]string{"endpoint"},
	)

	// ActiveLocks gauges in-flight single-flight generations.
	ActiveLocks = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_locks",
			Help:      "Single-flight locks currently held by this instance",
		},
	)
)
