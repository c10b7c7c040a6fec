package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// singleton instance
	instance *Metrics
	once     sync.Once
)

// Metrics holds Prometheus metrics for ServeOne
type Metrics struct {
	// API metrics
	APIRequestsTotal   *prometheus.CounterVec
	APIRequestDuration *prometheus.HistogramVec

	// Hub metrics
	HubConnectionsActive  prometheus.Gauge
	HubEventsPublished    *prometheus.CounterVec
	HubDeliveryFailures   prometheus.Counter
	HubCapacityRejections prometheus.Counter
	HubBroadcastDuration  prometheus.Histogram

	// Stream metrics
	StreamHandshakesTotal *prometheus.CounterVec
	StreamKeepalivesTotal prometheus.Counter

	// Store metrics
	StoreMutationsTotal  *prometheus.CounterVec
	StoreMutationErrors  *prometheus.CounterVec
	StoreSessionCacheHit *prometheus.CounterVec
}

// GetMetrics returns the metrics singleton
func GetMetrics() *Metrics {
	once.Do(func() {
		instance = newMetrics()
	})
	return instance
}

// newMetrics initializes and registers all metrics
func newMetrics() *Metrics {
	m := &Metrics{}

	m.APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serveone_api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "route", "status"},
	)

	m.APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "serveone_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		},
		[]string{"method", "route"},
	)

	m.HubConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "serveone_hub_connections_active",
			Help: "Number of active invalidation stream subscribers",
		},
	)

	m.HubEventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serveone_hub_events_published_total",
			Help: "Total number of invalidation events published",
		},
		[]string{"entity"},
	)

	m.HubDeliveryFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serveone_hub_delivery_failures_total",
			Help: "Total number of per-subscriber delivery failures",
		},
	)

	m.HubCapacityRejections = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serveone_hub_capacity_rejections_total",
			Help: "Total number of connections rejected at the per-restaurant ceiling",
		},
	)

	m.HubBroadcastDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "serveone_hub_broadcast_duration_seconds",
			Help:    "Time spent fanning one event out to a restaurant's subscribers",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10),
		},
	)

	m.StreamHandshakesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serveone_stream_handshakes_total",
			Help: "Total number of stream handshake attempts by outcome",
		},
		[]string{"transport", "outcome"},
	)

	m.StreamKeepalivesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "serveone_stream_keepalives_total",
			Help: "Total number of keepalive frames written",
		},
	)

	m.StoreMutationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serveone_store_mutations_total",
			Help: "Total number of domain mutations executed",
		},
		[]string{"entity"},
	)

	m.StoreMutationErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serveone_store_mutation_errors_total",
			Help: "Total number of failed domain mutations",
		},
		[]string{"entity"},
	)

	m.StoreSessionCacheHit = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "serveone_auth_session_cache_total",
			Help: "Session cache lookups by result",
		},
		[]string{"result"},
	)

	return m
}
