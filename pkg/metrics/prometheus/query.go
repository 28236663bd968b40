// Package prometheus implements the metrics interfaces on top of the
// process-wide Prometheus registry.
package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoquery/pkg/metrics"
)

type queryMetrics struct {
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsFailed      *prometheus.CounterVec
	connectionsForceClosed prometheus.Counter
	activeConnections      prometheus.Gauge
	acceptsThrottled       prometheus.Counter
	queriesTotal           *prometheus.CounterVec
	queryDuration          *prometheus.HistogramVec
}

// NewQueryMetrics registers the query server metrics.
//
// Returns a no-op implementation when metrics are disabled. Must be called
// at most once per registry: registering the same collectors twice panics.
func NewQueryMetrics() metrics.QueryMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopQueryMetrics()
	}

	reg := metrics.GetRegistry()
	return &queryMetrics{
		connectionsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dittoquery_connections_accepted_total",
			Help: "Total number of connections accepted by the query server",
		}),
		connectionsClosed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dittoquery_connections_closed_total",
			Help: "Total number of query server connections closed",
		}),
		connectionsFailed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dittoquery_connections_failed_total",
			Help: "Total number of connections that ended with an error or a panic",
		}, []string{"reason"}),
		connectionsForceClosed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dittoquery_connections_force_closed_total",
			Help: "Total number of connections force-closed after the drain timeout",
		}),
		activeConnections: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittoquery_active_connections",
			Help: "Current number of live query server connections",
		}),
		acceptsThrottled: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dittoquery_accepts_throttled_total",
			Help: "Total number of accepts delayed by the accept rate limit",
		}),
		queriesTotal: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "dittoquery_queries_total",
			Help: "Total number of queries by outcome",
		}, []string{"status"}),
		queryDuration: promauto.With(reg).NewHistogramVec(prometheus.HistogramOpts{
			Name: "dittoquery_query_duration_milliseconds",
			Help: "Duration of query execution in milliseconds",
			Buckets: []float64{
				1,    // 1ms
				5,    // 5ms
				25,   // 25ms
				100,  // 100ms
				500,  // 500ms
				2500, // 2.5s
			},
		}, []string{"status"}),
	}
}

func (m *queryMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *queryMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *queryMetrics) RecordConnectionFailed(reason string) {
	m.connectionsFailed.WithLabelValues(reason).Inc()
}

func (m *queryMetrics) RecordConnectionsForceClosed(count int) {
	m.connectionsForceClosed.Add(float64(count))
}

func (m *queryMetrics) SetActiveConnections(count int32) {
	m.activeConnections.Set(float64(count))
}

func (m *queryMetrics) RecordAcceptThrottled() {
	m.acceptsThrottled.Inc()
}

func (m *queryMetrics) RecordQuery(status string, duration time.Duration) {
	m.queriesTotal.WithLabelValues(status).Inc()
	m.queryDuration.WithLabelValues(status).Observe(duration.Seconds() * 1000)
}
