package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors for the application.
// Following the explicit dependency injection pattern, this struct
// is passed to all components that need to record metrics.
type Metrics struct {
	// Subgraph Metrics
	subgraphRequestsTotal   *prometheus.CounterVec
	subgraphRequestDuration *prometheus.HistogramVec
	subgraphRateLimitHits   *prometheus.CounterVec
	subgraphRetries         *prometheus.CounterVec

	// Query Cache Metrics
	cacheLookupsTotal *prometheus.CounterVec
	cacheItems        prometheus.Gauge

	// Graph Metrics
	graphBuildDuration *prometheus.HistogramVec
	graphNodes         *prometheus.HistogramVec
	graphEdges         *prometheus.HistogramVec

	// Workflow Metrics
	snapshotActivityDuration *prometheus.HistogramVec
	snapshotsWrittenTotal    *prometheus.CounterVec

	// Database Metrics
	dbQueryDuration   *prometheus.HistogramVec
	dbOperationsTotal *prometheus.CounterVec

	// HTTP Metrics
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsTotal    *prometheus.CounterVec
	sseActiveConnections *prometheus.GaugeVec
	sseEventsSent        *prometheus.CounterVec

	// NATS Metrics
	natsMessagesPublished *prometheus.CounterVec
	natsPublishDuration   *prometheus.HistogramVec
}

// NewMetrics creates a new Metrics instance and registers all collectors.
// If registry is nil, prometheus.DefaultRegisterer is used.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}

	factory := promauto.With(registry)

	return &Metrics{
		subgraphRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subgraph_requests_total",
				Help: "Total number of subgraph queries by chain and status",
			},
			[]string{"chain", "status"},
		),
		subgraphRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "subgraph_request_duration_seconds",
				Help:    "Duration of subgraph queries in seconds, retries included",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0},
			},
			[]string{"chain"},
		),
		subgraphRateLimitHits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subgraph_rate_limit_hits_total",
				Help: "Total number of subgraph rate limit responses (429)",
			},
			[]string{"chain"},
		),
		subgraphRetries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "subgraph_retries_total",
				Help: "Total number of subgraph retry attempts",
			},
			[]string{"chain", "reason"},
		),

		cacheLookupsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "query_cache_lookups_total",
				Help: "Total number of query cache lookups by result (hit, miss, shared)",
			},
			[]string{"result"},
		),
		cacheItems: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "query_cache_items",
				Help: "Number of entries currently held by the query cache",
			},
		),

		graphBuildDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graph_build_duration_seconds",
				Help:    "Duration of graph reconciliation in seconds",
				Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"chain"},
		),
		graphNodes: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graph_nodes",
				Help:    "Number of nodes per built graph",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500},
			},
			[]string{"chain"},
		),
		graphEdges: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "graph_edges",
				Help:    "Number of edges per built graph",
				Buckets: []float64{1, 5, 10, 25, 50, 75, 100, 250, 500},
			},
			[]string{"chain"},
		),

		snapshotActivityDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "snapshot_activity_duration_seconds",
				Help:    "Duration of snapshot workflow activities in seconds",
				Buckets: []float64{0.1, 0.5, 1, 5, 10, 30, 60},
			},
			[]string{"activity", "watch_id"},
		),
		snapshotsWrittenTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "snapshots_written_total",
				Help: "Total number of graph snapshots written, by outcome",
			},
			[]string{"watch_id", "status"},
		),

		dbQueryDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "db_query_duration_seconds",
				Help:    "Duration of database queries in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1.0},
			},
			[]string{"operation", "table"},
		),
		dbOperationsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "db_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "status"},
		),

		httpRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5},
			},
			[]string{"handler", "method", "status"},
		),
		httpRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"handler", "method", "status"},
		),
		sseActiveConnections: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "sse_active_connections",
				Help: "Number of active SSE connections",
			},
			[]string{"watch_id"},
		),
		sseEventsSent: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sse_events_sent_total",
				Help: "Total number of SSE events sent",
			},
			[]string{"watch_id", "event_type"},
		),

		natsMessagesPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "nats_messages_published_total",
				Help: "Total number of NATS messages published",
			},
			[]string{"subject", "status"},
		),
		natsPublishDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "nats_publish_duration_seconds",
				Help:    "Duration of NATS publish operations in seconds",
				Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5},
			},
			[]string{"subject"},
		),
	}
}

// Subgraph metric helpers

// RecordSubgraphRequest records a subgraph query with its total duration.
func (m *Metrics) RecordSubgraphRequest(chain, status string, duration float64) {
	m.subgraphRequestsTotal.WithLabelValues(chain, status).Inc()
	m.subgraphRequestDuration.WithLabelValues(chain).Observe(duration)
}

// RecordRateLimitHit records a rate limit hit (429 error).
func (m *Metrics) RecordRateLimitHit(chain string) {
	m.subgraphRateLimitHits.WithLabelValues(chain).Inc()
}

// RecordSubgraphRetry records a retry attempt.
func (m *Metrics) RecordSubgraphRetry(chain, reason string) {
	m.subgraphRetries.WithLabelValues(chain, reason).Inc()
}

// Cache metric helpers

// RecordCacheLookup records a cache lookup outcome: "hit", "miss" or "shared".
func (m *Metrics) RecordCacheLookup(result string) {
	m.cacheLookupsTotal.WithLabelValues(result).Inc()
}

// SetCacheItems records the current number of cached entries.
func (m *Metrics) SetCacheItems(n int) {
	m.cacheItems.Set(float64(n))
}

// Graph metric helpers

// RecordGraphBuild records a graph reconciliation and the size of its result.
func (m *Metrics) RecordGraphBuild(chain string, nodes, edges int, duration float64) {
	m.graphBuildDuration.WithLabelValues(chain).Observe(duration)
	m.graphNodes.WithLabelValues(chain).Observe(float64(nodes))
	m.graphEdges.WithLabelValues(chain).Observe(float64(edges))
}

// Workflow metric helpers

// RecordActivityDuration records activity execution duration.
func (m *Metrics) RecordActivityDuration(activity, watchID string, duration float64) {
	m.snapshotActivityDuration.WithLabelValues(activity, watchID).Observe(duration)
}

// RecordSnapshotWritten records a snapshot write: "created" or "duplicate".
func (m *Metrics) RecordSnapshotWritten(watchID, status string) {
	m.snapshotsWrittenTotal.WithLabelValues(watchID, status).Inc()
}

// Database metric helpers

// RecordDBQuery records a database query with duration.
func (m *Metrics) RecordDBQuery(operation, table string, duration float64, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.dbQueryDuration.WithLabelValues(operation, table).Observe(duration)
	m.dbOperationsTotal.WithLabelValues(operation, status).Inc()
}

// HTTP metric helpers

// RecordHTTPRequest records an HTTP request with duration.
func (m *Metrics) RecordHTTPRequest(handler, method string, statusCode int, duration float64) {
	status := statusCodeToString(statusCode)
	m.httpRequestDuration.WithLabelValues(handler, method, status).Observe(duration)
	m.httpRequestsTotal.WithLabelValues(handler, method, status).Inc()
}

// RecordSSEConnectionChange records a change in SSE connection count.
func (m *Metrics) RecordSSEConnectionChange(watchID string, delta float64) {
	m.sseActiveConnections.WithLabelValues(watchID).Add(delta)
}

// RecordSSEEventSent records an SSE event being sent.
func (m *Metrics) RecordSSEEventSent(watchID, eventType string) {
	m.sseEventsSent.WithLabelValues(watchID, eventType).Inc()
}

// NATS metric helpers

// RecordNATSPublish records a NATS publish operation.
func (m *Metrics) RecordNATSPublish(subject, status string, duration float64) {
	m.natsMessagesPublished.WithLabelValues(subject, status).Inc()
	m.natsPublishDuration.WithLabelValues(subject).Observe(duration)
}

func statusCodeToString(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500 && code < 600:
		return "5xx"
	default:
		return "unknown"
	}
}
