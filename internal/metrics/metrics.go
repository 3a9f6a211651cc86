// Package metrics provides Prometheus metrics for the revision store
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the revision store
type Metrics struct {
	// gRPC request metrics
	GrpcRequestsTotal    *prometheus.CounterVec
	GrpcRequestDuration  *prometheus.HistogramVec
	GrpcRequestsInFlight prometheus.Gauge

	// Commit metrics
	CommitsTotal       *prometheus.CounterVec
	CommitDuration     prometheus.Histogram
	CommitNodesTotal   prometheus.Counter
	CommitCASConflicts prometheus.Counter
	RevisionCurrent    prometheus.Gauge

	// Session metrics
	SessionsOpened  prometheus.Counter
	SessionsClosed  prometheus.Counter

	// Search metrics
	SearchQueriesTotal prometheus.Counter
	SearchResultsTotal prometheus.Counter
	SearchDuration     prometheus.Histogram

	// Binary store metrics
	DedupHitsTotal    prometheus.Counter
	DedupStoredTotal  prometheus.Counter
	DedupStoredBytes  prometheus.Counter

	// Partition metrics
	PartitionOpsTotal *prometheus.CounterVec

	// Server metrics
	ServerUptimeSeconds prometheus.Gauge
	ServerStartTime     time.Time
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	m := &Metrics{
		ServerStartTime: time.Now(),
	}

	// gRPC request metrics
	m.GrpcRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revstore_grpc_requests_total",
			Help: "Total number of gRPC requests",
		},
		[]string{"method", "status"},
	)

	m.GrpcRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "revstore_grpc_request_duration_seconds",
			Help:    "Duration of gRPC requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	m.GrpcRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "revstore_grpc_requests_in_flight",
			Help: "Number of gRPC requests currently being processed",
		},
	)

	// Commit metrics
	m.CommitsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revstore_commits_total",
			Help: "Total number of session commits",
		},
		[]string{"status"},
	)

	m.CommitDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "revstore_commit_duration_seconds",
			Help:    "Duration of session commits in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
	)

	m.CommitNodesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "revstore_commit_nodes_total",
			Help: "Total number of nodes written by commits",
		},
	)

	m.CommitCASConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "revstore_commit_cas_conflicts_total",
			Help: "Total number of catalog compare-and-set conflicts",
		},
	)

	m.RevisionCurrent = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "revstore_revision_current",
			Help: "Current repository revision number",
		},
	)

	// Session metrics
	m.SessionsOpened = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "revstore_sessions_opened_total",
			Help: "Total number of sessions opened",
		},
	)

	m.SessionsClosed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "revstore_sessions_closed_total",
			Help: "Total number of sessions closed or discarded",
		},
	)

	// Search metrics
	m.SearchQueriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "revstore_search_queries_total",
			Help: "Total number of search queries",
		},
	)

	m.SearchResultsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "revstore_search_results_total",
			Help: "Total number of search results returned",
		},
	)

	m.SearchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "revstore_search_duration_seconds",
			Help:    "Duration of search queries in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// Binary store metrics
	m.DedupHitsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "revstore_dedup_hits_total",
			Help: "Total number of binaries resolved to an existing blob",
		},
	)

	m.DedupStoredTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "revstore_dedup_stored_total",
			Help: "Total number of new permanent blobs stored",
		},
	)

	m.DedupStoredBytes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "revstore_dedup_stored_bytes_total",
			Help: "Total bytes written to permanent blob storage",
		},
	)

	// Partition metrics
	m.PartitionOpsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "revstore_partition_ops_total",
			Help: "Total number of partition operations",
		},
		[]string{"partition", "operation", "status"},
	)

	// Server metrics
	m.ServerUptimeSeconds = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "revstore_server_uptime_seconds",
			Help: "Server uptime in seconds",
		},
	)

	// Start uptime updater
	go m.updateUptime()

	return m
}

// updateUptime periodically updates the server uptime metric
func (m *Metrics) updateUptime() {
	ticker := time.NewTicker(10 * time.Second)
	defer ticker.Stop()

	for range ticker.C {
		m.ServerUptimeSeconds.Set(time.Since(m.ServerStartTime).Seconds())
	}
}

// RecordGrpcRequest records a gRPC request with its status
func (m *Metrics) RecordGrpcRequest(method string, status string, duration time.Duration) {
	m.GrpcRequestsTotal.WithLabelValues(method, status).Inc()
	m.GrpcRequestDuration.WithLabelValues(method).Observe(duration.Seconds())
}

// RecordCommit records one session commit
func (m *Metrics) RecordCommit(status string, nodeCount int, revision float64, duration time.Duration) {
	m.CommitsTotal.WithLabelValues(status).Inc()
	m.CommitDuration.Observe(duration.Seconds())
	if status == "success" {
		m.CommitNodesTotal.Add(float64(nodeCount))
		if revision >= 0 {
			m.RevisionCurrent.Set(revision)
		}
	}
}

// RecordSearch records one search query
func (m *Metrics) RecordSearch(resultCount int, duration time.Duration) {
	m.SearchQueriesTotal.Inc()
	m.SearchResultsTotal.Add(float64(resultCount))
	m.SearchDuration.Observe(duration.Seconds())
}

// RecordPartitionOp records a partition operation
func (m *Metrics) RecordPartitionOp(partition, operation, status string) {
	m.PartitionOpsTotal.WithLabelValues(partition, operation, status).Inc()
}
