package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Knowledge-API Metrics
var (
	// Request counters
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "knowledge_api",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	// Request duration histogram
	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "jan",
			Subsystem: "knowledge_api",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30},
		},
		[]string{"method", "endpoint"},
	)

	// Knowledge base document operations
	DocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "knowledge_api",
			Name:      "documents_total",
			Help:      "Knowledge base document submissions and deletions",
		},
		[]string{"operation", "status"},
	)

	// Queries against the retrieval/generation service
	QueriesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "knowledge_api",
			Name:      "queries_total",
			Help:      "Knowledge base queries by outcome",
		},
		[]string{"outcome"},
	)

	QueryDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "jan",
			Subsystem: "knowledge_api",
			Name:      "query_duration_seconds",
			Help:      "RetrieveAndGenerate duration in seconds",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 20, 60},
		},
	)

	SessionRecoveriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "knowledge_api",
			Name:      "session_recoveries_total",
			Help:      "Queries retried without a session after the session was rejected",
		},
	)

	// Expiry reaper records
	ReaperRecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "knowledge_api",
			Name:      "reaper_records_total",
			Help:      "Change records seen by the expiry reaper",
		},
		[]string{"outcome"},
	)

	// Chat history side channel failures
	ChatHistoryFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "knowledge_api",
			Name:      "chat_history_failures_total",
			Help:      "Best-effort chat history operations that failed",
		},
		[]string{"operation"},
	)

	// S3 operations counter
	S3OperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "jan",
			Subsystem: "knowledge_api",
			Name:      "s3_operations_total",
			Help:      "Total S3 operations",
		},
		[]string{"operation", "status"},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint, status string, durationSec float64) {
	RequestsTotal.WithLabelValues(method, endpoint, status).Inc()
	RequestDuration.WithLabelValues(method, endpoint).Observe(durationSec)
}

// RecordDocument records a knowledge base document operation ("ingest" or "delete").
func RecordDocument(operation, status string) {
	DocumentsTotal.WithLabelValues(operation, status).Inc()
}

// RecordQuery records a finished knowledge base query.
func RecordQuery(outcome string, durationSec float64) {
	QueriesTotal.WithLabelValues(outcome).Inc()
	if durationSec > 0 {
		QueryDuration.Observe(durationSec)
	}
}

// RecordSessionRecovery records a retry without session id.
func RecordSessionRecovery() {
	SessionRecoveriesTotal.Inc()
}

// RecordReaperOutcome records how the reaper handled one change record.
func RecordReaperOutcome(outcome string) {
	ReaperRecordsTotal.WithLabelValues(outcome).Inc()
}

// RecordChatHistoryFailure records a swallowed chat history failure.
func RecordChatHistoryFailure(operation string) {
	ChatHistoryFailuresTotal.WithLabelValues(operation).Inc()
}

// RecordS3Operation records an S3 operation
func RecordS3Operation(operation, status string) {
	S3OperationsTotal.WithLabelValues(operation, status).Inc()
}
