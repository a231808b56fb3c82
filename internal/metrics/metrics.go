package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Gmail API calls by operation and outcome (ok, transport, auth, open)
	GmailCalls = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmail_inbox_api_calls_total",
			Help: "Total number of Gmail API calls",
		},
		[]string{"op", "outcome"},
	)

	// Gmail API latency (seconds)
	GmailCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gmail_inbox_api_call_duration_seconds",
			Help:    "Gmail API call duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12), // 10ms to ~40s
		},
		[]string{"op"},
	)

	// Metadata chunks dropped because one call in the chunk failed
	ChunkFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gmail_inbox_metadata_chunk_failures_total",
			Help: "Total number of metadata chunks that contributed no records",
		},
	)

	// Page loads by terminal state (ready, offline)
	PageLoads = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmail_inbox_page_loads_total",
			Help: "Total number of page loads by terminal state",
		},
		[]string{"state"},
	)

	// Bodies written by the preview prefetcher
	PrefetchedBodies = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gmail_inbox_prefetched_bodies_total",
			Help: "Total number of message bodies prefetched to disk",
		},
		[]string{"status"}, // status: written, failed
	)
)

// RecordGmailCall records one Gmail API call.
func RecordGmailCall(op, outcome string, duration time.Duration) {
	GmailCalls.WithLabelValues(op, outcome).Inc()
	GmailCallDuration.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordPageLoad records the state a page load ended in.
func RecordPageLoad(state string) {
	PageLoads.WithLabelValues(state).Inc()
}

// RecordPrefetch records one prefetched body.
func RecordPrefetch(ok bool) {
	status := "written"
	if !ok {
		status = "failed"
	}
	PrefetchedBodies.WithLabelValues(status).Inc()
}
