// Package telemetry holds the prometheus metric definitions shared across
// every session-engine worker: ready-chain latency, overrun counts,
// gap-fill retries, quality scores, and merge-queue depth. Grounded on the
// teacher's internal/storage/timescale.go and internal/pubsub/stream_publisher.go
// promauto var-block shape — one package-level var block of named metrics,
// registered once at process start via the default registry.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ReadyChainLatency measures the Coordinator's wait on the
	// Processor/AnalysisEngine readiness chain after each notify, the
	// dominant per-event cost in both clock-driven and data-driven modes.
	ReadyChainLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "session_engine_ready_chain_latency_seconds",
			Help:    "Latency of the Coordinator's wait on the downstream ready chain after each notify",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0},
		},
		[]string{"session_name"},
	)

	// OverrunTotal counts clock-driven WaitUntilReady timeouts, the
	// failure mode that halts a session.
	OverrunTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_engine_overrun_total",
			Help: "Total clock-driven ready-chain timeouts observed",
		},
		[]string{"session_name"},
	)

	// GapFillRetryTotal counts DataQualityManager gap-repair attempts.
	GapFillRetryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "session_engine_gap_fill_retry_total",
			Help: "Total gap-fill retry attempts, by outcome",
		},
		[]string{"symbol", "interval", "outcome"},
	)

	// QualityScore tracks the last-computed data quality score per
	// (symbol, interval).
	QualityScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "session_engine_quality_score",
			Help: "Most recently computed data quality score, 0.0-1.0",
		},
		[]string{"symbol", "interval"},
	)

	// MergeQueueDepth tracks the Coordinator's pending-slot occupancy, a
	// leading indicator of a stream falling behind the merge-yield loop.
	MergeQueueDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "session_engine_merge_queue_depth",
			Help: "Number of occupied pending slots in the merge-yield loop",
		},
		[]string{"session_name"},
	)

	// ProvisioningDuration measures the Analyze->Validate->Provision
	// pipeline's wall time for dynamic symbol adds.
	ProvisioningDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "session_engine_provisioning_duration_seconds",
			Help:    "Wall time of a dynamic symbol add's Analyze->Validate->Provision pipeline",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation_type", "outcome"},
	)
)

// ObserveReadyChain records one ready-chain wait's duration.
func ObserveReadyChain(sessionName string, d time.Duration) {
	ReadyChainLatency.WithLabelValues(sessionName).Observe(d.Seconds())
}

// RecordOverrun increments the overrun counter for sessionName.
func RecordOverrun(sessionName string) {
	OverrunTotal.WithLabelValues(sessionName).Inc()
}

// SetMergeQueueDepth reports the Coordinator's current pending-slot count.
func SetMergeQueueDepth(sessionName string, depth int) {
	MergeQueueDepth.WithLabelValues(sessionName).Set(float64(depth))
}

// SetQualityScore reports a (symbol, interval) pair's latest quality score.
func SetQualityScore(symbol, interval string, score float64) {
	QualityScore.WithLabelValues(symbol, interval).Set(score)
}

// RecordGapFillRetry records one gap-fill attempt's outcome ("success",
// "exhausted", "error").
func RecordGapFillRetry(symbol, interval, outcome string) {
	GapFillRetryTotal.WithLabelValues(symbol, interval, outcome).Inc()
}

// ObserveProvisioning records one Analyze->Validate->Provision pipeline's
// duration, keyed by operation type ("symbol"/"indicator") and outcome
// ("provisioned", "rejected", "abandoned").
func ObserveProvisioning(operationType, outcome string, d time.Duration) {
	ProvisioningDuration.WithLabelValues(operationType, outcome).Observe(d.Seconds())
}
