// Package metrics registers the Prometheus instrumentation for the agent's
// pipeline stages: detection through finalization, extraction, baseline
// comparison, spooling, and upload delivery.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ArtifactsDetectedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qc_agent_artifacts_detected_total",
			Help: "Total artifacts admitted into the finalizer by vendor.",
		},
		[]string{"instrument_id", "vendor"},
	)

	ArtifactsFinalizedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qc_agent_artifacts_finalized_total",
			Help: "Total artifacts that reached Ready and were handed to the extractor.",
		},
		[]string{"instrument_id", "vendor"},
	)

	ArtifactsFailedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qc_agent_artifacts_failed_total",
			Help: "Total finalized artifacts that failed classification, extraction or spool enqueue.",
		},
		[]string{"instrument_id", "vendor", "stage"},
	)

	FinalizationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qc_agent_finalization_duration_seconds",
			Help:    "Time from first detection to Ready, per artifact.",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"instrument_id", "vendor"},
	)

	ExtractionDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qc_agent_extraction_duration_seconds",
			Help:    "Time spent running the extraction backend against one artifact.",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200},
		},
		[]string{"instrument_id", "vendor", "outcome"},
	)

	ExtractionOutcomeTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qc_agent_extraction_outcome_total",
			Help: "Extraction attempts by outcome.",
		},
		[]string{"instrument_id", "vendor", "outcome"}, // outcome: success, failure
	)

	TargetRecoveryPct = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qc_agent_target_recovery_pct",
			Help:    "Percentage of expected targets detected per run.",
			Buckets: []float64{0, 25, 50, 75, 90, 95, 99, 100},
		},
		[]string{"instrument_id"},
	)

	BaselineOutliersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qc_agent_baseline_outliers_total",
			Help: "Total target outliers flagged against the active baseline.",
		},
		[]string{"instrument_id"},
	)

	SpoolDepth = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qc_agent_spool_depth",
			Help: "Current number of payloads in each spool directory.",
		},
		[]string{"directory"}, // pending, uploading, failed, completed
	)

	UploadAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qc_agent_upload_attempts_total",
			Help: "Total upload attempts across all retry rungs.",
		},
		[]string{"outcome"}, // success, http_error, transport_error
	)

	UploadLadderExhaustedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "qc_agent_upload_ladder_exhausted_total",
			Help: "Total payloads that exhausted the retry ladder and moved to failed.",
		},
	)

	UploadDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "qc_agent_upload_duration_seconds",
			Help:    "Time from enqueue to a terminal upload outcome (success or ladder exhaustion).",
			Buckets: []float64{1, 5, 10, 30, 60, 300, 900, 3600, 7200},
		},
	)

	FailedFilesCount = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qc_agent_failed_files_count",
			Help: "Current number of entries in the failed-files registry.",
		},
	)
)

// ObserveFinalization records the time between an artifact's first
// detection and the moment it became Ready.
func ObserveFinalization(instrumentID, vendor string, firstSeen time.Time) {
	FinalizationDuration.WithLabelValues(instrumentID, vendor).Observe(time.Since(firstSeen).Seconds())
}

// ObserveExtraction records an extraction attempt's duration and outcome.
func ObserveExtraction(instrumentID, vendor, outcome string, elapsed time.Duration) {
	ExtractionDuration.WithLabelValues(instrumentID, vendor, outcome).Observe(elapsed.Seconds())
	ExtractionOutcomeTotal.WithLabelValues(instrumentID, vendor, outcome).Inc()
}
