package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RunsTotal counts completed pipeline runs by terminal outcome.
	// Labels: outcome (persisted/rejected/failed)
	RunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callytics_runs_total",
			Help: "Total number of pipeline runs by terminal outcome",
		},
		[]string{"outcome"},
	)

	// StageErrorsTotal counts stage errors by stage and error code.
	// Labels: stage (transcribe/diarize/persist/...), error_code
	StageErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callytics_stage_errors_total",
			Help: "Total number of stage errors by stage and error code",
		},
		[]string{"stage", "error_code"},
	)

	// StageDuration is a histogram of per-stage wall time in seconds.
	// Buckets: 0.1s, 0.5s, 1s, 2s, 5s, 10s, 30s, 60s, 120s, 300s
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "callytics_stage_duration_seconds",
			Help:    "Pipeline stage duration in seconds by stage",
			Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120, 300},
		},
		[]string{"stage"},
	)

	// ExtractorFallbacksTotal counts text-analytics extractor degradations.
	// Labels: extractor (role/sentiment/profanity/summary/conflict/topic)
	ExtractorFallbacksTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "callytics_extractor_fallbacks_total",
			Help: "Total number of extractor invocations degraded to the fallback default",
		},
		[]string{"extractor"},
	)

	// QueueDepth tracks queued jobs waiting for a worker.
	QueueDepth = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "callytics_job_queue_depth",
			Help: "Number of jobs waiting for a pipeline worker",
		},
	)
)

// RecordRun records a finished run with its terminal outcome.
func RecordRun(outcome string) {
	RunsTotal.WithLabelValues(outcome).Inc()
}

// RecordStageError records a stage error by code.
func RecordStageError(stage, errorCode string) {
	StageErrorsTotal.WithLabelValues(stage, errorCode).Inc()
}

// RecordStageDuration records stage wall time in seconds.
func RecordStageDuration(stage string, durationSeconds float64) {
	StageDuration.WithLabelValues(stage).Observe(durationSeconds)
}

// RecordExtractorFallback records a degraded extractor invocation.
func RecordExtractorFallback(extractor string) {
	ExtractorFallbacksTotal.WithLabelValues(extractor).Inc()
}
