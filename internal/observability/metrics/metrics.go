package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "falldetect_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	recordingOutcomes *prometheus.CounterVec
	recordingLatency  prometheus.Histogram

	evaluationTotal   *prometheus.CounterVec
	evaluationLatency *prometheus.HistogramVec

	cacheLookups *prometheus.CounterVec

	searchCellsTotal    *prometheus.CounterVec
	searchCellLatency   prometheus.Histogram
	searchRunsTotal     *prometheus.CounterVec
	searchRunLatency    prometheus.Histogram
	searchBestMetric    *prometheus.GaugeVec
	searchExportTotal   *prometheus.CounterVec
	searchExportLatency *prometheus.HistogramVec
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		recordingOutcomes = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "recording_outcomes_total",
				Help: "Total evaluated recordings by outcome",
			},
			[]string{"outcome"},
		)
		recordingLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "recording_detect_seconds",
				Help:    "Detection latency of a single recording in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)

		evaluationTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "evaluation_total",
				Help: "Total corpus evaluations by result",
			},
			[]string{"result"},
		)
		evaluationLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "evaluation_latency_seconds",
				Help:    "Corpus evaluation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"result"},
		)

		cacheLookups = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "matrix_cache_lookups_total",
				Help: "Confusion matrix cache lookups by result",
			},
			[]string{"result"},
		)

		searchCellsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "search_cells_total",
				Help: "Total evaluated grid cells by result",
			},
			[]string{"result"},
		)
		searchCellLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "search_cell_latency_seconds",
				Help:    "Grid cell evaluation latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
		)
		searchRunsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "search_runs_total",
				Help: "Total search runs by status",
			},
			[]string{"status"},
		)
		searchRunLatency = prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "search_run_duration_seconds",
				Help:    "Search run duration in seconds",
				Buckets: prometheus.ExponentialBuckets(1, 2, 12),
			},
		)
		searchBestMetric = prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "search_best_metric",
				Help: "Best metric of the last successful search by objective",
			},
			[]string{"objective"},
		)
		searchExportTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "search_export_total",
				Help: "Total search report exports by format and result",
			},
			[]string{"format", "result"},
		)
		searchExportLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "search_export_latency_seconds",
				Help:    "Search report export latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"format", "result"},
		)

		prometheus.MustRegister(
			recordingOutcomes,
			recordingLatency,
			evaluationTotal,
			evaluationLatency,
			cacheLookups,
			searchCellsTotal,
			searchCellLatency,
			searchRunsTotal,
			searchRunLatency,
			searchBestMetric,
			searchExportTotal,
			searchExportLatency,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveRecording records the outcome and detection latency of one recording.
func ObserveRecording(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	if recordingOutcomes != nil {
		recordingOutcomes.WithLabelValues(outcome).Inc()
	}
	if recordingLatency != nil {
		recordingLatency.Observe(duration.Seconds())
	}
}

// ObserveEvaluation records corpus evaluation latency and result.
func ObserveEvaluation(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if evaluationTotal != nil {
		evaluationTotal.WithLabelValues(result).Inc()
	}
	if evaluationLatency != nil {
		evaluationLatency.WithLabelValues(result).Observe(duration.Seconds())
	}
}

// IncCacheLookup increments the matrix cache counter.
func IncCacheLookup(result string) {
	if result == "" {
		result = "unknown"
	}
	if cacheLookups != nil {
		cacheLookups.WithLabelValues(result).Inc()
	}
}

// ObserveSearchCell records one grid cell evaluation.
func ObserveSearchCell(result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if searchCellsTotal != nil {
		searchCellsTotal.WithLabelValues(result).Inc()
	}
	if searchCellLatency != nil {
		searchCellLatency.Observe(duration.Seconds())
	}
}

// IncSearchRun increments the search run counter for a status.
func IncSearchRun(status string) {
	if status == "" {
		status = "unknown"
	}
	if searchRunsTotal != nil {
		searchRunsTotal.WithLabelValues(status).Inc()
	}
}

// ObserveSearchRun records the duration of a finished search run.
func ObserveSearchRun(duration time.Duration) {
	if searchRunLatency != nil {
		searchRunLatency.Observe(duration.Seconds())
	}
}

// SetSearchBest publishes the best metric of an objective.
func SetSearchBest(objective string, value float64) {
	if searchBestMetric != nil {
		searchBestMetric.WithLabelValues(objective).Set(value)
	}
}

// ObserveSearchExport records export latency and result.
func ObserveSearchExport(format, result string, duration time.Duration) {
	if format == "" {
		format = "unknown"
	}
	if result == "" {
		result = resultSuccess
	}
	if searchExportTotal != nil {
		searchExportTotal.WithLabelValues(format, result).Inc()
	}
	if searchExportLatency != nil {
		searchExportLatency.WithLabelValues(format, result).Observe(duration.Seconds())
	}
}

// Exported constants for callers.
const (
	ResultSuccess = resultSuccess
	ResultError   = resultError

	CacheHit  = "hit"
	CacheMiss = "miss"
)
