// Package metrics registers the Prometheus instruments shared across the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	downloadDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hx_model_manager_download_duration_seconds",
		Help:    "Duration of model download jobs grouped by terminal outcome",
		Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
	}, []string{"outcome"})

	downloadOutcomeTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hx_model_manager_download_outcome_total",
		Help: "Total download jobs completed grouped by terminal outcome",
	}, []string{"outcome"})

	downloadsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "hx_model_manager_downloads_active",
		Help: "Number of download jobs currently in a non-terminal state",
	})

	downloadBytesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hx_model_manager_download_bytes_total",
		Help: "Cumulative bytes reported downloaded across all jobs",
	})

	cacheLookups = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hx_model_manager_metadata_cache_lookups_total",
		Help: "Metadata cache lookups grouped by result (hit/miss)",
	}, []string{"result"})

	inferenceDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "hx_model_manager_inference_duration_seconds",
		Help:    "Duration of inference calls recorded by the performance tracker",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"model"})
)

// ObserveDownloadCompletion records the duration and outcome of a finished job.
func ObserveDownloadCompletion(outcome string, duration time.Duration) {
	if outcome == "" {
		outcome = "unknown"
	}
	downloadDuration.WithLabelValues(outcome).Observe(duration.Seconds())
	downloadOutcomeTotal.WithLabelValues(outcome).Inc()
}

// DownloadStarted bumps the active downloads gauge.
func DownloadStarted() {
	downloadsActive.Inc()
}

// DownloadFinished decrements the active downloads gauge.
func DownloadFinished() {
	downloadsActive.Dec()
}

// AddDownloadedBytes accumulates byte progress deltas.
func AddDownloadedBytes(n int64) {
	if n > 0 {
		downloadBytesTotal.Add(float64(n))
	}
}

// ObserveCacheLookup records a metadata cache hit or miss.
func ObserveCacheLookup(hit bool) {
	if hit {
		cacheLookups.WithLabelValues("hit").Inc()
		return
	}
	cacheLookups.WithLabelValues("miss").Inc()
}

// ObserveInference records the latency of one inference call.
func ObserveInference(model string, duration time.Duration) {
	if model == "" {
		model = "unknown"
	}
	inferenceDuration.WithLabelValues(model).Observe(duration.Seconds())
}
