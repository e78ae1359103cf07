// Package observability holds the Prometheus instrumentation for the
// scoring pipeline and the climate API client.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the Prometheus counters, histograms, and gauges for a
// scoring run.
type Metrics struct {
	DistrictsScored prometheus.Counter
	RunErrors       prometheus.Counter
	RunInProgress   prometheus.Gauge

	// Scoring metrics.
	ScoreDistribution *prometheus.CounterVec // labels: hazard, period, score
	StageDuration     *prometheus.HistogramVec

	// Climate API client metrics.
	ClimateRequests    *prometheus.CounterVec // labels: hazard, outcome={success,absent,fallback,error}
	ClimateAPIDuration *prometheus.HistogramVec
	ClimateDeadLetters prometheus.Gauge
}

// NewMetrics creates and registers all pipeline metrics with the default
// Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.DistrictsScored,
		m.RunErrors,
		m.RunInProgress,
		m.ScoreDistribution,
		m.StageDuration,
		m.ClimateRequests,
		m.ClimateAPIDuration,
		m.ClimateDeadLetters,
	)
	return m
}

// NewMetricsForTesting creates Metrics without registering them, to avoid
// "already registered" panics when called from multiple tests.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}

func newMetrics() *Metrics {
	return &Metrics{
		DistrictsScored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climrisk",
			Name:      "districts_scored_total",
			Help:      "Total districts that completed scoring.",
		}),
		RunErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "climrisk",
			Name:      "run_errors_total",
			Help:      "Total scoring runs that aborted with an error.",
		}),
		RunInProgress: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "climrisk",
			Name:      "run_in_progress",
			Help:      "1 while a scoring run is active, 0 otherwise.",
		}),
		ScoreDistribution: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climrisk",
			Name:      "score_values_total",
			Help:      "Assigned score values by hazard and period.",
		}, []string{"hazard", "period", "score"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "climrisk",
			Name:      "stage_duration_seconds",
			Help:      "Duration of each pipeline stage.",
			Buckets:   []float64{0.1, 0.5, 1, 5, 15, 30, 60, 120, 300},
		}, []string{"stage"}),
		ClimateRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "climrisk",
			Name:      "climate_requests_total",
			Help:      "Climate API requests by hazard and outcome.",
		}, []string{"hazard", "outcome"}),
		ClimateAPIDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "climrisk",
			Name:      "climate_api_duration_seconds",
			Help:      "Climate API request duration in seconds.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"hazard"}),
		ClimateDeadLetters: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "climrisk",
			Name:      "climate_dead_letters",
			Help:      "Districts whose climate retrieval failed after all retries.",
		}),
	}
}
