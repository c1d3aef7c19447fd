// Package metrics exposes Prometheus instrumentation for the analysis
// pipeline, mirroring backend/decision's promhttp wiring: a small set
// of counters/histograms registered once and served at /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the collectors the HTTP layer increments.
type Metrics struct {
	RequestsTotal       *prometheus.CounterVec
	DriftScoreHistogram prometheus.Histogram
	StoreWriteFailures  prometheus.Counter
	AnalysesStored      prometheus.Counter
}

// New registers and returns the collector set against reg.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RequestsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Name: "driftdetect_http_requests_total",
			Help: "Total HTTP requests handled, by route and status class.",
		}, []string{"route", "status"}),
		DriftScoreHistogram: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "driftdetect_drift_score",
			Help:    "Distribution of computed drift scores.",
			Buckets: []float64{0, 10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		StoreWriteFailures: f.NewCounter(prometheus.CounterOpts{
			Name: "driftdetect_store_write_failures_total",
			Help: "Analysis store write failures (analysis is still returned to the caller).",
		}),
		AnalysesStored: f.NewCounter(prometheus.CounterOpts{
			Name: "driftdetect_analyses_stored_total",
			Help: "Analyses successfully persisted.",
		}),
	}
}
