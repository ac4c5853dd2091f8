// Package metrics exposes Prometheus instrumentation for the recovery
// and merge pipelines.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus collectors.
type Metrics struct {
	// Recovery metrics, labeled by tactic: direct, checkpoint, partial.
	RecoveryAttempts  *prometheus.CounterVec
	RecoverySuccesses *prometheus.CounterVec
	RecoveryFailures  *prometheus.CounterVec

	// Merge metrics.
	MergeResolutions *prometheus.CounterVec
	MergeConflicts   prometheus.Counter

	// Completeness score distribution of recovered states.
	Completeness prometheus.Histogram
}

// New creates a metrics collector registered against reg. A nil reg uses
// the default registerer.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		RecoveryAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionstate_recovery_attempts_total",
				Help: "Total number of session recovery attempts",
			},
			[]string{"tactic"},
		),
		RecoverySuccesses: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionstate_recovery_successes_total",
				Help: "Total number of successful session recoveries",
			},
			[]string{"tactic"},
		),
		RecoveryFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionstate_recovery_failures_total",
				Help: "Total number of failed session recoveries",
			},
			[]string{"tactic"},
		),
		MergeResolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "sessionstate_merge_resolutions_total",
				Help: "Total number of merge resolutions by strategy",
			},
			[]string{"strategy"},
		),
		MergeConflicts: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "sessionstate_merge_conflicts_total",
				Help: "Total number of conflicts recorded during merges",
			},
		),
		Completeness: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "sessionstate_completeness_score",
				Help:    "Completeness score of recovered workspace states",
				Buckets: []float64{0, 10, 25, 50, 100, 200, 400, 800},
			},
		),
	}
}
