// Package metrics exports sampling metrics to Prometheus.
package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusCollector implements cthyb.MetricsCollector with Prometheus
// counters and a drift histogram.
type PrometheusCollector struct {
	moves         *prometheus.CounterVec
	cycles        *prometheus.CounterVec
	regenerations prometheus.Counter
	drift         prometheus.Histogram
}

// NewPrometheusCollector registers the solver metrics with reg. A nil reg
// uses the default registerer.
func NewPrometheusCollector(reg prometheus.Registerer) *PrometheusCollector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &PrometheusCollector{
		moves: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cthyb",
			Name:      "moves_total",
			Help:      "Metropolis proposals by move and outcome.",
		}, []string{"move", "accepted"}),
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "cthyb",
			Name:      "cycles_total",
			Help:      "Completed Monte Carlo cycles by phase.",
		}, []string{"phase"}),
		regenerations: f.NewCounter(prometheus.CounterOpts{
			Namespace: "cthyb",
			Name:      "determinant_regenerations_total",
			Help:      "Cycles in which determinants were rebuilt from scratch.",
		}),
		drift: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "cthyb",
			Name:      "determinant_drift",
			Help:      "Relative drift between updated and regenerated determinants.",
			Buckets:   prometheus.ExponentialBuckets(1e-14, 10, 12),
		}),
	}
}

// RecordMove implements cthyb.MetricsCollector.
func (p *PrometheusCollector) RecordMove(name string, accepted bool) {
	p.moves.WithLabelValues(name, strconv.FormatBool(accepted)).Inc()
}

// RecordCycle implements cthyb.MetricsCollector.
func (p *PrometheusCollector) RecordCycle(phase string) {
	p.cycles.WithLabelValues(phase).Inc()
}

// RecordRegeneration implements cthyb.MetricsCollector.
func (p *PrometheusCollector) RecordRegeneration(drift float64) {
	p.regenerations.Inc()
	p.drift.Observe(drift)
}
