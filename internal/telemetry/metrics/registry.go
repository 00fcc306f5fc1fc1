// Package metrics holds the risk core's Prometheus instrumentation,
// grounded on the teacher's internal/interfaces/http.MetricsRegistry: one
// struct of pre-registered vectors, a MustRegister call in the
// constructor, and small Record*/Observe* methods hiding label plumbing
// from callers.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every metric the risk core exports.
type Registry struct {
	EvaluationDuration *prometheus.HistogramVec
	EvaluationsTotal   *prometheus.CounterVec
	ExplorationActive  *prometheus.GaugeVec
	GraduationRecomputes *prometheus.CounterVec
	ReloadErrors       prometheus.Counter
	StoreBreakerState  prometheus.Gauge
}

// NewRegistry builds and registers every metric against reg. Passing a
// fresh prometheus.NewRegistry() keeps tests isolated from the default
// global registry.
func NewRegistry(reg prometheus.Registerer) *Registry {
	m := &Registry{
		EvaluationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "riskcore_evaluation_duration_seconds",
				Help:    "Coordinator Evaluate() latency by resolved method.",
				Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
			},
			[]string{"method"},
		),
		EvaluationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskcore_evaluations_total",
				Help: "Total evaluations by resolved method.",
			},
			[]string{"method"},
		),
		ExplorationActive: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "riskcore_exploration_active",
				Help: "1 when a (instrument,direction) key is in exploration mode, else 0.",
			},
			[]string{"instrument", "direction"},
		),
		GraduationRecomputes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "riskcore_graduation_recomputes_total",
				Help: "Graduation-table recomputes by partition key.",
			},
			[]string{"instrument", "direction"},
		),
		ReloadErrors: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "riskcore_reload_errors_total",
				Help: "Memory Manager reload failures (snapshot retained).",
			},
		),
		StoreBreakerState: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "riskcore_store_breaker_state",
				Help: "Circuit breaker state: 0=closed, 1=half-open, 2=open.",
			},
		),
	}

	reg.MustRegister(
		m.EvaluationDuration,
		m.EvaluationsTotal,
		m.ExplorationActive,
		m.GraduationRecomputes,
		m.ReloadErrors,
		m.StoreBreakerState,
	)
	return m
}

// ObserveEvaluation satisfies coordinator.MetricsSink.
func (m *Registry) ObserveEvaluation(method string, durationSeconds float64) {
	m.EvaluationsTotal.WithLabelValues(method).Inc()
	m.EvaluationDuration.WithLabelValues(method).Observe(durationSeconds)
}

func (m *Registry) SetExploration(instrument, direction string, active bool) {
	v := 0.0
	if active {
		v = 1.0
	}
	m.ExplorationActive.WithLabelValues(instrument, direction).Set(v)
}

func (m *Registry) RecordGraduationRecompute(instrument, direction string) {
	m.GraduationRecomputes.WithLabelValues(instrument, direction).Inc()
}

func breakerStateValue(state string) float64 {
	switch state {
	case "half-open":
		return 1
	case "open":
		return 2
	default:
		return 0
	}
}

func (m *Registry) SetBreakerState(state string) {
	m.StoreBreakerState.Set(breakerStateValue(state))
}

// Handler exposes the standard /metrics scrape endpoint for a registry
// built with a dedicated prometheus.Registry (rather than the global one).
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
