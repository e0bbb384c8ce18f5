package segsim

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const metricsNamespace = "segsim"

// Metrics holds the Prometheus collectors of the solver and the mission sequencer.
// A nil *Metrics records nothing.
type Metrics struct {
	// Evaluations counts residual evaluations (runs of the iterate process). Labels: segment
	Evaluations *prometheus.CounterVec
	// Solves counts finished solves. Labels: method, status
	Solves *prometheus.CounterVec
	// SolveEvaluations observes the number of evaluations per solve.
	SolveEvaluations prometheus.Histogram
	// Segments counts segment outcomes. Labels: status
	Segments *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Evaluations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "solver",
			Name:      "evaluations_total",
			Help:      "Number of residual evaluations.",
		}, []string{"segment"}),
		Solves: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "solver",
			Name:      "solves_total",
			Help:      "Number of finished solves by method and status.",
		}, []string{"method", "status"}),
		SolveEvaluations: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "solver",
			Name:      "solve_evaluations",
			Help:      "Residual evaluations needed per solve.",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
		}),
		Segments: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "mission",
			Name:      "segments_total",
			Help:      "Number of evaluated segments by final status.",
		}, []string{"status"}),
	}
}

func (m *Metrics) evaluated(segment string) {
	if m == nil {
		return
	}
	m.Evaluations.WithLabelValues(segment).Inc()
}

func (m *Metrics) solved(method SolverMethod, status SolverStatus, evaluations int) {
	if m == nil {
		return
	}
	m.Solves.WithLabelValues(method.String(), status.String()).Inc()
	m.SolveEvaluations.Observe(float64(evaluations))
}

func (m *Metrics) segment(status SegmentStatus) {
	if m == nil {
		return
	}
	m.Segments.WithLabelValues(status.String()).Inc()
}
