package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics encapsulates Prometheus instrumentation for the timetable engine.
type Metrics struct {
	registry *prometheus.Registry
	handler  http.Handler

	generationTotal    *prometheus.CounterVec
	generationDuration prometheus.Histogram
	solverBacktracks   prometheus.Histogram
	solverAssignments  prometheus.Histogram
	attemptTotal       *prometheus.CounterVec
}

// New registers the engine collectors on a fresh registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	generationTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_generations_total",
		Help: "Total timetable generation requests by outcome",
	}, []string{"outcome"})

	generationDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_generation_duration_seconds",
		Help:    "Wall time spent building a full solution portfolio",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
	})

	solverBacktracks := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_solver_backtracks",
		Help:    "Backtracks recorded per solver attempt",
		Buckets: prometheus.ExponentialBuckets(1, 4, 8),
	})

	solverAssignments := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "timetable_solver_assignments",
		Help:    "Assignment steps recorded per solver attempt",
		Buckets: prometheus.ExponentialBuckets(1, 4, 10),
	})

	attemptTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "timetable_solver_attempts_total",
		Help: "Solver attempts per optimization goal and outcome",
	}, []string{"goal", "outcome"})

	registry.MustRegister(generationTotal, generationDuration, solverBacktracks, solverAssignments, attemptTotal)

	return &Metrics{
		registry:           registry,
		handler:            promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		generationTotal:    generationTotal,
		generationDuration: generationDuration,
		solverBacktracks:   solverBacktracks,
		solverAssignments:  solverAssignments,
		attemptTotal:       attemptTotal,
	}
}

// Handler exposes the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return m.handler
}

// ObserveGeneration records one full portfolio run.
func (m *Metrics) ObserveGeneration(outcome string, elapsed time.Duration) {
	m.generationTotal.WithLabelValues(outcome).Inc()
	m.generationDuration.Observe(elapsed.Seconds())
}

// ObserveAttempt records a single solver attempt.
func (m *Metrics) ObserveAttempt(goal, outcome string, backtracks, assignments int) {
	m.attemptTotal.WithLabelValues(goal, outcome).Inc()
	m.solverBacktracks.Observe(float64(backtracks))
	m.solverAssignments.Observe(float64(assignments))
}
