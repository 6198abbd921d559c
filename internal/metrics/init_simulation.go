package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initSimulationMetrics() {
	r.StepsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "causalloop_simulation_steps_total",
			Help: "Total number of propagation steps executed",
		},
	)

	r.NodesChangedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "causalloop_simulation_nodes_changed_total",
			Help: "Total number of node value commits across all steps",
		},
	)

	r.ActiveEdgesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "causalloop_simulation_active_edges_total",
			Help: "Total number of edges that carried a visible influence in a step",
		},
	)

	r.RunsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "causalloop_simulation_runs_total",
			Help: "Total number of finished simulation runs by stop reason",
		},
		[]string{"reason"}, // settled, stopped, max_steps, cancelled, reset
	)

	r.PerturbationsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "causalloop_perturbations_total",
			Help: "Total number of node perturbations",
		},
		[]string{"direction"}, // increase, decrease
	)

	r.DampingFactor = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "causalloop_simulation_damping_factor",
			Help: "Current damping factor of the live session",
		},
	)

	r.StepDelaySeconds = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "causalloop_simulation_step_delay_seconds",
			Help: "Current delay between scheduled steps of the live session",
		},
	)
}

func (r *Registry) initLayoutMetrics() {
	r.LayoutsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "causalloop_layouts_total",
			Help: "Total number of force layouts computed",
		},
		[]string{"converged"}, // true, false
	)

	r.LayoutIterations = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "causalloop_layout_iterations",
			Help:    "Iterations used by force layouts",
			Buckets: []float64{10, 25, 50, 100, 150, 200},
		},
	)

	r.LayoutDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "causalloop_layout_duration_seconds",
			Help:    "Duration of force layouts in seconds",
			Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1.0},
		},
	)
}

func (r *Registry) initSessionMetrics() {
	r.SessionsActive = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "causalloop_sessions_active",
			Help: "Number of live simulation sessions",
		},
	)

	r.SessionSubscribers = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "causalloop_session_subscribers",
			Help: "Number of event subscribers across live sessions",
		},
	)

	r.GraphLoadsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "causalloop_graph_loads_total",
			Help: "Total number of graph definitions loaded into sessions",
		},
		[]string{"status"}, // success, error
	)
}
