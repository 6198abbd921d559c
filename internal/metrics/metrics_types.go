// Package metrics exposes Prometheus collectors for simulation runs, layouts,
// the live server and the MCP tools. Every collector is registered on a
// private prometheus.Registry so tests can create isolated instances.
package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all metrics for the application. A nil *Registry is valid
// and records nothing.
type Registry struct {
	// Simulation Metrics
	StepsTotal         prometheus.Counter
	NodesChangedTotal  prometheus.Counter
	ActiveEdgesTotal   prometheus.Counter
	RunsTotal          *prometheus.CounterVec
	PerturbationsTotal *prometheus.CounterVec
	DampingFactor      prometheus.Gauge
	StepDelaySeconds   prometheus.Gauge

	// Layout Metrics
	LayoutsTotal     *prometheus.CounterVec
	LayoutIterations prometheus.Histogram
	LayoutDuration   prometheus.Histogram

	// Session Metrics
	SessionsActive     prometheus.Gauge
	SessionSubscribers prometheus.Gauge
	GraphLoadsTotal    *prometheus.CounterVec

	// HTTP Metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// MCP Metrics
	ToolCallsTotal *prometheus.CounterVec

	registry *prometheus.Registry
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the process-wide registry.
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initSimulationMetrics()
	r.initLayoutMetrics()
	r.initSessionMetrics()
	r.initHTTPMetrics()
	r.initToolMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return promhttp.HandlerFor(prometheus.NewRegistry(), promhttp.HandlerOpts{})
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
