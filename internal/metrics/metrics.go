package metrics

import (
	"strconv"
	"time"
)

// RecordStep records one propagation step.
func (r *Registry) RecordStep(changedNodes, activeEdges int) {
	if r == nil {
		return
	}
	r.StepsTotal.Inc()
	r.NodesChangedTotal.Add(float64(changedNodes))
	r.ActiveEdgesTotal.Add(float64(activeEdges))
}

// RecordRunEnd records why a simulation run stopped.
func (r *Registry) RecordRunEnd(reason string) {
	if r == nil {
		return
	}
	r.RunsTotal.WithLabelValues(reason).Inc()
}

// RecordPerturbation records a perturbation in the given direction.
func (r *Registry) RecordPerturbation(direction string) {
	if r == nil {
		return
	}
	r.PerturbationsTotal.WithLabelValues(direction).Inc()
}

// SetTuning publishes the live damping factor and step delay.
func (r *Registry) SetTuning(damping float64, delay time.Duration) {
	if r == nil {
		return
	}
	r.DampingFactor.Set(damping)
	r.StepDelaySeconds.Set(delay.Seconds())
}

// RecordLayout records a finished force layout.
func (r *Registry) RecordLayout(iterations int, converged bool, duration time.Duration) {
	if r == nil {
		return
	}
	r.LayoutsTotal.WithLabelValues(strconv.FormatBool(converged)).Inc()
	r.LayoutIterations.Observe(float64(iterations))
	r.LayoutDuration.Observe(duration.Seconds())
}

// SessionOpened counts a new live session.
func (r *Registry) SessionOpened() {
	if r == nil {
		return
	}
	r.SessionsActive.Inc()
}

// SessionClosed counts a finished live session.
func (r *Registry) SessionClosed() {
	if r == nil {
		return
	}
	r.SessionsActive.Dec()
}

// SubscriberDelta adjusts the subscriber gauge by delta.
func (r *Registry) SubscriberDelta(delta int) {
	if r == nil {
		return
	}
	r.SessionSubscribers.Add(float64(delta))
}

// RecordGraphLoad records a graph replacement in a session.
func (r *Registry) RecordGraphLoad(err error) {
	if r == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	r.GraphLoadsTotal.WithLabelValues(status).Inc()
}

// RecordHTTPRequest records an HTTP request with its duration
func (r *Registry) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if r == nil {
		return
	}
	r.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	r.HTTPRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// RecordToolCall records an MCP tool invocation.
func (r *Registry) RecordToolCall(tool, status string) {
	if r == nil {
		return
	}
	r.ToolCallsTotal.WithLabelValues(tool, status).Inc()
}
