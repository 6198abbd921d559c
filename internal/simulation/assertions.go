package simulation

import (
	"math"
	"slices"
	"testing"

	"github.com/rajithv/CausalLoop/internal/propagation"
)

// AssertSettles asserts that the run stopped because a step committed nothing.
func AssertSettles(t *testing.T, result SimulationResult) {
	t.Helper()
	AssertStopReason(t, result, propagation.ReasonSettled)
	if n := len(result.Steps); n > 0 && len(result.Steps[n-1].Changed) != 0 {
		t.Errorf("AssertSettles: %s: last step changed %v", result.Name, result.Steps[n-1].Changed)
	}
}

// AssertStopReason asserts why the run ended.
func AssertStopReason(t *testing.T, result SimulationResult, want propagation.StopReason) {
	t.Helper()
	if result.StopReason != want {
		t.Errorf("AssertStopReason: %s: stopped with %q after %d steps, want %q", result.Name, result.StopReason, len(result.Steps), want)
	}
}

// AssertValuesBounded asserts that every node stays within [min, max]
// after every step.
func AssertValuesBounded(t *testing.T, result SimulationResult, min, max float64) {
	t.Helper()
	for _, s := range result.Steps {
		for name, v := range s.Values {
			if v < min || v > max || math.IsNaN(v) {
				t.Errorf("AssertValuesBounded: %s: step %d: %s = %.4f not in [%.2f, %.2f]", result.Name, s.Step, name, v, min, max)
			}
		}
	}
}

// AssertRises asserts that node ends above its initial value.
func AssertRises(t *testing.T, result SimulationResult, node string) {
	t.Helper()
	initial, final := result.Initial[node], result.Final()[node]
	if final <= initial {
		t.Errorf("AssertRises: %s: %s went %.4f -> %.4f", result.Name, node, initial, final)
	}
}

// AssertFalls asserts that node ends below its initial value.
func AssertFalls(t *testing.T, result SimulationResult, node string) {
	t.Helper()
	initial, final := result.Initial[node], result.Final()[node]
	if final >= initial {
		t.Errorf("AssertFalls: %s: %s went %.4f -> %.4f", result.Name, node, initial, final)
	}
}

// AssertUnchanged asserts that node is never committed.
func AssertUnchanged(t *testing.T, result SimulationResult, node string) {
	t.Helper()
	for _, s := range result.Steps {
		if slices.Contains(s.Changed, node) {
			t.Errorf("AssertUnchanged: %s: %s changed at step %d", result.Name, node, s.Step)
			return
		}
	}
}

// AssertMonotonic asserts that node never moves against dir. A positive dir
// means non-decreasing, a negative one non-increasing.
func AssertMonotonic(t *testing.T, result SimulationResult, node string, dir int) {
	t.Helper()
	series := result.Series(node)
	for i := 1; i < len(series); i++ {
		d := series[i] - series[i-1]
		if (dir > 0 && d < 0) || (dir < 0 && d > 0) {
			t.Errorf("AssertMonotonic: %s: %s moved %.4f -> %.4f at step %d", result.Name, node, series[i-1], series[i], i)
			return
		}
	}
}

// AssertFinalValue asserts that node ends within tolerance of want.
func AssertFinalValue(t *testing.T, result SimulationResult, node string, want, tolerance float64) {
	t.Helper()
	got, ok := result.Final()[node]
	if !ok {
		t.Fatalf("AssertFinalValue: %s: node %s not found", result.Name, node)
	}
	if math.Abs(got-want) > tolerance {
		t.Errorf("AssertFinalValue: %s: %s = %.4f, want %.4f ± %.4f", result.Name, node, got, want, tolerance)
	}
}

// AssertEdgeActive asserts that the edge at index carries influence in at
// least one step.
func AssertEdgeActive(t *testing.T, result SimulationResult, index int) {
	t.Helper()
	for _, s := range result.Steps {
		if slices.Contains(s.ActiveEdges, index) {
			return
		}
	}
	t.Errorf("AssertEdgeActive: %s: edge %d never active", result.Name, index)
}

// AssertChangeThreshold asserts that every committed move exceeds threshold.
func AssertChangeThreshold(t *testing.T, result SimulationResult, threshold float64) {
	t.Helper()
	prev := result.Initial
	for _, s := range result.Steps {
		for _, name := range s.Changed {
			if d := math.Abs(s.Values[name] - prev[name]); d <= threshold {
				t.Errorf("AssertChangeThreshold: %s: step %d: %s moved only %.4f", result.Name, s.Step, name, d)
			}
		}
		prev = s.Values
	}
}
