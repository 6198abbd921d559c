package simulation_test

import (
	"math"
	"testing"

	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/propagation"
	"github.com/rajithv/CausalLoop/internal/simulation"
)

const idle = "A -> B (0.5, +)\n\nA: 0\nB: 50"

// TestIdleGraphSettlesImmediately validates that a graph whose only source
// is zero commits nothing and settles on the first step.
func TestIdleGraphSettlesImmediately(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{Name: "idle", Text: idle})

	simulation.AssertSettles(t, result)
	if len(result.Steps) != 1 {
		t.Errorf("len(Steps) = %d, want 1", len(result.Steps))
	}
}

// TestPerturbationStartsMotion validates that perturbing the source of an
// idle graph makes its target move.
func TestPerturbationStartsMotion(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:          "kick",
		Text:          idle,
		Config:        simulation.WithDamping(0.5),
		Perturbations: []simulation.Perturbation{simulation.Increase("A", 2)},
		Steps:         10,
	})

	if got := result.Initial["A"]; got != 10 {
		t.Errorf("initial A = %v, want 10", got)
	}
	simulation.AssertStopReason(t, result, propagation.ReasonMaxSteps)
	simulation.AssertUnchanged(t, result, "A")
	simulation.AssertRises(t, result, "B")
	simulation.AssertFinalValue(t, result, "B", 52.5, 1e-9)
}

// TestPerturbationBelowThresholdSettles validates that influence too small
// to pass the change threshold is dropped.
func TestPerturbationBelowThresholdSettles(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:          "weak-kick",
		Text:          idle,
		Perturbations: []simulation.Perturbation{simulation.Increase("A", 2)},
	})

	simulation.AssertSettles(t, result)
	simulation.AssertUnchanged(t, result, "B")
}

// TestPerturbationClampsAtBounds validates that repeated perturbations stop
// at the value domain edges.
func TestPerturbationClampsAtBounds(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name: "clamp",
		Text: "A -> B (0, +)\n\nA: 90\nB: 10",
		Perturbations: []simulation.Perturbation{
			simulation.Increase("A", 5),
			simulation.Decrease("B", 5),
		},
	})

	if got := result.Initial["A"]; got != 100 {
		t.Errorf("initial A = %v, want 100", got)
	}
	if got := result.Initial["B"]; got != 0 {
		t.Errorf("initial B = %v, want 0", got)
	}
}

// TestMidRunPerturbation validates that a perturbation between steps is
// seen by the next step.
func TestMidRunPerturbation(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:   "mid-run",
		Text:   drain,
		Config: simulation.WithDamping(0.5),
		BeforeStep: func(step int, sim *propagation.Simulator) {
			if step != 3 {
				return
			}
			if _, err := sim.Perturb("B", graph.Increase); err != nil {
				t.Fatalf("Perturb() error = %v", err)
			}
		},
	})

	simulation.AssertSettles(t, result)
	if got := result.Steps[2].Values["B"]; math.Abs(got-20) > 1e-9 {
		t.Errorf("B after step 3 = %v, want 20", got)
	}
	if len(result.Steps) != 8 {
		t.Errorf("len(Steps) = %d, want 8", len(result.Steps))
	}
}

// TestMidRunTuning validates that damping changed between steps applies to
// the next step.
func TestMidRunTuning(t *testing.T) {
	r := simulation.NewRunner(t)
	result := r.Run(simulation.Scenario{
		Name:   "tuning",
		Text:   drain,
		Config: simulation.WithDamping(0.5),
		Steps:  2,
		BeforeStep: func(step int, sim *propagation.Simulator) {
			if step == 2 {
				if err := sim.SetDampingFactor(0.9); err != nil {
					t.Fatalf("SetDampingFactor() error = %v", err)
				}
			}
		},
	})

	// Step 1 drops B by 5, step 2 by 1.
	if got := result.Final()["B"]; math.Abs(got-24) > 1e-9 {
		t.Errorf("B = %v, want 24", got)
	}
}
