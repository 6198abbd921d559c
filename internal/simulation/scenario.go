package simulation

import (
	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/propagation"
)

// Scenario defines a complete simulation experiment.
type Scenario struct {
	Name string

	// Text is the graph definition. Example names a library example and is
	// used when Text is empty.
	Text    string
	Example string

	// Config overrides the simulation configuration. StepDelay is ignored;
	// the runner never sleeps.
	Config *propagation.Config

	// Steps caps the run. 0 uses DefaultSteps.
	Steps int

	// Perturbations are applied, in order, before the first step.
	Perturbations []Perturbation

	// BeforeStep, when non-nil, is called with the 1-based index of the step
	// about to be taken. Use it to perturb or tune the simulator mid-run.
	BeforeStep func(step int, sim *propagation.Simulator)
}

// DefaultSteps is the step cap of a scenario that sets none.
const DefaultSteps = 1000

// Perturbation nudges one node Times times in Direction.
type Perturbation struct {
	Node      string
	Direction graph.Direction
	Times     int
}

// StepSnapshot captures the outcome of a single step.
type StepSnapshot struct {
	Step        int
	Values      map[string]float64
	Changed     []string
	ActiveEdges []int
}

// SimulationResult captures every step and the final graph state.
type SimulationResult struct {
	Name string

	// Initial holds the values after the perturbations, before the first step.
	Initial    map[string]float64
	Steps      []StepSnapshot
	StopReason propagation.StopReason
	Graph      *graph.Graph

	// TracePath is the JSONL step trace of the run.
	TracePath string
}

// Final returns the values after the last step, or Initial if no step ran.
func (r SimulationResult) Final() map[string]float64 {
	if len(r.Steps) == 0 {
		return r.Initial
	}
	return r.Steps[len(r.Steps)-1].Values
}

// Series returns the value of node at the start and after every step.
func (r SimulationResult) Series(node string) []float64 {
	out := make([]float64, 0, len(r.Steps)+1)
	out = append(out, r.Initial[node])
	for _, s := range r.Steps {
		out = append(out, s.Values[node])
	}
	return out
}
