package simulation

import (
	"fmt"
	"strings"
	"testing"

	"github.com/rajithv/CausalLoop/internal/examples"
	"github.com/rajithv/CausalLoop/internal/grammar"
	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/logging"
	"github.com/rajithv/CausalLoop/internal/metrics"
	"github.com/rajithv/CausalLoop/internal/propagation"
)

// Runner orchestrates simulation experiments against the real simulator.
type Runner struct {
	t        *testing.T
	traceDir string
	metrics  *metrics.Registry
}

// NewRunner creates a runner with an isolated trace directory and metrics
// registry.
func NewRunner(t *testing.T) *Runner {
	t.Helper()
	return &Runner{t: t, traceDir: t.TempDir(), metrics: metrics.NewRegistry()}
}

// Metrics returns the registry the runner records steps into.
func (r *Runner) Metrics() *metrics.Registry { return r.metrics }

// Run executes the scenario and returns the collected results.
func (r *Runner) Run(scenario Scenario) SimulationResult {
	r.t.Helper()

	// Phase 1: Build the graph.
	g := r.buildGraph(scenario)

	// Phase 2: Configure the simulator.
	cfg := propagation.DefaultConfig()
	if scenario.Config != nil {
		cfg = *scenario.Config
	}
	cfg.StepDelay = 0
	cfg.MaxSteps = scenario.Steps
	if cfg.MaxSteps <= 0 {
		cfg.MaxSteps = DefaultSteps
	}
	if err := cfg.Validate(); err != nil {
		r.t.Fatalf("%s: invalid config: %v", scenario.Name, err)
	}
	sim := propagation.NewSimulator(g, cfg)

	tracer := logging.NewStepTracer(r.traceDir, "debug", true)
	if tracer == nil {
		r.t.Fatalf("%s: could not open step trace in %s", scenario.Name, r.traceDir)
	}
	defer tracer.Close()

	// Phase 3: Apply perturbations.
	for _, p := range scenario.Perturbations {
		times := max(p.Times, 1)
		for range times {
			v, err := sim.Perturb(p.Node, p.Direction)
			if err != nil {
				r.t.Fatalf("%s: perturb %s %s: %v", scenario.Name, p.Direction, p.Node, err)
			}
			r.metrics.RecordPerturbation(string(p.Direction))
			tracer.Log("perturb", map[string]any{"node": p.Node, "direction": p.Direction, "value": v})
		}
	}

	result := SimulationResult{
		Name:      scenario.Name,
		Initial:   g.Values(),
		Graph:     g,
		TracePath: tracer.Path(),
	}

	// Phase 4: Step until the simulator stops.
	sim.Start()
	for sim.Running() {
		if scenario.BeforeStep != nil {
			scenario.BeforeStep(sim.Steps()+1, sim)
			if !sim.Running() {
				break
			}
		}
		res, _ := sim.Advance()
		if res.Step == 0 {
			break
		}
		r.metrics.RecordStep(len(res.Changed), len(res.ActiveEdges))
		tracer.Log("step", map[string]any{
			"step":         res.Step,
			"changed":      res.Changed,
			"active_edges": res.ActiveEdges,
			"values":       res.Values,
		})
		result.Steps = append(result.Steps, snapshotStep(res))
	}

	result.StopReason = sim.StopReason()
	r.metrics.RecordRunEnd(string(result.StopReason))
	tracer.Log("stop", map[string]any{"reason": result.StopReason, "steps": sim.Steps()})
	return result
}

// buildGraph compiles the scenario text or loads its example.
func (r *Runner) buildGraph(scenario Scenario) *graph.Graph {
	r.t.Helper()

	if scenario.Text != "" {
		g, err := grammar.Compile(scenario.Text)
		if err != nil {
			r.t.Fatalf("%s: compile: %v", scenario.Name, err)
		}
		return g
	}
	if scenario.Example != "" {
		g, err := examples.Graph(scenario.Example)
		if err != nil {
			r.t.Fatalf("%s: example %q: %v", scenario.Name, scenario.Example, err)
		}
		return g
	}
	r.t.Fatalf("%s: scenario has neither text nor example", scenario.Name)
	return nil
}

func snapshotStep(res propagation.StepResult) StepSnapshot {
	changed := make([]string, 0, len(res.Changed))
	for _, c := range res.Changed {
		changed = append(changed, c.Name)
	}
	return StepSnapshot{
		Step:        res.Step,
		Values:      res.Values,
		Changed:     changed,
		ActiveEdges: res.ActiveEdges,
	}
}

// FormatResultDebug returns a debug string for a simulation result.
func FormatResultDebug(result SimulationResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Scenario %s: steps=%d stop=%s\n", result.Name, len(result.Steps), result.StopReason)
	for _, name := range result.Graph.Order() {
		fmt.Fprintf(&b, "  %s: initial=%.2f final=%.2f\n", name, result.Initial[name], result.Final()[name])
	}
	return b.String()
}
