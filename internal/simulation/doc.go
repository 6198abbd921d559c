// Package simulation provides a scenario harness for validating the
// emergent dynamics of causal loop diagrams.
//
// The harness exercises the real grammar, graph and propagation packages,
// with no mocks. Scenarios name a definition (inline text or a library
// example), the perturbations applied before the run, and a step cap. The
// runner steps the simulator back to back and captures a snapshot of every
// step for property-style assertions.
//
// Each runner writes a step trace into its own t.TempDir().
//
// Usage:
//
//	func TestReinforcingLoopSaturates(t *testing.T) {
//	    r := simulation.NewRunner(t)
//	    result := r.Run(simulation.Scenario{
//	        Name:  "reinforcing",
//	        Text:  "A -> B (1, +)\nB -> A (1, +)",
//	        Steps: 500,
//	    })
//	    simulation.AssertSettles(t, result)
//	    simulation.AssertFinalValue(t, result, "A", 100, 0)
//	}
package simulation
