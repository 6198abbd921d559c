// Package propagation runs the damped discrete-time simulation over a causal
// loop graph. Each step reads a snapshot of all node values, pushes every
// edge's damped influence into its target, and commits only the nodes that
// moved by more than a threshold. A run stops by itself once a step commits
// nothing.
package propagation

import (
	"fmt"
	"math"
	"time"

	"github.com/rajithv/CausalLoop/internal/constants"
	"github.com/rajithv/CausalLoop/internal/graph"
)

// Config holds the tunable parameters of the simulation.
type Config struct {
	// DampingFactor is the share of influence withheld on every step; only
	// (1 - DampingFactor) reaches the target. Must lie in (0, 1). Default: 0.9.
	DampingFactor float64

	// StepDelay is the pause between scheduled steps. Default: 500ms.
	StepDelay time.Duration

	// MaxSteps stops a run after this many steps. 0 means unbounded.
	MaxSteps int

	// ChangeThreshold is the minimum move for a node to be committed. Default: 0.1.
	ChangeThreshold float64

	// InfluenceScale scales damped influence before it is added. Default: 0.1.
	InfluenceScale float64

	// Unbounded lets committed values exceed the upper bound of the value
	// domain. The lower bound always holds.
	Unbounded bool
}

// DefaultConfig returns the default simulation configuration.
func DefaultConfig() Config {
	return Config{
		DampingFactor:   constants.DefaultDampingFactor,
		StepDelay:       constants.DefaultStepDelayMs * time.Millisecond,
		MaxSteps:        0,
		ChangeThreshold: constants.ChangeThreshold,
		InfluenceScale:  constants.InfluenceScale,
	}
}

// Validate checks the configuration for values the simulation cannot use.
func (c Config) Validate() error {
	if err := ValidateDampingFactor(c.DampingFactor); err != nil {
		return err
	}
	if c.StepDelay < 0 {
		return fmt.Errorf("step delay must not be negative, got %s", c.StepDelay)
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max steps must not be negative, got %d", c.MaxSteps)
	}
	if c.ChangeThreshold < 0 {
		return fmt.Errorf("change threshold must not be negative, got %v", c.ChangeThreshold)
	}
	return nil
}

// ValidateDampingFactor rejects damping factors outside the open interval (0, 1).
func ValidateDampingFactor(d float64) error {
	if !(d > 0 && d < 1) {
		return fmt.Errorf("damping factor must be between 0 and 1 (exclusive), got %v", d)
	}
	return nil
}

// Change is one committed node update.
type Change struct {
	Name string  `json:"name"`
	From float64 `json:"from"`
	To   float64 `json:"to"`
}

// StepResult reports what a single step did.
type StepResult struct {
	// Step is the 1-based index of the step within its run. Zero means no
	// step was taken.
	Step int `json:"step"`

	// AnyChanged is true if at least one node was committed.
	AnyChanged bool `json:"any_changed"`

	// Changed lists committed nodes in graph order.
	Changed []Change `json:"changed,omitempty"`

	// ActiveEdges holds indices into Graph.Edges() of edges whose damped
	// influence exceeded the activity threshold.
	ActiveEdges []int `json:"active_edges,omitempty"`

	// Values is the full value map after the step.
	Values map[string]float64 `json:"values"`
}

// Step advances g by one propagation step. All influences are computed from
// the values as they were before the step, so edge order does not matter for
// the sources; contributions to one target accumulate, with the working value
// floored at zero after each addition.
func Step(g *graph.Graph, cfg Config) StepResult {
	snapshot := g.Values()
	working := make(map[string]float64, len(snapshot))
	for name, v := range snapshot {
		working[name] = v
	}

	var res StepResult
	for i, e := range g.Edges() {
		src, ok := snapshot[e.Source]
		if !ok {
			continue
		}
		if _, ok := working[e.Target]; !ok {
			continue
		}

		influence := src * e.Multiplier * e.Polarity.Sign()
		damped := influence * (1 - cfg.DampingFactor)

		working[e.Target] = math.Max(0, working[e.Target]+damped*cfg.InfluenceScale)

		if math.Abs(damped) > constants.ActiveEdgeThreshold {
			res.ActiveEdges = append(res.ActiveEdges, i)
		}
	}

	for _, n := range g.Nodes() {
		next := working[n.Name]
		if !cfg.Unbounded {
			next = math.Min(next, constants.MaxNodeValue)
		}
		if math.Abs(next-n.Value) > cfg.ChangeThreshold {
			res.Changed = append(res.Changed, Change{Name: n.Name, From: n.Value, To: next})
			n.Value = next
		}
	}

	res.AnyChanged = len(res.Changed) > 0
	res.Values = g.Values()
	return res
}
