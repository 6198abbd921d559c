package simulation

import (
	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/propagation"
)

// Increase returns a perturbation that raises node times times.
func Increase(node string, times int) Perturbation {
	return Perturbation{Node: node, Direction: graph.Increase, Times: times}
}

// Decrease returns a perturbation that lowers node times times.
func Decrease(node string, times int) Perturbation {
	return Perturbation{Node: node, Direction: graph.Decrease, Times: times}
}

// WithDamping returns the default configuration with the given damping factor.
func WithDamping(d float64) *propagation.Config {
	cfg := propagation.DefaultConfig()
	cfg.DampingFactor = d
	return &cfg
}

// Unbounded returns cfg with the upper value bound lifted.
func Unbounded(cfg *propagation.Config) *propagation.Config {
	out := *cfg
	out.Unbounded = true
	return &out
}
