// Package graph holds the in-memory causal-loop model: named nodes with
// bounded numeric values and directed, signed, weighted edges between them.
//
// A Graph is built fresh from a Definition and then mutated in place by
// perturbation and simulation. It is not safe for concurrent use; callers
// that share a Graph across goroutines must serialize access (see the
// propagation.Session actor).
package graph

import (
	"errors"
	"fmt"
	"math"
	"regexp"

	"github.com/rajithv/CausalLoop/internal/constants"
)

var (
	// ErrDanglingReference is returned when an edge names a node that cannot
	// exist in the node set.
	ErrDanglingReference = errors.New("dangling node reference")

	// ErrUnknownNode is returned when an operation names a node that is not in the graph.
	ErrUnknownNode = errors.New("unknown node")

	// ErrInvalidPolarity is returned for polarity strings other than "+" and "-".
	ErrInvalidPolarity = errors.New("invalid polarity")
)

var identPattern = regexp.MustCompile(`^\w+$`)

// ValidName reports whether name is a grammar identifier (letters, digits, underscore).
func ValidName(name string) bool {
	return identPattern.MatchString(name)
}

// Polarity is the sign of an edge's influence.
type Polarity string

const (
	Positive Polarity = "+" // reinforcing
	Negative Polarity = "-" // counteracting
)

// ParsePolarity converts "+" or "-" to a Polarity.
func ParsePolarity(s string) (Polarity, error) {
	switch Polarity(s) {
	case Positive, Negative:
		return Polarity(s), nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPolarity, s)
}

// Sign returns +1 for Positive and -1 for Negative.
func (p Polarity) Sign() float64 {
	if p == Negative {
		return -1
	}
	return 1
}

// Direction selects increase or decrease for a perturbation.
type Direction string

const (
	Increase Direction = "increase"
	Decrease Direction = "decrease"
)

// ParseDirection accepts "increase"/"decrease" and the short forms "+"/"-"/"up"/"down".
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "increase", "+", "up", "inc":
		return Increase, nil
	case "decrease", "-", "down", "dec":
		return Decrease, nil
	}
	return "", fmt.Errorf("invalid direction %q (use increase or decrease)", s)
}

// Edge is a directed influence from Source to Target.
type Edge struct {
	Source     string   `json:"source" yaml:"source"`
	Target     string   `json:"target" yaml:"target"`
	Multiplier float64  `json:"multiplier" yaml:"multiplier"`
	Polarity   Polarity `json:"polarity" yaml:"polarity"`
}

// Node is a named state variable of the diagram.
type Node struct {
	Name               string  `json:"name"`
	Value              float64 `json:"value"`
	PerturbationAmount float64 `json:"perturbation_amount"`
	OriginalValue      float64 `json:"original_value"`

	// X and Y are written by the layout engine and read by renderers.
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Graph owns the node set and the ordered edge list.
type Graph struct {
	nodes map[string]*Node
	order []string
	edges []Edge
}

// New builds a graph from the raw triple. Node order is edge endpoints in edge
// order followed by value-only nodes sorted by name.
func New(edges []Edge, nodeValues, perturbationAmounts map[string]float64) (*Graph, error) {
	return Build(&Definition{
		Edges:               edges,
		NodeValues:          nodeValues,
		PerturbationAmounts: perturbationAmounts,
	})
}

// Build creates a new graph from a definition. The node set is the union of
// all edge endpoints and all value keys. Nodes without a value get
// DefaultNodeValue, nodes without a positive perturbation amount get
// DefaultPerturbationAmount, and every value is clamped into the value domain.
// The build-time values are captured for Reset.
func Build(def *Definition) (*Graph, error) {
	if def == nil {
		def = NewDefinition()
	}

	for i, e := range def.Edges {
		if !ValidName(e.Source) {
			return nil, fmt.Errorf("edge %d source %q: %w", i, e.Source, ErrDanglingReference)
		}
		if !ValidName(e.Target) {
			return nil, fmt.Errorf("edge %d target %q: %w", i, e.Target, ErrDanglingReference)
		}
		if _, err := ParsePolarity(string(e.Polarity)); err != nil {
			return nil, fmt.Errorf("edge %d (%s -> %s): %w", i, e.Source, e.Target, err)
		}
	}
	for name := range def.NodeValues {
		if !ValidName(name) {
			return nil, fmt.Errorf("node name %q is not a valid identifier", name)
		}
	}

	names := def.Names()
	g := &Graph{
		nodes: make(map[string]*Node, len(names)),
		order: names,
		edges: append([]Edge(nil), def.Edges...),
	}

	for _, name := range names {
		value, ok := def.NodeValues[name]
		if !ok {
			value = constants.DefaultNodeValue
		}
		value = Clamp(value)

		amount, ok := def.PerturbationAmounts[name]
		if !ok || !(amount > 0) {
			amount = constants.DefaultPerturbationAmount
		}

		g.nodes[name] = &Node{
			Name:               name,
			Value:              value,
			PerturbationAmount: amount,
			OriginalValue:      value,
		}
	}

	return g, nil
}

// Clamp limits v to the node value domain. NaN becomes the lower bound.
func Clamp(v float64) float64 {
	if math.IsNaN(v) || v < constants.MinNodeValue {
		return constants.MinNodeValue
	}
	if v > constants.MaxNodeValue {
		return constants.MaxNodeValue
	}
	return v
}

// Node returns the node with the given name.
func (g *Graph) Node(name string) (*Node, bool) {
	n, ok := g.nodes[name]
	return n, ok
}

// Nodes returns the nodes in build order.
func (g *Graph) Nodes() []*Node {
	out := make([]*Node, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.nodes[name])
	}
	return out
}

// Order returns the node names in build order.
func (g *Graph) Order() []string {
	return append([]string(nil), g.order...)
}

// Edges returns a copy of the edge list in insertion order.
func (g *Graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	return len(g.order)
}

// Values returns a snapshot of the current node values.
func (g *Graph) Values() map[string]float64 {
	out := make(map[string]float64, len(g.nodes))
	for name, n := range g.nodes {
		out[name] = n.Value
	}
	return out
}

// OriginalValues returns the values captured at build time.
func (g *Graph) OriginalValues() map[string]float64 {
	out := make(map[string]float64, len(g.nodes))
	for name, n := range g.nodes {
		out[name] = n.OriginalValue
	}
	return out
}

// Perturb moves a node's value by its perturbation amount in the given
// direction and returns the new value, clamped into the value domain.
func (g *Graph) Perturb(name string, dir Direction) (float64, error) {
	n, ok := g.nodes[name]
	if !ok {
		return 0, fmt.Errorf("perturb %q: %w", name, ErrUnknownNode)
	}
	switch dir {
	case Increase:
		n.Value = Clamp(n.Value + n.PerturbationAmount)
	case Decrease:
		n.Value = Clamp(n.Value - n.PerturbationAmount)
	default:
		return n.Value, fmt.Errorf("perturb %q: invalid direction %q", name, dir)
	}
	return n.Value, nil
}

// SetValue sets a node's current value, clamped into the value domain.
func (g *Graph) SetValue(name string, v float64) error {
	n, ok := g.nodes[name]
	if !ok {
		return fmt.Errorf("set value %q: %w", name, ErrUnknownNode)
	}
	n.Value = Clamp(v)
	return nil
}

// SetPerturbationAmount changes a node's perturbation step. Non-positive
// amounts are ignored.
func (g *Graph) SetPerturbationAmount(name string, amount float64) error {
	n, ok := g.nodes[name]
	if !ok {
		return fmt.Errorf("set perturbation amount %q: %w", name, ErrUnknownNode)
	}
	if amount > 0 {
		n.PerturbationAmount = amount
	}
	return nil
}

// Reset restores every node to its build-time value.
func (g *Graph) Reset() {
	for _, n := range g.nodes {
		n.Value = n.OriginalValue
	}
}

// Definition returns the graph as a definition carrying the current values.
func (g *Graph) Definition() *Definition {
	def := NewDefinition()
	def.Edges = g.Edges()
	for _, name := range g.order {
		n := g.nodes[name]
		def.SetNode(name, n.Value, n.PerturbationAmount)
	}
	return def
}
