package graph

import "sort"

// Definition is the {edges, nodeValues, perturbationAmounts} triple produced by
// the text parser and the visual builder, and consumed by Build.
type Definition struct {
	Edges               []Edge             `json:"edges" yaml:"edges"`
	NodeValues          map[string]float64 `json:"node_values" yaml:"node_values"`
	PerturbationAmounts map[string]float64 `json:"perturbation_amounts" yaml:"perturbation_amounts"`

	// order records value-line names in first-seen order.
	order []string
}

// NewDefinition returns an empty definition with initialized maps.
func NewDefinition() *Definition {
	return &Definition{
		NodeValues:          make(map[string]float64),
		PerturbationAmounts: make(map[string]float64),
	}
}

// AddEdge appends an edge.
func (d *Definition) AddEdge(e Edge) {
	d.Edges = append(d.Edges, e)
}

// SetNode records a node's initial value and perturbation amount. A repeated
// name keeps its original position in the node order.
func (d *Definition) SetNode(name string, value, perturbationAmount float64) {
	if d.NodeValues == nil {
		d.NodeValues = make(map[string]float64)
	}
	if d.PerturbationAmounts == nil {
		d.PerturbationAmounts = make(map[string]float64)
	}
	if _, seen := d.NodeValues[name]; !seen {
		d.order = append(d.order, name)
	}
	d.NodeValues[name] = value
	d.PerturbationAmounts[name] = perturbationAmount
}

// IsEmpty reports whether the definition has no edges and no node values.
func (d *Definition) IsEmpty() bool {
	return d == nil || (len(d.Edges) == 0 && len(d.NodeValues) == 0)
}

// Names returns the node set: edge endpoints in edge order, then value-line
// names in the order they were recorded, then any remaining value keys sorted.
func (d *Definition) Names() []string {
	if d == nil {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	add := func(name string) {
		if seen[name] {
			return
		}
		seen[name] = true
		names = append(names, name)
	}

	for _, e := range d.Edges {
		add(e.Source)
		add(e.Target)
	}
	for _, name := range d.order {
		if _, ok := d.NodeValues[name]; ok {
			add(name)
		}
	}

	var rest []string
	for name := range d.NodeValues {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		add(name)
	}
	return names
}

// Clone returns a deep copy of the definition.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	out := &Definition{
		Edges:               append([]Edge(nil), d.Edges...),
		NodeValues:          make(map[string]float64, len(d.NodeValues)),
		PerturbationAmounts: make(map[string]float64, len(d.PerturbationAmounts)),
		order:               append([]string(nil), d.order...),
	}
	for k, v := range d.NodeValues {
		out.NodeValues[k] = v
	}
	for k, v := range d.PerturbationAmounts {
		out.PerturbationAmounts[k] = v
	}
	return out
}
