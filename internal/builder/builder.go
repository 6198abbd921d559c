// Package builder is the structured editor behind the visual graph builder.
// Nodes and connections carry integer IDs so they can be edited, relabeled
// and removed independently of their names; Definition turns the current
// contents into the same triple the text parser produces.
package builder

import (
	"errors"
	"fmt"
	"math"

	"github.com/rajithv/CausalLoop/internal/constants"
	"github.com/rajithv/CausalLoop/internal/graph"
)

var (
	// ErrTooFewNodes is returned by AddConnection when fewer than two nodes exist.
	ErrTooFewNodes = errors.New("at least 2 nodes are needed to create a connection")

	// ErrDanglingReference is returned by Definition for a connection whose
	// endpoint ID names no node. It wraps graph.ErrDanglingReference.
	ErrDanglingReference = fmt.Errorf("connection endpoint missing: %w", graph.ErrDanglingReference)

	// ErrNodeNotFound and ErrConnectionNotFound are returned for unknown IDs.
	ErrNodeNotFound       = errors.New("node not found")
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrInvalidLabel is returned for labels that are not identifiers or
	// already belong to another node.
	ErrInvalidLabel = errors.New("invalid node label")

	// ErrInvalidNumber is returned for NaN, negative multipliers and
	// non-positive perturbation amounts.
	ErrInvalidNumber = errors.New("invalid number")
)

// NodeID identifies a builder node.
type NodeID int

// ConnectionID identifies a builder connection.
type ConnectionID int

// Node is an editable node.
type Node struct {
	ID                 NodeID  `json:"id"`
	Label              string  `json:"label"`
	Value              float64 `json:"value"`
	PerturbationAmount float64 `json:"perturbation_amount"`
}

// Connection is an editable directed edge between two node IDs.
type Connection struct {
	ID         ConnectionID   `json:"id"`
	From       NodeID         `json:"from"`
	To         NodeID         `json:"to"`
	Multiplier float64        `json:"multiplier"`
	Polarity   graph.Polarity `json:"polarity"`
}

// Builder holds nodes and connections in insertion order.
type Builder struct {
	nodes       []Node
	connections []Connection
	nextNode    NodeID
	nextConn    ConnectionID
}

// New returns an empty builder.
func New() *Builder {
	return &Builder{nextNode: 1, nextConn: 1}
}

// Nodes returns a copy of the nodes in order.
func (b *Builder) Nodes() []Node {
	return append([]Node(nil), b.nodes...)
}

// Connections returns a copy of the connections in order.
func (b *Builder) Connections() []Connection {
	return append([]Connection(nil), b.connections...)
}

// Node returns the node with the given ID.
func (b *Builder) Node(id NodeID) (Node, bool) {
	if i := b.nodeIndex(id); i >= 0 {
		return b.nodes[i], true
	}
	return Node{}, false
}

func (b *Builder) nodeIndex(id NodeID) int {
	for i := range b.nodes {
		if b.nodes[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Builder) connIndex(id ConnectionID) int {
	for i := range b.connections {
		if b.connections[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Builder) node(id NodeID) (*Node, error) {
	i := b.nodeIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("node %d: %w", id, ErrNodeNotFound)
	}
	return &b.nodes[i], nil
}

func (b *Builder) connection(id ConnectionID) (*Connection, error) {
	i := b.connIndex(id)
	if i < 0 {
		return nil, fmt.Errorf("connection %d: %w", id, ErrConnectionNotFound)
	}
	return &b.connections[i], nil
}

// AddNode appends a node labeled "Node<id>" with the default value and
// perturbation amount.
func (b *Builder) AddNode() Node {
	id := b.nextNode
	b.nextNode++

	label := fmt.Sprintf("%s%d", constants.NodeLabelPrefix, id)
	for b.labelTaken(label, 0) {
		label += "_"
	}

	n := Node{
		ID:                 id,
		Label:              label,
		Value:              constants.DefaultNodeValue,
		PerturbationAmount: constants.DefaultPerturbationAmount,
	}
	b.nodes = append(b.nodes, n)
	return n
}

// RemoveNode deletes a node and every connection touching it.
func (b *Builder) RemoveNode(id NodeID) error {
	i := b.nodeIndex(id)
	if i < 0 {
		return fmt.Errorf("remove node %d: %w", id, ErrNodeNotFound)
	}
	b.nodes = append(b.nodes[:i], b.nodes[i+1:]...)

	kept := b.connections[:0]
	for _, c := range b.connections {
		if c.From != id && c.To != id {
			kept = append(kept, c)
		}
	}
	b.connections = kept
	return nil
}

func (b *Builder) labelTaken(label string, except NodeID) bool {
	for _, n := range b.nodes {
		if n.ID != except && n.Label == label {
			return true
		}
	}
	return false
}

// UpdateNodeLabel renames a node. Labels must be identifiers and unique.
func (b *Builder) UpdateNodeLabel(id NodeID, label string) error {
	n, err := b.node(id)
	if err != nil {
		return err
	}
	if !graph.ValidName(label) {
		return fmt.Errorf("%w: %q must contain only letters, digits and underscores", ErrInvalidLabel, label)
	}
	if b.labelTaken(label, id) {
		return fmt.Errorf("%w: %q is already used", ErrInvalidLabel, label)
	}
	n.Label = label
	return nil
}

// UpdateNodeValue sets a node's initial value. The text grammar has no sign
// or infinity, so negative and infinite values are rejected. Values above
// the domain are kept here and clamped when the graph is built.
func (b *Builder) UpdateNodeValue(id NodeID, v float64) error {
	n, err := b.node(id)
	if err != nil {
		return err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return fmt.Errorf("node %d value %v: %w", id, v, ErrInvalidNumber)
	}
	n.Value = v
	return nil
}

// UpdateNodePerturbation sets a node's perturbation amount, which must be
// positive and finite.
func (b *Builder) UpdateNodePerturbation(id NodeID, amount float64) error {
	n, err := b.node(id)
	if err != nil {
		return err
	}
	if !(amount > 0) || math.IsInf(amount, 1) {
		return fmt.Errorf("node %d perturbation amount %v: %w", id, amount, ErrInvalidNumber)
	}
	n.PerturbationAmount = amount
	return nil
}

// AddConnection appends a "+" connection with the default multiplier from
// the first node to the second.
func (b *Builder) AddConnection() (Connection, error) {
	if len(b.nodes) < 2 {
		return Connection{}, ErrTooFewNodes
	}
	c := Connection{
		ID:         b.nextConn,
		From:       b.nodes[0].ID,
		To:         b.nodes[1].ID,
		Multiplier: constants.DefaultConnectionMultiplier,
		Polarity:   graph.Positive,
	}
	b.nextConn++
	b.connections = append(b.connections, c)
	return c, nil
}

// RemoveConnection deletes a connection.
func (b *Builder) RemoveConnection(id ConnectionID) error {
	i := b.connIndex(id)
	if i < 0 {
		return fmt.Errorf("remove connection %d: %w", id, ErrConnectionNotFound)
	}
	b.connections = append(b.connections[:i], b.connections[i+1:]...)
	return nil
}

// UpdateConnectionFrom points a connection's source at another node ID. The
// ID is not checked here; Definition reports connections to missing nodes.
func (b *Builder) UpdateConnectionFrom(id ConnectionID, from NodeID) error {
	c, err := b.connection(id)
	if err != nil {
		return err
	}
	c.From = from
	return nil
}

// UpdateConnectionTo points a connection's target at another node ID.
func (b *Builder) UpdateConnectionTo(id ConnectionID, to NodeID) error {
	c, err := b.connection(id)
	if err != nil {
		return err
	}
	c.To = to
	return nil
}

// UpdateConnectionMultiplier sets a connection's multiplier. The text
// grammar has no sign on multipliers, so negatives are rejected.
func (b *Builder) UpdateConnectionMultiplier(id ConnectionID, m float64) error {
	c, err := b.connection(id)
	if err != nil {
		return err
	}
	if math.IsNaN(m) || math.IsInf(m, 0) || m < 0 {
		return fmt.Errorf("connection %d multiplier %v: %w", id, m, ErrInvalidNumber)
	}
	c.Multiplier = m
	return nil
}

// UpdateConnectionPolarity sets a connection's polarity.
func (b *Builder) UpdateConnectionPolarity(id ConnectionID, p graph.Polarity) error {
	c, err := b.connection(id)
	if err != nil {
		return err
	}
	if _, err := graph.ParsePolarity(string(p)); err != nil {
		return fmt.Errorf("connection %d: %w", id, err)
	}
	c.Polarity = p
	return nil
}

// Clear removes everything and restarts ID numbering.
func (b *Builder) Clear() {
	*b = *New()
}

// Definition converts the builder contents into a graph definition: one edge
// per connection in order, and a value and perturbation amount for every node.
func (b *Builder) Definition() (*graph.Definition, error) {
	labels := make(map[NodeID]string, len(b.nodes))
	for _, n := range b.nodes {
		labels[n.ID] = n.Label
	}

	def := graph.NewDefinition()
	for _, c := range b.connections {
		from, ok := labels[c.From]
		if !ok {
			return nil, fmt.Errorf("connection %d from node %d: %w", c.ID, c.From, ErrDanglingReference)
		}
		to, ok := labels[c.To]
		if !ok {
			return nil, fmt.Errorf("connection %d to node %d: %w", c.ID, c.To, ErrDanglingReference)
		}
		def.AddEdge(graph.Edge{Source: from, Target: to, Multiplier: c.Multiplier, Polarity: c.Polarity})
	}
	for _, n := range b.nodes {
		def.SetNode(n.Label, n.Value, n.PerturbationAmount)
	}
	return def, nil
}

// Load replaces the builder contents with def. Nodes are numbered from 1 in
// def.Names() order and connections from 1 in edge order. A node missing
// from def's value maps keeps the value of the existing node with the same
// label, or gets the default.
func (b *Builder) Load(def *graph.Definition) {
	previous := make(map[string]Node, len(b.nodes))
	for _, n := range b.nodes {
		previous[n.Label] = n
	}

	b.Clear()
	if def == nil {
		return
	}

	ids := make(map[string]NodeID)
	for _, name := range def.Names() {
		n := Node{
			ID:                 b.nextNode,
			Label:              name,
			Value:              constants.DefaultNodeValue,
			PerturbationAmount: constants.DefaultPerturbationAmount,
		}
		if old, ok := previous[name]; ok {
			n.Value = old.Value
			n.PerturbationAmount = old.PerturbationAmount
		}
		if v, ok := def.NodeValues[name]; ok {
			n.Value = v
		}
		if a, ok := def.PerturbationAmounts[name]; ok && a > 0 {
			n.PerturbationAmount = a
		}
		b.nextNode++
		ids[name] = n.ID
		b.nodes = append(b.nodes, n)
	}

	for _, e := range def.Edges {
		b.connections = append(b.connections, Connection{
			ID:         b.nextConn,
			From:       ids[e.Source],
			To:         ids[e.Target],
			Multiplier: e.Multiplier,
			Polarity:   e.Polarity,
		})
		b.nextConn++
	}
}
