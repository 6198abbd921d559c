// Package mcp provides an MCP (Model Context Protocol) server that exposes
// causal-loop parsing, layout, simulation and rendering as tools.
package mcp

import (
	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/layout"
	"github.com/rajithv/CausalLoop/internal/propagation"
)

// GraphSource names the diagram a tool works on: inline text, a definition
// file or a built-in example, in that order of precedence.
type GraphSource struct {
	Text    string `json:"text,omitempty" jsonschema:"Graph definition in the causal-loop grammar, e.g. 'A -> B (0.8, +)' and 'A: 50 (5)' lines"`
	File    string `json:"file,omitempty" jsonschema:"Path to a graph definition file inside the server's allowed directories"`
	Example string `json:"example,omitempty" jsonschema:"Name of a built-in example to use when neither text nor file is given"`
}

// ParseInput defines the input for the causalloop_parse tool.
type ParseInput struct {
	Text string `json:"text" jsonschema:"Graph definition text to parse"`
}

// SkippedLine is an input line that matched no grammar rule.
type SkippedLine struct {
	Line int    `json:"line" jsonschema:"1-based line number"`
	Text string `json:"text" jsonschema:"Trimmed line content"`
}

// ParseOutput defines the output for the causalloop_parse tool.
type ParseOutput struct {
	Nodes     []propagation.NodeState `json:"nodes" jsonschema:"Nodes in graph order with initial values and perturbation amounts"`
	Edges     []graph.Edge            `json:"edges" jsonschema:"Edges in input order"`
	Skipped   []SkippedLine           `json:"skipped,omitempty" jsonschema:"Lines that were ignored"`
	NodeCount int                     `json:"node_count" jsonschema:"Number of nodes"`
	EdgeCount int                     `json:"edge_count" jsonschema:"Number of edges"`
}

// FormatInput defines the input for the causalloop_format tool.
type FormatInput struct {
	Text string `json:"text" jsonschema:"Graph definition text to normalize"`
}

// FormatOutput defines the output for the causalloop_format tool.
type FormatOutput struct {
	Text    string `json:"text" jsonschema:"Canonical definition text"`
	Changed bool   `json:"changed" jsonschema:"Whether the canonical text differs from the input"`
	Skipped int    `json:"skipped" jsonschema:"Number of input lines dropped because they matched no rule"`
}

// ExamplesInput defines the input for the causalloop_examples tool.
type ExamplesInput struct {
	Name string `json:"name,omitempty" jsonschema:"Example to return in full; empty lists all examples"`
}

// ExampleSummary describes one built-in example.
type ExampleSummary struct {
	Name        string `json:"name"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Text        string `json:"text,omitempty"`
}

// ExamplesOutput defines the output for the causalloop_examples tool.
type ExamplesOutput struct {
	Examples []ExampleSummary `json:"examples" jsonschema:"Matching examples; text is included only when a name was given"`
	Count    int              `json:"count" jsonschema:"Number of examples returned"`
}

// LayoutInput defines the input for the causalloop_layout tool.
type LayoutInput struct {
	GraphSource
	Seed       uint64 `json:"seed,omitempty" jsonschema:"Random seed for a reproducible layout (0 = server default)"`
	Iterations int    `json:"iterations,omitempty" jsonschema:"Maximum force iterations (default 200, max 5000)"`
}

// LayoutOutput defines the output for the causalloop_layout tool.
type LayoutOutput struct {
	Positions  map[string]layout.Point `json:"positions" jsonschema:"Node positions in a 800x600 drawing plane"`
	Iterations int                     `json:"iterations" jsonschema:"Iterations actually run"`
	Converged  bool                    `json:"converged" jsonschema:"Whether the layout settled before the iteration cap"`
}

// Perturbation is one perturbation applied before a run.
type Perturbation struct {
	Node      string `json:"node" jsonschema:"Node to perturb"`
	Direction string `json:"direction" jsonschema:"increase or decrease (also + or -)"`
}

// SimulateInput defines the input for the causalloop_simulate tool.
type SimulateInput struct {
	GraphSource
	Perturbations []Perturbation `json:"perturbations,omitempty" jsonschema:"Perturbations applied in order before the first step"`
	Steps         int            `json:"steps,omitempty" jsonschema:"Maximum number of steps (default 50, max 1000)"`
	DampingFactor float64        `json:"damping_factor,omitempty" jsonschema:"Share of influence withheld per step, strictly between 0 and 1 (default 0.9)"`
	Unbounded     bool           `json:"unbounded,omitempty" jsonschema:"Allow values above the upper bound of the value domain"`
}

// StepSummary is one simulation step as reported by causalloop_simulate.
type StepSummary struct {
	Step        int                `json:"step"`
	Changed     []string           `json:"changed,omitempty"`
	ActiveEdges []int              `json:"active_edges,omitempty"`
	Values      map[string]float64 `json:"values"`
}

// SimulateOutput defines the output for the causalloop_simulate tool.
type SimulateOutput struct {
	Initial    map[string]float64 `json:"initial" jsonschema:"Node values after perturbation and before the first step"`
	Steps      []StepSummary      `json:"steps" jsonschema:"Every step taken"`
	Final      map[string]float64 `json:"final" jsonschema:"Node values after the last step"`
	StepCount  int                `json:"step_count" jsonschema:"Number of steps taken"`
	StopReason string             `json:"stop_reason" jsonschema:"Why the run ended: settled, max_steps or stopped"`
}

// RenderInput defines the input for the causalloop_render tool.
type RenderInput struct {
	GraphSource
	Format string `json:"format,omitempty" jsonschema:"Output format: svg, dot, json or html (default svg)"`
	Title  string `json:"title,omitempty" jsonschema:"Title drawn on svg and html output"`
	Seed   uint64 `json:"seed,omitempty" jsonschema:"Layout seed (0 = server default)"`
}

// RenderOutput defines the output for the causalloop_render tool.
type RenderOutput struct {
	Format    string `json:"format" jsonschema:"Format of the rendered graph"`
	Graph     string `json:"graph" jsonschema:"Rendered graph"`
	NodeCount int    `json:"node_count" jsonschema:"Number of nodes"`
	EdgeCount int    `json:"edge_count" jsonschema:"Number of edges"`
}
