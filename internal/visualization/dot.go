// Package visualization renders causal-loop graphs in various output formats
// and serves the live browser view of a running simulation.
package visualization

import (
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/rajithv/CausalLoop/internal/grammar"
	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/propagation"
	"github.com/rajithv/CausalLoop/internal/sanitize"
)

// Format specifies the output format for graph rendering.
type Format string

const (
	FormatDOT  Format = "dot"
	FormatJSON Format = "json"
	FormatSVG  Format = "svg"
	FormatHTML Format = "html"
)

// ParseFormat accepts a format name, case-insensitively.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatDOT, FormatJSON, FormatSVG, FormatHTML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported format %q (use 'svg', 'dot', 'json', or 'html')", s)
}

// Options control what a renderer draws on top of the graph.
type Options struct {
	// Title is shown by the SVG and HTML renderers.
	Title string

	// Active lists edge indexes to highlight, as reported by a step.
	Active []int
}

func (o Options) isActive(i int) bool {
	for _, a := range o.Active {
		if a == i {
			return true
		}
	}
	return false
}

// Polarity colors shared by every renderer.
const (
	positiveColor = "#48bb78"
	negativeColor = "#f56565"
	nodeRadius    = 25
)

func polarityColor(p graph.Polarity) string {
	if p == graph.Negative {
		return negativeColor
	}
	return positiveColor
}

// Render writes snap in the given format.
func Render(w io.Writer, snap propagation.Snapshot, format Format, opts Options) error {
	opts.Title = sanitize.Title(opts.Title)
	switch format {
	case FormatDOT:
		_, err := io.WriteString(w, RenderDOT(snap, opts))
		return err
	case FormatJSON:
		return WriteJSON(w, snap, opts)
	case FormatSVG:
		return RenderSVG(w, snap, opts)
	case FormatHTML:
		return RenderHTML(w, snap, PageOptions{Title: opts.Title})
	default:
		return fmt.Errorf("unsupported format %q", format)
	}
}

// RenderDOT produces a Graphviz DOT representation of the graph. Nodes carry
// their layout position as a pinned pos attribute, so `neato -n` reproduces
// the force layout.
func RenderDOT(snap propagation.Snapshot, opts Options) string {
	var b strings.Builder
	b.WriteString("digraph causalloop {\n")
	if opts.Title != "" {
		fmt.Fprintf(&b, "  label=%q;\n  labelloc=t;\n", opts.Title)
	}
	b.WriteString("  node [shape=circle, style=filled, fillcolor=\"#edf2f7\", fontname=\"Helvetica\"];\n")
	b.WriteString("  edge [fontname=\"Helvetica\", fontsize=10];\n\n")

	for _, n := range snap.Nodes {
		fmt.Fprintf(&b, "  %q [label=\"%s\\n%d\", pos=\"%.1f,%.1f!\", tooltip=\"perturbation=%s\"];\n",
			n.Name, n.Name, int(math.Round(n.Value)), n.X, -n.Y, grammar.FormatNumber(n.PerturbationAmount))
	}
	if len(snap.Nodes) > 0 {
		b.WriteString("\n")
	}

	for i, e := range snap.Edges {
		width := 1.0
		if opts.isActive(i) {
			width = 3.0
		}
		fmt.Fprintf(&b, "  %q -> %q [label=%q, color=%q, fontcolor=%q, penwidth=%.1f];\n",
			e.Source, e.Target, edgeLabel(e), polarityColor(e.Polarity), polarityColor(e.Polarity), width)
	}

	b.WriteString("}\n")
	return b.String()
}

// edgeLabel is the "0.8+" label drawn on an edge.
func edgeLabel(e graph.Edge) string {
	return grammar.FormatNumber(e.Multiplier) + string(e.Polarity)
}
