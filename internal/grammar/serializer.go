package grammar

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/rajithv/CausalLoop/internal/constants"
	"github.com/rajithv/CausalLoop/internal/graph"
)

// Serialize writes a definition back to text: all edge lines, a blank line,
// then one value line per node in def.Names() order. Every node gets an
// explicit value and perturbation amount, with defaults filled in, so that
// Parse(Serialize(def)) reproduces the same node set.
func Serialize(def *graph.Definition) string {
	if def == nil {
		return ""
	}

	var b strings.Builder

	if len(def.Edges) > 0 {
		lines := make([]string, 0, len(def.Edges))
		for _, e := range def.Edges {
			lines = append(lines, FormatEdge(e))
		}
		b.WriteString(strings.Join(lines, "\n"))
		b.WriteString("\n\n")
	}

	names := def.Names()
	lines := make([]string, 0, len(names))
	for _, name := range names {
		value, ok := def.NodeValues[name]
		if !ok {
			value = constants.DefaultNodeValue
		}
		amount, ok := def.PerturbationAmounts[name]
		if !ok || !(amount > 0) {
			amount = constants.DefaultPerturbationAmount
		}
		lines = append(lines, fmt.Sprintf("%s: %s (%s)", name, FormatNumber(value), FormatNumber(amount)))
	}
	b.WriteString(strings.Join(lines, "\n"))

	return b.String()
}

// FormatEdge renders one edge line, e.g. "A -> B (0.8, +)".
func FormatEdge(e graph.Edge) string {
	return fmt.Sprintf("%s -> %s (%s, %s)", e.Source, e.Target, FormatNumber(e.Multiplier), e.Polarity)
}

// FormatNumber renders v in the shortest decimal form that parses back to v.
func FormatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
