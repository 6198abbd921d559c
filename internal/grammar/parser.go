// Package grammar reads and writes the line-oriented causal-loop text format:
//
//	A -> B (0.8, +)     edge line: source, target, multiplier, polarity
//	B -> A (0.5, -)
//
//	A: 50 (10)          value line: initial value, optional perturbation amount
//	B: 30
//
// Node names are word characters only. Lines that match neither form are
// skipped without error.
package grammar

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/rajithv/CausalLoop/internal/constants"
	"github.com/rajithv/CausalLoop/internal/graph"
)

// ErrEmptyInput is returned when a definition yields no edges and no values.
var ErrEmptyInput = errors.New("graph definition is empty: expected edge lines like 'A -> B (0.8, +)' or value lines like 'A: 50'")

var (
	edgePattern  = regexp.MustCompile(`(\w+)\s*->\s*(\w+)\s*\(\s*([0-9.]+)\s*,\s*([+-])\s*\)`)
	valuePattern = regexp.MustCompile(`(\w+)\s*:\s*([0-9.]+)(?:\s*\(\s*([0-9.]+)\s*\))?`)
)

// SkippedLine is a non-blank input line that matched neither grammar rule.
type SkippedLine struct {
	Line int    // 1-based line number in the input
	Text string // trimmed line content
}

// Parse turns text into a definition. It never fails: lines matching neither
// the edge nor the value rule are dropped. Identical input always produces an
// identical definition.
func Parse(text string) *graph.Definition {
	def, _ := ParseWithSkips(text)
	return def
}

// ParseWithSkips is Parse that also reports the lines it dropped.
func ParseWithSkips(text string) (*graph.Definition, []SkippedLine) {
	def := graph.NewDefinition()
	var skipped []SkippedLine

	for i, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		if parseEdge(def, line) || parseValue(def, line) {
			continue
		}
		skipped = append(skipped, SkippedLine{Line: i + 1, Text: line})
	}

	return def, skipped
}

// Compile parses text and builds a graph from it. Blank text, or text that
// yields no edges and no values, fails with ErrEmptyInput.
func Compile(text string) (*graph.Graph, error) {
	def := Parse(text)
	if def.IsEmpty() {
		return nil, ErrEmptyInput
	}
	g, err := graph.Build(def)
	if err != nil {
		return nil, fmt.Errorf("build graph: %w", err)
	}
	return g, nil
}

func parseEdge(def *graph.Definition, line string) bool {
	m := edgePattern.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	multiplier, ok := leadingFloat(m[3])
	if !ok {
		return false
	}
	def.AddEdge(graph.Edge{
		Source:     m[1],
		Target:     m[2],
		Multiplier: multiplier,
		Polarity:   graph.Polarity(m[4]),
	})
	return true
}

func parseValue(def *graph.Definition, line string) bool {
	m := valuePattern.FindStringSubmatch(line)
	if m == nil {
		return false
	}
	value, ok := leadingFloat(m[2])
	if !ok {
		return false
	}
	amount := constants.DefaultPerturbationAmount
	if m[3] != "" {
		if a, ok := leadingFloat(m[3]); ok {
			amount = a
		}
	}
	def.SetNode(m[1], value, amount)
	return true
}

// leadingFloat reads the longest decimal prefix of a [0-9.]+ token, so
// "1.2.3" reads as 1.2. A token without any digit before the first
// non-numeric position ("." or "..5") is rejected.
func leadingFloat(tok string) (float64, bool) {
	end := 0
	seenDot := false
	seenDigit := false
	for end < len(tok) {
		c := tok[end]
		if c == '.' {
			if seenDot {
				break
			}
			seenDot = true
		} else if c >= '0' && c <= '9' {
			seenDigit = true
		} else {
			break
		}
		end++
	}
	if !seenDigit {
		return 0, false
	}
	v, err := strconv.ParseFloat(strings.TrimSuffix(tok[:end], "."), 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
