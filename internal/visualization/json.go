package visualization

import (
	"encoding/json"
	"io"

	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/propagation"
)

// GraphJSON is the JSON form of a rendered graph.
type GraphJSON struct {
	Nodes     []propagation.NodeState `json:"nodes"`
	Edges     []EdgeJSON              `json:"edges"`
	NodeCount int                     `json:"node_count"`
	EdgeCount int                     `json:"edge_count"`
}

// EdgeJSON is one edge with its index and highlight state.
type EdgeJSON struct {
	Index      int            `json:"index"`
	Source     string         `json:"source"`
	Target     string         `json:"target"`
	Multiplier float64        `json:"multiplier"`
	Polarity   graph.Polarity `json:"polarity"`
	Active     bool           `json:"active,omitempty"`
}

// RenderJSON produces the JSON graph representation with nodes and edges arrays.
func RenderJSON(snap propagation.Snapshot, opts Options) GraphJSON {
	out := GraphJSON{
		Nodes:     snap.Nodes,
		Edges:     make([]EdgeJSON, 0, len(snap.Edges)),
		NodeCount: len(snap.Nodes),
		EdgeCount: len(snap.Edges),
	}
	if out.Nodes == nil {
		out.Nodes = []propagation.NodeState{}
	}
	for i, e := range snap.Edges {
		out.Edges = append(out.Edges, EdgeJSON{
			Index:      i,
			Source:     e.Source,
			Target:     e.Target,
			Multiplier: e.Multiplier,
			Polarity:   e.Polarity,
			Active:     opts.isActive(i),
		})
	}
	return out
}

// WriteJSON writes RenderJSON(snap, opts) as indented JSON.
func WriteJSON(w io.Writer, snap propagation.Snapshot, opts Options) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(RenderJSON(snap, opts))
}
