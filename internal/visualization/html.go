package visualization

import (
	"bytes"
	"fmt"
	"html/template"
	"io"

	"github.com/rajithv/CausalLoop/internal/propagation"
)

var pageTemplate = template.Must(template.ParseFS(templates, "templates/graph.html"))

// PageOptions configure the HTML page.
type PageOptions struct {
	Title string

	// Live adds the run controls and connects the page to the server's
	// WebSocket stream. A static page only draws the snapshot.
	Live bool

	// Text is the graph definition shown in the live editor.
	Text string
}

type pageData struct {
	Title    string
	Live     bool
	Text     string
	Snapshot propagation.Snapshot
}

// RenderHTML writes a self-contained page that draws snap in the browser.
func RenderHTML(w io.Writer, snap propagation.Snapshot, opts PageOptions) error {
	title := opts.Title
	if title == "" {
		title = "Causal Loop Diagram"
	}
	if snap.Nodes == nil {
		snap.Nodes = []propagation.NodeState{}
	}

	// Render into a buffer so a template error never leaves a half-written page.
	var buf bytes.Buffer
	if err := pageTemplate.Execute(&buf, pageData{
		Title:    title,
		Live:     opts.Live,
		Text:     opts.Text,
		Snapshot: snap,
	}); err != nil {
		return fmt.Errorf("render HTML: %w", err)
	}
	_, err := buf.WriteTo(w)
	return err
}
