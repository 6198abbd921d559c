package visualization

import (
	"fmt"
	"io"
	"math"

	svg "github.com/ajstarks/svgo"

	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/propagation"
)

const (
	svgMinWidth  = 800
	svgMinHeight = 600
	svgMargin    = 60

	textPrimary   = "#2d3748"
	textSecondary = "#4a5568"
	nodeFill      = "#edf2f7"
	nodeStroke    = "#4a5568"
)

// RenderSVG draws the graph at its layout positions: edges first, each
// shortened to stop at the node circles and colored by polarity, then nodes
// with their name and rounded value.
func RenderSVG(w io.Writer, snap propagation.Snapshot, opts Options) error {
	width, height := svgMinWidth, svgMinHeight
	pos := make(map[string]propagation.NodeState, len(snap.Nodes))
	for _, n := range snap.Nodes {
		pos[n.Name] = n
		width = max(width, int(math.Ceil(n.X))+svgMargin)
		height = max(height, int(math.Ceil(n.Y))+svgMargin)
	}

	ew := &errWriter{w: w}
	canvas := svg.New(ew)
	canvas.Start(width, height)
	if opts.Title != "" {
		canvas.Title(opts.Title)
	}

	canvas.Def()
	arrowMarker(canvas, "arrowhead-positive", positiveColor)
	arrowMarker(canvas, "arrowhead-negative", negativeColor)
	canvas.DefEnd()

	canvas.Rect(0, 0, width, height, "fill:#ffffff")
	if opts.Title != "" {
		canvas.Text(20, 30, opts.Title, fmt.Sprintf("fill:%s;font-size:18px;font-family:system-ui,sans-serif;font-weight:600", textPrimary))
	}

	for i, e := range snap.Edges {
		from, ok1 := pos[e.Source]
		to, ok2 := pos[e.Target]
		if !ok1 || !ok2 {
			continue
		}
		drawEdge(canvas, from, to, e, opts.isActive(i))
	}

	for _, n := range snap.Nodes {
		drawNode(canvas, n)
	}

	canvas.End()
	return ew.err
}

func arrowMarker(canvas *svg.SVG, id, color string) {
	canvas.Marker(id, 9, 3, 10, 7, `orient="auto"`)
	canvas.Polygon([]int{0, 10, 0}, []int{0, 3, 7}, "fill:"+color)
	canvas.MarkerEnd()
}

func drawEdge(canvas *svg.SVG, from, to propagation.NodeState, e graph.Edge, active bool) {
	color := polarityColor(e.Polarity)
	marker := "arrowhead-positive"
	class := "edge positive"
	if e.Polarity == graph.Negative {
		marker = "arrowhead-negative"
		class = "edge negative"
	}
	strokeWidth := 2
	if active {
		strokeWidth = 4
		class += " pulse"
	}
	style := fmt.Sprintf("stroke:%s;stroke-width:%d;fill:none", color, strokeWidth)

	dx, dy := to.X-from.X, to.Y-from.Y
	dist := math.Hypot(dx, dy)
	if dist == 0 {
		// Self loop: a small ring above the node.
		cx, cy := round(from.X), round(from.Y)-nodeRadius-12
		canvas.Circle(cx, cy, 12, style, fmt.Sprintf(`class=%q`, class))
		canvas.Text(cx, cy-18, edgeLabel(e), edgeLabelStyle(color))
		return
	}

	ux, uy := dx/dist, dy/dist
	x1, y1 := from.X+nodeRadius*ux, from.Y+nodeRadius*uy
	x2, y2 := to.X-nodeRadius*ux, to.Y-nodeRadius*uy

	canvas.Line(round(x1), round(y1), round(x2), round(y2), style,
		fmt.Sprintf(`class=%q`, class), fmt.Sprintf(`marker-end="url(#%s)"`, marker))
	canvas.Text(round((x1+x2)/2), round((y1+y2)/2)-10, edgeLabel(e), edgeLabelStyle(color))
}

func edgeLabelStyle(color string) string {
	return fmt.Sprintf("fill:%s;font-size:11px;font-family:system-ui,sans-serif;text-anchor:middle", color)
}

func drawNode(canvas *svg.SVG, n propagation.NodeState) {
	x, y := round(n.X), round(n.Y)
	canvas.Gid("node-" + n.Name)
	canvas.Circle(x, y, nodeRadius, fmt.Sprintf("fill:%s;stroke:%s;stroke-width:2", nodeFill, nodeStroke))
	canvas.Text(x, y-5, n.Name, fmt.Sprintf("fill:%s;font-size:11px;font-family:system-ui,sans-serif;font-weight:600;text-anchor:middle", textPrimary))
	canvas.Text(x, y+10, fmt.Sprintf("%d", int(math.Round(n.Value))), fmt.Sprintf("fill:%s;font-size:10px;font-family:system-ui,sans-serif;text-anchor:middle", textSecondary))
	canvas.Gend()
}

func round(v float64) int {
	return int(math.Round(v))
}

// errWriter remembers the first write error so the svgo calls, which do not
// return errors, can be checked once at the end.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	e.err = err
	return n, err
}
