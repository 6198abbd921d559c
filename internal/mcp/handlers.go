package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/rajithv/CausalLoop/internal/examples"
	"github.com/rajithv/CausalLoop/internal/grammar"
	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/layout"
	"github.com/rajithv/CausalLoop/internal/pathutil"
	"github.com/rajithv/CausalLoop/internal/propagation"
	"github.com/rajithv/CausalLoop/internal/ratelimit"
	"github.com/rajithv/CausalLoop/internal/visualization"
)

const (
	defaultSimulateSteps = 50
	maxSimulateSteps     = 1000
	maxLayoutIterations  = 5000

	examplesURI        = "causalloop://examples"
	exampleURIPrefix   = "causalloop://examples/"
	grammarURI         = "causalloop://grammar"
	grammarDescription = `# Causal loop grammar

One statement per line. Lines matching neither rule are ignored.

- Edge: ` + "`Source -> Target (multiplier, polarity)`" + `, e.g. ` + "`Population -> Births (0.8, +)`" + `.
  Polarity is ` + "`+`" + ` (same direction) or ` + "`-`" + ` (opposite direction).
- Value: ` + "`Name: value`" + ` or ` + "`Name: value (perturbation)`" + `, e.g. ` + "`Population: 50 (10)`" + `.

Names are letters, digits and underscores. Values live in [0, 100]; nodes
without a value line start at 50 and perturb by 5.
`
)

var errNoGraph = errors.New("one of text, file or example is required")

// registerTools registers all causal-loop MCP tools with the server.
func (s *Server) registerTools() {
	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "causalloop_parse",
		Description: "Parse a causal loop definition into nodes and edges, reporting lines that match no rule",
	}, s.handleParse)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "causalloop_format",
		Description: "Rewrite a causal loop definition in canonical form: edges first, then one value line per node",
	}, s.handleFormat)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "causalloop_examples",
		Description: "List the built-in example diagrams, or return one example's definition by name",
	}, s.handleExamples)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "causalloop_layout",
		Description: "Compute force-directed node positions for a diagram",
	}, s.handleLayout)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "causalloop_simulate",
		Description: "Apply perturbations and run the damped propagation simulation until it settles or hits the step cap",
	}, s.handleSimulate)

	sdk.AddTool(s.server, &sdk.Tool{
		Name:        "causalloop_render",
		Description: "Lay out a diagram and render it as SVG, Graphviz DOT, JSON, or a self-contained HTML page",
	}, s.handleRender)
}

// registerResources exposes the grammar reference and the example library.
func (s *Server) registerResources() {
	s.server.AddResource(&sdk.Resource{
		URI:         grammarURI,
		Name:        "causalloop-grammar",
		Description: "Reference for the causal loop text grammar.",
		MIMEType:    "text/markdown",
	}, s.handleGrammarResource)

	s.server.AddResource(&sdk.Resource{
		URI:         examplesURI,
		Name:        "causalloop-examples",
		Description: "Index of the built-in example diagrams.",
		MIMEType:    "text/markdown",
	}, s.handleExamplesResource)

	s.server.AddResourceTemplate(&sdk.ResourceTemplate{
		URITemplate: exampleURIPrefix + "{name}",
		Name:        "causalloop-example",
		Description: "Definition text of one built-in example diagram.",
		MIMEType:    "text/plain",
	}, s.handleExampleResource)
}

func (s *Server) handleGrammarResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: grammarURI, MIMEType: "text/markdown", Text: grammarDescription},
		},
	}, nil
}

func (s *Server) handleExamplesResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	all, err := examples.List()
	if err != nil {
		return nil, err
	}

	var sb strings.Builder
	sb.WriteString("# Example diagrams\n\n")
	for _, ex := range all {
		fmt.Fprintf(&sb, "- **%s** (`%s%s`): %s\n", ex.Title, exampleURIPrefix, ex.Name, ex.Description)
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: examplesURI, MIMEType: "text/markdown", Text: sb.String()},
		},
	}, nil
}

func (s *Server) handleExampleResource(ctx context.Context, req *sdk.ReadResourceRequest) (*sdk.ReadResourceResult, error) {
	uri := req.Params.URI
	name, ok := strings.CutPrefix(uri, exampleURIPrefix)
	if !ok || name == "" {
		return nil, fmt.Errorf("invalid URI format: %s", uri)
	}

	ex, err := examples.Get(name)
	if errors.Is(err, examples.ErrNotFound) {
		return nil, sdk.ResourceNotFoundError(uri)
	}
	if err != nil {
		return nil, err
	}

	return &sdk.ReadResourceResult{
		Contents: []*sdk.ResourceContents{
			{URI: uri, MIMEType: "text/plain", Text: ex.Text},
		},
	}, nil
}

// handleParse implements the causalloop_parse tool.
func (s *Server) handleParse(ctx context.Context, req *sdk.CallToolRequest, args ParseInput) (_ *sdk.CallToolResult, _ ParseOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("causalloop_parse", start, retErr, sanitizeToolParams(map[string]any{"text": args.Text}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "causalloop_parse"); err != nil {
		return nil, ParseOutput{}, err
	}

	def, skipped := grammar.ParseWithSkips(args.Text)
	if def.IsEmpty() {
		return nil, ParseOutput{}, grammar.ErrEmptyInput
	}
	g, err := graph.Build(def)
	s.metrics.RecordGraphLoad(err)
	if err != nil {
		return nil, ParseOutput{}, fmt.Errorf("build graph: %w", err)
	}

	snap := propagation.GraphSnapshot(g)
	out := ParseOutput{
		Nodes:     snap.Nodes,
		Edges:     snap.Edges,
		NodeCount: len(snap.Nodes),
		EdgeCount: len(snap.Edges),
	}
	if out.Edges == nil {
		out.Edges = []graph.Edge{}
	}
	for _, sk := range skipped {
		out.Skipped = append(out.Skipped, SkippedLine{Line: sk.Line, Text: sk.Text})
	}
	return nil, out, nil
}

// handleFormat implements the causalloop_format tool.
func (s *Server) handleFormat(ctx context.Context, req *sdk.CallToolRequest, args FormatInput) (_ *sdk.CallToolResult, _ FormatOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("causalloop_format", start, retErr, sanitizeToolParams(map[string]any{"text": args.Text}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "causalloop_format"); err != nil {
		return nil, FormatOutput{}, err
	}

	def, skipped := grammar.ParseWithSkips(args.Text)
	if def.IsEmpty() {
		return nil, FormatOutput{}, grammar.ErrEmptyInput
	}

	text := grammar.Serialize(def)
	return nil, FormatOutput{
		Text:    text,
		Changed: text != strings.TrimSpace(args.Text),
		Skipped: len(skipped),
	}, nil
}

// handleExamples implements the causalloop_examples tool.
func (s *Server) handleExamples(ctx context.Context, req *sdk.CallToolRequest, args ExamplesInput) (_ *sdk.CallToolResult, _ ExamplesOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("causalloop_examples", start, retErr, sanitizeToolParams(map[string]any{"name": args.Name}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "causalloop_examples"); err != nil {
		return nil, ExamplesOutput{}, err
	}

	if args.Name != "" {
		ex, err := examples.Get(args.Name)
		if err != nil {
			return nil, ExamplesOutput{}, err
		}
		return nil, ExamplesOutput{
			Examples: []ExampleSummary{{Name: ex.Name, Title: ex.Title, Description: ex.Description, Text: ex.Text}},
			Count:    1,
		}, nil
	}

	all, err := examples.List()
	if err != nil {
		return nil, ExamplesOutput{}, err
	}
	out := ExamplesOutput{Examples: make([]ExampleSummary, 0, len(all)), Count: len(all)}
	for _, ex := range all {
		out.Examples = append(out.Examples, ExampleSummary{Name: ex.Name, Title: ex.Title, Description: ex.Description})
	}
	return nil, out, nil
}

// handleLayout implements the causalloop_layout tool.
func (s *Server) handleLayout(ctx context.Context, req *sdk.CallToolRequest, args LayoutInput) (_ *sdk.CallToolResult, _ LayoutOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("causalloop_layout", start, retErr, sanitizeToolParams(map[string]any{
			"text":       args.Text,
			"example":    args.Example,
			"file":       args.File,
			"seed":       args.Seed,
			"iterations": args.Iterations,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "causalloop_layout"); err != nil {
		return nil, LayoutOutput{}, err
	}

	if args.Iterations < 0 || args.Iterations > maxLayoutIterations {
		return nil, LayoutOutput{}, fmt.Errorf("iterations must be between 0 (default) and %d, got %d", maxLayoutIterations, args.Iterations)
	}

	g, err := s.loadGraph(args.GraphSource)
	if err != nil {
		return nil, LayoutOutput{}, err
	}

	res := s.applyLayout(g, args.Seed, args.Iterations)
	if res.Positions == nil {
		res.Positions = map[string]layout.Point{}
	}
	return nil, LayoutOutput{
		Positions:  res.Positions,
		Iterations: res.Iterations,
		Converged:  res.Converged,
	}, nil
}

// handleSimulate implements the causalloop_simulate tool.
func (s *Server) handleSimulate(ctx context.Context, req *sdk.CallToolRequest, args SimulateInput) (_ *sdk.CallToolResult, _ SimulateOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("causalloop_simulate", start, retErr, sanitizeToolParams(map[string]any{
			"text":           args.Text,
			"example":        args.Example,
			"file":           args.File,
			"steps":          args.Steps,
			"damping_factor": args.DampingFactor,
			"unbounded":      args.Unbounded,
			"perturbations":  len(args.Perturbations),
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "causalloop_simulate"); err != nil {
		return nil, SimulateOutput{}, err
	}

	steps := args.Steps
	if steps == 0 {
		steps = defaultSimulateSteps
	}
	if steps < 0 || steps > maxSimulateSteps {
		return nil, SimulateOutput{}, fmt.Errorf("steps must be between 0 (default) and %d, got %d", maxSimulateSteps, args.Steps)
	}

	cfg := s.simulation
	cfg.MaxSteps = steps
	cfg.Unbounded = cfg.Unbounded || args.Unbounded
	if args.DampingFactor != 0 {
		if err := propagation.ValidateDampingFactor(args.DampingFactor); err != nil {
			return nil, SimulateOutput{}, err
		}
		cfg.DampingFactor = args.DampingFactor
	}

	g, err := s.loadGraph(args.GraphSource)
	if err != nil {
		return nil, SimulateOutput{}, err
	}

	sim := propagation.NewSimulator(g, cfg)
	for i, p := range args.Perturbations {
		dir, err := graph.ParseDirection(p.Direction)
		if err != nil {
			return nil, SimulateOutput{}, fmt.Errorf("perturbation %d: %w", i, err)
		}
		if _, err := sim.Perturb(p.Node, dir); err != nil {
			return nil, SimulateOutput{}, fmt.Errorf("perturbation %d: %w", i, err)
		}
		s.metrics.RecordPerturbation(string(dir))
	}

	out := SimulateOutput{
		Initial: g.Values(),
		Steps:   []StepSummary{},
	}
	for _, res := range propagation.RunSteps(sim, steps) {
		s.metrics.RecordStep(len(res.Changed), len(res.ActiveEdges))
		summary := StepSummary{
			Step:        res.Step,
			ActiveEdges: res.ActiveEdges,
			Values:      res.Values,
		}
		for _, c := range res.Changed {
			summary.Changed = append(summary.Changed, c.Name)
		}
		out.Steps = append(out.Steps, summary)
	}
	s.metrics.RecordRunEnd(string(sim.StopReason()))

	out.Final = g.Values()
	out.StepCount = sim.Steps()
	out.StopReason = string(sim.StopReason())
	return nil, out, nil
}

// handleRender implements the causalloop_render tool.
func (s *Server) handleRender(ctx context.Context, req *sdk.CallToolRequest, args RenderInput) (_ *sdk.CallToolResult, _ RenderOutput, retErr error) {
	start := time.Now()
	defer func() {
		s.auditTool("causalloop_render", start, retErr, sanitizeToolParams(map[string]any{
			"text":    args.Text,
			"example": args.Example,
			"file":    args.File,
			"format":  args.Format,
			"title":   args.Title,
			"seed":    args.Seed,
		}))
	}()

	if err := ratelimit.CheckLimit(s.toolLimiters, "causalloop_render"); err != nil {
		return nil, RenderOutput{}, err
	}

	name := args.Format
	if name == "" {
		name = string(visualization.FormatSVG)
	}
	format, err := visualization.ParseFormat(name)
	if err != nil {
		return nil, RenderOutput{}, err
	}

	g, err := s.loadGraph(args.GraphSource)
	if err != nil {
		return nil, RenderOutput{}, err
	}
	s.applyLayout(g, args.Seed, 0)

	snap := propagation.GraphSnapshot(g)
	var buf bytes.Buffer
	if err := visualization.Render(&buf, snap, format, visualization.Options{Title: args.Title}); err != nil {
		return nil, RenderOutput{}, fmt.Errorf("render %s: %w", format, err)
	}

	return nil, RenderOutput{
		Format:    string(format),
		Graph:     buf.String(),
		NodeCount: len(snap.Nodes),
		EdgeCount: len(snap.Edges),
	}, nil
}

// loadGraph compiles the inline text, else the file, else the named example.
func (s *Server) loadGraph(src GraphSource) (*graph.Graph, error) {
	text := src.Text
	switch {
	case strings.TrimSpace(text) != "":
	case src.File != "":
		var err error
		text, err = pathutil.ReadDefinition(src.File, s.allowedDirs)
		if err != nil {
			return nil, err
		}
	case src.Example != "":
		ex, err := examples.Get(src.Example)
		if err != nil {
			return nil, err
		}
		text = ex.Text
	default:
		return nil, errNoGraph
	}

	g, err := grammar.Compile(text)
	s.metrics.RecordGraphLoad(err)
	return g, err
}

// applyLayout positions g. A zero seed falls back to the server seed, and
// zero iterations to the server default.
func (s *Server) applyLayout(g *graph.Graph, seed uint64, iterations int) layout.Result {
	cfg := s.layout
	if iterations > 0 {
		cfg.Iterations = iterations
	}
	if seed == 0 {
		seed = s.layoutSeed
	}

	var opts []layout.Option
	if seed != 0 {
		opts = append(opts, layout.WithSeed(seed))
	}

	start := time.Now()
	res := layout.NewEngine(cfg, opts...).Apply(g)
	s.metrics.RecordLayout(res.Iterations, res.Converged, time.Since(start))
	return res
}
