package mcp

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rajithv/CausalLoop/internal/examples"
	"github.com/rajithv/CausalLoop/internal/grammar"
	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/metrics"
	"github.com/rajithv/CausalLoop/internal/pathutil"
	"github.com/rajithv/CausalLoop/internal/ratelimit"
)

const loopText = `A -> B (0.8, +)
B -> A (0.5, -)
A: 80 (10)
B: 20`

func setupTestServer(t *testing.T) *Server {
	t.Helper()
	server, err := NewServer(&Config{
		Name:       "test-server",
		Version:    "v1.0.0",
		AuditDir:   t.TempDir(),
		LayoutSeed: 42,
		Metrics:    metrics.NewRegistry(),
	})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	return server
}

func TestHandleParse(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleParse(ctx, nil, ParseInput{Text: loopText + "\nnot a statement\n"})
	if err != nil {
		t.Fatalf("handleParse failed: %v", err)
	}
	if out.NodeCount != 2 || out.EdgeCount != 2 {
		t.Errorf("counts = %d nodes / %d edges, want 2 / 2", out.NodeCount, out.EdgeCount)
	}
	if out.Nodes[0].Name != "A" || out.Nodes[0].Value != 80 || out.Nodes[0].PerturbationAmount != 10 {
		t.Errorf("node A = %+v", out.Nodes[0])
	}
	if out.Edges[1].Polarity != graph.Negative {
		t.Errorf("edge 1 polarity = %q, want -", out.Edges[1].Polarity)
	}
	if len(out.Skipped) != 1 || out.Skipped[0].Line != 5 || out.Skipped[0].Text != "not a statement" {
		t.Errorf("skipped = %+v, want line 5", out.Skipped)
	}
}

func TestHandleParse_Empty(t *testing.T) {
	server := setupTestServer(t)

	for _, text := range []string{"", "   \n\n", "just prose"} {
		_, _, err := server.handleParse(context.Background(), nil, ParseInput{Text: text})
		if !errors.Is(err, grammar.ErrEmptyInput) {
			t.Errorf("handleParse(%q) error = %v, want ErrEmptyInput", text, err)
		}
	}
}

func TestHandleFormat(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleFormat(ctx, nil, FormatInput{Text: "A->B(0.80,+)\n  A : 50"})
	if err != nil {
		t.Fatalf("handleFormat failed: %v", err)
	}
	if !out.Changed {
		t.Error("expected Changed for non-canonical input")
	}
	if !strings.HasPrefix(out.Text, "A -> B (0.8, +)") {
		t.Errorf("formatted text = %q", out.Text)
	}

	_, again, err := server.handleFormat(ctx, nil, FormatInput{Text: out.Text})
	if err != nil {
		t.Fatalf("second handleFormat failed: %v", err)
	}
	if again.Changed || again.Text != out.Text {
		t.Errorf("canonical text should be a fixed point: %q -> %q", out.Text, again.Text)
	}
}

func TestHandleExamples(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	_, list, err := server.handleExamples(ctx, nil, ExamplesInput{})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if list.Count != len(examples.Names()) || list.Count == 0 {
		t.Errorf("count = %d, want %d", list.Count, len(examples.Names()))
	}
	for _, ex := range list.Examples {
		if ex.Text != "" {
			t.Errorf("list entry %s should not carry text", ex.Name)
		}
	}

	_, one, err := server.handleExamples(ctx, nil, ExamplesInput{Name: examples.DefaultName})
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if one.Count != 1 || one.Examples[0].Text == "" {
		t.Errorf("get = %+v, want one example with text", one)
	}

	_, _, err = server.handleExamples(ctx, nil, ExamplesInput{Name: "nope"})
	if !errors.Is(err, examples.ErrNotFound) {
		t.Errorf("unknown example error = %v, want ErrNotFound", err)
	}
}

func TestHandleLayout(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleLayout(ctx, nil, LayoutInput{GraphSource: GraphSource{Text: loopText}, Seed: 7})
	if err != nil {
		t.Fatalf("handleLayout failed: %v", err)
	}
	if len(out.Positions) != 2 {
		t.Fatalf("positions = %v, want 2 nodes", out.Positions)
	}
	if out.Positions["A"] == out.Positions["B"] {
		t.Error("nodes should not share a position")
	}

	_, again, err := server.handleLayout(ctx, nil, LayoutInput{GraphSource: GraphSource{Text: loopText}, Seed: 7})
	if err != nil {
		t.Fatalf("second handleLayout failed: %v", err)
	}
	if again.Positions["A"] != out.Positions["A"] {
		t.Error("same seed should give the same layout")
	}
}

func TestHandleLayout_Validation(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	if _, _, err := server.handleLayout(ctx, nil, LayoutInput{}); !errors.Is(err, errNoGraph) {
		t.Errorf("no source error = %v, want errNoGraph", err)
	}
	_, _, err := server.handleLayout(ctx, nil, LayoutInput{GraphSource: GraphSource{Text: loopText}, Iterations: maxLayoutIterations + 1})
	if err == nil {
		t.Error("expected error for too many iterations")
	}
}

func TestHandleSimulate(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	_, out, err := server.handleSimulate(ctx, nil, SimulateInput{
		GraphSource:   GraphSource{Text: loopText},
		Perturbations: []Perturbation{{Node: "A", Direction: "increase"}},
		Steps:         20,
	})
	if err != nil {
		t.Fatalf("handleSimulate failed: %v", err)
	}
	if out.Initial["A"] != 90 {
		t.Errorf("initial A = %v, want 90 after perturbation", out.Initial["A"])
	}
	if out.StepCount == 0 || len(out.Steps) != out.StepCount {
		t.Fatalf("steps = %d, step_count = %d", len(out.Steps), out.StepCount)
	}
	if out.StopReason != "settled" && out.StopReason != "max_steps" {
		t.Errorf("stop reason = %q", out.StopReason)
	}
	last := out.Steps[len(out.Steps)-1]
	for name, v := range out.Final {
		if last.Values[name] != v {
			t.Errorf("final %s = %v, last step has %v", name, v, last.Values[name])
		}
		if v < 0 || v > 100 {
			t.Errorf("final %s = %v outside [0, 100]", name, v)
		}
	}
}

func TestHandleSimulate_StepCap(t *testing.T) {
	server := setupTestServer(t)

	_, out, err := server.handleSimulate(context.Background(), nil, SimulateInput{
		GraphSource: GraphSource{Text: loopText},
		Steps:       1,
	})
	if err != nil {
		t.Fatalf("handleSimulate failed: %v", err)
	}
	if out.StepCount != 1 || out.StopReason != "max_steps" {
		t.Errorf("step_count = %d, reason = %q; want 1, max_steps", out.StepCount, out.StopReason)
	}
}

func TestLoadGraph_FileSource(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "loop.cld")
	if err := os.WriteFile(path, []byte(loopText), 0600); err != nil {
		t.Fatal(err)
	}

	server, err := NewServer(&Config{Name: "test-server", AllowedDirs: []string{dir}, Metrics: metrics.NewRegistry()})
	if err != nil {
		t.Fatalf("NewServer failed: %v", err)
	}
	t.Cleanup(func() { server.Close() })
	ctx := context.Background()

	_, out, err := server.handleLayout(ctx, nil, LayoutInput{GraphSource: GraphSource{File: path, Example: "default"}, Seed: 3})
	if err != nil {
		t.Fatalf("handleLayout with file failed: %v", err)
	}
	if len(out.Positions) != 2 {
		t.Errorf("positions = %v, want the two nodes from the file", out.Positions)
	}

	_, _, err = server.handleLayout(ctx, nil, LayoutInput{GraphSource: GraphSource{File: filepath.Join(t.TempDir(), "other.cld")}})
	if !errors.Is(err, pathutil.ErrOutsideAllowed) {
		t.Errorf("file outside allowed dirs: error = %v, want ErrOutsideAllowed", err)
	}

	_, out, err = server.handleLayout(ctx, nil, LayoutInput{GraphSource: GraphSource{Text: "X -> Y (1, +)", File: path}})
	if err != nil {
		t.Fatalf("handleLayout with text and file failed: %v", err)
	}
	if _, ok := out.Positions["X"]; !ok {
		t.Errorf("text should win over file, positions = %v", out.Positions)
	}
}

func TestHandleSimulate_Errors(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()
	src := GraphSource{Text: loopText}

	tests := []struct {
		name  string
		input SimulateInput
		is    error
	}{
		{"unknown node", SimulateInput{GraphSource: src, Perturbations: []Perturbation{{Node: "Z", Direction: "+"}}}, graph.ErrUnknownNode},
		{"bad direction", SimulateInput{GraphSource: src, Perturbations: []Perturbation{{Node: "A", Direction: "sideways"}}}, nil},
		{"damping too high", SimulateInput{GraphSource: src, DampingFactor: 1.5}, nil},
		{"too many steps", SimulateInput{GraphSource: src, Steps: maxSimulateSteps + 1}, nil},
		{"empty", SimulateInput{GraphSource: GraphSource{Text: "nothing here"}}, grammar.ErrEmptyInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := server.handleSimulate(ctx, nil, tt.input)
			if err == nil {
				t.Fatal("expected error")
			}
			if tt.is != nil && !errors.Is(err, tt.is) {
				t.Errorf("error = %v, want %v", err, tt.is)
			}
		})
	}
}

func TestHandleRender(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		format string
		prefix string
	}{
		{"", "<?xml"},
		{"dot", "digraph causalloop"},
		{"json", "{"},
		{"html", "<!DOCTYPE html>"},
	}
	for _, tt := range tests {
		t.Run("format="+tt.format, func(t *testing.T) {
			server.toolLimiters = ratelimit.NewToolLimiters()
			_, out, err := server.handleRender(ctx, nil, RenderInput{GraphSource: GraphSource{Example: "population"}, Format: tt.format})
			if err != nil {
				t.Fatalf("handleRender failed: %v", err)
			}
			if !strings.HasPrefix(out.Graph, tt.prefix) {
				t.Errorf("output starts with %q, want %q", out.Graph[:min(20, len(out.Graph))], tt.prefix)
			}
			if out.NodeCount == 0 || out.EdgeCount == 0 {
				t.Errorf("counts = %d / %d", out.NodeCount, out.EdgeCount)
			}
		})
	}

	server.toolLimiters = ratelimit.NewToolLimiters()
	if _, _, err := server.handleRender(ctx, nil, RenderInput{GraphSource: GraphSource{Text: loopText}, Format: "png"}); err == nil {
		t.Error("expected error for unsupported format")
	}
}

func TestHandleRender_RateLimited(t *testing.T) {
	server := setupTestServer(t)
	ctx := context.Background()
	in := RenderInput{GraphSource: GraphSource{Text: loopText}, Format: "dot"}

	var limited error
	for i := 0; i < 10; i++ {
		if _, _, err := server.handleRender(ctx, nil, in); err != nil {
			limited = err
			break
		}
	}
	if !errors.Is(limited, ratelimit.ErrLimited) {
		t.Fatalf("expected rate limit error within 10 calls, got %v", limited)
	}
}
