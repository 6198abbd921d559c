package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rajithv/CausalLoop/internal/grammar"
	"github.com/rajithv/CausalLoop/internal/graph"
	"github.com/rajithv/CausalLoop/internal/layout"
	"github.com/rajithv/CausalLoop/internal/propagation"
)

const drainDefinition = "A -> B (1, -)\n\nA: 100\nB: 30\n"

// isolateHome sets HOME to a temp directory to avoid touching real ~/.causalloop/
func isolateHome(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, v := range []string{"CAUSALLOOP_DAMPING_FACTOR", "CAUSALLOOP_STEP_DELAY", "CAUSALLOOP_MAX_STEPS", "CAUSALLOOP_LOG_LEVEL", "CAUSALLOOP_TRACE_DIR"} {
		t.Setenv(v, "")
	}
	return home
}

// runCmd executes the root command with args and returns stdout.
func runCmd(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	root := newRootCmd()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write %s: %v", path, err)
	}
	return path
}

func TestVersionCmd(t *testing.T) {
	out, err := runCmd(t, "", "version", "--json")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	var got map[string]string
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got["version"] != version {
		t.Errorf("version = %q, want %q", got["version"], version)
	}
}

func TestParseCmd(t *testing.T) {
	isolateHome(t)
	path := writeFile(t, t.TempDir(), "loop.cld", "A -> B (0.8, +)\nnot a line\nA: 40 (2)\n")

	out, err := runCmd(t, "", "parse", path)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var got parseOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if len(got.Edges) != 1 || got.Edges[0] != (graph.Edge{Source: "A", Target: "B", Multiplier: 0.8, Polarity: graph.Positive}) {
		t.Errorf("Edges = %+v", got.Edges)
	}
	if got.NodeValues["A"] != 40 || got.PerturbationAmounts["A"] != 2 {
		t.Errorf("A = %v (%v), want 40 (2)", got.NodeValues["A"], got.PerturbationAmounts["A"])
	}
	if len(got.Skipped) != 1 || got.Skipped[0].Line != 2 {
		t.Errorf("Skipped = %+v, want line 2", got.Skipped)
	}
}

func TestParseCmd_YAMLFromStdin(t *testing.T) {
	isolateHome(t)
	out, err := runCmd(t, "A -> B (1, -)", "parse", "--format", "yaml", "-")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	for _, want := range []string{"edges:", "source: A", "target: B", "node_values:"} {
		if !strings.Contains(out, want) {
			t.Errorf("YAML output missing %q:\n%s", want, out)
		}
	}
}

func TestParseCmd_Empty(t *testing.T) {
	isolateHome(t)
	_, err := runCmd(t, "just prose\n", "parse", "-")
	if !errors.Is(err, grammar.ErrEmptyInput) {
		t.Errorf("parse empty: error = %v, want ErrEmptyInput", err)
	}
}

func TestParseCmd_BadFormat(t *testing.T) {
	isolateHome(t)
	if _, err := runCmd(t, "A -> B (1, +)", "parse", "--format", "toml", "-"); err == nil {
		t.Error("parse --format toml: expected error")
	}
}

func TestFmtCmd(t *testing.T) {
	path := writeFile(t, t.TempDir(), "loop.cld", "A: 40\njunk\nA -> B (0.80, +)\n")

	out, err := runCmd(t, "", "fmt", path)
	if err != nil {
		t.Fatalf("fmt: %v", err)
	}
	want := "A -> B (0.8, +)\n\nA: 40 (5)\nB: 50 (5)\n"
	if out != want {
		t.Errorf("fmt output = %q, want %q", out, want)
	}

	if _, err := runCmd(t, "", "fmt", "--write", path); err != nil {
		t.Fatalf("fmt --write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != want {
		t.Errorf("file after --write = %q, want %q", data, want)
	}

	out, err = runCmd(t, "", "fmt", "--write", "--json", path)
	if err != nil {
		t.Fatalf("fmt --write again: %v", err)
	}
	var res map[string]interface{}
	if err := json.Unmarshal([]byte(out), &res); err != nil {
		t.Fatal(err)
	}
	if res["changed"] != false {
		t.Errorf("second fmt changed = %v, want false", res["changed"])
	}
}

func TestFmtCmd_WriteStdin(t *testing.T) {
	if _, err := runCmd(t, "A: 1", "fmt", "--write", "-"); err == nil {
		t.Error("fmt --write - : expected error")
	}
}

func TestLayoutCmd_Deterministic(t *testing.T) {
	isolateHome(t)
	run := func() layout.Result {
		out, err := runCmd(t, "", "layout", "--example", "simple", "--seed", "7", "--json")
		if err != nil {
			t.Fatalf("layout: %v", err)
		}
		var res layout.Result
		if err := json.Unmarshal([]byte(out), &res); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return res
	}

	first, second := run(), run()
	if len(first.Positions) == 0 {
		t.Fatal("no positions")
	}
	for name, p := range first.Positions {
		if second.Positions[name] != p {
			t.Errorf("%s: %v then %v with the same seed", name, p, second.Positions[name])
		}
	}
}

func TestSimulateCmd_JSON(t *testing.T) {
	isolateHome(t)
	path := writeFile(t, t.TempDir(), "drain.cld", drainDefinition)

	out, err := runCmd(t, "", "simulate", path, "--damping", "0.5", "--json")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	var got simulateOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	if got.StopReason != propagation.ReasonSettled {
		t.Errorf("StopReason = %q, want settled", got.StopReason)
	}
	if len(got.Steps) != 7 {
		t.Errorf("len(Steps) = %d, want 7", len(got.Steps))
	}
	if got.Final["B"] != 0 || got.Final["A"] != 100 {
		t.Errorf("Final = %v, want A=100 B=0", got.Final)
	}
}

func TestSimulateCmd_PerturbAndCap(t *testing.T) {
	isolateHome(t)
	path := writeFile(t, t.TempDir(), "drain.cld", drainDefinition)

	out, err := runCmd(t, "", "simulate", path, "--damping", "0.5", "-p", "B:+", "-p", "B:increase", "--max-steps", "2")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	for _, want := range []string{"initial: A=100 B=40", "step 1: A=100 B=35  (changed: B)", "step 2: A=100 B=30", "stopped: max_steps after 2 steps"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestSimulateCmd_IgnoresLiveRunConfig(t *testing.T) {
	isolateHome(t)
	t.Setenv("CAUSALLOOP_MAX_STEPS", "2")
	t.Setenv("CAUSALLOOP_STEP_DELAY", "1h")
	t.Setenv("CAUSALLOOP_DAMPING_FACTOR", "0.5")
	path := writeFile(t, t.TempDir(), "drain.cld", drainDefinition)

	out, err := runCmd(t, "", "simulate", path, "--json")
	if err != nil {
		t.Fatalf("simulate: %v", err)
	}
	var got simulateOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("decode %q: %v", out, err)
	}
	// Damping comes from config; the step cap and delay do not.
	if got.StopReason != propagation.ReasonSettled || len(got.Steps) != 7 {
		t.Errorf("StopReason = %q after %d steps, want settled after 7", got.StopReason, len(got.Steps))
	}

	help, err := runCmd(t, "", "simulate", "--help")
	if err != nil {
		t.Fatalf("simulate --help: %v", err)
	}
	for _, key := range []string{"simulation.step_delay", "simulation.max_steps"} {
		if !strings.Contains(help, key) {
			t.Errorf("help does not mention %s:\n%s", key, help)
		}
	}
}

func TestSimulateCmd_Errors(t *testing.T) {
	isolateHome(t)
	path := writeFile(t, t.TempDir(), "drain.cld", drainDefinition)

	tests := []struct {
		name string
		args []string
	}{
		{"unknown node", []string{"simulate", path, "-p", "Z:+"}},
		{"bad direction", []string{"simulate", path, "-p", "A:sideways"}},
		{"bad damping", []string{"simulate", path, "--damping", "1.5"}},
		{"negative steps", []string{"simulate", path, "--max-steps", "-1"}},
		{"no source", []string{"simulate"}},
		{"file and example", []string{"simulate", path, "--example", "simple"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCmd(t, "", tt.args...); err == nil {
				t.Errorf("%v: expected error", tt.args)
			}
		})
	}

	_, err := runCmd(t, "", "simulate", path, "-p", "Z:+")
	if !errors.Is(err, graph.ErrUnknownNode) {
		t.Errorf("unknown node error = %v, want ErrUnknownNode", err)
	}
}

func TestParsePerturbation(t *testing.T) {
	tests := []struct {
		in      string
		node    string
		dir     graph.Direction
		wantErr bool
	}{
		{in: "A:+", node: "A", dir: graph.Increase},
		{in: "Birth_Rate:-", node: "Birth_Rate", dir: graph.Decrease},
		{in: "A:up", node: "A", dir: graph.Increase},
		{in: "A", wantErr: true},
		{in: ":+", wantErr: true},
		{in: "A:", wantErr: true},
		{in: "A:?", wantErr: true},
	}
	for _, tt := range tests {
		got, err := parsePerturbation(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("parsePerturbation(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if !tt.wantErr && (got.node != tt.node || got.dir != tt.dir) {
			t.Errorf("parsePerturbation(%q) = %+v, want %s %s", tt.in, got, tt.node, tt.dir)
		}
	}
}

func TestRenderCmd(t *testing.T) {
	isolateHome(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "drain.cld", drainDefinition)

	out, err := runCmd(t, "", "render", path, "--format", "dot", "--seed", "1")
	if err != nil {
		t.Fatalf("render dot: %v", err)
	}
	if !strings.HasPrefix(out, "digraph causalloop {") || !strings.Contains(out, `"A" -> "B"`) {
		t.Errorf("unexpected DOT:\n%s", out)
	}

	svgPath := filepath.Join(dir, "drain.svg")
	if _, err := runCmd(t, "", "render", path, "-o", svgPath, "--title", "Drain"); err != nil {
		t.Fatalf("render svg: %v", err)
	}
	data, err := os.ReadFile(svgPath)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Contains(data, []byte("<svg")) || !bytes.Contains(data, []byte("Drain")) {
		t.Error("SVG file missing root element or title")
	}

	if _, err := runCmd(t, "", "render", path, "--format", "png"); err == nil {
		t.Error("render --format png: expected error")
	}
}

func TestExamplesCmd(t *testing.T) {
	out, err := runCmd(t, "", "examples", "list", "--json")
	if err != nil {
		t.Fatalf("examples list: %v", err)
	}
	var list struct {
		Count int `json:"count"`
	}
	if err := json.Unmarshal([]byte(out), &list); err != nil {
		t.Fatal(err)
	}
	if list.Count < 6 {
		t.Errorf("count = %d, want at least 6", list.Count)
	}

	out, err = runCmd(t, "", "examples", "show", "population")
	if err != nil {
		t.Fatalf("examples show: %v", err)
	}
	if _, err := grammar.Compile(out); err != nil {
		t.Errorf("shown example does not compile: %v", err)
	}

	if _, err := runCmd(t, "", "examples", "show", "nope"); err == nil {
		t.Error("examples show nope: expected error")
	}
}

func TestConfigCmd_SetGet(t *testing.T) {
	isolateHome(t)
	path := filepath.Join(t.TempDir(), "config.yaml")

	if _, err := runCmd(t, "", "--config", path, "config", "set", "simulation.step_delay", "250ms"); err != nil {
		t.Fatalf("config set: %v", err)
	}
	out, err := runCmd(t, "", "--config", path, "config", "get", "simulation.step_delay")
	if err != nil {
		t.Fatalf("config get: %v", err)
	}
	if strings.TrimSpace(out) != "simulation.step_delay = 250ms" {
		t.Errorf("config get = %q", out)
	}

	if _, err := runCmd(t, "", "--config", path, "config", "set", "simulation.damping_factor", "1"); err == nil {
		t.Error("config set damping 1: expected validation error")
	}
	if _, err := runCmd(t, "", "--config", path, "config", "get", "nope"); err == nil {
		t.Error("config get nope: expected error")
	}

	out, err = runCmd(t, "", "--config", path, "config", "list")
	if err != nil {
		t.Fatalf("config list: %v", err)
	}
	if !strings.Contains(out, "simulation.step_delay:") || !strings.Contains(out, "250ms") {
		t.Errorf("config list missing step delay:\n%s", out)
	}
}

func TestLoadConfig_LogLevelFlag(t *testing.T) {
	isolateHome(t)
	if _, err := runCmd(t, "", "--log-level", "loud", "layout", "--example", "simple"); err == nil {
		t.Error("invalid --log-level: expected error")
	}
}
