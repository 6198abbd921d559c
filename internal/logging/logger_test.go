package logging

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  slog.Level
	}{
		{"info", "info", slog.LevelInfo},
		{"debug", "debug", slog.LevelDebug},
		{"trace", "trace", LevelTrace},
		{"uppercase INFO", "INFO", slog.LevelInfo},
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"uppercase TRACE", "TRACE", LevelTrace},
		{"mixed case Debug", "Debug", slog.LevelDebug},
		{"unknown defaults to info", "unknown", slog.LevelInfo},
		{"empty defaults to info", "", slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseLevel(tt.input)
			if got != tt.want {
				t.Errorf("ParseLevel(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestNewLogger(t *testing.T) {
	tests := []struct {
		name  string
		level string
	}{
		{"info level", "info"},
		{"debug level", "debug"},
		{"trace level", "trace"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)
			if logger == nil {
				t.Fatal("NewLogger returned nil")
			}
		})
	}
}

func TestNewLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		level      string
		logAtDebug bool
		logAtInfo  bool
	}{
		{"info filters debug", "info", false, true},
		{"debug passes debug", "debug", true, true},
		{"trace passes debug", "trace", true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewLogger(tt.level, &buf)

			logger.Debug("debug message")
			hasDebug := strings.Contains(buf.String(), "debug message")
			if hasDebug != tt.logAtDebug {
				t.Errorf("debug message visible = %v, want %v (buf: %q)", hasDebug, tt.logAtDebug, buf.String())
			}

			buf.Reset()
			logger.Info("info message")
			hasInfo := strings.Contains(buf.String(), "info message")
			if hasInfo != tt.logAtInfo {
				t.Errorf("info message visible = %v, want %v (buf: %q)", hasInfo, tt.logAtInfo, buf.String())
			}
		})
	}
}

func TestLevelTrace(t *testing.T) {
	// Trace should be below debug (more verbose)
	if LevelTrace >= slog.LevelDebug {
		t.Errorf("LevelTrace (%d) should be less than LevelDebug (%d)", LevelTrace, slog.LevelDebug)
	}
}

func TestNewStepTracer_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	st := NewStepTracer(dir, "info", false)

	// At info level without --trace, the tracer should be nil
	if st != nil {
		t.Error("expected nil StepTracer at info level")
	}

	// Nil tracer should still be safe to use
	st.Log("step", map[string]any{"step": 1})
	if st.RunID() != "" {
		t.Errorf("RunID() on nil = %q, want empty", st.RunID())
	}

	path := filepath.Join(dir, "steps.jsonl")
	if _, err := os.Stat(path); err == nil {
		t.Error("steps.jsonl should not exist at info level")
	}
}

func TestNewStepTracer_ForcedAtInfoLevel(t *testing.T) {
	dir := t.TempDir()
	st := NewStepTracer(dir, "info", true)
	if st == nil {
		t.Fatal("expected non-nil StepTracer when forced")
	}
	defer st.Close()

	if st.Path() != filepath.Join(dir, "steps.jsonl") {
		t.Errorf("Path() = %q", st.Path())
	}
}

func TestNewStepTracer_DebugLevel(t *testing.T) {
	dir := t.TempDir()
	st := NewStepTracer(dir, "debug", false)
	defer st.Close()

	st.Log("step", map[string]any{"step": 3, "any_changed": true})

	data, err := os.ReadFile(filepath.Join(dir, "steps.jsonl"))
	if err != nil {
		t.Fatalf("failed to read steps.jsonl: %v", err)
	}

	var entry map[string]any
	if err := json.Unmarshal(data, &entry); err != nil {
		t.Fatalf("failed to parse JSONL entry: %v", err)
	}

	if entry["event"] != "step" {
		t.Errorf("event = %v, want step", entry["event"])
	}
	if entry["step"] != float64(3) {
		t.Errorf("step = %v, want 3", entry["step"])
	}
	if entry["run_id"] != st.RunID() || st.RunID() == "" {
		t.Errorf("run_id = %v, want %q", entry["run_id"], st.RunID())
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in trace entry")
	}
}

func TestNewStepTracer_MultipleWrites(t *testing.T) {
	dir := t.TempDir()
	st := NewStepTracer(dir, "trace", false)
	defer st.Close()

	st.Log("start", nil)
	st.Log("stop", map[string]any{"reason": "settled"})

	data, err := os.ReadFile(filepath.Join(dir, "steps.jsonl"))
	if err != nil {
		t.Fatalf("failed to read steps.jsonl: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}

	var first, second map[string]any
	json.Unmarshal([]byte(lines[0]), &first)
	json.Unmarshal([]byte(lines[1]), &second)

	if first["event"] != "start" {
		t.Errorf("first event = %v, want start", first["event"])
	}
	if second["reason"] != "settled" {
		t.Errorf("second reason = %v, want settled", second["reason"])
	}
	if first["run_id"] != second["run_id"] {
		t.Error("events of one tracer carry different run IDs")
	}
}

func TestNewStepTracer_DistinctRunIDs(t *testing.T) {
	dir := t.TempDir()
	a := NewStepTracer(dir, "debug", false)
	defer a.Close()
	b := NewStepTracer(dir, "debug", false)
	defer b.Close()

	if a.RunID() == b.RunID() {
		t.Errorf("two tracers share run ID %q", a.RunID())
	}
}

func TestStepTracer_NilSafety(t *testing.T) {
	var st *StepTracer
	st.Log("should_not_panic", nil)
	st.Close()
}

func TestStepTracer_DoesNotMutateCallerMap(t *testing.T) {
	dir := t.TempDir()
	st := NewStepTracer(dir, "debug", false)
	defer st.Close()

	fields := map[string]any{"step": 1}
	st.Log("step", fields)

	for _, key := range []string{"time", "event", "run_id"} {
		if _, ok := fields[key]; ok {
			t.Errorf("Log() mutated caller's map: %q injected", key)
		}
	}
}

func TestStepTracer_LogAfterClose(t *testing.T) {
	dir := t.TempDir()
	st := NewStepTracer(dir, "debug", false)

	st.Log("before_close", nil)
	st.Close()

	// Should be a no-op, not panic or error
	st.Log("after_close", nil)
	st.Close()
}

func TestNewStepTracer_CreatesDir(t *testing.T) {
	nestedDir := filepath.Join(t.TempDir(), "sub", "dir")

	st := NewStepTracer(nestedDir, "debug", false)
	if st == nil {
		t.Fatal("expected non-nil StepTracer when dir needs creation")
	}
	defer st.Close()

	st.Log("dir_create_test", nil)

	if _, err := os.Stat(filepath.Join(nestedDir, "steps.jsonl")); err != nil {
		t.Fatalf("steps.jsonl should exist after dir creation: %v", err)
	}
}

func TestStepTracer_FilePermissions(t *testing.T) {
	dir := t.TempDir()
	st := NewStepTracer(dir, "debug", false)
	defer st.Close()

	st.Log("perm_test", nil)

	info, err := os.Stat(filepath.Join(dir, "steps.jsonl"))
	if err != nil {
		t.Fatalf("failed to stat steps.jsonl: %v", err)
	}

	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}

func TestDiscard(t *testing.T) {
	Discard().Error("dropped")
}
