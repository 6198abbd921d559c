// Package logging provides leveled logging and simulation tracing for causalloop.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A StepTracer for structured JSONL simulation traces (steps.jsonl)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/rajithv/CausalLoop/internal/constants"
)

// LevelTrace is a custom slog level below Debug.
// At this level every simulation step is logged with all node values.
const LevelTrace = slog.LevelDebug - 4

// ParseLevel maps a string level name to a slog.Level.
// Supported values: "info", "debug", "trace" (case-insensitive).
// Unknown values default to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "trace":
		return LevelTrace
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a leveled slog.Logger writing to w.
func NewLogger(level string, w io.Writer) *slog.Logger {
	lvl := ParseLevel(level)
	opts := &slog.HandlerOptions{
		Level: lvl,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			// Label the custom trace level
			if a.Key == slog.LevelKey {
				if lvl, ok := a.Value.Any().(slog.Level); ok && lvl == LevelTrace {
					a.Value = slog.StringValue("TRACE")
				}
			}
			return a
		},
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Discard returns a logger that drops everything.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// StepTracer writes simulation events to a JSONL file, one object per line,
// each tagged with the run ID of the tracer. It is safe for concurrent use.
// A nil StepTracer is safe to use; all methods are no-ops on nil receiver.
type StepTracer struct {
	mu    sync.Mutex
	file  *os.File
	runID string
	path  string
}

// NewStepTracer creates a tracer appending to dir/steps.jsonl.
// At "info" level the tracer is nil and no file is created, unless force is
// set (the --trace flag). Returns nil if the file cannot be opened.
func NewStepTracer(dir, level string, force bool) *StepTracer {
	if !force && ParseLevel(level) == slog.LevelInfo {
		return nil
	}

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, constants.TraceFileName)
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}

	return &StepTracer{file: f, runID: uuid.NewString(), path: path}
}

// RunID returns the identifier stamped on every event of this tracer.
func (st *StepTracer) RunID() string {
	if st == nil {
		return ""
	}
	return st.runID
}

// Path returns the trace file path.
func (st *StepTracer) Path() string {
	if st == nil {
		return ""
	}
	return st.path
}

// Log writes an event as a single JSONL line. "event", "run_id" and "time"
// fields are added. The caller's map is not mutated.
func (st *StepTracer) Log(event string, fields map[string]any) {
	if st == nil || st.file == nil {
		return
	}

	entry := make(map[string]any, len(fields)+3)
	for k, v := range fields {
		entry[k] = v
	}
	entry["event"] = event
	entry["run_id"] = st.runID
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	st.mu.Lock()
	defer st.mu.Unlock()
	if st.file == nil {
		return
	}
	_, _ = st.file.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (st *StepTracer) Close() {
	if st == nil {
		return
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.file != nil {
		st.file.Close()
		st.file = nil
	}
}
