package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rajithv/CausalLoop/internal/pathutil"
	"github.com/rajithv/CausalLoop/internal/ratelimit"
	"github.com/rajithv/CausalLoop/internal/sanitize"
)

// AuditEntry represents a single audit log entry for an MCP tool invocation.
// It captures metadata about the call without including graph text.
type AuditEntry struct {
	Timestamp  time.Time         `json:"timestamp"`
	Tool       string            `json:"tool"`
	DurationMs int64             `json:"duration_ms"`
	Status     string            `json:"status"` // "success", "error" or "rate_limited"
	Error      string            `json:"error,omitempty"`
	Params     map[string]string `json:"params,omitempty"` // sanitized metadata only
}

// AuditLogger appends audit entries to a JSONL file. It is safe for
// concurrent use. A nil AuditLogger is safe to use; all methods are no-ops
// on nil receiver.
type AuditLogger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewAuditLogger opens dir/audit.jsonl for appending, creating dir if
// needed. If the file cannot be opened, a warning is printed to stderr and
// nil is returned; auditing is best effort.
func NewAuditLogger(dir string) *AuditLogger {
	if err := os.MkdirAll(dir, 0700); err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot create audit log directory %s: %v\n", dir, err)
		return nil
	}

	path := filepath.Join(dir, "audit.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: cannot open audit log %s: %v\n", path, err)
		return nil
	}

	return &AuditLogger{file: f, path: path}
}

// Path returns the audit file path. Safe to call on nil receiver.
func (a *AuditLogger) Path() string {
	if a == nil {
		return ""
	}
	return a.path
}

// Log appends entry as a single JSON line. Safe to call on nil receiver.
func (a *AuditLogger) Log(entry AuditEntry) {
	if a == nil {
		return
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return
	}
	_, _ = a.file.Write(data)
}

// Close closes the audit file. Safe to call on nil receiver.
func (a *AuditLogger) Close() error {
	if a == nil {
		return nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if a.file == nil {
		return nil
	}
	err := a.file.Close()
	a.file = nil
	return err
}

// sanitizeToolParams extracts safe metadata from tool parameters.
// It returns key names and non-sensitive value summaries, never graph text.
//
// Parameters are classified into three categories:
//   - Safe-value params: both key and value are safe to log (e.g., "format", "steps")
//   - Presence-only params: key is logged but value is replaced with "(set)"
//   - Path params: logged in redacted form
//   - Unknown params: not logged at all
//
// A "_param_count" key is always included to indicate how many params were provided.
func sanitizeToolParams(params map[string]any) map[string]string {
	if params == nil {
		return nil
	}

	result := make(map[string]string)

	safeValueParams := map[string]bool{
		"format":         true,
		"example":        true,
		"name":           true,
		"seed":           true,
		"iterations":     true,
		"steps":          true,
		"damping_factor": true,
		"unbounded":      true,
		"perturbations":  true,
	}

	// Free-form input: only its presence is recorded.
	presenceOnlyParams := map[string]bool{
		"text":  true,
		"title": true,
	}

	for key, val := range params {
		if key == "file" {
			if p, ok := val.(string); ok && p != "" {
				result[key] = pathutil.RedactPath(p)
			}
		} else if safeValueParams[key] {
			result[key] = fmt.Sprintf("%v", val)
		} else if presenceOnlyParams[key] {
			if s, ok := val.(string); ok && s == "" {
				continue
			}
			result[key] = "(set)"
		}
	}

	result["_param_count"] = fmt.Sprintf("%d", len(params))

	return result
}

// auditTool records a tool invocation in the audit log, the tool metrics
// and the debug log.
func (s *Server) auditTool(toolName string, start time.Time, err error, params map[string]string) {
	status := "success"
	errMsg := ""
	switch {
	case errors.Is(err, ratelimit.ErrLimited):
		status = "rate_limited"
		errMsg = sanitize.LogText(err.Error())
	case err != nil:
		status = "error"
		errMsg = sanitize.LogText(err.Error())
	}

	s.metrics.RecordToolCall(toolName, status)
	s.logger.Debug("mcp tool call", "tool", toolName, "status", status, "duration", time.Since(start))

	s.auditLogger.Log(AuditEntry{
		Timestamp:  start,
		Tool:       toolName,
		DurationMs: time.Since(start).Milliseconds(),
		Status:     status,
		Error:      errMsg,
		Params:     params,
	})
}
