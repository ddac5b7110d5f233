// Package logging provides leveled logging and the lifecycle decision trace.
//   - A leveled slog.Logger for stderr (operational output)
//   - A DecisionLogger appending one JSON line per network lifecycle
//     decision to <output_root>/decisions.jsonl
package logging

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/sugawarayuuta/sonnet"
)

// LevelTrace is a custom slog level below Debug. Per-node injection detail
// is only logged at this level.
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

// Decision is one lifecycle transition of the working network.
type Decision struct {
	Time     string `json:"time"`
	RunID    string `json:"run_id,omitempty"`
	FlowName string `json:"flow_name"`
	Pairing  int    `json:"pairing"`
	Action   string `json:"action"`
	// Reason names the trigger, e.g. "first_row" or "cost_changed".
	Reason string `json:"reason,omitempty"`
	Cost   string `json:"cost,omitempty"`

	Nodes   int `json:"nodes"`
	Edges   int `json:"edges"`
	Origins int `json:"origins,omitempty"`
	Dests   int `json:"destinations,omitempty"`
}

// DecisionLogger writes Decisions to a JSONL file.
// It is safe for concurrent use. A nil DecisionLogger is safe to use;
// all methods are no-ops on nil receiver.
type DecisionLogger struct {
	mu   sync.Mutex
	file *os.File
	now  func() time.Time
}

// NewDecisionLogger creates a decision logger writing to dir/decisions.jsonl.
// At "info" level it returns nil and no file is created.
// Returns nil if the file cannot be opened.
func NewDecisionLogger(dir string, level string) *DecisionLogger {
	if ParseLevel(level) == slog.LevelInfo {
		return nil
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil
	}

	path := filepath.Join(dir, "decisions.jsonl")
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil
	}
	return &DecisionLogger{file: f, now: time.Now}
}

// Log appends d as one line, stamping Time when it is empty.
func (dl *DecisionLogger) Log(d Decision) {
	if dl == nil {
		return
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file == nil {
		return
	}

	if d.Time == "" {
		d.Time = dl.now().UTC().Format(time.RFC3339Nano)
	}
	data, err := sonnet.Marshal(d)
	if err != nil {
		return
	}
	data = append(data, '\n')
	_, _ = dl.file.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (dl *DecisionLogger) Close() {
	if dl == nil {
		return
	}

	dl.mu.Lock()
	defer dl.mu.Unlock()
	if dl.file != nil {
		dl.file.Close()
		dl.file = nil
	}
}
