// Package logging provides leveled logging and tick tracing for orgsim.
// It offers two complementary outputs:
//   - A leveled slog.Logger for stderr (operational output)
//   - A TickTracer for structured JSONL per-tick traces (rotated by lumberjack)
package logging

import (
	"encoding/json"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
)

// LevelTrace is a custom slog level below Debug. At this level the session
// also logs the recurrence terms of every tick: adaptation rate, desired
// organization, slack attenuation and the shock as drawn.
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
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 4}))
}

// RotationConfig bounds the size and age of trace files.
type RotationConfig struct {
	MaxSizeMB  int  `json:"max_size_mb" yaml:"max_size_mb"`
	MaxBackups int  `json:"max_backups" yaml:"max_backups"`
	MaxAgeDays int  `json:"max_age_days" yaml:"max_age_days"`
	Compress   bool `json:"compress" yaml:"compress"`
}

// TickTracer writes one JSON object per simulation tick to a JSONL file.
// It is safe for concurrent use. A nil TickTracer is safe to use;
// all methods are no-ops on nil receiver.
type TickTracer struct {
	mu  sync.Mutex
	out io.WriteCloser
}

// NewTickTracer creates a tracer writing to dir/ticks.jsonl.
// At "info" level (the default), returns nil and no file is created.
// At "debug" or "trace" level, the file is opened lazily by lumberjack
// and rotated according to rot.
func NewTickTracer(dir string, level string, rot RotationConfig) *TickTracer {
	if ParseLevel(level) == slog.LevelInfo || dir == "" {
		return nil
	}
	return newTickTracer(&lumberjack.Logger{
		Filename:   filepath.Join(dir, "ticks.jsonl"),
		MaxSize:    rot.MaxSizeMB,
		MaxBackups: rot.MaxBackups,
		MaxAge:     rot.MaxAgeDays,
		Compress:   rot.Compress,
	})
}

func newTickTracer(w io.WriteCloser) *TickTracer {
	return &TickTracer{out: w}
}

// Log writes an event as a single JSONL line.
// A "time" field is added automatically. The caller's map is not mutated.
// Safe to call on nil receiver.
func (tt *TickTracer) Log(event map[string]any) {
	if tt == nil {
		return
	}

	// Copy to avoid mutating caller's map
	entry := make(map[string]any, len(event)+1)
	for k, v := range event {
		entry[k] = v
	}
	entry["time"] = time.Now().UTC().Format(time.RFC3339Nano)

	data, err := json.Marshal(entry)
	if err != nil {
		return
	}
	data = append(data, '\n')

	tt.mu.Lock()
	defer tt.mu.Unlock()
	if tt.out == nil {
		return
	}
	_, _ = tt.out.Write(data)
}

// Close closes the underlying file. Safe to call on nil receiver.
func (tt *TickTracer) Close() {
	if tt == nil {
		return
	}

	tt.mu.Lock()
	defer tt.mu.Unlock()

	if tt.out != nil {
		tt.out.Close()
		tt.out = nil
	}
}
