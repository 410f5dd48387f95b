package logging

import (
	"bytes"
	"context"
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
		{"uppercase DEBUG", "DEBUG", slog.LevelDebug},
		{"mixed case Trace", "Trace", LevelTrace},
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

func TestNewLogger_TraceLabel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLogger("trace", &buf)
	logger.Log(context.Background(), LevelTrace, "tick terms")

	if !strings.Contains(buf.String(), "level=TRACE") {
		t.Errorf("expected level=TRACE in %q", buf.String())
	}
}

func TestDiscard(t *testing.T) {
	// Must not panic and must not be nil.
	l := Discard()
	if l == nil {
		t.Fatal("Discard returned nil")
	}
	l.Error("dropped")
}

func TestNewTickTracer_InfoLevel(t *testing.T) {
	dir := t.TempDir()
	tt := NewTickTracer(dir, "info", RotationConfig{})

	if tt != nil {
		t.Error("expected nil TickTracer at info level")
	}

	// Nil tracer should still be safe to use
	tt.Log(map[string]any{"event": "tick"})

	if _, err := os.Stat(filepath.Join(dir, "ticks.jsonl")); err == nil {
		t.Error("ticks.jsonl should not exist at info level")
	}
}

func TestNewTickTracer_DebugLevel(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested")
	tt := NewTickTracer(dir, "debug", RotationConfig{MaxSizeMB: 1})
	if tt == nil {
		t.Fatal("expected tracer at debug level")
	}
	defer tt.Close()

	tt.Log(map[string]any{"event": "tick", "tick": 3, "performance": 1.25})
	tt.Log(map[string]any{"event": "tick", "tick": 4, "performance": 1.5})

	data, err := os.ReadFile(filepath.Join(dir, "ticks.jsonl"))
	if err != nil {
		t.Fatalf("failed to read ticks.jsonl: %v", err)
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d: %q", len(lines), string(data))
	}

	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("failed to parse JSONL entry: %v", err)
	}
	if entry["tick"] != 3.0 {
		t.Errorf("tick = %v, want 3", entry["tick"])
	}
	if entry["performance"] != 1.25 {
		t.Errorf("performance = %v, want 1.25", entry["performance"])
	}
	if _, ok := entry["time"]; !ok {
		t.Error("expected 'time' field in trace entry")
	}
}

// nopCloser records writes in memory.
type nopCloser struct {
	bytes.Buffer
	closed bool
}

func (n *nopCloser) Close() error {
	n.closed = true
	return nil
}

func TestTickTracer_DoesNotMutateCallerMap(t *testing.T) {
	w := &nopCloser{}
	tt := newTickTracer(w)

	event := map[string]any{"event": "tick"}
	tt.Log(event)

	if _, hasTime := event["time"]; hasTime {
		t.Error("Log() should not mutate caller's map, but 'time' was injected")
	}
}

func TestTickTracer_LogAfterClose(t *testing.T) {
	w := &nopCloser{}
	tt := newTickTracer(w)

	tt.Log(map[string]any{"event": "before_close"})
	tt.Close()
	tt.Log(map[string]any{"event": "after_close"})

	if !w.closed {
		t.Error("Close did not close the writer")
	}
	if strings.Contains(w.String(), "after_close") {
		t.Error("Log after Close should be a no-op")
	}
}

func TestTickTracer_NilSafety(t *testing.T) {
	var tt *TickTracer
	tt.Log(map[string]any{"event": "should_not_panic"})
	tt.Close()
}
