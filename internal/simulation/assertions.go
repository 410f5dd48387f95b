package simulation

import (
	"context"
	"math"
	"sync"
	"testing"

	"github.com/nvandessel/orgsim/internal/models"
)

// Recorder is an in-memory implementation of every sink, for tests and
// dry runs. It is safe for concurrent use.
type Recorder struct {
	mu        sync.Mutex
	Points    []Point
	Texts     []string
	Exports   [][]models.TickRecord
	ExportErr error
	Clears    int
}

// Point is one chart sample captured by a Recorder.
type Point struct {
	Tick  int
	Value float64
}

// AppendPoint records a chart point.
func (r *Recorder) AppendPoint(tick int, value float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Points = append(r.Points, Point{Tick: tick, Value: value})
}

// SetText records a status line.
func (r *Recorder) SetText(summary string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Texts = append(r.Texts, summary)
}

// Export records the exported history and returns ExportErr.
func (r *Recorder) Export(_ context.Context, records []models.TickRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Exports = append(r.Exports, records)
	return r.ExportErr
}

// Clear counts resets.
func (r *Recorder) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Clears++
}

// ExportCount returns how many times Export was called.
func (r *Recorder) ExportCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.Exports)
}

// AssertTickSequence asserts that records are numbered 1..n without gaps.
func AssertTickSequence(t *testing.T, records []models.TickRecord) {
	t.Helper()
	for i, r := range records {
		if r.Tick != i+1 {
			t.Errorf("AssertTickSequence: record %d has tick %d, want %d", i, r.Tick, i+1)
			return
		}
	}
}

// AssertSameTrajectory asserts two runs produced identical E, O and
// performance at every tick.
func AssertSameTrajectory(t *testing.T, a, b []models.TickRecord) {
	t.Helper()
	if len(a) != len(b) {
		t.Fatalf("AssertSameTrajectory: lengths differ: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Errorf("AssertSameTrajectory: tick %d differs:\n  %+v\n  %+v", a[i].Tick, a[i], b[i])
			return
		}
	}
}

// AssertEnvironmentJump asserts that E rose by exactly want between
// tick-1 and tick, within tol.
func AssertEnvironmentJump(t *testing.T, records []models.TickRecord, tick int, want, tol float64) {
	t.Helper()
	if tick < 2 || tick > len(records) {
		t.Fatalf("AssertEnvironmentJump: tick %d outside recorded range 2..%d", tick, len(records))
	}
	got := records[tick-1].Environment - records[tick-2].Environment
	if math.Abs(got-want) > tol {
		t.Errorf("AssertEnvironmentJump: tick %d: E changed by %.12f, want %.12f", tick, got, want)
	}
}
