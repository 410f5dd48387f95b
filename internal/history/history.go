// Package history keeps the per-tick record of a simulation run.
//
// Log is the full, append-only history handed to export sinks. Window is a
// bounded FIFO of recent points for display. The two are independent: a
// window never truncates the log.
package history

import (
	"fmt"

	"github.com/nvandessel/orgsim/internal/models"
)

// Log is an append-only, insertion-ordered sequence of tick records.
// It is not safe for concurrent use; the simulation loop owns it.
type Log struct {
	records []models.TickRecord
}

// NewLog returns an empty log with room for capacity records.
func NewLog(capacity int) *Log {
	if capacity < 0 {
		capacity = 0
	}
	return &Log{records: make([]models.TickRecord, 0, capacity)}
}

// Append adds rec. Ticks must start at 1 and increase by exactly 1.
func (l *Log) Append(rec models.TickRecord) error {
	if want := len(l.records) + 1; rec.Tick != want {
		return fmt.Errorf("history: tick %d out of sequence, want %d", rec.Tick, want)
	}
	l.records = append(l.records, rec)
	return nil
}

// Len returns the number of records.
func (l *Log) Len() int {
	return len(l.records)
}

// Last returns the most recent record, if any.
func (l *Log) Last() (models.TickRecord, bool) {
	if len(l.records) == 0 {
		return models.TickRecord{}, false
	}
	return l.records[len(l.records)-1], true
}

// Records returns a copy of every record in tick order.
func (l *Log) Records() []models.TickRecord {
	out := make([]models.TickRecord, len(l.records))
	copy(out, l.records)
	return out
}

// Tail returns a copy of the last n records (all of them if n <= 0 or
// n exceeds the length).
func (l *Log) Tail(n int) []models.TickRecord {
	if n <= 0 || n > len(l.records) {
		n = len(l.records)
	}
	out := make([]models.TickRecord, n)
	copy(out, l.records[len(l.records)-n:])
	return out
}

// Point is one chart sample.
type Point struct {
	Tick  int     `json:"tick"`
	Value float64 `json:"value"`
}

// Window is a fixed-capacity FIFO of points; pushing onto a full window
// drops the oldest point.
type Window struct {
	buf   []Point
	start int
	size  int
}

// NewWindow returns a window holding at most capacity points.
func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]Point, capacity)}
}

// Push appends p, evicting the oldest point when full.
func (w *Window) Push(p Point) {
	if w.size < len(w.buf) {
		w.buf[(w.start+w.size)%len(w.buf)] = p
		w.size++
		return
	}
	w.buf[w.start] = p
	w.start = (w.start + 1) % len(w.buf)
}

// Len returns the number of points held.
func (w *Window) Len() int {
	return w.size
}

// Cap returns the window capacity.
func (w *Window) Cap() int {
	return len(w.buf)
}

// Points returns the held points oldest first.
func (w *Window) Points() []Point {
	out := make([]Point, w.size)
	for i := 0; i < w.size; i++ {
		out[i] = w.buf[(w.start+i)%len(w.buf)]
	}
	return out
}

// Clear drops all points.
func (w *Window) Clear() {
	w.start = 0
	w.size = 0
}
