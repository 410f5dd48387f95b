package visualization

import (
	"math"
	"sync"

	"github.com/nvandessel/orgsim/internal/constants"
	"github.com/nvandessel/orgsim/internal/history"
)

// Board is the chart and status sink behind the dashboard. It keeps a
// bounded window of performance points and the latest status line. It is
// written by the simulation driver and read by HTTP handlers.
type Board struct {
	mu     sync.Mutex
	window *history.Window
	text   string
	resets int
}

// NewBoard returns a board that keeps the last window points.
func NewBoard(window int) *Board {
	return &Board{window: history.NewWindow(window)}
}

// AppendPoint adds a point, evicting the oldest beyond the window.
func (b *Board) AppendPoint(tick int, value float64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window.Push(history.Point{Tick: tick, Value: value})
}

// SetText replaces the status line.
func (b *Board) SetText(summary string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.text = summary
}

// Clear drops all points and the status line.
func (b *Board) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.window.Clear()
	b.text = ""
	b.resets++
}

// Points returns the visible points with values clamped to the chart range.
func (b *Board) Points() []history.Point {
	b.mu.Lock()
	pts := b.window.Points()
	b.mu.Unlock()

	for i := range pts {
		pts[i].Value = clamp(pts[i].Value)
	}
	return pts
}

// Text returns the latest status line.
func (b *Board) Text() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.text
}

// Window returns the number of points kept.
func (b *Board) Window() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.window.Cap()
}

// Resets returns how many times the board was cleared.
func (b *Board) Resets() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.resets
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return constants.ChartMin
	}
	return math.Max(constants.ChartMin, math.Min(constants.ChartMax, v))
}
