package simulation

import (
	"context"

	"github.com/nvandessel/orgsim/internal/engine"
	"github.com/nvandessel/orgsim/internal/models"
	"github.com/nvandessel/orgsim/internal/noise"
	"github.com/nvandessel/orgsim/internal/shock"
)

// InputSource returns the control inputs for the current tick.
type InputSource interface {
	Snapshot() models.ControlInputs
}

// StaticInputs is an InputSource that never changes.
type StaticInputs models.ControlInputs

// Snapshot returns the fixed inputs.
func (s StaticInputs) Snapshot() models.ControlInputs { return models.ControlInputs(s) }

// ChartSink receives the latest performance point every tick. It may keep
// only a bounded window; that never affects the history log.
type ChartSink interface {
	AppendPoint(tick int, value float64)
}

// StatusSink receives a human-readable summary every tick.
type StatusSink interface {
	SetText(summary string)
}

// ExportSink receives the full history exactly once, when the run stops.
type ExportSink interface {
	Export(ctx context.Context, records []models.TickRecord) error
}

// Clearer is implemented by sinks that hold display state which must be
// dropped when the session is reset.
type Clearer interface {
	Clear()
}

// Sinks bundles the collaborators a session pushes into. Nil sinks are skipped.
type Sinks struct {
	Chart  ChartSink
	Status StatusSink
	Export ExportSink
}

// Step advances one tick: resolve the shock, advance the recurrence and
// build the record. It has no side effects beyond the draws taken from src.
func Step(e *engine.Engine, p shock.Policy, src noise.Source, state models.State, tick int, in models.ControlInputs) (models.State, models.TickRecord) {
	next, rec, _ := step(e, p, src, state, tick, in)
	return next, rec
}

// step is Step that also returns the shock as drawn, before attenuation.
func step(e *engine.Engine, p shock.Policy, src noise.Source, state models.State, tick int, in models.ControlInputs) (models.State, models.TickRecord, shock.Shock) {
	s := p.Decide(tick, in, src)
	next, applied, perf := e.Advance(state, in, s)
	return next, models.TickRecord{
		Tick:            tick,
		Environment:     next.Environment,
		Organization:    next.Organization,
		Modularity:      in.Modularity,
		Diversification: in.Diversification,
		Slack:           in.Slack,
		Shock:           applied,
		Performance:     perf,
	}, s
}
