package simulation

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nvandessel/orgsim/internal/constants"
	"github.com/nvandessel/orgsim/internal/engine"
	"github.com/nvandessel/orgsim/internal/history"
	"github.com/nvandessel/orgsim/internal/logging"
	"github.com/nvandessel/orgsim/internal/models"
	"github.com/nvandessel/orgsim/internal/noise"
	"github.com/nvandessel/orgsim/internal/shock"
)

// Phase is the state of a session's loop.
type Phase int

const (
	// Running sessions accept ticks.
	Running Phase = iota
	// Stopped sessions reached their tick budget and have exported.
	Stopped
)

// String returns "running" or "stopped".
func (p Phase) String() string {
	if p == Stopped {
		return "stopped"
	}
	return "running"
}

// Options configure a new session.
type Options struct {
	Engine   *engine.Engine
	Policy   shock.Policy
	Noise    noise.Source
	Inputs   InputSource
	Sinks    Sinks
	MaxTicks int

	// Initial overrides the default state (E=5, O=4) when non-nil.
	Initial *models.State

	Logger *slog.Logger
	Tracer *logging.TickTracer
}

// Status is a point-in-time view of a session.
type Status struct {
	Phase     Phase                `json:"-"`
	PhaseName string               `json:"phase"`
	Tick      int                  `json:"tick"`
	MaxTicks  int                  `json:"max_ticks"`
	State     models.State         `json:"state"`
	Last      *models.TickRecord   `json:"last,omitempty"`
	Exported  bool                 `json:"exported"`
	ExportErr string               `json:"export_error,omitempty"`
	Inputs    models.ControlInputs `json:"inputs"`
}

// Session owns the state, history and loop fields of one run.
// It is not safe for concurrent use; Driver serialises access.
type Session struct {
	engine   *engine.Engine
	policy   shock.Policy
	src      noise.Source
	inputs   InputSource
	sinks    Sinks
	maxTicks int
	logger   *slog.Logger
	tracer   *logging.TickTracer

	state     models.State
	log       *history.Log
	phase     Phase
	exported  bool
	exportErr error
}

// NewSession validates opts and returns a Running session at tick 0.
func NewSession(opts Options) (*Session, error) {
	if opts.Engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	if opts.Noise == nil {
		return nil, fmt.Errorf("noise source is required")
	}
	if opts.Inputs == nil {
		return nil, fmt.Errorf("input source is required")
	}
	if opts.MaxTicks < 1 {
		return nil, fmt.Errorf("max ticks must be positive, got %d", opts.MaxTicks)
	}
	policy := opts.Policy
	if policy == nil {
		policy = shock.None{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	state := models.State{
		Environment:  constants.DefaultEnvironment,
		Organization: constants.DefaultOrganization,
	}
	if opts.Initial != nil {
		state = *opts.Initial
	}

	return &Session{
		engine:   opts.Engine,
		policy:   policy,
		src:      opts.Noise,
		inputs:   opts.Inputs,
		sinks:    opts.Sinks,
		maxTicks: opts.MaxTicks,
		logger:   logger,
		tracer:   opts.Tracer,
		state:    state,
		log:      history.NewLog(opts.MaxTicks),
		phase:    Running,
	}, nil
}

// Tick processes one tick. It returns false without side effects when the
// session is already stopped.
func (s *Session) Tick(ctx context.Context) (models.TickRecord, bool) {
	if s.phase == Stopped {
		return models.TickRecord{}, false
	}

	tick := s.log.Len() + 1
	in := s.inputs.Snapshot()

	next, rec, drawn := step(s.engine, s.policy, s.src, s.state, tick, in)
	if err := s.log.Append(rec); err != nil {
		// Unreachable: tick is derived from the log length.
		panic(err)
	}
	s.state = next

	if s.sinks.Chart != nil {
		s.sinks.Chart.AppendPoint(rec.Tick, rec.Performance)
	}
	if s.sinks.Status != nil {
		s.sinks.Status.SetText(s.summary(rec))
	}

	s.logger.Debug("tick",
		"tick", rec.Tick,
		"environment", rec.Environment,
		"organization", rec.Organization,
		"performance", rec.Performance,
		"shock", rec.Shock)
	if s.logger.Enabled(ctx, logging.LevelTrace) {
		coeffs := s.engine.Coefficients()
		s.logger.Log(ctx, logging.LevelTrace, "tick terms",
			"tick", rec.Tick,
			"alpha_c", coeffs.AdaptationRate(in),
			"e_desired", coeffs.DesiredOrganization(rec.Environment, in),
			"attenuation", coeffs.Attenuation(in.Slack),
			"shock_fired", drawn.Fired,
			"shock_drawn", drawn.Magnitude)
	}
	s.tracer.Log(map[string]any{
		"event":           "tick",
		"tick":            rec.Tick,
		"environment":     rec.Environment,
		"organization":    rec.Organization,
		"modularity":      rec.Modularity,
		"diversification": rec.Diversification,
		"slack":           rec.Slack,
		"shock":           rec.Shock,
		"performance":     rec.Performance,
		"policy":          s.policy.Name(),
		"model":           s.engine.Model().Name(),
	})

	if tick >= s.maxTicks {
		s.stop(ctx)
	}
	return rec, true
}

// stop transitions to Stopped and invokes the export sink once.
func (s *Session) stop(ctx context.Context) {
	s.phase = Stopped
	s.logger.Info("simulation finished", "ticks", s.log.Len())

	if s.sinks.Export == nil {
		return
	}
	s.exported = true
	s.exportErr = s.sinks.Export.Export(ctx, s.log.Records())

	var msg string
	if s.exportErr != nil {
		s.logger.Error("export failed", "error", s.exportErr)
		msg = fmt.Sprintf("Simulation finished! Export failed: %v", s.exportErr)
	} else {
		s.logger.Info("export delivered", "records", s.log.Len())
		msg = fmt.Sprintf("Simulation finished! Exported %d quarters.", s.log.Len())
	}
	if s.sinks.Status != nil {
		s.sinks.Status.SetText(msg)
	}
	s.tracer.Log(map[string]any{"event": "export", "records": s.log.Len(), "ok": s.exportErr == nil})
}

func (s *Session) summary(rec models.TickRecord) string {
	return fmt.Sprintf("Quarter %d/%d  Performance (ROA): %.2f", rec.Tick, s.maxTicks, rec.Performance)
}

// Phase returns the current loop phase.
func (s *Session) Phase() Phase {
	return s.phase
}

// State returns the current E/O pair.
func (s *Session) State() models.State {
	return s.state
}

// Ticks returns the number of ticks processed.
func (s *Session) Ticks() int {
	return s.log.Len()
}

// MaxTicks returns the tick budget.
func (s *Session) MaxTicks() int {
	return s.maxTicks
}

// History returns a copy of the full history.
func (s *Session) History() []models.TickRecord {
	return s.log.Records()
}

// Tail returns a copy of the last n records.
func (s *Session) Tail(n int) []models.TickRecord {
	return s.log.Tail(n)
}

// ExportOutcome reports whether the export sink ran and its error.
func (s *Session) ExportOutcome() (bool, error) {
	return s.exported, s.exportErr
}

// Status snapshots the session.
func (s *Session) Status() Status {
	st := Status{
		Phase:     s.phase,
		PhaseName: s.phase.String(),
		Tick:      s.log.Len(),
		MaxTicks:  s.maxTicks,
		State:     s.state,
		Exported:  s.exported,
		Inputs:    s.inputs.Snapshot(),
	}
	if last, ok := s.log.Last(); ok {
		st.Last = &last
	}
	if s.exportErr != nil {
		st.ExportErr = s.exportErr.Error()
	}
	return st
}

// clearSinks drops display state held by sinks that support it. Clear is
// idempotent, so a value serving as both chart and status is cleared twice.
func (s *Session) clearSinks() {
	for _, sink := range []any{s.sinks.Chart, s.sinks.Status} {
		if c, ok := sink.(Clearer); ok {
			c.Clear()
		}
	}
}
