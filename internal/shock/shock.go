// Package shock decides, per tick, whether an environmental shock hits and
// how large it is before slack attenuation.
package shock

import (
	"fmt"
	"sort"

	"github.com/nvandessel/orgsim/internal/models"
	"github.com/nvandessel/orgsim/internal/noise"
)

// Shock is the outcome of a policy decision for one tick.
type Shock struct {
	Fired     bool
	Magnitude float64 // base magnitude, not yet attenuated by slack
}

// Policy decides whether a shock fires at a tick.
type Policy interface {
	Decide(tick int, in models.ControlInputs, src noise.Source) Shock
	Name() string
}

// None never fires.
type None struct{}

// Decide always reports no shock.
func (None) Decide(int, models.ControlInputs, noise.Source) Shock { return Shock{} }

// Name returns "none".
func (None) Name() string { return "none" }

// Scheduled fires at fixed ticks with fixed magnitudes.
type Scheduled struct {
	at map[int]float64
}

// NewScheduled builds a schedule from a tick->magnitude mapping.
// Ticks must be positive.
func NewScheduled(at map[int]float64) (*Scheduled, error) {
	copied := make(map[int]float64, len(at))
	for tick, mag := range at {
		if tick < 1 {
			return nil, fmt.Errorf("shock tick must be positive, got %d", tick)
		}
		copied[tick] = mag
	}
	return &Scheduled{at: copied}, nil
}

// FromLists zips parallel tick and magnitude slices into a Scheduled policy.
func FromLists(ticks []int, magnitudes []float64) (*Scheduled, error) {
	if len(ticks) != len(magnitudes) {
		return nil, fmt.Errorf("shock schedule has %d ticks but %d magnitudes", len(ticks), len(magnitudes))
	}
	at := make(map[int]float64, len(ticks))
	for i, tick := range ticks {
		if _, dup := at[tick]; dup {
			return nil, fmt.Errorf("shock tick %d listed twice", tick)
		}
		at[tick] = magnitudes[i]
	}
	return NewScheduled(at)
}

// Decide fires iff tick is scheduled.
func (s *Scheduled) Decide(tick int, _ models.ControlInputs, _ noise.Source) Shock {
	mag, ok := s.at[tick]
	if !ok {
		return Shock{}
	}
	return Shock{Fired: true, Magnitude: mag}
}

// Name returns "scheduled".
func (s *Scheduled) Name() string { return "scheduled" }

// Ticks returns the scheduled ticks in ascending order.
func (s *Scheduled) Ticks() []int {
	ticks := make([]int, 0, len(s.at))
	for tick := range s.at {
		ticks = append(ticks, tick)
	}
	sort.Ints(ticks)
	return ticks
}

// Probabilistic runs a Bernoulli trial every tick.
type Probabilistic struct {
	// BaseProbability is the per-tick firing probability at zero slack.
	BaseProbability float64 `json:"base_probability" yaml:"base_probability"`

	// SlackSensitivity reduces the probability linearly with slack.
	SlackSensitivity float64 `json:"slack_sensitivity" yaml:"slack_sensitivity"`

	// Range coefficients give the maximum magnitude for the current
	// modularity and diversification.
	RangeBase            float64 `json:"range_base" yaml:"range_base"`
	RangeModularity      float64 `json:"range_modularity" yaml:"range_modularity"`
	RangeDiversification float64 `json:"range_diversification" yaml:"range_diversification"`
}

// Probability returns the firing probability for the given inputs.
func (p *Probabilistic) Probability(in models.ControlInputs) float64 {
	return p.BaseProbability * (1 - p.SlackSensitivity*in.Slack)
}

// EffectiveRange returns the upper bound of the magnitude draw.
func (p *Probabilistic) EffectiveRange(in models.ControlInputs) float64 {
	return p.RangeBase + p.RangeModularity*in.Modularity + p.RangeDiversification*in.Diversification
}

// Decide draws u and fires iff u < Probability. The magnitude draw only
// happens when the shock fires.
func (p *Probabilistic) Decide(_ int, in models.ControlInputs, src noise.Source) Shock {
	if src.Uniform() >= p.Probability(in) {
		return Shock{}
	}
	return Shock{Fired: true, Magnitude: src.Uniform() * p.EffectiveRange(in)}
}

// Name returns "probabilistic".
func (p *Probabilistic) Name() string { return "probabilistic" }
