package config

import (
	"errors"
	"fmt"
	"slices"
	"sort"

	"github.com/nvandessel/orgsim/internal/constants"
	"github.com/nvandessel/orgsim/internal/controls"
	"github.com/nvandessel/orgsim/internal/engine"
	"github.com/nvandessel/orgsim/internal/models"
	"github.com/nvandessel/orgsim/internal/shock"
)

// ErrConflictingShocks is returned when a configuration enables both the
// scheduled and the probabilistic shock policy.
var ErrConflictingShocks = errors.New("scheduled and probabilistic shocks are mutually exclusive")

// Preset names.
const (
	PresetClassic    = "classic"
	PresetStochastic = "stochastic"
	PresetLogistic   = "logistic"
)

// ScheduledShock is one entry of a fixed shock schedule.
type ScheduledShock struct {
	Tick      int     `json:"tick" yaml:"tick"`
	Magnitude float64 `json:"magnitude" yaml:"magnitude"`
}

// ShockConfig selects the shock policy. At most one of Schedule and
// Probabilistic may be set; neither means no shocks.
type ShockConfig struct {
	Schedule      []ScheduledShock     `json:"schedule,omitempty" yaml:"schedule,omitempty"`
	Probabilistic *shock.Probabilistic `json:"probabilistic,omitempty" yaml:"probabilistic,omitempty"`
}

// Validate rejects configurations naming both policies.
func (s ShockConfig) Validate() error {
	if len(s.Schedule) > 0 && s.Probabilistic != nil {
		return ErrConflictingShocks
	}
	if p := s.Probabilistic; p != nil {
		if p.BaseProbability < 0 || p.BaseProbability > 1 {
			return fmt.Errorf("base_probability must be between 0 and 1, got %v", p.BaseProbability)
		}
		if p.RangeBase <= 0 {
			return fmt.Errorf("range_base must be positive, got %v", p.RangeBase)
		}
	}
	return nil
}

// CheckRange rejects a probabilistic policy whose magnitude range is not
// positive for every control value within b. The range is linear in
// modularity and diversification, so checking the corners is enough.
func (s ShockConfig) CheckRange(b controls.Bounds) error {
	p := s.Probabilistic
	if p == nil || len(b.ModularityLevels) == 0 {
		return nil
	}
	divs := []float64{0}
	if b.Diversification {
		divs = append(divs, constants.DiversificationMax)
	}
	for _, m := range []float64{slices.Min(b.ModularityLevels), slices.Max(b.ModularityLevels)} {
		for _, d := range divs {
			in := models.ControlInputs{Modularity: m, Diversification: d}
			if r := p.EffectiveRange(in); r <= 0 {
				return fmt.Errorf("shock range is %v at modularity %v, diversification %v; it must stay positive", r, m, d)
			}
		}
	}
	return nil
}

// Policy builds the configured shock policy.
func (s ShockConfig) Policy() (shock.Policy, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	switch {
	case s.Probabilistic != nil:
		p := *s.Probabilistic
		return &p, nil
	case len(s.Schedule) > 0:
		ticks := make([]int, len(s.Schedule))
		mags := make([]float64, len(s.Schedule))
		for i, e := range s.Schedule {
			ticks[i] = e.Tick
			mags[i] = e.Magnitude
		}
		return shock.FromLists(ticks, mags)
	default:
		return shock.None{}, nil
	}
}

// Variant is a complete set of simulation constants.
type Variant struct {
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`

	Coefficients engine.Coefficients `json:"coefficients" yaml:"coefficients"`
	Shocks       ShockConfig         `json:"shocks" yaml:"shocks"`
	Performance  engine.ModelParams  `json:"performance" yaml:"performance"`

	// Diversification enables the diversification control.
	Diversification bool `json:"diversification" yaml:"diversification"`
}

// Model builds the variant's performance model.
func (v Variant) Model() (engine.PerformanceModel, error) {
	return engine.NewModel(v.Performance)
}

func classicSchedule() []ScheduledShock {
	return []ScheduledShock{
		{Tick: 25, Magnitude: 1.5},
		{Tick: 32, Magnitude: 2.0},
		{Tick: 45, Magnitude: 1.0},
		{Tick: 60, Magnitude: 2.5},
		{Tick: 80, Magnitude: 1.8},
	}
}

// classicCoefficients: alpha_c = 0.01 + 1.475*m, E_desired = E - 1.365*m.
func classicCoefficients() engine.Coefficients {
	return engine.Coefficients{
		Alpha0:            0.01,
		MA:                1.475,
		DesiredEnv:        1,
		DesiredModularity: -1.365,
		SR:                2.259,
	}
}

var presets = map[string]func() Variant{
	PresetClassic: func() Variant {
		return Variant{
			Name:         PresetClassic,
			Description:  "Scheduled shocks, quadratic performance, no noise",
			Coefficients: classicCoefficients(),
			Shocks:       ShockConfig{Schedule: classicSchedule()},
			Performance: engine.ModelParams{
				Model: engine.ModelQuadratic, Ceiling: 1.6, K: 0.1, SE: 0.997,
			},
		}
	},
	PresetStochastic: func() Variant {
		c := classicCoefficients()
		c.DA = 0.9
		c.DesiredDiversification = -0.6
		return Variant{
			Name:         PresetStochastic,
			Description:  "Bernoulli shocks, diversification control, noisy quadratic performance",
			Coefficients: c,
			Shocks: ShockConfig{Probabilistic: &shock.Probabilistic{
				BaseProbability:      0.08,
				SlackSensitivity:     0.8,
				RangeBase:            2.5,
				RangeModularity:      -0.5,
				RangeDiversification: -1.0,
			}},
			Performance: engine.ModelParams{
				Model: engine.ModelQuadratic, Ceiling: 1.6, K: 0.1, SE: 0.997, NoiseStd: 0.05,
			},
			Diversification: true,
		}
	},
	PresetLogistic: func() Variant {
		return Variant{
			Name:         PresetLogistic,
			Description:  "Scheduled shocks, logistic performance",
			Coefficients: classicCoefficients(),
			Shocks:       ShockConfig{Schedule: classicSchedule()},
			Performance:  engine.ModelParams{Model: engine.ModelLogistic, K: 0.8, Scale: 2},
		}
	},
}

// LookupPreset returns a fresh copy of the named preset.
func LookupPreset(name string) (Variant, error) {
	build, ok := presets[name]
	if !ok {
		return Variant{}, fmt.Errorf("unknown preset %q (valid: %v)", name, PresetNames())
	}
	return build(), nil
}

// PresetNames returns the preset names in sorted order.
func PresetNames() []string {
	names := make([]string, 0, len(presets))
	for name := range presets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Presets returns every preset in name order.
func Presets() []Variant {
	names := PresetNames()
	out := make([]Variant, len(names))
	for i, name := range names {
		out[i] = presets[name]()
	}
	return out
}
