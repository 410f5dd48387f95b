// Package controls holds the current control inputs that the simulation
// loop samples once per tick. It stands in for the slider and radio-button
// panel of the dashboard and is written from HTTP and MCP handlers.
package controls

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"

	"github.com/nvandessel/orgsim/internal/constants"
	"github.com/nvandessel/orgsim/internal/models"
)

// ErrOutOfRange is returned when a control value is outside its bounds.
var ErrOutOfRange = errors.New("control value out of range")

// Bounds describes the admissible control values.
type Bounds struct {
	// ModularityLevels are the selectable modularity values.
	ModularityLevels []float64 `json:"modularity_levels" yaml:"modularity_levels"`

	// SlackMax is the inclusive upper bound of slack; the lower bound is 0.
	SlackMax float64 `json:"slack_max" yaml:"slack_max"`

	// Diversification disables the diversification control when false;
	// the value is then pinned to 0.
	Diversification bool `json:"diversification" yaml:"diversification"`
}

// DefaultBounds returns the bounds of the browser controls.
func DefaultBounds() Bounds {
	return Bounds{
		ModularityLevels: slices.Clone(constants.DefaultModularityLevels),
		SlackMax:         constants.DefaultSlackMax,
		Diversification:  false,
	}
}

// Check validates in against b.
func (b Bounds) Check(in models.ControlInputs) error {
	for name, v := range map[string]float64{
		"modularity": in.Modularity, "diversification": in.Diversification, "slack": in.Slack,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: %s is not finite", ErrOutOfRange, name)
		}
	}
	if len(b.ModularityLevels) > 0 && !slices.Contains(b.ModularityLevels, in.Modularity) {
		return fmt.Errorf("%w: modularity %v not in %v", ErrOutOfRange, in.Modularity, b.ModularityLevels)
	}
	if in.Slack < 0 || in.Slack > b.SlackMax {
		return fmt.Errorf("%w: slack %v not in [0, %v]", ErrOutOfRange, in.Slack, b.SlackMax)
	}
	if !b.Diversification && in.Diversification != 0 {
		return fmt.Errorf("%w: diversification is disabled", ErrOutOfRange)
	}
	if in.Diversification < 0 || in.Diversification > constants.DiversificationMax {
		return fmt.Errorf("%w: diversification %v not in [0, %v]", ErrOutOfRange, in.Diversification, constants.DiversificationMax)
	}
	return nil
}

// Panel is the mutable holder of the current inputs. It is safe for
// concurrent use.
type Panel struct {
	mu      sync.RWMutex
	bounds  Bounds
	current models.ControlInputs
}

// NewPanel returns a panel initialised to initial, which must be in bounds.
func NewPanel(bounds Bounds, initial models.ControlInputs) (*Panel, error) {
	if err := bounds.Check(initial); err != nil {
		return nil, fmt.Errorf("initial controls: %w", err)
	}
	return &Panel{bounds: bounds, current: initial}, nil
}

// Snapshot returns the current inputs.
func (p *Panel) Snapshot() models.ControlInputs {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.current
}

// Set replaces all inputs after validation.
func (p *Panel) Set(in models.ControlInputs) error {
	if err := p.bounds.Check(in); err != nil {
		return err
	}
	p.mu.Lock()
	p.current = in
	p.mu.Unlock()
	return nil
}

// Update applies a partial change; nil fields keep their current value.
func (p *Panel) Update(modularity, diversification, slack *float64) (models.ControlInputs, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	next := p.current
	if modularity != nil {
		next.Modularity = *modularity
	}
	if diversification != nil {
		next.Diversification = *diversification
	}
	if slack != nil {
		next.Slack = *slack
	}
	if err := p.bounds.Check(next); err != nil {
		return p.current, err
	}
	p.current = next
	return next, nil
}

// Bounds returns the panel's bounds.
func (p *Panel) Bounds() Bounds {
	return p.bounds
}
