// Package models defines the simulation state, control inputs and tick
// records shared across orgsim packages.
package models

import "fmt"

// ControlInputs is the snapshot of user-adjustable parameters read once per
// tick. Variants without a diversification control leave it at zero.
type ControlInputs struct {
	// Modularity is one of the configured modularity levels.
	Modularity float64 `json:"modularity" yaml:"modularity"`

	// Diversification is in [0,1].
	Diversification float64 `json:"diversification" yaml:"diversification"`

	// Slack is financial slack in [0, slack max].
	Slack float64 `json:"slack" yaml:"slack"`
}

// String renders the inputs for log and status lines.
func (c ControlInputs) String() string {
	return fmt.Sprintf("modularity=%.2f diversification=%.2f slack=%.2f",
		c.Modularity, c.Diversification, c.Slack)
}

// State is the pair of state variables advanced by the recurrence.
type State struct {
	// Environment (E) is the exogenous turbulence facing the organization.
	Environment float64 `json:"environment" yaml:"environment"`

	// Organization (O) is the structural configuration adapting toward E.
	Organization float64 `json:"organization" yaml:"organization"`
}

// Gap returns O - E.
func (s State) Gap() float64 {
	return s.Organization - s.Environment
}

// TickRecord is one immutable row of simulation history.
type TickRecord struct {
	Tick            int     `json:"tick"`
	Environment     float64 `json:"environment"`
	Organization    float64 `json:"organization"`
	Modularity      float64 `json:"modularity"`
	Diversification float64 `json:"diversification"`
	Slack           float64 `json:"slack"`
	Shock           float64 `json:"shock"` // attenuated increment applied to E, 0 if none
	Performance     float64 `json:"performance"`
}

// State returns the post-tick state captured in the record.
func (r TickRecord) State() State {
	return State{Environment: r.Environment, Organization: r.Organization}
}

// Inputs returns the control inputs the tick was computed with.
func (r TickRecord) Inputs() ControlInputs {
	return ControlInputs{
		Modularity:      r.Modularity,
		Diversification: r.Diversification,
		Slack:           r.Slack,
	}
}
