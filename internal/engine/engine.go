// Package engine implements the Environment/Organization recurrence: shock
// application, adaptive adjustment of O toward a desired target, and the
// derived performance measure.
package engine

import (
	"fmt"
	"math"

	"github.com/nvandessel/orgsim/internal/models"
	"github.com/nvandessel/orgsim/internal/noise"
	"github.com/nvandessel/orgsim/internal/shock"
)

// Coefficients are the fixed constants of one simulation variant.
type Coefficients struct {
	// Alpha0 is the base adaptation rate.
	Alpha0 float64 `json:"alpha0" yaml:"alpha0"`

	// MA and DA scale modularity and diversification into the adaptation rate.
	MA float64 `json:"ma" yaml:"ma"`
	DA float64 `json:"da" yaml:"da"`

	// Desired* define E_desired as a linear function of E and the controls.
	DesiredEnv             float64 `json:"desired_env" yaml:"desired_env"`
	DesiredModularity      float64 `json:"desired_modularity" yaml:"desired_modularity"`
	DesiredDiversification float64 `json:"desired_diversification" yaml:"desired_diversification"`
	DesiredSlack           float64 `json:"desired_slack" yaml:"desired_slack"`
	DesiredIntercept       float64 `json:"desired_intercept" yaml:"desired_intercept"`

	// SR is the slack sensitivity of shock magnitude: shocks are scaled by
	// (1 - SR*slack). The factor is not clamped.
	SR float64 `json:"sr" yaml:"sr"`
}

// AdaptationRate returns alpha_c for the inputs.
func (c Coefficients) AdaptationRate(in models.ControlInputs) float64 {
	return c.Alpha0 + c.MA*in.Modularity + c.DA*in.Diversification
}

// DesiredOrganization returns the target O given E and the inputs.
func (c Coefficients) DesiredOrganization(env float64, in models.ControlInputs) float64 {
	return c.DesiredEnv*env +
		c.DesiredModularity*in.Modularity +
		c.DesiredDiversification*in.Diversification +
		c.DesiredSlack*in.Slack +
		c.DesiredIntercept
}

// Attenuation returns the slack factor applied to shock magnitudes.
func (c Coefficients) Attenuation(slack float64) float64 {
	return 1 - c.SR*slack
}

// Engine advances the recurrence one tick at a time.
type Engine struct {
	coeffs Coefficients
	perf   PerformanceModel
	src    noise.Source
}

// New validates the coefficients and builds an engine.
func New(coeffs Coefficients, perf PerformanceModel, src noise.Source) (*Engine, error) {
	if perf == nil {
		return nil, fmt.Errorf("performance model is required")
	}
	if src == nil {
		return nil, fmt.Errorf("noise source is required")
	}
	fields := map[string]float64{
		"alpha0": coeffs.Alpha0, "ma": coeffs.MA, "da": coeffs.DA, "sr": coeffs.SR,
		"desired_env": coeffs.DesiredEnv, "desired_modularity": coeffs.DesiredModularity,
		"desired_diversification": coeffs.DesiredDiversification,
		"desired_slack":           coeffs.DesiredSlack, "desired_intercept": coeffs.DesiredIntercept,
	}
	for name, v := range fields {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("coefficient %s must be finite, got %v", name, v)
		}
	}
	return &Engine{coeffs: coeffs, perf: perf, src: src}, nil
}

// Coefficients returns the engine's constants.
func (e *Engine) Coefficients() Coefficients {
	return e.coeffs
}

// Model returns the active performance model.
func (e *Engine) Model() PerformanceModel {
	return e.perf
}

// Advance applies one tick to state and returns the new state, the
// attenuated shock increment actually added to E, and the performance.
func (e *Engine) Advance(state models.State, in models.ControlInputs, s shock.Shock) (models.State, float64, float64) {
	var applied float64
	if s.Fired {
		applied = s.Magnitude * e.coeffs.Attenuation(in.Slack)
		state.Environment += applied
	}

	if alpha := e.coeffs.AdaptationRate(in); alpha > 0 {
		target := e.coeffs.DesiredOrganization(state.Environment, in)
		state.Organization += alpha * (target - state.Organization)
	}

	return state, applied, e.perf.Performance(state, in, e.src)
}
