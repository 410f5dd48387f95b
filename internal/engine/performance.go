package engine

import (
	"fmt"
	"math"

	"github.com/nvandessel/orgsim/internal/models"
	"github.com/nvandessel/orgsim/internal/noise"
)

// Performance model names accepted by NewModel.
const (
	ModelQuadratic = "quadratic"
	ModelLogistic  = "logistic"
)

// PerformanceModel maps the post-tick state to a performance value.
type PerformanceModel interface {
	Performance(state models.State, in models.ControlInputs, src noise.Source) float64
	Name() string
}

// Quadratic penalizes the squared distance between O and E shifted by slack:
// Ceiling - K*(O - E - SE*slack)^2 + N(0, NoiseStd).
type Quadratic struct {
	Ceiling  float64 `json:"ceiling" yaml:"ceiling"`
	K        float64 `json:"k" yaml:"k"`
	SE       float64 `json:"se" yaml:"se"`
	NoiseStd float64 `json:"noise_std" yaml:"noise_std"`
}

// Performance computes the quadratic-penalty ROA. No clamping.
func (q Quadratic) Performance(state models.State, in models.ControlInputs, src noise.Source) float64 {
	d := state.Gap() - q.SE*in.Slack
	return q.Ceiling - q.K*d*d + src.Normal(0, q.NoiseStd)
}

// Name returns "quadratic".
func (Quadratic) Name() string { return ModelQuadratic }

// Logistic is Scale / (1 + exp(-K*(O - E))). With Scale 2, O == E gives 1.
type Logistic struct {
	Scale float64 `json:"scale" yaml:"scale"`
	K     float64 `json:"k" yaml:"k"`
}

// Performance computes the logistic ROA.
func (l Logistic) Performance(state models.State, _ models.ControlInputs, _ noise.Source) float64 {
	return l.Scale / (1 + math.Exp(-l.K*state.Gap()))
}

// Name returns "logistic".
func (Logistic) Name() string { return ModelLogistic }

// ModelParams carries the union of parameters for every model so a single
// config block can select either.
type ModelParams struct {
	Model    string  `json:"model" yaml:"model"`
	K        float64 `json:"k" yaml:"k"`
	Ceiling  float64 `json:"ceiling" yaml:"ceiling"`
	SE       float64 `json:"se" yaml:"se"`
	NoiseStd float64 `json:"noise_std" yaml:"noise_std"`
	Scale    float64 `json:"scale" yaml:"scale"`
}

// NewModel builds the performance model named by p.Model.
func NewModel(p ModelParams) (PerformanceModel, error) {
	switch p.Model {
	case ModelQuadratic, "":
		if p.NoiseStd < 0 {
			return nil, fmt.Errorf("noise_std must be non-negative, got %v", p.NoiseStd)
		}
		return Quadratic{Ceiling: p.Ceiling, K: p.K, SE: p.SE, NoiseStd: p.NoiseStd}, nil
	case ModelLogistic:
		scale := p.Scale
		if scale == 0 {
			scale = 2
		}
		return Logistic{Scale: scale, K: p.K}, nil
	default:
		return nil, fmt.Errorf("unknown performance model %q (valid: %s, %s)", p.Model, ModelQuadratic, ModelLogistic)
	}
}
