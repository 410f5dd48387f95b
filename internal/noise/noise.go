// Package noise provides the pseudo-random draws used for stochastic shocks
// and performance noise.
package noise

import (
	"math"
	"math/rand/v2"
	"time"
)

// Source produces uniform and approximately normal draws.
type Source interface {
	// Uniform returns a value in [0,1).
	Uniform() float64

	// Normal returns a draw from N(mu, sigma^2).
	Normal(mu, sigma float64) float64
}

// Uniform is the minimal capability a Box-Muller generator needs.
type Uniform interface {
	Float64() float64
}

// BoxMuller derives normal draws from a uniform generator.
type BoxMuller struct {
	u Uniform
}

// New returns a PCG-backed source. A zero seed means unseeded: the stream
// is derived from the wall clock and runs are not reproducible.
func New(seed uint64) *BoxMuller {
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return FromUniform(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// FromUniform wraps an arbitrary uniform generator.
func FromUniform(u Uniform) *BoxMuller {
	return &BoxMuller{u: u}
}

// Uniform returns a value in [0,1).
func (b *BoxMuller) Uniform() float64 {
	return b.u.Float64()
}

// Normal returns mu + sigma*Z using the Box-Muller transform. A zero sigma
// short-circuits to mu without consuming any draws.
func (b *BoxMuller) Normal(mu, sigma float64) float64 {
	if sigma == 0 {
		return mu
	}
	u := b.nonZero()
	v := b.nonZero()
	return sigma*math.Sqrt(-2*math.Log(u))*math.Cos(2*math.Pi*v) + mu
}

// nonZero resamples until the draw is not exactly 0, keeping log(u) finite.
func (b *BoxMuller) nonZero() float64 {
	for {
		if x := b.u.Float64(); x != 0 {
			return x
		}
	}
}
