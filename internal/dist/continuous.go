// Package dist provides the prior distributions and deterministic functions
// used to assemble phylogenetic models from dag nodes.
package dist

import (
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/stat/distuv"

	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
)

// Densities are evaluated through gonum's distuv types, rebuilt from the
// current parameter values on each call. Redraws invert the CDF with a
// uniform from the caller's stream, so no distuv source is ever shared.

// ----------------------------------------------------------------------------
// Exponential
// ----------------------------------------------------------------------------

// Exponential is the exponential density with a rate parameter.
type Exponential struct {
	rate dag.TypedNode[float64]
}

// NewExponential creates an exponential distribution.
func NewExponential(rate dag.TypedNode[float64]) *Exponential {
	return &Exponential{rate: rate}
}

func (d *Exponential) density() distuv.Exponential {
	return distuv.Exponential{Rate: d.rate.Value()}
}

func (d *Exponential) LnProbability(x float64) float64 {
	if x < 0 {
		return math.Inf(-1)
	}
	return d.density().LogProb(x)
}

func (d *Exponential) Redraw(rng *rand.Rand) float64 { return d.density().Quantile(rng.Float64()) }
func (d *Exponential) Parameters() []dag.Node        { return []dag.Node{d.rate} }

func (d *Exponential) SwapParameter(oldP, newP dag.Node) {
	swapFloat(&d.rate, oldP, newP)
}

func (d *Exponential) Clone() dag.Distribution[float64] {
	c := *d
	return &c
}

// ----------------------------------------------------------------------------
// Uniform
// ----------------------------------------------------------------------------

// Uniform is the flat density on [lower, upper].
type Uniform struct {
	lower dag.TypedNode[float64]
	upper dag.TypedNode[float64]
}

// NewUniform creates a uniform distribution.
func NewUniform(lower, upper dag.TypedNode[float64]) *Uniform {
	return &Uniform{lower: lower, upper: upper}
}

func (d *Uniform) density() distuv.Uniform {
	return distuv.Uniform{Min: d.lower.Value(), Max: d.upper.Value()}
}

func (d *Uniform) LnProbability(x float64) float64 {
	u := d.density()
	if x < u.Min || x > u.Max {
		return math.Inf(-1)
	}
	return u.LogProb(x)
}

func (d *Uniform) Redraw(rng *rand.Rand) float64 { return d.density().Quantile(rng.Float64()) }
func (d *Uniform) Parameters() []dag.Node        { return []dag.Node{d.lower, d.upper} }

func (d *Uniform) SwapParameter(oldP, newP dag.Node) {
	swapFloat(&d.lower, oldP, newP)
	swapFloat(&d.upper, oldP, newP)
}

func (d *Uniform) Clone() dag.Distribution[float64] {
	c := *d
	return &c
}

// ----------------------------------------------------------------------------
// Gamma
// ----------------------------------------------------------------------------

// Gamma is the gamma density with shape and rate parameters.
type Gamma struct {
	shape dag.TypedNode[float64]
	rate  dag.TypedNode[float64]
}

// NewGamma creates a gamma distribution.
func NewGamma(shape, rate dag.TypedNode[float64]) *Gamma {
	return &Gamma{shape: shape, rate: rate}
}

func (d *Gamma) density() distuv.Gamma {
	return distuv.Gamma{Alpha: d.shape.Value(), Beta: d.rate.Value()}
}

func (d *Gamma) LnProbability(x float64) float64 {
	if x < 0 {
		return math.Inf(-1)
	}
	return d.density().LogProb(x)
}

func (d *Gamma) Redraw(rng *rand.Rand) float64 { return d.density().Quantile(rng.Float64()) }
func (d *Gamma) Parameters() []dag.Node        { return []dag.Node{d.shape, d.rate} }

func (d *Gamma) SwapParameter(oldP, newP dag.Node) {
	swapFloat(&d.shape, oldP, newP)
	swapFloat(&d.rate, oldP, newP)
}

func (d *Gamma) Clone() dag.Distribution[float64] {
	c := *d
	return &c
}

func swapFloat(slot *dag.TypedNode[float64], oldP, newP dag.Node) {
	if *slot != nil && dag.Node(*slot) == oldP {
		*slot = newP.(dag.TypedNode[float64])
	}
}
