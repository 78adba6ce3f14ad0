package dist

import (
	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
	"github.com/gyaneshwarpardhi/phylomc/internal/substitution"
)

// Functions return a nil value when their parameters are out of the model's
// domain; the likelihood then reports the state as non-computable and the
// proposal that produced it is rejected.

// GammaRates discretizes a mean-one gamma distribution into equiprobable
// site-rate categories.
type GammaRates struct {
	shape      dag.TypedNode[float64]
	categories int
}

// NewGammaRates creates the function for k categories.
func NewGammaRates(shape dag.TypedNode[float64], k int) *GammaRates {
	return &GammaRates{shape: shape, categories: k}
}

func (f *GammaRates) Update() []float64 {
	rates, err := substitution.DiscretizeGamma(f.shape.Value(), f.categories)
	if err != nil {
		return nil
	}
	return rates
}

func (f *GammaRates) Parameters() []dag.Node { return []dag.Node{f.shape} }

func (f *GammaRates) SwapParameter(oldP, newP dag.Node) {
	swapFloat(&f.shape, oldP, newP)
}

func (f *GammaRates) Clone() dag.Function[[]float64] {
	c := *f
	return &c
}

// HKY builds an HKY rate generator from a transition/transversion ratio and
// base frequencies.
type HKY struct {
	kappa dag.TypedNode[float64]
	freqs dag.TypedNode[[]float64]
}

// NewHKY creates the function.
func NewHKY(kappa dag.TypedNode[float64], freqs dag.TypedNode[[]float64]) *HKY {
	return &HKY{kappa: kappa, freqs: freqs}
}

func (f *HKY) Update() substitution.RateGenerator {
	m, err := substitution.NewHKY(f.kappa.Value(), f.freqs.Value())
	if err != nil {
		return nil
	}
	return m
}

func (f *HKY) Parameters() []dag.Node { return []dag.Node{f.kappa, f.freqs} }

func (f *HKY) SwapParameter(oldP, newP dag.Node) {
	swapFloat(&f.kappa, oldP, newP)
	swapVector(&f.freqs, oldP, newP)
}

func (f *HKY) Clone() dag.Function[substitution.RateGenerator] {
	c := *f
	return &c
}

// GTR builds a general time-reversible rate generator from exchangeabilities
// and stationary frequencies.
type GTR struct {
	exchangeabilities dag.TypedNode[[]float64]
	freqs             dag.TypedNode[[]float64]
}

// NewGTR creates the function.
func NewGTR(exchangeabilities, freqs dag.TypedNode[[]float64]) *GTR {
	return &GTR{exchangeabilities: exchangeabilities, freqs: freqs}
}

func (f *GTR) Update() substitution.RateGenerator {
	m, err := substitution.NewGTR(f.exchangeabilities.Value(), f.freqs.Value())
	if err != nil {
		return nil
	}
	return m
}

func (f *GTR) Parameters() []dag.Node { return []dag.Node{f.exchangeabilities, f.freqs} }

func (f *GTR) SwapParameter(oldP, newP dag.Node) {
	swapVector(&f.exchangeabilities, oldP, newP)
	swapVector(&f.freqs, oldP, newP)
}

func (f *GTR) Clone() dag.Function[substitution.RateGenerator] {
	c := *f
	return &c
}

func swapVector(slot *dag.TypedNode[[]float64], oldP, newP dag.Node) {
	if *slot != nil && dag.Node(*slot) == oldP {
		*slot = newP.(dag.TypedNode[[]float64])
	}
}
