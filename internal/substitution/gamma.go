package substitution

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mathext"
)

// DiscretizeGamma returns k equiprobable rate categories of a mean-one gamma
// distribution with shape alpha. Each category is represented by its median,
// and the rates are rescaled to average exactly one.
func DiscretizeGamma(alpha float64, k int) ([]float64, error) {
	if alpha <= 0 {
		return nil, fmt.Errorf("%w: %g", ErrBadShape, alpha)
	}
	if k < 1 {
		return nil, fmt.Errorf("%w: %d categories", ErrDimension, k)
	}
	if k == 1 {
		return []float64{1}, nil
	}
	rates := make([]float64, k)
	for i := range rates {
		p := (2*float64(i) + 1) / (2 * float64(k))
		// Gamma(alpha, rate=alpha) quantile
		rates[i] = mathext.GammaIncRegInv(alpha, p) / alpha
	}
	floats.Scale(float64(k)/floats.Sum(rates), rates)
	return rates, nil
}
