package substitution_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/gyaneshwarpardhi/phylomc/internal/substitution"
)

func assertStochastic(t *testing.T, p *substitution.TransitionMatrix) {
	t.Helper()
	for i := 0; i < p.Size(); i++ {
		assert.InDelta(t, 1.0, floats.Sum(p.Row(i)), 1e-9, "row %d", i)
		assert.GreaterOrEqual(t, floats.Min(p.Row(i)), 0.0)
	}
}

func TestJukesCantor(t *testing.T) {
	jc := substitution.NewJukesCantor(4)
	p := substitution.NewTransitionMatrix(4)

	jc.TransitionProbabilities(p, 0)
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			want := 0.0
			if i == j {
				want = 1
			}
			assert.InDelta(t, want, p.At(i, j), 1e-12)
		}
	}

	jc.TransitionProbabilities(p, 0.1)
	assertStochastic(t, p)
	assert.Greater(t, p.At(0, 0), p.At(0, 1))

	jc.TransitionProbabilities(p, 100)
	assert.InDelta(t, 0.25, p.At(2, 1), 1e-9)
}

func TestGTR_MatchesJukesCantor(t *testing.T) {
	gtr, err := substitution.NewGTR([]float64{1, 1, 1, 1, 1, 1}, []float64{0.25, 0.25, 0.25, 0.25})
	require.NoError(t, err)
	jc := substitution.NewJukesCantor(4)

	a, b := substitution.NewTransitionMatrix(4), substitution.NewTransitionMatrix(4)
	for _, bl := range []float64{0, 0.01, 0.3, 2} {
		gtr.TransitionProbabilities(a, bl)
		jc.TransitionProbabilities(b, bl)
		for i := 0; i < 4; i++ {
			assert.InDeltaSlice(t, b.Row(i), a.Row(i), 1e-9, "t=%g row %d", bl, i)
		}
	}
}

func TestGTR_NormalizedAndReversible(t *testing.T) {
	pi := []float64{0.1, 0.2, 0.3, 0.4}
	hky, err := substitution.NewHKY(4, pi)
	require.NoError(t, err)

	q := hky.RateMatrix()
	rate := 0.0
	for i := 0; i < 4; i++ {
		rate -= pi[i] * q.At(i, i)
		for j := 0; j < 4; j++ {
			assert.InDelta(t, pi[i]*q.At(i, j), pi[j]*q.At(j, i), 1e-12)
		}
	}
	assert.InDelta(t, 1.0, rate, 1e-12)

	p := substitution.NewTransitionMatrix(4)
	hky.TransitionProbabilities(p, 0.5)
	assertStochastic(t, p)
	hky.TransitionProbabilities(p, 50)
	for i := 0; i < 4; i++ {
		assert.InDeltaSlice(t, pi, p.Row(i), 1e-6)
	}
}

func TestGTR_Errors(t *testing.T) {
	_, err := substitution.NewGTR([]float64{1, 1, 1}, []float64{0.25, 0.25, 0.25, 0.25})
	assert.ErrorIs(t, err, substitution.ErrDimension)
	_, err = substitution.NewGTR([]float64{1, 1, 1, 1, 1, 1}, []float64{0.5, 0.5, 0.5, 0.5})
	assert.ErrorIs(t, err, substitution.ErrBadFrequencies)
	_, err = substitution.NewGTR([]float64{0, 0, 0, 0, 0, 0}, []float64{0.25, 0.25, 0.25, 0.25})
	assert.ErrorIs(t, err, substitution.ErrBadRates)
}

func TestDiscretizeGamma(t *testing.T) {
	rates, err := substitution.DiscretizeGamma(0.5, 4)
	require.NoError(t, err)
	require.Len(t, rates, 4)
	assert.InDelta(t, 1.0, floats.Sum(rates)/4, 1e-12)
	for i := 1; i < len(rates); i++ {
		assert.Greater(t, rates[i], rates[i-1])
	}

	one, err := substitution.DiscretizeGamma(2, 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{1}, one)

	// a large shape leaves little rate variation
	flat, err := substitution.DiscretizeGamma(500, 4)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{1, 1, 1, 1}, flat, 0.1)

	_, err = substitution.DiscretizeGamma(0, 4)
	assert.ErrorIs(t, err, substitution.ErrBadShape)
}
