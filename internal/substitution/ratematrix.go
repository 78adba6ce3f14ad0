// Package substitution provides continuous-time Markov rate generators and
// their transition probability matrices.
package substitution

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

var (
	ErrBadFrequencies = errors.New("substitution: frequencies must be positive and sum to 1")
	ErrBadRates       = errors.New("substitution: exchangeabilities must be non-negative and not all zero")
	ErrDimension      = errors.New("substitution: dimension mismatch")
	ErrBadShape       = errors.New("substitution: gamma shape must be positive")
)

// frequencyTolerance bounds |Σπ - 1|.
const frequencyTolerance = 1e-6

// RateGenerator is the CTMC contract the likelihood engine consumes.
// Rates are normalized to one expected substitution per unit time.
type RateGenerator interface {
	NumStates() int
	StationaryFrequencies() []float64
	// TransitionProbabilities fills dst with P(t) for branch length t.
	TransitionProbabilities(dst *TransitionMatrix, t float64)
}

// TransitionMatrix is a row-major n×n matrix; row i holds P(i→·).
type TransitionMatrix struct {
	n    int
	data []float64
}

// NewTransitionMatrix allocates an n×n zero matrix.
func NewTransitionMatrix(n int) *TransitionMatrix {
	return &TransitionMatrix{n: n, data: make([]float64, n*n)}
}

func (m *TransitionMatrix) Size() int              { return m.n }
func (m *TransitionMatrix) At(i, j int) float64    { return m.data[i*m.n+j] }
func (m *TransitionMatrix) Set(i, j int, v float64) { m.data[i*m.n+j] = v }

// Row returns a view of row i.
func (m *TransitionMatrix) Row(i int) []float64 { return m.data[i*m.n : (i+1)*m.n] }

// JukesCantor is the equal-rates model on n states (Mk for morphology).
type JukesCantor struct {
	n     int
	freqs []float64
}

// NewJukesCantor returns the n-state equal-rates generator.
func NewJukesCantor(n int) *JukesCantor {
	f := make([]float64, n)
	for i := range f {
		f[i] = 1 / float64(n)
	}
	return &JukesCantor{n: n, freqs: f}
}

func (m *JukesCantor) NumStates() int                   { return m.n }
func (m *JukesCantor) StationaryFrequencies() []float64 { return m.freqs }

func (m *JukesCantor) TransitionProbabilities(dst *TransitionMatrix, t float64) {
	n := float64(m.n)
	e := math.Exp(-n / (n - 1) * t)
	same := 1/n + (n-1)/n*e
	diff := 1/n - e/n
	for i := 0; i < m.n; i++ {
		row := dst.Row(i)
		for j := range row {
			row[j] = diff
		}
		row[i] = same
	}
}

// GTR is the general time-reversible generator with Q computed once and
// P(t) = exp(Qt) evaluated per branch.
type GTR struct {
	n     int
	freqs []float64
	q     *mat.Dense
	work  *mat.Dense
}

// NewGTR builds a GTR generator from the upper-triangle exchangeabilities in
// row order (n(n-1)/2 values) and stationary frequencies.
func NewGTR(exchangeabilities, freqs []float64) (*GTR, error) {
	n := len(freqs)
	if n < 2 || len(exchangeabilities) != n*(n-1)/2 {
		return nil, fmt.Errorf("%w: %d states, %d exchangeabilities", ErrDimension, n, len(exchangeabilities))
	}
	if err := checkFrequencies(freqs); err != nil {
		return nil, err
	}
	if floats.Min(exchangeabilities) < 0 || floats.Sum(exchangeabilities) <= 0 {
		return nil, ErrBadRates
	}

	q := mat.NewDense(n, n, nil)
	k := 0
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			q.Set(i, j, exchangeabilities[k]*freqs[j])
			q.Set(j, i, exchangeabilities[k]*freqs[i])
			k++
		}
	}
	mu := 0.0
	for i := 0; i < n; i++ {
		row := q.RawRowView(i)
		out := floats.Sum(row)
		row[i] = -out
		mu += freqs[i] * out
	}
	q.Scale(1/mu, q)

	return &GTR{n: n, freqs: append([]float64(nil), freqs...), q: q, work: mat.NewDense(n, n, nil)}, nil
}

// NewHKY is GTR with transition/transversion ratio kappa on A,C,G,T.
func NewHKY(kappa float64, freqs []float64) (*GTR, error) {
	if len(freqs) != 4 {
		return nil, fmt.Errorf("%w: HKY needs 4 frequencies", ErrDimension)
	}
	return NewGTR([]float64{1, kappa, 1, 1, kappa, 1}, freqs)
}

func (m *GTR) NumStates() int                   { return m.n }
func (m *GTR) StationaryFrequencies() []float64 { return m.freqs }

// RateMatrix returns a copy of the normalized Q.
func (m *GTR) RateMatrix() *mat.Dense { return mat.DenseCopyOf(m.q) }

func (m *GTR) TransitionProbabilities(dst *TransitionMatrix, t float64) {
	var qt mat.Dense
	qt.Scale(t, m.q)
	m.work.Exp(&qt)
	for i := 0; i < m.n; i++ {
		row := dst.Row(i)
		copy(row, m.work.RawRowView(i))
		for j, v := range row {
			if v < 0 {
				row[j] = 0
			}
		}
	}
}

func checkFrequencies(freqs []float64) error {
	if floats.Min(freqs) <= 0 || math.Abs(floats.Sum(freqs)-1) > frequencyTolerance {
		return fmt.Errorf("%w: %v", ErrBadFrequencies, freqs)
	}
	return nil
}
