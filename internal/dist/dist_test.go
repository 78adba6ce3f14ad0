package dist_test

import (
	"math"
	"math/rand/v2"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
	"github.com/gyaneshwarpardhi/phylomc/internal/dist"
	"github.com/gyaneshwarpardhi/phylomc/internal/substitution"
	"github.com/gyaneshwarpardhi/phylomc/internal/tree"
)

func constant(name string, v float64) *dag.ConstantNode[float64] {
	return dag.NewConstantNode(name, v)
}

func TestContinuousDensities(t *testing.T) {
	exp := dist.NewExponential(constant("rate", 2))
	uni := dist.NewUniform(constant("lo", 0), constant("hi", 4))
	gam := dist.NewGamma(constant("shape", 1), constant("rate", 2))

	tests := []struct {
		name string
		d    dag.Distribution[float64]
		x    float64
		want float64
	}{
		{"exponential", exp, 0.5, math.Log(2) - 1},
		{"exponential_negative", exp, -1, math.Inf(-1)},
		{"uniform_inside", uni, 1, -math.Log(4)},
		{"uniform_outside", uni, 5, math.Inf(-1)},
		{"gamma_shape_one_is_exponential", gam, 0.5, math.Log(2) - 1},
		{"gamma_negative", gam, -0.1, math.Inf(-1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := tc.d.LnProbability(tc.x)
			if math.IsInf(tc.want, -1) {
				assert.True(t, math.IsInf(got, -1))
				return
			}
			assert.InDelta(t, tc.want, got, 1e-12)
		})
	}
}

func TestRedrawMoments(t *testing.T) {
	rng := rand.New(rand.NewPCG(3, 5))
	exp := dist.NewExponential(constant("rate", 4))
	uni := dist.NewUniform(constant("lo", 1), constant("hi", 3))
	gam := dist.NewGamma(constant("shape", 3), constant("rate", 2))

	const n = 20000
	var se, su, sg float64
	for i := 0; i < n; i++ {
		se += exp.Redraw(rng)
		u := uni.Redraw(rng)
		require.True(t, u >= 1 && u <= 3)
		su += u
		sg += gam.Redraw(rng)
	}
	assert.InDelta(t, 0.25, se/n, 0.01)
	assert.InDelta(t, 2.0, su/n, 0.02)
	assert.InDelta(t, 1.5, sg/n, 0.03)
}

func TestParameterChangesDensity(t *testing.T) {
	rate := constant("rate", 1)
	exp := dist.NewExponential(rate)
	before := exp.LnProbability(1)
	rate.SetValue(3)
	assert.InDelta(t, math.Log(3)-3, exp.LnProbability(1), 1e-12)
	assert.NotEqual(t, before, exp.LnProbability(1))

	other := constant("other", 5)
	c := exp.Clone()
	c.SwapParameter(rate, other)
	assert.Equal(t, []dag.Node{other}, c.Parameters())
	assert.Equal(t, []dag.Node{rate}, exp.Parameters())
}

func TestUnrootedTreePrior(t *testing.T) {
	names := []string{"A", "B", "C", "D", "E"}
	prior, err := dist.NewUnrootedTreePrior(names, constant("bl_rate", 10), nil)
	require.NoError(t, err)

	tr, err := tree.Parse("((A:0.1,B:0.2):0.05,(C:0.15,D:0.3):0.1,E:0.25);", nil)
	require.NoError(t, err)
	// 15 topologies on five taxa, seven branches
	want := -math.Log(15) + 7*math.Log(10) - 10*(0.1+0.2+0.05+0.15+0.3+0.1+0.25)
	assert.InDelta(t, want, prior.LnProbability(tr), 1e-12)

	rooted, err := tree.Parse("(((A,B),C),(D,E));", nil)
	require.NoError(t, err)
	assert.True(t, math.IsInf(prior.LnProbability(rooted), -1))

	wrong, err := tree.Parse("((A,B),(C,D),F);", nil)
	require.NoError(t, err)
	assert.True(t, math.IsInf(prior.LnProbability(wrong), -1))

	_, err = dist.NewUnrootedTreePrior([]string{"A", "B"}, constant("r", 1), nil)
	assert.ErrorIs(t, err, dist.ErrTooFewTaxa)
	_, err = dist.NewUnrootedTreePrior([]string{"A", "B", "A"}, constant("r", 1), nil)
	assert.ErrorIs(t, err, dist.ErrDuplicateTaxon)
}

func TestUnrootedTreePrior_RedrawIsUniformOverTopologies(t *testing.T) {
	names := []string{"A", "B", "C", "D", "E"}
	prior, err := dist.NewUnrootedTreePrior(names, constant("bl_rate", 10), nil)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(11, 13))

	const draws = 6000
	counts := make(map[string]int)
	for i := 0; i < draws; i++ {
		tr := prior.Redraw(rng)
		require.False(t, tr.IsRooted())
		require.Equal(t, 5, tr.NumberOfTips())
		require.Equal(t, 8, tr.NumberOfNodes())
		require.False(t, math.IsInf(prior.LnProbability(tr), -1))
		counts[strings.Join(tr.Bipartitions(), "|")]++
	}
	assert.Len(t, counts, 15)
	for topo, c := range counts {
		assert.InDelta(t, draws/15, c, 100, topo)
	}
}

func TestGammaRates(t *testing.T) {
	shape := constant("alpha", 0.5)
	node := dag.NewDeterministicNode[[]float64]("rates", dist.NewGammaRates(shape, 4))
	rates := node.Value()
	require.Len(t, rates, 4)
	assert.InDelta(t, 4.0, rates[0]+rates[1]+rates[2]+rates[3], 1e-12)

	shape.SetValue(-1)
	assert.Nil(t, node.Value())
}

func TestRateGeneratorFunctions(t *testing.T) {
	freqs := dag.NewConstantNode("freqs", []float64{0.25, 0.25, 0.25, 0.25})
	kappa := constant("kappa", 1)
	hky := dag.NewDeterministicNode[substitution.RateGenerator]("q", dist.NewHKY(kappa, freqs))
	require.NotNil(t, hky.Value())
	assert.Equal(t, 4, hky.Value().NumStates())

	exch := dag.NewConstantNode("exch", []float64{1, 1, 1, 1, 1, 1})
	gtr := dag.NewDeterministicNode[substitution.RateGenerator]("gtr", dist.NewGTR(exch, freqs))
	require.NotNil(t, gtr.Value())

	freqs.SetValue([]float64{0.5, 0.5, 0.5, 0.5})
	assert.Nil(t, hky.Value())
	assert.Nil(t, gtr.Value())
}
