package move_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/phylomc/internal/character"
	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
	"github.com/gyaneshwarpardhi/phylomc/internal/dist"
	"github.com/gyaneshwarpardhi/phylomc/internal/move"
	"github.com/gyaneshwarpardhi/phylomc/internal/phyloctmc"
	"github.com/gyaneshwarpardhi/phylomc/internal/substitution"
	"github.com/gyaneshwarpardhi/phylomc/internal/tree"
)

// countingSource counts the uniform draws taken from it.
type countingSource struct {
	rand.Source
	draws int
}

func (s *countingSource) Uint64() uint64 {
	s.draws++
	return s.Source.Uint64()
}

// fixedProposal sets its node to next and reports a fixed Hastings ratio.
type fixedProposal struct {
	node     dag.TypedNode[float64]
	next     float64
	hastings float64
	width    float64
	old      float64
	undone   int
	cleaned  int
}

func (p *fixedProposal) Name() string      { return "fixed" }
func (p *fixedProposal) Nodes() []dag.Node { return []dag.Node{p.node} }
func (p *fixedProposal) DoProposal(*rand.Rand) float64 {
	p.old = p.node.Value()
	p.node.SetValue(p.next)
	return p.hastings
}
func (p *fixedProposal) Undo()                        { p.undone++; p.node.SetValue(p.old) }
func (p *fixedProposal) Clean()                       { p.cleaned++ }
func (p *fixedProposal) Tunable() bool                { return true }
func (p *fixedProposal) TuningParameter() float64     { return p.width }
func (p *fixedProposal) SetTuningParameter(v float64) { p.width = v }
func (p *fixedProposal) SwapNode(oldN, newN dag.Node) error {
	if dag.Node(p.node) == oldN {
		p.node = newN.(dag.TypedNode[float64])
	}
	return nil
}
func (p *fixedProposal) Clone() move.Proposal { c := *p; return &c }

func exponentialNode(t *testing.T, rate, initial float64) *dag.StochasticNode[float64] {
	t.Helper()
	x := dag.NewStochasticNode[float64]("x", dist.NewExponential(dag.NewConstantNode("rate", rate)), initial)
	x.LnProbability()
	return x
}

func TestPerform_ZeroRatioAcceptsWithoutDrawing(t *testing.T) {
	x := exponentialNode(t, 1, 0.5)
	p := &fixedProposal{node: x, next: 0.5}
	m, err := move.New(p, 1)
	require.NoError(t, err)

	src := &countingSource{Source: rand.NewPCG(1, 1)}
	assert.True(t, m.Perform(rand.New(src), 1, 1))
	assert.Equal(t, 0, src.draws)
	assert.Equal(t, 1, p.cleaned)
	assert.False(t, x.IsTouched())
}

func TestPerform_HopelessRatioRejectsWithoutDrawing(t *testing.T) {
	x := exponentialNode(t, 1, 0.5)
	p := &fixedProposal{node: x, next: 0.6, hastings: -500}
	m, err := move.New(p, 1)
	require.NoError(t, err)

	src := &countingSource{Source: rand.NewPCG(1, 1)}
	assert.False(t, m.Perform(rand.New(src), 1, 1))
	assert.Equal(t, 0, src.draws)
	assert.Equal(t, 1, p.undone)
	assert.Equal(t, 0.5, x.Value())
	assert.InDelta(t, -0.5, x.LnProbability(), 1e-12)
}

func TestPerform_NonComputableRejects(t *testing.T) {
	x := exponentialNode(t, 1, 0.5)
	p := &fixedProposal{node: x, next: -1, hastings: 1000}
	m, err := move.New(p, 1)
	require.NoError(t, err)

	src := &countingSource{Source: rand.NewPCG(1, 1)}
	assert.False(t, m.Perform(rand.New(src), 1, 1))
	assert.Equal(t, 0, src.draws)
	assert.Equal(t, 0.5, x.Value())
	assert.Equal(t, uint64(1), m.Tried())
	assert.Equal(t, uint64(0), m.Accepted())
}

func TestPerform_UphillAlwaysAccepted(t *testing.T) {
	x := exponentialNode(t, 1, 2)
	p := &fixedProposal{node: x, next: 1}
	m, err := move.New(p, 1)
	require.NoError(t, err)
	assert.True(t, m.Perform(rand.New(rand.NewPCG(1, 1)), 1, 1))
	assert.Equal(t, 1.0, x.Value())
}

func TestPerform_HeatScalesRatio(t *testing.T) {
	// a drop of 0.5 in the prior, heated to zero, always accepts
	x := exponentialNode(t, 1, 1)
	p := &fixedProposal{node: x, next: 1.5}
	m, err := move.New(p, 1)
	require.NoError(t, err)
	assert.True(t, m.Perform(rand.New(rand.NewPCG(1, 1)), 1, 0))
}

func TestPerformHillClimbing(t *testing.T) {
	x := exponentialNode(t, 1, 1)
	down := &fixedProposal{node: x, next: 1.5, hastings: 100}
	m, err := move.New(down, 1)
	require.NoError(t, err)
	assert.False(t, m.PerformHillClimbing(rand.New(rand.NewPCG(1, 1)), 1, 1))
	assert.Equal(t, 1.0, x.Value())

	up := &fixedProposal{node: x, next: 0.5, hastings: -100}
	m, err = move.New(up, 1)
	require.NoError(t, err)
	assert.True(t, m.PerformHillClimbing(rand.New(rand.NewPCG(1, 1)), 1, 1))
	assert.Equal(t, 0.5, x.Value())
}

func TestTune(t *testing.T) {
	x := exponentialNode(t, 1, 1)
	p := &fixedProposal{node: x, next: 1, width: 1}
	m, err := move.New(p, 1, move.WithAutoTune(0.44))
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(1, 1))

	for i := 0; i < 10; i++ {
		require.True(t, m.Perform(rng, 1, 1))
	}
	m.Tune()
	assert.InDelta(t, 2.0, p.width, 1e-12, "all accepted doubles the width")

	p.next, p.hastings = 1, -1000
	for i := 0; i < 10; i++ {
		require.False(t, m.Perform(rng, 1, 1))
	}
	m.Tune()
	assert.InDelta(t, 1.0, p.width, 1e-12, "none accepted halves the width")

	m.Tune()
	assert.InDelta(t, 1.0, p.width, 1e-12, "no proposals since the last tune")

	fixed, err := move.New(&fixedProposal{node: x, next: 1, width: 1}, 1)
	require.NoError(t, err)
	fixed.Perform(rng, 1, 1)
	fixed.Tune()
	assert.Equal(t, 1.0, fixed.Proposal().TuningParameter())
}

func TestScaleSamplesPrior(t *testing.T) {
	x := exponentialNode(t, 2, 1)
	p, err := move.NewScale(x, 1)
	require.NoError(t, err)
	m, err := move.New(p, 1, move.WithAutoTune(0.44))
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(5, 8))

	const n = 40000
	sum := 0.0
	for i := 0; i < n; i++ {
		m.Perform(rng, 1, 1)
		if i%100 == 99 && i < n/4 {
			m.Tune()
		}
		sum += x.Value()
	}
	assert.InDelta(t, 0.5, sum/n, 0.03)
}

func TestSlideStaysInBounds(t *testing.T) {
	x := dag.NewStochasticNode[float64]("p", dist.NewUniform(dag.NewConstantNode("lo", 0.0), dag.NewConstantNode("hi", 1.0)), 0.5)
	x.LnProbability()
	p, err := move.NewSlide(x, 0.8, 0, 1)
	require.NoError(t, err)
	m, err := move.New(p, 1)
	require.NoError(t, err)
	rng := rand.New(rand.NewPCG(2, 3))

	const n = 20000
	sum := 0.0
	for i := 0; i < n; i++ {
		m.Perform(rng, 1, 1)
		v := x.Value()
		require.True(t, v >= 0 && v <= 1)
		sum += v
	}
	assert.InDelta(t, 0.5, sum/n, 0.03)
	assert.Equal(t, m.Tried(), m.Accepted(), "a flat prior with a symmetric kernel accepts everything")
}

func TestNewProposal_WrongNodeType(t *testing.T) {
	tr, err := tree.Parse("((A,B),(C,D),E);", nil)
	require.NoError(t, err)
	treeNode := dag.NewConstantNode("tree", tr)
	scalar := dag.NewConstantNode("x", 1.0)

	_, err = move.NewScale(treeNode, 1)
	assert.ErrorIs(t, err, move.ErrWrongNodeType)
	_, err = move.NewNNI(scalar)
	assert.ErrorIs(t, err, move.ErrWrongNodeType)
	_, err = move.NewScale(scalar, 0)
	assert.ErrorIs(t, err, move.ErrBadParameter)

	x := exponentialNode(t, 1, 1)
	p, err := move.NewScale(x, 1)
	require.NoError(t, err)
	_, err = move.New(p, 0)
	assert.ErrorIs(t, err, move.ErrBadWeight)
}

// ----------------------------------------------------------------------------
// Tree moves against the likelihood engine
// ----------------------------------------------------------------------------

type treeModel struct {
	tree  *dag.StochasticNode[*tree.Tree]
	seq   *dag.StochasticNode[*character.Alignment]
	model *dag.Model
	data  *character.Alignment
}

func buildTreeModel(t *testing.T) *treeModel {
	t.Helper()
	names := []string{"A", "B", "C", "D", "E", "F"}
	seqs := []string{
		"ACGTACGTAAGT",
		"ACGTACGTACGT",
		"ACTTACGAACGA",
		"GCTTACGAACGA",
		"GCGTTCGTACGG",
		"GCGTTCGTTCGG",
	}
	tr, err := tree.Parse("((A:0.1,B:0.1):0.05,(C:0.1,D:0.2):0.1,(E:0.05,F:0.1):0.1);", nil)
	require.NoError(t, err)
	prior, err := dist.NewUnrootedTreePrior(names, dag.NewConstantNode("bl_rate", 10.0), nil)
	require.NoError(t, err)
	treeNode := dag.NewStochasticNode[*tree.Tree]("tree", prior, tr).WithCloner((*tree.Tree).Clone)

	aln, err := character.NewAlignment(character.DNA(), names, seqs)
	require.NoError(t, err)
	gen := dag.NewConstantNode[substitution.RateGenerator]("q", substitution.NewJukesCantor(4))
	engine := phyloctmc.NewEngine(treeNode, gen, character.DNA())
	seq := dag.NewStochasticNode[*character.Alignment]("seq", engine, nil)
	require.NoError(t, seq.Clamp(aln))

	model, err := dag.NewModel(seq)
	require.NoError(t, err)
	model.LnProbability()
	return &treeModel{tree: treeNode, seq: seq, model: model, data: aln}
}

// freshLnL evaluates the data on a copy of tr with a new engine.
func freshLnL(t *testing.T, tr *tree.Tree, aln *character.Alignment) float64 {
	t.Helper()
	e := phyloctmc.NewEngine(dag.NewConstantNode("tree", tr.Clone()),
		dag.NewConstantNode[substitution.RateGenerator]("q", substitution.NewJukesCantor(4)), character.DNA())
	n := dag.NewStochasticNode[*character.Alignment]("seq", e, nil)
	require.NoError(t, n.Clamp(aln))
	return n.LnProbability()
}

func TestTreeMoves_IncrementalLikelihoodMatchesFresh(t *testing.T) {
	tm := buildTreeModel(t)
	bls, err := move.NewBranchLengthScale(tm.tree, 0.5)
	require.NoError(t, err)
	nni, err := move.NewNNI(tm.tree)
	require.NoError(t, err)
	m1, err := move.New(bls, 2)
	require.NoError(t, err)
	m2, err := move.New(nni, 1)
	require.NoError(t, err)
	assert.Equal(t, []dag.Node{tm.seq}, m1.Affected())

	sched, err := move.NewSchedule([]*move.Move{m1, m2})
	require.NoError(t, err)
	assert.Equal(t, 3, sched.MovesPerGeneration())

	rng := rand.New(rand.NewPCG(17, 19))
	for i := 0; i < 200; i++ {
		before := tm.tree.Value().Newick()
		accepted := sched.Next(rng).Perform(rng, 1, 1)
		if !accepted {
			require.Equal(t, before, tm.tree.Value().Newick(), "rejection restores the tree")
		}
		require.InDelta(t, freshLnL(t, tm.tree.Value(), tm.data), tm.seq.LnProbability(), 1e-8, "iteration %d", i)
	}
	assert.Greater(t, m1.Accepted(), uint64(0))
	assert.Greater(t, m2.Tried(), uint64(0))
}

func TestMoveClone_RewiresToClonedModel(t *testing.T) {
	tm := buildTreeModel(t)
	bls, err := move.NewBranchLengthScale(tm.tree, 0.5)
	require.NoError(t, err)
	m, err := move.New(bls, 1)
	require.NoError(t, err)

	clone, mapping, err := tm.model.Clone()
	require.NoError(t, err)
	cm, err := m.Clone(mapping)
	require.NoError(t, err)
	assert.Equal(t, []dag.Node{clone.Node("tree")}, cm.Proposal().Nodes())
	assert.Equal(t, []dag.Node{clone.Node("seq")}, cm.Affected())
	clone.LnProbability()

	before := tm.tree.Value().Newick()
	rng := rand.New(rand.NewPCG(4, 4))
	for i := 0; i < 20; i++ {
		cm.Perform(rng, 1, 1)
	}
	assert.Equal(t, before, tm.tree.Value().Newick())

	_, err = m.Clone(map[dag.Node]dag.Node{})
	assert.Error(t, err)
}

func TestSchedule_Proportions(t *testing.T) {
	x := exponentialNode(t, 1, 1)
	a, err := move.New(&fixedProposal{node: x, next: 1}, 3)
	require.NoError(t, err)
	b, err := move.New(&fixedProposal{node: x, next: 1}, 1)
	require.NoError(t, err)
	s, err := move.NewSchedule([]*move.Move{a, b})
	require.NoError(t, err)
	assert.Equal(t, 4, s.MovesPerGeneration())

	rng := rand.New(rand.NewPCG(9, 9))
	hits := 0
	const n = 10000
	for i := 0; i < n; i++ {
		if s.Next(rng) == a {
			hits++
		}
	}
	assert.InDelta(t, 0.75, float64(hits)/n, 0.02)

	_, err = move.NewSchedule(nil)
	assert.ErrorIs(t, err, move.ErrEmptySchedule)
}

func TestRegistry(t *testing.T) {
	r := move.DefaultRegistry()
	assert.Equal(t, []string{"branch_length_scale", "nni", "scale", "slide"}, r.Types())
	assert.True(t, r.Has("nni"))

	x := exponentialNode(t, 1, 1)
	p, err := r.Build("scale", x, move.Params{"lambda": 0.3})
	require.NoError(t, err)
	assert.Equal(t, 0.3, p.TuningParameter())

	_, err = r.Build("gibbs", x, nil)
	assert.ErrorIs(t, err, move.ErrUnknownProposal)

	assert.Panics(t, func() {
		r.Register("scale", func(dag.Node, move.Params) (move.Proposal, error) { return nil, nil })
	})
}
