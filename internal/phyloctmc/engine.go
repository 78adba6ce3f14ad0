// Package phyloctmc computes the probability of aligned character data on a
// tree under a site-homogeneous continuous-time Markov chain, using
// Felsenstein's pruning algorithm with compressed site patterns, double
// buffered partial likelihoods and optional underflow rescaling.
package phyloctmc

import (
	"context"
	"log/slog"
	"math"
	"time"

	"github.com/gyaneshwarpardhi/phylomc/internal/character"
	"github.com/gyaneshwarpardhi/phylomc/internal/comm"
	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
	"github.com/gyaneshwarpardhi/phylomc/internal/metrics"
	"github.com/gyaneshwarpardhi/phylomc/internal/substitution"
	"github.com/gyaneshwarpardhi/phylomc/internal/tree"
)

const (
	defaultScalingDensity = 1
	defaultSimulatedSites = 100
)

// Option configures an Engine.
type Option func(*Engine)

// WithSiteRates adds a rate-heterogeneity vector; categories are equiprobable.
func WithSiteRates(n dag.TypedNode[[]float64]) Option { return func(e *Engine) { e.rateNode = n } }

// WithPInv adds the proportion of invariable sites.
func WithPInv(n dag.TypedNode[float64]) Option { return func(e *Engine) { e.pInvNode = n } }

// WithScaling turns rescaling on or off; when on, nodes whose index is a
// multiple of density are rescaled. Scaling is on by default.
func WithScaling(enabled bool, density int) Option {
	return func(e *Engine) {
		e.useScaling = enabled
		if density > 0 {
			e.scalingDensity = density
		}
	}
}

// WithGapPolicy folds ambiguous and/or fully unknown observations into gaps.
func WithGapPolicy(ambiguousAsGap, unknownAsGap bool) Option {
	return func(e *Engine) { e.policy = gapPolicy{ambiguousAsGap: ambiguousAsGap, unknownAsGap: unknownAsGap} }
}

// WithGroup splits site patterns into blocks across the members of g.
func WithGroup(g comm.Group) Option { return func(e *Engine) { e.group = g } }

// WithKernel replaces the kernel chosen from the alphabet size.
func WithKernel(k Kernel) Option { return func(e *Engine) { e.kernel = k } }

// WithContext sets the context used for group collectives.
func WithContext(ctx context.Context) Option { return func(e *Engine) { e.ctx = ctx } }

// WithLogger sets the logger. Defaults to slog.Default().
func WithLogger(l *slog.Logger) Option { return func(e *Engine) { e.logger = l } }

// WithSimulatedSites sets the alignment length drawn by Redraw when no data
// is attached.
func WithSimulatedSites(n int) Option { return func(e *Engine) { e.simSites = n } }

// Engine is the distribution of an alignment given a tree, a rate generator
// and optional site rates and p_inv. It listens to its tree so that only the
// path from a changed node to the root is recomputed.
type Engine struct {
	treeNode dag.TypedNode[*tree.Tree]
	genNode  dag.TypedNode[substitution.RateGenerator]
	rateNode dag.TypedNode[[]float64]
	pInvNode dag.TypedNode[float64]

	alphabet       *character.Alphabet
	kernel         Kernel
	group          comm.Group
	ctx            context.Context
	logger         *slog.Logger
	useScaling     bool
	scalingDensity int
	policy         gapPolicy
	simSites       int

	data    *character.Alignment
	pat     *patterns
	current *tree.Tree
	rebuild bool
	rebuilt bool

	lay         layout
	blockStart  int
	blockEnd    int
	partials    []float64
	scaling     []float64
	transitions [2][][]*substitution.TransitionMatrix
	tips        []TipData
	active      []int
	dirty       []bool
	changed     []bool
	patternLnL  []float64
	err         error
}

// NewEngine creates the distribution. The alphabet must have as many states
// as the rate generator.
func NewEngine(t dag.TypedNode[*tree.Tree], gen dag.TypedNode[substitution.RateGenerator], alphabet *character.Alphabet, opts ...Option) *Engine {
	e := &Engine{
		treeNode:       t,
		genNode:        gen,
		alphabet:       alphabet,
		group:          comm.Single{},
		ctx:            context.Background(),
		useScaling:     true,
		scalingDensity: defaultScalingDensity,
		simSites:       defaultSimulatedSites,
		rebuild:        true,
	}
	for _, o := range opts {
		o(e)
	}
	if e.kernel == nil {
		e.kernel = KernelFor(alphabet.NumStates())
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	return e
}

// ----------------------------------------------------------------------------
// dag.Distribution
// ----------------------------------------------------------------------------

func (e *Engine) Parameters() []dag.Node {
	ps := []dag.Node{e.treeNode, e.genNode}
	if e.rateNode != nil {
		ps = append(ps, e.rateNode)
	}
	if e.pInvNode != nil {
		ps = append(ps, e.pInvNode)
	}
	return ps
}

func (e *Engine) SwapParameter(oldP, newP dag.Node) {
	switch {
	case oldP == dag.Node(e.treeNode):
		e.treeNode = newP.(dag.TypedNode[*tree.Tree])
	case oldP == dag.Node(e.genNode):
		e.genNode = newP.(dag.TypedNode[substitution.RateGenerator])
	case e.rateNode != nil && oldP == dag.Node(e.rateNode):
		e.rateNode = newP.(dag.TypedNode[[]float64])
	case e.pInvNode != nil && oldP == dag.Node(e.pInvNode):
		e.pInvNode = newP.(dag.TypedNode[float64])
	}
}

// Clone copies the configuration and attached data. Buffers are rebuilt on
// first use against whatever tree the clone's tree node then holds.
func (e *Engine) Clone() dag.Distribution[*character.Alignment] {
	return &Engine{
		treeNode:       e.treeNode,
		genNode:        e.genNode,
		rateNode:       e.rateNode,
		pInvNode:       e.pInvNode,
		alphabet:       e.alphabet,
		kernel:         e.kernel,
		group:          e.group,
		ctx:            e.ctx,
		logger:         e.logger,
		useScaling:     e.useScaling,
		scalingDensity: e.scalingDensity,
		policy:         e.policy,
		simSites:       e.simSites,
		data:           e.data,
		rebuild:        true,
	}
}

// AttachValue validates aln against the current tree and model.
func (e *Engine) AttachValue(aln *character.Alignment) error {
	e.data = aln
	e.rebuild = true
	tr := e.treeNode.Value()
	if tr == nil {
		return ErrNoTree
	}
	gen := e.genNode.Value()
	if gen == nil {
		return ErrNoGenerator
	}
	if _, err := compress(aln, tr, gen.NumStates(), e.policy); err != nil {
		return err
	}
	return e.checkShape(tr)
}

// LnProbability runs the pruning recursion over dirty nodes and returns the
// log-likelihood of aln summed over every member's pattern block. A
// structural error yields NaN and is available from Err.
func (e *Engine) LnProbability(aln *character.Alignment) float64 {
	start := time.Now()
	if aln != e.data {
		e.data = aln
		e.rebuild = true
	}
	local, err := e.compute()
	if err != nil {
		return e.fail(err)
	}
	total, err := e.group.AllReduceSum(e.ctx, local)
	if err != nil {
		return e.fail(err)
	}
	e.err = nil
	metrics.LikelihoodDuration.Observe(float64(time.Since(start).Microseconds()))
	return total
}

// Err returns the error behind the last NaN from LnProbability.
func (e *Engine) Err() error { return e.err }

func (e *Engine) fail(err error) float64 {
	if e.err == nil {
		e.logger.Error("likelihood evaluation failed", "error", err)
	}
	e.err = err
	return math.NaN()
}

// ----------------------------------------------------------------------------
// Touch / Keep / Restore
// ----------------------------------------------------------------------------

// Touch marks partials stale. Tree moves already flagged their nodes through
// change events; p_inv only enters the root sum; anything else invalidates
// every node.
func (e *Engine) Touch(affecter dag.Node, touchAll bool) {
	switch {
	case e.pInvNode != nil && affecter == dag.Node(e.pInvNode):
	case affecter == dag.Node(e.treeNode) && !touchAll:
	default:
		e.flagAll()
	}
}

// Keep accepts the active buffers.
func (e *Engine) Keep(dag.Node) {
	for i := range e.changed {
		e.changed[i] = false
	}
	e.rebuilt = false
}

// Restore flips every buffer changed in this cycle back to the accepted one.
func (e *Engine) Restore(dag.Node) {
	if e.rebuilt {
		// buffers were reallocated; the accepted state is gone
		e.rebuilt = false
		for i := range e.dirty {
			e.dirty[i] = true
			e.changed[i] = false
		}
		return
	}
	for i := range e.changed {
		if e.changed[i] {
			e.active[i] ^= 1
			e.changed[i] = false
		}
		e.dirty[i] = false
	}
}

// FireTreeChangeEvent flags n and its ancestors dirty.
func (e *Engine) FireTreeChangeEvent(n *tree.TopologyNode, kind tree.EventKind) {
	if kind == tree.EventReindexed {
		e.rebuild = true
		return
	}
	if e.rebuild || n.Index() < 0 || n.Index() >= len(e.dirty) {
		return
	}
	e.recursivelyFlagNodeDirty(n)
}

// recursivelyFlagNodeDirty marks the path from n to the root. A node's
// buffer is flipped at most once per touch cycle.
func (e *Engine) recursivelyFlagNodeDirty(n *tree.TopologyNode) {
	for x := n; x != nil; x = x.Parent() {
		i := x.Index()
		if e.dirty[i] {
			return
		}
		e.dirty[i] = true
		if !e.changed[i] {
			e.active[i] ^= 1
			e.changed[i] = true
		}
	}
}

func (e *Engine) flagAll() {
	for i := range e.dirty {
		e.dirty[i] = true
		if !e.changed[i] {
			e.active[i] ^= 1
			e.changed[i] = true
		}
	}
}

// DirtyNodes reports, per node index, whether the partial is stale.
func (e *Engine) DirtyNodes() []bool { return append([]bool(nil), e.dirty...) }

// ActiveBuffer returns the buffer currently holding node i's partial.
func (e *Engine) ActiveBuffer(i int) int { return e.active[i] }

// NumPatterns returns the number of unique site patterns.
func (e *Engine) NumPatterns() int {
	if e.pat == nil {
		return 0
	}
	return e.pat.numPatterns()
}

// PatternCounts returns the multiplicity of each pattern.
func (e *Engine) PatternCounts() []int { return append([]int(nil), e.pat.counts...) }

// SitePatterns maps each included site to its pattern.
func (e *Engine) SitePatterns() []int { return append([]int(nil), e.pat.sitePattern...) }

// ----------------------------------------------------------------------------
// Pruning
// ----------------------------------------------------------------------------

func (e *Engine) siteRates() []float64 {
	if e.rateNode == nil {
		return []float64{1}
	}
	return e.rateNode.Value()
}

func (e *Engine) pInv() float64 {
	if e.pInvNode == nil {
		return 0
	}
	return e.pInvNode.Value()
}

func (e *Engine) dims() Dims {
	return Dims{Rates: e.lay.rates, Patterns: e.lay.patterns, States: e.lay.states}
}

// prepare subscribes to the current tree and (re)allocates buffers when the
// tree, data or rate-category count changed.
func (e *Engine) prepare() error {
	tr := e.treeNode.Value()
	if tr == nil {
		return ErrNoTree
	}
	if e.data == nil {
		return ErrNoData
	}
	if e.genNode.Value() == nil {
		return ErrNoGenerator
	}
	if tr != e.current {
		if e.current != nil {
			e.current.ChangeEvents().RemoveListener(e)
		}
		e.current = tr
		e.rebuild = true
	}
	if !tr.ChangeEvents().IsListening(e) {
		tr.ChangeEvents().AddListener(e)
		e.flagAll()
	}
	rates := e.siteRates()
	if len(rates) == 0 {
		return ErrNoRates
	}
	if e.rebuild || len(rates) != e.lay.rates {
		return e.allocate(tr, len(rates))
	}
	return nil
}

func (e *Engine) allocate(tr *tree.Tree, numRates int) error {
	if err := e.checkShape(tr); err != nil {
		return err
	}
	numStates := e.genNode.Value().NumStates()
	pat, err := compress(e.data, tr, numStates, e.policy)
	if err != nil {
		return err
	}
	e.pat = pat
	e.blockStart, e.blockEnd = comm.BlockRange(pat.numPatterns(), e.group.Rank(), e.group.Size())

	numNodes := tr.NumberOfNodes()
	e.lay = layout{nodes: numNodes, rates: numRates, patterns: e.blockEnd - e.blockStart, states: numStates}
	e.partials = make([]float64, e.lay.size())
	e.scaling = make([]float64, 2*numNodes*e.lay.patterns)
	for b := range e.transitions {
		e.transitions[b] = make([][]*substitution.TransitionMatrix, numNodes)
		for i := range e.transitions[b] {
			e.transitions[b][i] = make([]*substitution.TransitionMatrix, numRates)
			for r := range e.transitions[b][i] {
				e.transitions[b][i][r] = substitution.NewTransitionMatrix(numStates)
			}
		}
	}
	e.tips = make([]TipData, tr.NumberOfTips())
	for t := range e.tips {
		e.tips[t] = TipData{
			Masks: pat.masks[t][e.blockStart:e.blockEnd],
			Gaps:  pat.gaps[t][e.blockStart:e.blockEnd],
		}
	}
	e.active = make([]int, numNodes)
	e.dirty = make([]bool, numNodes)
	e.changed = make([]bool, numNodes)
	for i := range e.dirty {
		e.dirty[i] = true
	}
	e.patternLnL = make([]float64, e.lay.patterns)
	e.rebuild = false
	e.rebuilt = true
	e.logger.Debug("likelihood buffers allocated",
		"nodes", numNodes, "patterns", pat.numPatterns(), "block", e.lay.patterns, "rates", numRates)
	return nil
}

func (e *Engine) checkShape(tr *tree.Tree) error {
	for _, n := range tr.Nodes() {
		if n.NumChildren() > 3 || n.NumChildren() == 1 {
			return ErrPolytomy
		}
	}
	return nil
}

// compute brings every partial up to date and returns the local block's
// log-likelihood.
func (e *Engine) compute() (float64, error) {
	if err := e.prepare(); err != nil {
		return 0, err
	}
	gen := e.genNode.Value()
	e.fill(e.current.Root(), gen, e.siteRates())
	return e.sumRootLikelihood(gen), nil
}

func (e *Engine) fill(n *tree.TopologyNode, gen substitution.RateGenerator, rates []float64) {
	idx := n.Index()
	if !e.dirty[idx] {
		return
	}
	buf := e.active[idx]
	dst := e.partials[e.lay.node(buf, idx):][:e.lay.nodeSize()]
	p := e.transitions[buf][idx]
	d := e.dims()
	if !n.IsRoot() {
		e.kernel.UpdateTransitionProbabilities(p, gen, n.BranchLength(), rates)
	}

	if n.IsTip() {
		e.kernel.ComputeTipLikelihood(dst, e.tips[idx], p, d)
		clear(e.scalingOf(buf, idx))
	} else {
		children := n.Children()
		parts := make([][]float64, len(children))
		for i, c := range children {
			e.fill(c, gen, rates)
			parts[i] = e.partialOf(c.Index())
		}
		switch {
		case n.IsRoot() && len(parts) == 2:
			e.kernel.ComputeRootLikelihood(dst, parts[0], parts[1], d)
		case n.IsRoot():
			e.kernel.ComputeRootLikelihood3(dst, parts[0], parts[1], parts[2], d)
		case len(parts) == 2:
			e.kernel.ComputeInternalNodeLikelihood(dst, parts[0], parts[1], p, d)
		default:
			e.kernel.ComputeInternalNodeLikelihood3(dst, parts[0], parts[1], parts[2], p, d)
		}
		e.scale(idx, children)
	}
	e.dirty[idx] = false
	metrics.PartialsRecomputed.Inc()
}

func (e *Engine) partialOf(idx int) []float64 {
	return e.partials[e.lay.node(e.active[idx], idx):][:e.lay.nodeSize()]
}

func (e *Engine) scalingOf(buf, idx int) []float64 {
	off := (buf*e.lay.nodes + idx) * e.lay.patterns
	return e.scaling[off : off+e.lay.patterns]
}

// scale composes the children's log scaling factors and, on every
// scalingDensity-th node, divides out the per-pattern maximum.
func (e *Engine) scale(idx int, children []*tree.TopologyNode) {
	d := e.dims()
	dst := e.partialOf(idx)
	out := e.scalingOf(e.active[idx], idx)
	rescale := e.useScaling && idx%e.scalingDensity == 0
	for pat := 0; pat < d.Patterns; pat++ {
		acc := 0.0
		for _, c := range children {
			acc += e.scalingOf(e.active[c.Index()], c.Index())[pat]
		}
		if rescale {
			peak := 0.0
			for r := 0; r < d.Rates; r++ {
				for _, v := range dst[(r*d.Patterns+pat)*d.States:][:d.States] {
					peak = math.Max(peak, v)
				}
			}
			if peak > 0 {
				for r := 0; r < d.Rates; r++ {
					row := dst[(r*d.Patterns+pat)*d.States:][:d.States]
					for s := range row {
						row[s] /= peak
					}
				}
				acc += math.Log(peak)
			}
		}
		out[pat] = acc
	}
}

// sumRootLikelihood weights the root partial by the root frequencies,
// averages over rate categories and mixes in the invariant-site term.
func (e *Engine) sumRootLikelihood(gen substitution.RateGenerator) float64 {
	d := e.dims()
	root := e.current.Root().Index()
	rp := e.partialOf(root)
	sc := e.scalingOf(e.active[root], root)
	freqs := e.kernel.RootFrequencies(gen)
	pInv := e.pInv()

	total := 0.0
	for pat := 0; pat < d.Patterns; pat++ {
		g := e.blockStart + pat
		sum := 0.0
		for r := 0; r < d.Rates; r++ {
			row := rp[(r*d.Patterns+pat)*d.States:][:d.States]
			for s, f := range freqs {
				sum += f * row[s]
			}
		}
		sum /= float64(d.Rates)

		lnl := sc[pat] + math.Log((1-pInv)*sum)
		if inv := e.pat.invariant[g]; pInv > 0 && inv != 0 {
			lnl = logAdd(lnl, math.Log(pInv*maskedSum(freqs, inv)))
		}
		e.patternLnL[pat] = lnl * float64(e.pat.counts[g])
		total += e.patternLnL[pat]
	}
	return total
}

func maskedSum(freqs []float64, mask uint64) float64 {
	sum := 0.0
	for s, f := range freqs {
		if mask&(1<<uint(s)) != 0 {
			sum += f
		}
	}
	return sum
}

// logAdd returns log(exp(a) + exp(b)).
func logAdd(a, b float64) float64 {
	if a < b {
		a, b = b, a
	}
	if math.IsInf(a, -1) {
		return a
	}
	return a + math.Log1p(math.Exp(b-a))
}

// SiteLnLikelihoods returns the log-likelihood of every included site. Each
// member of the group must call it.
func (e *Engine) SiteLnLikelihoods() ([]float64, error) {
	if e.data == nil {
		return nil, ErrNoData
	}
	if _, err := e.compute(); err != nil {
		return nil, err
	}
	perPattern := make([]float64, e.pat.numPatterns())
	copy(perPattern[e.blockStart:e.blockEnd], e.patternLnL)
	if e.group.Size() > 1 {
		for i := range perPattern {
			v, err := e.group.AllReduceSum(e.ctx, perPattern[i])
			if err != nil {
				return nil, err
			}
			perPattern[i] = v
		}
	}
	out := make([]float64, len(e.pat.sitePattern))
	for site, g := range e.pat.sitePattern {
		out[site] = perPattern[g] / float64(e.pat.counts[g])
	}
	return out, nil
}
