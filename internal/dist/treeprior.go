package dist

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
	"github.com/gyaneshwarpardhi/phylomc/internal/taxa"
	"github.com/gyaneshwarpardhi/phylomc/internal/tree"
)

// UnrootedTreePrior puts equal mass on every unrooted binary topology over a
// fixed taxon set and independent exponential densities on branch lengths.
type UnrootedTreePrior struct {
	names    []string
	rate     dag.TypedNode[float64]
	registry *taxa.Registry
	lnTopo   float64
}

// NewUnrootedTreePrior creates the prior. Trees drawn by Redraw index their
// tips through registry when it is non-nil.
func NewUnrootedTreePrior(names []string, rate dag.TypedNode[float64], registry *taxa.Registry) (*UnrootedTreePrior, error) {
	if len(names) < 3 {
		return nil, fmt.Errorf("%w: got %d", ErrTooFewTaxa, len(names))
	}
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for i := 1; i < len(sorted); i++ {
		if sorted[i] == sorted[i-1] {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateTaxon, sorted[i])
		}
	}
	return &UnrootedTreePrior{
		names:    append([]string(nil), names...),
		rate:     rate,
		registry: registry,
		lnTopo:   -lnNumUnrootedTopologies(len(names)),
	}, nil
}

// lnNumUnrootedTopologies returns ln((2n-5)!!).
func lnNumUnrootedTopologies(n int) float64 {
	lp := 0.0
	for k := 3; k <= 2*n-5; k += 2 {
		lp += math.Log(float64(k))
	}
	return lp
}

func (d *UnrootedTreePrior) LnProbability(t *tree.Tree) float64 {
	if t == nil || t.IsRooted() || !sameTaxa(t.TipNames(), d.names) {
		return math.Inf(-1)
	}
	rate := d.rate.Value()
	lp := d.lnTopo
	for _, n := range t.Nodes() {
		if n.IsRoot() {
			continue
		}
		if n.NumChildren() == 1 || n.NumChildren() > 2 {
			return math.Inf(-1)
		}
		bl := n.BranchLength()
		if bl < 0 {
			return math.Inf(-1)
		}
		lp += math.Log(rate) - rate*bl
	}
	return lp
}

// Redraw builds a topology by stepwise addition: each new taxon is attached
// to a uniformly chosen edge of the current tree, which draws every unrooted
// topology with equal probability.
func (d *UnrootedTreePrior) Redraw(rng *rand.Rand) *tree.Tree {
	exp := NewExponential(d.rate)
	order := append([]string(nil), d.names...)
	rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })

	root := tree.NewNode("", 0)
	var edges []*tree.TopologyNode
	for _, name := range order[:3] {
		tip := tree.NewNode(name, exp.Redraw(rng))
		root.AddChild(tip)
		edges = append(edges, tip)
	}
	for _, name := range order[3:] {
		below := edges[rng.IntN(len(edges))]
		parent := below.Parent()
		if err := parent.RemoveChild(below); err != nil {
			panic(err) // below was taken from parent's children
		}
		mid := tree.NewNode("", exp.Redraw(rng))
		parent.AddChild(mid)
		mid.AddChild(below)
		tip := tree.NewNode(name, exp.Redraw(rng))
		mid.AddChild(tip)
		edges = append(edges, mid, tip)
	}

	t, err := tree.FromRoot(root, d.registry)
	if err != nil {
		panic(fmt.Sprintf("dist: random tree rejected: %v", err))
	}
	return t
}

func (d *UnrootedTreePrior) Parameters() []dag.Node { return []dag.Node{d.rate} }

func (d *UnrootedTreePrior) SwapParameter(oldP, newP dag.Node) {
	swapFloat(&d.rate, oldP, newP)
}

func (d *UnrootedTreePrior) Clone() dag.Distribution[*tree.Tree] {
	c := *d
	return &c
}

func sameTaxa(got, want []string) bool {
	if len(got) != len(want) {
		return false
	}
	seen := make(map[string]bool, len(want))
	for _, n := range want {
		seen[n] = true
	}
	for _, n := range got {
		if !seen[n] {
			return false
		}
		delete(seen, n)
	}
	return true
}
