package move

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
	"github.com/gyaneshwarpardhi/phylomc/internal/tree"
)

// Tree proposals mutate the tree in place. The tree fires change events for
// every node they touch, so the likelihood recomputes only the affected
// paths; the move then touches the tree node without touchAll.

func treeNodeOf(node dag.Node, kind string) (dag.TypedNode[*tree.Tree], error) {
	n, ok := node.(dag.TypedNode[*tree.Tree])
	if !ok {
		return nil, fmt.Errorf("%w: %s on %q", ErrWrongNodeType, kind, node.Name())
	}
	return n, nil
}

// ----------------------------------------------------------------------------
// BranchLengthScale
// ----------------------------------------------------------------------------

// BranchLengthScale scales the length of one uniformly chosen branch.
type BranchLengthScale struct {
	node   dag.TypedNode[*tree.Tree]
	lambda float64

	changed *tree.TopologyNode
	stored  float64
}

// NewBranchLengthScale creates the proposal with tuning parameter lambda.
func NewBranchLengthScale(node dag.Node, lambda float64) (*BranchLengthScale, error) {
	n, err := treeNodeOf(node, "branch length scale")
	if err != nil {
		return nil, err
	}
	if !(lambda > 0) {
		return nil, fmt.Errorf("%w: lambda %g", ErrBadParameter, lambda)
	}
	return &BranchLengthScale{node: n, lambda: lambda}, nil
}

func (p *BranchLengthScale) Name() string      { return "branch_length_scale(" + p.node.Name() + ")" }
func (p *BranchLengthScale) Nodes() []dag.Node { return []dag.Node{p.node} }

func (p *BranchLengthScale) DoProposal(rng *rand.Rand) float64 {
	t := p.node.Value()
	// the root is last and has no branch
	n := t.Nodes()[rng.IntN(t.NumberOfNodes()-1)]
	p.changed, p.stored = n, n.BranchLength()
	ln := p.lambda * (rng.Float64() - 0.5)
	n.SetBranchLength(p.stored * math.Exp(ln))
	return ln
}

func (p *BranchLengthScale) Undo() {
	if p.changed != nil {
		p.changed.SetBranchLength(p.stored)
	}
	p.changed = nil
}

func (p *BranchLengthScale) Clean() { p.changed = nil }

func (p *BranchLengthScale) Tunable() bool            { return true }
func (p *BranchLengthScale) TuningParameter() float64 { return p.lambda }
func (p *BranchLengthScale) SetTuningParameter(v float64) {
	p.lambda = math.Min(math.Max(v, minWidth), maxScaleLambda)
}

func (p *BranchLengthScale) SwapNode(oldN, newN dag.Node) error {
	if dag.Node(p.node) != oldN {
		return nil
	}
	n, err := treeNodeOf(newN, "branch length scale")
	if err != nil {
		return err
	}
	p.node, p.changed = n, nil
	return nil
}

func (p *BranchLengthScale) Clone() Proposal {
	c := *p
	c.changed = nil
	return &c
}

// ----------------------------------------------------------------------------
// NNI
// ----------------------------------------------------------------------------

// NNI performs a nearest-neighbour interchange across a uniformly chosen
// internal edge: one child of the edge's lower node trades places with a
// sibling of that node. The proposal is symmetric.
type NNI struct {
	node dag.TypedNode[*tree.Tree]

	a, b *tree.TopologyNode
}

// NewNNI creates the proposal.
func NewNNI(node dag.Node) (*NNI, error) {
	n, err := treeNodeOf(node, "nni")
	if err != nil {
		return nil, err
	}
	return &NNI{node: n}, nil
}

func (p *NNI) Name() string      { return "nni(" + p.node.Name() + ")" }
func (p *NNI) Nodes() []dag.Node { return []dag.Node{p.node} }

// DoProposal returns -Inf when the tree has no internal edge.
func (p *NNI) DoProposal(rng *rand.Rand) float64 {
	t := p.node.Value()
	var edges []*tree.TopologyNode
	for _, n := range t.Nodes() {
		if n.IsInternal() && !n.IsRoot() {
			edges = append(edges, n)
		}
	}
	if len(edges) == 0 {
		return math.Inf(-1)
	}
	v := edges[rng.IntN(len(edges))]
	parent := v.Parent()
	siblings := make([]*tree.TopologyNode, 0, parent.NumChildren()-1)
	for _, c := range parent.Children() {
		if c != v {
			siblings = append(siblings, c)
		}
	}
	a := v.Child(rng.IntN(v.NumChildren()))
	b := siblings[rng.IntN(len(siblings))]
	if err := t.SwapSubtrees(a, b); err != nil {
		// a lies below v and b beside it, so neither contains the other
		panic(err)
	}
	p.a, p.b = a, b
	return 0
}

func (p *NNI) Undo() {
	if p.a != nil {
		if err := p.node.Value().SwapSubtrees(p.a, p.b); err != nil {
			panic(err)
		}
	}
	p.a, p.b = nil, nil
}

func (p *NNI) Clean() { p.a, p.b = nil, nil }

func (p *NNI) Tunable() bool              { return false }
func (p *NNI) TuningParameter() float64   { return 0 }
func (p *NNI) SetTuningParameter(float64) {}

func (p *NNI) SwapNode(oldN, newN dag.Node) error {
	if dag.Node(p.node) != oldN {
		return nil
	}
	n, err := treeNodeOf(newN, "nni")
	if err != nil {
		return err
	}
	p.node = n
	p.a, p.b = nil, nil
	return nil
}

func (p *NNI) Clone() Proposal { return &NNI{node: p.node} }
