package move

import (
	"fmt"
	"math"
	"math/rand/v2"

	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
)

const (
	maxScaleLambda = 100.0
	minWidth       = 1e-8
)

// ----------------------------------------------------------------------------
// Scale
// ----------------------------------------------------------------------------

// Scale multiplies a positive real value by exp(lambda*(u-0.5)).
type Scale struct {
	node   dag.TypedNode[float64]
	lambda float64
	stored float64
}

// NewScale creates a scale proposal with tuning parameter lambda.
func NewScale(node dag.Node, lambda float64) (*Scale, error) {
	n, ok := node.(dag.TypedNode[float64])
	if !ok {
		return nil, fmt.Errorf("%w: scale on %q", ErrWrongNodeType, node.Name())
	}
	if !(lambda > 0) {
		return nil, fmt.Errorf("%w: lambda %g", ErrBadParameter, lambda)
	}
	return &Scale{node: n, lambda: lambda}, nil
}

func (p *Scale) Name() string      { return "scale(" + p.node.Name() + ")" }
func (p *Scale) Nodes() []dag.Node { return []dag.Node{p.node} }

func (p *Scale) DoProposal(rng *rand.Rand) float64 {
	p.stored = p.node.Value()
	ln := p.lambda * (rng.Float64() - 0.5)
	p.node.SetValue(p.stored * math.Exp(ln))
	return ln
}

func (p *Scale) Undo()  { p.node.SetValue(p.stored) }
func (p *Scale) Clean() {}

func (p *Scale) Tunable() bool            { return true }
func (p *Scale) TuningParameter() float64 { return p.lambda }
func (p *Scale) SetTuningParameter(v float64) {
	p.lambda = math.Min(math.Max(v, minWidth), maxScaleLambda)
}

func (p *Scale) SwapNode(oldN, newN dag.Node) error {
	if dag.Node(p.node) != oldN {
		return nil
	}
	n, ok := newN.(dag.TypedNode[float64])
	if !ok {
		return fmt.Errorf("%w: scale on %q", ErrWrongNodeType, newN.Name())
	}
	p.node = n
	return nil
}

func (p *Scale) Clone() Proposal {
	c := *p
	return &c
}

// ----------------------------------------------------------------------------
// Slide
// ----------------------------------------------------------------------------

// Slide adds delta*(u-0.5) to a real value and reflects the result back into
// [lower, upper].
type Slide struct {
	node   dag.TypedNode[float64]
	delta  float64
	lower  float64
	upper  float64
	stored float64
}

// NewSlide creates a sliding-window proposal. Use infinite bounds for an
// unbounded value.
func NewSlide(node dag.Node, delta, lower, upper float64) (*Slide, error) {
	n, ok := node.(dag.TypedNode[float64])
	if !ok {
		return nil, fmt.Errorf("%w: slide on %q", ErrWrongNodeType, node.Name())
	}
	if !(delta > 0) || !(lower < upper) {
		return nil, fmt.Errorf("%w: delta %g bounds [%g, %g]", ErrBadParameter, delta, lower, upper)
	}
	return &Slide{node: n, delta: delta, lower: lower, upper: upper}, nil
}

func (p *Slide) Name() string      { return "slide(" + p.node.Name() + ")" }
func (p *Slide) Nodes() []dag.Node { return []dag.Node{p.node} }

func (p *Slide) DoProposal(rng *rand.Rand) float64 {
	p.stored = p.node.Value()
	p.node.SetValue(reflect(p.stored+p.delta*(rng.Float64()-0.5), p.lower, p.upper))
	return 0
}

func (p *Slide) Undo()  { p.node.SetValue(p.stored) }
func (p *Slide) Clean() {}

func (p *Slide) Tunable() bool            { return true }
func (p *Slide) TuningParameter() float64 { return p.delta }
func (p *Slide) SetTuningParameter(v float64) {
	v = math.Max(v, minWidth)
	if w := p.upper - p.lower; !math.IsInf(w, 1) {
		v = math.Min(v, 2*w)
	}
	p.delta = v
}

func (p *Slide) SwapNode(oldN, newN dag.Node) error {
	if dag.Node(p.node) != oldN {
		return nil
	}
	n, ok := newN.(dag.TypedNode[float64])
	if !ok {
		return fmt.Errorf("%w: slide on %q", ErrWrongNodeType, newN.Name())
	}
	p.node = n
	return nil
}

func (p *Slide) Clone() Proposal {
	c := *p
	return &c
}

// reflect folds x into [lower, upper] by mirroring at the bounds.
func reflect(x, lower, upper float64) float64 {
	for x < lower || x > upper {
		if x < lower {
			x = 2*lower - x
		}
		if x > upper {
			x = 2*upper - x
		}
	}
	return x
}
