package dag

import (
	"math/rand/v2"
)

// Kind discriminates the three kinds of DAG nodes.
type Kind string

const (
	KindConstant      Kind = "constant"
	KindStochastic    Kind = "stochastic"
	KindDeterministic Kind = "deterministic"
)

// Node is the common interface for all DAG nodes.
//
// Touch, Keep and Restore form the three-phase commit protocol used while a
// proposal is evaluated: Touch marks the node as changed relative to the last
// accepted state, Keep commits, Restore rolls back to the state as of the last
// Keep. A second Touch before Keep/Restore is a no-op for the node's own state.
type Node interface {
	Name() string
	SetName(name string)
	Kind() Kind

	Parents() []Node
	Children() []Node

	Touch(toucher Node, touchAll bool)
	Keep(affecter Node)
	Restore(affecter Node)
	IsTouched() bool

	// CollectAffected adds every stochastic node whose probability may change
	// when affecter changes. Constant nodes return ErrConstantAffected.
	CollectAffected(affected *NodeSet, affecter Node) error

	LnProbability() float64
	LnProbabilityRatio() float64

	IsClamped() bool
	IsConstant() bool
	Redraw(rng *rand.Rand)

	addChild(c Node)
	removeChild(c Node)
	swapParent(oldP, newP Node)
	cloneNode() Node
}

// TypedNode is a node that carries a value of type T.
type TypedNode[T any] interface {
	Node
	Value() T
	SetValue(v T)
}

// Touchable is implemented by distributions and functions that keep
// per-proposal state of their own (for example double-buffered caches).
type Touchable interface {
	Touch(affecter Node, touchAll bool)
	Keep(affecter Node)
	Restore(affecter Node)
}

// Distribution is the density a stochastic node draws its value from.
type Distribution[T any] interface {
	LnProbability(value T) float64
	Redraw(rng *rand.Rand) T
	Parameters() []Node
	SwapParameter(oldP, newP Node)
	Clone() Distribution[T]
}

// ValueAttacher is implemented by distributions that precompute state from the
// observed value when a node is clamped.
type ValueAttacher[T any] interface {
	AttachValue(v T) error
}

// Function computes a deterministic node's value from its parameters.
type Function[T any] interface {
	Update() T
	Parameters() []Node
	SwapParameter(oldP, newP Node)
	Clone() Function[T]
}

// base holds the graph bookkeeping shared by every node kind.
type base struct {
	name     string
	parents  []Node
	children []Node
	touched  bool
}

func (b *base) Name() string        { return b.name }
func (b *base) SetName(name string) { b.name = name }
func (b *base) IsTouched() bool     { return b.touched }

func (b *base) Parents() []Node {
	out := make([]Node, len(b.parents))
	copy(out, b.parents)
	return out
}

func (b *base) Children() []Node {
	out := make([]Node, len(b.children))
	copy(out, b.children)
	return out
}

func (b *base) addChild(c Node) {
	for _, existing := range b.children {
		if existing == c {
			return
		}
	}
	b.children = append(b.children, c)
}

func (b *base) removeChild(c Node) {
	for i, existing := range b.children {
		if existing == c {
			b.children = append(b.children[:i], b.children[i+1:]...)
			return
		}
	}
}

func (b *base) replaceParent(oldP, newP Node) {
	for i, p := range b.parents {
		if p == oldP {
			b.parents[i] = newP
		}
	}
}

// link records parents and registers self as their child, keeping the
// parent/child relation mutually consistent.
func (b *base) link(self Node, parents []Node) {
	for _, p := range parents {
		if p == nil {
			continue
		}
		b.parents = append(b.parents, p)
		p.addChild(self)
	}
}

func (b *base) touchChildren(self Node, touchAll bool) {
	for _, c := range b.children {
		c.Touch(self, touchAll)
	}
}

func (b *base) keepChildren(self Node) {
	for _, c := range b.children {
		c.Keep(self)
	}
}

func (b *base) restoreChildren(self Node) {
	for _, c := range b.children {
		c.Restore(self)
	}
}

func (b *base) collectChildren(affected *NodeSet, self Node) error {
	for _, c := range b.children {
		if err := c.CollectAffected(affected, self); err != nil {
			return err
		}
	}
	return nil
}

// AffectedNodes returns every stochastic node whose probability changes
// when n changes, not including n itself.
func AffectedNodes(n Node) (*NodeSet, error) {
	set := NewNodeSet()
	for _, c := range n.Children() {
		if err := c.CollectAffected(set, n); err != nil {
			return nil, err
		}
	}
	return set, nil
}

// Unlink removes n from its parents' child lists. Used when discarding a node.
func Unlink(n Node) {
	for _, p := range n.Parents() {
		p.removeChild(n)
	}
}
