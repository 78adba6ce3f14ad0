package dag

import (
	"fmt"
	"math/rand/v2"
)

// StochasticNode wraps a value drawn from a Distribution and contributes its
// log-probability to the model.
//
// The value snapshot taken on the first Touch (or SetValue) of a cycle is a
// shallow copy. Proposals that mutate a value in place, such as tree moves,
// must undo their own change before Restore.
type StochasticNode[T any] struct {
	base
	dist    Distribution[T]
	value   T
	stored  T
	clamped bool
	cloner  func(T) T

	lnProb       float64
	storedLnProb float64
	needsRecalc  bool
}

// NewStochasticNode creates a stochastic node with an initial value and links
// it under the distribution's parameters.
func NewStochasticNode[T any](name string, dist Distribution[T], initial T) *StochasticNode[T] {
	n := &StochasticNode[T]{
		base:        base{name: name},
		dist:        dist,
		value:       initial,
		needsRecalc: true,
	}
	n.link(n, dist.Parameters())
	return n
}

// WithCloner sets the deep-copy function used by CloneDAG.
func (n *StochasticNode[T]) WithCloner(fn func(T) T) *StochasticNode[T] {
	n.cloner = fn
	return n
}

func (n *StochasticNode[T]) Kind() Kind                    { return KindStochastic }
func (n *StochasticNode[T]) Value() T                      { return n.value }
func (n *StochasticNode[T]) Distribution() Distribution[T] { return n.dist }
func (n *StochasticNode[T]) IsClamped() bool               { return n.clamped }
func (n *StochasticNode[T]) IsConstant() bool              { return false }

// SetValue replaces the value and touches the node.
func (n *StochasticNode[T]) SetValue(v T) {
	if !n.touched {
		n.beginCycle()
	}
	n.value = v
	n.Touch(n, false)
}

// Clamp fixes the node to observed data. Distributions implementing
// ValueAttacher get a chance to validate and precompute from the data.
func (n *StochasticNode[T]) Clamp(v T) error {
	if a, ok := n.dist.(ValueAttacher[T]); ok {
		if err := a.AttachValue(v); err != nil {
			return fmt.Errorf("clamp %q: %w", n.name, err)
		}
	}
	n.value = v
	n.clamped = true
	n.needsRecalc = true
	n.Touch(n, true)
	n.Keep(n)
	return nil
}

// Unclamp releases observed data; the value is kept.
func (n *StochasticNode[T]) Unclamp() { n.clamped = false }

// LnProbability returns the cached log-density, recomputing it if dirty.
func (n *StochasticNode[T]) LnProbability() float64 {
	if n.needsRecalc {
		n.lnProb = n.dist.LnProbability(n.value)
		n.needsRecalc = false
	}
	return n.lnProb
}

// LnProbabilityRatio is the change in log-density since the last Keep.
func (n *StochasticNode[T]) LnProbabilityRatio() float64 {
	return n.LnProbability() - n.storedLnProb
}

// Redraw samples a fresh value. Clamped nodes are left alone.
func (n *StochasticNode[T]) Redraw(rng *rand.Rand) {
	if n.clamped {
		return
	}
	n.SetValue(n.dist.Redraw(rng))
}

func (n *StochasticNode[T]) beginCycle() {
	n.stored = n.value
	n.storedLnProb = n.LnProbability()
	n.touched = true
}

// Touch marks the log-probability dirty. Children are touched only when this
// node's own value changed (toucher == n); a parent change alters only n's density.
func (n *StochasticNode[T]) Touch(toucher Node, touchAll bool) {
	if !n.touched {
		n.beginCycle()
	}
	n.needsRecalc = true
	if t, ok := n.dist.(Touchable); ok {
		t.Touch(toucher, touchAll)
	}
	if toucher == Node(n) {
		n.touchChildren(n, touchAll)
	}
}

func (n *StochasticNode[T]) Keep(affecter Node) {
	if n.touched {
		n.storedLnProb = n.LnProbability()
		n.touched = false
		if t, ok := n.dist.(Touchable); ok {
			t.Keep(affecter)
		}
	}
	if affecter == Node(n) {
		n.keepChildren(n)
	}
}

func (n *StochasticNode[T]) Restore(affecter Node) {
	if n.touched {
		n.value = n.stored
		n.lnProb = n.storedLnProb
		n.needsRecalc = false
		n.touched = false
		if t, ok := n.dist.(Touchable); ok {
			t.Restore(affecter)
		}
	}
	if affecter == Node(n) {
		n.restoreChildren(n)
	}
}

// CollectAffected adds n; a stochastic node's value does not change with its
// parents, so the walk stops here.
func (n *StochasticNode[T]) CollectAffected(affected *NodeSet, _ Node) error {
	affected.Add(n)
	return nil
}

func (n *StochasticNode[T]) swapParent(oldP, newP Node) {
	n.replaceParent(oldP, newP)
	n.dist.SwapParameter(oldP, newP)
}

func (n *StochasticNode[T]) cloneNode() Node {
	v := n.value
	if n.cloner != nil {
		v = n.cloner(v)
	}
	// Distributions copy any state they derived from an attached value in Clone.
	return &StochasticNode[T]{
		base:         base{name: n.name, parents: append([]Node(nil), n.parents...)},
		dist:         n.dist.Clone(),
		value:        v,
		stored:       v,
		clamped:      n.clamped,
		cloner:       n.cloner,
		lnProb:       n.lnProb,
		storedLnProb: n.storedLnProb,
		needsRecalc:  true,
	}
}
