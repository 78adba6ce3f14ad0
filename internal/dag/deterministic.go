package dag

import (
	"math/rand/v2"
)

// DeterministicNode recomputes its value from its parents. The value is
// updated lazily on the first Value call after a Touch.
type DeterministicNode[T any] struct {
	base
	fn          Function[T]
	value       T
	stored      T
	needsUpdate bool
}

// NewDeterministicNode creates a deterministic node linked under fn's parameters.
func NewDeterministicNode[T any](name string, fn Function[T]) *DeterministicNode[T] {
	n := &DeterministicNode[T]{base: base{name: name}, fn: fn, needsUpdate: true}
	n.link(n, fn.Parameters())
	return n
}

func (n *DeterministicNode[T]) Kind() Kind            { return KindDeterministic }
func (n *DeterministicNode[T]) Function() Function[T] { return n.fn }

func (n *DeterministicNode[T]) Value() T {
	if n.needsUpdate {
		n.value = n.fn.Update()
		n.needsUpdate = false
	}
	return n.value
}

// SetValue is ignored: a deterministic value is defined by its parents.
func (n *DeterministicNode[T]) SetValue(_ T) {}

func (n *DeterministicNode[T]) Touch(toucher Node, touchAll bool) {
	if !n.touched {
		n.stored = n.Value()
		n.touched = true
	}
	n.needsUpdate = true
	if t, ok := n.fn.(Touchable); ok {
		t.Touch(toucher, touchAll)
	}
	n.touchChildren(n, touchAll)
}

func (n *DeterministicNode[T]) Keep(affecter Node) {
	if n.touched {
		n.touched = false
		if t, ok := n.fn.(Touchable); ok {
			t.Keep(affecter)
		}
	}
	n.keepChildren(n)
}

func (n *DeterministicNode[T]) Restore(affecter Node) {
	if n.touched {
		n.value = n.stored
		n.needsUpdate = false
		n.touched = false
		if t, ok := n.fn.(Touchable); ok {
			t.Restore(affecter)
		}
	}
	n.restoreChildren(n)
}

func (n *DeterministicNode[T]) CollectAffected(affected *NodeSet, _ Node) error {
	return n.collectChildren(affected, n)
}

func (n *DeterministicNode[T]) LnProbability() float64      { return 0 }
func (n *DeterministicNode[T]) LnProbabilityRatio() float64 { return 0 }
func (n *DeterministicNode[T]) IsClamped() bool             { return false }
func (n *DeterministicNode[T]) IsConstant() bool            { return false }
func (n *DeterministicNode[T]) Redraw(_ *rand.Rand)         {}

func (n *DeterministicNode[T]) swapParent(oldP, newP Node) {
	n.replaceParent(oldP, newP)
	n.fn.SwapParameter(oldP, newP)
	n.needsUpdate = true
}

func (n *DeterministicNode[T]) cloneNode() Node {
	return &DeterministicNode[T]{
		base:        base{name: n.name, parents: append([]Node(nil), n.parents...)},
		fn:          n.fn.Clone(),
		needsUpdate: true,
	}
}
