package dag

import (
	"fmt"
	"math/rand/v2"
	"os"
	"strings"
)

// ConstantNode holds an immutable value. It has no parents, is never dirty
// and contributes nothing to the joint log-probability.
type ConstantNode[T any] struct {
	base
	value  T
	cloner func(T) T
}

// NewConstantNode creates a constant node.
func NewConstantNode[T any](name string, v T) *ConstantNode[T] {
	return &ConstantNode[T]{base: base{name: name}, value: v}
}

// WithCloner sets the deep-copy function used by CloneDAG.
func (n *ConstantNode[T]) WithCloner(fn func(T) T) *ConstantNode[T] {
	n.cloner = fn
	return n
}

func (n *ConstantNode[T]) Kind() Kind { return KindConstant }
func (n *ConstantNode[T]) Value() T   { return n.value }

// SetValue replaces the value and touches dependents.
func (n *ConstantNode[T]) SetValue(v T) {
	n.value = v
	n.Touch(n, false)
}

// SetValueFromString parses s into the node's value type.
func (n *ConstantNode[T]) SetValueFromString(s string) error {
	var v T
	switch p := any(&v).(type) {
	case *string:
		*p = strings.TrimSpace(s)
	case *float64, *int, *int64, *uint64, *bool:
		if _, err := fmt.Sscan(s, p); err != nil {
			return fmt.Errorf("constant %q: parse %q: %w", n.name, s, err)
		}
	default:
		return fmt.Errorf("constant %q: %w", n.name, ErrUnsupportedValue)
	}
	n.SetValue(v)
	return nil
}

// SetValueFromFile reads the file at path and parses its contents.
func (n *ConstantNode[T]) SetValueFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("constant %q: read %s: %w", n.name, path, err)
	}
	return n.SetValueFromString(string(data))
}

// Touch forwards the change to children; a constant keeps no state of its own.
func (n *ConstantNode[T]) Touch(_ Node, touchAll bool) {
	n.touchChildren(n, touchAll)
}

func (n *ConstantNode[T]) Keep(_ Node) {
	n.keepChildren(n)
}

func (n *ConstantNode[T]) Restore(_ Node) {
	n.restoreChildren(n)
}

func (n *ConstantNode[T]) CollectAffected(_ *NodeSet, _ Node) error {
	return fmt.Errorf("%w: %q", ErrConstantAffected, n.name)
}

func (n *ConstantNode[T]) LnProbability() float64      { return 0 }
func (n *ConstantNode[T]) LnProbabilityRatio() float64 { return 0 }
func (n *ConstantNode[T]) IsClamped() bool             { return false }
func (n *ConstantNode[T]) IsConstant() bool            { return true }

// Redraw is a no-op for constants.
func (n *ConstantNode[T]) Redraw(_ *rand.Rand) {}

func (n *ConstantNode[T]) swapParent(_, _ Node) {}

func (n *ConstantNode[T]) cloneNode() Node {
	v := n.value
	if n.cloner != nil {
		v = n.cloner(v)
	}
	return &ConstantNode[T]{base: base{name: n.name}, value: v, cloner: n.cloner}
}
