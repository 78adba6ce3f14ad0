package tree

import (
	"fmt"
)

// TopologyNode is one vertex of a Tree. The branch length belongs to the edge
// between the node and its parent.
type TopologyNode struct {
	index        int
	name         string
	age          float64
	branchLength float64
	parent       *TopologyNode
	children     []*TopologyNode
	tree         *Tree
}

// NewNode creates a detached node. Tips carry a taxon name.
func NewNode(name string, branchLength float64) *TopologyNode {
	return &TopologyNode{index: -1, name: name, branchLength: branchLength}
}

func (n *TopologyNode) Index() int                 { return n.index }
func (n *TopologyNode) Name() string               { return n.name }
func (n *TopologyNode) SetName(name string)        { n.name = name }
func (n *TopologyNode) Age() float64               { return n.age }
func (n *TopologyNode) BranchLength() float64      { return n.branchLength }
func (n *TopologyNode) Parent() *TopologyNode      { return n.parent }
func (n *TopologyNode) Children() []*TopologyNode  { return n.children }
func (n *TopologyNode) Child(i int) *TopologyNode  { return n.children[i] }
func (n *TopologyNode) NumChildren() int           { return len(n.children) }
func (n *TopologyNode) IsTip() bool                { return len(n.children) == 0 }
func (n *TopologyNode) IsRoot() bool               { return n.parent == nil }
func (n *TopologyNode) IsInternal() bool           { return len(n.children) > 0 }
func (n *TopologyNode) String() string             { return fmt.Sprintf("node(%d,%q)", n.index, n.name) }

// SetBranchLength changes the length of the edge above n and notifies listeners.
func (n *TopologyNode) SetBranchLength(bl float64) {
	n.branchLength = bl
	n.fire(EventBranch)
}

// SetAge moves a node in time. The branch above n and the branches below it
// change length, so n and its children are reported as changed.
func (n *TopologyNode) SetAge(age float64) {
	n.age = age
	if n.parent != nil {
		n.branchLength = n.parent.age - age
	}
	for _, c := range n.children {
		c.branchLength = age - c.age
	}
	n.fire(EventBranch)
	for _, c := range n.children {
		c.fire(EventBranch)
	}
}

// AddChild attaches c below n.
func (n *TopologyNode) AddChild(c *TopologyNode) {
	c.parent = n
	n.children = append(n.children, c)
}

// RemoveChild detaches c from n.
func (n *TopologyNode) RemoveChild(c *TopologyNode) error {
	for i, existing := range n.children {
		if existing == c {
			n.children = append(n.children[:i], n.children[i+1:]...)
			c.parent = nil
			return nil
		}
	}
	return fmt.Errorf("%w: %v under %v", ErrNotChild, c, n)
}

// IsAncestorOf reports whether n lies on the path from other to the root.
func (n *TopologyNode) IsAncestorOf(other *TopologyNode) bool {
	for p := other.parent; p != nil; p = p.parent {
		if p == n {
			return true
		}
	}
	return false
}

// TipNames returns the names of all tips below n (n itself if it is a tip).
func (n *TopologyNode) TipNames() []string {
	var out []string
	var walk func(*TopologyNode)
	walk = func(x *TopologyNode) {
		if x.IsTip() {
			out = append(out, x.name)
			return
		}
		for _, c := range x.children {
			walk(c)
		}
	}
	walk(n)
	return out
}

func (n *TopologyNode) fire(kind EventKind) {
	if n.tree != nil {
		n.tree.events.Fire(n, kind)
	}
}

func (n *TopologyNode) clone() *TopologyNode {
	c := &TopologyNode{index: n.index, name: n.name, age: n.age, branchLength: n.branchLength}
	for _, child := range n.children {
		c.AddChild(child.clone())
	}
	return c
}
