package tree

import (
	"fmt"
	"math"

	"github.com/gyaneshwarpardhi/phylomc/internal/taxa"
)

// brokenTolerance bounds |age + branchLength - parentAge| on a valid time tree.
const brokenTolerance = 1e-6

// Tree owns a node hierarchy and the node array derived from it. Indices
// [0, numTips) are tips and [numTips, numNodes) are internal nodes with the
// root last.
type Tree struct {
	root     *TopologyNode
	nodes    []*TopologyNode
	numTips  int
	rooted   bool
	events   *ChangeEventHandler
	registry *taxa.Registry
}

// New creates an empty tree. Tip indices follow registry order when a
// registry is given.
func New(registry *taxa.Registry) *Tree {
	return &Tree{events: &ChangeEventHandler{}, registry: registry}
}

// FromRoot builds a tree over an assembled node hierarchy: the root's branch
// length is cleared, nodes are indexed with SetRoot(root, true) and ages are
// derived from branch lengths.
func FromRoot(root *TopologyNode, registry *taxa.Registry) (*Tree, error) {
	root.branchLength = 0
	t := New(registry)
	if err := t.SetRoot(root, true); err != nil {
		return nil, err
	}
	t.recomputeAges()
	return t, nil
}

func (t *Tree) Root() *TopologyNode               { return t.root }
func (t *Tree) ChangeEvents() *ChangeEventHandler { return t.events }
func (t *Tree) Taxa() *taxa.Registry              { return t.registry }
func (t *Tree) NumberOfNodes() int                { return len(t.nodes) }
func (t *Tree) NumberOfTips() int                 { return t.numTips }

// IsRooted reports whether the root is bifurcating. A trifurcating root marks
// an unrooted tree; both are traversed from the root.
func (t *Tree) IsRooted() bool { return t.rooted }

// NumberOfInteriorNodes excludes the root of a rooted tree, so that
// tips + interior + (rooted ? 1 : 0) == nodes.
func (t *Tree) NumberOfInteriorNodes() int {
	n := len(t.nodes) - t.numTips
	if t.rooted {
		return n - 1
	}
	return n
}

// Nodes returns the node array. The slice must not be modified.
func (t *Tree) Nodes() []*TopologyNode { return t.nodes }

// Node returns the node at index i.
func (t *Tree) Node(i int) (*TopologyNode, error) {
	if i < 0 || i >= len(t.nodes) {
		return nil, fmt.Errorf("%w: %d of %d", ErrIndexOutOfRange, i, len(t.nodes))
	}
	return t.nodes[i], nil
}

// Tip returns the tip named name.
func (t *Tree) Tip(name string) (*TopologyNode, error) {
	for _, n := range t.nodes[:t.numTips] {
		if n.name == name {
			return n, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTip, name)
}

// TipNames returns tip names in index order.
func (t *Tree) TipNames() []string {
	out := make([]string, t.numTips)
	for i, n := range t.nodes[:t.numTips] {
		out[i] = n.name
	}
	return out
}

// SetRoot installs root and derives the node array. With reindex the tips are
// numbered first (registry order if set, otherwise left to right) and internal
// nodes in postorder, so the root is last. Without reindex the existing
// indices are kept and validated.
func (t *Tree) SetRoot(root *TopologyNode, reindex bool) error {
	if root == nil {
		return ErrNoRoot
	}
	if nc := root.NumChildren(); nc != 2 && nc != 3 {
		return fmt.Errorf("%w: got %d", ErrBadRootDegree, nc)
	}
	root.parent = nil

	var tips, internal []*TopologyNode
	var walk func(*TopologyNode)
	walk = func(n *TopologyNode) {
		n.tree = t
		if n.IsTip() {
			tips = append(tips, n)
			return
		}
		for _, c := range n.children {
			walk(c)
		}
		internal = append(internal, n)
	}
	walk(root)

	nodes := make([]*TopologyNode, len(tips)+len(internal))
	if reindex {
		if t.registry != nil {
			for _, tip := range tips {
				if _, err := t.registry.Ensure(tip.name); err != nil {
					return err
				}
			}
			names := make([]string, len(tips))
			byName := make(map[string]*TopologyNode, len(tips))
			for i, tip := range tips {
				names[i] = tip.name
				byName[tip.name] = tip
			}
			t.registry.SortByIndex(names)
			for i, name := range names {
				tips[i] = byName[name]
			}
		}
		for i, tip := range tips {
			tip.index = i
			nodes[i] = tip
		}
		for i, n := range internal {
			n.index = len(tips) + i
			nodes[len(tips)+i] = n
		}
	} else {
		for _, n := range append(append([]*TopologyNode(nil), tips...), internal...) {
			i := n.index
			if i < 0 || i >= len(nodes) || nodes[i] != nil {
				return fmt.Errorf("%w: index %d", ErrBadIndexing, i)
			}
			if (n.IsTip() && i >= len(tips)) || (!n.IsTip() && i < len(tips)) {
				return fmt.Errorf("%w: %v", ErrBadIndexing, n)
			}
			nodes[i] = n
		}
	}

	t.root = root
	t.nodes = nodes
	t.numTips = len(tips)
	t.rooted = root.NumChildren() == 2
	t.events.Fire(root, EventReindexed)
	return nil
}

// IsBroken reports whether some node's age plus its branch length differs
// from its parent's age.
func (t *Tree) IsBroken() bool {
	for _, n := range t.nodes {
		if n.parent == nil {
			continue
		}
		if math.Abs(n.age+n.branchLength-n.parent.age) > brokenTolerance {
			return true
		}
	}
	return false
}

// TreeLength is the sum of all branch lengths.
func (t *Tree) TreeLength() float64 {
	sum := 0.0
	for _, n := range t.nodes {
		if n.parent != nil {
			sum += n.branchLength
		}
	}
	return sum
}

// Postorder returns nodes children-first.
func (t *Tree) Postorder() []*TopologyNode {
	out := make([]*TopologyNode, 0, len(t.nodes))
	var walk func(*TopologyNode)
	walk = func(n *TopologyNode) {
		for _, c := range n.children {
			walk(c)
		}
		out = append(out, n)
	}
	if t.root != nil {
		walk(t.root)
	}
	return out
}

// Preorder returns nodes parents-first.
func (t *Tree) Preorder() []*TopologyNode {
	out := make([]*TopologyNode, 0, len(t.nodes))
	var walk func(*TopologyNode)
	walk = func(n *TopologyNode) {
		out = append(out, n)
		for _, c := range n.children {
			walk(c)
		}
	}
	if t.root != nil {
		walk(t.root)
	}
	return out
}

// FireTopologyChange notifies listeners that n was moved.
func (t *Tree) FireTopologyChange(n *TopologyNode) {
	t.events.Fire(n, EventTopology)
}

// SwapSubtrees exchanges the parents of a and b, keeping each branch length
// with its subtree. Neither node may be an ancestor of the other.
func (t *Tree) SwapSubtrees(a, b *TopologyNode) error {
	if a.IsAncestorOf(b) || b.IsAncestorOf(a) {
		return ErrAncestor
	}
	pa, pb := a.parent, b.parent
	if pa == nil || pb == nil {
		return ErrNoRoot
	}
	if pa == pb {
		return nil
	}
	ia, ib := childPosition(pa, a), childPosition(pb, b)
	pa.children[ia] = b
	pb.children[ib] = a
	a.parent, b.parent = pb, pa
	t.FireTopologyChange(a)
	t.FireTopologyChange(b)
	return nil
}

func childPosition(p, c *TopologyNode) int {
	for i, x := range p.children {
		if x == c {
			return i
		}
	}
	return -1
}

// Clone deep-copies the topology, indices and lengths. Listeners are not copied.
func (t *Tree) Clone() *Tree {
	c := New(t.registry)
	if t.root == nil {
		return c
	}
	root := t.root.clone()
	// indices are copied verbatim, so no reindexing is needed
	_ = c.SetRoot(root, false)
	return c
}

// recomputeAges derives ages from branch lengths, putting the deepest tip at 0.
func (t *Tree) recomputeAges() {
	depth := make(map[*TopologyNode]float64, len(t.nodes))
	height := 0.0
	for _, n := range t.Preorder() {
		if n.parent != nil {
			depth[n] = depth[n.parent] + n.branchLength
		}
		if depth[n] > height {
			height = depth[n]
		}
	}
	for _, n := range t.nodes {
		n.age = height - depth[n]
	}
}
