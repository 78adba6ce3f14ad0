package tree

import "fmt"

// Reroot places the root on the parent of the named tip. A bifurcating root is
// first collapsed with Unroot. Parent/child relations along the path from the
// new root to the old one are reversed; each branch keeps its length and,
// when reindex is false, its index, so per-branch parameters stay attached to
// the same physical edge.
func (t *Tree) Reroot(outgroup string, reindex bool) error {
	if t.root == nil {
		return ErrNoRoot
	}
	if t.rooted {
		if err := t.Unroot(); err != nil {
			return err
		}
	}
	tip, err := t.Tip(outgroup)
	if err != nil {
		return err
	}
	newRoot := tip.parent
	if newRoot == t.root {
		return t.SetRoot(t.root, reindex)
	}

	// v[0] is the new root, v[k] the old one. lengths[i] belongs to the edge
	// (v[i], v[i+1]) and is read before anything is rewired.
	var path []*TopologyNode
	for v := newRoot; v != nil; v = v.parent {
		path = append(path, v)
	}
	k := len(path) - 1
	lengths := make([]float64, k)
	indices := make([]int, k+1)
	for i, v := range path {
		indices[i] = v.index
		if i < k {
			lengths[i] = v.branchLength
		}
	}

	for i := 0; i < k; i++ {
		child, parent := path[i], path[i+1]
		if err := parent.RemoveChild(child); err != nil {
			return err
		}
		child.AddChild(parent)
		parent.branchLength = lengths[i]
	}
	newRoot.parent = nil
	newRoot.branchLength = 0

	// The edge once owned by v[i] is now owned by v[i+1].
	for i := 0; i < k; i++ {
		path[i+1].index = indices[i]
	}
	newRoot.index = indices[k]

	if err := t.SetRoot(newRoot, reindex); err != nil {
		return err
	}
	t.recomputeAges()
	return nil
}

// Unroot collapses a bifurcating root into a trifurcation. The two root
// branches are merged into one and the tree is reindexed.
func (t *Tree) Unroot() error {
	if t.root == nil {
		return ErrNoRoot
	}
	if !t.rooted {
		return nil
	}
	root := t.root
	a, b := root.children[0], root.children[1]
	if a.IsTip() {
		a, b = b, a
	}
	if a.IsTip() {
		return fmt.Errorf("%w: cannot unroot a two-taxon tree", ErrTooFewTaxa)
	}
	merged := a.branchLength + b.branchLength
	root.children = nil
	a.parent, b.parent = nil, nil
	a.AddChild(b)
	b.branchLength = merged
	a.branchLength = 0

	if err := t.SetRoot(a, true); err != nil {
		return err
	}
	t.recomputeAges()
	return nil
}

// MakeRooted inserts a bifurcating root on the branch above the named tip,
// splitting that branch in half. The tree is reindexed.
func (t *Tree) MakeRooted(outgroup string) error {
	if t.rooted {
		return nil
	}
	if err := t.Reroot(outgroup, true); err != nil {
		return err
	}
	tip, err := t.Tip(outgroup)
	if err != nil {
		return err
	}
	old := t.root
	half := tip.branchLength / 2
	if err := old.RemoveChild(tip); err != nil {
		return err
	}
	root := NewNode("", 0)
	root.AddChild(old)
	root.AddChild(tip)
	old.branchLength = half
	tip.branchLength = half
	if err := t.SetRoot(root, true); err != nil {
		return err
	}
	t.recomputeAges()
	return nil
}
