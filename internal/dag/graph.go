package dag

import (
	"fmt"
)

// NodeSet is an insertion-ordered set of nodes. Ordered iteration keeps
// ratio sums reproducible for a fixed seed.
type NodeSet struct {
	order []Node
	index map[Node]struct{}
}

// NewNodeSet allocates an empty NodeSet.
func NewNodeSet() *NodeSet {
	return &NodeSet{index: make(map[Node]struct{})}
}

// Add inserts n if absent.
func (s *NodeSet) Add(n Node) {
	if _, ok := s.index[n]; ok {
		return
	}
	s.index[n] = struct{}{}
	s.order = append(s.order, n)
}

// Has reports membership.
func (s *NodeSet) Has(n Node) bool {
	_, ok := s.index[n]
	return ok
}

// Nodes returns the members in insertion order.
func (s *NodeSet) Nodes() []Node { return s.order }

// Len returns the number of members.
func (s *NodeSet) Len() int { return len(s.order) }

// Model holds a connected DAG. It is the unit that chains clone to run
// independent replicates.
type Model struct {
	nodes  []Node          // topological order: parents before children
	byName map[string]Node // named nodes only
}

// NewModel collects every node connected to sources (through parents and
// children) into a Model. The nodes are not copied.
func NewModel(sources ...Node) (*Model, error) {
	if len(sources) == 0 {
		return nil, ErrEmptyModel
	}
	seen := NewNodeSet()
	stack := append([]Node(nil), sources...)
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if n == nil || seen.Has(n) {
			continue
		}
		seen.Add(n)
		stack = append(stack, n.Parents()...)
		stack = append(stack, n.Children()...)
	}
	ordered, err := TopologicalOrder(seen.Nodes())
	if err != nil {
		return nil, err
	}
	m := &Model{nodes: ordered, byName: make(map[string]Node)}
	for _, n := range ordered {
		if n.Name() == "" {
			continue
		}
		if prev, ok := m.byName[n.Name()]; ok && prev != n {
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, n.Name())
		}
		m.byName[n.Name()] = n
	}
	return m, nil
}

// DagNodes returns all nodes, parents before children.
func (m *Model) DagNodes() []Node { return m.nodes }

// Node returns the node with the given name, or nil.
func (m *Model) Node(name string) Node { return m.byName[name] }

// StochasticNodes returns the stochastic nodes in topological order.
func (m *Model) StochasticNodes() []Node {
	var out []Node
	for _, n := range m.nodes {
		if n.Kind() == KindStochastic {
			out = append(out, n)
		}
	}
	return out
}

// LnProbability sums the log-probability of every node.
func (m *Model) LnProbability() float64 {
	lp := 0.0
	for _, n := range m.nodes {
		lp += n.LnProbability()
	}
	return lp
}

// Clone deep-copies the model. The returned map takes every original node to
// its copy so callers can rewire references (for example moves).
func (m *Model) Clone() (*Model, map[Node]Node, error) {
	mapping, err := CloneDAG(m.nodes)
	if err != nil {
		return nil, nil, err
	}
	out := &Model{nodes: make([]Node, len(m.nodes)), byName: make(map[string]Node, len(m.byName))}
	for i, n := range m.nodes {
		out.nodes[i] = mapping[n]
	}
	for name, n := range m.byName {
		out.byName[name] = mapping[n]
	}
	return out, mapping, nil
}

// CloneDAG deep-copies the connected subgraph reachable from nodes. Shared
// ancestors are copied once, so the copy has the same shape as the original.
func CloneDAG(nodes []Node) (map[Node]Node, error) {
	mapping := make(map[Node]Node)
	names := make(map[string]Node)
	for _, n := range nodes {
		if err := cloneInto(n, mapping, names); err != nil {
			return nil, err
		}
	}
	return mapping, nil
}

func cloneInto(n Node, mapping map[Node]Node, names map[string]Node) error {
	if _, ok := mapping[n]; ok {
		return nil
	}
	if name := n.Name(); name != "" {
		if prev, ok := names[name]; ok && prev != n {
			return fmt.Errorf("%w: %q", ErrDuplicateName, name)
		}
		names[name] = n
	}
	for _, p := range n.Parents() {
		if err := cloneInto(p, mapping, names); err != nil {
			return err
		}
	}
	// a parent's children walk may already have cloned n
	if _, ok := mapping[n]; ok {
		return nil
	}
	c := n.cloneNode()
	mapping[n] = c
	for _, p := range n.Parents() {
		cp := mapping[p]
		c.swapParent(p, cp)
		cp.addChild(c)
	}
	for _, child := range n.Children() {
		if err := cloneInto(child, mapping, names); err != nil {
			return err
		}
	}
	return nil
}

// TopologicalOrder sorts nodes so every parent precedes its children. Ties
// keep the input order.
func TopologicalOrder(nodes []Node) ([]Node, error) {
	inSet := make(map[Node]bool, len(nodes))
	for _, n := range nodes {
		inSet[n] = true
	}
	indegree := make(map[Node]int, len(nodes))
	for _, n := range nodes {
		for _, p := range n.Parents() {
			if inSet[p] {
				indegree[n]++
			}
		}
	}
	var queue, out []Node
	for _, n := range nodes {
		if indegree[n] == 0 {
			queue = append(queue, n)
		}
	}
	for len(queue) > 0 {
		n := queue[0]
		queue = queue[1:]
		out = append(out, n)
		for _, c := range n.Children() {
			if !inSet[c] {
				continue
			}
			indegree[c]--
			if indegree[c] == 0 {
				queue = append(queue, c)
			}
		}
	}
	if len(out) != len(nodes) {
		return nil, ErrCycle
	}
	return out, nil
}
