package phyloctmc

// layout indexes the partial-likelihood arena by
// (buffer, node, rate, pattern, state), state varying fastest.
type layout struct {
	nodes    int
	rates    int
	patterns int
	states   int
}

func (l layout) nodeSize() int { return l.rates * l.patterns * l.states }

func (l layout) size() int { return 2 * l.nodes * l.nodeSize() }

// node returns the offset of a node's partial vector in buffer buf.
func (l layout) node(buf, node int) int { return (buf*l.nodes + node) * l.nodeSize() }

// at returns the offset of a single entry.
func (l layout) at(buf, node, rate, pattern, state int) int {
	return l.node(buf, node) + (rate*l.patterns+pattern)*l.states + state
}
