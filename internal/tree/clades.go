package tree

import (
	"slices"
	"strings"
)

// Bipartition returns the canonical split induced by the branch above n: the
// side that does not contain the alphabetically smallest taxon, as sorted tip
// names joined by ",". The root has no branch and yields "".
func (t *Tree) Bipartition(n *TopologyNode) string {
	if n.parent == nil {
		return ""
	}
	all := t.TipNames()
	slices.Sort(all)
	below := n.TipNames()
	slices.Sort(below)
	if _, found := slices.BinarySearch(below, all[0]); found {
		below = complement(all, below)
	}
	return strings.Join(below, ",")
}

// Bipartitions returns the sorted set of non-trivial splits. Splits are
// unaffected by root placement.
func (t *Tree) Bipartitions() []string {
	seen := make(map[string]struct{})
	for _, n := range t.nodes {
		if n.parent == nil || n.IsTip() {
			continue
		}
		key := t.Bipartition(n)
		if strings.Count(key, ",") == 0 || strings.Count(key, ",") >= t.numTips-2 {
			continue
		}
		seen[key] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// HasSameTopology reports whether both trees have the same taxa and the same
// unrooted split set.
func (t *Tree) HasSameTopology(other *Tree) bool {
	a, b := t.TipNames(), other.TipNames()
	slices.Sort(a)
	slices.Sort(b)
	return slices.Equal(a, b) && slices.Equal(t.Bipartitions(), other.Bipartitions())
}

func complement(all, subset []string) []string {
	out := make([]string, 0, len(all)-len(subset))
	for _, name := range all {
		if _, found := slices.BinarySearch(subset, name); !found {
			out = append(out, name)
		}
	}
	return out
}
