package phyloctmc

import (
	"fmt"
	"math"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"

	"github.com/gyaneshwarpardhi/phylomc/internal/tree"
)

// MarginalProbabilities returns, for every included site, the posterior
// probability of each state at node index. The invariant-site class is not
// part of the conditioning.
func (e *Engine) MarginalProbabilities(index int) ([][]float64, error) {
	marg, err := e.marginals()
	if err != nil {
		return nil, err
	}
	if index < 0 || index >= len(marg) {
		return nil, fmt.Errorf("%w: %d", ErrNodeOutOfRange, index)
	}
	s := e.lay.states
	out := make([][]float64, len(e.pat.sitePattern))
	for site, g := range e.pat.sitePattern {
		out[site] = append([]float64(nil), marg[index][g*s:(g+1)*s]...)
	}
	return out, nil
}

// DrawAncestralStatesForNode samples one state per included site from the
// marginal distribution at node index.
func (e *Engine) DrawAncestralStatesForNode(index int, rng *rand.Rand) ([]int, error) {
	probs, err := e.MarginalProbabilities(index)
	if err != nil {
		return nil, err
	}
	out := make([]int, len(probs))
	for site, p := range probs {
		out[site] = sampleIndex(rng, p)
	}
	return out, nil
}

// DrawJointConditionalAncestralStates samples a complete assignment of states
// to every node, indexed [node][site]. Each site first draws its mixture class
// (invariant, or a rate category with a root state) and then walks root to
// tips, conditioning each child on its parent's draw and the data below it.
func (e *Engine) DrawJointConditionalAncestralStates(rng *rand.Rand) ([][]int, error) {
	if e.group.Size() > 1 {
		return nil, ErrDistributed
	}
	if _, err := e.compute(); err != nil {
		return nil, err
	}
	d := e.dims()
	tr := e.current
	gen := e.genNode.Value()
	freqs := e.kernel.RootFrequencies(gen)
	pInv := e.pInv()
	below := e.belowAll(tr)
	root := tr.Root().Index()
	rp := e.partialOf(root)
	sc := e.scalingOf(e.active[root], root)
	order := tr.Preorder()

	out := make([][]int, tr.NumberOfNodes())
	for i := range out {
		out[i] = make([]int, len(e.pat.sitePattern))
	}
	weights := make([]float64, d.Rates*d.States+d.States)
	cond := make([]float64, d.States)

	for site, g := range e.pat.sitePattern {
		for r := 0; r < d.Rates; r++ {
			for s := 0; s < d.States; s++ {
				w := (1 - pInv) / float64(d.Rates) * freqs[s] * rp[(r*d.Patterns+g)*d.States+s]
				weights[r*d.States+s] = math.Log(w) + sc[g]
			}
		}
		inv := e.pat.invariant[g]
		for s := 0; s < d.States; s++ {
			w := math.Inf(-1)
			if pInv > 0 && inv&(1<<uint(s)) != 0 {
				w = math.Log(pInv * freqs[s])
			}
			weights[d.Rates*d.States+s] = w
		}
		expNormalize(weights)
		k := sampleIndex(rng, weights)

		if k >= d.Rates*d.States {
			for _, v := range order {
				out[v.Index()][site] = k - d.Rates*d.States
			}
			continue
		}
		r, s := k/d.States, k%d.States
		out[root][site] = s
		for _, v := range order[1:] {
			idx := v.Index()
			a := out[v.Parent().Index()][site]
			row := e.transitions[e.active[idx]][idx][r].Row(a)
			b := below[idx][(r*d.Patterns+g)*d.States:][:d.States]
			for j := range cond {
				cond[j] = row[j] * b[j]
			}
			out[idx][site] = sampleIndex(rng, cond)
		}
	}
	return out, nil
}

// marginals runs an outside pass from the root over the current partials and
// returns, per node, normalized state probabilities laid out pattern-major.
func (e *Engine) marginals() ([][]float64, error) {
	if e.group.Size() > 1 {
		return nil, ErrDistributed
	}
	if _, err := e.compute(); err != nil {
		return nil, err
	}
	d := e.dims()
	tr := e.current
	freqs := e.kernel.RootFrequencies(e.genNode.Value())
	below := e.belowAll(tr)
	above := make([][]float64, tr.NumberOfNodes())
	out := make([][]float64, tr.NumberOfNodes())

	for _, v := range tr.Preorder() {
		idx := v.Index()
		if v.IsRoot() {
			a := make([]float64, d.NodeSize())
			for i := range a {
				a[i] = freqs[i%d.States]
			}
			above[idx] = a
		}
		out[idx] = marginalize(below[idx], above[idx], d)

		for _, c := range v.Children() {
			msg := append([]float64(nil), above[idx]...)
			for _, sib := range v.Children() {
				if sib == c {
					continue
				}
				floats.Mul(msg, e.partialOf(sib.Index()))
			}
			ci := c.Index()
			ac := make([]float64, d.NodeSize())
			for r := 0; r < d.Rates; r++ {
				p := e.transitions[e.active[ci]][ci][r]
				for pat := 0; pat < d.Patterns; pat++ {
					off := (r*d.Patterns + pat) * d.States
					for a := 0; a < d.States; a++ {
						m := msg[off+a]
						if m == 0 {
							continue
						}
						floats.AddScaled(ac[off:off+d.States], m, p.Row(a))
					}
				}
			}
			normalizePatterns(ac, d)
			above[ci] = ac
		}
	}
	return out, nil
}

// belowAll returns, per node, the conditional likelihood of the data below the
// node given its own state: the children's product for internal nodes and the
// observation indicator for tips.
func (e *Engine) belowAll(tr *tree.Tree) [][]float64 {
	d := e.dims()
	out := make([][]float64, tr.NumberOfNodes())
	for _, v := range tr.Nodes() {
		idx := v.Index()
		b := make([]float64, d.NodeSize())
		if v.IsTip() {
			tip := e.tips[idx]
			for r := 0; r < d.Rates; r++ {
				for pat := 0; pat < d.Patterns; pat++ {
					for s := 0; s < d.States; s++ {
						if tip.Gaps[pat] || tip.Masks[pat]&(1<<uint(s)) != 0 {
							b[e.lay.at(0, 0, r, pat, s)] = 1
						}
					}
				}
			}
		} else {
			for i := range b {
				b[i] = 1
			}
			for _, c := range v.Children() {
				floats.Mul(b, e.partialOf(c.Index()))
			}
		}
		out[idx] = b
	}
	return out
}

func marginalize(below, above []float64, d Dims) []float64 {
	out := make([]float64, d.Patterns*d.States)
	for r := 0; r < d.Rates; r++ {
		for pat := 0; pat < d.Patterns; pat++ {
			off := (r*d.Patterns + pat) * d.States
			for s := 0; s < d.States; s++ {
				out[pat*d.States+s] += below[off+s] * above[off+s]
			}
		}
	}
	for pat := 0; pat < d.Patterns; pat++ {
		row := out[pat*d.States : (pat+1)*d.States]
		if sum := floats.Sum(row); sum > 0 {
			floats.Scale(1/sum, row)
		} else {
			for s := range row {
				row[s] = 1 / float64(d.States)
			}
		}
	}
	return out
}

// normalizePatterns divides each pattern's entries by their maximum over
// rates and states.
func normalizePatterns(v []float64, d Dims) {
	for pat := 0; pat < d.Patterns; pat++ {
		peak := 0.0
		for r := 0; r < d.Rates; r++ {
			off := (r*d.Patterns + pat) * d.States
			peak = math.Max(peak, floats.Max(v[off:off+d.States]))
		}
		if peak == 0 {
			continue
		}
		for r := 0; r < d.Rates; r++ {
			off := (r*d.Patterns + pat) * d.States
			floats.Scale(1/peak, v[off:off+d.States])
		}
	}
}

// expNormalize turns log weights into weights relative to the largest.
func expNormalize(w []float64) {
	peak := floats.Max(w)
	for i, x := range w {
		switch {
		case math.IsInf(peak, -1):
			w[i] = 1
		case math.IsNaN(x):
			w[i] = 0
		default:
			w[i] = math.Exp(x - peak)
		}
	}
}

// sampleIndex draws i with probability w[i]/Σw. All-zero weights draw uniformly.
func sampleIndex(rng *rand.Rand, w []float64) int {
	total := floats.Sum(w)
	if !(total > 0) {
		return rng.IntN(len(w))
	}
	u := rng.Float64() * total
	for i, x := range w {
		u -= x
		if u < 0 {
			return i
		}
	}
	return len(w) - 1
}
