package phyloctmc

import (
	"math/rand/v2"

	"github.com/gyaneshwarpardhi/phylomc/internal/character"
	"github.com/gyaneshwarpardhi/phylomc/internal/substitution"
)

// Redraw simulates an alignment on the current tree: per site an invariant
// class with probability p_inv, otherwise a uniformly chosen rate category
// with a root state drawn from the root frequencies and states evolved down
// every branch. The length matches the attached data's included sites, or
// the configured simulation length when nothing is attached.
func (e *Engine) Redraw(rng *rand.Rand) *character.Alignment {
	tr := e.treeNode.Value()
	gen := e.genNode.Value()
	if tr == nil || gen == nil {
		e.logger.Error("cannot simulate without a tree and a rate generator")
		return e.data
	}
	rates := e.siteRates()
	freqs := e.kernel.RootFrequencies(gen)
	pInv := e.pInv()
	n := gen.NumStates()

	numSites := e.simSites
	if e.data != nil {
		if sites, err := e.data.IncludedSiteIndices(); err == nil {
			numSites = len(sites)
		}
	}

	probs := make([][]*substitution.TransitionMatrix, tr.NumberOfNodes())
	for _, v := range tr.Nodes() {
		if v.IsRoot() {
			continue
		}
		probs[v.Index()] = make([]*substitution.TransitionMatrix, len(rates))
		for r := range rates {
			probs[v.Index()][r] = substitution.NewTransitionMatrix(n)
		}
		e.kernel.UpdateTransitionProbabilities(probs[v.Index()], gen, v.BranchLength(), rates)
	}

	order := tr.Preorder()
	states := make([]int, tr.NumberOfNodes())
	rows := make([][]character.State, tr.NumberOfTips())
	for t := range rows {
		rows[t] = make([]character.State, numSites)
	}

	for site := 0; site < numSites; site++ {
		if pInv > 0 && rng.Float64() < pInv {
			s := sampleIndex(rng, freqs)
			for t := range rows {
				rows[t][site] = character.Single(s)
			}
			continue
		}
		r := rng.IntN(len(rates))
		states[order[0].Index()] = sampleIndex(rng, freqs)
		for _, v := range order[1:] {
			parent := states[v.Parent().Index()]
			states[v.Index()] = sampleIndex(rng, probs[v.Index()][r].Row(parent))
		}
		for t := range rows {
			rows[t][site] = character.Single(states[t])
		}
	}

	aln, err := character.FromStates(e.alphabet, tr.TipNames(), rows)
	if err != nil {
		e.logger.Error("simulated alignment rejected", "error", err)
		return e.data
	}
	return aln
}
