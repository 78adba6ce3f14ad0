package phyloctmc

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gyaneshwarpardhi/phylomc/internal/character"
	"github.com/gyaneshwarpardhi/phylomc/internal/tree"
)

// patterns is the compressed form of an alignment against one tree's tip
// order.
type patterns struct {
	sites       []int      // included alignment columns
	sitePattern []int      // per included site
	counts      []int      // per pattern multiplicity
	masks       [][]uint64 // [tip][pattern]
	gaps        [][]bool   // [tip][pattern]
	invariant   []uint64   // per pattern; states shared by every tip, 0 if variable
}

func (p *patterns) numPatterns() int { return len(p.counts) }

// gapPolicy controls which observations are folded into gaps.
type gapPolicy struct {
	ambiguousAsGap bool
	unknownAsGap   bool
}

// compress reduces the included columns of aln to unique tip-state patterns
// in the tip order of tr.
func compress(aln *character.Alignment, tr *tree.Tree, numStates int, policy gapPolicy) (*patterns, error) {
	if aln.NumStates() != numStates {
		return nil, fmt.Errorf("%w: alphabet %d, model %d", ErrStateMismatch, aln.NumStates(), numStates)
	}
	numTips := tr.NumberOfTips()
	if aln.NumTaxa() != numTips {
		return nil, fmt.Errorf("%w: %d rows, %d tips", ErrTaxaMismatch, aln.NumTaxa(), numTips)
	}
	sites, err := aln.IncludedSiteIndices()
	if err != nil {
		return nil, err
	}

	rows := make([][]character.State, numTips)
	for i, name := range tr.TipNames() {
		row, err := aln.Row(name)
		if err != nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingTaxon, name)
		}
		rows[i] = row
	}

	p := &patterns{
		sites:       sites,
		sitePattern: make([]int, len(sites)),
		masks:       make([][]uint64, numTips),
		gaps:        make([][]bool, numTips),
	}
	index := make(map[string]int)
	var key strings.Builder
	masks := make([]uint64, numTips)
	gaps := make([]bool, numTips)

	for k, site := range sites {
		key.Reset()
		for t := range rows {
			s := rows[t][site]
			gap := s.Gap ||
				(policy.unknownAsGap && (s.Missing || s.IsUnknown(numStates))) ||
				(policy.ambiguousAsGap && s.IsAmbiguous())
			masks[t], gaps[t] = s.Mask, gap
			if gap {
				key.WriteString("-,")
				continue
			}
			key.WriteString(strconv.FormatUint(s.Mask, 36))
			key.WriteByte(',')
		}

		id, seen := index[key.String()]
		if !seen {
			id = len(p.counts)
			index[key.String()] = id
			p.counts = append(p.counts, 0)
			p.invariant = append(p.invariant, invariantMask(masks, gaps))
			for t := range rows {
				p.masks[t] = append(p.masks[t], masks[t])
				p.gaps[t] = append(p.gaps[t], gaps[t])
			}
		}
		p.counts[id]++
		p.sitePattern[k] = id
	}
	return p, nil
}

// invariantMask intersects the tip states of a column. A column with any gap
// is never invariant.
func invariantMask(masks []uint64, gaps []bool) uint64 {
	inter := ^uint64(0)
	for t, m := range masks {
		if gaps[t] {
			return 0
		}
		inter &= m
	}
	return inter
}
