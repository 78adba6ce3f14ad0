package phyloctmc

import "github.com/gyaneshwarpardhi/phylomc/internal/substitution"

// Dims are the extents of one node's partial vector, laid out
// rate-major then pattern then state.
type Dims struct {
	Rates    int
	Patterns int
	States   int
}

// NodeSize is the length of one node's partial vector.
func (d Dims) NodeSize() int { return d.Rates * d.Patterns * d.States }

// TipData is the observed data of one tip over the local pattern block.
type TipData struct {
	Masks []uint64
	Gaps  []bool
}

// Kernel computes partial likelihoods for one substitution model family.
// A non-root partial includes the transition matrix of the branch above the
// node: dst[s] = Σ_j P(s→j) · Π_children child[j]. The root partial is the
// plain product of its children.
type Kernel interface {
	ComputeTipLikelihood(dst []float64, tip TipData, p []*substitution.TransitionMatrix, d Dims)
	ComputeInternalNodeLikelihood(dst, left, right []float64, p []*substitution.TransitionMatrix, d Dims)
	ComputeInternalNodeLikelihood3(dst, left, middle, right []float64, p []*substitution.TransitionMatrix, d Dims)
	ComputeRootLikelihood(dst, left, right []float64, d Dims)
	ComputeRootLikelihood3(dst, left, middle, right []float64, d Dims)
	RootFrequencies(gen substitution.RateGenerator) []float64
	UpdateTransitionProbabilities(dst []*substitution.TransitionMatrix, gen substitution.RateGenerator, branchLength float64, rates []float64)
}

// GenericKernel works for any number of states.
type GenericKernel struct{}

func (GenericKernel) ComputeTipLikelihood(dst []float64, tip TipData, p []*substitution.TransitionMatrix, d Dims) {
	for r := 0; r < d.Rates; r++ {
		pr := p[r]
		for pat := 0; pat < d.Patterns; pat++ {
			out := dst[(r*d.Patterns+pat)*d.States:][:d.States]
			if tip.Gaps[pat] {
				for s := range out {
					out[s] = 1
				}
				continue
			}
			mask := tip.Masks[pat]
			for s := range out {
				row := pr.Row(s)
				sum := 0.0
				for j := 0; j < d.States; j++ {
					if mask&(1<<uint(j)) != 0 {
						sum += row[j]
					}
				}
				out[s] = sum
			}
		}
	}
}

func (GenericKernel) ComputeInternalNodeLikelihood(dst, left, right []float64, p []*substitution.TransitionMatrix, d Dims) {
	for r := 0; r < d.Rates; r++ {
		pr := p[r]
		for pat := 0; pat < d.Patterns; pat++ {
			off := (r*d.Patterns + pat) * d.States
			l, rt, out := left[off:off+d.States], right[off:off+d.States], dst[off:off+d.States]
			for s := range out {
				row := pr.Row(s)
				sum := 0.0
				for j, pj := range row {
					sum += pj * l[j] * rt[j]
				}
				out[s] = sum
			}
		}
	}
}

func (GenericKernel) ComputeInternalNodeLikelihood3(dst, left, middle, right []float64, p []*substitution.TransitionMatrix, d Dims) {
	for r := 0; r < d.Rates; r++ {
		pr := p[r]
		for pat := 0; pat < d.Patterns; pat++ {
			off := (r*d.Patterns + pat) * d.States
			l, m, rt := left[off:off+d.States], middle[off:off+d.States], right[off:off+d.States]
			out := dst[off : off+d.States]
			for s := range out {
				row := pr.Row(s)
				sum := 0.0
				for j, pj := range row {
					sum += pj * l[j] * m[j] * rt[j]
				}
				out[s] = sum
			}
		}
	}
}

func (GenericKernel) ComputeRootLikelihood(dst, left, right []float64, d Dims) {
	for i := 0; i < d.NodeSize(); i++ {
		dst[i] = left[i] * right[i]
	}
}

func (GenericKernel) ComputeRootLikelihood3(dst, left, middle, right []float64, d Dims) {
	for i := 0; i < d.NodeSize(); i++ {
		dst[i] = left[i] * middle[i] * right[i]
	}
}

func (GenericKernel) RootFrequencies(gen substitution.RateGenerator) []float64 {
	return gen.StationaryFrequencies()
}

func (GenericKernel) UpdateTransitionProbabilities(dst []*substitution.TransitionMatrix, gen substitution.RateGenerator, branchLength float64, rates []float64) {
	for r, rate := range rates {
		gen.TransitionProbabilities(dst[r], branchLength*rate)
	}
}

// NucleotideKernel unrolls the four-state inner loop of the internal-node
// recursion. Other hooks are inherited from GenericKernel.
type NucleotideKernel struct {
	GenericKernel
}

func (k NucleotideKernel) ComputeInternalNodeLikelihood(dst, left, right []float64, p []*substitution.TransitionMatrix, d Dims) {
	if d.States != 4 {
		k.GenericKernel.ComputeInternalNodeLikelihood(dst, left, right, p, d)
		return
	}
	for r := 0; r < d.Rates; r++ {
		pr := p[r]
		for pat := 0; pat < d.Patterns; pat++ {
			off := (r*d.Patterns + pat) * 4
			c0 := left[off] * right[off]
			c1 := left[off+1] * right[off+1]
			c2 := left[off+2] * right[off+2]
			c3 := left[off+3] * right[off+3]
			for s := 0; s < 4; s++ {
				row := pr.Row(s)
				dst[off+s] = row[0]*c0 + row[1]*c1 + row[2]*c2 + row[3]*c3
			}
		}
	}
}

// KernelFor picks the kernel for a state count.
func KernelFor(states int) Kernel {
	if states == 4 {
		return NucleotideKernel{}
	}
	return GenericKernel{}
}
