// Package move implements Metropolis-Hastings moves over dag models: the
// proposal kernels, the accept/reject step with its touch/keep/restore
// bookkeeping, tuning and a weighted move schedule.
package move

import (
	"math/rand/v2"

	"github.com/gyaneshwarpardhi/phylomc/internal/dag"
)

// Proposal is a perturbation kernel. DoProposal changes the values of
// Nodes and returns the log Hastings ratio. Undo reverts a rejected
// proposal; Clean releases what was kept for Undo after an acceptance.
type Proposal interface {
	Name() string
	Nodes() []dag.Node

	DoProposal(rng *rand.Rand) float64
	Undo()
	Clean()

	// Tunable reports whether the kernel has a width parameter.
	Tunable() bool
	TuningParameter() float64
	SetTuningParameter(v float64)

	// SwapNode replaces a node the proposal operates on, for example after
	// the model was cloned.
	SwapNode(oldN, newN dag.Node) error
	Clone() Proposal
}

// tunedWidth moves a width parameter toward a target acceptance rate. A high
// rate widens the kernel multiplicatively; a low rate narrows it.
func tunedWidth(width, rate, target float64) float64 {
	if rate > target {
		return width * (1 + (rate-target)/(1-target))
	}
	return width / (2 - rate/target)
}
