// Package runctx carries the per-run state that would otherwise be global:
// the random stream and the taxon registry.
package runctx

import (
	"math/rand/v2"

	"github.com/google/uuid"

	"github.com/gyaneshwarpardhi/phylomc/internal/taxa"
)

// defaultSeed is used when callers pass seed == 0.
const defaultSeed uint64 = 1

// RunContext is threaded through constructors instead of a global RNG and
// taxon map. It is not safe for concurrent use; replicates Derive their own.
type RunContext struct {
	ID     string
	Seed   uint64
	Stream uint64
	RNG    *rand.Rand
	Taxa   *taxa.Registry
}

// New creates a RunContext with a fresh run ID.
func New(seed uint64, registry *taxa.Registry) *RunContext {
	if seed == 0 {
		seed = defaultSeed
	}
	if registry == nil {
		registry, _ = taxa.NewRegistry()
	}
	return &RunContext{
		ID:   uuid.New().String(),
		Seed: seed,
		RNG:  rand.New(rand.NewPCG(seed, 0)),
		Taxa: registry,
	}
}

// Derive returns an independent, deterministic stream for replicate stream.
// The run ID and taxon registry are shared.
func (rc *RunContext) Derive(stream uint64) *RunContext {
	s := mix(rc.Seed, stream+1)
	return &RunContext{
		ID:     rc.ID,
		Seed:   rc.Seed,
		Stream: stream + 1,
		RNG:    rand.New(rand.NewPCG(s, stream+1)),
		Taxa:   rc.Taxa,
	}
}

// mix is a SplitMix64 finalizer over parent and stream.
func mix(parent, stream uint64) uint64 {
	x := parent ^ (stream + 0x9e3779b97f4a7c15)
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}
