// Package character holds discrete character data: alphabets, bitmask states
// and aligned character matrices.
package character

import "math/bits"

// NoUniqueState is returned by IndexOfOnBit when a state has zero or several
// possible values.
const NoUniqueState = -1

// State is one observed cell. Mask has bit i set when state i is possible.
// Gap marks an alignment gap and Missing marks '?'; both carry a full mask so
// they are compatible with every state.
type State struct {
	Mask    uint64
	Gap     bool
	Missing bool
}

// NumOn returns the number of possible states.
func (s State) NumOn() int { return bits.OnesCount64(s.Mask) }

// IsAmbiguous reports whether more than one state is possible.
func (s State) IsAmbiguous() bool { return s.NumOn() > 1 }

// IsSet reports whether state i is possible.
func (s State) IsSet(i int) bool { return s.Mask&(1<<uint(i)) != 0 }

// IndexOfOnBit returns the single possible state, or NoUniqueState.
func (s State) IndexOfOnBit() int {
	if s.NumOn() != 1 {
		return NoUniqueState
	}
	return bits.TrailingZeros64(s.Mask)
}

// IsUnknown reports whether every one of n states is possible.
func (s State) IsUnknown(n int) bool { return s.Mask == fullMask(n) }

// Single returns the unambiguous state i.
func Single(i int) State { return State{Mask: 1 << uint(i)} }

func fullMask(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << uint(n)) - 1
}
