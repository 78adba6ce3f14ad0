package move

import (
	"math"
	"math/rand/v2"
)

// Schedule picks moves at random in proportion to their weights.
type Schedule struct {
	moves      []*Move
	cumulative []float64
	total      float64
}

// NewSchedule creates a schedule over moves.
func NewSchedule(moves []*Move) (*Schedule, error) {
	if len(moves) == 0 {
		return nil, ErrEmptySchedule
	}
	s := &Schedule{moves: moves, cumulative: make([]float64, len(moves))}
	for i, m := range moves {
		s.total += m.Weight()
		s.cumulative[i] = s.total
	}
	return s, nil
}

// Moves returns the scheduled moves.
func (s *Schedule) Moves() []*Move { return s.moves }

// MovesPerGeneration is the sum of weights, rounded, and at least one.
func (s *Schedule) MovesPerGeneration() int {
	return max(1, int(math.Round(s.total)))
}

// Next draws a move.
func (s *Schedule) Next(rng *rand.Rand) *Move {
	u := rng.Float64() * s.total
	for i, c := range s.cumulative {
		if u < c {
			return s.moves[i]
		}
	}
	return s.moves[len(s.moves)-1]
}
