package mc

import (
	"math/rand/v2"

	"github.com/hupe1980/cthyb/internal/moves"
)

// MoveSet is a weighted group of moves that acts as a single move.
type MoveSet struct {
	rng     *rand.Rand
	moves   []moves.Move
	cum     []float64
	current moves.Move
}

// NewMoveSet returns an empty group drawing from rng.
func NewMoveSet(rng *rand.Rand) *MoveSet {
	return &MoveSet{rng: rng}
}

// Add registers m with relative probability prob. Non-positive
// probabilities are ignored.
func (s *MoveSet) Add(m moves.Move, prob float64) {
	if prob <= 0 {
		return
	}
	var total float64
	if n := len(s.cum); n > 0 {
		total = s.cum[n-1]
	}
	s.moves = append(s.moves, m)
	s.cum = append(s.cum, total+prob)
}

// Len returns the number of moves in the group.
func (s *MoveSet) Len() int { return len(s.moves) }

func (s *MoveSet) Attempt(u float64) float64 {
	s.current = s.moves[pick(s.rng, s.cum)]
	return s.current.Attempt(u)
}

func (s *MoveSet) Accept() float64 { return s.current.Accept() }

func (s *MoveSet) Reject() { s.current.Reject() }

// pick draws an index with probability proportional to the increments of
// the cumulative weights cum.
func pick(rng *rand.Rand, cum []float64) int {
	x := rng.Float64() * cum[len(cum)-1]
	for i, c := range cum {
		if x < c {
			return i
		}
	}
	return len(cum) - 1
}
