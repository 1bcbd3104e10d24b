package mosaic

import (
	"fmt"
	"sync"
)

// Candidate is the score of one tile for the block being resolved.
type Candidate struct {
	Index int
	Score uint64
}

// Availability tracks which tiles may still be placed when tiles must not
// be reused. ClaimBest is the only operation that removes a tile, so a tile
// can never be handed to two blocks.
type Availability struct {
	mu        sync.Mutex
	used      []bool
	remaining int
}

// NewAvailability marks n tiles as eligible.
func NewAvailability(n int) *Availability {
	return &Availability{
		used:      make([]bool, n),
		remaining: n,
	}
}

// Remaining returns the number of tiles that have not been claimed.
func (a *Availability) Remaining() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.remaining
}

// Eligible returns the indices of unclaimed tiles in ascending order.
func (a *Availability) Eligible() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	res := make([]int, 0, a.remaining)
	for i, used := range a.used {
		if !used {
			res = append(res, i)
		}
	}
	return res
}

// ClaimBest picks the unclaimed candidate with the lowest score and marks
// it as used. Candidates are expected in ascending index order; on equal
// scores the first one wins. Candidates claimed in the meantime are
// skipped. If nothing is left ErrTilesExhausted is returned.
func (a *Availability) ClaimBest(cands []Candidate) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	best := -1
	var bestScore uint64
	for _, c := range cands {
		if a.used[c.Index] {
			continue
		}
		if best < 0 || c.Score < bestScore {
			best = c.Index
			bestScore = c.Score
		}
	}
	if best < 0 {
		return -1, fmt.Errorf("%w: none of %d tiles left", ErrTilesExhausted, len(a.used))
	}
	a.used[best] = true
	a.remaining--
	return best, nil
}
