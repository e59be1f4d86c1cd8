package rotation

import (
	"math/rand"
	"sort"

	"github.com/google/uuid"
)

// Seat is one member's claim on the rotation; a member holds one seat per share.
type Seat struct {
	MemberID uuid.UUID
	Shares   int
}

// Order is a generated payout sequence.
type Order struct {
	Recipients []uuid.UUID
	// Collisions counts adjacent positions paid to the same member. Anything
	// above zero means the shuffle gave up and kept its best attempt.
	Collisions int
}

// BuildOrder expands seats and interleaves them round-robin, largest holder
// first. When that still leaves two adjacent seats for one member it reshuffles
// up to attempts times and keeps the arrangement with the fewest collisions.
func BuildOrder(seats []Seat, attempts int, rng *rand.Rand) Order {
	ranked := make([]Seat, 0, len(seats))
	for _, s := range seats {
		if s.Shares > 0 {
			ranked = append(ranked, s)
		}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Shares > ranked[j].Shares
	})

	remaining := make([]int, len(ranked))
	total := 0
	for i, s := range ranked {
		remaining[i] = s.Shares
		total += s.Shares
	}
	sequence := make([]uuid.UUID, 0, total)
	for len(sequence) < total {
		for i, s := range ranked {
			if remaining[i] == 0 {
				continue
			}
			sequence = append(sequence, s.MemberID)
			remaining[i]--
		}
	}

	best := Order{Recipients: sequence, Collisions: collisions(sequence)}
	if best.Collisions == 0 || attempts <= 0 {
		return best
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	candidate := append([]uuid.UUID(nil), sequence...)
	for i := 0; i < attempts; i++ {
		rng.Shuffle(len(candidate), func(a, b int) {
			candidate[a], candidate[b] = candidate[b], candidate[a]
		})
		n := collisions(candidate)
		if n < best.Collisions {
			best = Order{Recipients: append([]uuid.UUID(nil), candidate...), Collisions: n}
		}
		if n == 0 {
			break
		}
	}
	return best
}

func collisions(sequence []uuid.UUID) int {
	n := 0
	for i := 1; i < len(sequence); i++ {
		if sequence[i] == sequence[i-1] {
			n++
		}
	}
	return n
}
