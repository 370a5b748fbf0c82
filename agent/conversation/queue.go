package conversation

import (
	"math/rand/v2"

	"github.com/BaSui01/roundtable/types"
)

// autoDiscussionReplies is the fixed contribution of each member under
// AutoDiscussion; per-member reply counts are ignored there.
const autoDiscussionReplies = 2

// RandSource is the randomness used by the shuffling policies.
type RandSource interface {
	// IntN returns a uniform int in [0, n).
	IntN(n int) int
}

type systemRand struct{}

func (systemRand) IntN(n int) int { return rand.IntN(n) }

// SystemRand returns the process-wide generator.
func SystemRand() RandSource { return systemRand{} }

// NewSeededRand returns a deterministic generator for tests and replays.
func NewSeededRand(seed uint64) RandSource {
	return rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// QueueBuilder builds the speech queue for one trigger.
type QueueBuilder func(roster []types.Persona, settings map[string]types.MemberSettings,
	policy types.OrderingPolicy, fixedOrder []string, rng RandSource) []types.Persona

// BuildQueue resolves who speaks, in what order and how many times.
// It has no side effects; with a seeded RandSource it is deterministic.
// An unknown policy is treated as Fixed.
func BuildQueue(roster []types.Persona, settings map[string]types.MemberSettings,
	policy types.OrderingPolicy, fixedOrder []string, rng RandSource) []types.Persona {
	if len(roster) == 0 {
		return []types.Persona{}
	}
	if rng == nil {
		rng = SystemRand()
	}

	switch policy {
	case types.PolicyRandom:
		queue := expand(orderedMembers(roster, fixedOrder), settings)
		shuffle(queue, rng)
		return queue

	case types.PolicyAutoDiscussion:
		queue := make([]types.Persona, 0, len(roster)*autoDiscussionReplies)
		for _, p := range roster {
			for i := 0; i < autoDiscussionReplies; i++ {
				queue = append(queue, p)
			}
		}
		shuffle(queue, rng)
		return queue

	default:
		return expand(orderedMembers(roster, fixedOrder), settings)
	}
}

// orderedMembers applies fixedOrder to the roster: stale ids are dropped and
// members missing from fixedOrder follow in roster order.
func orderedMembers(roster []types.Persona, fixedOrder []string) []types.Persona {
	byID := make(map[string]types.Persona, len(roster))
	for _, p := range roster {
		byID[p.ID] = p
	}

	out := make([]types.Persona, 0, len(roster))
	placed := make(map[string]struct{}, len(roster))
	for _, id := range fixedOrder {
		p, ok := byID[id]
		if !ok {
			continue
		}
		if _, dup := placed[id]; dup {
			continue
		}
		placed[id] = struct{}{}
		out = append(out, p)
	}
	for _, p := range roster {
		if _, ok := placed[p.ID]; ok {
			continue
		}
		placed[p.ID] = struct{}{}
		out = append(out, p)
	}
	return out
}

// expand repeats each member replyCount times consecutively.
func expand(members []types.Persona, settings map[string]types.MemberSettings) []types.Persona {
	queue := make([]types.Persona, 0, len(members))
	for _, p := range members {
		for i := 0; i < types.MemberReplyCount(settings, p.ID); i++ {
			queue = append(queue, p)
		}
	}
	return queue
}

// shuffle is an in-place Fisher-Yates permutation.
func shuffle(queue []types.Persona, rng RandSource) {
	for i := len(queue) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		queue[i], queue[j] = queue[j], queue[i]
	}
}
