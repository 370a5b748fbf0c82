package conversation

import (
	"fmt"
	"slices"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"pgregory.net/rapid"

	"github.com/BaSui01/roundtable/types"
)

type queueInput struct {
	roster     []types.Persona
	settings   map[string]types.MemberSettings
	fixedOrder []string
}

func drawQueueInput(rt *rapid.T, minRoster int) queueInput {
	size := rapid.IntRange(minRoster, 6).Draw(rt, "rosterSize")
	roster := make([]types.Persona, 0, size)
	settings := make(map[string]types.MemberSettings, size)
	for i := 0; i < size; i++ {
		id := fmt.Sprintf("p%d", i)
		roster = append(roster, persona(id))
		settings[id] = types.MemberSettings{ReplyCount: rapid.IntRange(0, 4).Draw(rt, "reply_"+id)}
	}
	pool := append(ids(roster), "stale-1", "stale-2")
	fixedOrder := rapid.SliceOfN(rapid.SampledFrom(pool), 0, 8).Draw(rt, "fixedOrder")
	return queueInput{roster: roster, settings: settings, fixedOrder: fixedOrder}
}

func sortedIDs(queue []types.Persona) []string {
	out := ids(queue)
	slices.Sort(out)
	return out
}

// Random order produces the same multiset as fixed order.
func TestProperty_RandomOrderMultisetInvariance(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := drawQueueInput(rt, 0)
		seed := rapid.Uint64().Draw(rt, "seed")

		fixed := BuildQueue(in.roster, in.settings, types.PolicyFixed, in.fixedOrder, nil)
		random := BuildQueue(in.roster, in.settings, types.PolicyRandom, in.fixedOrder, NewSeededRand(seed))

		if !slices.Equal(sortedIDs(fixed), sortedIDs(random)) {
			rt.Fatalf("multiset differs: fixed=%v random=%v", ids(fixed), ids(random))
		}
	})
}

// Auto discussion schedules every member exactly twice.
func TestProperty_AutoDiscussionCardinality(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := drawQueueInput(rt, 1)
		seed := rapid.Uint64().Draw(rt, "seed")

		queue := BuildQueue(in.roster, in.settings, types.PolicyAutoDiscussion, in.fixedOrder, NewSeededRand(seed))
		if len(queue) != 2*len(in.roster) {
			rt.Fatalf("expected %d entries, got %d", 2*len(in.roster), len(queue))
		}
		counts := make(map[string]int)
		for _, p := range queue {
			counts[p.ID]++
		}
		for _, p := range in.roster {
			if counts[p.ID] != 2 {
				rt.Fatalf("member %s appears %d times", p.ID, counts[p.ID])
			}
		}
	})
}

// Fixed order emits consecutive blocks sized by reply count.
func TestProperty_FixedOrderBlocks(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		in := drawQueueInput(rt, 0)
		queue := BuildQueue(in.roster, in.settings, types.PolicyFixed, in.fixedOrder, nil)

		seen := make(map[string]bool)
		for i := 0; i < len(queue); {
			id := queue[i].ID
			if seen[id] {
				rt.Fatalf("persona %s appears in two blocks: %v", id, ids(queue))
			}
			seen[id] = true

			want := types.MemberReplyCount(in.settings, id)
			j := i
			for j < len(queue) && queue[j].ID == id {
				j++
			}
			if j-i != want {
				rt.Fatalf("block for %s has %d entries, want %d", id, j-i, want)
			}
			i = j
		}
		if len(seen) != len(in.roster) {
			rt.Fatalf("expected %d blocks, got %d", len(in.roster), len(seen))
		}
	})
}

// Stale fixed-order ids never appear; members missing from the fixed order
// follow every fixed-order block, in roster order.
func TestProperty_StaleIDDroppingAndNewMemberAppend(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200

	properties := gopter.NewProperties(parameters)

	properties.Property("fixed order filters stale ids and appends new members", prop.ForAll(
		func(rosterSize, listed, stale int, seed uint64) bool {
			roster := make([]types.Persona, 0, rosterSize)
			for i := 0; i < rosterSize; i++ {
				roster = append(roster, persona(fmt.Sprintf("p%d", i)))
			}
			if listed > rosterSize {
				listed = rosterSize
			}

			// fixedOrder = a shuffled prefix of the roster interleaved with stale ids
			order := ids(roster[:listed])
			for i := 0; i < stale; i++ {
				order = append(order, fmt.Sprintf("gone-%d", i))
			}
			rng := NewSeededRand(seed)
			for i := len(order) - 1; i > 0; i-- {
				j := rng.IntN(i + 1)
				order[i], order[j] = order[j], order[i]
			}

			got := ids(BuildQueue(roster, nil, types.PolicyFixed, order, nil))

			want := make([]string, 0, rosterSize)
			for _, id := range order {
				if len(id) > 0 && id[0] == 'p' {
					want = append(want, id)
				}
			}
			want = append(want, ids(roster[listed:])...)
			return slices.Equal(got, want)
		},
		gen.IntRange(0, 8),
		gen.IntRange(0, 8),
		gen.IntRange(0, 4),
		gen.UInt64(),
	))

	properties.TestingRun(t)
}
