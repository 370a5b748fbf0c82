package conversation

import "github.com/BaSui01/roundtable/types"

// Transcript is the append-only conversation context of one run.
// It is owned by a single goroutine and is not safe for concurrent use.
type Transcript struct {
	turns    []types.Turn
	baseline int
}

// NewTranscript seeds a transcript from prior history. The prior turns form
// the baseline; everything appended afterwards is the suffix.
func NewTranscript(prior []types.Turn) *Transcript {
	turns := make([]types.Turn, len(prior), len(prior)+8)
	copy(turns, prior)
	return &Transcript{turns: turns, baseline: len(prior)}
}

// Append adds a turn at the end.
func (t *Transcript) Append(turn types.Turn) {
	t.turns = append(t.turns, turn)
}

// Turns returns a copy of every turn, baseline included.
func (t *Transcript) Turns() []types.Turn {
	return types.CloneTurns(t.turns)
}

// Suffix returns a copy of the turns appended since the baseline.
func (t *Transcript) Suffix() []types.Turn {
	out := make([]types.Turn, len(t.turns)-t.baseline)
	copy(out, t.turns[t.baseline:])
	return out
}

// Len returns the number of turns.
func (t *Transcript) Len() int { return len(t.turns) }

// Last returns the most recent turn.
func (t *Transcript) Last() (types.Turn, bool) {
	if len(t.turns) == 0 {
		return types.Turn{}, false
	}
	return t.turns[len(t.turns)-1], true
}
