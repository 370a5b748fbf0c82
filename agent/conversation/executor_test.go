package conversation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/types"
)

func newTestExecutor(d Dispatcher, log *eventLog, opts ...ExecutorOption) *Executor {
	opts = append([]ExecutorOption{WithObserver(log), WithClock(fixedClock), WithRandSource(NewSeededRand(1))}, opts...)
	return NewExecutor(d, zap.NewNop(), opts...)
}

func fixedTrigger(text string, roster ...string) Trigger {
	return Trigger{
		ChatID:     "chat-1",
		Text:       text,
		Roster:     personas(roster...),
		Policy:     types.PolicyFixed,
		FixedOrder: roster,
	}
}

func TestExecutor_Run_CompletesInQueueOrder(t *testing.T) {
	d := &scriptedDispatcher{}
	log := &eventLog{}
	exec := newTestExecutor(d, log)

	trig := fixedTrigger("hello", "A", "B")
	trig.Settings = map[string]types.MemberSettings{"A": {ReplyCount: 2}}
	trig.Prior = []types.Turn{types.NewUserTurn("chat-1", "earlier", testNow)}

	res, err := exec.Run(context.Background(), trig)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, 3, res.QueueLen)
	assert.NoError(t, res.Err)
	require.Len(t, res.Suffix, 4, "user turn + one turn per queue entry")

	assert.True(t, res.Suffix[0].IsUser())
	assert.Equal(t, "hello", res.Suffix[0].Text)
	assert.Equal(t, []string{"A", "A", "B"}, []string{res.Suffix[1].SpeakerID, res.Suffix[2].SpeakerID, res.Suffix[3].SpeakerID})
	for _, turn := range res.Suffix {
		assert.Equal(t, "chat-1", turn.ChatID)
		assert.False(t, turn.System)
	}
}

func TestExecutor_Run_EachSpeakerSeesPriorTurns(t *testing.T) {
	d := &scriptedDispatcher{}
	exec := newTestExecutor(d, &eventLog{})

	trig := fixedTrigger("topic", "A", "B", "C")
	trig.Prior = []types.Turn{types.NewUserTurn("chat-1", "earlier", testNow)}
	_, err := exec.Run(context.Background(), trig)
	require.NoError(t, err)

	calls := d.Calls()
	require.Len(t, calls, 3)
	for k, call := range calls {
		// prior(1) + user turn(1) + k persona turns
		require.Len(t, call.Context, 2+k)
		assert.Equal(t, "topic", call.TriggeringText)
		assert.Equal(t, "topic", call.Context[1].Text)
		for j := 0; j < k; j++ {
			assert.Equal(t, calls[j].Persona.ID, call.Context[2+j].SpeakerID)
		}
	}
}

func TestExecutor_Run_AbortsOnFailure(t *testing.T) {
	d := &scriptedDispatcher{failAt: 2, err: types.NewProviderError("openai", "bad gateway", 502)}
	log := &eventLog{}
	exec := newTestExecutor(d, log)

	res, err := exec.Run(context.Background(), fixedTrigger("go", "A", "B", "C", "D"))
	require.NoError(t, err)

	assert.Equal(t, StateAborted, res.State)
	assert.True(t, types.IsProviderError(res.Err))
	assert.Len(t, d.Calls(), 2, "remaining speakers are not attempted")

	require.Len(t, res.Suffix, 3)
	assert.True(t, res.Suffix[0].IsUser())
	assert.Equal(t, "A", res.Suffix[1].SpeakerID)
	failure := res.Suffix[2]
	assert.True(t, failure.System)
	assert.Equal(t, FailureNotice, failure.Text)
	assert.Equal(t, types.SystemSpeakerID, failure.SpeakerID)

	events := log.Events()
	last := events[len(events)-1]
	assert.Equal(t, EventRunAborted, last.Type)
	assert.Contains(t, last.Error, "PROVIDER_ERROR")
	assert.Len(t, last.Turns, 3)
}

func TestExecutor_Run_FailureNoticeIsGenericForEveryErrorKind(t *testing.T) {
	errs := []error{
		types.NewConfigurationError("openai", "missing api key"),
		types.NewNetworkError("openai", errors.New("dial tcp")),
		types.NewProviderError("openai", "500", 500),
	}
	for _, dispatchErr := range errs {
		d := &scriptedDispatcher{failAt: 1, err: dispatchErr}
		res, err := newTestExecutor(d, &eventLog{}).Run(context.Background(), fixedTrigger("x", "A"))
		require.NoError(t, err)
		require.Len(t, res.Suffix, 2)
		assert.Equal(t, FailureNotice, res.Suffix[1].Text)
		assert.Equal(t, StateAborted, res.State)
	}
}

func TestExecutor_Run_EventSequence(t *testing.T) {
	d := &scriptedDispatcher{}
	log := &eventLog{}
	exec := newTestExecutor(d, log)

	_, err := exec.Run(context.Background(), fixedTrigger("hi", "A", "B"))
	require.NoError(t, err)

	assert.Equal(t, []EventType{
		EventRunStarted,
		EventTurnStarting, EventTurnAppended,
		EventTurnStarting, EventTurnAppended,
		EventRunCompleted,
	}, log.Types())

	events := log.Events()
	assert.Equal(t, "Persona A", events[1].Speaker)
	assert.Equal(t, "A#1", events[2].Preview)
	require.NotNil(t, events[2].Turn)
	assert.Equal(t, "A", events[2].Turn.SpeakerID)
	assert.Equal(t, 2, events[3].Position)
	assert.Len(t, events[5].Turns, 3)
	assert.True(t, events[5].Terminal())

	runID := events[0].RunID
	for _, e := range events {
		assert.Equal(t, runID, e.RunID)
		assert.Equal(t, "chat-1", e.ChatID)
		assert.Equal(t, RunKindMessage, e.Kind)
	}
}

func TestExecutor_Run_EmptyRoster(t *testing.T) {
	d := &scriptedDispatcher{}
	log := &eventLog{}
	exec := newTestExecutor(d, log)

	trig := fixedTrigger("anyone?")
	trig.Prior = []types.Turn{types.NewUserTurn("chat-1", "old", testNow)}
	res, err := exec.Run(context.Background(), trig)
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.State)
	assert.Empty(t, res.Suffix)
	assert.Zero(t, res.QueueLen)
	assert.Empty(t, d.Calls())
	assert.Equal(t, []EventType{EventRunStarted, EventRunCompleted}, log.Types())
}

func TestExecutor_Run_RejectsEmptyText(t *testing.T) {
	log := &eventLog{}
	res, err := newTestExecutor(&scriptedDispatcher{}, log).Run(context.Background(), fixedTrigger("  ", "A"))
	assert.Nil(t, res)
	assert.ErrorIs(t, err, ErrInvalidTrigger)
	assert.Empty(t, log.Types())
}

func TestExecutor_Summarize_BypassesQueueBuilder(t *testing.T) {
	d := &scriptedDispatcher{}
	log := &eventLog{}
	exec := newTestExecutor(d, log, WithQueueBuilder(func([]types.Persona, map[string]types.MemberSettings,
		types.OrderingPolicy, []string, RandSource) []types.Persona {
		t.Fatal("summarization must not build a speech queue")
		return nil
	}))

	prior := []types.Turn{
		types.NewUserTurn("chat-1", "q", testNow),
		types.NewPersonaTurn("chat-1", persona("A"), "a", testNow),
		types.NewPersonaTurn("chat-1", persona("B"), "b", testNow),
	}
	res, err := exec.Summarize(context.Background(), SummaryTrigger{ChatID: "chat-1", Agent: persona("S"), Prior: prior})
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, res.State)
	assert.Equal(t, RunKindSummary, res.Kind)
	calls := d.Calls()
	require.Len(t, calls, 1)
	assert.Equal(t, "S", calls[0].Persona.ID)
	assert.Equal(t, SummaryInstruction, calls[0].TriggeringText)
	assert.Len(t, calls[0].Context, 3, "summary sees the entire context")

	require.Len(t, res.Suffix, 1)
	assert.True(t, res.Suffix[0].Summary)
	assert.Equal(t, SummaryPrefix+"S#1", res.Suffix[0].Text)
	assert.Equal(t, []EventType{EventRunStarted, EventTurnStarting, EventTurnAppended, EventRunCompleted}, log.Types())
}

func TestExecutor_Summarize_Failure(t *testing.T) {
	d := &scriptedDispatcher{failAt: 1, err: types.NewNetworkError("gemini", context.DeadlineExceeded)}
	res, err := newTestExecutor(d, &eventLog{}).Summarize(context.Background(), SummaryTrigger{ChatID: "c", Agent: persona("S")})
	require.NoError(t, err)

	assert.Equal(t, StateAborted, res.State)
	require.Len(t, res.Suffix, 1)
	assert.True(t, res.Suffix[0].System)
	assert.False(t, res.Suffix[0].Summary)
}

func TestExecutor_Summarize_RequiresAgent(t *testing.T) {
	_, err := newTestExecutor(&scriptedDispatcher{}, &eventLog{}).Summarize(context.Background(), SummaryTrigger{ChatID: "c"})
	assert.ErrorIs(t, err, ErrInvalidTrigger)
}

func TestObservers_FanOut(t *testing.T) {
	a, b := &eventLog{}, &eventLog{}
	var fn []EventType
	obs := Observers{a, nil, b, ObserverFunc(func(e Event) { fn = append(fn, e.Type) })}

	obs.OnEvent(Event{Type: EventRunStarted})
	assert.Len(t, a.Types(), 1)
	assert.Len(t, b.Types(), 1)
	assert.Equal(t, []EventType{EventRunStarted}, fn)
}
