package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/agent/conversation"
	"github.com/BaSui01/roundtable/types"
)

type failingStore struct {
	*MemoryStore
}

func (failingStore) AppendTurns(context.Context, string, []types.Turn) ([]types.Turn, error) {
	return nil, errors.New("disk full")
}

func TestRecorder_PersistsTerminalSuffix(t *testing.T) {
	store := NewMemoryStore()
	rec := NewRecorder(store, zap.NewNop())

	suffix := newTurns("c", "hello", "hi")
	rec.OnEvent(conversation.Event{Type: conversation.EventRunStarted, ChatID: "c"})
	rec.OnEvent(conversation.Event{Type: conversation.EventTurnAppended, ChatID: "c", Turn: &suffix[1]})

	turns, err := store.ListTurns(context.Background(), "c")
	require.NoError(t, err)
	assert.Empty(t, turns, "only terminal events are persisted")

	rec.OnEvent(conversation.Event{Type: conversation.EventRunCompleted, ChatID: "c", Turns: suffix})
	aborted := []types.Turn{types.NewUserTurn("c", "again", baseTime), types.NewSystemTurn("c", "paused", baseTime)}
	rec.OnEvent(conversation.Event{Type: conversation.EventRunAborted, ChatID: "c", Turns: aborted})

	turns, err = store.ListTurns(context.Background(), "c")
	require.NoError(t, err)
	require.Len(t, turns, 4)
	assert.Equal(t, int64(4), turns[3].Seq)
	assert.True(t, turns[3].System)
}

func TestRecorder_EmptySuffixIsSkipped(t *testing.T) {
	var called bool
	rec := NewRecorder(failingStore{NewMemoryStore()}, nil,
		WithErrorHandler(func(string, error) { called = true }))

	rec.OnEvent(conversation.Event{Type: conversation.EventRunCompleted, ChatID: "c"})
	assert.False(t, called)
}

func TestRecorder_ReportsWriteErrors(t *testing.T) {
	var gotChat string
	var gotErr error
	rec := NewRecorder(failingStore{NewMemoryStore()}, zap.NewNop(),
		WithWriteTimeout(0),
		WithErrorHandler(func(chatID string, err error) { gotChat, gotErr = chatID, err }))

	rec.OnEvent(conversation.Event{Type: conversation.EventRunAborted, ChatID: "c", Turns: newTurns("c", "x")})
	assert.Equal(t, "c", gotChat)
	assert.EqualError(t, gotErr, "disk full")
}

func TestRecorder_WithExecutor(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	require.NoError(t, store.SaveSession(ctx, &types.ChatSession{ID: "c", Members: []string{"alice"}}))

	dispatcher := echoDispatcher{}
	exec := conversation.NewExecutor(dispatcher, zap.NewNop(),
		conversation.WithObserver(NewRecorder(store, zap.NewNop())))
	sessions := conversation.NewSessions(store,
		conversation.NewPersonaMap([]types.Persona{{ID: "alice", Name: "Alice"}}), exec, zap.NewNop())

	h, err := sessions.StartSession(ctx, "c")
	require.NoError(t, err)
	_, err = h.Send(ctx, "hello", types.ProviderConfigs{})
	require.NoError(t, err)

	// a new session sees the persisted history
	h2, err := sessions.StartSession(ctx, "c")
	require.NoError(t, err)
	history := h2.History()
	require.Len(t, history, 2)
	assert.Equal(t, "hello", history[0].Text)
	assert.Equal(t, "echo: hello", history[1].Text)
}

type echoDispatcher struct{}

func (echoDispatcher) Generate(_ context.Context, req conversation.DispatchRequest) (types.Turn, error) {
	return types.NewPersonaTurn(req.ChatID, req.Persona, "echo: "+req.TriggeringText, baseTime), nil
}
