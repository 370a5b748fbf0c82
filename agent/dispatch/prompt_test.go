package dispatch

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/roundtable/llm/factory"
	"github.com/BaSui01/roundtable/types"
)

var at = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

var (
	alice = types.Persona{ID: "alice", Name: "Alice", Role: "historian", Instruction: "You love dates."}
	bob   = types.Persona{ID: "bob", Name: "Bob"}
)

func sampleContext() []types.Turn {
	return []types.Turn{
		types.NewUserTurn("c", "When did Rome fall?", at),
		types.NewPersonaTurn("c", bob, "Depends which Rome.", at),
		types.NewSystemTurn("c", "paused", at),
		types.NewUserTurn("c", "The western one", at),
	}
}

func TestSystemInstruction(t *testing.T) {
	s := SystemInstruction(alice)
	assert.Contains(t, s, "You are Alice (historian)")
	assert.Contains(t, s, "group chat")
	assert.Contains(t, s, "You love dates.")
	assert.Contains(t, s, "Do not restate")
	assert.Contains(t, s, "under 1000 characters")

	s = SystemInstruction(types.Persona{ID: "x"})
	assert.Contains(t, s, "You are x,")
}

func TestGenericMessages(t *testing.T) {
	msgs := GenericMessages(alice, "The western one", sampleContext())
	require.Len(t, msgs, 4, "system + 2 earlier turns + raw trigger")

	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Equal(t, types.RoleUser, msgs[1].Role)
	assert.Equal(t, "User: When did Rome fall?", msgs[1].Content)
	assert.Equal(t, types.RoleAssistant, msgs[2].Role)
	assert.Equal(t, "Bob: Depends which Rome.", msgs[2].Content)
	assert.Equal(t, types.RoleUser, msgs[3].Role)
	assert.Equal(t, "The western one", msgs[3].Content)
	for _, m := range msgs {
		assert.NotContains(t, m.Content, "paused")
	}
}

func TestGenericMessages_AppendsTrigger(t *testing.T) {
	msgs := GenericMessages(alice, "Please summarize the discussion above.", sampleContext()[:2])
	last := msgs[len(msgs)-1]
	assert.Equal(t, types.RoleUser, last.Role)
	assert.Equal(t, "Please summarize the discussion above.", last.Content)

	msgs = GenericMessages(alice, "hi", nil)
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[1].Content)
}

func TestGenericMessages_TriggerFormIsStableAcrossSpeakers(t *testing.T) {
	first := sampleContext()
	later := append(sampleContext(), types.NewPersonaTurn("c", bob, "Then 476.", at))

	for _, ctx := range [][]types.Turn{first, later} {
		msgs := GenericMessages(alice, "The western one", ctx)
		last := msgs[len(msgs)-1]
		assert.Equal(t, types.RoleUser, last.Role)
		assert.Equal(t, "The western one", last.Content)

		mentions := 0
		for _, m := range msgs {
			mentions += strings.Count(m.Content, "The western one")
		}
		assert.Equal(t, 1, mentions, "the user turn of this run appears exactly once")
	}

	msgs := GenericMessages(alice, "The western one", later)
	assert.Equal(t, "Bob: Then 476.", msgs[len(msgs)-2].Content)

	text := RenderTranscript(alice, "The western one", later)
	assert.Equal(t, 1, strings.Count(text, "The western one"))
	assert.Contains(t, text, "Bob: Then 476.\n\nUser: The western one\n\n")
}

func TestNativeMessages(t *testing.T) {
	msgs := NativeMessages(alice, "The western one", sampleContext())
	require.Len(t, msgs, 2)
	assert.Equal(t, types.RoleSystem, msgs[0].Role)
	assert.Equal(t, types.RoleUser, msgs[1].Role)

	text := msgs[1].Content
	assert.True(t, strings.HasPrefix(text, "Conversation so far:\n"))
	assert.Contains(t, text, "Bob: Depends which Rome.\n")
	assert.Equal(t, 1, strings.Count(text, "The western one"))
	assert.NotContains(t, text, "paused")
	assert.True(t, strings.HasSuffix(text, "Now reply as Alice."))
}

func TestRenderTranscript_EmptyContext(t *testing.T) {
	text := RenderTranscript(bob, "hello", nil)
	assert.Equal(t, "User: hello\n\nNow reply as Bob.", text)
}

func TestBuildMessages_SelectsConvention(t *testing.T) {
	native := BuildMessages(factory.ConventionNative, alice, "x", sampleContext())
	generic := BuildMessages(factory.ConventionGeneric, alice, "x", sampleContext())
	assert.Len(t, native, 2)
	assert.Len(t, generic, 5)
}
