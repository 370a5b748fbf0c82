package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/BaSui01/roundtable/agent/conversation"
	"github.com/BaSui01/roundtable/types"
)

func newHubServer(t *testing.T) (*EventHub, *httptest.Server) {
	t.Helper()
	hub := NewEventHub(nil, nil)
	mux := http.NewServeMux()
	hub.Register(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return hub, srv
}

func dialEvents(t *testing.T, srv *httptest.Server, chatID string) *websocket.Conn {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/sessions/" + chatID + "/events"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.CloseNow() })
	return conn
}

func waitSubscribers(t *testing.T, hub *EventHub, chatID string, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return hub.Subscribers(chatID) == n },
		2*time.Second, 10*time.Millisecond)
}

func TestEventHub_StreamsChatEvents(t *testing.T) {
	hub, srv := newHubServer(t)
	conn := dialEvents(t, srv, "c1")
	waitSubscribers(t, hub, "c1", 1)

	turn := types.NewUserTurn("c1", "hello", time.Now())
	hub.OnEvent(conversation.Event{Type: conversation.EventRunStarted, ChatID: "c1", RunID: "r1", QueueLen: 2})
	hub.OnEvent(conversation.Event{Type: conversation.EventRunStarted, ChatID: "other", RunID: "r2"})
	hub.OnEvent(conversation.Event{Type: conversation.EventTurnAppended, ChatID: "c1", RunID: "r1", Turn: &turn, Preview: "hello"})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var first, second conversation.Event
	require.NoError(t, wsjson.Read(ctx, conn, &first))
	require.NoError(t, wsjson.Read(ctx, conn, &second))

	assert.Equal(t, conversation.EventRunStarted, first.Type)
	assert.Equal(t, "r1", first.RunID)
	assert.Equal(t, 2, first.QueueLen)

	assert.Equal(t, conversation.EventTurnAppended, second.Type)
	require.NotNil(t, second.Turn)
	assert.Equal(t, "hello", second.Turn.Text)
}

func TestEventHub_UnsubscribesOnClose(t *testing.T) {
	hub, srv := newHubServer(t)
	conn := dialEvents(t, srv, "c1")
	waitSubscribers(t, hub, "c1", 1)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, "bye"))
	waitSubscribers(t, hub, "c1", 0)
}

func TestEventHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	hub := NewEventHub(nil, nil)
	sub := hub.subscribe("c1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBuffer*2; i++ {
			hub.OnEvent(conversation.Event{Type: conversation.EventTurnStarting, ChatID: "c1"})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("OnEvent blocked on a full subscriber")
	}
	assert.Len(t, sub.events, subscriberBuffer)
	assert.Equal(t, int64(subscriberBuffer), sub.dropped.Load())
}
