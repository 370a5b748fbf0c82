package conversation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/BaSui01/roundtable/types"
)

var testNow = time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)

func fixedClock() time.Time { return testNow }

func persona(id string) types.Persona {
	return types.Persona{ID: id, Name: "Persona " + id}
}

func personas(ids ...string) []types.Persona {
	out := make([]types.Persona, 0, len(ids))
	for _, id := range ids {
		out = append(out, persona(id))
	}
	return out
}

func ids(queue []types.Persona) []string {
	out := make([]string, 0, len(queue))
	for _, p := range queue {
		out = append(out, p.ID)
	}
	return out
}

// scriptedDispatcher answers every call with "<persona>#<n>" and fails the
// failAt-th call (1-indexed) when failAt > 0.
type scriptedDispatcher struct {
	mu      sync.Mutex
	calls   []DispatchRequest
	failAt  int
	err     error
	started chan struct{}
	release chan struct{}
}

func (d *scriptedDispatcher) Generate(ctx context.Context, req DispatchRequest) (types.Turn, error) {
	d.mu.Lock()
	d.calls = append(d.calls, req)
	n := len(d.calls)
	d.mu.Unlock()

	if d.started != nil {
		d.started <- struct{}{}
	}
	if d.release != nil {
		<-d.release
	}
	if d.failAt == n {
		return types.Turn{}, d.err
	}
	return types.NewPersonaTurn(req.ChatID, req.Persona, fmt.Sprintf("%s#%d", req.Persona.ID, n), testNow), nil
}

func (d *scriptedDispatcher) Calls() []DispatchRequest {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]DispatchRequest, len(d.calls))
	copy(out, d.calls)
	return out
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnEvent(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) Types() []EventType {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]EventType, 0, len(l.events))
	for _, e := range l.events {
		out = append(out, e.Type)
	}
	return out
}

func (l *eventLog) Events() []Event {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out
}
