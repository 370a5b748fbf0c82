package conversation

import (
	"time"

	"github.com/BaSui01/roundtable/types"
)

// EventType identifies an executor notification.
type EventType string

const (
	EventRunStarted   EventType = "run_started"
	EventTurnStarting EventType = "turn_starting"
	EventTurnAppended EventType = "turn_appended"
	EventRunCompleted EventType = "run_completed"
	EventRunAborted   EventType = "run_aborted"
)

// Event is one notification emitted by the executor.
type Event struct {
	Type      EventType    `json:"type"`
	ChatID    string       `json:"chat_id"`
	RunID     string       `json:"run_id"`
	Kind      RunKind      `json:"kind"`
	Timestamp time.Time    `json:"timestamp"`
	QueueLen  int          `json:"queue_len,omitempty"`
	Position  int          `json:"position,omitempty"`
	Speaker   string       `json:"speaker,omitempty"`
	Turn      *types.Turn  `json:"turn,omitempty"`
	Preview   string       `json:"preview,omitempty"`
	Turns     []types.Turn `json:"turns,omitempty"`
	Error     string       `json:"error,omitempty"`
}

// Terminal reports whether the event ends a run.
func (e Event) Terminal() bool {
	return e.Type == EventRunCompleted || e.Type == EventRunAborted
}

// Observer receives executor events synchronously, in emission order.
// Implementations must not block for long: the run waits for OnEvent.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

func (f ObserverFunc) OnEvent(e Event) { f(e) }

// Observers fans an event out to several observers.
type Observers []Observer

func (o Observers) OnEvent(e Event) {
	for _, obs := range o {
		if obs != nil {
			obs.OnEvent(e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) OnEvent(Event) {}
