package conversation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/internal/ctxkeys"
	"github.com/BaSui01/roundtable/types"
)

const (
	// FailureNotice is the fixed text of the system turn appended on abort.
	FailureNotice = "Something went wrong while generating replies, so the conversation has been paused. Please try again."

	// SummaryInstruction is the triggering text of a summarization run.
	SummaryInstruction = "Please summarize the discussion above."

	// SummaryPrefix marks summary turns when rendered.
	SummaryPrefix = "[Summary] "

	tracerName = "github.com/BaSui01/roundtable/agent/conversation"
)

// RunState is the executor state of one run.
type RunState string

const (
	StateIdle      RunState = "idle"
	StateRunning   RunState = "running"
	StateCompleted RunState = "completed"
	StateAborted   RunState = "aborted"
)

// RunKind distinguishes a message run from a summarization run.
type RunKind string

const (
	RunKindMessage RunKind = "message"
	RunKindSummary RunKind = "summary"
)

// ErrInvalidTrigger is returned for triggers that cannot start a run.
var ErrInvalidTrigger = errors.New("invalid trigger")

// DispatchRequest is one generation call for one persona.
type DispatchRequest struct {
	ChatID          string
	Persona         types.Persona
	TriggeringText  string
	Context         []types.Turn
	ProviderConfigs types.ProviderConfigs
}

// Dispatcher performs exactly one generation call and returns the persona's
// turn or a *types.Error from the dispatch taxonomy.
type Dispatcher interface {
	Generate(ctx context.Context, req DispatchRequest) (types.Turn, error)
}

// Trigger starts a message run. ProviderConfigs are read-only for the run.
type Trigger struct {
	ChatID          string
	Text            string
	Roster          []types.Persona
	Settings        map[string]types.MemberSettings
	Policy          types.OrderingPolicy
	FixedOrder      []string
	ProviderConfigs types.ProviderConfigs
	Prior           []types.Turn
}

// SummaryTrigger starts a summarization run for the designated agent.
type SummaryTrigger struct {
	ChatID          string
	Agent           types.Persona
	ProviderConfigs types.ProviderConfigs
	Prior           []types.Turn
}

// RunResult is the terminal report of a run. Suffix holds every turn
// appended by the run; ownership passes to the caller.
type RunResult struct {
	RunID      string       `json:"run_id"`
	ChatID     string       `json:"chat_id"`
	Kind       RunKind      `json:"kind"`
	State      RunState     `json:"state"`
	QueueLen   int          `json:"queue_len"`
	Suffix     []types.Turn `json:"turns"`
	Err        error        `json:"-"`
	StartedAt  time.Time    `json:"started_at"`
	FinishedAt time.Time    `json:"finished_at"`
}

// ErrorSummary returns the diagnostic text of an aborted run.
func (r *RunResult) ErrorSummary() string {
	if r == nil || r.Err == nil {
		return ""
	}
	return r.Err.Error()
}

// Executor drains speech queues through a Dispatcher. One Executor serves
// many runs; each Run or Summarize call owns its own state machine.
type Executor struct {
	dispatcher Dispatcher
	buildQueue QueueBuilder
	rng        RandSource
	observer   Observer
	tracer     trace.Tracer
	now        func() time.Time
	logger     *zap.Logger
}

// ExecutorOption configures an Executor.
type ExecutorOption func(*Executor)

// WithObserver sets the event observer.
func WithObserver(o Observer) ExecutorOption {
	return func(e *Executor) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithRandSource sets the randomness used by shuffling policies.
func WithRandSource(r RandSource) ExecutorOption {
	return func(e *Executor) {
		if r != nil {
			e.rng = r
		}
	}
}

// WithQueueBuilder replaces BuildQueue.
func WithQueueBuilder(b QueueBuilder) ExecutorOption {
	return func(e *Executor) {
		if b != nil {
			e.buildQueue = b
		}
	}
}

// WithClock sets the time source for user and system turns.
func WithClock(now func() time.Time) ExecutorOption {
	return func(e *Executor) {
		if now != nil {
			e.now = now
		}
	}
}

// WithTracer sets the tracer; the global provider is used otherwise.
func WithTracer(t trace.Tracer) ExecutorOption {
	return func(e *Executor) {
		if t != nil {
			e.tracer = t
		}
	}
}

// NewExecutor creates an executor.
func NewExecutor(d Dispatcher, logger *zap.Logger, opts ...ExecutorOption) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Executor{
		dispatcher: d,
		buildQueue: BuildQueue,
		rng:        SystemRand(),
		observer:   nopObserver{},
		tracer:     otel.Tracer(tracerName),
		now:        time.Now,
		logger:     logger.With(zap.String("component", "turn_executor")),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// =============================================================================
// Run state machine
// =============================================================================

type run struct {
	id         string
	chatID     string
	kind       RunKind
	state      RunState
	queueLen   int
	transcript *Transcript
	startedAt  time.Time
	logger     *zap.Logger
}

func (e *Executor) newRun(chatID string, kind RunKind, prior []types.Turn) *run {
	id := uuid.NewString()
	return &run{
		id:         id,
		chatID:     chatID,
		kind:       kind,
		state:      StateIdle,
		transcript: NewTranscript(prior),
		startedAt:  e.now(),
		logger: e.logger.With(
			zap.String("chat_id", chatID),
			zap.String("run_id", id),
			zap.String("kind", string(kind)),
		),
	}
}

var validTransitions = map[RunState][]RunState{
	StateIdle:    {StateRunning, StateCompleted},
	StateRunning: {StateCompleted, StateAborted},
}

func (r *run) transition(to RunState) {
	for _, allowed := range validTransitions[r.state] {
		if allowed == to {
			r.state = to
			return
		}
	}
	panic(fmt.Sprintf("conversation: invalid run transition %s -> %s", r.state, to))
}

func (e *Executor) emit(r *run, ev Event) {
	ev.ChatID = r.chatID
	ev.RunID = r.id
	ev.Kind = r.kind
	if ev.Timestamp.IsZero() {
		ev.Timestamp = e.now()
	}
	e.observer.OnEvent(ev)
}

func (e *Executor) result(r *run, err error) *RunResult {
	return &RunResult{
		RunID:      r.id,
		ChatID:     r.chatID,
		Kind:       r.kind,
		State:      r.state,
		QueueLen:   r.queueLen,
		Suffix:     r.transcript.Suffix(),
		Err:        err,
		StartedAt:  r.startedAt,
		FinishedAt: e.now(),
	}
}

// Run handles one inbound user message: it builds the speech queue and
// drains it strictly sequentially. Each speaker sees every turn appended
// before it in the same run. The first dispatch failure aborts the run.
func (e *Executor) Run(ctx context.Context, trig Trigger) (*RunResult, error) {
	if strings.TrimSpace(trig.Text) == "" {
		return nil, fmt.Errorf("%w: message text is empty", ErrInvalidTrigger)
	}

	r := e.newRun(trig.ChatID, RunKindMessage, trig.Prior)
	queue := e.buildQueue(trig.Roster, trig.Settings, trig.Policy, trig.FixedOrder, e.rng)
	r.queueLen = len(queue)

	ctx, span := e.tracer.Start(ctx, "conversation.run", trace.WithAttributes(
		attribute.String("chat.id", r.chatID),
		attribute.String("run.id", r.id),
		attribute.String("run.kind", string(r.kind)),
		attribute.String("policy", string(trig.Policy)),
		attribute.Int("queue.len", r.queueLen),
	))
	defer span.End()
	ctx = ctxkeys.WithRunID(ctxkeys.WithChatID(ctx, r.chatID), r.id)

	r.logger.Info("run started", zap.Int("queue_len", r.queueLen), zap.String("policy", string(trig.Policy)))
	e.emit(r, Event{Type: EventRunStarted, QueueLen: r.queueLen})

	if len(queue) == 0 {
		return e.complete(r, span), nil
	}

	r.transition(StateRunning)
	r.transcript.Append(types.NewUserTurn(r.chatID, trig.Text, e.now()))

	for i, persona := range queue {
		if _, err := e.speak(ctx, r, persona, trig.Text, i+1, trig.ProviderConfigs, nil); err != nil {
			return e.abort(r, span, persona, i+1, err), nil
		}
	}
	return e.complete(r, span), nil
}

// Summarize asks the summary agent for a digest of the whole context.
// It never consults the queue builder.
func (e *Executor) Summarize(ctx context.Context, trig SummaryTrigger) (*RunResult, error) {
	if strings.TrimSpace(trig.Agent.ID) == "" {
		return nil, fmt.Errorf("%w: no summary agent", ErrInvalidTrigger)
	}

	r := e.newRun(trig.ChatID, RunKindSummary, trig.Prior)
	r.queueLen = 1

	ctx, span := e.tracer.Start(ctx, "conversation.run", trace.WithAttributes(
		attribute.String("chat.id", r.chatID),
		attribute.String("run.id", r.id),
		attribute.String("run.kind", string(r.kind)),
		attribute.String("summary.agent", trig.Agent.ID),
	))
	defer span.End()
	ctx = ctxkeys.WithRunID(ctxkeys.WithChatID(ctx, r.chatID), r.id)

	r.logger.Info("run started", zap.String("summary_agent", trig.Agent.ID), zap.Int("context_len", len(trig.Prior)))
	e.emit(r, Event{Type: EventRunStarted, QueueLen: 1})
	r.transition(StateRunning)

	tag := func(t *types.Turn) {
		t.Summary = true
		t.Text = SummaryPrefix + t.Text
	}
	if _, err := e.speak(ctx, r, trig.Agent, SummaryInstruction, 1, trig.ProviderConfigs, tag); err != nil {
		return e.abort(r, span, trig.Agent, 1, err), nil
	}
	return e.complete(r, span), nil
}

// speak runs one queue entry against the current transcript.
func (e *Executor) speak(ctx context.Context, r *run, p types.Persona, trigger string, pos int,
	cfgs types.ProviderConfigs, decorate func(*types.Turn)) (types.Turn, error) {
	ctx, span := e.tracer.Start(ctx, "conversation.turn", trace.WithAttributes(
		attribute.String("persona.id", p.ID),
		attribute.Int("queue.position", pos),
	))
	defer span.End()

	e.emit(r, Event{Type: EventTurnStarting, Speaker: p.DisplayName(), Position: pos, QueueLen: r.queueLen})
	r.logger.Debug("turn starting", zap.String("persona", p.ID), zap.Int("position", pos))

	turn, err := e.dispatcher.Generate(ctx, DispatchRequest{
		ChatID:          r.chatID,
		Persona:         p,
		TriggeringText:  trigger,
		Context:         r.transcript.Turns(),
		ProviderConfigs: cfgs,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return types.Turn{}, err
	}

	turn.ChatID = r.chatID
	if turn.SpeakerID == "" {
		turn.SpeakerID = p.ID
		turn.SpeakerName = p.DisplayName()
	}
	if turn.Timestamp.IsZero() {
		turn.Timestamp = e.now()
	}
	if decorate != nil {
		decorate(&turn)
	}
	r.transcript.Append(turn)

	appended := turn
	e.emit(r, Event{Type: EventTurnAppended, Turn: &appended, Preview: turn.Text, Position: pos, QueueLen: r.queueLen})
	return turn, nil
}

func (e *Executor) complete(r *run, span trace.Span) *RunResult {
	r.transition(StateCompleted)
	res := e.result(r, nil)
	span.SetAttributes(attribute.String("run.state", string(r.state)))
	r.logger.Info("run completed", zap.Int("appended", len(res.Suffix)))
	e.emit(r, Event{Type: EventRunCompleted, Turns: res.Suffix, QueueLen: r.queueLen})
	return res
}

// abort appends exactly one generic failure turn and discards the rest of
// the queue. The error kind only reaches logs and the error summary.
func (e *Executor) abort(r *run, span trace.Span, p types.Persona, pos int, err error) *RunResult {
	r.transition(StateAborted)
	r.transcript.Append(types.NewSystemTurn(r.chatID, FailureNotice, e.now()))

	fields := []zap.Field{
		zap.String("persona", p.ID),
		zap.Int("position", pos),
		zap.Int("discarded", r.queueLen-pos),
		zap.Error(err),
	}
	if te, ok := types.AsError(err); ok {
		fields = append(fields,
			zap.String("code", string(te.Code)),
			zap.String("provider", te.Provider),
			zap.Int("http_status", te.HTTPStatus),
		)
	}
	r.logger.Warn("run aborted", fields...)

	span.RecordError(err)
	span.SetStatus(codes.Error, "run aborted")
	span.SetAttributes(attribute.String("run.state", string(r.state)))

	res := e.result(r, err)
	e.emit(r, Event{Type: EventRunAborted, Turns: res.Suffix, Error: res.ErrorSummary(), QueueLen: r.queueLen})
	return res
}
