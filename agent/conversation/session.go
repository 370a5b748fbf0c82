package conversation

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/types"
)

var (
	// ErrSessionBusy is returned when a chat already has a run in progress.
	ErrSessionBusy = errors.New("session already has a run in progress")

	// ErrNoSummaryAgent is returned when no usable summary agent is designated.
	ErrNoSummaryAgent = errors.New("session has no summary agent")
)

// SessionLoader reads persisted session state. It is read-only: the
// orchestrator never writes history itself.
type SessionLoader interface {
	GetSession(ctx context.Context, chatID string) (*types.ChatSession, error)
	ListTurns(ctx context.Context, chatID string) ([]types.Turn, error)
}

// PersonaCatalog resolves persona ids.
type PersonaCatalog interface {
	Persona(id string) (types.Persona, bool)
}

// PersonaMap is an in-memory PersonaCatalog.
type PersonaMap map[string]types.Persona

// NewPersonaMap indexes personas by id.
func NewPersonaMap(personas []types.Persona) PersonaMap {
	m := make(PersonaMap, len(personas))
	for _, p := range personas {
		m[p.ID] = p
	}
	return m
}

func (m PersonaMap) Persona(id string) (types.Persona, bool) {
	p, ok := m[id]
	return p, ok
}

// Sessions creates session handles and enforces one run per chat at a time.
type Sessions struct {
	loader   SessionLoader
	personas PersonaCatalog
	executor *Executor
	logger   *zap.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewSessions creates the session factory.
func NewSessions(loader SessionLoader, personas PersonaCatalog, executor *Executor, logger *zap.Logger) *Sessions {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sessions{
		loader:   loader,
		personas: personas,
		executor: executor,
		logger:   logger.With(zap.String("component", "sessions")),
		locks:    make(map[string]*sync.Mutex),
	}
}

// acquire takes the chat's run lock without waiting.
func (s *Sessions) acquire(chatID string) (*sync.Mutex, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[chatID]
	if !ok {
		l = &sync.Mutex{}
		s.locks[chatID] = l
	}
	return l, l.TryLock()
}

// Forget drops the run lock of a deleted chat. A lock held by a run in
// progress is kept.
func (s *Sessions) Forget(chatID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.locks[chatID]; ok && l.TryLock() {
		delete(s.locks, chatID)
		l.Unlock()
	}
}

// StartSession loads the chat's settings and persisted turns into a fresh
// conversation context. Switching chats means starting a new session.
func (s *Sessions) StartSession(ctx context.Context, chatID string) (*SessionHandle, error) {
	session, err := s.loader.GetSession(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load session %s: %w", chatID, err)
	}
	history, err := s.loader.ListTurns(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("load turns %s: %w", chatID, err)
	}

	roster := make([]types.Persona, 0, len(session.Members))
	for _, id := range session.Members {
		p, ok := s.personas.Persona(id)
		if !ok {
			s.logger.Warn("roster member not in persona catalog, skipped",
				zap.String("chat_id", chatID), zap.String("persona", id))
			continue
		}
		roster = append(roster, p)
	}

	s.logger.Debug("session started",
		zap.String("chat_id", chatID),
		zap.Int("history", len(history)),
		zap.Int("roster", len(roster)),
	)

	return &SessionHandle{
		chatID:   chatID,
		session:  *session,
		roster:   roster,
		history:  NewTranscript(history),
		sessions: s,
	}, nil
}

// SessionHandle is one chat's live state: settings, roster and a context
// seeded from persisted history.
type SessionHandle struct {
	chatID   string
	session  types.ChatSession
	roster   []types.Persona
	sessions *Sessions

	mu      sync.Mutex
	history *Transcript
}

// ChatID returns the chat id.
func (h *SessionHandle) ChatID() string { return h.chatID }

// Session returns the settings the handle was started with.
func (h *SessionHandle) Session() types.ChatSession { return h.session }

// Roster returns the resolved members in roster order.
func (h *SessionHandle) Roster() []types.Persona {
	out := make([]types.Persona, len(h.roster))
	copy(out, h.roster)
	return out
}

// History returns the current context.
func (h *SessionHandle) History() []types.Turn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.history.Turns()
}

// Send runs the orchestrator for one user message. The context is reloaded
// from the store once the run lock is held, so a run always sees every turn
// persisted by earlier runs. The run suffix is folded into the handle's
// context; persisting it is the caller's job.
func (h *SessionHandle) Send(ctx context.Context, text string, cfgs types.ProviderConfigs) (*RunResult, error) {
	release, err := h.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := h.sessions.executor.Run(ctx, Trigger{
		ChatID:          h.chatID,
		Text:            text,
		Roster:          h.roster,
		Settings:        h.session.Settings,
		Policy:          h.session.Policy,
		FixedOrder:      h.session.FixedOrder,
		ProviderConfigs: cfgs,
		Prior:           h.History(),
	})
	if err != nil {
		return nil, err
	}
	h.fold(res)
	return res, nil
}

// Summarize runs the summarization variant with the designated summary agent.
func (h *SessionHandle) Summarize(ctx context.Context, cfgs types.ProviderConfigs) (*RunResult, error) {
	agentID := h.session.SummaryAgentID
	if agentID == "" {
		return nil, ErrNoSummaryAgent
	}
	agent, ok := h.sessions.personas.Persona(agentID)
	if !ok {
		return nil, fmt.Errorf("%w: persona %s not found", ErrNoSummaryAgent, agentID)
	}

	release, err := h.begin(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	res, err := h.sessions.executor.Summarize(ctx, SummaryTrigger{
		ChatID:          h.chatID,
		Agent:           agent,
		ProviderConfigs: cfgs,
		Prior:           h.History(),
	})
	if err != nil {
		return nil, err
	}
	h.fold(res)
	return res, nil
}

// begin takes the chat's run lock and refreshes the context from the store.
func (h *SessionHandle) begin(ctx context.Context) (func(), error) {
	l, ok := h.sessions.acquire(h.chatID)
	if !ok {
		return nil, ErrSessionBusy
	}
	turns, err := h.sessions.loader.ListTurns(ctx, h.chatID)
	if err != nil {
		l.Unlock()
		return nil, fmt.Errorf("load turns %s: %w", h.chatID, err)
	}

	h.mu.Lock()
	h.history = NewTranscript(turns)
	h.mu.Unlock()
	return l.Unlock, nil
}

func (h *SessionHandle) fold(res *RunResult) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, t := range res.Suffix {
		h.history.Append(t)
	}
}
