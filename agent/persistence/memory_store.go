package persistence

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/roundtable/types"
)

// MemoryStore 是 ChatStore 的内存实现。
// 适合开发和测试，数据在重新启动时丢失。
type MemoryStore struct {
	sessions map[string]*types.ChatSession
	turns    map[string][]types.Turn // chatID -> 按 Seq 排列的发言
	mu       sync.RWMutex
	closed   bool
	now      func() time.Time
}

// NewMemoryStore 创建内存存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]*types.ChatSession),
		turns:    make(map[string][]types.Turn),
		now:      time.Now,
	}
}

// Close 关闭存储
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// Ping 检查存储是否可用
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	return nil
}

func (s *MemoryStore) SaveSession(ctx context.Context, session *types.ChatSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if existing, ok := s.sessions[sessionID(session)]; ok {
		session.CreatedAt = existing.CreatedAt
	}
	if err := prepareSession(session, s.now()); err != nil {
		return err
	}
	s.sessions[session.ID] = cloneSession(session)
	return nil
}

func (s *MemoryStore) GetSession(ctx context.Context, chatID string) (*types.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	session, ok := s.sessions[chatID]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneSession(session), nil
}

func (s *MemoryStore) ListSessions(ctx context.Context) ([]*types.ChatSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make([]*types.ChatSession, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, cloneSession(session))
	}
	sortSessions(out)
	return out, nil
}

func (s *MemoryStore) DeleteSession(ctx context.Context, chatID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStoreClosed
	}

	if _, ok := s.sessions[chatID]; !ok {
		return ErrNotFound
	}
	delete(s.sessions, chatID)
	delete(s.turns, chatID)
	return nil
}

func (s *MemoryStore) AppendTurns(ctx context.Context, chatID string, turns []types.Turn) ([]types.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	existing := s.turns[chatID]
	out, err := prepareTurns(chatID, turns, int64(len(existing))+1)
	if err != nil {
		return nil, err
	}
	s.turns[chatID] = append(existing, out...)
	return types.CloneTurns(out), nil
}

func (s *MemoryStore) ListTurns(ctx context.Context, chatID string) ([]types.Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	out := make([]types.Turn, len(s.turns[chatID]))
	copy(out, s.turns[chatID])
	return out, nil
}

func sessionID(session *types.ChatSession) string {
	if session == nil {
		return ""
	}
	return session.ID
}

// sortSessions 按创建时间排序，时间相同按 id
func sortSessions(sessions []*types.ChatSession) {
	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].CreatedAt.Equal(sessions[j].CreatedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].CreatedAt.Before(sessions[j].CreatedAt)
	})
}
