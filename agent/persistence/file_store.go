package persistence

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/BaSui01/roundtable/types"
)

// FileStore 在 MemoryStore 之上把全部数据以 JSON 快照写入磁盘。
// 适合单节点部署；每次写操作后原子替换 index.json。
type FileStore struct {
	*MemoryStore
	baseDir string
}

type fileSnapshot struct {
	Sessions map[string]*types.ChatSession `json:"sessions"`
	Turns    map[string][]types.Turn       `json:"turns"`
}

// NewFileStore 创建文件存储并加载已有快照
func NewFileStore(config StoreConfig) (*FileStore, error) {
	baseDir := filepath.Join(config.BaseDir, "chats")
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create chat store directory: %w", err)
	}

	store := &FileStore{MemoryStore: NewMemoryStore(), baseDir: baseDir}
	if err := store.loadFromDisk(); err != nil {
		return nil, fmt.Errorf("failed to load chats from disk: %w", err)
	}
	return store, nil
}

func (s *FileStore) indexPath() string {
	return filepath.Join(s.baseDir, "index.json")
}

// loadFromDisk loads the snapshot into memory
func (s *FileStore) loadFromDisk() error {
	data, err := os.ReadFile(s.indexPath())
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var snap fileSnapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return err
	}
	if snap.Sessions != nil {
		s.sessions = snap.Sessions
	}
	if snap.Turns != nil {
		s.turns = snap.Turns
	}
	return nil
}

// saveToDisk 写临时文件后 rename，调用方须持有写锁
func (s *FileStore) saveToDisk() error {
	data, err := json.MarshalIndent(fileSnapshot{Sessions: s.sessions, Turns: s.turns}, "", "  ")
	if err != nil {
		return err
	}

	tempPath := s.indexPath() + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tempPath, s.indexPath())
}

func (s *FileStore) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.saveToDisk(); err != nil {
		return fmt.Errorf("persist chat snapshot: %w", err)
	}
	return nil
}

// Close 写出最终快照后关闭
func (s *FileStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.saveToDisk()
}

func (s *FileStore) SaveSession(ctx context.Context, session *types.ChatSession) error {
	if err := s.MemoryStore.SaveSession(ctx, session); err != nil {
		return err
	}
	return s.flush()
}

func (s *FileStore) DeleteSession(ctx context.Context, chatID string) error {
	if err := s.MemoryStore.DeleteSession(ctx, chatID); err != nil {
		return err
	}
	return s.flush()
}

func (s *FileStore) AppendTurns(ctx context.Context, chatID string, turns []types.Turn) ([]types.Turn, error) {
	out, err := s.MemoryStore.AppendTurns(ctx, chatID, turns)
	if err != nil {
		return nil, err
	}
	return out, s.flush()
}
