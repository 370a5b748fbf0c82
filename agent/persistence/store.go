// Package persistence 保存聊天会话设置与发言历史。
//
// 编排核心只读取历史、从不写入；持久化由调用方通过 Recorder 观察者完成。
//
// Supported backends:
// - Memory: 开发与测试（默认）
// - File: 单节点部署，原子写入 JSON 快照
// - Redis: 分布式部署
// - SQL: 通过 gorm 使用 PostgreSQL / MySQL / SQLite
// - Mongo: MongoDB 文档存储
package persistence

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/BaSui01/roundtable/types"
)

// Common errors
var (
	ErrNotFound     = errors.New("not found")
	ErrStoreClosed  = errors.New("store is closed")
	ErrInvalidInput = errors.New("invalid input")
)

// StoreType represents the type of storage backend
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeFile   StoreType = "file"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeSQL    StoreType = "sql"
	StoreTypeMongo  StoreType = "mongo"
)

// StoreConfig is the base configuration for all store implementations
type StoreConfig struct {
	// Type is the storage backend type
	Type StoreType `json:"type" yaml:"type" env:"TYPE"`

	// BaseDir is the base directory for file-based storage
	BaseDir string `json:"base_dir" yaml:"base_dir" env:"BASE_DIR"`

	// KeyPrefix is the prefix for all Redis keys
	KeyPrefix string `json:"key_prefix" yaml:"key_prefix" env:"KEY_PREFIX"`

	// AutoMigrate 在 SQL 后端启动时执行 gorm AutoMigrate
	AutoMigrate bool `json:"auto_migrate" yaml:"auto_migrate" env:"AUTO_MIGRATE"`

	// Mongo configuration (only used when Type is "mongo")
	Mongo MongoStoreConfig `json:"mongo" yaml:"mongo"`
}

// MongoStoreConfig contains MongoDB-specific configuration
type MongoStoreConfig struct {
	URI            string        `json:"uri" yaml:"uri" env:"URI"`
	Database       string        `json:"database" yaml:"database" env:"DATABASE"`
	ConnectTimeout time.Duration `json:"connect_timeout" yaml:"connect_timeout" env:"CONNECT_TIMEOUT"`
}

// DefaultStoreConfig returns the default store configuration
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		Type:      StoreTypeMemory,
		BaseDir:   "./data/roundtable",
		KeyPrefix: "roundtable:",
		Mongo: MongoStoreConfig{
			URI:            "mongodb://localhost:27017",
			Database:       "roundtable",
			ConnectTimeout: 10 * time.Second,
		},
	}
}

// Store is the base interface for all persistent stores
type Store interface {
	// Close closes the store and releases resources
	Close() error

	// Ping checks if the store is healthy
	Ping(ctx context.Context) error
}

// ChatStore 保存会话设置与按序追加的发言
type ChatStore interface {
	Store

	// SaveSession 新建或更新会话设置，首次保存的 CreatedAt 保持不变
	SaveSession(ctx context.Context, session *types.ChatSession) error

	// GetSession 读取会话设置，不存在时返回 ErrNotFound
	GetSession(ctx context.Context, chatID string) (*types.ChatSession, error)

	// ListSessions 按创建时间返回所有会话
	ListSessions(ctx context.Context) ([]*types.ChatSession, error)

	// DeleteSession 删除会话及其全部发言
	DeleteSession(ctx context.Context, chatID string) error

	// AppendTurns 追加发言并分配连续的 Seq，返回写入后的发言
	AppendTurns(ctx context.Context, chatID string, turns []types.Turn) ([]types.Turn, error)

	// ListTurns 按追加顺序返回会话的全部发言
	ListTurns(ctx context.Context, chatID string) ([]types.Turn, error)
}

// prepareSession 校验会话并补齐时间戳
func prepareSession(session *types.ChatSession, now time.Time) error {
	if session == nil {
		return ErrInvalidInput
	}
	if err := session.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = now
	}
	session.UpdatedAt = now
	return nil
}

// prepareTurns 为发言补齐会话 id 并从 next 开始编号
func prepareTurns(chatID string, turns []types.Turn, next int64) ([]types.Turn, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id is required", ErrInvalidInput)
	}
	out := make([]types.Turn, len(turns))
	for i, t := range turns {
		if t.ID == "" {
			return nil, fmt.Errorf("%w: turn %d has no id", ErrInvalidInput, i)
		}
		t.ChatID = chatID
		t.Seq = next + int64(i)
		out[i] = t
	}
	return out, nil
}

func cloneSession(s *types.ChatSession) *types.ChatSession {
	cp := *s
	cp.Members = append([]string(nil), s.Members...)
	cp.FixedOrder = append([]string(nil), s.FixedOrder...)
	if s.Settings != nil {
		cp.Settings = make(map[string]types.MemberSettings, len(s.Settings))
		for k, v := range s.Settings {
			cp.Settings[k] = v
		}
	}
	return &cp
}
