// Package cache provides internal cache management.
// This package is internal and should not be imported by external projects.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var (
	// ErrCacheMiss 键不存在或已过期
	ErrCacheMiss = errors.New("cache miss")
	// ErrClosed Close 之后的任何操作
	ErrClosed = errors.New("cache manager is closed")
)

// IsCacheMiss 判断是否为未命中
func IsCacheMiss(err error) bool {
	return errors.Is(err, ErrCacheMiss)
}

// connectTimeout NewManager 建连时 Ping 的超时
const connectTimeout = 5 * time.Second

// Config 缓存配置。KeyPrefix 拼在所有键前面，与 Redis 会话存储共用实例时用来隔离。
type Config struct {
	Addr         string        `yaml:"addr" json:"addr"`
	Password     string        `yaml:"password" json:"password"`
	DB           int           `yaml:"db" json:"db"`
	KeyPrefix    string        `yaml:"key_prefix" json:"key_prefix"`
	DefaultTTL   time.Duration `yaml:"default_ttl" json:"default_ttl"`
	MaxRetries   int           `yaml:"max_retries" json:"max_retries"`
	PoolSize     int           `yaml:"pool_size" json:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns" json:"min_idle_conns"`
}

// DefaultConfig 返回默认缓存配置
func DefaultConfig() Config {
	return Config{
		Addr:         "localhost:6379",
		DefaultTTL:   24 * time.Hour,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// Manager 基于 Redis 的字符串/JSON 缓存
type Manager struct {
	redis  redis.UniversalClient
	config Config
	logger *zap.Logger
	owned  bool

	mu     sync.RWMutex
	closed bool
}

// NewManager 自建 Redis 连接；Close 时一并关闭
func NewManager(cfg Config, logger *zap.Logger) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		MaxRetries:   cfg.MaxRetries,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
	})

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", cfg.Addr, err)
	}

	m := NewManagerFromClient(client, cfg, logger)
	m.owned = true
	m.logger.Info("cache manager initialized", zap.String("addr", cfg.Addr), zap.Int("pool_size", cfg.PoolSize))
	return m, nil
}

// NewManagerFromClient 借用已有客户端；Close 不会关闭它
func NewManagerFromClient(client redis.UniversalClient, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		redis:  client,
		config: cfg,
		logger: logger.With(zap.String("component", "cache")),
	}
}

func (m *Manager) key(k string) string { return m.config.KeyPrefix + k }

// with 在读锁内执行 fn，已关闭时返回 ErrClosed。
// Redis 错误带上操作名后返回，并记一条 error 日志。
func (m *Manager) with(op string, fn func() error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return ErrClosed
	}
	err := fn()
	if err == nil || errors.Is(err, ErrCacheMiss) {
		return err
	}
	m.logger.Error("cache "+op+" failed", zap.Error(err))
	return fmt.Errorf("cache %s failed: %w", op, err)
}

// Get 读取字符串值
func (m *Manager) Get(ctx context.Context, key string) (string, error) {
	var val string
	err := m.with("get", func() error {
		v, err := m.redis.Get(ctx, m.key(key)).Result()
		if errors.Is(err, redis.Nil) {
			return ErrCacheMiss
		}
		val = v
		return err
	})
	return val, err
}

// Set 写入字符串值；ttl 为 0 时使用 DefaultTTL
func (m *Manager) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl == 0 {
		ttl = m.config.DefaultTTL
	}
	return m.with("set", func() error {
		return m.redis.Set(ctx, m.key(key), value, ttl).Err()
	})
}

// GetJSON 读取并解码 JSON 值
func (m *Manager) GetJSON(ctx context.Context, key string, dest any) error {
	val, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(val), dest); err != nil {
		return fmt.Errorf("failed to unmarshal cache value: %w", err)
	}
	return nil
}

// SetJSON 编码为 JSON 后写入
func (m *Manager) SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cache value: %w", err)
	}
	return m.Set(ctx, key, string(data), ttl)
}

// Delete 删除若干键，键不存在不算错误
func (m *Manager) Delete(ctx context.Context, keys ...string) error {
	return m.with("delete", func() error {
		if len(keys) == 0 {
			return nil
		}
		full := make([]string, len(keys))
		for i, k := range keys {
			full[i] = m.key(k)
		}
		return m.redis.Del(ctx, full...).Err()
	})
}

// Ping 检查 Redis 连通性
func (m *Manager) Ping(ctx context.Context) error {
	return m.with("ping", func() error { return m.redis.Ping(ctx).Err() })
}

// Close 标记关闭；自建连接时同时关闭客户端
func (m *Manager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.logger.Info("closing cache manager")
	if m.owned {
		return m.redis.Close()
	}
	return nil
}
