package persistence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/BaSui01/roundtable/types"
)

// RedisStore is a Redis-based implementation of ChatStore.
// Suitable for distributed production deployments.
//
// Key layout (prefix defaults to "roundtable:"):
//
//	{prefix}session:{id}  会话设置 JSON
//	{prefix}sessions      会话 id 集合
//	{prefix}turns:{id}    发言 JSON 列表（RPUSH 追加）
//	{prefix}seq:{id}      发言序号计数器
type RedisStore struct {
	client    redis.UniversalClient
	keyPrefix string
	ownClient bool
	now       func() time.Time
}

// NewRedisStore wraps an existing client. Close does not close a borrowed client.
func NewRedisStore(client redis.UniversalClient, keyPrefix string) *RedisStore {
	if keyPrefix == "" {
		keyPrefix = "roundtable:"
	}
	return &RedisStore{client: client, keyPrefix: keyPrefix, now: time.Now}
}

// DialRedisStore creates a client from opts and verifies the connection.
func DialRedisStore(ctx context.Context, opts *redis.Options, keyPrefix string) (*RedisStore, error) {
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	store := NewRedisStore(client, keyPrefix)
	store.ownClient = true
	return store, nil
}

// Close closes the store
func (s *RedisStore) Close() error {
	if !s.ownClient {
		return nil
	}
	return s.client.Close()
}

// Ping checks if the store is healthy
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

func (s *RedisStore) sessionKey(chatID string) string { return s.keyPrefix + "session:" + chatID }
func (s *RedisStore) sessionsKey() string             { return s.keyPrefix + "sessions" }
func (s *RedisStore) turnsKey(chatID string) string   { return s.keyPrefix + "turns:" + chatID }
func (s *RedisStore) seqKey(chatID string) string     { return s.keyPrefix + "seq:" + chatID }

func (s *RedisStore) SaveSession(ctx context.Context, session *types.ChatSession) error {
	if session == nil {
		return ErrInvalidInput
	}
	if existing, err := s.GetSession(ctx, session.ID); err == nil {
		session.CreatedAt = existing.CreatedAt
	} else if !errors.Is(err, ErrNotFound) {
		return err
	}
	if err := prepareSession(session, s.now()); err != nil {
		return err
	}

	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.sessionKey(session.ID), data, 0)
	pipe.SAdd(ctx, s.sessionsKey(), session.ID)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) GetSession(ctx context.Context, chatID string) (*types.ChatSession, error) {
	data, err := s.client.Get(ctx, s.sessionKey(chatID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var session types.ChatSession
	if err := json.Unmarshal(data, &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (s *RedisStore) ListSessions(ctx context.Context) ([]*types.ChatSession, error) {
	ids, err := s.client.SMembers(ctx, s.sessionsKey()).Result()
	if err != nil {
		return nil, err
	}

	out := make([]*types.ChatSession, 0, len(ids))
	for _, id := range ids {
		session, err := s.GetSession(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, session)
	}
	sortSessions(out)
	return out, nil
}

func (s *RedisStore) DeleteSession(ctx context.Context, chatID string) error {
	pipe := s.client.TxPipeline()
	del := pipe.Del(ctx, s.sessionKey(chatID))
	pipe.Del(ctx, s.turnsKey(chatID), s.seqKey(chatID))
	pipe.SRem(ctx, s.sessionsKey(), chatID)
	if _, err := pipe.Exec(ctx); err != nil {
		return err
	}
	if del.Val() == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *RedisStore) AppendTurns(ctx context.Context, chatID string, turns []types.Turn) ([]types.Turn, error) {
	if chatID == "" {
		return nil, fmt.Errorf("%w: chat id is required", ErrInvalidInput)
	}
	if len(turns) == 0 {
		return []types.Turn{}, nil
	}

	// 先占用序号区间，再写入发言
	last, err := s.client.IncrBy(ctx, s.seqKey(chatID), int64(len(turns))).Result()
	if err != nil {
		return nil, err
	}
	out, err := prepareTurns(chatID, turns, last-int64(len(turns))+1)
	if err != nil {
		return nil, err
	}

	values := make([]any, 0, len(out))
	for _, t := range out {
		data, err := json.Marshal(t)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal turn: %w", err)
		}
		values = append(values, data)
	}
	if err := s.client.RPush(ctx, s.turnsKey(chatID), values...).Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *RedisStore) ListTurns(ctx context.Context, chatID string) ([]types.Turn, error) {
	items, err := s.client.LRange(ctx, s.turnsKey(chatID), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	out := make([]types.Turn, 0, len(items))
	for _, item := range items {
		var t types.Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("failed to unmarshal turn: %w", err)
		}
		out = append(out, t)
	}
	// 并发追加时列表顺序可能与序号不一致
	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
