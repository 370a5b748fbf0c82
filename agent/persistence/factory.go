package persistence

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"
)

// Backends 提供由外部管理的连接，按 StoreConfig.Type 选用
type Backends struct {
	// DB 是 sql 后端使用的连接池
	DB *gorm.DB

	// Redis 是 redis 后端使用的客户端
	Redis redis.UniversalClient
}

// NewChatStore creates a new ChatStore based on the configuration
func NewChatStore(ctx context.Context, config StoreConfig, backends Backends) (ChatStore, error) {
	switch config.Type {
	case StoreTypeMemory, "":
		return NewMemoryStore(), nil
	case StoreTypeFile:
		return NewFileStore(config)
	case StoreTypeRedis:
		if backends.Redis == nil {
			return nil, fmt.Errorf("redis store requires a redis client")
		}
		return NewRedisStore(backends.Redis, config.KeyPrefix), nil
	case StoreTypeSQL:
		if backends.DB == nil {
			return nil, fmt.Errorf("sql store requires a database connection")
		}
		store := NewSQLStore(backends.DB)
		if config.AutoMigrate {
			if err := store.AutoMigrate(); err != nil {
				return nil, err
			}
		}
		return store, nil
	case StoreTypeMongo:
		return NewMongoStore(ctx, config.Mongo)
	default:
		return nil, fmt.Errorf("unsupported chat store type: %s", config.Type)
	}
}
