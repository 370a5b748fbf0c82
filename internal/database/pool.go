package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"go.uber.org/zap"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// =============================================================================
// 🗄️ SQL 会话存储的连接池
// =============================================================================

// ErrPoolClosed Close 之后的 Ping 返回该错误
var ErrPoolClosed = errors.New("pool is closed")

// pingTimeout 后台健康检查单次 Ping 的超时
const pingTimeout = 5 * time.Second

// PoolConfig 连接池参数。HealthCheckInterval 为 0 时不启动后台检查；
// SlowQueryThreshold 为 0 时不记录慢查询。
type PoolConfig struct {
	MaxIdleConns        int           `yaml:"max_idle_conns" json:"max_idle_conns"`
	MaxOpenConns        int           `yaml:"max_open_conns" json:"max_open_conns"`
	ConnMaxLifetime     time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
	ConnMaxIdleTime     time.Duration `yaml:"conn_max_idle_time" json:"conn_max_idle_time"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval" json:"health_check_interval"`
	SlowQueryThreshold  time.Duration `yaml:"slow_query_threshold" json:"slow_query_threshold"`
}

// DefaultPoolConfig 返回默认连接池参数
func DefaultPoolConfig() PoolConfig {
	return PoolConfig{
		MaxIdleConns:        5,
		MaxOpenConns:        25,
		ConnMaxLifetime:     5 * time.Minute,
		ConnMaxIdleTime:     10 * time.Minute,
		HealthCheckInterval: 30 * time.Second,
		SlowQueryThreshold:  500 * time.Millisecond,
	}
}

// Dialector 按驱动名选择 gorm 方言；sqlite 走纯 Go 的 glebarez 驱动
func Dialector(driver, dsn string) (gorm.Dialector, error) {
	switch strings.ToLower(driver) {
	case "postgres", "postgresql":
		return postgres.Open(dsn), nil
	case "mysql":
		return mysql.Open(dsn), nil
	case "sqlite", "sqlite3":
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported database driver: %q", driver)
}

// Open 打开数据库，SQL 日志经 zap 输出
func Open(driver, dsn string, cfg PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	dialector, err := Dialector(driver, dsn)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: NewGormLogger(logger, cfg.SlowQueryThreshold)})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", driver, err)
	}
	return NewPoolManager(db, cfg, logger)
}

// PoolManager 持有 gorm 句柄并在后台探活
type PoolManager struct {
	db     *gorm.DB
	sqlDB  *sql.DB
	config PoolConfig
	logger *zap.Logger

	mu      sync.RWMutex
	closed  bool
	cancel  context.CancelFunc
	healthy bool
}

// NewPoolManager 在已打开的 gorm 句柄上应用连接池参数
func NewPoolManager(db *gorm.DB, cfg PoolConfig, logger *zap.Logger) (*PoolManager, error) {
	if db == nil {
		return nil, errors.New("db cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	ctx, cancel := context.WithCancel(context.Background())
	pm := &PoolManager{
		db:      db,
		sqlDB:   sqlDB,
		config:  cfg,
		logger:  logger.With(zap.String("component", "db_pool"), zap.String("dialect", db.Dialector.Name())),
		cancel:  cancel,
		healthy: true,
	}
	if cfg.HealthCheckInterval > 0 {
		go pm.watch(ctx)
	}

	pm.logger.Info("database pool initialized",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
		zap.Duration("conn_max_lifetime", cfg.ConnMaxLifetime))
	return pm, nil
}

// DB 返回 gorm 句柄
func (pm *PoolManager) DB() *gorm.DB {
	return pm.db
}

// Ping 探测数据库连通性
func (pm *PoolManager) Ping(ctx context.Context) error {
	pm.mu.RLock()
	closed := pm.closed
	pm.mu.RUnlock()
	if closed {
		return ErrPoolClosed
	}
	return pm.sqlDB.PingContext(ctx)
}

// Close 停止探活并关闭连接，可重复调用
func (pm *PoolManager) Close() error {
	pm.mu.Lock()
	if pm.closed {
		pm.mu.Unlock()
		return nil
	}
	pm.closed = true
	pm.mu.Unlock()

	pm.cancel()
	pm.logger.Info("closing database pool")
	return pm.sqlDB.Close()
}

// watch 定期 Ping，只在健康状态翻转时打 warn/info，避免刷屏
func (pm *PoolManager) watch(ctx context.Context) {
	ticker := time.NewTicker(pm.config.HealthCheckInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pm.probe(ctx)
		}
	}
}

func (pm *PoolManager) probe(ctx context.Context) {
	pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
	err := pm.Ping(pingCtx)
	cancel()
	if errors.Is(err, ErrPoolClosed) || ctx.Err() != nil {
		return
	}

	pm.mu.Lock()
	was := pm.healthy
	pm.healthy = err == nil
	pm.mu.Unlock()

	switch {
	case err != nil && was:
		pm.logger.Warn("database became unreachable", zap.Error(err))
	case err == nil && !was:
		pm.logger.Info("database reachable again")
	case err == nil:
		s := pm.GetStats()
		pm.logger.Debug("database ping ok", zap.Int("open", s.OpenConnections), zap.Int("in_use", s.InUse))
	}
}

// Healthy 最近一次后台探活是否成功
func (pm *PoolManager) Healthy() bool {
	pm.mu.RLock()
	defer pm.mu.RUnlock()
	return pm.healthy && !pm.closed
}

// PoolStats sql.DBStats 中对外暴露的部分
type PoolStats struct {
	MaxOpenConnections int           `json:"max_open_connections"`
	OpenConnections    int           `json:"open_connections"`
	InUse              int           `json:"in_use"`
	Idle               int           `json:"idle"`
	WaitCount          int64         `json:"wait_count"`
	WaitDuration       time.Duration `json:"wait_duration"`
}

// GetStats 读取连接池统计
func (pm *PoolManager) GetStats() PoolStats {
	s := pm.sqlDB.Stats()
	return PoolStats{
		MaxOpenConnections: s.MaxOpenConnections,
		OpenConnections:    s.OpenConnections,
		InUse:              s.InUse,
		Idle:               s.Idle,
		WaitCount:          s.WaitCount,
		WaitDuration:       s.WaitDuration,
	}
}
