package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/BaSui01/roundtable/agent/conversation"
	agentdispatch "github.com/BaSui01/roundtable/agent/dispatch"
	"github.com/BaSui01/roundtable/agent/persistence"
	"github.com/BaSui01/roundtable/api/handlers"
	"github.com/BaSui01/roundtable/config"
	"github.com/BaSui01/roundtable/internal/cache"
	"github.com/BaSui01/roundtable/internal/database"
	"github.com/BaSui01/roundtable/internal/metrics"
	"github.com/BaSui01/roundtable/internal/migration"
	"github.com/BaSui01/roundtable/internal/server"
	"github.com/BaSui01/roundtable/internal/telemetry"
	"github.com/BaSui01/roundtable/llm/providers"
	"github.com/BaSui01/roundtable/types"
)

// poolStatsInterval 连接池指标上报间隔
const poolStatsInterval = 15 * time.Second

// =============================================================================
// 🖥️ Server
// =============================================================================

// Server 组装存储、缓存、编排器与 HTTP 服务
type Server struct {
	cfg        *config.Config
	configPath string
	logger     *zap.Logger
	telemetry  *telemetry.Providers

	// 外部连接
	db    *database.PoolManager
	redis redis.UniversalClient
	cache *cache.Manager
	store persistence.ChatStore

	// 编排
	catalog   *config.Catalog
	providers types.ProviderConfigs
	collector *metrics.Collector
	hub       *handlers.EventHub
	sessions  *conversation.Sessions

	// 服务器管理器
	httpManager    *server.Manager
	metricsManager *server.Manager
}

// NewServer 创建新的服务器实例
func NewServer(cfg *config.Config, configPath string, logger *zap.Logger, tel *telemetry.Providers) *Server {
	return &Server{
		cfg:        cfg,
		configPath: configPath,
		logger:     logger,
		telemetry:  tel,
	}
}

// Run 初始化全部组件并提供服务直到 ctx 结束
func (s *Server) Run(ctx context.Context) error {
	defer s.close()

	if err := s.init(ctx); err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.httpManager.Run(gctx) })
	g.Go(func() error { return s.metricsManager.Run(gctx) })
	if s.db != nil {
		g.Go(func() error {
			s.reportPoolStats(gctx)
			return nil
		})
	}

	if s.configPath != "" {
		if _, err := s.catalog.Watch(gctx, s.configPath); err != nil {
			s.logger.Warn("persona hot reload disabled", zap.Error(err))
		}
	}

	s.logger.Info("all servers started",
		zap.Int("http_port", s.cfg.Server.HTTPPort),
		zap.Int("metrics_port", s.cfg.Server.MetricsPort),
		zap.String("store", string(s.cfg.Store.Type)),
		zap.Int("personas", s.catalog.Len()),
		zap.Bool("hot_reload_enabled", s.configPath != ""),
	)

	return g.Wait()
}

// =============================================================================
// 🔧 初始化
// =============================================================================

func (s *Server) init(ctx context.Context) error {
	s.collector = metrics.NewCollector("roundtable", prometheus.DefaultRegisterer, s.logger)

	if err := s.initBackends(ctx); err != nil {
		return fmt.Errorf("failed to init backends: %w", err)
	}

	catalog, err := config.NewCatalog(s.cfg.Personas, s.logger)
	if err != nil {
		return fmt.Errorf("failed to load personas: %w", err)
	}
	s.catalog = catalog
	s.providers = s.cfg.Providers.ProviderConfigs()

	s.initConversation()
	s.initHTTPServer(ctx)
	s.initMetricsServer()
	return nil
}

// initBackends 按存储类型与缓存开关打开数据库、Redis 与会话存储
func (s *Server) initBackends(ctx context.Context) error {
	var backends persistence.Backends

	if s.cfg.Store.Type == persistence.StoreTypeSQL {
		poolCfg := database.DefaultPoolConfig()
		poolCfg.MaxIdleConns = s.cfg.Database.MaxIdleConns
		poolCfg.MaxOpenConns = s.cfg.Database.MaxOpenConns
		poolCfg.ConnMaxLifetime = s.cfg.Database.ConnMaxLifetime
		pool, err := database.Open(s.cfg.Database.Driver, s.cfg.Database.DSN(), poolCfg, s.logger)
		if err != nil {
			return err
		}
		s.db = pool
		backends.DB = pool.DB()
		s.logger.Info("database connected", zap.String("driver", s.cfg.Database.Driver))
		if !s.cfg.Store.AutoMigrate {
			s.checkSchema(ctx)
		}
	}

	if s.cfg.Store.Type == persistence.StoreTypeRedis || s.cfg.Cache.Enabled {
		s.redis = redis.NewClient(&redis.Options{
			Addr:         s.cfg.Redis.Addr,
			Password:     s.cfg.Redis.Password,
			DB:           s.cfg.Redis.DB,
			PoolSize:     s.cfg.Redis.PoolSize,
			MinIdleConns: s.cfg.Redis.MinIdleConns,
		})
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := s.redis.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("redis ping failed: %w", err)
		}
		backends.Redis = s.redis
		s.logger.Info("redis connected", zap.String("addr", s.cfg.Redis.Addr))
	}

	if s.cfg.Cache.Enabled {
		cacheCfg := cache.DefaultConfig()
		cacheCfg.DefaultTTL = s.cfg.Cache.PreviewTTL
		cacheCfg.KeyPrefix = s.cfg.Store.KeyPrefix
		s.cache = cache.NewManagerFromClient(s.redis, cacheCfg, s.logger)
	}

	store, err := persistence.NewChatStore(ctx, s.cfg.Store, backends)
	if err != nil {
		return err
	}
	s.store = store
	return nil
}

// checkSchema 提示 chat 表落后于内嵌迁移；不阻止启动
func (s *Server) checkSchema(ctx context.Context) {
	m, err := migration.NewMigratorFromDatabaseConfig(s.cfg.Database, s.logger)
	if errors.Is(err, migration.ErrSQLiteAutoMigrate) {
		s.logger.Warn("sqlite chat store without store.auto_migrate, tables must already exist")
		return
	}
	if err != nil {
		s.logger.Warn("schema check skipped", zap.Error(err))
		return
	}
	defer m.Close()

	info, err := migration.CheckCurrent(ctx, m)
	if err != nil {
		s.logger.Warn("chat schema needs migration, run `roundtable migrate up`", zap.Error(err))
		return
	}
	s.logger.Info("chat schema current", zap.Uint("version", info.CurrentVersion))
}

// initConversation 组装 dispatcher → executor → sessions，并挂上所有观察者
func (s *Server) initConversation() {
	dispatcher := agentdispatch.New(s.logger,
		agentdispatch.WithHTTPClient(providers.NewHTTPClient(s.cfg.Providers.Timeout)),
		agentdispatch.WithTemperature(float32(s.cfg.Chat.Temperature)),
		agentdispatch.WithMaxTokens(s.cfg.Chat.MaxTokens),
		agentdispatch.WithMetrics(s.collector),
		agentdispatch.WithTracer(s.telemetry.Tracer("roundtable/dispatch")),
	)

	s.hub = handlers.NewEventHub(s.cfg.Server.CORSAllowedOrigins, s.logger)
	observers := conversation.Observers{
		persistence.NewRecorder(s.store, s.logger),
		s.collector,
		s.hub,
	}
	if s.cache != nil {
		observers = append(observers, cache.NewPreviewRecorder(s.cache, s.cfg.Cache.PreviewTTL, s.logger))
	}
	if meter, err := telemetry.NewRunMeter(s.telemetry.Meter("roundtable/conversation"), s.logger); err != nil {
		s.logger.Warn("otel run meter disabled", zap.Error(err))
	} else {
		observers = append(observers, meter)
	}

	executor := conversation.NewExecutor(dispatcher, s.logger,
		conversation.WithObserver(observers),
		conversation.WithTracer(s.telemetry.Tracer("roundtable/conversation")),
	)
	s.sessions = conversation.NewSessions(s.store, s.catalog, executor, s.logger)
}

// =============================================================================
// 🌐 HTTP 服务器
// =============================================================================

func (s *Server) initHTTPServer(ctx context.Context) {
	mux := http.NewServeMux()

	// 健康检查
	health := handlers.NewHealthHandler(s.logger, handlers.BuildInfo{
		Version:   Version,
		BuildTime: BuildTime,
		GitCommit: GitCommit,
	})
	health.RegisterCheck(handlers.NewPingCheck("store", s.store.Ping))
	if s.db != nil {
		health.RegisterCheck(handlers.NewPingCheck("database", s.db.Ping))
	}
	if s.redis != nil {
		// 预览缓存掉线只降级；会话存储若也在 Redis 上由 store 检查负责
		health.RegisterOptionalCheck(handlers.NewPingCheck("redis", func(ctx context.Context) error {
			return s.redis.Ping(ctx).Err()
		}))
	}
	health.Register(mux)

	// 会话 API
	opts := []handlers.SessionHandlerOption{handlers.WithCacheMetrics(s.collector)}
	if s.cache != nil {
		opts = append(opts, handlers.WithPreviews(cache.NewPreviewRecorder(s.cache, s.cfg.Cache.PreviewTTL, s.logger)))
	}
	handlers.NewSessionHandler(s.store, s.sessions, s.catalog, s.providerConfigs, s.logger, opts...).Register(mux)
	handlers.NewPersonaHandler(s.catalog, s.logger).Register(mux)
	s.hub.Register(mux)

	skipAuthPaths := []string{"/health", "/healthz", "/ready", "/readyz", "/version"}
	handler := Chain(mux,
		Recovery(s.logger),
		RequestID(),
		SecurityHeaders(),
		OTelTracing(),
		RequestLogger(s.logger),
		MetricsMiddleware(s.collector),
		CORS(s.cfg.Server.CORSAllowedOrigins),
		RateLimiter(ctx, s.cfg.Server.RateLimitRPS, s.cfg.Server.RateLimitBurst, s.logger),
		APIKeyAuth(s.cfg.Server.APIKeys, skipAuthPaths, s.logger),
	)

	s.httpManager = server.NewManager("api", handler, server.Config{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.HTTPPort),
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: server.DefaultConfig().ReadHeaderTimeout,
		WriteTimeout:      s.cfg.Server.WriteTimeout,
		IdleTimeout:       2 * s.cfg.Server.ReadTimeout,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   s.cfg.Server.ShutdownTimeout,
	}, s.logger)
}

// providerConfigs 每次运行读取一次服务商配置
func (s *Server) providerConfigs() types.ProviderConfigs {
	return s.providers
}

// =============================================================================
// 📊 Metrics 服务器
// =============================================================================

func (s *Server) initMetricsServer() {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	s.metricsManager = server.NewManager("metrics", mux, server.Config{
		Addr:              fmt.Sprintf(":%d", s.cfg.Server.MetricsPort),
		ReadTimeout:       s.cfg.Server.ReadTimeout,
		ReadHeaderTimeout: server.DefaultConfig().ReadHeaderTimeout,
		WriteTimeout:      30 * time.Second,
		ShutdownTimeout:   s.cfg.Server.ShutdownTimeout,
	}, s.logger)
}

// reportPoolStats 定期把连接池状态写入指标
func (s *Server) reportPoolStats(ctx context.Context) {
	ticker := time.NewTicker(poolStatsInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := s.db.GetStats()
			s.collector.RecordDBConnections(s.cfg.Database.Driver, stats.OpenConnections, stats.Idle)
		}
	}
}

// =============================================================================
// 🛑 关闭流程
// =============================================================================

// close 按依赖逆序释放连接
func (s *Server) close() {
	s.logger.Info("starting graceful shutdown")

	var errs []error
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if s.cache != nil {
		if err := s.cache.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close cache: %w", err))
		}
	}
	if s.redis != nil {
		if err := s.redis.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
	}
	if s.db != nil {
		if err := s.db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close database: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		s.logger.Error("shutdown finished with errors", zap.Error(err))
		return
	}
	s.logger.Info("graceful shutdown completed")
}
