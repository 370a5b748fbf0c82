package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"go.uber.org/zap"
)

// =============================================================================
// 🌐 HTTP 服务器管理器
// =============================================================================

// ErrServerClosed Shutdown 之后再 Listen/Run
var ErrServerClosed = errors.New("server is closed")

// Config 服务器配置。WriteTimeout 不约束已升级的 websocket 连接。
type Config struct {
	Addr              string        `yaml:"addr" json:"addr"`
	ReadTimeout       time.Duration `yaml:"read_timeout" json:"read_timeout"`
	ReadHeaderTimeout time.Duration `yaml:"read_header_timeout" json:"read_header_timeout"`
	WriteTimeout      time.Duration `yaml:"write_timeout" json:"write_timeout"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	MaxHeaderBytes    int           `yaml:"max_header_bytes" json:"max_header_bytes"`
	ShutdownTimeout   time.Duration `yaml:"shutdown_timeout" json:"shutdown_timeout"`
}

// DefaultConfig 写超时按一次完整会话运行（多次后端调用）留足余量
func DefaultConfig() Config {
	return Config{
		Addr:              ":8080",
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      10 * time.Minute,
		IdleTimeout:       120 * time.Second,
		MaxHeaderBytes:    1 << 20,
		ShutdownTimeout:   15 * time.Second,
	}
}

// Manager 管理一个 http.Server 的监听、服务与优雅关闭
type Manager struct {
	server *http.Server
	config Config
	logger *zap.Logger

	mu       sync.Mutex
	listener net.Listener
	serving  bool
	closed   bool
}

// NewManager name 只用于日志，区分 api / metrics 实例
func NewManager(name string, handler http.Handler, cfg Config, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("component", "http_server"), zap.String("server", name))
	return &Manager{
		server: &http.Server{
			Addr:              cfg.Addr,
			Handler:           handler,
			ReadTimeout:       cfg.ReadTimeout,
			ReadHeaderTimeout: cfg.ReadHeaderTimeout,
			WriteTimeout:      cfg.WriteTimeout,
			IdleTimeout:       cfg.IdleTimeout,
			MaxHeaderBytes:    cfg.MaxHeaderBytes,
			ErrorLog:          zap.NewStdLog(logger),
		},
		config: cfg,
		logger: logger,
	}
}

// Listen 绑定端口，可重复调用。Run 之前调用可提前拿到 ":0" 分配的实际端口。
func (m *Manager) Listen() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listenLocked()
}

func (m *Manager) listenLocked() error {
	if m.closed {
		return ErrServerClosed
	}
	if m.listener != nil {
		return nil
	}
	ln, err := net.Listen("tcp", m.config.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", m.config.Addr, err)
	}
	m.listener = ln
	return nil
}

// Run 服务直到 ctx 结束后优雅关闭，正常关闭返回 nil，适合放进 errgroup
func (m *Manager) Run(ctx context.Context) error {
	m.mu.Lock()
	if err := m.listenLocked(); err != nil {
		m.mu.Unlock()
		return err
	}
	ln := m.listener
	m.serving = true
	m.mu.Unlock()

	m.logger.Info("starting HTTP server", zap.String("addr", ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() { errCh <- m.server.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		m.logger.Error("HTTP server failed", zap.Error(err))
		return err
	case <-ctx.Done():
		return m.Shutdown(context.Background())
	}
}

// Shutdown 等待进行中的请求完成，最多 ShutdownTimeout；可重复调用
func (m *Manager) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true

	// 只 Listen 未 Serve 时 http.Server 不认识这个 listener，需要自己关
	if !m.serving {
		if m.listener != nil {
			return m.listener.Close()
		}
		return nil
	}

	m.logger.Info("shutting down HTTP server")
	if m.config.ShutdownTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, m.config.ShutdownTimeout)
		defer cancel()
	}
	if err := m.server.Shutdown(ctx); err != nil {
		m.logger.Error("HTTP server shutdown failed", zap.Error(err))
		return err
	}
	m.logger.Info("HTTP server stopped")
	return nil
}

// Addr 实际监听地址；尚未监听时返回配置地址
func (m *Manager) Addr() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener != nil {
		return m.listener.Addr().String()
	}
	return m.config.Addr
}

// IsRunning 已绑定端口且未关闭
func (m *Manager) IsRunning() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.listener != nil && !m.closed
}
