package server

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDefaultConfig_Values(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, 30*time.Second, cfg.ReadTimeout)
	assert.Equal(t, 10*time.Minute, cfg.WriteTimeout)
	assert.Equal(t, 1<<20, cfg.MaxHeaderBytes)
	assert.Positive(t, cfg.ReadHeaderTimeout)
}

func TestNewManager(t *testing.T) {
	m := NewManager("api", http.NewServeMux(), DefaultConfig(), nil)
	require.NotNil(t, m)
	assert.False(t, m.IsRunning())
	assert.Equal(t, ":8080", m.Addr())
}

func TestManager_RunAndShutdown(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("ok"))
	})

	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	m := NewManager("api", handler, cfg, zap.NewNop())
	require.NoError(t, m.Listen())
	assert.True(t, m.IsRunning())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	var body []byte
	require.Eventually(t, func() bool {
		resp, err := http.Get("http://" + m.Addr())
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body, _ = io.ReadAll(resp.Body)
		return resp.StatusCode == http.StatusOK
	}, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, "ok", string(body))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
	assert.False(t, m.IsRunning())

	// 关闭后不能再次监听
	assert.ErrorIs(t, m.Listen(), ErrServerClosed)
	assert.NoError(t, m.Shutdown(context.Background()))
}

func TestManager_ListenError(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	first := NewManager("a", http.NewServeMux(), cfg, nil)
	require.NoError(t, first.Listen())
	defer first.Shutdown(context.Background())

	cfg.Addr = first.Addr()
	second := NewManager("b", http.NewServeMux(), cfg, nil)
	assert.Error(t, second.Run(context.Background()))
}

func TestManager_ShutdownBeforeRunReleasesPort(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Addr = "127.0.0.1:0"
	m := NewManager("api", http.NewServeMux(), cfg, nil)
	require.NoError(t, m.Listen())
	addr := m.Addr()

	require.NoError(t, m.Shutdown(context.Background()))
	assert.False(t, m.IsRunning())
	assert.ErrorIs(t, m.Run(context.Background()), ErrServerClosed)

	// 端口已释放，可以重新绑定
	cfg.Addr = addr
	again := NewManager("api", http.NewServeMux(), cfg, nil)
	require.NoError(t, again.Listen())
	require.NoError(t, again.Shutdown(context.Background()))
}
