package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testBuild = BuildInfo{Version: "0.3.1", BuildTime: "2026-10-01T08:00:00Z", GitCommit: "9f1c2e7"}

func newHealthMux(t *testing.T, setup func(h *HealthHandler)) *http.ServeMux {
	t.Helper()
	h := NewHealthHandler(zap.NewNop(), testBuild)
	if setup != nil {
		setup(h)
	}
	mux := http.NewServeMux()
	h.Register(mux)
	return mux
}

func probe(t *testing.T, mux http.Handler, path string) (*httptest.ResponseRecorder, ServiceHealthResponse) {
	t.Helper()
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var body ServiceHealthResponse
	require.NoError(t, json.NewDecoder(w.Body).Decode(&body))
	return w, body
}

func TestHealthHandler_LivenessIgnoresChecks(t *testing.T) {
	mux := newHealthMux(t, func(h *HealthHandler) {
		h.RegisterCheck(NewPingCheck("store", func(context.Context) error { return errors.New("down") }))
	})

	for _, path := range []string{"/health", "/healthz"} {
		t.Run(path, func(t *testing.T) {
			w, body := probe(t, mux, path)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, statusHealthy, body.Status)
			assert.Equal(t, "0.3.1", body.Version)
			assert.NotEmpty(t, body.Uptime)
			assert.Empty(t, body.Checks)
		})
	}
}

func TestHealthHandler_Readiness(t *testing.T) {
	ok := func(context.Context) error { return nil }
	refused := func(context.Context) error { return errors.New("connection refused") }

	tests := []struct {
		name       string
		setup      func(h *HealthHandler)
		wantCode   int
		wantStatus string
	}{
		{
			name:       "no dependencies",
			wantCode:   http.StatusOK,
			wantStatus: statusHealthy,
		},
		{
			name: "store and database up",
			setup: func(h *HealthHandler) {
				h.RegisterCheck(NewPingCheck("store", ok))
				h.RegisterCheck(NewPingCheck("database", ok))
			},
			wantCode:   http.StatusOK,
			wantStatus: statusHealthy,
		},
		{
			name: "preview cache down degrades",
			setup: func(h *HealthHandler) {
				h.RegisterCheck(NewPingCheck("store", ok))
				h.RegisterOptionalCheck(NewPingCheck("redis", refused))
			},
			wantCode:   http.StatusOK,
			wantStatus: statusDegraded,
		},
		{
			name: "store down is unavailable",
			setup: func(h *HealthHandler) {
				h.RegisterCheck(NewPingCheck("store", refused))
				h.RegisterOptionalCheck(NewPingCheck("redis", refused))
			},
			wantCode:   http.StatusServiceUnavailable,
			wantStatus: statusUnhealthy,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := probe(t, newHealthMux(t, tt.setup), "/readyz")
			assert.Equal(t, tt.wantCode, w.Code)
			assert.Equal(t, tt.wantStatus, body.Status)
		})
	}
}

func TestHealthHandler_ReadinessReportsEachCheck(t *testing.T) {
	mux := newHealthMux(t, func(h *HealthHandler) {
		h.RegisterCheck(NewPingCheck("store", func(context.Context) error { return nil }))
		h.RegisterOptionalCheck(NewPingCheck("redis", func(context.Context) error { return errors.New("i/o timeout") }))
	})

	_, body := probe(t, mux, "/ready")
	require.Len(t, body.Checks, 2)

	store := body.Checks["store"]
	assert.Equal(t, "pass", store.Status)
	assert.False(t, store.Optional)
	assert.NotEmpty(t, store.Latency)

	redis := body.Checks["redis"]
	assert.Equal(t, "fail", redis.Status)
	assert.True(t, redis.Optional)
	assert.Equal(t, "i/o timeout", redis.Message)
}

func TestHealthHandler_ChecksSeeDeadline(t *testing.T) {
	var hasDeadline bool
	mux := newHealthMux(t, func(h *HealthHandler) {
		h.RegisterCheck(NewPingCheck("store", func(ctx context.Context) error {
			_, hasDeadline = ctx.Deadline()
			return nil
		}))
	})

	probe(t, mux, "/readyz")
	assert.True(t, hasDeadline)
}

func TestHealthHandler_Version(t *testing.T) {
	mux := newHealthMux(t, nil)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/version", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Success bool      `json:"success"`
		Data    BuildInfo `json:"data"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Success)
	assert.Equal(t, testBuild, resp.Data)
}

func TestHealthHandler_ConcurrentReadiness(t *testing.T) {
	mux := newHealthMux(t, func(h *HealthHandler) {
		for _, name := range []string{"store", "database", "redis"} {
			h.RegisterCheck(NewPingCheck(name, func(context.Context) error { return nil }))
		}
	})

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))
			assert.Equal(t, http.StatusOK, w.Code)
		}()
	}
	wg.Wait()
}
