package main

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BaSui01/roundtable/api/handlers"
	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 🔐 API Key
// =============================================================================

// APIKeyAuth 校验 X-API-Key。validKeys 为空时整层跳过；skipPaths 始终放行。
// 浏览器 websocket 设置不了请求头，所以 /events 额外接受 api_key 查询参数。
func APIKeyAuth(validKeys []string, skipPaths []string, logger *zap.Logger) Middleware {
	keys := make([][]byte, 0, len(validKeys))
	for _, k := range validKeys {
		if k != "" {
			keys = append(keys, []byte(k))
		}
	}
	skip := make(map[string]struct{}, len(skipPaths))
	for _, p := range skipPaths {
		skip[p] = struct{}{}
	}
	match := func(candidate string) bool {
		ok := 0
		for _, k := range keys {
			ok |= subtle.ConstantTimeCompare(k, []byte(candidate))
		}
		return ok == 1
	}

	return func(next http.Handler) http.Handler {
		if len(keys) == 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := skip[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			if match(presentedKey(r)) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Debug("api key rejected",
				zap.String("path", r.URL.Path),
				zap.String("remote_addr", r.RemoteAddr))
			handlers.WriteError(w, r, types.NewError(types.ErrUnauthorized, "invalid or missing API key"), nil)
		})
	}
}

func presentedKey(r *http.Request) string {
	if key := r.Header.Get("X-API-Key"); key != "" {
		return key
	}
	if strings.HasSuffix(r.URL.Path, "/events") {
		return r.URL.Query().Get("api_key")
	}
	return ""
}

// =============================================================================
// 🚦 限流
// =============================================================================

const (
	// visitorIdle 超过该时长未出现的客户端被清理
	visitorIdle   = 3 * time.Minute
	sweepInterval = time.Minute
)

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter 每个客户端一个令牌桶。带 API Key 的请求按 key 计，其余按来源 IP。
type clientLimiter struct {
	rps   rate.Limit
	burst int

	mu       sync.Mutex
	visitors map[string]*visitor
}

func newClientLimiter(rps float64, burst int) *clientLimiter {
	return &clientLimiter{rps: rate.Limit(rps), burst: burst, visitors: make(map[string]*visitor)}
}

func (l *clientLimiter) allow(client string, now time.Time) bool {
	l.mu.Lock()
	v, ok := l.visitors[client]
	if !ok {
		v = &visitor{limiter: rate.NewLimiter(l.rps, l.burst)}
		l.visitors[client] = v
	}
	v.lastSeen = now
	l.mu.Unlock()
	return v.limiter.AllowN(now, 1)
}

func (l *clientLimiter) sweep(now time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	removed := 0
	for client, v := range l.visitors {
		if now.Sub(v.lastSeen) > visitorIdle {
			delete(l.visitors, client)
			removed++
		}
	}
	return removed
}

func (l *clientLimiter) run(ctx context.Context) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			l.sweep(now)
		}
	}
}

// clientKey 原始 key 不进内存表，只保留摘要前缀
func clientKey(r *http.Request) string {
	if key := presentedKey(r); key != "" {
		sum := sha256.Sum256([]byte(key))
		return "key:" + hex.EncodeToString(sum[:8])
	}
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return "ip:" + ip
}

// RateLimiter 按客户端限流，rps<=0 时不限流。ctx 结束后停止清理协程。
func RateLimiter(ctx context.Context, rps float64, burst int, logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if rps <= 0 {
			return next
		}
		limiter := newClientLimiter(rps, burst)
		go limiter.run(ctx)

		retryAfter := strconv.Itoa(max(1, int(1/rps)))
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			client := clientKey(r)
			if limiter.allow(client, time.Now()) {
				next.ServeHTTP(w, r)
				return
			}
			logger.Debug("rate limit exceeded", zap.String("client", client))
			w.Header().Set("Retry-After", retryAfter)
			handlers.WriteError(w, r, types.NewError(types.ErrRateLimited, "too many requests"), nil)
		})
	}
}

// =============================================================================
// 🌐 CORS
// =============================================================================

const (
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
	corsAllowHeaders = "Content-Type, X-API-Key, X-Request-ID"
)

// CORS 只对白名单来源回写跨域头；来自其他来源的预检直接 403
func CORS(allowedOrigins []string) Middleware {
	allowed := make(map[string]struct{}, len(allowedOrigins))
	for _, o := range allowedOrigins {
		allowed[strings.TrimRight(o, "/")] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")
			if origin == "" {
				next.ServeHTTP(w, r)
				return
			}
			h := w.Header()
			h.Add("Vary", "Origin")
			_, ok := allowed[origin]
			if ok {
				h.Set("Access-Control-Allow-Origin", origin)
				h.Set("Access-Control-Allow-Methods", corsAllowMethods)
				h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
				h.Set("Access-Control-Expose-Headers", "X-Request-ID, Retry-After")
				h.Set("Access-Control-Max-Age", "86400")
			}
			if r.Method != http.MethodOptions {
				next.ServeHTTP(w, r)
				return
			}
			if !ok {
				w.WriteHeader(http.StatusForbidden)
				return
			}
			w.WriteHeader(http.StatusNoContent)
		})
	}
}
