package main

import (
	"bufio"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/BaSui01/roundtable/api/handlers"
	"github.com/BaSui01/roundtable/internal/ctxkeys"
	"github.com/BaSui01/roundtable/internal/metrics"
	"github.com/BaSui01/roundtable/types"
)

// Middleware 包装一个 http.Handler
type Middleware func(http.Handler) http.Handler

// Chain 按顺序套上中间件，第一个在最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// =============================================================================
// 📊 statusRecorder
// =============================================================================

// statusRecorder 记录状态码与响应字节数。事件流走 websocket 升级，
// 所以必须透传 Hijack；Unwrap 留给 http.ResponseController。
type statusRecorder struct {
	http.ResponseWriter
	status  int
	written int64
	sent    bool
}

func newStatusRecorder(w http.ResponseWriter) *statusRecorder {
	if rec, ok := w.(*statusRecorder); ok {
		return rec
	}
	return &statusRecorder{ResponseWriter: w, status: http.StatusOK}
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.sent {
		return
	}
	w.status, w.sent = code, true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	w.WriteHeader(http.StatusOK)
	n, err := w.ResponseWriter.Write(b)
	w.written += int64(n)
	return n, err
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hj, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer cannot be hijacked")
	}
	w.status, w.sent = http.StatusSwitchingProtocols, true
	return hj.Hijack()
}

func (w *statusRecorder) Unwrap() http.ResponseWriter { return w.ResponseWriter }

// =============================================================================
// 🛡️ Recovery / RequestID / SecurityHeaders
// =============================================================================

// Recovery 把 handler 中的 panic 转成 500。http.ErrAbortHandler 照常上抛。
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := newStatusRecorder(w)
			defer func() {
				v := recover()
				if v == nil {
					return
				}
				if v == http.ErrAbortHandler {
					panic(v)
				}
				logger.Error("panic recovered",
					append(ctxkeys.LogFields(r.Context()),
						zap.Any("panic", v),
						zap.String("path", r.URL.Path),
						zap.Stack("stack"))...)
				if !rec.sent {
					handlers.WriteError(rec, r, types.NewError(types.ErrInternalError, "internal server error"), nil)
				}
			}()
			next.ServeHTTP(rec, r)
		})
	}
}

// maxRequestIDLen 客户端传入的 X-Request-ID 超长或含非法字符时重新生成
const maxRequestIDLen = 64

// RequestID 为每个请求分配 X-Request-ID 并写入 context
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Request-ID")
			if !validRequestID(id) {
				id = uuid.NewString()
			}
			w.Header().Set("X-Request-ID", id)
			next.ServeHTTP(w, r.WithContext(ctxkeys.WithRequestID(r.Context(), id)))
		})
	}
}

func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLen {
		return false
	}
	for _, c := range id {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9', c == '-', c == '_', c == '.':
		default:
			return false
		}
	}
	return true
}

var securityHeaders = [][2]string{
	{"X-Frame-Options", "DENY"},
	{"X-Content-Type-Options", "nosniff"},
	{"Referrer-Policy", "strict-origin-when-cross-origin"},
	{"Content-Security-Policy", "default-src 'self'"},
}

// SecurityHeaders 给所有响应加上固定的安全头
func SecurityHeaders() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			for _, kv := range securityHeaders {
				h.Set(kv[0], kv[1])
			}
			next.ServeHTTP(w, r)
		})
	}
}

// =============================================================================
// 📝 日志、指标与追踪
// =============================================================================

// probePaths 探针请求量大，只记 debug
var probePaths = map[string]struct{}{
	"/health": {}, "/healthz": {}, "/ready": {}, "/readyz": {}, "/version": {},
}

// RequestLogger 每个请求一行访问日志，级别随状态码升高
func RequestLogger(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)

			level := zapcore.InfoLevel
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = zapcore.ErrorLevel
			case rec.status >= http.StatusBadRequest:
				level = zapcore.WarnLevel
			default:
				if _, probe := probePaths[r.URL.Path]; probe {
					level = zapcore.DebugLevel
				}
			}
			if ce := logger.Check(level, "request"); ce != nil {
				ce.Write(append(ctxkeys.LogFields(r.Context()),
					zap.String("method", r.Method),
					zap.String("route", normalizePath(r.URL.Path)),
					zap.Int("status", rec.status),
					zap.Int64("bytes", rec.written),
					zap.Duration("duration", time.Since(start)),
					zap.String("remote_addr", r.RemoteAddr),
				)...)
			}
		})
	}
}

// MetricsMiddleware 以归一化后的路由作为 path 标签记录 HTTP 指标
func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r)
			collector.RecordHTTPRequest(r.Method, normalizePath(r.URL.Path), rec.status, time.Since(start), rec.written)
		})
	}
}

// routeCollections 第三段为资源 ID 的集合
var routeCollections = map[string]struct{}{"sessions": {}, "personas": {}}

// routeActions 资源 ID 之后允许出现的子路径
var routeActions = map[string]struct{}{
	"turns": {}, "messages": {}, "summary": {}, "preview": {}, "events": {},
}

// unmatchedRoute 不属于任何已注册路由的请求共用这一个标签
const unmatchedRoute = "unmatched"

// normalizePath 把请求路径折叠成路由模板，例如
//
//	/v1/sessions/team-sync/messages -> /v1/sessions/:id/messages
//
// 未知路径一律归为 unmatched，避免扫描器撑爆指标基数。
func normalizePath(path string) string {
	if _, ok := probePaths[path]; ok || path == "/metrics" {
		return path
	}
	parts := strings.Split(strings.Trim(path, "/"), "/")
	if len(parts) < 2 || parts[0] != "v1" {
		return unmatchedRoute
	}
	if _, ok := routeCollections[parts[1]]; !ok {
		return unmatchedRoute
	}
	switch len(parts) {
	case 2:
		return "/v1/" + parts[1]
	case 3:
		return "/v1/" + parts[1] + "/:id"
	case 4:
		if _, ok := routeActions[parts[3]]; ok {
			return "/v1/" + parts[1] + "/:id/" + parts[3]
		}
	}
	return unmatchedRoute
}

// OTelTracing 为每个请求开 server span，并延续上游 traceparent
func OTelTracing() Middleware {
	tracer := otel.Tracer("roundtable/http")
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			route := normalizePath(r.URL.Path)
			ctx, span := tracer.Start(ctx, r.Method+" "+route,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.HTTPRoute(route),
					semconv.URLPath(r.URL.Path),
				),
			)
			defer span.End()

			if id, ok := ctxkeys.RequestID(ctx); ok {
				span.SetAttributes(attribute.String("roundtable.request_id", id))
			}
			rec := newStatusRecorder(w)
			next.ServeHTTP(rec, r.WithContext(ctx))

			span.SetAttributes(semconv.HTTPResponseStatusCode(rec.status))
			if rec.status >= http.StatusInternalServerError {
				span.SetStatus(codes.Error, http.StatusText(rec.status))
			}
		})
	}
}
