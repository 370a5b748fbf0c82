// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/agent/conversation"
	"github.com/BaSui01/roundtable/llm"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

var (
	dispatchBuckets = []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120}
	runBuckets      = []float64{0.5, 1, 2, 5, 10, 30, 60, 120, 300}
	sizeBuckets     = prometheus.ExponentialBuckets(100, 10, 8)
)

// Collector 汇总 HTTP、后端调用、会话运行、预览缓存与连接池指标
type Collector struct {
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec
	httpResponseSize    *prometheus.HistogramVec

	dispatchTotal    *prometheus.CounterVec
	dispatchDuration *prometheus.HistogramVec
	dispatchTokens   *prometheus.CounterVec

	runsTotal    *prometheus.CounterVec
	runDuration  *prometheus.HistogramVec
	runsInFlight *prometheus.GaugeVec
	turnsTotal   *prometheus.CounterVec
	speakerTurns *prometheus.CounterVec

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger

	mu      sync.Mutex
	started map[string]time.Time
}

// vecFactory 给所有指标统一加命名空间
type vecFactory struct {
	f  promauto.Factory
	ns string
}

func (v vecFactory) counter(name, help string, labels ...string) *prometheus.CounterVec {
	return v.f.NewCounterVec(prometheus.CounterOpts{Namespace: v.ns, Name: name, Help: help}, labels)
}

func (v vecFactory) gauge(name, help string, labels ...string) *prometheus.GaugeVec {
	return v.f.NewGaugeVec(prometheus.GaugeOpts{Namespace: v.ns, Name: name, Help: help}, labels)
}

func (v vecFactory) histogram(name, help string, buckets []float64, labels ...string) *prometheus.HistogramVec {
	return v.f.NewHistogramVec(prometheus.HistogramOpts{Namespace: v.ns, Name: name, Help: help, Buckets: buckets}, labels)
}

// NewCollector 创建指标收集器；reg 为 nil 时注册到默认 Registerer。
// 同一 Registerer 上重复创建会 panic。
func NewCollector(namespace string, reg prometheus.Registerer, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	v := vecFactory{f: promauto.With(reg), ns: namespace}

	c := &Collector{
		httpRequestsTotal:   v.counter("http_requests_total", "HTTP requests by route and status class", "method", "path", "status"),
		httpRequestDuration: v.histogram("http_request_duration_seconds", "HTTP request latency", prometheus.DefBuckets, "method", "path"),
		httpResponseSize:    v.histogram("http_response_size_bytes", "HTTP response body size", sizeBuckets, "method", "path"),

		dispatchTotal:    v.counter("dispatch_requests_total", "Backend generation calls by outcome", "provider", "model", "status"),
		dispatchDuration: v.histogram("dispatch_request_duration_seconds", "Backend generation latency", dispatchBuckets, "provider", "model"),
		dispatchTokens:   v.counter("dispatch_tokens_total", "Prompt and completion tokens per backend", "provider", "model", "type"),

		runsTotal:    v.counter("conversation_runs_total", "Finished conversation runs by outcome", "kind", "outcome"),
		runDuration:  v.histogram("conversation_run_duration_seconds", "Wall time from RunStarted to the terminal event", runBuckets, "kind"),
		runsInFlight: v.gauge("conversation_runs_in_flight", "Conversation runs currently executing", "kind"),
		turnsTotal:   v.counter("conversation_turns_total", "Persona turns appended", "kind"),
		speakerTurns: v.counter("conversation_speaker_turns_total", "Persona turns appended per speaker", "speaker"),

		cacheHits:   v.counter("cache_hits_total", "Cache hits", "cache_type"),
		cacheMisses: v.counter("cache_misses_total", "Cache misses", "cache_type"),

		dbConnectionsOpen: v.gauge("db_connections_open", "Open SQL connections", "database"),
		dbConnectionsIdle: v.gauge("db_connections_idle", "Idle SQL connections", "database"),

		logger:  logger.With(zap.String("component", "metrics")),
		started: make(map[string]time.Time),
	}

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))
	return c
}

// =============================================================================
// 🎯 HTTP
// =============================================================================

// RecordHTTPRequest path 应为路由模板而非原始路径
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration, responseSize int64) {
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
	c.httpResponseSize.WithLabelValues(method, path).Observe(float64(responseSize))
}

// =============================================================================
// 🤖 后端调用
// =============================================================================

// RecordDispatch 实现 dispatch.MetricsRecorder
func (c *Collector) RecordDispatch(provider, model, status string, duration time.Duration, usage llm.ChatUsage) {
	c.dispatchTotal.WithLabelValues(provider, model, status).Inc()
	c.dispatchDuration.WithLabelValues(provider, model).Observe(duration.Seconds())
	for typ, n := range map[string]int{"prompt": usage.PromptTokens, "completion": usage.CompletionTokens} {
		if n > 0 {
			c.dispatchTokens.WithLabelValues(provider, model, typ).Add(float64(n))
		}
	}
}

// =============================================================================
// 🎭 会话运行
// =============================================================================

// OnEvent 实现 conversation.Observer。
// 没见过 RunStarted 的终止事件只计数，不动 in-flight 和耗时。
func (c *Collector) OnEvent(e conversation.Event) {
	kind := string(e.Kind)

	switch e.Type {
	case conversation.EventRunStarted:
		c.runsInFlight.WithLabelValues(kind).Inc()
		c.mu.Lock()
		c.started[e.RunID] = e.Timestamp
		c.mu.Unlock()

	case conversation.EventTurnAppended:
		c.turnsTotal.WithLabelValues(kind).Inc()
		if e.Turn != nil {
			c.speakerTurns.WithLabelValues(e.Turn.SpeakerID).Inc()
		}

	case conversation.EventRunCompleted, conversation.EventRunAborted:
		outcome := "completed"
		if e.Type == conversation.EventRunAborted {
			outcome = "aborted"
		}
		c.runsTotal.WithLabelValues(kind, outcome).Inc()

		c.mu.Lock()
		start, ok := c.started[e.RunID]
		delete(c.started, e.RunID)
		c.mu.Unlock()
		if !ok {
			return
		}
		c.runsInFlight.WithLabelValues(kind).Dec()
		c.runDuration.WithLabelValues(kind).Observe(e.Timestamp.Sub(start).Seconds())
	}
}

// =============================================================================
// 💾 缓存 / 🗄️ 连接池
// =============================================================================

func (c *Collector) RecordCacheHit(cacheType string) {
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

func (c *Collector) RecordCacheMiss(cacheType string) {
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// RecordDBConnections 由 server 周期性地从 PoolManager.GetStats 采样
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// statusCode 2xx/3xx/4xx/5xx，范围外的原样输出
func statusCode(code int) string {
	if code < 200 || code >= 600 {
		return strconv.Itoa(code)
	}
	return strconv.Itoa(code/100) + "xx"
}
