package dispatch

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/agent/conversation"
	"github.com/BaSui01/roundtable/internal/ctxkeys"
	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/llm/factory"
	"github.com/BaSui01/roundtable/llm/providers"
	"github.com/BaSui01/roundtable/llm/tokenizer"
	"github.com/BaSui01/roundtable/types"
)

const (
	// DefaultTemperature 在 persona 未指定温度时使用
	DefaultTemperature float32 = 0.7

	tracerName = "github.com/BaSui01/roundtable/agent/dispatch"
)

// 分发结果状态，用于指标标签
const (
	StatusSuccess = "success"
	StatusEmpty   = "empty"
	StatusError   = "error"
)

// ProviderFactory 根据已解析配置创建 Provider
type ProviderFactory func(cfg types.ProviderConfig, client *http.Client, logger *zap.Logger) (llm.Provider, error)

// MetricsRecorder 记录单次分发的结果
type MetricsRecorder interface {
	RecordDispatch(provider, model, status string, duration time.Duration, usage llm.ChatUsage)
}

// Dispatcher 实现 conversation.Dispatcher
type Dispatcher struct {
	client      *http.Client
	factory     ProviderFactory
	temperature float32
	maxTokens   int
	metrics     MetricsRecorder
	tracer      trace.Tracer
	now         func() time.Time
	logger      *zap.Logger

	counters sync.Map // model -> tokenizer.Counter
}

var _ conversation.Dispatcher = (*Dispatcher)(nil)

// Option 配置 Dispatcher
type Option func(*Dispatcher)

// WithHTTPClient 设置所有 Provider 共用的 HTTP 客户端
func WithHTTPClient(c *http.Client) Option {
	return func(d *Dispatcher) {
		if c != nil {
			d.client = c
		}
	}
}

// WithProviderFactory 替换 Provider 工厂
func WithProviderFactory(f ProviderFactory) Option {
	return func(d *Dispatcher) {
		if f != nil {
			d.factory = f
		}
	}
}

// WithTemperature 设置默认温度
func WithTemperature(t float32) Option {
	return func(d *Dispatcher) { d.temperature = t }
}

// WithMaxTokens 设置输出 token 上限，0 表示由后端决定
func WithMaxTokens(n int) Option {
	return func(d *Dispatcher) { d.maxTokens = n }
}

// WithMetrics 设置指标记录器
func WithMetrics(m MetricsRecorder) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

// WithTracer 设置 tracer
func WithTracer(t trace.Tracer) Option {
	return func(d *Dispatcher) {
		if t != nil {
			d.tracer = t
		}
	}
}

// WithClock 设置时钟
func WithClock(now func() time.Time) Option {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// New 创建 Dispatcher
func New(logger *zap.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	d := &Dispatcher{
		factory:     factory.NewProvider,
		temperature: DefaultTemperature,
		tracer:      otel.Tracer(tracerName),
		now:         time.Now,
		logger:      logger.With(zap.String("component", "dispatcher")),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.client == nil {
		d.client = providers.NewHTTPClient(providers.DefaultTimeout)
	}
	return d
}

// Generate 对一个 persona 发起恰好一次生成调用
func (d *Dispatcher) Generate(ctx context.Context, req conversation.DispatchRequest) (types.Turn, error) {
	cfg, ok := req.ProviderConfigs.Resolve(req.Persona.Binding)
	if !ok {
		return types.Turn{}, types.NewConfigurationError(cfg.Provider,
			"no provider configuration for persona "+req.Persona.ID)
	}

	provider, err := d.factory(cfg, d.client, d.logger)
	if err != nil {
		return types.Turn{}, Classify(err, cfg.Provider)
	}

	// cfg.Provider 始终是 persona 绑定的服务商，默认配置只补模型
	conv := factory.ConventionFor(cfg.Provider)
	traceID, _ := ctxkeys.RequestID(ctx)
	chatReq := &llm.ChatRequest{
		TraceID:     traceID,
		Model:       cfg.Model,
		Messages:    BuildMessages(conv, req.Persona, req.TriggeringText, req.Context),
		MaxTokens:   d.maxTokens,
		Temperature: d.temperatureFor(req.Persona),
	}
	if conv == factory.ConventionNative {
		chatReq.Thinking = true
	}

	ctx, span := d.tracer.Start(ctx, "dispatch.generate", trace.WithAttributes(
		attribute.String("persona.id", req.Persona.ID),
		attribute.String("llm.provider", cfg.Provider),
		attribute.String("llm.model", cfg.Model),
		attribute.String("llm.convention", string(conv)),
		attribute.Int("context.len", len(req.Context)),
	))
	defer span.End()

	logger := d.logger.With(append(ctxkeys.LogFields(ctx),
		zap.String("persona", req.Persona.ID),
		zap.String("provider", cfg.Provider),
		zap.String("model", cfg.Model),
	)...)

	start := d.now()
	resp, err := provider.Completion(ctx, chatReq)
	elapsed := d.now().Sub(start)
	if err != nil {
		derr := Classify(err, cfg.Provider)
		span.RecordError(derr)
		span.SetStatus(codes.Error, string(types.GetErrorCode(derr)))
		d.record(cfg, StatusError, elapsed, llm.ChatUsage{})
		logger.Debug("dispatch failed", zap.Duration("latency", elapsed), zap.Error(derr))
		return types.Turn{}, derr
	}

	text := resp.Text()
	status := StatusSuccess
	if strings.TrimSpace(text) == "" {
		text = NoResponsePlaceholder
		status = StatusEmpty
		logger.Info("empty response replaced with placeholder")
	}

	usage := resp.Usage
	if usage.TotalTokens == 0 && d.metrics != nil {
		usage = d.estimateUsage(cfg.Model, chatReq.Messages, text)
	}
	d.record(cfg, status, elapsed, usage)
	span.SetAttributes(
		attribute.Int("llm.tokens.total", usage.TotalTokens),
		attribute.String("dispatch.status", status),
	)
	logger.Debug("dispatch succeeded",
		zap.Duration("latency", elapsed),
		zap.Int("chars", len(text)),
		zap.Int("total_tokens", usage.TotalTokens),
	)

	return types.NewPersonaTurn(req.ChatID, req.Persona, text, d.now()), nil
}

func (d *Dispatcher) temperatureFor(p types.Persona) float32 {
	if p.Temperature != nil {
		return *p.Temperature
	}
	return d.temperature
}

func (d *Dispatcher) record(cfg types.ProviderConfig, status string, elapsed time.Duration, usage llm.ChatUsage) {
	if d.metrics == nil {
		return
	}
	d.metrics.RecordDispatch(cfg.Provider, cfg.Model, status, elapsed, usage)
}

// estimateUsage 在后端未返回用量时估算 token 数
func (d *Dispatcher) estimateUsage(model string, msgs []types.Message, completion string) llm.ChatUsage {
	c, ok := d.counters.Load(model)
	if !ok {
		c, _ = d.counters.LoadOrStore(model, tokenizer.ForModel(model))
	}
	counter := c.(tokenizer.Counter)

	prompt := tokenizer.CountMessages(counter, msgs)
	out, err := counter.CountTokens(completion)
	if err != nil {
		out = 0
	}
	return llm.ChatUsage{
		PromptTokens:     prompt,
		CompletionTokens: out,
		TotalTokens:      prompt + out,
	}
}

// Classify 把任意 Provider 错误归类为三类分发错误之一
func Classify(err error, provider string) error {
	if err == nil {
		return nil
	}
	if te, ok := types.AsError(err); ok {
		if te.Provider == "" {
			te.Provider = provider
		}
		return te
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return types.NewNetworkError(provider, err)
	}

	var le *llm.Error
	if errors.As(err, &le) {
		if le.Provider != "" {
			provider = le.Provider
		}
		switch le.Code {
		case llm.ErrTransport:
			return types.NewNetworkError(provider, le)
		case llm.ErrProviderUnavailable:
			return types.NewConfigurationError(provider, le.Message).WithCause(le)
		default:
			return types.NewProviderError(provider, le.Message, le.HTTPStatus).
				WithRetryable(le.Retryable).
				WithCause(le)
		}
	}
	return types.NewProviderError(provider, err.Error(), 0).WithCause(err)
}
