package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/llm/providers"
	"go.uber.org/zap"
)

const (
	// ProviderName 是原生调用约定绑定的服务商标识
	ProviderName   = "gemini"
	DefaultBaseURL = "https://generativelanguage.googleapis.com"
	DefaultModel   = "gemini-2.0-flash"

	// dynamicThinkingBudget 让模型自行决定推理预算
	dynamicThinkingBudget = -1
)

// Config 原生约定配置
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
}

// Provider 原生 generateContent 调用约定：x-goog-api-key 认证，
// system 消息进 systemInstruction，支持的模型可开启 thinkingConfig。
type Provider struct {
	cfg    Config
	client *http.Client
	logger *zap.Logger
}

// New 创建 Gemini Provider
func New(cfg Config, client *http.Client, logger *zap.Logger) *Provider {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if client == nil {
		client = providers.NewHTTPClient(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		cfg:    cfg,
		client: client,
		logger: logger.With(zap.String("provider", ProviderName)),
	}
}

func (p *Provider) Name() string { return ProviderName }

// thinkingMarkers 模型名包含任一标记即视为支持扩展推理
var thinkingMarkers = []string{"2.5", "thinking", "gemini-3"}

// SupportsThinking 根据模型名判断是否支持扩展推理
func SupportsThinking(model string) bool {
	m := strings.ToLower(model)
	for _, marker := range thinkingMarkers {
		if strings.Contains(m, marker) {
			return true
		}
	}
	return false
}

// Endpoint 返回 generateContent 地址
func (p *Provider) Endpoint(model string) string {
	return fmt.Sprintf("%s/v1beta/models/%s:generateContent",
		strings.TrimRight(p.cfg.BaseURL, "/"), url.PathEscape(model))
}

// Completion 发起一次 generateContent 调用。
// 仅当请求开启 Thinking 且模型支持时才附带 thinkingConfig。
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.cfg.Model
	}

	system, contents := splitMessages(req.Messages)
	temperature := req.Temperature
	gen := &generationConfig{Temperature: &temperature, MaxOutputTokens: req.MaxTokens}
	if req.Thinking && SupportsThinking(model) {
		gen.ThinkingConfig = &thinkingConfig{ThinkingBudget: dynamicThinkingBudget}
	}

	payload, err := json.Marshal(generateRequest{
		Contents:          contents,
		SystemInstruction: system,
		GenerationConfig:  gen,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint(model), bytes.NewReader(payload))
	if err != nil {
		return nil, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: fmt.Sprintf("failed to create request: %v", err),
			HTTPStatus: http.StatusBadRequest, Provider: p.Name(), Cause: err,
		}
	}
	httpReq.Header.Set("x-goog-api-key", p.cfg.APIKey)
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	defer providers.CloseBody(resp.Body)

	p.logger.Debug("generateContent response",
		zap.String("model", model),
		zap.Int("status", resp.StatusCode),
		zap.Bool("thinking", gen.ThinkingConfig != nil),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode/100 != 2 {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	var wire generateResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, providers.InvalidResponseError(fmt.Sprintf("decode response: %v", err), p.Name())
	}
	return wire.toLLM(model, time.Now()), nil
}
