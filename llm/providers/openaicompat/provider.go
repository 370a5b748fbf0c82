// =============================================================================
// Roundtable OpenAI-Compatible Provider
// =============================================================================
// Generic chat-completions convention shared by every backend except the
// native one: POST {baseUrl}/chat/completions with {model, messages, temperature}.
// =============================================================================

package openaicompat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/llm/providers"
	"go.uber.org/zap"
)

// DefaultEndpointPath is appended to BaseURL for every completion.
const DefaultEndpointPath = "/chat/completions"

// Config holds the configuration for an OpenAI-compatible provider.
type Config struct {
	// ProviderName is the unique identifier for this provider (e.g., "deepseek", "qwen").
	ProviderName string

	// APIKey is the authentication key for the provider's API.
	APIKey string

	// BaseURL is the base URL including any version segment (e.g., "https://api.deepseek.com/v1").
	BaseURL string

	// Model is used when the request does not name one.
	Model string

	// EndpointPath is the chat completions endpoint path. Defaults to "/chat/completions".
	EndpointPath string

	// BuildHeaders sets auth headers on each request. Defaults to BearerHeaders.
	BuildHeaders func(req *http.Request, apiKey string)
}

// Provider implements the generic chat-completions convention.
type Provider struct {
	Cfg    Config
	Client *http.Client
	Logger *zap.Logger
}

// New creates a new OpenAI-compatible provider. A nil client gets a fresh
// providers.NewHTTPClient with the default timeout.
func New(cfg Config, client *http.Client, logger *zap.Logger) *Provider {
	if cfg.EndpointPath == "" {
		cfg.EndpointPath = DefaultEndpointPath
	}
	if client == nil {
		client = providers.NewHTTPClient(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		Cfg:    cfg,
		Client: client,
		Logger: logger.With(zap.String("provider", cfg.ProviderName)),
	}
}

// Name returns the provider name.
func (p *Provider) Name() string { return p.Cfg.ProviderName }

// Endpoint builds the full completions URL.
func (p *Provider) Endpoint() string {
	return strings.TrimRight(p.Cfg.BaseURL, "/") + p.Cfg.EndpointPath
}

// Completion performs a non-streaming chat completion. The first choice
// must carry message.content; an empty string is accepted, absence is not.
func (p *Provider) Completion(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error) {
	model := req.Model
	if model == "" {
		model = p.Cfg.Model
	}

	payload, err := json.Marshal(chatRequest{
		Model:       model,
		Messages:    toWireMessages(req.Messages),
		Temperature: req.Temperature,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.Endpoint(), bytes.NewReader(payload))
	if err != nil {
		return nil, &llm.Error{
			Code: llm.ErrInvalidRequest, Message: fmt.Sprintf("failed to create request: %v", err),
			HTTPStatus: http.StatusBadRequest, Provider: p.Name(), Cause: err,
		}
	}
	headers := p.Cfg.BuildHeaders
	if headers == nil {
		headers = BearerHeaders
	}
	headers(httpReq, p.Cfg.APIKey)

	start := time.Now()
	resp, err := p.Client.Do(httpReq)
	if err != nil {
		return nil, providers.TransportError(err, p.Name())
	}
	defer providers.CloseBody(resp.Body)

	p.Logger.Debug("chat completion response",
		zap.String("model", model),
		zap.Int("status", resp.StatusCode),
		zap.Duration("latency", time.Since(start)),
	)

	if resp.StatusCode/100 != 2 {
		return nil, providers.MapHTTPError(resp.StatusCode, providers.ReadErrorMessage(resp.Body), p.Name())
	}

	var wire chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return nil, providers.InvalidResponseError(fmt.Sprintf("decode response: %v", err), p.Name())
	}
	result, err := wire.toLLM(p.Name())
	if err != nil {
		return nil, providers.InvalidResponseError(err.Error(), p.Name())
	}
	if result.Model == "" {
		result.Model = model
	}
	return result, nil
}
