// Package factory 提供 LLM Provider 的集中式工厂，
// 按 ProviderConfig 中的服务商名称选择调用约定并创建 Provider 实例。
package factory

import (
	"net/http"
	"strings"

	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/llm/providers/gemini"
	"github.com/BaSui01/roundtable/llm/providers/openaicompat"
	"github.com/BaSui01/roundtable/types"
	"go.uber.org/zap"
)

// Convention 表示后端调用约定
type Convention string

const (
	ConventionNative  Convention = "native"
	ConventionGeneric Convention = "generic"
)

// ConventionFor 返回服务商使用的调用约定：gemini 走原生约定，其余一律走通用约定
func ConventionFor(provider string) Convention {
	if strings.EqualFold(strings.TrimSpace(provider), gemini.ProviderName) {
		return ConventionNative
	}
	return ConventionGeneric
}

// NewProvider 根据已解析的配置创建 Provider。
// 凭证或端点缺失时返回 CONFIGURATION_ERROR，不会发起任何网络请求。
func NewProvider(cfg types.ProviderConfig, client *http.Client, logger *zap.Logger) (llm.Provider, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	name := strings.ToLower(strings.TrimSpace(cfg.Provider))
	if name == "" {
		return nil, types.NewConfigurationError("", "no provider configured for persona and no default provider set")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, types.NewConfigurationError(name, "missing API key for provider "+name)
	}

	switch ConventionFor(name) {
	case ConventionNative:
		return gemini.New(gemini.Config{
			APIKey:  cfg.APIKey,
			BaseURL: cfg.BaseURL,
			Model:   cfg.Model,
		}, client, logger), nil

	default:
		if strings.TrimSpace(cfg.BaseURL) == "" {
			return nil, types.NewConfigurationError(name, "missing base URL for provider "+name)
		}
		return openaicompat.New(openaicompat.Config{
			ProviderName: name,
			APIKey:       cfg.APIKey,
			BaseURL:      cfg.BaseURL,
			Model:        cfg.Model,
		}, client, logger), nil
	}
}
