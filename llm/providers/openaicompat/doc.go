// Package openaicompat implements the generic chat-completions calling
// convention used by every OpenAI-compatible backend (OpenAI, DeepSeek,
// Qwen, Kimi, GLM, local gateways).
//
// Requests are POSTed to {BaseURL}{EndpointPath} with a body of
// {model, messages, temperature}. A non-2xx status is mapped through
// providers.MapHTTPError; a body without choices[0].message.content is
// reported as llm.ErrInvalidResponse.
//
// Usage:
//
//	p := openaicompat.New(openaicompat.Config{
//	    ProviderName: "deepseek",
//	    APIKey:       cfg.APIKey,
//	    BaseURL:      "https://api.deepseek.com/v1",
//	    Model:        "deepseek-chat",
//	}, client, logger)
package openaicompat
