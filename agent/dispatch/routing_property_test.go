package dispatch

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"go.uber.org/zap"
	"pgregory.net/rapid"

	"github.com/BaSui01/roundtable/agent/conversation"
	"github.com/BaSui01/roundtable/types"
)

// The native provider never sends a {model, messages} body; every other
// provider always does.
func TestProperty_DispatchRouting(t *testing.T) {
	b := &backend{reply: "ok"}
	srv := httptest.NewServer(http.HandlerFunc(b.handler))
	defer srv.Close()

	d := New(zap.NewNop(), WithHTTPClient(srv.Client()))

	rapid.Check(t, func(rt *rapid.T) {
		provider := rapid.SampledFrom([]string{
			"gemini", "Gemini", "openai", "deepseek", "qwen", "kimi", "glm", "mistral",
		}).Draw(rt, "provider")
		model := rapid.SampledFrom([]string{"", "m-1", "gemini-2.5-pro", "gpt-4o"}).Draw(rt, "model")
		ctxLen := rapid.IntRange(0, 4).Draw(rt, "contextLen")

		name := strings.ToLower(provider)
		// 默认配置来自另一个服务商，缺省模型时也不能改变调用约定
		fallback := "openai"
		if name == "openai" {
			fallback = "gemini"
		}
		cfgs := types.ProviderConfigs{
			Default: types.ProviderConfig{Provider: fallback, APIKey: "dk", BaseURL: srv.URL, Model: "default-model"},
			Providers: map[string]types.ProviderConfig{
				name: {Provider: name, APIKey: "k", BaseURL: srv.URL},
			},
		}
		p := types.Persona{ID: "p", Name: "P", Binding: types.ProviderBinding{Provider: provider, Model: model}}

		before := b.requests()
		_, err := d.Generate(context.Background(), conversation.DispatchRequest{
			ChatID:          "c",
			Persona:         p,
			TriggeringText:  "go",
			Context:         sampleContext()[:ctxLen],
			ProviderConfigs: cfgs,
		})
		if err != nil {
			rt.Fatalf("generate: %v", err)
		}
		if b.requests() != before+1 {
			rt.Fatalf("expected exactly one backend call")
		}

		body := b.lastBody()
		_, hasModel := body["model"]
		_, hasMessages := body["messages"]
		chatShaped := hasModel && hasMessages
		if name == "gemini" && (hasModel || hasMessages) {
			rt.Fatalf("native request carried chat-completions fields: %v", body)
		}
		if name != "gemini" && !chatShaped {
			rt.Fatalf("generic request missing model/messages: %v", body)
		}
		if model == "" && name != "gemini" && body["model"] != "default-model" {
			rt.Fatalf("missing model should fall back to the default model, got %v", body["model"])
		}
	})
}
