package gemini

import (
	"strings"
	"time"

	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/types"
)

// generateContent 请求/响应体，字段名与 v1beta REST 接口一致

type content struct {
	Role  string `json:"role,omitempty"` // user | model
	Parts []part `json:"parts"`
}

type part struct {
	Text    string `json:"text,omitempty"`
	Thought bool   `json:"thought,omitempty"`
}

type thinkingConfig struct {
	ThinkingBudget  int  `json:"thinkingBudget"`
	IncludeThoughts bool `json:"includeThoughts,omitempty"`
}

type generationConfig struct {
	Temperature     *float32        `json:"temperature,omitempty"`
	MaxOutputTokens int             `json:"maxOutputTokens,omitempty"`
	ThinkingConfig  *thinkingConfig `json:"thinkingConfig,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
}

type candidate struct {
	Content      content `json:"content"`
	FinishReason string  `json:"finishReason,omitempty"`
	Index        int     `json:"index"`
}

type usageMetadata struct {
	PromptTokenCount     int `json:"promptTokenCount"`
	CandidatesTokenCount int `json:"candidatesTokenCount"`
	TotalTokenCount      int `json:"totalTokenCount"`
}

type generateResponse struct {
	Candidates    []candidate    `json:"candidates"`
	UsageMetadata *usageMetadata `json:"usageMetadata,omitempty"`
	ModelVersion  string         `json:"modelVersion,omitempty"`
	ResponseID    string         `json:"responseId,omitempty"`
}

// wireRoles assistant 在该接口里叫 model
var wireRoles = map[types.Role]string{
	types.RoleUser:      "user",
	types.RoleAssistant: "model",
}

// splitMessages system 消息合并进 systemInstruction，其余按顺序放进 contents。
// 空文本的非 system 消息会被跳过，接口不接受空 parts。
func splitMessages(msgs []types.Message) (*content, []content) {
	var (
		system   []part
		contents []content
	)
	for _, m := range msgs {
		if m.Role == types.RoleSystem {
			system = append(system, part{Text: m.Content})
			continue
		}
		if m.Content == "" {
			continue
		}
		role, ok := wireRoles[m.Role]
		if !ok {
			role = "user"
		}
		contents = append(contents, content{Role: role, Parts: []part{{Text: m.Content}}})
	}
	if len(system) == 0 {
		return nil, contents
	}
	return &content{Parts: system}, contents
}

// text 拼接非 thought 片段
func (c candidate) text() string {
	var b strings.Builder
	for _, p := range c.Content.Parts {
		if !p.Thought {
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

// toLLM 取首个候选；没有候选时返回空文本而非错误
func (r generateResponse) toLLM(model string, now time.Time) *llm.ChatResponse {
	resp := &llm.ChatResponse{
		ID:        r.ResponseID,
		Provider:  ProviderName,
		Model:     model,
		CreatedAt: now,
	}
	if r.ModelVersion != "" {
		resp.Model = r.ModelVersion
	}

	choice := llm.ChatChoice{Message: types.Message{Role: types.RoleAssistant}}
	if len(r.Candidates) > 0 {
		first := r.Candidates[0]
		choice.FinishReason = first.FinishReason
		choice.Message.Content = first.text()
	}
	resp.Choices = []llm.ChatChoice{choice}

	if u := r.UsageMetadata; u != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     u.PromptTokenCount,
			CompletionTokens: u.CandidatesTokenCount,
			TotalTokens:      u.TotalTokenCount,
		}
	}
	return resp
}
