package openaicompat

import (
	"errors"
	"net/http"
	"time"

	"github.com/BaSui01/roundtable/llm"
	"github.com/BaSui01/roundtable/types"
)

// ErrMissingContent choices[0].message.content 缺失
var ErrMissingContent = errors.New("response is missing choices[0].message.content")

// chatMessage 的 Content 为指针，用来区分 "字段缺失" 与 "空字符串"
type chatMessage struct {
	Role    string  `json:"role"`
	Content *string `json:"content"`
	Name    string  `json:"name,omitempty"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float32       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatChoice struct {
	Index        int          `json:"index"`
	FinishReason string       `json:"finish_reason"`
	Message      *chatMessage `json:"message"`
}

type chatUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage,omitempty"`
	Created int64        `json:"created,omitempty"`
}

func toWireMessages(msgs []types.Message) []chatMessage {
	out := make([]chatMessage, len(msgs))
	for i, m := range msgs {
		content := m.Content
		out[i] = chatMessage{Role: string(m.Role), Content: &content, Name: m.Name}
	}
	return out
}

// toLLM 转成 llm.ChatResponse；首个 choice 没有 message.content 时返回 ErrMissingContent
func (r chatResponse) toLLM(provider string) (*llm.ChatResponse, error) {
	if len(r.Choices) == 0 || r.Choices[0].Message == nil || r.Choices[0].Message.Content == nil {
		return nil, ErrMissingContent
	}

	resp := &llm.ChatResponse{
		ID:       r.ID,
		Provider: provider,
		Model:    r.Model,
		Choices:  make([]llm.ChatChoice, 0, len(r.Choices)),
	}
	for _, c := range r.Choices {
		msg := types.Message{Role: types.RoleAssistant}
		if c.Message != nil {
			msg.Name = c.Message.Name
			if c.Message.Content != nil {
				msg.Content = *c.Message.Content
			}
		}
		resp.Choices = append(resp.Choices, llm.ChatChoice{Index: c.Index, FinishReason: c.FinishReason, Message: msg})
	}
	if r.Usage != nil {
		resp.Usage = llm.ChatUsage{
			PromptTokens:     r.Usage.PromptTokens,
			CompletionTokens: r.Usage.CompletionTokens,
			TotalTokens:      r.Usage.TotalTokens,
		}
	}
	if r.Created != 0 {
		resp.CreatedAt = time.Unix(r.Created, 0)
	}
	return resp, nil
}

// BearerHeaders 默认的请求头：Authorization: Bearer <apiKey>
func BearerHeaders(r *http.Request, apiKey string) {
	r.Header.Set("Authorization", "Bearer "+apiKey)
	r.Header.Set("Content-Type", "application/json")
}
