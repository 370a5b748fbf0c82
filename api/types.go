package api

import (
	"time"

	"github.com/BaSui01/roundtable/agent/conversation"
	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 会话类型
// =============================================================================

// SessionRequest 创建或更新会话设置的请求。会话 ID 取自路径。
// @Description 会话设置
type SessionRequest struct {
	// 会话标题
	Title string `json:"title,omitempty" example:"Product review"`
	// 参与讨论的 persona ID，按名册顺序
	Members []string `json:"members"`
	// 每位成员的回复次数，未设置时为 1
	Settings map[string]types.MemberSettings `json:"settings,omitempty"`
	// 发言顺序策略（fixed、random、auto_discussion）
	Policy types.OrderingPolicy `json:"policy,omitempty" example:"fixed"`
	// fixed 策略下的显式顺序
	FixedOrder []string `json:"fixed_order,omitempty"`
	// 生成摘要的 persona ID
	SummaryAgentID string `json:"summary_agent_id,omitempty"`
}

// ToSession 把请求转换为会话设置
func (r SessionRequest) ToSession(chatID string) *types.ChatSession {
	return &types.ChatSession{
		ID:             chatID,
		Title:          r.Title,
		Members:        r.Members,
		Settings:       r.Settings,
		Policy:         r.Policy,
		FixedOrder:     r.FixedOrder,
		SummaryAgentID: r.SummaryAgentID,
	}
}

// SessionListResponse 会话列表
type SessionListResponse struct {
	Sessions []*types.ChatSession `json:"sessions"`
	Total    int                  `json:"total"`
}

// TurnListResponse 会话的已持久化发言
type TurnListResponse struct {
	ChatID string       `json:"chat_id"`
	Turns  []types.Turn `json:"turns"`
	Total  int          `json:"total"`
}

// =============================================================================
// 运行类型
// =============================================================================

// MessageRequest 发送一条用户消息
// @Description 用户消息
type MessageRequest struct {
	// 消息正文
	Text string `json:"text" example:"What do you all think about the launch plan?" binding:"required"`
}

// RunResponse 一次运行的终态：状态、新增发言、失败原因
// @Description 运行结果
type RunResponse struct {
	RunID      string                `json:"run_id"`
	ChatID     string                `json:"chat_id"`
	Kind       conversation.RunKind  `json:"kind"`
	State      conversation.RunState `json:"state"`
	QueueLen   int                   `json:"queue_len"`
	Turns      []types.Turn          `json:"turns"`
	Error      *ErrorDetail          `json:"error,omitempty"`
	StartedAt  time.Time             `json:"started_at"`
	FinishedAt time.Time             `json:"finished_at"`
}

// NewRunResponse 从 RunResult 构建响应
func NewRunResponse(res *conversation.RunResult) RunResponse {
	out := RunResponse{
		RunID:      res.RunID,
		ChatID:     res.ChatID,
		Kind:       res.Kind,
		State:      res.State,
		QueueLen:   res.QueueLen,
		Turns:      res.Suffix,
		StartedAt:  res.StartedAt,
		FinishedAt: res.FinishedAt,
	}
	if out.Turns == nil {
		out.Turns = []types.Turn{}
	}
	if res.Err != nil {
		out.Error = NewErrorDetail(res.Err)
	}
	return out
}

// =============================================================================
// Persona 与预览
// =============================================================================

// PersonaResponse 目录中的 persona
type PersonaResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Role        string   `json:"role,omitempty"`
	Instruction string   `json:"instruction,omitempty"`
	Provider    string   `json:"provider"`
	Model       string   `json:"model,omitempty"`
	Temperature *float32 `json:"temperature,omitempty"`
}

// NewPersonaResponse 从 persona 构建响应
func NewPersonaResponse(p types.Persona) PersonaResponse {
	return PersonaResponse{
		ID:          p.ID,
		Name:        p.DisplayName(),
		Role:        p.Role,
		Instruction: p.Instruction,
		Provider:    p.Binding.Provider,
		Model:       p.Binding.Model,
		Temperature: p.Temperature,
	}
}

// PersonaListResponse persona 目录
type PersonaListResponse struct {
	Personas []PersonaResponse `json:"personas"`
	Total    int               `json:"total"`
}

// PreviewResponse 会话的最新一条发言
type PreviewResponse struct {
	ChatID      string    `json:"chat_id"`
	SpeakerID   string    `json:"speaker_id"`
	SpeakerName string    `json:"speaker_name"`
	Text        string    `json:"text"`
	At          time.Time `json:"at"`
	// 是否来自缓存；未命中时由持久化历史补齐
	Cached bool `json:"cached"`
}

// =============================================================================
// 错误类型
// =============================================================================

// ErrorDetail 运行失败的原因，区分配置、网络与提供者错误
type ErrorDetail struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Provider  string `json:"provider,omitempty"`
	Status    int    `json:"status,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// NewErrorDetail 把错误转换为 ErrorDetail
func NewErrorDetail(err error) *ErrorDetail {
	if err == nil {
		return nil
	}
	if e, ok := types.AsError(err); ok {
		msg := e.Message
		if e.Cause != nil {
			msg += ": " + e.Cause.Error()
		}
		return &ErrorDetail{
			Code:      string(e.Code),
			Message:   msg,
			Provider:  e.Provider,
			Status:    e.HTTPStatus,
			Retryable: e.Retryable,
		}
	}
	return &ErrorDetail{
		Code:    string(types.ErrInternalError),
		Message: err.Error(),
	}
}
