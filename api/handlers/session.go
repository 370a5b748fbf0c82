package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/agent/conversation"
	"github.com/BaSui01/roundtable/agent/persistence"
	"github.com/BaSui01/roundtable/api"
	"github.com/BaSui01/roundtable/internal/cache"
	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 💬 会话 Handler
// =============================================================================

// PreviewSource 会话最新发言的缓存读取端
type PreviewSource interface {
	Get(ctx context.Context, chatID string) (cache.Preview, error)
	Forget(ctx context.Context, chatID string) error
}

// CacheMetrics 记录缓存命中情况
type CacheMetrics interface {
	RecordCacheHit(cacheType string)
	RecordCacheMiss(cacheType string)
}

// previewCacheType 预览缓存的指标标签
const previewCacheType = "preview"

// SessionHandler 会话设置、历史与运行触发
type SessionHandler struct {
	store     persistence.ChatStore
	sessions  *conversation.Sessions
	personas  conversation.PersonaCatalog
	providers func() types.ProviderConfigs
	previews  PreviewSource
	metrics   CacheMetrics
	logger    *zap.Logger
}

// SessionHandlerOption 配置 SessionHandler
type SessionHandlerOption func(*SessionHandler)

// WithPreviews 启用预览缓存
func WithPreviews(p PreviewSource) SessionHandlerOption {
	return func(h *SessionHandler) { h.previews = p }
}

// WithCacheMetrics 记录预览缓存命中率
func WithCacheMetrics(m CacheMetrics) SessionHandlerOption {
	return func(h *SessionHandler) { h.metrics = m }
}

// NewSessionHandler 创建会话处理器。providers 在每次运行开始时读取一次，
// 运行期间配置保持不变。
func NewSessionHandler(
	store persistence.ChatStore,
	sessions *conversation.Sessions,
	personas conversation.PersonaCatalog,
	providers func() types.ProviderConfigs,
	logger *zap.Logger,
	opts ...SessionHandlerOption,
) *SessionHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &SessionHandler{
		store:     store,
		sessions:  sessions,
		personas:  personas,
		providers: providers,
		logger:    logger.With(zap.String("handler", "session")),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register 在 mux 上注册会话路由
func (h *SessionHandler) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/sessions", h.HandleList)
	mux.HandleFunc("PUT /v1/sessions/{id}", h.HandlePut)
	mux.HandleFunc("GET /v1/sessions/{id}", h.HandleGet)
	mux.HandleFunc("DELETE /v1/sessions/{id}", h.HandleDelete)
	mux.HandleFunc("GET /v1/sessions/{id}/turns", h.HandleTurns)
	mux.HandleFunc("POST /v1/sessions/{id}/messages", h.HandleMessage)
	mux.HandleFunc("POST /v1/sessions/{id}/summary", h.HandleSummary)
	mux.HandleFunc("GET /v1/sessions/{id}/preview", h.HandlePreview)
}

// =============================================================================
// 🎯 会话设置
// =============================================================================

// HandleList 列出所有会话
func (h *SessionHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	sessions, err := h.store.ListSessions(r.Context())
	if err != nil {
		h.writeStoreError(w, r, "list sessions", err)
		return
	}
	if sessions == nil {
		sessions = []*types.ChatSession{}
	}
	WriteSuccess(w, r, api.SessionListResponse{Sessions: sessions, Total: len(sessions)})
}

// HandlePut 创建或更新会话设置
func (h *SessionHandler) HandlePut(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.SessionRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}

	session := req.ToSession(chatID)
	if err := h.validateSession(session); err != nil {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
		return
	}

	if err := h.store.SaveSession(r.Context(), session); err != nil {
		h.writeStoreError(w, r, "save session", err)
		return
	}

	saved, err := h.store.GetSession(r.Context(), chatID)
	if err != nil {
		h.writeStoreError(w, r, "reload session", err)
		return
	}

	h.logger.Info("session saved",
		zap.String("chat_id", chatID),
		zap.Int("members", len(saved.Members)),
		zap.String("policy", string(saved.Policy)),
	)
	WriteSuccess(w, r, saved)
}

// validateSession 校验设置并确认名册中的 persona 均存在
func (h *SessionHandler) validateSession(s *types.ChatSession) error {
	if err := s.Validate(); err != nil {
		return err
	}
	for _, id := range s.Members {
		if _, ok := h.personas.Persona(id); !ok {
			return fmt.Errorf("unknown persona %s", id)
		}
	}
	for id := range s.Settings {
		if !s.HasMember(id) {
			return fmt.Errorf("settings reference %s which is not on the roster", id)
		}
	}
	for _, id := range s.FixedOrder {
		if !s.HasMember(id) {
			return fmt.Errorf("fixed order references %s which is not on the roster", id)
		}
	}
	if s.SummaryAgentID != "" {
		if _, ok := h.personas.Persona(s.SummaryAgentID); !ok {
			return fmt.Errorf("unknown summary persona %s", s.SummaryAgentID)
		}
	}
	return nil
}

// HandleGet 读取会话设置
func (h *SessionHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	session, err := h.store.GetSession(r.Context(), r.PathValue("id"))
	if err != nil {
		h.writeStoreError(w, r, "get session", err)
		return
	}
	WriteSuccess(w, r, session)
}

// HandleDelete 删除会话及其历史
func (h *SessionHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	if err := h.store.DeleteSession(r.Context(), chatID); err != nil {
		h.writeStoreError(w, r, "delete session", err)
		return
	}
	if h.previews != nil {
		if err := h.previews.Forget(r.Context(), chatID); err != nil {
			h.logger.Warn("failed to drop preview", zap.String("chat_id", chatID), zap.Error(err))
		}
	}
	h.sessions.Forget(chatID)
	h.logger.Info("session deleted", zap.String("chat_id", chatID))
	w.WriteHeader(http.StatusNoContent)
}

// HandleTurns 返回已持久化的发言
func (h *SessionHandler) HandleTurns(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	if _, err := h.store.GetSession(r.Context(), chatID); err != nil {
		h.writeStoreError(w, r, "get session", err)
		return
	}
	turns, err := h.store.ListTurns(r.Context(), chatID)
	if err != nil {
		h.writeStoreError(w, r, "list turns", err)
		return
	}
	if turns == nil {
		turns = []types.Turn{}
	}
	WriteSuccess(w, r, api.TurnListResponse{ChatID: chatID, Turns: turns, Total: len(turns)})
}

// =============================================================================
// 🚀 运行触发
// =============================================================================

// HandleMessage 发送用户消息并同步返回本次运行的结果。
// 运行中止不是 HTTP 错误：响应 200，state 为 aborted 并附带失败原因。
// 客户端断开不会取消运行，单次调用仍受 provider 超时约束。
func (h *SessionHandler) HandleMessage(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")
	if !ValidateContentType(w, r, h.logger) {
		return
	}

	var req api.MessageRequest
	if err := DecodeJSONBody(w, r, &req, h.logger); err != nil {
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, "text is required"), h.logger)
		return
	}

	handle, err := h.sessions.StartSession(r.Context(), chatID)
	if err != nil {
		h.writeStoreError(w, r, "start session", err)
		return
	}

	res, err := handle.Send(context.WithoutCancel(r.Context()), req.Text, h.providers())
	if err != nil {
		h.writeRunError(w, r, chatID, err)
		return
	}

	h.logRun(res)
	WriteSuccess(w, r, api.NewRunResponse(res))
}

// HandleSummary 触发摘要运行
func (h *SessionHandler) HandleSummary(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")

	handle, err := h.sessions.StartSession(r.Context(), chatID)
	if err != nil {
		h.writeStoreError(w, r, "start session", err)
		return
	}

	res, err := handle.Summarize(context.WithoutCancel(r.Context()), h.providers())
	if err != nil {
		h.writeRunError(w, r, chatID, err)
		return
	}

	h.logRun(res)
	WriteSuccess(w, r, api.NewRunResponse(res))
}

func (h *SessionHandler) logRun(res *conversation.RunResult) {
	fields := []zap.Field{
		zap.String("chat_id", res.ChatID),
		zap.String("run_id", res.RunID),
		zap.String("kind", string(res.Kind)),
		zap.String("state", string(res.State)),
		zap.Int("turns", len(res.Suffix)),
		zap.Duration("duration", res.FinishedAt.Sub(res.StartedAt)),
	}
	if res.State == conversation.StateAborted {
		h.logger.Warn("run aborted", append(fields, zap.String("error", res.ErrorSummary()))...)
		return
	}
	h.logger.Info("run finished", fields...)
}

// =============================================================================
// 👀 预览
// =============================================================================

// HandlePreview 返回会话的最新发言，优先读缓存，未命中时回落到持久化历史
func (h *SessionHandler) HandlePreview(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")

	if h.previews != nil {
		p, err := h.previews.Get(r.Context(), chatID)
		switch {
		case err == nil:
			h.recordCache(true)
			WriteSuccess(w, r, api.PreviewResponse{
				ChatID:      p.ChatID,
				SpeakerID:   p.SpeakerID,
				SpeakerName: p.SpeakerName,
				Text:        p.Text,
				At:          p.At,
				Cached:      true,
			})
			return
		case cache.IsCacheMiss(err):
			h.recordCache(false)
		default:
			h.recordCache(false)
			h.logger.Warn("preview cache read failed", zap.String("chat_id", chatID), zap.Error(err))
		}
	}

	turns, err := h.store.ListTurns(r.Context(), chatID)
	if err != nil {
		h.writeStoreError(w, r, "list turns", err)
		return
	}
	for i := len(turns) - 1; i >= 0; i-- {
		t := turns[i]
		if t.System {
			continue
		}
		WriteSuccess(w, r, api.PreviewResponse{
			ChatID:      chatID,
			SpeakerID:   t.SpeakerID,
			SpeakerName: t.SpeakerName,
			Text:        t.Text,
			At:          t.Timestamp,
		})
		return
	}
	WriteError(w, r, types.NewError(types.ErrNotFound, "chat has no turns yet"), h.logger)
}

func (h *SessionHandler) recordCache(hit bool) {
	if h.metrics == nil {
		return
	}
	if hit {
		h.metrics.RecordCacheHit(previewCacheType)
		return
	}
	h.metrics.RecordCacheMiss(previewCacheType)
}

// =============================================================================
// 🔄 错误转换
// =============================================================================

func (h *SessionHandler) writeStoreError(w http.ResponseWriter, r *http.Request, op string, err error) {
	if errors.Is(err, persistence.ErrNotFound) {
		WriteError(w, r, types.NewError(types.ErrNotFound, "session not found"), h.logger)
		return
	}
	if errors.Is(err, persistence.ErrInvalidInput) {
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
		return
	}
	WriteError(w, r, types.NewError(types.ErrInternalError, op+" failed").WithCause(err), h.logger)
}

func (h *SessionHandler) writeRunError(w http.ResponseWriter, r *http.Request, chatID string, err error) {
	switch {
	case errors.Is(err, conversation.ErrSessionBusy):
		WriteError(w, r, types.NewError(types.ErrSessionBusy, "a run is already in progress for this chat"), h.logger)
	case errors.Is(err, conversation.ErrNoSummaryAgent), errors.Is(err, conversation.ErrInvalidTrigger):
		WriteError(w, r, types.NewError(types.ErrInvalidRequest, err.Error()), h.logger)
	default:
		WriteError(w, r, types.NewError(types.ErrInternalError, "run failed for chat "+chatID).WithCause(err), h.logger)
	}
}
