package cache

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/agent/conversation"
)

// =============================================================================
// 👀 最新消息预览
// =============================================================================

// previewKeyPrefix 预览键前缀，完整键为 chat:preview:{chatID}
const previewKeyPrefix = "chat:preview:"

// Preview 会话列表展示用的最新一条发言
type Preview struct {
	ChatID      string    `json:"chat_id"`
	SpeakerID   string    `json:"speaker_id"`
	SpeakerName string    `json:"speaker_name"`
	Text        string    `json:"text"`
	At          time.Time `json:"at"`
}

// PreviewKey 返回会话预览的缓存键
func PreviewKey(chatID string) string {
	return previewKeyPrefix + chatID
}

// PreviewRecorder 监听 TurnAppended 事件，把最新发言写入缓存
type PreviewRecorder struct {
	cache   *Manager
	ttl     time.Duration
	timeout time.Duration
	logger  *zap.Logger
}

// NewPreviewRecorder 创建预览记录器；ttl 为 0 时使用缓存默认过期时间
func NewPreviewRecorder(cache *Manager, ttl time.Duration, logger *zap.Logger) *PreviewRecorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PreviewRecorder{
		cache:   cache,
		ttl:     ttl,
		timeout: 2 * time.Second,
		logger:  logger.With(zap.String("component", "preview_recorder")),
	}
}

// OnEvent implements conversation.Observer.
// 写入失败只记录日志，不影响运行。
func (r *PreviewRecorder) OnEvent(e conversation.Event) {
	if e.Type != conversation.EventTurnAppended || e.Turn == nil {
		return
	}

	p := Preview{
		ChatID:      e.ChatID,
		SpeakerID:   e.Turn.SpeakerID,
		SpeakerName: e.Turn.SpeakerName,
		Text:        e.Preview,
		At:          e.Turn.Timestamp,
	}
	if p.Text == "" {
		p.Text = e.Turn.Text
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	if err := r.cache.SetJSON(ctx, PreviewKey(e.ChatID), p, r.ttl); err != nil {
		r.logger.Warn("preview update failed",
			zap.String("chat_id", e.ChatID),
			zap.String("run_id", e.RunID),
			zap.Error(err))
	}
}

// Get 读取会话预览，未命中时返回 ErrCacheMiss
func (r *PreviewRecorder) Get(ctx context.Context, chatID string) (Preview, error) {
	var p Preview
	if err := r.cache.GetJSON(ctx, PreviewKey(chatID), &p); err != nil {
		return Preview{}, err
	}
	return p, nil
}

// Forget 删除会话预览
func (r *PreviewRecorder) Forget(ctx context.Context, chatID string) error {
	return r.cache.Delete(ctx, PreviewKey(chatID))
}
