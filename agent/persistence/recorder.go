package persistence

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/agent/conversation"
)

// Recorder 是把每次运行的新增发言写入 ChatStore 的观察者。
// 它在 RunCompleted / RunAborted 时一次性追加整段后缀。
type Recorder struct {
	store   ChatStore
	timeout time.Duration
	logger  *zap.Logger
	onError func(chatID string, err error)
}

var _ conversation.Observer = (*Recorder)(nil)

// RecorderOption 配置 Recorder
type RecorderOption func(*Recorder)

// WithWriteTimeout 设置单次写入超时
func WithWriteTimeout(d time.Duration) RecorderOption {
	return func(r *Recorder) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithErrorHandler 在写入失败时回调
func WithErrorHandler(fn func(chatID string, err error)) RecorderOption {
	return func(r *Recorder) { r.onError = fn }
}

// NewRecorder 创建 Recorder
func NewRecorder(store ChatStore, logger *zap.Logger, opts ...RecorderOption) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Recorder{
		store:   store,
		timeout: 10 * time.Second,
		logger:  logger.With(zap.String("component", "chat_recorder")),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// OnEvent implements conversation.Observer.
func (r *Recorder) OnEvent(e conversation.Event) {
	if !e.Terminal() || len(e.Turns) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()

	saved, err := r.store.AppendTurns(ctx, e.ChatID, e.Turns)
	if err != nil {
		r.logger.Error("failed to persist run suffix",
			zap.String("chat_id", e.ChatID),
			zap.String("run_id", e.RunID),
			zap.Int("turns", len(e.Turns)),
			zap.Error(err),
		)
		if r.onError != nil {
			r.onError(e.ChatID, err)
		}
		return
	}

	r.logger.Debug("run suffix persisted",
		zap.String("chat_id", e.ChatID),
		zap.String("run_id", e.RunID),
		zap.Int("turns", len(saved)),
		zap.String("state", string(e.Type)),
	)
}
