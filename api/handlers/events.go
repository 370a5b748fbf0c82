package handlers

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/agent/conversation"
)

// =============================================================================
// 📡 运行事件推送
// =============================================================================

const (
	// subscriberBuffer 每个订阅者的事件缓冲
	subscriberBuffer = 64
	// eventWriteTimeout 单条事件写入超时
	eventWriteTimeout = 5 * time.Second
)

// EventHub 把执行器事件扇出给订阅了对应会话的 websocket 连接。
// OnEvent 从不阻塞运行：订阅者缓冲满时丢弃该订阅者的事件。
type EventHub struct {
	mu      sync.RWMutex
	subs    map[string]map[*subscriber]struct{}
	origins []string
	logger  *zap.Logger
}

type subscriber struct {
	events  chan conversation.Event
	dropped atomic.Int64
}

var _ conversation.Observer = (*EventHub)(nil)

// NewEventHub 创建事件中心。origins 为允许跨域握手的 Origin 模式，空表示仅同源。
func NewEventHub(origins []string, logger *zap.Logger) *EventHub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EventHub{
		subs:    make(map[string]map[*subscriber]struct{}),
		origins: origins,
		logger:  logger.With(zap.String("component", "event_hub")),
	}
}

// Register 在 mux 上注册事件流路由
func (h *EventHub) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /v1/sessions/{id}/events", h.HandleEvents)
}

// OnEvent implements conversation.Observer.
func (h *EventHub) OnEvent(e conversation.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[e.ChatID] {
		select {
		case sub.events <- e:
		default:
			n := sub.dropped.Add(1)
			h.logger.Warn("subscriber too slow, event dropped",
				zap.String("chat_id", e.ChatID),
				zap.String("event", string(e.Type)),
				zap.Int64("dropped", n),
			)
		}
	}
}

// Subscribers 返回某会话当前的订阅数
func (h *EventHub) Subscribers(chatID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[chatID])
}

func (h *EventHub) subscribe(chatID string) *subscriber {
	sub := &subscriber{events: make(chan conversation.Event, subscriberBuffer)}
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs[chatID] == nil {
		h.subs[chatID] = make(map[*subscriber]struct{})
	}
	h.subs[chatID][sub] = struct{}{}
	return sub
}

func (h *EventHub) unsubscribe(chatID string, sub *subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subs[chatID], sub)
	if len(h.subs[chatID]) == 0 {
		delete(h.subs, chatID)
	}
}

// HandleEvents 升级为 websocket 并持续推送该会话的运行事件（JSON 文本帧）
func (h *EventHub) HandleEvents(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: h.origins})
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.String("chat_id", chatID), zap.Error(err))
		return
	}
	defer conn.CloseNow()

	sub := h.subscribe(chatID)
	defer h.unsubscribe(chatID, sub)

	h.logger.Debug("event subscriber connected", zap.String("chat_id", chatID))

	// 客户端只接收；CloseRead 处理控制帧并在对端关闭时取消 ctx
	ctx := conn.CloseRead(r.Context())
	for {
		select {
		case <-ctx.Done():
			h.logger.Debug("event subscriber disconnected", zap.String("chat_id", chatID))
			return
		case e := <-sub.events:
			if err := h.write(ctx, conn, e); err != nil {
				h.logger.Debug("event write failed", zap.String("chat_id", chatID), zap.Error(err))
				return
			}
		}
	}
}

func (h *EventHub) write(ctx context.Context, conn *websocket.Conn, e conversation.Event) error {
	ctx, cancel := context.WithTimeout(ctx, eventWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}
