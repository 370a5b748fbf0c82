package ctxkeys

import (
	"context"

	"go.uber.org/zap"
)

// contextKey 用于在 context 中存储值的键类型
type contextKey string

const (
	requestIDKey contextKey = "request_id"
	chatIDKey    contextKey = "chat_id"
	runIDKey     contextKey = "run_id"
)

// WithRequestID 设置 HTTP 请求 ID
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestID 获取 HTTP 请求 ID
func RequestID(ctx context.Context) (string, bool) {
	return lookup(ctx, requestIDKey)
}

// WithChatID 设置群聊 ID
func WithChatID(ctx context.Context, chatID string) context.Context {
	return context.WithValue(ctx, chatIDKey, chatID)
}

// ChatID 获取群聊 ID
func ChatID(ctx context.Context) (string, bool) {
	return lookup(ctx, chatIDKey)
}

// WithRunID 设置编排运行 ID
func WithRunID(ctx context.Context, runID string) context.Context {
	return context.WithValue(ctx, runIDKey, runID)
}

// RunID 获取编排运行 ID
func RunID(ctx context.Context) (string, bool) {
	return lookup(ctx, runIDKey)
}

// LogFields 将 context 中已设置的 ID 转为 zap 字段
func LogFields(ctx context.Context) []zap.Field {
	fields := make([]zap.Field, 0, 3)
	if v, ok := RequestID(ctx); ok {
		fields = append(fields, zap.String("request_id", v))
	}
	if v, ok := ChatID(ctx); ok {
		fields = append(fields, zap.String("chat_id", v))
	}
	if v, ok := RunID(ctx); ok {
		fields = append(fields, zap.String("run_id", v))
	}
	return fields
}

func lookup(ctx context.Context, key contextKey) (string, bool) {
	v, ok := ctx.Value(key).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}
