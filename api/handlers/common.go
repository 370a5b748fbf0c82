package handlers

import (
	"encoding/json"
	"errors"
	"mime"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/roundtable/internal/ctxkeys"
	"github.com/BaSui01/roundtable/types"
)

// =============================================================================
// 📦 响应信封
// =============================================================================

// Response 所有 JSON 接口共用的信封；request_id 取自 RequestID 中间件写入的 ctx
type Response struct {
	Success   bool       `json:"success"`
	Data      any        `json:"data,omitempty"`
	Error     *ErrorInfo `json:"error,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
	RequestID string     `json:"request_id,omitempty"`
}

// ErrorInfo 失败时的错误体。Provider 仅在上游模型出错时出现
type ErrorInfo struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Provider  string `json:"provider,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

func envelope(r *http.Request) Response {
	resp := Response{Timestamp: time.Now().UTC()}
	if r != nil {
		resp.RequestID, _ = ctxkeys.RequestID(r.Context())
	}
	return resp
}

// WriteJSON 按给定状态码写出 data，不做信封包装（健康检查直接使用）
func WriteJSON(w http.ResponseWriter, status int, data any) {
	h := w.Header()
	h.Set("Content-Type", "application/json; charset=utf-8")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	// 状态码已发出，编码失败只能放弃
	_ = json.NewEncoder(w).Encode(data)
}

// WriteSuccess 以 200 写出成功信封
func WriteSuccess(w http.ResponseWriter, r *http.Request, data any) {
	resp := envelope(r)
	resp.Success = true
	resp.Data = data
	WriteJSON(w, http.StatusOK, resp)
}

// WriteError 把任意错误写成失败信封。非 *types.Error 一律视为内部错误，
// 原始信息只进日志不回给客户端。
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	apiErr, ok := types.AsError(err)
	if !ok {
		apiErr = types.NewError(types.ErrInternalError, "internal error").WithCause(err)
	}
	status := statusFor(apiErr)

	if logger != nil {
		fields := []zap.Field{
			zap.String("code", string(apiErr.Code)),
			zap.Int("status", status),
		}
		if r != nil {
			fields = append(fields, ctxkeys.LogFields(r.Context())...)
			fields = append(fields, zap.String("path", r.URL.Path))
		}
		if apiErr.Provider != "" {
			fields = append(fields, zap.String("provider", apiErr.Provider))
		}
		if apiErr.Cause != nil {
			fields = append(fields, zap.Error(apiErr.Cause))
		}
		// 4xx 是调用方问题（含 409 忙碌），不刷 error 级别
		if status >= http.StatusInternalServerError {
			logger.Error(apiErr.Message, fields...)
		} else {
			logger.Debug(apiErr.Message, fields...)
		}
	}

	resp := envelope(r)
	resp.Error = &ErrorInfo{
		Code:      string(apiErr.Code),
		Message:   apiErr.Message,
		Provider:  apiErr.Provider,
		Retryable: apiErr.Retryable,
	}
	WriteJSON(w, status, resp)
}

// statusFor 显式 HTTPStatus 优先，否则按错误码推导。
// ProviderError 的 HTTPStatus 记录的是上游状态码，对外固定 502。
func statusFor(e *types.Error) int {
	if e.HTTPStatus != 0 && e.Code != types.ErrProvider {
		return e.HTTPStatus
	}
	return mapErrorCodeToHTTPStatus(e.Code)
}

func mapErrorCodeToHTTPStatus(code types.ErrorCode) int {
	switch code {
	case types.ErrInvalidRequest:
		return http.StatusBadRequest
	case types.ErrUnauthorized:
		return http.StatusUnauthorized
	case types.ErrNotFound:
		return http.StatusNotFound
	case types.ErrSessionBusy:
		return http.StatusConflict
	case types.ErrRateLimited:
		return http.StatusTooManyRequests
	case types.ErrProvider:
		return http.StatusBadGateway
	case types.ErrNetwork:
		return http.StatusGatewayTimeout
	case types.ErrServiceUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// =============================================================================
// 🛡️ 请求体
// =============================================================================

// maxBodyBytes 会话文档连同全部 persona 配置也远小于 1 MB
const maxBodyBytes = 1 << 20

// DecodeJSONBody 严格解码请求体：未知字段、尾随数据、超限都按 400/413 拒绝。
// 返回非 nil 时响应已写出。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, logger *zap.Logger) error {
	if r.Body == nil || r.Body == http.NoBody {
		err := types.NewError(types.ErrInvalidRequest, "request body is empty")
		WriteError(w, r, err, logger)
		return err
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		apiErr := types.NewError(types.ErrInvalidRequest, "invalid JSON body").WithCause(err)
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			apiErr = types.NewError(types.ErrInvalidRequest, "request body too large").
				WithCause(err).
				WithHTTPStatus(http.StatusRequestEntityTooLarge)
		}
		WriteError(w, r, apiErr, logger)
		return apiErr
	}
	if dec.More() {
		apiErr := types.NewError(types.ErrInvalidRequest, "request body must contain a single JSON document")
		WriteError(w, r, apiErr, logger)
		return apiErr
	}
	return nil
}

// ValidateContentType 要求 application/json，否则写出 415 并返回 false
func ValidateContentType(w http.ResponseWriter, r *http.Request, logger *zap.Logger) bool {
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && mediaType == "application/json" {
		return true
	}
	WriteError(w, r, types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json").
		WithHTTPStatus(http.StatusUnsupportedMediaType), logger)
	return false
}
