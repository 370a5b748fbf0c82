package providers

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/roundtable/llm"
)

// maxErrorBody 错误响应体最多读取的字节数
const maxErrorBody = 64 << 10

// statusCodes 固定映射的上游状态码；未列出的 4xx/5xx 走 MapHTTPError 的兜底分支
var statusCodes = map[int]struct {
	code      llm.ErrorCode
	retryable bool
}{
	http.StatusUnauthorized:    {llm.ErrUnauthorized, false},
	http.StatusForbidden:       {llm.ErrForbidden, false},
	http.StatusTooManyRequests: {llm.ErrRateLimited, true},
	529:                        {llm.ErrModelOverloaded, true},
}

// quotaHints 400 响应中出现这些词时按额度耗尽处理
var quotaHints = []string{"quota", "credit", "billing"}

// MapHTTPError 把非 2xx 响应转成 llm.Error，HTTPStatus 保留上游原值
func MapHTTPError(status int, msg string, provider string) *llm.Error {
	e := &llm.Error{Message: msg, HTTPStatus: status, Provider: provider}
	if m, ok := statusCodes[status]; ok {
		e.Code, e.Retryable = m.code, m.retryable
		return e
	}
	if status == http.StatusBadRequest {
		e.Code = llm.ErrInvalidRequest
		lower := strings.ToLower(msg)
		for _, hint := range quotaHints {
			if strings.Contains(lower, hint) {
				e.Code = llm.ErrQuotaExceeded
				break
			}
		}
		return e
	}
	e.Code, e.Retryable = llm.ErrUpstreamError, status >= 500
	return e
}

// TransportError 包装 client.Do 返回的网络层错误（含超时与取消）
func TransportError(err error, provider string) *llm.Error {
	return &llm.Error{
		Code:       llm.ErrTransport,
		Message:    err.Error(),
		HTTPStatus: http.StatusBadGateway,
		Retryable:  true,
		Provider:   provider,
		Cause:      err,
	}
}

// InvalidResponseError 2xx 但响应体无法解析或缺少必需字段
func InvalidResponseError(msg string, provider string) *llm.Error {
	return &llm.Error{
		Code:       llm.ErrInvalidResponse,
		Message:    msg,
		HTTPStatus: http.StatusBadGateway,
		Provider:   provider,
	}
}

// apiErrorBody 两种约定的错误体：OpenAI 用 type，Gemini 用 status
type apiErrorBody struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Status  string `json:"status"`
	} `json:"error"`
}

func (b apiErrorBody) String() string {
	kind := b.Error.Type
	if kind == "" {
		kind = b.Error.Status
	}
	if kind == "" {
		return b.Error.Message
	}
	return b.Error.Message + " (type: " + kind + ")"
}

// ReadErrorMessage 提取错误响应中的可读信息，不是已知 JSON 结构时返回原文
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, maxErrorBody))
	if err != nil {
		return "failed to read error response"
	}
	var parsed apiErrorBody
	if json.Unmarshal(data, &parsed) == nil && parsed.Error.Message != "" {
		return parsed.String()
	}
	return strings.TrimSpace(string(data))
}

// CloseBody 读空剩余内容后关闭响应体，使底层连接可以复用
func CloseBody(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, maxErrorBody))
	_ = body.Close()
}
