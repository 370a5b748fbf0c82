package types

import (
	"errors"
	"fmt"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Dispatch error codes. The executor treats all three the same way.
const (
	ErrConfiguration ErrorCode = "CONFIGURATION_ERROR" // 凭证或端点缺失，未发起网络请求
	ErrNetwork       ErrorCode = "NETWORK_ERROR"       // 传输层失败（含超时/取消）
	ErrProvider      ErrorCode = "PROVIDER_ERROR"      // 非 2xx 或无法解析的响应
)

// Request / session error codes
const (
	ErrInvalidRequest     ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized       ErrorCode = "UNAUTHORIZED"
	ErrRateLimited        ErrorCode = "RATE_LIMITED"
	ErrNotFound           ErrorCode = "NOT_FOUND"
	ErrSessionBusy        ErrorCode = "SESSION_BUSY"
	ErrInternalError      ErrorCode = "INTERNAL_ERROR"
	ErrServiceUnavailable ErrorCode = "SERVICE_UNAVAILABLE"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// NewConfigurationError reports a missing credential or endpoint.
func NewConfigurationError(provider, message string) *Error {
	return &Error{Code: ErrConfiguration, Message: message, Provider: provider}
}

// NewNetworkError wraps a transport-level failure.
func NewNetworkError(provider string, cause error) *Error {
	return &Error{Code: ErrNetwork, Message: "provider unreachable", Provider: provider, Retryable: true, Cause: cause}
}

// NewProviderError reports a non-success status or an unparseable payload.
func NewProviderError(provider, message string, status int) *Error {
	return &Error{Code: ErrProvider, Message: message, Provider: provider, HTTPStatus: status}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// AsError extracts a *Error from the chain.
func AsError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := AsError(err); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := AsError(err); ok {
		return e.Code
	}
	return ""
}

// IsErrorCode reports whether err carries the given code.
func IsErrorCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}

func IsConfigurationError(err error) bool { return IsErrorCode(err, ErrConfiguration) }
func IsNetworkError(err error) bool       { return IsErrorCode(err, ErrNetwork) }
func IsProviderError(err error) bool      { return IsErrorCode(err, ErrProvider) }
