package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/BaSui01/roundtable/internal/ctxkeys"
	"github.com/BaSui01/roundtable/types"
)

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	return resp
}

func requestWithID(method, target, body, requestID string) *http.Request {
	var r *http.Request
	if body == "" {
		r = httptest.NewRequest(method, target, nil)
	} else {
		r = httptest.NewRequest(method, target, strings.NewReader(body))
	}
	if requestID != "" {
		r = r.WithContext(ctxkeys.WithRequestID(r.Context(), requestID))
	}
	return r
}

func TestWriteSuccess_EchoesRequestID(t *testing.T) {
	w := httptest.NewRecorder()
	r := requestWithID(http.MethodGet, "/api/v1/sessions", "", "req-7")

	WriteSuccess(w, r, map[string]int{"total": 0})

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))

	resp := decodeEnvelope(t, w)
	assert.True(t, resp.Success)
	assert.Nil(t, resp.Error)
	assert.Equal(t, "req-7", resp.RequestID)
	assert.False(t, resp.Timestamp.IsZero())
}

func TestWriteError_StatusAndBody(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantStatus   int
		wantCode     types.ErrorCode
		wantProvider string
		wantMessage  string
	}{
		{
			name:       "missing chat",
			err:        types.NewError(types.ErrNotFound, "session not found"),
			wantStatus: http.StatusNotFound,
			wantCode:   types.ErrNotFound,
		},
		{
			name:       "concurrent run",
			err:        types.NewError(types.ErrSessionBusy, "a run is already in progress for this chat"),
			wantStatus: http.StatusConflict,
			wantCode:   types.ErrSessionBusy,
		},
		{
			name:         "upstream model failure",
			err:          types.NewProviderError("gemini", "quota exceeded", http.StatusTooManyRequests),
			wantStatus:   http.StatusBadGateway,
			wantCode:     types.ErrProvider,
			wantProvider: "gemini",
		},
		{
			name:         "upstream timeout",
			err:          types.NewNetworkError("openai", errors.New("context deadline exceeded")),
			wantStatus:   http.StatusGatewayTimeout,
			wantCode:     types.ErrNetwork,
			wantProvider: "openai",
		},
		{
			name:        "plain error is masked",
			err:         errors.New("dial tcp 10.0.0.3:5432: connection refused"),
			wantStatus:  http.StatusInternalServerError,
			wantCode:    types.ErrInternalError,
			wantMessage: "internal error",
		},
		{
			name:       "explicit status wins",
			err:        types.NewError(types.ErrInvalidRequest, "too big").WithHTTPStatus(http.StatusRequestEntityTooLarge),
			wantStatus: http.StatusRequestEntityTooLarge,
			wantCode:   types.ErrInvalidRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			WriteError(w, requestWithID(http.MethodPost, "/api/v1/sessions/c1/messages", "", "req-1"), tt.err, zap.NewNop())

			assert.Equal(t, tt.wantStatus, w.Code)
			resp := decodeEnvelope(t, w)
			assert.False(t, resp.Success)
			assert.Nil(t, resp.Data)
			require.NotNil(t, resp.Error)
			assert.Equal(t, string(tt.wantCode), resp.Error.Code)
			assert.Equal(t, tt.wantProvider, resp.Error.Provider)
			assert.Equal(t, "req-1", resp.RequestID)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, resp.Error.Message)
			}
		})
	}
}

func TestWriteError_LogLevelFollowsStatus(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := zap.New(core)

	r := requestWithID(http.MethodPost, "/api/v1/sessions/c1/summary", "", "req-9")
	WriteError(httptest.NewRecorder(), r, types.NewError(types.ErrSessionBusy, "busy"), logger)
	WriteError(httptest.NewRecorder(), r, errors.New("boom"), logger)

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.DebugLevel, entries[0].Level)
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "req-9", entries[1].ContextMap()["request_id"])
	assert.Equal(t, "/api/v1/sessions/c1/summary", entries[1].ContextMap()["path"])
}

func TestMapErrorCodeToHTTPStatus(t *testing.T) {
	tests := []struct {
		code       types.ErrorCode
		wantStatus int
	}{
		{types.ErrInvalidRequest, http.StatusBadRequest},
		{types.ErrUnauthorized, http.StatusUnauthorized},
		{types.ErrNotFound, http.StatusNotFound},
		{types.ErrSessionBusy, http.StatusConflict},
		{types.ErrRateLimited, http.StatusTooManyRequests},
		{types.ErrProvider, http.StatusBadGateway},
		{types.ErrNetwork, http.StatusGatewayTimeout},
		{types.ErrServiceUnavailable, http.StatusServiceUnavailable},
		{types.ErrConfiguration, http.StatusInternalServerError},
		{"SOMETHING_NEW", http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(string(tt.code), func(t *testing.T) {
			assert.Equal(t, tt.wantStatus, mapErrorCodeToHTTPStatus(tt.code))
		})
	}
}

func TestDecodeJSONBody(t *testing.T) {
	type messageBody struct {
		Text string `json:"text"`
	}

	tests := []struct {
		name       string
		body       string
		wantErr    bool
		wantStatus int
		wantText   string
	}{
		{name: "user message", body: `{"text":"hello everyone"}`, wantText: "hello everyone"},
		{name: "empty body", body: "", wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "broken json", body: `{"text":`, wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "unknown field", body: `{"text":"hi","persona":"x"}`, wantErr: true, wantStatus: http.StatusBadRequest},
		{name: "two documents", body: `{"text":"a"}{"text":"b"}`, wantErr: true, wantStatus: http.StatusBadRequest},
		{
			name:       "oversized",
			body:       `{"text":"` + strings.Repeat("x", maxBodyBytes+1) + `"}`,
			wantErr:    true,
			wantStatus: http.StatusRequestEntityTooLarge,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := requestWithID(http.MethodPost, "/api/v1/sessions/c1/messages", tt.body, "")
			if tt.body == "" {
				r.Body = http.NoBody
			}

			var got messageBody
			err := DecodeJSONBody(w, r, &got, zap.NewNop())
			if !tt.wantErr {
				require.NoError(t, err)
				assert.Equal(t, tt.wantText, got.Text)
				return
			}
			assert.Error(t, err)
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}

func TestValidateContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/json", true},
		{"application/json; charset=UTF-8", true},
		{"text/plain", false},
		{"application/x-www-form-urlencoded", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPut, "/api/v1/sessions/c1", nil)
			r.Header.Set("Content-Type", tt.contentType)

			assert.Equal(t, tt.want, ValidateContentType(w, r, zap.NewNop()))
			if !tt.want {
				assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)
			}
		})
	}
}
