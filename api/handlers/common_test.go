package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/BaSui01/recipeflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// =============================================================================
// 🧪 Common 函数测试
// =============================================================================

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	WriteJSON(w, http.StatusCreated, map[string]string{"message": "hello"})

	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "application/json; charset=utf-8", w.Header().Get("Content-Type"))
	assert.Equal(t, "nosniff", w.Header().Get("X-Content-Type-Options"))
	assert.JSONEq(t, `{"message":"hello"}`, w.Body.String())
}

func TestWriteError(t *testing.T) {
	tests := []struct {
		name           string
		err            error
		expectedStatus int
		expectedCode   string
		message        string
	}{
		{"invalid request", types.NewError(types.ErrInvalidRequest, "prompt is required"), http.StatusBadRequest, "INVALID_REQUEST", "prompt is required"},
		{"config", types.NewError(types.ErrConfigInvalid, "bad retriever"), http.StatusBadRequest, "CONFIG_INVALID", "bad retriever"},
		{"llm", types.NewError(types.ErrLLMCall, "model call failed").WithRetryable(true), http.StatusBadGateway, "LLM_CALL_ERROR", "model call failed"},
		{"max rounds", types.NewError(types.ErrMaxToolRounds, "too many"), http.StatusUnprocessableEntity, "MAX_TOOL_ROUNDS", "too many"},
		{"explicit status", types.NewError(types.ErrInvalidRequest, "too big").WithHTTPStatus(http.StatusRequestEntityTooLarge), http.StatusRequestEntityTooLarge, "INVALID_REQUEST", "too big"},
		{"plain error hides details", errors.New("dial tcp 10.0.0.1: refused"), http.StatusInternalServerError, "INTERNAL_ERROR", "internal error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			w.Header().Set("X-Request-ID", "req-1")
			r := httptest.NewRequest(http.MethodPost, "/x", nil)
			WriteError(w, r, tt.err, zap.NewNop())

			assert.Equal(t, tt.expectedStatus, w.Code)

			var resp ErrorResponse
			require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
			assert.False(t, resp.Success)
			assert.Equal(t, tt.expectedCode, resp.Error.Code)
			assert.Equal(t, tt.message, resp.Error.Message)
			assert.Equal(t, "req-1", resp.RequestID)
		})
	}
}

type decodeTarget struct {
	Name    string   `json:"name" validate:"required,max=10"`
	Queries []string `json:"queries" validate:"max=2,dive,required"`
}

func TestDecodeJSONBody(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        string
		maxBytes    int64
		wantStatus  int
		wantMessage string
	}{
		{name: "valid", contentType: "application/json", body: `{"name":"curry","queries":["a"]}`},
		{name: "no content type", body: `{"name":"curry"}`},
		{name: "wrong content type", contentType: "text/plain", body: `{"name":"curry"}`, wantStatus: 400, wantMessage: "Content-Type"},
		{name: "invalid JSON", contentType: "application/json", body: `{"name":"x",}`, wantStatus: 400, wantMessage: "invalid JSON body"},
		{name: "unknown field", contentType: "application/json", body: `{"name":"x","extra":1}`, wantStatus: 400, wantMessage: "unknown field"},
		{name: "empty", contentType: "application/json", body: ``, wantStatus: 400, wantMessage: "empty"},
		{name: "trailing data", contentType: "application/json", body: `{"name":"x"}{"name":"y"}`, wantStatus: 400, wantMessage: "single JSON object"},
		{name: "missing required", contentType: "application/json", body: `{"queries":[]}`, wantStatus: 400, wantMessage: "name is required"},
		{name: "too many items", contentType: "application/json", body: `{"name":"x","queries":["a","b","c"]}`, wantStatus: 400, wantMessage: "queries exceeds the limit of 2"},
		{name: "blank item", contentType: "application/json", body: `{"name":"x","queries":[""]}`, wantStatus: 400, wantMessage: "is required"},
		{name: "too large", contentType: "application/json", body: `{"name":"` + strings.Repeat("x", 64) + `"}`, maxBytes: 16, wantStatus: 413, wantMessage: "exceeds 16 bytes"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			r := httptest.NewRequest(http.MethodPost, "/test", bytes.NewBufferString(tt.body))
			if tt.contentType != "" {
				r.Header.Set("Content-Type", tt.contentType)
			}

			var dst decodeTarget
			err := DecodeJSONBody(w, r, &dst, tt.maxBytes, zap.NewNop())
			if tt.wantStatus == 0 {
				require.NoError(t, err)
				assert.NotEmpty(t, dst.Name)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantStatus, w.Code)
			assert.Contains(t, w.Body.String(), tt.wantMessage)
		})
	}
}

func TestResolveConfig(t *testing.T) {
	defaults := types.DefaultRetrievalConfig()

	cfg, err := ResolveConfig(defaults, nil)
	require.NoError(t, err)
	assert.Equal(t, defaults, cfg)

	cfg, err = ResolveConfig(defaults, json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Equal(t, defaults, cfg)

	cfg, err = ResolveConfig(defaults, json.RawMessage(`{"retriever":"reranker","reranker_top_n":3}`))
	require.NoError(t, err)
	assert.Equal(t, types.RetrieverReranker, cfg.Retriever)
	assert.Equal(t, 3, cfg.RerankTopN)
	assert.Equal(t, defaults.TopK, cfg.TopK, "unspecified fields keep defaults")

	_, err = ResolveConfig(defaults, json.RawMessage(`{"retriever":"magic"}`))
	assert.True(t, types.HasCode(err, types.ErrConfigInvalid))

	_, err = ResolveConfig(defaults, json.RawMessage(`{"coarse_top_k":"five"}`))
	assert.True(t, types.HasCode(err, types.ErrInvalidRequest))
}

func TestResponseWriter(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := NewResponseWriter(rec)

	rw.WriteHeader(http.StatusAccepted)
	rw.WriteHeader(http.StatusInternalServerError)
	_, err := rw.Write([]byte("ok"))
	require.NoError(t, err)
	rw.Flush()

	assert.Equal(t, http.StatusAccepted, rw.StatusCode)
	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.True(t, rec.Flushed)
	assert.Same(t, rec, rw.Unwrap())
}
