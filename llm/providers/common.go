package providers

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/BaSui01/recipeflow/types"
)

// MapHTTPError 将 HTTP 状态码映射为带有合适重试标记的 types.Error
func MapHTTPError(status int, msg string, provider string) *types.Error {
	var err *types.Error
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		err = types.NewError(types.ErrUnauthorized, msg)
	case http.StatusTooManyRequests:
		err = types.NewError(types.ErrRateLimited, msg).WithRetryable(true)
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		err = types.NewError(types.ErrInvalidRequest, msg)
	case 529: // 模型过载
		err = types.NewError(types.ErrUpstreamError, msg).WithRetryable(true)
	default:
		err = types.NewError(types.ErrUpstreamError, msg).WithRetryable(status >= 500)
	}
	return err.WithHTTPStatus(status).WithProvider(provider)
}

// TransportError wraps a failure to reach the upstream at all.
func TransportError(err error, provider string) *types.Error {
	return types.NewError(types.ErrUpstreamError, err.Error()).
		WithCause(err).
		WithHTTPStatus(http.StatusBadGateway).
		WithRetryable(true).
		WithProvider(provider)
}

// ReadErrorMessage 读取响应体中的错误消息
// 尝试解析 JSON 错误响应，失败则回退到原始文本
func ReadErrorMessage(body io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(body, 64*1024))
	if err != nil {
		return "failed to read error response"
	}

	var errResp struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
		} `json:"error"`
	}
	if err := json.Unmarshal(data, &errResp); err == nil && errResp.Error.Message != "" {
		if errResp.Error.Type != "" {
			return fmt.Sprintf("%s (type: %s)", errResp.Error.Message, errResp.Error.Type)
		}
		return errResp.Error.Message
	}

	return strings.TrimSpace(string(data))
}

// ChooseModel 按优先级选择模型（请求 > 默认 > 兜底）
func ChooseModel(reqModel, defaultModel, fallback string) string {
	if reqModel != "" {
		return reqModel
	}
	if defaultModel != "" {
		return defaultModel
	}
	return fallback
}
