package handlers

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/BaSui01/recipeflow/api"
	"github.com/BaSui01/recipeflow/types"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// DefaultMaxBodyBytes 未配置时的请求体上限
const DefaultMaxBodyBytes int64 = 1 << 20

// validate 校验请求结构体上的 validate 标签；validator 实例可并发复用。
// 错误信息中的字段名取自 json 标签。
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		if name == "" {
			return f.Name
		}
		return name
	})
	return v
}

// =============================================================================
// 📦 通用响应结构
// =============================================================================

// ErrorResponse 错误响应
type ErrorResponse struct {
	Success   bool           `json:"success"`
	Error     *api.ErrorInfo `json:"error"`
	Timestamp time.Time      `json:"timestamp"`
	RequestID string         `json:"request_id,omitempty"`
}

// =============================================================================
// 🎯 响应辅助函数
// =============================================================================

// WriteJSON 写入 JSON 响应
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)

	// 头已写出，编码失败无法再改状态码
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError 写入错误响应。非 types.Error 的错误按 INTERNAL_ERROR 处理，且不向客户端暴露原始信息。
func WriteError(w http.ResponseWriter, r *http.Request, err error, logger *zap.Logger) {
	te, ok := types.AsError(err)
	if !ok {
		te = types.NewError(types.ErrInternalError, "internal error").WithCause(err)
	}
	status := te.HTTPStatus
	if status == 0 {
		status = types.HTTPStatusFor(te.Code)
	}

	if logger != nil {
		level := logger.Warn
		if status >= 500 {
			level = logger.Error
		}
		level("API error",
			zap.String("code", string(te.Code)),
			zap.String("message", te.Message),
			zap.Int("status", status),
			zap.Bool("retryable", te.Retryable),
			zap.Error(te.Cause),
		)
	}

	WriteJSON(w, status, ErrorResponse{
		Success:   false,
		Error:     api.NewErrorInfo(te),
		Timestamp: time.Now(),
		RequestID: w.Header().Get("X-Request-ID"),
	})
}

// =============================================================================
// 🛡️ 请求解码与校验
// =============================================================================

// DecodeJSONBody 解码并校验 JSON 请求体。失败时已写出 400 响应，调用方直接返回即可。
func DecodeJSONBody(w http.ResponseWriter, r *http.Request, dst any, maxBytes int64, logger *zap.Logger) error {
	if ct := r.Header.Get("Content-Type"); ct != "" && !strings.HasPrefix(ct, "application/json") {
		err := types.NewError(types.ErrInvalidRequest, "Content-Type must be application/json")
		WriteError(w, r, err, logger)
		return err
	}
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBodyBytes
	}

	if err := decodeJSON(http.MaxBytesReader(w, r.Body, maxBytes), dst); err != nil {
		WriteError(w, r, err, logger)
		return err
	}
	return nil
}

// decodeJSON 严格解码（拒绝未知字段与尾随数据）并执行 validate 标签校验
func decodeJSON(body io.Reader, dst any) error {
	if body == nil {
		return types.NewError(types.ErrInvalidRequest, "request body is empty")
	}
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr):
			return types.NewError(types.ErrInvalidRequest,
				fmt.Sprintf("request body exceeds %d bytes", maxErr.Limit)).
				WithHTTPStatus(http.StatusRequestEntityTooLarge)
		case errors.Is(err, io.EOF):
			return types.NewError(types.ErrInvalidRequest, "request body is empty")
		default:
			return types.NewError(types.ErrInvalidRequest, "invalid JSON body: "+err.Error()).WithCause(err)
		}
	}
	if decoder.More() {
		return types.NewError(types.ErrInvalidRequest, "request body must contain a single JSON object")
	}
	return validateStruct(dst)
}

func validateStruct(v any) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}
	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return types.NewError(types.ErrInvalidRequest, "invalid request").WithCause(err)
	}
	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fieldMessage(fe))
	}
	return types.NewError(types.ErrInvalidRequest, strings.Join(msgs, "; ")).WithCause(err)
}

func fieldMessage(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.IndexByte(field, '.'); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "min":
		return fmt.Sprintf("%s must have at least %s item(s)", field, fe.Param())
	case "max":
		return fmt.Sprintf("%s exceeds the limit of %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s failed %q validation", field, fe.Tag())
	}
}

// ResolveConfig 把请求中的 config 覆盖到服务端默认值上并校验
func ResolveConfig(defaults types.RetrievalConfig, raw json.RawMessage) (types.RetrievalConfig, error) {
	cfg := defaults
	if trimmed := strings.TrimSpace(string(raw)); trimmed != "" && trimmed != "null" {
		if err := json.Unmarshal(raw, &cfg); err != nil {
			return cfg, types.NewError(types.ErrInvalidRequest, "invalid config: "+err.Error()).WithCause(err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// =============================================================================
// 📊 响应包装器（用于捕获状态码）
// =============================================================================

// ResponseWriter 包装 http.ResponseWriter 以捕获状态码与响应字节数
type ResponseWriter struct {
	http.ResponseWriter
	StatusCode int
	Written    bool
	Bytes      int64
}

// NewResponseWriter 创建新的 ResponseWriter
func NewResponseWriter(w http.ResponseWriter) *ResponseWriter {
	return &ResponseWriter{
		ResponseWriter: w,
		StatusCode:     http.StatusOK,
	}
}

// WriteHeader 重写 WriteHeader 以捕获状态码
func (rw *ResponseWriter) WriteHeader(code int) {
	if !rw.Written {
		rw.StatusCode = code
		rw.Written = true
		rw.ResponseWriter.WriteHeader(code)
	}
}

// Write 重写 Write 以标记已写入
func (rw *ResponseWriter) Write(b []byte) (int, error) {
	if !rw.Written {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.Bytes += int64(n)
	return n, err
}

// Flush 透传给底层 Flusher，SSE 依赖它
func (rw *ResponseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// Unwrap 供 http.ResponseController 与 websocket 握手取得底层连接
func (rw *ResponseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Hijack 透传给底层连接，WebSocket 握手依赖它
func (rw *ResponseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	return http.NewResponseController(rw.ResponseWriter).Hijack()
}
