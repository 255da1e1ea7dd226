package types

import (
	"errors"
	"fmt"
	"net/http"
)

// ErrorCode represents a unified error code across the service.
type ErrorCode string

// Request and configuration error codes
const (
	ErrInvalidRequest ErrorCode = "INVALID_REQUEST"
	ErrConfigInvalid  ErrorCode = "CONFIG_INVALID"
	ErrUnauthorized   ErrorCode = "UNAUTHORIZED"
	ErrRateLimited    ErrorCode = "RATE_LIMITED"
	ErrInternalError  ErrorCode = "INTERNAL_ERROR"
)

// Retrieval pipeline error codes
const (
	ErrRetrieval  ErrorCode = "RETRIEVAL_ERROR"
	ErrSelfFilter ErrorCode = "SELF_FILTER_ERROR"
	ErrRerank     ErrorCode = "RERANK_ERROR"
)

// Tool error codes. These are recovered inside a tool batch and never abort it.
const (
	ErrToolArgument         ErrorCode = "TOOL_ARGUMENT_ERROR"
	ErrUnknownTool          ErrorCode = "UNKNOWN_TOOL"
	ErrExternalFetchTimeout ErrorCode = "EXTERNAL_FETCH_TIMEOUT"
)

// Model error codes
const (
	ErrLLMCall       ErrorCode = "LLM_CALL_ERROR"
	ErrMaxToolRounds ErrorCode = "MAX_TOOL_ROUNDS"
	ErrUpstreamError ErrorCode = "UPSTREAM_ERROR"
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

// Is reports whether target is an *Error with the same code, so that
// errors.Is(err, types.NewError(types.ErrRerank, "")) matches any rerank failure.
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
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

// AsError finds the first *Error in err's chain.
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

// HasCode reports whether any *Error in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	for err != nil {
		var e *Error
		if !errors.As(err, &e) {
			return false
		}
		if e.Code == code {
			return true
		}
		err = e.Cause
	}
	return false
}

// HTTPStatusFor maps an error code to the status the API layer returns.
func HTTPStatusFor(code ErrorCode) int {
	switch code {
	case ErrInvalidRequest, ErrConfigInvalid, ErrToolArgument, ErrUnknownTool:
		return http.StatusBadRequest
	case ErrUnauthorized:
		return http.StatusUnauthorized
	case ErrRateLimited:
		return http.StatusTooManyRequests
	case ErrRetrieval, ErrSelfFilter, ErrRerank, ErrLLMCall, ErrUpstreamError:
		return http.StatusBadGateway
	case ErrExternalFetchTimeout:
		return http.StatusGatewayTimeout
	case ErrMaxToolRounds:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
