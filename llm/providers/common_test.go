package providers

import (
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/BaSui01/recipeflow/types"
	"github.com/stretchr/testify/assert"
)

func TestMapHTTPError(t *testing.T) {
	tests := []struct {
		status    int
		code      types.ErrorCode
		retryable bool
	}{
		{http.StatusUnauthorized, types.ErrUnauthorized, false},
		{http.StatusForbidden, types.ErrUnauthorized, false},
		{http.StatusTooManyRequests, types.ErrRateLimited, true},
		{http.StatusBadRequest, types.ErrInvalidRequest, false},
		{http.StatusInternalServerError, types.ErrUpstreamError, true},
		{http.StatusBadGateway, types.ErrUpstreamError, true},
		{529, types.ErrUpstreamError, true},
		{http.StatusConflict, types.ErrUpstreamError, false},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			err := MapHTTPError(tt.status, "boom", "anthropic")
			assert.Equal(t, tt.code, err.Code)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.status, err.HTTPStatus)
			assert.Equal(t, "anthropic", err.Provider)
			assert.Equal(t, "boom", err.Message)
		})
	}
}

func TestTransportError(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")
	err := TransportError(cause, "openai")
	assert.True(t, types.IsRetryable(err))
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusBadGateway, err.HTTPStatus)
}

func TestReadErrorMessage(t *testing.T) {
	assert.Equal(t, "overloaded (type: overloaded_error)",
		ReadErrorMessage(strings.NewReader(`{"type":"error","error":{"type":"overloaded_error","message":"overloaded"}}`)))
	assert.Equal(t, "bad key", ReadErrorMessage(strings.NewReader(`{"error":{"message":"bad key"}}`)))
	assert.Equal(t, "plain text", ReadErrorMessage(strings.NewReader(" plain text\n")))
}

func TestChooseModel(t *testing.T) {
	assert.Equal(t, "req", ChooseModel("req", "def", "fb"))
	assert.Equal(t, "def", ChooseModel("", "def", "fb"))
	assert.Equal(t, "fb", ChooseModel("", "", "fb"))
}
