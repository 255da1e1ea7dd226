package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/recipeflow/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func fastPolicy(maxRetries int) *RetryPolicy {
	return &RetryPolicy{
		MaxRetries:   maxRetries,
		InitialDelay: 5 * time.Millisecond,
		MaxDelay:     20 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestBackoffRetryer_Success(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_RetryAndSuccess(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	err := retryer.Do(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return errors.New("temporary error")
		}
		return nil
	})

	assert.NoError(t, err)
	assert.Equal(t, 3, callCount)
}

func TestBackoffRetryer_MaxRetriesExceeded(t *testing.T) {
	retryer := NewBackoffRetryer(fastPolicy(2), zap.NewNop())

	callCount := 0
	testErr := types.NewError(types.ErrUpstreamError, "down").WithRetryable(true)
	err := retryer.Do(context.Background(), func() error {
		callCount++
		return testErr
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "still failing after 2 retries")
	assert.Equal(t, types.ErrUpstreamError, types.GetErrorCode(err))
	assert.Equal(t, 3, callCount)
}

func TestBackoffRetryer_ContextCanceled(t *testing.T) {
	policy := fastPolicy(5)
	policy.InitialDelay = 100 * time.Millisecond
	policy.MaxDelay = time.Second
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	callCount := 0
	err := retryer.Do(ctx, func() error {
		callCount++
		return errors.New("error")
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, callCount)
}

func TestBackoffRetryer_DefaultPolicyOnlyRetriesRetryable(t *testing.T) {
	policy := DefaultRetryPolicy()
	policy.InitialDelay = time.Millisecond
	policy.Jitter = false
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	t.Run("retryable error", func(t *testing.T) {
		callCount := 0
		err := retryer.Do(context.Background(), func() error {
			callCount++
			if callCount < 3 {
				return types.NewError(types.ErrRateLimited, "slow down").WithRetryable(true)
			}
			return nil
		})
		assert.NoError(t, err)
		assert.Equal(t, 3, callCount)
	})

	t.Run("non-retryable error", func(t *testing.T) {
		callCount := 0
		badKey := types.NewError(types.ErrUnauthorized, "bad key")
		err := retryer.Do(context.Background(), func() error {
			callCount++
			return badKey
		})
		assert.Same(t, badKey, err)
		assert.Equal(t, 1, callCount)
	})

	t.Run("plain error", func(t *testing.T) {
		callCount := 0
		err := retryer.Do(context.Background(), func() error {
			callCount++
			return errors.New("decode failed")
		})
		assert.Error(t, err)
		assert.Equal(t, 1, callCount)
	})
}

func TestBackoffRetryer_DelayCalculation(t *testing.T) {
	retryer := NewBackoffRetryer(&RetryPolicy{
		MaxRetries:   5,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
	}, zap.NewNop()).(*backoffRetryer)

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{4, 800 * time.Millisecond},
		{5, time.Second}, // capped
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, retryer.calculateDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestBackoffRetryer_JitterStaysInBounds(t *testing.T) {
	retryer := NewBackoffRetryer(&RetryPolicy{
		MaxRetries:   3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     time.Second,
		Multiplier:   2.0,
		Jitter:       true,
	}, zap.NewNop()).(*backoffRetryer)

	for i := 0; i < 50; i++ {
		d := retryer.calculateDelay(2)
		assert.GreaterOrEqual(t, d, 150*time.Millisecond)
		assert.LessOrEqual(t, d, 250*time.Millisecond)
	}
}

func TestBackoffRetryer_OnRetryCallback(t *testing.T) {
	var attempts []int
	var lastErr error

	policy := fastPolicy(2)
	policy.OnRetry = func(attempt int, err error, delay time.Duration) {
		attempts = append(attempts, attempt)
		lastErr = err
		assert.Greater(t, delay, time.Duration(0))
	}
	retryer := NewBackoffRetryer(policy, zap.NewNop())

	testErr := errors.New("test error")
	callCount := 0
	_ = retryer.Do(context.Background(), func() error {
		callCount++
		if callCount < 3 {
			return testErr
		}
		return nil
	})

	assert.Equal(t, []int{1, 2}, attempts)
	assert.Equal(t, testErr, lastErr)
}

func TestNewBackoffRetryer_DoesNotMutatePolicy(t *testing.T) {
	policy := &RetryPolicy{MaxRetries: -1}
	_ = NewBackoffRetryer(policy, nil)
	assert.Equal(t, -1, policy.MaxRetries)
	assert.Zero(t, policy.InitialDelay)
}

// ---------------------------------------------------------------------------
// DoWithResultTyped
// ---------------------------------------------------------------------------

func TestDoWithResultTyped_Success(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	val, err := DoWithResultTyped[int](r, context.Background(), func() (int, error) {
		return 42, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, 42, val)
}

func TestDoWithResultTyped_Error(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(0), zap.NewNop())

	val, err := DoWithResultTyped[int](r, context.Background(), func() (int, error) {
		return 7, errors.New("fail")
	})
	assert.Error(t, err)
	assert.Equal(t, 0, val)
}

func TestDoWithResultTyped_RetryThenSuccess(t *testing.T) {
	r := NewBackoffRetryer(fastPolicy(3), zap.NewNop())

	callCount := 0
	val, err := DoWithResultTyped[[]float64](r, context.Background(), func() ([]float64, error) {
		callCount++
		if callCount < 3 {
			return nil, errors.New("not yet")
		}
		return []float64{0.5}, nil
	})
	assert.NoError(t, err)
	assert.Equal(t, []float64{0.5}, val)
	assert.Equal(t, 3, callCount)
}
