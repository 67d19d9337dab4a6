package engine

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(maxRetries int) RetryPolicy {
	return RetryPolicy{MaxRetries: maxRetries, InitialDelay: time.Millisecond, MaxDelay: 5 * time.Millisecond, Multiplier: 2}
}

func TestRetryWithPolicy(t *testing.T) {
	transient := WrapProviderError(errors.New("unavailable"), "execute", 503, "")
	fatal := WrapProviderError(errors.New("unauthorized"), "execute", 401, "")

	t.Run("succeeds after transient failures", func(t *testing.T) {
		calls := 0
		var retried []int
		got, err := RetryWithPolicy(context.Background(), fastPolicy(2), func(context.Context) (string, error) {
			calls++
			if calls < 3 {
				return "", transient
			}
			return "ok", nil
		}, ClassifyProviderError, func(attempt int, _ time.Duration, _ error) {
			retried = append(retried, attempt)
		})
		require.NoError(t, err)
		assert.Equal(t, "ok", got)
		assert.Equal(t, []int{1, 2}, retried)
	})

	t.Run("non-retryable returns immediately", func(t *testing.T) {
		calls := 0
		_, err := RetryWithPolicy(context.Background(), fastPolicy(2), func(context.Context) (int, error) {
			calls++
			return 0, fatal
		}, ClassifyProviderError, nil)
		assert.ErrorIs(t, err, fatal)
		assert.Equal(t, 1, calls)
	})

	t.Run("exhaustion keeps the cause", func(t *testing.T) {
		calls := 0
		_, err := RetryWithPolicy(context.Background(), fastPolicy(1), func(context.Context) (int, error) {
			calls++
			return 0, transient
		}, ClassifyProviderError, nil)
		var exhausted *RetryExhaustedError
		require.ErrorAs(t, err, &exhausted)
		assert.Equal(t, 2, exhausted.Attempts)
		assert.Equal(t, 503, HTTPStatusOf(err))
		assert.Equal(t, 2, calls)
	})

	t.Run("cancelled while waiting", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		policy := RetryPolicy{MaxRetries: 3, InitialDelay: time.Hour, Multiplier: 1}
		_, err := RetryWithPolicy(ctx, policy, func(context.Context) (int, error) {
			cancel()
			return 0, transient
		}, ClassifyProviderError, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestCalculateDelay_RespectsRetryAfter(t *testing.T) {
	policy := RetryPolicy{InitialDelay: time.Second, MaxDelay: 10 * time.Second, Multiplier: 2}
	err := WrapProviderError(errors.New("slow"), "create", 429, "60")
	assert.Equal(t, 10*time.Second, calculateDelay(policy, 0, err))
	assert.Equal(t, 4*time.Second, calculateDelay(policy, 2, errors.New("x")))
}
