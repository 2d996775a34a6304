package errors

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:   3,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Multiplier:   2.0,
		Jitter:       false,
	}
}

func TestRetry_SucceedsAfterTransientError(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		if attempts < 3 {
			return New(ErrCodeStoreUnavailable, "connection refused", nil)
		}
		return nil
	}

	err := Retry(context.Background(), fastRetryConfig(), fn)

	assert.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestRetry_FailsAfterMaxRetries(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return New(ErrCodeEmbedService, "upstream 503", nil)
	}

	cfg := fastRetryConfig()
	err := Retry(context.Background(), cfg, fn)

	require.Error(t, err)
	// Initial attempt plus MaxRetries retries.
	assert.Equal(t, cfg.MaxRetries+1, attempts)
	assert.Contains(t, err.Error(), "failed after")
	assert.True(t, errors.Is(err, New(ErrCodeEmbedService, "", nil)))
}

func TestRetry_PermanentErrorAbortsImmediately(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return New(ErrCodeEmbedAuth, "invalid api key", nil)
	}

	err := Retry(context.Background(), fastRetryConfig(), fn)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
	assert.Equal(t, ErrCodeEmbedAuth, GetCode(err))
}

func TestRetry_PlainErrorIsPermanent(t *testing.T) {
	attempts := 0
	fn := func() error {
		attempts++
		return errors.New("not a pipeline error")
	}

	err := Retry(context.Background(), fastRetryConfig(), fn)

	require.Error(t, err)
	assert.Equal(t, 1, attempts)
}

func TestRetry_ContextCancellationStopsRetries(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	attempts := 0
	fn := func() error {
		attempts++
		cancel()
		return New(ErrCodeStoreUnavailable, "connection refused", nil)
	}

	cfg := fastRetryConfig()
	cfg.InitialDelay = time.Minute // cancellation must win, not the timer

	start := time.Now()
	err := Retry(ctx, cfg, fn)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, attempts)
	assert.Less(t, time.Since(start), time.Second)
}

func TestRetry_CancelledBeforeFirstAttempt(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	attempts := 0
	err := Retry(ctx, fastRetryConfig(), func() error {
		attempts++
		return nil
	})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, attempts)
}

func TestRetryWithResult_ReturnsValue(t *testing.T) {
	attempts := 0
	fn := func() ([]float32, error) {
		attempts++
		if attempts < 2 {
			return nil, New(ErrCodeEmbedRateLimited, "429", nil)
		}
		return []float32{0.1, 0.2}, nil
	}

	result, err := RetryWithResult(context.Background(), fastRetryConfig(), fn)

	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, result)
	assert.Equal(t, 2, attempts)
}

func TestRetryWithResult_ZeroValueOnFailure(t *testing.T) {
	fn := func() (int, error) {
		return 42, New(ErrCodeEmbedRequest, "bad input", nil)
	}

	result, err := RetryWithResult(context.Background(), fastRetryConfig(), fn)

	require.Error(t, err)
	assert.Zero(t, result)
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()

	assert.Equal(t, 3, cfg.MaxRetries)
	assert.Equal(t, time.Second, cfg.InitialDelay)
	assert.Equal(t, 16*time.Second, cfg.MaxDelay)
	assert.Equal(t, 2.0, cfg.Multiplier)
	assert.True(t, cfg.Jitter)
}
