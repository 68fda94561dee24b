// internal/common/resilience/caller_test.go
package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
)

var errThrottled = errors.New("throttled")

func isThrottled(err error) bool {
	return errors.Is(err, errThrottled)
}

// newTestCaller returns a caller with recorded sleeps and zero jitter.
func newTestCaller(t *testing.T, observer func(Attempt)) (*Caller, *[]time.Duration) {
	sleeps := &[]time.Duration{}
	c := NewCaller("test-service", isThrottled, observer, logger.NewTestLogger(t))
	c.sleep = func(ctx context.Context, d time.Duration) error {
		*sleeps = append(*sleeps, d)
		return nil
	}
	c.jitter = func() float64 { return 0 }
	return c, sleeps
}

func TestCallSucceedsFirstAttempt(t *testing.T) {
	c, sleeps := newTestCaller(t, nil)

	calls := 0
	result, err := Call(context.Background(), c, func(ctx context.Context) (string, error) {
		calls++
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *sleeps)
}

func TestCallSucceedsOnFifthAttempt(t *testing.T) {
	c, sleeps := newTestCaller(t, nil)

	calls := 0
	result, err := Call(context.Background(), c, func(ctx context.Context) (string, error) {
		calls++
		if calls < 5 {
			return "", errThrottled
		}
		return "ok", nil
	})

	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, 5, calls)

	// Four backoff sleeps: 1s, 2s, 4s, 8s with zero jitter.
	require.Len(t, *sleeps, 4)
	expected := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second}
	assert.Equal(t, expected, *sleeps)
	for i := 1; i < len(*sleeps); i++ {
		assert.GreaterOrEqual(t, (*sleeps)[i], (*sleeps)[i-1])
	}
}

func TestCallExhaustsRetryBudget(t *testing.T) {
	c, sleeps := newTestCaller(t, nil)

	calls := 0
	_, err := Call(context.Background(), c, func(ctx context.Context) (int, error) {
		calls++
		return 0, errThrottled
	})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstreamOverloaded)
	assert.Equal(t, MaxAttempts, calls)
	// No sleep after the final failed attempt.
	assert.Len(t, *sleeps, MaxAttempts-1)
}

func TestCallFatalErrorNotRetried(t *testing.T) {
	c, sleeps := newTestCaller(t, nil)

	fatal := errors.New("access denied")
	calls := 0
	_, err := Call(context.Background(), c, func(ctx context.Context) (int, error) {
		calls++
		return 0, fatal
	})

	require.Error(t, err)
	// The fatal error passes through unwrapped.
	assert.Equal(t, fatal, err)
	assert.Equal(t, 1, calls)
	assert.Empty(t, *sleeps)
}

func TestCallBackoffJitterWithinUnit(t *testing.T) {
	c, sleeps := newTestCaller(t, nil)
	c.jitter = func() float64 { return 0.5 }

	calls := 0
	_, err := Call(context.Background(), c, func(ctx context.Context) (int, error) {
		calls++
		if calls < 2 {
			return 0, errThrottled
		}
		return 42, nil
	})

	require.NoError(t, err)
	require.Len(t, *sleeps, 1)
	assert.Equal(t, 1500*time.Millisecond, (*sleeps)[0])
}

func TestCallCancelledDuringBackoff(t *testing.T) {
	c := NewCaller("test-service", isThrottled, nil, logger.NewTestLogger(t))
	c.jitter = func() float64 { return 0 }

	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	done := make(chan error, 1)
	go func() {
		_, err := Call(ctx, c, func(ctx context.Context) (int, error) {
			calls++
			return 0, errThrottled
		})
		done <- err
	}()

	// Cancel while the caller is sleeping before the second attempt.
	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("caller did not abort backoff on cancellation")
	}
}

type usageResult struct {
	usage Usage
}

func (r usageResult) Usage() (Usage, bool) { return r.usage, true }

func TestCallReportsAttemptsToObserver(t *testing.T) {
	var attempts []Attempt
	c, _ := newTestCaller(t, func(a Attempt) { attempts = append(attempts, a) })

	calls := 0
	_, err := Call(context.Background(), c, func(ctx context.Context) (usageResult, error) {
		calls++
		if calls < 3 {
			return usageResult{}, errThrottled
		}
		return usageResult{usage: Usage{InputTokens: 120, OutputTokens: 45}}, nil
	})

	require.NoError(t, err)
	require.Len(t, attempts, 3)
	assert.Equal(t, 1, attempts[0].Number)
	assert.Error(t, attempts[0].Err)
	assert.Equal(t, 3, attempts[2].Number)
	assert.NoError(t, attempts[2].Err)
	require.NotNil(t, attempts[2].Usage)
	assert.Equal(t, int32(120), attempts[2].Usage.InputTokens)
	assert.Equal(t, int32(45), attempts[2].Usage.OutputTokens)
}
