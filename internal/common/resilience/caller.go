// internal/common/resilience/caller.go
package resilience

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/36JungKwan/place-search-engine-RAG/internal/common/logger"
)

// MaxAttempts is the fixed retry ceiling for rate-limited collaborators.
const MaxAttempts = 5

var (
	ErrUpstreamOverloaded = errors.New("UPSTREAM_OVERLOADED")
)

// Usage holds token-equivalent counters reported by a collaborator.
type Usage struct {
	InputTokens  int32
	OutputTokens int32
}

// UsageReporter is implemented by operation results that carry usage counters.
type UsageReporter interface {
	Usage() (Usage, bool)
}

// Attempt describes a single attempt for the observability side channel.
// It is never part of the operation's return value.
type Attempt struct {
	Number  int
	Elapsed time.Duration
	Usage   *Usage
	Err     error
}

// Caller retries a rate-limited operation with exponential backoff.
// Failures the classifier rejects are re-raised immediately and unwrapped.
type Caller struct {
	name      string
	retryable func(error) bool
	observer  func(Attempt)
	logger    logger.Logger

	// injectable for tests
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() float64
}

// NewCaller creates a Caller for one named collaborator. retryable decides
// whether an error is a RateLimited failure worth backing off for.
func NewCaller(name string, retryable func(error) bool, observer func(Attempt), log logger.Logger) *Caller {
	return &Caller{
		name:      name,
		retryable: retryable,
		observer:  observer,
		logger:    log.WithFields(map[string]interface{}{"caller": name}),
		sleep:     sleepContext,
		jitter:    rand.Float64,
	}
}

// Call runs op until it succeeds, fails fatally, or the retry budget is spent.
// Backoff before retry i is 2^i + jitter seconds, jitter uniform in [0,1).
// The backoff sleep blocks only the calling goroutine and honors ctx.
func Call[T any](ctx context.Context, c *Caller, op func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	for i := 0; i < MaxAttempts; i++ {
		start := time.Now()
		result, err := op(ctx)
		c.observe(i+1, time.Since(start), result, err)

		if err == nil {
			return result, nil
		}

		if !c.retryable(err) {
			return zero, err
		}

		if i == MaxAttempts-1 {
			break
		}

		wait := backoff(i, c.jitter())
		c.logger.Warn("collaborator throttling, backing off", map[string]interface{}{
			"attempt":     i + 1,
			"maxAttempts": MaxAttempts,
			"wait":        wait.String(),
		})
		if serr := c.sleep(ctx, wait); serr != nil {
			return zero, serr
		}
	}

	return zero, fmt.Errorf("%w: %s gave up after %d attempts", ErrUpstreamOverloaded, c.name, MaxAttempts)
}

func (c *Caller) observe(number int, elapsed time.Duration, result interface{}, err error) {
	if c.observer == nil {
		return
	}
	attempt := Attempt{Number: number, Elapsed: elapsed, Err: err}
	if reporter, ok := result.(UsageReporter); ok && reporter != nil {
		if usage, reported := reporter.Usage(); reported {
			attempt.Usage = &usage
		}
	}
	c.observer(attempt)
}

func backoff(attempt int, jitter float64) time.Duration {
	seconds := math.Pow(2, float64(attempt)) + jitter
	return time.Duration(seconds * float64(time.Second))
}

func sleepContext(ctx context.Context, d time.Duration) error {
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
