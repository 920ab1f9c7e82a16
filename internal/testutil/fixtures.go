package testutil

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrFlaky is returned by FailNTimes for the failing attempts.
var ErrFlaky = errors.New("flaky failure")

// Counter counts invocations and remembers when each one started.
type Counter struct {
	mu    sync.Mutex
	calls []time.Time
}

// Record registers one invocation and returns its 1-based number.
func (c *Counter) Record() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, time.Now())
	return len(c.calls)
}

// Calls returns the number of invocations.
func (c *Counter) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.calls)
}

// Gaps returns the durations between consecutive invocations.
func (c *Counter) Gaps() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	gaps := make([]time.Duration, 0, len(c.calls))
	for i := 1; i < len(c.calls); i++ {
		gaps = append(gaps, c.calls[i].Sub(c.calls[i-1]))
	}
	return gaps
}

// FailNTimes returns a step function failing with ErrFlaky on the first n
// calls and returning output afterwards.
func FailNTimes(n int, output any, c *Counter) func(ctx context.Context, input any) (any, error) {
	return func(_ context.Context, _ any) (any, error) {
		if c.Record() <= n {
			return nil, ErrFlaky
		}
		return output, nil
	}
}

// Blocking returns a step function that blocks until its context is done and
// reports whether it observed the cancellation.
func Blocking(observed chan<- error) func(ctx context.Context, input any) (any, error) {
	return func(ctx context.Context, _ any) (any, error) {
		<-ctx.Done()
		if observed != nil {
			observed <- context.Cause(ctx)
		}
		return nil, ctx.Err()
	}
}

// Sleeping returns a step function that waits d, honoring cancellation, and
// then returns output.
func Sleeping(d time.Duration, output any) func(ctx context.Context, input any) (any, error) {
	return func(ctx context.Context, _ any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
			return output, nil
		}
	}
}

// Failing returns a step function that fails with err after d.
func Failing(d time.Duration, err error) func(ctx context.Context, input any) (any, error) {
	return func(ctx context.Context, _ any) (any, error) {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(d):
			return nil, err
		}
	}
}
