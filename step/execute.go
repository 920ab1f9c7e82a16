package step

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/logging"
	"github.com/hupe1980/pipemesh/trace"
)

// Execute runs the step under its retry, timeout and tracing policy.
//
// Each attempt is traced as its own span parented to the current span of tc.
// Retryable failures stay inside Execute until attempts run out; a
// retryable terminal failure is returned wrapped in a
// *core.RetriesExhaustedError, even when only one attempt was allowed.
func (s *Step) Execute(ctx context.Context, input any, tc *trace.Context) (any, error) {
	if tc == nil {
		tc = trace.NewContext(nil)
	}

	maxAttempts := s.retry.Attempts()

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		spanID := tc.StartSpan(ctx, s.name, trace.Attributes{
			"attempt":      attempt,
			"max_attempts": maxAttempts,
		})

		if err := ctx.Err(); err != nil {
			tc.FailSpan(ctx, spanID, err, false)
			return nil, &core.StepError{Step: s.name, Attempt: attempt, Err: err}
		}

		start := time.Now()
		out, err := s.invoke(trace.WithContext(ctx, tc.Child()), input, attempt)
		if l, ok := logging.FromContext(ctx).(logging.CallLogger); ok {
			l.LogStep(s.name, attempt, time.Since(start), err)
		}

		if err == nil {
			tc.EndSpan(ctx, spanID, trace.Attributes{
				"attempt":     attempt,
				"duration_ms": time.Since(start).Milliseconds(),
				"output_type": typeName(out),
			})
			return out, nil
		}

		lastErr = err
		retrying := attempt < maxAttempts && ctx.Err() == nil && s.retry.ShouldRetry(err)
		tc.FailSpan(ctx, spanID, err, retrying)

		if !retrying {
			if attempt == maxAttempts && ctx.Err() == nil && s.retry.ShouldRetry(err) {
				return nil, &core.RetriesExhaustedError{Step: s.name, Attempts: attempt, Err: err}
			}
			return nil, err
		}

		if err := sleep(ctx, s.retry.Delay(attempt+1)); err != nil {
			return nil, fmt.Errorf("step %q cancelled during backoff after attempt %d (last error: %v): %w", s.name, attempt, lastErr, err)
		}
	}

	return nil, lastErr
}

// invoke performs one attempt. The attempt context is cancelled when the
// timeout elapses so the user function observes it at its own suspension
// points; invoke returns once the function did, leaving no work behind.
func (s *Step) invoke(ctx context.Context, input any, attempt int) (any, error) {
	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if s.timeout > 0 {
		callCtx, cancel = context.WithTimeoutCause(ctx, s.timeout, core.ErrTimeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()

	out, err := s.call(callCtx, input)
	if err == nil {
		return out, nil
	}

	if s.timedOut(ctx, callCtx) {
		return nil, &core.TimeoutError{Step: s.name, Timeout: s.timeout, Attempt: attempt}
	}

	return nil, &core.StepError{Step: s.name, Attempt: attempt, Err: err}
}

// call runs the user function, converting a panic into *core.PanicError.
func (s *Step) call(ctx context.Context, input any) (out any, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &core.PanicError{Value: r, Stack: debug.Stack()}
		}
	}()

	return s.fn(ctx, input)
}

func (s *Step) timedOut(parent, callCtx context.Context) bool {
	return s.timeout > 0 && parent.Err() == nil && errors.Is(context.Cause(callCtx), core.ErrTimeout)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
