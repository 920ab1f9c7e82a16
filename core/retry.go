package core

import (
	"errors"
	"math"
	"math/rand/v2"
	"time"
)

// RetryConfig controls how the execution wrapper retries a failed step.
// MaxAttempts includes the first attempt:
//
//	MaxAttempts = 1 => no retries (just the initial call)
//	MaxAttempts = 3 => initial call + up to 2 retries
//
// The delay before attempt n (n >= 2) is BaseDelay * Multiplier^(n-2),
// capped at MaxDelay when MaxDelay > 0, so the first retry waits exactly
// BaseDelay. The zero value behaves like NoRetry.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	// Multiplier defaults to 2.0 when <= 0.
	Multiplier float64
	MaxDelay   time.Duration
	// Jitter scales each delay by a random factor in [0.5, 1.0).
	Jitter bool
	// RetryOn classifies errors. Nil retries every error.
	RetryOn func(error) bool
}

// Predefined retry policies.
var (
	NoRetry = RetryConfig{MaxAttempts: 1}
	Retry3x = RetryConfig{MaxAttempts: 3, BaseDelay: time.Second, Multiplier: 2, MaxDelay: time.Minute}
	Retry5x = RetryConfig{MaxAttempts: 5, BaseDelay: 500 * time.Millisecond, Multiplier: 2, MaxDelay: time.Minute}
)

// Validate checks the invariants of the configuration.
func (c RetryConfig) Validate() error {
	switch {
	case c.MaxAttempts < 0:
		return &ConfigError{Field: "retry.max_attempts", Message: "must not be negative"}
	case c.BaseDelay < 0:
		return &ConfigError{Field: "retry.base_delay", Message: "must not be negative"}
	case c.MaxDelay < 0:
		return &ConfigError{Field: "retry.max_delay", Message: "must not be negative"}
	case c.Multiplier < 0:
		return &ConfigError{Field: "retry.multiplier", Message: "must not be negative"}
	}
	return nil
}

// Attempts returns the effective number of allowed attempts (at least 1).
func (c RetryConfig) Attempts() int {
	if c.MaxAttempts < 1 {
		return 1
	}
	return c.MaxAttempts
}

// ShouldRetry reports whether err is retryable under this policy.
// Composition type errors are deterministic and never retried.
func (c RetryConfig) ShouldRetry(err error) bool {
	if err == nil || errors.Is(err, ErrCompositionType) {
		return false
	}
	if c.RetryOn == nil {
		return true
	}
	return c.RetryOn(err)
}

// Delay returns the wait before the given attempt number (1-based).
// Attempt 1 never waits.
func (c RetryConfig) Delay(attempt int) time.Duration {
	if attempt < 2 || c.BaseDelay <= 0 {
		return 0
	}
	mult := c.Multiplier
	if mult <= 0 {
		mult = 2.0
	}
	d := float64(c.BaseDelay) * math.Pow(mult, float64(attempt-2))
	if c.MaxDelay > 0 && d > float64(c.MaxDelay) {
		d = float64(c.MaxDelay)
	}
	if c.Jitter {
		d *= 0.5 + rand.Float64()*0.5
	}
	// float64(math.MaxInt64) rounds up to 2^63, which does not fit a Duration.
	if d >= float64(math.MaxInt64) {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(d)
}

// RetryOnErrors returns a classifier retrying only errors matching one of
// the targets via errors.Is.
func RetryOnErrors(targets ...error) func(error) bool {
	return func(err error) bool {
		for _, t := range targets {
			if errors.Is(err, t) {
				return true
			}
		}
		return false
	}
}
