package step

import (
	"context"
	"reflect"
	"runtime"
	"strings"
	"time"

	"github.com/hupe1980/pipemesh/core"
)

// Func is the signature of a user step function.
type Func func(ctx context.Context, input any) (any, error)

// Options configures a Step.
type Options struct {
	// Retry controls re-invocation after a failure. Zero means a single attempt.
	Retry core.RetryConfig
	// Timeout bounds each attempt. Zero disables the bound.
	Timeout time.Duration
}

// WithRetry sets the retry policy.
func WithRetry(cfg core.RetryConfig) func(o *Options) {
	return func(o *Options) { o.Retry = cfg }
}

// WithTimeout sets the per-attempt timeout.
func WithTimeout(d time.Duration) func(o *Options) {
	return func(o *Options) { o.Timeout = d }
}

// Step is an immutable named wrapper around a user function.
type Step struct {
	name    string
	fn      Func
	retry   core.RetryConfig
	timeout time.Duration
}

// New creates a Step. An empty name is derived from the function symbol.
func New(name string, fn Func, optFns ...func(o *Options)) (*Step, error) {
	if fn == nil {
		return nil, &core.ConfigError{Field: "step.fn", Message: "must not be nil"}
	}

	opts := Options{Retry: core.NoRetry}
	for _, optFn := range optFns {
		optFn(&opts)
	}

	if err := opts.Retry.Validate(); err != nil {
		return nil, err
	}

	if opts.Timeout < 0 {
		return nil, &core.ConfigError{Field: "step.timeout", Message: "must not be negative"}
	}

	if name == "" {
		name = funcName(fn)
	}

	return &Step{
		name:    name,
		fn:      fn,
		retry:   opts.Retry,
		timeout: opts.Timeout,
	}, nil
}

// MustNew is like New but panics on invalid configuration.
func MustNew(name string, fn Func, optFns ...func(o *Options)) *Step {
	s, err := New(name, fn, optFns...)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the step name used for spans and error context.
func (s *Step) Name() string { return s.name }

// Retry returns the retry policy.
func (s *Step) Retry() core.RetryConfig { return s.retry }

// Timeout returns the per-attempt timeout, zero if unbounded.
func (s *Step) Timeout() time.Duration { return s.timeout }

// Call invokes the wrapped function directly, without retry, timeout or
// tracing.
func (s *Step) Call(ctx context.Context, input any) (any, error) {
	return s.fn(ctx, input)
}

// With returns a copy of the step with additional options applied.
func (s *Step) With(optFns ...func(o *Options)) (*Step, error) {
	base := []func(o *Options){WithRetry(s.retry), WithTimeout(s.timeout)}
	return New(s.name, s.fn, append(base, optFns...)...)
}

func funcName(fn any) string {
	f := runtime.FuncForPC(reflect.ValueOf(fn).Pointer())
	if f == nil {
		return "step"
	}
	name := f.Name()
	if i := strings.LastIndex(name, "/"); i >= 0 {
		name = name[i+1:]
	}
	if i := strings.Index(name, "."); i >= 0 {
		name = name[i+1:]
	}
	return name
}
