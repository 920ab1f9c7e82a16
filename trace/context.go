package trace

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/logging"
)

// ContextOptions configures a trace Context.
type ContextOptions struct {
	// RunID overrides the generated correlation identifier.
	RunID string
	// Logger receives tracer failures. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Context carries the run identifier, the tracer sink and the stack of open
// span ids for one run. A Context is safe for use by one goroutine at a
// time; parallel branches obtain their own copy via Child.
type Context struct {
	runID  string
	tracer Tracer
	logger logging.Logger
	seq    *atomic.Uint64

	mu    sync.Mutex
	stack []string
}

// NewContext creates a root Context emitting to tracer (NoopTracer if nil).
func NewContext(tracer Tracer, optFns ...func(o *ContextOptions)) *Context {
	opts := ContextOptions{Logger: logging.NoOpLogger{}}
	for _, fn := range optFns {
		fn(&opts)
	}
	if tracer == nil {
		tracer = NoopTracer{}
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}
	if opts.RunID == "" {
		opts.RunID = NewRunID()
	}
	return &Context{
		runID:  opts.RunID,
		tracer: tracer,
		logger: opts.Logger,
		seq:    &atomic.Uint64{},
	}
}

// NewRunID returns a short random run identifier.
func NewRunID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}

// RunID returns the correlation identifier shared by every branch of the run.
func (c *Context) RunID() string { return c.runID }

// Tracer returns the shared tracer sink.
func (c *Context) Tracer() Tracer { return c.tracer }

// Logger returns the logger used for tracer failures.
func (c *Context) Logger() logging.Logger { return c.logger }

// CurrentSpan returns the innermost open span id, or "" at the root.
func (c *Context) CurrentSpan() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.stack) == 0 {
		return ""
	}
	return c.stack[len(c.stack)-1]
}

// Depth returns the number of open spans.
func (c *Context) Depth() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.stack)
}

// Child returns a copy sharing run id and tracer with its own span stack.
func (c *Context) Child() *Context {
	c.mu.Lock()
	defer c.mu.Unlock()
	return &Context{
		runID:  c.runID,
		tracer: c.tracer,
		logger: c.logger,
		seq:    c.seq,
		stack:  append([]string(nil), c.stack...),
	}
}

// StartSpan emits a span-start event parented to the current span and
// pushes the new span id.
func (c *Context) StartSpan(ctx context.Context, name string, attrs Attributes) string {
	parent := c.CurrentSpan()

	var id string
	c.guard("span_start", func() {
		id = c.tracer.OnSpanStart(ctx, name, parent, attrs)
	})
	if id == "" {
		id = c.runID + "-" + strconv.FormatUint(c.seq.Add(1), 10)
	}

	c.mu.Lock()
	c.stack = append(c.stack, id)
	c.mu.Unlock()

	return id
}

// EndSpan emits a span-end event and pops spanID.
func (c *Context) EndSpan(ctx context.Context, spanID string, attrs Attributes) {
	c.pop(spanID)
	c.guard("span_end", func() {
		c.tracer.OnSpanEnd(ctx, spanID, attrs)
	})
}

// FailSpan emits a span-error event and pops spanID.
func (c *Context) FailSpan(ctx context.Context, spanID string, err error, retrying bool) {
	c.pop(spanID)
	c.guard("span_error", func() {
		c.tracer.OnSpanError(ctx, spanID, err, retrying)
	})
}

func (c *Context) pop(spanID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.stack) - 1; i >= 0; i-- {
		if c.stack[i] == spanID {
			c.stack = append(c.stack[:i], c.stack[i+1:]...)
			return
		}
	}
}

type ctxKey struct{}

// WithContext returns ctx carrying tc, so code running inside a step can
// nest its spans under the step's current span.
func WithContext(ctx context.Context, tc *Context) context.Context {
	return context.WithValue(ctx, ctxKey{}, tc)
}

// FromContext returns the trace Context stored in ctx, or nil.
func FromContext(ctx context.Context) *Context {
	if ctx == nil {
		return nil
	}
	tc, _ := ctx.Value(ctxKey{}).(*Context)
	return tc
}

// guard shields the run from tracer panics; failures are logged as
// *core.TracerError and swallowed.
func (c *Context) guard(op string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			err := &core.TracerError{Op: op, Err: fmt.Errorf("%v", r)}
			c.logger.Warn("trace.tracer.failure", "op", op, "run_id", c.runID, "error", err.Error())
		}
	}()
	fn()
}
