package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/logging"
	"github.com/hupe1980/pipemesh/step"
	"github.com/hupe1980/pipemesh/trace"
	"golang.org/x/sync/errgroup"
)

var errSiblingFailed = errors.New("parallel sibling failed")

// Options configures a Runner using the functional options pattern.
//
// Example:
//
//	r := New(func(o *Options) {
//	    o.Config.MaxParallel = 4
//	    o.Logger = logger
//	})
type Options struct {
	// Config contains operational parameters. Defaults to DefaultConfig.
	Config Config

	// Tracer receives span events of every run. Defaults to NoopTracer.
	// It must accept concurrent event submission.
	Tracer trace.Tracer

	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger

	// Callbacks hooks into run and step lifecycle points. Optional.
	Callbacks *CallbackManager
}

// Runner executes step graphs.
type Runner struct {
	config    Config
	tracer    trace.Tracer
	logger    logging.Logger
	callbacks *CallbackManager
}

// New creates a Runner.
func New(optFns ...func(o *Options)) *Runner {
	opts := Options{
		Config: DefaultConfig,
		Tracer: trace.NoopTracer{},
		Logger: logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Tracer == nil {
		opts.Tracer = trace.NoopTracer{}
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Callbacks == nil {
		opts.Callbacks = NewCallbackManager()
	}

	return &Runner{
		config:    opts.Config,
		tracer:    opts.Tracer,
		logger:    opts.Logger,
		callbacks: opts.Callbacks,
	}
}

// Config returns the runner configuration.
func (r *Runner) Config() Config { return r.config }

// Tracer returns the tracer sink shared by all runs.
func (r *Runner) Tracer() trace.Tracer { return r.tracer }

// NewTraceContext creates a trace context bound to the runner's tracer and
// logger.
func (r *Runner) NewTraceContext(optFns ...func(o *trace.ContextOptions)) *trace.Context {
	base := func(o *trace.ContextOptions) { o.Logger = r.logger }
	return trace.NewContext(r.tracer, append([]func(o *trace.ContextOptions){base}, optFns...)...)
}

// Run executes node with input under a fresh trace context.
func (r *Runner) Run(ctx context.Context, node step.Node, input any) (any, error) {
	return r.RunWithTrace(ctx, node, input, r.NewTraceContext())
}

// RunWithTrace executes node with input, emitting spans through tc.
//
// A sequence yields the output of its last node, a parallel node yields a
// []any aligned with its branches. Leaf failures are returned as
// *core.PipelineError carrying the node path.
func (r *Runner) RunWithTrace(ctx context.Context, node step.Node, input any, tc *trace.Context) (any, error) {
	if node == nil {
		return nil, &core.ConfigError{Field: "pipeline.node", Message: "must not be nil"}
	}

	if tc == nil {
		tc = r.NewTraceContext()
	}

	ctx = logging.WithLogger(ctx, r.logger)

	start := time.Now()
	r.logger.Info("pipeline.run.start", "run_id", tc.RunID(), "root", node.Name())

	cbCtx := &CallbackContext{RunID: tc.RunID(), Node: node, Path: node.Name(), Input: input, CallbackType: CallbackBeforeRun}
	if err := r.callbacks.ExecuteCallbacks(ctx, CallbackBeforeRun, cbCtx); err != nil {
		return nil, fmt.Errorf("before run callback failed: %w", err)
	}

	out, err := r.runNode(ctx, node, input, tc, node.Name())

	dur := time.Since(start)
	if err != nil {
		r.logger.Error("pipeline.run.failed", "run_id", tc.RunID(), "root", node.Name(), "duration_ms", dur.Milliseconds(), "error", err.Error())

		errCtx := &CallbackContext{RunID: tc.RunID(), Node: node, Path: node.Name(), Input: input, Err: err, CallbackType: CallbackOnError}
		if cbErr := r.callbacks.ExecuteCallbacks(ctx, CallbackOnError, errCtx); cbErr != nil {
			r.logger.Warn("pipeline.callback.failed", "run_id", tc.RunID(), "type", string(CallbackOnError), "error", cbErr.Error())
		}

		return nil, err
	}

	r.logger.Info("pipeline.run.done", "run_id", tc.RunID(), "root", node.Name(), "duration_ms", dur.Milliseconds())

	afterCtx := &CallbackContext{RunID: tc.RunID(), Node: node, Path: node.Name(), Input: input, Output: out, CallbackType: CallbackAfterRun}
	if err := r.callbacks.ExecuteCallbacks(ctx, CallbackAfterRun, afterCtx); err != nil {
		return nil, fmt.Errorf("after run callback failed: %w", err)
	}

	return out, nil
}

func (r *Runner) runNode(ctx context.Context, node step.Node, input any, tc *trace.Context, path string) (any, error) {
	switch n := node.(type) {
	case *step.Step:
		return r.runStep(ctx, n, input, tc, path)
	case *step.Sequence:
		return r.runSequence(ctx, n, input, tc, path)
	case *step.Parallel:
		return r.runParallel(ctx, n, input, tc, path)
	default:
		return nil, fmt.Errorf("unsupported node type %T", node)
	}
}

func (r *Runner) runStep(ctx context.Context, s *step.Step, input any, tc *trace.Context, path string) (any, error) {
	cbCtx := &CallbackContext{RunID: tc.RunID(), Node: s, Path: path, Input: input, CallbackType: CallbackBeforeStep}
	if err := r.callbacks.ExecuteCallbacks(ctx, CallbackBeforeStep, cbCtx); err != nil {
		return nil, &core.PipelineError{Path: path, Step: s.Name(), Err: err}
	}

	if s.Timeout() == 0 && r.config.DefaultTimeout > 0 {
		withDefault, err := s.With(step.WithTimeout(r.config.DefaultTimeout))
		if err != nil {
			return nil, &core.PipelineError{Path: path, Step: s.Name(), Err: err}
		}
		s = withDefault
	}

	start := time.Now()
	out, err := s.Execute(ctx, input, tc)
	if err != nil {
		r.logger.Debug("pipeline.step.failed", "run_id", tc.RunID(), "path", path, "duration_ms", time.Since(start).Milliseconds(), "error", err.Error())
		return nil, &core.PipelineError{Path: path, Step: s.Name(), Err: err}
	}

	r.logger.Debug("pipeline.step.done", "run_id", tc.RunID(), "path", path, "duration_ms", time.Since(start).Milliseconds())

	cbCtx = &CallbackContext{RunID: tc.RunID(), Node: s, Path: path, Input: input, Output: out, CallbackType: CallbackAfterStep}
	if err := r.callbacks.ExecuteCallbacks(ctx, CallbackAfterStep, cbCtx); err != nil {
		return nil, &core.PipelineError{Path: path, Step: s.Name(), Err: err}
	}

	return out, nil
}

func (r *Runner) runSequence(ctx context.Context, seq *step.Sequence, input any, tc *trace.Context, path string) (any, error) {
	nodes := seq.Nodes()

	spanID := r.openGroup(ctx, tc, seq.Name(), "sequence", len(nodes))

	current := input
	for _, n := range nodes {
		out, err := r.runNode(ctx, n, current, tc, path+"/"+n.Name())
		if err != nil {
			r.failGroup(ctx, tc, spanID, err)
			return nil, err
		}
		current = out
	}

	r.closeGroup(ctx, tc, spanID)

	return current, nil
}

func (r *Runner) runParallel(ctx context.Context, par *step.Parallel, input any, tc *trace.Context, path string) (any, error) {
	nodes := par.Nodes()

	spanID := r.openGroup(ctx, tc, par.Name(), "parallel", len(nodes))

	outputs := make([]any, len(nodes))
	errs := make([]error, len(nodes))

	branchCtx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)

	var g errgroup.Group
	if r.config.MaxParallel > 0 {
		g.SetLimit(r.config.MaxParallel)
	}

	for i, n := range nodes {
		child := tc.Child()

		g.Go(func() error {
			out, err := r.runNode(branchCtx, n, input, child, fmt.Sprintf("%s[%d]/%s", path, i, n.Name()))
			if err != nil {
				errs[i] = err
				if r.config.CancelOnError {
					cancel(errSiblingFailed)
				}
				return nil
			}
			outputs[i] = out
			return nil
		})
	}

	// Branches report through errs; Wait only joins them.
	_ = g.Wait()

	if err := r.selectError(ctx, errs); err != nil {
		r.failGroup(ctx, tc, spanID, err)
		return nil, err
	}

	r.closeGroup(ctx, tc, spanID)

	return outputs, nil
}

// selectError picks the error a failed parallel node reports. Errors caused
// by sibling cancellation only count when no branch failed on its own.
func (r *Runner) selectError(parent context.Context, errs []error) error {
	var primary, induced []error

	for _, err := range errs {
		if err == nil {
			continue
		}

		if parent.Err() == nil && errors.Is(err, context.Canceled) {
			induced = append(induced, err)
			continue
		}

		primary = append(primary, err)
	}

	if len(primary) == 0 {
		primary = induced
	}

	switch {
	case len(primary) == 0:
		return nil
	case len(primary) > 1 && r.config.Aggregation == AggregateAll:
		return errors.Join(primary...)
	default:
		return primary[0]
	}
}

func (r *Runner) openGroup(ctx context.Context, tc *trace.Context, name, kind string, size int) string {
	if !r.config.GroupSpans {
		return ""
	}
	return tc.StartSpan(ctx, name, trace.Attributes{"kind": kind, "size": size})
}

func (r *Runner) closeGroup(ctx context.Context, tc *trace.Context, spanID string) {
	if spanID != "" {
		tc.EndSpan(ctx, spanID, nil)
	}
}

func (r *Runner) failGroup(ctx context.Context, tc *trace.Context, spanID string, err error) {
	if spanID != "" {
		tc.FailSpan(ctx, spanID, err, false)
	}
}
