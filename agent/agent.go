package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/logging"
	"github.com/hupe1980/pipemesh/model"
	"github.com/hupe1980/pipemesh/step"
	"github.com/hupe1980/pipemesh/tool"
	"github.com/hupe1980/pipemesh/trace"
)

// DefaultMaxTurns bounds model calls per run when Options.MaxTurns is unset.
const DefaultMaxTurns = 10

// Options configures an Agent.
//
// Use functional options with New to override defaults.
type Options struct {
	// Instruction is sent as the system prompt. Optional.
	Instruction Instruction
	// Vars are template variables available to static instructions.
	Vars map[string]any

	// MaxTurns caps model calls per run. Defaults to DefaultMaxTurns.
	MaxTurns int
	// MaxParallelTools limits concurrently executing tool calls of one turn.
	// Zero means unlimited.
	MaxParallelTools int
	// Stream requests incremental output from the model.
	Stream bool

	// ModelRetry and ModelTimeout wrap every model call.
	ModelRetry   core.RetryConfig
	ModelTimeout time.Duration
	// ToolRetry and ToolTimeout wrap every tool call.
	ToolRetry   core.RetryConfig
	ToolTimeout time.Duration

	// Tracer receives span events. Defaults to NoopTracer.
	Tracer trace.Tracer
	// Logger provides structured logging. Defaults to NoOpLogger.
	Logger logging.Logger
}

// Agent drives one model through the tool-use loop. An Agent is immutable
// after construction and may serve concurrent runs; each run owns its
// conversation.
type Agent struct {
	name  string
	model model.Model
	tools *tool.Registry
	opts  Options

	modelStep *step.Step
	toolSteps map[string]*step.Step
}

// New creates an Agent. Tool names must be unique.
//
// Example:
//
//	search := tool.NewTypedTool("search", "Search the web", searchFn)
//	a, err := agent.New("researcher", m, []tool.Tool{search}, func(o *agent.Options) {
//	  o.MaxTurns = 5
//	  o.ToolTimeout = 10 * time.Second
//	})
func New(name string, m model.Model, tools []tool.Tool, optFns ...func(o *Options)) (*Agent, error) {
	opts := Options{
		MaxTurns:         DefaultMaxTurns,
		MaxParallelTools: 4,
		ModelRetry:       core.NoRetry,
		ToolRetry:        core.NoRetry,
		Tracer:           trace.NoopTracer{},
		Logger:           logging.NoOpLogger{},
	}

	for _, fn := range optFns {
		fn(&opts)
	}

	if name == "" {
		return nil, &core.ConfigError{Field: "agent.name", Message: "must not be empty"}
	}

	if m == nil {
		return nil, &core.ConfigError{Field: "agent.model", Message: "must not be nil"}
	}

	if opts.MaxTurns < 1 {
		return nil, &core.ConfigError{Field: "agent.max_turns", Message: "must be at least 1"}
	}

	if opts.MaxParallelTools < 0 {
		return nil, &core.ConfigError{Field: "agent.max_parallel_tools", Message: "must not be negative"}
	}

	if err := opts.ToolRetry.Validate(); err != nil {
		return nil, fmt.Errorf("agent %s: tool retry: %w", name, err)
	}

	if opts.ToolTimeout < 0 {
		return nil, &core.ConfigError{Field: "agent.tool_timeout", Message: "must not be negative"}
	}

	if opts.Tracer == nil {
		opts.Tracer = trace.NoopTracer{}
	}

	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	registry, err := tool.NewRegistry(tools...)
	if err != nil {
		return nil, err
	}

	a := &Agent{
		name:      name,
		model:     m,
		tools:     registry,
		opts:      opts,
		toolSteps: make(map[string]*step.Step, registry.Len()),
	}

	a.modelStep, err = step.New("model", a.callModel,
		step.WithRetry(opts.ModelRetry),
		step.WithTimeout(opts.ModelTimeout),
	)
	if err != nil {
		return nil, fmt.Errorf("agent %s: model step: %w", name, err)
	}

	for _, t := range registry.All() {
		s, err := step.New("tool."+t.Name(), callTool(t),
			step.WithRetry(opts.ToolRetry),
			step.WithTimeout(opts.ToolTimeout),
		)
		if err != nil {
			return nil, fmt.Errorf("agent %s: tool step %s: %w", name, t.Name(), err)
		}
		a.toolSteps[t.Name()] = s
	}

	return a, nil
}

// Name returns the agent name.
func (a *Agent) Name() string { return a.name }

// Model returns the underlying model.
func (a *Agent) Model() model.Model { return a.model }

// Tools returns the tool registry.
func (a *Agent) Tools() *tool.Registry { return a.tools }

// MaxTurns returns the per-run model call budget.
func (a *Agent) MaxTurns() int { return a.opts.MaxTurns }

// MaxParallelTools returns the tool concurrency limit; zero is unlimited.
func (a *Agent) MaxParallelTools() int { return a.opts.MaxParallelTools }

// modelInput is the input of the model step.
type modelInput struct {
	req       model.Request
	onPartial func(model.Response)
}

func (a *Agent) callModel(ctx context.Context, input any) (any, error) {
	in := input.(modelInput)

	start := time.Now()
	resp, err := model.Collect(ctx, a.model, in.req, in.onPartial)
	if l, ok := logging.FromContext(ctx).(logging.CallLogger); ok {
		calls := 0
		if resp != nil {
			calls = len(resp.Message.ToolCalls)
		}
		l.LogModelCall(a.model.Info().Name, calls, time.Since(start), err)
	}

	if err != nil {
		return nil, err
	}
	return resp, nil
}

// toolInput is the input of a tool step.
type toolInput struct {
	toolCtx *core.ToolContext
	args    map[string]any
}

func callTool(t tool.Tool) step.Func {
	return func(ctx context.Context, input any) (any, error) {
		in := input.(toolInput)

		start := time.Now()
		out, err := t.Call(in.toolCtx.WithContext(ctx), in.args)
		if l, ok := logging.FromContext(ctx).(logging.CallLogger); ok {
			l.LogToolCall(t.Name(), time.Since(start), err)
		}
		return out, err
	}
}
