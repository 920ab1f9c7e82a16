// Package pipemesh provides a high-level façade over the pipeline runner and
// the agent loop. Most applications interact with this package by:
//  1. Creating a Mesh via New() or FromConfig()
//  2. Composing steps with step.Then / step.Par and running them (Run)
//  3. Building tool-using agents on the shared model, tracer and logger (NewAgent)
//
// The façade delegates orchestration to engine.Runner and agent.Agent while
// keeping setup concise. All defaults are safe for local development and
// testing: no tracing, no logging and no model.
package pipemesh

import (
	"context"

	"github.com/hupe1980/pipemesh/agent"
	"github.com/hupe1980/pipemesh/config"
	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/engine"
	"github.com/hupe1980/pipemesh/logging"
	"github.com/hupe1980/pipemesh/model"
	"github.com/hupe1980/pipemesh/model/provider"
	"github.com/hupe1980/pipemesh/step"
	"github.com/hupe1980/pipemesh/tool"
	"github.com/hupe1980/pipemesh/trace"
)

// Options configures the Mesh instance.
type Options struct {
	// EngineConfig tunes the pipeline runner (aggregation, parallelism).
	EngineConfig engine.Config

	// Tracer receives span events of pipelines and agents. Must accept
	// concurrent event submission. Defaults to NoopTracer.
	Tracer trace.Tracer

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger

	// Callbacks hooks into pipeline lifecycle points. Optional.
	Callbacks *engine.CallbackManager

	// Model is the default model of agents created with NewAgent. Optional.
	Model model.Model

	// AgentMaxTurns and AgentMaxParallelTools are agent defaults; zero keeps
	// the agent package defaults.
	AgentMaxTurns         int
	AgentMaxParallelTools int

	// AgentOptions are applied to every agent after the defaults above.
	AgentOptions []func(o *agent.Options)
}

// Mesh is the high-level façade aggregating runner, tracer, logger and model.
type Mesh struct {
	opts   Options
	runner *engine.Runner
}

// New creates a new Mesh instance with optional overrides.
func New(optFns ...func(o *Options)) *Mesh {
	opts := Options{
		EngineConfig: engine.DefaultConfig,
		Tracer:       trace.NoopTracer{},
		Logger:       logging.NoOpLogger{},
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

	r := engine.New(func(o *engine.Options) {
		o.Config = opts.EngineConfig
		o.Tracer = opts.Tracer
		o.Logger = opts.Logger
		o.Callbacks = opts.Callbacks
	})

	return &Mesh{opts: opts, runner: r}
}

// FromConfig builds a Mesh from loaded configuration: structured logger,
// runner settings, agent defaults and the configured model provider.
// Further overrides are applied after the configuration.
func FromConfig(cfg *config.Config, optFns ...func(o *Options)) (*Mesh, error) {
	m, err := provider.New(cfg.Model)
	if err != nil {
		return nil, err
	}

	logger := cfg.Log.Logger().WithComponent("pipemesh")

	base := func(o *Options) {
		o.EngineConfig = cfg.Engine.Runner()
		o.Logger = logger
		o.Model = m
		o.AgentMaxTurns = cfg.Agent.MaxTurns
		o.AgentOptions = append(o.AgentOptions, func(ao *agent.Options) {
			ao.MaxParallelTools = cfg.Agent.MaxParallelTools
		})
	}

	return New(append([]func(o *Options){base}, optFns...)...), nil
}

// Run executes a step graph on the shared runner.
func (m *Mesh) Run(ctx context.Context, node step.Node, input any) (any, error) {
	return m.runner.Run(ctx, node, input)
}

// NewAgent creates an agent on the default model sharing the mesh tracer and
// logger. optFns are applied after the mesh defaults.
func (m *Mesh) NewAgent(name string, tools []tool.Tool, optFns ...func(o *agent.Options)) (*agent.Agent, error) {
	if m.opts.Model == nil {
		return nil, &core.ConfigError{Field: "model", Message: "mesh has no default model"}
	}
	return m.NewAgentWithModel(name, m.opts.Model, tools, optFns...)
}

// NewAgentWithModel is NewAgent with an explicit model.
func (m *Mesh) NewAgentWithModel(name string, llm model.Model, tools []tool.Tool, optFns ...func(o *agent.Options)) (*agent.Agent, error) {
	base := func(o *agent.Options) {
		o.Tracer = m.opts.Tracer
		o.Logger = m.opts.Logger
		if m.opts.AgentMaxTurns > 0 {
			o.MaxTurns = m.opts.AgentMaxTurns
		}
		if m.opts.AgentMaxParallelTools > 0 {
			o.MaxParallelTools = m.opts.AgentMaxParallelTools
		}
	}

	fns := append([]func(o *agent.Options){base}, m.opts.AgentOptions...)
	return agent.New(name, llm, tools, append(fns, optFns...)...)
}

// Runner returns the underlying pipeline runner.
func (m *Mesh) Runner() *engine.Runner { return m.runner }

// Tracer returns the shared tracer.
func (m *Mesh) Tracer() trace.Tracer { return m.opts.Tracer }

// Logger returns the shared logger.
func (m *Mesh) Logger() logging.Logger { return m.opts.Logger }

// Model returns the default model, which may be nil.
func (m *Mesh) Model() model.Model { return m.opts.Model }

// CollectEvents drains the channels returned by agent.Stream and returns the
// accumulated events together with the terminal error.
func CollectEvents(ctx context.Context, events <-chan agent.Event, errs <-chan error) ([]agent.Event, error) {
	var collected []agent.Event
	for {
		select {
		case <-ctx.Done():
			// Context cancelled - return events collected so far
			return collected, ctx.Err()

		case ev, ok := <-events:
			if !ok {
				// Events channel closed - the error channel holds the outcome
				return collected, <-errs
			}
			collected = append(collected, ev)
		}
	}
}
