package core

import (
	"context"

	"github.com/hupe1980/pipemesh/logging"
)

// ToolContext provides the scoped execution surface handed to a tool
// invocation: cancellation, correlation identifiers and the run logger.
type ToolContext struct {
	ctx        context.Context
	runID      string
	agentName  string
	toolCallID string

	*loggerAdapter
}

// NewToolContext constructs a tool context for one tool call of an agent run.
func NewToolContext(ctx context.Context, runID, agentName, toolCallID string, logger logging.Logger) *ToolContext {
	if ctx == nil {
		ctx = context.Background()
	}
	return &ToolContext{
		ctx:           ctx,
		runID:         runID,
		agentName:     agentName,
		toolCallID:    toolCallID,
		loggerAdapter: newLoggerAdapter(logger),
	}
}

// Context returns the cancellation context of the invocation. It is done
// when the tool timeout elapses or the run is cancelled.
func (tc *ToolContext) Context() context.Context { return tc.ctx }

// WithContext returns a shallow copy bound to ctx.
func (tc *ToolContext) WithContext(ctx context.Context) *ToolContext {
	cp := *tc
	cp.ctx = ctx
	return &cp
}

// RunID returns the agent run identifier.
func (tc *ToolContext) RunID() string { return tc.runID }

// AgentName returns the name of the agent dispatching the tool.
func (tc *ToolContext) AgentName() string { return tc.agentName }

// ToolCallID returns the model-supplied call identifier.
func (tc *ToolContext) ToolCallID() string { return tc.toolCallID }
