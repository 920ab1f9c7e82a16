package agent

import (
	"time"

	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/model"
)

// State is the position of a run in the agent loop.
type State int

const (
	// StateAwaitingModel waits for the next model response.
	StateAwaitingModel State = iota
	// StateDispatchingTools executes the tool calls of the last response.
	StateDispatchingTools
	// StateDone means the model produced a final answer.
	StateDone
	// StateFailed means the run ended with a fatal error.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateAwaitingModel:
		return "awaiting_model"
	case StateDispatchingTools:
		return "dispatching_tools"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Terminal reports whether s ends a run.
func (s State) Terminal() bool { return s == StateDone || s == StateFailed }

// ToolInvocation records one executed (or rejected) tool call.
type ToolInvocation struct {
	Turn     int             `json:"turn"`
	Call     core.ToolCall   `json:"call"`
	Result   core.ToolResult `json:"result"`
	Duration time.Duration   `json:"duration"`
	// Err is the failure behind an error result, nil on success.
	Err error `json:"-"`
}

// Result is the outcome of an agent run.
type Result struct {
	RunID string `json:"run_id"`
	State State  `json:"state"`
	// Answer is the final assistant text when State is StateDone.
	Answer string `json:"answer"`
	// Turns counts model calls.
	Turns        int               `json:"turns"`
	ToolCalls    []ToolInvocation  `json:"tool_calls"`
	Conversation []core.Message    `json:"conversation"`
	Usage        *model.TokenUsage `json:"usage,omitempty"`
}
