package agent

import "github.com/hupe1980/pipemesh/core"

// EventType identifies the kind of an agent Event.
type EventType string

const (
	// EventTextDelta carries a partial text chunk of a streaming model.
	EventTextDelta EventType = "text_delta"
	// EventText carries the complete text of an assistant turn.
	EventText EventType = "text"
	// EventToolCall is emitted before a tool call is dispatched.
	EventToolCall EventType = "tool_call"
	// EventToolResult is emitted once a tool call finished.
	EventToolResult EventType = "tool_result"
	// EventError reports the fatal error of a run.
	EventError EventType = "error"
	// EventDone carries the final Result.
	EventDone EventType = "done"
)

// Event reports progress of a streamed run.
type Event struct {
	Type       EventType
	Turn       int
	Text       string
	ToolCall   *core.ToolCall
	ToolResult *core.ToolResult
	Err        error
	Result     *Result
}
