// Package core provides the foundational domain types shared by the step
// engine and the agent loop. It defines:
//
//   - The error taxonomy surfaced by steps, pipelines and agents
//   - RetryConfig, the per-step retry / backoff policy
//   - Budget, the iteration cap enforced by the agent loop
//   - Conversation primitives (Message, ToolCall, ToolResult)
//   - ToolContext, the scoped execution surface handed to tools
//
// The package intentionally keeps orchestration concerns (tracing, graph
// execution, model adapters) out of scope so every other package can depend
// on it without cycles.
package core
