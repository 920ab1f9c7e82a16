// Package agent implements the tool-use loop: an Agent alternates model
// calls and tool dispatch over one conversation until the model produces a
// final answer or the turn budget is spent.
//
// Execution model:
//   - Every model call and every tool call runs through step.Execute, so both
//     get retry, timeout and tracing from their configured policies
//   - Tool calls requested in one model turn are dispatched concurrently and
//     their results re-attached in the order the model listed them
//   - Unknown tools, malformed arguments and failing tools become error
//     content the model can react to; model failures, cancellation and an
//     exhausted budget end the run
//
// Run returns the collected Result; Stream additionally reports progress as
// Events on a channel.
package agent
