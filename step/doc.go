// Package step provides the smallest composable unit of a pipeline and the
// composition algebra built on top of it.
//
// A Step wraps a user function. Calling it directly through Call behaves
// exactly like calling the function; Execute runs it under the step's retry,
// timeout and tracing policy. Steps compose into immutable graphs:
//
//	pipe := step.Seq(fetch, step.Par(summarize, classify), store)
//
// Composition never executes anything. Graphs are walked by engine.Runner.
package step
