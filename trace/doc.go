// Package trace defines the Tracer protocol used by the execution wrapper,
// the pipeline runner and the agent loop, together with the per-run
// Context that threads the run identifier and the open span stack through
// an execution.
//
// Tracers are plain interfaces injected by the caller. The package ships a
// handful of interchangeable implementations:
//
//   - NoopTracer: discards everything (the default)
//   - TextTracer: human readable lines for development
//   - LogTracer: forwards spans to a logging.Logger
//   - JSONLTracer: one JSON object per event
//   - Recorder: keeps events in memory and summarizes a run
//   - MultiTracer: fans events out to several tracers
//
// Every implementation must tolerate concurrent calls; parallel branches
// emit events from separate goroutines.
package trace
