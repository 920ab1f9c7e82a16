// Package logging provides a minimal logging interface and adapters for pipemesh.
//
// The Logger interface defines the standard logging methods (Debug, Info, Warn, Error)
// that the runner, the execution wrapper and agents use for observability. This
// package includes:
//
//   - Logger interface for dependency injection
//   - SlogAdapter wrapping Go's structured logging
//   - StructuredLogger with component / run attributes and domain helpers
//   - NoOpLogger for silent operation (testing, minimal setups)
//   - WithLogger / FromContext to hand the run logger to tools
//
// Usage:
//
//	logger := logging.NewSlogLogger(logging.LogLevelInfo, "json", false)
//	runner := engine.New(func(o *engine.Options) { o.Logger = logger })
package logging
