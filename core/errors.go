package core

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors usable with errors.Is against the typed errors below.
var (
	ErrTimeout          = errors.New("step timed out")
	ErrRetriesExhausted = errors.New("retries exhausted")
	ErrCompositionType  = errors.New("composition type mismatch")
	ErrToolNotFound     = errors.New("tool not found")
	ErrBudgetExceeded   = errors.New("agent budget exceeded")
	ErrInvalidConfig    = errors.New("invalid configuration")
)

// StepError wraps whatever the user function returned for a single attempt.
type StepError struct {
	Step    string
	Attempt int
	Err     error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %q failed on attempt %d: %v", e.Step, e.Attempt, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

// TimeoutError is produced by the execution wrapper when an attempt exceeds
// the step timeout. The attempt's context has been cancelled by then.
type TimeoutError struct {
	Step    string
	Timeout time.Duration
	Attempt int
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("step %q timed out after %s on attempt %d", e.Step, e.Timeout, e.Attempt)
}

func (e *TimeoutError) Is(target error) bool { return target == ErrTimeout }

// RetriesExhaustedError wraps the last underlying error once a step has used
// all of its allowed attempts on retryable failures.
type RetriesExhaustedError struct {
	Step     string
	Attempts int
	Err      error
}

func (e *RetriesExhaustedError) Error() string {
	return fmt.Sprintf("step %q failed after %d attempt(s): %v", e.Step, e.Attempts, e.Err)
}

func (e *RetriesExhaustedError) Unwrap() error { return e.Err }

func (e *RetriesExhaustedError) Is(target error) bool { return target == ErrRetriesExhausted }

// CompositionTypeError reports an output/input shape mismatch between two
// composed steps. It is only detectable at run time and is never retried.
type CompositionTypeError struct {
	Step     string
	Expected string
	Got      string
}

func (e *CompositionTypeError) Error() string {
	return fmt.Sprintf("step %q expects input of type %s, got %s", e.Step, e.Expected, e.Got)
}

func (e *CompositionTypeError) Is(target error) bool { return target == ErrCompositionType }

// ToolNotFoundError is recorded in the conversation when the model requests
// an unregistered tool. The agent loop treats it as recoverable.
type ToolNotFoundError struct {
	Name string
}

func (e *ToolNotFoundError) Error() string { return fmt.Sprintf("unknown tool: %s", e.Name) }

func (e *ToolNotFoundError) Is(target error) bool { return target == ErrToolNotFound }

// BudgetExceededError terminates an agent run that reached its turn cap
// without a final answer.
type BudgetExceededError struct {
	MaxTurns int
	Turns    int
}

func (e *BudgetExceededError) Error() string {
	return fmt.Sprintf("agent exceeded max turns (%d) without final response after %d turn(s)", e.MaxTurns, e.Turns)
}

func (e *BudgetExceededError) Is(target error) bool { return target == ErrBudgetExceeded }

// TracerError describes a tracer failure. It is logged and swallowed, never
// returned from a run.
type TracerError struct {
	Op  string
	Err error
}

func (e *TracerError) Error() string { return fmt.Sprintf("tracer %s failed: %v", e.Op, e.Err) }

func (e *TracerError) Unwrap() error { return e.Err }

// PipelineError adds the node path of the failing leaf to an unrecovered
// step failure.
type PipelineError struct {
	Path string
	Step string
	Err  error
}

func (e *PipelineError) Error() string {
	return fmt.Sprintf("pipeline failed at %s: %v", e.Path, e.Err)
}

func (e *PipelineError) Unwrap() error { return e.Err }

// ConfigError reports an invalid construction parameter.
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func (e *ConfigError) Is(target error) bool { return target == ErrInvalidConfig }

// PanicError is returned when a user function panics.
type PanicError struct {
	Value any
	Stack []byte
}

func (e *PanicError) Error() string { return fmt.Sprintf("panic recovered: %v", e.Value) }
