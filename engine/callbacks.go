package engine

import (
	"context"
	"sync"

	"github.com/hupe1980/pipemesh/logging"
	"github.com/hupe1980/pipemesh/step"
)

// CallbackType defines the lifecycle points where callbacks are executed.
//
// Available callback types:
//   - BeforeRun/AfterRun: Around a complete pipeline run
//   - BeforeStep/AfterStep: Around every leaf step, after retries
//   - OnError: When a run fails
//
// Callbacks are executed synchronously. Errors returned by Before and After
// callbacks terminate the operation; OnError callback errors are logged.
type CallbackType string

const (
	// CallbackBeforeRun is triggered before the root node executes.
	CallbackBeforeRun CallbackType = "before_run"

	// CallbackAfterRun is triggered after a successful run.
	CallbackAfterRun CallbackType = "after_run"

	// CallbackBeforeStep is triggered before a leaf step executes.
	// Use for input validation or auditing.
	CallbackBeforeStep CallbackType = "before_step"

	// CallbackAfterStep is triggered after a leaf step succeeded.
	CallbackAfterStep CallbackType = "after_step"

	// CallbackOnError is triggered when a run fails.
	CallbackOnError CallbackType = "on_error"
)

// CallbackContext provides context information for callback execution.
type CallbackContext struct {
	// RunID correlates the callback with trace events of the same run.
	RunID string

	// Node is the node the callback refers to: the root node for run
	// callbacks, the leaf *step.Step for step callbacks.
	Node step.Node

	// Path locates Node inside the graph.
	Path string

	// Input is the value handed to Node.
	Input any

	// Output is the produced value. Only set for After callbacks.
	Output any

	// Err is the run failure. Only set for OnError callbacks.
	Err error

	// CallbackType indicates which callback type triggered this execution.
	CallbackType CallbackType
}

// Callback defines the interface for execution lifecycle hooks.
//
// Step callbacks of parallel branches run concurrently, so implementations
// must be safe for concurrent use.
type Callback interface {
	// Type returns the callback type this implementation handles.
	Type() CallbackType

	// Execute performs the callback logic with the provided context.
	Execute(ctx context.Context, callbackCtx *CallbackContext) error
}

// FunctionCallback wraps a function as a callback implementation.
//
// Example:
//
//	cb := NewFunctionCallback(CallbackBeforeStep, func(ctx context.Context, c *CallbackContext) error {
//	    if c.Input == nil {
//	        return errors.New("nil input")
//	    }
//	    return nil
//	})
type FunctionCallback struct {
	callbackType CallbackType
	fn           func(ctx context.Context, callbackCtx *CallbackContext) error
}

// NewFunctionCallback creates a new function-based callback.
func NewFunctionCallback(
	callbackType CallbackType,
	fn func(ctx context.Context, callbackCtx *CallbackContext) error,
) *FunctionCallback {
	return &FunctionCallback{
		callbackType: callbackType,
		fn:           fn,
	}
}

// Type returns the callback type this function handles.
func (c *FunctionCallback) Type() CallbackType {
	return c.callbackType
}

// Execute calls the wrapped function with the provided context.
func (c *FunctionCallback) Execute(ctx context.Context, callbackCtx *CallbackContext) error {
	return c.fn(ctx, callbackCtx)
}

// CallbackManager is a registry of callbacks grouped by type.
//
// Callbacks are executed in registration order, and any callback returning
// an error stops execution of the remaining callbacks of that type.
// Registration and execution are safe for concurrent use.
type CallbackManager struct {
	mu        sync.RWMutex
	callbacks map[CallbackType][]Callback
}

// NewCallbackManager creates an empty callback manager.
func NewCallbackManager() *CallbackManager {
	return &CallbackManager{
		callbacks: make(map[CallbackType][]Callback),
	}
}

// RegisterCallback adds a callback for its type.
func (cm *CallbackManager) RegisterCallback(callback Callback) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	callbackType := callback.Type()
	cm.callbacks[callbackType] = append(cm.callbacks[callbackType], callback)
}

// ExecuteCallbacks executes all registered callbacks for the specified type
// and returns the first error.
func (cm *CallbackManager) ExecuteCallbacks(
	ctx context.Context,
	callbackType CallbackType,
	callbackCtx *CallbackContext,
) error {
	cm.mu.RLock()
	callbacks := cm.callbacks[callbackType]
	cm.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback.Execute(ctx, callbackCtx); err != nil {
			return err
		}
	}

	return nil
}

// LoggingCallback logs lifecycle events to a logging.Logger at debug level.
type LoggingCallback struct {
	callbackType CallbackType
	logger       logging.Logger
}

// NewLoggingCallback creates a new logging callback.
func NewLoggingCallback(callbackType CallbackType, logger logging.Logger) *LoggingCallback {
	if logger == nil {
		logger = logging.NoOpLogger{}
	}
	return &LoggingCallback{
		callbackType: callbackType,
		logger:       logger,
	}
}

// Type returns the callback type this logger handles.
func (c *LoggingCallback) Type() CallbackType {
	return c.callbackType
}

// Execute logs the event with run id and node path.
func (c *LoggingCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	args := []any{"type", string(c.callbackType), "run_id", callbackCtx.RunID, "path", callbackCtx.Path}
	if callbackCtx.Err != nil {
		args = append(args, "error", callbackCtx.Err.Error())
	}
	c.logger.Debug("pipeline.callback", args...)
	return nil
}

// InputValidationCallback rejects step inputs before execution.
//
// Example:
//
//	cb := NewInputValidationCallback(func(name string, input any) error {
//	    if _, ok := input.(string); !ok {
//	        return fmt.Errorf("%s expects a string", name)
//	    }
//	    return nil
//	})
type InputValidationCallback struct {
	validator func(stepName string, input any) error
}

// NewInputValidationCallback creates a BeforeStep validation callback.
func NewInputValidationCallback(validator func(stepName string, input any) error) *InputValidationCallback {
	return &InputValidationCallback{
		validator: validator,
	}
}

// Type returns CallbackBeforeStep.
func (c *InputValidationCallback) Type() CallbackType {
	return CallbackBeforeStep
}

// Execute runs the validator against the step input.
func (c *InputValidationCallback) Execute(_ context.Context, callbackCtx *CallbackContext) error {
	if c.validator == nil || callbackCtx.Node == nil {
		return nil
	}
	return c.validator(callbackCtx.Node.Name(), callbackCtx.Input)
}
