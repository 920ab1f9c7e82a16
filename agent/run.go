package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/logging"
	"github.com/hupe1980/pipemesh/model"
	"github.com/hupe1980/pipemesh/tool"
	"github.com/hupe1980/pipemesh/trace"
)

// Run executes the loop for a single user message.
//
// On failure the partial Result (conversation, tool calls, turns) is
// returned together with the error.
func (a *Agent) Run(ctx context.Context, input string) (*Result, error) {
	return a.RunConversation(ctx, []core.Message{core.NewUserMessage(input)})
}

// RunConversation executes the loop continuing the given history, which
// must end with the turn the model should answer.
func (a *Agent) RunConversation(ctx context.Context, msgs []core.Message) (*Result, error) {
	return a.run(ctx, msgs, nil, nil)
}

// RunWithTrace is RunConversation nested in an existing trace: spans go to
// the tracer of tc under its current span and share its run id.
func (a *Agent) RunWithTrace(ctx context.Context, msgs []core.Message, tc *trace.Context) (*Result, error) {
	return a.run(ctx, msgs, nil, tc)
}

// Stream executes the loop for a single user message and reports progress
// as Events. The event channel is closed when the run ends; the error
// channel then yields the fatal error, if any. Callers must drain events or
// cancel ctx.
func (a *Agent) Stream(ctx context.Context, input string) (<-chan Event, <-chan error) {
	return a.StreamConversation(ctx, []core.Message{core.NewUserMessage(input)})
}

// StreamConversation is Stream continuing the given history.
func (a *Agent) StreamConversation(ctx context.Context, msgs []core.Message) (<-chan Event, <-chan error) {
	events := make(chan Event, 64)
	errCh := make(chan error, 1)

	go func() {
		defer close(events)
		defer close(errCh)

		emit := func(ev Event) {
			select {
			case events <- ev:
			case <-ctx.Done():
			}
		}

		if _, err := a.run(ctx, msgs, emit, nil); err != nil {
			errCh <- err
		}
	}()

	return events, errCh
}

func (a *Agent) run(ctx context.Context, msgs []core.Message, emit func(Event), parent *trace.Context) (*Result, error) {
	if emit == nil {
		emit = func(Event) {}
	}

	logger := a.opts.Logger

	var tc *trace.Context
	if parent != nil {
		tc = parent.Child()
	} else {
		tc = trace.NewContext(a.opts.Tracer, func(o *trace.ContextOptions) { o.Logger = logger })
	}
	runID := tc.RunID()
	ctx = logging.WithLogger(ctx, logger)

	res := &Result{
		RunID:        runID,
		State:        StateAwaitingModel,
		Conversation: slices.Clone(msgs),
	}

	spanID := tc.StartSpan(ctx, a.name, trace.Attributes{
		"kind":      "agent",
		"max_turns": a.opts.MaxTurns,
		"tools":     a.tools.Len(),
	})

	logger.Info("agent.run.start", "agent", a.name, "run_id", runID, "model", a.model.Info().Name, "max_turns", a.opts.MaxTurns)
	start := time.Now()

	fail := func(err error) (*Result, error) {
		res.State = StateFailed
		tc.FailSpan(ctx, spanID, err, false)
		logger.Error("agent.run.failed", "agent", a.name, "run_id", runID, "turns", res.Turns, "duration_ms", time.Since(start).Milliseconds(), "error", err.Error())
		emit(Event{Type: EventError, Turn: res.Turns, Err: err, Result: res})
		return res, err
	}

	if len(msgs) == 0 {
		return fail(&core.ConfigError{Field: "agent.input", Message: "conversation must not be empty"})
	}

	vars := make(map[string]any, len(a.opts.Vars)+2)
	maps.Copy(vars, a.opts.Vars)
	vars["run_id"] = runID
	vars["agent"] = a.name

	instructions, err := a.opts.Instruction.Resolve(ctx, RunInfo{RunID: runID, Agent: a.name, Vars: vars})
	if err != nil {
		return fail(fmt.Errorf("agent %s: resolve instruction: %w", a.name, err))
	}

	budget := core.NewBudget(a.opts.MaxTurns)
	defs := a.tools.Definitions()

	for {
		if err := budget.Consume(); err != nil {
			return fail(err)
		}

		turn := budget.Used()
		res.Turns = turn

		var onPartial func(model.Response)
		if a.opts.Stream {
			onPartial = func(r model.Response) {
				emit(Event{Type: EventTextDelta, Turn: turn, Text: r.Message.Content})
			}
		}

		req := model.Request{
			Instructions: instructions,
			Messages:     slices.Clone(res.Conversation),
			Tools:        defs,
			Stream:       a.opts.Stream,
		}

		out, err := a.modelStep.Execute(ctx, modelInput{req: req, onPartial: onPartial}, tc)
		if err != nil {
			return fail(fmt.Errorf("agent %s: turn %d: %w", a.name, turn, err))
		}

		resp := out.(*model.Response)
		if resp.Usage != nil {
			res.Usage = res.Usage.Add(resp.Usage)
		}

		msg := resp.Message
		msg.Role = core.RoleAssistant
		msg.ToolCalls = slices.Clone(msg.ToolCalls)
		for i := range msg.ToolCalls {
			if msg.ToolCalls[i].ID == "" {
				msg.ToolCalls[i].ID = fmt.Sprintf("call_%d_%d", turn, i+1)
			}
		}
		res.Conversation = append(res.Conversation, msg)

		logger.Debug("agent.model.response", "agent", a.name, "run_id", runID, "turn", turn, "tool_calls", len(msg.ToolCalls), "finish_reason", resp.FinishReason)

		if msg.Content != "" {
			emit(Event{Type: EventText, Turn: turn, Text: msg.Content})
		}

		if len(msg.ToolCalls) == 0 {
			res.State = StateDone
			res.Answer = msg.Content
			tc.EndSpan(ctx, spanID, trace.Attributes{
				"turns":       turn,
				"tool_calls":  len(res.ToolCalls),
				"duration_ms": time.Since(start).Milliseconds(),
			})
			logger.Info("agent.run.done", "agent", a.name, "run_id", runID, "turns", turn, "tool_calls", len(res.ToolCalls), "duration_ms", time.Since(start).Milliseconds())
			emit(Event{Type: EventDone, Turn: turn, Result: res})
			return res, nil
		}

		res.State = StateDispatchingTools

		for _, inv := range a.dispatch(ctx, tc, runID, turn, msg.ToolCalls, emit) {
			res.ToolCalls = append(res.ToolCalls, inv)
			res.Conversation = append(res.Conversation, core.NewToolMessage(inv.Result))
		}

		if err := ctx.Err(); err != nil {
			return fail(fmt.Errorf("agent %s: turn %d: %w", a.name, turn, err))
		}

		res.State = StateAwaitingModel
	}
}

// dispatch executes the tool calls of one turn concurrently and returns the
// invocations in call order.
func (a *Agent) dispatch(ctx context.Context, tc *trace.Context, runID string, turn int, calls []core.ToolCall, emit func(Event)) []ToolInvocation {
	for i := range calls {
		call := calls[i]
		emit(Event{Type: EventToolCall, Turn: turn, ToolCall: &call})
	}

	invocations := make([]ToolInvocation, len(calls))

	var g errgroup.Group
	if a.opts.MaxParallelTools > 0 {
		g.SetLimit(a.opts.MaxParallelTools)
	}

	batchStart := time.Now()
	for i, call := range calls {
		child := tc.Child()
		g.Go(func() error {
			inv := a.invoke(ctx, child, runID, turn, call)
			invocations[i] = inv
			emit(Event{Type: EventToolResult, Turn: turn, ToolCall: &inv.Call, ToolResult: &inv.Result, Err: inv.Err})
			return nil
		})
	}

	_ = g.Wait() // tool failures are reported as content, never as group errors

	a.opts.Logger.Debug("agent.tools.batch.complete", "agent", a.name, "run_id", runID, "turn", turn, "count", len(calls), "duration_ms", time.Since(batchStart).Milliseconds())

	return invocations
}

// invoke executes one tool call. Every failure is turned into an error
// result the model gets to see.
func (a *Agent) invoke(ctx context.Context, tc *trace.Context, runID string, turn int, call core.ToolCall) ToolInvocation {
	logger := a.opts.Logger
	start := time.Now()

	failed := func(err error) ToolInvocation {
		logger.Warn("agent.tool.failed", "agent", a.name, "run_id", runID, "tool", call.Name, "call_id", call.ID, "error", err.Error())
		return ToolInvocation{
			Turn:     turn,
			Call:     call,
			Result:   core.ToolResult{CallID: call.ID, Name: call.Name, Content: errorContent(err), IsError: true},
			Duration: time.Since(start),
			Err:      err,
		}
	}

	s, ok := a.toolSteps[call.Name]
	if !ok {
		err := &core.ToolNotFoundError{Name: call.Name}
		spanID := tc.StartSpan(ctx, "tool."+call.Name, trace.Attributes{"call_id": call.ID})
		tc.FailSpan(ctx, spanID, err, false)
		return failed(err)
	}

	args, err := call.Args()
	if err != nil {
		return failed(err)
	}

	toolCtx := core.NewToolContext(ctx, runID, a.name, call.ID, logger)

	out, err := s.Execute(ctx, toolInput{toolCtx: toolCtx, args: args}, tc)
	if err != nil {
		return failed(err)
	}

	content, err := renderContent(out)
	if err != nil {
		return failed(fmt.Errorf("encode result of tool %s: %w", call.Name, err))
	}

	logger.Info("agent.tool.executed", "agent", a.name, "run_id", runID, "tool", call.Name, "call_id", call.ID, "duration_ms", time.Since(start).Milliseconds())

	return ToolInvocation{
		Turn:     turn,
		Call:     call,
		Result:   core.ToolResult{CallID: call.ID, Name: call.Name, Content: content},
		Duration: time.Since(start),
	}
}

// renderContent serializes a tool result for the conversation. Strings pass
// through, everything else is JSON encoded.
func renderContent(out any) (string, error) {
	switch v := out.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case []byte:
		return string(v), nil
	case json.RawMessage:
		return string(v), nil
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// errorContent renders err as a JSON object the model can parse.
func errorContent(err error) string {
	payload := map[string]string{"error": err.Error()}

	var toolErr *tool.ToolError
	if errors.As(err, &toolErr) {
		payload["error"] = toolErr.Message
		if toolErr.Code != "" {
			payload["code"] = toolErr.Code
		}
	}

	b, _ := json.Marshal(payload)
	return string(b)
}
