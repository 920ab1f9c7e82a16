package agent

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/engine"
	"github.com/hupe1980/pipemesh/internal/testutil"
	"github.com/hupe1980/pipemesh/model"
	"github.com/hupe1980/pipemesh/step"
	"github.com/hupe1980/pipemesh/tool"
	"github.com/hupe1980/pipemesh/trace"
)

type searchArgs struct {
	Query string `json:"query" description:"Search terms"`
}

func searchTool(calls *atomic.Int32) tool.Tool {
	return tool.NewTypedTool("search", "Search the web", func(_ *core.ToolContext, args searchArgs) (any, error) {
		calls.Add(1)
		return "results for " + args.Query, nil
	})
}

func callSearch(id, query string) core.Message {
	return core.NewAssistantMessage("", testutil.NewToolCall(id, "search", map[string]any{"query": query}))
}

func TestRunSearchTwiceThenAnswer(t *testing.T) {
	var calls atomic.Int32
	m := model.NewScriptedModel("script",
		callSearch("c1", "go"),
		callSearch("c2", "generics"),
		core.NewAssistantMessage("Go has generics."),
	)

	a, err := New("researcher", m, []tool.Tool{searchTool(&calls)})
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "does go have generics?")
	require.NoError(t, err)

	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "Go has generics.", res.Answer)
	assert.Equal(t, 3, res.Turns)
	assert.Equal(t, 3, m.Calls())
	assert.Equal(t, int32(2), calls.Load())

	require.Len(t, res.ToolCalls, 2)
	assert.Equal(t, "results for go", res.ToolCalls[0].Result.Content)
	assert.Equal(t, "results for generics", res.ToolCalls[1].Result.Content)
	assert.Equal(t, 1, res.ToolCalls[0].Turn)
	assert.Equal(t, 2, res.ToolCalls[1].Turn)

	// user, call, result, call, result, answer
	require.Len(t, res.Conversation, 6)
	assert.Equal(t, core.RoleTool, res.Conversation[2].Role)
	assert.Equal(t, "c1", res.Conversation[2].ToolResult.CallID)

	// every model request sees the full history and the tool declarations
	reqs := m.Requests()
	require.Len(t, reqs, 3)
	assert.Len(t, reqs[2].Messages, 5)
	require.Len(t, reqs[0].Tools, 1)
	assert.Equal(t, "search", reqs[0].Tools[0].Function.Name)
}

func TestRunBudgetExceeded(t *testing.T) {
	var calls atomic.Int32
	m := model.NewScriptedModel("endless", callSearch("", "again"))

	a, err := New("looper", m, []tool.Tool{searchTool(&calls)}, func(o *Options) { o.MaxTurns = 5 })
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "loop forever")
	require.ErrorIs(t, err, core.ErrBudgetExceeded)

	var budgetErr *core.BudgetExceededError
	require.ErrorAs(t, err, &budgetErr)
	assert.Equal(t, 5, budgetErr.MaxTurns)

	assert.Equal(t, 5, m.Calls())
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 5, res.Turns)
	assert.Len(t, res.ToolCalls, 5)
	assert.Equal(t, "call_1_1", res.ToolCalls[0].Call.ID)
}

func TestRunUnknownToolIsRecoverable(t *testing.T) {
	m := model.NewScriptedModel("script",
		core.NewAssistantMessage("", core.ToolCall{ID: "c1", Name: "nope", Arguments: "{}"}),
		core.NewAssistantMessage("recovered"),
	)

	rec := trace.NewRecorder()
	a, err := New("assistant", m, nil, func(o *Options) { o.Tracer = rec })
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "use a tool")
	require.NoError(t, err)
	assert.Equal(t, "recovered", res.Answer)

	require.Len(t, res.ToolCalls, 1)
	inv := res.ToolCalls[0]
	assert.True(t, inv.Result.IsError)
	assert.JSONEq(t, `{"error":"unknown tool: nope"}`, inv.Result.Content)
	assert.ErrorIs(t, inv.Err, core.ErrToolNotFound)

	// the model saw the error on its next turn
	second := m.Requests()[1].Messages
	assert.Equal(t, core.RoleTool, second[len(second)-1].Role)
	assert.True(t, second[len(second)-1].ToolResult.IsError)

	require.Len(t, rec.FailedSpans(), 1)
	assert.Equal(t, "tool.nope", rec.FailedSpans()[0].Name)
}

func TestRunToolFailureIsRecoverable(t *testing.T) {
	broken := tool.NewFunctionTool("broken", "Always fails", nil, func(*core.ToolContext, map[string]any) (any, error) {
		return nil, errors.New("disk full")
	})
	m := model.NewScriptedModel("script",
		core.NewAssistantMessage("", core.ToolCall{ID: "c1", Name: "broken"}),
		core.NewAssistantMessage("sorry"),
	)

	a, err := New("assistant", m, []tool.Tool{broken})
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "try")
	require.NoError(t, err)
	assert.Equal(t, StateDone, res.State)

	require.Len(t, res.ToolCalls, 1)
	assert.JSONEq(t, `{"error":"disk full","code":"EXECUTION_ERROR"}`, res.ToolCalls[0].Result.Content)
}

func TestRunMalformedArguments(t *testing.T) {
	var calls atomic.Int32
	m := model.NewScriptedModel("script",
		core.NewAssistantMessage("", core.ToolCall{ID: "c1", Name: "search", Arguments: "{not json"}),
		core.NewAssistantMessage("ok"),
	)

	a, err := New("assistant", m, []tool.Tool{searchTool(&calls)})
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "search")
	require.NoError(t, err)
	assert.True(t, res.ToolCalls[0].Result.IsError)
	assert.Zero(t, calls.Load())
}

func TestRunToolResultsKeepModelOrder(t *testing.T) {
	sleepy := tool.NewFunctionTool("sleep", "Sleep for ms", nil, func(tc *core.ToolContext, args map[string]any) (any, error) {
		ms := args["ms"].(float64)
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-tc.Context().Done():
			return nil, tc.Context().Err()
		}
		return strconv.Itoa(int(ms)), nil
	})

	m := model.NewScriptedModel("script",
		core.NewAssistantMessage("",
			testutil.NewToolCall("a", "sleep", map[string]any{"ms": 100}),
			testutil.NewToolCall("b", "sleep", map[string]any{"ms": 1}),
			testutil.NewToolCall("c", "sleep", map[string]any{"ms": 60}),
		),
		core.NewAssistantMessage("slept"),
	)

	a, err := New("assistant", m, []tool.Tool{sleepy})
	require.NoError(t, err)

	start := time.Now()
	res, err := a.Run(context.Background(), "sleep")
	require.NoError(t, err)

	// concurrent dispatch: bounded by the slowest call, not the sum
	assert.Less(t, time.Since(start), 150*time.Millisecond)

	require.Len(t, res.ToolCalls, 3)
	assert.Equal(t, []string{"100", "1", "60"}, []string{
		res.ToolCalls[0].Result.Content,
		res.ToolCalls[1].Result.Content,
		res.ToolCalls[2].Result.Content,
	})

	tools := res.Conversation[2:5]
	assert.Equal(t, "a", tools[0].ToolResult.CallID)
	assert.Equal(t, "b", tools[1].ToolResult.CallID)
	assert.Equal(t, "c", tools[2].ToolResult.CallID)
}

func TestRunToolRetry(t *testing.T) {
	c := &testutil.Counter{}
	flaky := tool.NewFunctionTool("flaky", "Fails twice", nil, func(tc *core.ToolContext, _ map[string]any) (any, error) {
		return testutil.FailNTimes(2, "ok", c)(tc.Context(), nil)
	})
	m := model.NewScriptedModel("script",
		core.NewAssistantMessage("", core.ToolCall{ID: "c1", Name: "flaky"}),
		core.NewAssistantMessage("done"),
	)

	rec := trace.NewRecorder()
	a, err := New("assistant", m, []tool.Tool{flaky}, func(o *Options) {
		o.Tracer = rec
		o.ToolRetry = core.RetryConfig{MaxAttempts: 3, BaseDelay: time.Millisecond, Multiplier: 2}
	})
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "go")
	require.NoError(t, err)
	assert.Equal(t, "ok", res.ToolCalls[0].Result.Content)
	assert.Equal(t, 3, c.Calls())

	var starts, retries int
	for _, ev := range rec.EventsFor("tool.flaky") {
		switch {
		case ev.Kind == trace.KindSpanStart:
			starts++
		case ev.Kind == trace.KindSpanError && ev.Retrying:
			retries++
		}
	}
	assert.Equal(t, 3, starts)
	assert.Equal(t, 2, retries)
}

func TestRunModelFailureIsFatal(t *testing.T) {
	boom := errors.New("provider down")
	m := model.NewFunc("down", func(context.Context, model.Request) (core.Message, error) {
		return core.Message{}, boom
	})

	a, err := New("assistant", m, nil)
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "hello")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 1, res.Turns)
}

func TestRunModelTimeout(t *testing.T) {
	m := model.NewFunc("slow", func(ctx context.Context, _ model.Request) (core.Message, error) {
		<-ctx.Done()
		return core.Message{}, ctx.Err()
	})

	a, err := New("assistant", m, nil, func(o *Options) { o.ModelTimeout = 20 * time.Millisecond })
	require.NoError(t, err)

	start := time.Now()
	_, err = a.Run(context.Background(), "hello")
	require.ErrorIs(t, err, core.ErrTimeout)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRunSpansBalance(t *testing.T) {
	var calls atomic.Int32
	m := model.NewScriptedModel("script",
		core.NewAssistantMessage("",
			testutil.NewToolCall("c1", "search", map[string]any{"query": "a"}),
			testutil.NewToolCall("c2", "search", map[string]any{"query": "b"}),
		),
		core.NewAssistantMessage("done"),
	)

	rec := trace.NewRecorder()
	a, err := New("assistant", m, []tool.Tool{searchTool(&calls)}, func(o *Options) { o.Tracer = rec })
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "go")
	require.NoError(t, err)

	assert.Equal(t, rec.Count(trace.KindSpanStart), rec.Count(trace.KindSpanEnd)+rec.Count(trace.KindSpanError))
	assert.Len(t, rec.EventsFor("model"), 4)
	assert.Len(t, rec.EventsFor("tool.search"), 4)

	// tool spans nest under the agent span
	root := rec.EventsFor("assistant")[0]
	for _, ev := range rec.EventsFor("tool.search") {
		if ev.Kind == trace.KindSpanStart {
			assert.Equal(t, root.SpanID, ev.ParentID)
		}
	}
}

func TestRunInstruction(t *testing.T) {
	m := model.NewScriptedModel("script", core.NewAssistantMessage("hi"))

	a, err := New("helper", m, nil, func(o *Options) {
		o.Instruction = NewInstructionFromText("You are {{.agent}}, answer in {{.lang}}.")
		o.Vars = map[string]any{"lang": "English"}
	})
	require.NoError(t, err)

	_, err = a.Run(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, "You are helper, answer in English.", m.Requests()[0].Instructions)
}

func TestRunEmptyConversation(t *testing.T) {
	a, err := New("assistant", model.NewScriptedModel("script", core.NewAssistantMessage("x")), nil)
	require.NoError(t, err)

	res, err := a.RunConversation(context.Background(), nil)
	require.ErrorIs(t, err, core.ErrInvalidConfig)
	assert.Equal(t, StateFailed, res.State)
}

func TestStreamEvents(t *testing.T) {
	var calls atomic.Int32
	m := model.NewScriptedModel("script", callSearch("c1", "go"), core.NewAssistantMessage("done"))

	a, err := New("assistant", m, []tool.Tool{searchTool(&calls)})
	require.NoError(t, err)

	events, errCh := a.Stream(context.Background(), "search go")

	var types []EventType
	var last Event
	for ev := range events {
		types = append(types, ev.Type)
		last = ev
	}
	require.NoError(t, <-errCh)

	assert.Equal(t, []EventType{EventToolCall, EventToolResult, EventText, EventDone}, types)
	require.NotNil(t, last.Result)
	assert.Equal(t, "done", last.Result.Answer)
}

func TestStreamTextDeltas(t *testing.T) {
	m := model.NewScriptedModel("script", core.NewAssistantMessage("abc"))

	a, err := New("assistant", m, nil, func(o *Options) { o.Stream = true })
	require.NoError(t, err)

	events, errCh := a.Stream(context.Background(), "hi")

	var deltas string
	for ev := range events {
		if ev.Type == EventTextDelta {
			deltas += ev.Text
		}
	}
	require.NoError(t, <-errCh)
	assert.Equal(t, "abc", deltas)
}

func TestStreamError(t *testing.T) {
	m := model.NewScriptedModel("endless", callSearch("", "x"))
	var calls atomic.Int32

	a, err := New("assistant", m, []tool.Tool{searchTool(&calls)}, func(o *Options) { o.MaxTurns = 2 })
	require.NoError(t, err)

	events, errCh := a.Stream(context.Background(), "loop")

	var sawError bool
	for ev := range events {
		if ev.Type == EventError {
			sawError = true
			assert.ErrorIs(t, ev.Err, core.ErrBudgetExceeded)
		}
	}
	assert.True(t, sawError)
	assert.ErrorIs(t, <-errCh, core.ErrBudgetExceeded)
}

func TestNewValidation(t *testing.T) {
	m := model.NewScriptedModel("script")
	dup := tool.NewFunctionTool("dup", "", nil, nil)

	tests := map[string]func() (*Agent, error){
		"empty name": func() (*Agent, error) { return New("", m, nil) },
		"nil model":  func() (*Agent, error) { return New("a", nil, nil) },
		"duplicate":  func() (*Agent, error) { return New("a", m, []tool.Tool{dup, dup}) },
		"max turns":  func() (*Agent, error) { return New("a", m, nil, func(o *Options) { o.MaxTurns = 0 }) },
		"retry": func() (*Agent, error) {
			return New("a", m, nil, func(o *Options) { o.ToolRetry = core.RetryConfig{MaxAttempts: -1} })
		},
		"tool timeout": func() (*Agent, error) {
			return New("a", m, nil, func(o *Options) { o.ToolTimeout = -time.Second })
		},
		"model retry": func() (*Agent, error) {
			return New("a", m, nil, func(o *Options) { o.ModelRetry = core.RetryConfig{BaseDelay: -time.Second} })
		},
	}

	for name, build := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := build()
			assert.ErrorIs(t, err, core.ErrInvalidConfig)
		})
	}
}

func TestAsStepInPipeline(t *testing.T) {
	m := model.NewScriptedModel("script", core.NewAssistantMessage("42"))
	a, err := New("oracle", m, nil)
	require.NoError(t, err)

	s, err := a.AsStep()
	require.NoError(t, err)

	prefix := step.MustNew("prefix", func(_ context.Context, in any) (any, error) {
		return "question: " + in.(string), nil
	})

	out, err := engine.New().Run(context.Background(), step.Then(prefix, s), "meaning of life")
	require.NoError(t, err)
	assert.Equal(t, "42", out)
	assert.Equal(t, "question: meaning of life", m.Requests()[0].Messages[0].Content)

	_, err = engine.New().Run(context.Background(), s, 42)
	assert.ErrorIs(t, err, core.ErrCompositionType)
}

func TestAsStepSharesPipelineTrace(t *testing.T) {
	m := model.NewScriptedModel("script", core.NewAssistantMessage("42"))
	a, err := New("oracle", m, nil, func(o *Options) {
		o.Instruction = NewInstructionFromText("run {{.run_id}}")
	})
	require.NoError(t, err)

	s, err := a.AsStep()
	require.NoError(t, err)

	rec := trace.NewRecorder()
	r := engine.New(func(o *engine.Options) { o.Tracer = rec })

	tc := r.NewTraceContext(func(o *trace.ContextOptions) { o.RunID = "run-1" })
	_, err = r.RunWithTrace(context.Background(), s, "meaning of life", tc)
	require.NoError(t, err)

	assert.Equal(t, "run run-1", m.Requests()[0].Instructions)

	var starts []trace.Event
	for _, ev := range rec.EventsFor("oracle") {
		if ev.Kind == trace.KindSpanStart {
			starts = append(starts, ev)
		}
	}
	require.Len(t, starts, 2)
	assert.Equal(t, starts[0].SpanID, starts[1].ParentID)

	modelStarts := rec.EventsFor("model")
	require.NotEmpty(t, modelStarts)
	assert.Equal(t, starts[1].SpanID, modelStarts[0].ParentID)
	assert.Equal(t, rec.Count(trace.KindSpanStart), rec.Count(trace.KindSpanEnd)+rec.Count(trace.KindSpanError))
}

// mockModel is a testify mock of model.Model.
type mockModel struct{ mock.Mock }

func (m *mockModel) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	args := m.Called(ctx, req)

	respCh := make(chan model.Response, 1)
	errCh := make(chan error, 1)
	if err := args.Error(1); err != nil {
		errCh <- err
	} else {
		respCh <- args.Get(0).(model.Response)
	}
	close(respCh)
	close(errCh)

	return respCh, errCh
}

func (m *mockModel) Info() model.Info {
	return model.Info{Name: "mock", Provider: "mock", SupportsTools: true}
}

func TestRunAccumulatesUsage(t *testing.T) {
	m := &mockModel{}
	m.On("Generate", mock.Anything, mock.MatchedBy(func(req model.Request) bool {
		return len(req.Messages) == 1 && req.Messages[0].Content == "hi"
	})).Return(model.Response{
		Message: core.NewAssistantMessage("hello"),
		Usage:   &model.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5},
	}, nil).Once()

	a, err := New("assistant", m, nil)
	require.NoError(t, err)

	res, err := a.Run(context.Background(), "hi")
	require.NoError(t, err)
	assert.Equal(t, "hello", res.Answer)
	assert.Equal(t, &model.TokenUsage{PromptTokens: 3, CompletionTokens: 2, TotalTokens: 5}, res.Usage)
	m.AssertExpectations(t)
}

func TestRunConversationContinuesHistory(t *testing.T) {
	history := testutil.NewConversationBuilder().
		User("find go docs").
		ToolCall("search", map[string]any{"query": "go"}).
		ToolResult("search", "results for go").
		Assistant("Found them.").
		User("and generics?").
		Build()

	m := model.NewScriptedModel("script", core.NewAssistantMessage("Generics landed in 1.18."))

	var calls atomic.Int32
	a, err := New("researcher", m, []tool.Tool{searchTool(&calls)})
	require.NoError(t, err)

	res, err := a.RunConversation(context.Background(), history)
	require.NoError(t, err)
	assert.Equal(t, "Generics landed in 1.18.", res.Answer)
	assert.Equal(t, 1, res.Turns)
	assert.Len(t, res.Conversation, len(history)+1)

	reqs := m.Requests()
	require.Len(t, reqs, 1)
	assert.Equal(t, history, reqs[0].Messages)
	assert.Zero(t, calls.Load())
}
