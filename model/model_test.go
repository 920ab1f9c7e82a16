package model

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pipemesh/core"
)

func TestScriptedModel(t *testing.T) {
	call := core.ToolCall{ID: "call-1", Name: "search", Arguments: `{"query":"go"}`}
	m := NewScriptedModel("script",
		core.NewAssistantMessage("", call),
		core.NewAssistantMessage("done"),
	)

	first, err := Collect(context.Background(), m, Request{Messages: []core.Message{core.NewUserMessage("hi")}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "tool_calls", first.FinishReason)
	assert.Equal(t, []core.ToolCall{call}, first.Message.ToolCalls)

	second, err := Collect(context.Background(), m, Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", second.Message.Content)
	assert.Equal(t, "stop", second.FinishReason)

	// exhausted scripts repeat the last turn
	third, err := Collect(context.Background(), m, Request{}, nil)
	require.NoError(t, err)
	assert.Equal(t, "done", third.Message.Content)

	assert.Equal(t, 3, m.Calls())
	require.Len(t, m.Requests(), 3)
	assert.Equal(t, "hi", m.Requests()[0].Messages[0].Content)
}

func TestScriptedModelEmpty(t *testing.T) {
	_, err := Collect(context.Background(), NewScriptedModel("empty"), Request{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no responses configured")
}

func TestCollectStreamsPartials(t *testing.T) {
	m := NewScriptedModel("script", core.NewAssistantMessage("hey"))

	var chunks []string
	resp, err := Collect(context.Background(), m, Request{Stream: true}, func(r Response) {
		chunks = append(chunks, r.Message.Content)
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"h", "e", "y"}, chunks)
	assert.Equal(t, "hey", resp.Message.Content)
	assert.False(t, resp.Partial)
}

func TestCollectCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m := NewScriptedModel("script", core.NewAssistantMessage(strings.Repeat("x", 64)))
	_, err := Collect(ctx, m, Request{Stream: true}, nil)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestFunc(t *testing.T) {
	boom := errors.New("boom")
	m := NewFunc("echo", func(_ context.Context, req Request) (core.Message, error) {
		if len(req.Messages) == 0 {
			return core.Message{}, boom
		}
		return core.NewAssistantMessage("echo: " + req.Messages[0].Content), nil
	})

	assert.Equal(t, "func", m.Info().Provider)

	resp, err := Collect(context.Background(), m, Request{Messages: []core.Message{core.NewUserMessage("ping")}}, nil)
	require.NoError(t, err)
	assert.Equal(t, "echo: ping", resp.Message.Content)

	_, err = Collect(context.Background(), m, Request{}, nil)
	assert.ErrorIs(t, err, boom)
}

func TestTokenUsageAdd(t *testing.T) {
	var total *TokenUsage
	total = total.Add(&TokenUsage{PromptTokens: 1, CompletionTokens: 2, TotalTokens: 3})
	total = total.Add(nil)
	total = total.Add(&TokenUsage{PromptTokens: 1, CompletionTokens: 1, TotalTokens: 2})
	assert.Equal(t, &TokenUsage{PromptTokens: 2, CompletionTokens: 3, TotalTokens: 5}, total)
}
