package anthropic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/model"
)

func TestBuildMessagesGroupsToolResults(t *testing.T) {
	msgs := []core.Message{
		{Role: core.RoleSystem, Content: "ignored here"},
		core.NewUserMessage("weather in paris and rome?"),
		core.NewAssistantMessage("",
			core.ToolCall{ID: "c1", Name: "weather", Arguments: `{"city":"paris"}`},
			core.ToolCall{ID: "c2", Name: "weather", Arguments: `{"city":"rome"}`},
		),
		core.NewToolMessage(core.ToolResult{CallID: "c1", Name: "weather", Content: "sunny"}),
		core.NewToolMessage(core.ToolResult{CallID: "c2", Name: "weather", Content: "boom", IsError: true}),
		core.NewAssistantMessage("sunny, unknown"),
	}

	result := buildMessages(msgs)

	require.Len(t, result, 4)
	require.Len(t, result[1].Content, 2)
	require.Len(t, result[2].Content, 2)
	require.NotNil(t, result[2].Content[0].OfToolResult)
	assert.Equal(t, "c1", result[2].Content[0].OfToolResult.ToolUseID)
	assert.Equal(t, "c2", result[2].Content[1].OfToolResult.ToolUseID)
}

func TestSystemPrompt(t *testing.T) {
	prompt := systemPrompt(model.Request{
		Instructions: "be brief",
		Messages:     []core.Message{{Role: core.RoleSystem, Content: "answer in french"}, core.NewUserMessage("hi")},
	})
	assert.Equal(t, "be brief\n\nanswer in french", prompt)
	assert.Empty(t, systemPrompt(model.Request{}))
}

func TestBuildTools(t *testing.T) {
	tools := buildTools([]model.ToolDefinition{{
		Type: "function",
		Function: model.FunctionDefinition{
			Name:        "search",
			Description: "Search the web",
			Parameters: map[string]any{
				"type":       "object",
				"properties": map[string]any{"query": map[string]any{"type": "string"}},
				"required":   []any{"query"},
			},
		},
	}})

	require.Len(t, tools, 1)
	require.NotNil(t, tools[0].OfTool)
	assert.Equal(t, "search", tools[0].OfTool.Name)
	assert.Equal(t, "Search the web", tools[0].OfTool.Description.Value)
	assert.Equal(t, []string{"query"}, tools[0].OfTool.InputSchema.Required)
}
