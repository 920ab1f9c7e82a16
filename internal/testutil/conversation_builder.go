package testutil

import (
	"encoding/json"
	"fmt"

	"github.com/hupe1980/pipemesh/core"
)

// ConversationBuilder provides a fluent helper for constructing message
// histories in tests.
// Example:
//
//	msgs := NewConversationBuilder().User("hi").ToolCall("search", map[string]any{"q": "go"}).ToolResult("search", "ok").Build()
//
// Tool call ids are generated as call-1, call-2, ... unless set explicitly.
type ConversationBuilder struct {
	msgs   []core.Message
	nextID int
	lastID string
}

// NewConversationBuilder creates an empty builder.
func NewConversationBuilder() *ConversationBuilder { return &ConversationBuilder{} }

// User appends a user turn (chainable).
func (b *ConversationBuilder) User(text string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.NewUserMessage(text))
	return b
}

// Assistant appends a final assistant turn (chainable).
func (b *ConversationBuilder) Assistant(text string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.NewAssistantMessage(text))
	return b
}

// ToolCall appends an assistant turn requesting one tool (chainable).
func (b *ConversationBuilder) ToolCall(name string, args map[string]any) *ConversationBuilder {
	b.msgs = append(b.msgs, core.NewAssistantMessage("", NewToolCall(b.newID(), name, args)))
	return b
}

// ToolResult appends the result of the most recent tool call (chainable).
func (b *ConversationBuilder) ToolResult(name, content string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.NewToolMessage(core.ToolResult{CallID: b.lastID, Name: name, Content: content}))
	return b
}

// ToolError appends a failed tool result for the most recent call (chainable).
func (b *ConversationBuilder) ToolError(name, content string) *ConversationBuilder {
	b.msgs = append(b.msgs, core.NewToolMessage(core.ToolResult{CallID: b.lastID, Name: name, Content: content, IsError: true}))
	return b
}

// Build returns a copy of the accumulated messages.
func (b *ConversationBuilder) Build() []core.Message {
	return append([]core.Message(nil), b.msgs...)
}

func (b *ConversationBuilder) newID() string {
	b.nextID++
	b.lastID = fmt.Sprintf("call-%d", b.nextID)
	return b.lastID
}

// NewToolCall builds a core.ToolCall with JSON encoded arguments.
func NewToolCall(id, name string, args map[string]any) core.ToolCall {
	raw := ""
	if args != nil {
		b, err := json.Marshal(args)
		if err != nil {
			panic(err)
		}
		raw = string(b)
	}
	return core.ToolCall{ID: id, Name: name, Arguments: raw}
}
