package model

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/hupe1980/pipemesh/core"
)

// ToolDefinition declaratively exposes a callable function to the model.
type ToolDefinition struct {
	Type     string             `json:"type"` // "function"
	Function FunctionDefinition `json:"function"`
}

// FunctionDefinition describes an individual function (tool) exposed to the model.
// Parameters is a JSON Schema object (draft agnostic, minimal subset expected).
type FunctionDefinition struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  map[string]any `json:"parameters"` // JSON Schema
}

// Request captures the normalized model input produced by agents.
type Request struct {
	Instructions string           `json:"instructions"` // System prompt
	Messages     []core.Message   `json:"messages"`     // Conversation so far
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Stream       bool             `json:"stream,omitempty"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Add returns the element-wise sum of u and other. Nil operands count as zero.
func (u *TokenUsage) Add(other *TokenUsage) *TokenUsage {
	sum := &TokenUsage{}
	for _, t := range []*TokenUsage{u, other} {
		if t == nil {
			continue
		}
		sum.PromptTokens += t.PromptTokens
		sum.CompletionTokens += t.CompletionTokens
		sum.TotalTokens += t.TotalTokens
	}
	return sum
}

// Response is a (partial or final) chunk emitted by a streaming model.
// Partial chunks carry text deltas only; the final chunk carries the complete
// assistant message including any tool calls.
type Response struct {
	ID           string       `json:"id"`
	Partial      bool         `json:"partial"`
	Message      core.Message `json:"message"`
	FinishReason string       `json:"finish_reason"` // "stop", "length", "tool_calls", etc.
	Usage        *TokenUsage  `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name          string `json:"name"`
	Provider      string `json:"provider"` // "openai", "anthropic", "openrouter", "scripted", etc.
	SupportsTools bool   `json:"supports_tools"`
}

// Model is the minimal interface required by agents to drive generation.
//
// Implementations close the response channel once generation ends and
// report at most one error on the error channel, which is closed afterwards.
type Model interface {
	Generate(ctx context.Context, req Request) (<-chan Response, <-chan error)

	// Info returns information about the model implementation.
	Info() Info
}

// ErrNoResponse is returned by Collect when a model finished without a final response.
var ErrNoResponse = errors.New("model returned no final response")

// Collect drives m to completion and returns the final response. onPartial,
// when non-nil, receives every partial chunk in order.
func Collect(ctx context.Context, m Model, req Request, onPartial func(Response)) (*Response, error) {
	out, errCh := m.Generate(ctx, req)

	var final *Response
	for resp := range out {
		if resp.Partial {
			if onPartial != nil {
				onPartial(resp)
			}
			continue
		}
		r := resp
		final = &r
	}

	if err := <-errCh; err != nil {
		return nil, err
	}

	if final == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrNoResponse
	}

	return final, nil
}

// Func adapts a synchronous completion function to the Model interface.
type Func struct {
	info Info
	fn   func(ctx context.Context, req Request) (core.Message, error)
}

// NewFunc wraps fn as a Model named name.
func NewFunc(name string, fn func(ctx context.Context, req Request) (core.Message, error)) *Func {
	return &Func{
		info: Info{Name: name, Provider: "func", SupportsTools: true},
		fn:   fn,
	}
}

// Generate implements Model.
func (f *Func) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 1)
	errCh := make(chan error, 1)

	go func() {
		defer close(respCh)
		defer close(errCh)

		msg, err := f.fn(ctx, req)
		if err != nil {
			errCh <- err
			return
		}

		respCh <- Response{Message: msg, FinishReason: finishReason(msg)}
	}()

	return respCh, errCh
}

// Info implements Model.
func (f *Func) Info() Info { return f.info }

// ScriptedModel is a lightweight in‑memory Model useful for tests & examples.
// It replays a fixed list of assistant messages, one per Generate call, and
// records every request it receives.
type ScriptedModel struct {
	info Info

	mu       sync.Mutex
	script   []core.Message
	requests []Request
}

// NewScriptedModel constructs a ScriptedModel that answers with script in order.
func NewScriptedModel(name string, script ...core.Message) *ScriptedModel {
	return &ScriptedModel{
		info: Info{
			Name:          name,
			Provider:      "scripted",
			SupportsTools: true,
		},
		script: script,
	}
}

// Append adds further turns to the script.
func (m *ScriptedModel) Append(msgs ...core.Message) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.script = append(m.script, msgs...)
}

// Requests returns a copy of all received requests.
func (m *ScriptedModel) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}

// Calls returns the number of Generate invocations.
func (m *ScriptedModel) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Generate implements Model; emits optional streaming chunks then the final response.
// Once the script is exhausted the last turn is repeated.
func (m *ScriptedModel) Generate(ctx context.Context, req Request) (<-chan Response, <-chan error) {
	respCh := make(chan Response, 16)
	errCh := make(chan error, 1)

	m.mu.Lock()
	m.requests = append(m.requests, req)
	idx := len(m.requests) - 1
	var (
		msg core.Message
		ok  bool
	)
	if n := len(m.script); n > 0 {
		msg, ok = m.script[min(idx, n-1)], true
	}
	m.mu.Unlock()

	go func() {
		defer close(respCh)
		defer close(errCh)

		if !ok {
			errCh <- fmt.Errorf("scripted model %s: no responses configured", m.info.Name)
			return
		}

		if req.Stream && msg.Content != "" {
			for _, r := range msg.Content {
				select {
				case <-ctx.Done():
					errCh <- ctx.Err()
					return
				case respCh <- Response{
					Partial: true,
					Message: core.Message{Role: core.RoleAssistant, Content: string(r)},
				}:
				}
			}
		}

		select {
		case <-ctx.Done():
			errCh <- ctx.Err()
		case respCh <- Response{Message: msg, FinishReason: finishReason(msg)}:
		}
	}()

	return respCh, errCh
}

// Info implements Model interface.
func (m *ScriptedModel) Info() Info { return m.info }

func finishReason(msg core.Message) string {
	if len(msg.ToolCalls) > 0 {
		return "tool_calls"
	}
	return "stop"
}
