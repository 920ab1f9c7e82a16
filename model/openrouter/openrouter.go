// Package openrouter implements model.Model against OpenRouter (or any other
// OpenAI-compatible endpoint) using the community go-openai client.
package openrouter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hupe1980/pipemesh/core"
	"github.com/hupe1980/pipemesh/model"
)

// DefaultBaseURL is the OpenRouter API root.
const DefaultBaseURL = "https://openrouter.ai/api/v1"

// Options configure the OpenRouter adapter.
type Options struct {
	APIKey      string
	Model       string
	BaseURL     string
	Temperature float32
}

// Model wraps an OpenAI-compatible chat completion endpoint.
type Model struct {
	client *openai.Client
	opts   Options
}

// NewModel creates an adapter for the given model id, e.g. "openai/gpt-4o-mini".
func NewModel(apiKey, modelID string, optFns ...func(o *Options)) *Model {
	opts := Options{
		APIKey:      apiKey,
		Model:       modelID,
		BaseURL:     DefaultBaseURL,
		Temperature: 0.7,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	config := openai.DefaultConfig(opts.APIKey)
	config.BaseURL = opts.BaseURL

	return &Model{
		client: openai.NewClientWithConfig(config),
		opts:   opts,
	}
}

// Generate implements model.Model.
func (m *Model) Generate(ctx context.Context, req model.Request) (<-chan model.Response, <-chan error) {
	out := make(chan model.Response, 32)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		chatReq := openai.ChatCompletionRequest{
			Model:       m.opts.Model,
			Messages:    convertMessages(req),
			Tools:       convertTools(req.Tools),
			Temperature: m.opts.Temperature,
		}
		if len(chatReq.Tools) > 0 {
			chatReq.ToolChoice = "auto"
		}

		if req.Stream {
			chatReq.Stream = true
			if err := m.stream(ctx, chatReq, out); err != nil {
				errCh <- err
			}
			return
		}

		resp, err := m.client.CreateChatCompletion(ctx, chatReq)
		if err != nil {
			errCh <- fmt.Errorf("chat completion failed: %w", err)
			return
		}
		if len(resp.Choices) == 0 {
			errCh <- fmt.Errorf("no choices in response")
			return
		}

		choice := resp.Choices[0]
		out <- model.Response{
			ID:           resp.ID,
			Message:      convertResponseMessage(choice.Message),
			FinishReason: string(choice.FinishReason),
			Usage: &model.TokenUsage{
				PromptTokens:     resp.Usage.PromptTokens,
				CompletionTokens: resp.Usage.CompletionTokens,
				TotalTokens:      resp.Usage.TotalTokens,
			},
		}
	}()

	return out, errCh
}

func (m *Model) stream(ctx context.Context, chatReq openai.ChatCompletionRequest, out chan<- model.Response) error {
	stream, err := m.client.CreateChatCompletionStream(ctx, chatReq)
	if err != nil {
		return fmt.Errorf("chat stream failed: %w", err)
	}
	defer stream.Close()

	var (
		id           string
		finishReason string
		text         strings.Builder
		calls        = map[int]*core.ToolCall{}
	)

	for {
		chunk, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return fmt.Errorf("stream recv error: %w", err)
		}

		id = chunk.ID
		if len(chunk.Choices) == 0 {
			continue
		}

		choice := chunk.Choices[0]
		if choice.FinishReason != "" {
			finishReason = string(choice.FinishReason)
		}

		if delta := choice.Delta.Content; delta != "" {
			text.WriteString(delta)
			out <- model.Response{
				ID:      id,
				Partial: true,
				Message: core.Message{Role: core.RoleAssistant, Content: delta},
			}
		}

		for _, tc := range choice.Delta.ToolCalls {
			if tc.Index == nil {
				continue
			}
			existing, ok := calls[*tc.Index]
			if !ok {
				existing = &core.ToolCall{}
				calls[*tc.Index] = existing
			}
			if tc.ID != "" {
				existing.ID = tc.ID
			}
			if tc.Function.Name != "" {
				existing.Name = tc.Function.Name
			}
			existing.Arguments += tc.Function.Arguments
		}
	}

	indices := make([]int, 0, len(calls))
	for idx := range calls {
		indices = append(indices, idx)
	}
	sort.Ints(indices)

	toolCalls := make([]core.ToolCall, 0, len(indices))
	for _, idx := range indices {
		toolCalls = append(toolCalls, *calls[idx])
	}

	if finishReason == "" {
		finishReason = "stop"
	}

	out <- model.Response{
		ID:           id,
		Message:      core.NewAssistantMessage(text.String(), toolCalls...),
		FinishReason: finishReason,
	}

	return nil
}

// Info implements model.Model.
func (m *Model) Info() model.Info {
	return model.Info{
		Name:          m.opts.Model,
		Provider:      "openrouter",
		SupportsTools: true,
	}
}

func convertMessages(req model.Request) []openai.ChatCompletionMessage {
	result := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.Instructions != "" {
		result = append(result, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.Instructions,
		})
	}

	for _, msg := range req.Messages {
		oaiMsg := openai.ChatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		}

		if msg.ToolResult != nil {
			oaiMsg.ToolCallID = msg.ToolResult.CallID
			oaiMsg.Name = msg.ToolResult.Name
		}

		for _, tc := range msg.ToolCalls {
			oaiMsg.ToolCalls = append(oaiMsg.ToolCalls, openai.ToolCall{
				ID:   tc.ID,
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      tc.Name,
					Arguments: tc.Arguments,
				},
			})
		}

		result = append(result, oaiMsg)
	}
	return result
}

func convertTools(tools []model.ToolDefinition) []openai.Tool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]openai.Tool, 0, len(tools))
	for _, t := range tools {
		result = append(result, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}
	return result
}

func convertResponseMessage(msg openai.ChatCompletionMessage) core.Message {
	calls := make([]core.ToolCall, 0, len(msg.ToolCalls))
	for _, tc := range msg.ToolCalls {
		calls = append(calls, core.ToolCall{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: tc.Function.Arguments,
		})
	}
	return core.NewAssistantMessage(msg.Content, calls...)
}
