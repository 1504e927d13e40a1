package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/sandevgo/tuskmem/internal/core"
	"github.com/sashabaranov/go-openai"
)

var _ core.AIProvider = (*OpenAI)(nil)

// OpenAI talks to any OpenAI compatible chat completions API: OpenAI,
// OpenRouter, Ollama or a custom endpoint.
type OpenAI struct {
	client *openai.Client
	model  string
}

func NewOpenAI(provider, baseURL, apiKey, model string) *OpenAI {
	return &OpenAI{
		client: newClient(provider, baseURL, apiKey),
		model:  model,
	}
}

func (o *OpenAI) ChatStream(ctx context.Context, req core.ChatRequest) (core.ChatStream, error) {
	stream, err := o.client.CreateChatCompletionStream(ctx, o.buildRequest(req))
	if err != nil {
		return nil, fmt.Errorf("failed to start chat stream: %w", err)
	}
	return newChatStream(stream), nil
}

func (o *OpenAI) buildRequest(req core.ChatRequest) openai.ChatCompletionRequest {
	out := openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: toOpenAIMessages(req.System, req.Messages),
		Stream:   true,
	}

	for _, t := range req.Tools {
		out.Tools = append(out.Tools, openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        t.Function.Name,
				Description: t.Function.Description,
				Parameters:  t.Function.Parameters,
			},
		})
	}

	if len(req.ResponseSchema) > 0 {
		name := req.ResponseName
		if name == "" {
			name = "response"
		}
		out.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONSchema,
			JSONSchema: &openai.ChatCompletionResponseFormatJSONSchema{
				Name:   name,
				Schema: req.ResponseSchema,
			},
		}
	}
	return out
}

func (o *OpenAI) Models(ctx context.Context) ([]string, error) {
	list, err := o.client.ListModels(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list models: %w", err)
	}

	models := make([]string, 0, len(list.Models))
	for _, m := range list.Models {
		models = append(models, m.ID)
	}
	sort.Strings(models)
	return models, nil
}

func (o *OpenAI) Model() string {
	return o.model
}

func toOpenAIMessages(system []string, msgs []core.Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(system)+len(msgs))
	for _, s := range system {
		out = append(out, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleSystem, Content: s})
	}

	for _, m := range msgs {
		switch m.Role {
		case core.RoleTool:
			out = append(out, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    toolContent(m),
				ToolCallID: m.ToolCallID,
			})

		case core.RoleAssistant:
			msg := openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleAssistant,
				Content: content(m),
			}
			for _, tc := range m.ToolCalls() {
				msg.ToolCalls = append(msg.ToolCalls, openai.ToolCall{
					ID:   tc.ID,
					Type: openai.ToolTypeFunction,
					Function: openai.FunctionCall{
						Name:      tc.Function.Name,
						Arguments: tc.Function.Arguments,
					},
				})
			}
			out = append(out, msg)

		default:
			out = append(out, openai.ChatCompletionMessage{
				Role:    openai.ChatMessageRoleUser,
				Content: content(m),
			})
		}
	}
	return out
}

// content renders text and structured parts as plain text.
func content(m core.Message) string {
	var chunks []string
	for _, p := range m.Parts {
		switch p.Type {
		case core.PartText:
			chunks = append(chunks, p.Text)
		case core.PartStructured:
			chunks = append(chunks, string(p.Data))
		}
	}
	return strings.Join(chunks, "")
}

func toolContent(m core.Message) string {
	r := m.ToolResult()
	if r == nil {
		return m.Text()
	}
	if r.IsError() {
		return fmt.Sprintf("Error (%s): %s", r.ErrorKind, r.Error)
	}

	// plain strings read better without JSON quotes
	var s string
	if err := json.Unmarshal(r.Output, &s); err == nil {
		return s
	}
	return string(r.Output)
}
