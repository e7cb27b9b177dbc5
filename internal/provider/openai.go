// Package provider implements the external model capabilities on the
// OpenAI API: chat completions (one-shot and streaming, with tool
// calling) and text embeddings. The rest of the system depends only on
// the chat.Completer and knowledge.Embedder interfaces.
package provider

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/koopa0/recall/internal/chat"
)

// OpenAI is a thin adapter over the official client. One instance serves
// both the completion and the embedding capability; the embedding model
// identity is fixed per deployment.
type OpenAI struct {
	client         openai.Client
	model          string
	embeddingModel string
}

// Option configures an OpenAI provider.
type Option func(*OpenAI)

// WithAPIKey overrides the OPENAI_API_KEY environment variable.
func WithAPIKey(key string) Option {
	return func(p *OpenAI) {
		p.client = openai.NewClient(option.WithAPIKey(key))
	}
}

// NewOpenAI creates a provider using model for completions and
// embeddingModel for embeddings. Without WithAPIKey the client reads
// OPENAI_API_KEY from the environment.
func NewOpenAI(model, embeddingModel string, opts ...Option) *OpenAI {
	p := &OpenAI{
		client:         openai.NewClient(),
		model:          model,
		embeddingModel: embeddingModel,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Complete performs one chat completion call and returns the assistant's
// text and/or tool invocations.
func (p *OpenAI) Complete(ctx context.Context, msgs []chat.Message, tools []chat.ToolDef) (*chat.Turn, error) {
	completion, err := p.client.Chat.Completions.New(ctx, p.params(msgs, tools))
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(completion.Choices) == 0 {
		return nil, errors.New("chat completion returned no choices")
	}

	message := completion.Choices[0].Message
	turn := &chat.Turn{
		Text: message.Content,
		Usage: chat.Usage{
			InputTokens:  completion.Usage.PromptTokens,
			OutputTokens: completion.Usage.CompletionTokens,
		},
	}
	for _, call := range message.ToolCalls {
		turn.ToolCalls = append(turn.ToolCalls, chat.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: []byte(call.Function.Arguments),
		})
	}
	return turn, nil
}

// CompleteStream performs one chat completion call in incremental
// delivery mode: each text delta is handed to onText as it arrives, and
// the accumulated turn (text, tool calls, usage) is returned once the
// stream finishes.
func (p *OpenAI) CompleteStream(ctx context.Context, msgs []chat.Message, tools []chat.ToolDef, onText chat.StreamFunc) (*chat.Turn, error) {
	params := p.params(msgs, tools)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := p.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	acc := openai.ChatCompletionAccumulator{}
	for stream.Next() {
		chunk := stream.Current()
		acc.AddChunk(chunk)

		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if err := onText(ctx, chunk.Choices[0].Delta.Content); err != nil {
				return nil, fmt.Errorf("stream aborted: %w", err)
			}
		}
	}
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}
	if len(acc.Choices) == 0 {
		return nil, errors.New("chat completion stream returned no choices")
	}

	message := acc.Choices[0].Message
	turn := &chat.Turn{
		Text: message.Content,
		Usage: chat.Usage{
			InputTokens:  acc.Usage.PromptTokens,
			OutputTokens: acc.Usage.CompletionTokens,
		},
	}
	for _, call := range message.ToolCalls {
		turn.ToolCalls = append(turn.ToolCalls, chat.ToolCall{
			ID:        call.ID,
			Name:      call.Function.Name,
			Arguments: []byte(call.Function.Arguments),
		})
	}
	return turn, nil
}

// Embed embeds a single text.
func (p *OpenAI) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := p.EmbedMany(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany embeds a batch of texts in one API call, order-preserving.
func (p *OpenAI) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(p.embeddingModel),
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
	})
	if err != nil {
		return nil, fmt.Errorf("embedding: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("embedding returned %d vectors for %d inputs", len(resp.Data), len(texts))
	}

	out := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vec := make([]float32, len(d.Embedding))
		for j, v := range d.Embedding {
			vec[j] = float32(v)
		}
		out[i] = vec
	}
	return out, nil
}

// params builds the request from the provider-normalized message and
// tool shapes.
func (p *OpenAI) params(msgs []chat.Message, tools []chat.ToolDef) openai.ChatCompletionNewParams {
	return openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(p.model),
		Messages: convertMessages(msgs),
		Tools:    convertTools(tools),
	}
}

// convertMessages maps the orchestrator's tagged-union messages onto the
// OpenAI parameter unions. This is the provider-normalized flattening
// direction; the inbound direction lives in the API layer.
func convertMessages(msgs []chat.Message) []openai.ChatCompletionMessageParamUnion {
	out := make([]openai.ChatCompletionMessageParamUnion, 0, len(msgs))
	for _, m := range msgs {
		switch m.Role {
		case chat.RoleSystem:
			out = append(out, openai.SystemMessage(m.Text()))

		case chat.RoleUser:
			out = append(out, openai.UserMessage(m.Text()))

		case chat.RoleAssistant:
			out = append(out, assistantParam(m))

		case chat.RoleTool:
			for _, part := range m.Parts {
				if part.Kind == chat.PartToolResult && part.ToolResult != nil {
					out = append(out, openai.ToolMessage(part.ToolResult.Content, part.ToolResult.CallID))
				}
			}
		}
	}
	return out
}

// assistantParam builds an assistant message param carrying both the
// text content and any tool calls the model made on that turn.
func assistantParam(m chat.Message) openai.ChatCompletionMessageParamUnion {
	assistant := openai.ChatCompletionAssistantMessageParam{}

	var text string
	for _, part := range m.Parts {
		switch part.Kind {
		case chat.PartText:
			text += part.Text
		case chat.PartToolCall:
			if part.ToolCall == nil {
				continue
			}
			assistant.ToolCalls = append(assistant.ToolCalls, openai.ChatCompletionMessageToolCallParam{
				ID: part.ToolCall.ID,
				Function: openai.ChatCompletionMessageToolCallFunctionParam{
					Name:      part.ToolCall.Name,
					Arguments: string(part.ToolCall.Arguments),
				},
			})
		}
	}
	if text != "" {
		assistant.Content = openai.ChatCompletionAssistantMessageParamContentUnion{
			OfString: openai.String(text),
		}
	}

	return openai.ChatCompletionMessageParamUnion{OfAssistant: &assistant}
}

// convertTools maps tool definitions onto OpenAI function tools.
func convertTools(tools []chat.ToolDef) []openai.ChatCompletionToolParam {
	out := make([]openai.ChatCompletionToolParam, 0, len(tools))
	for _, tool := range tools {
		out = append(out, openai.ChatCompletionToolParam{
			Function: openai.FunctionDefinitionParam{
				Name:        tool.Name,
				Description: openai.String(tool.Description),
				Parameters:  openai.FunctionParameters(tool.Parameters),
			},
		})
	}
	return out
}
