// Package chat implements the bounded tool-calling conversation
// orchestrator. Each request runs a strictly ordered loop: the completion
// capability sees the full history plus the two knowledge-base tools, and
// either answers in plain text (terminal) or requests tool invocations,
// whose results are appended to history before the next step. The loop is
// capped at MaxSteps; hitting the cap is degraded but non-fatal — the
// caller still receives whatever partial content exists.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/koopa0/recall/internal/tracing"
)

// ErrCompletion indicates the completion capability itself failed. This
// aborts the whole request; tool failures do not.
var ErrCompletion = errors.New("completion failed")

// ErrNoMessages indicates a request with an empty message sequence,
// rejected before any tool work begins.
var ErrNoMessages = errors.New("no messages provided")

// DefaultMaxSteps caps model/tool round trips per request.
const DefaultMaxSteps = 5

// systemInstruction restricts answers to tool-sourced information. The
// unprompted-ingestion rule for addResource is contractual here: the
// conversation design presupposes the model honors it, there is no code
// branch behind it.
const systemInstruction = `You are a helpful assistant. Check your knowledge base before answering any questions.
Only respond to questions using information from tool calls.
If no relevant information is found in the tool calls, respond, "Sorry, I don't know."
If the user provides a random piece of knowledge unprompted, use the addResource tool to store it in your knowledge base without asking for confirmation.`

// Usage is the token count reported by one completion call.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Turn is the completion capability's output for one step: final text,
// tool invocations, or both.
type Turn struct {
	Text      string
	ToolCalls []ToolCall
	Usage     Usage
}

// StreamFunc receives each partial text segment as the capability
// produces it. Returning an error aborts the stream.
type StreamFunc func(ctx context.Context, text string) error

// Completer is the external completion capability: given messages and
// tool definitions, produce text and/or tool invocations. CompleteStream
// delivers text incrementally through onText and still returns the full
// accumulated Turn.
type Completer interface {
	Complete(ctx context.Context, msgs []Message, tools []ToolDef) (*Turn, error)
	CompleteStream(ctx context.Context, msgs []Message, tools []ToolDef, onText StreamFunc) (*Turn, error)
}

// Config assembles a Chat orchestrator.
type Config struct {
	Completer Completer
	Knowledge KnowledgeBase
	Tracer    *tracing.Tracer
	Logger    *slog.Logger

	// Model is the completion model identity recorded on LLM spans.
	Model string

	// MaxSteps caps model/tool round trips; zero uses DefaultMaxSteps.
	MaxSteps int

	// RateLimiter proactively limits completion calls (nil = default:
	// 10 req/s sustained, burst 30).
	RateLimiter *rate.Limiter

	// Retry controls backoff on transient completion failures; zero
	// values use DefaultRetryConfig.
	Retry RetryConfig

	// Breaker configures the circuit breaker guarding the completion
	// capability; zero values use DefaultCircuitBreakerConfig.
	Breaker CircuitBreakerConfig
}

// Chat is the conversation orchestrator. It is stateless across requests
// and safe for concurrent use; all per-request state lives on the stack.
type Chat struct {
	completer Completer
	knowledge KnowledgeBase
	tracer    *tracing.Tracer
	logger    *slog.Logger
	model     string
	maxSteps  int
	limiter   *rate.Limiter
	retry     RetryConfig
	breaker   *CircuitBreaker
	tools     []ToolDef
}

// New creates a Chat orchestrator.
func New(cfg Config) (*Chat, error) {
	if cfg.Completer == nil {
		return nil, errors.New("completer is required")
	}
	if cfg.Knowledge == nil {
		return nil, errors.New("knowledge base is required")
	}
	if cfg.Tracer == nil {
		return nil, errors.New("tracer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxSteps := cfg.MaxSteps
	if maxSteps <= 0 {
		maxSteps = DefaultMaxSteps
	}
	limiter := cfg.RateLimiter
	if limiter == nil {
		limiter = rate.NewLimiter(10, 30)
	}
	retry := cfg.Retry
	if retry.MaxRetries <= 0 {
		retry = DefaultRetryConfig()
	}
	if retry.InitialInterval <= 0 {
		retry.InitialInterval = DefaultRetryConfig().InitialInterval
	}
	if retry.MaxInterval <= 0 {
		retry.MaxInterval = DefaultRetryConfig().MaxInterval
	}

	return &Chat{
		completer: cfg.Completer,
		knowledge: cfg.Knowledge,
		tracer:    cfg.Tracer,
		logger:    logger,
		model:     cfg.Model,
		maxSteps:  maxSteps,
		limiter:   limiter,
		retry:     retry,
		breaker:   NewCircuitBreaker(cfg.Breaker),
		tools:     toolDefs(),
	}, nil
}

// Execute runs the conversation to completion and returns the final
// answer (batch mode).
func (c *Chat) Execute(ctx context.Context, history []Message) (string, error) {
	return c.run(ctx, history, nil)
}

// ExecuteStream runs the conversation in streaming mode: partial text is
// delivered through onText as soon as the capability produces it, while
// tool calls are still resolved synchronously between text segments. The
// final accumulated answer is returned as well.
func (c *Chat) ExecuteStream(ctx context.Context, history []Message, onText StreamFunc) (string, error) {
	if onText == nil {
		return "", errors.New("stream callback is required")
	}
	return c.run(ctx, history, onText)
}

// run is the shared step loop. onText == nil selects batch mode.
func (c *Chat) run(ctx context.Context, history []Message, onText StreamFunc) (string, error) {
	if len(history) == 0 {
		return "", ErrNoMessages
	}

	msgs := make([]Message, 0, len(history)+1+c.maxSteps*2)
	msgs = append(msgs, TextMessage(RoleSystem, systemInstruction))
	msgs = append(msgs, history...)

	var lastText string
	for step := 0; step < c.maxSteps; step++ {
		turn, err := c.completeStep(ctx, msgs, onText)
		if err != nil {
			return "", err
		}

		if turn.Text != "" {
			lastText = turn.Text
		}

		if len(turn.ToolCalls) == 0 {
			// Plain text is terminal.
			return turn.Text, nil
		}

		msgs = append(msgs, assistantTurn(turn))
		for _, call := range turn.ToolCalls {
			result := c.executeTool(ctx, call)
			msgs = append(msgs, Message{
				Role:  RoleTool,
				Parts: []Part{{Kind: PartToolResult, ToolResult: &result}},
			})
		}
	}

	// Step cap reached without terminal text: degraded but non-fatal.
	c.logger.Warn("step cap reached without final answer", "max_steps", c.maxSteps)
	return lastText, nil
}

// completeStep performs one completion call wrapped in an LLM span. The
// call goes through the circuit breaker and the retry layer; retries
// happen inside the span, so one step is one span regardless of attempt
// count. In streaming mode the span stays open while the producer runs
// and is closed by whichever of the success/failure paths fires; the
// close-once guard on the span makes a late duplicate a no-op.
func (c *Chat) completeStep(ctx context.Context, msgs []Message, onText StreamFunc) (*Turn, error) {
	if err := c.breaker.Allow(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCompletion, err)
	}

	spanCtx, span := c.tracer.Start(ctx, tracing.KindLLM, tracing.SpanChatCompletion, c.model, flattenHistory(msgs))

	turn, err := c.completeWithRetry(spanCtx, msgs, onText)
	if err != nil {
		c.breaker.Failure()
		span.Fail(err)
		return nil, fmt.Errorf("%w: %v", ErrCompletion, err)
	}
	c.breaker.Success()

	span.SetOutput(turn.Text)
	span.SetUsage(turn.Usage.InputTokens, turn.Usage.OutputTokens)
	span.Succeed()

	c.logger.Debug("completion step finished",
		"text_length", len(turn.Text),
		"tool_calls", len(turn.ToolCalls),
		"input_tokens", turn.Usage.InputTokens,
		"output_tokens", turn.Usage.OutputTokens,
	)
	return turn, nil
}

// assistantTurn converts a completion Turn into the assistant history
// message that precedes its tool results.
func assistantTurn(turn *Turn) Message {
	parts := make([]Part, 0, len(turn.ToolCalls)+1)
	if turn.Text != "" {
		parts = append(parts, Part{Kind: PartText, Text: turn.Text})
	}
	for i := range turn.ToolCalls {
		parts = append(parts, Part{Kind: PartToolCall, ToolCall: &turn.ToolCalls[i]})
	}
	return Message{Role: RoleAssistant, Parts: parts}
}
