// Package tracing wraps every model, embedding and retrieval operation in
// an OpenTelemetry span with typed input/output attributes.
//
// The lifecycle contract is uniform across operations: a span is opened
// with its operation kind and input value before the work runs, the work
// attaches output attributes through the Span handle as it progresses, and
// the span is closed exactly once — either synchronously when the work
// returns, or deferred until an asynchronous producer signals completion
// or failure. Closing is guarded by an atomic compare-and-set so that
// whichever of the success/failure callbacks fires first wins and the
// other becomes a no-op.
//
// Tracing failures never affect request outcome: export is best-effort and
// asynchronous (see exporter.go), and attribute work on dropped spans is
// simply not shipped.
package tracing

import (
	"context"
	"log/slog"
	"strconv"
	"sync/atomic"
	"unicode/utf8"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Kind tags a span with the RAG operation it records. The selective
// sampler records any span carrying one of these kinds.
type Kind string

// Operation kinds.
const (
	KindLLM       Kind = "llm"
	KindEmbedding Kind = "embedding"
	KindRetriever Kind = "retriever"
)

// Span names used by the core operations. The sampler allow-lists these
// in addition to the kind tag, so renaming one here requires updating
// sampler.go.
const (
	SpanChatCompletion     = "chat-completion"
	SpanQueryEmbedding     = "query-embedding"
	SpanBatchEmbedding     = "batch-embedding"
	SpanKnowledgeRetrieval = "knowledge-retrieval"
)

// Attribute keys under the rag.* namespace.
const (
	attrKind          = "rag.operation.kind"
	attrModel         = "rag.model"
	attrInputValue    = "rag.input.value"
	attrInputMime     = "rag.input.mime_type"
	attrOutputValue   = "rag.output.value"
	attrInputTokens   = "rag.usage.input_tokens"
	attrOutputTokens  = "rag.usage.output_tokens"
	attrDimension     = "rag.embedding.dimension"
	attrDocumentCount = "rag.retrieval.document_count"
)

// instrumentationName identifies this library to the TracerProvider.
const instrumentationName = "github.com/koopa0/recall/internal/tracing"

// Tracer opens operation spans against an injected TracerProvider.
// Construct one at startup and pass it to every component that performs
// traced work; there is no ambient global.
type Tracer struct {
	tracer trace.Tracer
	logger *slog.Logger
}

// New creates a Tracer backed by the given provider.
func New(tp trace.TracerProvider, logger *slog.Logger) *Tracer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracer{
		tracer: tp.Tracer(instrumentationName),
		logger: logger,
	}
}

// NewNop creates a Tracer that records nothing. Test use only.
func NewNop() *Tracer {
	return New(noop.NewTracerProvider(), slog.Default())
}

// Start opens a span for one operation and returns a handle the operation
// uses to attach output attributes and, eventually, to close the span.
//
// Callers that complete synchronously should prefer Run. Start exists for
// deferred closure: when the operation's true completion is asynchronous
// relative to the opening call (a streamed completion handed back to the
// transport layer), the producer closes the handle via Succeed or Fail.
func (t *Tracer) Start(ctx context.Context, kind Kind, name, identity, input string) (context.Context, *Span) {
	ctx, span := t.tracer.Start(ctx, name,
		trace.WithAttributes(
			attribute.String(attrKind, string(kind)),
			attribute.String(attrInputValue, input),
			attribute.String(attrInputMime, "text/plain"),
		),
	)
	if identity != "" {
		span.SetAttributes(attribute.String(attrModel, identity))
	}
	return ctx, &Span{span: span}
}

// Run opens a span, invokes op with the span handle, and closes the span
// before returning. On error from op the span records the exception and
// an ERROR status; the error is returned unchanged — Run never swallows
// it. On success the span status is OK.
func (t *Tracer) Run(ctx context.Context, kind Kind, name, identity, input string, op func(context.Context, *Span) error) error {
	ctx, span := t.Start(ctx, kind, name, identity, input)
	if err := op(ctx, span); err != nil {
		span.Fail(err)
		return err
	}
	span.Succeed()
	return nil
}

// Span is a handle on one open operation span. Attribute setters may be
// called until the span is closed; Succeed and Fail each close the span
// at most once between them.
type Span struct {
	span   trace.Span
	closed atomic.Bool
}

// SetOutput records the operation's textual output value.
func (s *Span) SetOutput(v string) {
	s.span.SetAttributes(attribute.String(attrOutputValue, v))
}

// SetUsage records LLM token usage.
func (s *Span) SetUsage(inputTokens, outputTokens int64) {
	s.span.SetAttributes(
		attribute.Int64(attrInputTokens, inputTokens),
		attribute.Int64(attrOutputTokens, outputTokens),
	)
}

// SetDimension records the embedding vector dimensionality.
func (s *Span) SetDimension(d int) {
	s.span.SetAttributes(attribute.Int(attrDimension, d))
}

// SetEmbedding records one (text, vector) pair of a batch, indexed so that
// ingestion of N chunks is fully auditable from the trace alone.
func (s *Span) SetEmbedding(i int, text string, vector []float32) {
	vals := make([]float64, len(vector))
	for j, v := range vector {
		vals[j] = float64(v)
	}
	s.span.SetAttributes(
		attribute.String(embeddingTextKey(i), text),
		attribute.Float64Slice(embeddingVectorKey(i), vals),
	)
}

// SetDocument records one retrieved document with its relevance score.
// Content is truncated to a bounded preview length, never splitting a
// multi-byte rune.
func (s *Span) SetDocument(i int, content string, score float64) {
	const previewLen = 200
	if len(content) > previewLen {
		cut := previewLen
		for cut > 0 && !utf8.RuneStart(content[cut]) {
			cut--
		}
		content = content[:cut]
	}
	s.span.SetAttributes(
		attribute.String(documentContentKey(i), content),
		attribute.Float64(documentScoreKey(i), score),
	)
}

// SetDocumentCount records how many documents a retrieval returned. Zero
// is recorded explicitly so empty result sets are auditable.
func (s *Span) SetDocumentCount(n int) {
	s.span.SetAttributes(attribute.Int(attrDocumentCount, n))
}

// Succeed marks the span OK and closes it. Returns false if the span was
// already closed by an earlier Succeed or Fail.
func (s *Span) Succeed() bool {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}
	s.span.SetStatus(codes.Ok, "")
	s.span.End()
	return true
}

// Fail records err as an exception, marks the span ERROR with the error's
// message, and closes it. Returns false if the span was already closed.
func (s *Span) Fail(err error) bool {
	if !s.closed.CompareAndSwap(false, true) {
		return false
	}
	if err != nil {
		s.span.RecordError(err)
		s.span.SetStatus(codes.Error, err.Error())
	} else {
		s.span.SetStatus(codes.Error, "unknown error")
	}
	s.span.End()
	return true
}

func embeddingTextKey(i int) string   { return "rag.embedding." + strconv.Itoa(i) + ".text" }
func embeddingVectorKey(i int) string { return "rag.embedding." + strconv.Itoa(i) + ".vector" }
func documentContentKey(i int) string { return "rag.document." + strconv.Itoa(i) + ".content" }
func documentScoreKey(i int) string   { return "rag.document." + strconv.Itoa(i) + ".score" }
