package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/koopa0/recall/internal/tracing"
)

// ErrEmbedding indicates the embedding capability errored or returned a
// malformed result (empty vector, wrong batch length).
var ErrEmbedding = errors.New("embedding failed")

// batchSeparator joins chunk texts into the batch-embedding span's input
// value.
const batchSeparator = "\n"

// Embedder is the external embedding capability. Implementations must be
// order-preserving: EmbedMany returns exactly one vector per input text
// or an error.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
}

// Embedded pairs a chunk's content with its vector.
type Embedded struct {
	Content string
	Vector  []float32
}

// Engine produces fixed-dimension vectors for one query string or a batch
// of chunks, emitting an embedding span per call. The model identity is
// fixed per deployment, so vectors from different identities are never
// mixed by construction.
type Engine struct {
	embedder Embedder
	tracer   *tracing.Tracer
	model    string
	logger   *slog.Logger
}

// NewEngine creates an embedding engine bound to one model identity.
func NewEngine(embedder Embedder, tracer *tracing.Tracer, model string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		embedder: embedder,
		tracer:   tracer,
		model:    model,
		logger:   logger,
	}
}

// EmbedQuery embeds a single query string. Embedded newlines are
// collapsed to spaces before the capability call; the span input is the
// normalized text and its output records the vector and dimensionality.
func (e *Engine) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	normalized := strings.ReplaceAll(text, "\n", " ")

	var vector []float32
	err := e.tracer.Run(ctx, tracing.KindEmbedding, tracing.SpanQueryEmbedding, e.model, normalized,
		func(ctx context.Context, span *tracing.Span) error {
			v, err := e.embedder.Embed(ctx, normalized)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrEmbedding, err)
			}
			if len(v) == 0 {
				return fmt.Errorf("%w: empty vector returned", ErrEmbedding)
			}
			span.SetEmbedding(0, normalized, v)
			span.SetDimension(len(v))
			vector = v
			return nil
		})
	if err != nil {
		return nil, err
	}
	return vector, nil
}

// EmbedBatch embeds all chunks in one capability call to control request
// count. The call fails atomically: a result that is not one vector per
// chunk returns ErrEmbedding and no partial results. The span records
// every (text, vector) pair.
func (e *Engine) EmbedBatch(ctx context.Context, chunks []string) ([]Embedded, error) {
	var out []Embedded
	err := e.tracer.Run(ctx, tracing.KindEmbedding, tracing.SpanBatchEmbedding, e.model, strings.Join(chunks, batchSeparator),
		func(ctx context.Context, span *tracing.Span) error {
			vectors, err := e.embedder.EmbedMany(ctx, chunks)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrEmbedding, err)
			}
			if len(vectors) != len(chunks) {
				return fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbedding, len(vectors), len(chunks))
			}

			embedded := make([]Embedded, len(chunks))
			for i, chunk := range chunks {
				if len(vectors[i]) == 0 {
					return fmt.Errorf("%w: empty vector at index %d", ErrEmbedding, i)
				}
				span.SetEmbedding(i, chunk, vectors[i])
				embedded[i] = Embedded{Content: chunk, Vector: vectors[i]}
			}
			if len(embedded) > 0 {
				span.SetDimension(len(embedded[0].Vector))
			}
			out = embedded
			return nil
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}
