package knowledge

import (
	"context"
	"log/slog"
	"strings"

	"github.com/koopa0/recall/internal/tracing"
)

// Sentinel strings returned by Retrieve in place of raised errors. Both
// are valid tool output: the retrieval result is text consumed by a
// language model, and aborting the conversation turn for an empty or
// transient condition would be worse than telling the model the tool
// found nothing useful.
const (
	// NoInformation is returned when no stored chunk crosses the
	// relevance threshold.
	NoInformation = "no information found"

	// RetrievalFailed is returned when the embedding or storage layer
	// fails during retrieval.
	RetrievalFailed = "retrieval error"
)

// Retrieval defaults: at most TopK chunks, all with cosine distance below
// MaxDistance. The cosine-distance framing is used consistently
// throughout (distance = 1 - similarity, so 0.7 distance corresponds to
// the 0.3 similarity floor).
const (
	DefaultTopK        = 4
	DefaultMaxDistance = 0.7
)

// VectorSearcher answers nearest-neighbor queries. *Store implements it;
// tests substitute fakes.
type VectorSearcher interface {
	Nearest(ctx context.Context, vector []float32, limit int, maxDistance float64) ([]Match, error)
}

// Retriever ranks stored chunks against a query and returns the matched
// contents as tool text.
type Retriever struct {
	engine      *Engine
	store       VectorSearcher
	tracer      *tracing.Tracer
	topK        int
	maxDistance float64
	logger      *slog.Logger
}

// NewRetriever creates a Retriever. Non-positive topK and maxDistance
// fall back to the package defaults.
func NewRetriever(engine *Engine, store VectorSearcher, tracer *tracing.Tracer, topK int, maxDistance float64, logger *slog.Logger) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	if maxDistance <= 0 {
		maxDistance = DefaultMaxDistance
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{
		engine:      engine,
		store:       store,
		tracer:      tracer,
		topK:        topK,
		maxDistance: maxDistance,
		logger:      logger,
	}
}

// Retrieve embeds the query, finds the most similar stored chunks above
// the relevance threshold, and returns their contents joined by newlines.
// The whole operation is wrapped in one retriever span whose input is the
// raw query and whose output records every matched document with its
// score.
//
// Retrieve never returns an error: failures are recorded on the span and
// degrade to the RetrievalFailed sentinel, empty result sets to the
// NoInformation sentinel.
func (r *Retriever) Retrieve(ctx context.Context, query string) string {
	var answer string
	err := r.tracer.Run(ctx, tracing.KindRetriever, tracing.SpanKnowledgeRetrieval, "", query,
		func(ctx context.Context, span *tracing.Span) error {
			vector, err := r.engine.EmbedQuery(ctx, query)
			if err != nil {
				return err
			}

			matches, err := r.store.Nearest(ctx, vector, r.topK, r.maxDistance)
			if err != nil {
				return err
			}

			span.SetDocumentCount(len(matches))
			if len(matches) == 0 {
				answer = NoInformation
				return nil
			}

			contents := make([]string, len(matches))
			for i, m := range matches {
				span.SetDocument(i, m.Content, m.Distance)
				contents[i] = m.Content
			}
			answer = strings.Join(contents, "\n")
			span.SetOutput(answer)
			return nil
		})
	if err != nil {
		r.logger.Warn("retrieval degraded", "error", err, "query_length", len(query))
		return RetrievalFailed
	}
	return answer
}
