package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/koopa0/recall/internal/tracing"
)

// ErrEmptyResource indicates an AddResource call with no usable content.
var ErrEmptyResource = errors.New("resource content is empty")

// RowAppender persists a batch of (content, vector) rows atomically: a
// failure stores nothing. *Store implements it; tests substitute fakes.
type RowAppender interface {
	AppendMany(ctx context.Context, rows []Embedded) error
}

// System is the knowledge base facade the orchestrator binds its tools
// to: AddResource for ingestion, Retrieve for similarity search.
type System struct {
	engine    *Engine
	store     RowAppender
	retriever *Retriever
	logger    *slog.Logger
}

// Config assembles a System.
type Config struct {
	Embedder Embedder
	Store    interface {
		RowAppender
		VectorSearcher
	}
	Tracer *tracing.Tracer
	Model  string

	// TopK and MaxDistance tune retrieval; zero values use the package
	// defaults.
	TopK        int
	MaxDistance float64

	Logger *slog.Logger
}

// NewSystem wires the embedding engine, store and retriever together.
func NewSystem(cfg Config) (*System, error) {
	if cfg.Embedder == nil {
		return nil, errors.New("embedder is required")
	}
	if cfg.Store == nil {
		return nil, errors.New("store is required")
	}
	if cfg.Tracer == nil {
		return nil, errors.New("tracer is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	engine := NewEngine(cfg.Embedder, cfg.Tracer, cfg.Model, logger)
	return &System{
		engine:    engine,
		store:     cfg.Store,
		retriever: NewRetriever(engine, cfg.Store, cfg.Tracer, cfg.TopK, cfg.MaxDistance, logger),
		logger:    logger,
	}, nil
}

// AddResource chunks content, embeds the whole batch in one call, and
// stores every (chunk, vector) row in one atomic append. It returns the
// number of chunks stored.
//
// Ingestion is all-or-nothing end to end: a malformed batch result or a
// storage failure stores no rows. A failure here is fatal to the calling
// tool invocation and is reported back to the model as a failed tool
// result.
func (s *System) AddResource(ctx context.Context, content string) (int, error) {
	chunks := Chunks(content)
	if len(chunks) == 0 {
		return 0, ErrEmptyResource
	}

	embedded, err := s.engine.EmbedBatch(ctx, chunks)
	if err != nil {
		return 0, err
	}

	if err := s.store.AppendMany(ctx, embedded); err != nil {
		return 0, fmt.Errorf("storing chunks: %w", err)
	}

	s.logger.Info("resource ingested", "chunks", len(embedded))
	return len(embedded), nil
}

// Retrieve answers a question from the knowledge base. See
// Retriever.Retrieve for the sentinel contract.
func (s *System) Retrieve(ctx context.Context, question string) string {
	return s.retriever.Retrieve(ctx, question)
}
