// Package app wires configuration, storage, the model provider, the
// tracing pipeline and the orchestrator into a running application.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/recall/api"
	"github.com/koopa0/recall/db"
	"github.com/koopa0/recall/internal/chat"
	"github.com/koopa0/recall/internal/config"
	"github.com/koopa0/recall/internal/database"
	"github.com/koopa0/recall/internal/knowledge"
	"github.com/koopa0/recall/internal/provider"
	"github.com/koopa0/recall/internal/tracing"
)

// App holds the assembled application.
type App struct {
	Config    *config.Config
	Logger    *slog.Logger
	Pool      *pgxpool.Pool
	Chat      *chat.Chat
	Knowledge *knowledge.System
	Server    *api.Server

	shutdownTracing func(context.Context) error
}

// Setup builds the full dependency graph: migrations, database pool,
// tracing pipeline, OpenAI provider, knowledge system, orchestrator and
// HTTP server. Callers own Close.
func Setup(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.NewPool(ctx, cfg.DatabaseURL, logger)
	if err != nil {
		return nil, err
	}

	tp, shutdownTracing, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.OTLPEndpoint,
		ServiceName: cfg.ServiceName,
		Environment: cfg.Environment,
	}, logger)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("setting up tracing: %w", err)
	}
	tracer := tracing.New(tp, logger)

	// Once tracing is up, every failure path must stop its batch
	// processor too, not just close the pool.
	fail := func(err error) (*App, error) {
		if sErr := shutdownTracing(ctx); sErr != nil {
			logger.Warn("failed to shut down tracing pipeline", "error", sErr)
		}
		pool.Close()
		return nil, err
	}

	ai := provider.NewOpenAI(cfg.Model, cfg.EmbeddingModel, provider.WithAPIKey(cfg.OpenAIAPIKey))

	store := knowledge.NewStore(pool, logger)
	kb, err := knowledge.NewSystem(knowledge.Config{
		Embedder:    ai,
		Store:       store,
		Tracer:      tracer,
		Model:       cfg.EmbeddingModel,
		TopK:        cfg.TopK,
		MaxDistance: cfg.MaxDistance,
		Logger:      logger,
	})
	if err != nil {
		return fail(fmt.Errorf("building knowledge system: %w", err))
	}

	orchestrator, err := chat.New(chat.Config{
		Completer: ai,
		Knowledge: kb,
		Tracer:    tracer,
		Logger:    logger,
		Model:     cfg.Model,
		MaxSteps:  cfg.MaxSteps,
	})
	if err != nil {
		return fail(fmt.Errorf("building orchestrator: %w", err))
	}

	return &App{
		Config:          cfg,
		Logger:          logger,
		Pool:            pool,
		Chat:            orchestrator,
		Knowledge:       kb,
		Server:          api.NewServer(orchestrator, kb, pool, logger),
		shutdownTracing: shutdownTracing,
	}, nil
}

// Close releases resources in reverse dependency order, flushing pending
// spans before the pool closes.
func (a *App) Close(ctx context.Context) {
	if a.shutdownTracing != nil {
		if err := a.shutdownTracing(ctx); err != nil {
			a.Logger.Warn("failed to flush tracing pipeline", "error", err)
		}
	}
	if a.Pool != nil {
		a.Pool.Close()
	}
}
