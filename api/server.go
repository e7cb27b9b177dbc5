// Package api provides the HTTP REST API for Recall.
//
// Endpoints:
//
//	POST /api/chat       - chat completion (batch JSON, or SSE when the
//	                       client sends Accept: text/event-stream)
//	POST /api/resources  - direct knowledge-base ingestion
//	GET  /health         - liveness probe
//	GET  /ready          - readiness probe (database ping)
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: HTTP middleware (logging, recovery)
//   - health.go: health check endpoints
//   - chat.go: chat endpoint (batch + SSE)
//   - resources.go: ingestion endpoint
//   - response.go: JSON response helpers
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koopa0/recall/internal/chat"
	"github.com/koopa0/recall/internal/knowledge"
)

const (
	// DefaultAddr is the default address for the HTTP server.
	DefaultAddr = "127.0.0.1:3400"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout is the timeout for reading request headers.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response. Chat
	// requests run multiple model/tool round trips, so this is generous.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the maximum wait for the next request on keep-alive
	// connections.
	IdleTimeout = 120 * time.Second
)

// Server is the HTTP server for Recall's REST API.
type Server struct {
	mux    *http.ServeMux
	logger *slog.Logger

	health    *HealthHandler
	chat      *ChatHandler
	resources *ResourceHandler
}

// NewServer creates an HTTP server with all routes registered.
func NewServer(orchestrator *chat.Chat, knowledgeBase *knowledge.System, pool *pgxpool.Pool, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		mux:       mux,
		logger:    logger,
		health:    NewHealthHandler(pool, logger),
		chat:      NewChatHandler(orchestrator, logger),
		resources: NewResourceHandler(knowledgeBase, logger),
	}

	s.health.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.resources.RegisterRoutes(mux)

	return s
}

// Handler returns the HTTP handler with middleware applied.
// Middleware order: recovery → logging → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		s.recoveryMiddleware,
		s.loggingMiddleware,
	)
}

// Run starts the HTTP server and blocks until the context is cancelled,
// then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
