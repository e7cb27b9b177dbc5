package knowledge

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// Match is one stored row returned by a nearest-neighbor query. Distance
// is the cosine distance to the query vector; lower is more relevant.
type Match struct {
	Content  string
	Distance float64
}

// queryTimeout bounds a single vector search so a slow query cannot block
// the whole chat request.
const queryTimeout = 10 * time.Second

// Store persists (content, vector) rows in PostgreSQL and answers
// nearest-neighbor queries via pgvector's cosine distance operator.
//
// The embeddings table is append-only: rows are never updated in place,
// so concurrent ingestion and retrieval need no locking beyond what
// PostgreSQL provides.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// NewStore creates a Store backed by the given pool.
func NewStore(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// AppendMany inserts all (content, vector) rows in one transaction: a
// failure on any row stores nothing. Rows are immutable once written.
func (s *Store) AppendMany(ctx context.Context, rows []Embedded) error {
	const q = `INSERT INTO embeddings (id, content, embedding) VALUES ($1, $2, $3)`

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(q, uuid.New(), row.Content, pgvector.NewVector(row.Vector))
	}

	results := tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("inserting embedding row: %w", err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("closing insert batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing insert transaction: %w", err)
	}

	s.logger.Debug("appended embedding rows", "count", len(rows))
	return nil
}

// Nearest returns up to limit rows whose cosine distance to vector is
// below maxDistance, ordered by increasing distance (decreasing
// relevance).
func (s *Store) Nearest(ctx context.Context, vector []float32, limit int, maxDistance float64) ([]Match, error) {
	const q = `
		SELECT content, embedding <=> $1 AS distance
		FROM embeddings
		WHERE embedding <=> $1 < $2
		ORDER BY distance
		LIMIT $3`

	queryCtx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	rows, err := s.pool.Query(queryCtx, q, pgvector.NewVector(vector), maxDistance, limit)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var matches []Match
	for rows.Next() {
		var m Match
		if err := rows.Scan(&m.Content, &m.Distance); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		matches = append(matches, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("reading search rows: %w", err)
	}

	return matches, nil
}
