package knowledge

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/recall/internal/log"
	"github.com/koopa0/recall/internal/tracing"
)

// fakeStore implements both RowAppender and VectorSearcher in memory.
type fakeStore struct {
	fakeSearcher
	rows        []Embedded
	appendErr   error
	appendCalls int
}

func (f *fakeStore) AppendMany(ctx context.Context, rows []Embedded) error {
	f.appendCalls++
	if f.appendErr != nil {
		return f.appendErr
	}
	f.rows = append(f.rows, rows...)
	return nil
}

func newTestSystem(t *testing.T, embedder Embedder, store *fakeStore) *System {
	t.Helper()
	system, err := NewSystem(Config{
		Embedder: embedder,
		Store:    store,
		Tracer:   tracing.NewNop(),
		Model:    "test-embedder",
		Logger:   log.NewNop(),
	})
	require.NoError(t, err)
	return system
}

func TestNewSystemValidation(t *testing.T) {
	embedder := &fakeEmbedder{}
	store := &fakeStore{}

	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing embedder", Config{Store: store, Tracer: tracing.NewNop()}},
		{"missing store", Config{Embedder: embedder, Tracer: tracing.NewNop()}},
		{"missing tracer", Config{Embedder: embedder, Store: store}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewSystem(tt.cfg)
			assert.Error(t, err)
		})
	}
}

func TestAddResource(t *testing.T) {
	t.Run("chunks stored with their vectors", func(t *testing.T) {
		embedder := &fakeEmbedder{vectors: [][]float32{{1, 0}, {0, 1}}}
		store := &fakeStore{}
		system := newTestSystem(t, embedder, store)

		n, err := system.AddResource(context.Background(), "Cats purr. Dogs bark.")
		require.NoError(t, err)
		assert.Equal(t, 2, n)
		require.Len(t, store.rows, 2)
		assert.Equal(t, "Cats purr", store.rows[0].Content)
		assert.Equal(t, []float32{1, 0}, store.rows[0].Vector)
		assert.Equal(t, "Dogs bark", store.rows[1].Content)
		assert.Equal(t, []float32{0, 1}, store.rows[1].Vector)
	})

	t.Run("empty content rejected before embedding", func(t *testing.T) {
		embedder := &fakeEmbedder{}
		store := &fakeStore{}
		system := newTestSystem(t, embedder, store)

		_, err := system.AddResource(context.Background(), "  ...  ")
		assert.ErrorIs(t, err, ErrEmptyResource)
		assert.Empty(t, embedder.gotText)
		assert.Empty(t, store.rows)
	})

	t.Run("embedding failure stores nothing", func(t *testing.T) {
		embedder := &fakeEmbedder{err: errors.New("api down")}
		store := &fakeStore{}
		system := newTestSystem(t, embedder, store)

		_, err := system.AddResource(context.Background(), "Cats purr. Dogs bark.")
		assert.ErrorIs(t, err, ErrEmbedding)
		assert.Empty(t, store.rows)
	})

	t.Run("store failure surfaces", func(t *testing.T) {
		embedder := &fakeEmbedder{vectors: [][]float32{{1}}}
		store := &fakeStore{appendErr: errors.New("disk full")}
		system := newTestSystem(t, embedder, store)

		_, err := system.AddResource(context.Background(), "One fact.")
		assert.Error(t, err)
	})

	t.Run("all chunks stored in one atomic append", func(t *testing.T) {
		embedder := &fakeEmbedder{vectors: [][]float32{{1, 0}, {0, 1}, {1, 1}}}
		store := &fakeStore{}
		system := newTestSystem(t, embedder, store)

		_, err := system.AddResource(context.Background(), "A. B. C.")
		require.NoError(t, err)
		assert.Equal(t, 1, store.appendCalls)
		assert.Len(t, store.rows, 3)
	})

	t.Run("storage failure on a multi-chunk resource leaves no rows", func(t *testing.T) {
		embedder := &fakeEmbedder{vectors: [][]float32{{1, 0}, {0, 1}}}
		store := &fakeStore{appendErr: errors.New("constraint violation")}
		system := newTestSystem(t, embedder, store)

		_, err := system.AddResource(context.Background(), "Cats purr. Dogs bark.")
		assert.Error(t, err)
		assert.Empty(t, store.rows)
		assert.Equal(t, 1, store.appendCalls, "ingestion must not fall back to per-row writes")
	})
}

func TestSystemRetrieveDelegates(t *testing.T) {
	embedder := &fakeEmbedder{vectors: [][]float32{{1}}}
	store := &fakeStore{fakeSearcher: fakeSearcher{matches: []Match{{Content: "Cats purr", Distance: 0.1}}}}
	system := newTestSystem(t, embedder, store)

	got := system.Retrieve(context.Background(), "what do cats do")
	assert.Equal(t, "Cats purr", got)
}
