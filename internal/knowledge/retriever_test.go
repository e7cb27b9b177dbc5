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

// fakeSearcher returns scripted matches and records the query parameters
// it received.
type fakeSearcher struct {
	matches []Match
	err     error

	gotLimit       int
	gotMaxDistance float64
}

func (f *fakeSearcher) Nearest(ctx context.Context, vector []float32, limit int, maxDistance float64) ([]Match, error) {
	f.gotLimit = limit
	f.gotMaxDistance = maxDistance
	if f.err != nil {
		return nil, f.err
	}
	if len(f.matches) > limit {
		return f.matches[:limit], nil
	}
	return f.matches, nil
}

func newTestRetriever(embedder Embedder, searcher VectorSearcher, topK int, maxDistance float64) *Retriever {
	engine := NewEngine(embedder, tracing.NewNop(), "test-embedder", log.NewNop())
	return NewRetriever(engine, searcher, tracing.NewNop(), topK, maxDistance, log.NewNop())
}

func TestRetrieve(t *testing.T) {
	embedder := &fakeEmbedder{vectors: [][]float32{{0.5, 0.5}}}

	t.Run("matches joined by newlines in relevance order", func(t *testing.T) {
		searcher := &fakeSearcher{matches: []Match{
			{Content: "Cats purr", Distance: 0.1},
			{Content: "Cats nap", Distance: 0.3},
		}}
		r := newTestRetriever(embedder, searcher, 0, 0)

		got := r.Retrieve(context.Background(), "what do cats do")
		assert.Equal(t, "Cats purr\nCats nap", got)
	})

	t.Run("defaults applied to limit and threshold", func(t *testing.T) {
		searcher := &fakeSearcher{}
		r := newTestRetriever(embedder, searcher, 0, 0)

		r.Retrieve(context.Background(), "anything")
		assert.Equal(t, DefaultTopK, searcher.gotLimit)
		assert.Equal(t, DefaultMaxDistance, searcher.gotMaxDistance)
	})

	t.Run("configured limit caps results", func(t *testing.T) {
		searcher := &fakeSearcher{matches: []Match{
			{Content: "a", Distance: 0.1},
			{Content: "b", Distance: 0.2},
			{Content: "c", Distance: 0.3},
		}}
		r := newTestRetriever(embedder, searcher, 2, 0.7)

		got := r.Retrieve(context.Background(), "q")
		assert.Equal(t, "a\nb", got)
		assert.Equal(t, 2, searcher.gotLimit)
	})

	t.Run("no matches returns sentinel", func(t *testing.T) {
		searcher := &fakeSearcher{}
		r := newTestRetriever(embedder, searcher, 0, 0)

		got := r.Retrieve(context.Background(), "unknown topic")
		assert.Equal(t, NoInformation, got)
	})

	t.Run("embedding failure degrades to sentinel", func(t *testing.T) {
		failing := &fakeEmbedder{err: errors.New("api down")}
		r := newTestRetriever(failing, &fakeSearcher{}, 0, 0)

		got := r.Retrieve(context.Background(), "q")
		assert.Equal(t, RetrievalFailed, got)
	})

	t.Run("search failure degrades to sentinel", func(t *testing.T) {
		searcher := &fakeSearcher{err: errors.New("connection reset")}
		r := newTestRetriever(embedder, searcher, 0, 0)

		got := r.Retrieve(context.Background(), "q")
		assert.Equal(t, RetrievalFailed, got)
	})
}

func TestRetrieveNeverPanicsOnNilMatches(t *testing.T) {
	embedder := &fakeEmbedder{vectors: [][]float32{{1}}}
	r := newTestRetriever(embedder, &fakeSearcher{matches: nil}, 0, 0)

	require.NotPanics(t, func() {
		got := r.Retrieve(context.Background(), "q")
		assert.Equal(t, NoInformation, got)
	})
}
