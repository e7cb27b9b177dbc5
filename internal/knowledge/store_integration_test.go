package knowledge_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koopa0/recall/internal/knowledge"
	"github.com/koopa0/recall/internal/log"
	"github.com/koopa0/recall/internal/testutil"
)

// unitVector builds a 1536-dimension vector with a single 1.0 component,
// matching the embeddings table dimension.
func unitVector(axis int) []float32 {
	v := make([]float32, 1536)
	v[axis] = 1
	return v
}

// blendVector mixes two axes; cosine distance to unitVector(a) grows as
// weight shifts toward b.
func blendVector(a, b int, weightA, weightB float32) []float32 {
	v := make([]float32, 1536)
	v[a] = weightA
	v[b] = weightB
	return v
}

func TestStoreIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping container test in short mode")
	}

	testDB, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	store := knowledge.NewStore(testDB.Pool, log.NewNop())

	// Axis 0 is the query direction; rows get progressively farther.
	rows := []knowledge.Embedded{
		{Content: "exact match", Vector: unitVector(0)},
		{Content: "close match", Vector: blendVector(0, 1, 0.9, 0.1)},
		{Content: "loose match", Vector: blendVector(0, 1, 0.6, 0.4)},
		{Content: "orthogonal", Vector: unitVector(1)},
	}
	require.NoError(t, store.AppendMany(ctx, rows))

	t.Run("ordered by increasing distance", func(t *testing.T) {
		matches, err := store.Nearest(ctx, unitVector(0), 10, 0.99)
		require.NoError(t, err)
		require.Len(t, matches, 3, "orthogonal row is past the threshold")

		assert.Equal(t, "exact match", matches[0].Content)
		assert.Equal(t, "close match", matches[1].Content)
		assert.Equal(t, "loose match", matches[2].Content)
		assert.Less(t, matches[0].Distance, matches[1].Distance)
		assert.Less(t, matches[1].Distance, matches[2].Distance)
	})

	t.Run("limit caps the result set", func(t *testing.T) {
		matches, err := store.Nearest(ctx, unitVector(0), 2, 0.99)
		require.NoError(t, err)
		require.Len(t, matches, 2)
		assert.Equal(t, "exact match", matches[0].Content)
	})

	t.Run("threshold excludes distant rows", func(t *testing.T) {
		matches, err := store.Nearest(ctx, unitVector(0), 10, 0.05)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, "exact match", matches[0].Content)
	})

	t.Run("no rows within threshold", func(t *testing.T) {
		matches, err := store.Nearest(ctx, unitVector(2), 10, 0.1)
		require.NoError(t, err)
		assert.Empty(t, matches)
	})

	t.Run("failed batch stores nothing", func(t *testing.T) {
		var before int
		require.NoError(t, testDB.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&before))

		// The second row's dimension violates the column type, so the
		// insert fails mid-batch; the transaction must roll back the
		// first row too.
		err := store.AppendMany(ctx, []knowledge.Embedded{
			{Content: "valid row", Vector: unitVector(0)},
			{Content: "wrong dimension", Vector: []float32{1, 2, 3}},
		})
		require.Error(t, err)

		var after int
		require.NoError(t, testDB.Pool.QueryRow(ctx, "SELECT COUNT(*) FROM embeddings").Scan(&after))
		assert.Equal(t, before, after)
	})
}
