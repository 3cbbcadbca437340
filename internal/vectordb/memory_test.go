package vectordb_test

import (
	"context"
	"testing"

	"github.com/fyerfyer/pdf-indexer/internal/models"
	"github.com/fyerfyer/pdf-indexer/internal/vectordb"
	"github.com/fyerfyer/pdf-indexer/internal/vectordb/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestMemoryStore 测试内存向量库
func TestMemoryStore(t *testing.T) {
	store, err := vectordb.NewStore(vectordb.Config{Type: "memory"})
	require.NoError(t, err)
	defer store.Close()

	storetest.Run(t, store, "pdf_metadata_collection")
}

func TestMemoryStoreErrors(t *testing.T) {
	ctx := context.Background()
	store, err := vectordb.NewMemoryStore(vectordb.Config{})
	require.NoError(t, err)

	t.Run("unknown collection", func(t *testing.T) {
		_, err := store.Search(ctx, "missing", []float32{1, 0}, 1)
		assert.ErrorIs(t, err, vectordb.ErrCollectionNotFound)

		err = store.Upsert(ctx, "missing", []vectordb.Point{{ID: 1, Vector: []float32{1, 0}}})
		assert.ErrorIs(t, err, vectordb.ErrCollectionNotFound)
	})

	t.Run("dimension conflict", func(t *testing.T) {
		require.NoError(t, store.EnsureCollection(ctx, "dims", 2, vectordb.Cosine))
		err := store.EnsureCollection(ctx, "dims", 3, vectordb.Cosine)
		assert.ErrorIs(t, err, vectordb.ErrInvalidDimension)
	})

	t.Run("bad vector rejects whole batch", func(t *testing.T) {
		require.NoError(t, store.EnsureCollection(ctx, "batch", 2, vectordb.Cosine))
		err := store.Upsert(ctx, "batch", []vectordb.Point{
			{ID: 1, Vector: []float32{1, 0}},
			{ID: 2, Vector: []float32{1, 0, 0}},
		})
		assert.ErrorIs(t, err, vectordb.ErrInvalidDimension)

		n, err := store.Count(ctx, "batch")
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("invalid collection name", func(t *testing.T) {
		err := store.EnsureCollection(ctx, "has space", 2, vectordb.Cosine)
		assert.ErrorIs(t, err, vectordb.ErrInvalidCollection)
	})

	t.Run("unknown store type", func(t *testing.T) {
		_, err := vectordb.NewStore(vectordb.Config{Type: "nope"})
		assert.Error(t, err)
	})
}

func TestMemoryStoreTiesOrderedByID(t *testing.T) {
	ctx := context.Background()
	store, err := vectordb.NewMemoryStore(vectordb.Config{})
	require.NoError(t, err)
	require.NoError(t, store.EnsureCollection(ctx, "ties", 2, vectordb.Cosine))

	p := models.Payload{Kind: models.KindParagraph, Content: "same", Page: 1, Ordinal: 1}
	require.NoError(t, store.Upsert(ctx, "ties", []vectordb.Point{
		{ID: 7, Vector: []float32{1, 1}, Payload: p},
		{ID: 3, Vector: []float32{2, 2}, Payload: p},
		{ID: 5, Vector: []float32{1, 1}, Payload: p},
	}))

	results, err := store.Search(ctx, "ties", []float32{1, 1}, 3)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []uint64{3, 5, 7}, []uint64{results[0].ID, results[1].ID, results[2].ID})
}
