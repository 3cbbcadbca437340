// Package storetest 向量库实现的通用一致性测试
package storetest

import (
	"context"
	"testing"

	"github.com/fyerfyer/pdf-indexer/internal/models"
	"github.com/fyerfyer/pdf-indexer/internal/vectordb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Dimension 测试向量维度
const Dimension = 4

// Payloads 测试用的三种载荷
var Payloads = []models.Payload{
	{Kind: models.KindParagraph, Content: "Intro text", Page: 1, Ordinal: 1},
	{Kind: models.KindTable, Content: "A | B\n1 | 2", Description: "Table 1 on page 1", Page: 1, Ordinal: 1},
	{Kind: models.KindImage, Description: "Image 1 on page 3", Page: 3, Ordinal: 1},
}

// Run 对一个空的向量库实现执行一致性测试
// collection必须是该库中尚不存在的集合名
func Run(t *testing.T, store vectordb.Store, collection string) {
	ctx := context.Background()

	v1 := []float32{1, 0, 0, 0}
	v2 := []float32{0, 1, 0, 0}
	v3 := []float32{0.7, 0.7, 0.1, 0}

	t.Run("ensure collection is idempotent", func(t *testing.T) {
		require.NoError(t, store.EnsureCollection(ctx, collection, Dimension, vectordb.Cosine))
		require.NoError(t, store.EnsureCollection(ctx, collection, Dimension, vectordb.Cosine))

		n, err := store.Count(ctx, collection)
		require.NoError(t, err)
		assert.Equal(t, 0, n)
	})

	t.Run("upsert batch", func(t *testing.T) {
		err := store.Upsert(ctx, collection, []vectordb.Point{
			{ID: 0, Vector: v1, Payload: Payloads[0]},
			{ID: 1, Vector: v2, Payload: Payloads[1]},
			{ID: 2, Vector: v3, Payload: Payloads[2]},
		})
		require.NoError(t, err)

		n, err := store.Count(ctx, collection)
		require.NoError(t, err)
		assert.Equal(t, 3, n)
	})

	t.Run("empty batch is a no-op", func(t *testing.T) {
		require.NoError(t, store.Upsert(ctx, collection, nil))
	})

	t.Run("search ranks by similarity", func(t *testing.T) {
		results, err := store.Search(ctx, collection, []float32{0.9, 0.1, 0, 0}, 2)
		require.NoError(t, err)
		require.Len(t, results, 2)

		assert.Equal(t, uint64(0), results[0].ID)
		assert.Equal(t, uint64(2), results[1].ID)
		assert.GreaterOrEqual(t, results[0].Score, results[1].Score)
	})

	t.Run("payload round trip", func(t *testing.T) {
		results, err := store.Search(ctx, collection, v2, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, Payloads[1], results[0].Payload)
	})

	t.Run("topK larger than collection", func(t *testing.T) {
		results, err := store.Search(ctx, collection, v1, 10)
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("search is deterministic", func(t *testing.T) {
		first, err := store.Search(ctx, collection, v3, 3)
		require.NoError(t, err)
		second, err := store.Search(ctx, collection, v3, 3)
		require.NoError(t, err)
		assert.Equal(t, ids(first), ids(second))
	})

	t.Run("upsert overwrites same id", func(t *testing.T) {
		updated := models.Payload{Kind: models.KindParagraph, Content: "Rewritten", Page: 2, Ordinal: 1}
		require.NoError(t, store.Upsert(ctx, collection, []vectordb.Point{{ID: 0, Vector: v1, Payload: updated}}))

		n, err := store.Count(ctx, collection)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		results, err := store.Search(ctx, collection, v1, 1)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, updated, results[0].Payload)
	})
}

func ids(results []vectordb.SearchResult) []uint64 {
	out := make([]uint64, len(results))
	for i, r := range results {
		out[i] = r.ID
	}
	return out
}
