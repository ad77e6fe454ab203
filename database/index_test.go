package database

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChangeIndexType(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	entitiesCache, err := NewEntitiesCacheDBHandler(ctx, database, testEmbeddingDim, true)
	require.NoError(t, err)
	chunks, err := NewChunksDBHandler(ctx, database, testEmbeddingDim, true)
	require.NoError(t, err)

	indexDef := func(t *testing.T, index string) string {
		var def string
		err := database.Conn().QueryRow(`SELECT indexdef FROM pg_indexes WHERE indexname = $1;`, index).Scan(&def)
		require.NoError(t, err)
		return def
	}

	t.Run("Change entity cache index to IVFFlat with custom params", func(t *testing.T) {
		err := entitiesCache.ChangeIndexType(ctx, "ivfflat", IndexParams{Lists: 10})
		require.NoError(t, err)
		assert.Contains(t, indexDef(t, "idx_entities_cache_embedding"), "ivfflat")
	})

	t.Run("Change entity cache index to HNSW with default params", func(t *testing.T) {
		err := entitiesCache.ChangeIndexType(ctx, "hnsw", IndexParams{})
		require.NoError(t, err)
		assert.Contains(t, indexDef(t, "idx_entities_cache_embedding"), "hnsw")
	})

	t.Run("Change chunk index to HNSW with custom params", func(t *testing.T) {
		err := chunks.ChangeIndexType(ctx, "hnsw", IndexParams{M: 8, EfConstruction: 32})
		require.NoError(t, err)
		assert.Contains(t, indexDef(t, "idx_chunks_embedding"), "m='8'")
	})

	t.Run("Change index with unsupported index type", func(t *testing.T) {
		err := chunks.ChangeIndexType(ctx, "btree", IndexParams{})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "unsupported index type")
	})

	t.Run("Change index with expired context", func(t *testing.T) {
		expired, cancel := context.WithTimeout(ctx, time.Nanosecond)
		defer cancel()
		time.Sleep(time.Millisecond)

		err := chunks.ChangeIndexType(expired, "hnsw", IndexParams{})
		assert.Error(t, err)
	})
}

func TestIndexStatement(t *testing.T) {
	t.Run("IVFFlat default lists", func(t *testing.T) {
		stmt, err := indexStatement("chunks", "idx", "ivfflat", IndexParams{})
		require.NoError(t, err)
		assert.Contains(t, stmt, "lists = 100")
	})

	t.Run("HNSW custom params", func(t *testing.T) {
		stmt, err := indexStatement("chunks", "idx", "hnsw", IndexParams{M: 4, EfConstruction: 10})
		require.NoError(t, err)
		assert.Contains(t, stmt, "m = 4, ef_construction = 10")
	})
}
