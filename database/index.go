package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/siherrmann/loregraph/helper"
)

// IndexParams are the optional parameters of a vector index.
//   - For HNSW: M (default 16), EfConstruction (default 64)
//   - For IVFFlat: Lists (default 100)
type IndexParams struct {
	M              int
	EfConstruction int
	Lists          int
}

// ChangeIndexType changes the vector index of the entity cache between HNSW and IVFFlat.
// indexType: "hnsw" or "ivfflat"
func (h *EntitiesCacheDBHandler) ChangeIndexType(ctx context.Context, indexType string, params IndexParams) error {
	return changeIndexType(ctx, h.db, "entities_cache", "idx_entities_cache_embedding", indexType, params)
}

// ChangeIndexType changes the vector index of the chunks between HNSW and IVFFlat.
// indexType: "hnsw" or "ivfflat"
func (h *ChunksDBHandler) ChangeIndexType(ctx context.Context, indexType string, params IndexParams) error {
	return changeIndexType(ctx, h.db, "chunks", "idx_chunks_embedding", indexType, params)
}

func changeIndexType(ctx context.Context, db *helper.Database, table string, index string, indexType string, params IndexParams) error {
	createIndexSQL, err := indexStatement(table, index, indexType, params)
	if err != nil {
		return helper.NewError("change index type", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	conn := db.Conn()
	if conn == nil {
		return helper.NewError("change index type", sql.ErrConnDone)
	}

	_, err = conn.ExecContext(ctx, fmt.Sprintf(`DROP INDEX IF EXISTS %s;`, index))
	if err != nil {
		return helper.NewError("drop index", err)
	}

	db.Logger.Info("Dropped existing vector index", "index", index)

	_, err = conn.ExecContext(ctx, createIndexSQL)
	if err != nil {
		return helper.NewError("create index", err)
	}

	db.Logger.Info(fmt.Sprintf("Created %s index with params: %+v", indexType, params), "index", index)

	return nil
}

func indexStatement(table string, index string, indexType string, params IndexParams) (string, error) {
	switch indexType {
	case "hnsw":
		m := 16
		efConstruction := 64
		if params.M > 0 {
			m = params.M
		}
		if params.EfConstruction > 0 {
			efConstruction = params.EfConstruction
		}

		return fmt.Sprintf(
			`CREATE INDEX %s ON %s USING hnsw (embedding vector_cosine_ops) WITH (m = %d, ef_construction = %d);`,
			index, table, m, efConstruction,
		), nil

	case "ivfflat":
		lists := 100
		if params.Lists > 0 {
			lists = params.Lists
		}

		return fmt.Sprintf(
			`CREATE INDEX %s ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = %d);`,
			index, table, lists,
		), nil

	default:
		return "", fmt.Errorf("unsupported index type: %s (use 'hnsw' or 'ivfflat')", indexType)
	}
}
