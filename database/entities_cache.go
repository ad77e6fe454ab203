package database

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"github.com/siherrmann/loregraph/helper"
	"github.com/siherrmann/loregraph/model"
	loadSql "github.com/siherrmann/loregraph/sql"
)

// EntitiesCacheDBHandlerFunctions defines the interface for entity cache database operations.
type EntitiesCacheDBHandlerFunctions interface {
	UpsertCachedEntity(ctx context.Context, entity *model.CachedEntity) error
	SelectCachedEntity(ctx context.Context, name string, entityType string) (*model.CachedEntity, error)
	SelectCachedEntitiesByType(ctx context.Context, entityType string) ([]*model.CachedEntity, error)
	DeleteCachedEntity(ctx context.Context, name string, entityType string) (int, error)
}

// EntitiesCacheDBHandler handles the entities_cache table.
// The cache holds one row per (name, type) and is the candidate source of entity resolution.
type EntitiesCacheDBHandler struct {
	db *helper.Database
}

// NewEntitiesCacheDBHandler creates a new entity cache database handler.
// It loads the entity cache SQL functions and creates the table.
// If force is true, it will reload the SQL functions even if they already exist.
func NewEntitiesCacheDBHandler(ctx context.Context, db *helper.Database, embeddingDim int, force bool) (*EntitiesCacheDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	entitiesCacheDbHandler := &EntitiesCacheDBHandler{
		db: db,
	}

	err := loadSql.LoadEntitiesCacheSql(ctx, db.Conn(), force)
	if err != nil {
		return nil, helper.NewError("load entities cache sql", err)
	}

	err = entitiesCacheDbHandler.CreateTable(ctx, embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized EntitiesCacheDBHandler")

	return entitiesCacheDbHandler, nil
}

// CreateTable creates the 'entities_cache' table with its indexes.
// If the table already exists, it does not create it again.
func (h *EntitiesCacheDBHandler) CreateTable(ctx context.Context, embeddingDim int) error {
	err := h.db.Retry(ctx, "init entities cache", func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, `SELECT init_entities_cache($1);`, embeddingDim)
		return err
	})
	if err != nil {
		return err
	}

	h.db.Logger.Info("Checked/created table entities_cache")

	return nil
}

// UpsertCachedEntity inserts the entity or overwrites the row with the same (name, type).
// The stored row, including its id and timestamps, is scanned back into entity.
func (h *EntitiesCacheDBHandler) UpsertCachedEntity(ctx context.Context, entity *model.CachedEntity) error {
	return h.db.Retry(ctx, "upsert cached entity", func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(
			ctx,
			`SELECT * FROM upsert_cached_entity($1, $2, $3, $4, $5, $6, $7)`,
			entity.Name,
			entity.Type,
			entity.Description,
			vectorArg(entity.Embedding),
			entity.SourceFile,
			entity.ChunkID,
			entity.Confidence,
		)

		return scanCachedEntity(row, entity)
	})
}

// SelectCachedEntity retrieves the cached entity with the given identity.
// A missing row is reported as sql.ErrNoRows.
func (h *EntitiesCacheDBHandler) SelectCachedEntity(ctx context.Context, name string, entityType string) (*model.CachedEntity, error) {
	entity := &model.CachedEntity{}
	err := h.db.Retry(ctx, "select cached entity", func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(
			ctx,
			`SELECT * FROM select_cached_entity($1, $2)`,
			name,
			entityType,
		)

		return scanCachedEntity(row, entity)
	})
	if err != nil {
		return nil, err
	}

	return entity, nil
}

// SelectCachedEntitiesByType retrieves all cached entities of a type, newest first.
// Resolution picks the first of equally similar candidates, so ties go to the newest row.
func (h *EntitiesCacheDBHandler) SelectCachedEntitiesByType(ctx context.Context, entityType string) ([]*model.CachedEntity, error) {
	var entities []*model.CachedEntity
	err := h.db.Retry(ctx, "select cached entities by type", func(ctx context.Context, conn *sql.DB) error {
		entities = nil

		rows, err := conn.QueryContext(
			ctx,
			`SELECT * FROM select_cached_entities_by_type($1)`,
			entityType,
		)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			entity := &model.CachedEntity{}
			if err := scanCachedEntity(rows, entity); err != nil {
				return err
			}
			entities = append(entities, entity)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	h.db.Logger.Debug("Retrieved cached entities", "type", entityType, "count", len(entities))

	return entities, nil
}

// DeleteCachedEntity deletes the cached entity and returns the number of deleted rows.
func (h *EntitiesCacheDBHandler) DeleteCachedEntity(ctx context.Context, name string, entityType string) (int, error) {
	var deleted int
	err := h.db.Retry(ctx, "delete cached entity", func(ctx context.Context, conn *sql.DB) error {
		return conn.QueryRowContext(
			ctx,
			`SELECT delete_cached_entity($1, $2)`,
			name,
			entityType,
		).Scan(&deleted)
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanCachedEntity(row rowScanner, entity *model.CachedEntity) error {
	var embedding *pgvector.Vector
	err := row.Scan(
		&entity.ID,
		&entity.RID,
		&entity.Name,
		&entity.Type,
		&entity.Description,
		&embedding,
		&entity.SourceFile,
		&entity.ChunkID,
		&entity.Confidence,
		&entity.CreatedAt,
		&entity.UpdatedAt,
	)
	if err != nil {
		return err
	}

	entity.Embedding = nil
	if embedding != nil {
		entity.Embedding = embedding.Slice()
	}

	return nil
}

// vectorArg converts an embedding into a query argument. An empty embedding is stored as NULL.
func vectorArg(embedding []float32) interface{} {
	if len(embedding) == 0 {
		return nil
	}
	return pgvector.NewVector(embedding)
}
