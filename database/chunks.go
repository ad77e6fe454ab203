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

// ChunksDBHandlerFunctions defines the interface for Chunks database operations.
type ChunksDBHandlerFunctions interface {
	UpsertChunk(ctx context.Context, chunk *model.Chunk) error
	SelectChunk(ctx context.Context, chunkID string) (*model.Chunk, error)
	SelectChunksBySourceFile(ctx context.Context, sourceFile string) ([]*model.Chunk, error)
	DeleteChunk(ctx context.Context, chunkID string) (int, error)
}

// ChunksDBHandler handles chunk-related database operations
type ChunksDBHandler struct {
	db *helper.Database
}

// NewChunksDBHandler creates a new chunks database handler.
// It loads the chunk SQL functions and creates the table.
// If force is true, it will reload the SQL functions even if they already exist.
func NewChunksDBHandler(ctx context.Context, db *helper.Database, embeddingDim int, force bool) (*ChunksDBHandler, error) {
	if db == nil {
		return nil, helper.NewError("database connection validation", fmt.Errorf("database connection is nil"))
	}
	if embeddingDim <= 0 {
		return nil, helper.NewError("embedding dimension validation", fmt.Errorf("embedding dimension must be positive, got %d", embeddingDim))
	}

	chunksDbHandler := &ChunksDBHandler{
		db: db,
	}

	err := loadSql.LoadChunksSql(ctx, db.Conn(), force)
	if err != nil {
		return nil, helper.NewError("load chunks sql", err)
	}

	err = chunksDbHandler.CreateTable(ctx, embeddingDim)
	if err != nil {
		return nil, helper.NewError("create table", err)
	}

	db.Logger.Info("Initialized ChunksDBHandler")

	return chunksDbHandler, nil
}

// CreateTable creates the 'chunks' table in the database.
// If the table already exists, it does not create it again.
func (h *ChunksDBHandler) CreateTable(ctx context.Context, embeddingDim int) error {
	err := h.db.Retry(ctx, "init chunks", func(ctx context.Context, conn *sql.DB) error {
		_, err := conn.ExecContext(ctx, `SELECT init_chunks($1);`, embeddingDim)
		return err
	})
	if err != nil {
		return err
	}

	h.db.Logger.Info("Checked/created table chunks")

	return nil
}

// UpsertChunk inserts the chunk or replaces text, embedding and metadata
// of the chunk with the same id. The source file of an existing chunk is kept.
func (h *ChunksDBHandler) UpsertChunk(ctx context.Context, chunk *model.Chunk) error {
	if err := chunk.Validate(); err != nil {
		return helper.NewError("upsert chunk", err)
	}

	return h.db.Retry(ctx, "upsert chunk", func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(
			ctx,
			`SELECT * FROM upsert_chunk($1, $2, $3, $4, $5)`,
			chunk.ChunkID,
			chunk.SourceFile,
			chunk.Text,
			vectorArg(chunk.Embedding),
			chunk.Metadata,
		)

		return scanChunk(row, chunk)
	})
}

// SelectChunk retrieves a chunk by its id.
// A missing row is reported as sql.ErrNoRows.
func (h *ChunksDBHandler) SelectChunk(ctx context.Context, chunkID string) (*model.Chunk, error) {
	chunk := &model.Chunk{}
	err := h.db.Retry(ctx, "select chunk", func(ctx context.Context, conn *sql.DB) error {
		row := conn.QueryRowContext(ctx, `SELECT * FROM select_chunk($1)`, chunkID)
		return scanChunk(row, chunk)
	})
	if err != nil {
		return nil, err
	}

	return chunk, nil
}

// SelectChunksBySourceFile retrieves all chunks of a source file ordered by chunk id.
func (h *ChunksDBHandler) SelectChunksBySourceFile(ctx context.Context, sourceFile string) ([]*model.Chunk, error) {
	var chunks []*model.Chunk
	err := h.db.Retry(ctx, "select chunks by source file", func(ctx context.Context, conn *sql.DB) error {
		chunks = nil

		rows, err := conn.QueryContext(ctx, `SELECT * FROM select_chunks_by_source_file($1)`, sourceFile)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			chunk := &model.Chunk{}
			if err := scanChunk(rows, chunk); err != nil {
				return err
			}
			chunks = append(chunks, chunk)
		}

		return rows.Err()
	})
	if err != nil {
		return nil, err
	}

	return chunks, nil
}

// DeleteChunk deletes a chunk and returns the number of deleted rows.
func (h *ChunksDBHandler) DeleteChunk(ctx context.Context, chunkID string) (int, error) {
	var deleted int
	err := h.db.Retry(ctx, "delete chunk", func(ctx context.Context, conn *sql.DB) error {
		return conn.QueryRowContext(ctx, `SELECT delete_chunk($1)`, chunkID).Scan(&deleted)
	})
	if err != nil {
		return 0, err
	}

	return deleted, nil
}

func scanChunk(row rowScanner, chunk *model.Chunk) error {
	var embedding *pgvector.Vector
	err := row.Scan(
		&chunk.ChunkID,
		&chunk.SourceFile,
		&chunk.Text,
		&embedding,
		&chunk.Metadata,
		&chunk.UpdatedAt,
	)
	if err != nil {
		return err
	}

	chunk.Embedding = nil
	if embedding != nil {
		chunk.Embedding = embedding.Slice()
	}

	return nil
}
