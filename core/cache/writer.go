package cache

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/siherrmann/loregraph/core/pipeline"
	"github.com/siherrmann/loregraph/helper"
	"github.com/siherrmann/loregraph/model"
)

// ChunkStore persists source chunks
type ChunkStore interface {
	UpsertChunk(ctx context.Context, chunk *model.Chunk) error
}

// EntityStore persists resolved entities as future resolution candidates
type EntityStore interface {
	UpsertCachedEntity(ctx context.Context, entity *model.CachedEntity) error
}

// Writer keeps the relational cache in sync with ingested knowledge
type Writer struct {
	chunks   ChunkStore
	entities EntityStore
	embedder *pipeline.Embedder
	logger   *slog.Logger
}

// NewWriter creates a cache writer
func NewWriter(chunks ChunkStore, entities EntityStore, embedder *pipeline.Embedder, logger *slog.Logger) (*Writer, error) {
	if chunks == nil || entities == nil || embedder == nil {
		return nil, helper.NewError("cache writer validation", fmt.Errorf("chunk store, entity store and embedder are required"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Writer{
		chunks:   chunks,
		entities: entities,
		embedder: embedder,
		logger:   logger,
	}, nil
}

// StoreChunk embeds the chunk text and upserts the chunk on its id.
// A chunk without id or text fails with ErrValidation before anything is embedded.
func (w *Writer) StoreChunk(ctx context.Context, chunk model.Chunk) error {
	if err := chunk.Validate(); err != nil {
		return helper.NewError("store chunk", err)
	}

	if len(chunk.Embedding) == 0 {
		embeddings, err := w.embedder.Embed(ctx, []string{chunk.Text})
		if err != nil {
			return helper.NewError("embed chunk", err)
		}
		chunk.Embedding = embeddings[0]
	}

	if err := w.chunks.UpsertChunk(ctx, &chunk); err != nil {
		return helper.NewError("store chunk", err)
	}

	w.logger.Debug("Stored chunk", slog.String("chunk_id", chunk.ChunkID), slog.String("source_file", chunk.SourceFile))

	return nil
}

// StoreEntities upserts the entities on (name, type).
// Missing embeddings are computed in one batch call first. The caller's slice is not modified.
// On error the entities before the failing one stay stored.
func (w *Writer) StoreEntities(ctx context.Context, entities []model.Entity) (int, error) {
	batch := make([]*model.Entity, 0, len(entities))
	for i := range entities {
		entity := entities[i]
		if err := entity.Validate(); err != nil {
			w.logger.Warn("Skipping invalid entity", slog.Int("index", i), slog.String("error", err.Error()))
			continue
		}
		batch = append(batch, &entity)
	}

	if err := w.embedder.EmbedEntities(ctx, batch); err != nil {
		return 0, helper.NewError("embed entities", err)
	}

	stored := 0
	for _, entity := range batch {
		if len(entity.Embedding) != w.embedder.Dimension() {
			return stored, helper.NewError("store entities", fmt.Errorf("entity %q has embedding dimension %d, expected %d", entity.Name, len(entity.Embedding), w.embedder.Dimension()))
		}

		cached := &model.CachedEntity{
			Name:        entity.Name,
			Type:        entity.Type,
			Description: entity.Description,
			Embedding:   entity.Embedding,
			SourceFile:  entity.SourceFile,
			ChunkID:     entity.ChunkID,
			Confidence:  entity.Confidence,
		}
		if err := w.entities.UpsertCachedEntity(ctx, cached); err != nil {
			return stored, helper.NewError(fmt.Sprintf("store entity %q", entity.Name), err)
		}
		stored++
	}

	w.logger.Debug("Stored entities in cache", slog.Int("count", stored))

	return stored, nil
}
