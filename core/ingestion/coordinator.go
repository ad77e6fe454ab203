package ingestion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/siherrmann/loregraph/core/graph"
	"github.com/siherrmann/loregraph/helper"
	"github.com/siherrmann/loregraph/model"
)

// Resolver deduplicates a batch of entities against the entity cache
type Resolver interface {
	Resolve(ctx context.Context, entities []model.Entity) ([]model.Entity, model.ResolutionStats, error)
}

// GraphWriter persists entities and relationships into the graph store
type GraphWriter interface {
	UpsertEntities(ctx context.Context, entities []model.Entity) (graph.Counts, error)
	UpsertRelationships(ctx context.Context, relationships []model.Relationship) (graph.Counts, error)
}

// CacheWriter persists chunks and resolved entities into the relational cache
type CacheWriter interface {
	StoreChunk(ctx context.Context, chunk model.Chunk) error
	StoreEntities(ctx context.Context, entities []model.Entity) (int, error)
}

// Coordinator runs one ingestion call through resolution, the graph store and the cache.
//
// Calls are not serialized. Two concurrent calls may both decide that the same
// new entity is distinct, the graph MERGE on (name, type) coalesces them on the
// next write of that pair.
type Coordinator struct {
	resolver Resolver
	graph    GraphWriter
	cache    CacheWriter
	logger   *slog.Logger
}

// NewCoordinator creates an ingestion coordinator
func NewCoordinator(resolver Resolver, graphWriter GraphWriter, cacheWriter CacheWriter, logger *slog.Logger) (*Coordinator, error) {
	if resolver == nil || graphWriter == nil || cacheWriter == nil {
		return nil, helper.NewError("ingestion coordinator validation", fmt.Errorf("resolver, graph writer and cache writer are required"))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Coordinator{
		resolver: resolver,
		graph:    graphWriter,
		cache:    cacheWriter,
		logger:   logger,
	}, nil
}

// StoreKnowledge resolves the entities and writes entities, relationships,
// the chunk and the resolved entities, in that order.
//
// The first failing stage aborts the call. Stages already written are not
// rolled back, the returned stats hold what was counted until then. Every write
// is an upsert, so a failed call can be repeated. A nil chunk or a chunk failing
// validation is skipped.
func (c *Coordinator) StoreKnowledge(ctx context.Context, entities []model.Entity, relationships []model.Relationship, chunk *model.Chunk) (model.IngestionStats, error) {
	start := time.Now()
	stats := model.IngestionStats{}

	resolved, resolution, err := c.resolver.Resolve(ctx, entities)
	stats.AddResolution(resolution)
	if err != nil {
		stats.ProcessingTime = time.Since(start)
		return stats, helper.NewError("resolve entities", err)
	}

	entityCounts, err := c.graph.UpsertEntities(ctx, resolved)
	stats.EntitiesCreated = entityCounts.Created
	stats.EntitiesUpdated = entityCounts.Updated
	stats.EntitiesSkipped += entityCounts.Skipped
	if err != nil {
		stats.ProcessingTime = time.Since(start)
		return stats, helper.NewError("upsert entities", err)
	}

	relationshipCounts, err := c.graph.UpsertRelationships(ctx, relationships)
	stats.RelationshipsCreated = relationshipCounts.Created
	stats.RelationshipsUpdated = relationshipCounts.Updated
	stats.RelationshipsSkipped = relationshipCounts.Skipped
	if err != nil {
		stats.ProcessingTime = time.Since(start)
		return stats, helper.NewError("upsert relationships", err)
	}

	if chunk != nil {
		err = c.cache.StoreChunk(ctx, *chunk)
		if errors.Is(err, helper.ErrValidation) {
			c.logger.Warn("Skipping invalid chunk", slog.String("chunk_id", chunk.ChunkID), slog.String("error", err.Error()))
		} else if err != nil {
			stats.ProcessingTime = time.Since(start)
			return stats, helper.NewError("store chunk", err)
		}
	}

	if _, err := c.cache.StoreEntities(ctx, resolved); err != nil {
		stats.ProcessingTime = time.Since(start)
		return stats, helper.NewError("store cached entities", err)
	}

	stats.ProcessingTime = time.Since(start)

	c.logger.Info(
		"Stored knowledge",
		slog.Int("entities_created", stats.EntitiesCreated),
		slog.Int("entities_updated", stats.EntitiesUpdated),
		slog.Int("entities_merged", stats.EntitiesMerged),
		slog.Int("relationships_created", stats.RelationshipsCreated),
		slog.Duration("processing_time", stats.ProcessingTime),
	)

	return stats, nil
}
