package resolution

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/siherrmann/loregraph/core/pipeline"
	"github.com/siherrmann/loregraph/helper"
	"github.com/siherrmann/loregraph/model"
)

// CandidateReader fetches the cached entities of a type, newest first
type CandidateReader interface {
	SelectCachedEntitiesByType(ctx context.Context, entityType string) ([]*model.CachedEntity, error)
}

// Oracle decides borderline merges.
// An error is treated as a "no" answer.
type Oracle interface {
	Confirm(ctx context.Context, incoming model.Entity, existing model.Entity, score float64) (bool, error)
}

// Engine resolves new entities against the entity cache
type Engine struct {
	candidates CandidateReader
	embedder   *pipeline.Embedder
	oracle     Oracle
	policy     Policy
	logger     *slog.Logger
}

// candidateSet holds the pre-batch candidates of one type.
// Missing embeddings are computed on first use and kept for the rest of the call.
type candidateSet struct {
	entities []*model.Entity
	embedded bool
}

// NewEngine creates a resolution engine
func NewEngine(candidates CandidateReader, embedder *pipeline.Embedder, oracle Oracle, config model.ResolutionConfig, logger *slog.Logger) (*Engine, error) {
	if candidates == nil || embedder == nil || oracle == nil {
		return nil, helper.NewError("resolution engine validation", fmt.Errorf("candidate reader, embedder and oracle are required"))
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if embedder.Dimension() != config.EmbeddingDim {
		return nil, helper.NewError("resolution engine validation", fmt.Errorf("embedder dimension %d does not match configured dimension %d", embedder.Dimension(), config.EmbeddingDim))
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		candidates: candidates,
		embedder:   embedder,
		oracle:     oracle,
		policy:     NewPolicy(config),
		logger:     logger,
	}, nil
}

// Resolve deduplicates the entities of one batch against the entity cache.
//
// Invalid entities are skipped and later entities with an already seen name are dropped.
// Candidates are read once per type before any entity is resolved, so entities of the
// same batch are never compared with each other. The returned entities keep the input
// order. A failed embedding aborts the whole batch.
func (e *Engine) Resolve(ctx context.Context, entities []model.Entity) ([]model.Entity, model.ResolutionStats, error) {
	stats := model.ResolutionStats{}

	batch := make([]*model.Entity, 0, len(entities))
	seen := map[string]bool{}
	for i := range entities {
		entity := entities[i]
		if err := entity.Validate(); err != nil {
			e.logger.Warn("Skipping invalid entity", slog.Int("index", i), slog.String("error", err.Error()))
			stats.EntitiesSkipped++
			continue
		}
		if seen[entity.Name] {
			continue
		}
		seen[entity.Name] = true
		batch = append(batch, &entity)
	}
	if len(batch) == 0 {
		return []model.Entity{}, stats, nil
	}

	candidatesByType := map[string]*candidateSet{}
	for _, entity := range batch {
		if _, ok := candidatesByType[entity.Type]; ok {
			continue
		}
		cached, err := e.candidates.SelectCachedEntitiesByType(ctx, entity.Type)
		if err != nil {
			return nil, stats, helper.NewError("select candidates", err)
		}
		set := &candidateSet{entities: make([]*model.Entity, 0, len(cached))}
		for _, c := range cached {
			candidate := c.AsEntity()
			set.entities = append(set.entities, &candidate)
		}
		candidatesByType[entity.Type] = set
	}

	if err := e.embedder.EmbedEntities(ctx, batch); err != nil {
		return nil, stats, helper.NewError("embed entities", err)
	}

	resolved := make([]model.Entity, 0, len(batch))
	for _, entity := range batch {
		if err := ctx.Err(); err != nil {
			return nil, stats, helper.NewError("resolve", fmt.Errorf("%w: %v", helper.ErrCanceled, err))
		}
		if len(entity.Embedding) != e.embedder.Dimension() {
			return nil, stats, helper.NewError("resolve", fmt.Errorf("entity %q has embedding dimension %d, expected %d", entity.Name, len(entity.Embedding), e.embedder.Dimension()))
		}

		set := candidatesByType[entity.Type]
		if len(set.entities) == 0 {
			resolved = append(resolved, *entity)
			continue
		}

		if !set.embedded {
			if err := e.embedCandidates(ctx, entity.Type, set); err != nil {
				return nil, stats, err
			}
		}

		embeddings := make([][]float32, len(set.entities))
		for i, c := range set.entities {
			embeddings[i] = c.Embedding
		}
		best, similarity := BestMatch(entity.Embedding, embeddings)
		stats.SimilarityChecks++

		decision := e.policy.Classify(similarity, best >= 0)
		if decision == DecisionConfirm {
			stats.LLMConfirmations++
			decision = e.confirm(ctx, *entity, *set.entities[best], similarity)
		}

		e.logger.Debug(
			"Resolved entity",
			slog.String("name", entity.Name),
			slog.String("type", entity.Type),
			slog.Float64("similarity", similarity),
			slog.String("decision", decision.String()),
		)

		if decision == DecisionMerge {
			resolved = append(resolved, Merge(*entity, *set.entities[best]))
			stats.EntitiesMerged++
			continue
		}
		resolved = append(resolved, *entity)
	}

	return resolved, stats, nil
}

// embedCandidates fills in missing candidate embeddings in one call and checks their dimension
func (e *Engine) embedCandidates(ctx context.Context, entityType string, set *candidateSet) error {
	missing := 0
	for _, c := range set.entities {
		if len(c.Embedding) == 0 {
			missing++
		}
	}
	if missing > 0 {
		e.logger.Warn("Cached entities are missing an embedding, generating them now", slog.String("type", entityType), slog.Int("count", missing))
		if err := e.embedder.EmbedEntities(ctx, set.entities); err != nil {
			return helper.NewError("embed candidates", err)
		}
	}

	for _, c := range set.entities {
		if len(c.Embedding) != e.embedder.Dimension() {
			return helper.NewError("embed candidates", fmt.Errorf("cached entity %q has embedding dimension %d, expected %d", c.Name, len(c.Embedding), e.embedder.Dimension()))
		}
	}

	set.embedded = true
	return nil
}

// confirm asks the oracle and maps its answer to a decision.
// Oracle failures keep the entity distinct, cancellation included.
func (e *Engine) confirm(ctx context.Context, incoming model.Entity, existing model.Entity, similarity float64) Decision {
	ok, err := e.oracle.Confirm(ctx, incoming, existing, similarity)
	if err != nil {
		level := slog.LevelWarn
		if errors.Is(err, helper.ErrConfirmationUnavailable) {
			level = slog.LevelInfo
		}
		e.logger.Log(ctx, level, "Merge confirmation failed, keeping entity distinct",
			slog.String("name", incoming.Name),
			slog.String("candidate", existing.Name),
			slog.String("error", err.Error()),
		)
		return DecisionDistinct
	}
	if ok {
		return DecisionMerge
	}
	return DecisionDistinct
}
