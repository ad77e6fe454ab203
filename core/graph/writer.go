package graph

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/siherrmann/loregraph/helper"
	"github.com/siherrmann/loregraph/model"
)

// Counts is the outcome of one upsert call
type Counts struct {
	Created int
	Updated int
	Skipped int
}

// Writer upserts entities and relationships into the graph store.
// Every record is its own unit of work, a failure leaves earlier records committed.
type Writer struct {
	store  Store
	logger *slog.Logger
}

// NewWriter creates a graph writer on top of a store
func NewWriter(store Store, logger *slog.Logger) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		store:  store,
		logger: logger,
	}
}

// EnsureSchema creates the uniqueness constraint on (name, type) and the name index
func (w *Writer) EnsureSchema(ctx context.Context) error {
	for _, query := range schemaQueries {
		if _, err := w.store.Execute(ctx, query, nil, false); err != nil {
			return helper.NewError("ensure graph schema", err)
		}
	}

	w.logger.Info("Checked/created graph schema")

	return nil
}

// UpsertEntities merges the entities into the graph.
// Invalid entities are skipped. On error the counts of the already written entities are returned.
func (w *Writer) UpsertEntities(ctx context.Context, entities []model.Entity) (Counts, error) {
	counts := Counts{}
	for i := range entities {
		entity := &entities[i]
		if err := entity.Validate(); err != nil {
			w.logger.Warn("Skipping invalid entity", slog.Int("index", i), slog.String("error", err.Error()))
			counts.Skipped++
			continue
		}

		rows, err := w.store.Execute(ctx, upsertEntityQuery, map[string]any{
			"name":        entity.Name,
			"type":        entity.Type,
			"description": nullable(entity.Description),
			"source_file": nullable(entity.SourceFile),
			"chunk_id":    nullable(entity.ChunkID),
			"uuid":        uuid.NewString(),
		}, false)
		if err != nil {
			return counts, helper.NewError(fmt.Sprintf("upsert entity %q", entity.Name), err)
		}

		if anyCreated(rows) {
			counts.Created++
		} else {
			counts.Updated++
		}
	}

	w.logger.Debug("Upserted entities", slog.Int("created", counts.Created), slog.Int("updated", counts.Updated), slog.Int("skipped", counts.Skipped))

	return counts, nil
}

// UpsertRelationships merges the relationships into the graph.
// Relationships with an unknown endpoint match nothing and are counted as skipped,
// like invalid ones. On error the counts of the already written relationships are returned.
func (w *Writer) UpsertRelationships(ctx context.Context, relationships []model.Relationship) (Counts, error) {
	counts := Counts{}
	for i := range relationships {
		relationship := &relationships[i]
		if err := relationship.Validate(); err != nil {
			w.logger.Warn("Skipping invalid relationship", slog.Int("index", i), slog.String("error", err.Error()))
			counts.Skipped++
			continue
		}

		rows, err := w.store.Execute(ctx, upsertRelationshipQuery, map[string]any{
			"source_entity": relationship.SourceEntity,
			"target_entity": relationship.TargetEntity,
			"relation_type": relationship.RelationType,
			"description":   nullable(relationship.Description),
			"confidence":    relationship.Confidence,
			"source_text":   nullable(relationship.SourceText),
			"uuid":          uuid.NewString(),
		}, false)
		if err != nil {
			return counts, helper.NewError(fmt.Sprintf("upsert relationship %q -[%s]-> %q", relationship.SourceEntity, relationship.RelationType, relationship.TargetEntity), err)
		}

		switch {
		case len(rows) == 0:
			w.logger.Warn(
				"Skipping relationship with unknown endpoint",
				slog.String("source", relationship.SourceEntity),
				slog.String("target", relationship.TargetEntity),
				slog.String("type", relationship.RelationType),
			)
			counts.Skipped++
		case anyCreated(rows):
			counts.Created++
		default:
			counts.Updated++
		}
	}

	w.logger.Debug("Upserted relationships", slog.Int("created", counts.Created), slog.Int("updated", counts.Updated), slog.Int("skipped", counts.Skipped))

	return counts, nil
}

// StoredEntity is an entity node as persisted in the graph
type StoredEntity struct {
	Name        string
	Type        string
	Description string
	SourceFiles []string
	ChunkIDs    []string
}

// SelectEntity reads an entity node. It returns nil if the node does not exist.
func (w *Writer) SelectEntity(ctx context.Context, name string, entityType string) (*StoredEntity, error) {
	rows, err := w.store.Execute(ctx, selectEntityQuery, map[string]any{
		"name": name,
		"type": entityType,
	}, true)
	if err != nil {
		return nil, helper.NewError("select entity", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	return &StoredEntity{
		Name:        asString(row["name"]),
		Type:        asString(row["type"]),
		Description: asString(row["description"]),
		SourceFiles: asStrings(row["source_files"]),
		ChunkIDs:    asStrings(row["chunk_ids"]),
	}, nil
}

// SelectRelationship reads a relationship. It returns nil if it does not exist.
func (w *Writer) SelectRelationship(ctx context.Context, source string, relationType string, target string) (*model.Relationship, error) {
	rows, err := w.store.Execute(ctx, selectRelationshipQuery, map[string]any{
		"source_entity": source,
		"relation_type": relationType,
		"target_entity": target,
	}, true)
	if err != nil {
		return nil, helper.NewError("select relationship", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}

	row := rows[0]
	confidence, _ := row["confidence"].(float64)
	return &model.Relationship{
		SourceEntity: source,
		TargetEntity: target,
		RelationType: asString(row["relation_type"]),
		Description:  asString(row["description"]),
		Confidence:   confidence,
		SourceText:   asString(row["source_text"]),
	}, nil
}

// nullable maps empty strings to a Cypher null
func nullable(s string) any {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return s
}

func anyCreated(rows []map[string]any) bool {
	for _, row := range rows {
		if created, ok := row["created"].(bool); ok && created {
			return true
		}
	}
	return false
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}

func asStrings(v any) []string {
	values, ok := v.([]any)
	if !ok {
		return nil
	}
	out := make([]string, 0, len(values))
	for _, value := range values {
		if s, ok := value.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
