package graph

import (
	"context"
	"errors"
	"testing"

	"github.com/siherrmann/loregraph/helper"
	"github.com/siherrmann/loregraph/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStore keeps entities in memory and answers the writer queries
type fakeStore struct {
	entities      map[string]bool
	relationships map[string]bool
	calls         []map[string]any
	failAfter     int
	failErr       error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		entities:      map[string]bool{},
		relationships: map[string]bool{},
		failAfter:     -1,
	}
}

func (s *fakeStore) Execute(ctx context.Context, query string, params map[string]any, readonly bool) ([]map[string]any, error) {
	if s.failAfter == 0 {
		return nil, s.failErr
	}
	if s.failAfter > 0 {
		s.failAfter--
	}
	s.calls = append(s.calls, params)

	switch query {
	case upsertEntityQuery:
		key := params["name"].(string) + "|" + params["type"].(string)
		created := !s.entities[key]
		s.entities[key] = true
		return []map[string]any{{"created": created}}, nil
	case upsertRelationshipQuery:
		source := params["source_entity"].(string)
		target := params["target_entity"].(string)
		if !s.hasName(source) || !s.hasName(target) {
			return []map[string]any{}, nil
		}
		key := source + "|" + params["relation_type"].(string) + "|" + target
		created := !s.relationships[key]
		s.relationships[key] = true
		return []map[string]any{{"created": created}}, nil
	}
	return nil, nil
}

func (s *fakeStore) hasName(name string) bool {
	for key := range s.entities {
		if len(key) > len(name) && key[:len(name)+1] == name+"|" {
			return true
		}
	}
	return false
}

func TestWriterUpsertEntities(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert creates new entities and updates known ones", func(t *testing.T) {
		store := newFakeStore()
		writer := NewWriter(store, nil)

		entities := []model.Entity{
			{Name: "Harry Potter", Type: "person", Confidence: 0.9},
			{Name: "Hogwarts", Type: "organization", Confidence: 0.8},
		}
		counts, err := writer.UpsertEntities(ctx, entities)
		require.NoError(t, err)
		assert.Equal(t, Counts{Created: 2}, counts)

		counts, err = writer.UpsertEntities(ctx, entities)
		require.NoError(t, err)
		assert.Equal(t, Counts{Updated: 2}, counts)
	})

	t.Run("Upsert skips invalid entities", func(t *testing.T) {
		store := newFakeStore()
		writer := NewWriter(store, nil)

		counts, err := writer.UpsertEntities(ctx, []model.Entity{
			{Name: "", Type: "person", Confidence: 0.5},
			{Name: "Ron", Type: "person", Confidence: 1.5},
			{Name: "Hermione", Type: "person", Confidence: 0.5},
		})
		require.NoError(t, err)
		assert.Equal(t, Counts{Created: 1, Skipped: 2}, counts)
		assert.Len(t, store.calls, 1)
	})

	t.Run("Empty strings are passed as null", func(t *testing.T) {
		store := newFakeStore()
		writer := NewWriter(store, nil)

		_, err := writer.UpsertEntities(ctx, []model.Entity{
			{Name: "Dobby", Type: "creature", Description: " ", SourceFile: "book2.txt", Confidence: 0.5},
		})
		require.NoError(t, err)
		require.Len(t, store.calls, 1)
		assert.Nil(t, store.calls[0]["description"])
		assert.Nil(t, store.calls[0]["chunk_id"])
		assert.Equal(t, "book2.txt", store.calls[0]["source_file"])
		assert.NotEmpty(t, store.calls[0]["uuid"])
	})

	t.Run("Failure returns the counts written so far", func(t *testing.T) {
		store := newFakeStore()
		store.failAfter = 1
		store.failErr = helper.ErrTransientStore
		writer := NewWriter(store, nil)

		counts, err := writer.UpsertEntities(ctx, []model.Entity{
			{Name: "Harry Potter", Type: "person", Confidence: 0.9},
			{Name: "Hogwarts", Type: "organization", Confidence: 0.8},
		})
		require.Error(t, err)
		assert.True(t, errors.Is(err, helper.ErrTransientStore))
		assert.Equal(t, Counts{Created: 1}, counts)
	})
}

func TestWriterUpsertRelationships(t *testing.T) {
	ctx := context.Background()

	t.Run("Upsert creates relationships between known entities", func(t *testing.T) {
		store := newFakeStore()
		writer := NewWriter(store, nil)

		_, err := writer.UpsertEntities(ctx, []model.Entity{
			{Name: "Harry Potter", Type: "person", Confidence: 0.9},
			{Name: "Hogwarts", Type: "organization", Confidence: 0.8},
		})
		require.NoError(t, err)

		relationships := []model.Relationship{
			{SourceEntity: "Harry Potter", TargetEntity: "Hogwarts", RelationType: "STUDIED_AT", Confidence: 0.9},
		}
		counts, err := writer.UpsertRelationships(ctx, relationships)
		require.NoError(t, err)
		assert.Equal(t, Counts{Created: 1}, counts)

		counts, err = writer.UpsertRelationships(ctx, relationships)
		require.NoError(t, err)
		assert.Equal(t, Counts{Updated: 1}, counts)
	})

	t.Run("Relationships with unknown endpoints are skipped", func(t *testing.T) {
		store := newFakeStore()
		writer := NewWriter(store, nil)

		counts, err := writer.UpsertRelationships(ctx, []model.Relationship{
			{SourceEntity: "Harry Potter", TargetEntity: "Azkaban", RelationType: "VISITED", Confidence: 0.5},
			{SourceEntity: "Harry Potter", TargetEntity: "", RelationType: "VISITED", Confidence: 0.5},
		})
		require.NoError(t, err)
		assert.Equal(t, Counts{Skipped: 2}, counts)
		assert.Len(t, store.calls, 1)
	})

	t.Run("Failure returns the counts written so far", func(t *testing.T) {
		store := newFakeStore()
		writer := NewWriter(store, nil)
		_, err := writer.UpsertEntities(ctx, []model.Entity{
			{Name: "Harry Potter", Type: "person", Confidence: 0.9},
			{Name: "Hogwarts", Type: "organization", Confidence: 0.8},
		})
		require.NoError(t, err)

		store.failAfter = 1
		store.failErr = errors.New("boom")
		counts, err := writer.UpsertRelationships(ctx, []model.Relationship{
			{SourceEntity: "Harry Potter", TargetEntity: "Hogwarts", RelationType: "STUDIED_AT", Confidence: 0.9},
			{SourceEntity: "Hogwarts", TargetEntity: "Harry Potter", RelationType: "TAUGHT", Confidence: 0.9},
		})
		require.Error(t, err)
		assert.Equal(t, Counts{Created: 1}, counts)
	})
}

func TestWriterEnsureSchema(t *testing.T) {
	t.Run("Schema queries are executed once each", func(t *testing.T) {
		store := newFakeStore()
		writer := NewWriter(store, nil)

		err := writer.EnsureSchema(context.Background())
		require.NoError(t, err)
		assert.Len(t, store.calls, len(schemaQueries))
	})

	t.Run("Schema failure is returned", func(t *testing.T) {
		store := newFakeStore()
		store.failAfter = 0
		store.failErr = errors.New("boom")
		writer := NewWriter(store, nil)

		err := writer.EnsureSchema(context.Background())
		assert.Error(t, err)
	})
}
