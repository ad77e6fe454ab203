package resolution

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/siherrmann/loregraph/core/pipeline"
	"github.com/siherrmann/loregraph/helper"
	"github.com/siherrmann/loregraph/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testDim = 2

// unit returns a 2D unit vector whose cosine similarity with (1, 0) is similarity.
func unit(similarity float64) []float32 {
	return []float32{float32(similarity), float32(math.Sqrt(1 - similarity*similarity))}
}

type fakeReader struct {
	byType map[string][]*model.CachedEntity
	calls  []string
	err    error
}

func (r *fakeReader) SelectCachedEntitiesByType(ctx context.Context, entityType string) ([]*model.CachedEntity, error) {
	r.calls = append(r.calls, entityType)
	if r.err != nil {
		return nil, r.err
	}
	return r.byType[entityType], nil
}

type fakeOracle struct {
	answer bool
	err    error
	calls  []float64
}

func (o *fakeOracle) Confirm(ctx context.Context, incoming model.Entity, existing model.Entity, score float64) (bool, error) {
	o.calls = append(o.calls, score)
	return o.answer, o.err
}

type fakeEmbed struct {
	vectors map[string][]float32
	calls   [][]string
	err     error
}

func (f *fakeEmbed) embed(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls = append(f.calls, texts)
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, ok := f.vectors[text]
		if !ok {
			return nil, fmt.Errorf("no vector for %q", text)
		}
		out[i] = v
	}
	return out, nil
}

func newTestEngine(t *testing.T, reader *fakeReader, oracle *fakeOracle, embed *fakeEmbed) *Engine {
	config := model.DefaultResolutionConfig()
	config.EmbeddingDim = testDim

	engine, err := NewEngine(reader, pipeline.NewEmbedder(embed.embed, testDim), oracle, config, nil)
	require.NoError(t, err)
	return engine
}

func hogwartsCache() *fakeReader {
	return &fakeReader{byType: map[string][]*model.CachedEntity{
		"location": {
			{ID: 1, Name: "Hogwarts", Type: "location", Description: "School of magic", Embedding: []float32{1, 0}, Confidence: 0.7},
		},
	}}
}

func TestResolveThresholds(t *testing.T) {
	ctx := context.Background()

	t.Run("Similarity above merge threshold merges without confirmation", func(t *testing.T) {
		oracle := &fakeOracle{}
		embed := &fakeEmbed{vectors: map[string][]float32{"Hogwarts Castle A castle": unit(0.90)}}
		engine := newTestEngine(t, hogwartsCache(), oracle, embed)

		resolved, stats, err := engine.Resolve(ctx, []model.Entity{
			{Name: "Hogwarts Castle", Type: "location", Description: "A castle", Confidence: 0.9, SourceFile: "book2.txt", ChunkID: "c2"},
		})

		require.NoError(t, err)
		require.Len(t, resolved, 1)
		assert.Empty(t, oracle.calls)
		assert.Equal(t, 1, stats.EntitiesMerged)
		assert.Equal(t, 1, stats.SimilarityChecks)
		assert.Equal(t, 0, stats.LLMConfirmations)
		assert.Equal(t, "Hogwarts Castle", resolved[0].Name)
		assert.Equal(t, "School of magic; A castle", resolved[0].Description)
		assert.Equal(t, "book2.txt", resolved[0].SourceFile)
		assert.Nil(t, resolved[0].Embedding)
	})

	t.Run("Borderline similarity asks the oracle once and merges on yes", func(t *testing.T) {
		oracle := &fakeOracle{answer: true}
		embed := &fakeEmbed{vectors: map[string][]float32{"Hogwarts School": unit(0.82)}}
		engine := newTestEngine(t, hogwartsCache(), oracle, embed)

		resolved, stats, err := engine.Resolve(ctx, []model.Entity{{Name: "Hogwarts School", Type: "location", Confidence: 0.5}})

		require.NoError(t, err)
		require.Len(t, oracle.calls, 1)
		assert.InDelta(t, 0.82, oracle.calls[0], 1e-6)
		assert.Equal(t, 1, stats.EntitiesMerged)
		assert.Equal(t, 1, stats.LLMConfirmations)
		assert.Equal(t, 1, stats.SimilarityChecks)
		assert.Equal(t, "School of magic", resolved[0].Description)
		assert.Equal(t, 0.7, resolved[0].Confidence)
	})

	t.Run("Borderline similarity stays distinct on no", func(t *testing.T) {
		oracle := &fakeOracle{answer: false}
		embed := &fakeEmbed{vectors: map[string][]float32{"Hogwarts School": unit(0.82)}}
		engine := newTestEngine(t, hogwartsCache(), oracle, embed)

		resolved, stats, err := engine.Resolve(ctx, []model.Entity{{Name: "Hogwarts School", Type: "location", Confidence: 0.5}})

		require.NoError(t, err)
		assert.Len(t, oracle.calls, 1)
		assert.Equal(t, 0, stats.EntitiesMerged)
		assert.Equal(t, 1, stats.LLMConfirmations)
		assert.Equal(t, 0.5, resolved[0].Confidence)
		assert.Equal(t, unit(0.82), resolved[0].Embedding)
	})

	t.Run("Low similarity never asks the oracle", func(t *testing.T) {
		oracle := &fakeOracle{answer: true}
		embed := &fakeEmbed{vectors: map[string][]float32{"Diagon Alley": unit(0.5)}}
		engine := newTestEngine(t, hogwartsCache(), oracle, embed)

		resolved, stats, err := engine.Resolve(ctx, []model.Entity{{Name: "Diagon Alley", Type: "location", Confidence: 0.5}})

		require.NoError(t, err)
		assert.Empty(t, oracle.calls)
		assert.Equal(t, 0, stats.EntitiesMerged)
		assert.Equal(t, 1, stats.SimilarityChecks)
		assert.Equal(t, "Diagon Alley", resolved[0].Name)
	})

	t.Run("Failed confirmation keeps the entity distinct and is counted", func(t *testing.T) {
		oracle := &fakeOracle{answer: true, err: fmt.Errorf("%w: timeout", helper.ErrConfirmationUnavailable)}
		embed := &fakeEmbed{vectors: map[string][]float32{"Hogwarts School": unit(0.82)}}
		engine := newTestEngine(t, hogwartsCache(), oracle, embed)

		resolved, stats, err := engine.Resolve(ctx, []model.Entity{{Name: "Hogwarts School", Type: "location", Confidence: 0.5}})

		require.NoError(t, err)
		assert.Len(t, oracle.calls, 1)
		assert.Equal(t, 0, stats.EntitiesMerged)
		assert.Equal(t, 1, stats.LLMConfirmations)
		assert.Equal(t, "Hogwarts School", resolved[0].Name)
		assert.Empty(t, resolved[0].Description)
	})
}

func TestResolveBatch(t *testing.T) {
	ctx := context.Background()

	t.Run("Entities of the same batch are not compared with each other", func(t *testing.T) {
		reader := &fakeReader{}
		oracle := &fakeOracle{answer: true}
		embed := &fakeEmbed{vectors: map[string][]float32{
			"Harry Potter": {1, 0},
			"Harry":        {1, 0},
		}}
		engine := newTestEngine(t, reader, oracle, embed)

		resolved, stats, err := engine.Resolve(ctx, []model.Entity{
			{Name: "Harry Potter", Type: "person", Confidence: 0.9},
			{Name: "Harry", Type: "person", Confidence: 0.9},
		})

		require.NoError(t, err)
		require.Len(t, resolved, 2)
		assert.Equal(t, "Harry Potter", resolved[0].Name)
		assert.Equal(t, "Harry", resolved[1].Name)
		assert.Equal(t, model.ResolutionStats{}, stats)
		assert.Empty(t, oracle.calls)
	})

	t.Run("Duplicate names keep the first occurrence", func(t *testing.T) {
		embed := &fakeEmbed{vectors: map[string][]float32{"Harry Potter first": {1, 0}}}
		engine := newTestEngine(t, &fakeReader{}, &fakeOracle{}, embed)

		resolved, _, err := engine.Resolve(ctx, []model.Entity{
			{Name: "Harry Potter", Type: "person", Description: "first", Confidence: 0.9},
			{Name: "Harry Potter", Type: "person", Description: "second", Confidence: 0.9},
		})

		require.NoError(t, err)
		require.Len(t, resolved, 1)
		assert.Equal(t, "first", resolved[0].Description)
		require.Len(t, embed.calls, 1)
		assert.Equal(t, []string{"Harry Potter first"}, embed.calls[0])
	})

	t.Run("Candidates are read once per type", func(t *testing.T) {
		reader := hogwartsCache()
		embed := &fakeEmbed{vectors: map[string][]float32{
			"Diagon Alley":   unit(0.1),
			"Harry Potter":   {0, 1},
			"Privet Drive":   unit(0.2),
			"Ron Weasley":    {0, 1},
			"Forbidden Wood": unit(0.3),
		}}
		engine := newTestEngine(t, reader, &fakeOracle{}, embed)

		_, _, err := engine.Resolve(ctx, []model.Entity{
			{Name: "Diagon Alley", Type: "location"},
			{Name: "Harry Potter", Type: "person"},
			{Name: "Privet Drive", Type: "location"},
			{Name: "Ron Weasley", Type: "person"},
			{Name: "Forbidden Wood", Type: "location"},
		})

		require.NoError(t, err)
		assert.Equal(t, []string{"location", "person"}, reader.calls)
		assert.Len(t, embed.calls, 1, "Expected all new entities to be embedded in one call")
	})

	t.Run("Output keeps input order", func(t *testing.T) {
		embed := &fakeEmbed{vectors: map[string][]float32{
			"Hogwarts Castle": unit(0.95),
			"Harry Potter":    {0, 1},
			"Diagon Alley":    unit(0.1),
		}}
		engine := newTestEngine(t, hogwartsCache(), &fakeOracle{}, embed)

		resolved, stats, err := engine.Resolve(ctx, []model.Entity{
			{Name: "Hogwarts Castle", Type: "location"},
			{Name: "Harry Potter", Type: "person"},
			{Name: "Diagon Alley", Type: "location"},
		})

		require.NoError(t, err)
		require.Len(t, resolved, 3)
		assert.Equal(t, "Hogwarts Castle", resolved[0].Name)
		assert.Equal(t, "Harry Potter", resolved[1].Name)
		assert.Equal(t, "Diagon Alley", resolved[2].Name)
		assert.Equal(t, 1, stats.EntitiesMerged)
		assert.Equal(t, 2, stats.SimilarityChecks)
	})

	t.Run("Invalid entities are skipped", func(t *testing.T) {
		embed := &fakeEmbed{vectors: map[string][]float32{"Harry Potter": {0, 1}}}
		engine := newTestEngine(t, &fakeReader{}, &fakeOracle{}, embed)

		resolved, stats, err := engine.Resolve(ctx, []model.Entity{
			{Name: "", Type: "person"},
			{Name: "Harry Potter", Type: "person"},
			{Name: "Nobody", Type: ""},
		})

		require.NoError(t, err)
		require.Len(t, resolved, 1)
		assert.Equal(t, 2, stats.EntitiesSkipped)
	})

	t.Run("Empty batch does not touch the collaborators", func(t *testing.T) {
		reader := &fakeReader{}
		embed := &fakeEmbed{}
		engine := newTestEngine(t, reader, &fakeOracle{}, embed)

		resolved, _, err := engine.Resolve(ctx, nil)

		require.NoError(t, err)
		assert.Empty(t, resolved)
		assert.Empty(t, reader.calls)
		assert.Empty(t, embed.calls)
	})
}

func TestResolveCandidates(t *testing.T) {
	ctx := context.Background()

	t.Run("Ties go to the newest cached entity", func(t *testing.T) {
		// the reader returns candidates newest first
		reader := &fakeReader{byType: map[string][]*model.CachedEntity{
			"person": {
				{ID: 2, Name: "Harry J. Potter", Type: "person", Description: "newer row", Embedding: []float32{1, 0}},
				{ID: 1, Name: "Harry Potter", Type: "person", Description: "older row", Embedding: []float32{1, 0}},
			},
		}}
		embed := &fakeEmbed{vectors: map[string][]float32{"Harry": {1, 0}}}
		engine := newTestEngine(t, reader, &fakeOracle{}, embed)

		resolved, stats, err := engine.Resolve(ctx, []model.Entity{{Name: "Harry", Type: "person"}})

		require.NoError(t, err)
		assert.Equal(t, 1, stats.EntitiesMerged)
		assert.Equal(t, "newer row", resolved[0].Description)
	})

	t.Run("Candidates without embedding are embedded once per type", func(t *testing.T) {
		reader := &fakeReader{byType: map[string][]*model.CachedEntity{
			"person": {
				{ID: 1, Name: "Harry Potter", Type: "person", Description: "The boy who lived"},
				{ID: 2, Name: "Ron Weasley", Type: "person", Embedding: []float32{0, 1}},
			},
		}}
		embed := &fakeEmbed{vectors: map[string][]float32{
			"Harry":                          {1, 0},
			"Hermione":                       unit(0.7),
			"Harry Potter The boy who lived": {1, 0},
		}}
		engine := newTestEngine(t, reader, &fakeOracle{}, embed)

		resolved, stats, err := engine.Resolve(ctx, []model.Entity{
			{Name: "Harry", Type: "person"},
			{Name: "Hermione", Type: "person"},
		})

		require.NoError(t, err)
		assert.Equal(t, 1, stats.EntitiesMerged)
		assert.Equal(t, "The boy who lived", resolved[0].Description)
		require.Len(t, embed.calls, 2)
		assert.Equal(t, []string{"Harry Potter The boy who lived"}, embed.calls[1])
	})

	t.Run("Types without new entities are not read", func(t *testing.T) {
		reader := hogwartsCache()
		embed := &fakeEmbed{vectors: map[string][]float32{"Harry Potter": {1, 0}}}
		engine := newTestEngine(t, reader, &fakeOracle{}, embed)

		_, stats, err := engine.Resolve(ctx, []model.Entity{{Name: "Harry Potter", Type: "person"}})

		require.NoError(t, err)
		assert.Equal(t, []string{"person"}, reader.calls)
		assert.Equal(t, 0, stats.SimilarityChecks)
	})

	t.Run("Cached embedding with wrong dimension aborts", func(t *testing.T) {
		reader := &fakeReader{byType: map[string][]*model.CachedEntity{
			"person": {{ID: 1, Name: "Harry Potter", Type: "person", Embedding: []float32{1, 0, 0}}},
		}}
		embed := &fakeEmbed{vectors: map[string][]float32{"Harry": {1, 0}}}
		engine := newTestEngine(t, reader, &fakeOracle{}, embed)

		_, _, err := engine.Resolve(ctx, []model.Entity{{Name: "Harry", Type: "person"}})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "dimension 3")
	})
}

func TestResolveErrors(t *testing.T) {
	ctx := context.Background()

	t.Run("Embedding failure aborts the batch", func(t *testing.T) {
		failure := errors.New("model unavailable")
		engine := newTestEngine(t, hogwartsCache(), &fakeOracle{}, &fakeEmbed{err: failure})

		resolved, _, err := engine.Resolve(ctx, []model.Entity{{Name: "Hogwarts", Type: "location"}})

		require.Error(t, err)
		assert.ErrorIs(t, err, failure)
		assert.Nil(t, resolved)
	})

	t.Run("Candidate read failure aborts the batch", func(t *testing.T) {
		failure := fmt.Errorf("%w: connection refused", helper.ErrTransientStore)
		reader := &fakeReader{err: failure}
		engine := newTestEngine(t, reader, &fakeOracle{}, &fakeEmbed{})

		_, _, err := engine.Resolve(ctx, []model.Entity{{Name: "Hogwarts", Type: "location"}})

		assert.ErrorIs(t, err, helper.ErrTransientStore)
	})

	t.Run("Canceled context aborts the batch", func(t *testing.T) {
		canceled, cancel := context.WithCancel(ctx)
		cancel()
		engine := newTestEngine(t, hogwartsCache(), &fakeOracle{}, &fakeEmbed{vectors: map[string][]float32{"Hogwarts": {1, 0}}})

		_, _, err := engine.Resolve(canceled, []model.Entity{{Name: "Hogwarts", Type: "location"}})

		assert.Error(t, err)
	})
}

func TestNewEngine(t *testing.T) {
	embedder := pipeline.NewEmbedder((&fakeEmbed{}).embed, testDim)

	t.Run("Missing collaborators are rejected", func(t *testing.T) {
		_, err := NewEngine(nil, embedder, &fakeOracle{}, model.DefaultResolutionConfig(), nil)
		assert.Error(t, err)
	})

	t.Run("Embedder dimension must match the config", func(t *testing.T) {
		_, err := NewEngine(&fakeReader{}, embedder, &fakeOracle{}, model.DefaultResolutionConfig(), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "does not match")
	})
}
