package pipeline

import (
	"context"
	"fmt"

	"github.com/siherrmann/loregraph/model"
)

// EmbedFunc computes one embedding per input text, in input order
type EmbedFunc func(ctx context.Context, texts []string) ([][]float32, error)

// Embedder wraps an EmbedFunc and checks the shape of its results
type Embedder struct {
	embed     EmbedFunc
	dimension int
}

// NewEmbedder creates an embedder producing vectors of the given dimension
func NewEmbedder(embed EmbedFunc, dimension int) *Embedder {
	return &Embedder{
		embed:     embed,
		dimension: dimension,
	}
}

// Dimension returns the fixed embedding dimension
func (e *Embedder) Dimension() int {
	return e.dimension
}

// Embed embeds all texts in a single call. An empty input never reaches the EmbedFunc.
func (e *Embedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	embeddings, err := e.embed(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}

	if len(embeddings) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddings))
	}
	for i, embedding := range embeddings {
		if len(embedding) != e.dimension {
			return nil, fmt.Errorf("embedding %d has dimension %d, expected %d", i, len(embedding), e.dimension)
		}
	}

	return embeddings, nil
}

// EmbedEntities sets the embedding of every entity that has none yet.
// Entities that already carry an embedding are left untouched.
func (e *Embedder) EmbedEntities(ctx context.Context, entities []*model.Entity) error {
	var missing []*model.Entity
	var texts []string
	for _, entity := range entities {
		if len(entity.Embedding) == 0 {
			missing = append(missing, entity)
			texts = append(texts, entity.EmbeddingText())
		}
	}

	embeddings, err := e.Embed(ctx, texts)
	if err != nil {
		return err
	}

	for i, entity := range missing {
		entity.Embedding = embeddings[i]
	}

	return nil
}
