package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/knights-analytics/hugot"
	"github.com/sashabaranov/go-openai"
	"github.com/siherrmann/loregraph/helper"
)

// DefaultModel is the local sentence transformer used when no model is configured.
// It produces 384-dimensional embeddings.
const DefaultModel = "sentence-transformers/all-MiniLM-L6-v2"

// DefaultEmbedder creates an embedder using a local sentence transformer model.
// The returned close function destroys the hugot session.
func DefaultEmbedder(modelName string) (EmbedFunc, func() error, error) {
	if modelName == "" {
		modelName = DefaultModel
	}

	modelPath, err := helper.PrepareModel(modelName, "")
	if err != nil {
		return nil, nil, err
	}

	// Initialize hugot session with Go backend
	session, err := hugot.NewGoSession()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create hugot session: %w", err)
	}

	config := hugot.FeatureExtractionConfig{
		ModelPath: modelPath,
		Name:      "embedder-pipeline",
	}
	sentencePipeline, err := hugot.NewPipeline(session, config)
	if err != nil {
		if destroyErr := session.Destroy(); destroyErr != nil {
			return nil, nil, fmt.Errorf("failed to create sentence pipeline: %w (cleanup error: %v)", err, destroyErr)
		}
		return nil, nil, fmt.Errorf("failed to create sentence pipeline: %w", err)
	}

	// The pipeline is not safe for concurrent use.
	var mu sync.Mutex

	embed := func(ctx context.Context, texts []string) ([][]float32, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		mu.Lock()
		defer mu.Unlock()

		result, err := sentencePipeline.RunPipeline(texts)
		if err != nil {
			return nil, fmt.Errorf("failed to generate embedding: %w", err)
		}

		if len(result.Embeddings) != len(texts) {
			return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(result.Embeddings))
		}

		return result.Embeddings, nil
	}

	return embed, session.Destroy, nil
}

// OpenAIEmbedder creates an embedder backed by an OpenAI compatible embeddings endpoint.
// All texts of a call are sent in one request.
func OpenAIEmbedder(client *openai.Client, modelName string) EmbedFunc {
	return func(ctx context.Context, texts []string) ([][]float32, error) {
		resp, err := client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
			Input: texts,
			Model: openai.EmbeddingModel(modelName),
		})
		if err != nil {
			return nil, fmt.Errorf("openai embeddings failed: %w", err)
		}

		embeddings := make([][]float32, len(texts))
		for _, data := range resp.Data {
			if data.Index < 0 || data.Index >= len(texts) {
				return nil, fmt.Errorf("embedding index %d out of range", data.Index)
			}
			embeddings[data.Index] = data.Embedding
		}
		for i, embedding := range embeddings {
			if embedding == nil {
				return nil, fmt.Errorf("no embedding returned for input %d", i)
			}
		}

		return embeddings, nil
	}
}
