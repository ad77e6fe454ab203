package model

import (
	"fmt"

	"github.com/siherrmann/loregraph/helper"
)

// ResolutionConfig holds the thresholds of the entity resolution policy
type ResolutionConfig struct {
	// MergeThreshold is the similarity at or above which entities merge without confirmation.
	MergeThreshold float64 `json:"merge_threshold"`
	// ConfirmLow is the lowest similarity that is sent to the confirmation oracle.
	ConfirmLow float64 `json:"confirm_low"`
	// EmbeddingDim is the fixed dimension of every embedding of the deployment.
	EmbeddingDim int `json:"embedding_dim"`
}

// DefaultResolutionConfig returns the default thresholds for 384 dimensional embeddings
func DefaultResolutionConfig() ResolutionConfig {
	return ResolutionConfig{
		MergeThreshold: 0.85,
		ConfirmLow:     0.80,
		EmbeddingDim:   384,
	}
}

// Validate checks that the thresholds are ordered and within the cosine range
func (c ResolutionConfig) Validate() error {
	if c.MergeThreshold < -1 || c.MergeThreshold > 1 {
		return helper.NewError("resolution config", fmt.Errorf("merge threshold %v outside [-1, 1]", c.MergeThreshold))
	}
	if c.ConfirmLow < -1 || c.ConfirmLow > c.MergeThreshold {
		return helper.NewError("resolution config", fmt.Errorf("confirm low %v must be within [-1, %v]", c.ConfirmLow, c.MergeThreshold))
	}
	if c.EmbeddingDim <= 0 {
		return helper.NewError("resolution config", fmt.Errorf("embedding dimension must be positive, got %d", c.EmbeddingDim))
	}
	return nil
}
