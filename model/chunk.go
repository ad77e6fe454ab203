package model

import (
	"time"

	"github.com/siherrmann/loregraph/helper"
)

// Chunk is a piece of source text entities were extracted from.
// ChunkID is its primary key in the chunks table.
type Chunk struct {
	ChunkID    string    `json:"chunk_id"`
	SourceFile string    `json:"source_file"`
	Text       string    `json:"text"`
	Embedding  []float32 `json:"embedding,omitempty"`
	Metadata   Metadata  `json:"metadata,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Validate checks that the chunk can be stored
func (c *Chunk) Validate() error {
	if c.ChunkID == "" {
		return helper.NewValidationError("chunk has no id")
	}
	if c.Text == "" {
		return helper.NewValidationError("chunk %q has no text", c.ChunkID)
	}
	return nil
}
