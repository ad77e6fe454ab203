package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/siherrmann/loregraph/helper"
)

// Entity is a named, typed reference extracted from a text chunk.
// Its identity is (Name, Type). Names are compared verbatim, near duplicates
// are found by embedding similarity only.
type Entity struct {
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Confidence  float64   `json:"confidence"`
	SourceFile  string    `json:"source_file"`
	ChunkID     string    `json:"chunk_id"`
	SourceChunk string    `json:"source_chunk,omitempty"`
	Context     string    `json:"context,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
}

// EmbeddingText returns the text the entity embedding is computed from
func (e *Entity) EmbeddingText() string {
	return strings.TrimSpace(e.Name + " " + e.Description)
}

// Validate checks the fields required to identify the entity
func (e *Entity) Validate() error {
	if strings.TrimSpace(e.Name) == "" {
		return helper.NewValidationError("entity of type %q has no name", e.Type)
	}
	if strings.TrimSpace(e.Type) == "" {
		return helper.NewValidationError("entity %q has no type", e.Name)
	}
	if e.Confidence < 0 || e.Confidence > 1 {
		return helper.NewValidationError("entity %q has confidence %v outside [0, 1]", e.Name, e.Confidence)
	}
	return nil
}

// CachedEntity is the row of the entities_cache table, the persisted projection
// of an Entity used as resolution candidate.
type CachedEntity struct {
	ID          int       `json:"id"`
	RID         uuid.UUID `json:"rid"`
	Name        string    `json:"name"`
	Type        string    `json:"type"`
	Description string    `json:"description,omitempty"`
	Embedding   []float32 `json:"embedding,omitempty"`
	SourceFile  string    `json:"source_file"`
	ChunkID     string    `json:"chunk_id"`
	Confidence  float64   `json:"confidence"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AsEntity converts the cached row back into an Entity
func (c *CachedEntity) AsEntity() Entity {
	return Entity{
		Name:        c.Name,
		Type:        c.Type,
		Description: c.Description,
		Confidence:  c.Confidence,
		SourceFile:  c.SourceFile,
		ChunkID:     c.ChunkID,
		Embedding:   c.Embedding,
	}
}
