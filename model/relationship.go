package model

import (
	"strings"

	"github.com/siherrmann/loregraph/helper"
)

// Relationship is a directed, typed association between two entity names.
// Its identity is (SourceEntity, TargetEntity, RelationType).
type Relationship struct {
	SourceEntity string  `json:"source_entity"`
	TargetEntity string  `json:"target_entity"`
	RelationType string  `json:"relation_type"`
	Description  string  `json:"description,omitempty"`
	Confidence   float64 `json:"confidence"`
	SourceText   string  `json:"source_text,omitempty"`
}

// Validate checks the fields required to identify the relationship
func (r *Relationship) Validate() error {
	switch {
	case strings.TrimSpace(r.SourceEntity) == "":
		return helper.NewValidationError("relationship %q has no source entity", r.RelationType)
	case strings.TrimSpace(r.TargetEntity) == "":
		return helper.NewValidationError("relationship %q has no target entity", r.RelationType)
	case strings.TrimSpace(r.RelationType) == "":
		return helper.NewValidationError("relationship %q -> %q has no type", r.SourceEntity, r.TargetEntity)
	case r.Confidence < 0 || r.Confidence > 1:
		return helper.NewValidationError("relationship %q has confidence %v outside [0, 1]", r.RelationType, r.Confidence)
	}
	return nil
}
