package resolution

import (
	"strings"

	"github.com/siherrmann/loregraph/model"
)

// DescriptionSeparator joins the parts of a merged description
const DescriptionSeparator = "; "

// Merge combines a new entity with the existing entity it was resolved to.
// Identity and provenance come from incoming, descriptions are joined as
// "existing; incoming" and the higher confidence wins.
// The embedding is cleared because the description it was computed from changed.
func Merge(incoming model.Entity, existing model.Entity) model.Entity {
	merged := incoming
	merged.Description = JoinDescriptions(existing.Description, incoming.Description)
	if existing.Confidence > merged.Confidence {
		merged.Confidence = existing.Confidence
	}
	merged.Embedding = nil
	return merged
}

// JoinDescriptions joins descriptions with DescriptionSeparator.
// Empty parts and parts already present are left out.
// This differs from a plain append: merging the same description again leaves it unchanged.
func JoinDescriptions(descriptions ...string) string {
	var kept []string
	seen := map[string]bool{}
	for _, d := range descriptions {
		for _, part := range strings.Split(d, DescriptionSeparator) {
			part = strings.TrimSpace(part)
			if part == "" || seen[part] {
				continue
			}
			seen[part] = true
			kept = append(kept, part)
		}
	}
	return strings.Join(kept, DescriptionSeparator)
}
