package resolution

import "github.com/siherrmann/loregraph/model"

// Decision is the outcome of classifying a similarity score
type Decision int

const (
	// DecisionDistinct keeps the new entity as its own entity.
	DecisionDistinct Decision = iota
	// DecisionConfirm asks the confirmation oracle whether to merge.
	DecisionConfirm
	// DecisionMerge merges the new entity into the candidate.
	DecisionMerge
)

func (d Decision) String() string {
	switch d {
	case DecisionMerge:
		return "merge"
	case DecisionConfirm:
		return "confirm"
	default:
		return "distinct"
	}
}

// Policy is a threshold gated classifier of similarity scores
type Policy struct {
	MergeThreshold float64
	ConfirmLow     float64
}

// NewPolicy creates a policy from the resolution config
func NewPolicy(config model.ResolutionConfig) Policy {
	return Policy{
		MergeThreshold: config.MergeThreshold,
		ConfirmLow:     config.ConfirmLow,
	}
}

// Classify decides what to do with the best similarity found.
// Without a candidate the entity is always distinct.
func (p Policy) Classify(similarity float64, hasCandidate bool) Decision {
	switch {
	case !hasCandidate:
		return DecisionDistinct
	case similarity >= p.MergeThreshold:
		return DecisionMerge
	case similarity >= p.ConfirmLow:
		return DecisionConfirm
	default:
		return DecisionDistinct
	}
}
