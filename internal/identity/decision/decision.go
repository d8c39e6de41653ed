// Package decision supplies the human-in-the-loop answers the identity
// service needs when it cannot decide on its own: whether to create a new
// athlete for an unmatched name, and whether to merge a duplicate pair.
//
// Declining, cancelling, or reaching end of input is always a skip. A skip is
// an outcome, not an error.
package decision

import (
	"context"

	"roster/internal/identity/models"
)

// CreatePrompt describes an unmatched record awaiting a create decision.
type CreatePrompt struct {
	RawName      string
	DisplayName  string
	SourceSystem models.SourceSystem
	Observation  models.Observation
	// Suggestions are near matches below the automatic threshold, best first.
	Suggestions []models.Match
}

// CreateDecision is the answer to a CreatePrompt.
type CreateDecision struct {
	Create bool
	// Observation holds any demographics the operator supplied; it is merged
	// over the record's own observation without overwriting it.
	Observation models.Observation
}

// MergeDecision is the answer to a merge confirmation.
type MergeDecision struct {
	Merge bool
}

// Provider answers create and merge questions.
type Provider interface {
	ConfirmCreate(ctx context.Context, prompt CreatePrompt) (CreateDecision, error)
	ConfirmMerge(ctx context.Context, candidate models.MergeCandidate) (MergeDecision, error)
}

// AutoSkip declines everything. Unattended runs use it so that unmatched
// names are reported and duplicate pairs are never merged.
type AutoSkip struct{}

func (AutoSkip) ConfirmCreate(context.Context, CreatePrompt) (CreateDecision, error) {
	return CreateDecision{}, nil
}

func (AutoSkip) ConfirmMerge(context.Context, models.MergeCandidate) (MergeDecision, error) {
	return MergeDecision{}, nil
}

// AutoCreate accepts every create and declines every merge. Batch imports of
// trusted rosters use it.
type AutoCreate struct{}

func (AutoCreate) ConfirmCreate(context.Context, CreatePrompt) (CreateDecision, error) {
	return CreateDecision{Create: true}, nil
}

func (AutoCreate) ConfirmMerge(context.Context, models.MergeCandidate) (MergeDecision, error) {
	return MergeDecision{}, nil
}
