package dedupe

import (
	"context"

	"roster/internal/identity/decision"
	"roster/internal/identity/models"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks Confirmer

// Confirmer decides whether a duplicate pair may be merged. decision.Console
// and decision.AutoSkip both satisfy it.
type Confirmer interface {
	ConfirmMerge(ctx context.Context, candidate models.MergeCandidate) (decision.MergeDecision, error)
}
