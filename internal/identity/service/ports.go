package service

import (
	"context"

	"roster/internal/identity/decision"
	"roster/internal/identity/events"
)

//go:generate mockgen -source=ports.go -destination=mocks/mocks.go -package=mocks EventPublisher,DecisionProvider

// EventPublisher receives lifecycle events after their writes commit.
type EventPublisher interface {
	Publish(ctx context.Context, e events.Event) error
}

// DecisionProvider confirms athlete creation for unmatched names.
type DecisionProvider interface {
	ConfirmCreate(ctx context.Context, prompt decision.CreatePrompt) (decision.CreateDecision, error)
}
