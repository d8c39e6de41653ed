package service

import (
	"context"

	"roster/internal/identity/events"
	"roster/internal/identity/models"
	dErrors "roster/pkg/domain-errors"
	"roster/pkg/requestcontext"
)

// Enrich fills the athlete's empty fields from obs and persists the result.
// Populated fields are never overwritten. UpdatedAt is refreshed even when no
// field changes. The returned bool reports whether any field changed.
func (s *Service) Enrich(ctx context.Context, a *models.Athlete, obs models.Observation, display string) (*models.Athlete, bool, error) {
	if a == nil {
		return nil, false, dErrors.New(dErrors.CodeInvalidInput, "athlete is required")
	}
	updated := a.Clone()
	var changed []string
	err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		changed = updated.Enrich(obs, display, requestcontext.Now(txCtx))
		if err := s.athletes.Update(txCtx, updated); err != nil {
			return dErrors.Wrap(err, dErrors.CodePersistence, "failed to update athlete")
		}
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if len(changed) > 0 {
		s.enriched(ctx, updated, changed)
	}
	return updated, len(changed) > 0, nil
}

// enrichIfChanged writes a only when obs or display would change a field, so
// re-attaching an already enriched record is a no-op. Callers own the
// transaction.
func (s *Service) enrichIfChanged(ctx context.Context, a *models.Athlete, obs models.Observation, display string) ([]string, error) {
	if len(a.EnrichmentFields(obs, display)) == 0 {
		return nil, nil
	}
	changed := a.Enrich(obs, display, requestcontext.Now(ctx))
	if err := s.athletes.Update(ctx, a); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to update athlete")
	}
	return changed, nil
}

func (s *Service) enriched(ctx context.Context, a *models.Athlete, fields []string) {
	s.logger.InfoContext(ctx, "athlete_enriched",
		"athlete_id", a.ID,
		"fields", fields,
	)
	s.publish(ctx, events.Event{
		Type:      events.AthleteEnriched,
		AthleteID: a.ID,
		Fields:    fields,
	})
}

// publish sends e after its write committed. Delivery problems are logged,
// never returned.
func (s *Service) publish(ctx context.Context, e events.Event) {
	if s.events == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = requestcontext.Now(ctx)
	}
	e.RunID = requestcontext.RunID(ctx)
	e.Operator = requestcontext.Operator(ctx)
	if err := s.events.Publish(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "failed to publish identity event", "type", e.Type, "athlete_id", e.AthleteID, "error", err)
	}
}
