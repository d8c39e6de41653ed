package service

import (
	"context"

	"roster/internal/identity/models"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
)

// RefreshFlags recomputes one domain's has-data flag and session count for
// an athlete from the domain's fact table. Safe to repeat.
func (s *Service) RefreshFlags(ctx context.Context, athleteID id.AthleteID, system models.SourceSystem) error {
	d, err := models.LookupDomain(system)
	if err != nil {
		return err
	}
	return s.refresh(ctx, athleteID, d)
}

// RefreshAllFlags recomputes one domain across every athlete and returns the
// number of athletes refreshed. It stops at the first failure.
func (s *Service) RefreshAllFlags(ctx context.Context, system models.SourceSystem) (int, error) {
	d, err := models.LookupDomain(system)
	if err != nil {
		return 0, err
	}
	all, err := s.athletes.List(ctx, nil)
	if err != nil {
		return 0, dErrors.Wrap(err, dErrors.CodePersistence, "failed to list athletes")
	}
	for i, a := range all {
		if err := ctx.Err(); err != nil {
			return i, dErrors.Wrap(err, dErrors.CodeTimeout, "flag refresh cancelled")
		}
		if err := s.refresh(ctx, a.ID, d); err != nil {
			return i, err
		}
	}
	s.logger.InfoContext(ctx, "flags_refreshed", "source_system", system, "athletes", len(all))
	return len(all), nil
}

// RefreshAllDomains recomputes every registered domain for one athlete.
func (s *Service) RefreshAllDomains(ctx context.Context, athleteID id.AthleteID) error {
	for _, d := range models.Domains() {
		if err := s.refresh(ctx, athleteID, d); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) refresh(ctx context.Context, athleteID id.AthleteID, d models.Domain) error {
	stats, err := s.facts.Stats(ctx, d, athleteID)
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistence, "failed to count domain facts")
	}
	if err := s.athletes.SetDomainStats(ctx, athleteID, d.System, stats); err != nil {
		return dErrors.Wrap(err, dErrors.CodePersistence, "failed to store domain flags")
	}
	s.metrics.IncrementFlagRefresh(string(d.System))
	return nil
}
