package service

import (
	"context"
	"errors"
	"fmt"

	"roster/internal/identity/decision"
	"roster/internal/identity/events"
	"roster/internal/identity/models"
	"roster/internal/identity/normalize"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	"roster/pkg/platform/sentinel"
	"roster/pkg/requestcontext"
)

// ErrInvalidName matches any *InvalidNameError via errors.Is.
var ErrInvalidName = errors.New("invalid athlete name")

// InvalidNameError reports a name that normalizes to nothing.
type InvalidNameError struct {
	Name string
	Err  error
}

func (e *InvalidNameError) Error() string {
	return fmt.Sprintf("invalid athlete name %q: %v", e.Name, e.Err)
}

func (e *InvalidNameError) Unwrap() error {
	return e.Err
}

func (e *InvalidNameError) Is(target error) bool {
	return target == ErrInvalidName
}

func invalidName(name string, err error) error {
	return dErrors.Wrap(&InvalidNameError{Name: name, Err: err}, dErrors.CodeInvalidInput, "unusable athlete name")
}

// CreateRequest describes a new athlete. SourceAthleteID defaults to the
// source key derived from Name.
type CreateRequest struct {
	Name            string
	SourceSystem    models.SourceSystem
	SourceAthleteID string
	Observation     models.Observation
}

// CreateOutcome is the result of an interactive create. A skipped create is
// not an error: nothing was written and the record stays unresolved.
type CreateOutcome struct {
	Athlete *models.Athlete
	Skipped bool
}

// Create allocates a new canonical athlete and maps its source identifier to
// it in the same transaction.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*models.Athlete, error) {
	if _, err := models.LookupDomain(req.SourceSystem); err != nil {
		return nil, err
	}
	n, err := normalize.Name(req.Name)
	if err != nil {
		return nil, invalidName(req.Name, err)
	}
	if req.SourceAthleteID == "" {
		if req.SourceAthleteID, err = normalize.SourceKey(req.Name); err != nil {
			return nil, invalidName(req.Name, err)
		}
	}

	var a *models.Athlete
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		a, err = s.createMapped(txCtx, n, req.SourceSystem, req.SourceAthleteID, req.Observation)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.created(ctx, a)
	return a, nil
}

// CreateInteractive asks provider before creating. A nil provider falls back
// to the service's configured provider; with neither, it creates directly.
func (s *Service) CreateInteractive(ctx context.Context, req CreateRequest, provider DecisionProvider) (CreateOutcome, error) {
	if _, err := models.LookupDomain(req.SourceSystem); err != nil {
		return CreateOutcome{}, err
	}
	if provider == nil {
		provider = s.decisions
	}
	if provider != nil {
		n, err := normalize.Name(req.Name)
		if err != nil {
			return CreateOutcome{}, invalidName(req.Name, err)
		}
		d, err := s.confirmCreate(ctx, provider, req.Name, n, req.SourceSystem, req.Observation)
		if err != nil {
			return CreateOutcome{}, err
		}
		if !d.Create {
			return CreateOutcome{Skipped: true}, nil
		}
		req.Observation = req.Observation.Fill(d.Observation)
	}
	a, err := s.Create(ctx, req)
	if err != nil {
		return CreateOutcome{}, err
	}
	return CreateOutcome{Athlete: a}, nil
}

func (s *Service) confirmCreate(ctx context.Context, provider DecisionProvider, raw string, n normalize.Result, system models.SourceSystem, obs models.Observation) (decision.CreateDecision, error) {
	d, err := provider.ConfirmCreate(ctx, decision.CreatePrompt{
		RawName:      raw,
		DisplayName:  n.Display,
		SourceSystem: system,
		Observation:  obs,
		Suggestions:  s.suggest(ctx, n),
	})
	if err != nil {
		return decision.CreateDecision{}, dErrors.Wrap(err, dErrors.CodeInternal, "create confirmation failed")
	}
	if !d.Create {
		s.logger.InfoContext(ctx, "athlete_create_skipped", "name", n.Display, "source_system", system)
	}
	return d, nil
}

// createAthlete inserts a new athlete. Callers own the transaction.
func (s *Service) createAthlete(ctx context.Context, n normalize.Result, system models.SourceSystem, sourceAthleteID string, obs models.Observation) (*models.Athlete, error) {
	a, err := models.NewAthlete(id.NewAthleteID(), n.Display, system, sourceAthleteID, obs, requestcontext.Now(ctx))
	if err != nil {
		return nil, invalidName(n.Display, err)
	}
	if err := s.athletes.Create(ctx, a); err != nil {
		if errors.Is(err, sentinel.ErrConflict) {
			return nil, dErrors.Wrap(err, dErrors.CodeConflict, "athlete id already exists")
		}
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to create athlete")
	}
	return a, nil
}

// createMapped inserts a new athlete together with its source mapping. A
// mapping that already points elsewhere aborts the unit of work so no athlete
// is left without a mapping.
func (s *Service) createMapped(ctx context.Context, n normalize.Result, system models.SourceSystem, sourceKey string, obs models.Observation) (*models.Athlete, error) {
	a, err := s.createAthlete(ctx, n, system, sourceKey, obs)
	if err != nil {
		return nil, err
	}
	stored, err := s.saveMapping(ctx, system, sourceKey, a.ID)
	if err != nil {
		return nil, err
	}
	if stored != a.ID {
		return nil, dErrors.New(dErrors.CodeConflict,
			fmt.Sprintf("source id %s/%s is already mapped to %s", system, sourceKey, stored))
	}
	return a, nil
}

// saveMapping persists (system, sourceKey) -> athleteID unless the key is
// already mapped, and returns the athlete the key resolves to afterwards.
func (s *Service) saveMapping(ctx context.Context, system models.SourceSystem, sourceKey string, athleteID id.AthleteID) (id.AthleteID, error) {
	stored, err := s.mappings.Save(ctx, &models.SourceMapping{
		SourceSystem:    system,
		SourceAthleteID: sourceKey,
		AthleteID:       athleteID,
		CreatedAt:       requestcontext.Now(ctx),
	})
	if err != nil {
		return id.AthleteID{}, dErrors.Wrap(err, dErrors.CodePersistence, "failed to save source mapping")
	}
	return stored.AthleteID, nil
}

func (s *Service) created(ctx context.Context, a *models.Athlete) {
	s.metrics.IncrementResolution("created")
	s.logger.InfoContext(ctx, "athlete_created",
		"athlete_id", a.ID,
		"display_name", a.DisplayName,
		"source_system", a.SourceSystem,
	)
	s.publish(ctx, events.Event{
		Type:            events.AthleteCreated,
		AthleteID:       a.ID,
		SourceSystem:    a.SourceSystem,
		SourceAthleteID: a.SourceAthleteID,
	})
}
