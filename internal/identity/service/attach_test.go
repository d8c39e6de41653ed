package service

import (
	"context"
	"errors"
	"time"

	"roster/internal/identity/decision"
	"roster/internal/identity/events"
	"roster/internal/identity/models"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	"roster/pkg/platform/sentinel"
)

// failingAthletes fails inserts for one display name, standing in for a
// constraint violation or a dropped connection on a single row.
type failingAthletes struct {
	AthleteStore
	failOn string
}

func (f *failingAthletes) Create(ctx context.Context, a *models.Athlete) error {
	if a.DisplayName == f.failOn {
		return errors.New("connection reset by peer")
	}
	return f.AthleteStore.Create(ctx, a)
}

// lateMappings hides existing mappings from lookups, so Save is the first
// point where the matcher learns that another writer already mapped a key.
type lateMappings struct {
	MappingStore
}

func (l *lateMappings) Find(context.Context, models.MappingKey) (*models.SourceMapping, error) {
	return nil, sentinel.ErrNotFound
}

func (l *lateMappings) FindBySystem(context.Context, models.SourceSystem, []string) (map[string]id.AthleteID, error) {
	return map[string]id.AthleteID{}, nil
}

func records(names ...string) []models.Record {
	out := make([]models.Record, len(names))
	for i, n := range names {
		out[i] = models.Record{Name: n}
	}
	return out
}

func (s *ServiceSuite) attach(batch []models.Record, system models.SourceSystem, opts AttachOptions) *AttachResult {
	res, err := s.svc.Attach(s.ctx, batch, system, opts)
	s.Require().NoError(err)
	return res
}

func (s *ServiceSuite) TestAttach_CreatesAndMapsUnmatchedRows() {
	res := s.attach(records("Cody Yarborough CY"), models.SourceArmAction, AttachOptions{Mode: ModeResolve})

	s.Equal(models.BatchSummary{Total: 1, Created: 1}, res.Summary)
	s.Require().Len(res.Touched, 1)
	s.Equal(res.Touched[0], res.Records[0].AthleteID)
	s.Equal(models.SourceArmAction, res.Records[0].SourceSystem)

	a := s.reload(res.Records[0].AthleteID)
	s.Equal("Cody Yarborough", a.DisplayName)
	s.Equal("CY", a.SourceAthleteID)

	m, err := s.mappings.Find(s.ctx, models.MappingKey{SourceSystem: models.SourceArmAction, SourceAthleteID: "CY"})
	s.Require().NoError(err)
	s.Equal(a.ID, m.AthleteID)
}

func (s *ServiceSuite) TestAttach_ReRunIsANoOp() {
	batch := []models.Record{
		{Name: "Cody Yarborough CY", Observation: models.Observation{Height: ptr(74.0)}},
		{Name: "maria diaz", Observation: models.Observation{DateOfBirth: date("2004-02-03")}},
	}
	first := s.attach(batch, models.SourcePitching, AttachOptions{Mode: ModeResolve})
	s.Equal(2, first.Summary.Created)

	before := map[string]*models.Athlete{}
	for _, r := range first.Records {
		before[r.AthleteID.String()] = s.reload(r.AthleteID)
	}
	eventsBefore := len(s.events.Events())

	res, err := s.svc.Attach(s.at(24*time.Hour), batch, models.SourcePitching, AttachOptions{Mode: ModeResolve})
	s.Require().NoError(err)

	s.Equal(models.BatchSummary{Total: 2, Mapped: 2}, res.Summary)
	s.Equal(2, s.count())
	s.Len(s.events.Events(), eventsBefore)
	for i, r := range res.Records {
		s.Equal(first.Records[i].AthleteID, r.AthleteID)
		s.Equal(before[r.AthleteID.String()], s.reload(r.AthleteID), "re-attach must not write")
	}
}

func (s *ServiceSuite) TestAttach_MappingIsStableAcrossSpellings() {
	first := s.attach(records("Cody Yarborough CY"), models.SourceArmAction, AttachOptions{Mode: ModeResolve})
	cody := first.Records[0].AthleteID

	// An exact-name match for the new spelling exists, but the mapping wins.
	s.seed("C Yarborough", models.SourcePitching, time.Hour)

	res := s.attach(records("C. Yarborough CY"), models.SourceArmAction, AttachOptions{Mode: ModeResolve})
	s.Equal(1, res.Summary.Mapped)
	s.Equal(cody, res.Records[0].AthleteID)
}

func (s *ServiceSuite) TestAttach_EnrichmentIsMonotonic() {
	// John Smith arrives without a DOB, a second source supplies one, a third
	// source's conflicting DOB is ignored.
	res := s.attach(records("John Smith"), models.SourcePitching, AttachOptions{Mode: ModeResolve})
	s.Require().Equal(1, res.Summary.Created)
	john := res.Records[0].AthleteID
	s.Nil(s.reload(john).DateOfBirth)

	res = s.attach([]models.Record{{Name: "John Smith", Observation: models.Observation{DateOfBirth: date("2005-04-01")}}},
		models.SourceHitting, AttachOptions{Mode: ModeResolve})
	s.Equal(models.BatchSummary{Total: 1, Matched: 1, Enriched: 1}, res.Summary)
	s.Equal(john, res.Records[0].AthleteID)
	s.Equal("2005-04-01", s.reload(john).DateOfBirth.Format(time.DateOnly))

	res = s.attach([]models.Record{{Name: "John Smith", Observation: models.Observation{DateOfBirth: date("1999-01-01")}}},
		models.SourceMobility, AttachOptions{Mode: ModeResolve})
	s.Equal(models.BatchSummary{Total: 1, Matched: 1}, res.Summary)
	s.Equal(john, res.Records[0].AthleteID)
	s.Equal("2005-04-01", s.reload(john).DateOfBirth.Format(time.DateOnly))
}

func (s *ServiceSuite) TestAttach_MappedRowsAreEnrichedWithoutOverwriting() {
	s.attach(records("Cody Yarborough CY"), models.SourceArmAction, AttachOptions{Mode: ModeResolve})

	res := s.attach([]models.Record{{
		Name:        "Cody Yarborough CY",
		Observation: models.Observation{Weight: ptr(88.0), Gender: ptr("M")},
	}}, models.SourceArmAction, AttachOptions{Mode: ModeDefer})

	s.Equal(models.BatchSummary{Total: 1, Mapped: 1, Enriched: 1}, res.Summary)
	a := s.reload(res.Records[0].AthleteID)
	s.Equal(88.0, *a.Weight)
	s.Equal("M", *a.Gender)
	s.Len(s.events.OfType(events.AthleteEnriched), 1)
}

func (s *ServiceSuite) TestAttach_ExistingMappingWinsOverTheMatch() {
	matched := s.seed("Maria Diaz", models.SourcePitching, 0)
	mapped := s.seed("Mary Diaz-Ortiz", models.SourceMobility, time.Hour)
	_, err := s.mappings.Save(s.ctx, &models.SourceMapping{
		SourceSystem:    models.SourceHitting,
		SourceAthleteID: "maria diaz",
		AthleteID:       mapped.ID,
	})
	s.Require().NoError(err)

	svc, err := New(s.athletes, &lateMappings{MappingStore: s.mappings}, s.facts, WithLogger(s.logger))
	s.Require().NoError(err)
	res, err := svc.Attach(s.ctx, []models.Record{{
		Name:        "Maria Diaz",
		Observation: models.Observation{Height: ptr(170.0)},
	}}, models.SourceHitting, AttachOptions{Mode: ModeResolve})
	s.Require().NoError(err)

	s.Equal(mapped.ID, res.Records[0].AthleteID)
	s.Equal(170.0, *s.reload(mapped.ID).Height)
	s.Nil(s.reload(matched.ID).Height)
}

func (s *ServiceSuite) TestAttach_DeferModeReportsUnmappedRows() {
	s.seed("Maria Diaz", models.SourceHitting, 0)

	res := s.attach(records("Maria Diaz", "Ana Lopez"), models.SourcePitching, AttachOptions{Mode: ModeDefer})

	s.Equal(models.BatchSummary{Total: 2, Deferred: 2}, res.Summary)
	s.Require().Len(res.Unmapped, 2)
	s.Equal(0, res.Unmapped[0].Index)
	s.Equal("maria diaz", res.Unmapped[0].SourceKey)
	s.True(res.Records[0].AthleteID.IsNil())
	s.Equal(1, s.count(), "defer mode never creates")
}

func (s *ServiceSuite) TestAttach_DeclinedCreateIsASkip() {
	s.svc = s.newService(WithDecisionProvider(decision.AutoSkip{}))

	res := s.attach(records("Ana Lopez"), models.SourceMobility, AttachOptions{Mode: ModeResolve})

	s.Equal(models.BatchSummary{Total: 1, Skipped: 1}, res.Summary)
	s.Empty(res.Errors)
	s.Require().Len(res.Unmapped, 1)
	s.Zero(s.count())
}

func (s *ServiceSuite) TestAttach_PerRowOptionOverridesServiceProvider() {
	s.svc = s.newService(WithDecisionProvider(decision.AutoSkip{}))

	res := s.attach(records("Ana Lopez"), models.SourceMobility, AttachOptions{Mode: ModeResolve, Decisions: decision.AutoCreate{}})
	s.Equal(1, res.Summary.Created)
}

func (s *ServiceSuite) TestAttach_RowFailuresDoNotAbortTheBatch() {
	svc, err := New(&failingAthletes{AthleteStore: s.athletes, failOn: "Bad Row"}, s.mappings, s.facts, WithLogger(s.logger))
	s.Require().NoError(err)

	res, err := svc.Attach(s.ctx, records("Ana Lopez", "Bad Row", "", "Ben Ortiz"), models.SourcePitching, AttachOptions{Mode: ModeResolve})
	s.Require().NoError(err)

	s.Equal(models.BatchSummary{Total: 4, Created: 2, Skipped: 1, Errored: 1}, res.Summary)
	s.Require().Len(res.Errors, 2)

	byIndex := map[int]error{}
	for _, e := range res.Errors {
		byIndex[e.Index] = e.Err
	}
	s.True(dErrors.HasCode(byIndex[1], dErrors.CodePersistence))
	s.ErrorIs(byIndex[2], ErrInvalidName)
	s.True(res.Records[1].AthleteID.IsNil())
	s.False(res.Records[3].AthleteID.IsNil())
	s.Equal(2, s.count())
}

func (s *ServiceSuite) TestAttach_BatchCacheSharesResolutionsWithinARun() {
	res := s.attach(records("Cody Yarborough CY", "Cody Yarborough"), models.SourceArmAction, AttachOptions{Mode: ModeResolve})

	s.Equal(models.BatchSummary{Total: 2, Created: 1, Matched: 1}, res.Summary)
	s.Equal(res.Records[0].AthleteID, res.Records[1].AthleteID)
	s.Equal(1, s.count())
}

func (s *ServiceSuite) TestAttach_RefreshesFlagsForTouchedAthletes() {
	first := s.attach(records("Maria Diaz"), models.SourceForcePlate, AttachOptions{Mode: ModeResolve})
	maria := first.Records[0].AthleteID
	d, err := models.LookupDomain(models.SourceForcePlate)
	s.Require().NoError(err)
	s.Require().NoError(s.facts.Insert(s.ctx, d, maria, "2024-03-01"))

	s.attach(records("Maria Diaz"), models.SourceForcePlate, AttachOptions{Mode: ModeDefer, RefreshFlags: true})

	s.Equal(models.DomainStats{HasData: true, SessionCount: 1}, s.reload(maria).Domains[models.SourceForcePlate])
}

func (s *ServiceSuite) TestAttach_RejectsBadInput() {
	s.Run("unknown source system", func() {
		_, err := s.svc.Attach(s.ctx, records("Maria Diaz"), models.SourceSystem("radar"), AttachOptions{})
		s.ErrorIs(err, models.ErrUnknownSourceSystem)
	})

	s.Run("row tagged with another source system is skipped", func() {
		batch := []models.Record{{Name: "Maria Diaz", SourceSystem: models.SourceHitting}}
		res := s.attach(batch, models.SourcePitching, AttachOptions{Mode: ModeResolve})
		s.Equal(models.BatchSummary{Total: 1, Skipped: 1}, res.Summary)
	})

	s.Run("cancelled context stops between rows", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()
		res, err := s.svc.Attach(ctx, records("Maria Diaz", "Ana Lopez"), models.SourcePitching, AttachOptions{Mode: ModeResolve})
		s.True(dErrors.HasCode(err, dErrors.CodeTimeout))
		s.Require().NotNil(res)
		s.Equal(0, res.Summary.Created)
	})
}
