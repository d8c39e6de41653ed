package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
)

type AthleteSuite struct {
	suite.Suite
	now time.Time
}

func TestAthleteSuite(t *testing.T) {
	suite.Run(t, new(AthleteSuite))
}

func (s *AthleteSuite) SetupTest() {
	s.now = time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
}

func ptr[T any](v T) *T { return &v }

func date(s string) *time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func (s *AthleteSuite) TestNewAthlete() {
	s.Run("derives normalized name from display", func() {
		a, err := NewAthlete(id.NewAthleteID(), "  José  Ramírez ", SourcePitching, "José Ramírez", Observation{}, s.now)
		s.Require().NoError(err)
		s.Equal("José Ramírez", a.DisplayName)
		s.Equal("jose ramirez", a.NormalizedName)
		s.Equal(s.now, a.CreatedAt)
		s.Equal(s.now, a.UpdatedAt)
	})

	s.Run("rejects nil id", func() {
		_, err := NewAthlete(id.AthleteID{}, "John Smith", SourcePitching, "x", Observation{}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("rejects empty name", func() {
		_, err := NewAthlete(id.NewAthleteID(), " -- ", SourcePitching, "x", Observation{}, s.now)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})
}

// TestEnrich_Monotonic: populated fields never change, whatever the new value.
func (s *AthleteSuite) TestEnrich_Monotonic() {
	a, err := NewAthlete(id.NewAthleteID(), "John Smith", SourceHitting, "john smith", Observation{}, s.now)
	s.Require().NoError(err)
	s.Nil(a.DateOfBirth)

	later := s.now.Add(time.Hour)
	changed := a.Enrich(Observation{DateOfBirth: date("2005-04-01"), Height: ptr(72.5)}, "", later)
	s.ElementsMatch([]string{"date_of_birth", "height"}, changed)
	s.Equal("2005-04-01", a.DateOfBirth.Format("2006-01-02"))
	s.Equal(later, a.UpdatedAt)

	latest := later.Add(time.Hour)
	changed = a.Enrich(Observation{
		DateOfBirth: date("1999-01-01"),
		Height:      ptr(80.0),
		Gender:      ptr("M"),
	}, "", latest)
	s.Equal([]string{"gender"}, changed)
	s.Equal("2005-04-01", a.DateOfBirth.Format("2006-01-02"))
	s.Equal(72.5, *a.Height)
	s.Equal(latest, a.UpdatedAt, "updated_at refreshes even without changes")
}

func (s *AthleteSuite) TestEnrich_BlankStringsAreNull() {
	a, err := NewAthlete(id.NewAthleteID(), "John Smith", SourceHitting, "john smith", Observation{Gender: ptr("  ")}, s.now)
	s.Require().NoError(err)
	s.Equal(0, a.PopulatedFields())

	changed := a.Enrich(Observation{Gender: ptr(" F "), Notes: ptr("")}, "", s.now)
	s.Equal([]string{"gender"}, changed)
	s.Equal("F", *a.Gender)
}

func (s *AthleteSuite) TestEnrich_DisplayName() {
	s.Run("replaces a machine name", func() {
		a, err := NewAthlete(id.NewAthleteID(), "john smith", SourceHitting, "john smith", Observation{}, s.now)
		s.Require().NoError(err)
		s.True(a.HasMachineName())

		changed := a.Enrich(Observation{}, "John Smith", s.now)
		s.Equal([]string{"display_name"}, changed)
		s.Equal("John Smith", a.DisplayName)
		s.Equal("john smith", a.NormalizedName)
	})

	s.Run("keeps a human spelling", func() {
		a, err := NewAthlete(id.NewAthleteID(), "John Smith", SourceHitting, "john smith", Observation{}, s.now)
		s.Require().NoError(err)

		changed := a.Enrich(Observation{}, "JOHN SMITH", s.now)
		s.Empty(changed)
		s.Equal("John Smith", a.DisplayName)
	})
}

func (s *AthleteSuite) TestEnrichmentFields_DoesNotMutate() {
	a, err := NewAthlete(id.NewAthleteID(), "John Smith", SourceHitting, "john smith", Observation{}, s.now)
	s.Require().NoError(err)

	fields := a.EnrichmentFields(Observation{Weight: ptr(190.0)}, "")
	s.Equal([]string{"weight"}, fields)
	s.Nil(a.Weight)
	s.Equal(s.now, a.UpdatedAt)
}

func TestClone_IsDeep(t *testing.T) {
	a, err := NewAthlete(id.NewAthleteID(), "John Smith", SourceHitting, "john smith",
		Observation{Height: ptr(70.0), Notes: ptr("lefty")}, time.Now())
	require.NoError(t, err)
	a.Domains[SourceHitting] = DomainStats{HasData: true, SessionCount: 2}

	c := a.Clone()
	*c.Height = 99
	*c.Notes = "changed"
	c.Domains[SourceHitting] = DomainStats{}

	assert.Equal(t, 70.0, *a.Height)
	assert.Equal(t, "lefty", *a.Notes)
	assert.True(t, a.Domains[SourceHitting].HasData)
}

func TestObservation_IsEmpty(t *testing.T) {
	assert.True(t, Observation{}.IsEmpty())
	assert.True(t, Observation{Gender: ptr(" ")}.IsEmpty())
	assert.False(t, Observation{Age: ptr(17.0)}.IsEmpty())
}

func TestObservation_Fill(t *testing.T) {
	record := Observation{DateOfBirth: date("2005-04-01"), Gender: ptr("")}
	operator := Observation{DateOfBirth: date("1999-01-01"), Gender: ptr("M"), Weight: ptr(80.0)}

	got := record.Fill(operator)
	require.NotNil(t, got.DateOfBirth)
	assert.Equal(t, "2005-04-01", got.DateOfBirth.Format("2006-01-02"))
	assert.Equal(t, "M", *got.Gender)
	assert.Equal(t, 80.0, *got.Weight)
	assert.Nil(t, got.Height)
}
