package decision

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"roster/internal/identity/models"
	id "roster/pkg/domain"
)

type ConsoleSuite struct {
	suite.Suite
	ctx context.Context
	out *bytes.Buffer
}

func TestConsoleSuite(t *testing.T) {
	suite.Run(t, new(ConsoleSuite))
}

func (s *ConsoleSuite) SetupTest() {
	s.ctx = context.Background()
	s.out = &bytes.Buffer{}
}

func (s *ConsoleSuite) console(input string, opts ...ConsoleOption) *Console {
	return NewConsole(strings.NewReader(input), s.out, opts...)
}

func (s *ConsoleSuite) prompt() CreatePrompt {
	return CreatePrompt{
		RawName:      "Cody Yarborough CY",
		DisplayName:  "Cody Yarborough",
		SourceSystem: models.SourcePitching,
	}
}

func (s *ConsoleSuite) TestConfirmCreate() {
	s.Run("yes creates", func() {
		d, err := s.console("y\n").ConfirmCreate(s.ctx, s.prompt())
		s.Require().NoError(err)
		s.True(d.Create)
		s.True(d.Observation.IsEmpty())
		s.Contains(s.out.String(), "Cody Yarborough")
	})

	for name, answer := range map[string]string{"no": "n\n", "skip": "s\n", "blank": "\n", "other": "maybe\n"} {
		s.Run("declines on "+name, func() {
			d, err := s.console(answer).ConfirmCreate(s.ctx, s.prompt())
			s.Require().NoError(err)
			s.False(d.Create)
		})
	}

	s.Run("end of input is a skip", func() {
		d, err := s.console("").ConfirmCreate(s.ctx, s.prompt())
		s.Require().NoError(err)
		s.False(d.Create)
	})

	s.Run("cancelled context is a skip", func() {
		ctx, cancel := context.WithCancel(s.ctx)
		cancel()
		d, err := s.console("y\n").ConfirmCreate(ctx, s.prompt())
		s.Require().NoError(err)
		s.False(d.Create)
	})

	s.Run("lists suggestions", func() {
		p := s.prompt()
		p.Suggestions = []models.Match{{
			Athlete: &models.Athlete{DisplayName: "Cody Yarbrough", CreatedAt: time.Date(2023, 4, 2, 0, 0, 0, 0, time.UTC)},
			Method:  models.MatchFuzzy,
			Score:   0.93,
		}}
		_, err := s.console("n\n").ConfirmCreate(s.ctx, p)
		s.Require().NoError(err)
		s.Contains(s.out.String(), "Cody Yarbrough  score=0.93  created=2023-04-02")
	})
}

func (s *ConsoleSuite) TestConfirmCreateCollectsDemographics() {
	s.Run("parses supplied values and ignores bad ones", func() {
		d, err := s.console("y\n2001-07-14\nM\nabc\n82.5\n", WithDemographicPrompts()).ConfirmCreate(s.ctx, s.prompt())
		s.Require().NoError(err)
		s.Require().True(d.Create)
		s.Require().NotNil(d.Observation.DateOfBirth)
		s.Equal("2001-07-14", d.Observation.DateOfBirth.Format(time.DateOnly))
		s.Equal("M", *d.Observation.Gender)
		s.Nil(d.Observation.Height)
		s.Equal(82.5, *d.Observation.Weight)
		s.Contains(s.out.String(), `ignoring "abc"`)
	})

	s.Run("does not ask for fields the record already has", func() {
		dob := time.Date(2001, 7, 14, 0, 0, 0, 0, time.UTC)
		gender := "F"
		height := 170.0
		weight := 60.0
		p := s.prompt()
		p.Observation = models.Observation{DateOfBirth: &dob, Gender: &gender, Height: &height, Weight: &weight}

		d, err := s.console("y\n", WithDemographicPrompts()).ConfirmCreate(s.ctx, p)
		s.Require().NoError(err)
		s.True(d.Create)
		s.True(d.Observation.IsEmpty())
		s.NotContains(s.out.String(), "date of birth")
	})
}

func (s *ConsoleSuite) TestConfirmMerge() {
	candidate := models.MergeCandidate{
		A:     models.Athlete{ID: id.NewAthleteID(), DisplayName: "Ryan Weiss"},
		B:     models.Athlete{ID: id.NewAthleteID(), DisplayName: "Ryan Weiss_TG"},
		Score: 0.87,
	}

	s.Run("yes merges", func() {
		d, err := s.console("yes\n").ConfirmMerge(s.ctx, candidate)
		s.Require().NoError(err)
		s.True(d.Merge)
		s.Contains(s.out.String(), "score 0.87")
	})

	s.Run("anything else skips", func() {
		d, err := s.console("n\n").ConfirmMerge(s.ctx, candidate)
		s.Require().NoError(err)
		s.False(d.Merge)
	})

	s.Run("end of input skips", func() {
		d, err := s.console("").ConfirmMerge(s.ctx, candidate)
		s.Require().NoError(err)
		s.False(d.Merge)
	})
}

func (s *ConsoleSuite) TestAutoProviders() {
	d, err := AutoSkip{}.ConfirmCreate(s.ctx, s.prompt())
	s.Require().NoError(err)
	s.False(d.Create)

	m, err := AutoSkip{}.ConfirmMerge(s.ctx, models.MergeCandidate{})
	s.Require().NoError(err)
	s.False(m.Merge)

	d, err = AutoCreate{}.ConfirmCreate(s.ctx, s.prompt())
	s.Require().NoError(err)
	s.True(d.Create)

	m, err = AutoCreate{}.ConfirmMerge(s.ctx, models.MergeCandidate{})
	s.Require().NoError(err)
	s.False(m.Merge)
}
