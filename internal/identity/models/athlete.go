package models

import (
	"strings"
	"time"

	"roster/internal/identity/normalize"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
)

// DomainStats summarizes one source system's fact rows for an athlete.
type DomainStats struct {
	HasData      bool
	SessionCount int
}

// Athlete is the canonical entity representing one real person across all
// source systems.
//
// Invariants:
//   - ID is immutable and never reused
//   - NormalizedName == normalize.Fold(DisplayName) at all times
//   - optional fields are only ever filled in, never cleared or overwritten,
//     outside of merge reconciliation
type Athlete struct {
	ID              id.AthleteID
	DisplayName     string
	NormalizedName  string
	DateOfBirth     *time.Time
	Age             *float64
	AgeAtCollection *float64
	Gender          *string
	Height          *float64
	Weight          *float64
	Notes           *string
	SourceSystem    SourceSystem
	SourceAthleteID string
	Domains         map[SourceSystem]DomainStats
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Observation carries candidate demographic values seen on one record.
// Nil pointers and blank strings mean "not observed".
type Observation struct {
	DateOfBirth     *time.Time
	Age             *float64
	AgeAtCollection *float64
	Gender          *string
	Height          *float64
	Weight          *float64
	Notes           *string
}

// NewAthlete constructs an athlete, deriving the normalized name from the
// display name.
func NewAthlete(athleteID id.AthleteID, display string, system SourceSystem, sourceAthleteID string, obs Observation, now time.Time) (*Athlete, error) {
	if athleteID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "athlete id is required")
	}
	display = strings.Join(strings.Fields(display), " ")
	normalized := normalize.Fold(display)
	if normalized == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "athlete name is required")
	}
	a := &Athlete{
		ID:              athleteID,
		DisplayName:     display,
		NormalizedName:  normalized,
		SourceSystem:    system,
		SourceAthleteID: sourceAthleteID,
		Domains:         make(map[SourceSystem]DomainStats),
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	a.fill(obs)
	return a, nil
}

// Rename replaces the display name and re-derives the normalized name.
func (a *Athlete) Rename(display string) {
	a.DisplayName = strings.Join(strings.Fields(display), " ")
	a.NormalizedName = normalize.Fold(a.DisplayName)
}

// HasMachineName reports whether the stored display name is just its own
// normalized form, i.e. no human-friendly spelling has been recorded yet.
func (a *Athlete) HasMachineName() bool {
	return a.DisplayName == a.NormalizedName
}

// EnrichmentFields lists the fields Enrich would change, without mutating.
func (a *Athlete) EnrichmentFields(obs Observation, display string) []string {
	clone := a.Clone()
	return clone.apply(obs, display)
}

// Enrich fills null fields from obs and never overwrites populated ones. The
// display name is replaced only while HasMachineName holds. UpdatedAt is
// always refreshed. It returns the names of the changed fields.
func (a *Athlete) Enrich(obs Observation, display string, now time.Time) []string {
	changed := a.apply(obs, display)
	a.UpdatedAt = now
	return changed
}

func (a *Athlete) apply(obs Observation, display string) []string {
	changed := a.fill(obs)
	display = strings.Join(strings.Fields(display), " ")
	if display != "" && a.HasMachineName() && display != a.DisplayName && normalize.Fold(display) != "" {
		a.Rename(display)
		changed = append(changed, "display_name")
	}
	return changed
}

func (a *Athlete) fill(obs Observation) []string {
	var changed []string
	if a.DateOfBirth == nil && obs.DateOfBirth != nil {
		dob := *obs.DateOfBirth
		a.DateOfBirth = &dob
		changed = append(changed, "date_of_birth")
	}
	if fillFloat(&a.Age, obs.Age) {
		changed = append(changed, "age")
	}
	if fillFloat(&a.AgeAtCollection, obs.AgeAtCollection) {
		changed = append(changed, "age_at_collection")
	}
	if fillString(&a.Gender, obs.Gender) {
		changed = append(changed, "gender")
	}
	if fillFloat(&a.Height, obs.Height) {
		changed = append(changed, "height")
	}
	if fillFloat(&a.Weight, obs.Weight) {
		changed = append(changed, "weight")
	}
	if fillString(&a.Notes, obs.Notes) {
		changed = append(changed, "notes")
	}
	return changed
}

// Observation returns the athlete's own demographics as an observation, used
// to reconcile a retired athlete into its survivor.
func (a *Athlete) Observation() Observation {
	return Observation{
		DateOfBirth:     a.DateOfBirth,
		Age:             a.Age,
		AgeAtCollection: a.AgeAtCollection,
		Gender:          a.Gender,
		Height:          a.Height,
		Weight:          a.Weight,
		Notes:           a.Notes,
	}
}

// PopulatedFields counts non-null optional demographics.
func (a *Athlete) PopulatedFields() int {
	n := 0
	if a.DateOfBirth != nil {
		n++
	}
	for _, f := range []*float64{a.Age, a.AgeAtCollection, a.Height, a.Weight} {
		if f != nil {
			n++
		}
	}
	for _, s := range []*string{a.Gender, a.Notes} {
		if !blank(s) {
			n++
		}
	}
	return n
}

// Clone returns a deep copy.
func (a *Athlete) Clone() *Athlete {
	c := *a
	if a.DateOfBirth != nil {
		dob := *a.DateOfBirth
		c.DateOfBirth = &dob
	}
	c.Age = cloneFloat(a.Age)
	c.AgeAtCollection = cloneFloat(a.AgeAtCollection)
	c.Height = cloneFloat(a.Height)
	c.Weight = cloneFloat(a.Weight)
	c.Gender = cloneString(a.Gender)
	c.Notes = cloneString(a.Notes)
	c.Domains = make(map[SourceSystem]DomainStats, len(a.Domains))
	for k, v := range a.Domains {
		c.Domains[k] = v
	}
	return &c
}

// Fill returns o with its unobserved fields taken from other. Observed values
// in o always win.
func (o Observation) Fill(other Observation) Observation {
	if o.DateOfBirth == nil {
		o.DateOfBirth = other.DateOfBirth
	}
	if o.Age == nil {
		o.Age = other.Age
	}
	if o.AgeAtCollection == nil {
		o.AgeAtCollection = other.AgeAtCollection
	}
	if blank(o.Gender) {
		o.Gender = other.Gender
	}
	if o.Height == nil {
		o.Height = other.Height
	}
	if o.Weight == nil {
		o.Weight = other.Weight
	}
	if blank(o.Notes) {
		o.Notes = other.Notes
	}
	return o
}

// IsEmpty reports whether the observation carries no values.
func (o Observation) IsEmpty() bool {
	return o.DateOfBirth == nil && o.Age == nil && o.AgeAtCollection == nil &&
		blank(o.Gender) && o.Height == nil && o.Weight == nil && blank(o.Notes)
}

func fillFloat(dst **float64, src *float64) bool {
	if *dst != nil || src == nil {
		return false
	}
	v := *src
	*dst = &v
	return true
}

func fillString(dst **string, src *string) bool {
	if !blank(*dst) || blank(src) {
		return false
	}
	v := strings.TrimSpace(*src)
	*dst = &v
	return true
}

func blank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

func cloneFloat(f *float64) *float64 {
	if f == nil {
		return nil
	}
	v := *f
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
