package models

import id "roster/pkg/domain"

// Record is one upstream observation of an athlete, as produced by the
// domain parsers. AthleteID is empty on input and annotated by attach.
type Record struct {
	Name         string
	SourceSystem SourceSystem
	Observation  Observation
	AthleteID    id.AthleteID
}

// MatchMethod describes how the matcher found an athlete.
type MatchMethod string

const (
	MatchMapping   MatchMethod = "mapping"
	MatchExact     MatchMethod = "exact"
	MatchFuzzy     MatchMethod = "fuzzy"
	MatchFuzzyBase MatchMethod = "fuzzy_base"
)

// Match is a resolved athlete with the evidence used to find it.
type Match struct {
	Athlete *Athlete
	Method  MatchMethod
	Score   float64
}

// BatchSummary reports the outcome counts of one attach run.
type BatchSummary struct {
	Total int `json:"total"`
	// Mapped rows resolved through an existing source mapping; Matched rows
	// were resolved by the matcher and newly mapped.
	Mapped   int `json:"mapped"`
	Matched  int `json:"matched"`
	Created  int `json:"created"`
	Enriched int `json:"enriched"`
	// Skipped covers unusable input and human skips; Deferred rows were left
	// unmapped for manual follow-up.
	Skipped  int `json:"skipped"`
	Deferred int `json:"deferred"`
	Errored  int `json:"errored"`
}
