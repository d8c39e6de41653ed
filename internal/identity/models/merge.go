package models

import id "roster/pkg/domain"

// MergeCandidate is a pair of athletes whose names score at or above the
// duplicate threshold. A is always the earlier-created athlete of the pair.
type MergeCandidate struct {
	A     Athlete
	B     Athlete
	Score float64
}

// MergeStatus is the terminal state of one merge attempt.
type MergeStatus string

const (
	MergeApplied MergeStatus = "merged"
	MergeSkipped MergeStatus = "skipped"
	MergeFailed  MergeStatus = "failed"
)

// MergeOutcome records what a merge did.
type MergeOutcome struct {
	Status            MergeStatus    `json:"status"`
	SurvivorID        id.AthleteID   `json:"survivor_id"`
	RetiredID         id.AthleteID   `json:"retired_id"`
	Score             float64        `json:"score"`
	MappingsRepointed int            `json:"mappings_repointed"`
	FactRowsRepointed map[string]int `json:"fact_rows_repointed,omitempty"`
	FieldsFilled      []string       `json:"fields_filled,omitempty"`
	Reason            string         `json:"reason,omitempty"`
}

// DedupeReport summarizes a duplicate detection run. Candidates are reported
// with their scores whether or not they were merged.
type DedupeReport struct {
	Candidates []MergeCandidate
	Outcomes   []MergeOutcome
	Merged     int
	Skipped    int
	Errored    int
}
