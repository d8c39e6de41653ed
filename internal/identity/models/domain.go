package models

import (
	"errors"
	"fmt"
	"sort"

	dErrors "roster/pkg/domain-errors"
)

// SourceSystem tags the measurement tool a record came from. Each source
// system owns one fact table and one pair of summary columns on athletes.
type SourceSystem string

const (
	SourceArmAction      SourceSystem = "arm_action"
	SourcePitching       SourceSystem = "pitching"
	SourceHitting        SourceSystem = "hitting"
	SourceMobility       SourceSystem = "mobility"
	SourceForcePlate     SourceSystem = "force_plate"
	SourceAthleticScreen SourceSystem = "athletic_screen"
)

// ErrUnknownSourceSystem is returned for a source system missing from the registry.
var ErrUnknownSourceSystem = errors.New("unknown source system")

// Domain binds a source system to the storage it summarizes.
//
// All identifiers here are fixed at compile time and are the only table and
// column names ever interpolated into SQL.
type Domain struct {
	System        SourceSystem
	FactTable     string
	FlagColumn    string
	CountColumn   string
	SessionColumn string // empty: every fact row counts as a session
}

var domains = map[SourceSystem]Domain{
	SourceArmAction: {
		System:        SourceArmAction,
		FactTable:     "arm_action_trials",
		FlagColumn:    "has_arm_action_data",
		CountColumn:   "arm_action_session_count",
		SessionColumn: "session_date",
	},
	SourcePitching: {
		System:        SourcePitching,
		FactTable:     "pitching_trials",
		FlagColumn:    "has_pitching_data",
		CountColumn:   "pitching_session_count",
		SessionColumn: "session_date",
	},
	SourceHitting: {
		System:        SourceHitting,
		FactTable:     "hitting_trials",
		FlagColumn:    "has_hitting_data",
		CountColumn:   "hitting_session_count",
		SessionColumn: "session_date",
	},
	SourceMobility: {
		System:        SourceMobility,
		FactTable:     "mobility_assessments",
		FlagColumn:    "has_mobility_data",
		CountColumn:   "mobility_session_count",
		SessionColumn: "assessment_date",
	},
	SourceForcePlate: {
		System:        SourceForcePlate,
		FactTable:     "force_plate_jumps",
		FlagColumn:    "has_force_plate_data",
		CountColumn:   "force_plate_session_count",
		SessionColumn: "session_date",
	},
	SourceAthleticScreen: {
		System:      SourceAthleticScreen,
		FactTable:   "athletic_screen_results",
		FlagColumn:  "has_athletic_screen_data",
		CountColumn: "athletic_screen_session_count",
	},
}

// LookupDomain returns the registered domain for system. Unknown systems fail
// fast instead of being skipped.
func LookupDomain(system SourceSystem) (Domain, error) {
	d, ok := domains[system]
	if !ok {
		return Domain{}, dErrors.Wrap(fmt.Errorf("%w: %q", ErrUnknownSourceSystem, string(system)),
			dErrors.CodeInvalidInput, "unsupported source system")
	}
	return d, nil
}

// ParseSourceSystem validates a free-text source system tag.
func ParseSourceSystem(s string) (SourceSystem, error) {
	system := SourceSystem(s)
	if _, err := LookupDomain(system); err != nil {
		return "", err
	}
	return system, nil
}

// Domains lists every registered domain ordered by source system. The merge
// path re-points each of their fact tables.
func Domains() []Domain {
	out := make([]Domain, 0, len(domains))
	for _, d := range domains {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].System < out[j].System })
	return out
}

func (s SourceSystem) String() string {
	return string(s)
}
