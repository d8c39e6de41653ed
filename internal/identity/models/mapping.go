package models

import (
	"time"

	id "roster/pkg/domain"
)

// SourceMapping pins a source system's athlete identifier to a canonical
// athlete. (SourceSystem, SourceAthleteID) is unique; many mappings may point
// at one athlete.
type SourceMapping struct {
	SourceSystem    SourceSystem
	SourceAthleteID string
	AthleteID       id.AthleteID
	CreatedAt       time.Time
}

// MappingKey is the primary key of a SourceMapping.
type MappingKey struct {
	SourceSystem    SourceSystem
	SourceAthleteID string
}

func (m SourceMapping) Key() MappingKey {
	return MappingKey{SourceSystem: m.SourceSystem, SourceAthleteID: m.SourceAthleteID}
}
