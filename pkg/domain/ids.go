package domain

import (
	"github.com/google/uuid"

	dErrors "roster/pkg/domain-errors"
)

// AthleteID identifies a canonical athlete. IDs are generated once and never
// reused, including after the athlete is retired by a merge.
type AthleteID uuid.UUID

// NewAthleteID allocates a fresh random ID.
func NewAthleteID() AthleteID {
	return AthleteID(uuid.New())
}

// ParseAthleteID validates s as a non-nil UUID.
func ParseAthleteID(s string) (AthleteID, error) {
	if s == "" {
		return AthleteID{}, dErrors.New(dErrors.CodeInvalidInput, "athlete id is required")
	}
	parsed, err := uuid.Parse(s)
	if err != nil {
		return AthleteID{}, dErrors.Wrap(err, dErrors.CodeInvalidInput, "invalid athlete id")
	}
	if parsed == uuid.Nil {
		return AthleteID{}, dErrors.New(dErrors.CodeInvalidInput, "athlete id must not be nil")
	}
	return AthleteID(parsed), nil
}

func (id AthleteID) String() string {
	return uuid.UUID(id).String()
}

// IsNil reports whether id is the zero UUID.
func (id AthleteID) IsNil() bool {
	return uuid.UUID(id) == uuid.Nil
}

// Less orders IDs by their canonical string form; used as the final tie-break
// wherever deterministic ordering is required.
func (id AthleteID) Less(other AthleteID) bool {
	return id.String() < other.String()
}

func (id AthleteID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *AthleteID) UnmarshalText(b []byte) error {
	parsed, err := ParseAthleteID(string(b))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
