package commands

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"roster/internal/identity/models"
)

// recordLine is one JSON-lines input row as the domain parsers emit it.
type recordLine struct {
	Name            string   `json:"name"`
	SourceSystem    string   `json:"source_system,omitempty"`
	DateOfBirth     string   `json:"date_of_birth,omitempty"`
	Age             *float64 `json:"age,omitempty"`
	AgeAtCollection *float64 `json:"age_at_collection,omitempty"`
	Gender          *string  `json:"gender,omitempty"`
	Height          *float64 `json:"height,omitempty"`
	Weight          *float64 `json:"weight,omitempty"`
	Notes           *string  `json:"notes,omitempty"`
}

// attachedLine is an input row annotated with its canonical athlete.
type attachedLine struct {
	recordLine
	AthleteID string `json:"athlete_uuid,omitempty"`
}

// readRecords decodes JSON-lines from r. Rows without a source system take
// system; blank lines are ignored.
func readRecords(r io.Reader, system models.SourceSystem) ([]models.Record, error) {
	var out []models.Record
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rl recordLine
		if err := json.Unmarshal([]byte(text), &rl); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rec, err := rl.record(system)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read records: %w", err)
	}
	return out, nil
}

func (rl recordLine) record(system models.SourceSystem) (models.Record, error) {
	rec := models.Record{
		Name:         rl.Name,
		SourceSystem: system,
		Observation: models.Observation{
			Age:             rl.Age,
			AgeAtCollection: rl.AgeAtCollection,
			Gender:          rl.Gender,
			Height:          rl.Height,
			Weight:          rl.Weight,
			Notes:           rl.Notes,
		},
	}
	if rl.SourceSystem != "" {
		rec.SourceSystem = models.SourceSystem(rl.SourceSystem)
	}
	if rl.DateOfBirth != "" {
		dob, err := time.Parse(time.DateOnly, rl.DateOfBirth)
		if err != nil {
			return models.Record{}, fmt.Errorf("date_of_birth %q: want YYYY-MM-DD", rl.DateOfBirth)
		}
		rec.Observation.DateOfBirth = &dob
	}
	return rec, nil
}

func writeAttached(w io.Writer, records []models.Record) error {
	enc := json.NewEncoder(w)
	for _, rec := range records {
		out := attachedLine{recordLine: recordLine{
			Name:            rec.Name,
			SourceSystem:    string(rec.SourceSystem),
			Age:             rec.Observation.Age,
			AgeAtCollection: rec.Observation.AgeAtCollection,
			Gender:          rec.Observation.Gender,
			Height:          rec.Observation.Height,
			Weight:          rec.Observation.Weight,
			Notes:           rec.Observation.Notes,
		}}
		if rec.Observation.DateOfBirth != nil {
			out.DateOfBirth = rec.Observation.DateOfBirth.Format(time.DateOnly)
		}
		if !rec.AthleteID.IsNil() {
			out.AthleteID = rec.AthleteID.String()
		}
		if err := enc.Encode(out); err != nil {
			return err
		}
	}
	return nil
}
