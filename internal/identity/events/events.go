// Package events publishes identity lifecycle events for downstream
// consumers such as warehouse loaders and flag dashboards.
package events

import (
	"context"
	"sync"
	"time"

	"roster/internal/identity/models"
	id "roster/pkg/domain"
)

// Type names an identity lifecycle event.
type Type string

const (
	AthleteCreated  Type = "athlete_created"
	AthleteEnriched Type = "athlete_enriched"
	AthleteMerged   Type = "athlete_merged"
)

// Event is transport-agnostic; publishers decide the encoding.
type Event struct {
	Type            Type                `json:"type"`
	AthleteID       id.AthleteID        `json:"athlete_id"`
	RetiredID       *id.AthleteID       `json:"retired_id,omitempty"`
	SourceSystem    models.SourceSystem `json:"source_system,omitempty"`
	SourceAthleteID string              `json:"source_athlete_id,omitempty"`
	Fields          []string            `json:"fields,omitempty"`
	Score           float64             `json:"score,omitempty"`
	RunID           string              `json:"run_id,omitempty"`
	Operator        string              `json:"operator,omitempty"`
	Timestamp       time.Time           `json:"timestamp"`
}

// Publisher delivers events. Implementations must be safe for concurrent use.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Publish(_ context.Context, e Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	return nil
}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfType filters recorded events.
func (r *Recorder) OfType(t Type) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
