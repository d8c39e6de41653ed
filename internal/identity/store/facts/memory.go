package facts

import (
	"context"
	"sync"

	"roster/internal/identity/models"
	id "roster/pkg/domain"
)

type row struct {
	athleteID id.AthleteID
	session   string
}

// InMemory keeps fact rows per fact table.
type InMemory struct {
	mu     sync.RWMutex
	tables map[string][]row
}

func NewInMemory() *InMemory {
	return &InMemory{tables: make(map[string][]row)}
}

func (s *InMemory) Stats(_ context.Context, d models.Domain, athleteID id.AthleteID) (models.DomainStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var (
		rows     int
		sessions = make(map[string]struct{})
	)
	for _, r := range s.tables[d.FactTable] {
		if r.athleteID != athleteID {
			continue
		}
		rows++
		sessions[r.session] = struct{}{}
	}
	stats := models.DomainStats{HasData: rows > 0, SessionCount: len(sessions)}
	if d.SessionColumn == "" {
		stats.SessionCount = rows
	}
	return stats, nil
}

func (s *InMemory) Repoint(_ context.Context, d models.Domain, from, to id.AthleteID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	rows := s.tables[d.FactTable]
	for i := range rows {
		if rows[i].athleteID == from {
			rows[i].athleteID = to
			n++
		}
	}
	return n, nil
}

func (s *InMemory) Insert(_ context.Context, d models.Domain, athleteID id.AthleteID, session string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[d.FactTable] = append(s.tables[d.FactTable], row{athleteID: athleteID, session: session})
	return nil
}

// References reports whether any fact row points at athleteID.
func (s *InMemory) References(athleteID id.AthleteID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, rows := range s.tables {
		for _, r := range rows {
			if r.athleteID == athleteID {
				return true
			}
		}
	}
	return false
}
