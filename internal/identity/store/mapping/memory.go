package mapping

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"roster/internal/identity/models"
	id "roster/pkg/domain"
	"roster/pkg/platform/sentinel"
)

// InMemory is a map-backed mapping store.
type InMemory struct {
	mu       sync.RWMutex
	mappings map[models.MappingKey]models.SourceMapping
}

func NewInMemory() *InMemory {
	return &InMemory{mappings: make(map[models.MappingKey]models.SourceMapping)}
}

func (s *InMemory) Find(_ context.Context, key models.MappingKey) (*models.SourceMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[key]
	if !ok {
		return nil, fmt.Errorf("mapping %s/%s: %w", key.SourceSystem, key.SourceAthleteID, sentinel.ErrNotFound)
	}
	return &m, nil
}

func (s *InMemory) FindBySystem(_ context.Context, system models.SourceSystem, sourceIDs []string) (map[string]id.AthleteID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]id.AthleteID, len(sourceIDs))
	for _, sourceID := range sourceIDs {
		if m, ok := s.mappings[models.MappingKey{SourceSystem: system, SourceAthleteID: sourceID}]; ok {
			out[sourceID] = m.AthleteID
		}
	}
	return out, nil
}

func (s *InMemory) Save(_ context.Context, m *models.SourceMapping) (*models.SourceMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.mappings[m.Key()]; ok {
		return &existing, nil
	}
	s.mappings[m.Key()] = *m
	saved := *m
	return &saved, nil
}

func (s *InMemory) ListByAthlete(_ context.Context, athleteID id.AthleteID) ([]*models.SourceMapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.SourceMapping
	for _, m := range s.mappings {
		if m.AthleteID == athleteID {
			copied := m
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].SourceSystem != out[j].SourceSystem {
			return out[i].SourceSystem < out[j].SourceSystem
		}
		return out[i].SourceAthleteID < out[j].SourceAthleteID
	})
	return out, nil
}

func (s *InMemory) Repoint(_ context.Context, from, to id.AthleteID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for key, m := range s.mappings {
		if m.AthleteID == from {
			m.AthleteID = to
			s.mappings[key] = m
			n++
		}
	}
	return n, nil
}

// References reports whether any mapping points at athleteID.
func (s *InMemory) References(athleteID id.AthleteID) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.mappings {
		if m.AthleteID == athleteID {
			return true
		}
	}
	return false
}
