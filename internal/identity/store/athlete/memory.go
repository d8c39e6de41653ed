package athlete

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"roster/internal/identity/models"
	id "roster/pkg/domain"
	"roster/pkg/platform/sentinel"
)

// InMemory is a map-backed athlete store for tests and dry runs. It returns
// copies so callers cannot mutate stored state without Update.
type InMemory struct {
	mu       sync.RWMutex
	athletes map[id.AthleteID]*models.Athlete
}

func NewInMemory() *InMemory {
	return &InMemory{athletes: make(map[id.AthleteID]*models.Athlete)}
}

func (s *InMemory) Create(_ context.Context, a *models.Athlete) error {
	if a == nil {
		return fmt.Errorf("athlete is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.athletes[a.ID]; exists {
		return fmt.Errorf("insert athlete %s: %w", a.ID, sentinel.ErrConflict)
	}
	s.athletes[a.ID] = a.Clone()
	return nil
}

func (s *InMemory) Update(_ context.Context, a *models.Athlete) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.athletes[a.ID]
	if !ok {
		return fmt.Errorf("athlete %s: %w", a.ID, sentinel.ErrNotFound)
	}
	updated := a.Clone()
	updated.Domains = stored.Domains
	updated.CreatedAt = stored.CreatedAt
	s.athletes[a.ID] = updated
	return nil
}

func (s *InMemory) FindByID(_ context.Context, athleteID id.AthleteID) (*models.Athlete, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.athletes[athleteID]
	if !ok {
		return nil, fmt.Errorf("athlete %s: %w", athleteID, sentinel.ErrNotFound)
	}
	return a.Clone(), nil
}

func (s *InMemory) FindByNormalizedName(_ context.Context, normalized string) ([]*models.Athlete, error) {
	return s.filter(func(a *models.Athlete) bool { return a.NormalizedName == normalized }), nil
}

func (s *InMemory) SearchByName(_ context.Context, fragment string) ([]*models.Athlete, error) {
	fragment = strings.ToLower(strings.TrimSpace(fragment))
	if fragment == "" {
		return nil, nil
	}
	return s.filter(func(a *models.Athlete) bool {
		return strings.Contains(strings.ToLower(a.DisplayName), fragment) ||
			strings.Contains(strings.ToLower(a.NormalizedName), fragment)
	}), nil
}

func (s *InMemory) List(_ context.Context, ids []id.AthleteID) ([]*models.Athlete, error) {
	if ids == nil {
		return s.filter(func(*models.Athlete) bool { return true }), nil
	}
	want := make(map[id.AthleteID]struct{}, len(ids))
	for _, athleteID := range ids {
		want[athleteID] = struct{}{}
	}
	return s.filter(func(a *models.Athlete) bool {
		_, ok := want[a.ID]
		return ok
	}), nil
}

func (s *InMemory) Delete(_ context.Context, athleteID id.AthleteID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.athletes[athleteID]; !ok {
		return fmt.Errorf("athlete %s: %w", athleteID, sentinel.ErrNotFound)
	}
	delete(s.athletes, athleteID)
	return nil
}

func (s *InMemory) SetDomainStats(_ context.Context, athleteID id.AthleteID, system models.SourceSystem, stats models.DomainStats) error {
	if _, err := models.LookupDomain(system); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.athletes[athleteID]
	if !ok {
		return fmt.Errorf("athlete %s: %w", athleteID, sentinel.ErrNotFound)
	}
	a.Domains[system] = stats
	return nil
}

func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.athletes), nil
}

// filter returns matching copies ordered by creation time, then ID.
func (s *InMemory) filter(keep func(*models.Athlete) bool) []*models.Athlete {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Athlete
	for _, a := range s.athletes {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.Less(out[j].ID)
	})
	return out
}
