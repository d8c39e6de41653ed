package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"roster/internal/identity/models"
	"roster/internal/identity/normalize"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	"roster/pkg/platform/sentinel"
)

const maxSuggestions = 3

// Resolve finds the canonical athlete for a raw name seen in system. Lookup
// order: source mapping, exact normalized name, substring search, then
// substring search on the name with its disambiguating suffix removed.
// Ambiguity is settled by ranking, never reported as an error.
func (s *Service) Resolve(ctx context.Context, name string, system models.SourceSystem) (*models.Match, error) {
	ctx, span := s.tracer.Start(ctx, "identity.Resolve",
		trace.WithAttributes(attribute.String("source_system", string(system))))
	defer span.End()

	if _, err := models.LookupDomain(system); err != nil {
		return nil, err
	}
	n, err := normalize.Name(name)
	if err != nil {
		return nil, invalidName(name, err)
	}
	key, err := normalize.SourceKey(name)
	if err != nil {
		return nil, invalidName(name, err)
	}

	m, err := s.match(ctx, n, key, system)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			span.RecordError(err)
			span.SetStatus(codes.Error, "resolve failed")
		}
		return nil, err
	}
	span.SetAttributes(attribute.String("method", string(m.Method)))
	return m, nil
}

func (s *Service) match(ctx context.Context, n normalize.Result, sourceKey string, system models.SourceSystem) (*models.Match, error) {
	mapping, err := s.mappings.Find(ctx, models.MappingKey{SourceSystem: system, SourceAthleteID: sourceKey})
	switch {
	case err == nil:
		a, err := s.athletes.FindByID(ctx, mapping.AthleteID)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to load mapped athlete")
		}
		return s.found(a, models.MatchMapping, 1), nil
	case !errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to read source mapping")
	}
	return s.matchByName(ctx, n)
}

// matchByName runs the name-only steps of the lookup order.
func (s *Service) matchByName(ctx context.Context, n normalize.Result) (*models.Match, error) {
	exact, err := s.athletes.FindByNormalizedName(ctx, n.Normalized)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed exact name lookup")
	}
	if len(exact) > 0 {
		return s.found(exact[0], models.MatchExact, 1), nil
	}

	ranked, err := s.fuzzy(ctx, n.Normalized)
	if err != nil {
		return nil, err
	}
	if len(ranked) > 0 {
		return s.found(ranked[0].Athlete, models.MatchFuzzy, ranked[0].Score), nil
	}

	if base, _, ok := normalize.SplitDisambiguator(n.Display); ok {
		if folded := normalize.Fold(base); folded != "" {
			ranked, err := s.fuzzy(ctx, folded)
			if err != nil {
				return nil, err
			}
			if len(ranked) > 0 {
				return s.found(ranked[0].Athlete, models.MatchFuzzyBase, ranked[0].Score), nil
			}
		}
	}

	s.metrics.IncrementResolution("not_found")
	return nil, dErrors.Wrap(fmt.Errorf("%q: %w", n.Display, sentinel.ErrNotFound), dErrors.CodeNotFound, "no matching athlete")
}

// fuzzy returns substring matches for query ranked by similarity, then
// creation time, then ID. The search limit applies after ranking.
func (s *Service) fuzzy(ctx context.Context, query string) ([]models.Match, error) {
	candidates, err := s.athletes.SearchByName(ctx, query)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed name search")
	}
	ranked := rank(query, candidates, s.fuzzyMinScore)
	if len(ranked) > s.searchLimit {
		ranked = ranked[:s.searchLimit]
	}
	return ranked, nil
}

func rank(query string, candidates []*models.Athlete, minScore float64) []models.Match {
	ranked := make([]models.Match, 0, len(candidates))
	for _, c := range candidates {
		score := normalize.Similarity(query, c.NormalizedName)
		if minScore > 0 && !normalize.MeetsThreshold(score, minScore) {
			continue
		}
		ranked = append(ranked, models.Match{Athlete: c, Method: models.MatchFuzzy, Score: score})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if !a.Athlete.CreatedAt.Equal(b.Athlete.CreatedAt) {
			return a.Athlete.CreatedAt.Before(b.Athlete.CreatedAt)
		}
		return a.Athlete.ID.Less(b.Athlete.ID)
	})
	return ranked
}

// suggest lists near matches sharing the last name token, for operators
// deciding whether an unmatched name is new.
func (s *Service) suggest(ctx context.Context, n normalize.Result) []models.Match {
	tokens := strings.Fields(n.Normalized)
	if len(tokens) == 0 {
		return nil
	}
	candidates, err := s.athletes.SearchByName(ctx, tokens[len(tokens)-1])
	if err != nil {
		s.logger.WarnContext(ctx, "suggestion lookup failed", "name", n.Display, "error", err)
		return nil
	}
	ranked := rank(n.Normalized, candidates, 0)
	if len(ranked) > maxSuggestions {
		ranked = ranked[:maxSuggestions]
	}
	return ranked
}

func (s *Service) found(a *models.Athlete, method models.MatchMethod, score float64) *models.Match {
	s.metrics.IncrementResolution(string(method))
	return &models.Match{Athlete: a, Method: method, Score: score}
}

// Athlete loads one canonical athlete by ID.
func (s *Service) Athlete(ctx context.Context, athleteID id.AthleteID) (*models.Athlete, error) {
	a, err := s.athletes.FindByID(ctx, athleteID)
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return nil, dErrors.Wrap(err, dErrors.CodeNotFound, "athlete not found")
	case err != nil:
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to load athlete")
	}
	return a, nil
}
