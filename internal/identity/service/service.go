package service

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"roster/internal/identity/metrics"
	"roster/internal/identity/models"
	id "roster/pkg/domain"
	txcontext "roster/pkg/platform/tx"
)

type AthleteStore interface {
	Create(ctx context.Context, a *models.Athlete) error
	Update(ctx context.Context, a *models.Athlete) error
	FindByID(ctx context.Context, athleteID id.AthleteID) (*models.Athlete, error)
	FindByNormalizedName(ctx context.Context, normalized string) ([]*models.Athlete, error)
	SearchByName(ctx context.Context, fragment string) ([]*models.Athlete, error)
	List(ctx context.Context, ids []id.AthleteID) ([]*models.Athlete, error)
	SetDomainStats(ctx context.Context, athleteID id.AthleteID, system models.SourceSystem, stats models.DomainStats) error
}

type MappingStore interface {
	Find(ctx context.Context, key models.MappingKey) (*models.SourceMapping, error)
	FindBySystem(ctx context.Context, system models.SourceSystem, sourceIDs []string) (map[string]id.AthleteID, error)
	Save(ctx context.Context, m *models.SourceMapping) (*models.SourceMapping, error)
}

type FactStore interface {
	Stats(ctx context.Context, d models.Domain, athleteID id.AthleteID) (models.DomainStats, error)
}

// Service resolves upstream records to canonical athletes. It owns the
// matcher, enricher, creator, attach layer, and flag updater.
type Service struct {
	athletes      AthleteStore
	mappings      MappingStore
	facts         FactStore
	tx            txcontext.Runner
	logger        *slog.Logger
	metrics       *metrics.Metrics
	events        EventPublisher
	decisions     DecisionProvider
	fuzzyMinScore float64
	searchLimit   int
	tracer        trace.Tracer
}

const defaultSearchLimit = 50

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(s *Service) {
		s.events = p
	}
}

// WithDecisionProvider sets the provider consulted before creating athletes
// for unmatched names. Without one, unmatched names are created directly.
func WithDecisionProvider(p DecisionProvider) Option {
	return func(s *Service) {
		s.decisions = p
	}
}

// WithFuzzyMinScore drops fuzzy candidates scoring below min. Zero keeps all.
func WithFuzzyMinScore(min float64) Option {
	return func(s *Service) {
		s.fuzzyMinScore = min
	}
}

// WithSearchLimit caps the ranked fuzzy candidates kept per lookup. Zero or
// less uses the default.
func WithSearchLimit(n int) Option {
	return func(s *Service) {
		s.searchLimit = n
	}
}

// WithTxRunner sets the unit-of-work runner. Stores must honour the
// transaction it places in the context.
func WithTxRunner(r txcontext.Runner) Option {
	return func(s *Service) {
		s.tx = r
	}
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// New constructs a Service.
func New(athletes AthleteStore, mappings MappingStore, facts FactStore, opts ...Option) (*Service, error) {
	if athletes == nil {
		return nil, errors.New("athlete store is required")
	}
	if mappings == nil {
		return nil, errors.New("mapping store is required")
	}
	if facts == nil {
		return nil, errors.New("fact store is required")
	}
	s := &Service{
		athletes: athletes,
		mappings: mappings,
		facts:    facts,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.tx == nil {
		s.tx = &txcontext.Serial{}
	}
	if s.searchLimit <= 0 {
		s.searchLimit = defaultSearchLimit
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer("roster/internal/identity/service")
	}
	return s, nil
}
