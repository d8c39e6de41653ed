package dedupe

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"roster/internal/identity/events"
	"roster/internal/identity/metrics"
	"roster/internal/identity/models"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
	"roster/pkg/platform/sentinel"
	txcontext "roster/pkg/platform/tx"
	"roster/pkg/requestcontext"
)

type AthleteStore interface {
	AthleteLister
	FindByID(ctx context.Context, athleteID id.AthleteID) (*models.Athlete, error)
	Update(ctx context.Context, a *models.Athlete) error
	Delete(ctx context.Context, athleteID id.AthleteID) error
}

type MappingStore interface {
	ListByAthlete(ctx context.Context, athleteID id.AthleteID) ([]*models.SourceMapping, error)
	Repoint(ctx context.Context, from, to id.AthleteID) (int, error)
}

type FactStore interface {
	Repoint(ctx context.Context, d models.Domain, from, to id.AthleteID) (int, error)
}

// FlagRefresher recomputes every domain flag for an athlete.
// service.Service satisfies it.
type FlagRefresher interface {
	RefreshAllDomains(ctx context.Context, athleteID id.AthleteID) error
}

// CacheInvalidator drops cached mapping entries. mapping.CachedStore
// satisfies it.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, keys ...models.MappingKey) error
}

// Merger folds a retired athlete into its survivor.
type Merger struct {
	athletes AthleteStore
	mappings MappingStore
	facts    FactStore
	tx       txcontext.Runner
	flags    FlagRefresher
	cache    CacheInvalidator
	events   events.Publisher
	logger   *slog.Logger
	metrics  *metrics.Metrics
	tracer   trace.Tracer
}

type MergerOption func(*Merger)

func WithLogger(logger *slog.Logger) MergerOption {
	return func(m *Merger) {
		m.logger = logger
	}
}

func WithMetrics(mt *metrics.Metrics) MergerOption {
	return func(m *Merger) {
		m.metrics = mt
	}
}

func WithTxRunner(r txcontext.Runner) MergerOption {
	return func(m *Merger) {
		m.tx = r
	}
}

func WithFlagRefresher(f FlagRefresher) MergerOption {
	return func(m *Merger) {
		m.flags = f
	}
}

func WithCacheInvalidator(c CacheInvalidator) MergerOption {
	return func(m *Merger) {
		m.cache = c
	}
}

func WithEventPublisher(p events.Publisher) MergerOption {
	return func(m *Merger) {
		m.events = p
	}
}

func WithTracer(t trace.Tracer) MergerOption {
	return func(m *Merger) {
		m.tracer = t
	}
}

func NewMerger(athletes AthleteStore, mappings MappingStore, facts FactStore, opts ...MergerOption) (*Merger, error) {
	if athletes == nil {
		return nil, errors.New("athlete store is required")
	}
	if mappings == nil {
		return nil, errors.New("mapping store is required")
	}
	if facts == nil {
		return nil, errors.New("fact store is required")
	}
	m := &Merger{
		athletes: athletes,
		mappings: mappings,
		facts:    facts,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if m.tx == nil {
		m.tx = &txcontext.Serial{}
	}
	if m.tracer == nil {
		m.tracer = otel.Tracer("roster/internal/identity/dedupe")
	}
	return m, nil
}

// SelectSurvivor picks which of a pair keeps its ID: the earlier created
// athlete, then the one with more populated demographics, then the smaller
// ID.
func SelectSurvivor(a, b *models.Athlete) (survivor, retired *models.Athlete) {
	switch {
	case !a.CreatedAt.Equal(b.CreatedAt):
		if a.CreatedAt.Before(b.CreatedAt) {
			return a, b
		}
		return b, a
	case a.PopulatedFields() != b.PopulatedFields():
		if a.PopulatedFields() > b.PopulatedFields() {
			return a, b
		}
		return b, a
	case a.ID.Less(b.ID):
		return a, b
	default:
		return b, a
	}
}

// Merge asks confirmer about c and, on approval, re-points every mapping and
// fact row of the retired athlete to the survivor, fills the survivor's empty
// demographics from the retired one, and deletes the retired athlete, all in
// one transaction. A declined or stale pair is a skip.
func (m *Merger) Merge(ctx context.Context, c models.MergeCandidate, confirmer Confirmer) (models.MergeOutcome, error) {
	ctx, span := m.tracer.Start(ctx, "identity.Merge", trace.WithAttributes(
		attribute.String("athlete_a", c.A.ID.String()),
		attribute.String("athlete_b", c.B.ID.String()),
		attribute.Float64("score", c.Score),
	))
	defer span.End()

	outcome := models.MergeOutcome{Status: models.MergeSkipped, Score: c.Score}
	if confirmer == nil {
		return outcome, dErrors.New(dErrors.CodeInvalidInput, "merge requires a confirmer")
	}
	if c.A.ID == c.B.ID {
		return outcome, dErrors.New(dErrors.CodeInvalidInput, "cannot merge an athlete with itself")
	}

	a, b, err := m.reload(ctx, c)
	if err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			outcome.Reason = "athlete no longer exists"
			m.skipped(ctx, outcome)
			return outcome, nil
		}
		return m.failed(ctx, span, outcome, err)
	}
	survivor, retired := SelectSurvivor(a, b)
	outcome.SurvivorID, outcome.RetiredID = survivor.ID, retired.ID

	answer, err := confirmer.ConfirmMerge(ctx, models.MergeCandidate{A: *a, B: *b, Score: c.Score})
	if err != nil {
		return m.failed(ctx, span, outcome, dErrors.Wrap(err, dErrors.CodeInternal, "merge confirmation failed"))
	}
	if !answer.Merge {
		outcome.Reason = "declined"
		m.skipped(ctx, outcome)
		return outcome, nil
	}

	retiredKeys, err := m.mappingKeys(ctx, retired.ID)
	if err != nil {
		return m.failed(ctx, span, outcome, err)
	}

	err = m.tx.RunInTx(ctx, func(txCtx context.Context) error {
		n, err := m.mappings.Repoint(txCtx, retired.ID, survivor.ID)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodePersistence, "failed to re-point source mappings")
		}
		outcome.MappingsRepointed = n
		outcome.FactRowsRepointed = make(map[string]int)
		for _, d := range models.Domains() {
			n, err := m.facts.Repoint(txCtx, d, retired.ID, survivor.ID)
			if err != nil {
				return dErrors.Wrap(err, dErrors.CodePersistence, "failed to re-point "+d.FactTable)
			}
			if n > 0 {
				outcome.FactRowsRepointed[d.FactTable] = n
			}
		}
		outcome.FieldsFilled = survivor.Enrich(retired.Observation(), retired.DisplayName, requestcontext.Now(txCtx))
		if err := m.athletes.Update(txCtx, survivor); err != nil {
			return dErrors.Wrap(err, dErrors.CodePersistence, "failed to update survivor")
		}
		if err := m.athletes.Delete(txCtx, retired.ID); err != nil {
			return dErrors.Wrap(err, dErrors.CodePersistence, "failed to delete retired athlete")
		}
		return nil
	})
	if err != nil {
		return m.failed(ctx, span, outcome, err)
	}

	outcome.Status = models.MergeApplied
	m.afterCommit(ctx, survivor, retired, retiredKeys, outcome)
	return outcome, nil
}

func (m *Merger) reload(ctx context.Context, c models.MergeCandidate) (*models.Athlete, *models.Athlete, error) {
	a, err := m.athletes.FindByID(ctx, c.A.ID)
	if err != nil {
		return nil, nil, err
	}
	b, err := m.athletes.FindByID(ctx, c.B.ID)
	if err != nil {
		return nil, nil, err
	}
	return a, b, nil
}

func (m *Merger) mappingKeys(ctx context.Context, athleteID id.AthleteID) ([]models.MappingKey, error) {
	mappings, err := m.mappings.ListByAthlete(ctx, athleteID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to list source mappings")
	}
	keys := make([]models.MappingKey, 0, len(mappings))
	for _, mp := range mappings {
		keys = append(keys, mp.Key())
	}
	return keys, nil
}

// afterCommit runs the follow-ups of a committed merge. None of them can undo
// it, so failures are logged only.
func (m *Merger) afterCommit(ctx context.Context, survivor, retired *models.Athlete, keys []models.MappingKey, outcome models.MergeOutcome) {
	if m.flags != nil {
		if err := m.flags.RefreshAllDomains(ctx, survivor.ID); err != nil {
			m.logger.WarnContext(ctx, "failed to refresh flags after merge", "athlete_id", survivor.ID, "error", err)
		}
	}
	if m.cache != nil && len(keys) > 0 {
		if err := m.cache.Invalidate(ctx, keys...); err != nil {
			m.logger.WarnContext(ctx, "failed to invalidate mapping cache", "athlete_id", retired.ID, "error", err)
		}
	}

	m.metrics.IncrementMerge(string(models.MergeApplied))
	m.logger.InfoContext(ctx, "athletes_merged",
		"survivor_id", survivor.ID,
		"retired_id", retired.ID,
		"score", outcome.Score,
		"mappings_repointed", outcome.MappingsRepointed,
		"fact_rows_repointed", outcome.FactRowsRepointed,
		"fields_filled", outcome.FieldsFilled,
	)

	if m.events == nil {
		return
	}
	retiredID := retired.ID
	e := events.Event{
		Type:      events.AthleteMerged,
		AthleteID: survivor.ID,
		RetiredID: &retiredID,
		Fields:    outcome.FieldsFilled,
		Score:     outcome.Score,
		RunID:     requestcontext.RunID(ctx),
		Operator:  requestcontext.Operator(ctx),
		Timestamp: requestcontext.Now(ctx),
	}
	if err := m.events.Publish(ctx, e); err != nil {
		m.logger.WarnContext(ctx, "failed to publish identity event", "type", e.Type, "athlete_id", e.AthleteID, "error", err)
	}
}

func (m *Merger) skipped(ctx context.Context, outcome models.MergeOutcome) {
	m.metrics.IncrementMerge(string(models.MergeSkipped))
	m.logger.InfoContext(ctx, "merge_skipped",
		"survivor_id", outcome.SurvivorID,
		"retired_id", outcome.RetiredID,
		"reason", outcome.Reason,
	)
}

func (m *Merger) failed(ctx context.Context, span trace.Span, outcome models.MergeOutcome, err error) (models.MergeOutcome, error) {
	outcome.Status = models.MergeFailed
	outcome.Reason = err.Error()
	outcome.MappingsRepointed = 0
	outcome.FactRowsRepointed = nil
	outcome.FieldsFilled = nil
	span.RecordError(err)
	span.SetStatus(codes.Error, "merge failed")
	m.metrics.IncrementMerge(string(models.MergeFailed))
	m.logger.ErrorContext(ctx, "merge_failed",
		"survivor_id", outcome.SurvivorID,
		"retired_id", outcome.RetiredID,
		"error", err,
	)
	return outcome, err
}
