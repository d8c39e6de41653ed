package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"roster/internal/identity/models"
	"roster/internal/identity/normalize"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
)

// Mode selects what Attach does with rows that have no source mapping.
type Mode int

const (
	// ModeDefer reports unmapped rows for follow-up and never blocks.
	ModeDefer Mode = iota
	// ModeResolve routes unmapped rows through the matcher and creator.
	ModeResolve
)

func (m Mode) String() string {
	if m == ModeResolve {
		return "resolve"
	}
	return "defer"
}

type AttachOptions struct {
	Mode Mode
	// RefreshFlags recomputes the source system's domain flags for every
	// athlete the batch touched.
	RefreshFlags bool
	// Decisions overrides the service's decision provider for this run.
	Decisions DecisionProvider
}

// UnmappedRecord is a row left unresolved by this run.
type UnmappedRecord struct {
	Index     int
	SourceKey string
	Record    models.Record
}

// RowError is a per-row failure. The batch carries on past it. Index is -1
// for failures after the row loop, such as flag refreshes.
type RowError struct {
	Index int
	Name  string
	Err   error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d (%q): %v", e.Index, e.Name, e.Err)
}

func (e RowError) Unwrap() error {
	return e.Err
}

// AttachResult is the annotated batch plus everything the run decided.
type AttachResult struct {
	Records  []models.Record
	Summary  models.BatchSummary
	Unmapped []UnmappedRecord
	Errors   []RowError
	// Touched lists every athlete a row resolved to, in ID order.
	Touched []id.AthleteID
}

// BatchCache memoises source-key and name resolutions for one Attach call.
// It is never shared between runs.
type BatchCache struct {
	byKey    map[string]id.AthleteID
	byName   map[string]id.AthleteID
	athletes map[id.AthleteID]*models.Athlete
}

func NewBatchCache() *BatchCache {
	return &BatchCache{
		byKey:    make(map[string]id.AthleteID),
		byName:   make(map[string]id.AthleteID),
		athletes: make(map[id.AthleteID]*models.Athlete),
	}
}

func (c *BatchCache) rememberKey(key string, athleteID id.AthleteID) {
	c.byKey[key] = athleteID
}

func (c *BatchCache) keep(a *models.Athlete) {
	c.athletes[a.ID] = a
	c.byName[a.NormalizedName] = a.ID
}

// Len reports how many source keys the cache resolves.
func (c *BatchCache) Len() int {
	return len(c.byKey)
}

type rowOutcome int

const (
	rowMatched rowOutcome = iota
	rowCreated
	rowSkipped
)

// row is one batch record after input validation.
type row struct {
	index int
	name  normalize.Result
	key   string
}

// Attach resolves every record of batch to a canonical athlete for system.
// Existing source mappings always win over re-matching. Unmapped rows are
// deferred or resolved per opts.Mode; each new mapping commits together with
// the athlete create or update that produced it. Per-row failures are
// collected in the result and never abort the batch; only an unknown source
// system, a failed mapping prefetch, or context cancellation return an error.
func (s *Service) Attach(ctx context.Context, batch []models.Record, system models.SourceSystem, opts AttachOptions) (*AttachResult, error) {
	if _, err := models.LookupDomain(system); err != nil {
		return nil, err
	}
	ctx, span := s.tracer.Start(ctx, "identity.Attach", trace.WithAttributes(
		attribute.String("source_system", string(system)),
		attribute.Int("batch_size", len(batch)),
		attribute.String("mode", opts.Mode.String()),
	))
	defer span.End()
	start := time.Now()

	res := &AttachResult{Records: make([]models.Record, len(batch))}
	copy(res.Records, batch)
	res.Summary.Total = len(batch)

	rows, keys := s.prepareRows(ctx, res, system)

	cache := NewBatchCache()
	mapped, err := s.mappings.FindBySystem(ctx, system, keys)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "mapping prefetch failed")
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to load source mappings")
	}
	for key, athleteID := range mapped {
		cache.rememberKey(key, athleteID)
	}

	provider := opts.Decisions
	if provider == nil {
		provider = s.decisions
	}

	touched := make(map[id.AthleteID]struct{})
	for _, r := range rows {
		if err := ctx.Err(); err != nil {
			s.finishAttach(ctx, span, res, touched, system, start)
			return res, dErrors.Wrap(err, dErrors.CodeTimeout, "attach cancelled")
		}
		rec := &res.Records[r.index]
		rec.SourceSystem = system

		if athleteID, ok := cache.byKey[r.key]; ok {
			rec.AthleteID = athleteID
			changed, err := s.enrichMapped(ctx, athleteID, rec.Observation, r.name.Display, cache)
			if err != nil {
				s.rowFailed(ctx, res, r, err)
				continue
			}
			res.Summary.Mapped++
			if len(changed) > 0 {
				res.Summary.Enriched++
			}
			touched[athleteID] = struct{}{}
			continue
		}

		if opts.Mode == ModeDefer {
			res.Summary.Deferred++
			res.Unmapped = append(res.Unmapped, UnmappedRecord{Index: r.index, SourceKey: r.key, Record: *rec})
			continue
		}

		outcome, a, changed, err := s.resolveRow(ctx, rec, r, system, provider, cache)
		if err != nil {
			s.rowFailed(ctx, res, r, err)
			continue
		}
		switch outcome {
		case rowSkipped:
			res.Summary.Skipped++
			res.Unmapped = append(res.Unmapped, UnmappedRecord{Index: r.index, SourceKey: r.key, Record: *rec})
			continue
		case rowCreated:
			res.Summary.Created++
		case rowMatched:
			res.Summary.Matched++
			if len(changed) > 0 {
				res.Summary.Enriched++
			}
		}
		rec.AthleteID = a.ID
		touched[a.ID] = struct{}{}
	}

	if opts.RefreshFlags {
		for _, athleteID := range sortedIDs(touched) {
			if err := s.RefreshFlags(ctx, athleteID, system); err != nil {
				s.logger.WarnContext(ctx, "flag refresh failed", "athlete_id", athleteID, "source_system", system, "error", err)
				res.Errors = append(res.Errors, RowError{Index: -1, Name: athleteID.String(), Err: err})
			}
		}
	}

	s.finishAttach(ctx, span, res, touched, system, start)
	return res, nil
}

// prepareRows validates names and derives source keys. Unusable rows are
// counted as skipped.
func (s *Service) prepareRows(ctx context.Context, res *AttachResult, system models.SourceSystem) ([]row, []string) {
	rows := make([]row, 0, len(res.Records))
	seen := make(map[string]struct{}, len(res.Records))
	var keys []string
	for i, rec := range res.Records {
		if rec.SourceSystem != "" && rec.SourceSystem != system {
			err := dErrors.New(dErrors.CodeInvalidInput,
				fmt.Sprintf("record source system %q does not match batch source system %q", rec.SourceSystem, system))
			s.rowSkipped(ctx, res, i, rec.Name, err)
			continue
		}
		n, err := normalize.Name(rec.Name)
		if err != nil {
			s.rowSkipped(ctx, res, i, rec.Name, invalidName(rec.Name, err))
			continue
		}
		key, err := normalize.SourceKey(rec.Name)
		if err != nil {
			s.rowSkipped(ctx, res, i, rec.Name, invalidName(rec.Name, err))
			continue
		}
		rows = append(rows, row{index: i, name: n, key: key})
		if _, ok := seen[key]; !ok {
			seen[key] = struct{}{}
			keys = append(keys, key)
		}
	}
	return rows, keys
}

// enrichMapped fills a mapped athlete's empty fields from a new observation.
// Nothing is written when nothing would change.
func (s *Service) enrichMapped(ctx context.Context, athleteID id.AthleteID, obs models.Observation, display string, cache *BatchCache) ([]string, error) {
	a, err := s.loadAthlete(ctx, athleteID, cache)
	if err != nil {
		return nil, err
	}
	if len(a.EnrichmentFields(obs, display)) == 0 {
		return nil, nil
	}
	updated := a.Clone()
	var changed []string
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		changed, err = s.enrichIfChanged(txCtx, updated, obs, display)
		return err
	})
	if err != nil {
		return nil, err
	}
	cache.keep(updated)
	s.enriched(ctx, updated, changed)
	return changed, nil
}

// resolveRow runs an unmapped row through the matcher and then the enricher
// or creator. Prompts happen outside the transaction.
func (s *Service) resolveRow(ctx context.Context, rec *models.Record, r row, system models.SourceSystem, provider DecisionProvider, cache *BatchCache) (rowOutcome, *models.Athlete, []string, error) {
	m, err := s.matchCached(ctx, r, system, cache)
	if err != nil && !dErrors.HasCode(err, dErrors.CodeNotFound) {
		return 0, nil, nil, err
	}

	if m != nil {
		// The mapping is saved before enriching: when another writer mapped
		// the key first, the row and its demographics go to that athlete.
		var (
			a       *models.Athlete
			changed []string
		)
		err := s.tx.RunInTx(ctx, func(txCtx context.Context) error {
			stored, err := s.saveMapping(txCtx, system, r.key, m.Athlete.ID)
			if err != nil {
				return err
			}
			a = m.Athlete.Clone()
			if stored != a.ID {
				s.logger.WarnContext(ctx, "source id already mapped to another athlete",
					"source_system", system, "source_athlete_id", r.key, "matched", a.ID, "mapped", stored)
				if a, err = s.athletes.FindByID(txCtx, stored); err != nil {
					return dErrors.Wrap(err, dErrors.CodePersistence, "failed to load mapped athlete")
				}
			}
			changed, err = s.enrichIfChanged(txCtx, a, rec.Observation, r.name.Display)
			return err
		})
		if err != nil {
			return 0, nil, nil, err
		}
		cache.rememberKey(r.key, a.ID)
		cache.keep(a)
		if len(changed) > 0 {
			s.enriched(ctx, a, changed)
		}
		s.logger.DebugContext(ctx, "athlete_matched", "athlete_id", a.ID, "method", m.Method, "score", m.Score)
		return rowMatched, a, changed, nil
	}

	obs := rec.Observation
	if provider != nil {
		d, err := s.confirmCreate(ctx, provider, rec.Name, r.name, system, obs)
		if err != nil {
			return 0, nil, nil, err
		}
		if !d.Create {
			return rowSkipped, nil, nil, nil
		}
		obs = obs.Fill(d.Observation)
	}

	var a *models.Athlete
	err = s.tx.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		a, err = s.createMapped(txCtx, r.name, system, r.key, obs)
		return err
	})
	if err != nil {
		return 0, nil, nil, err
	}
	cache.rememberKey(r.key, a.ID)
	cache.keep(a)
	s.created(ctx, a)
	return rowCreated, a, nil, nil
}

// matchCached reuses a name resolved earlier in the batch before asking the
// stores.
func (s *Service) matchCached(ctx context.Context, r row, system models.SourceSystem, cache *BatchCache) (*models.Match, error) {
	if athleteID, ok := cache.byName[r.name.Normalized]; ok {
		if a, ok := cache.athletes[athleteID]; ok {
			return s.found(a.Clone(), models.MatchExact, 1), nil
		}
	}
	return s.match(ctx, r.name, r.key, system)
}

func (s *Service) loadAthlete(ctx context.Context, athleteID id.AthleteID, cache *BatchCache) (*models.Athlete, error) {
	if a, ok := cache.athletes[athleteID]; ok {
		return a, nil
	}
	a, err := s.athletes.FindByID(ctx, athleteID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to load athlete")
	}
	cache.keep(a)
	return a, nil
}

func (s *Service) rowSkipped(ctx context.Context, res *AttachResult, index int, name string, err error) {
	res.Summary.Skipped++
	res.Errors = append(res.Errors, RowError{Index: index, Name: name, Err: err})
	s.logger.WarnContext(ctx, "attach row skipped", "row", index, "name", name, "error", err)
}

func (s *Service) rowFailed(ctx context.Context, res *AttachResult, r row, err error) {
	rec := res.Records[r.index]
	if errors.Is(err, ErrInvalidName) {
		s.rowSkipped(ctx, res, r.index, rec.Name, err)
		return
	}
	res.Summary.Errored++
	res.Errors = append(res.Errors, RowError{Index: r.index, Name: rec.Name, Err: err})
	s.logger.ErrorContext(ctx, "attach row failed", "row", r.index, "name", rec.Name, "error", err)
}

func (s *Service) finishAttach(ctx context.Context, span trace.Span, res *AttachResult, touched map[id.AthleteID]struct{}, system models.SourceSystem, start time.Time) {
	res.Touched = sortedIDs(touched)
	sum := res.Summary
	span.SetAttributes(
		attribute.Int("mapped", sum.Mapped),
		attribute.Int("matched", sum.Matched),
		attribute.Int("created", sum.Created),
		attribute.Int("errored", sum.Errored),
	)
	sys := string(system)
	s.metrics.AddAttachRows(sys, "mapped", sum.Mapped)
	s.metrics.AddAttachRows(sys, "matched", sum.Matched)
	s.metrics.AddAttachRows(sys, "created", sum.Created)
	s.metrics.AddAttachRows(sys, "enriched", sum.Enriched)
	s.metrics.AddAttachRows(sys, "skipped", sum.Skipped)
	s.metrics.AddAttachRows(sys, "deferred", sum.Deferred)
	s.metrics.AddAttachRows(sys, "errored", sum.Errored)
	s.metrics.ObserveAttachDuration(sys, time.Since(start))

	s.logger.InfoContext(ctx, "attach_completed",
		"source_system", system,
		"total", sum.Total,
		"mapped", sum.Mapped,
		"matched", sum.Matched,
		"created", sum.Created,
		"enriched", sum.Enriched,
		"skipped", sum.Skipped,
		"deferred", sum.Deferred,
		"errored", sum.Errored,
	)
}

func sortedIDs(set map[id.AthleteID]struct{}) []id.AthleteID {
	out := make([]id.AthleteID, 0, len(set))
	for athleteID := range set {
		out = append(out, athleteID)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Less(out[j]) })
	return out
}
