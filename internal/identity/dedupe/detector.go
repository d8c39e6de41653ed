// Package dedupe finds near-duplicate canonical athletes and merges them on
// human confirmation.
package dedupe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"roster/internal/identity/metrics"
	"roster/internal/identity/models"
	"roster/internal/identity/normalize"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
)

// DefaultThreshold is the inclusive similarity score at which a pair becomes
// a merge candidate.
const DefaultThreshold = 0.80

type AthleteLister interface {
	List(ctx context.Context, ids []id.AthleteID) ([]*models.Athlete, error)
}

// Detector scores every pair of athletes by normalized-name similarity.
// Scoring is read-only and fans out over a bounded worker pool.
type Detector struct {
	athletes  AthleteLister
	threshold float64
	workers   int
	logger    *slog.Logger
	metrics   *metrics.Metrics
}

type DetectorOption func(*Detector)

func WithThreshold(t float64) DetectorOption {
	return func(d *Detector) {
		d.threshold = t
	}
}

func WithWorkers(n int) DetectorOption {
	return func(d *Detector) {
		if n > 0 {
			d.workers = n
		}
	}
}

func WithDetectorLogger(logger *slog.Logger) DetectorOption {
	return func(d *Detector) {
		d.logger = logger
	}
}

func WithDetectorMetrics(m *metrics.Metrics) DetectorOption {
	return func(d *Detector) {
		d.metrics = m
	}
}

func NewDetector(athletes AthleteLister, opts ...DetectorOption) (*Detector, error) {
	if athletes == nil {
		return nil, errors.New("athlete store is required")
	}
	d := &Detector{
		athletes:  athletes,
		threshold: DefaultThreshold,
		workers:   runtime.GOMAXPROCS(0),
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.threshold < 0 || d.threshold > 1 {
		return nil, fmt.Errorf("threshold %.3f must be within [0, 1]", d.threshold)
	}
	if d.logger == nil {
		d.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return d, nil
}

// Detect returns every pair among ids (all athletes when ids is nil) scoring
// at or above the threshold, best score first. A is always the earlier
// created athlete of a pair.
func (d *Detector) Detect(ctx context.Context, ids []id.AthleteID) ([]models.MergeCandidate, error) {
	athletes, err := d.athletes.List(ctx, ids)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodePersistence, "failed to list athletes")
	}
	sort.Slice(athletes, func(i, j int) bool { return createdBefore(athletes[i], athletes[j]) })

	found := make([][]models.MergeCandidate, len(athletes))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(d.workers)
	for i := range athletes {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			a := athletes[i]
			for _, b := range athletes[i+1:] {
				score := normalize.Similarity(a.NormalizedName, b.NormalizedName)
				if normalize.MeetsThreshold(score, d.threshold) {
					found[i] = append(found[i], models.MergeCandidate{A: *a, B: *b, Score: score})
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeTimeout, "duplicate detection cancelled")
	}

	var out []models.MergeCandidate
	for _, cs := range found {
		out = append(out, cs...)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].A.ID != out[j].A.ID {
			return createdBefore(&out[i].A, &out[j].A)
		}
		return createdBefore(&out[i].B, &out[j].B)
	})

	d.metrics.AddDuplicateCandidates(len(out))
	d.logger.InfoContext(ctx, "duplicates_detected",
		"athletes", len(athletes),
		"candidates", len(out),
		"threshold", d.threshold,
	)
	return out, nil
}

func createdBefore(a, b *models.Athlete) bool {
	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}
	return a.ID.Less(b.ID)
}
