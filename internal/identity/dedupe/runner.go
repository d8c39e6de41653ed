package dedupe

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"roster/internal/identity/models"
	id "roster/pkg/domain"
	dErrors "roster/pkg/domain-errors"
)

// Mode selects what a dedupe run does with the candidates it finds.
type Mode int

const (
	// ModeReport detects and reports only. It never merges.
	ModeReport Mode = iota
	// ModeInteractive asks the confirmer about each candidate, best first.
	ModeInteractive
)

func (m Mode) String() string {
	switch m {
	case ModeReport:
		return "report"
	case ModeInteractive:
		return "interactive"
	default:
		return "unknown"
	}
}

// Runner drives one duplicate detection pass.
type Runner struct {
	detector *Detector
	merger   *Merger
	logger   *slog.Logger
}

type RunnerOption func(*Runner)

func WithRunnerLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		r.logger = logger
	}
}

func NewRunner(detector *Detector, merger *Merger, opts ...RunnerOption) (*Runner, error) {
	if detector == nil {
		return nil, errors.New("detector is required")
	}
	if merger == nil {
		return nil, errors.New("merger is required")
	}
	r := &Runner{detector: detector, merger: merger}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return r, nil
}

// Run detects candidates among ids (all athletes when nil). In interactive
// mode each candidate goes to confirmer; a pair whose member was retired
// earlier in the same run is skipped. A failed merge is counted and the run
// continues. Cancellation stops the run between pairs and returns the partial
// report.
func (r *Runner) Run(ctx context.Context, ids []id.AthleteID, mode Mode, confirmer Confirmer) (*models.DedupeReport, error) {
	if mode == ModeInteractive && confirmer == nil {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "interactive dedupe requires a confirmer")
	}
	candidates, err := r.detector.Detect(ctx, ids)
	if err != nil {
		return nil, err
	}
	report := &models.DedupeReport{Candidates: candidates}

	for _, c := range candidates {
		r.logger.InfoContext(ctx, "duplicate_candidate",
			"athlete_a", c.A.ID,
			"name_a", c.A.DisplayName,
			"athlete_b", c.B.ID,
			"name_b", c.B.DisplayName,
			"score", c.Score,
		)
	}
	if mode == ModeReport {
		return report, nil
	}

	retired := make(map[id.AthleteID]struct{})
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, dErrors.Wrap(err, dErrors.CodeTimeout, "dedupe run cancelled")
		}
		if isRetired(retired, c.A.ID) || isRetired(retired, c.B.ID) {
			report.Outcomes = append(report.Outcomes, models.MergeOutcome{
				Status: models.MergeSkipped,
				Score:  c.Score,
				Reason: "athlete retired earlier in this run",
			})
			report.Skipped++
			continue
		}

		outcome, err := r.merger.Merge(ctx, c, confirmer)
		report.Outcomes = append(report.Outcomes, outcome)
		switch {
		case err != nil:
			report.Errored++
		case outcome.Status == models.MergeApplied:
			retired[outcome.RetiredID] = struct{}{}
			report.Merged++
		default:
			report.Skipped++
		}
	}

	r.logger.InfoContext(ctx, "dedupe_completed",
		"mode", mode.String(),
		"candidates", len(candidates),
		"merged", report.Merged,
		"skipped", report.Skipped,
		"errored", report.Errored,
	)
	return report, nil
}

func isRetired(retired map[id.AthleteID]struct{}, athleteID id.AthleteID) bool {
	_, ok := retired[athleteID]
	return ok
}
