package commands

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"strconv"

	"github.com/spf13/cobra"

	"roster/internal/identity/decision"
	"roster/internal/identity/dedupe"
	"roster/internal/identity/models"
)

type dedupeOptions struct {
	threshold   float64
	interactive bool
	workers     int
}

func newDedupeCmd(root *rootOptions) *cobra.Command {
	opts := &dedupeOptions{}
	cmd := &cobra.Command{
		Use:   "dedupe",
		Short: "Find near-duplicate athletes and merge confirmed pairs",
		Long: `Dedupe scores every pair of canonical athletes by name similarity and
lists pairs at or above the threshold, best first.

Nothing is merged unless --interactive is given, and then only pairs a
person confirms at the terminal. A merge keeps the earlier athlete, moves
every source mapping and fact row onto it, and deletes the other.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withApp(cmd, "dedupe", func(ctx context.Context, app *App) error {
				threshold := app.Config.Identity.DuplicateThreshold
				if cmd.Flags().Changed("threshold") {
					threshold = opts.threshold
				}
				runner, err := app.Dedupe(threshold, opts.workers)
				if err != nil {
					return err
				}

				mode := dedupe.ModeReport
				var confirmer dedupe.Confirmer
				if opts.interactive {
					mode = dedupe.ModeInteractive
					confirmer = decision.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout())
				}
				report, err := runner.Run(ctx, nil, mode, confirmer)
				if report == nil {
					return err
				}
				if perr := printDedupe(cmd.OutOrStdout(), root.output, report); perr != nil {
					return perr
				}
				return err
			})
		},
	}
	cmd.Flags().Float64VarP(&opts.threshold, "threshold", "t", dedupe.DefaultThreshold, "Inclusive similarity score for a candidate pair")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Confirm and merge candidate pairs at the terminal")
	cmd.Flags().IntVar(&opts.workers, "workers", runtime.GOMAXPROCS(0), "Concurrent scoring workers")
	return cmd
}

type candidateReport struct {
	AthleteA string  `json:"athlete_a"`
	NameA    string  `json:"name_a"`
	AthleteB string  `json:"athlete_b"`
	NameB    string  `json:"name_b"`
	Score    float64 `json:"score"`
}

type dedupeReport struct {
	Candidates []candidateReport     `json:"candidates"`
	Outcomes   []models.MergeOutcome `json:"outcomes,omitempty"`
	Merged     int                   `json:"merged"`
	Skipped    int                   `json:"skipped"`
	Errored    int                   `json:"errored"`
}

func printDedupe(w io.Writer, format string, r *models.DedupeReport) error {
	out := dedupeReport{
		Candidates: make([]candidateReport, 0, len(r.Candidates)),
		Outcomes:   r.Outcomes,
		Merged:     r.Merged,
		Skipped:    r.Skipped,
		Errored:    r.Errored,
	}
	for _, c := range r.Candidates {
		out.Candidates = append(out.Candidates, candidateReport{
			AthleteA: c.A.ID.String(), NameA: c.A.DisplayName,
			AthleteB: c.B.ID.String(), NameB: c.B.DisplayName,
			Score: c.Score,
		})
	}
	if format == "json" {
		return renderJSON(w, out)
	}

	rows := make([][]string, 0, len(out.Candidates))
	for _, c := range out.Candidates {
		rows = append(rows, []string{c.NameA, c.AthleteA, c.NameB, c.AthleteB, strconv.FormatFloat(c.Score, 'f', 4, 64)})
	}
	if err := renderTable(w, []string{"athlete a", "id a", "athlete b", "id b", "score"}, rows); err != nil {
		return err
	}
	_, err := fmt.Fprintf(w, "%d candidates, %d merged, %d skipped, %d errored\n",
		len(out.Candidates), out.Merged, out.Skipped, out.Errored)
	return err
}
