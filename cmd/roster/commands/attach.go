package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"roster/internal/identity/decision"
	"roster/internal/identity/models"
	"roster/internal/identity/service"
)

type attachOptions struct {
	source       string
	interactive  bool
	deferred     bool
	refreshFlags bool
	annotated    string
}

func newAttachCmd(root *rootOptions) *cobra.Command {
	opts := &attachOptions{}
	cmd := &cobra.Command{
		Use:   "attach --source SYSTEM [FILE]",
		Short: "Attach a batch of records to canonical athletes",
		Long: `Attach reads JSON-lines records from FILE (or stdin) and resolves each
one to a canonical athlete for the given source system.

Records with an existing source mapping always keep it. Other records are
matched by name and, when nothing matches, a new athlete is created. With
--interactive each create is confirmed at the terminal; with --defer
unmapped records are only reported.

Examples:
  roster attach --source pitching trials.jsonl
  roster attach --source hitting --interactive swings.jsonl
  cat screens.jsonl | roster attach --source athletic_screen --defer`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return root.withApp(cmd, "attach", func(ctx context.Context, app *App) error {
				return runAttach(ctx, cmd, app, root, opts, args)
			})
		},
	}
	cmd.Flags().StringVarP(&opts.source, "source", "s", "", "Source system of the batch (required)")
	cmd.Flags().BoolVarP(&opts.interactive, "interactive", "i", false, "Confirm each new athlete at the terminal")
	cmd.Flags().BoolVar(&opts.deferred, "defer", false, "Report unmapped records instead of resolving them")
	cmd.Flags().BoolVar(&opts.refreshFlags, "refresh-flags", true, "Refresh data flags for every athlete the batch touched")
	cmd.Flags().StringVar(&opts.annotated, "write-records", "", "Write the records annotated with athlete_uuid to this file")
	_ = cmd.MarkFlagRequired("source")
	cmd.MarkFlagsMutuallyExclusive("interactive", "defer")
	return cmd
}

func runAttach(ctx context.Context, cmd *cobra.Command, app *App, root *rootOptions, opts *attachOptions, args []string) error {
	system, err := models.ParseSourceSystem(opts.source)
	if err != nil {
		return err
	}

	in := cmd.InOrStdin()
	if len(args) == 1 && args[0] != "-" {
		f, err := os.Open(args[0])
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	} else if opts.interactive {
		return errors.New("--interactive needs records from a file so answers can come from stdin")
	}

	batch, err := readRecords(in, system)
	if err != nil {
		return err
	}

	attachOpts := service.AttachOptions{Mode: service.ModeResolve, RefreshFlags: opts.refreshFlags}
	if opts.deferred {
		attachOpts.Mode = service.ModeDefer
	}
	if opts.interactive {
		attachOpts.Decisions = decision.NewConsole(cmd.InOrStdin(), cmd.OutOrStdout(), decision.WithDemographicPrompts())
	}

	result, err := app.Service.Attach(ctx, batch, system, attachOpts)
	if result == nil {
		return err
	}
	if opts.annotated != "" {
		if werr := writeAnnotated(opts.annotated, result.Records); werr != nil {
			return errors.Join(err, werr)
		}
	}
	if rerr := printAttach(cmd.OutOrStdout(), root.output, system, result); rerr != nil {
		return errors.Join(err, rerr)
	}
	return err
}

func writeAnnotated(path string, records []models.Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := writeAttached(f, records); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

type attachReport struct {
	SourceSystem string              `json:"source_system"`
	Summary      models.BatchSummary `json:"summary"`
	Unmapped     []unmappedReport    `json:"unmapped,omitempty"`
	Errors       []string            `json:"errors,omitempty"`
}

type unmappedReport struct {
	Index     int    `json:"index"`
	Name      string `json:"name"`
	SourceKey string `json:"source_key"`
}

func printAttach(w io.Writer, format string, system models.SourceSystem, result *service.AttachResult) error {
	report := attachReport{SourceSystem: string(system), Summary: result.Summary}
	for _, u := range result.Unmapped {
		report.Unmapped = append(report.Unmapped, unmappedReport{Index: u.Index, Name: u.Record.Name, SourceKey: u.SourceKey})
	}
	for _, e := range result.Errors {
		report.Errors = append(report.Errors, e.Error())
	}
	if format == "json" {
		return renderJSON(w, report)
	}

	s := result.Summary
	if err := renderTable(w,
		[]string{"source", "total", "mapped", "matched", "created", "enriched", "skipped", "deferred", "errored"},
		[][]string{{
			string(system), strconv.Itoa(s.Total), strconv.Itoa(s.Mapped), strconv.Itoa(s.Matched),
			strconv.Itoa(s.Created), strconv.Itoa(s.Enriched), strconv.Itoa(s.Skipped),
			strconv.Itoa(s.Deferred), strconv.Itoa(s.Errored),
		}},
	); err != nil {
		return err
	}
	if len(report.Unmapped) > 0 {
		fmt.Fprintln(w, "\nUnmapped records:")
		rows := make([][]string, 0, len(report.Unmapped))
		for _, u := range report.Unmapped {
			rows = append(rows, []string{strconv.Itoa(u.Index), u.Name, u.SourceKey})
		}
		if err := renderTable(w, []string{"row", "name", "source key"}, rows); err != nil {
			return err
		}
	}
	for _, e := range report.Errors {
		fmt.Fprintln(w, e)
	}
	return nil
}
