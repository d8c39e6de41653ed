// Package commands is the roster command tree. Each command opens an app,
// calls one identity operation, and prints its report.
package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"roster/internal/platform/config"
	"roster/internal/platform/logger"
	"roster/pkg/requestcontext"
)

// Opener builds the app a command runs against.
type Opener func(ctx context.Context, cfg config.Config, log *slog.Logger, dryRun bool) (*App, error)

type rootOptions struct {
	v       *viper.Viper
	open    Opener
	envFile string
	dryRun  bool
	output  string

	cfg config.Config
	log *slog.Logger
}

// Execute runs the command tree until it finishes or the process receives
// SIGINT or SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd(OpenApp)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(root.ErrOrStderr(), color.RedString("error: %v", err))
	}
	return err
}

// NewRootCmd assembles the command tree. open decides which stores the
// commands use.
func NewRootCmd(open Opener) *cobra.Command {
	opts := &rootOptions{v: viper.New(), open: open}

	root := &cobra.Command{
		Use:   "roster",
		Short: "Resolve athlete identities across measurement systems",
		Long: `roster maps every upstream athlete record onto one canonical athlete.

It attaches batches of records to canonical athletes, keeps each source
system's identifiers mapped to them, refreshes per-system data flags, and
finds near-duplicate athletes for a human to merge.

Settings come from ROSTER_* environment variables, optionally seeded from
a .env file. Flags override both.`,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&opts.envFile, "env-file", ".env", "Seed environment variables from this file if it exists")
	flags.BoolVar(&opts.dryRun, "dry-run", false, "Use in-memory stores; nothing is persisted")
	flags.StringVarP(&opts.output, "output", "o", "table", "Report format: table or json")
	flags.String("log-level", "", "Log level: debug, info, warn, error")
	flags.String("log-format", "", "Log format: text or json")
	flags.String("operator", "", "Name recorded on identity events for this run")
	bindFlag(opts.v, "log.level", flags.Lookup("log-level"))
	bindFlag(opts.v, "log.format", flags.Lookup("log-format"))
	bindFlag(opts.v, "operator", flags.Lookup("operator"))

	root.AddCommand(
		newAttachCmd(opts),
		newDedupeCmd(opts),
		newRefreshFlagsCmd(opts),
		newMigrateCmd(opts),
		newServeCmd(opts),
	)
	return root
}

// load reads configuration and stamps the command context with a run ID and
// operator.
func (o *rootOptions) load(cmd *cobra.Command) error {
	if o.output != "table" && o.output != "json" {
		return fmt.Errorf("unknown output format %q", o.output)
	}
	config.LoadDotEnv(o.envFile)
	cfg, err := config.Load(o.v)
	if err != nil {
		return err
	}
	log, err := logger.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}
	o.cfg, o.log = cfg, log

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = requestcontext.WithRunID(ctx, uuid.NewString())
	if cfg.Operator != "" {
		ctx = requestcontext.WithOperator(ctx, cfg.Operator)
	}
	cmd.SetContext(ctx)
	return nil
}

// withApp opens the app for one command and closes it afterwards.
func (o *rootOptions) withApp(cmd *cobra.Command, name string, fn func(ctx context.Context, app *App) error) error {
	ctx := cmd.Context()
	app, err := o.open(ctx, o.cfg, o.log, o.dryRun)
	if err != nil {
		return err
	}
	defer app.Close()

	start := requestcontext.Now(ctx)
	err = fn(ctx, app)
	app.Metrics.ObserveRun(name, requestcontext.Now(ctx).Sub(start), err)
	if err != nil {
		o.log.ErrorContext(ctx, "command failed", "command", name, "run_id", requestcontext.RunID(ctx), "error", err)
	}
	return err
}

func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) {
	if err := v.BindPFlag(key, flag); err != nil {
		panic(err)
	}
}
