package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"roster/internal/identity/store/migrations"
)

func newMigrateCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the identity schema and event topic",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withApp(cmd, "migrate", func(ctx context.Context, app *App) error {
				if app.DB == nil {
					return errors.New("migrate needs a database; drop --dry-run")
				}
				if err := migrations.Apply(ctx, app.DB); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "schema up to date")

				if app.Kafka == nil {
					return nil
				}
				kafka := app.Config.Kafka
				if err := app.Kafka.EnsureTopic(ctx, kafka.Partitions, kafka.ReplicationFactor); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "topic %s ready\n", kafka.Topic)
				return nil
			})
		},
	}
}
