package commands

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"roster/internal/identity/models"
)

func newRefreshFlagsCmd(root *rootOptions) *cobra.Command {
	var source string
	cmd := &cobra.Command{
		Use:   "refresh-flags [--source SYSTEM]",
		Short: "Recompute per-system data flags and session counts",
		Long: `Refresh-flags recomputes has-data flags and session counts from the fact
tables. With --source only that system is refreshed; otherwise every
registered system is.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return root.withApp(cmd, "refresh-flags", func(ctx context.Context, app *App) error {
				systems := make([]models.SourceSystem, 0)
				if source != "" {
					system, err := models.ParseSourceSystem(source)
					if err != nil {
						return err
					}
					systems = append(systems, system)
				} else {
					for _, d := range models.Domains() {
						systems = append(systems, d.System)
					}
				}

				rows := make([][]string, 0, len(systems))
				for _, system := range systems {
					n, err := app.Service.RefreshAllFlags(ctx, system)
					if err != nil {
						return err
					}
					rows = append(rows, []string{string(system), strconv.Itoa(n)})
				}
				if root.output == "json" {
					out := make(map[string]string, len(rows))
					for _, r := range rows {
						out[r[0]] = r[1]
					}
					return renderJSON(cmd.OutOrStdout(), out)
				}
				return renderTable(cmd.OutOrStdout(), []string{"source", "athletes refreshed"}, rows)
			})
		},
	}
	cmd.Flags().StringVarP(&source, "source", "s", "", "Only refresh this source system")
	return cmd
}
