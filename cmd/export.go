package cmd

import (
	"github.com/spf13/cobra"

	"platform-snapshot/internal/application"
)

func newExportCommand(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a timestamped snapshot of the target to storage",
		Long: `Read every entity kind of the target database in dependency order and store
the result as a timestamped snapshot in the configured storage (a local backup
directory unless configured otherwise).

Examples:
  platform-snapshot export
  platform-snapshot export --compression zstd --encryption-key-file ./snapshot.key
  platform-snapshot export --keep 7`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, true, func(app *application.Application, cmd *cobra.Command) error {
				return app.Export(cmd.Context(), opts.viper.GetInt("snapshot.keep"))
			})
		},
	}

	cmd.Flags().String("compression", "none", "snapshot compression (none, gzip, zstd, lz4)")
	cmd.Flags().Int("keep", 0, "after export, prune all but the newest N snapshots (0 keeps all)")
	bindFlags(opts.viper, cmd.Flags(), map[string]string{
		"snapshot.compression": "compression",
		"snapshot.keep":        "keep",
	})
	return cmd
}
