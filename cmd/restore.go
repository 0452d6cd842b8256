package cmd

import (
	"errors"

	"github.com/spf13/cobra"

	"platform-snapshot/internal/application"
	"platform-snapshot/internal/execution"
)

var errLatestWithPath = errors.New("--latest cannot be combined with a snapshot path")

func newRestoreCommand(opts *rootOptions) *cobra.Command {
	var restoreOpts execution.RestoreOptions

	cmd := &cobra.Command{
		Use:   "restore [snapshot-path]",
		Short: "Replace the target's content with a snapshot (destructive)",
		Long: `Truncate every table present in the snapshot and insert the snapshot rows
unchanged, with foreign-key checks suspended for the duration. Identity sequences
continue after the restored ids. Checks are re-enabled on every exit path.

Without a path the configured restore.path is used, by default restore.json in
the local backup directory. --latest reads the newest snapshot in storage.

Examples:
  platform-snapshot restore
  platform-snapshot restore ./backups/prod.json --auto-approve
  platform-snapshot restore --latest`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 1 {
				if restoreOpts.Latest {
					cmd.SilenceUsage = false
					return errLatestWithPath
				}
				restoreOpts.Path = args[0]
			}
			return opts.run(cmd, true, func(app *application.Application, cmd *cobra.Command) error {
				return app.Restore(cmd.Context(), restoreOpts)
			})
		},
	}

	cmd.Flags().BoolVar(&restoreOpts.Latest, "latest", false, "restore the newest snapshot in storage")
	cmd.Flags().BoolVar(&restoreOpts.AutoApprove, "auto-approve", false, "skip the confirmation prompt")
	return cmd
}
