package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/spf13/cobra"

	"platform-snapshot/internal/application"
	"platform-snapshot/internal/migration"
)

func newImportCommand(opts *rootOptions) *cobra.Command {
	var importOpts migration.Options

	cmd := &cobra.Command{
		Use:   "import <snapshot-path>",
		Short: "Upsert a snapshot into the target by natural key",
		Long: `Import every record of a snapshot into the target database. Kinds are written
parents first; each record is created when its natural key is absent and updated
otherwise, so importing the same snapshot twice changes nothing the second time.

A failing record is counted and logged and the run continues. The command exits
non-zero only when the import cannot start.

Examples:
  platform-snapshot import ./backups/snapshot-20240301T100000Z-1a2b3c4d.json
  platform-snapshot import prod.json --dry-run
  platform-snapshot import prod.json --skip-audit --update-on-conflict`,
		Args: cobra.MatchAll(cobra.ExactArgs(1), snapshotFileExists),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, true, func(app *application.Application, cmd *cobra.Command) error {
				return app.Import(cmd.Context(), args[0], importOpts)
			})
		},
	}

	cmd.Flags().BoolVar(&importOpts.DryRun, "dry-run", false, "report what would be imported without writing")
	cmd.Flags().BoolVar(&importOpts.SkipAudit, "skip-audit", false, "do not import audit kinds")
	cmd.Flags().BoolVar(&importOpts.UpdateOnConflict, "update-on-conflict", false,
		"retry a create that hit a uniqueness conflict as an update")
	return cmd
}

// snapshotFileExists rejects a path argument that is not a readable file
func snapshotFileExists(cmd *cobra.Command, args []string) error {
	info, err := os.Stat(args[0])
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("snapshot file %s does not exist", args[0])
	}
	if err != nil {
		return fmt.Errorf("cannot access snapshot file: %w", err)
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory, not a snapshot file", args[0])
	}
	return nil
}
