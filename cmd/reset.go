package cmd

import (
	"github.com/spf13/cobra"

	"platform-snapshot/internal/application"
)

func newResetCommand(opts *rootOptions) *cobra.Command {
	var autoApprove bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Delete every managed entity from the target (destructive)",
		Long: `Delete all rows of every managed kind, children first. The command stops at
the first kind that fails; kinds deleted before it stay deleted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, true, func(app *application.Application, cmd *cobra.Command) error {
				return app.Reset(cmd.Context(), autoApprove)
			})
		},
	}

	cmd.Flags().BoolVar(&autoApprove, "auto-approve", false, "skip the confirmation prompt")
	return cmd
}
