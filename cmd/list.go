package cmd

import (
	"github.com/spf13/cobra"

	"platform-snapshot/internal/application"
)

func newListCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "list",
		Aliases: []string{"ls"},
		Short:   "List the snapshots in storage, newest first",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, false, func(app *application.Application, cmd *cobra.Command) error {
				return app.List(cmd.Context())
			})
		},
	}
}
