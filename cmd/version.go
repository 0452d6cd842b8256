package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"platform-snapshot/internal/config"
)

// Version information (set by main package)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
	goVersion = "unknown"
)

// SetVersionInfo sets the version information from build flags
func SetVersionInfo(v, bt, gc, gv string) {
	version = v
	buildTime = bt
	gitCommit = gc
	goVersion = gv
}

// createVersionCommand creates the version subcommand
func createVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version information",
		Long:  "Print the version information for platform-snapshot",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "platform-snapshot version %s\n", version)
			fmt.Fprintf(out, "Built: %s\n", buildTime)
			fmt.Fprintf(out, "Commit: %s\n", gitCommit)
			fmt.Fprintf(out, "Go version: %s\n", goVersion)
		},
	}
}

// createConfigCommand creates the config subcommand for generating sample config
func createConfigCommand() *cobra.Command {
	var listEnv bool

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate a sample configuration file",
		Long: `Generate a sample configuration file that can be used with the --config flag.

Examples:
  # Generate a config file
  platform-snapshot config > ~/.platform-snapshot.yaml

  # List the environment variables every key can be set through
  platform-snapshot config --env`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			if listEnv {
				fmt.Fprintln(cmd.OutOrStdout(), strings.Join(config.EnvironmentVariables(), "\n"))
				return
			}
			fmt.Fprint(cmd.OutOrStdout(), config.Template)
		},
	}
	cmd.Flags().BoolVar(&listEnv, "env", false, "list supported environment variables instead")
	return cmd
}
