package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"platform-snapshot/internal/application"
	"platform-snapshot/internal/config"
	"platform-snapshot/internal/confirmation"
	"platform-snapshot/internal/execution"
)

// rootOptions carries the state shared by every subcommand of one invocation
type rootOptions struct {
	cfgFile string
	noColor bool
	viper   *viper.Viper
}

// NewRootCommand builds the platform-snapshot command tree
func NewRootCommand() *cobra.Command {
	opts := &rootOptions{viper: viper.New()}

	rootCmd := &cobra.Command{
		Use:   "platform-snapshot",
		Short: "Export, import, restore and reset the relational state of the platform",
		Long: `platform-snapshot moves the full relational state of the multi-tenant platform
between environments. Entity kinds are written in foreign-key order, imports are
idempotent upserts by natural key, and per-record failures never stop a run.

Examples:
  # Snapshot production into the configured storage
  platform-snapshot export --config prod.yaml --compression zstd --keep 14

  # Preview an import without writing anything
  platform-snapshot import ./backups/snapshot-20240301T100000Z-1a2b3c4d.json --dry-run

  # Replace a staging database with the newest stored snapshot
  platform-snapshot restore --latest --config staging.yaml --auto-approve

  # Empty every managed table of a local sqlite database
  platform-snapshot reset --driver sqlite --db ./dev.db`,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmd.SilenceUsage = true
			if err := config.Setup(opts.viper, opts.cfgFile); err != nil {
				return err
			}
			if opts.noColor {
				opts.viper.Set("display.color_enabled", false)
			}
			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.cfgFile, "config", "", "config file (default is $HOME/.platform-snapshot.yaml)")

	// Target database flags
	flags.String("driver", "", "target database driver (mysql, postgres, sqlite)")
	flags.String("host", "", "target database host")
	flags.Int("port", 0, "target database port (default 3306 for mysql, 5432 for postgres)")
	flags.String("user", "", "target database username")
	flags.String("password", "", "target database password")
	flags.String("db", "", "target database name, or file path for sqlite")
	flags.String("dsn", "", "target data source name, overrides the fields above")
	flags.Duration("timeout", 30*time.Second, "connection establishment timeout")
	flags.String("catalog", "", "YAML catalog replacing the built-in entity kinds")
	flags.String("encryption-key-file", "", "passphrase file for encrypted snapshots")

	// Output flags
	flags.BoolP("verbose", "v", false, "enable verbose output")
	flags.BoolP("quiet", "q", false, "suppress non-error output")
	flags.String("log-file", "", "also write logs to this file")
	flags.String("log-format", "text", "log format (text, json)")
	flags.BoolVar(&opts.noColor, "no-color", false, "disable color output")
	flags.String("format", "table", "output format (table, compact, json, yaml)")

	bindFlags(opts.viper, flags, map[string]string{
		"target.driver":                "driver",
		"target.host":                  "host",
		"target.port":                  "port",
		"target.username":              "user",
		"target.password":              "password",
		"target.database":              "db",
		"target.dsn":                   "dsn",
		"target.timeout":               "timeout",
		"catalog":                      "catalog",
		"snapshot.encryption_key_file": "encryption-key-file",
		"log.verbose":                  "verbose",
		"log.quiet":                    "quiet",
		"log.file":                     "log-file",
		"log.format":                   "log-format",
		"display.output_format":        "format",
	})

	rootCmd.MarkFlagsMutuallyExclusive("verbose", "quiet")

	rootCmd.AddCommand(
		newExportCommand(opts),
		newImportCommand(opts),
		newRestoreCommand(opts),
		newResetCommand(opts),
		newListCommand(opts),
		createVersionCommand(),
		createConfigCommand(),
	)
	return rootCmd
}

// Execute runs the command tree and exits with status 1 on any error.
// This is called by main.main().
func Execute() {
	rootCmd := NewRootCommand()
	if err := rootCmd.Execute(); err != nil {
		var reported *application.ReportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

// newApplication loads the configuration and wires an application whose
// output goes to the command's writers
func (opts *rootOptions) newApplication(cmd *cobra.Command, requireTarget bool) (*application.Application, error) {
	cfg, err := config.Load(opts.viper, requireTarget)
	if err != nil {
		return nil, fmt.Errorf("configuration error: %w", err)
	}
	cfg.Display.Writer = cmd.OutOrStdout()

	confirm := confirmation.NewConfirmationServiceWithIO(cmd.InOrStdin(), cmd.OutOrStdout(), cfg.Display.IsColorEnabled())
	app, err := application.NewApplication(cfg, application.Options{
		Dependencies: execution.Dependencies{Confirmation: confirm},
		ErrOut:       cmd.ErrOrStderr(),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application: %w", err)
	}
	return app, nil
}

// run starts app, calls fn with the signal-aware context and shuts app down
func (opts *rootOptions) run(cmd *cobra.Command, requireTarget bool, fn func(*application.Application, *cobra.Command) error) error {
	app, err := opts.newApplication(cmd, requireTarget)
	if err != nil {
		return err
	}
	ctx := app.Start(cmd.Context())
	cmd.SetContext(ctx)

	runErr := fn(app, cmd)
	if err := app.Shutdown(); err != nil && runErr == nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	return runErr
}

// bindFlags maps config keys to flags so flags override file and environment
func bindFlags(v *viper.Viper, flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		cobra.CheckErr(v.BindPFlag(key, flags.Lookup(name)))
	}
}
