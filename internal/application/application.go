package application

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/google/uuid"

	"platform-snapshot/internal/config"
	appErrors "platform-snapshot/internal/errors"
	"platform-snapshot/internal/display"
	"platform-snapshot/internal/execution"
	"platform-snapshot/internal/logging"
	"platform-snapshot/internal/migration"
)

// ReportedError marks an error whose message was already shown to the user
type ReportedError struct {
	Err error
}

func (e *ReportedError) Error() string { return e.Err.Error() }
func (e *ReportedError) Unwrap() error { return e.Err }

// Application represents the main application
type Application struct {
	config          *config.Config
	executor        *execution.Executor
	logger          *logging.Logger
	display         display.DisplayService
	shutdownHandler *appErrors.GracefulShutdownHandler
	errOut          io.Writer
}

// Options overrides collaborators, mainly for tests
type Options struct {
	Dependencies execution.Dependencies
	ErrOut       io.Writer
}

// NewApplication creates a new application instance
func NewApplication(cfg *config.Config, opts Options) (*Application, error) {
	logger := opts.Dependencies.Logger
	if logger == nil {
		var err error
		logger, err = logging.NewLogger(cfg.LoggerConfig())
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
	}

	ds := display.NewDisplayService(&cfg.Display)

	deps := opts.Dependencies
	deps.Logger = logger
	if deps.Display == nil {
		deps.Display = ds
	}
	executor, err := execution.NewExecutor(cfg, deps)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("failed to create executor: %w", err)
	}

	errOut := opts.ErrOut
	if errOut == nil {
		errOut = os.Stderr
	}

	app := &Application{
		config:          cfg,
		executor:        executor,
		logger:          logger,
		display:         ds,
		shutdownHandler: appErrors.NewGracefulShutdownHandler(),
		errOut:          errOut,
	}
	app.shutdownHandler.RegisterShutdownFunc(logger.Close)
	app.shutdownHandler.RegisterShutdownFunc(executor.Close)
	return app, nil
}

// Start returns a context canceled on SIGINT or SIGTERM and tagged with a
// fresh run id for log correlation
func (app *Application) Start(parent context.Context) context.Context {
	ctx := logging.CreateContextWithRunID(app.shutdownHandler.Start(parent), uuid.NewString())
	app.logger.WithContext(ctx).WithField("target", app.config.Target.Name()).Debug("Command started")
	return ctx
}

// Shutdown stops signal handling and releases storage clients and log files
func (app *Application) Shutdown() error {
	return app.shutdownHandler.Stop()
}

// Export stores a snapshot of the target
func (app *Application) Export(ctx context.Context, keep int) error {
	spinner := app.display.StartSpinner("Exporting " + app.config.Target.Name())
	result, err := app.executor.Export(ctx, keep)
	if err != nil {
		app.display.StopSpinner(spinner, "")
		return app.fail(err)
	}
	app.display.StopSpinner(spinner, "")

	app.display.Success(fmt.Sprintf("Exported %d records of %d kinds to %s in %s",
		result.Records, result.Kinds, result.Location, result.Duration.Round(time.Millisecond)))
	if len(result.Pruned) > 0 {
		app.display.Info(fmt.Sprintf("Pruned %d old snapshots", len(result.Pruned)))
	}
	return nil
}

// Import upserts a snapshot file. Record errors are reported, not returned.
func (app *Application) Import(ctx context.Context, path string, opts migration.Options) error {
	app.display.PrintHeader("Import")
	summary, err := app.executor.Import(ctx, path, opts)
	if summary != nil {
		if renderErr := app.display.RenderImportSummary(summary); renderErr != nil {
			app.logger.WithField("error", renderErr.Error()).Error("Failed to render summary")
		}
	}
	if err != nil {
		return app.fail(err)
	}
	return nil
}

// Restore replaces the target's content with a snapshot
func (app *Application) Restore(ctx context.Context, opts execution.RestoreOptions) error {
	report, err := app.executor.Restore(ctx, opts)
	if errors.Is(err, execution.ErrDeclined) {
		app.display.Info("Restore cancelled")
		return nil
	}
	if report != nil {
		if renderErr := app.display.RenderRestoreReport(report); renderErr != nil {
			app.logger.WithField("error", renderErr.Error()).Error("Failed to render report")
		}
	}
	if err != nil {
		return app.fail(err)
	}
	return nil
}

// Reset empties every managed kind of the target
func (app *Application) Reset(ctx context.Context, autoApprove bool) error {
	report, err := app.executor.Reset(ctx, autoApprove)
	if errors.Is(err, execution.ErrDeclined) {
		app.display.Info("Reset cancelled")
		return nil
	}
	if report != nil {
		if renderErr := app.display.RenderResetReport(report); renderErr != nil {
			app.logger.WithField("error", renderErr.Error()).Error("Failed to render report")
		}
	}
	if err != nil {
		return app.fail(err)
	}
	return nil
}

// List prints the stored snapshots
func (app *Application) List(ctx context.Context) error {
	objects, err := app.executor.List(ctx)
	if err != nil {
		return app.fail(err)
	}
	return app.display.RenderSnapshots(objects)
}

// fail reports err to the user and marks it as reported
func (app *Application) fail(err error) error {
	fmt.Fprintf(app.errOut, "Error: %s\n", userMessage(err))

	var appErr *appErrors.AppError
	if errors.As(err, &appErr) {
		app.logger.WithFields(map[string]interface{}{
			"error_type":  string(appErr.Type),
			"recoverable": appErr.IsRecoverable(),
			"context":     appErr.Context,
		}).Error("Execution failed")

		app.provideTroubleshootingHints(appErr)
	}
	return &ReportedError{Err: err}
}

func userMessage(err error) string {
	var appErr *appErrors.AppError
	if !errors.As(err, &appErr) {
		return err.Error()
	}
	if appErr.Cause != nil {
		return fmt.Sprintf("%s: %v", appErr.GetUserMessage(), appErr.Cause)
	}
	return appErr.GetUserMessage()
}

// provideTroubleshootingHints provides helpful troubleshooting information
func (app *Application) provideTroubleshootingHints(appErr *appErrors.AppError) {
	var hints []string
	switch appErr.Type {
	case appErrors.ErrorTypeConnection:
		hints = []string{
			"Check that the database server is running",
			"Verify the host and port are correct",
			"Ensure network connectivity to the database server",
		}
	case appErrors.ErrorTypePermission:
		hints = []string{
			"Verify the username and password are correct",
			"Check that the user may write every managed table",
		}
	case appErrors.ErrorTypeValidation:
		hints = []string{
			"Review the configuration file and command line flags",
			"Generate a sample configuration with: platform-snapshot config",
		}
	case appErrors.ErrorTypeTimeout:
		hints = []string{
			"Try increasing --timeout",
			"Check database server load",
		}
	case appErrors.ErrorTypeStorage:
		hints = []string{
			"Check the storage provider credentials",
			"Verify the bucket, container or directory exists",
		}
	case appErrors.ErrorTypeKind:
		hints = []string{
			"Earlier kinds were already written; rerun after fixing the cause",
		}
	}
	if len(hints) == 0 {
		return
	}

	fmt.Fprintf(app.errOut, "\nTroubleshooting hints:\n")
	for _, h := range hints {
		fmt.Fprintf(app.errOut, "- %s\n", h)
	}
}
