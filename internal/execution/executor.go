// Package execution runs the export, import, restore, reset and list
// operations against one configured target and snapshot storage.
package execution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"platform-snapshot/internal/catalog"
	"platform-snapshot/internal/config"
	"platform-snapshot/internal/confirmation"
	"platform-snapshot/internal/database"
	apperrors "platform-snapshot/internal/errors"
	"platform-snapshot/internal/logging"
	"platform-snapshot/internal/migration"
	"platform-snapshot/internal/snapshot"
	"platform-snapshot/internal/store"
)

// ErrDeclined is returned when the operator answers no to a destructive prompt
var ErrDeclined = errors.New("operation declined")

// Dependencies are the collaborators of an Executor. Zero values are built
// from the configuration.
type Dependencies struct {
	Logger       *logging.Logger
	DBService    database.DatabaseService
	Display      DisplayService
	Confirmation confirmation.ConfirmationService
	Blobs        snapshot.BlobStore
}

// DisplayService is the part of display.DisplayService the executor reports through
type DisplayService interface {
	Info(message string)
	Success(message string)
	Warning(message string)
	KindProgress(stats *migration.KindStats)
}

// ExportResult describes a stored snapshot
type ExportResult struct {
	Key      string
	Location string
	Records  int
	Kinds    int
	Pruned   []string
	Duration time.Duration
}

// RestoreOptions selects the snapshot a restore reads
type RestoreOptions struct {
	// Path is a snapshot file; empty means the configured restore path
	Path string
	// Latest reads the newest snapshot in storage instead of a file
	Latest      bool
	AutoApprove bool
}

// Executor handles the operation flows with connection and storage lifecycle
type Executor struct {
	config       *config.Config
	logger       *logging.Logger
	dbService    database.DatabaseService
	display      DisplayService
	confirmation confirmation.ConfirmationService
	catalog      *catalog.Catalog
	codec        snapshot.Codec
	blobs        snapshot.BlobStore
}

// NewExecutor creates an executor for cfg
func NewExecutor(cfg *config.Config, deps Dependencies) (*Executor, error) {
	cat, err := cfg.LoadCatalog()
	if err != nil {
		return nil, apperrors.NewSetupError("cannot load catalog", err)
	}
	codec, err := cfg.Codec(cat)
	if err != nil {
		return nil, apperrors.NewSetupError("cannot configure snapshot codec", err)
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	dbService := deps.DBService
	if dbService == nil {
		dbService = database.NewServiceWithLogger(logger)
	}
	confirm := deps.Confirmation
	if confirm == nil {
		confirm = confirmation.NewConfirmationService(cfg.Display.IsColorEnabled())
	}

	return &Executor{
		config:       cfg,
		logger:       logger,
		dbService:    dbService,
		display:      deps.Display,
		confirmation: confirm,
		catalog:      cat,
		codec:        codec,
		blobs:        deps.Blobs,
	}, nil
}

// Catalog returns the catalog the executor works with
func (e *Executor) Catalog() *catalog.Catalog {
	return e.catalog
}

// Export reads every kind from the target and stores the snapshot. keep > 0
// prunes older snapshots afterwards.
func (e *Executor) Export(ctx context.Context, keep int) (*ExportResult, error) {
	start := time.Now()
	repo, err := e.repository(ctx)
	if err != nil {
		return nil, err
	}

	st, closeDB, err := e.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer closeDB()

	e.info(fmt.Sprintf("Exporting %s", e.config.Target.Name()))
	snap, err := snapshot.NewExporter(st, e.catalog, e.config.Target.Name(), e.logger).Export(ctx)
	if err != nil {
		return nil, err
	}

	key, err := repo.Save(ctx, snap)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to store snapshot", err)
	}

	result := &ExportResult{
		Key:      key,
		Location: repo.Blobs().Location(key),
		Records:  snap.Metadata.RecordCount,
		Kinds:    len(snap.Metadata.Kinds),
	}

	pruned, err := repo.Prune(ctx, keep)
	result.Pruned = pruned
	if err != nil {
		// the snapshot itself is safe
		e.warn(fmt.Sprintf("Pruning old snapshots failed: %v", err))
		e.logger.WithField("error", err.Error()).Warn("Snapshot pruning failed")
	}

	result.Duration = time.Since(start)
	return result, nil
}

// Import upserts the snapshot file at path into the target. Record and kind
// failures are in the summary, not the error.
func (e *Executor) Import(ctx context.Context, path string, opts migration.Options) (*migration.Summary, error) {
	if path == "" {
		return nil, apperrors.NewSetupError("a snapshot path is required", nil)
	}
	snap, err := snapshot.ReadFile(path, e.codec)
	if err != nil {
		return nil, err
	}

	st, closeDB, err := e.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer closeDB()

	mode := "Importing"
	if opts.DryRun {
		mode = "Planning import of"
	}
	e.info(fmt.Sprintf("%s %d records from %s", mode, snap.Metadata.RecordCount, path))

	importer := migration.NewImporter(st, e.catalog, e.logger)
	if e.display != nil {
		importer.OnKindDone(e.display.KindProgress)
	}
	return importer.Import(ctx, snap, opts)
}

// Restore replaces the target's content with a snapshot after confirmation
func (e *Executor) Restore(ctx context.Context, opts RestoreOptions) (*migration.RestoreReport, error) {
	snap, source, err := e.loadRestoreSnapshot(ctx, opts)
	if err != nil {
		return nil, err
	}

	tables := snap.KindNames()
	for table := range snap.Tables {
		tables = append(tables, table)
	}
	action := confirmation.Action{
		Title:  "Restore snapshot",
		Target: e.targetLabel(),
		Details: []string{
			fmt.Sprintf("snapshot %s taken %s", source, snap.Metadata.Timestamp.Format(time.RFC3339)),
			fmt.Sprintf("every row of %s will be replaced", strings.Join(tables, ", ")),
		},
	}
	if err := e.confirm(ctx, action, opts.AutoApprove); err != nil {
		return nil, err
	}

	st, closeDB, err := e.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer closeDB()

	e.info(fmt.Sprintf("Restoring %d records from %s", snap.Metadata.RecordCount, source))
	return migration.NewRestorer(st, e.catalog, e.logger).Restore(ctx, snap)
}

// Reset deletes every managed kind from the target after confirmation
func (e *Executor) Reset(ctx context.Context, autoApprove bool) (*migration.ResetReport, error) {
	kinds, err := e.catalog.ReverseOrder()
	if err != nil {
		return nil, apperrors.NewSetupError("cannot resolve kind order", err)
	}
	names := make([]string, len(kinds))
	for i, k := range kinds {
		names[i] = k.Name
	}

	action := confirmation.Action{
		Title:   "Reset database",
		Target:  e.targetLabel(),
		Details: []string{fmt.Sprintf("every row of %s will be deleted", strings.Join(names, ", "))},
	}
	if err := e.confirm(ctx, action, autoApprove); err != nil {
		return nil, err
	}

	st, closeDB, err := e.openStore(ctx)
	if err != nil {
		return nil, err
	}
	defer closeDB()

	return migration.NewResetter(st, e.catalog, e.logger).Reset(ctx)
}

// List returns the snapshots in storage, newest first
func (e *Executor) List(ctx context.Context) ([]snapshot.ObjectInfo, error) {
	repo, err := e.repository(ctx)
	if err != nil {
		return nil, err
	}
	objects, err := repo.List(ctx)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list snapshots", err)
	}
	return objects, nil
}

func (e *Executor) loadRestoreSnapshot(ctx context.Context, opts RestoreOptions) (*snapshot.Snapshot, string, error) {
	if !opts.Latest {
		path := opts.Path
		if path == "" {
			path = e.config.RestorePath()
		}
		snap, err := snapshot.ReadFile(path, e.codec)
		return snap, path, err
	}

	repo, err := e.repository(ctx)
	if err != nil {
		return nil, "", err
	}
	key, snap, err := repo.Latest(ctx)
	if errors.Is(err, snapshot.ErrNoSnapshots) {
		return nil, "", apperrors.NewSetupError("storage holds no snapshot to restore", err)
	}
	if err != nil {
		return nil, "", apperrors.NewStorageError("failed to load latest snapshot", err)
	}
	return snap, repo.Blobs().Location(key), nil
}

func (e *Executor) confirm(ctx context.Context, action confirmation.Action, autoApprove bool) error {
	ok, err := e.confirmation.ConfirmDestructive(ctx, action, autoApprove)
	if err != nil {
		if ctx.Err() != nil {
			return apperrors.NewAppError(apperrors.ErrorTypeInterruption, "confirmation interrupted", err)
		}
		return apperrors.NewSetupError("confirmation failed", err)
	}
	if !ok {
		return ErrDeclined
	}
	return nil
}

// openStore connects to the target. The returned func closes the connection.
func (e *Executor) openStore(ctx context.Context) (store.Store, func(), error) {
	conn := database.NewConnectionManagerWithService(e.dbService)
	if err := conn.ConnectToTarget(ctx, e.config.Target); err != nil {
		return nil, nil, err
	}
	closeDB := func() {
		if err := conn.Close(); err != nil {
			e.logger.WithField("error", err.Error()).Warn("Failed to close target connection")
		}
	}

	if version, err := conn.GetVersion(ctx); err == nil {
		e.logger.WithFields(map[string]interface{}{
			"driver":  e.config.Target.Driver,
			"version": version,
		}).Debug("Connected to target")
	}

	st, err := store.NewSQLStore(conn.GetTargetDB(), e.config.Target.Driver, e.logger)
	if err != nil {
		closeDB()
		return nil, nil, err
	}
	return st, closeDB, nil
}

func (e *Executor) repository(ctx context.Context) (*snapshot.Repository, error) {
	if e.blobs == nil {
		blobs, err := snapshot.NewBlobStore(ctx, e.config.Storage)
		if err != nil {
			return nil, apperrors.NewSetupError("cannot open snapshot storage", err)
		}
		e.blobs = blobs
	}
	return snapshot.NewRepository(e.blobs, e.codec, e.logger), nil
}

// Close releases the snapshot storage client, if it holds one
func (e *Executor) Close() error {
	if c, ok := e.blobs.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (e *Executor) targetLabel() string {
	t := e.config.Target
	if t.DSN != "" {
		return t.Driver + " " + logging.SanitizeDSN(t.DSN)
	}
	if t.Driver == database.DriverSQLite {
		return "sqlite " + t.Database
	}
	return fmt.Sprintf("%s %s@%s:%d/%s", t.Driver, t.Username, t.Host, t.Port, t.Database)
}

func (e *Executor) info(msg string) {
	if e.display != nil {
		e.display.Info(msg)
	}
}

func (e *Executor) warn(msg string) {
	if e.display != nil {
		e.display.Warning(msg)
	}
}
