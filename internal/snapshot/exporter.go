package snapshot

import (
	"context"
	"fmt"
	"time"

	"platform-snapshot/internal/catalog"
	"platform-snapshot/internal/logging"
	"platform-snapshot/internal/store"
)

// Exporter reads every kind of the catalog into a snapshot
type Exporter struct {
	store   store.Store
	catalog *catalog.Catalog
	source  string
	logger  *logging.Logger
}

// NewExporter creates an exporter. source is recorded in the snapshot metadata.
func NewExporter(s store.Store, c *catalog.Catalog, source string, logger *logging.Logger) *Exporter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Exporter{store: s, catalog: c, source: source, logger: logger}
}

// Export lists each kind in dependency order. Kinds with an association get
// the natural keys of their associated records attached under the
// association field. Any store error aborts the export.
func (e *Exporter) Export(ctx context.Context) (*Snapshot, error) {
	kinds, err := e.catalog.Order()
	if err != nil {
		return nil, err
	}

	done := e.logger.LogOperationStart("export", map[string]interface{}{"kinds": len(kinds)})
	data := make(map[string][]store.Record, len(kinds))
	names := make([]string, 0, len(kinds))

	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			done(err)
			return nil, err
		}

		start := time.Now()
		records, err := e.store.List(ctx, kind)
		if err != nil {
			err = fmt.Errorf("failed to export %s: %w", kind.Name, err)
			done(err)
			return nil, err
		}
		if kind.Association != nil {
			if err := e.attachAssociation(ctx, kind, records); err != nil {
				done(err)
				return nil, err
			}
		}

		data[kind.Name] = records
		names = append(names, kind.Name)
		e.logger.WithFields(map[string]interface{}{
			"kind":     kind.Name,
			"records":  len(records),
			"duration": time.Since(start).String(),
		}).Info("Exported kind")
	}

	snap, err := New(e.source, names, data)
	done(err)
	return snap, err
}

func (e *Exporter) attachAssociation(ctx context.Context, kind catalog.Kind, records []store.Record) error {
	a := kind.Association
	target, ok := e.catalog.Kind(a.Kind)
	if !ok {
		return fmt.Errorf("%w: %s", catalog.ErrUnknownKind, a.Kind)
	}
	keyField := target.NaturalKey[0]

	for _, rec := range records {
		linked, err := e.store.ListAssociation(ctx, kind, target, rec[kind.IDField])
		if err != nil {
			return fmt.Errorf("failed to export %s.%s: %w", kind.Name, a.Field, err)
		}
		keys := make([]any, 0, len(linked))
		for _, t := range linked {
			keys = append(keys, t[keyField])
		}
		rec[a.Field] = keys
	}
	return nil
}
