// Package migration holds the engines that move snapshots into a target store:
// the idempotent importer, the destructive restorer and the resetter.
package migration

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"platform-snapshot/internal/catalog"
	apperrors "platform-snapshot/internal/errors"
	"platform-snapshot/internal/logging"
	"platform-snapshot/internal/snapshot"
	"platform-snapshot/internal/store"
)

// Options tune an import run
type Options struct {
	DryRun    bool
	SkipAudit bool
	// UpdateOnConflict retries a create that hit a uniqueness conflict as an
	// update of the row matching the natural key, instead of skipping it
	UpdateOnConflict bool
}

// Importer upserts snapshot records kind by kind in dependency order
type Importer struct {
	store      store.Store
	catalog    *catalog.Catalog
	logger     *logging.Logger
	onKindDone func(*KindStats)
}

func NewImporter(s store.Store, c *catalog.Catalog, logger *logging.Logger) *Importer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Importer{store: s, catalog: c, logger: logger}
}

// OnKindDone registers a callback invoked after every kind, for progress output
func (im *Importer) OnKindDone(fn func(*KindStats)) {
	im.onKindDone = fn
}

// pendingAssociation is a user written in pass 1 whose permission set is
// replaced in pass 2
type pendingAssociation struct {
	id      any
	key     string
	outcome Outcome
	keys    []any
}

// Import writes snap into the store. Per-record and per-kind failures are
// counted in the summary; the returned error is reserved for failures that
// prevent the run from starting, and for interruption.
func (im *Importer) Import(ctx context.Context, snap *snapshot.Snapshot, opts Options) (*Summary, error) {
	if snap == nil {
		return nil, apperrors.NewSetupError("no snapshot to import", nil)
	}
	kinds, err := im.catalog.Order()
	if err != nil {
		return nil, apperrors.NewSetupError("cannot resolve kind order", err)
	}

	summary := NewSummary(opts.DryRun)
	im.warnUnknownKinds(snap, summary)

	done := im.logger.LogOperationStart("import", map[string]interface{}{
		"snapshot":     snap.Metadata.ID,
		"dry_run":      opts.DryRun,
		"skip_audit":   opts.SkipAudit,
		"kinds":        len(kinds),
		"record_count": snap.Metadata.RecordCount,
	})

	for _, kind := range kinds {
		if opts.SkipAudit && kind.Audit {
			im.logger.WithField("kind", kind.Name).Info("Skipping audit kind")
			continue
		}

		stats := im.importKind(ctx, kind, snap.Records(kind.Name), opts, summary)
		if im.onKindDone != nil {
			im.onKindDone(stats)
		}
	}

	summary.Finish()
	if err := ctx.Err(); err != nil {
		interrupted := apperrors.NewAppError(apperrors.ErrorTypeInterruption, "import interrupted", err)
		done(interrupted)
		return summary, interrupted
	}
	done(nil)
	return summary, nil
}

func (im *Importer) warnUnknownKinds(snap *snapshot.Snapshot, summary *Summary) {
	for _, name := range snap.KindNames() {
		if _, ok := im.catalog.Kind(name); ok {
			continue
		}
		summary.Warn("snapshot kind %q is not in the catalog and was ignored", name)
		im.logger.WithFields(map[string]interface{}{
			"kind":    name,
			"records": len(snap.Records(name)),
		}).Warn("Ignoring unknown kind in snapshot")
	}
	for table := range snap.Tables {
		if _, ok := im.catalog.OwnerOfJoinTable(table); ok {
			continue
		}
		summary.Warn("raw table %q is only used by restore and was ignored", table)
	}
}

func (im *Importer) importKind(ctx context.Context, kind catalog.Kind, records []store.Record, opts Options, summary *Summary) *KindStats {
	start := time.Now()
	stats := summary.Kind(kind.Name)
	stats.Total = len(records)
	defer func() { stats.Duration = time.Since(start) }()

	if len(records) == 0 {
		im.logger.WithField("kind", kind.Name).Debug("No records to import")
		return stats
	}
	if opts.DryRun {
		stats.Planned = len(records)
		im.logger.WithFields(map[string]interface{}{
			"kind":    kind.Name,
			"records": len(records),
		}).Info("Dry run: would import records")
		return stats
	}

	existing, err := im.store.Count(ctx, kind)
	if err != nil {
		im.abortKind(summary, kind, 0, len(records), err)
		return stats
	}
	im.logger.WithFields(map[string]interface{}{
		"kind":     kind.Name,
		"records":  len(records),
		"existing": existing,
	}).Info("Importing kind")

	var pending []pendingAssociation
	for i, rec := range records {
		if err := ctx.Err(); err != nil {
			im.abortKind(summary, kind, i, len(records), err)
			return stats
		}

		keyLabel := recordLabel(kind, rec)
		fields := rec
		if kind.Association != nil {
			fields = rec.Without(kind.Association.Field)
		}

		outcome, id, err := im.upsert(ctx, kind, fields, opts)
		if err != nil {
			if apperrors.IsFatalForKind(err) {
				im.abortKind(summary, kind, i, len(records), err)
				return stats
			}
			summary.RecordError(kind.Name, keyLabel, err)
			im.logger.LogRecordFailure(kind.Name, keyLabel, err)
			continue
		}
		summary.Record(kind.Name, outcome)
		if outcome == OutcomeSkipped {
			im.logger.LogRecordSkipped(kind.Name, keyLabel)
			continue
		}

		if kind.Association != nil {
			if raw, ok := rec[kind.Association.Field]; ok {
				keys, err := toKeyList(raw)
				if err != nil {
					summary.Demote(kind.Name, outcome, keyLabel, err)
					im.logger.LogRecordFailure(kind.Name, keyLabel, err)
					continue
				}
				pending = append(pending, pendingAssociation{id: id, key: keyLabel, outcome: outcome, keys: keys})
			}
		}
	}

	if len(pending) > 0 {
		if err := im.replaceAssociations(ctx, kind, pending, summary); err != nil {
			im.abortKind(summary, kind, len(records), len(records), err)
			return stats
		}
	}

	im.logger.LogKindCompleted(kind.Name, stats.Imported, stats.Updated, stats.Skipped, stats.Errored, time.Since(start))
	return stats
}

// upsert updates the row matching the natural key of rec, or creates it
func (im *Importer) upsert(ctx context.Context, kind catalog.Kind, rec store.Record, opts Options) (Outcome, any, error) {
	key, err := kind.KeyOf(rec)
	if err != nil {
		return OutcomeErrored, nil, apperrors.NewRecordError("cannot build natural key", err)
	}

	existing, found, err := im.store.FindByKey(ctx, kind, key)
	if err != nil {
		return OutcomeErrored, nil, err
	}
	if found {
		id := existing[kind.IDField]
		if err := im.store.Update(ctx, kind, id, rec.Without(kind.IDField)); err != nil {
			return OutcomeErrored, nil, err
		}
		return OutcomeUpdated, id, nil
	}

	id, err := im.store.Create(ctx, kind, rec)
	if err == nil {
		return OutcomeImported, id, nil
	}
	if !apperrors.IsConflict(err) {
		return OutcomeErrored, nil, err
	}

	// only a row holding the natural key makes a skip; a clash on the
	// surrogate id or another unique column is a failed write
	existing, found, findErr := im.store.FindByKey(ctx, kind, key)
	if findErr != nil {
		return OutcomeErrored, nil, findErr
	}
	if !found {
		return OutcomeErrored, nil, err
	}
	if !opts.UpdateOnConflict {
		return OutcomeSkipped, nil, nil
	}
	id = existing[kind.IDField]
	if err := im.store.Update(ctx, kind, id, rec.Without(kind.IDField)); err != nil {
		return OutcomeErrored, nil, err
	}
	return OutcomeUpdated, id, nil
}

// replaceAssociations is pass 2: it resolves every pending owner's target keys
// and replaces the owner's association set exactly
func (im *Importer) replaceAssociations(ctx context.Context, kind catalog.Kind, pending []pendingAssociation, summary *Summary) error {
	a := kind.Association
	target, ok := im.catalog.Kind(a.Kind)
	if !ok {
		return apperrors.NewKindError(kind.Name, fmt.Sprintf("association target %s is not in the catalog", a.Kind), nil)
	}

	resolved := make(map[string]any)
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return err
		}

		ids := make([]any, 0, len(p.keys))
		var missing []string
		var lookupErr error
		for _, k := range p.keys {
			label := fmt.Sprint(k)
			if id, ok := resolved[label]; ok {
				ids = append(ids, id)
				continue
			}
			row, found, err := im.store.FindByKey(ctx, target, catalog.Key{Fields: target.NaturalKey, Values: []any{k}})
			if err != nil {
				if apperrors.IsFatalForKind(err) {
					return err
				}
				lookupErr = err
				break
			}
			if !found {
				missing = append(missing, label)
				continue
			}
			resolved[label] = row[target.IDField]
			ids = append(ids, row[target.IDField])
		}

		if lookupErr == nil && len(missing) > 0 {
			lookupErr = apperrors.NewRecordError(
				fmt.Sprintf("unknown %s: %s", a.Kind, strings.Join(missing, ", ")), nil)
		}
		if lookupErr == nil {
			lookupErr = im.store.ReplaceAssociation(ctx, kind, p.id, ids)
			if lookupErr != nil && apperrors.IsFatalForKind(lookupErr) {
				return lookupErr
			}
		}
		if lookupErr != nil {
			summary.Demote(kind.Name, p.outcome, p.key, lookupErr)
			im.logger.LogRecordFailure(kind.Name, p.key, lookupErr)
		}
	}
	return nil
}

func (im *Importer) abortKind(summary *Summary, kind catalog.Kind, processed, total int, err error) {
	summary.Abort(kind.Name, err)
	im.logger.LogKindAborted(kind.Name, processed, total, err)
}

// recordLabel renders the natural key of rec for logs, falling back to its id
func recordLabel(kind catalog.Kind, rec store.Record) string {
	if key, err := kind.KeyOf(rec); err == nil {
		return key.String()
	}
	if id, ok := rec[kind.IDField]; ok {
		return fmt.Sprintf("%s=%v", kind.IDField, id)
	}
	return "<no key>"
}

// toKeyList accepts the association field as decoded from JSON. Duplicates
// are dropped and the order is made stable.
func toKeyList(raw any) ([]any, error) {
	if raw == nil {
		return []any{}, nil
	}
	var list []any
	switch v := raw.(type) {
	case []any:
		list = v
	case []string:
		for _, s := range v {
			list = append(list, s)
		}
	default:
		return nil, apperrors.NewRecordError(fmt.Sprintf("association field must be a list, got %T", raw), nil)
	}

	seen := make(map[string]bool, len(list))
	out := make([]any, 0, len(list))
	for _, k := range list {
		label := fmt.Sprint(k)
		if seen[label] {
			continue
		}
		seen[label] = true
		out = append(out, k)
	}
	sort.SliceStable(out, func(i, j int) bool { return fmt.Sprint(out[i]) < fmt.Sprint(out[j]) })
	return out, nil
}
