package migration

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"platform-snapshot/internal/catalog"
	apperrors "platform-snapshot/internal/errors"
	"platform-snapshot/internal/logging"
	"platform-snapshot/internal/snapshot"
	"platform-snapshot/internal/store"
)

// TableReport is the restore result of one table
type TableReport struct {
	Table     string   `json:"table" yaml:"table"`
	Kind      string   `json:"kind,omitempty" yaml:"kind,omitempty"`
	Rows      int      `json:"rows" yaml:"rows"`
	Truncated bool     `json:"truncated" yaml:"truncated"`
	Skipped   bool     `json:"skipped,omitempty" yaml:"skipped,omitempty"`
	Inserted  int      `json:"inserted" yaml:"inserted"`
	Failed    int      `json:"failed" yaml:"failed"`
	Errors    []string `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func (t *TableReport) fail(label string, err error) {
	t.Failed++
	if len(t.Errors) < maxRecordedErrors {
		t.Errors = append(t.Errors, fmt.Sprintf("%s: %v", label, err))
	}
}

// RestoreReport summarizes a restore run
type RestoreReport struct {
	Tables    []*TableReport `json:"tables" yaml:"tables"`
	StartedAt time.Time      `json:"started_at" yaml:"started_at"`
	Duration  time.Duration  `json:"-" yaml:"-"`
	Committed bool           `json:"committed" yaml:"committed"`
	Warnings  []string       `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Table returns the report of table
func (r *RestoreReport) Table(table string) (*TableReport, bool) {
	for _, t := range r.Tables {
		if t.Table == table {
			return t, true
		}
	}
	return nil, false
}

// Totals returns the inserted and failed row counts over all tables
func (r *RestoreReport) Totals() (inserted, failed int) {
	for _, t := range r.Tables {
		inserted += t.Inserted
		failed += t.Failed
	}
	return inserted, failed
}

func (r *RestoreReport) warn(format string, args ...interface{}) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// Restorer replaces the content of every snapshot table with the snapshot rows
type Restorer struct {
	store   store.Store
	catalog *catalog.Catalog
	logger  *logging.Logger
}

func NewRestorer(s store.Store, c *catalog.Catalog, logger *logging.Logger) *Restorer {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Restorer{store: s, catalog: c, logger: logger}
}

// tablePlan is one table to truncate and refill
type tablePlan struct {
	report *TableReport
	idCol  string
	rows   []store.Record
}

// Restore truncates and refills every table present in snap with integrity
// checks suspended. Failing rows are counted, not fatal. The session is
// closed on every exit path, so integrity checks are always re-enabled;
// transactional stores commit only when no step failed.
func (r *Restorer) Restore(ctx context.Context, snap *snapshot.Snapshot) (report *RestoreReport, err error) {
	if snap == nil {
		return nil, apperrors.NewSetupError("no snapshot to restore", nil)
	}
	report = &RestoreReport{StartedAt: time.Now().UTC()}
	plans, err := r.plan(snap, report)
	if err != nil {
		return report, apperrors.NewSetupError("cannot plan restore", err)
	}

	done := r.logger.LogOperationStart("restore", map[string]interface{}{
		"snapshot": snap.Metadata.ID,
		"tables":   len(plans),
	})
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		done(err)
	}()

	session, err := r.store.BeginRestore(ctx)
	if err != nil {
		return report, apperrors.NewSetupError("cannot begin restore", err)
	}

	commit := false
	defer func() {
		p := recover()
		closeErr := session.Close(context.WithoutCancel(ctx), commit && p == nil)
		if closeErr != nil {
			r.logger.WithField("error", closeErr.Error()).Error("Failed to close restore session")
			err = errors.Join(err, apperrors.NewAppError(apperrors.ErrorTypeConnection, "failed to finish restore", closeErr))
		}
		report.Committed = commit && p == nil && closeErr == nil
		if p != nil {
			panic(p)
		}
	}()

	present, err := r.truncate(ctx, session, plans, report)
	if err != nil {
		return report, err
	}
	if err := r.insert(ctx, session, present, report); err != nil {
		return report, err
	}

	commit = true
	return report, nil
}

func (r *Restorer) truncate(ctx context.Context, session store.RestoreSession, plans []*tablePlan, report *RestoreReport) ([]*tablePlan, error) {
	var present []*tablePlan
	var tables []string
	for _, p := range plans {
		exists, err := session.TableExists(ctx, p.report.Table)
		if err != nil {
			return nil, apperrors.NewKindError(p.report.Table, "cannot inspect target schema", err)
		}
		if !exists {
			p.report.Skipped = true
			report.warn("table %s does not exist in the target and was skipped", p.report.Table)
			r.logger.WithField("table", p.report.Table).Warn("Table missing from target schema, skipping")
			continue
		}
		present = append(present, p)
		tables = append(tables, p.report.Table)
	}

	if err := session.Truncate(ctx, tables); err != nil {
		return nil, apperrors.NewAppError(apperrors.ErrorTypeSQL, "failed to truncate tables", err)
	}
	for _, p := range present {
		p.report.Truncated = true
	}
	r.logger.WithField("tables", len(tables)).Info("Truncated tables")
	return present, nil
}

func (r *Restorer) insert(ctx context.Context, session store.RestoreSession, plans []*tablePlan, report *RestoreReport) error {
	for _, p := range plans {
		start := time.Now()
		for i, row := range p.rows {
			if err := ctx.Err(); err != nil {
				return apperrors.NewAppError(apperrors.ErrorTypeInterruption, "restore interrupted", err)
			}
			if err := session.InsertRaw(ctx, p.report.Table, row); err != nil {
				label := fmt.Sprintf("row %d", i+1)
				if id, ok := row[p.idCol]; ok && p.idCol != "" {
					label = fmt.Sprintf("%s=%v", p.idCol, id)
				}
				p.report.fail(label, err)
				r.logger.LogRecordFailure(p.report.Table, label, err)
				continue
			}
			p.report.Inserted++
		}

		if p.idCol != "" {
			if err := session.SyncIdentity(ctx, p.report.Table, p.idCol); err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return apperrors.NewAppError(apperrors.ErrorTypeInterruption, "restore interrupted", ctxErr)
				}
				report.warn("identity sequence of %s was not advanced: %v", p.report.Table, err)
				r.logger.WithFields(map[string]interface{}{
					"table": p.report.Table,
					"error": err.Error(),
				}).Warn("Failed to sync identity sequence")
			}
		}

		r.logger.WithFields(map[string]interface{}{
			"table":    p.report.Table,
			"inserted": p.report.Inserted,
			"failed":   p.report.Failed,
			"duration": time.Since(start).String(),
		}).Info("Restored table")
	}
	return nil
}

// plan lists the tables to restore: catalog tables in dependency order, each
// join table after its owner, then raw tables by name
func (r *Restorer) plan(snap *snapshot.Snapshot, report *RestoreReport) ([]*tablePlan, error) {
	kinds, err := r.catalog.Order()
	if err != nil {
		return nil, err
	}

	var plans []*tablePlan
	add := func(table, kind, idCol string, rows []store.Record) {
		rep := &TableReport{Table: table, Kind: kind, Rows: len(rows)}
		report.Tables = append(report.Tables, rep)
		plans = append(plans, &tablePlan{report: rep, idCol: idCol, rows: rows})
	}

	for _, kind := range kinds {
		records, ok := snap.Data[kind.Name]
		if !ok {
			continue
		}
		if kind.Association == nil {
			add(kind.Table, kind.Name, kind.IDField, records)
			continue
		}

		rows := make([]store.Record, len(records))
		for i, rec := range records {
			rows[i] = rec.Without(kind.Association.Field)
		}
		add(kind.Table, kind.Name, kind.IDField, rows)

		a := kind.Association
		if raw, ok := snap.Tables[a.Table]; ok {
			add(a.Table, "", "", raw)
			continue
		}
		// the join table is only replaced when the snapshot carries the association
		if !anyHasField(records, a.Field) {
			continue
		}
		joinRows, err := r.joinRows(snap, kind, records, report)
		if err != nil {
			return nil, err
		}
		add(a.Table, "", "", joinRows)
	}

	for _, name := range snap.KindNames() {
		if _, ok := r.catalog.Kind(name); !ok {
			report.warn("snapshot kind %q is not in the catalog and was not restored", name)
		}
	}

	var raw []string
	for table := range snap.Tables {
		if _, ok := r.catalog.OwnerOfJoinTable(table); ok {
			continue
		}
		raw = append(raw, table)
	}
	sort.Strings(raw)
	for _, table := range raw {
		idCol := ""
		if rows := snap.Tables[table]; len(rows) > 0 {
			if _, ok := rows[0]["id"]; ok {
				idCol = "id"
			}
		}
		add(table, "", idCol, snap.Tables[table])
	}
	return plans, nil
}

func anyHasField(records []store.Record, field string) bool {
	for _, rec := range records {
		if _, ok := rec[field]; ok {
			return true
		}
	}
	return false
}

// joinRows derives association rows from the owner records, resolving target
// keys through the target kind's records in the same snapshot
func (r *Restorer) joinRows(snap *snapshot.Snapshot, owner catalog.Kind, records []store.Record, report *RestoreReport) ([]store.Record, error) {
	a := owner.Association
	target, ok := r.catalog.Kind(a.Kind)
	if !ok {
		return nil, fmt.Errorf("%w: %s", catalog.ErrUnknownKind, a.Kind)
	}

	ids := make(map[string]any)
	for _, t := range snap.Records(target.Name) {
		ids[fmt.Sprint(t[target.NaturalKey[0]])] = t[target.IDField]
	}

	var rows []store.Record
	for _, rec := range records {
		raw, ok := rec[a.Field]
		if !ok {
			continue
		}
		keys, err := toKeyList(raw)
		if err != nil {
			report.warn("%s %s: %v", owner.Name, recordLabel(owner, rec), err)
			continue
		}
		for _, k := range keys {
			id, ok := ids[fmt.Sprint(k)]
			if !ok {
				report.warn("%s %s references unknown %s %v", owner.Name, recordLabel(owner, rec), target.Name, k)
				continue
			}
			rows = append(rows, store.Record{a.OwnerColumn: rec[owner.IDField], a.TargetColumn: id})
		}
	}
	return rows, nil
}
