package display

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"platform-snapshot/internal/migration"
	"platform-snapshot/internal/snapshot"
)

// importDocument is the structured form of an import summary
type importDocument struct {
	DryRun   bool                   `json:"dry_run" yaml:"dry_run"`
	Kinds    []*migration.KindStats `json:"kinds" yaml:"kinds"`
	Totals   migration.Totals       `json:"totals" yaml:"totals"`
	Warnings []string               `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Duration string                 `json:"duration" yaml:"duration"`
}

// RenderImportSummary prints the per-kind and total outcome of an import
func (ds *displayService) RenderImportSummary(summary *migration.Summary) error {
	totals := summary.Totals()
	if ds.config.Format().structured() {
		return ds.writeStructured(importDocument{
			DryRun:   summary.DryRun,
			Kinds:    summary.Kinds,
			Totals:   totals,
			Warnings: summary.Warnings,
			Duration: roundDuration(summary.Duration),
		})
	}

	if ds.config.Format() == FormatCompact {
		for _, k := range summary.Kinds {
			fmt.Fprintf(ds.writer, "%s total=%d imported=%d updated=%d skipped=%d errored=%d%s\n",
				k.Kind, k.Total, k.Imported, k.Updated, k.Skipped, k.Errored, compactStatus(k))
		}
		fmt.Fprintf(ds.writer, "TOTAL total=%d imported=%d updated=%d skipped=%d errored=%d aborted=%d\n",
			totals.Total, totals.Imported, totals.Updated, totals.Skipped, totals.Errored, totals.Aborted)
		return nil
	}

	table := ds.newTable()
	if summary.DryRun {
		table.SetHeaders([]string{"KIND", "RECORDS", "STATUS"})
		table.SetColumnAlignment(1, AlignRight)
		for _, k := range summary.Kinds {
			table.AddRow([]string{k.Kind, strconv.Itoa(k.Planned), "would import"})
		}
		table.AddSeparator()
		table.AddRow([]string{"TOTAL", strconv.Itoa(totals.Planned), ""})
	} else {
		table.SetHeaders([]string{"KIND", "TOTAL", "IMPORTED", "UPDATED", "SKIPPED", "ERRORED", "STATUS"})
		for col := 1; col <= 5; col++ {
			table.SetColumnAlignment(col, AlignRight)
		}
		for _, k := range summary.Kinds {
			table.AddRow([]string{
				k.Kind, strconv.Itoa(k.Total), strconv.Itoa(k.Imported), strconv.Itoa(k.Updated),
				strconv.Itoa(k.Skipped), strconv.Itoa(k.Errored), kindStatus(k),
			})
		}
		table.AddSeparator()
		table.AddRow([]string{
			"TOTAL", strconv.Itoa(totals.Total), strconv.Itoa(totals.Imported), strconv.Itoa(totals.Updated),
			strconv.Itoa(totals.Skipped), strconv.Itoa(totals.Errored), "",
		})
	}
	table.RenderTo(ds.writer)

	for _, k := range summary.Kinds {
		for _, e := range k.Errors {
			ds.Error(fmt.Sprintf("%s %s", k.Kind, e))
		}
		if hidden := k.Errored - len(k.Errors); hidden > 0 {
			ds.Error(fmt.Sprintf("%s: %d more errors, see the log", k.Kind, hidden))
		}
	}
	for _, w := range summary.Warnings {
		ds.Warning(w)
	}

	switch {
	case summary.DryRun:
		ds.Info(fmt.Sprintf("Dry run: %d records would be imported, nothing was written", totals.Planned))
	case summary.HasErrors():
		ds.Warning(fmt.Sprintf("Import finished with %d errored records and %d aborted kinds in %s",
			totals.Errored, totals.Aborted, roundDuration(summary.Duration)))
	default:
		ds.Success(fmt.Sprintf("Imported %d records in %s", totals.Imported+totals.Updated, roundDuration(summary.Duration)))
	}
	return nil
}

func kindStatus(k *migration.KindStats) string {
	switch {
	case k.Aborted:
		return "aborted"
	case k.Total == 0:
		return "empty"
	case k.Errored > 0:
		return "partial"
	default:
		return "ok"
	}
}

func compactStatus(k *migration.KindStats) string {
	if k.Aborted {
		return " aborted=" + strconv.Quote(k.Error)
	}
	return ""
}

type restoreDocument struct {
	Committed bool                     `json:"committed" yaml:"committed"`
	Tables    []*migration.TableReport `json:"tables" yaml:"tables"`
	Inserted  int                      `json:"inserted" yaml:"inserted"`
	Failed    int                      `json:"failed" yaml:"failed"`
	Warnings  []string                 `json:"warnings,omitempty" yaml:"warnings,omitempty"`
	Duration  string                   `json:"duration" yaml:"duration"`
}

// RenderRestoreReport prints the per-table result of a restore
func (ds *displayService) RenderRestoreReport(report *migration.RestoreReport) error {
	inserted, failed := report.Totals()
	if ds.config.Format().structured() {
		return ds.writeStructured(restoreDocument{
			Committed: report.Committed,
			Tables:    report.Tables,
			Inserted:  inserted,
			Failed:    failed,
			Warnings:  report.Warnings,
			Duration:  roundDuration(report.Duration),
		})
	}

	if ds.config.Format() == FormatCompact {
		for _, t := range report.Tables {
			fmt.Fprintf(ds.writer, "%s rows=%d inserted=%d failed=%d skipped=%t\n", t.Table, t.Rows, t.Inserted, t.Failed, t.Skipped)
		}
		fmt.Fprintf(ds.writer, "TOTAL inserted=%d failed=%d committed=%t\n", inserted, failed, report.Committed)
		return nil
	}

	table := ds.newTable()
	table.SetHeaders([]string{"TABLE", "ROWS", "INSERTED", "FAILED", "STATUS"})
	for col := 1; col <= 3; col++ {
		table.SetColumnAlignment(col, AlignRight)
	}
	for _, t := range report.Tables {
		status := "restored"
		switch {
		case t.Skipped:
			status = "missing, skipped"
		case !t.Truncated:
			status = "not reached"
		case t.Failed > 0:
			status = "partial"
		}
		table.AddRow([]string{t.Table, strconv.Itoa(t.Rows), strconv.Itoa(t.Inserted), strconv.Itoa(t.Failed), status})
	}
	table.AddSeparator()
	table.AddRow([]string{"TOTAL", "", strconv.Itoa(inserted), strconv.Itoa(failed), ""})
	table.RenderTo(ds.writer)

	for _, t := range report.Tables {
		for _, e := range t.Errors {
			ds.Error(fmt.Sprintf("%s %s", t.Table, e))
		}
	}
	for _, w := range report.Warnings {
		ds.Warning(w)
	}

	if !report.Committed {
		ds.Error("Restore was rolled back where the database supports it")
		return nil
	}
	msg := fmt.Sprintf("Restored %d rows in %s", inserted, roundDuration(report.Duration))
	if failed > 0 {
		ds.Warning(fmt.Sprintf("%s, %d rows failed", msg, failed))
		return nil
	}
	ds.Success(msg)
	return nil
}

type resetDocument struct {
	Kinds    []migration.KindDeletion `json:"kinds" yaml:"kinds"`
	Deleted  int64                    `json:"deleted" yaml:"deleted"`
	Duration string                   `json:"duration" yaml:"duration"`
}

// RenderResetReport prints the rows deleted per kind
func (ds *displayService) RenderResetReport(report *migration.ResetReport) error {
	if ds.config.Format().structured() {
		return ds.writeStructured(resetDocument{
			Kinds:    report.Kinds,
			Deleted:  report.Total(),
			Duration: roundDuration(report.Duration),
		})
	}

	table := ds.newTable()
	table.SetHeaders([]string{"KIND", "DELETED"})
	table.SetColumnAlignment(1, AlignRight)
	for _, k := range report.Kinds {
		table.AddRow([]string{k.Kind, strconv.FormatInt(k.Deleted, 10)})
	}
	table.AddSeparator()
	table.AddRow([]string{"TOTAL", strconv.FormatInt(report.Total(), 10)})
	table.RenderTo(ds.writer)
	return nil
}

// RenderSnapshots prints stored snapshot objects, newest first as given
func (ds *displayService) RenderSnapshots(objects []snapshot.ObjectInfo) error {
	if ds.config.Format().structured() {
		if objects == nil {
			objects = []snapshot.ObjectInfo{}
		}
		return ds.writeStructured(objects)
	}
	if len(objects) == 0 {
		ds.Info("No snapshots stored")
		return nil
	}

	table := ds.newTable()
	table.SetHeaders([]string{"KEY", "SIZE", "MODIFIED"})
	table.SetColumnAlignment(1, AlignRight)
	for _, o := range objects {
		table.AddRow([]string{o.Key, formatBytes(o.Size), o.Modified.Local().Format(time.DateTime)})
	}
	table.RenderTo(ds.writer)
	return nil
}

func (ds *displayService) writeStructured(v interface{}) error {
	switch ds.config.Format() {
	case FormatYAML:
		enc := yaml.NewEncoder(ds.writer)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode YAML: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(ds.writer)
		enc.SetIndent("", "  ")
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("failed to encode JSON: %w", err)
		}
		return nil
	}
}

func roundDuration(d time.Duration) string {
	switch {
	case d >= time.Second:
		return d.Round(10 * time.Millisecond).String()
	case d >= time.Millisecond:
		return d.Round(time.Millisecond).String()
	default:
		return d.String()
	}
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
