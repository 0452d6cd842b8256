package migration

import (
	"context"
	"time"

	"platform-snapshot/internal/catalog"
	apperrors "platform-snapshot/internal/errors"
	"platform-snapshot/internal/logging"
	"platform-snapshot/internal/store"
)

// KindDeletion is the number of rows removed from one kind
type KindDeletion struct {
	Kind    string `json:"kind" yaml:"kind"`
	Deleted int64  `json:"deleted" yaml:"deleted"`
}

type ResetReport struct {
	Kinds    []KindDeletion `json:"kinds" yaml:"kinds"`
	Duration time.Duration  `json:"-" yaml:"-"`
}

// Total is the number of rows removed
func (r *ResetReport) Total() int64 {
	var n int64
	for _, k := range r.Kinds {
		n += k.Deleted
	}
	return n
}

// Resetter deletes every managed kind in reverse dependency order
type Resetter struct {
	store   store.Store
	catalog *catalog.Catalog
	logger  *logging.Logger
}

func NewResetter(s store.Store, c *catalog.Catalog, logger *logging.Logger) *Resetter {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Resetter{store: s, catalog: c, logger: logger}
}

// Reset stops at the first failing kind. Kinds deleted before it stay deleted.
func (r *Resetter) Reset(ctx context.Context) (*ResetReport, error) {
	kinds, err := r.catalog.ReverseOrder()
	if err != nil {
		return nil, apperrors.NewSetupError("cannot resolve kind order", err)
	}

	start := time.Now()
	report := &ResetReport{}
	done := r.logger.LogOperationStart("reset", map[string]interface{}{"kinds": len(kinds)})

	for _, kind := range kinds {
		if err := ctx.Err(); err != nil {
			err = apperrors.NewAppError(apperrors.ErrorTypeInterruption, "reset interrupted", err)
			done(err)
			return report, err
		}

		n, err := r.store.DeleteAll(ctx, kind)
		if err != nil {
			err = apperrors.NewKindError(kind.Name, "failed to delete "+kind.Name, err)
			done(err)
			report.Duration = time.Since(start)
			return report, err
		}
		report.Kinds = append(report.Kinds, KindDeletion{Kind: kind.Name, Deleted: n})
		r.logger.WithFields(map[string]interface{}{
			"kind":    kind.Name,
			"deleted": n,
		}).Info("Deleted kind")
	}

	report.Duration = time.Since(start)
	done(nil)
	return report, nil
}
