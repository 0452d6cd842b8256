// Package store is the target-side repository the snapshot engines read and write.
//
// Every entity kind goes through the same generic operations, addressed by the
// kind's natural key or surrogate id. Restore uses a separate session that
// bypasses referential integrity for its lifetime.
package store

import (
	"context"

	"platform-snapshot/internal/catalog"
)

// Record is one row of an entity kind, column name to value
type Record map[string]any

// Clone returns a shallow copy of r
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Without returns a copy of r with the given fields removed
func (r Record) Without(fields ...string) Record {
	out := r.Clone()
	for _, f := range fields {
		delete(out, f)
	}
	return out
}

// Store is the generic per-kind repository
type Store interface {
	// FindByKey returns the row matching the natural key, if any
	FindByKey(ctx context.Context, kind catalog.Kind, key catalog.Key) (Record, bool, error)
	// Create inserts rec, keeping its surrogate id when present, and returns the id
	Create(ctx context.Context, kind catalog.Kind, rec Record) (any, error)
	// Update overwrites every field of rec on the row with surrogate id
	Update(ctx context.Context, kind catalog.Kind, id any, rec Record) error
	// DeleteAll removes every row of kind, association rows first, and returns the row count
	DeleteAll(ctx context.Context, kind catalog.Kind) (int64, error)
	// List returns every row of kind ordered by surrogate id
	List(ctx context.Context, kind catalog.Kind) ([]Record, error)
	// Count returns the number of rows of kind
	Count(ctx context.Context, kind catalog.Kind) (int64, error)
	// ListAssociation returns the target rows associated with ownerID
	ListAssociation(ctx context.Context, owner, target catalog.Kind, ownerID any) ([]Record, error)
	// ReplaceAssociation makes targetIDs the exact associated set of ownerID
	ReplaceAssociation(ctx context.Context, owner catalog.Kind, ownerID any, targetIDs []any) error
	// BeginRestore opens a restore session with referential integrity suspended
	BeginRestore(ctx context.Context) (RestoreSession, error)
}

// RestoreSession is a bulk-load scope. Close must be called on every exit path.
type RestoreSession interface {
	TableExists(ctx context.Context, table string) (bool, error)
	// Truncate empties exactly tables and resets identity counters kept outside them
	Truncate(ctx context.Context, tables []string) error
	// InsertRaw inserts row verbatim, surrogate id included
	InsertRaw(ctx context.Context, table string, row Record) error
	// SyncIdentity advances the identity sequence of table past the ids inserted by InsertRaw
	SyncIdentity(ctx context.Context, table, column string) error
	// Close re-enables integrity and commits when commit is true, rolls back otherwise.
	// Non-transactional sessions only re-enable integrity.
	Close(ctx context.Context, commit bool) error
}
