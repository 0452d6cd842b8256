package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"platform-snapshot/internal/catalog"
	apperrors "platform-snapshot/internal/errors"
)

// Op names a store operation for failure injection and call accounting
type Op string

const (
	OpFind      Op = "find"
	OpCreate    Op = "create"
	OpUpdate    Op = "update"
	OpDelete    Op = "delete"
	OpList      Op = "list"
	OpCount     Op = "count"
	OpAssociate Op = "associate"
	OpTruncate  Op = "truncate"
	OpInsert    Op = "insert"
	OpIdentity  Op = "identity"
)

// FailFunc decides whether an operation on table fails. rec is nil for
// operations without a record.
type FailFunc func(op Op, table string, rec Record) error

// MemoryStore is an in-process Store that enforces natural-key uniqueness and
// foreign keys from a catalog. It backs engine tests.
type MemoryStore struct {
	mu        sync.Mutex
	catalog   *catalog.Catalog
	tables    map[string][]Record
	extra     map[string]bool
	nextID    map[string]int64
	calls     map[Op]int
	fail      FailFunc
	integrity bool
}

// NewMemoryStore creates an empty store for every table of c
func NewMemoryStore(c *catalog.Catalog) *MemoryStore {
	return &MemoryStore{
		catalog:   c,
		tables:    make(map[string][]Record),
		extra:     make(map[string]bool),
		nextID:    make(map[string]int64),
		calls:     make(map[Op]int),
		integrity: true,
	}
}

// FailWith installs a failure injector
func (m *MemoryStore) FailWith(fn FailFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fail = fn
}

// AddTable registers a table outside the catalog so restores can target it
func (m *MemoryStore) AddTable(table string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.extra[table] = true
}

// Seed inserts rows without any checks
func (m *MemoryStore) Seed(table string, rows ...Record) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.tables[table] = append(m.tables[table], r.Clone())
		if id, ok := r["id"].(int64); ok && id > m.nextID[table] {
			m.nextID[table] = id
		}
	}
}

// Rows returns a copy of the rows of table
func (m *MemoryStore) Rows(table string) []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.tables[table]))
	for i, r := range m.tables[table] {
		out[i] = r.Clone()
	}
	return out
}

// Calls returns how many times op was invoked
func (m *MemoryStore) Calls(op Op) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls[op]
}

// TotalCalls returns the number of store operations invoked
func (m *MemoryStore) TotalCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	total := 0
	for _, n := range m.calls {
		total += n
	}
	return total
}

// IntegrityEnabled reports whether foreign keys are currently enforced
func (m *MemoryStore) IntegrityEnabled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.integrity
}

func (m *MemoryStore) enter(ctx context.Context, op Op, table string, rec Record) error {
	m.calls[op]++
	if err := ctx.Err(); err != nil {
		return err
	}
	if m.fail != nil {
		return m.fail(op, table, rec)
	}
	return nil
}

func sameValue(a, b any) bool {
	return fmt.Sprint(a) == fmt.Sprint(b)
}

func (m *MemoryStore) indexByKey(table string, fields []string, values []any) int {
	for i, row := range m.tables[table] {
		match := true
		for j, f := range fields {
			if !sameValue(row[f], values[j]) {
				match = false
				break
			}
		}
		if match {
			return i
		}
	}
	return -1
}

func (m *MemoryStore) indexByID(table, idField string, id any) int {
	for i, row := range m.tables[table] {
		if sameValue(row[idField], id) {
			return i
		}
	}
	return -1
}

func (m *MemoryStore) checkReferences(kind catalog.Kind, rec Record) error {
	if !m.integrity {
		return nil
	}
	for _, ref := range kind.References {
		v, ok := rec[ref.Field]
		if !ok || v == nil {
			continue
		}
		target, known := m.catalog.Kind(ref.Kind)
		if !known {
			continue
		}
		if ref.Kind == kind.Name && sameValue(v, rec[kind.IDField]) {
			continue
		}
		if m.indexByID(target.Table, target.IDField, v) < 0 {
			return apperrors.NewRecordError(
				fmt.Sprintf("foreign key %s.%s=%v has no matching %s", kind.Table, ref.Field, v, target.Table), nil)
		}
	}
	return nil
}

// FindByKey returns the row matching the natural key
func (m *MemoryStore) FindByKey(ctx context.Context, kind catalog.Kind, key catalog.Key) (Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpFind, kind.Table, nil); err != nil {
		return nil, false, err
	}
	i := m.indexByKey(kind.Table, key.Fields, key.Values)
	if i < 0 {
		return nil, false, nil
	}
	return m.tables[kind.Table][i].Clone(), true, nil
}

// Create inserts rec, assigning the next id when rec has none
func (m *MemoryStore) Create(ctx context.Context, kind catalog.Kind, rec Record) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpCreate, kind.Table, rec); err != nil {
		return nil, err
	}

	key, err := kind.KeyOf(rec)
	if err != nil {
		return nil, apperrors.NewRecordError("cannot create record", err)
	}
	if m.indexByKey(kind.Table, key.Fields, key.Values) >= 0 {
		return nil, apperrors.NewConflictError(fmt.Sprintf("duplicate %s in %s", key, kind.Table), nil)
	}

	row := rec.Clone()
	id, hasID := row[kind.IDField]
	if !hasID || id == nil {
		m.nextID[kind.Table]++
		id = m.nextID[kind.Table]
		row[kind.IDField] = id
	} else {
		if m.indexByID(kind.Table, kind.IDField, id) >= 0 {
			return nil, apperrors.NewConflictError(fmt.Sprintf("duplicate %s=%v in %s", kind.IDField, id, kind.Table), nil)
		}
		if n, ok := id.(int64); ok && n > m.nextID[kind.Table] {
			m.nextID[kind.Table] = n
		}
	}

	if err := m.checkReferences(kind, row); err != nil {
		return nil, err
	}

	m.tables[kind.Table] = append(m.tables[kind.Table], row)
	return id, nil
}

// Update overwrites the non-id fields of rec on the row with surrogate id
func (m *MemoryStore) Update(ctx context.Context, kind catalog.Kind, id any, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpUpdate, kind.Table, rec); err != nil {
		return err
	}

	i := m.indexByID(kind.Table, kind.IDField, id)
	if i < 0 {
		return apperrors.NewRecordError(fmt.Sprintf("no %s row with %s=%v", kind.Table, kind.IDField, id), nil)
	}

	row := m.tables[kind.Table][i].Clone()
	for k, v := range rec {
		if k != kind.IDField {
			row[k] = v
		}
	}
	if err := m.checkReferences(kind, row); err != nil {
		return err
	}
	m.tables[kind.Table][i] = row
	return nil
}

// DeleteAll removes every row of kind. Rows still referenced by another kind
// make it fail the way a restricting foreign key would.
func (m *MemoryStore) DeleteAll(ctx context.Context, kind catalog.Kind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpDelete, kind.Table, nil); err != nil {
		return 0, err
	}

	if m.integrity {
		for _, other := range m.catalog.Kinds() {
			if other.Name == kind.Name {
				continue
			}
			for _, ref := range other.References {
				if ref.Kind != kind.Name {
					continue
				}
				for _, row := range m.tables[other.Table] {
					if v, ok := row[ref.Field]; ok && v != nil {
						return 0, apperrors.NewRecordError(
							fmt.Sprintf("%s rows are still referenced by %s.%s", kind.Table, other.Table, ref.Field), nil)
					}
				}
			}
			if a := other.Association; a != nil && a.Kind == kind.Name && len(m.tables[a.Table]) > 0 {
				return 0, apperrors.NewRecordError(
					fmt.Sprintf("%s rows are still referenced by %s", kind.Table, a.Table), nil)
			}
		}
	}

	if kind.Association != nil {
		delete(m.tables, kind.Association.Table)
	}
	n := int64(len(m.tables[kind.Table]))
	delete(m.tables, kind.Table)
	return n, nil
}

// List returns every row of kind ordered by surrogate id
func (m *MemoryStore) List(ctx context.Context, kind catalog.Kind) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpList, kind.Table, nil); err != nil {
		return nil, err
	}

	out := make([]Record, len(m.tables[kind.Table]))
	for i, r := range m.tables[kind.Table] {
		out[i] = r.Clone()
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, aok := out[i][kind.IDField].(int64)
		b, bok := out[j][kind.IDField].(int64)
		if aok && bok {
			return a < b
		}
		return fmt.Sprint(out[i][kind.IDField]) < fmt.Sprint(out[j][kind.IDField])
	})
	return out, nil
}

// Count returns the number of rows of kind
func (m *MemoryStore) Count(ctx context.Context, kind catalog.Kind) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpCount, kind.Table, nil); err != nil {
		return 0, err
	}
	return int64(len(m.tables[kind.Table])), nil
}

// ListAssociation returns the target rows associated with ownerID
func (m *MemoryStore) ListAssociation(ctx context.Context, owner, target catalog.Kind, ownerID any) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := owner.Association
	if a == nil {
		return nil, fmt.Errorf("kind %s has no association", owner.Name)
	}
	if err := m.enter(ctx, OpList, a.Table, nil); err != nil {
		return nil, err
	}

	var out []Record
	for _, link := range m.tables[a.Table] {
		if !sameValue(link[a.OwnerColumn], ownerID) {
			continue
		}
		if i := m.indexByID(target.Table, target.IDField, link[a.TargetColumn]); i >= 0 {
			out = append(out, m.tables[target.Table][i].Clone())
		}
	}
	return out, nil
}

// ReplaceAssociation makes targetIDs the exact associated set of ownerID
func (m *MemoryStore) ReplaceAssociation(ctx context.Context, owner catalog.Kind, ownerID any, targetIDs []any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a := owner.Association
	if a == nil {
		return fmt.Errorf("kind %s has no association", owner.Name)
	}
	if err := m.enter(ctx, OpAssociate, a.Table, Record{a.OwnerColumn: ownerID}); err != nil {
		return err
	}

	kept := m.tables[a.Table][:0:0]
	for _, link := range m.tables[a.Table] {
		if !sameValue(link[a.OwnerColumn], ownerID) {
			kept = append(kept, link)
		}
	}
	seen := make(map[string]bool, len(targetIDs))
	for _, id := range targetIDs {
		if seen[fmt.Sprint(id)] {
			continue
		}
		seen[fmt.Sprint(id)] = true
		kept = append(kept, Record{a.OwnerColumn: ownerID, a.TargetColumn: id})
	}
	m.tables[a.Table] = kept
	return nil
}

// BeginRestore suspends foreign-key checks until the session is closed. A
// session closed without commit puts every table back as it was.
func (m *MemoryStore) BeginRestore(ctx context.Context) (RestoreSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	saved := make(map[string][]Record, len(m.tables))
	for t, rows := range m.tables {
		saved[t] = append([]Record(nil), rows...)
	}
	savedIDs := make(map[string]int64, len(m.nextID))
	for t, n := range m.nextID {
		savedIDs[t] = n
	}

	m.integrity = false
	return &memoryRestoreSession{store: m, saved: saved, savedIDs: savedIDs}, nil
}

type memoryRestoreSession struct {
	store    *MemoryStore
	saved    map[string][]Record
	savedIDs map[string]int64
	closed   bool
}

func (s *memoryRestoreSession) TableExists(ctx context.Context, table string) (bool, error) {
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := ctx.Err(); err != nil {
		return false, err
	}
	if m.extra[table] {
		return true, nil
	}
	if _, ok := m.catalog.KindForTable(table); ok {
		return true, nil
	}
	_, ok := m.catalog.OwnerOfJoinTable(table)
	return ok, nil
}

func (s *memoryRestoreSession) Truncate(ctx context.Context, tables []string) error {
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range tables {
		if err := m.enter(ctx, OpTruncate, t, nil); err != nil {
			return err
		}
	}
	for _, t := range tables {
		delete(m.tables, t)
		delete(m.nextID, t)
	}
	return nil
}

func (s *memoryRestoreSession) InsertRaw(ctx context.Context, table string, row Record) error {
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.enter(ctx, OpInsert, table, row); err != nil {
		return err
	}
	if id, ok := row["id"]; ok && id != nil {
		if m.indexByID(table, "id", id) >= 0 {
			return apperrors.NewConflictError(fmt.Sprintf("duplicate id=%v in %s", id, table), nil)
		}
		if n, ok := id.(int64); ok && n > m.nextID[table] {
			m.nextID[table] = n
		}
	}
	m.tables[table] = append(m.tables[table], row.Clone())
	return nil
}

// SyncIdentity has nothing to move, InsertRaw already tracks the highest id
func (s *memoryRestoreSession) SyncIdentity(ctx context.Context, table, column string) error {
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.enter(ctx, OpIdentity, table, nil)
}

func (s *memoryRestoreSession) Close(ctx context.Context, commit bool) error {
	m := s.store
	m.mu.Lock()
	defer m.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if !commit {
		m.tables = s.saved
		m.nextID = s.savedIDs
	}
	m.integrity = true
	return nil
}
