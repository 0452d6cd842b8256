package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"platform-snapshot/internal/catalog"
	apperrors "platform-snapshot/internal/errors"
	"platform-snapshot/internal/logging"
)

// queryer is satisfied by *sql.DB, *sql.Conn and *sql.Tx
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLStore implements Store over database/sql
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	logger  *logging.Logger
}

// NewSQLStore creates a store for an open database of the given driver
func NewSQLStore(db *sql.DB, driver string, logger *logging.Logger) (*SQLStore, error) {
	dialect, err := DialectFor(driver)
	if err != nil {
		return nil, apperrors.NewSetupError("cannot create store", err)
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &SQLStore{db: db, dialect: dialect, logger: logger}, nil
}

// Dialect returns the store's SQL dialect
func (s *SQLStore) Dialect() Dialect {
	return s.dialect
}

func (s *SQLStore) exec(ctx context.Context, q queryer, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := q.ExecContext(ctx, query, args...)
	var affected int64
	if err == nil {
		affected, _ = res.RowsAffected()
	}
	s.logger.LogSQLExecution(query, time.Since(start), affected, err)
	return res, err
}

func (s *SQLStore) query(ctx context.Context, q queryer, query string, args ...any) ([]Record, error) {
	start := time.Now()
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		s.logger.LogSQLExecution(query, time.Since(start), 0, err)
		return nil, err
	}
	defer rows.Close()

	records, err := scanRecords(rows)
	s.logger.LogSQLExecution(query, time.Since(start), int64(len(records)), err)
	return records, err
}

// FindByKey returns the row matching the natural key
func (s *SQLStore) FindByKey(ctx context.Context, kind catalog.Kind, key catalog.Key) (Record, bool, error) {
	query := fmt.Sprintf("SELECT * FROM %s WHERE %s LIMIT 1",
		s.dialect.quote(kind.Table), s.dialect.where(key.Fields, 1))

	args := make([]any, len(key.Values))
	for i, v := range key.Values {
		args[i] = toArg(v)
	}

	records, err := s.query(ctx, s.db, query, args...)
	if err != nil {
		return nil, false, err
	}
	if len(records) == 0 {
		return nil, false, nil
	}
	return records[0], true, nil
}

// Create inserts rec and returns its surrogate id
func (s *SQLStore) Create(ctx context.Context, kind catalog.Kind, rec Record) (any, error) {
	id, hasID := rec[kind.IDField]
	if id == nil {
		hasID = false
	}
	fields := rec
	if !hasID {
		fields = rec.Without(kind.IDField)
	}

	columns, args := columnsAndArgs(fields)
	if len(columns) == 0 {
		return nil, apperrors.NewRecordError(fmt.Sprintf("record of %s has no fields", kind.Name), nil)
	}
	query := s.dialect.insertSQL(kind.Table, columns)

	if hasID {
		if _, err := s.exec(ctx, s.db, query, args...); err != nil {
			return nil, err
		}
		return id, nil
	}

	if s.dialect.returning {
		query += " RETURNING " + s.dialect.quote(kind.IDField)
		start := time.Now()
		var newID int64
		err := s.db.QueryRowContext(ctx, query, args...).Scan(&newID)
		s.logger.LogSQLExecution(query, time.Since(start), 1, err)
		if err != nil {
			return nil, err
		}
		return newID, nil
	}

	res, err := s.exec(ctx, s.db, query, args...)
	if err != nil {
		return nil, err
	}
	newID, err := res.LastInsertId()
	if err != nil {
		return nil, err
	}
	return newID, nil
}

// Update overwrites the non-id fields of rec on the row with surrogate id
func (s *SQLStore) Update(ctx context.Context, kind catalog.Kind, id any, rec Record) error {
	columns, args := columnsAndArgs(rec.Without(kind.IDField))
	if len(columns) == 0 {
		return nil
	}

	sets := make([]string, len(columns))
	for i, c := range columns {
		sets[i] = fmt.Sprintf("%s = %s", s.dialect.quote(c), s.dialect.placeholder(i+1))
	}
	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		s.dialect.quote(kind.Table), strings.Join(sets, ", "),
		s.dialect.quote(kind.IDField), s.dialect.placeholder(len(columns)+1))

	_, err := s.exec(ctx, s.db, query, append(args, toArg(id))...)
	return err
}

// DeleteAll removes every row of kind, clearing its join table first
func (s *SQLStore) DeleteAll(ctx context.Context, kind catalog.Kind) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	if kind.Association != nil {
		if _, err := s.exec(ctx, tx, "DELETE FROM "+s.dialect.quote(kind.Association.Table)); err != nil {
			return 0, err
		}
	}

	res, err := s.exec(ctx, tx, "DELETE FROM "+s.dialect.quote(kind.Table))
	if err != nil {
		return 0, err
	}
	deleted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return deleted, tx.Commit()
}

// List returns every row of kind ordered by surrogate id
func (s *SQLStore) List(ctx context.Context, kind catalog.Kind) ([]Record, error) {
	query := fmt.Sprintf("SELECT * FROM %s ORDER BY %s",
		s.dialect.quote(kind.Table), s.dialect.quote(kind.IDField))
	records, err := s.query(ctx, s.db, query)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []Record{}
	}
	return records, nil
}

// Count returns the number of rows of kind
func (s *SQLStore) Count(ctx context.Context, kind catalog.Kind) (int64, error) {
	var n int64
	query := "SELECT COUNT(*) FROM " + s.dialect.quote(kind.Table)
	start := time.Now()
	err := s.db.QueryRowContext(ctx, query).Scan(&n)
	s.logger.LogSQLExecution(query, time.Since(start), 0, err)
	return n, err
}

// ListAssociation returns the target rows associated with ownerID
func (s *SQLStore) ListAssociation(ctx context.Context, owner, target catalog.Kind, ownerID any) ([]Record, error) {
	a := owner.Association
	if a == nil {
		return nil, fmt.Errorf("kind %s has no association", owner.Name)
	}
	q := s.dialect.quote
	query := fmt.Sprintf("SELECT t.* FROM %s t JOIN %s j ON j.%s = t.%s WHERE j.%s = %s ORDER BY t.%s",
		q(target.Table), q(a.Table), q(a.TargetColumn), q(target.IDField),
		q(a.OwnerColumn), s.dialect.placeholder(1), q(target.IDField))
	return s.query(ctx, s.db, query, toArg(ownerID))
}

// ReplaceAssociation makes targetIDs the exact associated set of ownerID in one transaction
func (s *SQLStore) ReplaceAssociation(ctx context.Context, owner catalog.Kind, ownerID any, targetIDs []any) error {
	a := owner.Association
	if a == nil {
		return fmt.Errorf("kind %s has no association", owner.Name)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	q := s.dialect.quote
	del := fmt.Sprintf("DELETE FROM %s WHERE %s = %s", q(a.Table), q(a.OwnerColumn), s.dialect.placeholder(1))
	if _, err := s.exec(ctx, tx, del, toArg(ownerID)); err != nil {
		return err
	}

	ins := s.dialect.insertSQL(a.Table, []string{a.OwnerColumn, a.TargetColumn})
	seen := make(map[string]bool, len(targetIDs))
	for _, id := range targetIDs {
		k := fmt.Sprint(id)
		if seen[k] {
			continue
		}
		seen[k] = true
		if _, err := s.exec(ctx, tx, ins, toArg(ownerID), toArg(id)); err != nil {
			return err
		}
	}

	return tx.Commit()
}

// BeginRestore opens a restore session on a dedicated connection
func (s *SQLStore) BeginRestore(ctx context.Context) (RestoreSession, error) {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return nil, err
	}

	session := &sqlRestoreSession{store: s, conn: conn}
	for _, stmt := range s.dialect.beforeBegin {
		if _, err := s.exec(ctx, conn, stmt); err != nil {
			conn.Close()
			return nil, fmt.Errorf("failed to suspend integrity checks: %w", err)
		}
	}

	if s.dialect.transactional {
		tx, err := conn.BeginTx(ctx, nil)
		if err != nil {
			session.release(ctx)
			return nil, err
		}
		session.tx = tx
		for _, stmt := range s.dialect.afterBegin {
			if _, err := s.exec(ctx, tx, stmt); err != nil {
				tx.Rollback()
				session.tx = nil
				session.release(ctx)
				return nil, fmt.Errorf("failed to suspend integrity checks: %w", err)
			}
		}
	}

	return session, nil
}

func scanRecords(rows *sql.Rows) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var records []Record
	for rows.Next() {
		values := make([]any, len(columns))
		pointers := make([]any, len(columns))
		for i := range values {
			pointers[i] = &values[i]
		}
		if err := rows.Scan(pointers...); err != nil {
			return nil, err
		}

		rec := make(Record, len(columns))
		for i, c := range columns {
			if b, ok := values[i].([]byte); ok {
				rec[c] = string(b)
				continue
			}
			rec[c] = values[i]
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// columnsAndArgs returns the record's columns in sorted order with matching args
func columnsAndArgs(rec Record) ([]string, []any) {
	columns := make([]string, 0, len(rec))
	for c := range rec {
		columns = append(columns, c)
	}
	sort.Strings(columns)

	args := make([]any, len(columns))
	for i, c := range columns {
		args[i] = toArg(rec[c])
	}
	return columns, args
}

// toArg converts decoded JSON values into driver arguments. Nested documents are
// stored as their JSON text.
func toArg(v any) any {
	switch v.(type) {
	case map[string]any, []any, Record:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	default:
		return v
	}
}
