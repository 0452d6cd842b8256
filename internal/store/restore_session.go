package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// sqlRestoreSession runs restore statements on one connection. Transactional
// dialects also hold a transaction for the whole session.
type sqlRestoreSession struct {
	store  *SQLStore
	conn   connCloser
	tx     txFinisher
	closed bool
}

type connCloser interface {
	queryer
	Close() error
}

type txFinisher interface {
	queryer
	Commit() error
	Rollback() error
}

func (s *sqlRestoreSession) q() queryer {
	if s.tx != nil {
		return s.tx
	}
	return s.conn
}

// TableExists checks the live schema for table
func (s *sqlRestoreSession) TableExists(ctx context.Context, table string) (bool, error) {
	var n int64
	if err := s.q().QueryRowContext(ctx, s.store.dialect.tableExists, table).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to check table %s: %w", table, err)
	}
	return n > 0, nil
}

// Truncate empties exactly tables. Postgres sequences are moved by SyncIdentity.
func (s *sqlRestoreSession) Truncate(ctx context.Context, tables []string) error {
	if len(tables) == 0 {
		return nil
	}

	d := s.store.dialect
	for _, stmt := range d.truncate(tables) {
		if _, err := s.store.exec(ctx, s.q(), stmt); err != nil {
			return fmt.Errorf("failed to truncate: %w", err)
		}
	}

	if d.sequenceTable == "" {
		return nil
	}
	ok, err := s.TableExists(ctx, d.sequenceTable)
	if err != nil || !ok {
		return err
	}
	for _, t := range tables {
		if _, err := s.store.exec(ctx, s.q(), d.sequenceReset, t); err != nil {
			return fmt.Errorf("failed to reset sequence of %s: %w", t, err)
		}
	}
	return nil
}

// InsertRaw inserts row verbatim. On postgres a failed row is rolled back to a
// savepoint so the transaction stays usable.
func (s *sqlRestoreSession) InsertRaw(ctx context.Context, table string, row Record) error {
	columns, args := columnsAndArgs(row)
	if len(columns) == 0 {
		return fmt.Errorf("empty row for %s", table)
	}
	query := s.store.dialect.insertSQL(table, columns)
	return s.savepoint(ctx, "restore_row", func(q queryer) error {
		_, err := s.store.exec(ctx, q, query, args...)
		return err
	})
}

// SyncIdentity is a no-op on engines whose counters follow explicit inserts
// and for columns without a sequence. On postgres a failure is rolled back to
// a savepoint so the transaction stays usable.
func (s *sqlRestoreSession) SyncIdentity(ctx context.Context, table, column string) error {
	d := s.store.dialect
	if d.syncIdentity == nil {
		return nil
	}
	err := s.savepoint(ctx, "restore_identity", func(q queryer) error {
		var seq sql.NullString
		if err := q.QueryRowContext(ctx, d.identitySequence, d.quote(table), column).Scan(&seq); err != nil {
			return err
		}
		if !seq.Valid {
			return nil
		}
		_, err := s.store.exec(ctx, q, d.syncIdentity(table, column), seq.String)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to sync identity of %s: %w", table, err)
	}
	return nil
}

// savepoint runs fn inside a named savepoint when the dialect supports them
func (s *sqlRestoreSession) savepoint(ctx context.Context, name string, fn func(q queryer) error) error {
	if !s.store.dialect.savepoints || s.tx == nil {
		return fn(s.q())
	}
	if _, err := s.tx.ExecContext(ctx, "SAVEPOINT "+name); err != nil {
		return err
	}
	if err := fn(s.tx); err != nil {
		if _, rbErr := s.tx.ExecContext(ctx, "ROLLBACK TO SAVEPOINT "+name); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		return err
	}
	_, err := s.tx.ExecContext(ctx, "RELEASE SAVEPOINT "+name)
	return err
}

// Close finishes the transaction, re-enables integrity checks and releases the connection
func (s *sqlRestoreSession) Close(ctx context.Context, commit bool) error {
	if s.closed {
		return nil
	}

	var errs []error
	if s.tx != nil {
		if commit {
			if err := s.tx.Commit(); err != nil {
				errs = append(errs, fmt.Errorf("failed to commit restore: %w", err))
			}
		} else if err := s.tx.Rollback(); err != nil {
			errs = append(errs, fmt.Errorf("failed to roll back restore: %w", err))
		}
		s.tx = nil
	}

	if err := s.release(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (s *sqlRestoreSession) release(ctx context.Context) error {
	s.closed = true

	var errs []error
	for _, stmt := range s.store.dialect.afterEnd {
		if _, err := s.store.exec(ctx, s.conn, stmt); err != nil {
			errs = append(errs, fmt.Errorf("failed to re-enable integrity checks: %w", err))
		}
	}
	if err := s.conn.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
