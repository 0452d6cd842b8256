// Package sqlitetest opens throwaway SQLite databases carrying the default
// platform schema.
package sqlitetest

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// Schema creates every table of the default catalog
const Schema = `
CREATE TABLE permissions (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	"key" TEXT NOT NULL UNIQUE,
	description TEXT
);
CREATE TABLE organizations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	slug TEXT NOT NULL UNIQUE,
	name TEXT
);
CREATE TABLE users (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	email TEXT NOT NULL UNIQUE,
	name TEXT NOT NULL,
	organization_id INTEGER REFERENCES organizations(id)
);
CREATE TABLE user_permissions (
	user_id INTEGER NOT NULL REFERENCES users(id),
	permission_id INTEGER NOT NULL REFERENCES permissions(id),
	PRIMARY KEY (user_id, permission_id)
);
CREATE TABLE documents (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	storage_key TEXT NOT NULL UNIQUE,
	title TEXT,
	organization_id INTEGER REFERENCES organizations(id),
	owner_id INTEGER REFERENCES users(id)
);
CREATE TABLE share_requests (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	token TEXT NOT NULL UNIQUE,
	document_id INTEGER REFERENCES documents(id),
	requester_id INTEGER REFERENCES users(id),
	status TEXT
);
CREATE TABLE document_shares (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	document_id INTEGER NOT NULL REFERENCES documents(id),
	user_id INTEGER NOT NULL REFERENCES users(id),
	granted_by INTEGER REFERENCES users(id),
	role TEXT,
	UNIQUE (document_id, user_id)
);
CREATE TABLE audit_logs (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	actor_id INTEGER REFERENCES users(id),
	organization_id INTEGER REFERENCES organizations(id),
	action TEXT NOT NULL,
	created_at TEXT NOT NULL,
	UNIQUE (actor_id, action, created_at)
);
`

// DSN returns the connection string for a database file with foreign keys on
func DSN(path string) string {
	return "file:" + path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Path returns a fresh database file path under the test's temp dir
func Path(t testing.TB) string {
	t.Helper()
	return filepath.Join(t.TempDir(), "platform.db")
}

// Open creates a database file with the default schema and closes it when the test ends
func Open(t testing.TB) *sql.DB {
	t.Helper()
	return OpenPath(t, Path(t))
}

// OpenPath is Open for a caller-chosen file
func OpenPath(t testing.TB, path string) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	if _, err := db.ExecContext(context.Background(), Schema); err != nil {
		t.Fatalf("create schema: %v", err)
	}
	return db
}
