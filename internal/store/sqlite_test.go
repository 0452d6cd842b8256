package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platform-snapshot/internal/catalog"
	apperrors "platform-snapshot/internal/errors"
	"platform-snapshot/internal/store/sqlitetest"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := NewSQLStore(sqlitetest.Open(t), DriverSQLite, nil)
	require.NoError(t, err)
	return s
}

func TestSQLite_CRUD(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	orgs := kindOf(t, catalog.Organizations)
	users := kindOf(t, catalog.Users)

	orgID, err := s.Create(ctx, orgs, Record{"slug": "acme", "name": "Acme"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), orgID)

	_, err = s.Create(ctx, users, Record{"id": int64(7), "email": "ann@example.com", "name": "Ann", "organization_id": orgID})
	require.NoError(t, err)

	key, _ := users.KeyOf(map[string]any{"email": "ann@example.com"})
	rec, found, err := s.FindByKey(ctx, users, key)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, int64(7), rec["id"])
	assert.Equal(t, "Ann", rec["name"])

	require.NoError(t, s.Update(ctx, users, int64(7), Record{"email": "ann@example.com", "name": "Ann B", "organization_id": orgID}))
	rec, _, err = s.FindByKey(ctx, users, key)
	require.NoError(t, err)
	assert.Equal(t, "Ann B", rec["name"])

	n, err := s.Count(ctx, users)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

func TestSQLite_ErrorClassification(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	orgs := kindOf(t, catalog.Organizations)
	users := kindOf(t, catalog.Users)

	_, err := s.Create(ctx, orgs, Record{"slug": "acme"})
	require.NoError(t, err)

	_, err = s.Create(ctx, orgs, Record{"slug": "acme"})
	require.Error(t, err)
	assert.True(t, apperrors.IsConflict(err), "duplicate natural key should be a conflict: %v", err)

	_, err = s.Create(ctx, users, Record{"email": "x@example.com", "name": "X", "organization_id": int64(404)})
	require.Error(t, err)
	assert.False(t, apperrors.IsConflict(err))
	assert.Equal(t, apperrors.ErrorTypeRecord, apperrors.NewErrorClassifier().ClassifyError(err).Type)

	_, err = s.Create(ctx, users, Record{"email": "y@example.com"})
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeRecord, apperrors.NewErrorClassifier().ClassifyError(err).Type)
}

func TestSQLite_Associations(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	users := kindOf(t, catalog.Users)
	perms := kindOf(t, catalog.Permissions)

	for _, k := range []string{"docs.read", "docs.write", "admin"} {
		_, err := s.Create(ctx, perms, Record{"key": k})
		require.NoError(t, err)
	}
	userID, err := s.Create(ctx, users, Record{"email": "ann@example.com", "name": "Ann"})
	require.NoError(t, err)

	require.NoError(t, s.ReplaceAssociation(ctx, users, userID, []any{int64(1), int64(2)}))
	require.NoError(t, s.ReplaceAssociation(ctx, users, userID, []any{int64(3)}))

	got, err := s.ListAssociation(ctx, users, perms, userID)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "admin", got[0]["key"])

	deleted, err := s.DeleteAll(ctx, users)
	require.NoError(t, err)
	assert.Equal(t, int64(1), deleted)

	got, err = s.ListAssociation(ctx, users, perms, userID)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestSQLite_RestoreSession(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	orgs := kindOf(t, catalog.Organizations)
	users := kindOf(t, catalog.Users)

	for _, slug := range []string{"a", "b", "c"} {
		_, err := s.Create(ctx, orgs, Record{"slug": slug})
		require.NoError(t, err)
	}

	session, err := s.BeginRestore(ctx)
	require.NoError(t, err)

	exists, err := session.TableExists(ctx, "users")
	require.NoError(t, err)
	assert.True(t, exists)
	exists, err = session.TableExists(ctx, "legacy_notes")
	require.NoError(t, err)
	assert.False(t, exists)

	require.NoError(t, session.Truncate(ctx, []string{"organizations", "users"}))
	// dependent row first: integrity is suspended for the session
	require.NoError(t, session.InsertRaw(ctx, "users", Record{"id": int64(1), "email": "ann@example.com", "name": "Ann", "organization_id": int64(2)}))
	require.NoError(t, session.InsertRaw(ctx, "organizations", Record{"id": int64(2), "slug": "acme"}))
	assert.Error(t, session.InsertRaw(ctx, "users", Record{"id": int64(2), "email": "no-name@example.com"}))
	require.NoError(t, session.Close(ctx, true))

	rows, err := s.List(ctx, orgs)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "acme", rows[0]["slug"])

	n, err := s.Count(ctx, users)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	// identity restarted: next id follows the restored rows, not the truncated ones
	id, err := s.Create(ctx, orgs, Record{"slug": "next"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), id)

	// integrity is back on
	_, err = s.Create(ctx, users, Record{"email": "z@example.com", "name": "Z", "organization_id": int64(404)})
	assert.Error(t, err)
}

func TestSQLite_RestoreSessionRollback(t *testing.T) {
	ctx := context.Background()
	s := newSQLiteStore(t)
	orgs := kindOf(t, catalog.Organizations)

	_, err := s.Create(ctx, orgs, Record{"slug": "keep"})
	require.NoError(t, err)

	session, err := s.BeginRestore(ctx)
	require.NoError(t, err)
	require.NoError(t, session.Truncate(ctx, []string{"organizations"}))
	require.NoError(t, session.Close(ctx, false))

	rows, err := s.List(ctx, orgs)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "keep", rows[0]["slug"])
}
