package migration

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platform-snapshot/internal/catalog"
	apperrors "platform-snapshot/internal/errors"
	"platform-snapshot/internal/store"
	"platform-snapshot/internal/store/sqlitetest"
)

func importedMemoryStore(t *testing.T) (*store.MemoryStore, *catalog.Catalog) {
	t.Helper()
	im, s, c := newMemoryImporter()
	summary, err := im.Import(context.Background(), fixtureSnapshot(t), Options{})
	require.NoError(t, err)
	require.False(t, summary.HasErrors())
	return s, c
}

func TestReset_DeletesInReverseOrder(t *testing.T) {
	s, c := importedMemoryStore(t)

	report, err := NewResetter(s, c, nil).Reset(context.Background())
	require.NoError(t, err)

	var kinds []string
	for _, k := range report.Kinds {
		kinds = append(kinds, k.Kind)
	}
	assert.Equal(t, []string{
		catalog.AuditLogs, catalog.DocumentShares, catalog.ShareRequests, catalog.Documents,
		catalog.Users, catalog.Organizations, catalog.Permissions,
	}, kinds)
	assert.Equal(t, int64(fixtureRecords), report.Total())

	for table, n := range tableCounts(t, s, c) {
		assert.Zero(t, n, table)
	}
}

func TestReset_StopsAtFirstFailure(t *testing.T) {
	s, c := importedMemoryStore(t)
	s.FailWith(func(op store.Op, table string, rec store.Record) error {
		if op == store.OpDelete && table == "users" {
			return apperrors.NewAppError(apperrors.ErrorTypeConnection, "connection reset", nil)
		}
		return nil
	})

	report, err := NewResetter(s, c, nil).Reset(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "users")
	assert.Equal(t, apperrors.ErrorTypeKind, apperrors.GetErrorType(err))

	require.Len(t, report.Kinds, 4)
	assert.Empty(t, s.Rows("documents"))
	assert.Len(t, s.Rows("users"), 2)
	assert.Len(t, s.Rows("permissions"), 3)
	assert.Equal(t, 5, s.Calls(store.OpDelete))
}

func TestReset_EmptyStore(t *testing.T) {
	c := catalog.Default()
	report, err := NewResetter(store.NewMemoryStore(c), c, nil).Reset(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Kinds, 7)
	assert.Zero(t, report.Total())
}

func TestReset_Canceled(t *testing.T) {
	s, c := importedMemoryStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := NewResetter(s, c, nil).Reset(ctx)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrorTypeInterruption, apperrors.GetErrorType(err))
	assert.Empty(t, report.Kinds)
	assert.Len(t, s.Rows("users"), 2)
}

func TestReset_SQLite(t *testing.T) {
	ctx := context.Background()
	c := catalog.Default()
	s, err := store.NewSQLStore(sqlitetest.Open(t), store.DriverSQLite, nil)
	require.NoError(t, err)

	_, err = NewImporter(s, c, nil).Import(ctx, fixtureSnapshot(t), Options{})
	require.NoError(t, err)

	report, err := NewResetter(s, c, nil).Reset(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(fixtureRecords), report.Total())

	for _, name := range []string{catalog.Users, catalog.Permissions, catalog.AuditLogs} {
		n, err := s.Count(ctx, kindOf(t, c, name))
		require.NoError(t, err)
		assert.Zero(t, n, name)
	}
}
