package migration

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"platform-snapshot/internal/catalog"
	"platform-snapshot/internal/snapshot"
	"platform-snapshot/internal/store"
)

// fixtureData is an internally consistent platform with every default kind
func fixtureData() map[string][]store.Record {
	return map[string][]store.Record{
		catalog.Permissions: {
			{"id": int64(1), "key": "documents.read"},
			{"id": int64(2), "key": "documents.write"},
			{"id": int64(3), "key": "documents.share"},
		},
		catalog.Organizations: {
			{"id": int64(1), "slug": "acme", "name": "Acme"},
		},
		catalog.Users: {
			{"id": int64(10), "email": "ada@example.com", "name": "Ada", "organization_id": int64(1),
				catalog.PermissionKeysField: []any{"documents.read", "documents.write"}},
			{"id": int64(11), "email": "bob@example.com", "name": "Bob", "organization_id": int64(1),
				catalog.PermissionKeysField: []any{"documents.read"}},
		},
		catalog.Documents: {
			{"id": int64(100), "storage_key": "doc-1", "title": "Plan", "organization_id": int64(1), "owner_id": int64(10)},
		},
		catalog.ShareRequests: {
			{"id": int64(200), "token": "tok-1", "document_id": int64(100), "requester_id": int64(11), "status": "pending"},
		},
		catalog.DocumentShares: {
			{"id": int64(300), "document_id": int64(100), "user_id": int64(11), "granted_by": int64(10), "role": "viewer"},
		},
		catalog.AuditLogs: {
			{"id": int64(400), "actor_id": int64(10), "organization_id": int64(1), "action": "login", "created_at": "2024-03-01T10:00:00Z"},
		},
	}
}

const fixtureRecords = 10

func newSnapshot(t *testing.T, data map[string][]store.Record) *snapshot.Snapshot {
	t.Helper()
	snap, err := snapshot.New("fixture", nil, data)
	require.NoError(t, err)
	return snap
}

func fixtureSnapshot(t *testing.T) *snapshot.Snapshot {
	return newSnapshot(t, fixtureData())
}

func kindOf(t *testing.T, c *catalog.Catalog, name string) catalog.Kind {
	t.Helper()
	k, ok := c.Kind(name)
	require.True(t, ok, name)
	return k
}

// permissionKeysOf lists the permission keys linked to the user with email
func permissionKeysOf(t *testing.T, s store.Store, c *catalog.Catalog, email string) []any {
	t.Helper()
	ctx := context.Background()
	users := kindOf(t, c, catalog.Users)
	perms := kindOf(t, c, catalog.Permissions)

	key, err := users.KeyOf(map[string]any{"email": email})
	require.NoError(t, err)
	user, found, err := s.FindByKey(ctx, users, key)
	require.NoError(t, err)
	require.True(t, found, email)

	linked, err := s.ListAssociation(ctx, users, perms, user["id"])
	require.NoError(t, err)
	keys := make([]any, 0, len(linked))
	for _, p := range linked {
		keys = append(keys, p["key"])
	}
	return keys
}

// tableCounts returns the row count of every table of c
func tableCounts(t *testing.T, s *store.MemoryStore, c *catalog.Catalog) map[string]int {
	t.Helper()
	tables, err := c.Tables()
	require.NoError(t, err)
	counts := make(map[string]int, len(tables))
	for _, table := range tables {
		counts[table] = len(s.Rows(table))
	}
	return counts
}

func manyAuditLogs(n int) []store.Record {
	rows := make([]store.Record, n)
	for i := range rows {
		rows[i] = store.Record{
			"id":              int64(1000 + i),
			"actor_id":        int64(10),
			"organization_id": int64(1),
			"action":          fmt.Sprintf("view-%d", i),
			"created_at":      "2024-03-01T10:00:00Z",
		}
	}
	return rows
}
