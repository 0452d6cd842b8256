package cmd

import (
	"bytes"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platform-snapshot/internal/catalog"
	"platform-snapshot/internal/snapshot"
	"platform-snapshot/internal/store"
	"platform-snapshot/internal/store/sqlitetest"
)

type cliResult struct {
	out    string
	errOut string
	err    error
}

func execute(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	root := NewRootCommand()
	var out, errOut bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&errOut)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)

	err := root.Execute()
	return cliResult{out: out.String(), errOut: errOut.String(), err: err}
}

// env is a sqlite target plus a config file storing snapshots in a temp dir
type env struct {
	db      *sql.DB
	dbPath  string
	cfgPath string
	backups string
}

func newEnv(t *testing.T) *env {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	e := &env{dbPath: sqlitetest.Path(t), backups: t.TempDir()}
	e.db = sqlitetest.OpenPath(t, e.dbPath)
	e.cfgPath = filepath.Join(t.TempDir(), "config.yaml")
	cfg := fmt.Sprintf(`target:
  driver: sqlite
  database: %s
storage:
  provider: local
  local:
    base_path: %s
display:
  show_progress: false
log:
  quiet: true
`, e.dbPath, e.backups)
	require.NoError(t, os.WriteFile(e.cfgPath, []byte(cfg), 0o600))
	return e
}

func (e *env) count(t *testing.T, table string) int {
	t.Helper()
	var n int
	require.NoError(t, e.db.QueryRow("SELECT COUNT(*) FROM "+table).Scan(&n))
	return n
}

func writeSnapshotFile(t *testing.T) string {
	t.Helper()
	snap, err := snapshot.New("cli-test", nil, map[string][]store.Record{
		catalog.Permissions:   {{"id": int64(1), "key": "documents.read"}},
		catalog.Organizations: {{"id": int64(1), "slug": "acme", "name": "Acme"}},
		catalog.Users: {
			{"id": int64(7), "email": "ada@example.com", "name": "Ada", "organization_id": int64(1),
				catalog.PermissionKeysField: []any{"documents.read"}},
		},
	})
	require.NoError(t, err)
	data, err := snapshot.Encode(snap)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "snapshot.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func TestVersionCommand(t *testing.T) {
	SetVersionInfo("1.2.3", "today", "abc123", "go1.25")
	defer SetVersionInfo("dev", "unknown", "unknown", "unknown")

	res := execute(t, "", "version")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "platform-snapshot version 1.2.3")
	assert.Contains(t, res.out, "Commit: abc123")
}

func TestConfigCommand(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	res := execute(t, "", "config")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "target:")
	assert.Contains(t, res.out, "storage:")

	res = execute(t, "", "config", "--env")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "PLATFORM_SNAPSHOT_TARGET_PASSWORD")
}

func TestImportCommand_ArgumentErrors(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	res := execute(t, "", "import")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "accepts 1 arg")
	assert.Contains(t, res.out, "Usage:")

	res = execute(t, "", "import", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "does not exist")
	assert.Contains(t, res.out, "Usage:")
}

func TestImportCommand(t *testing.T) {
	e := newEnv(t)
	path := writeSnapshotFile(t)

	res := execute(t, "", "import", path, "--config", e.cfgPath, "--dry-run", "--format", "compact")
	require.NoError(t, res.err)
	assert.Zero(t, e.count(t, "users"))

	res = execute(t, "", "import", path, "--config", e.cfgPath, "--format", "json")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, `"imported": 3`)
	assert.Equal(t, 1, e.count(t, "users"))
	assert.Equal(t, 1, e.count(t, "user_permissions"))

	// a replay only updates
	res = execute(t, "", "import", path, "--config", e.cfgPath, "--format", "json")
	require.NoError(t, res.err)
	assert.Contains(t, res.out, `"updated": 3`)
	assert.Equal(t, 1, e.count(t, "users"))
}

func TestImportCommand_FlagsOverrideConfig(t *testing.T) {
	e := newEnv(t)
	other := sqlitetest.Path(t)
	otherDB := sqlitetest.OpenPath(t, other)

	res := execute(t, "", "import", writeSnapshotFile(t), "--config", e.cfgPath, "--db", other)
	require.NoError(t, res.err)

	var n int
	require.NoError(t, otherDB.QueryRow("SELECT COUNT(*) FROM users").Scan(&n))
	assert.Equal(t, 1, n)
	assert.Zero(t, e.count(t, "users"))
}

func TestExportListRestoreReset(t *testing.T) {
	e := newEnv(t)
	require.NoError(t, execute(t, "", "import", writeSnapshotFile(t), "--config", e.cfgPath).err)

	res := execute(t, "", "export", "--config", e.cfgPath, "--compression", "gzip")
	require.NoError(t, res.err)
	entries, err := os.ReadDir(e.backups)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	key := entries[0].Name()
	assert.True(t, strings.HasSuffix(key, ".json.gz"), key)

	res = execute(t, "", "list", "--config", e.cfgPath)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, key)

	res = execute(t, "n\n", "reset", "--config", e.cfgPath)
	require.NoError(t, res.err)
	assert.Contains(t, res.out, "DESTRUCTIVE OPERATION")
	assert.Equal(t, 1, e.count(t, "users"))

	res = execute(t, "", "reset", "--config", e.cfgPath, "--auto-approve")
	require.NoError(t, res.err)
	assert.Zero(t, e.count(t, "users"))
	assert.Zero(t, e.count(t, "permissions"))

	res = execute(t, "yes\n", "restore", "--latest", "--config", e.cfgPath)
	require.NoError(t, res.err)
	assert.Equal(t, 1, e.count(t, "users"))
	assert.Equal(t, 1, e.count(t, "user_permissions"))
}

func TestRestoreCommand_DefaultPath(t *testing.T) {
	e := newEnv(t)
	data, err := os.ReadFile(writeSnapshotFile(t))
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(filepath.Join(e.backups, "restore.json"), data, 0o600))

	res := execute(t, "", "restore", "--config", e.cfgPath, "--auto-approve")
	require.NoError(t, res.err)
	assert.Equal(t, 1, e.count(t, "organizations"))
}

func TestRestoreCommand_LatestWithPath(t *testing.T) {
	e := newEnv(t)

	res := execute(t, "", "restore", "snap.json", "--latest", "--config", e.cfgPath)
	assert.ErrorIs(t, res.err, errLatestWithPath)
}

func TestRestoreCommand_MissingDefaultFile(t *testing.T) {
	e := newEnv(t)

	res := execute(t, "", "restore", "--config", e.cfgPath, "--auto-approve")
	require.Error(t, res.err)
	assert.Contains(t, res.errOut, "restore.json does not exist")
}

func TestRootCommand_ConfigErrors(t *testing.T) {
	e := newEnv(t)

	res := execute(t, "", "reset", "--config", e.cfgPath, "--verbose", "--quiet")
	require.Error(t, res.err)

	res = execute(t, "", "reset", "--config", e.cfgPath, "--driver", "oracle")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "configuration error")

	res = execute(t, "", "list", "--config", filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "error reading config file")
}
