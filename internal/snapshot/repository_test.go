package snapshot

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"platform-snapshot/internal/catalog"
	"platform-snapshot/internal/logging"
)

func snapshotAt(t *testing.T, ts time.Time) *Snapshot {
	t.Helper()
	snap, err := New("test", nil, sampleData())
	require.NoError(t, err)
	snap.Metadata.Timestamp = ts
	return snap
}

func TestRepository_KeyFor(t *testing.T) {
	repo := NewRepository(NewMemoryBlobStore(), Codec{Compression: CompressionZstd}, nil)
	snap := snapshotAt(t, time.Date(2024, 3, 1, 10, 4, 5, 0, time.UTC))
	snap.Metadata.ID = "0f8fad5b-d9cb-469f-a165-70867728950e"

	key := repo.KeyFor(snap)
	assert.Equal(t, "snapshot-20240301T100405Z-0f8fad5b.json.zst", key)
	assert.True(t, IsSnapshotKey(key))
}

func TestIsSnapshotKey(t *testing.T) {
	assert.True(t, IsSnapshotKey("snapshot-20240301T100405Z.json"))
	assert.True(t, IsSnapshotKey("snapshot-20240301T100405Z-abcd.json.gz.enc"))
	assert.False(t, IsSnapshotKey("snapshot-latest.json"))
	assert.False(t, IsSnapshotKey("snapshot-20240301T100405Z.txt"))
	assert.False(t, IsSnapshotKey("restore.json"))
}

func TestRepository_SaveLoad(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobStore()
	codec := Codec{Compression: CompressionGzip, Passphrase: []byte("k"), Catalog: catalog.Default()}
	repo := NewRepository(blobs, codec, logging.NewNopLogger())

	snap := snapshotAt(t, time.Now().UTC())
	key, err := repo.Save(ctx, snap)
	require.NoError(t, err)
	assert.Contains(t, blobs.Keys(), key)

	loaded, err := repo.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, snap.Metadata.ID, loaded.Metadata.ID)
	assert.Len(t, loaded.Records(catalog.Permissions), 2)

	_, err = repo.Load(ctx, "snapshot-missing.json")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestRepository_ListLatestPrune(t *testing.T) {
	ctx := context.Background()
	blobs := NewMemoryBlobStore()
	repo := NewRepository(blobs, Codec{Catalog: catalog.Default()}, nil)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	var keys []string
	for i := 0; i < 4; i++ {
		key, err := repo.Save(ctx, snapshotAt(t, base.Add(time.Duration(i)*time.Hour)))
		require.NoError(t, err)
		keys = append(keys, key)
	}
	require.NoError(t, blobs.Put(ctx, "notes.txt", []byte("ignored")))

	objects, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, objects, 4)
	assert.Equal(t, keys[3], objects[0].Key)
	assert.Equal(t, keys[0], objects[3].Key)

	latestKey, latest, err := repo.Latest(ctx)
	require.NoError(t, err)
	assert.Equal(t, keys[3], latestKey)
	assert.True(t, latest.Metadata.Timestamp.Equal(base.Add(3*time.Hour)))

	deleted, err := repo.Prune(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	deleted, err = repo.Prune(ctx, 2)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{keys[0], keys[1]}, deleted)

	objects, err = repo.List(ctx)
	require.NoError(t, err)
	assert.Len(t, objects, 2)
	assert.Contains(t, blobs.Keys(), "notes.txt")
}

func TestRepository_LatestEmpty(t *testing.T) {
	repo := NewRepository(NewMemoryBlobStore(), Codec{}, nil)
	_, _, err := repo.Latest(context.Background())
	assert.ErrorIs(t, err, ErrNoSnapshots)
}
