package snapshot

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"platform-snapshot/internal/logging"
)

const (
	keyPrefix       = "snapshot-"
	keyTimeLayout   = "20060102T150405Z"
	keyIDLength     = 8
	keyTimestampLen = len(keyPrefix) + len(keyTimeLayout)
)

// ErrNoSnapshots is returned by Latest when storage holds no snapshot
var ErrNoSnapshots = errors.New("no snapshots found in storage")

// Repository persists snapshots in a BlobStore under timestamped keys
type Repository struct {
	blobs  BlobStore
	codec  Codec
	logger *logging.Logger
}

func NewRepository(blobs BlobStore, codec Codec, logger *logging.Logger) *Repository {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Repository{blobs: blobs, codec: codec, logger: logger}
}

// Blobs returns the underlying store
func (r *Repository) Blobs() BlobStore {
	return r.blobs
}

// KeyFor names the object s is saved under
func (r *Repository) KeyFor(s *Snapshot) string {
	id := strings.ReplaceAll(s.Metadata.ID, "-", "")
	if len(id) > keyIDLength {
		id = id[:keyIDLength]
	}
	key := keyPrefix + s.Metadata.Timestamp.UTC().Format(keyTimeLayout)
	if id != "" {
		key += "-" + id
	}
	return key + r.codec.Suffix()
}

// Save encodes and stores s, returning its key
func (r *Repository) Save(ctx context.Context, s *Snapshot) (string, error) {
	start := time.Now()
	key := r.KeyFor(s)

	data, err := r.codec.Marshal(s)
	if err != nil {
		return "", err
	}
	if err := r.blobs.Put(ctx, key, data); err != nil {
		return "", err
	}

	r.logger.LogSnapshotStored(r.blobs.Location(key), s.Metadata.RecordCount, int64(len(data)), time.Since(start))
	return key, nil
}

// Load reads and verifies the snapshot stored under key
func (r *Repository) Load(ctx context.Context, key string) (*Snapshot, error) {
	data, err := r.blobs.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	return r.codec.Unmarshal(key, data)
}

// List returns the stored snapshots, newest first
func (r *Repository) List(ctx context.Context) ([]ObjectInfo, error) {
	objects, err := r.blobs.List(ctx, keyPrefix)
	if err != nil {
		return nil, err
	}

	snapshots := objects[:0]
	for _, obj := range objects {
		if IsSnapshotKey(obj.Key) {
			snapshots = append(snapshots, obj)
		}
	}
	sort.SliceStable(snapshots, func(i, j int) bool {
		ti, tj := keyTimestamp(snapshots[i].Key), keyTimestamp(snapshots[j].Key)
		if ti != tj {
			return ti > tj
		}
		if !snapshots[i].Modified.Equal(snapshots[j].Modified) {
			return snapshots[i].Modified.After(snapshots[j].Modified)
		}
		return snapshots[i].Key > snapshots[j].Key
	})
	return snapshots, nil
}

// Latest loads the newest snapshot
func (r *Repository) Latest(ctx context.Context) (string, *Snapshot, error) {
	objects, err := r.List(ctx)
	if err != nil {
		return "", nil, err
	}
	if len(objects) == 0 {
		return "", nil, ErrNoSnapshots
	}
	key := objects[0].Key
	snap, err := r.Load(ctx, key)
	if err != nil {
		return "", nil, err
	}
	return key, snap, nil
}

// Prune deletes all but the newest keep snapshots. keep <= 0 disables pruning.
func (r *Repository) Prune(ctx context.Context, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	objects, err := r.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(objects) <= keep {
		return nil, nil
	}

	var deleted []string
	for _, obj := range objects[keep:] {
		if err := r.blobs.Delete(ctx, obj.Key); err != nil && !errors.Is(err, ErrNotFound) {
			return deleted, fmt.Errorf("failed to prune snapshot %s: %w", obj.Key, err)
		}
		deleted = append(deleted, obj.Key)
		r.logger.WithField("key", obj.Key).Info("Pruned snapshot")
	}
	return deleted, nil
}

// IsSnapshotKey reports whether key looks like a key written by Save
func IsSnapshotKey(key string) bool {
	if !strings.HasPrefix(key, keyPrefix) || len(key) < keyTimestampLen {
		return false
	}
	if _, err := time.Parse(keyTimeLayout, key[len(keyPrefix):keyTimestampLen]); err != nil {
		return false
	}
	return strings.Contains(key[keyTimestampLen:], jsonExtension)
}

func keyTimestamp(key string) string {
	return key[len(keyPrefix):keyTimestampLen]
}
