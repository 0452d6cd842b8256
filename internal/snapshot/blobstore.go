package snapshot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrNotFound is returned by BlobStore.Get and Delete for a missing key
var ErrNotFound = errors.New("snapshot object not found")

// ObjectInfo describes a stored object
type ObjectInfo struct {
	Key      string    `json:"key" yaml:"key"`
	Size     int64     `json:"size" yaml:"size"`
	Modified time.Time `json:"modified" yaml:"modified"`
}

// BlobStore is a flat key/value object store. Keys never contain path separators.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	List(ctx context.Context, prefix string) ([]ObjectInfo, error)
	Delete(ctx context.Context, key string) error
	// Location renders key as a human readable URL or path
	Location(key string) string
}

func validateKey(key string) error {
	switch {
	case key == "":
		return errors.New("object key cannot be empty")
	case key == "." || key == "..":
		return fmt.Errorf("invalid object key %q", key)
	case strings.ContainsAny(key, `/\`):
		return fmt.Errorf("object key %q cannot contain path separators", key)
	}
	return nil
}

// joinPrefix joins a configured object prefix and a key
func joinPrefix(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return strings.TrimSuffix(prefix, "/") + "/" + key
}
