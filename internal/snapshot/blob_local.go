package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	apperrors "platform-snapshot/internal/errors"
)

// LocalBlobStore keeps objects as files in one directory
type LocalBlobStore struct {
	basePath    string
	permissions os.FileMode
}

// NewLocalBlobStore creates the directory if needed
func NewLocalBlobStore(config *LocalConfig) (*LocalBlobStore, error) {
	if config == nil {
		return nil, apperrors.NewValidationError("local storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.NewValidationError("invalid local storage configuration", err)
	}

	perm := config.Permissions
	if perm == 0 {
		perm = 0o755
	}
	if err := os.MkdirAll(config.BasePath, perm); err != nil {
		return nil, apperrors.NewStorageError("failed to create snapshot directory", err)
	}
	return &LocalBlobStore{basePath: config.BasePath, permissions: perm}, nil
}

// Put writes through a temp file and renames it into place
func (l *LocalBlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return apperrors.NewValidationError("invalid snapshot key", err)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(l.basePath, "."+key+".tmp-*")
	if err != nil {
		return apperrors.NewStorageError("failed to create snapshot file", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return apperrors.NewStorageError("failed to write snapshot file", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return apperrors.NewStorageError("failed to sync snapshot file", err)
	}
	if err := tmp.Close(); err != nil {
		return apperrors.NewStorageError("failed to close snapshot file", err)
	}
	if err := os.Rename(tmpName, l.path(key)); err != nil {
		return apperrors.NewStorageError("failed to move snapshot file into place", err)
	}
	return nil
}

func (l *LocalBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := validateKey(key); err != nil {
		return nil, apperrors.NewValidationError("invalid snapshot key", err)
	}
	data, err := os.ReadFile(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to read snapshot %s", key), err)
	}
	return data, nil
}

func (l *LocalBlobStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	entries, err := os.ReadDir(l.basePath)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read snapshot directory", err)
	}

	var objects []ObjectInfo
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || strings.HasPrefix(name, ".") || !strings.HasPrefix(name, prefix) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			// removed between ReadDir and Info
			continue
		}
		objects = append(objects, ObjectInfo{Key: name, Size: info.Size(), Modified: info.ModTime().UTC()})
	}
	return objects, nil
}

func (l *LocalBlobStore) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return apperrors.NewValidationError("invalid snapshot key", err)
	}
	err := os.Remove(l.path(key))
	if errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to delete snapshot %s", key), err)
	}
	return nil
}

func (l *LocalBlobStore) Location(key string) string {
	return l.path(key)
}

// BasePath returns the snapshot directory
func (l *LocalBlobStore) BasePath() string {
	return l.basePath
}

func (l *LocalBlobStore) path(key string) string {
	return filepath.Join(l.basePath, key)
}
