package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	apperrors "platform-snapshot/internal/errors"
)

// GCSBlobStore stores snapshots in a Google Cloud Storage bucket
type GCSBlobStore struct {
	client     *storage.Client
	bucketName string
	prefix     string
}

// NewGCSBlobStore creates a GCS client. Without a credentials file the
// application default credentials are used.
func NewGCSBlobStore(ctx context.Context, config *GCSConfig) (*GCSBlobStore, error) {
	if config == nil {
		return nil, apperrors.NewValidationError("GCS storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.NewValidationError("invalid GCS storage configuration", err)
	}

	var opts []option.ClientOption
	if config.CredentialsPath != "" {
		opts = append(opts, option.WithCredentialsFile(config.CredentialsPath))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create GCS client", err)
	}

	return &GCSBlobStore{client: client, bucketName: config.Bucket, prefix: config.Prefix}, nil
}

func (g *GCSBlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return apperrors.NewValidationError("invalid snapshot key", err)
	}
	writer := g.object(key).NewWriter(ctx)
	writer.ContentType = contentType(key)

	if _, err := writer.Write(data); err != nil {
		writer.Close()
		return apperrors.NewStorageError("failed to write snapshot to GCS", err)
	}
	if err := writer.Close(); err != nil {
		return apperrors.NewStorageError("failed to upload snapshot to GCS", err)
	}
	return nil
}

func (g *GCSBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	reader, err := g.object(key).NewReader(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to download snapshot %s from GCS", key), err)
	}
	defer reader.Close()

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read snapshot data", err)
	}
	return data, nil
}

func (g *GCSBlobStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	base := joinPrefix(g.prefix, "")
	it := g.client.Bucket(g.bucketName).Objects(ctx, &storage.Query{Prefix: base + prefix})

	var objects []ObjectInfo
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, apperrors.NewStorageError("failed to list snapshots in GCS", err)
		}
		key := strings.TrimPrefix(attrs.Name, base)
		if strings.Contains(key, "/") {
			continue
		}
		objects = append(objects, ObjectInfo{Key: key, Size: attrs.Size, Modified: attrs.Updated.UTC()})
	}
	return objects, nil
}

func (g *GCSBlobStore) Delete(ctx context.Context, key string) error {
	err := g.object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to delete snapshot %s from GCS", key), err)
	}
	return nil
}

func (g *GCSBlobStore) Location(key string) string {
	return fmt.Sprintf("gs://%s/%s", g.bucketName, joinPrefix(g.prefix, key))
}

// Close releases the client
func (g *GCSBlobStore) Close() error {
	return g.client.Close()
}

func (g *GCSBlobStore) object(key string) *storage.ObjectHandle {
	return g.client.Bucket(g.bucketName).Object(joinPrefix(g.prefix, key))
}
