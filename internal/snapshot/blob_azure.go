package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/Azure/azure-storage-blob-go/azblob"

	apperrors "platform-snapshot/internal/errors"
)

// AzureBlobStore stores snapshots in an Azure Blob Storage container
type AzureBlobStore struct {
	containerURL  azblob.ContainerURL
	containerName string
	prefix        string
}

func NewAzureBlobStore(config *AzureConfig) (*AzureBlobStore, error) {
	if config == nil {
		return nil, apperrors.NewValidationError("Azure storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.NewValidationError("invalid Azure storage configuration", err)
	}

	credential, err := azblob.NewSharedKeyCredential(config.AccountName, config.AccountKey)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create Azure credentials", err)
	}
	pipeline := azblob.NewPipeline(credential, azblob.PipelineOptions{})

	endpoint := config.Endpoint
	if endpoint == "" {
		endpoint = fmt.Sprintf("https://%s.blob.core.windows.net", config.AccountName)
	}
	serviceURL, err := url.Parse(endpoint)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to parse Azure service URL", err)
	}

	return &AzureBlobStore{
		containerURL:  azblob.NewServiceURL(*serviceURL, pipeline).NewContainerURL(config.ContainerName),
		containerName: config.ContainerName,
		prefix:        config.Prefix,
	}, nil
}

func (a *AzureBlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return apperrors.NewValidationError("invalid snapshot key", err)
	}
	_, err := azblob.UploadBufferToBlockBlob(ctx, data, a.blob(key), azblob.UploadToBlockBlobOptions{
		BlockSize:   4 * 1024 * 1024,
		Parallelism: 16,
		BlobHTTPHeaders: azblob.BlobHTTPHeaders{
			ContentType: contentType(key),
		},
	})
	if err != nil {
		return apperrors.NewStorageError("failed to upload snapshot to Azure", err)
	}
	return nil
}

func (a *AzureBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	resp, err := a.blob(key).Download(ctx, 0, azblob.CountToEnd, azblob.BlobAccessConditions{}, false, azblob.ClientProvidedKeyOptions{})
	if err != nil {
		if isAzureNotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to download snapshot %s from Azure", key), err)
	}

	body := resp.Body(azblob.RetryReaderOptions{MaxRetryRequests: 20})
	defer body.Close()

	var buf bytes.Buffer
	if _, err := io.Copy(&buf, body); err != nil {
		return nil, apperrors.NewStorageError("failed to read snapshot data", err)
	}
	return buf.Bytes(), nil
}

func (a *AzureBlobStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	base := joinPrefix(a.prefix, "")
	var objects []ObjectInfo
	for marker := (azblob.Marker{}); marker.NotDone(); {
		resp, err := a.containerURL.ListBlobsFlatSegment(ctx, marker, azblob.ListBlobsSegmentOptions{
			Prefix: base + prefix,
		})
		if err != nil {
			return nil, apperrors.NewStorageError("failed to list snapshots in Azure", err)
		}
		for _, item := range resp.Segment.BlobItems {
			key := strings.TrimPrefix(item.Name, base)
			if strings.Contains(key, "/") {
				continue
			}
			info := ObjectInfo{Key: key, Modified: item.Properties.LastModified.UTC()}
			if item.Properties.ContentLength != nil {
				info.Size = *item.Properties.ContentLength
			}
			objects = append(objects, info)
		}
		marker = resp.NextMarker
	}
	return objects, nil
}

func (a *AzureBlobStore) Delete(ctx context.Context, key string) error {
	_, err := a.blob(key).Delete(ctx, azblob.DeleteSnapshotsOptionInclude, azblob.BlobAccessConditions{})
	if err != nil {
		if isAzureNotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return apperrors.NewStorageError(fmt.Sprintf("failed to delete snapshot %s from Azure", key), err)
	}
	return nil
}

func (a *AzureBlobStore) Location(key string) string {
	return fmt.Sprintf("azure://%s/%s", a.containerName, joinPrefix(a.prefix, key))
}

func (a *AzureBlobStore) blob(key string) azblob.BlockBlobURL {
	return a.containerURL.NewBlockBlobURL(joinPrefix(a.prefix, key))
}

func isAzureNotFound(err error) bool {
	var serr azblob.StorageError
	if errors.As(err, &serr) {
		return serr.ServiceCode() == azblob.ServiceCodeBlobNotFound
	}
	return false
}
