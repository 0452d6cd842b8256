package snapshot

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	apperrors "platform-snapshot/internal/errors"
)

// S3BlobStore stores snapshots in an S3 bucket
type S3BlobStore struct {
	client s3iface.S3API
	bucket string
	prefix string
}

// NewS3BlobStore creates an S3 client from config. Without static keys the
// default AWS credential chain is used.
func NewS3BlobStore(config *S3Config) (*S3BlobStore, error) {
	if config == nil {
		return nil, apperrors.NewValidationError("S3 storage configuration is required", nil)
	}
	if err := config.Validate(); err != nil {
		return nil, apperrors.NewValidationError("invalid S3 storage configuration", err)
	}

	awsConfig := &aws.Config{Region: aws.String(config.Region)}
	if config.AccessKey != "" {
		awsConfig.Credentials = credentials.NewStaticCredentials(config.AccessKey, config.SecretKey, "")
	}
	if config.Endpoint != "" {
		awsConfig.Endpoint = aws.String(config.Endpoint)
		awsConfig.S3ForcePathStyle = aws.Bool(true)
	}

	sess, err := session.NewSession(awsConfig)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to create AWS session", err)
	}
	return NewS3BlobStoreWithClient(s3.New(sess), config.Bucket, config.Prefix), nil
}

// NewS3BlobStoreWithClient wraps an existing client
func NewS3BlobStoreWithClient(client s3iface.S3API, bucket, prefix string) *S3BlobStore {
	return &S3BlobStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3BlobStore) Put(ctx context.Context, key string, data []byte) error {
	if err := validateKey(key); err != nil {
		return apperrors.NewValidationError("invalid snapshot key", err)
	}
	_, err := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(s.objectKey(key)),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType(key)),
	})
	if err != nil {
		return apperrors.NewStorageError("failed to upload snapshot to S3", err)
	}
	return nil
}

func (s *S3BlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	result, err := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return nil, apperrors.NewStorageError(fmt.Sprintf("failed to download snapshot %s from S3", key), err)
	}
	defer result.Body.Close()

	data, err := io.ReadAll(result.Body)
	if err != nil {
		return nil, apperrors.NewStorageError("failed to read snapshot data", err)
	}
	return data, nil
}

func (s *S3BlobStore) List(ctx context.Context, prefix string) ([]ObjectInfo, error) {
	var objects []ObjectInfo
	base := s.objectKey("")
	input := &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(base + prefix),
	}
	err := s.client.ListObjectsV2PagesWithContext(ctx, input,
		func(page *s3.ListObjectsV2Output, lastPage bool) bool {
			for _, obj := range page.Contents {
				key := strings.TrimPrefix(aws.StringValue(obj.Key), base)
				if strings.Contains(key, "/") {
					continue
				}
				objects = append(objects, ObjectInfo{
					Key:      key,
					Size:     aws.Int64Value(obj.Size),
					Modified: aws.TimeValue(obj.LastModified).UTC(),
				})
			}
			return true
		})
	if err != nil {
		return nil, apperrors.NewStorageError("failed to list snapshots in S3", err)
	}
	return objects, nil
}

// Delete checks existence first, S3 deletes of missing keys succeed silently
func (s *S3BlobStore) Delete(ctx context.Context, key string) error {
	_, err := s.client.HeadObjectWithContext(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		if isS3NotFound(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return apperrors.NewStorageError(fmt.Sprintf("failed to stat snapshot %s in S3", key), err)
	}

	_, err = s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(key)),
	})
	if err != nil {
		return apperrors.NewStorageError(fmt.Sprintf("failed to delete snapshot %s from S3", key), err)
	}
	return nil
}

func (s *S3BlobStore) Location(key string) string {
	return fmt.Sprintf("s3://%s/%s", s.bucket, s.objectKey(key))
}

func (s *S3BlobStore) objectKey(key string) string {
	return joinPrefix(s.prefix, key)
}

func isS3NotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}

func contentType(key string) string {
	if strings.HasSuffix(key, jsonExtension) {
		return "application/json"
	}
	return "application/octet-stream"
}
