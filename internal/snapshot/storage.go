package snapshot

import (
	"context"
	"errors"
	"fmt"
	"os"

	apperrors "platform-snapshot/internal/errors"
)

// StorageProviderType selects a BlobStore driver
type StorageProviderType string

const (
	StorageProviderLocal  StorageProviderType = "local"
	StorageProviderS3     StorageProviderType = "s3"
	StorageProviderGCS    StorageProviderType = "gcs"
	StorageProviderAzure  StorageProviderType = "azure"
	StorageProviderMemory StorageProviderType = "memory"
)

// DefaultBackupDir is where snapshots go when nothing else is configured
const DefaultBackupDir = "./backups"

// StorageConfig selects and configures the snapshot blob store
type StorageConfig struct {
	Provider StorageProviderType `mapstructure:"provider" yaml:"provider"`
	Local    *LocalConfig        `mapstructure:"local" yaml:"local,omitempty"`
	S3       *S3Config           `mapstructure:"s3" yaml:"s3,omitempty"`
	GCS      *GCSConfig          `mapstructure:"gcs" yaml:"gcs,omitempty"`
	Azure    *AzureConfig        `mapstructure:"azure" yaml:"azure,omitempty"`
}

type LocalConfig struct {
	BasePath    string      `mapstructure:"base_path" yaml:"base_path"`
	Permissions os.FileMode `mapstructure:"permissions" yaml:"permissions,omitempty"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket" yaml:"bucket"`
	Region    string `mapstructure:"region" yaml:"region"`
	Prefix    string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Endpoint  string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	AccessKey string `mapstructure:"access_key" yaml:"access_key,omitempty"`
	SecretKey string `mapstructure:"secret_key" yaml:"secret_key,omitempty"`
}

type GCSConfig struct {
	Bucket          string `mapstructure:"bucket" yaml:"bucket"`
	Prefix          string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	CredentialsPath string `mapstructure:"credentials_path" yaml:"credentials_path,omitempty"`
}

type AzureConfig struct {
	AccountName   string `mapstructure:"account_name" yaml:"account_name"`
	AccountKey    string `mapstructure:"account_key" yaml:"account_key"`
	ContainerName string `mapstructure:"container_name" yaml:"container_name"`
	Prefix        string `mapstructure:"prefix" yaml:"prefix,omitempty"`
	Endpoint      string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
}

// DefaultStorageConfig stores snapshots in DefaultBackupDir
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Provider: StorageProviderLocal,
		Local:    &LocalConfig{BasePath: DefaultBackupDir, Permissions: 0o755},
	}
}

// Validate checks that the selected provider has a usable configuration
func (c StorageConfig) Validate() error {
	switch c.Provider {
	case StorageProviderLocal, "":
		if c.Local == nil {
			return nil
		}
		return c.Local.Validate()
	case StorageProviderS3:
		if c.S3 == nil {
			return errors.New("s3 storage configuration is required")
		}
		return c.S3.Validate()
	case StorageProviderGCS:
		if c.GCS == nil {
			return errors.New("gcs storage configuration is required")
		}
		return c.GCS.Validate()
	case StorageProviderAzure:
		if c.Azure == nil {
			return errors.New("azure storage configuration is required")
		}
		return c.Azure.Validate()
	case StorageProviderMemory:
		return nil
	default:
		return fmt.Errorf("unsupported storage provider %q", c.Provider)
	}
}

func (c *LocalConfig) Validate() error {
	if c.BasePath == "" {
		return errors.New("local base_path is required")
	}
	return nil
}

func (c *S3Config) Validate() error {
	var errs []error
	if c.Bucket == "" {
		errs = append(errs, errors.New("s3 bucket is required"))
	}
	if c.Region == "" {
		errs = append(errs, errors.New("s3 region is required"))
	}
	if (c.AccessKey == "") != (c.SecretKey == "") {
		errs = append(errs, errors.New("s3 access_key and secret_key must be set together"))
	}
	return errors.Join(errs...)
}

func (c *GCSConfig) Validate() error {
	if c.Bucket == "" {
		return errors.New("gcs bucket is required")
	}
	return nil
}

func (c *AzureConfig) Validate() error {
	var errs []error
	if c.AccountName == "" {
		errs = append(errs, errors.New("azure account_name is required"))
	}
	if c.AccountKey == "" {
		errs = append(errs, errors.New("azure account_key is required"))
	}
	if c.ContainerName == "" {
		errs = append(errs, errors.New("azure container_name is required"))
	}
	return errors.Join(errs...)
}

// NewBlobStore builds the blob store selected by config
func NewBlobStore(ctx context.Context, config StorageConfig) (BlobStore, error) {
	if err := config.Validate(); err != nil {
		return nil, apperrors.NewValidationError("invalid storage configuration", err)
	}

	var (
		store BlobStore
		err   error
	)
	switch config.Provider {
	case StorageProviderLocal, "":
		local := config.Local
		if local == nil {
			local = DefaultStorageConfig().Local
		}
		store, err = NewLocalBlobStore(local)
	case StorageProviderS3:
		store, err = NewS3BlobStore(config.S3)
	case StorageProviderGCS:
		store, err = NewGCSBlobStore(ctx, config.GCS)
	case StorageProviderAzure:
		store, err = NewAzureBlobStore(config.Azure)
	case StorageProviderMemory:
		store = NewMemoryBlobStore()
	default:
		err = apperrors.NewValidationError(fmt.Sprintf("unsupported storage provider: %s", config.Provider), nil)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}

// SupportedProviders lists the accepted provider names
func SupportedProviders() []StorageProviderType {
	return []StorageProviderType{
		StorageProviderLocal,
		StorageProviderS3,
		StorageProviderGCS,
		StorageProviderAzure,
		StorageProviderMemory,
	}
}
