// Package config loads the platform-snapshot configuration from file,
// environment and flags through viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"platform-snapshot/internal/catalog"
	"platform-snapshot/internal/database"
	"platform-snapshot/internal/display"
	"platform-snapshot/internal/logging"
	"platform-snapshot/internal/snapshot"
)

const (
	// EnvPrefix prefixes every environment variable, e.g. PLATFORM_SNAPSHOT_TARGET_HOST
	EnvPrefix = "PLATFORM_SNAPSHOT"
	// FileName is the config file searched in $HOME and the working directory
	FileName = ".platform-snapshot"

	restoreFileName = "restore.json"
)

// Config is the full configuration of one command run
type Config struct {
	Target   database.DatabaseConfig `mapstructure:"target" yaml:"target"`
	Storage  snapshot.StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Snapshot SnapshotConfig          `mapstructure:"snapshot" yaml:"snapshot"`
	Restore  RestoreConfig           `mapstructure:"restore" yaml:"restore"`
	Display  display.DisplayConfig   `mapstructure:"display" yaml:"display"`
	Log      LogConfig               `mapstructure:"log" yaml:"log"`
	// Catalog is an optional YAML catalog file replacing the built-in kinds
	Catalog string `mapstructure:"catalog" yaml:"catalog,omitempty"`
}

// SnapshotConfig controls how exported snapshots are written and retained
type SnapshotConfig struct {
	Compression       string `mapstructure:"compression" yaml:"compression"`
	EncryptionKeyFile string `mapstructure:"encryption_key_file" yaml:"encryption_key_file,omitempty"`
	// Keep prunes all but the newest Keep snapshots after export; 0 keeps everything
	Keep int `mapstructure:"keep" yaml:"keep"`
}

type RestoreConfig struct {
	Path string `mapstructure:"path" yaml:"path,omitempty"`
}

type LogConfig struct {
	Verbose bool   `mapstructure:"verbose" yaml:"verbose"`
	Quiet   bool   `mapstructure:"quiet" yaml:"quiet"`
	Debug   bool   `mapstructure:"debug" yaml:"debug"`
	Format  string `mapstructure:"format" yaml:"format"`
	File    string `mapstructure:"file" yaml:"file,omitempty"`
}

// defaults are registered with viper so every key is also reachable through
// the environment
var defaults = map[string]interface{}{
	"target.driver":                database.DriverMySQL,
	"target.dsn":                   "",
	"target.host":                  "localhost",
	"target.port":                  0,
	"target.username":              "",
	"target.password":              "",
	"target.database":              "",
	"target.sslmode":               "",
	"target.timeout":               30 * time.Second,
	"storage.provider":             string(snapshot.StorageProviderLocal),
	"storage.local.base_path":      snapshot.DefaultBackupDir,
	"storage.local.permissions":    0o755,
	"snapshot.compression":         string(snapshot.CompressionNone),
	"snapshot.encryption_key_file": "",
	"snapshot.keep":                0,
	"restore.path":                 "",
	"display.color_enabled":        true,
	"display.theme":                display.ThemeDark,
	"display.output_format":        string(display.FormatTable),
	"display.show_progress":        true,
	"display.use_icons":            true,
	"display.table_style":          "default",
	"display.max_table_width":      120,
	"log.verbose":                  false,
	"log.quiet":                    false,
	"log.debug":                    false,
	"log.format":                   "text",
	"log.file":                     "",
	"catalog":                      "",
}

// envOnlyKeys have no default but can still be set from the environment
var envOnlyKeys = []string{
	"storage.s3.bucket",
	"storage.s3.region",
	"storage.s3.prefix",
	"storage.s3.endpoint",
	"storage.s3.access_key",
	"storage.s3.secret_key",
	"storage.gcs.bucket",
	"storage.gcs.prefix",
	"storage.gcs.credentials_path",
	"storage.azure.account_name",
	"storage.azure.account_key",
	"storage.azure.container_name",
	"storage.azure.prefix",
	"storage.azure.endpoint",
}

// Setup points v at cfgFile, or at the default search paths when cfgFile is
// empty, and reads it. A missing default file is not an error.
func Setup(v *viper.Viper, cfgFile string) error {
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range envOnlyKeys {
		if err := v.BindEnv(key); err != nil {
			return fmt.Errorf("failed to bind %s: %w", key, err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(home)
		}
		v.AddConfigPath(".")
		v.SetConfigType("yaml")
		v.SetConfigName(FileName)
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("error reading config file: %w", err)
	}
	return nil
}

// Load decodes v into a Config, fills defaults and validates it. Commands that
// never touch the database pass requireTarget false.
func Load(v *viper.Viper, requireTarget bool) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	cfg.SetDefaults()
	if err := cfg.validate(requireTarget); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when nothing is configured
func Default() *Config {
	cfg := &Config{
		Storage: snapshot.DefaultStorageConfig(),
		Display: *display.DefaultDisplayConfig(),
		Log:     LogConfig{Format: "text"},
	}
	cfg.SetDefaults()
	return cfg
}

// SetDefaults fills the values viper leaves empty
func (c *Config) SetDefaults() {
	c.Target.SetDefaults()
	if c.Storage.Provider == "" {
		c.Storage.Provider = snapshot.StorageProviderLocal
	}
	if c.Storage.Provider == snapshot.StorageProviderLocal && c.Storage.Local == nil {
		c.Storage.Local = &snapshot.LocalConfig{BasePath: snapshot.DefaultBackupDir, Permissions: 0o755}
	}
	if c.Snapshot.Compression == "" {
		c.Snapshot.Compression = string(snapshot.CompressionNone)
	}
	if c.Log.Format == "" {
		c.Log.Format = "text"
	}
	c.Display.VerboseMode = c.Log.Verbose || c.Log.Debug
	c.Display.QuietMode = c.Log.Quiet
	c.Display.SetDefaults()
}

// Validate checks every section and reports all problems at once
func (c *Config) Validate() error {
	return c.validate(true)
}

func (c *Config) validate(requireTarget bool) error {
	var errs []error

	if requireTarget {
		if err := c.Target.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if err := c.Storage.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("storage configuration validation failed: %w", err))
	}
	if _, err := snapshot.ParseCompression(c.Snapshot.Compression); err != nil {
		errs = append(errs, err)
	}
	if c.Snapshot.Keep < 0 {
		errs = append(errs, fmt.Errorf("snapshot.keep must not be negative, got %d", c.Snapshot.Keep))
	}
	if err := c.Display.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Log.Verbose && c.Log.Quiet {
		errs = append(errs, errors.New("--verbose and --quiet flags are mutually exclusive"))
	}
	if c.Log.Format != "text" && c.Log.Format != "json" {
		errs = append(errs, fmt.Errorf("log format must be text or json, got %q", c.Log.Format))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// LogLevel maps the log flags to a logger level
func (c *Config) LogLevel() logging.LogLevel {
	switch {
	case c.Log.Quiet:
		return logging.LogLevelQuiet
	case c.Log.Debug:
		return logging.LogLevelDebug
	case c.Log.Verbose:
		return logging.LogLevelVerbose
	default:
		return logging.LogLevelNormal
	}
}

// LoggerConfig returns the logger settings of c
func (c *Config) LoggerConfig() logging.Config {
	level := c.LogLevel()
	return logging.Config{
		Level:      level,
		Format:     c.Log.Format,
		ShowCaller: level == logging.LogLevelDebug,
		LogFile:    c.Log.File,
	}
}

// RestorePath is the snapshot file restore reads when no path is given
func (c *Config) RestorePath() string {
	if c.Restore.Path != "" {
		return c.Restore.Path
	}
	dir := snapshot.DefaultBackupDir
	if c.Storage.Local != nil && c.Storage.Local.BasePath != "" {
		dir = c.Storage.Local.BasePath
	}
	return filepath.Join(dir, restoreFileName)
}

// LoadCatalog returns the configured catalog, or the built-in one
func (c *Config) LoadCatalog() (*catalog.Catalog, error) {
	if c.Catalog == "" {
		return catalog.Default(), nil
	}
	return catalog.Load(c.Catalog)
}

// Codec builds the snapshot codec, reading the encryption key file if one is set
func (c *Config) Codec(cat *catalog.Catalog) (snapshot.Codec, error) {
	compression, err := snapshot.ParseCompression(c.Snapshot.Compression)
	if err != nil {
		return snapshot.Codec{}, err
	}
	codec := snapshot.Codec{Compression: compression, Catalog: cat}
	if c.Snapshot.EncryptionKeyFile != "" {
		key, err := snapshot.LoadKeyFile(c.Snapshot.EncryptionKeyFile)
		if err != nil {
			return snapshot.Codec{}, err
		}
		codec.Passphrase = key
	}
	return codec, nil
}

// EnvironmentVariables lists every supported environment variable
func EnvironmentVariables() []string {
	keys := make([]string, 0, len(defaults)+len(envOnlyKeys))
	for key := range defaults {
		keys = append(keys, key)
	}
	keys = append(keys, envOnlyKeys...)

	vars := make([]string, len(keys))
	for i, key := range keys {
		vars[i] = EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
	}
	sort.Strings(vars)
	return vars
}
