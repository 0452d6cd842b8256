package database

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// Supported drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// DatabaseConfig holds the configuration parameters for the target database.
// For sqlite, Database is the file path.
type DatabaseConfig struct {
	Driver       string        `mapstructure:"driver" yaml:"driver"`
	DSN          string        `mapstructure:"dsn" yaml:"dsn,omitempty"`
	Host         string        `mapstructure:"host" yaml:"host"`
	Port         int           `mapstructure:"port" yaml:"port"`
	Username     string        `mapstructure:"username" yaml:"username"`
	Password     string        `mapstructure:"password" yaml:"password"`
	Database     string        `mapstructure:"database" yaml:"database"`
	SSLMode      string        `mapstructure:"sslmode" yaml:"sslmode,omitempty"`
	Timeout      time.Duration `mapstructure:"timeout" yaml:"timeout"`
	MaxOpenConns int           `mapstructure:"max_open_conns" yaml:"max_open_conns,omitempty"`
}

// SetDefaults fills the driver-specific defaults
func (dc *DatabaseConfig) SetDefaults() {
	if dc.Driver == "" {
		dc.Driver = DriverMySQL
	}
	if dc.Port == 0 {
		switch dc.Driver {
		case DriverMySQL:
			dc.Port = 3306
		case DriverPostgres:
			dc.Port = 5432
		}
	}
	if dc.Driver == DriverPostgres && dc.SSLMode == "" {
		dc.SSLMode = "disable"
	}
	if dc.Timeout <= 0 {
		dc.Timeout = 30 * time.Second
	}
	if dc.MaxOpenConns <= 0 {
		dc.MaxOpenConns = 10
	}
}

// Validate checks if the database configuration has all required parameters
func (dc *DatabaseConfig) Validate() error {
	var errs []error

	switch dc.Driver {
	case DriverMySQL, DriverPostgres, DriverSQLite:
	default:
		errs = append(errs, fmt.Errorf("driver must be one of mysql, postgres, sqlite (got %q)", dc.Driver))
	}

	if dc.Database == "" && dc.DSN == "" {
		if dc.Driver == DriverSQLite {
			errs = append(errs, errors.New("database file path is required"))
		} else {
			errs = append(errs, errors.New("database name is required"))
		}
	}

	if dc.DSN == "" && dc.Driver != DriverSQLite {
		if dc.Host == "" {
			errs = append(errs, errors.New("host is required"))
		}
		if dc.Port <= 0 || dc.Port > 65535 {
			errs = append(errs, errors.New("port must be between 1 and 65535"))
		}
		if dc.Username == "" {
			errs = append(errs, errors.New("username is required"))
		}
	}

	if dc.Timeout <= 0 {
		dc.Timeout = 30 * time.Second
	}

	if len(errs) > 0 {
		return fmt.Errorf("database configuration validation failed: %w", errors.Join(errs...))
	}
	return nil
}

// DriverName returns the database/sql driver registered for Driver
func (dc *DatabaseConfig) DriverName() string {
	switch dc.Driver {
	case DriverPostgres:
		return "pgx"
	case DriverSQLite:
		return "sqlite"
	default:
		return "mysql"
	}
}

// ConnectionString returns the data source name for Driver. An explicit DSN wins.
func (dc *DatabaseConfig) ConnectionString() string {
	if dc.DSN != "" {
		return dc.DSN
	}

	switch dc.Driver {
	case DriverPostgres:
		u := url.URL{
			Scheme: "postgres",
			User:   url.UserPassword(dc.Username, dc.Password),
			Host:   fmt.Sprintf("%s:%d", dc.Host, dc.Port),
			Path:   "/" + dc.Database,
		}
		q := url.Values{}
		if dc.SSLMode != "" {
			q.Set("sslmode", dc.SSLMode)
		}
		if dc.Timeout > 0 {
			q.Set("connect_timeout", strconv.Itoa(int(dc.Timeout.Seconds())))
		}
		u.RawQuery = q.Encode()
		return u.String()
	case DriverSQLite:
		return "file:" + dc.Database + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
	default:
		return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?timeout=%s&parseTime=true",
			dc.Username, dc.Password, dc.Host, dc.Port, dc.Database, dc.Timeout)
	}
}

// Name identifies the database in logs and snapshot metadata
func (dc *DatabaseConfig) Name() string {
	if dc.Database != "" {
		return dc.Database
	}
	return dc.Driver
}
