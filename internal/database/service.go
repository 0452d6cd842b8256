package database

import (
	"context"
	"database/sql"
	"time"

	"platform-snapshot/internal/errors"
	"platform-snapshot/internal/logging"

	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/jackc/pgx/v5/stdlib" // Postgres driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// DatabaseService defines the interface for database operations
type DatabaseService interface {
	Connect(ctx context.Context, config DatabaseConfig) (*sql.DB, error)
	TestConnection(ctx context.Context, db *sql.DB) error
	Close(db *sql.DB) error
	GetVersion(ctx context.Context, db *sql.DB, driver string) (string, error)
}

// Service implements the DatabaseService interface
type Service struct {
	connectionTimeout time.Duration
	maxRetries        int
	retryDelay        time.Duration
	logger            *logging.Logger
	retryHandler      *errors.RetryHandler
}

// NewService creates a new database service with default settings
func NewService() *Service {
	return NewServiceWithLogger(logging.NewDefaultLogger())
}

// NewServiceWithLogger creates a new database service with a custom logger
func NewServiceWithLogger(logger *logging.Logger) *Service {
	return &Service{
		connectionTimeout: 30 * time.Second,
		maxRetries:        3,
		retryDelay:        2 * time.Second,
		logger:            logger,
		retryHandler:      errors.NewDefaultRetryHandler(),
	}
}

// Connect opens the target database and verifies it answers, retrying
// recoverable failures. config.Timeout bounds the whole attempt.
func (s *Service) Connect(ctx context.Context, config DatabaseConfig) (*sql.DB, error) {
	startTime := time.Now()
	config.SetDefaults()

	if err := config.Validate(); err != nil {
		return nil, errors.NewValidationError("invalid target database configuration", err)
	}

	s.logger.WithFields(map[string]interface{}{
		"driver":   config.Driver,
		"host":     config.Host,
		"database": config.Database,
		"port":     config.Port,
	}).Info("Attempting database connection")

	timeout := s.connectionTimeout
	if config.Timeout > 0 {
		timeout = config.Timeout
	}
	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var db *sql.DB
	err := s.retryHandler.Retry(connectCtx, func() error {
		var connectErr error

		db, connectErr = sql.Open(config.DriverName(), config.ConnectionString())
		if connectErr != nil {
			return errors.WrapError(connectErr, "failed to open database connection")
		}

		db.SetMaxOpenConns(config.MaxOpenConns)
		db.SetMaxIdleConns(config.MaxOpenConns / 2)
		db.SetConnMaxLifetime(5 * time.Minute)

		if testErr := s.TestConnection(connectCtx, db); testErr != nil {
			db.Close()
			return testErr
		}
		return nil
	})

	s.logger.LogDatabaseConnection(config.Driver, config.Host, config.Database, err == nil, time.Since(startTime), err)

	if err != nil {
		return nil, errors.NewSetupError("cannot connect to target database", err)
	}
	return db, nil
}

// TestConnection verifies that the database connection is working
func (s *Service) TestConnection(ctx context.Context, db *sql.DB) error {
	if db == nil {
		return errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	ctx, cancel := context.WithTimeout(ctx, s.connectionTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return errors.WrapError(err, "failed to ping database")
	}

	s.logger.Debug("Database connection test successful")
	return nil
}

// Close gracefully closes the database connection
func (s *Service) Close(db *sql.DB) error {
	if db == nil {
		s.logger.Debug("Database connection is nil, nothing to close")
		return nil
	}

	s.logger.Debug("Closing database connection")
	if err := db.Close(); err != nil {
		s.logger.WithField("error", err.Error()).Error("Failed to close database connection")
		return errors.WrapError(err, "failed to close database connection")
	}

	s.logger.Debug("Database connection closed successfully")
	return nil
}

// GetVersion retrieves the server version
func (s *Service) GetVersion(ctx context.Context, db *sql.DB, driver string) (string, error) {
	if db == nil {
		return "", errors.NewAppError(errors.ErrorTypeValidation, "database connection is nil", nil)
	}

	query := "SELECT VERSION()"
	switch driver {
	case DriverPostgres:
		query = "SHOW server_version"
	case DriverSQLite:
		query = "SELECT sqlite_version()"
	}

	ctx, cancel := context.WithTimeout(ctx, s.connectionTimeout)
	defer cancel()

	var version string
	startTime := time.Now()
	err := db.QueryRowContext(ctx, query).Scan(&version)
	s.logger.LogSQLExecution(query, time.Since(startTime), 1, err)

	if err != nil {
		return "", errors.WrapError(err, "failed to get database version")
	}

	s.logger.WithField("version", version).Debug("Retrieved database version")
	return version, nil
}
