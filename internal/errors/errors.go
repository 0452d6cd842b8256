package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// ErrorType represents different categories of errors
type ErrorType string

const (
	// ErrorTypeSetup represents failures before any write (store unreachable, snapshot unreadable)
	ErrorTypeSetup ErrorType = "setup"
	// ErrorTypeConflict represents a natural-key uniqueness violation on create
	ErrorTypeConflict ErrorType = "conflict"
	// ErrorTypeRecord represents any other per-record write failure
	ErrorTypeRecord ErrorType = "record"
	// ErrorTypeKind represents a failure that aborts the remaining records of one entity kind
	ErrorTypeKind ErrorType = "kind"
	// ErrorTypeConnection represents database connection errors
	ErrorTypeConnection ErrorType = "connection"
	// ErrorTypeSQL represents SQL execution errors
	ErrorTypeSQL ErrorType = "sql"
	// ErrorTypeStorage represents snapshot storage errors
	ErrorTypeStorage ErrorType = "storage"
	// ErrorTypeValidation represents validation errors
	ErrorTypeValidation ErrorType = "validation"
	// ErrorTypePermission represents permission/access errors
	ErrorTypePermission ErrorType = "permission"
	// ErrorTypeTimeout represents timeout errors
	ErrorTypeTimeout ErrorType = "timeout"
	// ErrorTypeInterruption represents user interruption
	ErrorTypeInterruption ErrorType = "interruption"
	// ErrorTypeUnknown represents unknown errors
	ErrorTypeUnknown ErrorType = "unknown"
)

// AppError represents an application-specific error with context
type AppError struct {
	Type        ErrorType
	Message     string
	Cause       error
	Context     map[string]interface{}
	Recoverable bool
	UserMessage string
}

// Error implements the error interface
func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying error
func (e *AppError) Unwrap() error {
	return e.Cause
}

// GetUserMessage returns a user-friendly error message
func (e *AppError) GetUserMessage() string {
	if e.UserMessage != "" {
		return e.UserMessage
	}
	return e.Message
}

// IsRecoverable returns whether the error is recoverable
func (e *AppError) IsRecoverable() bool {
	return e.Recoverable
}

// WithContext adds context information to the error
func (e *AppError) WithContext(key string, value interface{}) *AppError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// NewAppError creates a new application error
func NewAppError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:        errorType,
		Message:     message,
		Cause:       cause,
		Context:     make(map[string]interface{}),
		Recoverable: false,
	}
}

// NewRecoverableError creates a new recoverable error
func NewRecoverableError(errorType ErrorType, message string, cause error) *AppError {
	return &AppError{
		Type:        errorType,
		Message:     message,
		Cause:       cause,
		Context:     make(map[string]interface{}),
		Recoverable: true,
	}
}

// NewSetupError creates a fatal error raised before any write happened
func NewSetupError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeSetup, message, cause)
}

// NewConflictError creates a natural-key uniqueness conflict error
func NewConflictError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeConflict, message, cause)
}

// NewRecordError creates a per-record write error
func NewRecordError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeRecord, message, cause)
}

// NewKindError creates an error that aborts the remaining records of a kind
func NewKindError(kind string, message string, cause error) *AppError {
	return NewAppError(ErrorTypeKind, message, cause).WithContext("kind", kind)
}

// NewStorageError creates a snapshot storage error
func NewStorageError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeStorage, message, cause)
}

// NewValidationError creates a validation error
func NewValidationError(message string, cause error) *AppError {
	return NewAppError(ErrorTypeValidation, message, cause)
}

// ErrorClassifier provides methods to classify and handle different types of errors
type ErrorClassifier struct{}

// NewErrorClassifier creates a new error classifier
func NewErrorClassifier() *ErrorClassifier {
	return &ErrorClassifier{}
}

// ClassifyError analyzes an error and returns an AppError with appropriate classification
func (ec *ErrorClassifier) ClassifyError(err error) *AppError {
	if err == nil {
		return nil
	}

	// Check if it's already an AppError
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	if mysqlErr := ec.classifyMySQLError(err); mysqlErr != nil {
		return mysqlErr
	}

	if pgErr := ec.classifyPostgresError(err); pgErr != nil {
		return pgErr
	}

	if sqliteErr := ec.classifySQLiteError(err); sqliteErr != nil {
		return sqliteErr
	}

	if sqlErr := ec.classifySQLDriverError(err); sqlErr != nil {
		return sqlErr
	}

	if netErr := ec.classifyNetworkError(err); netErr != nil {
		return netErr
	}

	if ctxErr := ec.classifyContextError(err); ctxErr != nil {
		return ctxErr
	}

	if fsErr := ec.classifyFileSystemError(err); fsErr != nil {
		return fsErr
	}

	return NewAppError(ErrorTypeUnknown, "An unexpected error occurred", err)
}

// classifyMySQLError classifies MySQL-specific errors
func (ec *ErrorClassifier) classifyMySQLError(err error) *AppError {
	var mysqlErr *mysql.MySQLError
	if !errors.As(err, &mysqlErr) {
		return nil
	}

	switch mysqlErr.Number {
	case 1062, 1586: // Duplicate entry
		return NewConflictError("Duplicate entry - record already exists", err).
			WithContext("mysql_error_code", mysqlErr.Number)
	case 1451, 1452: // Foreign key constraint fails
		return NewRecordError("Foreign key constraint violation", err).
			WithContext("mysql_error_code", mysqlErr.Number)
	case 1048, 1364, 1406, 1366: // Null, missing default, too long, bad value
		return NewRecordError("Invalid field value", err).
			WithContext("mysql_error_code", mysqlErr.Number)
	case 1045: // Access denied
		return NewAppError(ErrorTypePermission,
			"Database access denied - check username and password", err).
			WithContext("mysql_error_code", mysqlErr.Number)
	case 1049: // Unknown database
		return NewAppError(ErrorTypeValidation,
			"Database does not exist", err).
			WithContext("mysql_error_code", mysqlErr.Number)
	case 1146: // Table doesn't exist
		return NewAppError(ErrorTypeSQL,
			"Table does not exist", err).
			WithContext("mysql_error_code", mysqlErr.Number)
	case 1054: // Unknown column
		return NewRecordError("Column does not exist", err).
			WithContext("mysql_error_code", mysqlErr.Number)
	case 1064: // SQL syntax error
		return NewAppError(ErrorTypeSQL,
			"SQL syntax error", err).
			WithContext("mysql_error_code", mysqlErr.Number)
	case 2003: // Can't connect to MySQL server
		return NewRecoverableError(ErrorTypeConnection,
			"Cannot connect to MySQL server - server may be down or unreachable", err).
			WithContext("mysql_error_code", mysqlErr.Number)
	case 2006: // MySQL server has gone away
		return NewRecoverableError(ErrorTypeConnection,
			"MySQL server connection lost", err).
			WithContext("mysql_error_code", mysqlErr.Number)
	default:
		return NewAppError(ErrorTypeSQL,
			fmt.Sprintf("MySQL error: %s", mysqlErr.Message), err).
			WithContext("mysql_error_code", mysqlErr.Number)
	}
}

// classifyPostgresError classifies errors reported by a Postgres server through pgx
func (ec *ErrorClassifier) classifyPostgresError(err error) *AppError {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return nil
	}

	switch {
	case pgErr.Code == "23505": // unique_violation
		return NewConflictError("Duplicate key - record already exists", err).
			WithContext("sqlstate", pgErr.Code).
			WithContext("constraint", pgErr.ConstraintName)
	case strings.HasPrefix(pgErr.Code, "23"): // other integrity violations
		return NewRecordError("Integrity constraint violation", err).
			WithContext("sqlstate", pgErr.Code).
			WithContext("constraint", pgErr.ConstraintName)
	case strings.HasPrefix(pgErr.Code, "22"): // data exceptions
		return NewRecordError("Invalid field value", err).
			WithContext("sqlstate", pgErr.Code)
	case pgErr.Code == "42P01": // undefined_table
		return NewAppError(ErrorTypeSQL, "Table does not exist", err).
			WithContext("sqlstate", pgErr.Code)
	case pgErr.Code == "42703": // undefined_column
		return NewRecordError("Column does not exist", err).
			WithContext("sqlstate", pgErr.Code)
	case pgErr.Code == "28P01" || pgErr.Code == "42501":
		return NewAppError(ErrorTypePermission, "Database access denied", err).
			WithContext("sqlstate", pgErr.Code)
	case strings.HasPrefix(pgErr.Code, "08"): // connection exceptions
		return NewRecoverableError(ErrorTypeConnection, "Postgres connection failure", err).
			WithContext("sqlstate", pgErr.Code)
	default:
		return NewAppError(ErrorTypeSQL,
			fmt.Sprintf("Postgres error: %s", pgErr.Message), err).
			WithContext("sqlstate", pgErr.Code)
	}
}

// classifySQLiteError classifies errors raised by the embedded sqlite engine
func (ec *ErrorClassifier) classifySQLiteError(err error) *AppError {
	var liteErr *sqlite.Error
	if !errors.As(err, &liteErr) {
		return nil
	}

	code := liteErr.Code()
	// extended result codes are not always enabled; the primary code sits in the low byte
	if code&0xff == sqlite3.SQLITE_CONSTRAINT {
		msg := liteErr.Error()
		if code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY ||
			strings.Contains(msg, "UNIQUE constraint failed") {
			return NewConflictError("Duplicate key - record already exists", err).
				WithContext("sqlite_error_code", code)
		}
		return NewRecordError("Integrity constraint violation", err).
			WithContext("sqlite_error_code", code)
	}

	switch code & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return NewRecoverableError(ErrorTypeConnection, "Database is locked", err).
			WithContext("sqlite_error_code", liteErr.Code())
	default:
		return NewAppError(ErrorTypeSQL,
			fmt.Sprintf("SQLite error: %v", liteErr), err).
			WithContext("sqlite_error_code", liteErr.Code())
	}
}

// classifySQLDriverError classifies database/sql sentinel errors
func (ec *ErrorClassifier) classifySQLDriverError(err error) *AppError {
	if errors.Is(err, sql.ErrNoRows) {
		return NewAppError(ErrorTypeValidation, "No rows found", err)
	}
	if errors.Is(err, sql.ErrTxDone) {
		return NewAppError(ErrorTypeSQL, "Transaction has already been committed or rolled back", err)
	}
	if errors.Is(err, sql.ErrConnDone) {
		return NewRecoverableError(ErrorTypeConnection, "Database connection is closed", err)
	}
	return nil
}

// classifyNetworkError classifies network-related errors
func (ec *ErrorClassifier) classifyNetworkError(err error) *AppError {
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		switch opErr.Op {
		case "dial":
			return NewRecoverableError(ErrorTypeConnection,
				"Failed to establish network connection", err)
		case "read", "write":
			return NewRecoverableError(ErrorTypeConnection,
				"Network I/O error", err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return NewRecoverableError(ErrorTypeTimeout,
			"Network operation timed out", err)
	}

	return nil
}

// classifyContextError classifies context-related errors
func (ec *ErrorClassifier) classifyContextError(err error) *AppError {
	if errors.Is(err, context.DeadlineExceeded) {
		return NewRecoverableError(ErrorTypeTimeout,
			"Operation timed out", err)
	}
	if errors.Is(err, context.Canceled) {
		return NewAppError(ErrorTypeInterruption,
			"Operation was canceled", err)
	}

	return nil
}

// classifyFileSystemError classifies file system errors
func (ec *ErrorClassifier) classifyFileSystemError(err error) *AppError {
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		switch pathErr.Err {
		case syscall.ENOENT:
			return NewAppError(ErrorTypeValidation,
				fmt.Sprintf("File or directory not found: %s", pathErr.Path), err)
		case syscall.EACCES:
			return NewAppError(ErrorTypePermission,
				fmt.Sprintf("Permission denied: %s", pathErr.Path), err)
		case syscall.ENOSPC:
			return NewAppError(ErrorTypeStorage,
				"No space left on device", err)
		}
	}

	return nil
}

// RetryConfig holds configuration for retry operations
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns a default retry configuration
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   1 * time.Second,
		MaxDelay:    30 * time.Second,
		Multiplier:  2.0,
	}
}

// RetryHandler provides retry functionality for operations
type RetryHandler struct {
	config     RetryConfig
	classifier *ErrorClassifier
}

// NewRetryHandler creates a new retry handler
func NewRetryHandler(config RetryConfig) *RetryHandler {
	return &RetryHandler{
		config:     config,
		classifier: NewErrorClassifier(),
	}
}

// NewDefaultRetryHandler creates a retry handler with default configuration
func NewDefaultRetryHandler() *RetryHandler {
	return NewRetryHandler(DefaultRetryConfig())
}

// Retry executes a function with retry logic for recoverable errors
func (rh *RetryHandler) Retry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 1; attempt <= rh.config.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return NewAppError(ErrorTypeInterruption, "Operation canceled", ctx.Err())
		default:
		}

		err := operation()
		if err == nil {
			return nil
		}

		lastErr = err
		appErr := rh.classifier.ClassifyError(err)

		if !appErr.IsRecoverable() {
			return appErr
		}

		if attempt == rh.config.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return NewAppError(ErrorTypeInterruption, "Operation canceled during retry", ctx.Err())
		case <-time.After(rh.calculateDelay(attempt)):
		}
	}

	return rh.classifier.ClassifyError(lastErr).
		WithContext("attempts", rh.config.MaxAttempts)
}

// calculateDelay calculates the delay for a given attempt using exponential backoff
func (rh *RetryHandler) calculateDelay(attempt int) time.Duration {
	multiplier := 1.0
	for i := 1; i < attempt; i++ {
		multiplier *= rh.config.Multiplier
	}

	delay := time.Duration(float64(rh.config.BaseDelay) * multiplier)

	if delay > rh.config.MaxDelay {
		delay = rh.config.MaxDelay
	}

	return delay
}

// GracefulShutdownHandler cancels the command context on SIGINT/SIGTERM and runs
// registered cleanup functions in reverse registration order.
type GracefulShutdownHandler struct {
	mu            sync.Mutex
	shutdownFuncs []func() error
	signalChan    chan os.Signal
	cancel        context.CancelFunc
	once          sync.Once
}

// NewGracefulShutdownHandler creates a new graceful shutdown handler
func NewGracefulShutdownHandler() *GracefulShutdownHandler {
	return &GracefulShutdownHandler{
		shutdownFuncs: make([]func() error, 0),
		signalChan:    make(chan os.Signal, 1),
	}
}

// RegisterShutdownFunc registers a function to be called during shutdown
func (gsh *GracefulShutdownHandler) RegisterShutdownFunc(fn func() error) {
	gsh.mu.Lock()
	defer gsh.mu.Unlock()
	gsh.shutdownFuncs = append(gsh.shutdownFuncs, fn)
}

// Start listens for shutdown signals and returns a context canceled when one arrives.
func (gsh *GracefulShutdownHandler) Start(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	gsh.cancel = cancel
	signal.Notify(gsh.signalChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		select {
		case _, ok := <-gsh.signalChan:
			if ok {
				cancel()
			}
		case <-ctx.Done():
		}
	}()

	return ctx
}

// Stop stops signal delivery and runs the registered shutdown functions once.
func (gsh *GracefulShutdownHandler) Stop() error {
	var errs []error
	gsh.once.Do(func() {
		signal.Stop(gsh.signalChan)
		if gsh.cancel != nil {
			gsh.cancel()
		}
		errs = gsh.shutdown()
	})
	return errors.Join(errs...)
}

// shutdown executes all registered shutdown functions
func (gsh *GracefulShutdownHandler) shutdown() []error {
	gsh.mu.Lock()
	funcs := gsh.shutdownFuncs
	gsh.shutdownFuncs = nil
	gsh.mu.Unlock()

	var errs []error
	for i := len(funcs) - 1; i >= 0; i-- {
		if err := funcs[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// GetErrorType returns the error type of an error
func GetErrorType(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ErrorTypeUnknown
}

// IsConflict reports whether err is a natural-key uniqueness conflict
func IsConflict(err error) bool {
	if err == nil {
		return false
	}
	return NewErrorClassifier().ClassifyError(err).Type == ErrorTypeConflict
}

// IsFatalForKind reports whether err means the store can no longer serve the current kind
func IsFatalForKind(err error) bool {
	if err == nil {
		return false
	}
	switch NewErrorClassifier().ClassifyError(err).Type {
	case ErrorTypeConnection, ErrorTypeTimeout, ErrorTypeInterruption, ErrorTypeKind:
		return true
	default:
		return false
	}
}

// WrapError wraps an existing error with additional context
func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}

	classifier := NewErrorClassifier()
	classified := classifier.ClassifyError(err)

	wrapped := &AppError{
		Type:        classified.Type,
		Message:     message,
		Cause:       err,
		Context:     make(map[string]interface{}),
		Recoverable: classified.Recoverable,
	}
	for k, v := range classified.Context {
		wrapped.Context[k] = v
	}
	return wrapped
}
