package errors

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

func TestAppError(t *testing.T) {
	cause := errors.New("underlying error")
	appErr := NewAppError(ErrorTypeConnection, "connection failed", cause)

	if appErr.Type != ErrorTypeConnection {
		t.Errorf("Expected type %v, got %v", ErrorTypeConnection, appErr.Type)
	}

	if appErr.Cause != cause {
		t.Errorf("Expected cause %v, got %v", cause, appErr.Cause)
	}

	if appErr.IsRecoverable() {
		t.Error("Expected non-recoverable error")
	}

	expectedError := "connection: connection failed (caused by: underlying error)"
	if appErr.Error() != expectedError {
		t.Errorf("Expected error string %v, got %v", expectedError, appErr.Error())
	}

	if !errors.Is(appErr, cause) {
		t.Error("Expected AppError to unwrap to its cause")
	}
}

func TestAppErrorWithContext(t *testing.T) {
	appErr := NewAppError(ErrorTypeSQL, "query failed", nil)
	appErr.WithContext("table", "users").WithContext("query_id", 123)

	if appErr.Context["table"] != "users" {
		t.Errorf("Expected context table=users, got %v", appErr.Context["table"])
	}

	if appErr.Context["query_id"] != 123 {
		t.Errorf("Expected context query_id=123, got %v", appErr.Context["query_id"])
	}
}

func TestNewKindError(t *testing.T) {
	appErr := NewKindError("users", "table missing", nil)

	if appErr.Type != ErrorTypeKind {
		t.Errorf("Expected type %v, got %v", ErrorTypeKind, appErr.Type)
	}
	if appErr.Context["kind"] != "users" {
		t.Errorf("Expected kind context, got %v", appErr.Context["kind"])
	}
}

func TestErrorClassifier_ClassifyMySQLError(t *testing.T) {
	classifier := NewErrorClassifier()

	tests := []struct {
		name         string
		mysqlErr     *mysql.MySQLError
		expectedType ErrorType
		recoverable  bool
	}{
		{
			name:         "duplicate entry",
			mysqlErr:     &mysql.MySQLError{Number: 1062, Message: "Duplicate entry 'a@b.c' for key 'users.email'"},
			expectedType: ErrorTypeConflict,
		},
		{
			name:         "foreign key fails",
			mysqlErr:     &mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"},
			expectedType: ErrorTypeRecord,
		},
		{
			name:         "column cannot be null",
			mysqlErr:     &mysql.MySQLError{Number: 1048, Message: "Column 'name' cannot be null"},
			expectedType: ErrorTypeRecord,
		},
		{
			name:         "access denied",
			mysqlErr:     &mysql.MySQLError{Number: 1045, Message: "Access denied"},
			expectedType: ErrorTypePermission,
		},
		{
			name:         "table doesn't exist",
			mysqlErr:     &mysql.MySQLError{Number: 1146, Message: "Table doesn't exist"},
			expectedType: ErrorTypeSQL,
		},
		{
			name:         "can't connect to server",
			mysqlErr:     &mysql.MySQLError{Number: 2003, Message: "Can't connect to MySQL server"},
			expectedType: ErrorTypeConnection,
			recoverable:  true,
		},
		{
			name:         "server has gone away",
			mysqlErr:     &mysql.MySQLError{Number: 2006, Message: "MySQL server has gone away"},
			expectedType: ErrorTypeConnection,
			recoverable:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := classifier.ClassifyError(tt.mysqlErr)

			if appErr.Type != tt.expectedType {
				t.Errorf("Expected type %v, got %v", tt.expectedType, appErr.Type)
			}

			if appErr.IsRecoverable() != tt.recoverable {
				t.Errorf("Expected recoverable=%v, got %v", tt.recoverable, appErr.IsRecoverable())
			}

			if appErr.Context["mysql_error_code"] != tt.mysqlErr.Number {
				t.Errorf("Expected mysql_error_code=%v, got %v", tt.mysqlErr.Number, appErr.Context["mysql_error_code"])
			}
		})
	}
}

func TestErrorClassifier_ClassifyPostgresError(t *testing.T) {
	classifier := NewErrorClassifier()

	tests := []struct {
		code         string
		expectedType ErrorType
	}{
		{"23505", ErrorTypeConflict},
		{"23503", ErrorTypeRecord},
		{"23502", ErrorTypeRecord},
		{"22P02", ErrorTypeRecord},
		{"42P01", ErrorTypeSQL},
		{"08006", ErrorTypeConnection},
		{"28P01", ErrorTypePermission},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			wrapped := fmt.Errorf("insert users: %w", &pgconn.PgError{Code: tt.code, Message: "boom"})
			appErr := classifier.ClassifyError(wrapped)

			if appErr.Type != tt.expectedType {
				t.Errorf("Expected type %v, got %v", tt.expectedType, appErr.Type)
			}
			if appErr.Context["sqlstate"] != tt.code {
				t.Errorf("Expected sqlstate=%v, got %v", tt.code, appErr.Context["sqlstate"])
			}
		})
	}
}

func TestErrorClassifier_ClassifySQLError(t *testing.T) {
	classifier := NewErrorClassifier()

	tests := []struct {
		name         string
		err          error
		expectedType ErrorType
		recoverable  bool
	}{
		{"no rows", sql.ErrNoRows, ErrorTypeValidation, false},
		{"tx done", sql.ErrTxDone, ErrorTypeSQL, false},
		{"conn done", sql.ErrConnDone, ErrorTypeConnection, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			appErr := classifier.ClassifyError(tt.err)
			if appErr.Type != tt.expectedType {
				t.Errorf("Expected type %v, got %v", tt.expectedType, appErr.Type)
			}
			if appErr.IsRecoverable() != tt.recoverable {
				t.Errorf("Expected recoverable=%v, got %v", tt.recoverable, appErr.IsRecoverable())
			}
		})
	}
}

func TestErrorClassifier_ClassifyContextError(t *testing.T) {
	classifier := NewErrorClassifier()

	appErr := classifier.ClassifyError(context.DeadlineExceeded)
	if appErr.Type != ErrorTypeTimeout || !appErr.IsRecoverable() {
		t.Errorf("Expected recoverable timeout, got %v", appErr)
	}

	appErr = classifier.ClassifyError(context.Canceled)
	if appErr.Type != ErrorTypeInterruption || appErr.IsRecoverable() {
		t.Errorf("Expected non-recoverable interruption, got %v", appErr)
	}
}

func TestErrorClassifier_ClassifyFileSystemError(t *testing.T) {
	classifier := NewErrorClassifier()

	notFound := &os.PathError{Op: "open", Path: "/backups/missing.json", Err: syscall.ENOENT}
	appErr := classifier.ClassifyError(notFound)
	if appErr.Type != ErrorTypeValidation {
		t.Errorf("Expected validation error for missing file, got %v", appErr.Type)
	}

	denied := &os.PathError{Op: "open", Path: "/backups/locked.json", Err: syscall.EACCES}
	appErr = classifier.ClassifyError(denied)
	if appErr.Type != ErrorTypePermission {
		t.Errorf("Expected permission error, got %v", appErr.Type)
	}
}

func TestErrorClassifier_Unknown(t *testing.T) {
	appErr := NewErrorClassifier().ClassifyError(errors.New("mystery"))
	if appErr.Type != ErrorTypeUnknown {
		t.Errorf("Expected unknown error type, got %v", appErr.Type)
	}

	if NewErrorClassifier().ClassifyError(nil) != nil {
		t.Error("Expected nil classification for nil error")
	}
}

func TestIsConflict(t *testing.T) {
	if !IsConflict(&mysql.MySQLError{Number: 1062}) {
		t.Error("Expected MySQL duplicate entry to be a conflict")
	}
	if !IsConflict(fmt.Errorf("create: %w", NewConflictError("dup", nil))) {
		t.Error("Expected wrapped conflict error to be a conflict")
	}
	if IsConflict(&mysql.MySQLError{Number: 1452}) {
		t.Error("Expected foreign key failure not to be a conflict")
	}
	if IsConflict(nil) {
		t.Error("Expected nil not to be a conflict")
	}
}

func TestIsFatalForKind(t *testing.T) {
	if !IsFatalForKind(&mysql.MySQLError{Number: 2006}) {
		t.Error("Expected lost connection to abort the kind")
	}
	if !IsFatalForKind(context.Canceled) {
		t.Error("Expected cancellation to abort the kind")
	}
	if IsFatalForKind(NewRecordError("bad value", nil)) {
		t.Error("Expected record error not to abort the kind")
	}
}

func TestRetryHandler_Retry(t *testing.T) {
	config := RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   10 * time.Millisecond,
		MaxDelay:    100 * time.Millisecond,
		Multiplier:  2.0,
	}
	handler := NewRetryHandler(config)

	t.Run("success after retries", func(t *testing.T) {
		attempts := 0
		err := handler.Retry(context.Background(), func() error {
			attempts++
			if attempts < 3 {
				return NewRecoverableError(ErrorTypeConnection, "temporary failure", nil)
			}
			return nil
		})

		if err != nil {
			t.Errorf("Expected no error, got %v", err)
		}
		if attempts != 3 {
			t.Errorf("Expected 3 attempts, got %d", attempts)
		}
	})

	t.Run("non-recoverable error", func(t *testing.T) {
		attempts := 0
		err := handler.Retry(context.Background(), func() error {
			attempts++
			return NewSetupError("snapshot unreadable", nil)
		})

		if attempts != 1 {
			t.Errorf("Expected 1 attempt, got %d", attempts)
		}
		if GetErrorType(err) != ErrorTypeSetup {
			t.Errorf("Expected setup error, got %v", err)
		}
	})

	t.Run("max attempts exceeded", func(t *testing.T) {
		attempts := 0
		err := handler.Retry(context.Background(), func() error {
			attempts++
			return NewRecoverableError(ErrorTypeConnection, "always fails", nil)
		})

		if err == nil {
			t.Error("Expected error, got nil")
		}
		if attempts != config.MaxAttempts {
			t.Errorf("Expected %d attempts, got %d", config.MaxAttempts, attempts)
		}
	})

	t.Run("context canceled", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := handler.Retry(ctx, func() error {
			return NewRecoverableError(ErrorTypeConnection, "temporary failure", nil)
		})

		if GetErrorType(err) != ErrorTypeInterruption {
			t.Errorf("Expected interruption error, got %v", err)
		}
	})
}

func TestRetryHandler_CalculateDelay(t *testing.T) {
	handler := NewRetryHandler(RetryConfig{
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   1 * time.Second,
		Multiplier: 2.0,
	})

	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 100 * time.Millisecond},
		{2, 200 * time.Millisecond},
		{3, 400 * time.Millisecond},
		{5, 1 * time.Second},
	}

	for _, tt := range tests {
		if got := handler.calculateDelay(tt.attempt); got != tt.expected {
			t.Errorf("attempt %d: expected %v, got %v", tt.attempt, tt.expected, got)
		}
	}
}

func TestGracefulShutdownHandler(t *testing.T) {
	handler := NewGracefulShutdownHandler()

	var order []int
	handler.RegisterShutdownFunc(func() error { order = append(order, 1); return nil })
	handler.RegisterShutdownFunc(func() error { order = append(order, 2); return errors.New("close failed") })

	ctx := handler.Start(context.Background())
	err := handler.Stop()

	if err == nil || err.Error() != "close failed" {
		t.Errorf("Expected shutdown error to be reported, got %v", err)
	}
	if len(order) != 2 || order[0] != 2 || order[1] != 1 {
		t.Errorf("Expected reverse registration order, got %v", order)
	}

	select {
	case <-ctx.Done():
	default:
		t.Error("Expected context to be canceled after Stop")
	}

	if err := handler.Stop(); err != nil {
		t.Errorf("Expected second Stop to be a no-op, got %v", err)
	}
}

func TestWrapError(t *testing.T) {
	if WrapError(nil, "ignored") != nil {
		t.Error("Expected nil for nil error")
	}

	wrapped := WrapError(&mysql.MySQLError{Number: 1062, Message: "dup"}, "failed to insert users row")

	var appErr *AppError
	if !errors.As(wrapped, &appErr) {
		t.Fatalf("Expected AppError, got %T", wrapped)
	}
	if appErr.Type != ErrorTypeConflict {
		t.Errorf("Expected conflict type to survive wrapping, got %v", appErr.Type)
	}
	if appErr.Message != "failed to insert users row" {
		t.Errorf("Expected wrapped message, got %q", appErr.Message)
	}
	if appErr.Context["mysql_error_code"] != uint16(1062) {
		t.Errorf("Expected mysql_error_code context to be copied, got %v", appErr.Context["mysql_error_code"])
	}
}
