package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	apperrors "platform-snapshot/internal/errors"
	"platform-snapshot/internal/logging"
)

func sqliteConfig(t *testing.T) DatabaseConfig {
	t.Helper()
	return DatabaseConfig{
		Driver:   DriverSQLite,
		Database: filepath.Join(t.TempDir(), "platform.db"),
		Timeout:  5 * time.Second,
	}
}

func TestNewService(t *testing.T) {
	service := NewService()
	if service == nil {
		t.Fatal("Expected service to be created")
	}
	if service.connectionTimeout != 30*time.Second {
		t.Errorf("Expected default timeout to be 30s, got %v", service.connectionTimeout)
	}
	if service.maxRetries != 3 {
		t.Errorf("Expected default max retries to be 3, got %d", service.maxRetries)
	}
}

func TestNewServiceWithLogger(t *testing.T) {
	logger := logging.NewNopLogger()
	service := NewServiceWithLogger(logger)
	if service.logger != logger {
		t.Error("Expected custom logger to be set")
	}
}

func TestConnect_SQLite(t *testing.T) {
	service := NewServiceWithLogger(logging.NewNopLogger())
	ctx := context.Background()

	db, err := service.Connect(ctx, sqliteConfig(t))
	if err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer service.Close(db)

	if err := service.TestConnection(ctx, db); err != nil {
		t.Errorf("TestConnection() error = %v", err)
	}

	version, err := service.GetVersion(ctx, db, DriverSQLite)
	if err != nil {
		t.Fatalf("GetVersion() error = %v", err)
	}
	if version == "" {
		t.Error("Expected a sqlite version")
	}

	var fk int
	if err := db.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&fk); err != nil {
		t.Fatalf("PRAGMA foreign_keys: %v", err)
	}
	if fk != 1 {
		t.Errorf("Expected foreign keys enabled on new connections, got %d", fk)
	}
}

func TestConnect_EmptyConfig(t *testing.T) {
	service := NewServiceWithLogger(logging.NewNopLogger())

	_, err := service.Connect(context.Background(), DatabaseConfig{})
	if err == nil {
		t.Fatal("Expected error for empty config")
	}
	if apperrors.GetErrorType(err) != apperrors.ErrorTypeValidation {
		t.Errorf("Expected validation error, got %v", apperrors.GetErrorType(err))
	}
}

func TestConnect_UnreachableSQLiteDirectory(t *testing.T) {
	service := NewServiceWithLogger(logging.NewNopLogger())
	config := DatabaseConfig{
		Driver:   DriverSQLite,
		Database: filepath.Join(t.TempDir(), "missing", "dir", "platform.db"),
		Timeout:  5 * time.Second,
	}

	_, err := service.Connect(context.Background(), config)
	if err == nil {
		t.Fatal("Expected error for unreachable database file")
	}
	if apperrors.GetErrorType(err) != apperrors.ErrorTypeSetup {
		t.Errorf("Expected setup error, got %v", apperrors.GetErrorType(err))
	}
}

func TestTestConnection_NilDB(t *testing.T) {
	service := NewServiceWithLogger(logging.NewNopLogger())

	if err := service.TestConnection(context.Background(), nil); err == nil {
		t.Error("Expected error for nil database connection")
	}
}

func TestClose_NilDB(t *testing.T) {
	service := NewServiceWithLogger(logging.NewNopLogger())

	if err := service.Close(nil); err != nil {
		t.Errorf("Expected no error for closing nil connection, got %v", err)
	}
}

func TestGetVersion_NilDB(t *testing.T) {
	service := NewServiceWithLogger(logging.NewNopLogger())

	if _, err := service.GetVersion(context.Background(), nil, DriverMySQL); err == nil {
		t.Error("Expected error for nil database connection")
	}
}

func TestConnectionManager(t *testing.T) {
	ctx := context.Background()
	cm := NewConnectionManagerWithService(NewServiceWithLogger(logging.NewNopLogger()))

	if err := cm.TestConnection(ctx); err == nil {
		t.Error("Expected error before connecting")
	}
	if err := cm.Close(); err != nil {
		t.Errorf("Expected closing an unopened manager to succeed, got %v", err)
	}

	config := sqliteConfig(t)
	if err := cm.ConnectToTarget(ctx, config); err != nil {
		t.Fatalf("ConnectToTarget() error = %v", err)
	}
	if cm.GetTargetDB() == nil {
		t.Fatal("Expected target connection")
	}
	if cm.TargetConfig().Driver != DriverSQLite {
		t.Errorf("Expected sqlite target config, got %q", cm.TargetConfig().Driver)
	}
	if err := cm.TestConnection(ctx); err != nil {
		t.Errorf("TestConnection() error = %v", err)
	}
	if _, err := cm.GetVersion(ctx); err != nil {
		t.Errorf("GetVersion() error = %v", err)
	}

	if err := cm.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
	if cm.GetTargetDB() != nil {
		t.Error("Expected connection to be cleared after Close")
	}
}
