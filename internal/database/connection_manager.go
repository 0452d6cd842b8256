package database

import (
	"context"
	"database/sql"
	"fmt"
)

// ConnectionManager owns the single target connection of a command
type ConnectionManager struct {
	service  DatabaseService
	config   DatabaseConfig
	targetDB *sql.DB
}

// NewConnectionManager creates a new connection manager
func NewConnectionManager() *ConnectionManager {
	return &ConnectionManager{service: NewService()}
}

// NewConnectionManagerWithService creates a new connection manager with a custom service
func NewConnectionManagerWithService(service DatabaseService) *ConnectionManager {
	return &ConnectionManager{service: service}
}

// ConnectToTarget establishes connection to the target database, replacing any previous one
func (cm *ConnectionManager) ConnectToTarget(ctx context.Context, config DatabaseConfig) error {
	if cm.targetDB != nil {
		cm.service.Close(cm.targetDB)
		cm.targetDB = nil
	}

	db, err := cm.service.Connect(ctx, config)
	if err != nil {
		return fmt.Errorf("failed to connect to target database: %w", err)
	}

	config.SetDefaults()
	cm.config = config
	cm.targetDB = db
	return nil
}

// GetTargetDB returns the target database connection
func (cm *ConnectionManager) GetTargetDB() *sql.DB {
	return cm.targetDB
}

// TargetConfig returns the configuration of the open connection
func (cm *ConnectionManager) TargetConfig() DatabaseConfig {
	return cm.config
}

// TestConnection pings the target database
func (cm *ConnectionManager) TestConnection(ctx context.Context) error {
	if cm.targetDB == nil {
		return fmt.Errorf("target database connection is not established")
	}
	if err := cm.service.TestConnection(ctx, cm.targetDB); err != nil {
		return fmt.Errorf("target database connection test failed: %w", err)
	}
	return nil
}

// GetVersion returns the target server version
func (cm *ConnectionManager) GetVersion(ctx context.Context) (string, error) {
	if cm.targetDB == nil {
		return "", fmt.Errorf("target database connection is not established")
	}
	return cm.service.GetVersion(ctx, cm.targetDB, cm.config.Driver)
}

// Close gracefully closes the target connection
func (cm *ConnectionManager) Close() error {
	if cm.targetDB == nil {
		return nil
	}
	err := cm.service.Close(cm.targetDB)
	cm.targetDB = nil
	if err != nil {
		return fmt.Errorf("failed to close target database: %w", err)
	}
	return nil
}
