package database

import (
	"strings"
	"testing"
	"time"
)

func TestDatabaseConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  DatabaseConfig
		wantErr bool
	}{
		{
			name: "valid mysql config",
			config: DatabaseConfig{
				Driver:   DriverMySQL,
				Host:     "localhost",
				Port:     3306,
				Username: "root",
				Password: "password",
				Database: "platform",
				Timeout:  30 * time.Second,
			},
		},
		{
			name: "valid postgres config",
			config: DatabaseConfig{
				Driver:   DriverPostgres,
				Host:     "localhost",
				Port:     5432,
				Username: "postgres",
				Database: "platform",
			},
		},
		{
			name:   "valid sqlite config",
			config: DatabaseConfig{Driver: DriverSQLite, Database: "/tmp/platform.db"},
		},
		{
			name:   "explicit dsn skips host checks",
			config: DatabaseConfig{Driver: DriverPostgres, DSN: "postgres://u:p@db/platform"},
		},
		{
			name:    "unknown driver",
			config:  DatabaseConfig{Driver: "oracle", Host: "localhost", Port: 1521, Username: "u", Database: "d"},
			wantErr: true,
		},
		{
			name:    "missing host",
			config:  DatabaseConfig{Driver: DriverMySQL, Port: 3306, Username: "root", Database: "platform"},
			wantErr: true,
		},
		{
			name:    "invalid port",
			config:  DatabaseConfig{Driver: DriverMySQL, Host: "localhost", Username: "root", Database: "platform"},
			wantErr: true,
		},
		{
			name:    "missing username",
			config:  DatabaseConfig{Driver: DriverMySQL, Host: "localhost", Port: 3306, Database: "platform"},
			wantErr: true,
		},
		{
			name:    "sqlite without path",
			config:  DatabaseConfig{Driver: DriverSQLite},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestDatabaseConfig_SetDefaults(t *testing.T) {
	mysql := DatabaseConfig{}
	mysql.SetDefaults()
	if mysql.Driver != DriverMySQL || mysql.Port != 3306 {
		t.Errorf("Expected mysql on 3306, got %s on %d", mysql.Driver, mysql.Port)
	}
	if mysql.Timeout != 30*time.Second {
		t.Errorf("Expected 30s timeout, got %v", mysql.Timeout)
	}

	pg := DatabaseConfig{Driver: DriverPostgres}
	pg.SetDefaults()
	if pg.Port != 5432 || pg.SSLMode != "disable" {
		t.Errorf("Expected postgres defaults, got port %d sslmode %q", pg.Port, pg.SSLMode)
	}

	lite := DatabaseConfig{Driver: DriverSQLite}
	lite.SetDefaults()
	if lite.Port != 0 {
		t.Errorf("Expected no port for sqlite, got %d", lite.Port)
	}
}

func TestDatabaseConfig_ConnectionString(t *testing.T) {
	tests := []struct {
		name   string
		config DatabaseConfig
		want   string
	}{
		{
			name: "mysql",
			config: DatabaseConfig{
				Driver: DriverMySQL, Host: "db", Port: 3306, Username: "root", Password: "pw",
				Database: "platform", Timeout: 10 * time.Second,
			},
			want: "root:pw@tcp(db:3306)/platform?timeout=10s&parseTime=true",
		},
		{
			name: "postgres",
			config: DatabaseConfig{
				Driver: DriverPostgres, Host: "db", Port: 5432, Username: "admin", Password: "p@ss",
				Database: "platform", SSLMode: "disable", Timeout: 10 * time.Second,
			},
			want: "postgres://admin:p%40ss@db:5432/platform?connect_timeout=10&sslmode=disable",
		},
		{
			name:   "sqlite",
			config: DatabaseConfig{Driver: DriverSQLite, Database: "/data/platform.db"},
			want:   "file:/data/platform.db?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)",
		},
		{
			name:   "explicit dsn",
			config: DatabaseConfig{Driver: DriverMySQL, DSN: "u:p@tcp(x:1)/y", Host: "ignored"},
			want:   "u:p@tcp(x:1)/y",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.ConnectionString(); got != tt.want {
				t.Errorf("ConnectionString() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestDatabaseConfig_DriverName(t *testing.T) {
	cases := map[string]string{
		DriverMySQL:    "mysql",
		DriverPostgres: "pgx",
		DriverSQLite:   "sqlite",
	}
	for driver, want := range cases {
		dc := DatabaseConfig{Driver: driver}
		if got := dc.DriverName(); got != want {
			t.Errorf("DriverName(%s) = %s, want %s", driver, got, want)
		}
	}
}

func TestDatabaseConfig_ValidateListsEveryProblem(t *testing.T) {
	dc := DatabaseConfig{Driver: DriverMySQL}
	err := dc.Validate()
	if err == nil {
		t.Fatal("Expected validation error")
	}
	for _, want := range []string{"host", "port", "username", "database name"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("Expected %q in %v", want, err)
		}
	}
}
