package store

import (
	"fmt"
	"strings"
)

// Supported target drivers
const (
	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Dialect holds the SQL differences between target engines
type Dialect struct {
	Name string

	quote       func(ident string) string
	placeholder func(n int) string
	returning   bool
	tableExists string

	// restore session behaviour
	transactional    bool
	savepoints       bool
	beforeBegin      []string
	afterBegin       []string
	afterEnd         []string
	truncate         func(tables []string) []string
	// identity counters kept outside the table, cleared after truncate
	sequenceTable    string
	sequenceReset    string
	// identitySequence finds the sequence behind a column, NULL when the
	// column is not serial or identity
	identitySequence string
	// syncIdentity moves a sequence past ids inserted explicitly; empty when
	// the engine does that on its own
	syncIdentity     func(table, column string) string
}

// DialectFor returns the dialect of driver
func DialectFor(driver string) (Dialect, error) {
	switch driver {
	case DriverMySQL:
		return mysqlDialect(), nil
	case DriverPostgres:
		return postgresDialect(), nil
	case DriverSQLite:
		return sqliteDialect(), nil
	default:
		return Dialect{}, fmt.Errorf("unsupported driver %q", driver)
	}
}

func mysqlDialect() Dialect {
	d := Dialect{
		Name:        DriverMySQL,
		quote:       func(s string) string { return "`" + strings.ReplaceAll(s, "`", "``") + "`" },
		placeholder: func(int) string { return "?" },
		tableExists: "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?",
		// TRUNCATE commits implicitly, so restore runs on a plain connection
		beforeBegin: []string{"SET FOREIGN_KEY_CHECKS = 0"},
		afterEnd:    []string{"SET FOREIGN_KEY_CHECKS = 1"},
	}
	d.truncate = func(tables []string) []string {
		stmts := make([]string, len(tables))
		for i, t := range tables {
			stmts[i] = "TRUNCATE TABLE " + d.quote(t)
		}
		return stmts
	}
	return d
}

func postgresDialect() Dialect {
	d := Dialect{
		Name:             DriverPostgres,
		quote:            doubleQuote,
		placeholder:      func(n int) string { return fmt.Sprintf("$%d", n) },
		returning:        true,
		tableExists:      "SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = current_schema() AND table_name = $1",
		transactional:    true,
		savepoints:       true,
		afterBegin:       []string{"SET LOCAL session_replication_role = replica"},
		identitySequence: "SELECT pg_get_serial_sequence($1, $2)",
	}
	// TRUNCATE refuses referenced tables without CASCADE, which would also
	// empty tables outside the snapshot. Replica role skips FK triggers on DELETE.
	d.truncate = func(tables []string) []string {
		stmts := make([]string, len(tables))
		for i, t := range tables {
			stmts[i] = "DELETE FROM " + d.quote(t)
		}
		return stmts
	}
	d.syncIdentity = func(table, column string) string {
		return fmt.Sprintf("SELECT setval($1, COALESCE(MAX(%s), 0) + 1, false) FROM %s",
			d.quote(column), d.quote(table))
	}
	return d
}

func sqliteDialect() Dialect {
	d := Dialect{
		Name:          DriverSQLite,
		quote:         doubleQuote,
		placeholder:   func(int) string { return "?" },
		tableExists:   "SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?",
		transactional: true,
		// foreign_keys cannot change inside a transaction
		beforeBegin:   []string{"PRAGMA foreign_keys = OFF"},
		afterEnd:      []string{"PRAGMA foreign_keys = ON"},
		sequenceTable: "sqlite_sequence",
		sequenceReset: "DELETE FROM sqlite_sequence WHERE name = ?",
	}
	d.truncate = func(tables []string) []string {
		stmts := make([]string, len(tables))
		for i, t := range tables {
			stmts[i] = "DELETE FROM " + d.quote(t)
		}
		return stmts
	}
	return d
}

func doubleQuote(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

// Quote quotes an identifier
func (d Dialect) Quote(ident string) string {
	return d.quote(ident)
}

func (d Dialect) placeholders(from, n int) string {
	ph := make([]string, n)
	for i := range ph {
		ph[i] = d.placeholder(from + i)
	}
	return strings.Join(ph, ", ")
}

func (d Dialect) quoteAll(idents []string) string {
	q := make([]string, len(idents))
	for i, s := range idents {
		q[i] = d.quote(s)
	}
	return strings.Join(q, ", ")
}

func (d Dialect) insertSQL(table string, columns []string) string {
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		d.quote(table), d.quoteAll(columns), d.placeholders(1, len(columns)))
}

// where renders "a = ? AND b = ?" starting at placeholder from
func (d Dialect) where(columns []string, from int) string {
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("%s = %s", d.quote(c), d.placeholder(from+i))
	}
	return strings.Join(parts, " AND ")
}
