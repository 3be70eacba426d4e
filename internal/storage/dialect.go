// internal/storage/dialect.go
package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Backend names a supported SQL backend.
type Backend string

const (
	BackendSQLite   Backend = "sqlite"
	BackendPostgres Backend = "postgres"
	BackendMySQL    Backend = "mysql"
)

// Capabilities reports which optional behaviors the active backend
// provides. Callers branch on the flags instead of probing for errors.
type Capabilities struct {
	FullTextSearch bool `json:"full_text_search"`
	AuditTrail     bool `json:"audit_trail"`
}

// dialect abstracts the SQL differences between backends: placeholder
// style, upsert syntax, column types, and which optional schema objects
// exist.
type dialect interface {
	Name() Backend
	DriverName() string
	// Rebind rewrites ?-style placeholders into the backend's form.
	Rebind(query string) string
	// UpsertSuffix returns the conflict clause appended to an INSERT.
	// conflictCols name the unique key, updateCols the columns refreshed
	// on conflict.
	UpsertSuffix(conflictCols, updateCols []string) string
	// InsertIgnore rewrites an INSERT so a key conflict affects zero rows
	// instead of failing. Rows-affected then distinguishes create from
	// conflict.
	InsertIgnore(insert string, conflictCols []string) string
	JSONType() string
	TimeType() string
	Capabilities() Capabilities
}

type sqliteDialect struct{}

func (sqliteDialect) Name() Backend           { return BackendSQLite }
func (sqliteDialect) DriverName() string      { return "sqlite3" }
func (sqliteDialect) Rebind(q string) string  { return q }
func (sqliteDialect) JSONType() string        { return "TEXT" }
func (sqliteDialect) TimeType() string        { return "DATETIME" }
func (sqliteDialect) Capabilities() Capabilities {
	return Capabilities{FullTextSearch: true}
}

func (sqliteDialect) UpsertSuffix(conflictCols, updateCols []string) string {
	return onConflictDoUpdate(conflictCols, updateCols)
}

func (sqliteDialect) InsertIgnore(insert string, conflictCols []string) string {
	return onConflictDoNothing(insert, conflictCols)
}

type postgresDialect struct{}

func (postgresDialect) Name() Backend      { return BackendPostgres }
func (postgresDialect) DriverName() string { return "postgres" }

func (postgresDialect) Rebind(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (postgresDialect) JSONType() string { return "JSONB" }
func (postgresDialect) TimeType() string { return "TIMESTAMPTZ" }
func (postgresDialect) Capabilities() Capabilities {
	return Capabilities{FullTextSearch: true, AuditTrail: true}
}

func (postgresDialect) UpsertSuffix(conflictCols, updateCols []string) string {
	return onConflictDoUpdate(conflictCols, updateCols)
}

func (postgresDialect) InsertIgnore(insert string, conflictCols []string) string {
	return onConflictDoNothing(insert, conflictCols)
}

type mysqlDialect struct{}

func (mysqlDialect) Name() Backend              { return BackendMySQL }
func (mysqlDialect) DriverName() string         { return "mysql" }
func (mysqlDialect) Rebind(q string) string     { return q }
func (mysqlDialect) JSONType() string           { return "JSON" }
func (mysqlDialect) TimeType() string           { return "DATETIME" }
func (mysqlDialect) Capabilities() Capabilities { return Capabilities{} }

func (mysqlDialect) UpsertSuffix(_, updateCols []string) string {
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = VALUES(%s)", c, c)
	}
	return " ON DUPLICATE KEY UPDATE " + strings.Join(sets, ", ")
}

func (mysqlDialect) InsertIgnore(insert string, _ []string) string {
	return strings.Replace(insert, "INSERT ", "INSERT IGNORE ", 1)
}

func onConflictDoNothing(insert string, conflictCols []string) string {
	return fmt.Sprintf("%s ON CONFLICT (%s) DO NOTHING",
		insert, strings.Join(conflictCols, ", "))
}

func onConflictDoUpdate(conflictCols, updateCols []string) string {
	sets := make([]string, len(updateCols))
	for i, c := range updateCols {
		sets[i] = fmt.Sprintf("%s = excluded.%s", c, c)
	}
	return fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s",
		strings.Join(conflictCols, ", "), strings.Join(sets, ", "))
}

// dialectFor resolves the configured backend name.
func dialectFor(backend string) (dialect, error) {
	switch Backend(backend) {
	case BackendSQLite:
		return sqliteDialect{}, nil
	case BackendPostgres:
		return postgresDialect{}, nil
	case BackendMySQL:
		return mysqlDialect{}, nil
	default:
		return nil, fmt.Errorf("storage: unsupported backend %q", backend)
	}
}
