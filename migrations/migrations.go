// Package migrations embeds SQL migration files and provides a function to apply them.
package migrations

import (
	"database/sql"
	"embed"
	"fmt"

	"github.com/pressly/goose/v3"
)

// FS contains the embedded SQL migration files, one directory per dialect.
//
//go:embed sqlite/*.sql postgres/*.sql
var FS embed.FS

// Supported dialects. The value is also the migration directory name.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

// Setup points goose at the embedded files for dialect and returns the
// directory to pass to goose commands.
func Setup(dialect string) (string, error) {
	goose.SetBaseFS(FS)

	var gooseDialect string
	switch dialect {
	case DialectSQLite:
		gooseDialect = "sqlite3"
	case DialectPostgres:
		gooseDialect = "postgres"
	default:
		return "", fmt.Errorf("unknown dialect %q", dialect)
	}
	if err := goose.SetDialect(gooseDialect); err != nil {
		return "", fmt.Errorf("set dialect: %w", err)
	}
	return dialect, nil
}

// Run applies all pending migrations to the given database.
func Run(db *sql.DB, dialect string) error {
	dir, err := Setup(dialect)
	if err != nil {
		return err
	}

	if err := goose.Up(db, dir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}

	return nil
}
