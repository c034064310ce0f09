package migrations

import (
	"database/sql"
	"io/fs"

	"github.com/pressly/goose/v3"
)

// MigrateStore runs database migrations using the goose migration tool.
// It takes a database connection and a filesystem rooted at the migration
// folder (an embed.FS in production, os.DirFS in tests) and applies all
// pending migrations found at its root.
func MigrateStore(db *sql.DB, migrationFS fs.FS) error {
	goose.SetLogger(&logger{})
	goose.SetBaseFS(migrationFS)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return err
	}

	if err := goose.Up(db, "."); err != nil {
		return err
	}

	return nil
}

/*
logger implements goose.Logger interface

	type Logger interface {
		Fatalf(format string, v ...interface{})
		Printf(format string, v ...interface{})
	}
*/
type logger struct{}

func (m *logger) Printf(format string, v ...interface{}) {}
func (m *logger) Fatalf(format string, v ...interface{}) {}
