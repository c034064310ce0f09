package migrations_test

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/require"

	"github.com/conatus-oss/dana-archive/pkg/migrations"
)

func TestMigrateStoreAppliesArchiveSchema(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "archive.sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	migrationDir, err := filepath.Abs("../../internal/store/migrations")
	require.NoError(t, err)

	require.NoError(t, migrations.MigrateStore(db, os.DirFS(migrationDir)))

	var count int
	row := db.QueryRow(`SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = 'collections'`)
	require.NoError(t, row.Scan(&count))
	require.Equal(t, 1, count)
}

func TestMigrateStoreIsIdempotent(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "archive.sqlite3")
	db, err := sql.Open("sqlite3", dbPath)
	require.NoError(t, err)
	defer db.Close()

	migrationDir, err := filepath.Abs("../../internal/store/migrations")
	require.NoError(t, err)

	require.NoError(t, migrations.MigrateStore(db, os.DirFS(migrationDir)))
	require.NoError(t, migrations.MigrateStore(db, os.DirFS(migrationDir)), "re-running migrations against an up-to-date database must be a no-op")
}
