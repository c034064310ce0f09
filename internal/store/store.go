// Package store owns the archive's on-disk layout and embedded database:
// opening and migrating the sqlite3 file, the blob/sync subdirectories, and
// the unit-of-work/transaction scope operators every other component runs
// its reads and writes through. Grounded on the teacher's
// internal/datastore/pg.Datastore, swapped from a client/server pgxpool
// connection to an embedded mattn/go-sqlite3 one — per spec.md §1, an
// archive is "a directory containing a relational database", not something
// that talks to a separate server process (gloudx-ues uses the same driver
// for the same reason).
package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"

	"github.com/conatus-oss/dana-archive/internal/archerr"
	"github.com/conatus-oss/dana-archive/internal/config"
	"github.com/conatus-oss/dana-archive/pkg/logger"
	"github.com/conatus-oss/dana-archive/pkg/migrations"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Store owns the database connection and the archive directory layout. All
// reads and writes against the embedded database go through its unit of
// work / transaction operators; nothing else in the module opens *sql.DB
// directly.
type Store struct {
	db       *sql.DB
	rootDir  string
	cfg      *config.Config
	log      *logger.StructuredLogger
}

// Open ensures rootDir exists, opens (creating if absent) the sqlite3
// database file inside it, runs pending migrations, and creates the blob
// and sync subdirectories. Fails with an InternalError wrapping
// DATABASE_INCONSISTENCY if migrations refuse to apply, or IO_ERROR on
// filesystem failure, per spec.md §4.1.
func Open(ctx context.Context, rootDir string, cfg *config.Config, log *logger.StructuredLogger) (*Store, error) {
	if err := os.MkdirAll(rootDir, 0o755); err != nil {
		return nil, archerr.NewIOError(ctx, "open_archive", rootDir, err)
	}

	blobDir := filepath.Join(rootDir, cfg.BlobDirName)
	if err := os.MkdirAll(blobDir, 0o755); err != nil {
		return nil, archerr.NewIOError(ctx, "open_archive", blobDir, err)
	}

	syncDir := filepath.Join(rootDir, cfg.SyncDirName)
	if err := os.MkdirAll(syncDir, 0o755); err != nil {
		return nil, archerr.NewIOError(ctx, "open_archive", syncDir, err)
	}

	dbPath := filepath.Join(rootDir, cfg.DatabaseFile)
	db, err := sql.Open("sqlite3", fmt.Sprintf("%s?_foreign_keys=on", dbPath))
	if err != nil {
		return nil, archerr.NewIOError(ctx, "open_archive", dbPath, err)
	}
	db.SetMaxOpenConns(1) // single-writer embedded store, spec.md §5

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, archerr.NewIOError(ctx, "open_archive", dbPath, err)
	}

	migrationRoot, err := fs.Sub(migrationFS, "migrations")
	if err != nil {
		db.Close()
		return nil, archerr.NewDatabaseInconsistencyError(ctx, "open_archive", err)
	}

	if err := migrations.MigrateStore(db, migrationRoot); err != nil {
		db.Close()
		return nil, archerr.NewDatabaseInconsistencyError(ctx, "open_archive", err)
	}

	log.Debugw("archive opened", "root_dir", rootDir, "db_path", dbPath)

	return &Store{db: db, rootDir: rootDir, cfg: cfg, log: log}, nil
}

// Close tears down the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// RootDir is the archive's directory on disk.
func (s *Store) RootDir() string { return s.rootDir }

// BlobDir is the archive's content-addressed media store directory.
func (s *Store) BlobDir() string { return filepath.Join(s.rootDir, s.cfg.BlobDirName) }

// SyncDir is the archive's transient sync-staging directory.
func (s *Store) SyncDir() string { return filepath.Join(s.rootDir, s.cfg.SyncDirName) }

// Config returns the archive's configuration.
func (s *Store) Config() *config.Config { return s.cfg }
