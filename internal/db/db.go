// Package db opens the SQLite files that back sample stores and manages
// their schema.
package db

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/ilut/internal/monitoring"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// DevMode reads migrations from MigrationsDir on disk instead of the
// embedded copy. Used when iterating on schema changes.
var DevMode = false

// MigrationsDir is the on-disk migrations directory used in DevMode.
var MigrationsDir = "internal/db/migrations"

// getMigrationsFS returns the migrations filesystem rooted at the
// directory containing the *.sql files.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		if _, err := os.Stat(MigrationsDir); err != nil {
			return nil, fmt.Errorf("dev mode migrations dir %s: %w", MigrationsDir, err)
		}
		return os.DirFS(MigrationsDir), nil
	}
	return fs.Sub(migrationsFS, "migrations")
}

// pragmas are applied to every pooled connection through the DSN.
// synchronous=FULL makes each committed sample survive power loss.
var pragmas = []string{
	"journal_mode(WAL)",
	"busy_timeout(5000)",
	"synchronous(FULL)",
	"temp_store(MEMORY)",
	"foreign_keys(ON)",
}

// readOnlyPragmas leave the journal mode alone; a read-only connection
// cannot change it.
var readOnlyPragmas = []string{
	"busy_timeout(5000)",
	"temp_store(MEMORY)",
}

// DB wraps a sqlite connection pool for one store file.
type DB struct {
	*sql.DB
	path string
}

func dsn(path string, readOnly bool) string {
	q := url.Values{}
	ps := pragmas
	if readOnly {
		ps = readOnlyPragmas
		q.Set("mode", "ro")
	}
	for _, p := range ps {
		q.Add("_pragma", p)
	}
	return "file:" + path + "?" + q.Encode()
}

// Open opens (creating if needed) the database at path without touching
// its schema.
func Open(path string) (*DB, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	sqlDB, err := sql.Open("sqlite", dsn(path, false))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// NewDB opens the database at path and applies all pending migrations.
func NewDB(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	migFS, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := db.MigrateUp(migFS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// NewDBWithMigrationCheck opens an existing database and verifies its
// schema is current. With autoMigrate the missing migrations are applied,
// otherwise an outdated schema is an error.
func NewDBWithMigrationCheck(path string, autoMigrate bool) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	migFS, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	current, dirty, err := db.MigrateVersion(migFS)
	if err != nil {
		db.Close()
		return nil, err
	}
	latest, err := LatestMigrationVersion(migFS)
	if err != nil {
		db.Close()
		return nil, err
	}
	if dirty {
		db.Close()
		return nil, fmt.Errorf("database %s is in a dirty migration state (version %d)", path, current)
	}
	if current == latest {
		return db, nil
	}
	if current > latest {
		db.Close()
		return nil, fmt.Errorf("database version (%d) is ahead of latest migration (%d)", current, latest)
	}
	if !autoMigrate {
		db.Close()
		return nil, fmt.Errorf("database schema is out of date (version %d, need %d)", current, latest)
	}
	monitoring.Logf("[db] migrating %s from version %d to %d", path, current, latest)
	if err := db.MigrateUp(migFS); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// OpenReadOnly opens an existing database without write access and without
// migrating it. The schema must already be at the latest migration.
func OpenReadOnly(path string) (*DB, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("database %s: %w", path, err)
	}
	sqlDB, err := sql.Open("sqlite", dsn(path, true))
	if err != nil {
		return nil, fmt.Errorf("failed to open database %s: %w", path, err)
	}
	if err := sqlDB.Ping(); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}
	db := &DB{DB: sqlDB, path: path}

	migFS, err := getMigrationsFS()
	if err != nil {
		db.Close()
		return nil, err
	}
	latest, err := LatestMigrationVersion(migFS)
	if err != nil {
		db.Close()
		return nil, err
	}
	// The migrate driver creates its version table on open, which a
	// read-only connection cannot do, so the version is read directly.
	var current uint
	var dirty bool
	if err := db.QueryRow(`SELECT version, dirty FROM schema_migrations LIMIT 1`).Scan(&current, &dirty); err != nil {
		db.Close()
		return nil, fmt.Errorf("read schema version of %s: %w", path, err)
	}
	switch {
	case dirty:
		db.Close()
		return nil, fmt.Errorf("database %s is in a dirty migration state (version %d)", path, current)
	case current != latest:
		db.Close()
		return nil, fmt.Errorf("database schema is out of date (version %d, need %d); run lut-build migrate", current, latest)
	}
	return db, nil
}

// Path returns the file the database was opened from.
func (db *DB) Path() string { return db.path }
