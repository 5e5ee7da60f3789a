// Package core implements the Entity registry (C3): typed, versioned,
// hash-chained mutable records. Grounded on the teacher's
// internal/storage/sqlite package, same as Soil (internal/soil) — the two
// packages are deliberately near-twins in their connection and bootstrap
// code since both are "a single SQLite file with WAL mode and a migration
// chain", differing only in the tables they own.
package core

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/memogarden/memogarden-system/internal/kernerr"
	"github.com/memogarden/memogarden-system/internal/runtimectx"
)

// CurrentSchemaVersion is the Core schema version stamped into
// _schema_metadata on bootstrap (§6).
const CurrentSchemaVersion = "20260130"

// Store owns the Core (Entity registry) database connection.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if absent) the Core database at path, bootstrapping
// or migrating its schema as needed.
func Open(ctx context.Context, path string) (*Store, error) {
	return open(ctx, path, false)
}

// OpenReadOnly opens Core in read-only mode.
func OpenReadOnly(ctx context.Context, path string) (*Store, error) {
	return open(ctx, path, true)
}

func open(ctx context.Context, path string, readOnly bool) (*Store, error) {
	connStr := connString(path, readOnly)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, kernerr.NewStorageError("open core database", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db, path: path}
	if !readOnly {
		if err := s.bootstrapOrMigrate(ctx); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

func connString(path string, readOnly bool) string {
	if readOnly {
		return fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(30000)&_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)", path)
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(30000)&_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)", path)
}

// DB exposes the underlying *sql.DB to the transaction coordinator (C5)
// and to helpers outside this package that need Core's connection directly
// (e.g. the engagement index, which reads and writes user_relations). It is
// not a path to Create/UpdateData/UpdateHash/Supersede: those run through
// Store's own methods (one transaction per call) or through a Scope.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) bootstrapOrMigrate(ctx context.Context) error {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM sqlite_master WHERE type='table' AND name='_schema_metadata'`).Scan(&exists)
	if err != nil {
		return kernerr.NewStorageError("check schema metadata", err)
	}

	if exists == 0 {
		schemaSQL, err := runtimectx.GetSQLSchema(runtimectx.LayerCore)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return kernerr.NewStorageError("bootstrap core schema", err)
		}
		return nil
	}

	version, err := s.SchemaVersion(ctx)
	if err != nil {
		return err
	}
	return runMigrations(ctx, s.db, version, CurrentSchemaVersion)
}

// SchemaVersion reads the current schema version from _schema_metadata.
func (s *Store) SchemaVersion(ctx context.Context) (string, error) {
	var version string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM _schema_metadata WHERE key='schema_version'`).Scan(&version)
	if err != nil {
		return "", kernerr.NewStorageError("read schema version", err)
	}
	return version, nil
}
