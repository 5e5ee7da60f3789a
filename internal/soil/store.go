// Package soil implements the Fact store (C2): the append-only, immutable
// audit layer. Grounded on the teacher's internal/storage/sqlite package —
// same connection-string pragmas, same WAL-mode single-writer discipline,
// same migration-function-per-file bootstrap.
package soil

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"

	"github.com/memogarden/memogarden-system/internal/kernerr"
	"github.com/memogarden/memogarden-system/internal/runtimectx"
)

// CurrentSchemaVersion is the Soil schema version stamped into
// _schema_metadata on bootstrap (§6).
const CurrentSchemaVersion = "20260130"

// Store owns the Soil (Fact store) database connection. Like the teacher's
// SQLiteStorage, it caps the pool to a single connection: SQLite only
// supports one writer at a time, and sharing one *sql.Conn across readers
// and writers keeps PRAGMA state (busy_timeout, foreign_keys) consistent.
type Store struct {
	db   *sql.DB
	path string
}

// Open opens (creating if absent) the Soil database at path, bootstrapping
// or migrating its schema as needed.
func Open(ctx context.Context, path string) (*Store, error) {
	return open(ctx, path, false)
}

// OpenReadOnly opens Soil in read-only mode, for callers that only inspect
// state without participating in the cross-database lock protocol (§5).
func OpenReadOnly(ctx context.Context, path string) (*Store, error) {
	return open(ctx, path, true)
}

func open(ctx context.Context, path string, readOnly bool) (*Store, error) {
	connStr := connString(path, readOnly)
	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, kernerr.NewStorageError("open soil database", err)
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

// connString mirrors the teacher's storage.SQLiteConnString: WAL mode plus a
// generous busy timeout so readers never block behind a writer's EXCLUSIVE
// transaction longer than necessary.
func connString(path string, readOnly bool) string {
	if readOnly {
		return fmt.Sprintf("file:%s?mode=ro&_pragma=busy_timeout(30000)&_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)", path)
	}
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(30000)&_pragma=foreign_keys(ON)&_pragma=journal_mode(WAL)", path)
}

// DB exposes the underlying *sql.DB for the transaction coordinator (C5),
// which needs to issue raw BEGIN EXCLUSIVE/COMMIT/ROLLBACK statements on a
// single borrowed connection.
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
		schemaSQL, err := runtimectx.GetSQLSchema(runtimectx.LayerSoil)
		if err != nil {
			return err
		}
		if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
			return kernerr.NewStorageError("bootstrap soil schema", err)
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
