package core

import (
	"context"
	"database/sql"

	"github.com/memogarden/memogarden-system/internal/kernerr"
)

type migration struct {
	from string
	to   string
	run  func(ctx context.Context, db *sql.DB) error
}

// migrationChain lists the declared point migrations in application order.
// Core has shipped only schema version 20260130 so far.
var migrationChain []migration

func runMigrations(ctx context.Context, db *sql.DB, from, to string) error {
	if from == to {
		return nil
	}

	version := from
	for _, m := range migrationChain {
		if version != m.from {
			continue
		}
		if err := m.run(ctx, db); err != nil {
			return kernerr.NewStorageError("apply migration "+m.from+"_to_"+m.to, err)
		}
		if _, err := db.ExecContext(ctx, `UPDATE _schema_metadata SET value=? WHERE key='schema_version'`, m.to); err != nil {
			return kernerr.NewStorageError("stamp schema version", err)
		}
		version = m.to
		if version == to {
			return nil
		}
	}

	if version != to {
		if version > to {
			return nil
		}
		return kernerr.NewStorageError("migrate core schema", errNoMigrationPath(version, to))
	}
	return nil
}

type noMigrationPathError struct {
	from, to string
}

func (e *noMigrationPathError) Error() string {
	return "no migration path from " + e.from + " to " + e.to
}

func errNoMigrationPath(from, to string) error {
	return &noMigrationPathError{from: from, to: to}
}
