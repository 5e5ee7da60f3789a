package soil

import (
	"context"
	"database/sql"

	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// migration applies one point upgrade, named migrate_<from>_to_<to> per §6.
// Each function must be idempotent (checked via PRAGMA table_info the way
// the teacher's internal/storage/sqlite/migrations package checks column
// existence before ALTER TABLE), since a crash between applying the SQL and
// recording the new version must be safe to retry.
type migration struct {
	from string
	to   string
	run  func(ctx context.Context, db *sql.DB) error
}

// migrationChain lists the declared point migrations in application order.
// Soil has shipped only schema version 20260130 so far; this chain is the
// anchor point future migrate_<from>_to_<to> files attach to.
var migrationChain []migration

// runMigrations advances db's schema from `from` to `to` by applying the
// declared chain in order, stamping _schema_metadata after each step so a
// crash mid-chain resumes from the last completed migration.
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
		// Forward-compatible reads of a newer schema are permitted (§6);
		// only a version we have no migration path for at all is an error.
		if version > to {
			return nil
		}
		return kernerr.NewStorageError("migrate soil schema", errNoMigrationPath(version, to))
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
