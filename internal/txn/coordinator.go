package txn

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/memogarden/memogarden-system/internal/core"
	"github.com/memogarden/memogarden-system/internal/kernerr"
	"github.com/memogarden/memogarden-system/internal/soil"
)

// Coordinator owns the cross-database lock/commit protocol (§4.5). It does
// not own the Stores' connection lifetimes — those are opened and closed by
// the caller (typically once at process startup).
type Coordinator struct {
	Soil *soil.Store
	Core *core.Store
}

// NewCoordinator wraps already-open Soil and Core stores.
func NewCoordinator(soilStore *soil.Store, coreStore *core.Store) *Coordinator {
	return &Coordinator{Soil: soilStore, Core: coreStore}
}

// Scope is the handle pair yielded inside a coordinated transaction. Core
// is a *core.Scope bound to the connection this transaction already holds
// (core.Store.CoordinatedScope), so every mutation made through this field
// runs inside the coordinator's lock. Calling *core.Store's own mutators
// instead would open a separate transaction outside it. Soil has no
// such wrapper: its mutators are each a single statement with nothing to
// atomically pair, so CreateFact et al. stay reachable directly off
// *soil.Store. Per §9 ("connection lifetime / must be used as context
// manager"), using Scope outside the CrossDatabaseTransaction callback that
// produced it is still a caller error Go's type system can't catch on its
// own, since the scope's fields are only meaningful for the callback's
// duration.
type Scope struct {
	Soil *soil.Store
	Core *core.Scope
}

// CrossDatabaseTransaction acquires EXCLUSIVE locks on Soil then Core (the
// fixed order that excludes two-way deadlocks with any other writer
// honoring it), runs fn, and commits Soil first: Soil is the audit source
// of truth, so an uncommitted Soil with a committed Core would be an
// unreconstructable revision (§4.5).
//
// On error from fn, both databases roll back. If Soil commits but Core then
// fails, the coordinator logs INCONSISTENT, best-effort rolls back Core, and
// returns a *kernerr.ConsistencyError with SoilCommitted=true.
func (c *Coordinator) CrossDatabaseTransaction(ctx context.Context, fn func(ctx context.Context, scope *Scope) error) error {
	if err := beginExclusiveWithRetry(ctx, c.Soil.DB()); err != nil {
		return kernerr.NewStorageError("begin exclusive on soil", err)
	}
	soilBegun := true
	defer func() {
		if soilBegun {
			rollback(ctx, c.Soil.DB())
		}
	}()

	if err := beginExclusiveWithRetry(ctx, c.Core.DB()); err != nil {
		rollback(ctx, c.Soil.DB())
		soilBegun = false
		return kernerr.NewStorageError("begin exclusive on core", err)
	}
	coreBegun := true
	defer func() {
		if coreBegun {
			rollback(ctx, c.Core.DB())
		}
	}()

	scope := &Scope{Soil: c.Soil, Core: c.Core.CoordinatedScope()}
	if err := fn(ctx, scope); err != nil {
		return err
	}

	if _, err := c.Soil.DB().ExecContext(ctx, `COMMIT`); err != nil {
		return kernerr.NewStorageError("commit soil", err)
	}
	soilBegun = false

	if _, err := c.Core.DB().ExecContext(ctx, `COMMIT`); err != nil {
		log.Printf("txn: INCONSISTENT: soil committed but core commit failed: %v", err)
		rollback(ctx, c.Core.DB())
		coreBegun = false

		consErr := &kernerr.ConsistencyError{SoilCommitted: true, CoreErr: err}
		if report, repErr := CheckConsistency(ctx, c.Soil, c.Core); repErr == nil {
			consErr.Orphans = report.OrphanedDeltas
			consErr.BrokenChains = report.BrokenChains
		}
		return consErr
	}
	coreBegun = false

	return nil
}

func rollback(ctx context.Context, db *sql.DB) {
	// Rollback of an already-committed or never-begun transaction is a
	// no-op on the caller's side; ignore the error since this only runs
	// during best-effort cleanup.
	_, _ = db.ExecContext(context.Background(), `ROLLBACK`)
	_ = ctx
}

// beginExclusiveWithRetry issues BEGIN EXCLUSIVE with exponential backoff on
// SQLITE_BUSY, the way the teacher's beginImmediateWithRetry retries BEGIN
// IMMEDIATE — reimplemented with cenkalti/backoff/v4 instead of a
// hand-rolled loop.
func beginExclusiveWithRetry(ctx context.Context, db *sql.DB) error {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 5), ctx)
	return backoff.Retry(func() error {
		_, err := db.ExecContext(ctx, `BEGIN EXCLUSIVE`)
		if err == nil {
			return nil
		}
		if isBusyErr(err) {
			return err
		}
		return backoff.Permanent(err)
	}, policy)
}

func isBusyErr(err error) bool {
	if err == nil {
		return false
	}
	var sqliteErr interface{ Error() string }
	if errors.As(err, &sqliteErr) {
		return strings.Contains(sqliteErr.Error(), "SQLITE_BUSY") || strings.Contains(sqliteErr.Error(), "database is locked")
	}
	return false
}

// SystemStatusNow is a convenience wrapper running CheckConsistency with a
// bounded wall-clock budget (§5 "Startup consistency check is bounded by
// table sizes and always completes before serving").
func SystemStatusNow(soilStore *soil.Store, coreStore *core.Store, timeout time.Duration) (ConsistencyReport, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return CheckConsistency(ctx, soilStore, coreStore)
}
