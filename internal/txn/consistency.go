package txn

import (
	"context"
	"database/sql"

	"github.com/memogarden/memogarden-system/internal/core"
	"github.com/memogarden/memogarden-system/internal/kernerr"
	"github.com/memogarden/memogarden-system/internal/soil"
)

// CheckConsistency runs the startup audit (§4.5): it enumerates orphaned
// EntityDelta facts (Soil committed, Core did not) and broken Entity hash
// chains (a previous_hash that resolves to no row), then derives the
// aggregate SystemStatus. The system proceeds in every returned status; this
// call reports, it never refuses to start.
func CheckConsistency(ctx context.Context, soilStore *soil.Store, coreStore *core.Store) (ConsistencyReport, error) {
	orphans, err := findOrphanedDeltas(ctx, soilStore.DB(), coreStore.DB())
	if err != nil {
		return ConsistencyReport{}, err
	}

	broken, err := findBrokenChains(ctx, coreStore.DB())
	if err != nil {
		return ConsistencyReport{}, err
	}

	status := StatusNormal
	switch {
	case len(broken) > 0:
		status = StatusSafeMode
	case len(orphans) > 0:
		status = StatusInconsistent
	}

	return ConsistencyReport{
		Status:         status,
		OrphanedDeltas: orphans,
		BrokenChains:   broken,
	}, nil
}

// findOrphanedDeltas enumerates Soil Facts of _type='EntityDelta' whose
// data.entity_id has no matching row in Core.
func findOrphanedDeltas(ctx context.Context, soilDB, coreDB *sql.DB) ([]string, error) {
	rows, err := soilDB.QueryContext(ctx, `
		SELECT uuid, json_extract(data, '$.entity_id') FROM facts WHERE type = ?
	`, soil.TypeEntityDelta)
	if err != nil {
		return nil, kernerr.NewStorageError("query entity deltas", err)
	}
	defer rows.Close()

	var deltas []struct{ uuid, entityID string }
	for rows.Next() {
		var d struct{ uuid, entityID string }
		var entityID sql.NullString
		if err := rows.Scan(&d.uuid, &entityID); err != nil {
			return nil, kernerr.NewStorageError("scan entity delta", err)
		}
		d.entityID = entityID.String
		deltas = append(deltas, d)
	}
	if err := rows.Err(); err != nil {
		return nil, kernerr.NewStorageError("iterate entity deltas", err)
	}

	var orphans []string
	for _, d := range deltas {
		if d.entityID == "" {
			continue
		}
		var n int
		if err := coreDB.QueryRowContext(ctx, `SELECT count(*) FROM entities WHERE uuid = ?`, d.entityID).Scan(&n); err != nil {
			return nil, kernerr.NewStorageError("check entity delta target", err)
		}
		if n == 0 {
			orphans = append(orphans, d.uuid)
		}
	}
	return orphans, nil
}

// findBrokenChains enumerates Entity rows whose previous_hash does not
// resolve to exactly one prior step in entity_hash_log — the witness of
// every hash the chain step function has produced for that uuid (entities
// itself holds only the current row per uuid, so previous_hash never
// resolves there once a second mutation has landed).
func findBrokenChains(ctx context.Context, coreDB *sql.DB) ([]string, error) {
	rows, err := coreDB.QueryContext(ctx, `
		SELECT uuid, previous_hash FROM entities WHERE previous_hash IS NOT NULL
	`)
	if err != nil {
		return nil, kernerr.NewStorageError("query entity chains", err)
	}
	defer rows.Close()

	type link struct{ uuid, previousHash string }
	var links []link
	for rows.Next() {
		var l link
		if err := rows.Scan(&l.uuid, &l.previousHash); err != nil {
			return nil, kernerr.NewStorageError("scan entity chain", err)
		}
		links = append(links, l)
	}
	if err := rows.Err(); err != nil {
		return nil, kernerr.NewStorageError("iterate entity chains", err)
	}

	var broken []string
	for _, l := range links {
		var n int
		if err := coreDB.QueryRowContext(ctx, `
			SELECT count(*) FROM entity_hash_log WHERE entity_uuid = ? AND hash = ?
		`, l.uuid, l.previousHash).Scan(&n); err != nil {
			return nil, kernerr.NewStorageError("resolve previous hash", err)
		}
		if n != 1 {
			broken = append(broken, l.uuid)
		}
	}
	return broken, nil
}
