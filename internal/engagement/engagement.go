// Package engagement implements the engagement-decay index (C4): user
// relations whose time_horizon decays unless an access extends it by the
// safety coefficient. Grounded on the same *sql.DB the Entity registry
// (internal/core) manages — user_relations lives in core.db alongside
// entities (see sql/core.sql) since it indexes Core rows, not Soil Facts.
package engagement

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"

	"github.com/memogarden/memogarden-system/internal/ids"
	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// SafetyCoefficient is S in the time-horizon extension rule (§3): on
// access, time_horizon grows by ⌊(current_day - last_access_at) * S⌋.
const SafetyCoefficient = 1.2

// UserRelation is the engagement signal record (§3).
type UserRelation struct {
	UUID         string
	Kind         string
	Source       string
	SourceType   string
	Target       string
	TargetType   string
	TimeHorizon  int // days-since-epoch
	LastAccessAt int // days-since-epoch
	CreatedAt    int
	Evidence     json.RawMessage
	Metadata     json.RawMessage
}

// Index wraps a *sql.DB (the Core database) with engagement-index
// operations. It does not own the connection's lifetime.
type Index struct {
	db *sql.DB
}

// New wraps db with engagement-index operations.
func New(db *sql.DB) *Index {
	return &Index{db: db}
}

// Create inserts a new UserRelation with the given initial horizon
// (default 7 days per §4.4), stamping created_at/last_access_at to today.
func (idx *Index) Create(ctx context.Context, kind, source, sourceType, target, targetType string, initialHorizonDays int, evidence, metadata json.RawMessage) (string, error) {
	if initialHorizonDays <= 0 {
		initialHorizonDays = 7
	}
	today := ids.CurrentDay()
	uuid := ids.New()

	_, err := idx.db.ExecContext(ctx, `
		INSERT INTO user_relations (uuid, kind, source, source_type, target, target_type, time_horizon, last_access_at, created_at, evidence, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid, kind, source, sourceType, target, targetType, today+initialHorizonDays, today, today, nullableJSON(evidence), nullableJSON(metadata))
	if err != nil {
		return "", kernerr.NewStorageError("insert user relation", err)
	}
	return uuid, nil
}

// GetByID fetches a UserRelation by UUID.
func (idx *Index) GetByID(ctx context.Context, uuid string) (*UserRelation, error) {
	row := idx.db.QueryRowContext(ctx, selectColumns+` WHERE uuid = ?`, uuid)
	r, err := scan(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kernerr.NewNotFoundError("user relation", uuid)
	}
	if err != nil {
		return nil, kernerr.NewStorageError("get user relation", err)
	}
	return r, nil
}

// UpdateTimeHorizon applies the access-driven extension rule (§3):
// time_horizon += floor((today - last_access_at) * S); last_access_at = today.
func (idx *Index) UpdateTimeHorizon(ctx context.Context, uuid string) (int, error) {
	r, err := idx.GetByID(ctx, uuid)
	if err != nil {
		return 0, err
	}

	today := ids.CurrentDay()
	extension := int(math.Floor(float64(today-r.LastAccessAt) * SafetyCoefficient))
	if extension < 0 {
		extension = 0
	}
	newHorizon := r.TimeHorizon + extension

	_, err = idx.db.ExecContext(ctx, `
		UPDATE user_relations SET time_horizon = ?, last_access_at = ? WHERE uuid = ?
	`, newHorizon, today, uuid)
	if err != nil {
		return 0, kernerr.NewStorageError("update time horizon", err)
	}
	return newHorizon, nil
}

// ListInbound returns UserRelations targeting target, sorted by
// time_horizon desc, optionally restricted to alive (non-expired) rows.
func (idx *Index) ListInbound(ctx context.Context, target string, aliveOnly bool) ([]UserRelation, error) {
	return idx.list(ctx, "target", target, aliveOnly)
}

// ListOutbound returns UserRelations originating from source, sorted by
// time_horizon desc, optionally restricted to alive rows.
func (idx *Index) ListOutbound(ctx context.Context, source string, aliveOnly bool) ([]UserRelation, error) {
	return idx.list(ctx, "source", source, aliveOnly)
}

func (idx *Index) list(ctx context.Context, column, value string, aliveOnly bool) ([]UserRelation, error) {
	query := selectColumns + ` WHERE ` + column + ` = ?`
	args := []any{value}
	if aliveOnly {
		query += ` AND time_horizon >= ?`
		args = append(args, ids.CurrentDay())
	}
	query += ` ORDER BY time_horizon DESC`

	rows, err := idx.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kernerr.NewStorageError("list user relations", err)
	}
	defer rows.Close()

	var out []UserRelation
	for rows.Next() {
		r, err := scan(rows)
		if err != nil {
			return nil, kernerr.NewStorageError("scan user relation", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// Expire sets a relation's time_horizon to current_day()-1, making it
// immediately non-alive.
func (idx *Index) Expire(ctx context.Context, uuid string) error {
	today := ids.CurrentDay()
	res, err := idx.db.ExecContext(ctx, `UPDATE user_relations SET time_horizon = ? WHERE uuid = ?`, today-1, uuid)
	if err != nil {
		return kernerr.NewStorageError("expire user relation", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return kernerr.NewNotFoundError("user relation", uuid)
	}
	return nil
}

// FactTimeHorizon returns the max time_horizon among target's inbound
// alive relations (the decay aggregate, §4.4), or false if target is
// orphaned (no alive inbound relation).
func (idx *Index) FactTimeHorizon(ctx context.Context, target string) (int, bool, error) {
	var horizon sql.NullInt64
	err := idx.db.QueryRowContext(ctx, `
		SELECT max(time_horizon) FROM user_relations WHERE target = ? AND time_horizon >= ?
	`, target, ids.CurrentDay()).Scan(&horizon)
	if err != nil {
		return 0, false, kernerr.NewStorageError("fact time horizon", err)
	}
	if !horizon.Valid {
		return 0, false, nil
	}
	return int(horizon.Int64), true, nil
}

// IsAlive reports whether a relation's time_horizon has not yet elapsed.
func (idx *Index) IsAlive(ctx context.Context, uuid string) (bool, error) {
	r, err := idx.GetByID(ctx, uuid)
	if err != nil {
		return false, err
	}
	return r.TimeHorizon >= ids.CurrentDay(), nil
}

const selectColumns = `
	SELECT uuid, kind, source, source_type, target, target_type, time_horizon, last_access_at, created_at, evidence, metadata
	FROM user_relations`

type rowScanner interface {
	Scan(dest ...any) error
}

func scan(row rowScanner) (*UserRelation, error) {
	var r UserRelation
	var evidence, metadata sql.NullString
	err := row.Scan(&r.UUID, &r.Kind, &r.Source, &r.SourceType, &r.Target, &r.TargetType,
		&r.TimeHorizon, &r.LastAccessAt, &r.CreatedAt, &evidence, &metadata)
	if err != nil {
		return nil, err
	}
	if evidence.Valid {
		r.Evidence = json.RawMessage(evidence.String)
	}
	if metadata.Valid {
		r.Metadata = json.RawMessage(metadata.String)
	}
	return &r, nil
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
