package soil

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"

	"github.com/memogarden/memogarden-system/internal/ids"
	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// SystemRelation kinds (§3).
const (
	RelationTriggers     = "triggers"
	RelationCites        = "cites"
	RelationDerivesFrom  = "derives_from"
	RelationContains     = "contains"
	RelationRepliesTo    = "replies_to"
	RelationContinues    = "continues"
	RelationSupersedes   = "supersedes"
)

// SystemRelation target kinds (§3).
const (
	TargetItem   = "item"
	TargetEntity = "entity"
)

// SystemRelation is the immutable structural fact linking two objects (§3).
// At most one row exists per (Kind, Source, Target); CreateRelation
// enforces this with an idempotent return of the existing UUID.
type SystemRelation struct {
	UUID       string
	Kind       string
	Source     string
	SourceType string
	Target     string
	TargetType string
	CreatedAt  int // days-since-epoch
	Evidence   json.RawMessage
}

// CreateRelation inserts rel; on a (kind, source, target) collision it
// returns the existing relation's UUID rather than raising (§4.2).
func (s *Store) CreateRelation(ctx context.Context, rel SystemRelation) (string, error) {
	if rel.UUID == "" {
		rel.UUID = ids.New()
	}
	rel.UUID = ids.StripTag(rel.UUID)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO system_relations (uuid, kind, source, source_type, target, target_type, created_at, evidence)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, rel.UUID, rel.Kind, rel.Source, rel.SourceType, rel.Target, rel.TargetType, rel.CreatedAt, nullableJSON(rel.Evidence))
	if err == nil {
		return rel.UUID, nil
	}
	if !isUniqueConstraintErr(err) {
		return "", kernerr.NewStorageError("insert system relation", err)
	}

	existing, lookupErr := s.findRelation(ctx, rel.Kind, rel.Source, rel.Target)
	if lookupErr != nil {
		return "", lookupErr
	}
	return existing.UUID, nil
}

func (s *Store) findRelation(ctx context.Context, kind, source, target string) (*SystemRelation, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, kind, source, source_type, target, target_type, created_at, evidence
		FROM system_relations WHERE kind = ? AND source = ? AND target = ?
	`, kind, source, target)
	return scanRelation(row)
}

// CreateRepliesTo is a convenience wrapper: creates a `replies_to` relation
// from reply to parent. Returns kernerr.NotFoundError if parent is absent.
func (s *Store) CreateRepliesTo(ctx context.Context, reply, parent string, evidence json.RawMessage) (string, error) {
	if _, err := s.GetFact(ctx, parent); err != nil {
		return "", err
	}
	return s.CreateRelation(ctx, SystemRelation{
		Kind:       RelationRepliesTo,
		Source:     ids.StripTag(reply),
		SourceType: TargetItem,
		Target:     ids.StripTag(parent),
		TargetType: TargetItem,
		CreatedAt:  ids.CurrentDay(),
		Evidence:   evidence,
	})
}

// GetRelations returns SystemRelations filtered by optional source and/or
// kind (either may be empty to mean "any").
func (s *Store) GetRelations(ctx context.Context, source, kind string) ([]SystemRelation, error) {
	query := `SELECT uuid, kind, source, source_type, target, target_type, created_at, evidence FROM system_relations WHERE 1=1`
	var args []any
	if source != "" {
		query += ` AND source = ?`
		args = append(args, source)
	}
	if kind != "" {
		query += ` AND kind = ?`
		args = append(args, kind)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, kernerr.NewStorageError("get system relations", err)
	}
	defer rows.Close()

	var out []SystemRelation
	for rows.Next() {
		r, err := scanRelation(rows)
		if err != nil {
			return nil, kernerr.NewStorageError("scan system relation", err)
		}
		out = append(out, *r)
	}
	return out, rows.Err()
}

// CountRelations returns the total number of SystemRelations.
func (s *Store) CountRelations(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM system_relations`).Scan(&n); err != nil {
		return 0, kernerr.NewStorageError("count system relations", err)
	}
	return n, nil
}

func scanRelation(row rowScanner) (*SystemRelation, error) {
	var r SystemRelation
	var evidence sql.NullString
	err := row.Scan(&r.UUID, &r.Kind, &r.Source, &r.SourceType, &r.Target, &r.TargetType, &r.CreatedAt, &evidence)
	if err != nil {
		return nil, err
	}
	if evidence.Valid {
		r.Evidence = json.RawMessage(evidence.String)
	}
	return &r, nil
}

// isUniqueConstraintErr reports whether err originates from SQLite's UNIQUE
// constraint violation, across driver error-string variants.
func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	s := err.Error()
	return strings.Contains(s, "UNIQUE constraint failed") || strings.Contains(s, "constraint failed: UNIQUE")
}

var _ = sql.ErrNoRows
