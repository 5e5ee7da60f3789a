package core

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/memogarden/memogarden-system/internal/ids"
	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// Known Entity.Type discriminator values referenced by name in §3/§9.
const (
	TypeTransaction     = "Transaction"
	TypeRecurrence      = "Recurrence"
	TypeArtifact        = "Artifact"
	TypeConversationLog = "ConversationLog"
	TypeScope           = "Scope"
	TypeView            = "View"
	TypeContextFrame    = "ContextFrame"
	TypeSchema          = "Schema"
	TypeSystemConfig    = "SystemConfig"
)

// maxUUIDCollisionRetries bounds Create's astronomically unlikely UUID
// collision retry loop (§4.3).
const maxUUIDCollisionRetries = 3

// Entity is the mutable, versioned, hash-chained registry record (§3).
type Entity struct {
	UUID         string
	Type         string
	Hash         string
	PreviousHash *string
	Version      int
	GroupID      *string
	DerivedFrom  *string
	CreatedAt    time.Time
	UpdatedAt    time.Time
	SupersededBy *string
	SupersededAt *time.Time
	Data         json.RawMessage
}

// Create inserts a new Entity of the given type, computing the initial hash
// chain head with previous_hash=⊥ and version=1 (§4.3). The insert into
// entities and the witness row it logs into entity_hash_log land in one
// transaction (§5, §9 "connection lifetime") via withTx.
func (s *Store) Create(ctx context.Context, entityType string, groupID, derivedFrom *string, data json.RawMessage) (string, error) {
	var uuid string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		uuid, err = createEntity(ctx, tx, entityType, groupID, derivedFrom, data)
		return err
	})
	return uuid, err
}

func createEntity(ctx context.Context, exec execer, entityType string, groupID, derivedFrom *string, data json.RawMessage) (string, error) {
	now := time.Now().UTC()
	if len(data) == 0 {
		data = json.RawMessage("{}")
	}

	var lastErr error
	for attempt := 0; attempt < maxUUIDCollisionRetries; attempt++ {
		uuid := ids.New()
		hash := ids.ComputeEntityHash(entityType, now, now, deref(groupID), deref(derivedFrom), "", "", "")

		_, err := exec.ExecContext(ctx, `
			INSERT INTO entities (uuid, type, hash, previous_hash, version, group_id, derived_from, created_at, updated_at, superseded_by, superseded_at, data)
			VALUES (?, ?, ?, NULL, 1, ?, ?, ?, ?, NULL, NULL, ?)
		`, uuid, entityType, hash, groupID, derivedFrom, now.Format(time.RFC3339Nano), now.Format(time.RFC3339Nano), string(data))
		if err == nil {
			if err := logHashStep(ctx, exec, uuid, hash, 1, now); err != nil {
				return "", err
			}
			return uuid, nil
		}
		if !isUniqueConstraintErr(err) {
			return "", kernerr.NewStorageError("insert entity", err)
		}
		lastErr = err
	}
	return "", kernerr.NewStorageError("insert entity after uuid collisions", lastErr)
}

// GetByID fetches an Entity by UUID, accepted with or without the core_
// tag. If typeLabel is non-empty, the stored type must match it or a
// NotFound is raised (the row is invisible to a caller expecting a
// different type).
func (s *Store) GetByID(ctx context.Context, id, typeLabel string) (*Entity, error) {
	return getEntityByID(ctx, s.db, id, typeLabel)
}

func getEntityByID(ctx context.Context, exec execer, id, typeLabel string) (*Entity, error) {
	uuid := ids.StripTag(id)
	e, err := queryEntityByID(ctx, exec, uuid)
	if err != nil {
		return nil, err
	}
	if typeLabel != "" && e.Type != typeLabel {
		return nil, kernerr.NewNotFoundError("entity", uuid)
	}
	return e, nil
}

func (s *Store) getByID(ctx context.Context, uuid string) (*Entity, error) {
	return queryEntityByID(ctx, s.db, uuid)
}

func queryEntityByID(ctx context.Context, exec execer, uuid string) (*Entity, error) {
	row := exec.QueryRowContext(ctx, selectEntityColumns+` WHERE uuid = ?`, uuid)
	e, err := scanEntity(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kernerr.NewNotFoundError("entity", uuid)
	}
	if err != nil {
		return nil, kernerr.NewStorageError("get entity", err)
	}
	return e, nil
}

// UpdateData rewrites an Entity's data and advances its hash chain. Both
// statements, plus the hash-log witness row UpdateHash writes, run inside
// one withTx transaction.
func (s *Store) UpdateData(ctx context.Context, id string, newData json.RawMessage) (string, error) {
	var hash string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		hash, err = updateEntityData(ctx, tx, id, newData)
		return err
	})
	return hash, err
}

func updateEntityData(ctx context.Context, exec execer, id string, newData json.RawMessage) (string, error) {
	uuid := ids.StripTag(id)
	if _, err := exec.ExecContext(ctx, `UPDATE entities SET data = ? WHERE uuid = ?`, string(newData), uuid); err != nil {
		return "", kernerr.NewStorageError("update entity data", err)
	}
	return updateEntityHash(ctx, exec, uuid)
}

// UpdateHash reads the current row, computes a new chain hash binding
// previous_hash to the current hash, and writes (hash, previous_hash,
// version+1, updated_at=now), together with its entity_hash_log witness
// row, inside one withTx transaction. Returns the new hash.
func (s *Store) UpdateHash(ctx context.Context, id string) (string, error) {
	var hash string
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var err error
		hash, err = updateEntityHash(ctx, tx, id)
		return err
	})
	return hash, err
}

func updateEntityHash(ctx context.Context, exec execer, id string) (string, error) {
	uuid := ids.StripTag(id)
	current, err := queryEntityByID(ctx, exec, uuid)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	newHash := ids.ComputeEntityHash(current.Type, current.CreatedAt, now, deref(current.GroupID), deref(current.DerivedFrom),
		deref(current.SupersededBy), formatNullableTime(current.SupersededAt), current.Hash)

	_, err = exec.ExecContext(ctx, `
		UPDATE entities SET hash = ?, previous_hash = ?, version = version + 1, updated_at = ?
		WHERE uuid = ?
	`, newHash, current.Hash, now.Format(time.RFC3339Nano), uuid)
	if err != nil {
		return "", kernerr.NewStorageError("update entity hash", err)
	}
	if err := logHashStep(ctx, exec, uuid, newHash, current.Version+1, now); err != nil {
		return "", err
	}
	return newHash, nil
}

// Supersede sets superseded_by/superseded_at on old and rolls its hash
// chain forward — a supersession IS a mutation (§4.3). Runs inside one
// withTx transaction along with its entity_hash_log witness row.
func (s *Store) Supersede(ctx context.Context, oldID, newID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return supersedeEntity(ctx, tx, oldID, newID)
	})
}

func supersedeEntity(ctx context.Context, exec execer, oldID, newID string) error {
	oldUUID := ids.StripTag(oldID)
	newUUID := ids.StripTag(newID)

	current, err := queryEntityByID(ctx, exec, oldUUID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	newHash := ids.ComputeEntityHash(current.Type, current.CreatedAt, now, deref(current.GroupID), deref(current.DerivedFrom),
		newUUID, now.Format(time.RFC3339Nano), current.Hash)

	_, err = exec.ExecContext(ctx, `
		UPDATE entities
		SET superseded_by = ?, superseded_at = ?, hash = ?, previous_hash = ?, version = version + 1, updated_at = ?
		WHERE uuid = ?
	`, newUUID, now.Format(time.RFC3339Nano), newHash, current.Hash, now.Format(time.RFC3339Nano), oldUUID)
	if err != nil {
		return kernerr.NewStorageError("supersede entity", err)
	}
	return logHashStep(ctx, exec, oldUUID, newHash, current.Version+1, now)
}

// logHashStep appends to the entity's hash witness log (§6 "hash chain
// well-formed": every previous_hash must resolve to exactly one prior row).
// entities itself only ever holds the current row per uuid. Always called
// from within the same exec (transaction or coordinator connection) as
// the entities write it witnesses.
func logHashStep(ctx context.Context, exec execer, uuid, hash string, version int, at time.Time) error {
	_, err := exec.ExecContext(ctx, `
		INSERT INTO entity_hash_log (entity_uuid, hash, version, recorded_at) VALUES (?, ?, ?, ?)
	`, uuid, hash, version, at.Format(time.RFC3339Nano))
	if err != nil {
		return kernerr.NewStorageError("log entity hash step", err)
	}
	return nil
}

// GetCurrentHash returns an Entity's current chain-head hash.
func (s *Store) GetCurrentHash(ctx context.Context, id string) (string, error) {
	e, err := s.getByID(ctx, ids.StripTag(id))
	if err != nil {
		return "", err
	}
	return e.Hash, nil
}

// CheckConflict reports whether expectedHash no longer matches the
// Entity's current hash (true means a caller's cached hash is stale).
func (s *Store) CheckConflict(ctx context.Context, id, expectedHash string) (bool, error) {
	current, err := s.GetCurrentHash(ctx, id)
	if err != nil {
		return false, err
	}
	return current != expectedHash, nil
}

// Exists reports whether an Entity row exists for id.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	uuid := ids.StripTag(id)
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM entities WHERE uuid = ?`, uuid).Scan(&n); err != nil {
		return false, kernerr.NewStorageError("check entity exists", err)
	}
	return n > 0, nil
}

// QueryWithFilters returns a page of Entities, newest-first by created_at,
// optionally filtered by type and excluding superseded rows unless
// includeSuperseded is set. Returns the page and the total matching count.
func (s *Store) QueryWithFilters(ctx context.Context, entityType string, includeSuperseded bool, limit, offset int) ([]Entity, int, error) {
	where := `WHERE 1=1`
	var args []any
	if entityType != "" {
		where += ` AND type = ?`
		args = append(args, entityType)
	}
	if !includeSuperseded {
		where += ` AND superseded_by IS NULL`
	}

	var total int
	countArgs := append([]any{}, args...)
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM entities `+where, countArgs...).Scan(&total); err != nil {
		return nil, 0, kernerr.NewStorageError("count entities", err)
	}

	pageArgs := append(append([]any{}, args...), limit, offset)
	rows, err := s.db.QueryContext(ctx, selectEntityColumns+` `+where+` ORDER BY created_at DESC LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return nil, 0, kernerr.NewStorageError("query entities", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, 0, kernerr.NewStorageError("scan entity", err)
		}
		out = append(out, *e)
	}
	return out, total, rows.Err()
}

// Search coverage levels (§4.3).
const (
	CoverageNames   = "names"
	CoverageContent = "content"
	CoverageFull    = "full"
)

// Search performs a case-insensitive substring search over active
// (non-superseded) Entities, ordered by updated_at desc.
func (s *Store) Search(ctx context.Context, query, coverage string, limit int) ([]Entity, error) {
	needle := "%" + strings.ToLower(query) + "%"

	var where string
	switch coverage {
	case CoverageContent, CoverageFull:
		where = `WHERE superseded_by IS NULL AND (lower(type) LIKE ? OR lower(data) LIKE ?)`
	default: // CoverageNames
		where = `WHERE superseded_by IS NULL AND lower(type) LIKE ?`
	}

	var args []any
	args = append(args, needle)
	if coverage == CoverageContent || coverage == CoverageFull {
		args = append(args, needle)
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, selectEntityColumns+` `+where+` ORDER BY updated_at DESC LIMIT ?`, args...)
	if err != nil {
		return nil, kernerr.NewStorageError("search entities", err)
	}
	defer rows.Close()

	var out []Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, kernerr.NewStorageError("scan entity", err)
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

const selectEntityColumns = `
	SELECT uuid, type, hash, previous_hash, version, group_id, derived_from, created_at, updated_at, superseded_by, superseded_at, data
	FROM entities`

func scanEntity(row rowScanner) (*Entity, error) {
	var e Entity
	var previousHash, groupID, derivedFrom, supersededBy, supersededAt sql.NullString
	var createdAt, updatedAt, data string

	err := row.Scan(&e.UUID, &e.Type, &e.Hash, &previousHash, &e.Version, &groupID, &derivedFrom,
		&createdAt, &updatedAt, &supersededBy, &supersededAt, &data)
	if err != nil {
		return nil, err
	}

	e.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt)
	if err != nil {
		return nil, err
	}
	e.UpdatedAt, err = time.Parse(time.RFC3339Nano, updatedAt)
	if err != nil {
		return nil, err
	}
	if previousHash.Valid {
		v := previousHash.String
		e.PreviousHash = &v
	}
	if groupID.Valid {
		v := groupID.String
		e.GroupID = &v
	}
	if derivedFrom.Valid {
		v := derivedFrom.String
		e.DerivedFrom = &v
	}
	if supersededBy.Valid {
		v := supersededBy.String
		e.SupersededBy = &v
	}
	if supersededAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, supersededAt.String)
		if err != nil {
			return nil, err
		}
		e.SupersededAt = &t
	}
	e.Data = json.RawMessage(data)
	return &e, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatNullableTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func isUniqueConstraintErr(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
