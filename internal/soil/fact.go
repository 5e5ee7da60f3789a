package soil

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/memogarden/memogarden-system/internal/ids"
	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// Fidelity values for Fact.Fidelity (§3).
const (
	FidelityFull     = "full"
	FiditySummary    = "summary"
	FidelityStub     = "stub"
	FidelityTombstone = "tombstone"
)

// Known Fact._type discriminator values referenced by name in §3/§9.
const (
	TypeNote         = "Note"
	TypeMessage      = "Message"
	TypeEmail        = "Email"
	TypeToolCall     = "ToolCall"
	TypeEntityDelta  = "EntityDelta"
	TypeSystemEvent  = "SystemEvent"
	TypeArtifactDelta = "ArtifactDelta"
)

// Fact is the immutable audit-layer record (§3). Data/Metadata are kept as
// raw JSON; callers decode them into the typed payload matching `.Type`
// (§9 "dynamic payloads → typed variants").
type Fact struct {
	UUID           string
	Type           string
	RealizedAt     time.Time
	CanonicalAt    *time.Time
	Fidelity       string
	IntegrityHash  string
	SupersededBy   *string
	SupersededAt   *time.Time
	Data           json.RawMessage
	Metadata       json.RawMessage
}

// CreateFact inserts fact, computing IntegrityHash from Data (sorted keys,
// compact separators) if the caller left it empty. Returns the stored bare
// UUID.
func (s *Store) CreateFact(ctx context.Context, fact Fact) (string, error) {
	if fact.UUID == "" {
		fact.UUID = ids.New()
	}
	fact.UUID = ids.StripTag(fact.UUID)

	if fact.Fidelity == "" {
		fact.Fidelity = FidelityFull
	}
	if fact.RealizedAt.IsZero() {
		fact.RealizedAt = time.Now().UTC()
	}

	if fact.IntegrityHash == "" {
		canon, err := canonicalizeJSON(fact.Data)
		if err != nil {
			return "", kernerr.NewStorageError("canonicalize fact data", err)
		}
		fact.IntegrityHash = contentSHA256Hex(canon)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO facts (uuid, type, realized_at, canonical_at, fidelity, integrity_hash, superseded_by, superseded_at, data, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		fact.UUID, fact.Type, fact.RealizedAt.Format(time.RFC3339Nano), nullableTime(fact.CanonicalAt),
		fact.Fidelity, fact.IntegrityHash, fact.SupersededBy, nullableTime(fact.SupersededAt),
		string(orEmptyJSON(fact.Data)), nullableJSON(fact.Metadata),
	)
	if err != nil {
		return "", kernerr.NewStorageError("insert fact", err)
	}
	return fact.UUID, nil
}

// GetFact fetches a Fact by UUID, accepted with or without the soil_ tag.
func (s *Store) GetFact(ctx context.Context, uuid string) (*Fact, error) {
	uuid = ids.StripTag(uuid)
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, type, realized_at, canonical_at, fidelity, integrity_hash, superseded_by, superseded_at, data, metadata
		FROM facts WHERE uuid = ?
	`, uuid)
	f, err := scanFact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kernerr.NewNotFoundError("fact", uuid)
	}
	if err != nil {
		return nil, kernerr.NewStorageError("get fact", err)
	}
	return f, nil
}

// MarkSuperseded links original to replacement. Idempotent only when
// re-applied with the same (replacement, at) pair.
func (s *Store) MarkSuperseded(ctx context.Context, original, replacement string, at time.Time) error {
	original = ids.StripTag(original)
	replacement = ids.StripTag(replacement)

	existing, err := s.GetFact(ctx, original)
	if err != nil {
		return err
	}
	if existing.SupersededBy != nil && *existing.SupersededBy != replacement {
		return kernerr.NewValidationError("superseded_by", "fact already superseded by a different replacement")
	}

	_, err = s.db.ExecContext(ctx, `
		UPDATE facts SET superseded_by = ?, superseded_at = ? WHERE uuid = ?
	`, replacement, at.UTC().Format(time.RFC3339Nano), original)
	if err != nil {
		return kernerr.NewStorageError("mark fact superseded", err)
	}
	return nil
}

// FindFactByRFCMessageID looks up an Email fact by data.rfc_message_id.
func (s *Store) FindFactByRFCMessageID(ctx context.Context, mid string) (*Fact, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT uuid, type, realized_at, canonical_at, fidelity, integrity_hash, superseded_by, superseded_at, data, metadata
		FROM facts WHERE type = ? AND json_extract(data, '$.rfc_message_id') = ?
		ORDER BY realized_at ASC LIMIT 1
	`, TypeEmail, mid)
	f, err := scanFact(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, kernerr.NewNotFoundError("fact by rfc_message_id", mid)
	}
	if err != nil {
		return nil, kernerr.NewStorageError("find fact by rfc message id", err)
	}
	return f, nil
}

// ListFacts returns the newest-first Facts, optionally filtered by type.
func (s *Store) ListFacts(ctx context.Context, factType string, limit int) ([]Fact, error) {
	var rows *sql.Rows
	var err error
	if factType == "" {
		rows, err = s.db.QueryContext(ctx, `
			SELECT uuid, type, realized_at, canonical_at, fidelity, integrity_hash, superseded_by, superseded_at, data, metadata
			FROM facts ORDER BY realized_at DESC LIMIT ?
		`, limit)
	} else {
		rows, err = s.db.QueryContext(ctx, `
			SELECT uuid, type, realized_at, canonical_at, fidelity, integrity_hash, superseded_by, superseded_at, data, metadata
			FROM facts WHERE type = ? ORDER BY realized_at DESC LIMIT ?
		`, factType, limit)
	}
	if err != nil {
		return nil, kernerr.NewStorageError("list facts", err)
	}
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, kernerr.NewStorageError("scan fact", err)
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// CountFacts returns the number of Facts, optionally filtered by type.
func (s *Store) CountFacts(ctx context.Context, factType string) (int, error) {
	var n int
	var err error
	if factType == "" {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM facts`).Scan(&n)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT count(*) FROM facts WHERE type = ?`, factType).Scan(&n)
	}
	if err != nil {
		return 0, kernerr.NewStorageError("count facts", err)
	}
	return n, nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for scanFact.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanFact(row rowScanner) (*Fact, error) {
	var f Fact
	var realizedAt string
	var canonicalAt, supersededAt sql.NullString
	var supersededBy sql.NullString
	var data string
	var metadata sql.NullString

	err := row.Scan(&f.UUID, &f.Type, &realizedAt, &canonicalAt, &f.Fidelity, &f.IntegrityHash,
		&supersededBy, &supersededAt, &data, &metadata)
	if err != nil {
		return nil, err
	}

	f.RealizedAt, err = time.Parse(time.RFC3339Nano, realizedAt)
	if err != nil {
		return nil, err
	}
	if canonicalAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, canonicalAt.String)
		if err != nil {
			return nil, err
		}
		f.CanonicalAt = &t
	}
	if supersededBy.Valid {
		v := supersededBy.String
		f.SupersededBy = &v
	}
	if supersededAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, supersededAt.String)
		if err != nil {
			return nil, err
		}
		f.SupersededAt = &t
	}
	f.Data = json.RawMessage(data)
	if metadata.Valid {
		f.Metadata = json.RawMessage(metadata.String)
	}
	return &f, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func nullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}

func orEmptyJSON(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("{}")
	}
	return raw
}
