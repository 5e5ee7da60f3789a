// Package ids mints identifiers and computes the hashes that the storage
// kernel uses as cryptographic handles: entity chain hashes, artifact content
// hashes, and fragment IDs.
package ids

import (
	"crypto/sha256"
	"encoding/hex"
	"math/big"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Layer tags distinguish which database an object's UUID belongs to.
const (
	CoreTag = "core_"
	SoilTag = "soil_"
)

// base36Alphabet matches the teacher's hash-ID alphabet (0-9, a-z).
const base36Alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"

// New mints a bare (untagged) UUID v4.
func New() string {
	return uuid.NewString()
}

// WithCoreTag prefixes a bare UUID with "core_". Idempotent: already-tagged
// input is returned unchanged.
func WithCoreTag(id string) string {
	return attachTag(id, CoreTag)
}

// WithSoilTag prefixes a bare UUID with "soil_". Idempotent.
func WithSoilTag(id string) string {
	return attachTag(id, SoilTag)
}

func attachTag(id, tag string) string {
	if strings.HasPrefix(id, CoreTag) || strings.HasPrefix(id, SoilTag) {
		return id
	}
	return tag + id
}

// StripTag removes a leading "core_" or "soil_" tag, if present, returning
// the bare 36-character UUID form used for storage.
func StripTag(id string) string {
	switch {
	case strings.HasPrefix(id, CoreTag):
		return strings.TrimPrefix(id, CoreTag)
	case strings.HasPrefix(id, SoilTag):
		return strings.TrimPrefix(id, SoilTag)
	default:
		return id
	}
}

// EncodeBase36 converts bytes to a base36 string of exactly `length`
// characters, left-padding with zeros or truncating to the least-significant
// digits as needed. Mirrors the teacher's idgen.EncodeBase36.
func EncodeBase36(data []byte, length int) string {
	num := new(big.Int).SetBytes(data)
	base := big.NewInt(36)
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, length)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, base36Alphabet[mod.Int64()])
	}

	var sb strings.Builder
	for i := len(chars) - 1; i >= 0; i-- {
		sb.WriteByte(chars[i])
	}

	str := sb.String()
	if len(str) < length {
		str = strings.Repeat("0", length-len(str)) + str
	}
	if len(str) > length {
		str = str[len(str)-length:]
	}
	return str
}

// CanonicalJoin builds the canonical byte string hashed by
// ComputeEntityHash. Fields are joined with a unit separator so that no
// field's content can be mistaken for a delimiter; empty/nullable fields
// serialize as the literal "-".
func CanonicalJoin(fields ...string) string {
	norm := make([]string, len(fields))
	for i, f := range fields {
		if f == "" {
			norm[i] = "-"
		} else {
			norm[i] = f
		}
	}
	return strings.Join(norm, "\x1f")
}

// ComputeEntityHash implements compute_entity_hash (§4.1): a pure SHA-256
// over the canonically-ordered entity state.
func ComputeEntityHash(entityType string, createdAt, updatedAt time.Time, groupID, derivedFrom, supersededBy, supersededAt, previousHash string) string {
	payload := CanonicalJoin(
		entityType,
		createdAt.UTC().Format(time.RFC3339Nano),
		updatedAt.UTC().Format(time.RFC3339Nano),
		groupID,
		derivedFrom,
		supersededBy,
		supersededAt,
		previousHash,
	)
	sum := sha256.Sum256([]byte(payload))
	return hex.EncodeToString(sum[:])
}

// ComputeContentHash returns the 8-hex-character SHA-256 prefix used as an
// artifact's content-identity hash.
func ComputeContentHash(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])[:8]
}

// FragmentID mints a "^xyz" fragment reference from the first two bytes of
// SHA-256(text), reinterpreted as a zero-padded base-36 integer truncated to
// 3 characters (§4.1).
func FragmentID(text string) string {
	sum := sha256.Sum256([]byte(text))
	return "^" + EncodeBase36(sum[:2], 3)
}

// DaysSinceEpoch converts a time to an integer day count since 2020-01-01
// UTC, the epoch used by engagement-index time horizons (§4.4).
func DaysSinceEpoch(t time.Time) int {
	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return int(t.UTC().Sub(epoch).Hours() / 24)
}

// CurrentDay returns DaysSinceEpoch(time.Now()).
func CurrentDay() int {
	return DaysSinceEpoch(time.Now())
}

// ParseDay is a small helper for tests and CLI tooling that need to print a
// days-since-epoch value back as a date.
func ParseDay(day int) time.Time {
	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	return epoch.Add(time.Duration(day) * 24 * time.Hour)
}

// FormatDay renders a days-since-epoch integer for diagnostics.
func FormatDay(day int) string {
	return strconv.Itoa(day) + "d(" + ParseDay(day).Format("2006-01-02") + ")"
}

