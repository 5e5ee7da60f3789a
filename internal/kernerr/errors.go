// Package kernerr defines the storage kernel's error taxonomy (§7). Every
// component returns errors classifiable with errors.Is/errors.As against the
// sentinels and typed errors in this package, the way the teacher's
// internal/storage/sqlite/errors.go classifies database errors against its
// own sentinels.
package kernerr

import (
	"errors"
	"fmt"
)

// Sentinel kinds. Wrap with fmt.Errorf("%s: %w", op, ErrNotFound) etc, or use
// the typed errors below when the caller needs structured fields.
var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("validation error")
	ErrStorage        = errors.New("storage error")
	ErrNotImplemented = errors.New("not implemented")
)

// ValidationError reports malformed input: empty summary, out-of-range LRU
// N, unknown relation kind, invalid owner_type, and similar caller mistakes.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error: %s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NewValidationError is a convenience constructor.
func NewValidationError(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotFoundError names the kind of object and the identifier that was absent.
type NotFoundError struct {
	Kind string
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s not found: %s", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NewNotFoundError is a convenience constructor.
func NewNotFoundError(kind, id string) error {
	return &NotFoundError{Kind: kind, ID: id}
}

// ConflictError is raised by the artifact engine's optimistic lock
// (commit_delta, §4.7) on a stale based_on_hash.
type ConflictError struct {
	UUID     string
	Expected string
	Actual   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("conflict on %s: expected hash %s, actual %s", e.UUID, e.Expected, e.Actual)
}

// OptimisticLockError describes an entity hash mismatch (§4.3): the entity's
// uuid with the expected and actual hashes. The entity registry's
// CheckConflict reports staleness as a bool and does not return this error.
type OptimisticLockError struct {
	UUID     string
	Expected string
	Actual   string
}

func (e *OptimisticLockError) Error() string {
	return fmt.Sprintf("optimistic lock failed on %s: expected hash %s, actual %s", e.UUID, e.Expected, e.Actual)
}

// ConsistencyError is raised by the cross-database transaction coordinator
// (§4.5) when Soil commits but Core fails. It bypasses normal rollback
// handling and forces SystemStatus=INCONSISTENT.
type ConsistencyError struct {
	SoilCommitted bool
	CoreErr       error
	Orphans       []string
	BrokenChains  []string
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("consistency error: soil_committed=%v core_error=%v orphans=%d broken_chains=%d",
		e.SoilCommitted, e.CoreErr, len(e.Orphans), len(e.BrokenChains))
}

func (e *ConsistencyError) Unwrap() error { return e.CoreErr }

// StorageError wraps a disk/serialization failure from below the kernel.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error during %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return errors.Join(ErrStorage, e.Err) }

// NewStorageError is a convenience constructor; returns nil if err is nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}

// NotImplementedError marks a deferred behavior (fragment/artifact-line
// resolution, historical artifact reconstruction, §4.9/§4.7). It must be
// raised, never silently converted to a partial answer.
type NotImplementedError struct {
	Feature string
}

func (e *NotImplementedError) Error() string {
	return fmt.Sprintf("not implemented: %s", e.Feature)
}

func (e *NotImplementedError) Unwrap() error { return ErrNotImplemented }

// NewNotImplementedError is a convenience constructor.
func NewNotImplementedError(feature string) error {
	return &NotImplementedError{Feature: feature}
}

// AuthenticationError and PermissionDenied are reserved for the surface layer
// (§7): the kernel accepts caller identity as an opaque string and never
// raises these itself, but defines them here so a consuming HTTP/CLI layer
// shares one error vocabulary with the kernel.
type AuthenticationError struct {
	Reason string
}

func (e *AuthenticationError) Error() string { return "authentication error: " + e.Reason }

type PermissionDeniedError struct {
	Actor  string
	Action string
}

func (e *PermissionDeniedError) Error() string {
	return fmt.Sprintf("permission denied: %s may not %s", e.Actor, e.Action)
}

// WrapStorage classifies a database/sql error, converting sql.ErrNoRows-like
// conditions is left to callers (they already hold the "kind" context); this
// helper just tags genuine I/O/serialization failures as StorageError.
func WrapStorage(op string, err error) error {
	return NewStorageError(op, err)
}
