package core

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/memogarden/memogarden-system/internal/kernerr"
)

// execer is satisfied by both *sql.DB and *sql.Tx, letting the mutators
// below run unmodified whether they hold a fresh transaction (withTx) or
// the coordinator's already-open one (CoordinatedScope).
type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// Scope runs Entity mutations on a connection or transaction the caller
// already holds, so the entities write and its entity_hash_log witness row
// land in that caller's unit of work. Obtain one from Mutate (a fresh
// transaction) or CoordinatedScope (the connection on which internal/txn's
// coordinator has already issued BEGIN EXCLUSIVE). Store's own Create,
// UpdateData, UpdateHash and Supersede reach the same statements by opening
// a transaction per call.
type Scope struct {
	exec  execer
	store *Store
}

// withTx runs fn inside a fresh transaction, committing on success and
// rolling back otherwise — mirrors the teacher's
// s.withTx(ctx, func(tx *sql.Tx) error {...}) idiom (internal/storage/sqlite/dirty.go).
func (s *Store) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return kernerr.NewStorageError("begin entity transaction", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return kernerr.NewStorageError("commit entity transaction", err)
	}
	return nil
}

// Mutate opens a fresh transaction-backed Scope and runs fn inside it,
// committing on success and rolling back otherwise. Callers that need
// more than one Entity mutation to land atomically (e.g. contextstream's
// batched view appends) acquire a Scope this way instead of calling
// Store's single-call convenience methods once per statement.
func (s *Store) Mutate(ctx context.Context, fn func(ctx context.Context, scope *Scope) error) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &Scope{exec: tx, store: s})
	})
}

// CoordinatedScope wraps Core's connection as-is, for use only by
// internal/txn's coordinator, which has already issued its own
// BEGIN EXCLUSIVE on this same connection (C5). Starting a second,
// independent transaction here would deadlock against MaxOpenConns(1).
func (s *Store) CoordinatedScope() *Scope {
	return &Scope{exec: s.db, store: s}
}

// Create is the scoped form of Store.Create — see Store.Create for the
// field semantics.
func (scope *Scope) Create(ctx context.Context, entityType string, groupID, derivedFrom *string, data json.RawMessage) (string, error) {
	return createEntity(ctx, scope.exec, entityType, groupID, derivedFrom, data)
}

// UpdateData is the scoped form of Store.UpdateData.
func (scope *Scope) UpdateData(ctx context.Context, id string, newData json.RawMessage) (string, error) {
	return updateEntityData(ctx, scope.exec, id, newData)
}

// UpdateHash is the scoped form of Store.UpdateHash.
func (scope *Scope) UpdateHash(ctx context.Context, id string) (string, error) {
	return updateEntityHash(ctx, scope.exec, id)
}

// Supersede is the scoped form of Store.Supersede.
func (scope *Scope) Supersede(ctx context.Context, oldID, newID string) error {
	return supersedeEntity(ctx, scope.exec, oldID, newID)
}

// GetByID reads through the scope's own connection/transaction rather
// than Store's, so a read inside a Mutate/CoordinatedScope callback never
// competes with itself for Core's single pooled connection.
func (scope *Scope) GetByID(ctx context.Context, id, typeLabel string) (*Entity, error) {
	return getEntityByID(ctx, scope.exec, id, typeLabel)
}

// DB exposes the underlying *sql.DB, for callers (e.g. internal/artifact)
// that need to hand Core's connection to an unrelated helper such as an
// engagement index, which writes user_relations through it.
func (scope *Scope) DB() *sql.DB {
	return scope.store.db
}
