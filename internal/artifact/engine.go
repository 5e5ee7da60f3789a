package artifact

import (
	"context"

	"github.com/memogarden/memogarden-system/internal/core"
	"github.com/memogarden/memogarden-system/internal/engagement"
	"github.com/memogarden/memogarden-system/internal/ids"
	"github.com/memogarden/memogarden-system/internal/kernerr"
	"github.com/memogarden/memogarden-system/internal/soil"
	"github.com/memogarden/memogarden-system/internal/txn"
)

// Engine implements the artifact commit protocol (§4.7). It runs every
// mutating operation inside a cross-database transaction (C5) since step 5
// writes an ArtifactDelta Fact to Soil while step 6 advances the Artifact
// Entity's hash chain in Core.
type Engine struct {
	coord *txn.Coordinator
}

// New wraps a transaction coordinator with artifact operations.
func New(coord *txn.Coordinator) *Engine {
	return &Engine{coord: coord}
}

// CommitResult is the return value of CommitDelta (§4.7).
type CommitResult struct {
	ArtifactUUID   string
	PreviousHash   string
	NewHash        string
	NewContent     string
	DeltaUUID      string
	LineCount      int
}

// CommitDelta applies ops to the artifact's content under strict optimistic
// locking: basedOnHash must match the artifact's current content hash, or
// a *kernerr.ConflictError is raised and nothing is written to either
// database (§8 "Optimistic-lock refusal").
func (e *Engine) CommitDelta(ctx context.Context, artifactUUID, ops string, basedOnHash, sourceMessage string) (CommitResult, error) {
	parsed, err := ParseOps(ops)
	if err != nil {
		return CommitResult{}, err
	}

	var result CommitResult
	txErr := e.coord.CrossDatabaseTransaction(ctx, func(ctx context.Context, scope *txn.Scope) error {
		entity, err := scope.Core.GetByID(ctx, artifactUUID, core.TypeArtifact)
		if err != nil {
			return err
		}

		payload, err := unmarshalPayload(entity.Data)
		if err != nil {
			return kernerr.NewStorageError("unmarshal artifact payload", err)
		}

		currentHash := ids.ComputeContentHash(payload.Content)
		if currentHash != basedOnHash {
			return &kernerr.ConflictError{UUID: ids.StripTag(artifactUUID), Expected: basedOnHash, Actual: currentHash}
		}

		newContent, err := Apply(payload.Content, parsed)
		if err != nil {
			return err
		}
		newHash := ids.ComputeContentHash(newContent)

		deltaUUID, err := scope.Soil.CreateFact(ctx, soil.Fact{
			Type: soil.TypeArtifactDelta,
			Data: mustMarshalDeltaFact(DeltaFactData{
				ArtifactUUID: ids.StripTag(artifactUUID),
				Ops:          ops,
				BasedOnHash:  basedOnHash,
				ResultHash:   newHash,
			}),
		})
		if err != nil {
			return err
		}

		payload.Content = newContent
		payload.Deltas = append(payload.Deltas, deltaUUID)
		newData, err := marshalPayload(payload)
		if err != nil {
			return kernerr.NewStorageError("marshal artifact payload", err)
		}

		if _, err := scope.Core.UpdateData(ctx, artifactUUID, newData); err != nil {
			return err
		}

		if sourceMessage != "" {
			idx := engagement.New(scope.Core.DB())
			if _, err := idx.Create(ctx, "triggers", ids.StripTag(sourceMessage), "item", deltaUUID, "item", 7, nil, nil); err != nil {
				return err
			}
		}

		result = CommitResult{
			ArtifactUUID: ids.StripTag(artifactUUID),
			PreviousHash: currentHash,
			NewHash:      newHash,
			NewContent:   newContent,
			DeltaUUID:    deltaUUID,
			LineCount:    len(splitLines(newContent)),
		}
		return nil
	})
	if txErr != nil {
		return CommitResult{}, txErr
	}
	return result, nil
}

// GetAtCommit returns the artifact's content when hash matches its current
// content hash. Historical reconstruction by replaying the delta chain is
// an explicit future extension (§4.7, §9 Open Question (a)): when hash
// does not match the current state, this returns the current content with
// a Note explaining the limitation rather than silently collapsing a
// mismatch into a wrong answer.
func (e *Engine) GetAtCommit(ctx context.Context, coreStore *core.Store, artifactUUID, hash string) (content string, note string, err error) {
	entity, err := coreStore.GetByID(ctx, artifactUUID, core.TypeArtifact)
	if err != nil {
		return "", "", err
	}
	payload, err := unmarshalPayload(entity.Data)
	if err != nil {
		return "", "", kernerr.NewStorageError("unmarshal artifact payload", err)
	}

	currentHash := ids.ComputeContentHash(payload.Content)
	if hash == currentHash {
		return payload.Content, "", nil
	}
	return payload.Content, "historical reconstruction from the delta chain is not implemented; returning current content", nil
}

// DiffLine is one aligned row of DiffCommits's output (§4.7).
type DiffLine struct {
	Line int
	Old  string
	New  string
	Type string // added | removed | modified | unchanged
}

// Diff line Types.
const (
	DiffAdded     = "added"
	DiffRemoved   = "removed"
	DiffModified  = "modified"
	DiffUnchanged = "unchanged"
)

// DiffCommits returns a line-aligned difference between two content
// snapshots supplied by the caller; it does not look anything up by hash.
// DiffCommits(a, a) always yields only `unchanged` entries (§8 "Diff
// idempotence").
func DiffCommits(contentA, contentB string) []DiffLine {
	linesA := splitLines(contentA)
	linesB := splitLines(contentB)

	max := len(linesA)
	if len(linesB) > max {
		max = len(linesB)
	}

	out := make([]DiffLine, 0, max)
	for i := 0; i < max; i++ {
		var a, b string
		hasA := i < len(linesA)
		hasB := i < len(linesB)
		if hasA {
			a = linesA[i]
		}
		if hasB {
			b = linesB[i]
		}

		d := DiffLine{Line: i + 1, Old: a, New: b}
		switch {
		case hasA && !hasB:
			d.Type = DiffRemoved
		case !hasA && hasB:
			d.Type = DiffAdded
		case a != b:
			d.Type = DiffModified
		default:
			d.Type = DiffUnchanged
		}
		out = append(out, d)
	}
	return out
}

// ListDeltas returns the most recent entries of the artifact's delta chain
// (the tail of data.deltas, newest last).
func ListDeltas(payload Payload, limit int) []string {
	if limit <= 0 || limit >= len(payload.Deltas) {
		return append([]string{}, payload.Deltas...)
	}
	return append([]string{}, payload.Deltas[len(payload.Deltas)-limit:]...)
}

func mustMarshalDeltaFact(d DeltaFactData) []byte {
	b, err := marshalDeltaFact(d)
	if err != nil {
		// DeltaFactData is a flat struct of strings; marshaling cannot fail.
		panic(err)
	}
	return b
}
