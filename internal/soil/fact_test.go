package soil

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(context.Background(), t.TempDir()+"/soil.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestCreateAndGetFact(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	uuid, err := s.CreateFact(ctx, Fact{
		Type: TypeNote,
		Data: json.RawMessage(`{"text":"hello"}`),
	})
	require.NoError(t, err)
	require.Len(t, uuid, 36)

	got, err := s.GetFact(ctx, uuid)
	require.NoError(t, err)
	assert.Equal(t, TypeNote, got.Type)
	assert.Equal(t, FidelityFull, got.Fidelity)
	assert.NotEmpty(t, got.IntegrityHash)

	// Accepted with a soil_ tag too.
	got2, err := s.GetFact(ctx, "soil_"+uuid)
	require.NoError(t, err)
	assert.Equal(t, got.UUID, got2.UUID)
}

func TestGetFactNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetFact(context.Background(), "00000000-0000-0000-0000-000000000000")
	assert.Error(t, err)
}

func TestMarkSuperseded(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	original, err := s.CreateFact(ctx, Fact{Type: TypeNote, Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	replacement, err := s.CreateFact(ctx, Fact{Type: TypeNote, Data: json.RawMessage(`{}`)})
	require.NoError(t, err)

	now := time.Now().UTC()
	require.NoError(t, s.MarkSuperseded(ctx, original, replacement, now))

	got, err := s.GetFact(ctx, original)
	require.NoError(t, err)
	require.NotNil(t, got.SupersededBy)
	assert.Equal(t, replacement, *got.SupersededBy)

	// Idempotent when re-applied with the same replacement.
	require.NoError(t, s.MarkSuperseded(ctx, original, replacement, now))

	// A different replacement is rejected.
	other, err := s.CreateFact(ctx, Fact{Type: TypeNote, Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Error(t, s.MarkSuperseded(ctx, original, other, now))
}

func TestFindFactByRFCMessageID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateFact(ctx, Fact{Type: TypeEmail, Data: json.RawMessage(`{"rfc_message_id":"<m@x>"}`)})
	require.NoError(t, err)
	_, err = s.CreateFact(ctx, Fact{Type: TypeEmail, Data: json.RawMessage(`{"rfc_message_id":"<m@x>"}`)})
	require.NoError(t, err)

	found, err := s.FindFactByRFCMessageID(ctx, "<m@x>")
	require.NoError(t, err)
	assert.Equal(t, first, found.UUID)

	count, err := s.CountFacts(ctx, TypeEmail)
	require.NoError(t, err)
	assert.Equal(t, 2, count)
}

func TestListFacts(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := s.CreateFact(ctx, Fact{Type: TypeNote, Data: json.RawMessage(`{}`)})
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	facts, err := s.ListFacts(ctx, TypeNote, 2)
	require.NoError(t, err)
	assert.Len(t, facts, 2)
}
