package soil

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateRelationIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	first, err := s.CreateRelation(ctx, SystemRelation{
		Kind: RelationCites, Source: "a", SourceType: TargetItem,
		Target: "b", TargetType: TargetItem, CreatedAt: 100,
	})
	require.NoError(t, err)

	second, err := s.CreateRelation(ctx, SystemRelation{
		Kind: RelationCites, Source: "a", SourceType: TargetItem,
		Target: "b", TargetType: TargetItem, CreatedAt: 200,
	})
	require.NoError(t, err)

	assert.Equal(t, first, second)

	count, err := s.CountRelations(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestCreateRepliesTo(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	parent, err := s.CreateFact(ctx, Fact{Type: TypeMessage, Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	reply, err := s.CreateFact(ctx, Fact{Type: TypeMessage, Data: json.RawMessage(`{}`)})
	require.NoError(t, err)

	uuid, err := s.CreateRepliesTo(ctx, reply, parent, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, uuid)

	_, err = s.CreateRepliesTo(ctx, reply, "00000000-0000-0000-0000-000000000000", nil)
	assert.Error(t, err)
}

func TestGetRelationsFiltered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	_, err := s.CreateRelation(ctx, SystemRelation{Kind: RelationCites, Source: "x", SourceType: TargetItem, Target: "y", TargetType: TargetItem, CreatedAt: 1})
	require.NoError(t, err)
	_, err = s.CreateRelation(ctx, SystemRelation{Kind: RelationContains, Source: "x", SourceType: TargetItem, Target: "z", TargetType: TargetItem, CreatedAt: 1})
	require.NoError(t, err)

	byKind, err := s.GetRelations(ctx, "", RelationCites)
	require.NoError(t, err)
	assert.Len(t, byKind, 1)

	bySource, err := s.GetRelations(ctx, "x", "")
	require.NoError(t, err)
	assert.Len(t, bySource, 2)
}
