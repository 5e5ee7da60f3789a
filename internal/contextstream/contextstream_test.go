package contextstream

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memogarden/memogarden-system/internal/core"
)

func newTestService(t *testing.T) (*Service, *core.Store) {
	t.Helper()
	s, err := core.Open(context.Background(), t.TempDir()+"/core.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s), s
}

func TestCreateFrameDefaultsAndPrimaryUniqueness(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	uuid, err := svc.CreateFrame(ctx, "alice", OwnerOperator, 0, nil)
	require.NoError(t, err)

	frame, err := svc.GetFrame(ctx, uuid)
	require.NoError(t, err)
	assert.Empty(t, frame.Containers)
	assert.NotNil(t, frame.ActiveScopes)

	_, err = svc.CreateFrame(ctx, "alice", OwnerOperator, 0, nil)
	assert.Error(t, err, "a second primary frame for the same owner must be rejected")
}

func TestCreateFrameRejectsOutOfRangeN(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.CreateFrame(ctx, "bob", OwnerAgent, 1, nil)
	assert.Error(t, err)
	_, err = svc.CreateFrame(ctx, "bob", OwnerAgent, 50, nil)
	assert.Error(t, err)
}

func TestCreateFrameForkInheritance(t *testing.T) {
	svc, coreStore := newTestService(t)
	ctx := context.Background()

	parentUUID, err := svc.CreateFrame(ctx, "alice", OwnerOperator, DefaultN, nil)
	require.NoError(t, err)

	entityUUID, err := coreStore.Create(ctx, core.TypeScope, nil, nil, []byte(`{"label":"x"}`))
	require.NoError(t, err)
	_, err = svc.UpdateContainers(ctx, parentUUID, entityUUID, DefaultN)
	require.NoError(t, err)

	childUUID, err := svc.CreateFrame(ctx, "alice", OwnerScope, DefaultN, &parentUUID)
	require.NoError(t, err)

	child, err := svc.GetFrame(ctx, childUUID)
	require.NoError(t, err)
	require.NotNil(t, child.ParentFrameUUID)
	assert.Equal(t, parentUUID, *child.ParentFrameUUID)
	assert.Equal(t, []string{entityUUID}, child.Containers, "fork must snapshot the parent's containers at creation time")

	parent, err := svc.GetFrame(ctx, parentUUID)
	require.NoError(t, err)
	otherEntity, err := coreStore.Create(ctx, core.TypeScope, nil, nil, []byte(`{"label":"y"}`))
	require.NoError(t, err)
	_, err = svc.UpdateContainers(ctx, parentUUID, otherEntity, DefaultN)
	require.NoError(t, err)
	_ = parent

	child2, err := svc.GetFrame(ctx, childUUID)
	require.NoError(t, err)
	assert.Equal(t, []string{entityUUID}, child2.Containers, "child snapshot must not change when parent mutates afterward")
}

func TestUpdateContainersPrimitiveNonAdmission(t *testing.T) {
	svc, coreStore := newTestService(t)
	ctx := context.Background()

	frameUUID, err := svc.CreateFrame(ctx, "alice", OwnerOperator, DefaultN, nil)
	require.NoError(t, err)

	schemaUUID, err := coreStore.Create(ctx, core.TypeSchema, nil, nil, []byte(`{}`))
	require.NoError(t, err)

	frame, err := svc.UpdateContainers(ctx, frameUUID, schemaUUID, DefaultN)
	require.NoError(t, err)
	assert.Empty(t, frame.Containers, "a primitive-typed entity must never enter containers")
}

func TestUpdateContainersLRUBound(t *testing.T) {
	svc, coreStore := newTestService(t)
	ctx := context.Background()

	frameUUID, err := svc.CreateFrame(ctx, "alice", OwnerOperator, MinN, nil)
	require.NoError(t, err)

	var last string
	for i := 0; i < MinN+2; i++ {
		uuid, err := coreStore.Create(ctx, core.TypeScope, nil, nil, []byte(`{"label":"x"}`))
		require.NoError(t, err)
		_, err = svc.UpdateContainers(ctx, frameUUID, uuid, MinN)
		require.NoError(t, err)
		last = uuid
	}

	frame, err := svc.GetFrame(ctx, frameUUID)
	require.NoError(t, err)
	assert.Len(t, frame.Containers, MinN)
	assert.Equal(t, last, frame.Containers[0], "most recently visited entity must be at the front")
}

func TestAppendViewLinkedListOrdering(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	frameUUID, err := svc.CreateFrame(ctx, "alice", OwnerOperator, DefaultN, nil)
	require.NoError(t, err)

	actions := []Action{{Type: "visit", Target: "x", Timestamp: time.Unix(0, 0).UTC()}}
	v1, err := svc.CreateView(ctx, frameUUID, "alice", actions, nil)
	require.NoError(t, err)
	require.NoError(t, svc.AppendView(ctx, frameUUID, v1))

	v2, err := svc.CreateView(ctx, frameUUID, "alice", actions, nil)
	require.NoError(t, err)
	require.NoError(t, svc.AppendView(ctx, frameUUID, v2))

	view2, err := svc.GetView(ctx, v2)
	require.NoError(t, err)
	require.NotNil(t, view2.Prev)
	assert.Equal(t, v1, *view2.Prev)

	frame, err := svc.GetFrame(ctx, frameUUID)
	require.NoError(t, err)
	assert.Equal(t, []string{v1, v2}, frame.ViewTimeline)
}

func TestAppendViewStaleTailRejected(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	frameUUID, err := svc.CreateFrame(ctx, "alice", OwnerOperator, DefaultN, nil)
	require.NoError(t, err)

	actions := []Action{{Type: "visit", Target: "x", Timestamp: time.Unix(0, 0).UTC()}}
	v1, err := svc.CreateView(ctx, frameUUID, "alice", actions, nil)
	require.NoError(t, err)
	require.NoError(t, svc.AppendView(ctx, frameUUID, v1))

	stale := v1
	v2, err := svc.CreateView(ctx, frameUUID, "alice", actions, &stale)
	require.NoError(t, err)

	v3, err := svc.CreateView(ctx, frameUUID, "alice", actions, nil)
	require.NoError(t, err)
	require.NoError(t, svc.AppendView(ctx, frameUUID, v3))

	// v2 was minted against a tail that is no longer current; appending it
	// with its stale recorded prev must fail.
	err = svc.AppendView(ctx, frameUUID, v2)
	assert.Error(t, err)
}

func TestAppendViewToContextsAtomic(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	f1, err := svc.CreateFrame(ctx, "alice", OwnerOperator, DefaultN, nil)
	require.NoError(t, err)
	f2, err := svc.CreateFrame(ctx, "alice", OwnerScope, DefaultN, &f1)
	require.NoError(t, err)

	actions := []Action{{Type: "visit", Target: "x", Timestamp: time.Unix(0, 0).UTC()}}
	v1, err := svc.CreateView(ctx, f1, "alice", actions, nil)
	require.NoError(t, err)

	require.NoError(t, svc.AppendViewToContexts(ctx, v1, []string{f1, f2}))

	frame1, err := svc.GetFrame(ctx, f1)
	require.NoError(t, err)
	assert.Contains(t, frame1.ViewTimeline, v1)

	frame2, err := svc.GetFrame(ctx, f2)
	require.NoError(t, err)
	assert.Contains(t, frame2.ViewTimeline, v1)
}

func TestScopeVerbs(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	frameUUID, err := svc.CreateFrame(ctx, "alice", OwnerOperator, DefaultN, nil)
	require.NoError(t, err)

	require.NoError(t, svc.EnterScope(ctx, frameUUID, "work"))
	frame, err := svc.GetFrame(ctx, frameUUID)
	require.NoError(t, err)
	require.NotNil(t, frame.PrimaryScope)
	assert.Equal(t, "work", *frame.PrimaryScope)

	require.NoError(t, svc.EnterScope(ctx, frameUUID, "home"))
	frame, err = svc.GetFrame(ctx, frameUUID)
	require.NoError(t, err)
	assert.Equal(t, "work", *frame.PrimaryScope, "entering a second scope does not change an existing primary")

	require.NoError(t, svc.FocusScope(ctx, frameUUID, "home"))
	frame, err = svc.GetFrame(ctx, frameUUID)
	require.NoError(t, err)
	assert.Equal(t, "home", *frame.PrimaryScope)

	assert.Error(t, svc.FocusScope(ctx, frameUUID, "nonexistent"))

	require.NoError(t, svc.LeaveScope(ctx, frameUUID, "home"))
	frame, err = svc.GetFrame(ctx, frameUUID)
	require.NoError(t, err)
	assert.Nil(t, frame.PrimaryScope, "leaving the primary scope clears it")
	assert.NotContains(t, frame.ActiveScopes, "home")
}

func TestShouldCoalesce(t *testing.T) {
	base := time.Unix(1000, 0).UTC()
	view := View{Actions: []Action{{Timestamp: base}}}

	assert.True(t, ShouldCoalesce(view, base.Add(4*time.Minute), 5*time.Minute))
	assert.False(t, ShouldCoalesce(view, base.Add(6*time.Minute), 5*time.Minute))

	ended := base
	closed := View{Actions: []Action{{Timestamp: base}}, EndedAt: &ended}
	assert.False(t, ShouldCoalesce(closed, base.Add(time.Second), 5*time.Minute))
}
