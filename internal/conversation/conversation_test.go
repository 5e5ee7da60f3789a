package conversation

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memogarden/memogarden-system/internal/core"
)

func newTestEngine(t *testing.T) (*Engine, *core.Store) {
	t.Helper()
	s, err := core.Open(context.Background(), t.TempDir()+"/core.db")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return New(s), s
}

func newLog(t *testing.T, coreStore *core.Store, payload Payload) string {
	t.Helper()
	data, err := json.Marshal(payload)
	require.NoError(t, err)
	uuid, err := coreStore.Create(context.Background(), core.TypeConversationLog, nil, nil, data)
	require.NoError(t, err)
	return uuid
}

func TestFoldAttachesSummaryAndCollapses(t *testing.T) {
	engine, coreStore := newTestEngine(t)
	ctx := context.Background()

	logUUID := newLog(t, coreStore, Payload{Items: []string{"fact-1"}})

	require.NoError(t, engine.Fold(ctx, logUUID, "discussed the budget", AuthorOperator, []string{"^abc"}))

	entity, err := coreStore.GetByID(ctx, logUUID, core.TypeConversationLog)
	require.NoError(t, err)
	var payload Payload
	require.NoError(t, json.Unmarshal(entity.Data, &payload))

	assert.True(t, payload.Collapsed)
	require.NotNil(t, payload.Summary)
	assert.Equal(t, "discussed the budget", payload.Summary.Content)
	assert.Equal(t, AuthorOperator, payload.Summary.Author)
	assert.Equal(t, []string{"^abc"}, payload.Summary.FragmentIDs)
}

func TestFoldRejectsEmptySummary(t *testing.T) {
	engine, coreStore := newTestEngine(t)
	ctx := context.Background()

	logUUID := newLog(t, coreStore, Payload{})
	assert.Error(t, engine.Fold(ctx, logUUID, "   ", AuthorOperator, nil))
}

func TestFoldRejectsUnknownAuthor(t *testing.T) {
	engine, coreStore := newTestEngine(t)
	ctx := context.Background()

	logUUID := newLog(t, coreStore, Payload{})
	assert.Error(t, engine.Fold(ctx, logUUID, "ok", "nobody", nil))
}

func TestAppendItemAfterFoldStillWorks(t *testing.T) {
	engine, coreStore := newTestEngine(t)
	ctx := context.Background()

	logUUID := newLog(t, coreStore, Payload{Items: []string{"fact-1"}})
	require.NoError(t, engine.Fold(ctx, logUUID, "checkpoint", AuthorSystem, nil))

	require.NoError(t, engine.AppendItem(ctx, logUUID, "fact-2"))

	entity, err := coreStore.GetByID(ctx, logUUID, core.TypeConversationLog)
	require.NoError(t, err)
	var payload Payload
	require.NoError(t, json.Unmarshal(entity.Data, &payload))

	assert.Equal(t, []string{"fact-1", "fact-2"}, payload.Items)
	assert.True(t, payload.Collapsed, "appending after a fold must not un-collapse the log")
}
