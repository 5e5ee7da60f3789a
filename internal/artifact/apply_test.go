package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestApplyWorkedExample reproduces the spec's canonical example: inserting
// before line 2 and removing line 3 of a 3-line document.
func TestApplyWorkedExample(t *testing.T) {
	ops, err := ParseOps("+2:^xyz\n-3")
	require.NoError(t, err)

	out, err := Apply("a\nb\nc", ops)
	require.NoError(t, err)
	assert.Equal(t, "a\n[^xyz]\nb", out)
}

func TestApplyRemoveDescendingOrderKeepsIndicesValid(t *testing.T) {
	ops, err := ParseOps("-1\n-2")
	require.NoError(t, err)

	out, err := Apply("a\nb\nc", ops)
	require.NoError(t, err)
	assert.Equal(t, "c", out)
}

func TestApplyReplace(t *testing.T) {
	ops, err := ParseOps("~2:b→B")
	require.NoError(t, err)

	out, err := Apply("a\nb\nc", ops)
	require.NoError(t, err)
	assert.Equal(t, "a\nB\nc", out)
}

func TestApplyMove(t *testing.T) {
	ops, err := ParseOps(">1@3")
	require.NoError(t, err)

	out, err := Apply("a\nb\nc", ops)
	require.NoError(t, err)
	assert.Equal(t, "b\nc\na", out)
}

func TestApplyInsertAppendAfterLastLine(t *testing.T) {
	ops, err := ParseOps("+4:^abc")
	require.NoError(t, err)

	out, err := Apply("a\nb\nc", ops)
	require.NoError(t, err)
	assert.Equal(t, "a\nb\nc\n[^abc]", out)
}

func TestApplyOutOfRangeFails(t *testing.T) {
	ops, err := ParseOps("-9")
	require.NoError(t, err)

	_, err = Apply("a\nb\nc", ops)
	assert.Error(t, err)
}
