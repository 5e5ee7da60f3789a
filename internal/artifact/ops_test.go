package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseOpsAllForms(t *testing.T) {
	ops, err := ParseOps("+2:^xyz\n-3\n~1:old→new\n>4@1")
	require.NoError(t, err)
	require.Len(t, ops, 4)

	assert.Equal(t, Op{Kind: OpInsert, Line: 2, Fragment: "^xyz"}, ops[0])
	assert.Equal(t, Op{Kind: OpRemove, Line: 3}, ops[1])
	assert.Equal(t, Op{Kind: OpReplace, Line: 1, Old: "old", New: "new"}, ops[2])
	assert.Equal(t, Op{Kind: OpMove, Line: 4, Target: 1}, ops[3])
}

func TestParseOpsSkipsBlankLines(t *testing.T) {
	ops, err := ParseOps("-1\n\n   \n-2")
	require.NoError(t, err)
	assert.Len(t, ops, 2)
}

func TestParseOpsRejectsUnrecognized(t *testing.T) {
	_, err := ParseOps("+2:not-a-fragment")
	assert.Error(t, err)

	_, err = ParseOps("garbage")
	assert.Error(t, err)
}

func TestFormatOpRoundTrip(t *testing.T) {
	cases := []string{
		"+2:^xyz",
		"-3",
		"~1:old→new",
		">4@1",
	}
	for _, raw := range cases {
		ops, err := ParseOps(raw)
		require.NoError(t, err)
		require.Len(t, ops, 1)
		assert.Equal(t, raw, FormatOp(ops[0]))
	}
}
