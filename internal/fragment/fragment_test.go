package fragment

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memogarden/memogarden-system/internal/kernerr"
)

func TestParseReferencesAllFourForms(t *testing.T) {
	text := "see ^abc and msg:42 and msg:42@0a1b and @soil_note-1 and [log](core_entity-2)"
	refs := ParseReferences(text)
	require.Len(t, refs, 5)

	assert.Equal(t, KindFragment, refs[0].Type)
	assert.Equal(t, "^abc", refs[0].Target)

	assert.Equal(t, KindArtifactLine, refs[1].Type)
	assert.Equal(t, "msg:42", refs[1].Target)

	assert.Equal(t, KindArtifactLineAtCommit, refs[2].Type)
	assert.Equal(t, "msg:42@0a1b", refs[2].Target)

	assert.Equal(t, KindObject, refs[3].Type)
	assert.Equal(t, "soil_note-1", refs[3].Target)

	assert.Equal(t, KindLog, refs[4].Type)
	assert.Equal(t, "core_entity-2", refs[4].Target)
}

func TestParseReferencesNoMatches(t *testing.T) {
	refs := ParseReferences("just plain text, nothing special here")
	assert.Empty(t, refs)
}

func TestParseReferencesPositions(t *testing.T) {
	text := "a ^xyz b"
	refs := ParseReferences(text)
	require.Len(t, refs, 1)
	assert.Equal(t, 2, refs[0].Start)
	assert.Equal(t, 6, refs[0].End)
	assert.Equal(t, text[refs[0].Start:refs[0].End], refs[0].Raw)
}

func TestResolveStubsReturnNotImplemented(t *testing.T) {
	_, err := ResolveFragment("^abc")
	require.Error(t, err)
	var nie *kernerr.NotImplementedError
	assert.ErrorAs(t, err, &nie)

	_, err = ResolveArtifactLine("msg:1")
	require.Error(t, err)
	assert.ErrorAs(t, err, &nie)
}
