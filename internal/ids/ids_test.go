package ids

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTagRoundTrip(t *testing.T) {
	raw := New()
	require.Len(t, raw, 36)

	tagged := WithCoreTag(raw)
	assert.Equal(t, "core_"+raw, tagged)
	assert.Equal(t, raw, StripTag(tagged))
	assert.Equal(t, raw, StripTag(raw))

	// Re-tagging is idempotent.
	assert.Equal(t, tagged, WithCoreTag(tagged))
	assert.Equal(t, WithSoilTag(raw), WithSoilTag(WithSoilTag(raw)))
}

func TestComputeEntityHashDeterministic(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	updated := created

	h1 := ComputeEntityHash("Transaction", created, updated, "g1", "", "", "", "")
	h2 := ComputeEntityHash("Transaction", created, updated, "g1", "", "", "", "")
	assert.Equal(t, h1, h2)

	h3 := ComputeEntityHash("Transaction", created, updated, "g2", "", "", "", "")
	assert.NotEqual(t, h1, h3)

	// Chaining: the next hash binds previous_hash to the prior hash.
	next := ComputeEntityHash("Transaction", created, updated.Add(time.Minute), "g1", "", "", "", h1)
	assert.NotEqual(t, h1, next)
}

func TestComputeContentHashLength(t *testing.T) {
	h := ComputeContentHash("a\nb\nc")
	assert.Len(t, h, 8)
	assert.Equal(t, h, ComputeContentHash("a\nb\nc"))
	assert.NotEqual(t, h, ComputeContentHash("a\nb\nc\n"))
}

func TestFragmentIDShape(t *testing.T) {
	f := FragmentID("hello world")
	require.Len(t, f, 4)
	assert.Equal(t, "^", f[:1])
	for _, c := range f[1:] {
		assert.True(t, (c >= '0' && c <= '9') || (c >= 'a' && c <= 'z'))
	}
	assert.Equal(t, f, FragmentID("hello world"))
}

func TestDaysSinceEpoch(t *testing.T) {
	epoch := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, 0, DaysSinceEpoch(epoch))
	assert.Equal(t, 1, DaysSinceEpoch(epoch.Add(25*time.Hour)))

	back := ParseDay(DaysSinceEpoch(epoch.AddDate(1, 0, 0)))
	assert.Equal(t, epoch.AddDate(1, 0, 0).Format("2006-01-02"), back.Format("2006-01-02"))
}

func TestEncodeBase36PadAndTruncate(t *testing.T) {
	assert.Equal(t, "000", EncodeBase36([]byte{0, 0}, 3))
	long := EncodeBase36([]byte{0xff, 0xff, 0xff}, 2)
	assert.Len(t, long, 2)
}
