package schedule

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseClock(t *testing.T) {
	c, err := ParseClock("09:30")
	require.NoError(t, err)
	assert.Equal(t, Clock(570), c)
	assert.Equal(t, "09:30", c.String())

	c, err = ParseClock("24:00")
	require.NoError(t, err)
	assert.Equal(t, endOfDay, c)

	for _, bad := range []string{"", "9", "25:00", "24:01", "10:60", "ab:cd", "10:-1"} {
		_, err := ParseClock(bad)
		assert.ErrorIs(t, err, ErrInvalidClock, bad)
	}
}

func TestParseRange(t *testing.T) {
	r, err := ParseRange("09:00-11:30")
	require.NoError(t, err)
	assert.Equal(t, Range{Start: MustClock("09:00"), End: MustClock("11:30")}, r)
	assert.Equal(t, "09:00-11:30", r.String())

	_, err = ParseRange("11:00-09:00")
	assert.ErrorIs(t, err, ErrInvalidClock)
	_, err = ParseRange("10:00-10:00")
	assert.ErrorIs(t, err, ErrInvalidClock)
	_, err = ParseRange("10:00")
	assert.ErrorIs(t, err, ErrInvalidClock)
}

func TestRangeContains(t *testing.T) {
	hours := Range{Start: MustClock("08:00"), End: MustClock("17:00")}
	assert.True(t, hours.Contains(Range{Start: MustClock("08:00"), End: MustClock("17:00")}))
	assert.True(t, hours.Contains(Range{Start: MustClock("10:00"), End: MustClock("12:00")}))
	assert.False(t, hours.Contains(Range{Start: MustClock("07:00"), End: MustClock("09:00")}))
	assert.False(t, hours.Contains(Range{Start: MustClock("16:00"), End: MustClock("18:00")}))
}
