package util

import (
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDayLayouts(t *testing.T) {
	want := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)
	for _, s := range []string{"20240305", "2024-03-05", "2024/03/05", "2024-03-05T23:10:00Z"} {
		got, err := ParseDay(s)
		require.NoError(t, err, s)
		assert.True(t, want.Equal(got), "%s -> %v", s, got)
	}
}

func TestParseDayRFC3339ConvertsToUTC(t *testing.T) {
	got, err := ParseDay("2024-03-05T01:00:00+08:00")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 3, 4, 0, 0, 0, 0, time.UTC), got)
}

func TestParseDayUnix(t *testing.T) {
	ts := time.Date(2024, 10, 10, 10, 10, 10, 0, time.UTC).Unix()
	got, err := ParseDay(strconv.FormatInt(ts, 10))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 10, 10, 0, 0, 0, 0, time.UTC), got)
}

func TestParseDayInvalid(t *testing.T) {
	for _, s := range []string{"", "yesterday", "2024-13-01"} {
		_, err := ParseDay(s)
		assert.Error(t, err, s)
	}
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"2330", "2317"}, SplitList(" 2330, ,2317 "))
	assert.Nil(t, SplitList("  "))
}
