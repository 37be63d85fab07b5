package cron

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestParseRejectsWrongFieldCount(t *testing.T) {
	_, err := Parse("* * *")
	require.Error(t, err)
}

func TestParseRejectsMalformedField(t *testing.T) {
	_, err := Parse("* * * * mon")
	require.Error(t, err)
}

func TestParseRejectsOutOfRangeValue(t *testing.T) {
	_, err := Parse("60 * * * *")
	require.Error(t, err)
}

func TestParseFiveFieldsImpliesSecondZero(t *testing.T) {
	r, err := Parse("* * * * *")
	require.NoError(t, err)
	require.True(t, r.sec[0])
	require.Len(t, r.sec, 1)
}

func TestParseStepAndRange(t *testing.T) {
	r, err := Parse("*/15 9-17 * * 1-5")
	require.NoError(t, err)
	require.True(t, r.min[0])
	require.True(t, r.min[15])
	require.True(t, r.min[45])
	require.False(t, r.min[1])
	require.True(t, r.hour[9])
	require.True(t, r.hour[17])
	require.False(t, r.hour[8])
	require.True(t, r.dow[1])
	require.True(t, r.dow[5])
	require.False(t, r.dow[0])
	require.False(t, r.dow[6])
}

func TestParseCommaList(t *testing.T) {
	r, err := Parse("0,15,30,45 * * * *")
	require.NoError(t, err)
	require.True(t, r.min[0])
	require.True(t, r.min[15])
	require.True(t, r.min[30])
	require.True(t, r.min[45])
	require.False(t, r.min[1])
}

func TestFireOffsetsReturnsNilForNonMatchingMinute(t *testing.T) {
	r, err := Parse("0 9 * * *")
	require.NoError(t, err)
	offMiss := r.FireOffsets(time.Date(2026, 8, 1, 10, 0, 0, 0, time.UTC))
	require.Nil(t, offMiss)
}

func TestFireOffsetsMatchesEverySecondInWindow(t *testing.T) {
	r, err := Parse("15 9 * * *") // seconds implied = {0}
	require.NoError(t, err)
	start := time.Date(2026, 8, 1, 9, 15, 0, 0, time.UTC)
	require.Equal(t, []int{0}, r.FireOffsets(start))
}

func TestFireOffsetsSixFieldMultiSecond(t *testing.T) {
	r, err := Parse("0,30 15 9 * * *")
	require.NoError(t, err)
	start := time.Date(2026, 8, 1, 9, 15, 0, 0, time.UTC)
	require.Equal(t, []int{0, 30}, r.FireOffsets(start))
}
