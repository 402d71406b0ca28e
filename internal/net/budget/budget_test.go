package budget

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSpendWithinLimit(t *testing.T) {
	tracker := NewTracker("youtube", 1000, 0)

	require.NoError(t, tracker.Spend(100))
	require.NoError(t, tracker.Spend(900))
	assert.Equal(t, int64(0), tracker.Remaining())
}

func TestSpendRejectsWholeChargeOverLimit(t *testing.T) {
	tracker := NewTracker("youtube", 150, 0)
	require.NoError(t, tracker.Spend(100))

	err := tracker.Spend(100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrExhausted))

	var exhausted *ExhaustedError
	require.True(t, errors.As(err, &exhausted))
	assert.Equal(t, int64(100), exhausted.Used)
	assert.Equal(t, int64(150), exhausted.Limit)

	// Rejected charge must not consume anything.
	assert.Equal(t, int64(50), tracker.Remaining())
	assert.NoError(t, tracker.Spend(50))
}

func TestZeroLimitDisablesMetering(t *testing.T) {
	tracker := NewTracker("youtube", 0, 0)
	for i := 0; i < 100; i++ {
		require.NoError(t, tracker.Spend(10000))
	}
}

func TestDailyRollover(t *testing.T) {
	tracker := NewTracker("youtube", 100, 0)
	base := time.Date(2026, 3, 1, 6, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return base }
	tracker.lastReset = lastResetBefore(base, 0)

	require.NoError(t, tracker.Spend(100))
	assert.ErrorIs(t, tracker.Spend(1), ErrExhausted)

	// Crossing the next reset boundary clears the counter.
	tracker.now = func() time.Time { return base.Add(24 * time.Hour) }
	assert.NoError(t, tracker.Spend(100))
}

func TestStatsReportsResetTime(t *testing.T) {
	tracker := NewTracker("youtube", 200, 8)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	tracker.now = func() time.Time { return base }
	tracker.lastReset = lastResetBefore(base, 8)

	require.NoError(t, tracker.Spend(50))

	stats := tracker.Stats()
	assert.Equal(t, int64(200), stats.Limit)
	assert.Equal(t, int64(50), stats.Used)
	assert.Equal(t, int64(150), stats.Remaining)
	assert.Equal(t, time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC), stats.ResetsAt)
}
