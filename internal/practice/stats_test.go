package practice

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStatsTracker(t *testing.T, now time.Time) (*StatsTracker, *time.Time) {
	t.Helper()
	clock := now
	tracker := newStatsTracker(newTestLocalStore(t), testLogger(), func() time.Time { return clock })
	return tracker, &clock
}

func TestStatsTracker_IncrementToday(t *testing.T) {
	ctx := context.Background()
	tracker, _ := newTestStatsTracker(t, time.Date(2026, 8, 27, 12, 0, 0, 0, time.Local))

	assert.Zero(t, tracker.TodayCount())
	assert.Equal(t, 1, tracker.IncrementToday(ctx))
	assert.Equal(t, 2, tracker.IncrementToday(ctx))
	assert.Equal(t, 2, tracker.TodayCount())
}

func TestStatsTracker_DayRollover(t *testing.T) {
	ctx := context.Background()
	tracker, clock := newTestStatsTracker(t, time.Date(2026, 8, 26, 23, 0, 0, 0, time.Local))

	tracker.IncrementToday(ctx)
	tracker.IncrementToday(ctx)
	tracker.IncrementToday(ctx)

	// Cross midnight: yesterday's work stays under yesterday's key.
	*clock = clock.Add(2 * time.Hour)
	assert.Zero(t, tracker.TodayCount())
	assert.Equal(t, 3, tracker.YesterdayCount())
	assert.Equal(t, -3, tracker.Diff())

	tracker.IncrementToday(ctx)
	assert.Equal(t, 1, tracker.TodayCount())
	assert.Equal(t, -2, tracker.Diff())
}

func TestStatsTracker_WindowIsExactlyFourteenDays(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.Local)
	tracker, clock := newTestStatsTracker(t, now.AddDate(0, 0, -20))

	// Activity 20 days ago falls outside the window.
	tracker.IncrementToday(ctx)

	*clock = now.AddDate(0, 0, -3)
	tracker.IncrementToday(ctx)
	tracker.IncrementToday(ctx)
	tracker.IncrementToday(ctx)
	tracker.IncrementToday(ctx)

	*clock = now
	tracker.IncrementToday(ctx)
	tracker.IncrementToday(ctx)

	window := tracker.LastWindow()
	require.Len(t, window, 14)

	// Oldest first, ending with today.
	assert.Equal(t, "2026-08-14", window[0].Date)
	assert.Equal(t, "2026-08-27", window[13].Date)

	// Zero-filled gaps, counts where recorded.
	assert.Zero(t, window[0].Count)
	assert.Equal(t, 4, window[10].Count)
	assert.Equal(t, 2, window[13].Count)

	// Normalized against the window max of 4.
	assert.InDelta(t, 1.0, window[10].Normalized, 1e-9)
	assert.InDelta(t, 0.5, window[13].Normalized, 1e-9)
	assert.Zero(t, window[0].Normalized)
}

func TestStatsTracker_EmptyWindowAllZero(t *testing.T) {
	tracker, _ := newTestStatsTracker(t, time.Date(2026, 8, 27, 12, 0, 0, 0, time.Local))

	window := tracker.LastWindow()
	require.Len(t, window, 14)
	for _, day := range window {
		assert.Zero(t, day.Count)
		assert.Zero(t, day.Normalized)
	}
}

func TestStatsTracker_PersistsAcrossReload(t *testing.T) {
	ctx := context.Background()
	store := newTestLocalStore(t)
	now := time.Date(2026, 8, 27, 12, 0, 0, 0, time.Local)

	tracker := newStatsTracker(store, testLogger(), func() time.Time { return now })
	tracker.IncrementToday(ctx)
	tracker.IncrementToday(ctx)

	reloaded := newStatsTracker(store, testLogger(), func() time.Time { return now })
	assert.Equal(t, 2, reloaded.TodayCount())
}
