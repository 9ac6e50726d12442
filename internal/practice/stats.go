package practice

import (
	"context"
	"sync"
	"time"

	"flashquiz/internal/config"
	"flashquiz/internal/localstate"
	"flashquiz/internal/models"
	"flashquiz/internal/observability"
	contextutils "flashquiz/internal/utils"
)

// statsWindowDays is the size of the trailing activity window.
const statsWindowDays = 14

// StatsTracker counts correct answers per local calendar day, persisted in
// the local state store keyed by YYYY-MM-DD. Day boundaries follow the
// process's local timezone; the map grows one key per active day and old
// keys are never purged.
type StatsTracker struct {
	mu     sync.Mutex
	store  *localstate.Store
	logger *observability.Logger
	now    func() time.Time
	counts map[string]int
}

// NewStatsTracker loads the per-day counts from the store.
func NewStatsTracker(store *localstate.Store, logger *observability.Logger) *StatsTracker {
	return newStatsTracker(store, logger, time.Now)
}

func newStatsTracker(store *localstate.Store, logger *observability.Logger, now func() time.Time) *StatsTracker {
	t := &StatsTracker{
		store:  store,
		logger: logger,
		now:    now,
		counts: make(map[string]int),
	}
	store.Get(config.StateKeyDailyStats, &t.counts)
	if t.counts == nil {
		t.counts = make(map[string]int)
	}
	return t
}

// IncrementToday records one correct answer for the current day and returns
// the new count.
func (t *StatsTracker) IncrementToday(ctx context.Context) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := contextutils.DateKey(t.now())
	t.counts[key]++
	count := t.counts[key]

	if err := t.store.Put(config.StateKeyDailyStats, t.counts); err != nil {
		t.logger.Warn(ctx, "Failed to persist daily stats", map[string]interface{}{
			"date":  key,
			"error": err.Error(),
		})
	}
	return count
}

// TodayCount returns the number of correct answers recorded today.
func (t *StatsTracker) TodayCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[contextutils.DateKey(t.now())]
}

// YesterdayCount returns the count for the previous calendar day.
func (t *StatsTracker) YesterdayCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counts[contextutils.DaysAgoKey(t.now(), 1)]
}

// Diff returns today's count minus yesterday's. Negative while today trails
// yesterday.
func (t *StatsTracker) Diff() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	return t.counts[contextutils.DateKey(now)] - t.counts[contextutils.DaysAgoKey(now, 1)]
}

// LastWindow returns exactly statsWindowDays entries, oldest first and
// ending with today. Days without activity appear with a zero count.
// Normalized is the count divided by the window maximum; when the whole
// window is empty every Normalized is 0.
func (t *StatsTracker) LastWindow() []models.DayCount {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	window := make([]models.DayCount, 0, statsWindowDays)
	max := 0
	for i := statsWindowDays - 1; i >= 0; i-- {
		key := contextutils.DaysAgoKey(now, i)
		count := t.counts[key]
		if count > max {
			max = count
		}
		window = append(window, models.DayCount{Date: key, Count: count})
	}

	if max > 0 {
		for i := range window {
			window[i].Normalized = float64(window[i].Count) / float64(max)
		}
	}
	return window
}
