package practice

import (
	"context"
	"math"
	"sync"
	"time"

	"flashquiz/internal/config"
	"flashquiz/internal/localstate"
	"flashquiz/internal/observability"
)

// Scorer converts answer latency into an XP award. Answers at or below the
// fast threshold earn the maximum, answers at or above the slow threshold
// earn the minimum, and everything in between is linearly interpolated and
// rounded up. The award is always a positive integer; a correct answer never
// earns zero.
type Scorer struct {
	minXP int
	maxXP int
	fast  time.Duration
	slow  time.Duration
}

// NewScorer builds a Scorer from the practice tuning knobs.
func NewScorer(cfg *config.PracticeConfig) *Scorer {
	return &Scorer{
		minXP: cfg.MinXP,
		maxXP: cfg.MaxXP,
		fast:  cfg.FastThreshold,
		slow:  cfg.SlowThreshold,
	}
}

// ScoreFor returns the XP award for a correct answer given after elapsed.
func (s *Scorer) ScoreFor(elapsed time.Duration) int {
	if elapsed <= s.fast {
		return s.maxXP
	}
	if elapsed >= s.slow {
		return s.minXP
	}
	frac := float64(elapsed-s.fast) / float64(s.slow-s.fast)
	value := float64(s.maxXP) - frac*float64(s.maxXP-s.minXP)
	return int(math.Ceil(value))
}

// XPCounter accumulates the lifetime XP total, persisted in the local state
// store under a single key. The counter is shared by every session, so the
// read-modify-write in Add runs under a mutex.
type XPCounter struct {
	mu     sync.Mutex
	store  *localstate.Store
	logger *observability.Logger
}

// NewXPCounter loads (or initializes) the XP total from the store.
func NewXPCounter(store *localstate.Store, logger *observability.Logger) *XPCounter {
	return &XPCounter{store: store, logger: logger}
}

// Total returns the current lifetime XP total.
func (x *XPCounter) Total() int {
	x.mu.Lock()
	defer x.mu.Unlock()
	return x.totalLocked()
}

func (x *XPCounter) totalLocked() int {
	var total int
	x.store.Get(config.StateKeyXPTotal, &total)
	return total
}

// Add increases the total by amount and persists it. Persistence failures
// are logged, not fatal: the quiz keeps running with the in-memory value.
func (x *XPCounter) Add(ctx context.Context, amount int) int {
	x.mu.Lock()
	defer x.mu.Unlock()

	total := x.totalLocked() + amount
	if err := x.store.Put(config.StateKeyXPTotal, total); err != nil {
		x.logger.Warn(ctx, "Failed to persist XP total", map[string]interface{}{
			"total": total,
			"error": err.Error(),
		})
	}
	return total
}
