package practice

import (
	"context"
	"math/rand"
	"sort"
	"sync"

	"flashquiz/internal/config"
	"flashquiz/internal/localstate"
	"flashquiz/internal/models"
	"flashquiz/internal/observability"
)

// Ledger is the spaced-practice backlog: phrases the user revealed or asked
// an explanation for, kept until answered correctly masteryCeiling times.
// At most one entry exists per phrase. The ledger is persisted to the local
// state store on every mutation.
type Ledger struct {
	mu      sync.Mutex
	store   *localstate.Store
	logger  *observability.Logger
	ceiling int
	entries map[int]int // phrase ID -> correct count
}

// NewLedger loads the backlog from the store. A missing or unparsable entry
// set starts empty.
func NewLedger(store *localstate.Store, cfg *config.PracticeConfig, logger *observability.Logger) *Ledger {
	l := &Ledger{
		store:   store,
		logger:  logger,
		ceiling: cfg.MasteryCeiling,
		entries: make(map[int]int),
	}

	var persisted []models.PracticeEntry
	if store.Get(config.StateKeyPracticeEntries, &persisted) {
		for _, e := range persisted {
			if e.CorrectCount < l.ceiling {
				l.entries[e.PhraseID] = e.CorrectCount
			}
		}
	}
	return l
}

// Add puts a phrase on the backlog with its correct count reset to zero.
// Re-adding an existing entry also resets its count: revealing a phrase
// again means its progress no longer reflects mastery.
func (l *Ledger) Add(ctx context.Context, phraseID int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[phraseID] = 0
	l.flushLocked(ctx)
}

// Bump increments a backlog entry's correct count. Reaching the mastery
// ceiling removes the entry. Bumping a phrase not on the backlog is a no-op.
func (l *Ledger) Bump(ctx context.Context, phraseID int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	count, ok := l.entries[phraseID]
	if !ok {
		return
	}
	count++
	if count >= l.ceiling {
		delete(l.entries, phraseID)
		l.logger.Info(ctx, "Phrase mastered, removed from practice backlog", map[string]interface{}{
			"phrase_id": phraseID,
		})
	} else {
		l.entries[phraseID] = count
	}
	l.flushLocked(ctx)
}

// Remove drops a phrase from the backlog regardless of its count. Used when
// the phrase no longer exists in the catalog.
func (l *Ledger) Remove(ctx context.Context, phraseID int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.entries[phraseID]; !ok {
		return
	}
	delete(l.entries, phraseID)
	l.flushLocked(ctx)
}

// Contains reports whether the phrase is on the backlog.
func (l *Ledger) Contains(phraseID int) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.entries[phraseID]
	return ok
}

// Len returns the backlog size.
func (l *Ledger) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// Sample returns one backlog phrase ID chosen uniformly at random. The
// second return is false when the backlog is empty.
func (l *Ledger) Sample(rng *rand.Rand) (int, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) == 0 {
		return 0, false
	}
	ids := make([]int, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	return ids[rng.Intn(len(ids))], true
}

// Entries returns a stable snapshot of the backlog sorted by phrase ID.
func (l *Ledger) Entries() []models.PracticeEntry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]models.PracticeEntry, 0, len(l.entries))
	for id, count := range l.entries {
		out = append(out, models.PracticeEntry{PhraseID: id, CorrectCount: count})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PhraseID < out[j].PhraseID })
	return out
}

func (l *Ledger) flushLocked(ctx context.Context) {
	snapshot := make([]models.PracticeEntry, 0, len(l.entries))
	for id, count := range l.entries {
		snapshot = append(snapshot, models.PracticeEntry{PhraseID: id, CorrectCount: count})
	}
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].PhraseID < snapshot[j].PhraseID })

	if err := l.store.Put(config.StateKeyPracticeEntries, snapshot); err != nil {
		l.logger.Warn(ctx, "Failed to persist practice backlog", map[string]interface{}{
			"entries": len(snapshot),
			"error":   err.Error(),
		})
	}
}
