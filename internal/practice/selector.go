package practice

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"sync"

	"github.com/cenkalti/backoff/v5"

	"flashquiz/internal/config"
	"flashquiz/internal/models"
	"flashquiz/internal/observability"
	contextutils "flashquiz/internal/utils"
)

// PhraseSource supplies question cards. The production implementation is the
// SQLite-backed phrase service.
type PhraseSource interface {
	// GetRandom returns a random card whose source phrase has at least one
	// translation candidate. Returns ErrNoPhrasesAvailable on an empty
	// catalog.
	GetRandom(ctx context.Context, languages []models.Language) (*models.PhraseCard, error)
	// GetByID returns the card for a specific source phrase. Returns
	// ErrPhraseNotFound when the phrase no longer exists or has no
	// candidates left.
	GetByID(ctx context.Context, id int) (*models.PhraseCard, error)
}

// Selector decides, per question, between a phrase from the practice backlog
// and a fresh random phrase.
type Selector struct {
	source    PhraseSource
	ledger    *Ledger
	cfg       *config.PracticeConfig
	logger    *observability.Logger
	languages []models.Language

	// One selector serves every session; *rand.Rand is not safe for
	// concurrent use.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewSelector builds a Selector over the given phrase source and backlog.
// languages restricts random picks to source phrases in those languages; nil
// means the whole catalog.
func NewSelector(source PhraseSource, ledger *Ledger, cfg *config.PracticeConfig, logger *observability.Logger, rng *rand.Rand, languages []models.Language) *Selector {
	return &Selector{
		source:    source,
		ledger:    ledger,
		cfg:       cfg,
		logger:    logger,
		rng:       rng,
		languages: languages,
	}
}

// PracticeChance returns the probability of picking from the backlog given
// its size. The curve starts at the base chance for a single entry and
// approaches the cap asymptotically as the backlog grows, so new material
// keeps a nonzero share even with a large backlog (unless the cap is 1).
func (s *Selector) PracticeChance(backlog int) float64 {
	if backlog <= 0 {
		return 0
	}
	base, cap, scale := s.cfg.BaseChance, s.cfg.ChanceCap, s.cfg.ChanceScale
	return base + (cap-base)*(1-math.Exp(-float64(backlog)/scale))
}

// Next picks the card for the next question. With probability
// PracticeChance(backlog) a uniformly sampled backlog phrase is used; a
// sampled phrase that no longer exists in the catalog is dropped from the
// backlog and selection falls through to a fresh phrase. Fresh fetches are
// retried with exponential backoff on transient store errors;
// ErrNoPhrasesAvailable is terminal and surfaces immediately.
func (s *Selector) Next(ctx context.Context) (result0 *models.PhraseCard, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "select_next_phrase")
	defer observability.FinishSpan(span, &err)

	if id, ok := s.samplePractice(); ok {
		card, err := s.source.GetByID(ctx, id)
		if err == nil {
			span.SetAttributes(observability.AttributePhraseID(card.Source.ID))
			return card, nil
		}
		if !errors.Is(err, contextutils.ErrPhraseNotFound) {
			return nil, err
		}
		// Stale backlog entry: the phrase was deleted from the catalog.
		s.ledger.Remove(ctx, id)
		s.logger.Info(ctx, "Dropped stale practice entry", map[string]interface{}{
			"phrase_id": id,
		})
	}

	return s.fetchFresh(ctx)
}

// samplePractice rolls the practice-vs-new choice and samples the backlog.
func (s *Selector) samplePractice() (int, bool) {
	backlog := s.ledger.Len()
	if backlog == 0 {
		return 0, false
	}

	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	if s.rng.Float64() >= s.PracticeChance(backlog) {
		return 0, false
	}
	return s.ledger.Sample(s.rng)
}

func (s *Selector) fetchFresh(ctx context.Context) (*models.PhraseCard, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = config.PhraseFetchInitialDelay

	operation := func() (*models.PhraseCard, error) {
		card, err := s.source.GetRandom(ctx, s.languages)
		if err != nil {
			if errors.Is(err, contextutils.ErrNoPhrasesAvailable) {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		return card, nil
	}

	card, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(policy),
		backoff.WithMaxTries(config.PhraseFetchMaxRetries),
	)
	if err != nil {
		return nil, err
	}
	return card, nil
}
