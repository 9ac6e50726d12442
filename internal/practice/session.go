package practice

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"

	"flashquiz/internal/config"
	"flashquiz/internal/models"
	"flashquiz/internal/observability"
	contextutils "flashquiz/internal/utils"
)

// State is the session's position in the per-question lifecycle.
type State string

const (
	// StateIdle is the state before the first question and after Close.
	StateIdle State = "idle"
	// StateShowing means a prompt is on screen with no input yet.
	StateShowing State = "showing"
	// StateTyping means at least one (incorrect) input attempt was made.
	StateTyping State = "typing"
	// StateCorrect is a resolved question: the input matched a candidate.
	StateCorrect State = "correct"
	// StateRevealed is a resolved question: the user gave up and saw the answer.
	StateRevealed State = "revealed"
	// StateExplaining means an explanation request is in flight.
	StateExplaining State = "explaining"
	// StateExplained is a resolved question with an explanation attached.
	StateExplained State = "explained"
	// StateFailed is terminal: no phrases could be fetched.
	StateFailed State = "failed"
)

// Explainer produces a structured explanation for a prompt/answer pair.
type Explainer interface {
	Explain(ctx context.Context, source, answer models.Phrase) (*models.Explanation, error)
}

// View is an immutable snapshot of a session for the HTTP boundary.
// Candidate answers are never exposed while the question is open.
type View struct {
	SessionID   string                `json:"session_id"`
	State       State                 `json:"state"`
	Prompt      *models.Phrase        `json:"prompt,omitempty"`
	Direction   *models.QuizDirection `json:"direction,omitempty"`
	OptionCount int                   `json:"option_count,omitempty"`
	Attempts    int                   `json:"attempts"`
	// Matched is set in the correct state: the candidate the input hit.
	Matched *models.TranslationCandidate `json:"matched,omitempty"`
	// Expected is set after reveal/explain: the canonical answer.
	Expected         *models.TranslationCandidate `json:"expected,omitempty"`
	Explanation      *models.Explanation          `json:"explanation,omitempty"`
	ExplanationError string                       `json:"explanation_error,omitempty"`
	AwardedXP        int                          `json:"awarded_xp,omitempty"`
	XPTotal          int                          `json:"xp_total"`
	TodayCount       int                          `json:"today_count"`
	TodayDiff        int                          `json:"today_diff"`
	BacklogSize      int                          `json:"backlog_size"`
	Error            string                       `json:"error,omitempty"`
}

// Controller runs one quiz session as a small state machine:
//
//	idle -> showing -> typing -> correct
//	                         \-> revealed
//	                         \-> explaining -> explained
//
// Resolved questions auto-advance to the next showing state after a delay;
// a question that cannot be fetched puts the session in the terminal failed
// state. All event methods are safe for concurrent use.
type Controller struct {
	id        string
	cfg       *config.PracticeConfig
	selector  *Selector
	scorer    *Scorer
	ledger    *Ledger
	stats     *StatsTracker
	xp        *XPCounter
	explainer Explainer
	logger    *observability.Logger
	now       func() time.Time

	mu          sync.Mutex
	state       State
	card        *models.PhraseCard
	shownAt     time.Time
	attempts    int
	matched     *models.TranslationCandidate
	awarded     int
	explanation *models.Explanation
	explainErr  string
	failure     string

	// generation fences the auto-advance timer: any transition bumps it,
	// and a timer that fires for an older generation is ignored.
	generation uint64
	timer      *time.Timer
}

// NewController builds a session controller in the idle state. explainer may
// be nil when the explanation service is disabled.
func NewController(id string, selector *Selector, scorer *Scorer, ledger *Ledger, stats *StatsTracker, xp *XPCounter, explainer Explainer, cfg *config.PracticeConfig, logger *observability.Logger) *Controller {
	return &Controller{
		id:        id,
		cfg:       cfg,
		selector:  selector,
		scorer:    scorer,
		ledger:    ledger,
		stats:     stats,
		xp:        xp,
		explainer: explainer,
		logger:    logger,
		now:       time.Now,
		state:     StateIdle,
	}
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// Start fetches the first question. Valid only from idle.
func (c *Controller) Start(ctx context.Context) (result0 View, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "session_start", observability.AttributeSessionID(c.id))
	defer observability.FinishSpan(span, &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle {
		return c.viewLocked(), contextutils.WrapErrorf(contextutils.ErrInvalidTransition, "cannot start session in state %q", c.state)
	}
	err = c.advanceLocked(ctx)
	return c.viewLocked(), err
}

// Input submits a free-text answer attempt. Valid while a question is open
// (showing or typing). A match resolves the question, awards XP, counts
// toward daily stats, and bumps the backlog entry if the phrase was under
// practice; a miss leaves the question open in the typing state.
func (c *Controller) Input(ctx context.Context, text string) (result0 View, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "session_input", observability.AttributeSessionID(c.id))
	defer observability.FinishSpan(span, &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateShowing && c.state != StateTyping {
		return c.viewLocked(), contextutils.WrapErrorf(contextutils.ErrInvalidTransition, "cannot submit input in state %q", c.state)
	}

	c.attempts++
	match, ok := Validate(c.card.Options, text)
	if !ok {
		c.state = StateTyping
		return c.viewLocked(), nil
	}

	elapsed := c.now().Sub(c.shownAt)
	c.matched = match
	c.awarded = c.scorer.ScoreFor(elapsed)
	c.xp.Add(ctx, c.awarded)
	c.stats.IncrementToday(ctx)
	c.ledger.Bump(ctx, c.card.Source.ID)
	c.state = StateCorrect

	c.logger.Info(ctx, "Answer correct", map[string]interface{}{
		"session_id": c.id,
		"phrase_id":  c.card.Source.ID,
		"elapsed_ms": elapsed.Milliseconds(),
		"awarded_xp": c.awarded,
		"attempts":   c.attempts,
	})

	c.scheduleAdvanceLocked(c.cfg.CorrectAdvanceDelay)
	return c.viewLocked(), nil
}

// Reveal gives up on the open question: the answer becomes visible and the
// phrase goes on the practice backlog with a reset count.
func (c *Controller) Reveal(ctx context.Context) (result0 View, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "session_reveal", observability.AttributeSessionID(c.id))
	defer observability.FinishSpan(span, &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateShowing && c.state != StateTyping {
		return c.viewLocked(), contextutils.WrapErrorf(contextutils.ErrInvalidTransition, "cannot reveal in state %q", c.state)
	}

	c.ledger.Add(ctx, c.card.Source.ID)
	c.state = StateRevealed
	c.scheduleAdvanceLocked(c.cfg.RevealAdvanceDelay)
	return c.viewLocked(), nil
}

// Explain resolves the open question with an LLM explanation of the expected
// answer. Like Reveal it puts the phrase on the practice backlog. The call
// blocks until the explanation arrives or fails; a duplicate call while one
// is in flight is a no-op returning the current view.
func (c *Controller) Explain(ctx context.Context) (result0 View, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "session_explain", observability.AttributeSessionID(c.id))
	defer observability.FinishSpan(span, &err)

	c.mu.Lock()

	if c.state == StateExplaining {
		view := c.viewLocked()
		c.mu.Unlock()
		return view, nil
	}
	if c.state != StateShowing && c.state != StateTyping {
		view := c.viewLocked()
		c.mu.Unlock()
		return view, contextutils.WrapErrorf(contextutils.ErrInvalidTransition, "cannot explain in state %q", c.state)
	}
	if c.explainer == nil {
		view := c.viewLocked()
		c.mu.Unlock()
		return view, contextutils.WrapError(contextutils.ErrExplanationFailed, "explanation service is disabled")
	}
	if len(c.card.Options) == 0 {
		view := c.viewLocked()
		c.mu.Unlock()
		return view, contextutils.WrapError(contextutils.ErrExplanationFailed, "phrase has no expected answer")
	}

	card := c.card
	generation := c.generation
	c.state = StateExplaining
	c.mu.Unlock()

	// The request runs outside the lock so the session stays observable
	// (and cancellable via Close) while the model responds.
	explanation, explainErr := c.explainer.Explain(ctx, card.Source, card.Options[0].Phrase)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != generation || c.state != StateExplaining {
		// Session advanced or closed while the request was in flight.
		return c.viewLocked(), nil
	}

	c.ledger.Add(ctx, card.Source.ID)
	c.state = StateExplained
	if explainErr != nil {
		c.explainErr = explainErr.Error()
		c.logger.Warn(ctx, "Explanation request failed", map[string]interface{}{
			"session_id": c.id,
			"phrase_id":  card.Source.ID,
			"error":      explainErr.Error(),
		})
	} else {
		c.explanation = explanation
	}
	c.scheduleAdvanceLocked(c.cfg.RevealAdvanceDelay)
	return c.viewLocked(), nil
}

// Next skips to the next question. Manual skips are only honored while
// typing; open questions without an attempt, and resolved questions (which
// auto-advance), reject it.
func (c *Controller) Next(ctx context.Context) (result0 View, err error) {
	ctx, span := observability.TraceSessionFunction(ctx, "session_next", observability.AttributeSessionID(c.id))
	defer observability.FinishSpan(span, &err)

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateTyping {
		return c.viewLocked(), contextutils.WrapErrorf(contextutils.ErrInvalidTransition, "cannot skip in state %q", c.state)
	}
	err = c.advanceLocked(ctx)
	return c.viewLocked(), err
}

// View returns the current snapshot without changing state.
func (c *Controller) View() View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Close stops the session: the pending auto-advance is cancelled and the
// state returns to idle. An explanation still in flight is discarded when it
// lands.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cancelTimerLocked()
	c.generation++
	c.state = StateIdle
	c.resetQuestionLocked()
}

// advanceLocked moves to the next question. Caller holds the lock.
func (c *Controller) advanceLocked(ctx context.Context) error {
	c.cancelTimerLocked()
	c.generation++
	c.resetQuestionLocked()

	card, err := c.selector.Next(ctx)
	if err != nil {
		c.state = StateFailed
		c.failure = "no phrases available"
		if !errors.Is(err, contextutils.ErrNoPhrasesAvailable) {
			c.failure = "failed to fetch next phrase"
		}
		c.logger.Error(ctx, "Session failed to advance", err, map[string]interface{}{
			"session_id": c.id,
		})
		return err
	}

	c.card = card
	c.shownAt = c.now()
	c.state = StateShowing
	return nil
}

func (c *Controller) resetQuestionLocked() {
	c.card = nil
	c.attempts = 0
	c.matched = nil
	c.awarded = 0
	c.explanation = nil
	c.explainErr = ""
	c.failure = ""
}

func (c *Controller) scheduleAdvanceLocked(delay time.Duration) {
	c.cancelTimerLocked()
	generation := c.generation
	c.timer = time.AfterFunc(delay, func() {
		c.autoAdvance(generation)
	})
}

func (c *Controller) cancelTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
}

func (c *Controller) autoAdvance(generation uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != generation {
		return
	}
	switch c.state {
	case StateCorrect, StateRevealed, StateExplained:
	default:
		return
	}
	// Timer callbacks have no request context.
	ctx, cancel := context.WithTimeout(context.Background(), config.AdvanceFetchTimeout)
	defer cancel()
	_ = c.advanceLocked(ctx)
}

func (c *Controller) viewLocked() View {
	v := View{
		SessionID:        c.id,
		State:            c.state,
		Attempts:         c.attempts,
		Matched:          c.matched,
		Explanation:      c.explanation,
		ExplanationError: c.explainErr,
		AwardedXP:        c.awarded,
		XPTotal:          c.xp.Total(),
		TodayCount:       c.stats.TodayCount(),
		TodayDiff:        c.stats.Diff(),
		BacklogSize:      c.ledger.Len(),
		Error:            c.failure,
	}

	if c.card != nil {
		prompt := c.card.Source
		direction := c.card.Direction()
		v.Prompt = &prompt
		v.Direction = &direction
		v.OptionCount = len(c.card.Options)

		switch c.state {
		case StateRevealed, StateExplaining, StateExplained:
			if len(c.card.Options) > 0 {
				expected := c.card.Options[0]
				v.Expected = &expected
			}
		}
	}
	return v
}

// Registry tracks live sessions by ID. Sessions share the ledger, stats, and
// XP state; each gets its own controller.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Controller

	selector  *Selector
	scorer    *Scorer
	ledger    *Ledger
	stats     *StatsTracker
	xp        *XPCounter
	explainer Explainer
	cfg       *config.PracticeConfig
	logger    *observability.Logger
}

// NewRegistry builds an empty session registry.
func NewRegistry(selector *Selector, scorer *Scorer, ledger *Ledger, stats *StatsTracker, xp *XPCounter, explainer Explainer, cfg *config.PracticeConfig, logger *observability.Logger) *Registry {
	return &Registry{
		sessions:  make(map[string]*Controller),
		selector:  selector,
		scorer:    scorer,
		ledger:    ledger,
		stats:     stats,
		xp:        xp,
		explainer: explainer,
		cfg:       cfg,
		logger:    logger,
	}
}

// Create starts a new session and returns its controller with the first
// question already fetched. The session is not registered when the start
// fails.
func (r *Registry) Create(ctx context.Context) (*Controller, View, error) {
	controller := NewController(uuid.NewString(), r.selector, r.scorer, r.ledger, r.stats, r.xp, r.explainer, r.cfg, r.logger)

	view, err := controller.Start(ctx)
	if err != nil {
		return nil, view, err
	}

	r.mu.Lock()
	r.sessions[controller.ID()] = controller
	r.mu.Unlock()
	return controller, view, nil
}

// Get looks up a live session.
func (r *Registry) Get(id string) (*Controller, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	controller, ok := r.sessions[id]
	if !ok {
		return nil, contextutils.WrapErrorf(contextutils.ErrSessionNotFound, "session %q not found", id)
	}
	return controller, nil
}

// CloseAll closes every live session. Used during shutdown.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	controllers := make([]*Controller, 0, len(r.sessions))
	for id, controller := range r.sessions {
		controllers = append(controllers, controller)
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	for _, controller := range controllers {
		controller.Close()
	}
}

// Delete closes and forgets a session. Unknown IDs are a no-op.
func (r *Registry) Delete(id string) {
	r.mu.Lock()
	controller, ok := r.sessions[id]
	delete(r.sessions, id)
	r.mu.Unlock()

	if ok {
		controller.Close()
	}
}
