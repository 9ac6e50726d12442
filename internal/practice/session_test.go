package practice

import (
	"context"
	"math/rand"
	"sync"
	"testing"
	"time"

	"flashquiz/internal/models"
	contextutils "flashquiz/internal/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeExplainer struct {
	mu      sync.Mutex
	calls   int
	block   chan struct{} // when non-nil, Explain waits on it
	err     error
	explain *models.Explanation
}

func (f *fakeExplainer) Explain(_ context.Context, _, _ models.Phrase) (*models.Explanation, error) {
	f.mu.Lock()
	f.calls++
	block := f.block
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.explain, nil
}

type sessionFixture struct {
	source    *fakeSource
	ledger    *Ledger
	stats     *StatsTracker
	xp        *XPCounter
	explainer *fakeExplainer
	registry  *Registry
}

func newSessionFixture(t *testing.T, cards ...*models.PhraseCard) *sessionFixture {
	t.Helper()

	cfg := testPracticeConfig()
	cfg.CorrectAdvanceDelay = 20 * time.Millisecond
	cfg.RevealAdvanceDelay = 20 * time.Millisecond

	store := newTestLocalStore(t)
	logger := testLogger()
	source := newFakeSource(cards...)
	ledger := NewLedger(store, cfg, logger)
	stats := NewStatsTracker(store, logger)
	xp := NewXPCounter(store, logger)
	explainer := &fakeExplainer{explain: &models.Explanation{Definition: "a greeting"}}
	selector := NewSelector(source, ledger, cfg, logger, rand.New(rand.NewSource(1)), nil)

	return &sessionFixture{
		source:    source,
		ledger:    ledger,
		stats:     stats,
		xp:        xp,
		explainer: explainer,
		registry:  NewRegistry(selector, NewScorer(cfg), ledger, stats, xp, explainer, cfg, logger),
	}
}

func TestSession_StartShowsFirstQuestion(t *testing.T) {
	fx := newSessionFixture(t, testCard(1, "hello", "olá"))

	controller, view, err := fx.registry.Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	assert.Equal(t, StateShowing, view.State)
	require.NotNil(t, view.Prompt)
	assert.Equal(t, "hello", view.Prompt.Text)
	assert.Equal(t, models.LanguageEnglish, view.Direction.From)
	assert.Equal(t, models.LanguagePortuguese, view.Direction.To)
	// Answers stay hidden while the question is open.
	assert.Nil(t, view.Expected)
	assert.Nil(t, view.Matched)
}

func TestSession_StartTwiceRejected(t *testing.T) {
	fx := newSessionFixture(t, testCard(1, "hello", "olá"))

	controller, _, err := fx.registry.Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	_, err = controller.Start(context.Background())
	assert.ErrorIs(t, err, contextutils.ErrInvalidTransition)
}

func TestSession_WrongInputKeepsQuestionOpen(t *testing.T) {
	fx := newSessionFixture(t, testCard(1, "hello", "olá"))
	controller, _, err := fx.registry.Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	view, err := controller.Input(context.Background(), "adeus")
	require.NoError(t, err)
	assert.Equal(t, StateTyping, view.State)
	assert.Equal(t, 1, view.Attempts)
	assert.Zero(t, view.XPTotal)
	assert.Zero(t, view.TodayCount)

	view, err = controller.Input(context.Background(), "nope")
	require.NoError(t, err)
	assert.Equal(t, 2, view.Attempts)
}

func TestSession_CorrectAnswerAwardsAndAdvances(t *testing.T) {
	fx := newSessionFixture(t, testCard(1, "hello", "olá"), testCard(2, "thanks", "obrigado"))
	controller, _, err := fx.registry.Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	// Normalized match: accents and case don't matter.
	view, err := controller.Input(context.Background(), "OLA")
	require.NoError(t, err)
	assert.Equal(t, StateCorrect, view.State)
	require.NotNil(t, view.Matched)
	assert.Equal(t, "olá", view.Matched.Text)
	assert.Equal(t, 10, view.AwardedXP) // answered well under the fast threshold
	assert.Equal(t, 10, view.XPTotal)
	assert.Equal(t, 1, view.TodayCount)

	// The resolved question auto-advances to the next phrase.
	require.Eventually(t, func() bool {
		v := controller.View()
		return v.State == StateShowing && v.Prompt != nil && v.Prompt.ID == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSession_CorrectAnswerBumpsPracticedPhrase(t *testing.T) {
	fx := newSessionFixture(t, testCard(1, "hello", "olá"))
	fx.ledger.Add(context.Background(), 1)

	controller, _, err := fx.registry.Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	_, err = controller.Input(context.Background(), "olá")
	require.NoError(t, err)

	entries := fx.ledger.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, 1, entries[0].CorrectCount)
}

func TestSession_RevealAddsToBacklog(t *testing.T) {
	fx := newSessionFixture(t, testCard(1, "hello", "olá"), testCard(2, "thanks", "obrigado"))
	controller, _, err := fx.registry.Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	view, err := controller.Reveal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateRevealed, view.State)
	require.NotNil(t, view.Expected)
	assert.Equal(t, "olá", view.Expected.Text)
	assert.True(t, fx.ledger.Contains(1))
	assert.Zero(t, view.XPTotal) // giving up earns nothing

	require.Eventually(t, func() bool {
		v := controller.View()
		return v.State == StateShowing && v.Prompt != nil && v.Prompt.ID == 2
	}, time.Second, 5*time.Millisecond)
}

func TestSession_RevealAfterResolveRejected(t *testing.T) {
	fx := newSessionFixture(t, testCard(1, "hello", "olá"))
	controller, _, err := fx.registry.Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	_, err = controller.Input(context.Background(), "olá")
	require.NoError(t, err)

	_, err = controller.Reveal(context.Background())
	assert.ErrorIs(t, err, contextutils.ErrInvalidTransition)
}

func TestSession_ExplainResolvesWithExplanation(t *testing.T) {
	fx := newSessionFixture(t, testCard(1, "hello", "olá"), testCard(2, "thanks", "obrigado"))
	controller, _, err := fx.registry.Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	view, err := controller.Explain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateExplained, view.State)
	require.NotNil(t, view.Explanation)
	assert.Equal(t, "a greeting", view.Explanation.Definition)
	require.NotNil(t, view.Expected)

	// Explaining counts as giving up: the phrase goes on the backlog.
	assert.True(t, fx.ledger.Contains(1))
}

func TestSession_ExplainFailureStillResolves(t *testing.T) {
	fx := newSessionFixture(t, testCard(1, "hello", "olá"))
	fx.explainer.err = contextutils.WrapError(contextutils.ErrExplanationFailed, "model unavailable")

	controller, _, err := fx.registry.Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	view, err := controller.Explain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateExplained, view.State)
	assert.Nil(t, view.Explanation)
	assert.NotEmpty(t, view.ExplanationError)
	assert.True(t, fx.ledger.Contains(1))
}

func TestSession_DuplicateExplainIsNoOp(t *testing.T) {
	fx := newSessionFixture(t, testCard(1, "hello", "olá"))
	fx.explainer.block = make(chan struct{})

	controller, _, err := fx.registry.Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	done := make(chan View, 1)
	go func() {
		view, _ := controller.Explain(context.Background())
		done <- view
	}()

	// Wait for the first request to enter the loading sub-state.
	require.Eventually(t, func() bool {
		return controller.View().State == StateExplaining
	}, time.Second, time.Millisecond)

	// The duplicate returns immediately without a second upstream call.
	view, err := controller.Explain(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateExplaining, view.State)

	close(fx.explainer.block)
	<-done
	assert.Equal(t, 1, fx.explainer.calls)
}

func TestSession_ManualNextOnlyWhileTyping(t *testing.T) {
	fx := newSessionFixture(t, testCard(1, "hello", "olá"), testCard(2, "thanks", "obrigado"))
	controller, _, err := fx.registry.Create(context.Background())
	require.NoError(t, err)
	t.Cleanup(controller.Close)

	// No attempt yet: skip rejected.
	_, err = controller.Next(context.Background())
	assert.ErrorIs(t, err, contextutils.ErrInvalidTransition)

	_, err = controller.Input(context.Background(), "wrong")
	require.NoError(t, err)

	view, err := controller.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StateShowing, view.State)
	assert.Equal(t, 2, view.Prompt.ID)
	// Skipping does not touch the backlog.
	assert.Zero(t, view.BacklogSize)
}

func TestSession_EmptyCatalogIsTerminalFailure(t *testing.T) {
	fx := newSessionFixture(t) // no cards at all

	_, view, err := fx.registry.Create(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, contextutils.ErrNoPhrasesAvailable)
	assert.Equal(t, StateFailed, view.State)
	assert.NotEmpty(t, view.Error)

	// Failed sessions are not registered.
	_, err = fx.registry.Get(view.SessionID)
	assert.ErrorIs(t, err, contextutils.ErrSessionNotFound)
}

func TestSession_CloseCancelsAutoAdvance(t *testing.T) {
	fx := newSessionFixture(t, testCard(1, "hello", "olá"), testCard(2, "thanks", "obrigado"))
	controller, _, err := fx.registry.Create(context.Background())
	require.NoError(t, err)

	_, err = controller.Input(context.Background(), "olá")
	require.NoError(t, err)

	fx.registry.Delete(controller.ID())
	assert.Equal(t, StateIdle, controller.View().State)

	// The pending auto-advance timer must not resurrect the session.
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateIdle, controller.View().State)
}

func TestRegistry_GetUnknownSession(t *testing.T) {
	fx := newSessionFixture(t, testCard(1, "hello", "olá"))

	_, err := fx.registry.Get("nope")
	assert.ErrorIs(t, err, contextutils.ErrSessionNotFound)
}
