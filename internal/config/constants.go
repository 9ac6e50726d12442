package config

import "time"

// Practice defaults. The practice chance follows an asymptotic curve
// base + (cap-base)*(1-e^(-backlog/scale)): it approaches but never
// reaches the cap as the backlog grows.
const (
	DefaultMasteryCeiling = 3
	DefaultBaseChance     = 0.3
	DefaultChanceCap      = 1.0
	DefaultChanceScale    = 8.0

	DefaultMinXP         = 1
	DefaultMaxXP         = 10
	DefaultFastThreshold = 2 * time.Second
	DefaultSlowThreshold = 30 * time.Second

	// Auto-advance delays: short after a correct answer, longer after a
	// reveal or explanation to give reading time.
	DefaultCorrectAdvanceDelay = 1500 * time.Millisecond
	DefaultRevealAdvanceDelay  = 6 * time.Second
)

// Storage defaults
const (
	DefaultDatabasePath   = "flashquiz.db"
	DefaultLocalStatePath = "flashquiz_state.json"

	DatabaseConnMaxLifetime = 5 * time.Minute
)

// Local state store keys. Each key defaults independently to its zero
// value when absent or unparsable.
const (
	StateKeyXPTotal         = "xp_total"
	StateKeyPracticeEntries = "practice_entries"
	StateKeyDailyStats      = "daily_stats"
)

// Session configuration constants
const (
	SessionPath     = "/"
	SessionHTTPOnly = true
	SessionMaxAge   = 7 * 24 * time.Hour // 7 days

	SessionName = "flashquiz-session"
)

// Security configuration constants
const (
	// Content Security Policy
	DefaultCSP = "default-src 'self'; style-src 'self' 'unsafe-inline'; script-src 'self' 'unsafe-inline'; img-src 'self' data:; media-src 'self' blob: data:;"
)

// Phrase fetch retry bounds (transient store errors on session advance).
const (
	PhraseFetchMaxRetries   = 3
	PhraseFetchInitialDelay = 100 * time.Millisecond
	// AdvanceFetchTimeout bounds the next-phrase fetch made by an
	// auto-advance timer, which runs without a request context.
	AdvanceFetchTimeout = 15 * time.Second
)

// Explanation service defaults
const (
	DefaultExplanationModel     = "gpt-4o-mini"
	DefaultExplanationMaxTokens = 700
	ExplanationRequestTimeout   = 30 * time.Second
)
