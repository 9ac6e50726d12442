// Package models defines the core data structures used throughout the flashquiz application.
package models

import (
	"time"
)

// Language is an ISO 639-1 style language code (e.g. "en", "pt", "de").
// The set is open: new languages enter the catalog through imports.
type Language string

// Known language codes shipped with the default word lists.
const (
	LanguageEnglish    Language = "en"
	LanguagePortuguese Language = "pt"
	LanguageGerman     Language = "de"
	LanguageSpanish    Language = "es"
	LanguageFrench     Language = "fr"
	LanguageItalian    Language = "it"
)

// Phrase is a single word or expression in one language with a stable identifier.
// (Text, Language) pairs are unique within the catalog.
type Phrase struct {
	ID                int       `json:"id"`
	Text              string    `json:"text"`
	Language          Language  `json:"language"`
	RelativeFrequency *float64  `json:"relative_frequency,omitempty"`
	CreatedAt         time.Time `json:"created_at,omitempty"`
}

// TranslationCandidate is a phrase considered an acceptable translation (or
// synonym) of some source phrase, ranked by similarity in [0, 1].
// Candidates are always returned scoped to a source phrase, sorted descending
// by similarity; index 0 is the canonical expected answer.
type TranslationCandidate struct {
	Phrase
	Similarity float64 `json:"similarity"`
}

// PhraseCard is what the phrase source returns for a question: the source
// (prompt) phrase plus its ranked translation candidates.
type PhraseCard struct {
	Source  Phrase                 `json:"source"`
	Options []TranslationCandidate `json:"options"`
}

// Direction returns the quiz direction for this card: the source language is
// prompted, the top candidate's language is expected.
func (c *PhraseCard) Direction() QuizDirection {
	d := QuizDirection{From: c.Source.Language}
	if len(c.Options) > 0 {
		d.To = c.Options[0].Language
	}
	return d
}

// QuizDirection describes which language is prompted vs. expected for a
// single question instance. It is derived per question and never persisted.
type QuizDirection struct {
	From Language `json:"from"`
	To   Language `json:"to"`
}

// PracticeEntry is one item of the spaced-practice backlog: a phrase flagged
// for repeated review until mastered. CorrectCount is strictly less than the
// mastery ceiling while the entry exists.
type PracticeEntry struct {
	PhraseID     int `json:"phrase_id"`
	CorrectCount int `json:"correct_count"`
}

// DayCount is one day of quiz activity inside the trailing stats window.
// Normalized is Count divided by the window maximum (0 when the whole
// window is empty).
type DayCount struct {
	Date       string  `json:"date"` // YYYY-MM-DD
	Count      int     `json:"count"`
	Normalized float64 `json:"normalized"`
}

// ImportPair is one row of a bulk phrase-pair import.
type ImportPair struct {
	Phrase1    string   `json:"phrase1" binding:"required"`
	Language1  Language `json:"language1" binding:"required"`
	Phrase2    string   `json:"phrase2" binding:"required"`
	Language2  Language `json:"language2" binding:"required"`
	Similarity float64  `json:"similarity"`
	Category   string   `json:"category,omitempty"`
}

// ImportReport summarizes a bulk import: rejected rows are counted as
// skipped and never fail the batch.
type ImportReport struct {
	Imported int      `json:"imported"`
	Skipped  int      `json:"skipped"`
	Errors   []string `json:"errors,omitempty"`
}

// CatalogStats describes the phrase catalog as a whole.
type CatalogStats struct {
	TotalPhrases      int              `json:"total_phrases"`
	TotalSimilarities int              `json:"total_similarities"`
	LanguageBreakdown map[Language]int `json:"language_breakdown"`
	AverageSimilarity float64          `json:"average_similarity"`
}

// Explanation is the structured output of the explanation service for a
// phrase pair. All fields are plain natural-language text.
type Explanation struct {
	Example              string   `json:"example"`
	Definition           string   `json:"definition"`
	Explanation          string   `json:"explanation"`
	Grammar              string   `json:"grammar,omitempty"`
	Facts                string   `json:"facts,omitempty"`
	PronunciationIPA     string   `json:"pronunciation_ipa,omitempty"`
	PronunciationEnglish string   `json:"pronunciation_english,omitempty"`
	Synonyms             []string `json:"synonyms,omitempty"`
	Alternatives         []string `json:"alternatives,omitempty"`
}
