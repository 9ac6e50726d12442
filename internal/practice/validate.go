package practice

import "flashquiz/internal/models"

// Validate checks free-text input against a card's translation candidates.
// Comparison is exact equality of normalized forms; no partial or fuzzy
// matching. Candidates are assumed sorted descending by similarity, so with
// several normalized-equal options the highest-ranked one is returned.
// Empty or whitespace-only input never matches.
func Validate(options []models.TranslationCandidate, input string) (*models.TranslationCandidate, bool) {
	normalized := Normalize(input)
	if normalized == "" {
		return nil, false
	}
	for i := range options {
		if Normalize(options[i].Text) == normalized {
			return &options[i], true
		}
	}
	return nil, false
}
