// Package services contains the business-logic layer: phrase catalog access
// and the LLM-backed explanation service.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"

	"flashquiz/internal/config"
	"flashquiz/internal/models"
	"flashquiz/internal/observability"
	contextutils "flashquiz/internal/utils"
)

// PhraseServiceInterface defines the interface for phrase catalog operations.
// This allows for easier mocking in tests.
type PhraseServiceInterface interface {
	GetRandom(ctx context.Context, languages []models.Language) (*models.PhraseCard, error)
	GetByID(ctx context.Context, id int) (*models.PhraseCard, error)
	GetPhrase(ctx context.Context, id int) (*models.Phrase, error)
	GetStats(ctx context.Context) (*models.CatalogStats, error)
	ImportPairs(ctx context.Context, pairs []models.ImportPair, overwrite bool) (*models.ImportReport, error)
	DeletePhrase(ctx context.Context, id int) error
	DeleteSimilarity(ctx context.Context, phrase1ID, phrase2ID int) error
	ListOrphans(ctx context.Context) ([]models.Phrase, error)
	SearchByText(ctx context.Context, search string, language models.Language, limit int) ([]models.Phrase, error)
	DB() *sql.DB
}

// PhraseService provides access to the phrase catalog: phrases plus the
// similarity links that tie translations and synonyms together.
type PhraseService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

const phraseSelectFields = `id, text, language, relative_frequency, created_at`

// DefaultSearchLimit caps text search results when the caller does not ask
// for a specific page size.
const (
	DefaultSearchLimit = 50
	MaxSearchLimit     = 200
)

// NewPhraseService creates a new PhraseService.
func NewPhraseService(db *sql.DB, cfg *config.Config, logger *observability.Logger, rng *rand.Rand) *PhraseService {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &PhraseService{
		db:     db,
		cfg:    cfg,
		logger: logger,
		rng:    rng,
	}
}

// DB returns the underlying database connection.
func (s *PhraseService) DB() *sql.DB {
	return s.db
}

func scanPhrase(scan func(dest ...interface{}) error) (*models.Phrase, error) {
	var phrase models.Phrase
	var frequency sql.NullFloat64

	if err := scan(&phrase.ID, &phrase.Text, &phrase.Language, &frequency, &phrase.CreatedAt); err != nil {
		return nil, err
	}
	if frequency.Valid {
		phrase.RelativeFrequency = &frequency.Float64
	}
	return &phrase, nil
}

// GetRandom picks a random source phrase that has at least one translation
// candidate and returns its card. Phrases with a relative frequency are
// weighted by it; phrases without one weigh 1.0. Returns
// ErrNoPhrasesAvailable when the catalog has no quizzable phrase.
func (s *PhraseService) GetRandom(ctx context.Context, languages []models.Language) (result0 *models.PhraseCard, err error) {
	ctx, span := observability.TracePhraseFunction(ctx, "get_random_phrase")
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT p.id, COALESCE(p.relative_frequency, 1.0)
		FROM phrases p
		WHERE EXISTS (
			SELECT 1 FROM similarities s
			WHERE s.phrase1_id = p.id OR s.phrase2_id = p.id
		)`
	args := []interface{}{}
	if len(languages) > 0 {
		placeholders := make([]string, len(languages))
		for i, lang := range languages {
			placeholders[i] = "?"
			args = append(args, lang)
		}
		query += fmt.Sprintf(" AND p.language IN (%s)", strings.Join(placeholders, ", "))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to query quizzable phrases: %v", err))
	}
	defer func() { _ = rows.Close() }()

	var ids []int
	var weights []float64
	total := 0.0
	for rows.Next() {
		var id int
		var weight float64
		if err := rows.Scan(&id, &weight); err != nil {
			return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to scan phrase weight: %v", err))
		}
		if weight <= 0 {
			weight = 1.0
		}
		ids = append(ids, id)
		weights = append(weights, weight)
		total += weight
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to iterate quizzable phrases: %v", err))
	}
	if len(ids) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrNoPhrasesAvailable, "no phrases with translation candidates in the catalog")
	}

	s.rngMu.Lock()
	target := s.rng.Float64() * total
	s.rngMu.Unlock()

	chosen := ids[len(ids)-1]
	for i, weight := range weights {
		target -= weight
		if target < 0 {
			chosen = ids[i]
			break
		}
	}

	span.SetAttributes(observability.AttributePhraseID(chosen))
	return s.GetByID(ctx, chosen)
}

// GetByID returns the card for a source phrase: the phrase itself plus its
// translation candidates sorted descending by similarity. A phrase that does
// not exist, or that has no candidates left, yields ErrPhraseNotFound.
func (s *PhraseService) GetByID(ctx context.Context, id int) (result0 *models.PhraseCard, err error) {
	ctx, span := observability.TracePhraseFunction(ctx, "get_phrase_card", observability.AttributePhraseID(id))
	defer observability.FinishSpan(span, &err)

	source, err := s.GetPhrase(ctx, id)
	if err != nil {
		return nil, err
	}

	query := `
		SELECT p.id, p.text, p.language, p.relative_frequency, p.created_at, s.similarity
		FROM similarities s
		JOIN phrases p ON p.id = CASE WHEN s.phrase1_id = ? THEN s.phrase2_id ELSE s.phrase1_id END
		WHERE s.phrase1_id = ? OR s.phrase2_id = ?
		ORDER BY s.similarity DESC, p.id ASC`

	rows, err := s.db.QueryContext(ctx, query, id, id, id)
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to query translation candidates: %v", err))
	}
	defer func() { _ = rows.Close() }()

	card := &models.PhraseCard{Source: *source}
	for rows.Next() {
		var candidate models.TranslationCandidate
		var frequency sql.NullFloat64
		if err := rows.Scan(&candidate.ID, &candidate.Text, &candidate.Language, &frequency, &candidate.CreatedAt, &candidate.Similarity); err != nil {
			return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to scan translation candidate: %v", err))
		}
		if frequency.Valid {
			candidate.RelativeFrequency = &frequency.Float64
		}
		card.Options = append(card.Options, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to iterate translation candidates: %v", err))
	}

	if len(card.Options) == 0 {
		return nil, contextutils.WrapErrorf(contextutils.ErrPhraseNotFound, "phrase %d has no translation candidates", id)
	}
	return card, nil
}

// GetPhrase returns a single phrase row by ID.
func (s *PhraseService) GetPhrase(ctx context.Context, id int) (result0 *models.Phrase, err error) {
	ctx, span := observability.TracePhraseFunction(ctx, "get_phrase", observability.AttributePhraseID(id))
	defer observability.FinishSpan(span, &err)

	row := s.db.QueryRowContext(ctx, "SELECT "+phraseSelectFields+" FROM phrases WHERE id = ?", id)
	phrase, err := scanPhrase(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, contextutils.WrapErrorf(contextutils.ErrPhraseNotFound, "phrase %d not found", id)
		}
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to get phrase: %v", err))
	}
	return phrase, nil
}

// GetStats returns catalog-wide counts and the average similarity.
func (s *PhraseService) GetStats(ctx context.Context) (result0 *models.CatalogStats, err error) {
	ctx, span := observability.TracePhraseFunction(ctx, "get_catalog_stats")
	defer observability.FinishSpan(span, &err)

	stats := &models.CatalogStats{LanguageBreakdown: make(map[models.Language]int)}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM phrases").Scan(&stats.TotalPhrases); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to count phrases: %v", err))
	}
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*), COALESCE(AVG(similarity), 0) FROM similarities").Scan(&stats.TotalSimilarities, &stats.AverageSimilarity); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to count similarities: %v", err))
	}

	rows, err := s.db.QueryContext(ctx, "SELECT language, COUNT(*) FROM phrases GROUP BY language")
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to query language breakdown: %v", err))
	}
	defer func() { _ = rows.Close() }()

	for rows.Next() {
		var language models.Language
		var count int
		if err := rows.Scan(&language, &count); err != nil {
			return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to scan language breakdown: %v", err))
		}
		stats.LanguageBreakdown[language] = count
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to iterate language breakdown: %v", err))
	}
	return stats, nil
}

// ImportPairs bulk-imports phrase pairs with their similarity links. Each
// pair upserts both phrases and the link between them. Rows that fail
// validation are skipped with a recorded reason and never fail the batch.
// When overwrite is false an existing link's similarity is left untouched
// and the row counts as skipped.
func (s *PhraseService) ImportPairs(ctx context.Context, pairs []models.ImportPair, overwrite bool) (result0 *models.ImportReport, err error) {
	ctx, span := observability.TracePhraseFunction(ctx, "import_pairs", observability.AttributeBatchSize(len(pairs)))
	defer observability.FinishSpan(span, &err)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to begin import transaction: %v", err))
	}
	defer func() { _ = tx.Rollback() }()

	report := &models.ImportReport{}
	for i, pair := range pairs {
		if reason := validateImportPair(&pair); reason != "" {
			report.Skipped++
			report.Errors = append(report.Errors, fmt.Sprintf("row %d: %s", i, reason))
			continue
		}

		imported, err := s.importPairTx(ctx, tx, &pair, overwrite)
		if err != nil {
			return nil, err
		}
		if imported {
			report.Imported++
		} else {
			report.Skipped++
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to commit import transaction: %v", err))
	}

	s.logger.Info(ctx, "Phrase pair import finished", map[string]interface{}{
		"total":    len(pairs),
		"imported": report.Imported,
		"skipped":  report.Skipped,
	})
	return report, nil
}

func validateImportPair(pair *models.ImportPair) string {
	pair.Phrase1 = strings.TrimSpace(pair.Phrase1)
	pair.Phrase2 = strings.TrimSpace(pair.Phrase2)

	if pair.Phrase1 == "" || pair.Phrase2 == "" {
		return "empty phrase text"
	}
	if pair.Language1 == "" || pair.Language2 == "" {
		return "missing language code"
	}
	if pair.Phrase1 == pair.Phrase2 && pair.Language1 == pair.Language2 {
		return "phrase pair links a phrase to itself"
	}
	if pair.Similarity < 0 || pair.Similarity > 1 {
		return fmt.Sprintf("similarity %v out of range [0, 1]", pair.Similarity)
	}
	return ""
}

func (s *PhraseService) importPairTx(ctx context.Context, tx *sql.Tx, pair *models.ImportPair, overwrite bool) (bool, error) {
	id1, err := upsertPhraseTx(ctx, tx, pair.Phrase1, pair.Language1)
	if err != nil {
		return false, err
	}
	id2, err := upsertPhraseTx(ctx, tx, pair.Phrase2, pair.Language2)
	if err != nil {
		return false, err
	}

	// The similarity table stores each pair once, lower ID first.
	lo, hi := id1, id2
	if lo > hi {
		lo, hi = hi, lo
	}

	category := sql.NullString{String: pair.Category, Valid: pair.Category != ""}

	conflictClause := "ON CONFLICT(phrase1_id, phrase2_id) DO NOTHING"
	if overwrite {
		conflictClause = "ON CONFLICT(phrase1_id, phrase2_id) DO UPDATE SET similarity = excluded.similarity, category = excluded.category"
	}
	result, err := tx.ExecContext(ctx,
		"INSERT INTO similarities (phrase1_id, phrase2_id, similarity, category) VALUES (?, ?, ?, ?) "+conflictClause,
		lo, hi, pair.Similarity, category)
	if err != nil {
		return false, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to upsert similarity: %v", err))
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to read import result: %v", err))
	}
	return affected > 0, nil
}

func upsertPhraseTx(ctx context.Context, tx *sql.Tx, text string, language models.Language) (int, error) {
	if _, err := tx.ExecContext(ctx,
		"INSERT INTO phrases (text, language) VALUES (?, ?) ON CONFLICT(text, language) DO NOTHING",
		text, language); err != nil {
		return 0, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to upsert phrase: %v", err))
	}

	var id int
	if err := tx.QueryRowContext(ctx,
		"SELECT id FROM phrases WHERE text = ? AND language = ?",
		text, language).Scan(&id); err != nil {
		return 0, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to resolve phrase id: %v", err))
	}
	return id, nil
}

// DeletePhrase removes a phrase; its similarity links cascade away with it.
func (s *PhraseService) DeletePhrase(ctx context.Context, id int) (err error) {
	ctx, span := observability.TracePhraseFunction(ctx, "delete_phrase", observability.AttributePhraseID(id))
	defer observability.FinishSpan(span, &err)

	result, err := s.db.ExecContext(ctx, "DELETE FROM phrases WHERE id = ?", id)
	if err != nil {
		return contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to delete phrase: %v", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to read delete result: %v", err))
	}
	if affected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrPhraseNotFound, "phrase %d not found", id)
	}

	s.logger.Info(ctx, "Phrase deleted", map[string]interface{}{"phrase_id": id})
	return nil
}

// DeleteSimilarity removes the link between two phrases without touching the
// phrases themselves. ID order does not matter.
func (s *PhraseService) DeleteSimilarity(ctx context.Context, phrase1ID, phrase2ID int) (err error) {
	ctx, span := observability.TracePhraseFunction(ctx, "delete_similarity", observability.AttributePhraseID(phrase1ID))
	defer observability.FinishSpan(span, &err)

	lo, hi := phrase1ID, phrase2ID
	if lo > hi {
		lo, hi = hi, lo
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM similarities WHERE phrase1_id = ? AND phrase2_id = ?", lo, hi)
	if err != nil {
		return contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to delete similarity: %v", err))
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to read delete result: %v", err))
	}
	if affected == 0 {
		return contextutils.WrapErrorf(contextutils.ErrRecordNotFound, "no similarity between phrases %d and %d", phrase1ID, phrase2ID)
	}
	return nil
}

// ListOrphans returns phrases with no similarity links. Orphans can never be
// quizzed; the admin surface lists them for cleanup.
func (s *PhraseService) ListOrphans(ctx context.Context) (result0 []models.Phrase, err error) {
	ctx, span := observability.TracePhraseFunction(ctx, "list_orphan_phrases")
	defer observability.FinishSpan(span, &err)

	query := `
		SELECT ` + phraseSelectFields + `
		FROM phrases p
		WHERE NOT EXISTS (
			SELECT 1 FROM similarities s
			WHERE s.phrase1_id = p.id OR s.phrase2_id = p.id
		)
		ORDER BY p.language, p.text`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to query orphan phrases: %v", err))
	}
	defer func() { _ = rows.Close() }()

	var orphans []models.Phrase
	for rows.Next() {
		phrase, err := scanPhrase(rows.Scan)
		if err != nil {
			return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to scan orphan phrase: %v", err))
		}
		orphans = append(orphans, *phrase)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to iterate orphan phrases: %v", err))
	}
	return orphans, nil
}

// SearchByText finds phrases whose text contains the search term
// (case-insensitive). An empty language matches all languages.
func (s *PhraseService) SearchByText(ctx context.Context, search string, language models.Language, limit int) (result0 []models.Phrase, err error) {
	ctx, span := observability.TracePhraseFunction(ctx, "search_phrases", observability.AttributeSearch(search))
	defer observability.FinishSpan(span, &err)

	if limit <= 0 {
		limit = DefaultSearchLimit
	}
	if limit > MaxSearchLimit {
		limit = MaxSearchLimit
	}

	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(search)
	query := "SELECT " + phraseSelectFields + ` FROM phrases WHERE text LIKE ? ESCAPE '\'`
	args := []interface{}{"%" + escaped + "%"}
	if language != "" {
		query += " AND language = ?"
		args = append(args, language)
	}
	query += " ORDER BY text LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to search phrases: %v", err))
	}
	defer func() { _ = rows.Close() }()

	var phrases []models.Phrase
	for rows.Next() {
		phrase, err := scanPhrase(rows.Scan)
		if err != nil {
			return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to scan phrase: %v", err))
		}
		phrases = append(phrases, *phrase)
	}
	if err := rows.Err(); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrDatabaseQuery, fmt.Sprintf("failed to iterate phrases: %v", err))
	}
	return phrases, nil
}
