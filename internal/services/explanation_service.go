package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"

	"flashquiz/internal/config"
	"flashquiz/internal/models"
	"flashquiz/internal/observability"
	contextutils "flashquiz/internal/utils"
)

// ExplanationServiceInterface defines the interface for phrase explanations.
type ExplanationServiceInterface interface {
	Explain(ctx context.Context, source, answer models.Phrase) (*models.Explanation, error)
}

// ExplanationService produces structured explanations of a prompt/answer
// phrase pair via an OpenAI-compatible chat API. Responses are cached in the
// explanation_cache table keyed by the phrase pair, so each pair costs at
// most one model call.
type ExplanationService struct {
	db     *sql.DB
	cfg    *config.Config
	logger *observability.Logger
	client *openai.Client
}

const explanationSystemPrompt = `You are a language tutor. The user is learning vocabulary with flashcards.
Given a prompt phrase and its expected answer in another language, explain the answer phrase.
Respond with a single JSON object using exactly these keys:
"example" (one short example sentence using the answer phrase, with a translation in parentheses),
"definition" (a concise definition of the answer phrase),
"explanation" (usage notes: register, context, common mistakes),
"grammar" (part of speech, gender, conjugation or declension notes; empty string if not applicable),
"facts" (etymology or cultural notes; empty string if none),
"pronunciation_ipa" (IPA transcription),
"pronunciation_english" (approximate pronunciation for an English speaker),
"synonyms" (array of synonyms in the answer language),
"alternatives" (array of other valid translations of the prompt phrase).
Keep every field short. Do not include any text outside the JSON object.`

// NewExplanationService creates the service. The caller is expected to check
// config.Explanation.Enabled before wiring it into a session.
func NewExplanationService(db *sql.DB, cfg *config.Config, logger *observability.Logger) *ExplanationService {
	clientConfig := openai.DefaultConfig(cfg.Explanation.APIKey)
	if cfg.Explanation.BaseURL != "" {
		clientConfig.BaseURL = cfg.Explanation.BaseURL
	}

	return &ExplanationService{
		db:     db,
		cfg:    cfg,
		logger: logger,
		client: openai.NewClientWithConfig(clientConfig),
	}
}

// Explain returns the explanation for an answer phrase in the context of its
// prompt, consulting the cache first.
func (s *ExplanationService) Explain(ctx context.Context, source, answer models.Phrase) (result0 *models.Explanation, err error) {
	ctx, span := observability.TraceExplanationFunction(ctx, "explain_phrase",
		observability.AttributePhraseID(source.ID),
		observability.AttributeLanguage(string(answer.Language)))
	defer observability.FinishSpan(span, &err)

	if cached, ok := s.lookupCache(ctx, source.ID, answer.ID); ok {
		return cached, nil
	}

	explanation, err := s.request(ctx, source, answer)
	if err != nil {
		return nil, err
	}

	s.storeCache(ctx, source.ID, answer.ID, explanation)
	return explanation, nil
}

func (s *ExplanationService) request(ctx context.Context, source, answer models.Phrase) (*models.Explanation, error) {
	ctx, cancel := context.WithTimeout(ctx, config.ExplanationRequestTimeout)
	defer cancel()

	model := s.cfg.Explanation.Model
	if model == "" {
		model = config.DefaultExplanationModel
	}
	maxTokens := s.cfg.Explanation.MaxTokens
	if maxTokens <= 0 {
		maxTokens = config.DefaultExplanationMaxTokens
	}

	userPrompt := fmt.Sprintf(
		"Prompt phrase: %q (language: %s)\nExpected answer: %q (language: %s)\nExplain the expected answer.",
		source.Text, source.Language, answer.Text, answer.Language)

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Temperature: 0.2,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: explanationSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: userPrompt},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return nil, contextutils.WrapError(contextutils.ErrExplanationFailed, fmt.Sprintf("chat completion failed: %v", err))
	}
	if len(resp.Choices) == 0 {
		return nil, contextutils.WrapError(contextutils.ErrExplanationFailed, "chat completion returned no choices")
	}

	return parseExplanation(resp.Choices[0].Message.Content)
}

// parseExplanation decodes the model output, tolerating markdown code fences
// some models wrap JSON in.
func parseExplanation(content string) (*models.Explanation, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var explanation models.Explanation
	if err := json.Unmarshal([]byte(content), &explanation); err != nil {
		return nil, contextutils.WrapError(contextutils.ErrExplanationInvalid, fmt.Sprintf("response is not valid JSON: %v", err))
	}
	if explanation.Definition == "" && explanation.Explanation == "" {
		return nil, contextutils.WrapError(contextutils.ErrExplanationInvalid, "response carries no definition or explanation")
	}
	return &explanation, nil
}

func (s *ExplanationService) lookupCache(ctx context.Context, phraseID, answerID int) (*models.Explanation, bool) {
	var payload string
	err := s.db.QueryRowContext(ctx,
		"SELECT payload FROM explanation_cache WHERE phrase_id = ? AND answer_id = ?",
		phraseID, answerID).Scan(&payload)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			s.logger.Warn(ctx, "Explanation cache lookup failed", map[string]interface{}{
				"phrase_id": phraseID,
				"answer_id": answerID,
				"error":     err.Error(),
			})
		}
		return nil, false
	}

	var explanation models.Explanation
	if err := json.Unmarshal([]byte(payload), &explanation); err != nil {
		// Stale or corrupt cache entry: drop it and refetch.
		_, _ = s.db.ExecContext(ctx, "DELETE FROM explanation_cache WHERE phrase_id = ? AND answer_id = ?", phraseID, answerID)
		return nil, false
	}
	return &explanation, true
}

func (s *ExplanationService) storeCache(ctx context.Context, phraseID, answerID int, explanation *models.Explanation) {
	payload, err := json.Marshal(explanation)
	if err != nil {
		return
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO explanation_cache (phrase_id, answer_id, payload) VALUES (?, ?, ?)
		 ON CONFLICT(phrase_id, answer_id) DO UPDATE SET payload = excluded.payload`,
		phraseID, answerID, string(payload))
	if err != nil {
		// Cache misses are cheap relative to model calls, but a failed write
		// should still show up in the logs.
		s.logger.Warn(ctx, "Failed to store explanation in cache", map[string]interface{}{
			"phrase_id": phraseID,
			"answer_id": answerID,
			"error":     err.Error(),
		})
	}
}
