package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"closeus-backend/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sashabaranov/go-openai"
)

const (
	dailyCategoryName        = "Daily"
	dailyCategoryDescription = "Questions in the daily rotation"
	aiRequestTimeout         = 10 * time.Second
)

// fallbackQuestions replace the generator's output when it is unavailable
var fallbackQuestions = []string{
	"What is one thing you appreciated about me this week?",
	"If we could relive one day together, which would it be?",
	"What is a small habit of mine that makes you happy?",
	"Where do you see us in five years?",
	"What song reminds you of us, and why?",
	"What is something new you would like us to try together?",
	"When did you first realise you loved me?",
	"What is your favourite way to spend a lazy Sunday with me?",
	"What is one thing I could do to make your day better?",
	"Which of our inside jokes makes you laugh the most?",
}

// QuestionGenerator produces new question texts
type QuestionGenerator interface {
	Generate(ctx context.Context, count int) ([]string, error)
}

// ChatCompletionGenerator asks an OpenAI-compatible chat completions API for questions
type ChatCompletionGenerator struct {
	model  string
	client *openai.Client
}

// NewChatCompletionGenerator creates a generator for the API rooted at baseURL.
// An empty baseURL or apiKey yields a generator that always fails.
func NewChatCompletionGenerator(baseURL, model, apiKey string) *ChatCompletionGenerator {
	g := &ChatCompletionGenerator{model: model}
	if baseURL == "" || apiKey == "" {
		return g
	}
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = strings.TrimRight(baseURL, "/")
	cfg.HTTPClient = &http.Client{Timeout: aiRequestTimeout}
	g.client = openai.NewClientWithConfig(cfg)
	return g
}

// Generate requests count questions, one per line
func (g *ChatCompletionGenerator) Generate(ctx context.Context, count int) ([]string, error) {
	if g.client == nil {
		return nil, errors.New("question generator is not configured")
	}

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: "You write warm, thoughtful conversation questions for couples."},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Write %d different questions a couple can answer today. One question per line, no numbering.", count)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("generator request failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, errors.New("generator returned no choices")
	}

	questions := parseQuestionLines(resp.Choices[0].Message.Content, count)
	if len(questions) == 0 {
		return nil, errors.New("generator returned no questions")
	}
	return questions, nil
}

// parseQuestionLines splits generator output into at most limit questions,
// dropping list markers.
func parseQuestionLines(content string, limit int) []string {
	var questions []string
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*•0123456789.) ")
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		questions = append(questions, line)
		if len(questions) == limit {
			break
		}
	}
	return questions
}

// RefreshResult summarises one pool refresh
type RefreshResult struct {
	Purged       int64 `json:"purged"`
	Created      int   `json:"created"`
	UsedFallback bool  `json:"used_fallback"`
}

// QuestionPoolService keeps the daily pool topped up and bounded
type QuestionPoolService struct {
	questions QuestionStore
	generator QuestionGenerator
	retention time.Duration
	batch     int
	now       func() time.Time
}

// NewQuestionPoolService creates a new question pool service
func NewQuestionPoolService(questions QuestionStore, generator QuestionGenerator, retention time.Duration, batch int) *QuestionPoolService {
	return &QuestionPoolService{
		questions: questions,
		generator: generator,
		retention: retention,
		batch:     batch,
		now:       time.Now,
	}
}

// Refresh purges stale generated questions and adds a new batch
func (s *QuestionPoolService) Refresh(ctx context.Context) (*RefreshResult, error) {
	result := &RefreshResult{}

	purged, err := s.questions.DeleteStaleAIGenerated(ctx, s.now().Add(-s.retention))
	if err != nil {
		return nil, err
	}
	result.Purged = purged

	texts, err := s.generator.Generate(ctx, s.batch)
	if err != nil {
		log.Warn().Err(err).Msg("Question generator unavailable, using fallback questions")
		texts = fallbackQuestions
		if len(texts) > s.batch {
			texts = texts[:s.batch]
		}
		result.UsedFallback = true
	}

	categoryID, err := s.questions.EnsureCategory(ctx, uuid.New().String(), dailyCategoryName, dailyCategoryDescription)
	if err != nil {
		return nil, err
	}

	for _, text := range texts {
		q := &models.Question{
			ID:            uuid.New().String(),
			CategoryID:    categoryID,
			Text:          text,
			IsDaily:       true,
			IsActive:      true,
			IsAIGenerated: true,
			CreatedAt:     s.now(),
		}
		if err := s.questions.Create(ctx, q); err != nil {
			return nil, err
		}
		result.Created++
	}

	log.Info().
		Int64("purged", result.Purged).
		Int("created", result.Created).
		Bool("fallback", result.UsedFallback).
		Msg("Question pool refreshed")
	return result, nil
}
