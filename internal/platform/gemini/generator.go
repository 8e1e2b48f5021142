package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/pathlight/pathlight-api/internal/config"
	"github.com/pathlight/pathlight-api/internal/domain"
	"github.com/pathlight/pathlight-api/internal/generation"
	"google.golang.org/genai"
)

// Prompt templates. Each instructs the model to answer with bare JSON
// matching the schema the caller parses.
const (
	goalsPrompt = `You are a curriculum designer. A learner wants to study the following topic:

%s

Extract the learning goals. Respond with JSON only, no prose, matching:
{"topic": string, "objectives": [string], "audience": string}`

	planPrompt = `You are a curriculum designer. Design a learning path for the topic "%s" with these objectives:
%s

Structure the path as 2-5 courses, each with 2-6 sections. Give each section
3-8 keywords, one per concept a flashcard should cover. Respond with JSON
only, no prose, matching:
{"title": string, "courses": [{"title": string, "sections": [{"title": string, "keywords": [string]}]}]}`

	cardPrompt = `Create one study flashcard about the concept "%s" in the context of the section "%s".
Respond with JSON only, no prose, matching:
{"question": string, "answer": string}`
)

// GeminiGenerator implements the generation.Generator interface using
// Google's Gemini API.
type GeminiGenerator struct {
	logger *slog.Logger
	config config.GenerationConfig
	client *genai.Client
	model  string
}

// NewGeminiGenerator creates a new instance of GeminiGenerator with the
// provided dependencies.
func NewGeminiGenerator(
	ctx context.Context,
	logger *slog.Logger,
	cfg config.GenerationConfig,
) (*GeminiGenerator, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v",
			generation.ErrInvalidConfig, err)
	}

	return &GeminiGenerator{
		logger: logger.With(slog.String("component", "gemini_generator")),
		config: cfg,
		client: client,
		model:  cfg.ModelName,
	}, nil
}

// Ensure GeminiGenerator implements generation.Generator
var _ generation.Generator = (*GeminiGenerator)(nil)

// ExtractGoals implements generation.Generator.ExtractGoals
func (g *GeminiGenerator) ExtractGoals(ctx context.Context, topic string) (*generation.Goals, error) {
	if strings.TrimSpace(topic) == "" {
		return nil, generation.ErrEmptyTopic
	}

	text, err := g.callWithRetry(ctx, fmt.Sprintf(goalsPrompt, topic))
	if err != nil {
		return nil, err
	}

	var goals generation.Goals
	if err := json.Unmarshal([]byte(text), &goals); err != nil {
		return nil, fmt.Errorf("%w: failed to parse goals response: %v",
			generation.ErrInvalidResponse, err)
	}
	if goals.Topic == "" {
		goals.Topic = topic
	}
	return &goals, nil
}

// PlanStructure implements generation.Generator.PlanStructure
func (g *GeminiGenerator) PlanStructure(ctx context.Context, goals *generation.Goals) (*generation.Plan, error) {
	if goals == nil || goals.Topic == "" {
		return nil, generation.ErrEmptyTopic
	}

	objectives := "- " + strings.Join(goals.Objectives, "\n- ")
	text, err := g.callWithRetry(ctx, fmt.Sprintf(planPrompt, goals.Topic, objectives))
	if err != nil {
		return nil, err
	}

	var plan generation.Plan
	if err := json.Unmarshal([]byte(text), &plan); err != nil {
		return nil, fmt.Errorf("%w: failed to parse plan response: %v",
			generation.ErrInvalidResponse, err)
	}
	if plan.Title == "" || len(plan.Courses) == 0 {
		return nil, fmt.Errorf("%w: plan is missing courses", generation.ErrInvalidResponse)
	}
	return &plan, nil
}

// GenerateCard implements generation.Generator.GenerateCard
func (g *GeminiGenerator) GenerateCard(ctx context.Context, sectionTitle, keyword string) (*domain.Card, error) {
	if keyword == "" {
		return nil, fmt.Errorf("%w: keyword cannot be empty", generation.ErrGenerationFailed)
	}

	text, err := g.callWithRetry(ctx, fmt.Sprintf(cardPrompt, keyword, sectionTitle))
	if err != nil {
		return nil, err
	}

	var parsed struct {
		Question string `json:"question"`
		Answer   string `json:"answer"`
	}
	if err := json.Unmarshal([]byte(text), &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse card response: %v",
			generation.ErrInvalidResponse, err)
	}

	card, err := domain.NewCard(keyword, parsed.Question, parsed.Answer)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", generation.ErrInvalidResponse, err)
	}
	return card, nil
}

// callWithRetry makes a call to the Gemini API with exponential backoff
// retry logic. Transient errors are retried up to MaxRetries times with
// jittered exponential backoff; permanent errors (blocked content, malformed
// responses) return immediately.
func (g *GeminiGenerator) callWithRetry(ctx context.Context, prompt string) (string, error) {
	maxRetries := g.config.MaxRetries
	baseDelaySeconds := g.config.RetryDelaySeconds
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))

	if maxRetries < 0 {
		g.logger.WarnContext(ctx, "invalid max retries value, using default", "max_retries", 3)
		maxRetries = 3
	}
	if baseDelaySeconds < 1 {
		g.logger.WarnContext(ctx, "invalid retry delay value, using default", "base_delay_seconds", 2)
		baseDelaySeconds = 2
	}

	genConfig := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
	}

	for attempt := 0; ; attempt++ {
		attemptNum := attempt + 1
		g.logger.DebugContext(ctx, "making Gemini API call",
			"attempt", attemptNum,
			"max_attempts", maxRetries+1)

		text, transient, err := g.callOnce(ctx, prompt, genConfig)
		if err == nil {
			return text, nil
		}

		g.logger.WarnContext(ctx, "Gemini API call failed",
			"attempt", attemptNum,
			"error", err)

		if !transient {
			return "", err
		}
		if attempt >= maxRetries {
			return "", fmt.Errorf("%w: exceeded maximum retry attempts (%d)",
				generation.ErrTransientFailure, maxRetries)
		}

		// delay = baseDelay * 2^attempt * jitter in [0.5, 1.0)
		backoffSeconds := float64(baseDelaySeconds) * math.Pow(2, float64(attempt))
		delay := time.Duration(backoffSeconds * (0.5 + rng.Float64()*0.5) * float64(time.Second))

		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", fmt.Errorf("%w: %v", generation.ErrTransientFailure, ctx.Err())
		}
	}
}

// callOnce performs a single generation request. The second return value
// reports whether a failure is worth retrying.
func (g *GeminiGenerator) callOnce(
	ctx context.Context,
	prompt string,
	genConfig *genai.GenerateContentConfig,
) (string, bool, error) {
	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(prompt), genConfig)
	if err != nil {
		// API-level failures (rate limits, network) are assumed transient.
		return "", true, fmt.Errorf("%w: %v", generation.ErrGenerationFailed, err)
	}
	if resp == nil || len(resp.Candidates) == 0 {
		return "", false, fmt.Errorf("%w: no content generated", generation.ErrInvalidResponse)
	}
	if resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", false, fmt.Errorf("%w: content blocked by safety filters", generation.ErrContentBlocked)
	}

	text := resp.Text()
	if strings.TrimSpace(text) == "" {
		return "", false, fmt.Errorf("%w: empty response text", generation.ErrInvalidResponse)
	}
	return text, false, nil
}
