package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/p-n-ai/coursecraft/internal/ai"
	"github.com/p-n-ai/coursecraft/internal/library"
)

// ResourceMatcher finds library material for a skill.
type ResourceMatcher interface {
	Match(skill string) []library.Resource
}

// AIGenerator implements Generator on top of an AI completer.
type AIGenerator struct {
	completer  ai.Completer
	resources  ResourceMatcher
	timeout    time.Duration
	retries    uint64
	newBackOff func() backoff.BackOff
}

// Option configures an AIGenerator.
type Option func(*AIGenerator)

// WithResources enriches course and lesson prompts with library material.
func WithResources(m ResourceMatcher) Option {
	return func(g *AIGenerator) {
		g.resources = m
	}
}

// WithTimeout bounds each completion attempt.
func WithTimeout(d time.Duration) Option {
	return func(g *AIGenerator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithBackOff sets the delay policy between the first attempt and the retry.
func WithBackOff(fn func() backoff.BackOff) Option {
	return func(g *AIGenerator) {
		g.newBackOff = fn
	}
}

// NewAIGenerator creates a generator. Each call is bounded by the timeout
// (60s by default) and retried once before the error is returned.
func NewAIGenerator(completer ai.Completer, opts ...Option) *AIGenerator {
	g := &AIGenerator{
		completer: completer,
		timeout:   60 * time.Second,
		retries:   1,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = time.Second
			return b
		},
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

func (g *AIGenerator) GeneratePlan(ctx context.Context, req PlanRequest) ([]string, error) {
	text, err := g.complete(ctx, req.UserID, ai.TaskPlanning, planPrompt(req), 0.7)
	if err != nil {
		return nil, fmt.Errorf("generate plan: %w", err)
	}
	plan := ParseLines(text)
	if len(plan) != PlanSize {
		slog.Warn("plan has unexpected size", "user_id", req.UserID, "got", len(plan), "want", PlanSize)
	}
	return plan, nil
}

func (g *AIGenerator) GenerateCourse(ctx context.Context, req CourseRequest) ([]string, error) {
	text, err := g.complete(ctx, req.UserID, ai.TaskLessonWriting, coursePrompt(req, g.match(req.Skill)), 0.8)
	if err != nil {
		return nil, fmt.Errorf("generate course: %w", err)
	}
	lessons := ParseLessons(text)
	if len(lessons) != PlanSize {
		slog.Warn("course has unexpected lesson count", "user_id", req.UserID, "got", len(lessons), "want", PlanSize)
	}
	return lessons, nil
}

func (g *AIGenerator) AnswerQuestion(ctx context.Context, userID, question, context string) (string, error) {
	text, err := g.complete(ctx, userID, ai.TaskAnswering, answerPrompt(question, context), 0.7)
	if err != nil {
		return "", fmt.Errorf("answer question: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("answer question: empty response")
	}
	return text, nil
}

func (g *AIGenerator) GenerateSuggestions(ctx context.Context, userID, skill string) ([]string, error) {
	text, err := g.complete(ctx, userID, ai.TaskSuggesting, suggestionsPrompt(skill), 0.9)
	if err != nil {
		return nil, fmt.Errorf("generate suggestions: %w", err)
	}
	return ParseLines(text), nil
}

func (g *AIGenerator) UpdateLesson(ctx context.Context, req LessonUpdate) (string, error) {
	text, err := g.complete(ctx, req.UserID, ai.TaskLessonRevision, updatePrompt(req, g.match(req.Skill)), 0.7)
	if err != nil {
		return "", fmt.Errorf("update lesson: %w", err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return "", errors.New("update lesson: empty response")
	}
	if n := len([]rune(text)); n < 1800 || n > 2400 {
		slog.Debug("revised lesson outside target length", "user_id", req.UserID, "runes", n)
	}
	return text, nil
}

func (g *AIGenerator) match(skill string) []library.Resource {
	if g.resources == nil {
		return nil
	}
	return g.resources.Match(skill)
}

// complete runs one completion with a per-attempt timeout and a single retry.
func (g *AIGenerator) complete(ctx context.Context, userID string, task ai.TaskType, prompt string, temperature float64) (string, error) {
	req := ai.CompletionRequest{
		Messages: []ai.Message{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: temperature,
		Task:        task,
		UserID:      userID,
	}

	var content string
	attempt := 0
	op := func() error {
		attempt++
		attemptCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()

		resp, err := g.completer.Complete(attemptCtx, req)
		if err != nil {
			if errors.Is(err, ai.ErrBudgetExceeded) || ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			slog.Warn("generation attempt failed", "user_id", userID, "task", task.String(), "attempt", attempt, "error", err)
			return err
		}
		content = resp.Content
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(g.newBackOff(), g.retries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		return "", err
	}
	return content, nil
}
