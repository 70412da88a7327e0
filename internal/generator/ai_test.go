package generator_test

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/p-n-ai/coursecraft/internal/ai"
	"github.com/p-n-ai/coursecraft/internal/generator"
	"github.com/p-n-ai/coursecraft/internal/library"
)

type completerFunc func(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error)

func (f completerFunc) Complete(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error) {
	return f(ctx, req)
}

func noDelay() backoff.BackOff { return &backoff.ZeroBackOff{} }

func TestAIGenerator_GeneratePlan(t *testing.T) {
	mock := ai.NewMockProvider("1. Holding the guitar\n2. Tuning\n3. First chords\n4. Strumming\n\n5. Changing chords\n6. Rhythm\n7. Your first song")
	gen := generator.NewAIGenerator(mock, generator.WithBackOff(noDelay))

	plan, err := gen.GeneratePlan(context.Background(), generator.PlanRequest{
		UserID: "u1", Skill: "Guitar", Goal: "Play a song", Experience: "Beginner", EditHint: "more songs",
	})
	if err != nil {
		t.Fatalf("GeneratePlan() error = %v", err)
	}
	if len(plan) != 7 {
		t.Fatalf("len(plan) = %d, want 7", len(plan))
	}
	if plan[0] != "Holding the guitar" {
		t.Errorf("plan[0] = %q, want numbering stripped", plan[0])
	}

	req := mock.LastRequest()
	if req.Task != ai.TaskPlanning || req.UserID != "u1" {
		t.Errorf("request task/user = %v/%q", req.Task, req.UserID)
	}
	if !strings.Contains(req.Messages[1].Content, "more songs") {
		t.Error("plan prompt should carry the edit hint")
	}
}

func TestAIGenerator_GeneratePlan_ShortResultPassedThrough(t *testing.T) {
	gen := generator.NewAIGenerator(ai.NewMockProvider("a\nb\nc\nd"), generator.WithBackOff(noDelay))

	plan, err := gen.GeneratePlan(context.Background(), generator.PlanRequest{Skill: "x"})
	if err != nil {
		t.Fatalf("GeneratePlan() error = %v", err)
	}
	if len(plan) != 4 {
		t.Errorf("len(plan) = %d, want 4 (normalization is the caller's job)", len(plan))
	}
}

func TestAIGenerator_GenerateCourse(t *testing.T) {
	body := "<b>Day 1: A</b>\ntext\n---\n<b>Day 2: B</b>\ntext\n---\n\n---\n<b>Day 3: C</b>"
	mock := ai.NewMockProvider(body)

	lib := library.New()
	_ = lib.Add(library.Resource{Title: "Chord Bible", Author: "Ann", Kind: "book", Content: "Barre chords later.", Tags: []string{"guitar"}})

	gen := generator.NewAIGenerator(mock, generator.WithResources(lib), generator.WithBackOff(noDelay))

	lessons, err := gen.GenerateCourse(context.Background(), generator.CourseRequest{
		Skill:             "Guitar",
		Plan:              []string{"A", "B", "C"},
		PriorLessonHashes: []string{"abc123"},
	})
	if err != nil {
		t.Fatalf("GenerateCourse() error = %v", err)
	}
	if len(lessons) != 3 {
		t.Errorf("len(lessons) = %d, want 3", len(lessons))
	}

	prompt := mock.LastRequest().Messages[1].Content
	for _, want := range []string{"Chord Bible", "abc123", "Day 2: B"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("course prompt missing %q", want)
		}
	}
}

func TestAIGenerator_RetriesOnce(t *testing.T) {
	var calls atomic.Int32
	c := completerFunc(func(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error) {
		if calls.Add(1) == 1 {
			return ai.CompletionResponse{}, errors.New("temporary")
		}
		return ai.CompletionResponse{Content: "Keep practising!"}, nil
	})
	gen := generator.NewAIGenerator(c, generator.WithBackOff(noDelay))

	got, err := gen.AnswerQuestion(context.Background(), "u1", "how?", "")
	if err != nil {
		t.Fatalf("AnswerQuestion() error = %v", err)
	}
	if got != "Keep practising!" {
		t.Errorf("answer = %q", got)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2", calls.Load())
	}
}

func TestAIGenerator_GivesUpAfterRetry(t *testing.T) {
	mock := &ai.MockProvider{Err: errors.New("down")}
	gen := generator.NewAIGenerator(mock, generator.WithBackOff(noDelay))

	if _, err := gen.GenerateSuggestions(context.Background(), "u1", "Guitar"); err == nil {
		t.Fatal("GenerateSuggestions() should fail")
	}
	if mock.Calls() != 2 {
		t.Errorf("calls = %d, want 2", mock.Calls())
	}
}

func TestAIGenerator_BudgetExceededNotRetried(t *testing.T) {
	mock := &ai.MockProvider{Err: ai.ErrBudgetExceeded}
	gen := generator.NewAIGenerator(mock, generator.WithBackOff(noDelay))

	_, err := gen.GeneratePlan(context.Background(), generator.PlanRequest{Skill: "x"})
	if !errors.Is(err, ai.ErrBudgetExceeded) {
		t.Errorf("error = %v, want ErrBudgetExceeded", err)
	}
	if mock.Calls() != 1 {
		t.Errorf("calls = %d, want 1", mock.Calls())
	}
}

func TestAIGenerator_Timeout(t *testing.T) {
	var calls atomic.Int32
	c := completerFunc(func(ctx context.Context, req ai.CompletionRequest) (ai.CompletionResponse, error) {
		calls.Add(1)
		<-ctx.Done()
		return ai.CompletionResponse{}, ctx.Err()
	})
	gen := generator.NewAIGenerator(c, generator.WithTimeout(10*time.Millisecond), generator.WithBackOff(noDelay))

	start := time.Now()
	_, err := gen.UpdateLesson(context.Background(), generator.LessonUpdate{CurrentLesson: "<b>Day 1: A</b>"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("error = %v, want deadline exceeded", err)
	}
	if calls.Load() != 2 {
		t.Errorf("calls = %d, want 2 (one retry)", calls.Load())
	}
	if time.Since(start) > 2*time.Second {
		t.Error("timeout was not applied")
	}
}

func TestAIGenerator_EmptyAnswer(t *testing.T) {
	gen := generator.NewAIGenerator(ai.NewMockProvider("   "), generator.WithBackOff(noDelay))
	if _, err := gen.AnswerQuestion(context.Background(), "u1", "q", "ctx"); err == nil {
		t.Error("AnswerQuestion() should fail on empty response")
	}
}

func TestAIGenerator_UpdateLessonKeepsHeading(t *testing.T) {
	mock := ai.NewMockProvider("<b>Day 3: Strumming</b>\nnew body")
	gen := generator.NewAIGenerator(mock, generator.WithBackOff(noDelay))

	got, err := gen.UpdateLesson(context.Background(), generator.LessonUpdate{
		Skill:         "Guitar",
		CurrentLesson: "<b>Day 3: Strumming</b>\nold body",
		EditHint:      "more exercises",
		Day:           2,
	})
	if err != nil {
		t.Fatalf("UpdateLesson() error = %v", err)
	}
	if !strings.Contains(got, "new body") {
		t.Errorf("lesson = %q", got)
	}
	if prompt := mock.LastRequest().Messages[1].Content; !strings.Contains(prompt, "<b>Day 3: Strumming</b>") {
		t.Error("update prompt should pin the lesson heading")
	}
}
