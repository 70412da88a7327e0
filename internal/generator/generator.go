// Package generator produces course plans, lesson bodies, answers and
// follow-up suggestions from a generative-text backend.
package generator

import (
	"context"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Expected cardinalities. Generators aim for them but callers must still
// normalize what comes back.
const (
	PlanSize        = 7
	SuggestionCount = 3
)

// PlanRequest describes a plan generation.
type PlanRequest struct {
	UserID     string
	Skill      string
	Experience string
	Goal       string
	EditHint   string // optional; set when the user asked for plan changes
}

// CourseRequest describes full lesson generation for an approved plan.
type CourseRequest struct {
	UserID            string
	Skill             string
	Experience        string
	Goal              string
	Preferences       string
	Plan              []string
	PriorLessonHashes []string // Fingerprint values of lessons to avoid repeating
}

// LessonUpdate describes a revision of a single lesson.
type LessonUpdate struct {
	UserID        string
	Skill         string
	Experience    string
	Goal          string
	Preferences   string
	CurrentLesson string
	EditHint      string
	Day           int // 0-based
}

// Generator is the content-generation collaborator. Every call may fail and
// none is guaranteed to return the requested number of items.
type Generator interface {
	GeneratePlan(ctx context.Context, req PlanRequest) ([]string, error)
	GenerateCourse(ctx context.Context, req CourseRequest) ([]string, error)
	AnswerQuestion(ctx context.Context, userID, question, context string) (string, error)
	GenerateSuggestions(ctx context.Context, userID, skill string) ([]string, error)
	UpdateLesson(ctx context.Context, req LessonUpdate) (string, error)
}

// Fingerprint returns a stable hex digest of a lesson body.
func Fingerprint(lesson string) string {
	sum := blake2b.Sum256([]byte(lesson))
	return hex.EncodeToString(sum[:])
}

// Fingerprints returns Fingerprint for each lesson.
func Fingerprints(lessons []string) []string {
	if len(lessons) == 0 {
		return nil
	}
	out := make([]string, len(lessons))
	for i, l := range lessons {
		out[i] = Fingerprint(l)
	}
	return out
}
