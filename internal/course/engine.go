package course

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/p-n-ai/coursecraft/internal/generator"
	"github.com/p-n-ai/coursecraft/internal/platform/keylock"
)

var (
	// ErrNoActiveCourse is returned by operations that need an active course.
	ErrNoActiveCourse = errors.New("no active course")
	// ErrInvalidSuggestion is returned when a suggestion index is out of range.
	ErrInvalidSuggestion = errors.New("invalid suggestion")
	// ErrNotLastDay is returned by Finish before the last lesson is reached.
	ErrNotLastDay = errors.New("course is not on its last day")
)

// Setup is the profile and approved plan collected during course setup.
type Setup struct {
	Skill       string
	Goal        string
	Experience  string
	Preferences string
	Plan        []string
}

// FinishResult is the outcome of finishing a course.
type FinishResult struct {
	Record      Record
	Suggestions []string // filtered; may be empty
}

// Engine owns the in-memory table of course records. Every mutation is
// serialized per user and written to the repository before it returns.
type Engine struct {
	repo    Repository
	gen     generator.Generator
	locks   *keylock.Locker
	now     func() time.Time
	mu      sync.RWMutex
	records map[string]Record
}

// NewEngine creates an engine. Call Load to populate it from the repository.
func NewEngine(repo Repository, gen generator.Generator) *Engine {
	return &Engine{
		repo:    repo,
		gen:     gen,
		locks:   keylock.New(),
		now:     time.Now,
		records: make(map[string]Record),
	}
}

// Load replaces the in-memory table with the repository contents.
func (e *Engine) Load(ctx context.Context) error {
	records, err := e.repo.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load courses: %w", err)
	}

	e.mu.Lock()
	e.records = records
	e.mu.Unlock()

	slog.Info("course records loaded", "records", len(records))
	return nil
}

// Get returns a copy of the user's record.
func (e *Engine) Get(userID string) (Record, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rec, ok := e.records[userID]
	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

// Active returns copies of all records holding an active course.
func (e *Engine) Active() []Record {
	e.mu.RLock()
	defer e.mu.RUnlock()
	var out []Record
	for _, rec := range e.records {
		if rec.Active() {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// ReminderTarget returns where to nudge the user while their course is
// active, unfinished and not on its last day.
func (e *Engine) ReminderTarget(userID string) (Target, bool) {
	rec, ok := e.Get(userID)
	if !ok || !rec.Active() || rec.Finished() || rec.CurrentDay >= LastDay {
		return Target{}, false
	}
	return rec.Target, true
}

// Start generates lessons for an approved plan and activates the course,
// replacing any previous one while keeping the ledger. On generator failure
// nothing changes.
func (e *Engine) Start(ctx context.Context, userID string, target Target, setup Setup) (Record, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	prev, _ := e.Get(userID)
	plan := NormalizePlan(setup.Plan, setup.Skill)

	var prior []string
	if prev.Active() && SameSkill(prev.Skill, setup.Skill) {
		prior = generator.Fingerprints(prev.Lessons)
	}

	lessons, err := e.gen.GenerateCourse(ctx, generator.CourseRequest{
		UserID:            userID,
		Skill:             setup.Skill,
		Experience:        setup.Experience,
		Goal:              setup.Goal,
		Preferences:       setup.Preferences,
		Plan:              plan,
		PriorLessonHashes: prior,
	})
	if err != nil {
		return Record{}, err
	}

	rec := Record{
		UserID:      userID,
		Target:      target,
		Skill:       setup.Skill,
		Goal:        setup.Goal,
		Experience:  setup.Experience,
		Preferences: setup.Preferences,
		Plan:        plan,
		Lessons:     NormalizeLessons(lessons, setup.Skill, setup.Goal),
		CurrentDay:  0,
		Progress:    Progress(0),
		Completed:   prev.Completed,
	}
	rec = e.store(ctx, rec)

	slog.Info("course started", "user_id", userID, "skill", setup.Skill)
	return rec.Clone(), nil
}

// AnyDay makes AdvanceDay move on from whatever the current day is.
const AnyDay = -1

// AdvanceDay records the current lesson in the ledger and moves to the next
// day. fromDay is the day the request was issued for: a repeated request
// for a day already left behind is a no-op, as is any request on the last
// day. The bool reports whether the day changed.
func (e *Engine) AdvanceDay(ctx context.Context, userID string, fromDay int) (Record, bool, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	rec, err := e.active(userID)
	if err != nil {
		return Record{}, false, err
	}
	if rec.CurrentDay >= LastDay || (fromDay != AnyDay && fromDay != rec.CurrentDay) {
		return rec, false, nil
	}

	rec.Completed, _ = rec.Completed.Add(rec.Skill, rec.CurrentDay)
	rec.CurrentDay++
	rec.Progress = max(rec.Progress, Progress(rec.CurrentDay))
	rec = e.store(ctx, rec)

	return rec.Clone(), true, nil
}

// Finish marks the final lesson complete, sets progress to 100 and returns
// follow-up suggestions excluding skills already completed. The record
// stays active until a suggestion is selected or the course is cancelled.
// A course that has not reached LastDay is left untouched.
func (e *Engine) Finish(ctx context.Context, userID string) (FinishResult, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	rec, err := e.active(userID)
	if err != nil {
		return FinishResult{}, err
	}
	if rec.CurrentDay != LastDay {
		return FinishResult{}, fmt.Errorf("finish on day %d: %w", rec.CurrentDay, ErrNotLastDay)
	}

	rec.Completed, _ = rec.Completed.Add(rec.Skill, LastDay)
	rec.Progress = 100
	rec = e.store(ctx, rec)

	raw, err := e.gen.GenerateSuggestions(ctx, userID, rec.Skill)
	if err != nil {
		slog.Warn("suggestion generation failed, using fallback", "user_id", userID, "error", err)
		raw = nil
	}
	suggestions := FilterCompleted(NormalizeSuggestions(raw, rec.Skill), rec.Completed)

	slog.Info("course finished", "user_id", userID, "skill", rec.Skill, "suggestions", len(suggestions))
	return FinishResult{Record: rec.Clone(), Suggestions: suggestions}, nil
}

// Cancel drops the active course, keeping only the ledger.
func (e *Engine) Cancel(ctx context.Context, userID string) error {
	unlock := e.locks.Lock(userID)
	defer unlock()

	rec, err := e.active(userID)
	if err != nil {
		return err
	}
	e.store(ctx, rec.Reduced())

	slog.Info("course cancelled", "user_id", userID, "skill", rec.Skill)
	return nil
}

// EditCurrentLesson revises the lesson for the current day.
func (e *Engine) EditCurrentLesson(ctx context.Context, userID, editRequest string) (Record, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	rec, err := e.active(userID)
	if err != nil {
		return Record{}, err
	}

	lesson, err := e.gen.UpdateLesson(ctx, generator.LessonUpdate{
		UserID:        userID,
		Skill:         rec.Skill,
		Experience:    rec.Experience,
		Goal:          rec.Goal,
		Preferences:   rec.Preferences,
		CurrentLesson: rec.CurrentLesson(),
		EditHint:      editRequest,
		Day:           rec.CurrentDay,
	})
	if err != nil {
		return Record{}, err
	}

	rec.Lessons[rec.CurrentDay] = lesson
	rec = e.store(ctx, rec)
	return rec.Clone(), nil
}

// SelectSuggestion picks from the list shown to the user and clears the
// active course so a new setup can begin. It returns the chosen skill.
func (e *Engine) SelectSuggestion(ctx context.Context, userID string, shown []string, index int) (string, error) {
	unlock := e.locks.Lock(userID)
	defer unlock()

	rec, err := e.active(userID)
	if err != nil {
		return "", err
	}
	if index < 0 || index >= len(shown) {
		return "", fmt.Errorf("%w: index %d of %d", ErrInvalidSuggestion, index, len(shown))
	}

	e.store(ctx, rec.Reduced())
	return shown[index], nil
}

func (e *Engine) active(userID string) (Record, error) {
	rec, ok := e.Get(userID)
	if !ok || !rec.Active() {
		return Record{}, ErrNoActiveCourse
	}
	return rec, nil
}

// store updates the table and persists. Persistence failures are logged;
// the in-memory state stays authoritative for this process.
func (e *Engine) store(ctx context.Context, rec Record) Record {
	rec.UpdatedAt = e.now()

	e.mu.Lock()
	e.records[rec.UserID] = rec.Clone()
	e.mu.Unlock()

	if err := e.repo.Upsert(ctx, rec); err != nil {
		slog.Error("failed to persist course", "user_id", rec.UserID, "error", err)
	}
	return rec
}
