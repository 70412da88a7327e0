// Package course owns per-user course records: the 7-day plan, lesson
// bodies, day progression and the ledger of completed lessons.
package course

import (
	"slices"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

const (
	// Days is the fixed length of every course.
	Days = 7
	// LastDay is the index of the final lesson.
	LastDay = Days - 1
)

// Target is where asynchronous messages for a user are delivered.
type Target struct {
	Channel string `json:"channel"`
	ChatID  string `json:"chat_id"`
}

// LedgerEntry marks one lesson of one skill as completed.
type LedgerEntry struct {
	Skill string `json:"skill"`
	Day   int    `json:"day"`
}

// Ledger is the ordered set of completed lessons. It survives cancellation
// and replacement of the active course.
type Ledger []LedgerEntry

// Contains reports whether (skill, day) is recorded. Skills compare case-folded.
func (l Ledger) Contains(skill string, day int) bool {
	return slices.ContainsFunc(l, func(e LedgerEntry) bool {
		return e.Day == day && SameSkill(e.Skill, skill)
	})
}

// Add returns the ledger with (skill, day) appended unless already present.
func (l Ledger) Add(skill string, day int) (Ledger, bool) {
	if l.Contains(skill, day) {
		return l, false
	}
	return append(l, LedgerEntry{Skill: skill, Day: day}), true
}

// Completed reports whether every lesson of skill was finished, which is
// marked by its final day being in the ledger.
func (l Ledger) Completed(skill string) bool {
	return l.Contains(skill, LastDay)
}

// Record is the full per-user course state.
type Record struct {
	UserID      string
	Target      Target
	Skill       string
	Goal        string
	Experience  string
	Preferences string
	Plan        []string
	Lessons     []string
	CurrentDay  int
	Progress    int
	Completed   Ledger
	UpdatedAt   time.Time
}

// Active reports whether the record holds a course with all lessons.
func (r Record) Active() bool {
	return len(r.Lessons) == Days
}

// Finished reports whether the course was explicitly finished.
func (r Record) Finished() bool {
	return r.Active() && r.Progress == 100
}

// CurrentLesson returns the lesson body for CurrentDay, or "" if inactive.
func (r Record) CurrentLesson() string {
	if !r.Active() || r.CurrentDay < 0 || r.CurrentDay > LastDay {
		return ""
	}
	return r.Lessons[r.CurrentDay]
}

// Reduced returns the record stripped to the user, target and ledger.
func (r Record) Reduced() Record {
	return Record{
		UserID:    r.UserID,
		Target:    r.Target,
		Completed: slices.Clone(r.Completed),
		UpdatedAt: r.UpdatedAt,
	}
}

// Clone returns a deep copy.
func (r Record) Clone() Record {
	r.Plan = slices.Clone(r.Plan)
	r.Lessons = slices.Clone(r.Lessons)
	r.Completed = slices.Clone(r.Completed)
	return r
}

// Progress is the completion percentage shown for a day index.
func Progress(day int) int {
	return min(100, (day+1)*14)
}

// SameSkill compares skill names case-folded and NFC-normalized.
func SameSkill(a, b string) bool {
	return foldSkill(a) == foldSkill(b)
}

func foldSkill(s string) string {
	return cases.Fold().String(norm.NFC.String(strings.TrimSpace(s)))
}
