package course

import (
	"fmt"
	"html"
	"strings"
)

// SuggestionCount is the number of follow-up courses offered after a finish.
const SuggestionCount = 3

// NormalizePlan pads or truncates plan titles to Days entries. Blank titles
// are dropped before padding.
func NormalizePlan(plan []string, skill string) []string {
	out := make([]string, 0, Days)
	for _, p := range plan {
		if p = strings.TrimSpace(p); p != "" && len(out) < Days {
			out = append(out, p)
		}
	}
	for len(out) < Days {
		out = append(out, PlanFiller(skill))
	}
	return out
}

// PlanFiller is the title used for missing plan entries.
func PlanFiller(skill string) string {
	return "Bonus practice: " + skill
}

// NormalizeLessons pads or truncates lesson bodies to Days entries.
func NormalizeLessons(lessons []string, skill, goal string) []string {
	out := make([]string, 0, Days)
	for _, l := range lessons {
		if l = strings.TrimSpace(l); l != "" && len(out) < Days {
			out = append(out, l)
		}
	}
	for len(out) < Days {
		out = append(out, LessonFiller(len(out), skill, goal))
	}
	return out
}

// LessonFiller is the templated body used for a missing lesson at day index.
// The body is HTML; skill and goal are escaped.
func LessonFiller(day int, skill, goal string) string {
	skill, goal = html.EscapeString(skill), html.EscapeString(goal)
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Day %d: One more step towards %s</b>\n", day+1, skill)
	fmt.Fprintf(&b, "<b>Introduction 🎯</b>: You are getting close to your goal \"%s\". Keep going!\n", goal)
	fmt.Fprintf(&b, "<b>Main step 🚀</b>: Practise %s a little every day. Not sure? Ask me a question!\n", skill)
	fmt.Fprintf(&b, "<b>Practical example 🌟</b>: Use %s in a real situation today.\n", skill)
	b.WriteString("<b>Exercise 1 ✍️</b>: Take one small, concrete step.\n")
	b.WriteString("<b>Exercise 2 ✍️</b>: Repeat it and note what got easier.\n")
	b.WriteString("💡 Tip: consistency beats intensity.")
	return b.String()
}

// NormalizeSuggestions returns the generator's suggestions when there are
// exactly SuggestionCount non-blank ones, and the templated fallback otherwise.
func NormalizeSuggestions(suggestions []string, skill string) []string {
	out := make([]string, 0, SuggestionCount)
	for _, s := range suggestions {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) != SuggestionCount {
		return FallbackSuggestions(skill)
	}
	return out
}

// FallbackSuggestions are the deterministic follow-ups for a skill.
func FallbackSuggestions(skill string) []string {
	return []string{
		"Advanced " + skill,
		skill + " for real projects",
		skill + " and marketing",
	}
}

// FilterCompleted drops suggestions whose skill is fully completed in the ledger.
func FilterCompleted(suggestions []string, ledger Ledger) []string {
	out := make([]string, 0, len(suggestions))
	for _, s := range suggestions {
		if !ledger.Completed(s) {
			out = append(out, s)
		}
	}
	return out
}
