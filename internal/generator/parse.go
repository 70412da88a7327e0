package generator

import (
	"regexp"
	"strings"
)

// listMarker matches leading bullets and numbering such as "1.", "2)", "-", "•".
var listMarker = regexp.MustCompile(`^\s*(?:\d{1,2}[.)]|[-*•])\s+`)

// lessonSeparator splits lesson bodies on a line consisting of three or more dashes.
var lessonSeparator = regexp.MustCompile(`(?m)^\s*-{3,}\s*$`)

// ParseLines splits a list response into trimmed, non-empty items with list
// markers removed.
func ParseLines(text string) []string {
	var out []string
	for _, line := range strings.Split(strings.TrimSpace(text), "\n") {
		line = strings.TrimSpace(listMarker.ReplaceAllString(line, ""))
		line = strings.Trim(line, `"`)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

// ParseLessons splits a course response on "---" separator lines.
func ParseLessons(text string) []string {
	var out []string
	for _, part := range lessonSeparator.Split(strings.TrimSpace(text), -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// LessonTitle extracts the title from a lesson's first line, dropping markup
// and a leading "Day N:" prefix.
func LessonTitle(lesson string) string {
	first, _, _ := strings.Cut(strings.TrimSpace(lesson), "\n")
	first = strings.NewReplacer("<b>", "", "</b>", "").Replace(first)
	if prefix, rest, ok := strings.Cut(first, ": "); ok && strings.HasPrefix(strings.ToLower(prefix), "day") {
		first = rest
	}
	return strings.TrimSpace(first)
}
