package generator

import (
	"fmt"
	"strings"

	"github.com/p-n-ai/coursecraft/internal/library"
)

const systemPrompt = `You are an expert teacher with 20 years of experience who designs short, motivating courses.
Apply the 80/20 rule: focus on the 20% of material that gives 80% of the result.
Write in a friendly mentor's voice. Use Telegram HTML: <b>bold</b> for headings only, never ** or *.`

// lessonFormat is shared by course generation and lesson revision.
const lessonFormat = `Each lesson must follow exactly this format:
<b>Day X: [Lesson title]</b>
<b>Introduction 🎯</b>: 3-4 sentences on why it matters.
<b>Main step 🚀</b>: the key idea with 3-4 tips, ending with "Not sure? Ask me a question!".
<b>Practical example 🌟</b>: a real situation with details.
<b>Exercise 1 ✍️</b>: a simple practice task.
<b>Exercise 2 ✍️</b>: a task that consolidates the lesson.
💡 Tip: short and practical.
Do not duplicate headings. Do not give time estimates for the exercises.
Each lesson is 1800-2400 characters long.`

func planPrompt(req PlanRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Create a plan of %d lessons for the skill %q.\n", PlanSize, req.Skill)
	fmt.Fprintf(&b, "Experience level: %q. Goal: %q.\n", req.Experience, req.Goal)
	if req.EditHint != "" {
		fmt.Fprintf(&b, "The learner asked for these changes to the previous plan: %q.\n", req.EditHint)
	}
	b.WriteString("Each lesson is one title of 50-70 characters.\n")
	fmt.Fprintf(&b, "Return only %d lines, without numbering or any other text.", PlanSize)
	return b.String()
}

func coursePrompt(req CourseRequest, resources []library.Resource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Write a %d-day course on %q for the goal %q.\n", PlanSize, req.Skill, req.Goal)
	fmt.Fprintf(&b, "Experience level: %s. Preferences: %s.\n\n", req.Experience, orNone(req.Preferences))
	b.WriteString("Follow this plan:\n")
	for i, title := range req.Plan {
		fmt.Fprintf(&b, "Day %d: %s\n", i+1, title)
	}
	b.WriteString("\n")
	b.WriteString(lessonFormat)
	b.WriteString("\n\nPersonalization: basics for beginners, more practice for intermediate learners, hard tasks for advanced ones. ")
	b.WriteString("Reflect the preferences in examples and style. For programming with no language named, use Python.\n")
	b.WriteString("Separate lessons with a line containing only ---.\n")
	writeResources(&b, resources, "Integrate this material into the lessons.")
	if len(req.PriorLessonHashes) > 0 {
		b.WriteString("Do not repeat previously generated lessons with these fingerprints:\n")
		for _, h := range req.PriorLessonHashes {
			fmt.Fprintf(&b, "- %s\n", h)
		}
		b.WriteString("Generate new, unique content for every day.\n")
	}
	return b.String()
}

func answerPrompt(question, context string) string {
	var b strings.Builder
	if context != "" {
		fmt.Fprintf(&b, "Context:\n%s\n\n", context)
	}
	fmt.Fprintf(&b, "Answer the question: %q.\n", question)
	b.WriteString("Keep it to 300-500 characters, inspiring and friendly, with <b>bold</b> for key points and a few emoji. ")
	b.WriteString("Do not use the lesson structure, just answer.")
	return b.String()
}

func suggestionsPrompt(skill string) string {
	return fmt.Sprintf("Suggest %d ideas for follow-up courses after %q. "+
		"Each idea is one line of 30-50 characters naming a skill. "+
		"Return only %d lines without any other text.", SuggestionCount, skill, SuggestionCount)
}

func updatePrompt(req LessonUpdate, resources []library.Resource) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Update this lesson on %q following the request: %q.\n", req.Skill, req.EditHint)
	fmt.Fprintf(&b, "Experience level: %s. Goal: %s. Preferences: %s.\n", req.Experience, req.Goal, orNone(req.Preferences))
	fmt.Fprintf(&b, "Current lesson:\n%s\n\n", req.CurrentLesson)
	fmt.Fprintf(&b, "Keep the heading: <b>Day %d: %s</b>\n", req.Day+1, LessonTitle(req.CurrentLesson))
	b.WriteString(lessonFormat)
	fmt.Fprintf(&b, "\nEmphasize practical steps for %q.\n", req.EditHint)
	writeResources(&b, resources, "Integrate this material into the lesson.")
	return b.String()
}

func writeResources(b *strings.Builder, resources []library.Resource, instruction string) {
	if len(resources) == 0 {
		return
	}
	b.WriteString("Use the following material from the library:\n")
	for _, r := range resources {
		fmt.Fprintf(b, "- %s %q by %s: %s...\n", r.Kind, r.Title, orNone(r.Author), library.Truncate(r.Content, 200))
	}
	b.WriteString(instruction)
	b.WriteString("\n")
}

func orNone(s string) string {
	if strings.TrimSpace(s) == "" {
		return "none"
	}
	return s
}
