package agent

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log/slog"
	"strconv"
	"strings"

	"github.com/p-n-ai/coursecraft/internal/chat"
	"github.com/p-n-ai/coursecraft/internal/course"
	"github.com/p-n-ai/coursecraft/internal/dialogue"
	"github.com/p-n-ai/coursecraft/internal/generator"
)

// beginSetup starts collecting a new course profile.
func (e *Engine) beginSetup(sess *dialogue.Session, msg chat.InboundMessage, r *replies) {
	sess.Begin()
	r.text(fmt.Sprintf(msgWelcome, displayName(msg)))
}

func (e *Engine) collectSkill(sess *dialogue.Session, text string, r *replies) {
	if text == "" {
		r.text(msgAskSkill)
		return
	}
	sess.Scratch.Skill = text
	if transition(sess, dialogue.AwaitingGoal) {
		r.text(msgAskGoal)
	}
}

func (e *Engine) collectGoal(sess *dialogue.Session, text string, r *replies) {
	if text == "" {
		r.text(msgAskGoal)
		return
	}
	sess.Scratch.Goal = text
	if transition(sess, dialogue.AwaitingExperience) {
		r.text(msgAskExperience)
	}
}

func (e *Engine) collectExperience(sess *dialogue.Session, text string, r *replies) {
	if text == "" {
		r.text(msgAskExperience)
		return
	}
	sess.Scratch.Experience = text
	if transition(sess, dialogue.AwaitingPreferences) {
		r.text(msgAskPreferences, chat.Row(skipPreferencesButton()))
	}
}

// collectPreferences stores the preferences ("" when skipped) and generates
// the plan. On generator failure the state stays put so the user can retry.
func (e *Engine) collectPreferences(ctx context.Context, sess *dialogue.Session, msg chat.InboundMessage, text string, r *replies) {
	sess.Scratch.Preferences = text
	if !e.generatePlan(ctx, sess, msg, "", r) {
		r.text(msgAskPreferences, chat.Row(skipPreferencesButton()))
		return
	}
	if transition(sess, dialogue.ReviewingPlan) {
		e.showPlan(sess, r)
	}
}

func (e *Engine) editPlan(ctx context.Context, sess *dialogue.Session, msg chat.InboundMessage, text string, r *replies) {
	if text == "" {
		r.text(msgAskPlanEdit)
		return
	}
	if !e.generatePlan(ctx, sess, msg, text, r) {
		return
	}
	if transition(sess, dialogue.ReviewingPlan) {
		e.showPlan(sess, r)
	}
}

func (e *Engine) generatePlan(ctx context.Context, sess *dialogue.Session, msg chat.InboundMessage, editHint string, r *replies) bool {
	e.typing(ctx, msg)
	plan, err := e.gen.GeneratePlan(ctx, generator.PlanRequest{
		UserID:     sess.UserID,
		Skill:      sess.Scratch.Skill,
		Experience: sess.Scratch.Experience,
		Goal:       sess.Scratch.Goal,
		EditHint:   editHint,
	})
	if err != nil {
		slog.Error("plan generation failed", "user_id", sess.UserID, "error", err)
		r.text(msgGenerationFailed)
		return false
	}
	sess.Scratch.Plan = course.NormalizePlan(plan, sess.Scratch.Skill)
	return true
}

func (e *Engine) showPlan(sess *dialogue.Session, r *replies) {
	var b strings.Builder
	fmt.Fprintf(&b, "<b>Your %d-day plan for %s</b>\n\n", course.Days, html.EscapeString(sess.Scratch.Skill))
	for i, title := range sess.Scratch.Plan {
		fmt.Fprintf(&b, "%d. %s\n", i+1, html.EscapeString(title))
	}
	b.WriteString("\nShall we start?")
	r.html(b.String(),
		chat.Row(chat.Button{Text: "✅ Start the course", Action: actionApprovePlan}),
		chat.Row(
			chat.Button{Text: "✏️ Edit the plan", Action: actionEditPlan},
			chat.Button{Text: "🔄 Start over", Action: actionRestart},
		),
	)
}

// approvePlan generates the lessons and activates the course.
func (e *Engine) approvePlan(ctx context.Context, sess *dialogue.Session, msg chat.InboundMessage, r *replies) {
	if sess.State != dialogue.ReviewingPlan {
		e.staleButton(sess, r)
		return
	}

	e.typing(ctx, msg)
	target := course.Target{Channel: msg.Channel, ChatID: msg.Target()}
	rec, err := e.courses.Start(ctx, sess.UserID, target, course.Setup{
		Skill:       sess.Scratch.Skill,
		Goal:        sess.Scratch.Goal,
		Experience:  sess.Scratch.Experience,
		Preferences: sess.Scratch.Preferences,
		Plan:        sess.Scratch.Plan,
	})
	if err != nil {
		slog.Error("course generation failed", "user_id", sess.UserID, "error", err)
		r.text(msgGenerationFailed)
		e.showPlan(sess, r)
		return
	}

	sess.Reset()
	e.startReminders(sess.UserID)
	r.text(fmt.Sprintf(msgCourseReady, rec.Skill))
	e.showLesson(rec, r)
}

// selectSuggestion resolves suggest:<token>:<index> against the list that
// was displayed and starts setup for the chosen skill.
func (e *Engine) selectSuggestion(ctx context.Context, sess *dialogue.Session, args []string, r *replies) {
	if len(args) != 2 {
		e.staleButton(sess, r)
		return
	}
	shown, ok := sess.LookupSuggestions(args[0])
	if !ok {
		r.text(msgSuggestionsExpired, chat.Row(startButton()))
		return
	}
	index, err := strconv.Atoi(args[1])
	if err != nil {
		e.staleButton(sess, r)
		return
	}

	skill, err := e.courses.SelectSuggestion(ctx, sess.UserID, shown, index)
	switch {
	case errors.Is(err, course.ErrNoActiveCourse):
		r.text(msgSuggestionsExpired, chat.Row(startButton()))
		return
	case err != nil:
		slog.Warn("suggestion selection failed", "user_id", sess.UserID, "error", err)
		e.staleButton(sess, r)
		return
	}

	e.stopReminders(sess.UserID)
	sess.Begin()
	sess.Scratch.Skill = skill
	if transition(sess, dialogue.AwaitingGoal) {
		r.text(fmt.Sprintf(msgSuggestionChosen, skill))
	}
}
