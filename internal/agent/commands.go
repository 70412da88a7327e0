package agent

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/p-n-ai/coursecraft/internal/chat"
	"github.com/p-n-ai/coursecraft/internal/dialogue"
)

// Button actions.
const (
	actionSkipPreferences = "skip_preferences"
	actionApprovePlan     = "approve_plan"
	actionEditPlan        = "edit_plan"
	actionRestart         = "restart"
	actionNextLesson      = "next_lesson"
	actionFinishCourse    = "finish_course"
	actionSimplifyLesson  = "simplify_lesson"
	actionCustomQuestion  = "custom_question"
	actionReturnToLesson  = "return_to_lesson"
	actionChangeLesson    = "change_lesson"
	actionCancelCourse    = "cancel_course"
	actionStartCourse     = "start_course"
	actionSuggest         = "suggest"
)

func (e *Engine) handleCommand(ctx context.Context, sess *dialogue.Session, msg chat.InboundMessage, r *replies) {
	switch msg.Command() {
	case "start":
		e.beginSetup(sess, msg, r)
	case "help":
		sess.Reset()
		e.showHelp(sess, r)
	case "feedback":
		sess.Reset()
		if text := commandArgument(msg.Text); text != "" {
			e.collectFeedback(ctx, sess, msg, text, r)
			return
		}
		if transition(sess, dialogue.AwaitingFeedback) {
			r.text(msgAskFeedback)
		}
	case "donate":
		sess.Reset()
		e.showDonate(r)
	default:
		// Commands are never taken as answers; repeat the pending question.
		if sess.State != dialogue.Idle {
			e.prompt(sess, r)
			return
		}
		r.text(fmt.Sprintf(msgUnknownCommand, strings.Fields(msg.Text)[0]))
	}
}

func (e *Engine) handleAction(ctx context.Context, sess *dialogue.Session, msg chat.InboundMessage, r *replies) {
	name, args := parseAction(msg.Action)

	switch name {
	case actionSkipPreferences:
		if sess.State != dialogue.AwaitingPreferences {
			e.staleButton(sess, r)
			return
		}
		e.collectPreferences(ctx, sess, msg, "", r)
	case actionApprovePlan:
		e.approvePlan(ctx, sess, msg, r)
	case actionEditPlan:
		if sess.State != dialogue.ReviewingPlan {
			e.staleButton(sess, r)
			return
		}
		if transition(sess, dialogue.EditingPlan) {
			r.text(msgAskPlanEdit)
		}
	case actionRestart, actionStartCourse:
		e.beginSetup(sess, msg, r)
	case actionNextLesson:
		e.nextLesson(ctx, sess, args, r)
	case actionFinishCourse:
		e.finishCourse(ctx, sess, r)
	case actionSimplifyLesson:
		e.simplifyLesson(ctx, sess, msg, r)
	case actionCustomQuestion:
		e.askQuestion(sess, r)
	case actionReturnToLesson:
		e.returnToLesson(sess, msg, r)
	case actionChangeLesson:
		e.requestChange(sess, r)
	case actionCancelCourse:
		e.cancelCourse(ctx, sess, r)
	case actionSuggest:
		e.selectSuggestion(ctx, sess, args, r)
	default:
		slog.Warn("unknown action", "user_id", sess.UserID, "action", msg.Action)
		e.staleButton(sess, r)
	}
}

// parseAction splits "name:arg1:arg2".
func parseAction(action string) (string, []string) {
	parts := strings.Split(action, ":")
	return parts[0], parts[1:]
}

func commandArgument(text string) string {
	_, rest, _ := strings.Cut(strings.TrimSpace(text), " ")
	return strings.TrimSpace(rest)
}

// staleButton answers a press that does not fit the current state.
func (e *Engine) staleButton(sess *dialogue.Session, r *replies) {
	r.text(msgStaleButton)
	e.prompt(sess, r)
}

func (e *Engine) showHelp(sess *dialogue.Session, r *replies) {
	if rec, ok := e.courses.Get(sess.UserID); ok && rec.Active() {
		r.html(msgHelp, chat.Row(returnButton()))
		return
	}
	r.html(msgHelp, chat.Row(startButton()))
}

func (e *Engine) showDonate(r *replies) {
	if e.donateURL == "" {
		r.text(msgDonateThanks)
		return
	}
	r.text(msgDonate, chat.Row(chat.Button{Text: "💛 Support the project", URL: e.donateURL}))
}

// collectFeedback records the text and forwards it to the admin chat.
func (e *Engine) collectFeedback(ctx context.Context, sess *dialogue.Session, msg chat.InboundMessage, text string, r *replies) {
	if text == "" {
		r.text(msgAskFeedback)
		return
	}

	fb := Feedback{UserID: sess.UserID, Username: msg.Username, Text: text}
	if err := e.feedback.Record(ctx, fb); err != nil {
		slog.Error("failed to record feedback", "user_id", sess.UserID, "error", err)
	}
	e.forwardFeedback(ctx, fb)

	sess.Reset()
	r.text(msgFeedbackThanks)
}

func (e *Engine) forwardFeedback(ctx context.Context, fb Feedback) {
	if e.sender == nil || e.admin.ChatID == "" || e.admin.Channel == "" {
		return
	}
	from := fb.UserID
	if fb.Username != "" {
		from = "@" + fb.Username + " (" + fb.UserID + ")"
	}
	err := e.sender.Send(ctx, chat.OutboundMessage{
		Channel: e.admin.Channel,
		UserID:  e.admin.ChatID,
		Text:    fmt.Sprintf("📝 Feedback from %s:\n\n%s", from, fb.Text),
	})
	if err != nil {
		slog.Warn("failed to forward feedback", "user_id", fb.UserID, "error", err)
	}
}
