package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/p-n-ai/coursecraft/internal/chat"
	"github.com/p-n-ai/coursecraft/internal/course"
	"github.com/p-n-ai/coursecraft/internal/dialogue"
)

// simplifyQuestion is sent to the generator for the simplify button.
const simplifyQuestion = "Explain this lesson more simply"

func (e *Engine) showLesson(rec course.Record, r *replies) {
	r.html(lessonText(rec), lessonButtons(rec)...)
}

func lessonText(rec course.Record) string {
	return fmt.Sprintf("📅 Day %d of %d · Progress: %d%%\n\n%s",
		rec.CurrentDay+1, course.Days, rec.Progress, rec.CurrentLesson())
}

// activeCourse returns the user's active record, or replies with guidance.
func (e *Engine) activeCourse(sess *dialogue.Session, r *replies) (course.Record, bool) {
	rec, ok := e.courses.Get(sess.UserID)
	if !ok || !rec.Active() {
		r.text(msgNoActiveCourse, chat.Row(startButton()))
		return course.Record{}, false
	}
	return rec, true
}

// leaveSingleShot drops a pending question or change request when the user
// navigates the lesson instead. Setup states are left alone.
func leaveSingleShot(sess *dialogue.Session) {
	switch sess.State {
	case dialogue.AwaitingCustomQuestion, dialogue.AwaitingChangeRequest:
		sess.Reset()
	}
}

// nextLesson handles next_lesson:<day>. The day pins the request to the
// lesson the button was shown under, so a double tap advances once.
func (e *Engine) nextLesson(ctx context.Context, sess *dialogue.Session, args []string, r *replies) {
	fromDay := course.AnyDay
	if len(args) == 1 {
		d, err := strconv.Atoi(args[0])
		if err != nil {
			e.staleButton(sess, r)
			return
		}
		fromDay = d
	}

	rec, changed, err := e.courses.AdvanceDay(ctx, sess.UserID, fromDay)
	if errors.Is(err, course.ErrNoActiveCourse) {
		r.text(msgNoActiveCourse, chat.Row(startButton()))
		return
	}
	if err != nil {
		slog.Error("advance day failed", "user_id", sess.UserID, "error", err)
		r.text(msgGenericError)
		return
	}

	leaveSingleShot(sess)
	if changed {
		if rec.CurrentDay < course.LastDay {
			e.startReminders(sess.UserID)
		} else {
			e.stopReminders(sess.UserID)
		}
	}
	e.showLesson(rec, r)
}

func (e *Engine) finishCourse(ctx context.Context, sess *dialogue.Session, r *replies) {
	res, err := e.courses.Finish(ctx, sess.UserID)
	if errors.Is(err, course.ErrNoActiveCourse) {
		r.text(msgNoActiveCourse, chat.Row(startButton()))
		return
	}
	if errors.Is(err, course.ErrNotLastDay) {
		// A finish button left under an earlier course's last lesson.
		r.text(msgStaleButton)
		if rec, ok := e.courses.Get(sess.UserID); ok {
			e.showLesson(rec, r)
		}
		return
	}
	if err != nil {
		slog.Error("finish course failed", "user_id", sess.UserID, "error", err)
		r.text(msgGenericError)
		return
	}

	e.stopReminders(sess.UserID)
	congrats := fmt.Sprintf(msgCourseFinished, res.Record.Skill, res.Record.Progress)

	if len(res.Suggestions) == 0 {
		sess.Begin()
		r.text(congrats + "\n\n" + msgAllSuggestionsDone)
		return
	}

	leaveSingleShot(sess)
	token := e.newToken()
	sess.RememberSuggestions(token, res.Suggestions)

	rows := make([][]chat.Button, 0, len(res.Suggestions)+1)
	for i, s := range res.Suggestions {
		rows = append(rows, chat.Row(chat.Button{
			Text:   s,
			Action: fmt.Sprintf("%s:%s:%d", actionSuggest, token, i),
		}))
	}
	rows = append(rows, chat.Row(chat.Button{Text: "🎯 My own skill", Action: actionRestart}))
	r.text(congrats+"\n\n"+msgPickNext, rows...)
}

func (e *Engine) cancelCourse(ctx context.Context, sess *dialogue.Session, r *replies) {
	err := e.courses.Cancel(ctx, sess.UserID)
	if errors.Is(err, course.ErrNoActiveCourse) {
		sess.Reset()
		r.text(msgNoActiveCourse, chat.Row(startButton()))
		return
	}
	if err != nil {
		slog.Error("cancel course failed", "user_id", sess.UserID, "error", err)
		r.text(msgGenericError)
		return
	}

	e.stopReminders(sess.UserID)
	sess.Reset()
	r.text(msgCourseCancelled, chat.Row(startButton()))
}

func (e *Engine) simplifyLesson(ctx context.Context, sess *dialogue.Session, msg chat.InboundMessage, r *replies) {
	rec, ok := e.activeCourse(sess, r)
	if !ok {
		return
	}
	leaveSingleShot(sess)

	e.typing(ctx, msg)
	answer, err := e.gen.AnswerQuestion(ctx, sess.UserID, simplifyQuestion, rec.CurrentLesson())
	if err != nil || strings.TrimSpace(answer) == "" {
		slog.Warn("simplify failed", "user_id", sess.UserID, "error", err)
		r.text(msgSimplifyFailed, chat.Row(returnButton()))
		return
	}
	r.html(answer, chat.Row(returnButton()))
}

func (e *Engine) askQuestion(sess *dialogue.Session, r *replies) {
	if _, ok := e.activeCourse(sess, r); !ok {
		return
	}
	sess.Reset()
	if transition(sess, dialogue.AwaitingCustomQuestion) {
		r.text(msgAskQuestion, chat.Row(returnButton()))
	}
}

// answerQuestion is the single-shot reply to a custom question. Trigger
// phrases get a canned usage answer without calling the generator.
func (e *Engine) answerQuestion(ctx context.Context, sess *dialogue.Session, msg chat.InboundMessage, text string, r *replies) {
	if text == "" {
		r.text(msgAskQuestion, chat.Row(returnButton()))
		return
	}

	buttons := chat.Row(
		chat.Button{Text: "❓ Ask another question", Action: actionCustomQuestion},
		returnButton(),
	)

	if answer, ok := shortcutAnswer(text); ok {
		sess.Reset()
		r.text(answer, buttons)
		return
	}

	var lesson string
	if rec, ok := e.courses.Get(sess.UserID); ok {
		lesson = rec.CurrentLesson()
	}

	e.typing(ctx, msg)
	answer, err := e.gen.AnswerQuestion(ctx, sess.UserID, text, lesson)
	if err != nil {
		slog.Error("answer generation failed", "user_id", sess.UserID, "error", err)
		r.text(msgGenerationFailed, chat.Row(returnButton()))
		return
	}
	sess.Reset()
	r.html(answer, buttons)
}

func (e *Engine) requestChange(sess *dialogue.Session, r *replies) {
	if _, ok := e.activeCourse(sess, r); !ok {
		return
	}
	sess.Reset()
	if transition(sess, dialogue.AwaitingChangeRequest) {
		r.text(msgAskChange, chat.Row(returnButton()))
	}
}

func (e *Engine) changeLesson(ctx context.Context, sess *dialogue.Session, msg chat.InboundMessage, text string, r *replies) {
	if text == "" {
		r.text(msgAskChange, chat.Row(returnButton()))
		return
	}

	e.typing(ctx, msg)
	rec, err := e.courses.EditCurrentLesson(ctx, sess.UserID, text)
	if errors.Is(err, course.ErrNoActiveCourse) {
		sess.Reset()
		r.text(msgNoActiveCourse, chat.Row(startButton()))
		return
	}
	if err != nil {
		slog.Error("lesson update failed", "user_id", sess.UserID, "error", err)
		r.text(msgGenerationFailed, chat.Row(returnButton()))
		return
	}

	sess.Reset()
	r.text(msgLessonUpdated)
	e.showLesson(rec, r)
}

// returnToLesson removes the prompt the button sat under and shows the
// current lesson again.
func (e *Engine) returnToLesson(sess *dialogue.Session, msg chat.InboundMessage, r *replies) {
	rec, ok := e.activeCourse(sess, r)
	if !ok {
		return
	}
	leaveSingleShot(sess)
	if msg.MessageID != "" {
		r.add(chat.OutboundMessage{DeleteMessageID: msg.MessageID})
	}
	e.showLesson(rec, r)
}

var shortcutTriggers = []string{"how do i quit", "how to quit", "how to use", "what do i do"}

func shortcutAnswer(question string) (string, bool) {
	q := cases.Fold().String(question)
	for _, trigger := range shortcutTriggers {
		if strings.Contains(q, trigger) {
			return msgUsage, true
		}
	}
	return "", false
}
