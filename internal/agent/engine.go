// Package agent is the dialogue orchestrator: it resolves each inbound event
// against the user's dialogue state, drives the course engine and generator,
// and produces the replies.
package agent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/p-n-ai/coursecraft/internal/chat"
	"github.com/p-n-ai/coursecraft/internal/course"
	"github.com/p-n-ai/coursecraft/internal/dialogue"
	"github.com/p-n-ai/coursecraft/internal/generator"
	"github.com/p-n-ai/coursecraft/internal/platform/keylock"
)

// ErrMissingUser is returned for inbound events without a user ID.
var ErrMissingUser = errors.New("inbound message without user id")

// Sender delivers replies. chat.Gateway implements it.
type Sender interface {
	Send(ctx context.Context, msg chat.OutboundMessage) error
	SendTyping(ctx context.Context, channel, userID string) error
}

// Reminders is the per-user reminder control. reminder.Scheduler implements it.
type Reminders interface {
	Start(userID string)
	Stop(userID string)
}

// AdminTarget is where forwarded feedback goes.
type AdminTarget struct {
	Channel string
	ChatID  string
}

// EngineConfig holds dependencies for the agent engine.
type EngineConfig struct {
	Courses   *course.Engine
	Generator generator.Generator
	Sessions  dialogue.Store // default: in-memory
	Sender    Sender         // optional; replies are only returned when nil
	Reminders Reminders      // optional
	Feedback  FeedbackSink   // default: discard
	Admin     AdminTarget    // optional feedback forwarding
	DonateURL string
	NewToken  func() string // suggestion-list tokens; default uuid
}

// Engine is the core conversation processor.
type Engine struct {
	courses   *course.Engine
	gen       generator.Generator
	sessions  dialogue.Store
	sender    Sender
	reminders Reminders
	feedback  FeedbackSink
	admin     AdminTarget
	donateURL string
	newToken  func() string
	locks     *keylock.Locker
}

// NewEngine creates a new agent engine.
func NewEngine(cfg EngineConfig) *Engine {
	sessions := cfg.Sessions
	if sessions == nil {
		sessions = dialogue.NewMemoryStore()
	}
	feedback := cfg.Feedback
	if feedback == nil {
		feedback = NopFeedbackSink{}
	}
	newToken := cfg.NewToken
	if newToken == nil {
		newToken = uuid.NewString
	}
	return &Engine{
		courses:   cfg.Courses,
		gen:       cfg.Generator,
		sessions:  sessions,
		sender:    cfg.Sender,
		reminders: cfg.Reminders,
		feedback:  feedback,
		admin:     cfg.Admin,
		donateURL: cfg.DonateURL,
		newToken:  newToken,
		locks:     keylock.New(),
	}
}

// SetReminders attaches the reminder scheduler. The scheduler needs the
// engine as its notifier, so it is wired after construction.
func (e *Engine) SetReminders(r Reminders) {
	e.reminders = r
}

// replies collects the outbound messages of one inbound event.
type replies struct {
	channel string
	to      string
	out     []chat.OutboundMessage
}

func (r *replies) add(msg chat.OutboundMessage) {
	msg.Channel = r.channel
	msg.UserID = r.to
	r.out = append(r.out, msg)
}

func (r *replies) text(text string, rows ...[]chat.Button) {
	r.add(chat.OutboundMessage{Text: text, Buttons: rows})
}

func (r *replies) html(text string, rows ...[]chat.Button) {
	r.add(chat.OutboundMessage{Text: text, ParseMode: "HTML", Buttons: rows})
}

// ProcessMessage handles one inbound event and returns the replies, which
// are also delivered through the Sender when one is configured. Sessions
// and course records are keyed by InboundMessage.Key. Events for
// the same user are handled one at a time. Handler failures become apology
// replies; the error return is reserved for malformed events.
func (e *Engine) ProcessMessage(ctx context.Context, msg chat.InboundMessage) ([]chat.OutboundMessage, error) {
	if msg.UserID == "" {
		return nil, ErrMissingUser
	}

	key := msg.Key()
	unlock := e.locks.Lock(key)
	defer unlock()

	slog.Info("processing message",
		"channel", msg.Channel,
		"user_id", key,
		"action", msg.Action,
		"text_len", len(msg.Text),
	)

	sess, err := e.sessions.Get(ctx, key)
	if err != nil {
		slog.Error("failed to load session", "user_id", key, "error", err)
		sess = dialogue.NewSession(key)
	}

	r := &replies{channel: msg.Channel, to: msg.Target()}
	switch {
	case msg.Action != "":
		e.handleAction(ctx, sess, msg, r)
	case msg.IsCommand():
		e.handleCommand(ctx, sess, msg, r)
	default:
		e.handleText(ctx, sess, msg, r)
	}

	if err := e.sessions.Save(ctx, sess); err != nil {
		slog.Error("failed to save session", "user_id", key, "error", err)
	}

	e.deliver(ctx, r.out)
	return r.out, nil
}

// HandleInbound adapts ProcessMessage to chat.Gateway.StartAll.
func (e *Engine) HandleInbound(ctx context.Context) func(chat.InboundMessage) {
	return func(msg chat.InboundMessage) {
		if _, err := e.ProcessMessage(ctx, msg); err != nil {
			slog.Warn("inbound message dropped", "channel", msg.Channel, "error", err)
		}
	}
}

func (e *Engine) deliver(ctx context.Context, out []chat.OutboundMessage) {
	if e.sender == nil {
		return
	}
	for _, m := range out {
		if err := e.sender.Send(ctx, m); err != nil {
			slog.Error("failed to send reply", "channel", m.Channel, "user_id", m.UserID, "error", err)
		}
	}
}

func (e *Engine) typing(ctx context.Context, msg chat.InboundMessage) {
	if e.sender == nil {
		return
	}
	if err := e.sender.SendTyping(ctx, msg.Channel, msg.Target()); err != nil {
		slog.Debug("typing indicator failed", "user_id", msg.UserID, "error", err)
	}
}

// Remind sends the "ready for the next lesson?" nudge. It implements
// reminder.Notifier.
func (e *Engine) Remind(ctx context.Context, userID string, target course.Target) error {
	if e.sender == nil {
		return fmt.Errorf("no sender configured")
	}
	rec, ok := e.courses.Get(userID)
	if !ok || !rec.Active() {
		return course.ErrNoActiveCourse
	}
	return e.sender.Send(ctx, chat.OutboundMessage{
		Channel: target.Channel,
		UserID:  target.ChatID,
		Text:    msgReminder,
		Buttons: [][]chat.Button{chat.Row(nextButton(rec.CurrentDay))},
	})
}

func (e *Engine) startReminders(userID string) {
	if e.reminders != nil {
		e.reminders.Start(userID)
	}
}

func (e *Engine) stopReminders(userID string) {
	if e.reminders != nil {
		e.reminders.Stop(userID)
	}
}

func (e *Engine) handleText(ctx context.Context, sess *dialogue.Session, msg chat.InboundMessage, r *replies) {
	text := strings.TrimSpace(msg.Text)

	switch sess.State {
	case dialogue.Idle:
		e.handleIdleText(sess, r)
	case dialogue.AwaitingSkill:
		e.collectSkill(sess, text, r)
	case dialogue.AwaitingGoal:
		e.collectGoal(sess, text, r)
	case dialogue.AwaitingExperience:
		e.collectExperience(sess, text, r)
	case dialogue.AwaitingPreferences:
		e.collectPreferences(ctx, sess, msg, text, r)
	case dialogue.ReviewingPlan:
		r.text(msgUseButtons)
		e.showPlan(sess, r)
	case dialogue.EditingPlan:
		e.editPlan(ctx, sess, msg, text, r)
	case dialogue.AwaitingCustomQuestion:
		e.answerQuestion(ctx, sess, msg, text, r)
	case dialogue.AwaitingChangeRequest:
		e.changeLesson(ctx, sess, msg, text, r)
	case dialogue.AwaitingFeedback:
		e.collectFeedback(ctx, sess, msg, text, r)
	default:
		slog.Warn("unknown dialogue state, resetting", "user_id", sess.UserID, "state", sess.State)
		sess.Reset()
		r.text(msgUnknownInput)
	}
}

func (e *Engine) handleIdleText(sess *dialogue.Session, r *replies) {
	if rec, ok := e.courses.Get(sess.UserID); ok && rec.Active() {
		r.text(msgUnknownInput, chat.Row(returnButton()))
		return
	}
	r.text(msgUnknownInput, chat.Row(startButton()))
}

// prompt repeats the question for the current state.
func (e *Engine) prompt(sess *dialogue.Session, r *replies) {
	switch sess.State {
	case dialogue.Idle:
		e.handleIdleText(sess, r)
	case dialogue.AwaitingSkill:
		r.text(msgAskSkill)
	case dialogue.AwaitingGoal:
		r.text(msgAskGoal)
	case dialogue.AwaitingExperience:
		r.text(msgAskExperience)
	case dialogue.AwaitingPreferences:
		r.text(msgAskPreferences, chat.Row(skipPreferencesButton()))
	case dialogue.ReviewingPlan:
		e.showPlan(sess, r)
	case dialogue.EditingPlan:
		r.text(msgAskPlanEdit)
	case dialogue.AwaitingCustomQuestion:
		r.text(msgAskQuestion, chat.Row(returnButton()))
	case dialogue.AwaitingChangeRequest:
		r.text(msgAskChange, chat.Row(returnButton()))
	case dialogue.AwaitingFeedback:
		r.text(msgAskFeedback)
	default:
		r.text(msgUnknownInput)
	}
}

// transition applies a table-checked move. A rejected move is a bug in the
// caller; it is logged and the session is reset.
func transition(sess *dialogue.Session, to dialogue.State) bool {
	if err := sess.Transition(to); err != nil {
		slog.Error("dialogue transition rejected", "user_id", sess.UserID, "error", err)
		sess.Reset()
		return false
	}
	return true
}
