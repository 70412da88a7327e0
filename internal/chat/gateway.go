// Package chat provides a unified interface for messaging channels (Telegram, WebSocket).
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
)

// ErrUnknownChannel is returned when a message names an unregistered channel.
var ErrUnknownChannel = errors.New("unknown channel")

// InboundMessage is a message or button press received from any channel.
type InboundMessage struct {
	Channel   string
	UserID    string
	ChatID    string // where replies go; defaults to UserID
	Text      string
	Action    string // button tag, set instead of Text for presses
	MessageID string // message the button was attached to, or the text message itself
	Username  string
	FirstName string
	Language  string
}

// IsCommand reports whether the text is a slash command.
func (m InboundMessage) IsCommand() bool {
	return m.Action == "" && strings.HasPrefix(strings.TrimSpace(m.Text), "/")
}

// Command returns the lower-cased command name without the slash or a
// trailing @botname, or "" when the message is not a command.
func (m InboundMessage) Command() string {
	if !m.IsCommand() {
		return ""
	}
	fields := strings.Fields(m.Text)
	name := strings.TrimPrefix(fields[0], "/")
	if i := strings.IndexByte(name, '@'); i >= 0 {
		name = name[:i]
	}
	return strings.ToLower(name)
}

// Key identifies the user across channels. The same raw ID on two
// channels belongs to two different people.
func (m InboundMessage) Key() string {
	if m.Channel == "" {
		return m.UserID
	}
	return m.Channel + ":" + m.UserID
}

// Target returns the destination for replies.
func (m InboundMessage) Target() string {
	if m.ChatID != "" {
		return m.ChatID
	}
	return m.UserID
}

// Button is one choice under a message. Action buttons report their tag back
// as InboundMessage.Action; URL buttons open a link.
type Button struct {
	Text   string `json:"text"`
	Action string `json:"action,omitempty"`
	URL    string `json:"url,omitempty"`
}

// OutboundMessage is a message to send via any channel.
type OutboundMessage struct {
	Channel         string     `json:"channel"`
	UserID          string     `json:"user_id"`
	Text            string     `json:"text,omitempty"`
	ParseMode       string     `json:"parse_mode,omitempty"` // "Markdown", "HTML", or ""
	Buttons         [][]Button `json:"buttons,omitempty"`    // rows of buttons
	DeleteMessageID string     `json:"delete_message_id,omitempty"`
}

// Row is shorthand for a single row of buttons.
func Row(buttons ...Button) []Button {
	return buttons
}

// Channel is the interface each messaging platform must implement.
type Channel interface {
	SendMessage(ctx context.Context, userID string, msg OutboundMessage) error
	DeleteMessage(ctx context.Context, userID, messageID string) error
	SendTyping(ctx context.Context, userID string) error
	// Start begins receiving. Channels call handler in arrival order from a
	// single goroutine, so handler must return quickly.
	Start(ctx context.Context, handler func(InboundMessage)) error
	Stop() error
}

// Gateway routes messages to/from registered channels.
type Gateway struct {
	channels map[string]Channel
	mu       sync.RWMutex
}

// NewGateway creates a new chat gateway.
func NewGateway() *Gateway {
	return &Gateway{
		channels: make(map[string]Channel),
	}
}

// Register adds a channel to the gateway.
func (g *Gateway) Register(name string, ch Channel) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.channels[name] = ch
	slog.Info("chat channel registered", "channel", name)
}

// HasChannel returns true if the named channel is registered.
func (g *Gateway) HasChannel(name string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.channels[name]
	return ok
}

func (g *Gateway) channel(name string) (Channel, error) {
	g.mu.RLock()
	ch, ok := g.channels[name]
	g.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownChannel, name)
	}
	return ch, nil
}

// Send dispatches a message to the appropriate channel. When
// DeleteMessageID is set that message is removed first; a failed delete is
// logged and does not block the send.
func (g *Gateway) Send(ctx context.Context, msg OutboundMessage) error {
	ch, err := g.channel(msg.Channel)
	if err != nil {
		return err
	}

	if msg.DeleteMessageID != "" {
		if err := ch.DeleteMessage(ctx, msg.UserID, msg.DeleteMessageID); err != nil {
			slog.Warn("delete message failed", "channel", msg.Channel, "user_id", msg.UserID, "error", err)
		}
	}
	if msg.Text == "" {
		return nil
	}
	return ch.SendMessage(ctx, msg.UserID, msg)
}

// Delete removes a previously sent message.
func (g *Gateway) Delete(ctx context.Context, channel, userID, messageID string) error {
	ch, err := g.channel(channel)
	if err != nil {
		return err
	}
	return ch.DeleteMessage(ctx, userID, messageID)
}

// SendTyping sends a typing indicator to the user on the given channel.
func (g *Gateway) SendTyping(ctx context.Context, channel, userID string) error {
	ch, err := g.channel(channel)
	if err != nil {
		return err
	}
	return ch.SendTyping(ctx, userID)
}

// StartAll starts all registered channels with the given message handler.
// Each user's messages reach handler one at a time, in arrival order.
func (g *Gateway) StartAll(ctx context.Context, handler func(InboundMessage)) error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	handler = Ordered(handler)
	for name, ch := range g.channels {
		slog.Info("starting channel", "channel", name)
		if err := ch.Start(ctx, handler); err != nil {
			return fmt.Errorf("starting channel %s: %w", name, err)
		}
	}
	return nil
}

// StopAll stops every registered channel, returning the joined errors.
func (g *Gateway) StopAll() error {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var errs []error
	for name, ch := range g.channels {
		if err := ch.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stopping channel %s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}
