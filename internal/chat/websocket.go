package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

// ErrNotConnected is returned when a WebSocket user has no open connection.
var ErrNotConnected = errors.New("websocket user not connected")

// wsInbound is a client frame: either text or a button action.
type wsInbound struct {
	Text      string `json:"text,omitempty"`
	Action    string `json:"action,omitempty"`
	MessageID string `json:"message_id,omitempty"`
}

// wsOutbound is a server frame. Type is "message", "delete" or "typing".
type wsOutbound struct {
	Type      string     `json:"type"`
	ID        string     `json:"id,omitempty"`
	Text      string     `json:"text,omitempty"`
	ParseMode string     `json:"parse_mode,omitempty"`
	Buttons   [][]Button `json:"buttons,omitempty"`
}

// WebSocketChannel is a development chat surface served at /ws?user=<id>.
// One connection per user; a new connection replaces the old one.
type WebSocketChannel struct {
	conns   map[string]*websocket.Conn
	handler func(InboundMessage)
	nextID  atomic.Int64
	mu      sync.RWMutex
}

// NewWebSocketChannel creates a WebSocket channel with no connections.
func NewWebSocketChannel() *WebSocketChannel {
	return &WebSocketChannel{conns: make(map[string]*websocket.Conn)}
}

// ServeHTTP upgrades the request and reads frames until the client leaves.
func (w *WebSocketChannel) ServeHTTP(rw http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		http.Error(rw, "missing user parameter", http.StatusBadRequest)
		return
	}

	conn, err := websocket.Accept(rw, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}

	w.mu.Lock()
	if old, ok := w.conns[userID]; ok {
		_ = old.Close(websocket.StatusPolicyViolation, "replaced by a new connection")
	}
	w.conns[userID] = conn
	w.mu.Unlock()
	slog.Info("websocket connected", "user_id", userID)

	defer func() {
		w.mu.Lock()
		if w.conns[userID] == conn {
			delete(w.conns, userID)
		}
		w.mu.Unlock()
		_ = conn.CloseNow()
	}()

	ctx := r.Context()
	for {
		var frame wsInbound
		if err := wsjson.Read(ctx, conn, &frame); err != nil {
			slog.Debug("websocket disconnected", "user_id", userID, "status", websocket.CloseStatus(err))
			return
		}
		if frame.Text == "" && frame.Action == "" {
			continue
		}

		w.mu.RLock()
		handler := w.handler
		w.mu.RUnlock()
		if handler == nil {
			continue
		}
		handler(InboundMessage{
			Channel:   "websocket",
			UserID:    userID,
			Text:      frame.Text,
			Action:    frame.Action,
			MessageID: frame.MessageID,
		})
	}
}

func (w *WebSocketChannel) conn(userID string) (*websocket.Conn, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	c, ok := w.conns[userID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotConnected, userID)
	}
	return c, nil
}

func (w *WebSocketChannel) write(ctx context.Context, userID string, frame wsOutbound) error {
	c, err := w.conn(userID)
	if err != nil {
		return err
	}
	if err := wsjson.Write(ctx, c, frame); err != nil {
		return fmt.Errorf("websocket write: %w", err)
	}
	return nil
}

func (w *WebSocketChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	return w.write(ctx, userID, wsOutbound{
		Type:      "message",
		ID:        strconv.FormatInt(w.nextID.Add(1), 10),
		Text:      msg.Text,
		ParseMode: msg.ParseMode,
		Buttons:   msg.Buttons,
	})
}

func (w *WebSocketChannel) DeleteMessage(ctx context.Context, userID, messageID string) error {
	return w.write(ctx, userID, wsOutbound{Type: "delete", ID: messageID})
}

func (w *WebSocketChannel) SendTyping(ctx context.Context, userID string) error {
	return w.write(ctx, userID, wsOutbound{Type: "typing"})
}

func (w *WebSocketChannel) Start(_ context.Context, handler func(InboundMessage)) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handler = handler
	return nil
}

func (w *WebSocketChannel) Stop() error {
	w.mu.Lock()
	conns := w.conns
	w.conns = make(map[string]*websocket.Conn)
	w.mu.Unlock()

	for _, c := range conns {
		_ = c.Close(websocket.StatusGoingAway, "server shutting down")
	}
	return nil
}

// Connected reports whether userID has an open connection.
func (w *WebSocketChannel) Connected(userID string) bool {
	_, err := w.conn(userID)
	return err == nil
}
