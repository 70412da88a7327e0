package chat

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

type tgRecorder struct {
	mu    sync.Mutex
	calls []tgCall
}

type tgCall struct {
	Method string
	Form   map[string]string
}

func (r *tgRecorder) handler(status func(method string, form map[string]string) int) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if err := req.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		form := make(map[string]string)
		for k := range req.Form {
			form[k] = req.Form.Get(k)
		}
		method := strings.TrimPrefix(req.URL.Path, "/")

		r.mu.Lock()
		r.calls = append(r.calls, tgCall{Method: method, Form: form})
		r.mu.Unlock()

		code := http.StatusOK
		if status != nil {
			code = status(method, form)
		}
		w.WriteHeader(code)
		_, _ = w.Write([]byte(`{"ok":true,"result":true}`))
	}
}

func (r *tgRecorder) all() []tgCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]tgCall(nil), r.calls...)
}

func newTestTelegram(t *testing.T, rec *tgRecorder, status func(string, map[string]string) int) *TelegramChannel {
	t.Helper()
	server := httptest.NewServer(rec.handler(status))
	t.Cleanup(server.Close)
	return &TelegramChannel{
		token:   "test-token",
		baseURL: server.URL,
		client:  server.Client(),
		stop:    make(chan struct{}),
	}
}

func TestTelegramChannel_SendMessageWithButtons(t *testing.T) {
	rec := &tgRecorder{}
	ch := newTestTelegram(t, rec, nil)

	err := ch.SendMessage(context.Background(), "42", OutboundMessage{
		Text: "Day 1",
		Buttons: [][]Button{
			{{Text: "Next", Action: "next_lesson:0"}},
			{{Text: "Donate", URL: "https://example.com"}},
		},
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	calls := rec.all()
	if len(calls) != 1 || calls[0].Method != "sendMessage" {
		t.Fatalf("calls = %+v, want one sendMessage", calls)
	}
	var kb tgInlineKeyboard
	if err := json.Unmarshal([]byte(calls[0].Form["reply_markup"]), &kb); err != nil {
		t.Fatalf("reply_markup is not JSON: %v", err)
	}
	if len(kb.InlineKeyboard) != 2 {
		t.Fatalf("rows = %d, want 2", len(kb.InlineKeyboard))
	}
	if kb.InlineKeyboard[0][0].CallbackData != "next_lesson:0" {
		t.Errorf("callback_data = %q", kb.InlineKeyboard[0][0].CallbackData)
	}
	if kb.InlineKeyboard[1][0].URL != "https://example.com" {
		t.Errorf("url = %q", kb.InlineKeyboard[1][0].URL)
	}
}

func TestTelegramChannel_ButtonsOnLastChunk(t *testing.T) {
	rec := &tgRecorder{}
	ch := newTestTelegram(t, rec, nil)

	long := strings.Repeat("word ", telegramMaxMessageLen/5+10)
	err := ch.SendMessage(context.Background(), "42", OutboundMessage{
		Text:    long,
		Buttons: [][]Button{{{Text: "Next", Action: "next_lesson:0"}}},
	})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	calls := rec.all()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[0].Form["reply_markup"] != "" {
		t.Error("first chunk should not carry buttons")
	}
	if calls[1].Form["reply_markup"] == "" {
		t.Error("last chunk should carry buttons")
	}
}

func TestTelegramChannel_MarkdownRetry(t *testing.T) {
	rec := &tgRecorder{}
	ch := newTestTelegram(t, rec, func(method string, form map[string]string) int {
		if form["parse_mode"] != "" {
			return http.StatusBadRequest
		}
		return http.StatusOK
	})

	err := ch.SendMessage(context.Background(), "42", OutboundMessage{Text: "*bold", ParseMode: "Markdown"})
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	calls := rec.all()
	if len(calls) != 2 {
		t.Fatalf("calls = %d, want 2", len(calls))
	}
	if calls[1].Form["parse_mode"] != "" {
		t.Error("retry should drop parse_mode")
	}
}

func TestTelegramChannel_SendMessageError(t *testing.T) {
	rec := &tgRecorder{}
	ch := newTestTelegram(t, rec, func(string, map[string]string) int { return http.StatusForbidden })

	if err := ch.SendMessage(context.Background(), "42", OutboundMessage{Text: "hi"}); err == nil {
		t.Error("SendMessage() should fail on 403")
	}
}

func TestTelegramChannel_DeleteMessage(t *testing.T) {
	rec := &tgRecorder{}
	ch := newTestTelegram(t, rec, nil)

	if err := ch.DeleteMessage(context.Background(), "42", "1001"); err != nil {
		t.Fatalf("DeleteMessage() error = %v", err)
	}
	calls := rec.all()
	if len(calls) != 1 || calls[0].Method != "deleteMessage" {
		t.Fatalf("calls = %+v", calls)
	}
	if calls[0].Form["chat_id"] != "42" || calls[0].Form["message_id"] != "1001" {
		t.Errorf("form = %v", calls[0].Form)
	}
}

func TestTelegramChannel_SyncCommands(t *testing.T) {
	rec := &tgRecorder{}
	ch := newTestTelegram(t, rec, nil)

	if err := ch.syncCommands(context.Background()); err != nil {
		t.Fatalf("syncCommands() error = %v", err)
	}
	calls := rec.all()
	if len(calls) != 1 || calls[0].Method != "setMyCommands" {
		t.Fatalf("calls = %+v", calls)
	}
	var cmds []BotCommand
	if err := json.Unmarshal([]byte(calls[0].Form["commands"]), &cmds); err != nil {
		t.Fatalf("commands payload: %v", err)
	}
	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Command] = true
	}
	for _, want := range []string{"start", "help", "feedback", "donate"} {
		if !names[want] {
			t.Errorf("command %q missing from %v", want, cmds)
		}
	}
}

func TestMapTelegramInbound(t *testing.T) {
	tests := []struct {
		name   string
		update tgUpdate
		wantOK bool
		want   InboundMessage
	}{
		{
			name: "text",
			update: tgUpdate{Message: &tgMessage{
				MessageID: 5, Text: " hello ", Chat: tgChat{ID: 123}, From: tgUser{ID: 456, Username: "u1"},
			}},
			wantOK: true,
			want: InboundMessage{
				Channel: "telegram", UserID: "456", ChatID: "123", Text: "hello", MessageID: "5", Username: "u1",
			},
		},
		{
			name:   "caption only",
			update: tgUpdate{Message: &tgMessage{Caption: "Guitar", Chat: tgChat{ID: 1}, From: tgUser{ID: 1}}},
			wantOK: true,
			want:   InboundMessage{Channel: "telegram", UserID: "1", ChatID: "1", Text: "Guitar", MessageID: "0"},
		},
		{
			name: "callback",
			update: tgUpdate{CallbackQuery: &tgCallbackQuery{
				ID: "cb", Data: "approve_plan", From: tgUser{ID: 9},
				Message: &tgMessage{MessageID: 77, Chat: tgChat{ID: 9}},
			}},
			wantOK: true,
			want:   InboundMessage{Channel: "telegram", UserID: "9", ChatID: "9", Action: "approve_plan", MessageID: "77"},
		},
		{
			name:   "callback without data",
			update: tgUpdate{CallbackQuery: &tgCallbackQuery{ID: "cb", From: tgUser{ID: 9}}},
		},
		{
			name:   "empty message",
			update: tgUpdate{Message: &tgMessage{Chat: tgChat{ID: 1}}},
		},
		{
			name:   "nothing",
			update: tgUpdate{UpdateID: 3},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := mapTelegramInbound(tt.update)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got != tt.want {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}
