package chat

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const telegramMaxMessageLen = 4096

// BotCommands is the command menu registered with Telegram on start.
var BotCommands = []BotCommand{
	{Command: "start", Description: "Start a new course"},
	{Command: "help", Description: "How to use the bot"},
	{Command: "feedback", Description: "Send feedback to the developers"},
	{Command: "donate", Description: "Support the project"},
}

// BotCommand is one entry of the Telegram command menu.
type BotCommand struct {
	Command     string `json:"command"`
	Description string `json:"description"`
}

// TelegramChannel implements the Channel interface for Telegram Bot API.
type TelegramChannel struct {
	token   string
	baseURL string
	client  *http.Client
	offset  int
	stop    chan struct{}
}

// NewTelegramChannel creates a Telegram channel adapter.
func NewTelegramChannel(token string) (*TelegramChannel, error) {
	if token == "" {
		return nil, fmt.Errorf("telegram bot token is required (COURSECRAFT_TELEGRAM_BOT_TOKEN)")
	}
	return &TelegramChannel{
		token:   token,
		baseURL: "https://api.telegram.org/bot" + token,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		stop: make(chan struct{}),
	}, nil
}

// call posts a form to a Bot API method and checks the ok flag.
func (t *TelegramChannel) call(ctx context.Context, method string, params url.Values) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/"+method, strings.NewReader(params.Encode()))
	if err != nil {
		return 0, fmt.Errorf("create %s request: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := t.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("telegram %s: %w", method, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return resp.StatusCode, fmt.Errorf("telegram API error %d on %s: %s", resp.StatusCode, method, strings.TrimSpace(string(body)))
	}
	return resp.StatusCode, nil
}

func (t *TelegramChannel) SendTyping(ctx context.Context, userID string) error {
	params := url.Values{
		"chat_id": {userID},
		"action":  {"typing"},
	}
	if _, err := t.call(ctx, "sendChatAction", params); err != nil {
		return fmt.Errorf("sending typing indicator: %w", err)
	}
	return nil
}

func (t *TelegramChannel) SendMessage(ctx context.Context, userID string, msg OutboundMessage) error {
	parts := SplitMessage(msg.Text, telegramMaxMessageLen)

	var markup string
	if len(msg.Buttons) > 0 {
		data, err := json.Marshal(inlineKeyboard(msg.Buttons))
		if err != nil {
			return fmt.Errorf("encode reply markup: %w", err)
		}
		markup = string(data)
	}

	for i, part := range parts {
		params := url.Values{
			"chat_id": {userID},
			"text":    {part},
		}
		if msg.ParseMode != "" {
			params.Set("parse_mode", msg.ParseMode)
		}
		// Buttons ride on the last chunk so they sit under the whole text.
		if markup != "" && i == len(parts)-1 {
			params.Set("reply_markup", markup)
		}

		status, err := t.call(ctx, "sendMessage", params)
		if err == nil {
			continue
		}
		// If Markdown parsing fails, retry without parse mode
		if msg.ParseMode != "" && status == http.StatusBadRequest {
			slog.Warn("Telegram markdown parse failed, retrying plain")
			params.Del("parse_mode")
			if _, retryErr := t.call(ctx, "sendMessage", params); retryErr != nil {
				return fmt.Errorf("sending Telegram message (retry): %w", retryErr)
			}
			continue
		}
		return fmt.Errorf("sending Telegram message: %w", err)
	}

	return nil
}

func (t *TelegramChannel) DeleteMessage(ctx context.Context, userID, messageID string) error {
	params := url.Values{
		"chat_id":    {userID},
		"message_id": {messageID},
	}
	if _, err := t.call(ctx, "deleteMessage", params); err != nil {
		return fmt.Errorf("deleting Telegram message: %w", err)
	}
	return nil
}

func (t *TelegramChannel) answerCallback(ctx context.Context, callbackID string) error {
	_, err := t.call(ctx, "answerCallbackQuery", url.Values{"callback_query_id": {callbackID}})
	return err
}

// syncCommands registers the command menu shown by Telegram clients.
func (t *TelegramChannel) syncCommands(ctx context.Context) error {
	data, err := json.Marshal(BotCommands)
	if err != nil {
		return fmt.Errorf("encode commands: %w", err)
	}
	if _, err := t.call(ctx, "setMyCommands", url.Values{"commands": {string(data)}}); err != nil {
		return fmt.Errorf("syncing Telegram commands: %w", err)
	}
	return nil
}

func (t *TelegramChannel) Start(ctx context.Context, handler func(InboundMessage)) error {
	if err := t.syncCommands(ctx); err != nil {
		slog.Warn("telegram command sync failed", "error", err)
	}
	go t.pollLoop(ctx, handler)
	return nil
}

func (t *TelegramChannel) Stop() error {
	select {
	case <-t.stop:
	default:
		close(t.stop)
	}
	return nil
}

func (t *TelegramChannel) pollLoop(ctx context.Context, handler func(InboundMessage)) {
	slog.Info("Telegram long-polling started")
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.stop:
			return
		default:
			updates, err := t.getUpdates(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				slog.Error("Telegram getUpdates error", "error", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(5 * time.Second):
				}
				continue
			}

			for _, u := range updates {
				t.offset = u.UpdateID + 1
				if u.CallbackQuery != nil {
					if err := t.answerCallback(ctx, u.CallbackQuery.ID); err != nil {
						slog.Warn("answerCallbackQuery failed", "error", err)
					}
				}
				msg, ok := mapTelegramInbound(u)
				if !ok {
					continue
				}
				handler(msg)
			}
		}
	}
}

func (t *TelegramChannel) getUpdates(ctx context.Context) ([]tgUpdate, error) {
	params := url.Values{
		"offset":          {strconv.Itoa(t.offset)},
		"timeout":         {"30"},
		"allowed_updates": {`["message","callback_query"]`},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, t.baseURL+"/getUpdates?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var result struct {
		OK     bool       `json:"ok"`
		Result []tgUpdate `json:"result"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, err
	}

	if !result.OK {
		return nil, fmt.Errorf("telegram API returned ok=false")
	}

	return result.Result, nil
}

// Telegram API types (minimal)
type tgUpdate struct {
	UpdateID      int              `json:"update_id"`
	Message       *tgMessage       `json:"message"`
	CallbackQuery *tgCallbackQuery `json:"callback_query"`
}

type tgMessage struct {
	MessageID int    `json:"message_id"`
	Text      string `json:"text"`
	Caption   string `json:"caption"`
	Chat      tgChat `json:"chat"`
	From      tgUser `json:"from"`
}

type tgCallbackQuery struct {
	ID      string     `json:"id"`
	From    tgUser     `json:"from"`
	Message *tgMessage `json:"message"`
	Data    string     `json:"data"`
}

type tgChat struct {
	ID int64 `json:"id"`
}

type tgUser struct {
	ID           int64  `json:"id"`
	Username     string `json:"username"`
	FirstName    string `json:"first_name"`
	LanguageCode string `json:"language_code"`
}

type tgInlineButton struct {
	Text         string `json:"text"`
	CallbackData string `json:"callback_data,omitempty"`
	URL          string `json:"url,omitempty"`
}

type tgInlineKeyboard struct {
	InlineKeyboard [][]tgInlineButton `json:"inline_keyboard"`
}

func inlineKeyboard(rows [][]Button) tgInlineKeyboard {
	kb := tgInlineKeyboard{InlineKeyboard: make([][]tgInlineButton, 0, len(rows))}
	for _, row := range rows {
		out := make([]tgInlineButton, 0, len(row))
		for _, b := range row {
			out = append(out, tgInlineButton{Text: b.Text, CallbackData: b.Action, URL: b.URL})
		}
		kb.InlineKeyboard = append(kb.InlineKeyboard, out)
	}
	return kb
}

// SplitMessage splits text into chunks that fit Telegram's max message length.
func SplitMessage(text string, maxLen int) []string {
	if text == "" {
		return nil
	}
	if len(text) <= maxLen {
		return []string{text}
	}

	var parts []string
	for len(text) > 0 {
		if len(text) <= maxLen {
			parts = append(parts, text)
			break
		}
		// Find last newline or space within limit
		cutAt := maxLen
		if idx := strings.LastIndex(text[:maxLen], "\n"); idx > 0 {
			cutAt = idx + 1
		} else if idx := strings.LastIndex(text[:maxLen], " "); idx > 0 {
			cutAt = idx + 1
		}
		parts = append(parts, text[:cutAt])
		text = text[cutAt:]
	}
	return parts
}

func mapTelegramInbound(u tgUpdate) (InboundMessage, bool) {
	if cq := u.CallbackQuery; cq != nil {
		if cq.Data == "" {
			return InboundMessage{}, false
		}
		msg := InboundMessage{
			Channel:   "telegram",
			UserID:    strconv.FormatInt(cq.From.ID, 10),
			Action:    cq.Data,
			Username:  cq.From.Username,
			FirstName: cq.From.FirstName,
			Language:  cq.From.LanguageCode,
		}
		if cq.Message != nil {
			msg.ChatID = strconv.FormatInt(cq.Message.Chat.ID, 10)
			msg.MessageID = strconv.Itoa(cq.Message.MessageID)
		}
		return msg, true
	}

	if u.Message == nil {
		return InboundMessage{}, false
	}

	text := strings.TrimSpace(u.Message.Text)
	if text == "" {
		text = strings.TrimSpace(u.Message.Caption)
	}
	if text == "" {
		return InboundMessage{}, false
	}

	return InboundMessage{
		Channel:   "telegram",
		UserID:    strconv.FormatInt(u.Message.From.ID, 10),
		ChatID:    strconv.FormatInt(u.Message.Chat.ID, 10),
		Text:      text,
		MessageID: strconv.Itoa(u.Message.MessageID),
		Username:  u.Message.From.Username,
		FirstName: u.Message.From.FirstName,
		Language:  u.Message.From.LanguageCode,
	}, true
}
