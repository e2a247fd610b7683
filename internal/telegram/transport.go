package telegram

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/ytget/tg-downloader/internal/dispatch"
	"github.com/ytget/tg-downloader/internal/session"
)

// Handler consumes decoded chat events. In production this is the dispatcher.
type Handler interface {
	HandleURL(ctx context.Context, ev dispatch.URLEvent)
	HandleCallback(ctx context.Context, ev dispatch.CallbackEvent)
}

// TransportError wraps Bot API failures with the operation that hit them.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("telegram %s: %v", e.Op, e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

const helpText = `Send me a video or playlist link and I will download it for you.

When a link points at a playlist you pick the entry, then the quality. Files are sent back into this chat.`

// Transport owns the Bot API connection. It feeds updates to the handler and
// carries every outward message the pipeline produces.
type Transport struct {
	bot           *tgbotapi.BotAPI
	handler       Handler
	log           *zap.Logger
	maxUploadSize int64
}

// NewTransport authenticates against the Bot API.
func NewTransport(token string, maxUploadSize int64, log *zap.Logger) (*Transport, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, &TransportError{Op: "auth", Err: err}
	}
	log.Info("telegram transport ready", zap.String("bot", bot.Self.UserName))
	return &Transport{bot: bot, log: log, maxUploadSize: maxUploadSize}, nil
}

// Bind attaches the event handler. Must be called before Run; the handler
// needs the transport first, which makes construction two-step.
func (t *Transport) Bind(h Handler) {
	t.handler = h
}

// Run long-polls updates until the context is cancelled.
func (t *Transport) Run(ctx context.Context) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := t.bot.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			t.handleUpdate(ctx, update)
		}
	}
}

func (t *Transport) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	switch {
	case update.CallbackQuery != nil:
		t.handleCallback(ctx, update.CallbackQuery)
	case update.Message != nil:
		t.handleMessage(ctx, update.Message)
	}
}

func (t *Transport) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if msg.From == nil {
		return
	}
	if msg.IsCommand() {
		switch msg.Command() {
		case "start", "help":
			if _, err := t.SendText(ctx, msg.Chat.ID, helpText); err != nil {
				t.log.Debug("help reply failed", zap.Error(err))
			}
		}
		return
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return
	}
	t.handler.HandleURL(ctx, dispatch.URLEvent{
		ChatID: msg.Chat.ID,
		UserID: msg.From.ID,
		URL:    text,
	})
}

func (t *Transport) handleCallback(ctx context.Context, cb *tgbotapi.CallbackQuery) {
	if cb.Message == nil || cb.From == nil {
		return
	}
	ev, ok := decodeCallback(cb.Data)
	if !ok {
		t.log.Debug("unrecognized callback data", zap.String("data", cb.Data))
		return
	}
	ev.CallbackID = cb.ID
	ev.ChatID = cb.Message.Chat.ID
	ev.UserID = cb.From.ID
	ev.MessageID = cb.Message.MessageID

	t.handler.HandleCallback(ctx, ev)
}

// SendText posts a plain message and returns its id.
func (t *Transport) SendText(ctx context.Context, chatID int64, text string) (int, error) {
	sent, err := t.bot.Send(tgbotapi.NewMessage(chatID, text))
	if err != nil {
		return 0, &TransportError{Op: "send", Err: err}
	}
	return sent.MessageID, nil
}

// EditText replaces a message's text, dropping any keyboard it carried.
func (t *Transport) EditText(ctx context.Context, chatID int64, messageID int, text string) error {
	return t.safeEdit(tgbotapi.NewEditMessageText(chatID, messageID, text))
}

// ShowSelection renders one selection page onto an existing message.
func (t *Transport) ShowSelection(ctx context.Context, chatID int64, messageID int, sessionID string, kind session.Kind, page session.Page) error {
	edit := tgbotapi.NewEditMessageTextAndMarkup(
		chatID, messageID,
		selectionTitle(kind),
		selectionMarkup(sessionID, kind, page),
	)
	return t.safeEdit(edit)
}

// AnswerCallback acknowledges a keyboard press; text shows as a toast.
func (t *Transport) AnswerCallback(ctx context.Context, callbackID, text string) error {
	if _, err := t.bot.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return &TransportError{Op: "answer_callback", Err: err}
	}
	return nil
}

// EditStatus updates the per-job status message with italic text. Edits are
// best-effort: an unchanged message is not an error.
func (t *Transport) EditStatus(chatID int64, messageID int, text string) error {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, formatStatusText(text))
	edit.ParseMode = tgbotapi.ModeHTML
	return t.safeEdit(edit)
}

func (t *Transport) safeEdit(edit tgbotapi.EditMessageTextConfig) error {
	if _, err := t.bot.Send(edit); err != nil {
		if strings.Contains(err.Error(), "message is not modified") {
			return nil
		}
		return &TransportError{Op: "edit", Err: err}
	}
	return nil
}
