// ABOUTME: Telegram Bot API adapter implementing Sender and inbound polling
// ABOUTME: Converts raw tgbotapi updates into the normalized Update type

package transport

import (
	"context"
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Telegram is the Bot API transport. It long-polls for updates and
// implements Sender for outbound traffic.
type Telegram struct {
	api    *tgbotapi.BotAPI
	logger *slog.Logger
}

// NewTelegram authenticates against the Bot API.
func NewTelegram(token string, logger *slog.Logger) (*Telegram, error) {
	if logger == nil {
		logger = slog.Default()
	}
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram auth: %w", err)
	}
	logger = logger.With("component", "transport")
	logger.Info("telegram connected", "bot", api.Self.UserName)
	return &Telegram{api: api, logger: logger}, nil
}

// Updates long-polls Telegram and emits normalized updates until ctx is
// cancelled. Per-chat ordering follows Telegram's delivery order.
func (t *Telegram) Updates(ctx context.Context) <-chan Update {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30

	raw := t.api.GetUpdatesChan(cfg)
	out := make(chan Update)

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				t.api.StopReceivingUpdates()
				return
			case ru, ok := <-raw:
				if !ok {
					return
				}
				u, ok := convertUpdate(ru)
				if !ok {
					continue
				}
				select {
				case out <- u:
				case <-ctx.Done():
					t.api.StopReceivingUpdates()
					return
				}
			}
		}
	}()
	return out
}

// convertUpdate maps a raw Telegram update onto the normalized type.
// Unsupported update kinds (edits, channel posts, stickers without
// photos) are dropped.
func convertUpdate(ru tgbotapi.Update) (Update, bool) {
	if cq := ru.CallbackQuery; cq != nil && cq.Message != nil {
		return Update{
			ChatID: cq.Message.Chat.ID,
			Callback: &Callback{
				ID:        cq.ID,
				Data:      cq.Data,
				ChatID:    cq.Message.Chat.ID,
				MessageID: cq.Message.MessageID,
			},
		}, true
	}

	msg := ru.Message
	if msg == nil {
		return Update{}, false
	}

	u := Update{
		ChatID:    msg.Chat.ID,
		MessageID: msg.MessageID,
	}

	if len(msg.Photo) > 0 {
		// Telegram sends every resolution; the last entry is the largest.
		u.PhotoFileID = msg.Photo[len(msg.Photo)-1].FileID
		u.Caption = msg.Caption
		return u, true
	}
	if msg.Text != "" {
		u.Text = msg.Text
		return u, true
	}
	return Update{}, false
}

// SendText delivers a text message, optionally with a keyboard.
func (t *Telegram) SendText(chatID int64, text string, kb ...Keyboard) (int, error) {
	msg := tgbotapi.NewMessage(chatID, text)
	if len(kb) > 0 {
		msg.ReplyMarkup = markup(kb[0])
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send text to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// SendImage delivers a photo by file ID with an optional caption.
func (t *Telegram) SendImage(chatID int64, fileID, caption string, kb ...Keyboard) (int, error) {
	msg := tgbotapi.NewPhoto(chatID, tgbotapi.FileID(fileID))
	msg.Caption = caption
	if len(kb) > 0 {
		msg.ReplyMarkup = markup(kb[0])
	}
	sent, err := t.api.Send(msg)
	if err != nil {
		return 0, fmt.Errorf("send image to %d: %w", chatID, err)
	}
	return sent.MessageID, nil
}

// EditText rewrites a previously sent message in place.
func (t *Telegram) EditText(chatID int64, messageID int, text string, kb ...Keyboard) error {
	var cfg tgbotapi.Chattable
	if len(kb) > 0 {
		if ikb, ok := markup(kb[0]).(tgbotapi.InlineKeyboardMarkup); ok {
			cfg = tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID, text, ikb)
		}
	}
	if cfg == nil {
		cfg = tgbotapi.NewEditMessageText(chatID, messageID, text)
	}
	if _, err := t.api.Request(cfg); err != nil {
		return fmt.Errorf("edit message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

// DeleteMessage retracts a previously sent message.
func (t *Telegram) DeleteMessage(chatID int64, messageID int) error {
	if _, err := t.api.Request(tgbotapi.NewDeleteMessage(chatID, messageID)); err != nil {
		return fmt.Errorf("delete message %d in %d: %w", messageID, chatID, err)
	}
	return nil
}

// AnswerCallback acknowledges an inline-button press.
func (t *Telegram) AnswerCallback(callbackID, text string) error {
	if _, err := t.api.Request(tgbotapi.NewCallback(callbackID, text)); err != nil {
		return fmt.Errorf("answer callback: %w", err)
	}
	return nil
}

// markup converts the neutral keyboard into the platform type.
func markup(kb Keyboard) interface{} {
	switch {
	case kb.remove:
		return tgbotapi.NewRemoveKeyboard(true)

	case len(kb.inline) > 0:
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(kb.inline))
		for _, row := range kb.inline {
			var r []tgbotapi.InlineKeyboardButton
			for _, b := range row {
				if b.URL != "" {
					r = append(r, tgbotapi.NewInlineKeyboardButtonURL(b.Label, b.URL))
				} else {
					r = append(r, tgbotapi.NewInlineKeyboardButtonData(b.Label, b.Data))
				}
			}
			rows = append(rows, r)
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)

	case len(kb.reply) > 0:
		rows := make([][]tgbotapi.KeyboardButton, 0, len(kb.reply))
		for _, row := range kb.reply {
			var r []tgbotapi.KeyboardButton
			for _, label := range row {
				r = append(r, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, r)
		}
		mk := tgbotapi.NewReplyKeyboard(rows...)
		mk.ResizeKeyboard = true
		return mk
	}
	return nil
}
