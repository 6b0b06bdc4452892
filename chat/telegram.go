package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/bizbot-il/bizbot/log"
)

// Telegram adapts the Telegram Bot API to the Sender and Source
// interfaces. One instance serves both directions.
type Telegram struct {
	bot *tgbotapi.BotAPI

	// isMenuButton classifies a message as a persistent-keyboard press
	isMenuButton func(text string) bool
}

// NewTelegram connects to the Bot API. isMenuButton may be nil, in
// which case every non-command message arrives as KindText (the engine
// still recognizes button labels by text).
func NewTelegram(token string, isMenuButton func(text string) bool) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to telegram: %w", err)
	}
	log.Log.Infof("[Telegram] authorized as @%s", bot.Self.UserName)
	return &Telegram{bot: bot, isMenuButton: isMenuButton}, nil
}

// Username returns the authorized bot's username.
func (t *Telegram) Username() string {
	return t.bot.Self.UserName
}

// Send delivers one outgoing message. Markdown is attempted first and
// retried as plain text when Telegram rejects the entities. Blocked
// recipients map to ErrForbidden and platform rate limits to
// RetryAfterError, for the broadcast worker.
func (t *Telegram) Send(ctx context.Context, userID int64, msg Outgoing) error {
	if msg.Document != nil {
		return t.sendDocument(userID, msg)
	}

	m := tgbotapi.NewMessage(userID, msg.Text)
	m.ParseMode = tgbotapi.ModeMarkdown
	if markup := replyMarkup(msg); markup != nil {
		m.ReplyMarkup = markup
	}

	if _, err := t.bot.Send(m); err != nil {
		if isParseError(err) {
			m.ParseMode = ""
			_, err = t.bot.Send(m)
		}
		if err != nil {
			return mapTelegramError(err)
		}
	}
	return nil
}

func (t *Telegram) sendDocument(userID int64, msg Outgoing) error {
	doc := tgbotapi.NewDocument(userID, tgbotapi.FileBytes{
		Name:  msg.Document.Name,
		Bytes: msg.Document.Data,
	})
	doc.Caption = msg.Text
	if _, err := t.bot.Send(doc); err != nil {
		return mapTelegramError(err)
	}
	return nil
}

// Typing shows the typing indicator.
func (t *Telegram) Typing(ctx context.Context, userID int64) error {
	action := tgbotapi.NewChatAction(userID, tgbotapi.ChatTyping)
	if _, err := t.bot.Request(action); err != nil {
		return mapTelegramError(err)
	}
	return nil
}

// Run long-polls for updates and hands each one to the handler until
// ctx is cancelled.
func (t *Telegram) Run(ctx context.Context, handle func(context.Context, Update)) error {
	cfg := tgbotapi.NewUpdate(0)
	cfg.Timeout = 30
	updates := t.bot.GetUpdatesChan(cfg)

	for {
		select {
		case <-ctx.Done():
			t.bot.StopReceivingUpdates()
			return ctx.Err()
		case raw, ok := <-updates:
			if !ok {
				return nil
			}
			update, valid := t.classify(raw)
			if !valid {
				continue
			}
			handle(ctx, update)
		}
	}
}

// classify maps a raw Telegram update onto the transport Update.
func (t *Telegram) classify(raw tgbotapi.Update) (Update, bool) {
	if cq := raw.CallbackQuery; cq != nil {
		// Acknowledge so the client stops the button spinner.
		if _, err := t.bot.Request(tgbotapi.NewCallback(cq.ID, "")); err != nil {
			log.Log.Debugf("[Telegram] failed to answer callback: %v", err)
		}
		if cq.Message == nil || cq.From == nil {
			return Update{}, false
		}
		return Update{
			UserID:       cq.Message.Chat.ID,
			DisplayName:  displayName(cq.From),
			Handle:       cq.From.UserName,
			Kind:         KindCallback,
			CallbackData: cq.Data,
		}, true
	}

	m := raw.Message
	if m == nil || m.Text == "" || m.From == nil {
		return Update{}, false
	}

	u := Update{
		UserID:      m.Chat.ID,
		DisplayName: displayName(m.From),
		Handle:      m.From.UserName,
		Text:        m.Text,
	}
	switch {
	case m.IsCommand():
		u.Kind = KindCommand
	case t.isMenuButton != nil && t.isMenuButton(m.Text):
		u.Kind = KindMenuButton
	default:
		u.Kind = KindText
	}
	return u, true
}

func displayName(user *tgbotapi.User) string {
	name := strings.TrimSpace(user.FirstName + " " + user.LastName)
	if name == "" {
		name = user.UserName
	}
	return name
}

// replyMarkup converts the portable keyboard types. At most one markup
// can be attached per message; inline keyboards win.
func replyMarkup(msg Outgoing) interface{} {
	if len(msg.InlineKeyboard) > 0 {
		rows := make([][]tgbotapi.InlineKeyboardButton, 0, len(msg.InlineKeyboard))
		for _, row := range msg.InlineKeyboard {
			buttons := make([]tgbotapi.InlineKeyboardButton, 0, len(row))
			for _, b := range row {
				buttons = append(buttons, tgbotapi.NewInlineKeyboardButtonData(b.Text, b.Data))
			}
			rows = append(rows, buttons)
		}
		return tgbotapi.NewInlineKeyboardMarkup(rows...)
	}

	if len(msg.Keyboard) > 0 {
		rows := make([][]tgbotapi.KeyboardButton, 0, len(msg.Keyboard))
		for _, row := range msg.Keyboard {
			buttons := make([]tgbotapi.KeyboardButton, 0, len(row))
			for _, label := range row {
				buttons = append(buttons, tgbotapi.NewKeyboardButton(label))
			}
			rows = append(rows, buttons)
		}
		markup := tgbotapi.NewReplyKeyboard(rows...)
		markup.ResizeKeyboard = true
		return markup
	}
	return nil
}

// isParseError detects the entity-parsing rejection that calls for a
// plain-text retry.
func isParseError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "can't parse entities")
}

// mapTelegramError translates API failures into the transport's typed
// errors.
func mapTelegramError(err error) error {
	var apiErr *tgbotapi.Error
	if errors.As(err, &apiErr) {
		if apiErr.Code == 403 {
			return fmt.Errorf("%w: %v", ErrForbidden, err)
		}
		if retry := apiErr.ResponseParameters.RetryAfter; retry > 0 {
			return &RetryAfterError{After: time.Duration(retry) * time.Second}
		}
	}
	return err
}
