package notify

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"alertengine/internal/config"
	"alertengine/internal/domain"
	"alertengine/internal/permanent"

	tgbot "github.com/go-telegram/bot"
	tgmodels "github.com/go-telegram/bot/models"
)

// TelegramSender posts alert notifications to a Telegram chat.
// Params: bot token, chat id, and optional API base URL.
// Returns: telegram channel sender.
type TelegramSender struct {
	client  *tgbot.Bot
	chatID  any
	initErr error
}

// NewTelegramSender creates the Telegram sender with a Bot API client.
// Params: telegram notifier config.
// Returns: initialized sender; configuration errors surface on Send.
func NewTelegramSender(cfg config.TelegramNotifier) *TelegramSender {
	sender := &TelegramSender{
		chatID: normalizeChatID(cfg.ChatID),
	}

	if strings.TrimSpace(cfg.BotToken) == "" {
		sender.initErr = permanent.Mark(errors.New("telegram bot token is required"))
		return sender
	}
	if strings.TrimSpace(cfg.ChatID) == "" {
		sender.initErr = permanent.Mark(errors.New("telegram chat_id is required"))
		return sender
	}

	options := []tgbot.Option{
		tgbot.WithSkipGetMe(),
	}
	if strings.TrimSpace(cfg.APIBase) != "" {
		options = append(options, tgbot.WithServerURL(strings.TrimRight(cfg.APIBase, "/")))
	}
	botClient, err := tgbot.New(cfg.BotToken, options...)
	if err != nil {
		sender.initErr = fmt.Errorf("init telegram bot: %w", err)
		return sender
	}
	sender.client = botClient
	return sender
}

// Channel returns sender channel name.
// Params: none.
// Returns: static channel key.
func (s *TelegramSender) Channel() string {
	return ChannelTelegram
}

// Send posts one alert message to the configured chat.
// Params: context and alert snapshot.
// Returns: transport or Bot API error.
func (s *TelegramSender) Send(ctx context.Context, alert domain.Alert) error {
	if s.initErr != nil {
		return s.initErr
	}
	if s.client == nil {
		return errors.New("telegram client is not initialized")
	}

	request := &tgbot.SendMessageParams{
		ChatID:    s.chatID,
		Text:      telegramText(alert),
		ParseMode: tgmodels.ParseModeHTML,
	}

	sent, err := s.client.SendMessage(ctx, request)
	if err != nil {
		return fmt.Errorf("telegram send: %w", err)
	}
	if sent == nil || sent.ID <= 0 {
		return errors.New("telegram send returned empty message id")
	}
	return nil
}

// telegramText renders the HTML message body for one alert.
// Params: alert snapshot.
// Returns: escaped HTML text with a bold severity header.
func telegramText(alert domain.Alert) string {
	lines := strings.SplitN(escapeHTML(FormatMessage(alert)), "\n", 2)
	text := "<b>" + lines[0] + "</b>"
	if len(lines) == 2 {
		text += "\n" + lines[1]
	}
	return text
}

// escapeHTML escapes the characters Telegram treats as HTML markup.
// Params: raw text.
// Returns: text safe for ParseModeHTML.
func escapeHTML(text string) string {
	replacer := strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")
	return replacer.Replace(text)
}

// normalizeChatID converts numeric chat IDs to int64 and keeps non-numeric IDs as string.
// Params: configured chat ID value from TOML.
// Returns: Telegram API chat id union value.
func normalizeChatID(raw string) any {
	trimmed := strings.TrimSpace(raw)
	if numeric, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
		return numeric
	}
	return trimmed
}
