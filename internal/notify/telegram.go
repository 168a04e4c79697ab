package notify

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"phoneshop/internal/logger"
)

// TelegramNotifier posts messages to one chat, optionally inside a forum
// topic.
type TelegramNotifier struct {
	bot      *tgbotapi.BotAPI
	chatID   int64
	threadID int
	logger   *logger.Logger
}

func NewTelegramNotifier(token string, chatID int64, threadID int, logger *logger.Logger) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to connect telegram bot: %w", err)
	}
	logger.Info("Telegram bot @%s ready for chat %d", bot.Self.UserName, chatID)
	return NewTelegramNotifierWithBot(bot, chatID, threadID, logger), nil
}

func NewTelegramNotifierWithBot(bot *tgbotapi.BotAPI, chatID int64, threadID int, logger *logger.Logger) *TelegramNotifier {
	return &TelegramNotifier{
		bot:      bot,
		chatID:   chatID,
		threadID: threadID,
		logger:   logger,
	}
}

func (t *TelegramNotifier) Channel() string {
	return "telegram"
}

func (t *TelegramNotifier) Send(ctx context.Context, msg Message) (int, error) {
	sent := 0
	for _, chunk := range msg.Chunks(MaxMessageLength) {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := t.sendText(chunk, msg.ParseMode); err != nil {
			return sent, err
		}
		sent++
	}
	t.logger.Debug("Sent %d telegram message(s) to %d", sent, t.chatID)
	return sent, nil
}

// sendText goes through the raw API when a topic is set, since the
// library's message config has no message_thread_id.
func (t *TelegramNotifier) sendText(text, parseMode string) error {
	if t.threadID > 0 {
		params := make(tgbotapi.Params)
		params.AddNonZero64("chat_id", t.chatID)
		params.AddNonZero("message_thread_id", t.threadID)
		params.AddNonEmpty("text", text)
		params.AddNonEmpty("parse_mode", parseMode)
		params.AddBool("disable_web_page_preview", true)
		_, err := t.bot.MakeRequest("sendMessage", params)
		return err
	}

	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = parseMode
	msg.DisableWebPagePreview = true
	_, err := t.bot.Send(msg)
	return err
}

// LogNotifier writes messages to the log. It stands in for Telegram when no
// bot token is configured.
type LogNotifier struct {
	logger *logger.Logger
}

func NewLogNotifier(logger *logger.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (l *LogNotifier) Channel() string {
	return "log"
}

func (l *LogNotifier) Send(ctx context.Context, msg Message) (int, error) {
	chunks := msg.Chunks(MaxMessageLength)
	for _, chunk := range chunks {
		l.logger.Info("Notification:\n%s", chunk)
	}
	return len(chunks), nil
}
