package telegram

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	maxRetries  = 3
	retryBaseMs = 2000
	retryGrowth = 2
)

// NewBot connects to the Bot API, retrying transient network failures so a flaky
// connection at startup is not fatal.
func NewBot(token string, chatID int64, dispatcher Dispatcher, taskMessages bool, logger *slog.Logger) (*Bot, error) {
	var api *tgbotapi.BotAPI
	var err error

	delay := time.Duration(retryBaseMs) * time.Millisecond
	for attempt := 1; attempt <= maxRetries; attempt++ {
		api, err = tgbotapi.NewBotAPI(token)
		if err == nil {
			break
		}
		if attempt < maxRetries {
			logger.Warn("Telegram API connection failed, retrying",
				slog.Int("attempt", attempt),
				slog.Int("maxRetries", maxRetries),
				slog.Duration("retryIn", delay),
				slog.Any("error", err),
			)
			time.Sleep(delay)
			delay *= retryGrowth
		}
	}
	if err != nil {
		return nil, fmt.Errorf("after %d attempts: %w", maxRetries, err)
	}
	b := newBot(api, chatID, dispatcher, taskMessages, logger)
	b.api = api
	return b, nil
}

func newBot(out sender, chatID int64, dispatcher Dispatcher, taskMessages bool, logger *slog.Logger) *Bot {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bot{out: out, chatID: chatID, dispatcher: dispatcher, taskMessages: taskMessages, logger: logger}
}

func (b *Bot) Close() {
	if b == nil || b.api == nil {
		return
	}
	b.api.StopReceivingUpdates()
	if c, ok := b.api.Client.(*http.Client); ok && c != nil {
		if tr, ok := c.Transport.(*http.Transport); ok && tr != nil {
			tr.CloseIdleConnections()
		}
	}
}
