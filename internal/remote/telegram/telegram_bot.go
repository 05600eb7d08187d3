package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beemacro/beemacro/internal/event"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// Dispatcher runs a text command and returns the reply, implemented by bot.Manager.
type Dispatcher interface {
	Dispatch(text string) (string, error)
}

type sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

type Bot struct {
	api          *tgbotapi.BotAPI
	out          sender
	chatID       int64
	dispatcher   Dispatcher
	taskMessages bool
	logger       *slog.Logger
}

// Start long-polls for commands from the configured chat until ctx is done.
func (b *Bot) Start(ctx context.Context) error {
	if b.api == nil {
		return errors.New("telegram bot is not connected")
	}
	offset, err := b.getLatestOffset()
	if err != nil {
		return err
	}

	u := tgbotapi.NewUpdate(offset)
	u.Timeout = 5
	updates := b.api.GetUpdatesChan(u)

	for {
		select {
		case <-ctx.Done():
			b.api.StopReceivingUpdates()
			for range updates {
			}
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil || update.Message.Chat == nil {
				continue
			}
			if reply, ok := b.handleMessage(update.Message.Chat.ID, update.Message.Text); ok {
				if err := b.send(reply); err != nil {
					b.logger.Warn("Failed to reply on Telegram", slog.Any("error", err))
				}
			}
		}
	}
}

// handleMessage answers commands coming from the configured chat only.
func (b *Bot) handleMessage(chatID int64, text string) (string, bool) {
	if chatID != b.chatID || strings.TrimSpace(text) == "" || b.dispatcher == nil {
		return "", false
	}
	reply, err := b.dispatcher.Dispatch(text)
	if err != nil {
		b.logger.Debug("Telegram command refused", slog.String("command", text), slog.Any("error", err))
	}
	return reply, true
}

// Handle is registered on the event listener.
func (b *Bot) Handle(_ context.Context, e event.Event) error {
	switch evt := e.(type) {
	case event.TaskStartedEvent:
		if !b.taskMessages {
			return nil
		}
	case event.TaskFinishedEvent:
		if !b.taskMessages && evt.Reason != event.FinishedError {
			return nil
		}
	case event.StateChangedEvent:
		if evt.Source() == "controller" {
			return nil
		}
	}
	if e.Message() == "" {
		return nil
	}

	msg := e.Message()
	if e.Source() != "" {
		msg = fmt.Sprintf("[%s] %s", e.Source(), msg)
	}
	return b.send(msg)
}

func (b *Bot) send(text string) error {
	_, err := b.out.Send(tgbotapi.NewMessage(b.chatID, text))
	return err
}

func (b *Bot) getLatestOffset() (int, error) {
	upds, err := b.api.GetUpdates(tgbotapi.NewUpdate(-1))
	if err != nil {
		return 0, err
	}
	offset := 0
	if len(upds) > 0 {
		offset = upds[0].UpdateID + 1
	}
	return offset, nil
}
