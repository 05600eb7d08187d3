package discord

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/beemacro/beemacro/internal/bot"
)

// handleCommand turns an incoming message into a reply. Only "!"-prefixed messages from
// bot admins are answered, anything else reports ok=false and is ignored silently.
func (b *Bot) handleCommand(authorID, content string) (string, bool) {
	content = strings.TrimSpace(content)
	if !strings.HasPrefix(content, "!") || !b.admins[authorID] {
		return "", false
	}

	if !b.limiter.Allow() {
		return "Slow down, too many commands.", true
	}

	reply, err := b.dispatcher.Dispatch(content)
	switch {
	case err == nil:
	case errors.Is(err, bot.ErrUnknownCommand):
		cmd := strings.Fields(content)[0]
		return fmt.Sprintf("Unknown command: `%s`. Type `!help` for available commands.", cmd), true
	default:
		b.logger.Debug("Discord command refused", slog.String("command", content), slog.Any("error", err))
		return fmt.Sprintf("Refused: %s", reply), true
	}

	if strings.Contains(reply, "\n") {
		return "```\n" + reply + "\n```", true
	}
	return reply, true
}
