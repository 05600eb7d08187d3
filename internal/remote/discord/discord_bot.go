package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"
)

// Dispatcher runs a text command and returns the reply, implemented by bot.Manager.
type Dispatcher interface {
	Dispatch(text string) (string, error)
}

type Options struct {
	Token              string
	ChannelID          string
	BotAdmins          []string
	UseWebhook         bool
	WebhookURL         string
	EnableTaskMessages bool
	// CommandsPerSecond and CommandBurst throttle chat commands, defaults 1 and 3.
	CommandsPerSecond float64
	CommandBurst      int
}

type Bot struct {
	discordSession *discordgo.Session
	channelID      string
	admins         map[string]bool
	dispatcher     Dispatcher
	limiter        *rate.Limiter
	taskMessages   bool
	useWebhook     bool
	webhookClient  *webhookClient
	logger         *slog.Logger
}

func NewBot(opts Options, dispatcher Dispatcher, logger *slog.Logger) (*Bot, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.CommandsPerSecond <= 0 {
		opts.CommandsPerSecond = 1
	}
	if opts.CommandBurst <= 0 {
		opts.CommandBurst = 3
	}

	botInstance := &Bot{
		channelID:    opts.ChannelID,
		admins:       make(map[string]bool, len(opts.BotAdmins)),
		dispatcher:   dispatcher,
		limiter:      rate.NewLimiter(rate.Limit(opts.CommandsPerSecond), opts.CommandBurst),
		taskMessages: opts.EnableTaskMessages,
		useWebhook:   opts.UseWebhook,
		logger:       logger,
	}
	for _, id := range opts.BotAdmins {
		if id = strings.TrimSpace(id); id != "" {
			botInstance.admins[id] = true
		}
	}

	if opts.UseWebhook {
		if opts.WebhookURL == "" {
			return nil, errors.New("webhook URL is required when using webhook mode")
		}
		botInstance.webhookClient = newWebhookClient(opts.WebhookURL)
		return botInstance, nil
	}

	dg, err := discordgo.New("Bot " + opts.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating Discord session: %w", err)
	}
	botInstance.discordSession = dg

	return botInstance, nil
}

// Start connects to the gateway and serves commands until ctx is done. In webhook mode
// there is nothing to listen to, only events are pushed.
func (b *Bot) Start(ctx context.Context) error {
	if b.useWebhook {
		<-ctx.Done()
		return nil
	}

	b.discordSession.AddHandler(b.onMessageCreated)
	// MESSAGE_CONTENT is required to read command text.
	b.discordSession.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentMessageContent
	if err := b.discordSession.Open(); err != nil {
		return fmt.Errorf("error opening connection: %w", err)
	}
	b.logger.Info("Discord bot connected", slog.String("channel", b.channelID))

	<-ctx.Done()

	return b.discordSession.Close()
}

func (b *Bot) onMessageCreated(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || (s.State != nil && s.State.User != nil && m.Author.ID == s.State.User.ID) {
		return
	}

	reply, ok := b.handleCommand(m.Author.ID, m.Content)
	if !ok {
		return
	}
	if _, err := s.ChannelMessageSend(m.ChannelID, reply); err != nil {
		b.logger.Warn("Failed to reply on Discord", slog.Any("error", err))
	}
}
