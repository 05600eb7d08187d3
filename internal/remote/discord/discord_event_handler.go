package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/beemacro/beemacro/internal/event"
	"github.com/beemacro/beemacro/internal/runstate"
	"github.com/bwmarrin/discordgo"
)

const (
	colorGreen  = 0x2ecc71
	colorYellow = 0xf1c40f
	colorRed    = 0xe74c3c
	colorGrey   = 0x95a5a6
)

// Handle is registered on the event listener.
func (b *Bot) Handle(ctx context.Context, e event.Event) error {
	if !b.shouldPublish(e) {
		return nil
	}

	switch evt := e.(type) {
	case event.TaskFinishedEvent:
		return b.sendEmbed(ctx, taskEmbed(evt))
	case event.StateChangedEvent:
		return b.sendEmbed(ctx, &discordgo.MessageEmbed{
			Description: fmt.Sprintf("**[%s]** %s", evt.Source(), evt.Message()),
			Color:       stateColor(evt.To),
			Timestamp:   evt.OccurredAt().Format(time.RFC3339),
		})
	case event.TaskStartedEvent:
		return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** started **%s**", evt.Source(), evt.Task))
	}

	if e.Source() == "" {
		return b.sendEventMessage(ctx, e.Message())
	}
	return b.sendEventMessage(ctx, fmt.Sprintf("**[%s]** %s", e.Source(), e.Message()))
}

func (b *Bot) shouldPublish(e event.Event) bool {
	switch evt := e.(type) {
	case event.TaskStartedEvent:
		return b.taskMessages
	case event.TaskFinishedEvent:
		return b.taskMessages || evt.Reason == event.FinishedError
	case event.StateChangedEvent:
		// Controller echoes duplicate what the executor reports once it acts.
		return evt.Source() != "controller"
	}
	return e.Message() != ""
}

func taskEmbed(evt event.TaskFinishedEvent) *discordgo.MessageEmbed {
	color := colorGreen
	switch evt.Reason {
	case event.FinishedInterrupted:
		color = colorYellow
	case event.FinishedError:
		color = colorRed
	}
	return &discordgo.MessageEmbed{
		Description: fmt.Sprintf("**[%s]** finished **%s** (%s)", evt.Source(), evt.Task, evt.Reason),
		Color:       color,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "Duration", Value: evt.Duration.Round(time.Millisecond).String(), Inline: true},
		},
	}
}

func stateColor(s runstate.State) int {
	switch s {
	case runstate.Running:
		return colorGreen
	case runstate.Paused, runstate.PauseRequested:
		return colorYellow
	case runstate.Disconnected:
		return colorRed
	}
	return colorGrey
}

func (b *Bot) sendEmbed(ctx context.Context, embed *discordgo.MessageEmbed) error {
	if b.useWebhook {
		return b.webhookClient.SendEmbed(ctx, embed)
	}
	_, err := b.discordSession.ChannelMessageSendEmbed(b.channelID, embed, discordgo.WithContext(ctx))
	return err
}

func (b *Bot) sendEventMessage(ctx context.Context, message string) error {
	if b.useWebhook {
		return b.webhookClient.Send(ctx, message)
	}
	_, err := b.discordSession.ChannelMessageSend(b.channelID, message, discordgo.WithContext(ctx))
	return err
}
