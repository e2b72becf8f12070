package discord

import (
	"context"
	"fmt"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/mikey/guild-sentinel/internal/core"
)

// EmbedNotifier posts notifications as embeds in a guild channel
type EmbedNotifier struct {
	session *discordgo.Session
}

var _ core.Notifier = (*EmbedNotifier)(nil)

// NewEmbedNotifier creates a new embed notifier
func NewEmbedNotifier(session *discordgo.Session) *EmbedNotifier {
	return &EmbedNotifier{session: session}
}

// Notify sends the notification to channelID
func (n *EmbedNotifier) Notify(ctx context.Context, guildID, channelID string, note core.Notification) error {
	_, err := n.session.ChannelMessageSendEmbed(channelID, BuildEmbed(note), discordgo.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("%w: send embed: %v", core.ErrPlatform, err)
	}
	return nil
}

// BuildEmbed renders a notification as a Discord embed
func BuildEmbed(note core.Notification) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title:       note.Title,
		Description: note.Description,
		Color:       note.Color,
	}
	if note.Footer != "" {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: note.Footer}
	}
	if !note.Timestamp.IsZero() {
		embed.Timestamp = note.Timestamp.Format(time.RFC3339)
	}
	return embed
}
