package discord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mikey/guild-sentinel/internal/core"
)

type recordingHandler struct {
	joins    []core.MemberJoined
	messages []core.MessageCreated
}

func (h *recordingHandler) HandleMemberJoined(ctx context.Context, ev core.MemberJoined) {
	h.joins = append(h.joins, ev)
}

func (h *recordingHandler) HandleMessageCreated(ctx context.Context, ev core.MessageCreated) {
	h.messages = append(h.messages, ev)
}

func TestBuildEmbed(t *testing.T) {
	assert := assert.New(t)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	embed := BuildEmbed(core.Notification{
		Title:       "🚨 Raid Detected!",
		Description: "6 joins in last 1m0s.\nAction: timeout",
		Color:       core.ColorAlert,
		Footer:      "Guild ID: g1",
		Timestamp:   ts,
	})
	assert.Equal("🚨 Raid Detected!", embed.Title)
	assert.Equal(0xFF0000, embed.Color)
	require.NotNil(t, embed.Footer)
	assert.Equal("Guild ID: g1", embed.Footer.Text)
	assert.Equal("2024-03-01T12:00:00Z", embed.Timestamp)

	bare := BuildEmbed(core.Notification{Title: "Raid Ended"})
	assert.Nil(bare.Footer)
	assert.Empty(bare.Timestamp)
}

func TestApplyState(t *testing.T) {
	assert := assert.New(t)
	send := int64(discordgo.PermissionSendMessages)

	allow, deny := applyState(0, 0, send, core.PermissionDeny)
	assert.Equal(int64(0), allow)
	assert.Equal(send, deny)

	allow, deny = applyState(0, 0, send, core.PermissionAllow)
	assert.Equal(send, allow)
	assert.Equal(int64(0), deny)

	allow, deny = applyState(4, 8, send, core.PermissionInherit)
	assert.Equal(int64(4), allow)
	assert.Equal(int64(8), deny)
}

func TestPlatformErr(t *testing.T) {
	assert.NoError(t, platformErr("kick member", nil))

	err := platformErr("kick member", errors.New("HTTP 403 Forbidden"))
	assert.ErrorIs(t, err, core.ErrPlatform)
	assert.Contains(t, err.Error(), "kick member")
}

func TestNewSessionNeedsToken(t *testing.T) {
	_, err := NewSession("", false)
	assert.Error(t, err)

	s, err := NewSession("token", false)
	require.NoError(t, err)
	assert.NotZero(t, s.Identify.Intents&discordgo.IntentsGuildMembers)
	assert.NotZero(t, s.Identify.Intents&discordgo.IntentsGuildMessages)
}

func TestGatewayTranslatesEvents(t *testing.T) {
	assert := assert.New(t)

	session, err := NewSession("token", false)
	require.NoError(t, err)
	handler := &recordingHandler{}
	g := NewGateway(session, handler, zap.NewNop())

	g.onMemberAdd(session, &discordgo.GuildMemberAdd{Member: &discordgo.Member{
		GuildID: "g1",
		User:    &discordgo.User{ID: "u1"},
	}})
	g.onMemberAdd(session, &discordgo.GuildMemberAdd{Member: &discordgo.Member{
		GuildID: "g1",
		User:    &discordgo.User{ID: "bot1", Bot: true},
	}})
	g.onMemberAdd(session, &discordgo.GuildMemberAdd{})

	require.Len(t, handler.joins, 2)
	assert.Equal(core.MemberJoined{GuildID: "g1", MemberID: "u1"}, handler.joins[0])
	assert.True(handler.joins[1].IsAutomated)

	g.onMessageCreate(session, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m1",
		GuildID:   "g1",
		ChannelID: "c1",
		Author:    &discordgo.User{ID: "u1"},
	}})
	g.onMessageCreate(session, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:        "m2",
		GuildID:   "g1",
		ChannelID: "c1",
		Author:    &discordgo.User{ID: "hook"},
		WebhookID: "w1",
	}})
	// direct message
	g.onMessageCreate(session, &discordgo.MessageCreate{Message: &discordgo.Message{
		ID:     "m3",
		Author: &discordgo.User{ID: "u1"},
	}})

	require.Len(t, handler.messages, 2)
	assert.Equal(core.MessageCreated{GuildID: "g1", ChannelID: "c1", AuthorID: "u1", MessageID: "m1"}, handler.messages[0])
	assert.True(handler.messages[1].IsAutomated)
}
