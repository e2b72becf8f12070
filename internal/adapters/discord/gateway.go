package discord

import (
	"context"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/mikey/guild-sentinel/internal/core"
	"github.com/mikey/guild-sentinel/internal/ports"
)

// Handler receives the events the gateway translates
type Handler interface {
	HandleMemberJoined(ctx context.Context, ev core.MemberJoined)
	HandleMessageCreated(ctx context.Context, ev core.MessageCreated)
}

// Gateway connects to the Discord websocket and feeds member joins and
// guild messages to the handler
type Gateway struct {
	session *discordgo.Session
	handler Handler
	logger  *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	removes []func()
}

var _ ports.EventSource = (*Gateway)(nil)

// NewSession creates a bot session with the intents the gateway needs
func NewSession(token string, intentsAll bool) (*discordgo.Session, error) {
	if token == "" {
		return nil, fmt.Errorf("discord token is not configured")
	}
	dg, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	if intentsAll {
		dg.Identify.Intents = discordgo.IntentsAll
	} else {
		dg.Identify.Intents = discordgo.IntentsGuilds |
			discordgo.IntentsGuildMembers |
			discordgo.IntentsGuildMessages
	}
	return dg, nil
}

// NewGateway creates a new gateway
func NewGateway(session *discordgo.Session, handler Handler, logger *zap.Logger) *Gateway {
	ctx, cancel := context.WithCancel(context.Background())
	return &Gateway{
		session: session,
		handler: handler,
		logger:  logger,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// Start registers the event handlers and opens the websocket
func (g *Gateway) Start() error {
	g.removes = append(g.removes,
		g.session.AddHandler(g.onReady),
		g.session.AddHandler(g.onMemberAdd),
		g.session.AddHandler(g.onMessageCreate),
	)

	if err := g.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}
	g.logger.Info("Discord gateway connected")
	return nil
}

// Stop unregisters the handlers and closes the websocket
func (g *Gateway) Stop() error {
	g.cancel()
	for _, remove := range g.removes {
		remove()
	}
	g.removes = nil

	if err := g.session.Close(); err != nil {
		return fmt.Errorf("failed to close Discord connection: %w", err)
	}
	g.logger.Info("Discord gateway closed")
	return nil
}

func (g *Gateway) onReady(s *discordgo.Session, r *discordgo.Ready) {
	g.logger.Info("Discord session ready",
		zap.String("user", r.User.Username),
		zap.Int("guilds", len(r.Guilds)))
}

func (g *Gateway) onMemberAdd(s *discordgo.Session, m *discordgo.GuildMemberAdd) {
	if m.Member == nil || m.Member.User == nil {
		return
	}
	g.handler.HandleMemberJoined(g.ctx, core.MemberJoined{
		GuildID:     m.GuildID,
		MemberID:    m.Member.User.ID,
		IsAutomated: m.Member.User.Bot,
	})
}

func (g *Gateway) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	// direct messages carry no guild
	if m.GuildID == "" || m.Author == nil {
		return
	}
	g.handler.HandleMessageCreated(g.ctx, core.MessageCreated{
		GuildID:     m.GuildID,
		ChannelID:   m.ChannelID,
		AuthorID:    m.Author.ID,
		MessageID:   m.ID,
		IsAutomated: m.Author.Bot || m.WebhookID != "",
	})
}
