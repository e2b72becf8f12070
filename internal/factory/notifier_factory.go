package factory

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/mikey/guild-sentinel/internal/adapters/discord"
	"github.com/mikey/guild-sentinel/internal/adapters/notify"
	"github.com/mikey/guild-sentinel/internal/config"
	"github.com/mikey/guild-sentinel/internal/core"
)

// NotifierFactory assembles the moderation log notifiers
type NotifierFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewNotifierFactory creates a new notifier factory
func NewNotifierFactory(cfg *config.Config, logger *zap.Logger) *NotifierFactory {
	return &NotifierFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateNotifier returns the channel embed notifier, fanned out to mail
// when SMTP notifications are enabled
func (f *NotifierFactory) CreateNotifier(session *discordgo.Session) (core.Notifier, error) {
	embeds := discord.NewEmbedNotifier(session)

	smtpCfg := f.cfg.GetSMTP()
	if !smtpCfg.Enabled {
		return embeds, nil
	}

	mailer, err := notify.NewSMTPNotifier(
		smtpCfg.Address,
		smtpCfg.Username,
		smtpCfg.Password,
		smtpCfg.From,
		smtpCfg.To,
		f.logger,
	)
	if err != nil {
		return nil, err
	}
	f.logger.Info("Mail notifications enabled",
		zap.String("address", smtpCfg.Address),
		zap.Strings("to", smtpCfg.To))

	return notify.NewMulti(embeds, mailer), nil
}
