package factory

import (
	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mikey/guild-sentinel/internal/adapters/discord"
	"github.com/mikey/guild-sentinel/internal/config"
	"github.com/mikey/guild-sentinel/internal/core"
	"github.com/mikey/guild-sentinel/internal/ports"
)

// PlatformFactory creates the Discord session and the adapters built on it
type PlatformFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewPlatformFactory creates a new platform factory
func NewPlatformFactory(cfg *config.Config, logger *zap.Logger) *PlatformFactory {
	return &PlatformFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateSession creates the bot session
func (f *PlatformFactory) CreateSession() (*discordgo.Session, error) {
	discordCfg := f.cfg.GetDiscord()
	return discord.NewSession(discordCfg.Token, discordCfg.IntentsAll)
}

// CreatePlatform creates the outbound moderation adapter
func (f *PlatformFactory) CreatePlatform(session *discordgo.Session) core.Platform {
	return discord.NewPlatform(session)
}

// CreateEventSource creates the gateway feeding the service
func (f *PlatformFactory) CreateEventSource(session *discordgo.Session, service *core.SentinelService) ports.EventSource {
	return discord.NewGateway(session, service, f.logger)
}

// CreateLimiter creates the outbound request throttle; zero disables it
func (f *PlatformFactory) CreateLimiter() *rate.Limiter {
	platformCfg := f.cfg.GetPlatform()
	if platformCfg.RequestsPerSecond <= 0 {
		return nil
	}
	burst := platformCfg.Burst
	if burst < 1 {
		burst = 1
	}
	f.logger.Debug("Outbound throttle configured",
		zap.Float64("requests_per_second", platformCfg.RequestsPerSecond),
		zap.Int("burst", burst))
	return rate.NewLimiter(rate.Limit(platformCfg.RequestsPerSecond), burst)
}
