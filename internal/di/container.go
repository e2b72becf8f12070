package di

import (
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/dig"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mikey/guild-sentinel/internal/adapters/store"
	"github.com/mikey/guild-sentinel/internal/config"
	"github.com/mikey/guild-sentinel/internal/core"
	"github.com/mikey/guild-sentinel/internal/factory"
	"github.com/mikey/guild-sentinel/internal/logging"
	"github.com/mikey/guild-sentinel/internal/ports"
	"github.com/mikey/guild-sentinel/internal/settings"
	"github.com/mikey/guild-sentinel/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewPlatformFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewNotifierFactory); err != nil {
		return nil, err
	}

	// Register Discord session and the adapters built on it
	if err := container.Provide(func(f *factory.PlatformFactory) (*discordgo.Session, error) {
		return f.CreateSession()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.PlatformFactory, session *discordgo.Session) core.Platform {
		return f.CreatePlatform(session)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.NotifierFactory, session *discordgo.Session) (core.Notifier, error) {
		return f.CreateNotifier(session)
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.PlatformFactory) *rate.Limiter {
		return f.CreateLimiter()
	}); err != nil {
		return nil, err
	}

	// Register engine with the wall clock
	if err := provideEngine(container, nil); err != nil {
		return nil, err
	}

	// Register event source
	if err := container.Provide(func(f *factory.PlatformFactory, session *discordgo.Session, service *core.SentinelService) ports.EventSource {
		return f.CreateEventSource(session, service)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// provideEngine registers the store, settings, whitelist and detection
// engine. Both binaries share it; only the platform side differs.
func provideEngine(container *dig.Container, clock func() time.Time) error {
	if err := container.Provide(factory.NewEngineFactory); err != nil {
		return err
	}
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return err
	}

	// Register store and the ports it implements
	if err := container.Provide(func(f *factory.StoreFactory) (store.Store, error) {
		return f.CreateStore()
	}); err != nil {
		return err
	}
	if err := container.Provide(func(s store.Store) core.SpamStateRepository {
		return s
	}); err != nil {
		return err
	}
	if err := container.Provide(func(s store.Store) core.EventSink {
		return s
	}); err != nil {
		return err
	}

	// Register guild settings
	if err := container.Provide(func(f *factory.EngineFactory, s store.Store) (*settings.CachedProvider, error) {
		return f.CreateSettingsProvider(s)
	}); err != nil {
		return err
	}
	if err := container.Provide(func(p *settings.CachedProvider) core.SettingsProvider {
		return p
	}); err != nil {
		return err
	}

	// Register whitelist
	if err := container.Provide(func(f *factory.EngineFactory, p core.SettingsProvider) core.ExemptionChecker {
		return f.CreateWhitelist(p)
	}); err != nil {
		return err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
	}); err != nil {
		return err
	}

	// Register controller options
	if err := container.Provide(func(f *factory.EngineFactory) (core.Options, error) {
		return f.CreateOptions(clock)
	}); err != nil {
		return err
	}

	// Register engine
	if err := container.Provide(core.NewActionExecutor); err != nil {
		return err
	}
	if err := container.Provide(core.NewRaidController); err != nil {
		return err
	}
	if err := container.Provide(core.NewSpamController); err != nil {
		return err
	}
	if err := container.Provide(core.NewSentinelService); err != nil {
		return err
	}
	if err := container.Provide(func(
		f *factory.EngineFactory,
		raid *core.RaidController,
		spam *core.SpamController,
		logger *zap.Logger,
	) (*core.Sweeper, error) {
		interval, err := f.CreateSweepInterval()
		if err != nil {
			return nil, err
		}
		return core.NewSweeper(raid, spam, logger, interval, clock), nil
	}); err != nil {
		return err
	}

	return nil
}
