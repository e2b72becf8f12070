package factory

import (
	"time"

	"go.uber.org/zap"

	"github.com/mikey/guild-sentinel/internal/config"
	"github.com/mikey/guild-sentinel/internal/core"
	"github.com/mikey/guild-sentinel/internal/settings"
	"github.com/mikey/guild-sentinel/internal/whitelist"
)

// EngineFactory creates the detection engine's supporting pieces
type EngineFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewEngineFactory creates a new engine factory
func NewEngineFactory(cfg *config.Config, logger *zap.Logger) *EngineFactory {
	return &EngineFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateOptions builds the controller options; a nil clock uses time.Now
func (f *EngineFactory) CreateOptions(clock func() time.Time) (core.Options, error) {
	engineCfg, err := f.cfg.GetEngine()
	if err != nil {
		return core.Options{}, err
	}
	return core.Options{
		RaidWindow:         engineCfg.RaidWindow,
		RaidWindowCapacity: engineCfg.RaidWindowCapacity,
		SpamWindowCapacity: engineCfg.SpamWindowCapacity,
		Clock:              clock,
		Locks:              core.NewKeyedMutex(),
	}, nil
}

// CreateSweepInterval returns the reconciliation sweep interval
func (f *EngineFactory) CreateSweepInterval() (time.Duration, error) {
	engineCfg, err := f.cfg.GetEngine()
	if err != nil {
		return 0, err
	}
	return engineCfg.SweepInterval, nil
}

// CreateSettingsProvider wraps the settings backend in the guild cache
func (f *EngineFactory) CreateSettingsProvider(backend settings.Backend) (*settings.CachedProvider, error) {
	settingsCfg, err := f.cfg.GetSettings()
	if err != nil {
		return nil, err
	}
	return settings.NewCachedProvider(backend, settingsCfg.GuildDefaults, settingsCfg.CacheSize, settingsCfg.CacheTTL, f.logger), nil
}

// CreateWhitelist creates the exemption checker
func (f *EngineFactory) CreateWhitelist(provider core.SettingsProvider) *whitelist.Checker {
	return whitelist.NewChecker(f.cfg.GetStringSlice("whitelist.users"), provider, f.logger)
}
