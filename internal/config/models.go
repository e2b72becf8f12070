package config

import (
	"fmt"
	"time"
)

// DiscordConfig represents the configuration for the Discord gateway
type DiscordConfig struct {
	Token      string
	IntentsAll bool
}

// StoreConfig represents the configuration for the persistence backend
type StoreConfig struct {
	Type            string
	SQLitePath      string
	MySQLDSN        string
	RedisURL        string
	MaxConnections  int
	ConnMaxIdleTime time.Duration
	EventRetention  time.Duration
	CleanupInterval time.Duration
}

// EngineConfig represents the detection engine tuning knobs
type EngineConfig struct {
	SweepInterval      time.Duration
	RaidWindow         time.Duration
	RaidWindowCapacity int
	SpamWindowCapacity int
}

// PlatformConfig represents the outbound request throttle
type PlatformConfig struct {
	RequestsPerSecond float64
	Burst             int
}

// SettingsConfig represents the guild settings cache configuration
type SettingsConfig struct {
	CacheSize     int
	CacheTTL      time.Duration
	GuildDefaults map[string]string
}

// SMTPConfig represents the configuration for mail notifications
type SMTPConfig struct {
	Enabled  bool
	Address  string
	Username string
	Password string
	From     string
	To       []string
}

// MetricsConfig represents the prometheus exporter configuration
type MetricsConfig struct {
	Enabled       bool
	ListenAddress string
}

// GetDiscord returns the Discord configuration
func (c *Config) GetDiscord() DiscordConfig {
	return DiscordConfig{
		Token:      c.GetString("discord.token"),
		IntentsAll: c.GetBool("discord.intents_all"),
	}
}

// GetStore returns the store configuration
func (c *Config) GetStore() (StoreConfig, error) {
	idle, err := c.GetDuration("store.conn_max_idle_time")
	if err != nil {
		return StoreConfig{}, fmt.Errorf("invalid store.conn_max_idle_time: %w", err)
	}
	retention, err := c.GetDuration("store.event_retention")
	if err != nil {
		return StoreConfig{}, fmt.Errorf("invalid store.event_retention: %w", err)
	}
	cleanup, err := c.GetDuration("store.cleanup_interval")
	if err != nil {
		return StoreConfig{}, fmt.Errorf("invalid store.cleanup_interval: %w", err)
	}
	return StoreConfig{
		Type:            c.GetString("store.type"),
		SQLitePath:      c.GetString("store.sqlite_path"),
		MySQLDSN:        c.GetString("store.mysql_dsn"),
		RedisURL:        c.GetString("store.redis_url"),
		MaxConnections:  c.GetInt("store.max_connections"),
		ConnMaxIdleTime: idle,
		EventRetention:  retention,
		CleanupInterval: cleanup,
	}, nil
}

// GetEngine returns the engine configuration
func (c *Config) GetEngine() (EngineConfig, error) {
	interval, err := c.GetDuration("sweep.interval")
	if err != nil {
		return EngineConfig{}, fmt.Errorf("invalid sweep.interval: %w", err)
	}
	window, err := c.GetDuration("raid.window")
	if err != nil {
		return EngineConfig{}, fmt.Errorf("invalid raid.window: %w", err)
	}
	return EngineConfig{
		SweepInterval:      interval,
		RaidWindow:         window,
		RaidWindowCapacity: c.GetInt("raid.window_capacity"),
		SpamWindowCapacity: c.GetInt("spam.window_capacity"),
	}, nil
}

// GetPlatform returns the outbound throttle configuration
func (c *Config) GetPlatform() PlatformConfig {
	return PlatformConfig{
		RequestsPerSecond: c.GetFloat64("platform.requests_per_second"),
		Burst:             c.GetInt("platform.burst"),
	}
}

// GetSettings returns the guild settings cache configuration
func (c *Config) GetSettings() (SettingsConfig, error) {
	ttl, err := c.GetDuration("settings.cache_ttl")
	if err != nil {
		return SettingsConfig{}, fmt.Errorf("invalid settings.cache_ttl: %w", err)
	}
	return SettingsConfig{
		CacheSize:     c.GetInt("settings.cache_size"),
		CacheTTL:      ttl,
		GuildDefaults: c.GetStringMapString("guild_defaults"),
	}, nil
}

// GetSMTP returns the mail notification configuration
func (c *Config) GetSMTP() SMTPConfig {
	return SMTPConfig{
		Enabled:  c.GetBool("notify.smtp.enabled"),
		Address:  c.GetString("notify.smtp.address"),
		Username: c.GetString("notify.smtp.username"),
		Password: c.GetString("notify.smtp.password"),
		From:     c.GetString("notify.smtp.from"),
		To:       c.GetStringSlice("notify.smtp.to"),
	}
}

// GetMetrics returns the metrics exporter configuration
func (c *Config) GetMetrics() MetricsConfig {
	return MetricsConfig{
		Enabled:       c.GetBool("metrics.enabled"),
		ListenAddress: c.GetString("metrics.listen_address"),
	}
}
