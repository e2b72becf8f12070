package core

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Guild setting keys
const (
	SettingRaidProtection      = "raid_protection"
	SettingRaidThreshold       = "raid_threshold"
	SettingRaidAction          = "raid_action"
	SettingRaidAlertCooldown   = "raid_alert_cooldown"
	SettingRaidEndTimeout      = "raid_end_timeout"
	SettingRaidTimeoutDuration = "raid_timeout_duration"
	SettingRaidLogChannel      = "raid_log_channel"
	SettingAntiSpam            = "antispam"
	SettingSpamThreshold       = "spam_threshold"
	SettingSpamCooldown        = "spam_cooldown"
	SettingTimeoutDuration     = "timeout_duration"
	SettingMaxWarnings         = "max_warnings"
	SettingWarningExpiry       = "warning_expiry"
	SettingSpamLogChannel      = "spam_log_channel"
	SettingMuteRoleName        = "mute_role_name"
	SettingWhitelistUsers      = "whitelist_users"
)

// GuildSettings is the parsed security configuration of a guild
type GuildSettings struct {
	RaidProtection      bool
	RaidThreshold       int
	RaidAction          RaidAction
	RaidAlertCooldown   time.Duration
	RaidEndTimeout      time.Duration
	RaidTimeoutDuration time.Duration
	RaidLogChannel      string

	AntiSpam        bool
	SpamThreshold   int
	SpamCooldown    time.Duration
	TimeoutDuration time.Duration
	MaxWarnings     int
	WarningExpiry   time.Duration
	SpamLogChannel  string

	MuteRoleName string
}

// DefaultGuildSettings returns the settings applied when a guild configured nothing
func DefaultGuildSettings() GuildSettings {
	return GuildSettings{
		RaidProtection:      true,
		RaidThreshold:       5,
		RaidAction:          RaidActionTimeout,
		RaidAlertCooldown:   2 * time.Minute,
		RaidEndTimeout:      5 * time.Minute,
		RaidTimeoutDuration: 10 * time.Minute,

		AntiSpam:        true,
		SpamThreshold:   3,
		SpamCooldown:    10 * time.Second,
		TimeoutDuration: 300 * time.Second,
		MaxWarnings:     2,
		WarningExpiry:   300 * time.Second,

		MuteRoleName: "Muted",
	}
}

// LoadGuildSettings reads every known key from the provider. Missing keys and
// unparsable values fall back to the defaults; a failing provider yields the
// defaults for the whole guild.
func LoadGuildSettings(ctx context.Context, provider SettingsProvider, guildID string, logger *zap.Logger) GuildSettings {
	s := DefaultGuildSettings()
	if provider == nil {
		return s
	}

	l := settingsLoader{ctx: ctx, provider: provider, guildID: guildID, logger: logger}

	l.boolean(SettingRaidProtection, &s.RaidProtection)
	l.positiveInt(SettingRaidThreshold, &s.RaidThreshold)
	l.action(SettingRaidAction, &s.RaidAction)
	l.duration(SettingRaidAlertCooldown, &s.RaidAlertCooldown)
	l.duration(SettingRaidEndTimeout, &s.RaidEndTimeout)
	l.duration(SettingRaidTimeoutDuration, &s.RaidTimeoutDuration)
	l.str(SettingRaidLogChannel, &s.RaidLogChannel)

	l.boolean(SettingAntiSpam, &s.AntiSpam)
	l.positiveInt(SettingSpamThreshold, &s.SpamThreshold)
	l.duration(SettingSpamCooldown, &s.SpamCooldown)
	l.duration(SettingTimeoutDuration, &s.TimeoutDuration)
	l.positiveInt(SettingMaxWarnings, &s.MaxWarnings)
	l.duration(SettingWarningExpiry, &s.WarningExpiry)
	l.str(SettingSpamLogChannel, &s.SpamLogChannel)

	l.str(SettingMuteRoleName, &s.MuteRoleName)

	return s
}

type settingsLoader struct {
	ctx      context.Context
	provider SettingsProvider
	guildID  string
	logger   *zap.Logger
	failed   bool
}

func (l *settingsLoader) raw(key string) (string, bool) {
	if l.failed {
		return "", false
	}
	val, ok, err := l.provider.GetSetting(l.ctx, l.guildID, key)
	if err != nil {
		// One failure is enough, the remaining keys use defaults too
		l.failed = true
		l.logger.Warn("Failed to read guild settings, using defaults",
			zap.String("guild_id", l.guildID),
			zap.Error(err))
		return "", false
	}
	val = strings.TrimSpace(val)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func (l *settingsLoader) invalid(key, val string, err error) {
	l.logger.Warn("Invalid guild setting, using default",
		zap.String("guild_id", l.guildID),
		zap.String("key", key),
		zap.String("value", val),
		zap.Error(err))
}

func (l *settingsLoader) str(key string, dst *string) {
	if val, ok := l.raw(key); ok {
		*dst = val
	}
}

func (l *settingsLoader) positiveInt(key string, dst *int) {
	val, ok := l.raw(key)
	if !ok {
		return
	}
	n, err := ParsePositiveInt(val)
	if err != nil {
		l.invalid(key, val, err)
		return
	}
	*dst = n
}

func (l *settingsLoader) duration(key string, dst *time.Duration) {
	val, ok := l.raw(key)
	if !ok {
		return
	}
	d, err := ParseSettingDuration(val)
	if err != nil {
		l.invalid(key, val, err)
		return
	}
	*dst = d
}

func (l *settingsLoader) boolean(key string, dst *bool) {
	val, ok := l.raw(key)
	if !ok {
		return
	}
	b, err := ParseSwitch(val)
	if err != nil {
		l.invalid(key, val, err)
		return
	}
	*dst = b
}

func (l *settingsLoader) action(key string, dst *RaidAction) {
	val, ok := l.raw(key)
	if !ok {
		return
	}
	a := RaidAction(strings.ToLower(val))
	if !a.Valid() {
		l.invalid(key, val, fmt.Errorf("%w: unknown raid action", ErrInvalidSetting))
		return
	}
	*dst = a
}

// ParsePositiveInt parses a strictly positive integer setting
func ParsePositiveInt(val string) (int, error) {
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	if n < 1 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidSetting)
	}
	return n, nil
}

// ParseSettingDuration accepts bare seconds ("300") or a Go duration ("5m")
func ParseSettingDuration(val string) (time.Duration, error) {
	if n, err := strconv.Atoi(val); err == nil {
		if n < 1 {
			return 0, fmt.Errorf("%w: must be positive", ErrInvalidSetting)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidSetting, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%w: must be positive", ErrInvalidSetting)
	}
	return d, nil
}

// ParseSwitch parses on/off style flags
func ParseSwitch(val string) (bool, error) {
	switch strings.ToLower(val) {
	case "on", "true", "yes", "1", "enabled":
		return true, nil
	case "off", "false", "no", "0", "disabled":
		return false, nil
	}
	return false, fmt.Errorf("%w: expected on or off", ErrInvalidSetting)
}
