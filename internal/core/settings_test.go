package core

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadGuildSettingsDefaults(t *testing.T) {
	s := LoadGuildSettings(context.Background(), newMapSettings(), "g1", zap.NewNop())
	assert.Equal(t, DefaultGuildSettings(), s)

	s = LoadGuildSettings(context.Background(), nil, "g1", zap.NewNop())
	assert.Equal(t, DefaultGuildSettings(), s)
}

func TestLoadGuildSettingsOverrides(t *testing.T) {
	assert := assert.New(t)

	provider := newMapSettings(
		SettingRaidProtection, "off",
		SettingRaidThreshold, "10",
		SettingRaidAction, "BAN",
		SettingRaidEndTimeout, "10m",
		SettingSpamThreshold, " 5 ",
		SettingSpamCooldown, "30",
		SettingMaxWarnings, "4",
		SettingSpamLogChannel, "mod-log",
		SettingMuteRoleName, "Quiet",
	)
	s := LoadGuildSettings(context.Background(), provider, "g1", zap.NewNop())

	assert.False(s.RaidProtection)
	assert.Equal(10, s.RaidThreshold)
	assert.Equal(RaidActionBan, s.RaidAction)
	assert.Equal(10*time.Minute, s.RaidEndTimeout)
	assert.Equal(5, s.SpamThreshold)
	assert.Equal(30*time.Second, s.SpamCooldown)
	assert.Equal(4, s.MaxWarnings)
	assert.Equal("mod-log", s.SpamLogChannel)
	assert.Equal("Quiet", s.MuteRoleName)
	assert.True(s.AntiSpam)
}

func TestLoadGuildSettingsInvalidFallsBack(t *testing.T) {
	assert := assert.New(t)

	provider := newMapSettings(
		SettingRaidThreshold, "0",
		SettingRaidAction, "explode",
		SettingSpamCooldown, "soon",
		SettingAntiSpam, "maybe",
		SettingMaxWarnings, "",
	)
	s := LoadGuildSettings(context.Background(), provider, "g1", zap.NewNop())
	def := DefaultGuildSettings()

	assert.Equal(def.RaidThreshold, s.RaidThreshold)
	assert.Equal(def.RaidAction, s.RaidAction)
	assert.Equal(def.SpamCooldown, s.SpamCooldown)
	assert.Equal(def.AntiSpam, s.AntiSpam)
	assert.Equal(def.MaxWarnings, s.MaxWarnings)
}

func TestLoadGuildSettingsProviderFailure(t *testing.T) {
	provider := newMapSettings(SettingRaidThreshold, "10")
	provider.err = errors.New("connection refused")

	s := LoadGuildSettings(context.Background(), provider, "g1", zap.NewNop())
	assert.Equal(t, DefaultGuildSettings(), s)
}

func TestParseSettingDuration(t *testing.T) {
	d, err := ParseSettingDuration("300")
	require.NoError(t, err)
	assert.Equal(t, 300*time.Second, d)

	d, err = ParseSettingDuration("1h30m")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, d)

	for _, bad := range []string{"0", "-5", "-1s", "later", "0s"} {
		_, err := ParseSettingDuration(bad)
		assert.ErrorIs(t, err, ErrInvalidSetting, bad)
	}
}

func TestParsePositiveIntAndSwitch(t *testing.T) {
	n, err := ParsePositiveInt("7")
	require.NoError(t, err)
	assert.Equal(t, 7, n)

	_, err = ParsePositiveInt("0")
	assert.ErrorIs(t, err, ErrInvalidSetting)
	_, err = ParsePositiveInt("seven")
	assert.ErrorIs(t, err, ErrInvalidSetting)

	for _, on := range []string{"on", "ON", "true", "enabled", "1"} {
		b, err := ParseSwitch(on)
		require.NoError(t, err)
		assert.True(t, b, on)
	}
	for _, off := range []string{"off", "false", "Disabled", "0"} {
		b, err := ParseSwitch(off)
		require.NoError(t, err)
		assert.False(t, b, off)
	}
	_, err = ParseSwitch("sometimes")
	assert.ErrorIs(t, err, ErrInvalidSetting)
}
