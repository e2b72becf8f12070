package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	assert := assert.New(t)
	cfg := NewFromViper(NewEmptyViper())

	storeCfg, err := cfg.GetStore()
	require.NoError(t, err)
	assert.Equal("sqlite", storeCfg.Type)
	assert.Equal(5, storeCfg.MaxConnections)
	assert.Equal(720*time.Hour, storeCfg.EventRetention)
	assert.Equal(time.Hour, storeCfg.CleanupInterval)

	engineCfg, err := cfg.GetEngine()
	require.NoError(t, err)
	assert.Equal(time.Minute, engineCfg.SweepInterval)
	assert.Equal(60*time.Second, engineCfg.RaidWindow)
	assert.Equal(1000, engineCfg.RaidWindowCapacity)

	settingsCfg, err := cfg.GetSettings()
	require.NoError(t, err)
	assert.Equal(1024, settingsCfg.CacheSize)
	assert.Empty(settingsCfg.GuildDefaults)

	assert.False(cfg.GetSMTP().Enabled)
	assert.False(cfg.GetMetrics().Enabled)
	assert.Equal(40.0, cfg.GetPlatform().RequestsPerSecond)
}

func TestNewFromFile(t *testing.T) {
	assert := assert.New(t)

	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
discord:
  token: secret
store:
  type: redis
  redis_url: redis://cache:6379/2
sweep:
  interval: 15s
guild_defaults:
  raid_threshold: 8
  raid_action: kick
notify:
  smtp:
    enabled: true
    to:
      - ops@example.com
`), 0o600))

	cfg, err := NewFromFile(path)
	require.NoError(t, err)

	assert.Equal("secret", cfg.GetDiscord().Token)

	storeCfg, err := cfg.GetStore()
	require.NoError(t, err)
	assert.Equal("redis", storeCfg.Type)
	assert.Equal("redis://cache:6379/2", storeCfg.RedisURL)

	engineCfg, err := cfg.GetEngine()
	require.NoError(t, err)
	assert.Equal(15*time.Second, engineCfg.SweepInterval)

	settingsCfg, err := cfg.GetSettings()
	require.NoError(t, err)
	assert.Equal(map[string]string{"raid_threshold": "8", "raid_action": "kick"}, settingsCfg.GuildDefaults)

	smtpCfg := cfg.GetSMTP()
	assert.True(smtpCfg.Enabled)
	assert.Equal([]string{"ops@example.com"}, smtpCfg.To)
}

func TestInvalidDuration(t *testing.T) {
	v := NewEmptyViper()
	v.Set("sweep.interval", "often")

	_, err := NewFromViper(v).GetEngine()
	assert.Error(t, err)
}

func TestNewFromMissingFile(t *testing.T) {
	_, err := NewFromFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
