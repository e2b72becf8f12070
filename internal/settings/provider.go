package settings

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/mikey/guild-sentinel/internal/core"
)

// Backend is the durable guild settings table
type Backend interface {
	GetSetting(ctx context.Context, guildID, key string) (string, bool, error)
	SetSetting(ctx context.Context, guildID, key, value string) error
}

type entry struct {
	value string
	ok    bool
}

// CachedProvider serves guild settings from an expiring LRU in front of the
// backend. Keys a guild never set fall back to operator-wide defaults.
type CachedProvider struct {
	backend  Backend
	defaults map[string]string
	cache    *expirable.LRU[string, entry]
	group    singleflight.Group
	logger   *zap.Logger
}

var _ core.SettingsProvider = (*CachedProvider)(nil)

// NewCachedProvider creates a cached settings provider
func NewCachedProvider(backend Backend, defaults map[string]string, capacity int, ttl time.Duration, logger *zap.Logger) *CachedProvider {
	if capacity <= 0 {
		capacity = 1024
	}
	normalized := make(map[string]string, len(defaults))
	for k, v := range defaults {
		k = strings.ToLower(k)
		if err := Validate(k, v); err != nil {
			logger.Warn("Ignoring guild setting default", zap.Error(err))
			continue
		}
		normalized[k] = v
	}
	if len(normalized) > 0 {
		logger.Info("Loaded guild setting defaults", zap.Int("count", len(normalized)))
	}
	return &CachedProvider{
		backend:  backend,
		defaults: normalized,
		cache:    expirable.NewLRU[string, entry](capacity, nil, ttl),
		logger:   logger,
	}
}

func cacheKey(guildID, key string) string {
	return guildID + "/" + key
}

// GetSetting returns the guild's value for key, or the operator default
func (p *CachedProvider) GetSetting(ctx context.Context, guildID, key string) (string, bool, error) {
	ck := cacheKey(guildID, key)
	if e, ok := p.cache.Get(ck); ok {
		return p.withDefault(key, e)
	}

	// concurrent misses for the same key share one backend read
	v, err, _ := p.group.Do(ck, func() (interface{}, error) {
		val, ok, err := p.backend.GetSetting(ctx, guildID, key)
		if err != nil {
			return nil, err
		}
		e := entry{value: val, ok: ok}
		p.cache.Add(ck, e)
		return e, nil
	})
	if err != nil {
		return "", false, fmt.Errorf("%w: %v", core.ErrPersistenceUnavailable, err)
	}
	return p.withDefault(key, v.(entry))
}

func (p *CachedProvider) withDefault(key string, e entry) (string, bool, error) {
	if e.ok {
		return e.value, true, nil
	}
	if def, ok := p.defaults[key]; ok {
		return def, true, nil
	}
	return "", false, nil
}

// SetSetting writes through to the backend and drops the cached value
func (p *CachedProvider) SetSetting(ctx context.Context, guildID, key, value string) error {
	key = strings.ToLower(strings.TrimSpace(key))
	if err := Validate(key, value); err != nil {
		return err
	}
	if err := p.backend.SetSetting(ctx, guildID, key, value); err != nil {
		return err
	}
	p.cache.Remove(cacheKey(guildID, key))
	p.logger.Info("Guild setting updated",
		zap.String("guild_id", guildID),
		zap.String("key", key),
		zap.String("value", value))
	return nil
}

// Invalidate drops every cached value
func (p *CachedProvider) Invalidate() {
	p.cache.Purge()
}
