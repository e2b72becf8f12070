package whitelist

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/guild-sentinel/internal/core"
)

// Checker decides whether a user is exempt from raid and spam detection.
// Operator-wide IDs come from configuration; each guild may add its own
// through the whitelist_users setting.
type Checker struct {
	users    map[string]struct{}
	settings core.SettingsProvider
	logger   *zap.Logger
}

var _ core.ExemptionChecker = (*Checker)(nil)

// NewChecker creates a new whitelist checker
func NewChecker(users []string, settings core.SettingsProvider, logger *zap.Logger) *Checker {
	// Normalize IDs
	normalized := make(map[string]struct{}, len(users))
	for _, id := range users {
		id = strings.TrimSpace(id)
		if id != "" {
			normalized[id] = struct{}{}
		}
	}

	if len(normalized) > 0 && logger != nil {
		logger.Info("Initialized whitelist checker", zap.Int("users", len(normalized)))
	}

	return &Checker{
		users:    normalized,
		settings: settings,
		logger:   logger,
	}
}

// IsExempt checks the global list, then the guild's own list
func (c *Checker) IsExempt(ctx context.Context, guildID, userID string) bool {
	if _, ok := c.users[userID]; ok {
		return true
	}
	if c.settings == nil {
		return false
	}

	raw, ok, err := c.settings.GetSetting(ctx, guildID, core.SettingWhitelistUsers)
	if err != nil {
		if c.logger != nil {
			c.logger.Warn("Failed to read guild whitelist", zap.String("guild_id", guildID), zap.Error(err))
		}
		return false
	}
	if !ok {
		return false
	}

	for _, id := range ParseIDs(raw) {
		if id == userID {
			if c.logger != nil {
				c.logger.Debug("User is whitelisted",
					zap.String("guild_id", guildID),
					zap.String("user_id", userID))
			}
			return true
		}
	}
	return false
}

// ParseIDs splits a comma or whitespace separated ID list. Mentions of the
// form <@123> and <@!123> are accepted.
func ParseIDs(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\n' || r == '\t'
	})
	ids := make([]string, 0, len(fields))
	for _, f := range fields {
		f = strings.TrimPrefix(f, "<@")
		f = strings.TrimPrefix(f, "!")
		f = strings.TrimSuffix(f, ">")
		if f != "" {
			ids = append(ids, f)
		}
	}
	return ids
}
