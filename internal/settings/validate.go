package settings

import (
	"fmt"
	"strings"

	"github.com/mikey/guild-sentinel/internal/core"
)

type kind int

const (
	kindString kind = iota
	kindInt
	kindDuration
	kindSwitch
	kindAction
)

var known = map[string]kind{
	core.SettingRaidProtection:      kindSwitch,
	core.SettingRaidThreshold:       kindInt,
	core.SettingRaidAction:          kindAction,
	core.SettingRaidAlertCooldown:   kindDuration,
	core.SettingRaidEndTimeout:      kindDuration,
	core.SettingRaidTimeoutDuration: kindDuration,
	core.SettingRaidLogChannel:      kindString,
	core.SettingAntiSpam:            kindSwitch,
	core.SettingSpamThreshold:       kindInt,
	core.SettingSpamCooldown:        kindDuration,
	core.SettingTimeoutDuration:     kindDuration,
	core.SettingMaxWarnings:         kindInt,
	core.SettingWarningExpiry:       kindDuration,
	core.SettingSpamLogChannel:      kindString,
	core.SettingMuteRoleName:        kindString,
	core.SettingWhitelistUsers:      kindString,
}

// Validate rejects unknown keys and values the engine would not accept
func Validate(key, value string) error {
	k, ok := known[key]
	if !ok {
		return fmt.Errorf("%w: unknown setting %q", core.ErrInvalidSetting, key)
	}
	value = strings.TrimSpace(value)

	var err error
	switch k {
	case kindInt:
		_, err = core.ParsePositiveInt(value)
	case kindDuration:
		_, err = core.ParseSettingDuration(value)
	case kindSwitch:
		_, err = core.ParseSwitch(value)
	case kindAction:
		if !core.RaidAction(strings.ToLower(value)).Valid() {
			err = fmt.Errorf("%w: unknown raid action %q", core.ErrInvalidSetting, value)
		}
	}
	if err != nil {
		return fmt.Errorf("setting %s: %w", key, err)
	}
	return nil
}
