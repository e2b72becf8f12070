package whitelist

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"

	"github.com/mikey/guild-sentinel/internal/core"
)

type stubSettings struct {
	values map[string]string
	err    error
}

func (s stubSettings) GetSetting(ctx context.Context, guildID, key string) (string, bool, error) {
	if s.err != nil {
		return "", false, s.err
	}
	v, ok := s.values[guildID+"/"+key]
	return v, ok, nil
}

func TestIsExempt(t *testing.T) {
	assert := assert.New(t)

	settings := stubSettings{values: map[string]string{
		"g1/" + core.SettingWhitelistUsers: "111, <@222>\n<@!333>",
	}}
	c := NewChecker([]string{" 999 ", ""}, settings, zap.NewNop())
	ctx := context.Background()

	assert.True(c.IsExempt(ctx, "g1", "999"))
	assert.True(c.IsExempt(ctx, "g2", "999"))
	assert.True(c.IsExempt(ctx, "g1", "111"))
	assert.True(c.IsExempt(ctx, "g1", "222"))
	assert.True(c.IsExempt(ctx, "g1", "333"))
	assert.False(c.IsExempt(ctx, "g2", "111"))
	assert.False(c.IsExempt(ctx, "g1", "444"))
}

func TestIsExemptSettingsFailure(t *testing.T) {
	c := NewChecker([]string{"999"}, stubSettings{err: errors.New("down")}, zap.NewNop())

	assert.False(t, c.IsExempt(context.Background(), "g1", "111"))
	assert.True(t, c.IsExempt(context.Background(), "g1", "999"))
}

func TestIsExemptWithoutSettings(t *testing.T) {
	c := NewChecker(nil, nil, nil)
	assert.False(t, c.IsExempt(context.Background(), "g1", "111"))
}

func TestParseIDs(t *testing.T) {
	assert.Equal(t, []string{"1", "2", "3", "4"}, ParseIDs(" 1,2 <@3>,\t<@!4> "))
	assert.Empty(t, ParseIDs(" , "))
}
