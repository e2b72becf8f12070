package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikey/guild-sentinel/internal/core"
)

var testEpoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

// runStoreContract exercises the behaviour every backend shares
func runStoreContract(t *testing.T, s Store) {
	t.Run("missing spam state is zero", func(t *testing.T) {
		state, err := s.ReadSpamState(context.Background(), "g1", "nobody")
		require.NoError(t, err)
		assert.Equal(t, &core.SpamState{GuildID: "g1", UserID: "nobody"}, state)
	})

	t.Run("spam state round trip", func(t *testing.T) {
		ctx := context.Background()
		warned := testEpoch.Add(123456789 * time.Nanosecond)
		state := &core.SpamState{GuildID: "g1", UserID: "u1", WarningCount: 1, LastWarning: &warned}
		require.NoError(t, s.UpsertSpamState(ctx, state))

		got, err := s.ReadSpamState(ctx, "g1", "u1")
		require.NoError(t, err)
		assert.Equal(t, 1, got.WarningCount)
		require.NotNil(t, got.LastWarning)
		assert.True(t, got.LastWarning.Equal(warned))
		assert.Nil(t, got.TimeoutExpiry)

		until := testEpoch.Add(5 * time.Minute)
		state = &core.SpamState{GuildID: "g1", UserID: "u1", TimeoutExpiry: &until}
		require.NoError(t, s.UpsertSpamState(ctx, state))

		got, err = s.ReadSpamState(ctx, "g1", "u1")
		require.NoError(t, err)
		assert.Equal(t, 0, got.WarningCount)
		assert.Nil(t, got.LastWarning)
		require.NotNil(t, got.TimeoutExpiry)
		assert.True(t, got.TimeoutExpiry.Equal(until))
	})

	t.Run("stored state is not aliased", func(t *testing.T) {
		ctx := context.Background()
		warned := testEpoch
		state := &core.SpamState{GuildID: "g1", UserID: "alias", WarningCount: 1, LastWarning: &warned}
		require.NoError(t, s.UpsertSpamState(ctx, state))

		state.WarningCount = 9
		*state.LastWarning = testEpoch.Add(time.Hour)

		got, err := s.ReadSpamState(ctx, "g1", "alias")
		require.NoError(t, err)
		assert.Equal(t, 1, got.WarningCount)
		assert.True(t, got.LastWarning.Equal(testEpoch))
	})

	t.Run("expired timeouts", func(t *testing.T) {
		ctx := context.Background()
		past := testEpoch.Add(-time.Minute)
		exact := testEpoch
		future := testEpoch.Add(time.Minute)
		require.NoError(t, s.UpsertSpamState(ctx, &core.SpamState{GuildID: "g2", UserID: "past", TimeoutExpiry: &past}))
		require.NoError(t, s.UpsertSpamState(ctx, &core.SpamState{GuildID: "g2", UserID: "exact", TimeoutExpiry: &exact}))
		require.NoError(t, s.UpsertSpamState(ctx, &core.SpamState{GuildID: "g2", UserID: "future", TimeoutExpiry: &future}))

		expired, err := s.ExpiredTimeouts(ctx, testEpoch)
		require.NoError(t, err)

		var users []string
		for _, st := range expired {
			if st.GuildID == "g2" {
				users = append(users, st.UserID)
			}
		}
		assert.ElementsMatch(t, []string{"past", "exact"}, users)

		// clearing the expiry drops it from the listing
		require.NoError(t, s.UpsertSpamState(ctx, &core.SpamState{GuildID: "g2", UserID: "past"}))
		expired, err = s.ExpiredTimeouts(ctx, testEpoch)
		require.NoError(t, err)
		for _, st := range expired {
			assert.NotEqual(t, "past", st.UserID)
		}
	})

	t.Run("events newest first", func(t *testing.T) {
		ctx := context.Background()
		for i := 0; i < 5; i++ {
			require.NoError(t, s.RecordEvent(ctx, &core.SecurityEvent{
				GuildID:    "g3",
				EventType:  core.EventSpamWarning,
				SubjectID:  fmt.Sprintf("u%d", i),
				Details:    fmt.Sprintf("warning %d/2", i),
				DetectedAt: testEpoch.Add(time.Duration(i) * time.Second),
			}))
		}
		require.NoError(t, s.RecordEvent(ctx, &core.SecurityEvent{GuildID: "other", EventType: core.EventRaidDetected}))

		events, err := s.RecentEvents(ctx, "g3", 3)
		require.NoError(t, err)
		require.Len(t, events, 3)
		assert.Equal(t, "u4", events[0].SubjectID)
		assert.Equal(t, "u2", events[2].SubjectID)
		assert.True(t, events[0].DetectedAt.Equal(testEpoch.Add(4*time.Second)))
		assert.NotEmpty(t, events[0].ID)
		assert.Equal(t, core.EventSpamWarning, events[0].EventType)

		all, err := s.RecentEvents(ctx, "g3", 0)
		require.NoError(t, err)
		assert.Len(t, all, 5)
	})

	t.Run("record event assigns id", func(t *testing.T) {
		event := &core.SecurityEvent{GuildID: "g4", EventType: core.EventRaidEnded}
		require.NoError(t, s.RecordEvent(context.Background(), event))
		assert.NotEmpty(t, event.ID)
		assert.False(t, event.DetectedAt.IsZero())
	})

	t.Run("settings", func(t *testing.T) {
		ctx := context.Background()
		_, ok, err := s.GetSetting(ctx, "g5", core.SettingSpamThreshold)
		require.NoError(t, err)
		assert.False(t, ok)

		require.NoError(t, s.SetSetting(ctx, "g5", core.SettingSpamThreshold, "4"))
		require.NoError(t, s.SetSetting(ctx, "g5", core.SettingSpamThreshold, "6"))

		val, ok, err := s.GetSetting(ctx, "g5", core.SettingSpamThreshold)
		require.NoError(t, err)
		assert.True(t, ok)
		assert.Equal(t, "6", val)

		_, ok, err = s.GetSetting(ctx, "g6", core.SettingSpamThreshold)
		require.NoError(t, err)
		assert.False(t, ok)
	})
}
