package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/mikey/guild-sentinel/internal/utils"
)

// maxNotificationLength is the largest description a log channel accepts
const maxNotificationLength = 4096

// ActionExecutor applies moderation actions to the platform. Every operation
// runs inside its own failure boundary: failures are logged, counted and
// returned, and the caller carries on with the rest of its sequence.
type ActionExecutor struct {
	platform      Platform
	notifier      Notifier
	events        EventSink
	logger        *zap.Logger
	limiter       *rate.Limiter
	textProcessor *utils.TextProcessor
	muteRoles     *xsync.MapOf[string, string]
}

// NewActionExecutor creates a new action executor. A nil limiter disables
// outbound throttling.
func NewActionExecutor(
	platform Platform,
	notifier Notifier,
	events EventSink,
	logger *zap.Logger,
	limiter *rate.Limiter,
	textProcessor *utils.TextProcessor,
) *ActionExecutor {
	return &ActionExecutor{
		platform:      platform,
		notifier:      notifier,
		events:        events,
		logger:        logger,
		limiter:       limiter,
		textProcessor: textProcessor,
		muteRoles:     xsync.NewMapOf[string, string](),
	}
}

// attempt runs fn inside a failure boundary
func (e *ActionExecutor) attempt(ctx context.Context, op string, fields []zap.Field, fn func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s panicked: %v", ErrPlatform, op, r)
		}
		if err != nil {
			actionFailures.WithLabelValues(op).Inc()
			e.logger.Warn("Moderation action failed",
				append(fields, zap.String("op", op), zap.Error(err))...)
		}
	}()

	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("throttle wait: %w", err)
		}
	}
	return fn(ctx)
}

// LockChannels denies send/react for the default role on every text channel.
// It returns the default role and the channels that were actually changed.
func (e *ActionExecutor) LockChannels(ctx context.Context, guildID string) (string, []string) {
	fields := []zap.Field{zap.String("guild_id", guildID)}

	var roleID string
	if err := e.attempt(ctx, "default_role", fields, func(ctx context.Context) error {
		var err error
		roleID, err = e.platform.DefaultRoleID(ctx, guildID)
		return err
	}); err != nil {
		return "", nil
	}

	channels := e.textChannels(ctx, guildID)
	locked := make([]string, 0, len(channels))
	for _, channelID := range channels {
		err := e.attempt(ctx, "lock_channel", append(fields, zap.String("channel_id", channelID)), func(ctx context.Context) error {
			return e.platform.SetChannelRolePermission(ctx, channelID, roleID, LockedPermission)
		})
		if err == nil {
			locked = append(locked, channelID)
		}
	}
	return roleID, locked
}

// UnlockChannels reverts the overrides set by LockChannels to inherited and
// returns how many channels could not be reverted.
func (e *ActionExecutor) UnlockChannels(ctx context.Context, guildID, roleID string, channels []string) int {
	failed := 0
	for _, channelID := range channels {
		err := e.attempt(ctx, "unlock_channel", []zap.Field{
			zap.String("guild_id", guildID),
			zap.String("channel_id", channelID),
		}, func(ctx context.Context) error {
			return e.platform.SetChannelRolePermission(ctx, channelID, roleID, InheritedPermission)
		})
		if err != nil {
			failed++
		}
	}
	return failed
}

// EnsureMuteRole returns the guild's mute role, creating it with deny
// overrides on every text channel when it does not exist yet.
func (e *ActionExecutor) EnsureMuteRole(ctx context.Context, guildID, name string) (string, error) {
	if roleID, ok := e.muteRoles.Load(guildID); ok {
		return roleID, nil
	}

	fields := []zap.Field{zap.String("guild_id", guildID), zap.String("role", name)}

	var roleID string
	err := e.attempt(ctx, "find_role", fields, func(ctx context.Context) error {
		var err error
		roleID, err = e.platform.FindRole(ctx, guildID, name)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil {
		return "", err
	}

	if roleID == "" {
		err = e.attempt(ctx, "create_role", fields, func(ctx context.Context) error {
			var err error
			roleID, err = e.platform.CreateRole(ctx, guildID, name, LockedPermission)
			return err
		})
		if err != nil {
			return "", err
		}
		for _, channelID := range e.textChannels(ctx, guildID) {
			_ = e.attempt(ctx, "mute_role_overwrite", append(fields, zap.String("channel_id", channelID)), func(ctx context.Context) error {
				return e.platform.SetChannelRolePermission(ctx, channelID, roleID, LockedPermission)
			})
		}
		e.logger.Info("Created mute role", append(fields, zap.String("role_id", roleID))...)
	}

	e.muteRoles.Store(guildID, roleID)
	return roleID, nil
}

// MuteRoleID returns the cached mute role without creating one
func (e *ActionExecutor) MuteRoleID(ctx context.Context, guildID, name string) (string, bool) {
	if roleID, ok := e.muteRoles.Load(guildID); ok {
		return roleID, true
	}
	var roleID string
	err := e.attempt(ctx, "find_role", []zap.Field{zap.String("guild_id", guildID)}, func(ctx context.Context) error {
		var err error
		roleID, err = e.platform.FindRole(ctx, guildID, name)
		if errors.Is(err, ErrNotFound) {
			return nil
		}
		return err
	})
	if err != nil || roleID == "" {
		return "", false
	}
	e.muteRoles.Store(guildID, roleID)
	return roleID, true
}

func (e *ActionExecutor) AssignRole(ctx context.Context, guildID, memberID, roleID string) error {
	return e.attempt(ctx, "assign_role", memberFields(guildID, memberID), func(ctx context.Context) error {
		return e.platform.AssignRole(ctx, guildID, memberID, roleID)
	})
}

func (e *ActionExecutor) RemoveRole(ctx context.Context, guildID, memberID, roleID string) error {
	return e.attempt(ctx, "remove_role", memberFields(guildID, memberID), func(ctx context.Context) error {
		return e.platform.RemoveRole(ctx, guildID, memberID, roleID)
	})
}

func (e *ActionExecutor) ApplyTimeout(ctx context.Context, guildID, memberID string, until time.Time) error {
	return e.attempt(ctx, "apply_timeout", memberFields(guildID, memberID), func(ctx context.Context) error {
		return e.platform.ApplyTimedRestriction(ctx, guildID, memberID, &until)
	})
}

func (e *ActionExecutor) ClearTimeout(ctx context.Context, guildID, memberID string) error {
	return e.attempt(ctx, "clear_timeout", memberFields(guildID, memberID), func(ctx context.Context) error {
		return e.platform.ApplyTimedRestriction(ctx, guildID, memberID, nil)
	})
}

func (e *ActionExecutor) Kick(ctx context.Context, guildID, memberID string) error {
	return e.attempt(ctx, "kick", memberFields(guildID, memberID), func(ctx context.Context) error {
		return e.platform.RemoveMember(ctx, guildID, memberID)
	})
}

func (e *ActionExecutor) Ban(ctx context.Context, guildID, memberID string) error {
	return e.attempt(ctx, "ban", memberFields(guildID, memberID), func(ctx context.Context) error {
		return e.platform.PermanentlyRemoveMember(ctx, guildID, memberID)
	})
}

func (e *ActionExecutor) DeleteMessage(ctx context.Context, guildID, channelID, messageID string) error {
	return e.attempt(ctx, "delete_message", []zap.Field{
		zap.String("guild_id", guildID),
		zap.String("channel_id", channelID),
		zap.String("message_id", messageID),
	}, func(ctx context.Context) error {
		return e.platform.DeleteMessage(ctx, channelID, messageID)
	})
}

// Notify posts to a moderation log channel. Guilds without a configured
// channel are skipped silently.
func (e *ActionExecutor) Notify(ctx context.Context, guildID, channelID string, n Notification) error {
	if channelID == "" || e.notifier == nil {
		return nil
	}
	if n.Footer == "" {
		n.Footer = "Guild ID: " + guildID
	}
	if n.Timestamp.IsZero() {
		n.Timestamp = time.Now().UTC()
	}
	if e.textProcessor != nil {
		n.Description = e.textProcessor.ProcessText(n.Description, maxNotificationLength)
	}
	return e.attempt(ctx, "notify", []zap.Field{
		zap.String("guild_id", guildID),
		zap.String("channel_id", channelID),
	}, func(ctx context.Context) error {
		return e.notifier.Notify(ctx, guildID, channelID, n)
	})
}

// RecordEvent appends to the security event log. A storage failure is
// logged and otherwise ignored.
func (e *ActionExecutor) RecordEvent(ctx context.Context, event *SecurityEvent) {
	if e.events == nil {
		return
	}
	if err := e.events.RecordEvent(ctx, event); err != nil {
		persistenceFailures.WithLabelValues("record_event").Inc()
		e.logger.Error("Failed to record security event",
			zap.String("guild_id", event.GuildID),
			zap.String("event_type", event.EventType),
			zap.Error(err))
		return
	}
	e.logger.Info("Security event",
		zap.String("guild_id", event.GuildID),
		zap.String("event_type", event.EventType),
		zap.String("subject_id", event.SubjectID),
		zap.String("details", event.Details))
}

func (e *ActionExecutor) textChannels(ctx context.Context, guildID string) []string {
	var channels []string
	_ = e.attempt(ctx, "list_channels", []zap.Field{zap.String("guild_id", guildID)}, func(ctx context.Context) error {
		var err error
		channels, err = e.platform.TextChannels(ctx, guildID)
		return err
	})
	return channels
}

func memberFields(guildID, memberID string) []zap.Field {
	return []zap.Field{zap.String("guild_id", guildID), zap.String("member_id", memberID)}
}
