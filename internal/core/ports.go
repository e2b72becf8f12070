package core

import (
	"context"
	"time"
)

// Platform is the outbound side of the chat transport. Every call is
// independently fallible.
type Platform interface {
	// TextChannels lists the text channels of a guild
	TextChannels(ctx context.Context, guildID string) ([]string, error)

	// DefaultRoleID returns the role every member implicitly holds
	DefaultRoleID(ctx context.Context, guildID string) (string, error)

	// FindRole looks up a role by name, returning ErrNotFound when absent
	FindRole(ctx context.Context, guildID, name string) (string, error)

	// CreateRole creates a role with the given channel permission applied guild-wide
	CreateRole(ctx context.Context, guildID, name string, perm ChannelPermission) (string, error)

	SetChannelRolePermission(ctx context.Context, channelID, roleID string, perm ChannelPermission) error
	AssignRole(ctx context.Context, guildID, memberID, roleID string) error
	RemoveRole(ctx context.Context, guildID, memberID, roleID string) error

	// ApplyTimedRestriction restricts a member until the given time; nil clears it
	ApplyTimedRestriction(ctx context.Context, guildID, memberID string, until *time.Time) error

	RemoveMember(ctx context.Context, guildID, memberID string) error
	PermanentlyRemoveMember(ctx context.Context, guildID, memberID string) error
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// Notifier delivers moderation log notifications
type Notifier interface {
	Notify(ctx context.Context, guildID, channelID string, n Notification) error
}

// SpamStateRepository persists per-user escalation state
type SpamStateRepository interface {
	// ReadSpamState returns the stored state, or a zero state when absent
	ReadSpamState(ctx context.Context, guildID, userID string) (*SpamState, error)

	// UpsertSpamState stores the state, replacing any previous value
	UpsertSpamState(ctx context.Context, state *SpamState) error

	// ExpiredTimeouts lists states whose timeout expiry is at or before now
	ExpiredTimeouts(ctx context.Context, now time.Time) ([]*SpamState, error)
}

// EventSink is the append-only security event log
type EventSink interface {
	RecordEvent(ctx context.Context, event *SecurityEvent) error

	// RecentEvents returns the newest events of a guild, newest first
	RecentEvents(ctx context.Context, guildID string, limit int) ([]*SecurityEvent, error)
}

// SettingsProvider exposes the string-typed guild configuration
type SettingsProvider interface {
	// GetSetting returns the raw value and whether it is set
	GetSetting(ctx context.Context, guildID, key string) (string, bool, error)
}

// ExemptionChecker decides whether a user is excluded from detection
type ExemptionChecker interface {
	IsExempt(ctx context.Context, guildID, userID string) bool
}
