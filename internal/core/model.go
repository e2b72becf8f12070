package core

import (
	"time"
)

// MemberJoined is delivered by the transport when a member joins a guild
type MemberJoined struct {
	GuildID     string
	MemberID    string
	IsAutomated bool
}

// MessageCreated is delivered by the transport when a message is posted in a guild
type MessageCreated struct {
	GuildID     string
	ChannelID   string
	AuthorID    string
	MessageID   string
	IsAutomated bool
}

// SpamState is the persisted escalation state of one user in one guild
type SpamState struct {
	GuildID       string
	UserID        string
	WarningCount  int
	LastWarning   *time.Time
	TimeoutExpiry *time.Time
}

// RaidPhase is the lifecycle phase of a guild's raid response
type RaidPhase int

const (
	PhaseCalm RaidPhase = iota
	PhaseLockdown
	PhaseCooldown
)

func (p RaidPhase) String() string {
	switch p {
	case PhaseLockdown:
		return "lockdown"
	case PhaseCooldown:
		return "cooldown"
	default:
		return "calm"
	}
}

// RaidAction selects the response applied to the member that triggered a lockdown
type RaidAction string

const (
	RaidActionMute    RaidAction = "mute"
	RaidActionTimeout RaidAction = "timeout"
	RaidActionKick    RaidAction = "kick"
	RaidActionBan     RaidAction = "ban"
)

// Valid reports whether the action is one of the known responses
func (a RaidAction) Valid() bool {
	switch a {
	case RaidActionMute, RaidActionTimeout, RaidActionKick, RaidActionBan:
		return true
	}
	return false
}

// Security event types written to the append-only event sink
const (
	EventRaidDetected   = "raid_detected"
	EventRaidAction     = "raid_action"
	EventRaidEnded      = "raid_ended"
	EventRaidUntimed    = "raid_timeout_expired"
	EventSpamDetected   = "spam_detected"
	EventSpamWarning    = "spam_warning"
	EventSpamTimeout    = "spam_timeout"
	EventSpamUnenforced = "spam_unenforced"
)

// SecurityEvent is a single row of the security event log
type SecurityEvent struct {
	// ID is assigned by the sink when left empty
	ID         string
	GuildID    string
	EventType  string
	SubjectID  string
	Details    string
	DetectedAt time.Time
}

// PermissionState is the value of a single channel permission override
type PermissionState int

const (
	PermissionInherit PermissionState = iota
	PermissionAllow
	PermissionDeny
)

// ChannelPermission is the send/react override a role has on a channel
type ChannelPermission struct {
	Send  PermissionState
	React PermissionState
}

// Inherited reports whether the override carries no explicit state
func (p ChannelPermission) Inherited() bool {
	return p.Send == PermissionInherit && p.React == PermissionInherit
}

var (
	// LockedPermission denies posting and reacting
	LockedPermission = ChannelPermission{Send: PermissionDeny, React: PermissionDeny}
	// InheritedPermission removes the override entirely
	InheritedPermission = ChannelPermission{}
)

// Notification colours used by the moderation log
const (
	ColorAlert   = 0xFF0000
	ColorWarning = 0xFFFF00
	ColorResolve = 0x00FF00
)

// Notification is the structured content sent to a moderation log channel
type Notification struct {
	Title       string
	Description string
	Color       int
	Footer      string
	Timestamp   time.Time
}
