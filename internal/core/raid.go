package core

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"
	"go.uber.org/zap"
)

// raidState is the per-guild raid lifecycle record. It is only touched while
// the guild's key lock is held.
type raidState struct {
	phase     RaidPhase
	lastAlert time.Time
	lastJoin  time.Time
	cycleID   string

	// channels whose default-role override was set by the current lockdown
	lockRoleID     string
	lockedChannels []string

	// believed-state mirrors of what the raid response applied
	muted    map[string]struct{}
	timeouts map[string]time.Time
}

func newRaidState() *raidState {
	return &raidState{
		muted:    make(map[string]struct{}),
		timeouts: make(map[string]time.Time),
	}
}

// RaidController drives the Calm → Lockdown → Cooldown → Calm lifecycle of
// every guild from its join rate.
type RaidController struct {
	executor *ActionExecutor
	settings SettingsProvider
	exempt   ExemptionChecker
	logger   *zap.Logger

	windows *RateWindow
	horizon time.Duration
	locks   *KeyedMutex
	states  *xsync.MapOf[string, *raidState]
	now     func() time.Time
}

// NewRaidController creates a raid controller
func NewRaidController(
	executor *ActionExecutor,
	settings SettingsProvider,
	exempt ExemptionChecker,
	logger *zap.Logger,
	opts Options,
) *RaidController {
	opts = opts.withDefaults()
	return &RaidController{
		executor: executor,
		settings: settings,
		exempt:   exempt,
		logger:   logger,
		windows:  NewRateWindow(opts.RaidWindowCapacity),
		horizon:  opts.RaidWindow,
		locks:    opts.Locks,
		states:   xsync.NewMapOf[string, *raidState](),
		now:      opts.Clock,
	}
}

// HandleMemberJoined records a join and starts a lockdown when the guild's
// join rate crosses its threshold outside the alert cooldown.
func (c *RaidController) HandleMemberJoined(ctx context.Context, ev MemberJoined) {
	if ev.IsAutomated {
		return
	}

	settings := LoadGuildSettings(ctx, c.settings, ev.GuildID, c.logger)
	if !settings.RaidProtection {
		return
	}

	unlock := c.locks.Lock(guildKey(ev.GuildID))
	defer unlock()

	state, _ := c.states.LoadOrCompute(ev.GuildID, newRaidState)
	now := c.now()

	count := c.windows.Record(ev.GuildID, now, c.horizon)
	state.lastJoin = now

	if count <= settings.RaidThreshold {
		return
	}
	if now.Sub(state.lastAlert) <= settings.RaidAlertCooldown {
		c.logger.Debug("Raid alert suppressed by cooldown",
			zap.String("guild_id", ev.GuildID),
			zap.Int("joins", count))
		return
	}

	c.lockdown(ctx, ev, state, settings, count, now)
}

func (c *RaidController) lockdown(ctx context.Context, ev MemberJoined, state *raidState, settings GuildSettings, count int, now time.Time) {
	// phase only moves forward; a burst during cooldown is answered
	// within the current cycle
	if state.phase == PhaseCalm {
		state.cycleID = uuid.NewString()
		state.phase = PhaseLockdown
		raidTransitions.WithLabelValues(PhaseLockdown.String()).Inc()
	}
	state.lastAlert = now

	c.logger.Warn("Raid detected",
		zap.String("guild_id", ev.GuildID),
		zap.String("cycle_id", state.cycleID),
		zap.Int("joins", count),
		zap.String("action", string(settings.RaidAction)))

	_ = c.executor.Notify(ctx, ev.GuildID, settings.RaidLogChannel, Notification{
		Title:       "🚨 Raid Detected!",
		Description: fmt.Sprintf("%d joins in last %s.\nAction: %s", count, c.horizon, settings.RaidAction),
		Color:       ColorAlert,
		Timestamp:   now,
	})
	c.executor.RecordEvent(ctx, &SecurityEvent{
		GuildID:    ev.GuildID,
		EventType:  EventRaidDetected,
		SubjectID:  ev.MemberID,
		Details:    fmt.Sprintf("%d joins in %s (cycle %s)", count, c.horizon, state.cycleID),
		DetectedAt: now,
	})

	roleID, locked := c.executor.LockChannels(ctx, ev.GuildID)
	if roleID != "" {
		state.lockRoleID = roleID
		state.lockedChannels = mergeChannels(state.lockedChannels, locked)
	}

	outcome := c.respond(ctx, ev, state, settings, now)
	c.executor.RecordEvent(ctx, &SecurityEvent{
		GuildID:    ev.GuildID,
		EventType:  EventRaidAction,
		SubjectID:  ev.MemberID,
		Details:    fmt.Sprintf("action=%s outcome=%s", settings.RaidAction, outcome),
		DetectedAt: now,
	})
}

// respond applies the configured action to the member that triggered the
// lockdown and reports the outcome.
func (c *RaidController) respond(ctx context.Context, ev MemberJoined, state *raidState, settings GuildSettings, now time.Time) string {
	if c.exempt != nil && c.exempt.IsExempt(ctx, ev.GuildID, ev.MemberID) {
		return "skipped: whitelisted"
	}

	var err error
	var title, description string
	mention := fmt.Sprintf("<@%s>", ev.MemberID)

	switch settings.RaidAction {
	case RaidActionMute:
		var roleID string
		roleID, err = c.executor.EnsureMuteRole(ctx, ev.GuildID, settings.MuteRoleName)
		if err == nil {
			err = c.executor.AssignRole(ctx, ev.GuildID, ev.MemberID, roleID)
		}
		if err == nil {
			state.muted[ev.MemberID] = struct{}{}
		}
		title, description = "Member Muted", mention+" muted during raid."
	case RaidActionTimeout:
		until := now.Add(settings.RaidTimeoutDuration)
		err = c.executor.ApplyTimeout(ctx, ev.GuildID, ev.MemberID, until)
		if err == nil {
			state.timeouts[ev.MemberID] = until
		}
		title, description = "Member Timed Out", fmt.Sprintf("%s timed out for %s.", mention, settings.RaidTimeoutDuration)
	case RaidActionKick:
		err = c.executor.Kick(ctx, ev.GuildID, ev.MemberID)
		title, description = "Member Kicked", mention+" kicked during raid."
	case RaidActionBan:
		err = c.executor.Ban(ctx, ev.GuildID, ev.MemberID)
		title, description = "Member Banned", mention+" banned during raid."
	default:
		err = fmt.Errorf("%w: unknown raid action %q", ErrInvalidSetting, settings.RaidAction)
	}

	if err != nil {
		return "failed: " + err.Error()
	}
	_ = c.executor.Notify(ctx, ev.GuildID, settings.RaidLogChannel, Notification{
		Title:       title,
		Description: description,
		Color:       ColorAlert,
		Timestamp:   now,
	})
	return "ok"
}

// Reconcile prunes join windows, moves quieted lockdowns to cooldown,
// restores guilds whose raid has ended and lifts expired raid timeouts.
func (c *RaidController) Reconcile(ctx context.Context, now time.Time) {
	guilds := make([]string, 0, c.states.Size())
	c.states.Range(func(guildID string, _ *raidState) bool {
		guilds = append(guilds, guildID)
		return true
	})

	for _, guildID := range guilds {
		if ctx.Err() != nil {
			return
		}
		c.reconcileGuild(ctx, guildID, now)
	}
}

func (c *RaidController) reconcileGuild(ctx context.Context, guildID string, now time.Time) {
	unlock := c.locks.Lock(guildKey(guildID))
	defer unlock()

	state, ok := c.states.Load(guildID)
	if !ok {
		return
	}

	remaining := c.windows.Prune(guildID, now)
	settings := LoadGuildSettings(ctx, c.settings, guildID, c.logger)

	if state.phase == PhaseLockdown && remaining <= settings.RaidThreshold {
		state.phase = PhaseCooldown
		raidTransitions.WithLabelValues(PhaseCooldown.String()).Inc()
		c.logger.Info("Raid cooling down",
			zap.String("guild_id", guildID),
			zap.String("cycle_id", state.cycleID))
	}

	if state.phase != PhaseCalm && now.Sub(state.lastJoin) > settings.RaidEndTimeout {
		c.restore(ctx, guildID, state, settings, now)
	}

	c.expireTimeouts(ctx, guildID, state, now)
}

// restore reverts everything the lockdown changed. The believed-state
// mirrors are cleared even when some reversals fail.
func (c *RaidController) restore(ctx context.Context, guildID string, state *raidState, settings GuildSettings, now time.Time) {
	failures := c.executor.UnlockChannels(ctx, guildID, state.lockRoleID, state.lockedChannels)
	restored := len(state.lockedChannels) - failures

	unmuted := 0
	if len(state.muted) > 0 {
		if roleID, ok := c.executor.MuteRoleID(ctx, guildID, settings.MuteRoleName); ok {
			for memberID := range state.muted {
				if err := c.executor.RemoveRole(ctx, guildID, memberID, roleID); err != nil {
					failures++
					continue
				}
				unmuted++
			}
		} else {
			failures += len(state.muted)
		}
	}

	cycleID := state.cycleID
	c.windows.Clear(guildID)
	state.muted = make(map[string]struct{})
	state.lockedChannels = nil
	state.lockRoleID = ""
	state.cycleID = ""
	state.phase = PhaseCalm
	raidTransitions.WithLabelValues(PhaseCalm.String()).Inc()

	c.logger.Info("Guild restored after raid",
		zap.String("guild_id", guildID),
		zap.String("cycle_id", cycleID),
		zap.Int("channels_restored", restored),
		zap.Int("members_unmuted", unmuted),
		zap.Int("failures", failures))

	_ = c.executor.Notify(ctx, guildID, settings.RaidLogChannel, Notification{
		Title:       "Raid Ended",
		Description: "Guild restored after raid.",
		Color:       ColorResolve,
		Timestamp:   now,
	})
	c.executor.RecordEvent(ctx, &SecurityEvent{
		GuildID:    guildID,
		EventType:  EventRaidEnded,
		Details:    fmt.Sprintf("cycle %s: %d channels restored, %d members unmuted, %d failures", cycleID, restored, unmuted, failures),
		DetectedAt: now,
	})
}

// expireTimeouts lifts raid timeouts whose expiry has passed. The roster
// entry is dropped whether or not the lift succeeded.
func (c *RaidController) expireTimeouts(ctx context.Context, guildID string, state *raidState, now time.Time) {
	for memberID, until := range state.timeouts {
		if until.After(now) {
			continue
		}
		outcome := "ok"
		if err := c.executor.ClearTimeout(ctx, guildID, memberID); err != nil {
			outcome = "failed: " + err.Error()
		}
		delete(state.timeouts, memberID)
		c.executor.RecordEvent(ctx, &SecurityEvent{
			GuildID:    guildID,
			EventType:  EventRaidUntimed,
			SubjectID:  memberID,
			Details:    "outcome=" + outcome,
			DetectedAt: now,
		})
	}
}

// Phase returns the current lifecycle phase of a guild
func (c *RaidController) Phase(guildID string) RaidPhase {
	unlock := c.locks.Lock(guildKey(guildID))
	defer unlock()

	if state, ok := c.states.Load(guildID); ok {
		return state.phase
	}
	return PhaseCalm
}

// MutedMembers returns the guild's mute roster, sorted
func (c *RaidController) MutedMembers(guildID string) []string {
	unlock := c.locks.Lock(guildKey(guildID))
	defer unlock()

	state, ok := c.states.Load(guildID)
	if !ok {
		return nil
	}
	members := make([]string, 0, len(state.muted))
	for memberID := range state.muted {
		members = append(members, memberID)
	}
	sort.Strings(members)
	return members
}

// TimedOutMembers returns a copy of the guild's timeout roster
func (c *RaidController) TimedOutMembers(guildID string) map[string]time.Time {
	unlock := c.locks.Lock(guildKey(guildID))
	defer unlock()

	out := make(map[string]time.Time)
	if state, ok := c.states.Load(guildID); ok {
		for memberID, until := range state.timeouts {
			out[memberID] = until
		}
	}
	return out
}

// LockedChannels returns the channels locked by the current raid cycle
func (c *RaidController) LockedChannels(guildID string) []string {
	unlock := c.locks.Lock(guildKey(guildID))
	defer unlock()

	if state, ok := c.states.Load(guildID); ok {
		return append([]string(nil), state.lockedChannels...)
	}
	return nil
}

func mergeChannels(existing, added []string) []string {
	seen := make(map[string]struct{}, len(existing))
	for _, id := range existing {
		seen[id] = struct{}{}
	}
	for _, id := range added {
		if _, ok := seen[id]; !ok {
			existing = append(existing, id)
			seen[id] = struct{}{}
		}
	}
	return existing
}
