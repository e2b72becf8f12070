package core

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// SpamController drives the per-user warn → re-warn → timeout escalation
// from message bursts.
type SpamController struct {
	executor *ActionExecutor
	repo     SpamStateRepository
	settings SettingsProvider
	exempt   ExemptionChecker
	logger   *zap.Logger

	windows *RateWindow
	locks   *KeyedMutex
	now     func() time.Time
}

// NewSpamController creates a spam controller
func NewSpamController(
	executor *ActionExecutor,
	repo SpamStateRepository,
	settings SettingsProvider,
	exempt ExemptionChecker,
	logger *zap.Logger,
	opts Options,
) *SpamController {
	opts = opts.withDefaults()
	return &SpamController{
		executor: executor,
		repo:     repo,
		settings: settings,
		exempt:   exempt,
		logger:   logger,
		windows:  NewRateWindow(opts.SpamWindowCapacity),
		locks:    opts.Locks,
		now:      opts.Clock,
	}
}

// HandleMessageCreated records a message and escalates when the author's
// message rate crosses the guild's spam threshold.
func (c *SpamController) HandleMessageCreated(ctx context.Context, ev MessageCreated) {
	if ev.IsAutomated {
		return
	}
	if c.exempt != nil && c.exempt.IsExempt(ctx, ev.GuildID, ev.AuthorID) {
		return
	}

	settings := LoadGuildSettings(ctx, c.settings, ev.GuildID, c.logger)
	if !settings.AntiSpam {
		return
	}

	key := memberKey(ev.GuildID, ev.AuthorID)
	unlock := c.locks.Lock(key)
	defer unlock()

	now := c.now()
	count := c.windows.Record(key, now, settings.SpamCooldown)
	if count <= settings.SpamThreshold {
		return
	}

	// The burst is consumed; the next one accumulates from zero
	c.windows.Clear(key)
	spamEscalations.WithLabelValues("detected").Inc()

	_ = c.executor.DeleteMessage(ctx, ev.GuildID, ev.ChannelID, ev.MessageID)
	c.executor.RecordEvent(ctx, &SecurityEvent{
		GuildID:    ev.GuildID,
		EventType:  EventSpamDetected,
		SubjectID:  ev.AuthorID,
		Details:    fmt.Sprintf("%d messages in %s", count, settings.SpamCooldown),
		DetectedAt: now,
	})

	c.escalate(ctx, ev, settings, now)
}

func (c *SpamController) escalate(ctx context.Context, ev MessageCreated, settings GuildSettings, now time.Time) {
	fields := []zap.Field{zap.String("guild_id", ev.GuildID), zap.String("user_id", ev.AuthorID)}

	state, err := c.repo.ReadSpamState(ctx, ev.GuildID, ev.AuthorID)
	if err != nil {
		persistenceFailures.WithLabelValues("read_spam_state").Inc()
		c.logger.Error("Failed to load spam state, skipping escalation", append(fields, zap.Error(err))...)
		return
	}

	if state.TimeoutExpiry != nil {
		if state.TimeoutExpiry.After(now) {
			c.logger.Debug("Active timeout suppresses escalation",
				append(fields, zap.Time("timeout_expiry", *state.TimeoutExpiry))...)
			return
		}
		state.TimeoutExpiry = nil
	}

	if state.LastWarning != nil && now.Sub(*state.LastWarning) > settings.WarningExpiry {
		state.WarningCount = 0
	}
	state.WarningCount++

	mention := fmt.Sprintf("<@%s>", ev.AuthorID)

	if state.WarningCount < settings.MaxWarnings {
		state.LastWarning = &now
		if !c.persist(ctx, state, fields) {
			return
		}
		spamEscalations.WithLabelValues("warning").Inc()
		c.executor.RecordEvent(ctx, &SecurityEvent{
			GuildID:    ev.GuildID,
			EventType:  EventSpamWarning,
			SubjectID:  ev.AuthorID,
			Details:    fmt.Sprintf("warning %d/%d", state.WarningCount, settings.MaxWarnings),
			DetectedAt: now,
		})
		_ = c.executor.Notify(ctx, ev.GuildID, settings.SpamLogChannel, Notification{
			Title:       "Spam Warning",
			Description: fmt.Sprintf("%s has been warned for spam (%d/%d).", mention, state.WarningCount, settings.MaxWarnings),
			Color:       ColorWarning,
			Timestamp:   now,
		})
		return
	}

	// Warnings are reset whether or not the timeout can be enforced
	state.WarningCount = 0
	state.LastWarning = nil
	until := now.Add(settings.TimeoutDuration)

	if err := c.executor.ApplyTimeout(ctx, ev.GuildID, ev.AuthorID, until); err != nil {
		state.TimeoutExpiry = nil
		if !c.persist(ctx, state, fields) {
			return
		}
		spamEscalations.WithLabelValues("unenforced").Inc()
		c.executor.RecordEvent(ctx, &SecurityEvent{
			GuildID:    ev.GuildID,
			EventType:  EventSpamUnenforced,
			SubjectID:  ev.AuthorID,
			Details:    "timeout failed: " + err.Error(),
			DetectedAt: now,
		})
		_ = c.executor.Notify(ctx, ev.GuildID, settings.SpamLogChannel, Notification{
			Title:       "Spam Detected",
			Description: fmt.Sprintf("%s exceeded spam limit, but the timeout could not be applied.", mention),
			Color:       ColorAlert,
			Timestamp:   now,
		})
		return
	}

	state.TimeoutExpiry = &until
	if !c.persist(ctx, state, fields) {
		return
	}
	spamEscalations.WithLabelValues("timeout").Inc()
	c.executor.RecordEvent(ctx, &SecurityEvent{
		GuildID:    ev.GuildID,
		EventType:  EventSpamTimeout,
		SubjectID:  ev.AuthorID,
		Details:    fmt.Sprintf("timed out until %s", until.UTC().Format(time.RFC3339)),
		DetectedAt: now,
	})
	_ = c.executor.Notify(ctx, ev.GuildID, settings.SpamLogChannel, Notification{
		Title:       "User Timed Out for Spam",
		Description: fmt.Sprintf("%s has been timed out for %s due to repeated spam.", mention, settings.TimeoutDuration),
		Color:       ColorAlert,
		Timestamp:   now,
	})
}

func (c *SpamController) persist(ctx context.Context, state *SpamState, fields []zap.Field) bool {
	if err := c.repo.UpsertSpamState(ctx, state); err != nil {
		persistenceFailures.WithLabelValues("upsert_spam_state").Inc()
		c.logger.Error("Failed to persist spam state", append(fields, zap.Error(err))...)
		return false
	}
	return true
}

// Reconcile prunes idle message windows and clears persisted timeouts that
// have expired.
func (c *SpamController) Reconcile(ctx context.Context, now time.Time) {
	for _, key := range c.windows.Keys() {
		unlock := c.locks.Lock(key)
		c.windows.Prune(key, now)
		unlock()
	}

	expired, err := c.repo.ExpiredTimeouts(ctx, now)
	if err != nil {
		persistenceFailures.WithLabelValues("expired_timeouts").Inc()
		c.logger.Error("Failed to list expired spam timeouts", zap.Error(err))
		return
	}

	for _, candidate := range expired {
		if ctx.Err() != nil {
			return
		}
		c.clearExpired(ctx, candidate.GuildID, candidate.UserID, now)
	}
}

func (c *SpamController) clearExpired(ctx context.Context, guildID, userID string, now time.Time) {
	unlock := c.locks.Lock(memberKey(guildID, userID))
	defer unlock()

	fields := []zap.Field{zap.String("guild_id", guildID), zap.String("user_id", userID)}

	// Re-read under the lock, an offense may have changed it meanwhile
	state, err := c.repo.ReadSpamState(ctx, guildID, userID)
	if err != nil {
		persistenceFailures.WithLabelValues("read_spam_state").Inc()
		c.logger.Error("Failed to load spam state", append(fields, zap.Error(err))...)
		return
	}
	if state.TimeoutExpiry == nil || state.TimeoutExpiry.After(now) {
		return
	}

	state.TimeoutExpiry = nil
	if c.persist(ctx, state, fields) {
		c.logger.Debug("Cleared expired spam timeout", fields...)
	}
}
