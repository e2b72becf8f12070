package core

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Options tunes the in-memory trackers shared by the controllers
type Options struct {
	RaidWindow         time.Duration
	RaidWindowCapacity int
	SpamWindowCapacity int

	// Clock returns the current time; tests replace it
	Clock func() time.Time

	// Locks is the per-key exclusion shared by handlers and the sweep
	Locks *KeyedMutex
}

func (o Options) withDefaults() Options {
	if o.RaidWindow <= 0 {
		o.RaidWindow = 60 * time.Second
	}
	if o.RaidWindowCapacity <= 0 {
		o.RaidWindowCapacity = 1000
	}
	if o.SpamWindowCapacity <= 0 {
		o.SpamWindowCapacity = 100
	}
	if o.Clock == nil {
		o.Clock = time.Now
	}
	if o.Locks == nil {
		o.Locks = NewKeyedMutex()
	}
	return o
}

// SentinelService is the entry point for inbound platform events
type SentinelService struct {
	raid   *RaidController
	spam   *SpamController
	logger *zap.Logger
}

// NewSentinelService creates a new sentinel service
func NewSentinelService(raid *RaidController, spam *SpamController, logger *zap.Logger) *SentinelService {
	return &SentinelService{
		raid:   raid,
		spam:   spam,
		logger: logger,
	}
}

// HandleMemberJoined feeds a join into raid detection
func (s *SentinelService) HandleMemberJoined(ctx context.Context, ev MemberJoined) {
	eventsProcessed.WithLabelValues("member_joined").Inc()
	s.logger.Debug("Member joined",
		zap.String("guild_id", ev.GuildID),
		zap.String("member_id", ev.MemberID),
		zap.Bool("automated", ev.IsAutomated))

	s.guard("member_joined", func() {
		s.raid.HandleMemberJoined(ctx, ev)
	})
}

// HandleMessageCreated feeds a message into spam detection
func (s *SentinelService) HandleMessageCreated(ctx context.Context, ev MessageCreated) {
	eventsProcessed.WithLabelValues("message_created").Inc()

	s.guard("message_created", func() {
		s.spam.HandleMessageCreated(ctx, ev)
	})
}

// Raid returns the raid controller
func (s *SentinelService) Raid() *RaidController {
	return s.raid
}

// Spam returns the spam controller
func (s *SentinelService) Spam() *SpamController {
	return s.spam
}

// guard keeps a failing handler from taking the event loop down
func (s *SentinelService) guard(event string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Event handler panicked",
				zap.String("event", event),
				zap.Any("panic", r))
		}
	}()
	fn()
}
