package store

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/guild-sentinel/internal/core"
)

// MemoryStore is an in-memory implementation of Store. Nothing survives a
// restart; it backs dry runs, replays and tests.
type MemoryStore struct {
	mu        sync.RWMutex
	spam      map[string]*core.SpamState
	events    map[string][]*core.SecurityEvent
	settings  map[string]map[string]string
	logger    *zap.Logger
	retention Retention
	stopCh    chan struct{}
	stopOnce  sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory store
func NewMemoryStore(logger *zap.Logger, retention Retention) *MemoryStore {
	s := &MemoryStore{
		spam:      make(map[string]*core.SpamState),
		events:    make(map[string][]*core.SecurityEvent),
		settings:  make(map[string]map[string]string),
		logger:    logger,
		retention: retention,
		stopCh:    make(chan struct{}),
	}

	// Start background cleanup
	if retention.MaxAge > 0 && retention.Interval > 0 {
		go s.startCleanupTask()
	}

	return s
}

func spamKey(guildID, userID string) string {
	return guildID + ":" + userID
}

// ReadSpamState returns the stored state or a zero state
func (s *MemoryStore) ReadSpamState(ctx context.Context, guildID, userID string) (*core.SpamState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.spam[spamKey(guildID, userID)]
	if !ok {
		return zeroState(guildID, userID), nil
	}
	return copyState(state), nil
}

// UpsertSpamState stores a copy of the state
func (s *MemoryStore) UpsertSpamState(ctx context.Context, state *core.SpamState) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.spam[spamKey(state.GuildID, state.UserID)] = copyState(state)
	return nil
}

// ExpiredTimeouts lists states whose timeout has passed
func (s *MemoryStore) ExpiredTimeouts(ctx context.Context, now time.Time) ([]*core.SpamState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []*core.SpamState
	for _, state := range s.spam {
		if state.TimeoutExpiry != nil && !state.TimeoutExpiry.After(now) {
			expired = append(expired, copyState(state))
		}
	}
	return expired, nil
}

// RecordEvent appends to the guild's event log
func (s *MemoryStore) RecordEvent(ctx context.Context, event *core.SecurityEvent) error {
	prepareEvent(event)
	stored := *event

	s.mu.Lock()
	defer s.mu.Unlock()

	s.events[event.GuildID] = append(s.events[event.GuildID], &stored)
	return nil
}

// RecentEvents returns the newest events of a guild, newest first
func (s *MemoryStore) RecentEvents(ctx context.Context, guildID string, limit int) ([]*core.SecurityEvent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	events := s.events[guildID]
	if limit <= 0 || limit > len(events) {
		limit = len(events)
	}
	out := make([]*core.SecurityEvent, 0, limit)
	for i := len(events) - 1; i >= 0 && len(out) < limit; i-- {
		e := *events[i]
		out = append(out, &e)
	}
	return out, nil
}

// GetSetting returns a stored guild setting
func (s *MemoryStore) GetSetting(ctx context.Context, guildID, key string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	val, ok := s.settings[guildID][key]
	return val, ok, nil
}

// SetSetting stores a guild setting
func (s *MemoryStore) SetSetting(ctx context.Context, guildID, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	guild, ok := s.settings[guildID]
	if !ok {
		guild = make(map[string]string)
		s.settings[guildID] = guild
	}
	guild[key] = value
	return nil
}

// Cleanup drops events older than the retention age
func (s *MemoryStore) Cleanup(ctx context.Context, now time.Time) int {
	if s.retention.MaxAge <= 0 {
		return 0
	}
	cutoff := now.Add(-s.retention.MaxAge)

	s.mu.Lock()
	defer s.mu.Unlock()

	purged := 0
	for guildID, events := range s.events {
		kept := events[:0]
		for _, e := range events {
			if e.DetectedAt.Before(cutoff) {
				purged++
				continue
			}
			kept = append(kept, e)
		}
		if len(kept) == 0 {
			delete(s.events, guildID)
			continue
		}
		s.events[guildID] = kept
	}

	s.logger.Debug("Purged expired security events", zap.Int("purged_count", purged))
	return purged
}

// startCleanupTask starts a background task to purge old events
func (s *MemoryStore) startCleanupTask() {
	ticker := time.NewTicker(s.retention.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.Cleanup(context.Background(), time.Now())
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task
func (s *MemoryStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
	})
}
