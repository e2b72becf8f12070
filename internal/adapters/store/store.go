package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/mikey/guild-sentinel/internal/core"
)

// Store is a persistence backend: spam escalation state, the security event
// log and the raw guild settings table.
type Store interface {
	core.SpamStateRepository
	core.EventSink

	// GetSetting returns the raw stored value of a guild setting
	GetSetting(ctx context.Context, guildID, key string) (string, bool, error)

	// SetSetting stores a guild setting, replacing any previous value
	SetSetting(ctx context.Context, guildID, key, value string) error

	// Stop halts background maintenance and releases the backend
	Stop()
}

// Retention controls how long security events are kept
type Retention struct {
	// MaxAge of a security event; zero keeps events forever
	MaxAge time.Duration
	// Interval between purge runs
	Interval time.Duration
}

// Pool bounds the connections a SQL backend may hold
type Pool struct {
	MaxConnections  int
	ConnMaxIdleTime time.Duration
}

func (p Pool) apply(db *sql.DB) {
	maxConns := p.MaxConnections
	if maxConns <= 0 {
		maxConns = 5
	}
	db.SetMaxOpenConns(maxConns)
	db.SetMaxIdleConns(maxConns)
	if p.ConnMaxIdleTime > 0 {
		db.SetConnMaxIdleTime(p.ConnMaxIdleTime)
	}
}

// prepareEvent fills in the ID and normalizes the timestamp before writing
func prepareEvent(event *core.SecurityEvent) {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.DetectedAt.IsZero() {
		event.DetectedAt = time.Now()
	}
}

func toNanos(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: t.UnixNano(), Valid: true}
}

func fromNanos(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := time.Unix(0, n.Int64).UTC()
	return &t
}

func zeroState(guildID, userID string) *core.SpamState {
	return &core.SpamState{GuildID: guildID, UserID: userID}
}

func copyState(s *core.SpamState) *core.SpamState {
	out := *s
	if s.LastWarning != nil {
		t := *s.LastWarning
		out.LastWarning = &t
	}
	if s.TimeoutExpiry != nil {
		t := *s.TimeoutExpiry
		out.TimeoutExpiry = &t
	}
	return &out
}
