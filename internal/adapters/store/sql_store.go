package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/mikey/guild-sentinel/internal/core"
)

// dialect holds the statements that differ between SQL engines
type dialect struct {
	name            string
	migrations      []string
	upsertSpamState string
	upsertSetting   string
}

// sqlStore implements Store on top of database/sql. Every call checks out a
// single pooled connection and returns it before leaving.
type sqlStore struct {
	db        *sql.DB
	dialect   dialect
	logger    *zap.Logger
	retention Retention
	stopCh    chan struct{}
	stopOnce  sync.Once
}

func newSQLStore(ctx context.Context, db *sql.DB, d dialect, logger *zap.Logger, retention Retention) (*sqlStore, error) {
	s := &sqlStore{
		db:        db,
		dialect:   d,
		logger:    logger,
		retention: retention,
		stopCh:    make(chan struct{}),
	}

	if err := s.migrate(ctx); err != nil {
		return nil, err
	}

	// Start background cleanup
	if retention.MaxAge > 0 && retention.Interval > 0 {
		go s.startCleanupTask()
	}

	return s, nil
}

// migrate applies the schema steps not yet recorded in schema_migrations
func (s *sqlStore) migrate(ctx context.Context) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			CREATE TABLE IF NOT EXISTS schema_migrations (
				version INTEGER PRIMARY KEY,
				applied_at BIGINT NOT NULL
			)
		`)
		if err != nil {
			return fmt.Errorf("failed to create schema_migrations: %w", err)
		}

		var current int
		if err := conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&current); err != nil {
			return fmt.Errorf("failed to read schema version: %w", err)
		}

		for i, stmt := range s.dialect.migrations {
			version := i + 1
			if version <= current {
				continue
			}
			if _, err := conn.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("failed to apply migration %d: %w", version, err)
			}
			if _, err := conn.ExecContext(ctx,
				`INSERT INTO schema_migrations (version, applied_at) VALUES (?, ?)`,
				version, time.Now().UnixNano()); err != nil {
				return fmt.Errorf("failed to record migration %d: %w", version, err)
			}
			s.logger.Info("Applied schema migration",
				zap.String("dialect", s.dialect.name),
				zap.Int("version", version))
		}
		return nil
	})
}

// withConn runs fn on a connection checked out of the pool. The call blocks
// while the pool is exhausted and the connection is returned on every path.
func (s *sqlStore) withConn(ctx context.Context, fn func(conn *sql.Conn) error) error {
	conn, err := s.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("%w: %v", core.ErrPersistenceUnavailable, err)
	}
	defer conn.Close()

	if err := fn(conn); err != nil {
		if errors.Is(err, core.ErrPersistenceUnavailable) {
			return err
		}
		return fmt.Errorf("%w: %w", core.ErrPersistenceUnavailable, err)
	}
	return nil
}

// ReadSpamState returns the stored state or a zero state
func (s *sqlStore) ReadSpamState(ctx context.Context, guildID, userID string) (*core.SpamState, error) {
	state := zeroState(guildID, userID)
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		var lastWarning, timeoutExpiry sql.NullInt64
		err := conn.QueryRowContext(ctx, `
			SELECT warning_count, last_warning, timeout_expiry
			FROM spam_state
			WHERE guild_id = ? AND user_id = ?
		`, guildID, userID).Scan(&state.WarningCount, &lastWarning, &timeoutExpiry)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to query spam state: %w", err)
		}
		state.LastWarning = fromNanos(lastWarning)
		state.TimeoutExpiry = fromNanos(timeoutExpiry)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return state, nil
}

// UpsertSpamState stores the state, replacing any previous row
func (s *sqlStore) UpsertSpamState(ctx context.Context, state *core.SpamState) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, s.dialect.upsertSpamState,
			state.GuildID, state.UserID, state.WarningCount,
			toNanos(state.LastWarning), toNanos(state.TimeoutExpiry))
		if err != nil {
			return fmt.Errorf("failed to upsert spam state: %w", err)
		}
		return nil
	})
}

// ExpiredTimeouts lists states whose timeout has passed
func (s *sqlStore) ExpiredTimeouts(ctx context.Context, now time.Time) ([]*core.SpamState, error) {
	var expired []*core.SpamState
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT guild_id, user_id, warning_count, last_warning, timeout_expiry
			FROM spam_state
			WHERE timeout_expiry IS NOT NULL AND timeout_expiry <= ?
		`, now.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to query expired timeouts: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var state core.SpamState
			var lastWarning, timeoutExpiry sql.NullInt64
			if err := rows.Scan(&state.GuildID, &state.UserID, &state.WarningCount, &lastWarning, &timeoutExpiry); err != nil {
				return fmt.Errorf("failed to scan spam state: %w", err)
			}
			state.LastWarning = fromNanos(lastWarning)
			state.TimeoutExpiry = fromNanos(timeoutExpiry)
			expired = append(expired, &state)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return expired, nil
}

// RecordEvent appends a row to the security event log
func (s *sqlStore) RecordEvent(ctx context.Context, event *core.SecurityEvent) error {
	prepareEvent(event)
	return s.withConn(ctx, func(conn *sql.Conn) error {
		_, err := conn.ExecContext(ctx, `
			INSERT INTO security_events (event_id, guild_id, event_type, subject_id, details, detected_at)
			VALUES (?, ?, ?, ?, ?, ?)
		`, event.ID, event.GuildID, event.EventType, event.SubjectID, event.Details, event.DetectedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert security event: %w", err)
		}
		return nil
	})
}

// RecentEvents returns the newest events of a guild, newest first
func (s *sqlStore) RecentEvents(ctx context.Context, guildID string, limit int) ([]*core.SecurityEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var events []*core.SecurityEvent
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		rows, err := conn.QueryContext(ctx, `
			SELECT event_id, guild_id, event_type, subject_id, details, detected_at
			FROM security_events
			WHERE guild_id = ?
			ORDER BY detected_at DESC, id DESC
			LIMIT ?
		`, guildID, limit)
		if err != nil {
			return fmt.Errorf("failed to query security events: %w", err)
		}
		defer rows.Close()

		for rows.Next() {
			var e core.SecurityEvent
			var detectedAt int64
			if err := rows.Scan(&e.ID, &e.GuildID, &e.EventType, &e.SubjectID, &e.Details, &detectedAt); err != nil {
				return fmt.Errorf("failed to scan security event: %w", err)
			}
			e.DetectedAt = time.Unix(0, detectedAt).UTC()
			events = append(events, &e)
		}
		return rows.Err()
	})
	if err != nil {
		return nil, err
	}
	return events, nil
}

// GetSetting returns a stored guild setting
func (s *sqlStore) GetSetting(ctx context.Context, guildID, key string) (string, bool, error) {
	var value string
	found := false
	err := s.withConn(ctx, func(conn *sql.Conn) error {
		err := conn.QueryRowContext(ctx, `
			SELECT setting_value FROM guild_settings
			WHERE guild_id = ? AND setting_key = ?
		`, guildID, key).Scan(&value)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to query guild setting: %w", err)
		}
		found = true
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

// SetSetting stores a guild setting
func (s *sqlStore) SetSetting(ctx context.Context, guildID, key, value string) error {
	return s.withConn(ctx, func(conn *sql.Conn) error {
		if _, err := conn.ExecContext(ctx, s.dialect.upsertSetting, guildID, key, value); err != nil {
			return fmt.Errorf("failed to upsert guild setting: %w", err)
		}
		return nil
	})
}

// Cleanup removes security events older than the retention age
func (s *sqlStore) Cleanup(ctx context.Context, now time.Time) error {
	if s.retention.MaxAge <= 0 {
		return nil
	}
	cutoff := now.Add(-s.retention.MaxAge).UnixNano()
	return s.withConn(ctx, func(conn *sql.Conn) error {
		result, err := conn.ExecContext(ctx, `DELETE FROM security_events WHERE detected_at < ?`, cutoff)
		if err != nil {
			return fmt.Errorf("failed to purge security events: %w", err)
		}

		rowsAffected, err := result.RowsAffected()
		if err != nil {
			s.logger.Warn("Failed to get rows affected during cleanup", zap.Error(err))
		} else {
			s.logger.Debug("Purged expired security events", zap.Int64("purged_count", rowsAffected))
		}
		return nil
	})
}

// startCleanupTask starts a background task to purge old events
func (s *sqlStore) startCleanupTask() {
	ticker := time.NewTicker(s.retention.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := s.Cleanup(context.Background(), time.Now()); err != nil {
				s.logger.Error("Failed to purge security events", zap.Error(err))
			}
		case <-s.stopCh:
			return
		}
	}
}

// Stop stops the background cleanup task and closes the database connection
func (s *sqlStore) Stop() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database", zap.String("dialect", s.dialect.name), zap.Error(err))
		}
	})
}
