package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

var sqliteDialect = dialect{
	name: "sqlite",
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS spam_state (
			guild_id TEXT NOT NULL,
			user_id TEXT NOT NULL,
			warning_count INTEGER NOT NULL DEFAULT 0,
			last_warning INTEGER,
			timeout_expiry INTEGER,
			PRIMARY KEY (guild_id, user_id)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_spam_state_timeout ON spam_state(timeout_expiry)`,
		`CREATE TABLE IF NOT EXISTS security_events (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			event_id TEXT NOT NULL,
			guild_id TEXT NOT NULL,
			event_type TEXT NOT NULL,
			subject_id TEXT NOT NULL DEFAULT '',
			details TEXT NOT NULL DEFAULT '',
			detected_at INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_security_events_guild ON security_events(guild_id, detected_at)`,
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id TEXT NOT NULL,
			setting_key TEXT NOT NULL,
			setting_value TEXT NOT NULL,
			PRIMARY KEY (guild_id, setting_key)
		)`,
	},
	upsertSpamState: `
		INSERT INTO spam_state (guild_id, user_id, warning_count, last_warning, timeout_expiry)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(guild_id, user_id) DO UPDATE SET
			warning_count = excluded.warning_count,
			last_warning = excluded.last_warning,
			timeout_expiry = excluded.timeout_expiry
	`,
	upsertSetting: `
		INSERT INTO guild_settings (guild_id, setting_key, setting_value)
		VALUES (?, ?, ?)
		ON CONFLICT(guild_id, setting_key) DO UPDATE SET
			setting_value = excluded.setting_value
	`,
}

// SQLiteStore is a SQLite implementation of Store
type SQLiteStore struct {
	*sqlStore
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (and migrates) a SQLite database
func NewSQLiteStore(dbPath string, pool Pool, logger *zap.Logger, retention Retention) (*SQLiteStore, error) {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	db, err := sql.Open("sqlite3", dbPath+sep+"_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	pool.apply(db)

	base, err := newSQLStore(context.Background(), db, sqliteDialect, logger, retention)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Opened SQLite store", zap.String("path", dbPath))
	return &SQLiteStore{sqlStore: base}, nil
}
