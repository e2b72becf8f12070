package store

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
)

var mysqlDialect = dialect{
	name: "mysql",
	migrations: []string{
		`CREATE TABLE IF NOT EXISTS spam_state (
			guild_id VARCHAR(32) NOT NULL,
			user_id VARCHAR(32) NOT NULL,
			warning_count INT NOT NULL DEFAULT 0,
			last_warning BIGINT NULL,
			timeout_expiry BIGINT NULL,
			PRIMARY KEY (guild_id, user_id),
			INDEX idx_spam_state_timeout (timeout_expiry)
		)`,
		`CREATE TABLE IF NOT EXISTS security_events (
			id BIGINT AUTO_INCREMENT PRIMARY KEY,
			event_id CHAR(36) NOT NULL,
			guild_id VARCHAR(32) NOT NULL,
			event_type VARCHAR(64) NOT NULL,
			subject_id VARCHAR(32) NOT NULL DEFAULT '',
			details TEXT NOT NULL,
			detected_at BIGINT NOT NULL,
			INDEX idx_security_events_guild (guild_id, detected_at)
		)`,
		`CREATE TABLE IF NOT EXISTS guild_settings (
			guild_id VARCHAR(32) NOT NULL,
			setting_key VARCHAR(64) NOT NULL,
			setting_value TEXT NOT NULL,
			PRIMARY KEY (guild_id, setting_key)
		)`,
	},
	upsertSpamState: `
		INSERT INTO spam_state (guild_id, user_id, warning_count, last_warning, timeout_expiry)
		VALUES (?, ?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			warning_count = VALUES(warning_count),
			last_warning = VALUES(last_warning),
			timeout_expiry = VALUES(timeout_expiry)
	`,
	upsertSetting: `
		INSERT INTO guild_settings (guild_id, setting_key, setting_value)
		VALUES (?, ?, ?)
		ON DUPLICATE KEY UPDATE setting_value = VALUES(setting_value)
	`,
}

// MySQLStore is a MySQL implementation of Store
type MySQLStore struct {
	*sqlStore
}

var _ Store = (*MySQLStore)(nil)

// NewMySQLStore connects to (and migrates) a MySQL database
func NewMySQLStore(dsn string, pool Pool, logger *zap.Logger, retention Retention) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	pool.apply(db)

	// Test the connection
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	base, err := newSQLStore(context.Background(), db, mysqlDialect, logger, retention)
	if err != nil {
		db.Close()
		return nil, err
	}

	logger.Info("Connected to MySQL store")
	return &MySQLStore{sqlStore: base}, nil
}
