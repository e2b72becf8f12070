package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/guild-sentinel/internal/adapters/store"
	"github.com/mikey/guild-sentinel/internal/config"
	"go.uber.org/zap"
)

// StoreFactory creates persistence backends based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateStore creates a store based on the configuration
func (f *StoreFactory) CreateStore() (store.Store, error) {
	storeCfg, err := f.cfg.GetStore()
	if err != nil {
		return nil, err
	}

	pool := store.Pool{
		MaxConnections:  storeCfg.MaxConnections,
		ConnMaxIdleTime: storeCfg.ConnMaxIdleTime,
	}
	retention := store.Retention{
		MaxAge:   storeCfg.EventRetention,
		Interval: storeCfg.CleanupInterval,
	}

	switch storeCfg.Type {
	case "memory":
		f.logger.Warn("Using in-memory store, spam state will not survive a restart")
		return store.NewMemoryStore(f.logger, retention), nil
	case "sqlite":
		// Ensure directory exists
		if err := os.MkdirAll(filepath.Dir(storeCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return store.NewSQLiteStore(storeCfg.SQLitePath, pool, f.logger, retention)
	case "mysql":
		return store.NewMySQLStore(storeCfg.MySQLDSN, pool, f.logger, retention)
	case "redis":
		return store.NewRedisStore(storeCfg.RedisURL, pool, f.logger)
	default:
		return nil, fmt.Errorf("unsupported store type: %s", storeCfg.Type)
	}
}
