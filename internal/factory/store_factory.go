package factory

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mikey/mailsentry/internal/adapters/baselinestore"
	"github.com/mikey/mailsentry/internal/config"
	"github.com/mikey/mailsentry/internal/core"
	"go.uber.org/zap"
)

// StoreFactory creates baseline stores based on configuration
type StoreFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewStoreFactory creates a new baseline store factory
func NewStoreFactory(cfg *config.Config, logger *zap.Logger) *StoreFactory {
	return &StoreFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateBaselineStore creates a baseline store based on the configuration
func (f *StoreFactory) CreateBaselineStore() (core.BaselineStore, error) {
	blCfg := f.cfg.GetBaseline()

	switch blCfg.Store {
	case "memory":
		return baselinestore.NewMemoryStore(f.logger), nil
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(blCfg.SQLitePath), 0755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
		return baselinestore.NewSQLiteStore(blCfg.SQLitePath, f.logger)
	case "mysql":
		return baselinestore.NewMySQLStore(blCfg.MySQLDSN, f.logger)
	case "redis":
		return baselinestore.NewRedisStore(blCfg.RedisAddress, blCfg.RedisPassword,
			blCfg.RedisDB, "", f.logger)
	default:
		return nil, fmt.Errorf("unsupported baseline store: %s", blCfg.Store)
	}
}
