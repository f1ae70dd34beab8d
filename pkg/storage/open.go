package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/0xmhha/contractforge/internal/constants"
)

// Open constructs the backend selected by cfg
func Open(ctx context.Context, cfg *Config, logger *zap.Logger) (Storage, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid storage config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("backend", cfg.Backend))

	switch cfg.Backend {
	case constants.StoreJSON:
		return NewJSONStorage(cfg.Path, logger)
	case constants.StorePebble:
		cache := cfg.CacheSize
		if cache == 0 {
			cache = constants.DefaultCacheSize
		}
		return NewPebbleStorage(cfg.Path, cache, logger)
	case constants.StorePostgres:
		return NewPostgresStorage(ctx, cfg.PostgresURL, logger)
	default:
		return nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}
