package session

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/infrastructure/cache"
	"github.com/logiride/client/internal/infrastructure/config"
)

// Closer releases resources held by a store, such as a Redis connection
type Closer func() error

// NewStore builds the configured session store. The returned closer is never nil.
func NewStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (identity.SessionStore, Closer, error) {
	noop := func() error { return nil }
	if logger == nil {
		logger = zap.NewNop()
	}

	var sealer *Sealer
	if cfg.Session.EncryptionKey != "" {
		s, err := NewSealer(cfg.Session.EncryptionKey)
		if err != nil {
			return nil, noop, err
		}
		sealer = s
	}

	switch cfg.Session.Backend {
	case config.SessionBackendMemory:
		return NewMemoryStore(), noop, nil

	case config.SessionBackendRedis:
		client, err := cache.NewRedisClient(ctx, cfg.Redis)
		if err == nil {
			logger.Info("using Redis session store", zap.String("profile", cfg.App.Profile))
			return NewRedisStore(client, cfg.Session.RedisKeyPrefix, cfg.App.Profile, 0, sealer), client.Close, nil
		}
		if !cfg.Session.FallbackToFile {
			return nil, noop, fmt.Errorf("redis session store unavailable: %w", err)
		}
		logger.Warn("Redis unavailable, falling back to file session store",
			zap.String("path", cfg.Session.Path),
			zap.Error(err),
		)
		return NewFileStore(cfg.Session.Path, sealer), noop, nil

	default:
		if sealer == nil {
			logger.Debug("session file is not encrypted", zap.String("path", cfg.Session.Path))
		}
		return NewFileStore(cfg.Session.Path, sealer), noop, nil
	}
}
