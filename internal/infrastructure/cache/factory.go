package cache

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/logiride/client/internal/domain/shared"
	"github.com/logiride/client/internal/infrastructure/config"
)

// IdempotencyStoreFactory creates the chat de-duplication store from configuration
type IdempotencyStoreFactory struct {
	chat                  config.ChatConfig
	redis                 config.RedisConfig
	logger                *zap.Logger
	allowInMemoryFallback bool
}

// IdempotencyStoreFactoryOption is a functional option for configuring the factory
type IdempotencyStoreFactoryOption func(*IdempotencyStoreFactory)

// WithLogger sets the logger for the factory
func WithLogger(logger *zap.Logger) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.logger = logger
	}
}

// WithInMemoryFallback controls whether an unreachable Redis degrades to the
// in-memory store. Default is true.
func WithInMemoryFallback(allow bool) IdempotencyStoreFactoryOption {
	return func(f *IdempotencyStoreFactory) {
		f.allowInMemoryFallback = allow
	}
}

// NewIdempotencyStoreFactory creates a new factory
func NewIdempotencyStoreFactory(chat config.ChatConfig, redisCfg config.RedisConfig, opts ...IdempotencyStoreFactoryOption) *IdempotencyStoreFactory {
	f := &IdempotencyStoreFactory{
		chat:                  chat,
		redis:                 redisCfg,
		logger:                zap.NewNop(),
		allowInMemoryFallback: true,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// CreateStore returns the configured store. scope namespaces Redis keys,
// normally by the signed-in account id.
func (f *IdempotencyStoreFactory) CreateStore(ctx context.Context, scope string) (shared.IdempotencyStore, error) {
	if f.chat.DedupBackend != config.DedupBackendRedis {
		return NewInMemoryIdempotencyStore(), nil
	}

	client, err := NewRedisClient(ctx, f.redis)
	if err == nil {
		f.logger.Info("using Redis chat de-duplication store", zap.String("addr", f.redis.Addr()))
		prefix := DefaultDedupPrefix
		if scope != "" {
			prefix += scope + ":"
		}
		store := NewRedisIdempotencyStore(client, prefix)
		store.ownClient = true
		return store, nil
	}

	if !f.allowInMemoryFallback {
		return nil, fmt.Errorf("redis required for chat de-duplication but unavailable: %w", err)
	}

	f.logger.Warn("Redis unavailable, falling back to in-memory chat de-duplication. "+
		"Echoes of messages sent from another device may appear twice.",
		zap.Error(err),
	)
	return NewInMemoryIdempotencyStore(), nil
}
