package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/logiride/client/internal/domain/identity"
	"github.com/logiride/client/internal/domain/shared"
)

// RedisStore keeps the session under <prefix><profile> for shells that share
// state across machines. A zero TTL keeps the key until Clear.
type RedisStore struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	sealer *Sealer
}

// NewRedisStore creates a store for one profile
func NewRedisStore(client *redis.Client, prefix, profile string, ttl time.Duration, sealer *Sealer) *RedisStore {
	return &RedisStore{client: client, key: prefix + profile, ttl: ttl, sealer: sealer}
}

// Key returns the Redis key holding the session
func (s *RedisStore) Key() string {
	return s.key
}

// Get loads the session
func (s *RedisStore) Get(ctx context.Context) (*identity.Session, error) {
	data, err := s.client.Get(ctx, s.key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, shared.ErrNoSession
	}
	if err != nil {
		return nil, fmt.Errorf("load session: %w", err)
	}
	if s.sealer != nil {
		if data, err = s.sealer.Open(data); err != nil {
			return nil, err
		}
	}
	var sess identity.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &sess, nil
}

// Set stores the session
func (s *RedisStore) Set(ctx context.Context, session *identity.Session) error {
	if err := session.Validate(); err != nil {
		return err
	}
	data, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if s.sealer != nil {
		if data, err = s.sealer.Seal(data); err != nil {
			return err
		}
	}
	if err := s.client.Set(ctx, s.key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("save session: %w", err)
	}
	return nil
}

// Clear deletes the session key
func (s *RedisStore) Clear(ctx context.Context) error {
	if err := s.client.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}

var _ identity.SessionStore = (*RedisStore)(nil)
