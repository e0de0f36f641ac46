package shared

import (
	"context"
	"time"
)

// IdempotencyStore remembers keys that were already handled so a repeated
// delivery of the same key can be recognised and dropped.
type IdempotencyStore interface {
	// MarkProcessed marks a key as handled with a TTL.
	// Returns true if the key was newly marked, false if it was already present.
	MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// IsProcessed checks if a key has already been marked
	IsProcessed(ctx context.Context, key string) (bool, error)

	// Close closes the store and releases resources
	Close() error
}

// DefaultIdempotencyTTL is how long a key is remembered when the caller gives no TTL
const DefaultIdempotencyTTL = time.Hour
