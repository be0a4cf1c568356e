package db

import (
	"context"
	"time"
)

// Store is the key-value facade used for caching layers.
type Store interface {
	Pinger
	KVStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// KVStore provides the key-value operations the caching layers need.
// All writes carry a TTL: nothing bookdex caches is authoritative.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
}
