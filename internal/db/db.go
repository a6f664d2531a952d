package db

import (
	"context"
	"time"
)

// Store is the main database facade combining all sub-interfaces.
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

// KVItem holds a single key+value pair for pipelined SET. Zero TTL means no expiry.
type KVItem struct {
	Key   string
	Value []byte
	TTL   time.Duration
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	// MGet returns one entry per key; missing keys yield nil.
	MGet(ctx context.Context, keys []string) ([][]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	SetMulti(ctx context.Context, items []KVItem) error
	Del(ctx context.Context, keys ...string) error
	Scan(ctx context.Context, pattern string) ([]string, error)
}
