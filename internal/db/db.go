package db

import (
	"context"
	"time"
)

// Store is the Redis-protocol facade combining all sub-interfaces.
// Consumers depend on the narrow sub-interfaces they need.
//
//nolint:interfacebloat // facade by design -- consumers use narrow sub-interfaces (ISP)
type Store interface {
	Pinger
	HashStore
	KVStore
	SortedSetStore
	Close()
	WaitForReady(ctx context.Context, timeout time.Duration) error
}

// Pinger checks database connectivity.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HashStore provides hash-based record operations. One HSet is atomic per key.
type HashStore interface {
	HSet(ctx context.Context, key string, fields map[string]string) error
	HGet(ctx context.Context, key, field string) (string, error)
	HGetAll(ctx context.Context, key string) (map[string]string, error)
	HGetAllMulti(ctx context.Context, keys []string) ([]map[string]string, error)
	Del(ctx context.Context, key string) error
}

// KVStore provides simple key-value operations.
type KVStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Incr(ctx context.Context, key string) (int64, error)
}

// SortedSetStore keeps members ordered by a numeric score.
type SortedSetStore interface {
	ZAdd(ctx context.Context, key string, score int64, member string) error
	ZRem(ctx context.Context, key, member string) (bool, error)
	ZRangeAll(ctx context.Context, key string) ([]string, error)
}
