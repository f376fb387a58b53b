// Package kv defines the TTL key-value contract shared by the quota guard and
// the realtime result cache, plus its in-process and Redis implementations.
package kv

import (
	"context"
	"errors"
	"time"
)

// ErrClosed is returned by stores used after Close.
var ErrClosed = errors.New("kv store is closed")

// Store is a key-value store with per-key expiry. Implementations must be safe
// for concurrent use; a write is visible to every caller once SetWithTTL returns.
type Store interface {
	// Get returns the value for key. Missing or expired keys report false.
	Get(ctx context.Context, key string) ([]byte, bool, error)

	// SetWithTTL stores value under key until ttl elapses.
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error

	// Exists reports whether key holds a live entry.
	Exists(ctx context.Context, key string) (bool, error)

	// Ping verifies the backing service is reachable.
	Ping(ctx context.Context) error

	Close() error
}

// Entry describes a live key for admin listings.
type Entry struct {
	Key       string    `json:"key"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Scanner is implemented by shared stores that can enumerate and clear keys.
type Scanner interface {
	Scan(ctx context.Context, prefix string) ([]Entry, error)
	DeletePrefix(ctx context.Context, prefix string) (int64, error)
	Delete(ctx context.Context, key string) (bool, error)
}
