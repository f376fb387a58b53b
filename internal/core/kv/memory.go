package kv

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// MemoryOptions sizes the in-process store.
type MemoryOptions struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

func memoryOptionsWithDefaults(opts MemoryOptions) MemoryOptions {
	if opts.NumCounters <= 0 {
		opts.NumCounters = 1e5
	}
	if opts.MaxCost <= 0 {
		opts.MaxCost = 64 << 20
	}
	if opts.BufferItems <= 0 {
		opts.BufferItems = 64
	}
	return opts
}

// Memory is a process-local Store backed by ristretto.
//
// ristretto buffers writes; SetWithTTL waits for the buffer to drain so a
// quota block is observable by the next Exists call.
type Memory struct {
	cache  *ristretto.Cache[string, []byte]
	closed atomic.Bool
}

// NewMemory creates an in-process store.
func NewMemory(opts MemoryOptions) (*Memory, error) {
	opts = memoryOptionsWithDefaults(opts)
	cache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: opts.NumCounters,
		MaxCost:     opts.MaxCost,
		BufferItems: opts.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("create memory kv store: %w", err)
	}
	return &Memory{cache: cache}, nil
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	if m.closed.Load() {
		return nil, false, ErrClosed
	}
	value, ok := m.cache.Get(key)
	if !ok {
		return nil, false, nil
	}
	return value, true, nil
}

func (m *Memory) SetWithTTL(_ context.Context, key string, value []byte, ttl time.Duration) error {
	if m.closed.Load() {
		return ErrClosed
	}
	if ttl <= 0 {
		return nil
	}
	cost := int64(len(value))
	if cost == 0 {
		cost = 1
	}
	if !m.cache.SetWithTTL(key, value, cost, ttl) {
		return fmt.Errorf("memory kv store rejected key %q", key)
	}
	m.cache.Wait()
	return nil
}

func (m *Memory) Exists(ctx context.Context, key string) (bool, error) {
	_, ok, err := m.Get(ctx, key)
	return ok, err
}

func (m *Memory) Ping(context.Context) error {
	if m.closed.Load() {
		return ErrClosed
	}
	return nil
}

func (m *Memory) Close() error {
	if m.closed.CompareAndSwap(false, true) {
		m.cache.Close()
	}
	return nil
}
