package kv

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestMemory(t *testing.T) *Memory {
	t.Helper()
	m, err := NewMemory(MemoryOptions{})
	require.NoError(t, err)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestMemorySetIsImmediatelyVisible(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	require.NoError(t, m.SetWithTTL(ctx, "emergency:quota:block:서울|강남구", []byte("1"), time.Minute))

	exists, err := m.Exists(ctx, "emergency:quota:block:서울|강남구")
	require.NoError(t, err)
	require.True(t, exists)

	value, ok, err := m.Get(ctx, "emergency:quota:block:서울|강남구")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, []byte("1"), value)
}

func TestMemoryExpiry(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	require.NoError(t, m.SetWithTTL(ctx, "k", []byte("v"), 50*time.Millisecond))
	require.Eventually(t, func() bool {
		ok, err := m.Exists(ctx, "k")
		return err == nil && !ok
	}, 2*time.Second, 20*time.Millisecond)
}

func TestMemoryMissingKey(t *testing.T) {
	m := newTestMemory(t)

	value, ok, err := m.Get(context.Background(), "missing")
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, value)
}

func TestMemoryZeroTTLIsNoop(t *testing.T) {
	ctx := context.Background()
	m := newTestMemory(t)

	require.NoError(t, m.SetWithTTL(ctx, "k", []byte("v"), 0))
	ok, err := m.Exists(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)
}

func TestMemoryClosed(t *testing.T) {
	ctx := context.Background()
	m, err := NewMemory(MemoryOptions{})
	require.NoError(t, err)
	require.NoError(t, m.Close())
	require.NoError(t, m.Close())

	require.ErrorIs(t, m.Ping(ctx), ErrClosed)
	require.ErrorIs(t, m.SetWithTTL(ctx, "k", []byte("v"), time.Minute), ErrClosed)
	_, _, err = m.Get(ctx, "k")
	require.ErrorIs(t, err, ErrClosed)
}
