package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ev119/erlocator/internal/core/kv"
)

var (
	_ kv.Store   = (*Store)(nil)
	_ kv.Scanner = (*Store)(nil)
)

// Get returns the value stored under key if it has not expired.
func (s *Store) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if s == nil || s.DB == nil {
		return nil, false, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if strings.TrimSpace(key) == "" {
		return nil, false, errors.New("kv key is required")
	}

	var value []byte
	row := s.DB.QueryRowContext(ctx, `
		SELECT value
		FROM kv_entries
		WHERE key = ? AND expires_at > ?
	`, key, s.clock().Now().UTC().UnixMilli())
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch kv entry: %w", err)
	}

	return value, true, nil
}

// SetWithTTL upserts key with an expiry ttl from now.
func (s *Store) SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	if ttl <= 0 {
		return nil
	}

	if strings.TrimSpace(key) == "" {
		return errors.New("kv key is required")
	}
	if value == nil {
		value = []byte{}
	}

	now := s.clock().Now().UTC()
	expires := now.Add(ttl)

	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO kv_entries (key, value, created_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			value = excluded.value,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at
	`, key, value, now.UnixMilli(), expires.UnixMilli())
	if err != nil {
		return fmt.Errorf("store kv entry: %w", err)
	}

	return nil
}

// Exists reports whether key holds an unexpired entry.
func (s *Store) Exists(ctx context.Context, key string) (bool, error) {
	if s == nil || s.DB == nil {
		return false, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	var count int
	row := s.DB.QueryRowContext(ctx, `
		SELECT COUNT(1)
		FROM kv_entries
		WHERE key = ? AND expires_at > ?
	`, key, s.clock().Now().UTC().UnixMilli())
	if err := row.Scan(&count); err != nil {
		return false, fmt.Errorf("check kv entry: %w", err)
	}

	return count > 0, nil
}

// Ping verifies the database connection.
func (s *Store) Ping(ctx context.Context) error {
	if s == nil || s.DB == nil {
		return errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	return s.DB.PingContext(ctx)
}

// Scan lists live entries whose key starts with prefix.
func (s *Store) Scan(ctx context.Context, prefix string) ([]kv.Entry, error) {
	return s.ListEntries(ctx, EntryQuery{Prefix: prefix, All: prefix == ""})
}

// DeletePrefix removes every entry whose key starts with prefix.
func (s *Store) DeletePrefix(ctx context.Context, prefix string) (int64, error) {
	return s.ResetEntries(ctx, EntryQuery{Prefix: prefix, All: prefix == ""})
}

// Delete removes a single key.
func (s *Store) Delete(ctx context.Context, key string) (bool, error) {
	n, err := s.ResetEntries(ctx, EntryQuery{Key: key})
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PurgeExpired deletes entries past their expiry and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}

	if ctx == nil {
		ctx = context.Background()
	}

	result, err := s.DB.ExecContext(ctx, `DELETE FROM kv_entries WHERE expires_at <= ?`, s.clock().Now().UTC().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("purge kv entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge kv entries: %w", err)
	}
	return affected, nil
}
