package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ev119/erlocator/internal/core/kv"
)

// EntryQuery selects kv entries for admin listing and reset.
type EntryQuery struct {
	All    bool
	Key    string
	Prefix string
}

func (q EntryQuery) Validate() error {
	if q.All {
		return nil
	}
	if strings.TrimSpace(q.Key) != "" {
		return nil
	}
	if strings.TrimSpace(q.Prefix) != "" {
		return nil
	}
	return errors.New("must specify all, key, or prefix")
}

func (q EntryQuery) whereClause(now time.Time) (string, []any, error) {
	if err := q.Validate(); err != nil {
		return "", nil, err
	}
	live := now.UTC().UnixMilli()
	if q.All {
		return "WHERE expires_at > ?", []any{live}, nil
	}
	if key := strings.TrimSpace(q.Key); key != "" {
		return "WHERE key = ? AND expires_at > ?", []any{key, live}, nil
	}
	return "WHERE key LIKE ? ESCAPE '\\' AND expires_at > ?", []any{escapeLike(q.Prefix) + "%", live}, nil
}

func (s *Store) ListEntries(ctx context.Context, q EntryQuery) ([]kv.Entry, error) {
	if s == nil || s.DB == nil {
		return nil, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause(s.clock().Now())
	if err != nil {
		return nil, err
	}

	rows, err := s.DB.QueryContext(ctx, fmt.Sprintf(`
		SELECT key, expires_at
		FROM kv_entries
		%s
		ORDER BY key
	`, where), args...)
	if err != nil {
		return nil, fmt.Errorf("list kv entries: %w", err)
	}
	defer rows.Close() // nolint:errcheck // best-effort cleanup

	entries := []kv.Entry{}
	for rows.Next() {
		var (
			key       string
			expiresAt int64
		)
		if err := rows.Scan(&key, &expiresAt); err != nil {
			return nil, fmt.Errorf("scan kv entries: %w", err)
		}
		entries = append(entries, kv.Entry{Key: key, ExpiresAt: time.UnixMilli(expiresAt).UTC()})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list kv entries: %w", err)
	}

	return entries, nil
}

func (s *Store) CountEntries(ctx context.Context, q EntryQuery) (int, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause(s.clock().Now())
	if err != nil {
		return 0, err
	}

	row := s.DB.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT COUNT(*)
		FROM kv_entries
		%s
	`, where), args...)

	var count int
	if err := row.Scan(&count); err != nil {
		return 0, fmt.Errorf("count kv entries: %w", err)
	}
	return count, nil
}

func (s *Store) ResetEntries(ctx context.Context, q EntryQuery) (int64, error) {
	if s == nil || s.DB == nil {
		return 0, errors.New("store is not initialized")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	where, args, err := q.whereClause(s.clock().Now())
	if err != nil {
		return 0, err
	}

	result, err := s.DB.ExecContext(ctx, fmt.Sprintf(`
		DELETE FROM kv_entries
		%s
	`, where), args...)
	if err != nil {
		return 0, fmt.Errorf("reset kv entries: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("reset kv entries: %w", err)
	}
	return affected, nil
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}
