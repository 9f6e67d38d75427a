package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// CacheStats summarizes the response cache.
type CacheStats struct {
	Entries int64 `json:"entries"`
	Expired int64 `json:"expired"`
	Bytes   int64 `json:"bytes"`
}

// GetCachedResponse returns a stored body when it has not expired.
func (s *Store) GetCachedResponse(ctx context.Context, key string) ([]byte, bool, error) {
	if err := s.ready(); err != nil {
		return nil, false, err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil, false, errors.New("cache key is required")
	}

	var body []byte
	row := s.DB.QueryRowContext(ctx, `
		SELECT body FROM response_cache
		WHERE cache_key = ? AND expires_at > ?
	`, key, s.now().Unix())
	if err := row.Scan(&body); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetch cached response: %w", err)
	}
	return body, true, nil
}

// SetCachedResponse stores a body for ttl. A non-positive ttl is a no-op.
func (s *Store) SetCachedResponse(ctx context.Context, key string, body []byte, ttl time.Duration) error {
	if err := s.ready(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if ttl <= 0 {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return errors.New("cache key is required")
	}

	now := s.now()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO response_cache (cache_key, body, stored_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(cache_key) DO UPDATE SET
			body = excluded.body,
			stored_at = excluded.stored_at,
			expires_at = excluded.expires_at
	`, key, body, now.Unix(), now.Add(ttl).Unix())
	if err != nil {
		return fmt.Errorf("store cached response: %w", err)
	}
	return nil
}

// PurgeExpired deletes expired entries and returns how many were removed.
func (s *Store) PurgeExpired(ctx context.Context) (int64, error) {
	if err := s.ready(); err != nil {
		return 0, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	res, err := s.DB.ExecContext(ctx, `DELETE FROM response_cache WHERE expires_at <= ?`, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("purge response cache: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return removed, nil
}

// ClearCache removes every entry.
func (s *Store) ClearCache(ctx context.Context) error {
	if err := s.ready(); err != nil {
		return err
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if _, err := s.DB.ExecContext(ctx, `DELETE FROM response_cache`); err != nil {
		return fmt.Errorf("clear response cache: %w", err)
	}
	return nil
}

// Stats reports entry counts and stored bytes.
func (s *Store) Stats(ctx context.Context) (CacheStats, error) {
	if err := s.ready(); err != nil {
		return CacheStats{}, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	var stats CacheStats
	row := s.DB.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN expires_at <= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(LENGTH(body)), 0)
		FROM response_cache
	`, s.now().Unix())
	if err := row.Scan(&stats.Entries, &stats.Expired, &stats.Bytes); err != nil {
		return CacheStats{}, fmt.Errorf("read cache stats: %w", err)
	}
	return stats, nil
}
