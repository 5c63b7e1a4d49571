package database

import (
	"context"
	"fmt"
	"time"
)

// IncrementWithExpiry is a single upsert: an absent or expired counter restarts
// at 1 with a new expiry, a live one is incremented in place.
func (s *sqlxStore) IncrementWithExpiry(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl <= 0 {
		return 0, fmt.Errorf("counter ttl must be positive, got %s", ttl)
	}

	now := s.now()
	nowMs := now.UnixMilli()
	expiresAt := now.Add(ttl).UnixMilli()

	var count int64
	err := s.db.GetContext(ctx, &count, `
        INSERT INTO quota_counters (key, count, expires_at) VALUES (?, 1, ?)
        ON CONFLICT (key) DO UPDATE SET
            count = CASE WHEN quota_counters.expires_at <= ? THEN 1 ELSE quota_counters.count + 1 END,
            expires_at = CASE WHEN quota_counters.expires_at <= ? THEN excluded.expires_at ELSE quota_counters.expires_at END
        RETURNING count;
    `, key, expiresAt, nowMs, nowMs)
	if err != nil {
		s.logger.ErrorContext(ctx, "Counter increment failed", "key", key, "error", err)
		return 0, fmt.Errorf("failed to increment counter %q: %w", key, err)
	}
	return count, nil
}

func (s *sqlxStore) DeleteExpiredCounters(ctx context.Context) (int64, error) {
	result, err := s.db.ExecContext(ctx,
		`DELETE FROM quota_counters WHERE expires_at <= ?;`, s.now().UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired counters: %w", err)
	}
	deleted, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read rows affected: %w", err)
	}
	s.logger.InfoContext(ctx, "Expired quota counters removed", "deleted", deleted)
	return deleted, nil
}
