package repositories

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"moodify/internal/shared"
)

const runCacheSchema = `
CREATE TABLE IF NOT EXISTS run_cache (
	key        TEXT PRIMARY KEY,
	value      TEXT NOT NULL,
	expires_at INTEGER NOT NULL DEFAULT 0
);`

// SQLiteCache implements [RunCache] on a local SQLite file.
type SQLiteCache struct {
	db *sql.DB
}

// NewSQLiteCache opens (and if necessary creates) the cache database at path.
// The path ":memory:" is supported for tests.
func NewSQLiteCache(path string) (*SQLiteCache, error) {
	db, err := shared.NewDatabase(path)
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(runCacheSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize run cache schema: %w", err)
	}

	return &SQLiteCache{db: db}, nil
}

func (c *SQLiteCache) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt int64

	row := c.db.QueryRowContext(ctx, "SELECT value, expires_at FROM run_cache WHERE key = ?", key)
	if err := row.Scan(&value, &expiresAt); err != nil {
		if err == sql.ErrNoRows {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read run cache: %w", err)
	}

	if expiresAt > 0 && time.Now().Unix() >= expiresAt {
		return "", false, nil
	}
	return value, true, nil
}

func (c *SQLiteCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	var expiresAt int64
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl).Unix()
	}

	_, err := c.db.ExecContext(ctx,
		`INSERT INTO run_cache (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, expiresAt)
	if err != nil {
		return fmt.Errorf("failed to write run cache: %w", err)
	}
	return nil
}

func (c *SQLiteCache) Close() error {
	return c.db.Close()
}
