// Package cache is a small TTL key/value store backing the daily health
// tip. It replaces what used to be process-global memoized state with an
// explicit lookup/store lifecycle.
package cache

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

type Cache struct {
	db *sql.DB
}

// New prepares the cache table on an already-open database.
func New(db *sql.DB) (*Cache, error) {
	if err := initSchema(db); err != nil {
		return nil, fmt.Errorf("initializing cache schema: %w", err)
	}
	return &Cache{db: db}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS cache_entries (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			expires_at DATETIME NOT NULL,
			created_at DATETIME DEFAULT CURRENT_TIMESTAMP
		);
	`)
	return err
}

// Get returns the value for key if present and unexpired. Expired rows
// are deleted on the way out.
func (c *Cache) Get(ctx context.Context, key string) (string, bool, error) {
	var value string
	var expiresAt time.Time
	err := c.db.QueryRowContext(ctx,
		"SELECT value, expires_at FROM cache_entries WHERE key = ?", key,
	).Scan(&value, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}

	if time.Now().After(expiresAt) {
		_, _ = c.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE key = ?", key)
		return "", false, nil
	}

	return value, true, nil
}

// Put stores value under key for ttl, replacing any previous entry.
func (c *Cache) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	if ttl <= 0 {
		return fmt.Errorf("ttl must be positive")
	}
	_, err := c.db.ExecContext(ctx,
		`INSERT INTO cache_entries (key, value, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value, expires_at = excluded.expires_at`,
		key, value, time.Now().Add(ttl),
	)
	return err
}

// Purge removes every expired entry.
func (c *Cache) Purge(ctx context.Context) error {
	_, err := c.db.ExecContext(ctx, "DELETE FROM cache_entries WHERE expires_at < ?", time.Now())
	return err
}
