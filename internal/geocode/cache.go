package geocode

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	_ "modernc.org/sqlite" // Register driver
)

// Cache is a sqlite store of geocoding answers keyed by query.
type Cache struct {
	db *sql.DB
}

// OpenCache opens (creating if needed) the cache database at path. An
// empty path keeps the cache in memory.
func OpenCache(path string) (*Cache, error) {
	dsn := ":memory:"
	if path != "" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create cache dir: %w", err)
		}
		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping cache: %w", err)
	}
	// single writer avoids SQLITE_BUSY
	db.SetMaxOpenConns(1)

	c := &Cache{db: db}
	if err := c.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return c, nil
}

func (c *Cache) migrate() error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS geocode_cache (
			query TEXT PRIMARY KEY,
			json TEXT NOT NULL,
			fetched_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_geocode_cache_fetched_at ON geocode_cache(fetched_at)`,
	}
	for _, q := range queries {
		if _, err := c.db.Exec(q); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Get loads the value cached under key into v.
func (c *Cache) Get(ctx context.Context, key string, v any) (bool, error) {
	var raw string
	err := c.db.QueryRowContext(ctx, `SELECT json FROM geocode_cache WHERE query = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return false, fmt.Errorf("decode cached %q: %w", key, err)
	}
	return true, nil
}

// Put stores v under key.
func (c *Cache) Put(ctx context.Context, key string, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_, err = c.db.ExecContext(ctx,
		`INSERT OR REPLACE INTO geocode_cache(query, json, fetched_at) VALUES(?, ?, CURRENT_TIMESTAMP)`,
		key, string(b))
	return err
}

// Prune removes entries older than olderThan.
func (c *Cache) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	deadline := time.Now().Add(-olderThan).UTC().Format("2006-01-02 15:04:05")
	res, err := c.db.ExecContext(ctx, `DELETE FROM geocode_cache WHERE fetched_at < ?`, deadline)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Len returns the number of cached entries.
func (c *Cache) Len(ctx context.Context) (int, error) {
	var n int
	err := c.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM geocode_cache`).Scan(&n)
	return n, err
}

// Cached serves lookups from a [Cache] before asking the wrapped provider.
// Only definitive answers (OK and ZERO_RESULTS) are stored.
type Cached struct {
	next   Provider
	cache  *Cache
	logger *slog.Logger
}

// NewCached wraps next with cache.
func NewCached(next Provider, cache *Cache, logger *slog.Logger) *Cached {
	return &Cached{next: next, cache: cache, logger: logger}
}

// Geocode implements [Geocoder].
func (c *Cached) Geocode(ctx context.Context, address string) (Result, error) {
	key := "search:" + address
	var r Result
	if hit, err := c.cache.Get(ctx, key, &r); err != nil {
		c.logger.Warn("geocode cache read failed", "query", address, "error", err)
	} else if hit {
		c.logger.Debug("Cache Hit", "query", address)
		return r, nil
	}

	r, err := c.next.Geocode(ctx, address)
	if err != nil {
		return r, err
	}
	if r.Status == StatusOK || r.Status == StatusZeroResults {
		if err := c.cache.Put(ctx, key, r); err != nil {
			c.logger.Warn("geocode cache write failed", "query", address, "error", err)
		}
	}
	return r, nil
}

// Reverse implements [ReverseGeocoder].
func (c *Cached) Reverse(ctx context.Context, lat, lng float64) (string, error) {
	key := "reverse:" + strconv.FormatFloat(lat, 'f', -1, 64) + "," + strconv.FormatFloat(lng, 'f', -1, 64)
	var addr string
	if hit, err := c.cache.Get(ctx, key, &addr); err == nil && hit {
		return addr, nil
	}

	addr, err := c.next.Reverse(ctx, lat, lng)
	if err != nil {
		return "", err
	}
	if addr != "" {
		if err := c.cache.Put(ctx, key, addr); err != nil {
			c.logger.Warn("geocode cache write failed", "key", key, "error", err)
		}
	}
	return addr, nil
}
