// Package cache implements a two-tier cache for metadata and chunk payloads:
// a bounded in-memory LRU in front of a persistent SQLite table. Entries older
// than the expiry window are misses in both tiers; they are never evicted
// proactively, only overwritten by the next write.
package cache

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/mattn/go-sqlite3"

	"github.com/starford/vocabhive/internal/apperr"
	"github.com/starford/vocabhive/internal/models"
)

// Namespace partitions cache entries.
type Namespace string

// Namespaces.
const (
	NamespaceMetadata Namespace = "metadata"
	NamespaceChunks   Namespace = "chunks"
)

// DefaultExpiry is the freshness window for both tiers.
const DefaultExpiry = time.Hour

const defaultMemoryEntries = 512

const schemaSQL = `
CREATE TABLE IF NOT EXISTS cache_entries (
	namespace TEXT NOT NULL,
	key       TEXT NOT NULL,
	data      BLOB NOT NULL,
	timestamp INTEGER NOT NULL,
	PRIMARY KEY(namespace, key)
);

CREATE INDEX IF NOT EXISTS idx_cache_entries_timestamp ON cache_entries(timestamp);
`

type entry struct {
	data      []byte
	timestamp time.Time
}

// Cache is safe for concurrent use.
type Cache struct {
	mem    *lru.Cache[string, entry]
	db     *sql.DB
	expiry time.Duration
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Cache.
type Option func(*Cache)

// WithExpiry overrides DefaultExpiry.
func WithExpiry(d time.Duration) Option {
	return func(c *Cache) {
		if d > 0 {
			c.expiry = d
		}
	}
}

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// WithLogger sets the logger used for tier-2 read failures.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// Open opens (or creates) the persistent tier at dsn and allocates a memory
// tier holding up to memoryEntries items (a default is used when <= 0).
func Open(dsn string, memoryEntries int, opts ...Option) (*Cache, error) {
	if memoryEntries <= 0 {
		memoryEntries = defaultMemoryEntries
	}
	mem, err := lru.New[string, entry](memoryEntries)
	if err != nil {
		return nil, fmt.Errorf("cache: create memory tier: %w", err)
	}
	conn, err := sql.Open("sqlite3", dsn+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("cache: open db: %w", err)
	}
	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	if _, err := conn.Exec(schemaSQL); err != nil {
		conn.Close()
		return nil, fmt.Errorf("cache: apply schema: %w", err)
	}
	c := &Cache{
		mem:    mem,
		db:     conn,
		expiry: DefaultExpiry,
		now:    time.Now,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Close closes the persistent tier.
func (c *Cache) Close() error {
	return c.db.Close()
}

// SetMetadata stores v under key in the metadata namespace.
func (c *Cache) SetMetadata(ctx context.Context, key string, v any) error {
	return c.set(ctx, NamespaceMetadata, key, v)
}

// GetMetadata decodes a fresh metadata entry into dst and reports whether one was found.
func (c *Cache) GetMetadata(ctx context.Context, key string, dst any) bool {
	return c.get(ctx, NamespaceMetadata, key, dst)
}

// SetChunk stores a chunk's word array under key in the chunks namespace.
func (c *Cache) SetChunk(ctx context.Context, key string, words []models.WordEntry) error {
	return c.set(ctx, NamespaceChunks, key, words)
}

// GetChunk returns a fresh chunk word array for key, if any.
func (c *Cache) GetChunk(ctx context.Context, key string) ([]models.WordEntry, bool) {
	var words []models.WordEntry
	if !c.get(ctx, NamespaceChunks, key, &words) {
		return nil, false
	}
	return words, true
}

// Clear removes key from both tiers and both namespaces.
func (c *Cache) Clear(ctx context.Context, key string) error {
	c.mem.Remove(memKey(NamespaceMetadata, key))
	c.mem.Remove(memKey(NamespaceChunks, key))
	_, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE key = ?`, key)
	return apperr.Storage("cache clear", err)
}

// ClearNamespace removes every entry of one namespace from both tiers.
func (c *Cache) ClearNamespace(ctx context.Context, ns Namespace) error {
	prefix := string(ns) + ":"
	for _, k := range c.mem.Keys() {
		if strings.HasPrefix(k, prefix) {
			c.mem.Remove(k)
		}
	}
	_, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries WHERE namespace = ?`, string(ns))
	return apperr.Storage("cache clear namespace", err)
}

// ClearAll empties both tiers.
func (c *Cache) ClearAll(ctx context.Context) error {
	c.mem.Purge()
	_, err := c.db.ExecContext(ctx, `DELETE FROM cache_entries`)
	return apperr.Storage("cache clear all", err)
}

// set writes both tiers with the current timestamp. The memory tier is
// always updated; a persistent-tier failure is returned as a StorageError.
func (c *Cache) set(ctx context.Context, ns Namespace, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s/%s: %w", ns, key, err)
	}
	now := c.now()
	c.mem.Add(memKey(ns, key), entry{data: data, timestamp: now})

	_, err = c.db.ExecContext(ctx, `
		INSERT INTO cache_entries (namespace, key, data, timestamp) VALUES (?, ?, ?, ?)
		ON CONFLICT(namespace, key) DO UPDATE SET
			data      = excluded.data,
			timestamp = excluded.timestamp
	`, string(ns), key, data, now.UnixMilli())
	return apperr.Storage("cache set", err)
}

// get checks the memory tier, then the persistent tier, promoting fresh
// persistent hits into memory with their original timestamp.
func (c *Cache) get(ctx context.Context, ns Namespace, key string, dst any) bool {
	mk := memKey(ns, key)
	if e, ok := c.mem.Get(mk); ok && c.fresh(e.timestamp) {
		return c.decode(ns, key, e.data, dst)
	}

	var (
		data []byte
		ts   int64
	)
	err := c.db.QueryRowContext(ctx,
		`SELECT data, timestamp FROM cache_entries WHERE namespace = ? AND key = ?`,
		string(ns), key).Scan(&data, &ts)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			c.logger.Warn("cache: persistent read failed",
				slog.String("namespace", string(ns)),
				slog.String("key", key),
				slog.String("error", err.Error()))
		}
		return false
	}
	stamp := time.UnixMilli(ts)
	if !c.fresh(stamp) {
		return false
	}
	if !c.decode(ns, key, data, dst) {
		return false
	}
	c.mem.Add(mk, entry{data: data, timestamp: stamp})
	return true
}

func (c *Cache) fresh(ts time.Time) bool {
	return c.now().Sub(ts) < c.expiry
}

func (c *Cache) decode(ns Namespace, key string, data []byte, dst any) bool {
	if err := json.Unmarshal(data, dst); err != nil {
		c.logger.Warn("cache: decode failed",
			slog.String("namespace", string(ns)),
			slog.String("key", key),
			slog.String("error", err.Error()))
		return false
	}
	return true
}

func memKey(ns Namespace, key string) string {
	return string(ns) + ":" + key
}
