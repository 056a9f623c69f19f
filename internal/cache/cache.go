// Package cache keeps time-stamped snapshots of each collection so the store
// has something to show when the remote service cannot be reached at load time.
// The cache is advisory: reads never fail, they only come back empty.
package cache

import (
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/marcus/tally/internal/localstore"
)

// KeyPrefix namespaces cache entries inside the local store.
const KeyPrefix = "finance_cache_"

// DefaultTTL is how long a snapshot stays usable.
const DefaultTTL = 24 * time.Hour

// Storage is the subset of the local store the cache needs.
type Storage interface {
	Get(key string) ([]byte, bool, error)
	Set(key string, value []byte) error
	Remove(key string) error
	Keys(prefix string) ([]string, error)
}

// entry is the persisted envelope; Timestamp is unix milliseconds.
type entry struct {
	Data      json.RawMessage `json:"data"`
	Timestamp int64           `json:"timestamp"`
}

// Cache reads and writes collection snapshots.
type Cache struct {
	storage Storage
	ttl     time.Duration
	now     func() time.Time
}

// Option configures a Cache.
type Option func(*Cache)

// WithTTL overrides DefaultTTL.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithClock replaces time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Cache) { c.now = now }
}

// New returns a cache over storage.
func New(storage Storage, opts ...Option) *Cache {
	c := &Cache{storage: storage, ttl: DefaultTTL, now: time.Now}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Write stores data under key with the current time. It is best effort: when
// storage is full expired entries are purged and the write is dropped.
func (c *Cache) Write(key string, data any) {
	raw, err := json.Marshal(data)
	if err != nil {
		slog.Warn("cache: marshal", "key", key, "err", err)
		return
	}
	value, err := json.Marshal(entry{Data: raw, Timestamp: c.now().UnixMilli()})
	if err != nil {
		slog.Warn("cache: marshal entry", "key", key, "err", err)
		return
	}

	if err := c.storage.Set(KeyPrefix+key, value); err != nil {
		if errors.Is(err, localstore.ErrQuotaExceeded) {
			n := c.PurgeExpired()
			slog.Warn("cache: storage full, purged expired entries", "key", key, "purged", n)
			return
		}
		slog.Warn("cache: write", "key", key, "err", err)
	}
}

// Read decodes the entry under key into into. It returns false when the entry
// is missing, expired (the entry is deleted) or cannot be decoded.
func (c *Cache) Read(key string, into any) bool {
	value, ok, err := c.storage.Get(KeyPrefix + key)
	if err != nil {
		slog.Debug("cache: read", "key", key, "err", err)
		return false
	}
	if !ok {
		return false
	}

	var e entry
	if err := json.Unmarshal(value, &e); err != nil {
		slog.Debug("cache: decode entry", "key", key, "err", err)
		return false
	}
	if c.expired(e) {
		if err := c.storage.Remove(KeyPrefix + key); err != nil {
			slog.Debug("cache: remove expired", "key", key, "err", err)
		}
		return false
	}
	if err := json.Unmarshal(e.Data, into); err != nil {
		slog.Debug("cache: decode data", "key", key, "err", err)
		return false
	}
	return true
}

// Age returns how old the entry under key is. The bool is false when there is
// no readable entry.
func (c *Cache) Age(key string) (time.Duration, bool) {
	value, ok, err := c.storage.Get(KeyPrefix + key)
	if err != nil || !ok {
		return 0, false
	}
	var e entry
	if err := json.Unmarshal(value, &e); err != nil {
		return 0, false
	}
	return c.now().Sub(time.UnixMilli(e.Timestamp)), true
}

// PurgeExpired removes every cache entry older than the TTL, plus entries that
// no longer decode. Returns the number removed.
func (c *Cache) PurgeExpired() int {
	keys, err := c.storage.Keys(KeyPrefix)
	if err != nil {
		slog.Warn("cache: list keys", "err", err)
		return 0
	}

	removed := 0
	for _, k := range keys {
		value, ok, err := c.storage.Get(k)
		if err != nil || !ok {
			continue
		}
		var e entry
		if json.Unmarshal(value, &e) == nil && !c.expired(e) {
			continue
		}
		if err := c.storage.Remove(k); err != nil {
			slog.Warn("cache: purge", "key", strings.TrimPrefix(k, KeyPrefix), "err", err)
			continue
		}
		removed++
	}
	return removed
}

func (c *Cache) expired(e entry) bool {
	return c.now().Sub(time.UnixMilli(e.Timestamp)) > c.ttl
}
