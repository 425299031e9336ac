// Package cache fronts the store with a read-through/write-through cache.
// The cache is advisory: every value it holds also lives in the store, so
// dropping it (or running with a nil *Cache) changes latency, never
// correctness.
package cache

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Class selects the TTL bucket a key lives in. High-churn counters go in
// Short, chat data in Medium, rarely-changing reference data in Long.
type Class int

const (
	Short Class = iota
	Medium
	Long
)

// Config sets the TTL per class and the entry cap shared by each bucket.
type Config struct {
	ShortTTL   time.Duration
	MediumTTL  time.Duration
	LongTTL    time.Duration
	MaxEntries int
}

// DefaultConfig returns the TTLs used when the config file does not
// override them.
func DefaultConfig() Config {
	return Config{
		ShortTTL:   time.Minute,
		MediumTTL:  5 * time.Minute,
		LongTTL:    time.Hour,
		MaxEntries: 4096,
	}
}

// Cache is a set of three expiring LRU buckets, one per TTL class. All
// methods are safe on a nil receiver so callers never special-case a
// disabled cache.
type Cache struct {
	buckets [3]*expirable.LRU[string, any]
}

// New builds a cache with the given TTL classes.
func New(cfg Config) *Cache {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = DefaultConfig().MaxEntries
	}
	var c Cache
	for class, ttl := range map[Class]time.Duration{
		Short:  cfg.ShortTTL,
		Medium: cfg.MediumTTL,
		Long:   cfg.LongTTL,
	} {
		c.buckets[class] = expirable.NewLRU[string, any](cfg.MaxEntries, nil, ttl)
	}
	return &c
}

// Get returns the cached value for key, if present and unexpired.
func (c *Cache) Get(class Class, key string) (any, bool) {
	if c == nil {
		return nil, false
	}
	return c.buckets[class].Get(key)
}

// Set stores a value under key in the class bucket.
func (c *Cache) Set(class Class, key string, value any) {
	if c == nil {
		return
	}
	c.buckets[class].Add(key, value)
}

// Delete invalidates keys. Mutators always delete, never overwrite with
// derived data, so a racing reader can at worst repopulate from the store.
func (c *Cache) Delete(class Class, keys ...string) {
	if c == nil {
		return
	}
	for _, k := range keys {
		c.buckets[class].Remove(k)
	}
}
