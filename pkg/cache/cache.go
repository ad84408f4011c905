// Package cache keeps finished reports available after their session has
// been swept from the tracker.
package cache

import (
	"context"
	"sync"
	"time"

	"igprofiler/pkg/config"
	"igprofiler/pkg/logger"
)

// KeyPrefix namespaces report keys in shared Redis instances.
const KeyPrefix = "igprofiler:report:"

// ReportCache stores encoded reports by session id. A miss is (nil, false, nil).
type ReportCache interface {
	Get(ctx context.Context, sessionID string) ([]byte, bool, error)
	Set(ctx context.Context, sessionID string, data []byte, ttl time.Duration) error
	Delete(ctx context.Context, sessionID string) error
	Close() error
}

// New returns a RedisCache when an address is configured, otherwise a MemoryCache.
func New(cfg config.CacheConfig, l logger.Logger) ReportCache {
	if cfg.RedisAddr == "" {
		return NewMemoryCache()
	}
	l.WithField("component", "cache").InfoWithFields("Using Redis report cache", map[string]interface{}{
		"addr": cfg.RedisAddr,
		"db":   cfg.RedisDB,
	})
	return NewRedisCache(cfg)
}

func key(sessionID string) string {
	return KeyPrefix + sessionID
}

type memoryEntry struct {
	data    []byte
	expires time.Time
}

// MemoryCache is a process-local ReportCache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryCache creates an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[string]memoryEntry), now: time.Now}
}

func (c *MemoryCache) Get(_ context.Context, sessionID string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key(sessionID)]
	if !ok {
		return nil, false, nil
	}
	if !e.expires.IsZero() && !c.now().Before(e.expires) {
		delete(c.entries, key(sessionID))
		return nil, false, nil
	}
	return append([]byte(nil), e.data...), true, nil
}

// Set stores data. A ttl of zero keeps the entry until Delete.
func (c *MemoryCache) Set(_ context.Context, sessionID string, data []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := memoryEntry{data: append([]byte(nil), data...)}
	if ttl > 0 {
		e.expires = c.now().Add(ttl)
	}
	c.entries[key(sessionID)] = e
	return nil
}

func (c *MemoryCache) Delete(_ context.Context, sessionID string) error {
	c.mu.Lock()
	delete(c.entries, key(sessionID))
	c.mu.Unlock()
	return nil
}

func (c *MemoryCache) Close() error { return nil }
