package cache

import (
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/crs4/moodle.omero-repository/internal/config"
	"github.com/crs4/moodle.omero-repository/internal/constants"
	"github.com/crs4/moodle.omero-repository/internal/logging"
	"github.com/crs4/moodle.omero-repository/internal/metrics"
)

// PopulateFunc produces fresh bytes for a cache key on a miss.
type PopulateFunc func() ([]byte, error)

// ReferenceCache serves bytes for previously referenced remote files,
// guaranteeing at most one concurrent populate per key.
type ReferenceCache struct {
	store       Store
	cfg         config.Store
	logger      *logging.Logger
	lockTimeout time.Duration

	limitOnce sync.Once
	limit     int64
}

// New creates a ReferenceCache over the given store. The max-cache-bytes
// policy is read lazily from cfg on first use and memoized for the cache's
// lifetime.
func New(store Store, cfg config.Store, logger *logging.Logger) *ReferenceCache {
	return &ReferenceCache{
		store:       store,
		cfg:         cfg,
		logger:      logger.Component("cache"),
		lockTimeout: constants.DefaultLockTimeout,
	}
}

// Key derives the cache identity for an image revision. Embedding the
// last-update timestamp makes a changed image land on a new key, so no
// explicit invalidation exists anywhere.
func Key(server string, imageID, lastUpdate int64) string {
	return url.QueryEscape(fmt.Sprintf("%s-%d-%d", server, imageID, lastUpdate))
}

// Get is a pure read against the backing store.
func (c *ReferenceCache) Get(key string) ([]byte, bool) {
	return c.store.Get(key)
}

// GetOrPopulate returns the cached bytes for key, populating them under the
// key's lock on a miss. Concurrent callers for the same key wait for the one
// populate; callers for different keys proceed in parallel. A populate
// failure leaves the cache unmodified.
func (c *ReferenceCache) GetOrPopulate(key string, populate PopulateFunc, forceReload bool) ([]byte, error) {
	if !forceReload {
		if data, ok := c.store.Get(key); ok {
			metrics.CacheHits.Inc()
			return data, nil
		}
	}

	if err := c.store.AcquireLock(key, c.lockTimeout); err != nil {
		return nil, err
	}
	defer c.store.ReleaseLock(key)

	// Re-check under the lock: the populate we waited on may have resolved
	// the miss already.
	if !forceReload {
		if data, ok := c.store.Get(key); ok {
			metrics.CacheHits.Inc()
			return data, nil
		}
	}

	metrics.CacheMisses.Inc()
	data, err := populate()
	if err != nil {
		c.logger.Debug().Str("key", key).Err(err).Msg("populate failed")
		return nil, fmt.Errorf("source unavailable for %s: %w", key, err)
	}

	c.store.Set(key, data)
	metrics.CachePopulates.Inc()
	return data, nil
}

// MaxCacheBytes returns the size cap for locally imported files. Zero means
// unbounded. Loaded once, then memoized.
func (c *ReferenceCache) MaxCacheBytes() int64 {
	c.limitOnce.Do(func() {
		raw := c.cfg.Value(config.KeyCacheLimit)
		limit, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || limit < 0 {
			limit = 0
		}
		c.limit = limit
	})
	return c.limit
}

// ShouldCache reports whether a file of the declared size may be imported
// locally. Files over the cap are served by redirect instead.
func (c *ReferenceCache) ShouldCache(sizeBytes int64) bool {
	limit := c.MaxCacheBytes()
	return limit == 0 || sizeBytes <= limit
}
