// Package constants defines shared timeouts and defaults for the OMERO
// repository service.
package constants

import "time"

// Remote HTTP behaviour
const (
	// HTTPIdleConnTimeout - how long idle connections to the OMERO server
	// are kept in the pool.
	HTTPIdleConnTimeout = 90 * time.Second

	// HTTPTLSHandshakeTimeout - TLS handshake limit for remote connections.
	HTTPTLSHandshakeTimeout = 30 * time.Second

	// HTTPExpectContinueTimeout - wait for HTTP 100-continue.
	HTTPExpectContinueTimeout = 5 * time.Second

	// RetryMax - retryablehttp attempt budget for idempotent remote calls.
	RetryMax = 4

	// RetryWaitMin and RetryWaitMax bound the retry backoff.
	RetryWaitMin = 1 * time.Second
	RetryWaitMax = 15 * time.Second
)

// Cache behaviour
const (
	// ThumbnailTTL - lifetime of a cached thumbnail. The cache key embeds the
	// image's last-update timestamp, so a changed image always lands on a new
	// key; the TTL only bounds growth for images that never change.
	ThumbnailTTL = 30 * 24 * time.Hour

	// CacheSweepInterval - how often the in-memory store purges expired
	// entries.
	CacheSweepInterval = 1 * time.Hour

	// DefaultLockTimeout - bound on waiting for another request populating
	// the same cache key.
	DefaultLockTimeout = 30 * time.Second
)

// Sync behaviour
const (
	// SyncStaleAfter - references synced more recently than this are skipped
	// by the sweep.
	SyncStaleAfter = 24 * time.Hour

	// SyncWorkers - bounded parallelism of the reference sweep.
	SyncWorkers = 4
)

// Thumbnail defaults served by the HTTP endpoint.
const (
	DefaultThumbnailWidth  = 128
	DefaultThumbnailHeight = 128
)
