// Package cache implements the size-bounded, lock-protected byte cache for
// externally referenced files.
package cache

import (
	"errors"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"

	"github.com/crs4/moodle.omero-repository/internal/constants"
)

// ErrLockTimeout is returned when the per-key lock cannot be acquired within
// the configured bound. Callers treat it like a temporarily unreachable
// source and retry later.
var ErrLockTimeout = errors.New("cache lock acquisition timed out")

// Store is the capability contract the cache requires from its backing
// key-value store: byte storage with TTL plus per-key mutual exclusion.
// Unrelated keys must never block each other.
type Store interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte)

	// AcquireLock blocks until the key's lock is held or the timeout
	// expires. A non-positive timeout waits indefinitely.
	AcquireLock(key string, timeout time.Duration) error
	ReleaseLock(key string)
}

// MemoryStore is the in-process Store implementation: TTL-evicting byte
// storage with a refcounted lock table.
type MemoryStore struct {
	data *gocache.Cache

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	sem  chan struct{}
	refs int
}

// NewMemoryStore creates a store whose entries expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = constants.ThumbnailTTL
	}
	return &MemoryStore{
		data:  gocache.New(ttl, constants.CacheSweepInterval),
		locks: make(map[string]*keyLock),
	}
}

// Get implements Store.
func (s *MemoryStore) Get(key string) ([]byte, bool) {
	v, ok := s.data.Get(key)
	if !ok {
		return nil, false
	}
	return v.([]byte), true
}

// Set implements Store. Entries are always replaced whole, never mutated.
func (s *MemoryStore) Set(key string, value []byte) {
	s.data.Set(key, value, gocache.DefaultExpiration)
}

// AcquireLock implements Store.
func (s *MemoryStore) AcquireLock(key string, timeout time.Duration) error {
	s.mu.Lock()
	kl, ok := s.locks[key]
	if !ok {
		kl = &keyLock{sem: make(chan struct{}, 1)}
		s.locks[key] = kl
	}
	kl.refs++
	s.mu.Unlock()

	if timeout <= 0 {
		kl.sem <- struct{}{}
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case kl.sem <- struct{}{}:
		return nil
	case <-timer.C:
		s.unref(key, kl)
		return ErrLockTimeout
	}
}

// ReleaseLock implements Store. Releasing an unheld lock is a no-op.
func (s *MemoryStore) ReleaseLock(key string) {
	s.mu.Lock()
	kl, ok := s.locks[key]
	s.mu.Unlock()
	if !ok {
		return
	}
	select {
	case <-kl.sem:
	default:
	}
	s.unref(key, kl)
}

func (s *MemoryStore) unref(key string, kl *keyLock) {
	s.mu.Lock()
	kl.refs--
	if kl.refs <= 0 {
		delete(s.locks, key)
	}
	s.mu.Unlock()
}
