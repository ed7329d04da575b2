// Package syncer reconciles persisted file references against the remote
// source on a fixed schedule.
package syncer

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/crs4/moodle.omero-repository/internal/api"
	"github.com/crs4/moodle.omero-repository/internal/constants"
	"github.com/crs4/moodle.omero-repository/internal/logging"
	"github.com/crs4/moodle.omero-repository/internal/metrics"
	"github.com/crs4/moodle.omero-repository/internal/models"
	"github.com/crs4/moodle.omero-repository/internal/refs"
)

// Remote is the slice of the API client the syncer consumes.
type Remote interface {
	FetchShareLink(ctx context.Context, remotePath string, creds models.Credentials) (string, error)
	ProbeSize(ctx context.Context, absURL string) (int64, error)
	DownloadURL(ctx context.Context, absURL, dst string) error
}

// webImageExts is the cache-eagerly MIME group: files in it are re-fetched
// whole during sync, everything else only gets a size probe.
var webImageExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".webp": {},
}

// Syncer walks all stored references and refreshes their size and
// availability metadata.
type Syncer struct {
	store      *refs.Store
	remote     Remote
	logger     *logging.Logger
	staleAfter time.Duration
	workers    int64
}

// New creates a Syncer with the default staleness window (one day).
func New(store *refs.Store, remote Remote, logger *logging.Logger) *Syncer {
	return &Syncer{
		store:      store,
		remote:     remote,
		logger:     logger.Component("syncer"),
		staleAfter: constants.SyncStaleAfter,
		workers:    constants.SyncWorkers,
	}
}

// Sweep processes every stored reference once. One file's failure never
// aborts the batch: per-file errors are logged and swallowed.
func (s *Syncer) Sweep(ctx context.Context) {
	references, err := s.store.List()
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to list references")
		return
	}

	sem := semaphore.NewWeighted(s.workers)
	var wg sync.WaitGroup
	for i := range references {
		ref := references[i]
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		wg.Add(1)
		go func() {
			defer sem.Release(1)
			defer wg.Done()
			s.syncOne(ctx, &ref)
		}()
	}
	wg.Wait()
}

// syncOne refreshes a single reference. Outcomes are counted, failures
// logged at warn and swallowed.
func (s *Syncer) syncOne(ctx context.Context, ref *refs.FileReference) {
	outcome, err := s.Sync(ctx, ref)
	metrics.SyncOutcomes.WithLabelValues(outcome).Inc()
	if err != nil {
		s.logger.Warn().Str("ref", ref.ID).Err(err).Msg("reference sync failed")
	}
}

// Sync refreshes one reference and returns the outcome label. References
// synced within the staleness window are skipped.
func (s *Syncer) Sync(ctx context.Context, ref *refs.FileReference) (string, error) {
	if !ref.StaleSince(time.Now().Add(-s.staleAfter)) {
		return "skipped", nil
	}

	if ref.IsLegacy() {
		if _, err := s.MigrateLegacy(ctx, ref); err != nil {
			return "error", err
		}
	}
	if ref.ResolvedURL == "" {
		// Nothing durable to check against yet; try again next sweep.
		return "unresolved", nil
	}

	if isWebImage(ref.RemotePath) {
		if size, err := s.refresh(ctx, ref); err == nil {
			return s.record(ref, size, false)
		} else if errors.Is(err, api.ErrSourceGone) {
			return s.record(ref, ref.KnownSize, true)
		}
		// Fall back to a size probe when the full fetch fails for any other
		// reason; a slow image must not mark the source lost.
	}

	size, err := s.remote.ProbeSize(ctx, ref.ResolvedURL)
	switch {
	case errors.Is(err, api.ErrSourceGone):
		return s.record(ref, ref.KnownSize, true)
	case err != nil:
		return "error", err
	case size >= 0:
		return s.record(ref, size, false)
	}
	return "unchanged", nil
}

// refresh downloads the full bytes to a temp file and returns their size.
// The temp copy is discarded; only the metadata survives.
func (s *Syncer) refresh(ctx context.Context, ref *refs.FileReference) (int64, error) {
	tmp, err := os.CreateTemp("", "omero-sync-*")
	if err != nil {
		return -1, err
	}
	tmpPath := tmp.Name()
	tmp.Close()
	defer os.Remove(tmpPath)

	if err := s.remote.DownloadURL(ctx, ref.ResolvedURL, tmpPath); err != nil {
		return -1, err
	}
	info, err := os.Stat(tmpPath)
	if err != nil {
		return -1, err
	}
	return info.Size(), nil
}

func (s *Syncer) record(ref *refs.FileReference, size int64, missing bool) (string, error) {
	ref.KnownSize = size
	ref.MissingSource = missing
	ref.LastSync = time.Now()
	if err := s.store.Put(ref); err != nil {
		return "error", err
	}
	if missing {
		return "missing", nil
	}
	return "synced", nil
}

// MigrateLegacy converts a credentials-only reference in place: fetch a
// durable share link while the credentials are still valid, store it, then
// strip the credentials from the persisted record. Running it on an
// already-migrated reference is a no-op.
func (s *Syncer) MigrateLegacy(ctx context.Context, ref *refs.FileReference) (bool, error) {
	if !ref.IsLegacy() {
		return false, nil
	}

	creds := models.Credentials{AccessKey: ref.AccessKey, AccessSecret: ref.AccessSecret}
	link, err := s.remote.FetchShareLink(ctx, ref.RemotePath, creds)
	if err != nil {
		return false, err
	}
	if link == "" {
		// No durable link available; keep the reference untouched for now.
		return false, nil
	}

	ref.ResolvedURL = link
	ref.AccessKey = ""
	ref.AccessSecret = ""
	if err := s.store.Put(ref); err != nil {
		return false, err
	}
	return true, nil
}

// RunLoop sweeps immediately and then on every tick until ctx is done.
// time.NewTicker panics on non-positive intervals, so those are floored.
func (s *Syncer) RunLoop(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	s.logger.Info().Dur("interval", interval).Msg("sync loop started")
	s.Sweep(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("sync loop stopped")
			return
		case <-ticker.C:
			s.Sweep(ctx)
		}
	}
}

func isWebImage(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	_, ok := webImageExts[ext]
	return ok
}
