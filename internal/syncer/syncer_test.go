package syncer

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/crs4/moodle.omero-repository/internal/api"
	"github.com/crs4/moodle.omero-repository/internal/logging"
	"github.com/crs4/moodle.omero-repository/internal/models"
	"github.com/crs4/moodle.omero-repository/internal/refs"
)

// fakeRemote counts calls and serves scripted results. Sweep runs workers
// in parallel, so the counters are mutex-protected.
type fakeRemote struct {
	mu            sync.Mutex
	shareCalls    int
	shareLink     string
	shareErr      error
	probeCalls    int
	probeSize     int64
	probeErr      error
	downloadCalls int
	downloadBody  []byte
	downloadErr   error
}

func (f *fakeRemote) FetchShareLink(context.Context, string, models.Credentials) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.shareCalls++
	return f.shareLink, f.shareErr
}

func (f *fakeRemote) ProbeSize(context.Context, string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probeCalls++
	return f.probeSize, f.probeErr
}

func (f *fakeRemote) DownloadURL(_ context.Context, _ string, dst string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.downloadCalls++
	if f.downloadErr != nil {
		return f.downloadErr
	}
	return os.WriteFile(dst, f.downloadBody, 0o600)
}

func (f *fakeRemote) probed() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.probeCalls
}

func newTestSyncer(t *testing.T, remote *fakeRemote) (*Syncer, *refs.Store) {
	t.Helper()
	store, err := refs.Open(filepath.Join(t.TempDir(), "refs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return New(store, remote, logging.New(io.Discard)), store
}

func TestSyncSkipsRecentlySynced(t *testing.T) {
	remote := &fakeRemote{}
	s, store := newTestSyncer(t, remote)

	ref := &refs.FileReference{
		ID:          "r1",
		RemotePath:  "/data.bin",
		ResolvedURL: "http://dl.example.org/data.bin",
		LastSync:    time.Now().Add(-time.Hour),
	}
	require.NoError(t, store.Put(ref))

	outcome, err := s.Sync(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "skipped", outcome)
	assert.Zero(t, remote.probeCalls)
	assert.Zero(t, remote.downloadCalls)
}

func TestSyncProbesStaleReference(t *testing.T) {
	remote := &fakeRemote{probeSize: 4096}
	s, store := newTestSyncer(t, remote)

	ref := &refs.FileReference{
		ID:          "r1",
		RemotePath:  "/data.bin",
		ResolvedURL: "http://dl.example.org/data.bin",
		LastSync:    time.Now().Add(-48 * time.Hour),
	}
	require.NoError(t, store.Put(ref))

	outcome, err := s.Sync(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "synced", outcome)
	assert.Equal(t, 1, remote.probeCalls)
	assert.Zero(t, remote.downloadCalls)

	got, err := store.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, int64(4096), got.KnownSize)
	assert.WithinDuration(t, time.Now(), got.LastSync, time.Minute)
	assert.False(t, got.MissingSource)
}

// Web images are re-fetched whole; their size comes from the actual bytes,
// not from a header.
func TestSyncRefetchesWebImage(t *testing.T) {
	remote := &fakeRemote{downloadBody: []byte("12345")}
	s, store := newTestSyncer(t, remote)

	ref := &refs.FileReference{
		ID:          "r1",
		RemotePath:  "/thumb.png",
		ResolvedURL: "http://dl.example.org/thumb.png",
	}
	require.NoError(t, store.Put(ref))

	outcome, err := s.Sync(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "synced", outcome)
	assert.Equal(t, 1, remote.downloadCalls)
	assert.Zero(t, remote.probeCalls)

	got, err := store.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.KnownSize)
}

func TestSyncMarksGoneSourceMissing(t *testing.T) {
	remote := &fakeRemote{probeErr: fmt.Errorf("probe: %w", api.ErrSourceGone)}
	s, store := newTestSyncer(t, remote)

	ref := &refs.FileReference{
		ID:          "r1",
		RemotePath:  "/data.bin",
		ResolvedURL: "http://dl.example.org/data.bin",
	}
	require.NoError(t, store.Put(ref))

	outcome, err := s.Sync(context.Background(), ref)
	require.NoError(t, err)
	assert.Equal(t, "missing", outcome)

	got, err := store.Get("r1")
	require.NoError(t, err)
	assert.True(t, got.MissingSource)
}

// A transient failure neither marks the source missing nor updates the sync
// timestamp, so the next sweep retries.
func TestSyncTransientFailureRetriesLater(t *testing.T) {
	remote := &fakeRemote{probeErr: api.ErrRemoteUnavailable}
	s, store := newTestSyncer(t, remote)

	ref := &refs.FileReference{
		ID:          "r1",
		RemotePath:  "/data.bin",
		ResolvedURL: "http://dl.example.org/data.bin",
	}
	require.NoError(t, store.Put(ref))

	outcome, err := s.Sync(context.Background(), ref)
	assert.Equal(t, "error", outcome)
	assert.ErrorIs(t, err, api.ErrRemoteUnavailable)

	got, getErr := store.Get("r1")
	require.NoError(t, getErr)
	assert.False(t, got.MissingSource)
	assert.True(t, got.LastSync.IsZero())
}

func TestMigrateLegacy(t *testing.T) {
	remote := &fakeRemote{shareLink: "http://dl.example.org/shared/a.tiff"}
	s, store := newTestSyncer(t, remote)

	ref := &refs.FileReference{
		ID:           "r1",
		RemotePath:   "/a.tiff",
		AccessKey:    "k",
		AccessSecret: "sec",
	}
	require.NoError(t, store.Put(ref))

	changed, err := s.MigrateLegacy(context.Background(), ref)
	require.NoError(t, err)
	assert.True(t, changed)

	got, err := store.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, "http://dl.example.org/shared/a.tiff", got.ResolvedURL)
	assert.Empty(t, got.AccessKey)
	assert.Empty(t, got.AccessSecret)

	// Second run: already migrated, no remote call.
	changed, err = s.MigrateLegacy(context.Background(), got)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, 1, remote.shareCalls)
}

// No share link available: the reference keeps its credentials and the
// migration retries on a later sweep.
func TestMigrateLegacyNoLinkKeepsCredentials(t *testing.T) {
	remote := &fakeRemote{shareLink: ""}
	s, store := newTestSyncer(t, remote)

	ref := &refs.FileReference{ID: "r1", RemotePath: "/a.tiff", AccessKey: "k"}
	require.NoError(t, store.Put(ref))

	changed, err := s.MigrateLegacy(context.Background(), ref)
	require.NoError(t, err)
	assert.False(t, changed)

	got, err := store.Get("r1")
	require.NoError(t, err)
	assert.Equal(t, "k", got.AccessKey)
	assert.True(t, got.IsLegacy())
}

// A non-positive interval must not crash the loop; it is floored and the
// loop still honors cancellation.
func TestRunLoopFloorsNonPositiveInterval(t *testing.T) {
	s, _ := newTestSyncer(t, &fakeRemote{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		s.RunLoop(ctx, 0)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("loop did not stop on cancelled context")
	}
}

func TestSweepProcessesAllReferences(t *testing.T) {
	remote := &fakeRemote{probeSize: 10}
	s, store := newTestSyncer(t, remote)

	for i := 0; i < 5; i++ {
		require.NoError(t, store.Put(&refs.FileReference{
			ID:          fmt.Sprintf("r%d", i),
			RemotePath:  "/data.bin",
			ResolvedURL: "http://dl.example.org/data.bin",
		}))
	}

	s.Sweep(context.Background())
	assert.Equal(t, 5, remote.probed())

	all, err := store.List()
	require.NoError(t, err)
	for _, ref := range all {
		assert.Equal(t, int64(10), ref.KnownSize)
	}
}
