package watcher

import (
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type pathCollector struct {
	mu    sync.Mutex
	paths []string
}

func (c *pathCollector) handle(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paths = append(c.paths, path)
}

func (c *pathCollector) snapshot() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.paths...)
}

func (c *pathCollector) waitFor(t *testing.T, n int) []string {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if got := c.snapshot(); len(got) >= n {
			return got
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %d paths, got %v", n, c.snapshot())
	return nil
}

func isVideo(name string) bool {
	return strings.HasSuffix(strings.ToLower(name), ".avi")
}

func newTestWatcher(t *testing.T, dir string, c *pathCollector) *Watcher {
	t.Helper()
	w, err := New(dir, 30*time.Millisecond, isVideo, c.handle, nil)
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return w
}

func TestWatcherPicksUpSettledFile(t *testing.T) {
	dir := t.TempDir()
	c := &pathCollector{}
	w := newTestWatcher(t, dir, c)
	require.NoError(t, w.Start())

	path := filepath.Join(dir, "tape.avi")
	require.NoError(t, os.WriteFile(path, []byte("data"), 0o644))

	got := c.waitFor(t, 1)
	assert.Equal(t, []string{path}, got)
}

func TestWatcherIgnoresNonVideo(t *testing.T) {
	dir := t.TempDir()
	c := &pathCollector{}
	w := newTestWatcher(t, dir, c)
	require.NoError(t, w.Start())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tape.avi"), []byte("x"), 0o644))

	got := c.waitFor(t, 1)
	require.Len(t, got, 1)
	assert.True(t, strings.HasSuffix(got[0], "tape.avi"))
}

func TestWatcherReportsFileOnce(t *testing.T) {
	dir := t.TempDir()
	c := &pathCollector{}
	w := newTestWatcher(t, dir, c)
	require.NoError(t, w.Start())

	path := filepath.Join(dir, "tape.avi")
	// A copy in progress: several writes before the file goes quiet.
	f, err := os.Create(path)
	require.NoError(t, err)
	for i := 0; i < 3; i++ {
		_, err = f.Write([]byte("chunk"))
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}
	require.NoError(t, f.Close())

	c.waitFor(t, 1)
	// Give a potential duplicate time to show up.
	time.Sleep(100 * time.Millisecond)
	assert.Len(t, c.snapshot(), 1)
}

func TestRescanFindsPreexistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "b.avi"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.avi"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.txt"), []byte("x"), 0o644))

	c := &pathCollector{}
	w := newTestWatcher(t, dir, c)

	require.NoError(t, w.Rescan())
	got := c.snapshot()
	require.Len(t, got, 2)
	assert.Equal(t, filepath.Join(dir, "a.avi"), got[0])
	assert.Equal(t, filepath.Join(dir, "b.avi"), got[1])

	// A second rescan reports nothing new.
	require.NoError(t, w.Rescan())
	assert.Len(t, c.snapshot(), 2)
}

func TestNewRejectsMissingDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "nope"), time.Second, isVideo, func(string) {}, nil)
	assert.Error(t, err)
}
