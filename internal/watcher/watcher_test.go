package watcher

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/require"
)

func newTestRepo(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "refs", "tags"), 0o755))
	return root
}

func TestWatcher_SignalsOnIndexWrite(t *testing.T) {
	root := newTestRepo(t)
	cfg := DefaultConfig(root, "artifacts.yaml")
	cfg.DebounceDur = 50 * time.Millisecond

	w, err := New(cfg)
	require.NoError(t, err)
	changes, err := w.Start()
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	require.NoError(t, os.WriteFile(filepath.Join(root, "artifacts.yaml"), []byte("rf:\n"), 0o644))

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change signal after writing the index")
	}
}

func TestWatcher_SignalsOnTagRef(t *testing.T) {
	root := newTestRepo(t)
	cfg := DefaultConfig(root, "artifacts.yaml")
	cfg.DebounceDur = 50 * time.Millisecond

	w, err := New(cfg)
	require.NoError(t, err)
	changes, err := w.Start()
	require.NoError(t, err)
	defer func() { _ = w.Stop() }()

	tagPath := filepath.Join(root, ".git", "refs", "tags", "rf@v1")
	require.NoError(t, os.WriteFile(tagPath, []byte("abc123\n"), 0o644))

	select {
	case <-changes:
	case <-time.After(2 * time.Second):
		t.Fatal("expected a change signal after creating a tag ref")
	}
}

func TestIsRelevantEvent(t *testing.T) {
	w := &Watcher{indexPath: "artifacts.yaml"}

	require.True(t, w.isRelevantEvent(fsnotify.Event{
		Name: "/repo/artifacts.yaml", Op: fsnotify.Write,
	}))
	require.True(t, w.isRelevantEvent(fsnotify.Event{
		Name: "/repo/.git/refs/tags/rf@v1", Op: fsnotify.Create,
	}))
	require.True(t, w.isRelevantEvent(fsnotify.Event{
		Name: "/repo/.git/packed-refs", Op: fsnotify.Write,
	}))
	require.False(t, w.isRelevantEvent(fsnotify.Event{
		Name: "/repo/README.md", Op: fsnotify.Write,
	}))
	require.False(t, w.isRelevantEvent(fsnotify.Event{
		Name: "/repo/artifacts.yaml", Op: fsnotify.Chmod,
	}), "chmod alone is not a change")
}

func TestWatcher_StopIsClean(t *testing.T) {
	root := newTestRepo(t)
	w, err := New(DefaultConfig(root, "artifacts.yaml"))
	require.NoError(t, err)
	_, err = w.Start()
	require.NoError(t, err)
	require.NoError(t, w.Stop())
}
