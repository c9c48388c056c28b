// Package watcher provides file system watching with debouncing for
// the repository's tag refs and index file, driving show --watch.
package watcher

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/zjrosen/gto/internal/log"
)

// Watcher monitors the repository for registry-relevant changes and
// sends notifications.
type Watcher struct {
	fsWatcher *fsnotify.Watcher
	repoRoot  string
	indexPath string
	debounce  time.Duration
	onChange  chan struct{}
	done      chan struct{}
}

// Config holds watcher configuration options.
type Config struct {
	RepoRoot    string
	IndexPath   string // relative to RepoRoot
	DebounceDur time.Duration
}

// DefaultConfig returns sensible defaults for the watcher.
func DefaultConfig(repoRoot, indexPath string) Config {
	return Config{
		RepoRoot:    repoRoot,
		IndexPath:   indexPath,
		DebounceDur: 1 * time.Second,
	}
}

// New creates a repository watcher.
func New(cfg Config) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}

	return &Watcher{
		fsWatcher: fsw,
		repoRoot:  cfg.RepoRoot,
		indexPath: cfg.IndexPath,
		debounce:  cfg.DebounceDur,
		onChange:  make(chan struct{}, 1),
		done:      make(chan struct{}),
	}, nil
}

// Start begins watching. Returns a channel that receives a signal when
// tags or the index change.
func (w *Watcher) Start() (<-chan struct{}, error) {
	// Tag creations and deletions land under .git/refs/tags; bulk
	// updates rewrite .git/packed-refs.
	watched := []string{
		filepath.Join(w.repoRoot, ".git", "refs", "tags"),
		filepath.Join(w.repoRoot, ".git"),
		filepath.Join(w.repoRoot, filepath.Dir(w.indexPath)),
	}
	added := 0
	for _, dir := range watched {
		if err := w.fsWatcher.Add(dir); err != nil {
			log.Warn(log.CatWatcher, "Cannot watch directory", "dir", dir, "error", err)
			continue
		}
		added++
	}
	if added == 0 {
		return nil, fmt.Errorf("no watchable directories under %s", w.repoRoot)
	}

	go w.loop()

	return w.onChange, nil
}

// Stop terminates the watcher and releases resources.
func (w *Watcher) Stop() error {
	close(w.done)
	return w.fsWatcher.Close()
}

// loop processes file system events with debouncing.
func (w *Watcher) loop() {
	var (
		timer   *time.Timer
		pending bool
	)

	for {
		select {
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}

			if !w.isRelevantEvent(event) {
				continue
			}

			if timer == nil {
				timer = time.NewTimer(w.debounce)
				pending = true
			} else {
				if !timer.Stop() {
					// Drain the timer channel if it already fired
					select {
					case <-timer.C:
					default:
					}
				}
				timer.Reset(w.debounce)
				pending = true
			}

		case <-func() <-chan time.Time {
			if timer != nil {
				return timer.C
			}
			return nil
		}():
			if pending {
				// Non-blocking send - drop if channel full
				select {
				case w.onChange <- struct{}{}:
				default:
				}
				pending = false
			}

		case _, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// isRelevantEvent checks if the event should trigger a re-assembly.
func (w *Watcher) isRelevantEvent(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}

	base := filepath.Base(event.Name)
	if base == filepath.Base(w.indexPath) || base == "packed-refs" {
		return true
	}
	// Anything under refs/tags is a tag ref update.
	return filepath.Base(filepath.Dir(event.Name)) == "tags"
}
