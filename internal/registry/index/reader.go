package index

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/zjrosen/gto/internal/cachemanager"
	"github.com/zjrosen/gto/internal/git"
	"github.com/zjrosen/gto/internal/log"
	"github.com/zjrosen/gto/internal/registry/errs"
)

// Reader loads the index at a commit or from the working tree. Parses
// are memoised per commit sha: the blob at a sha never changes, so the
// cache can never go stale within a process.
type Reader struct {
	exec  git.Executor
	path  string // index path relative to the repo root
	cache *cachemanager.InMemoryCacheManager[Index]
}

// NewReader creates a Reader for the index file at path.
func NewReader(exec git.Executor, path string) *Reader {
	return &Reader{
		exec: exec,
		path: path,
		cache: cachemanager.NewInMemoryCacheManager[Index](
			"index", cachemanager.DefaultExpiration, cachemanager.DefaultCleanupInterval),
	}
}

// AtCommit reads the index at a commit. A missing file yields an empty
// index. Malformed content is reported as a validation error; callers
// scanning history downgrade it (see AtCommitLenient).
func (r *Reader) AtCommit(ctx context.Context, commit string) (Index, error) {
	if idx, ok := r.cache.Get(ctx, commit); ok {
		return idx, nil
	}
	data, err := r.exec.FileAtCommit(ctx, commit, r.path)
	if err != nil {
		if errors.Is(err, git.ErrFileNotFound) {
			idx := Index{}
			r.cache.Set(ctx, commit, idx, cachemanager.DefaultExpiration)
			return idx, nil
		}
		return nil, errs.Wrap(errs.KindRepository, err, "reading %s at %s", r.path, shortSha(commit))
	}
	idx, err := Parse(data)
	if err != nil {
		return nil, err
	}
	r.cache.Set(ctx, commit, idx, cachemanager.DefaultExpiration)
	return idx, nil
}

// AtCommitLenient reads the index at a commit, downgrading malformed
// content to a warning and an empty index so historical scans do not
// abort on one bad blob.
func (r *Reader) AtCommitLenient(ctx context.Context, commit string) (Index, error) {
	idx, err := r.AtCommit(ctx, commit)
	if err != nil {
		if errs.KindOf(err) == errs.KindValidation {
			log.Warn(log.CatIndex, "Malformed index file, treating as empty", "commit", shortSha(commit), "error", err)
			return Index{}, nil
		}
		return nil, err
	}
	return idx, nil
}

// WorkingTree reads the index file from the working tree. A missing
// file yields an empty index.
func (r *Reader) WorkingTree() (Index, error) {
	root, err := r.exec.RepoRoot()
	if err != nil {
		return nil, errs.Wrap(errs.KindRepository, err, "locating repository root")
	}
	data, err := os.ReadFile(filepath.Join(root, r.path))
	if err != nil {
		if os.IsNotExist(err) {
			return Index{}, nil
		}
		return nil, errs.Wrap(errs.KindRepository, err, "reading %s", r.path)
	}
	return Parse(data)
}

func shortSha(sha string) string {
	if len(sha) > 7 {
		return sha[:7]
	}
	return sha
}
